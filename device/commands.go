// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package device

import (
	"unsafe"

	"github.com/devblok/umbra/core"
	vk "github.com/vulkan-go/vulkan"
)

// AllocateCommandBuffers allocates n primary command buffers
func (v *Vulkan) AllocateCommandBuffers(n int) ([]vk.CommandBuffer, error) {
	cbai := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        v.commandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(n),
	}

	commandBuffers := make([]vk.CommandBuffer, n)
	if err := check("vk.AllocateCommandBuffers()", vk.AllocateCommandBuffers(v.logicalDevice, &cbai, commandBuffers)); err != nil {
		return nil, err
	}
	return commandBuffers, nil
}

// FreeCommandBuffers returns command buffers to the pool
func (v *Vulkan) FreeCommandBuffers(buffers []vk.CommandBuffer) {
	if len(buffers) == 0 {
		return
	}
	vk.FreeCommandBuffers(v.logicalDevice, v.commandPool, uint32(len(buffers)), buffers)
}

// BeginRecording resets cmd and starts a one time submit recording
func (v *Vulkan) BeginRecording(cmd vk.CommandBuffer) (core.Recorder, error) {
	if err := check("vk.ResetCommandBuffer()", vk.ResetCommandBuffer(cmd, 0)); err != nil {
		return nil, err
	}

	cbbi := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := check("vk.BeginCommandBuffer()", vk.BeginCommandBuffer(cmd, &cbbi)); err != nil {
		return nil, err
	}
	return &recorder{cmd: cmd}, nil
}

// EndRecording finishes the recording started with BeginRecording
func (v *Vulkan) EndRecording(cmd vk.CommandBuffer) error {
	return check("vk.EndCommandBuffer()", vk.EndCommandBuffer(cmd))
}

// recorder records straight into a command buffer
type recorder struct {
	cmd    vk.CommandBuffer
	layout vk.PipelineLayout
}

func (r *recorder) BeginRenderPass(pass vk.RenderPass, framebuffer vk.Framebuffer, area vk.Rect2D, clear []vk.ClearValue) {
	rpbi := vk.RenderPassBeginInfo{
		SType:           vk.StructureTypeRenderPassBeginInfo,
		RenderPass:      pass,
		Framebuffer:     framebuffer,
		RenderArea:      area,
		ClearValueCount: uint32(len(clear)),
		PClearValues:    clear,
	}
	vk.CmdBeginRenderPass(r.cmd, &rpbi, vk.SubpassContentsInline)
}

func (r *recorder) EndRenderPass() {
	vk.CmdEndRenderPass(r.cmd)
}

func (r *recorder) SetViewport(viewport vk.Viewport) {
	vk.CmdSetViewport(r.cmd, 0, 1, []vk.Viewport{viewport})
}

func (r *recorder) SetScissor(scissor vk.Rect2D) {
	vk.CmdSetScissor(r.cmd, 0, 1, []vk.Rect2D{scissor})
}

func (r *recorder) BindPipeline(pipeline vk.Pipeline, layout vk.PipelineLayout) {
	r.layout = layout
	vk.CmdBindPipeline(r.cmd, vk.PipelineBindPointGraphics, pipeline)
}

func (r *recorder) BindDescriptorSet(set vk.DescriptorSet) {
	vk.CmdBindDescriptorSets(r.cmd, vk.PipelineBindPointGraphics, r.layout, 0, 1, []vk.DescriptorSet{set}, 0, nil)
}

func (r *recorder) PushConstants(stages vk.ShaderStageFlagBits, offset uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	vk.CmdPushConstants(r.cmd, r.layout, vk.ShaderStageFlags(stages), offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (r *recorder) BindVertexBuffer(buffer vk.Buffer) {
	vk.CmdBindVertexBuffers(r.cmd, 0, 1, []vk.Buffer{buffer}, []vk.DeviceSize{0})
}

func (r *recorder) BindIndexBuffer(buffer vk.Buffer) {
	vk.CmdBindIndexBuffer(r.cmd, buffer, 0, vk.IndexTypeUint32)
}

func (r *recorder) DrawIndexed(indexCount uint32) {
	vk.CmdDrawIndexed(r.cmd, indexCount, 1, 0, 0, 0)
}
