// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package renderer_test

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"github.com/devblok/umbra/core"
	"github.com/devblok/umbra/core/renderer"
	vk "github.com/vulkan-go/vulkan"
)

var errInjected = errors.New("injected failure")

// handles are addresses in a global arena. Handle types point to
// incomplete C types, so heap backed addresses may be reused.
var (
	arena     [1 << 16]uint64
	arenaNext uint64
)

func handle() unsafe.Pointer {
	idx := atomic.AddUint64(&arenaNext, 1) % uint64(len(arena))
	return unsafe.Pointer(&arena[idx])
}

// fakeDevice implements renderer.Device without a GPU. Submitted work
// completes in FIFO order when a fence is waited on or the device
// drains, which is how a single queue behaves.
type fakeDevice struct {
	extent     vk.Extent2D
	maxSamples vk.SampleCountFlagBits

	swapchain []vk.Image
	nextImage int

	// acquireOrder overrides round robin acquisition when set
	acquireOrder []uint32

	// fail makes the named call return errInjected
	fail map[string]bool

	live   map[string]int
	events []string

	signaled      map[vk.Fence]bool
	queue         []vk.Fence
	waitCalls     int
	blockingWaits int
	presented     []uint32

	images       []vk.ImageCreateInfo
	renderPasses []vk.RenderPassCreateInfo
	framebuffers []vk.FramebufferCreateInfo
	setLayouts   []vk.DescriptorSetLayoutCreateInfo
	layouts      []vk.PipelineLayoutCreateInfo
	pools        []vk.DescriptorPoolCreateInfo
	writes       []vk.WriteDescriptorSet
	pipelines    []vk.GraphicsPipelineCreateInfo
	samplers     []vk.SamplerCreateInfo
	written      map[vk.DeviceMemory][]byte

	recorder *fakeRecorder
}

func newFakeDevice(images int) *fakeDevice {
	f := &fakeDevice{
		extent:     vk.Extent2D{Width: 800, Height: 600},
		maxSamples: vk.SampleCount8Bit,
		fail:       make(map[string]bool),
		live:       make(map[string]int),
		signaled:   make(map[vk.Fence]bool),
		written:    make(map[vk.DeviceMemory][]byte),
		recorder:   &fakeRecorder{},
	}
	for idx := 0; idx < images; idx++ {
		f.swapchain = append(f.swapchain, vk.Image(handle()))
	}
	return f
}

func (f *fakeDevice) call(name string) error {
	f.events = append(f.events, name)
	if f.fail[name] {
		return fmt.Errorf("%s: %w", name, errInjected)
	}
	return nil
}

func (f *fakeDevice) create(kind string) {
	f.live[kind]++
}

func (f *fakeDevice) destroy(name, kind string) {
	f.events = append(f.events, name)
	f.live[kind]--
}

// leaks lists the kinds of objects that were not destroyed
func (f *fakeDevice) leaks() map[string]int {
	leaks := make(map[string]int)
	for kind, n := range f.live {
		if n != 0 {
			leaks[kind] = n
		}
	}
	return leaks
}

func (f *fakeDevice) count(event string) int {
	var n int
	for _, e := range f.events {
		if e == event {
			n++
		}
	}
	return n
}

// first returns the index of the first event, -1 if it never happened
func (f *fakeDevice) first(event string) int {
	for idx, e := range f.events {
		if e == event {
			return idx
		}
	}
	return -1
}

// last returns the index of the last event, -1 if it never happened
func (f *fakeDevice) last(event string) int {
	for idx := len(f.events) - 1; idx >= 0; idx-- {
		if f.events[idx] == event {
			return idx
		}
	}
	return -1
}

// retire completes the oldest n submissions
func (f *fakeDevice) retire(n int) {
	for ; n > 0 && len(f.queue) > 0; n-- {
		f.signaled[f.queue[0]] = true
		f.queue = f.queue[1:]
	}
}

func (f *fakeDevice) Extent() vk.Extent2D { return f.extent }
func (f *fakeDevice) ColorFormat() vk.Format { return vk.FormatB8g8r8a8Unorm }
func (f *fakeDevice) DepthFormat() vk.Format { return vk.FormatD32Sfloat }
func (f *fakeDevice) MaxSamples() vk.SampleCountFlagBits { return f.maxSamples }

func (f *fakeDevice) CreateImage(info *vk.ImageCreateInfo) (vk.Image, vk.DeviceMemory, error) {
	if err := f.call("CreateImage"); err != nil {
		return nil, nil, err
	}
	f.images = append(f.images, *info)
	f.create("image")
	return vk.Image(handle()), vk.DeviceMemory(handle()), nil
}

func (f *fakeDevice) CreateImageView(image vk.Image, format vk.Format, aspect vk.ImageAspectFlagBits) (vk.ImageView, error) {
	if err := f.call("CreateImageView"); err != nil {
		return nil, err
	}
	f.create("view")
	return vk.ImageView(handle()), nil
}

func (f *fakeDevice) DestroyImage(image vk.Image, memory vk.DeviceMemory) {
	f.destroy("DestroyImage", "image")
}

func (f *fakeDevice) DestroyImageView(view vk.ImageView) {
	f.destroy("DestroyImageView", "view")
}

func (f *fakeDevice) CreateRenderPass(info *vk.RenderPassCreateInfo) (vk.RenderPass, error) {
	if err := f.call("CreateRenderPass"); err != nil {
		return nil, err
	}
	f.renderPasses = append(f.renderPasses, *info)
	f.create("renderpass")
	return vk.RenderPass(handle()), nil
}

func (f *fakeDevice) DestroyRenderPass(vk.RenderPass) {
	f.destroy("DestroyRenderPass", "renderpass")
}

func (f *fakeDevice) CreateFramebuffer(info *vk.FramebufferCreateInfo) (vk.Framebuffer, error) {
	if err := f.call("CreateFramebuffer"); err != nil {
		return nil, err
	}
	f.framebuffers = append(f.framebuffers, *info)
	f.create("framebuffer")
	return vk.Framebuffer(handle()), nil
}

func (f *fakeDevice) DestroyFramebuffer(vk.Framebuffer) {
	f.destroy("DestroyFramebuffer", "framebuffer")
}

func (f *fakeDevice) CreateShaderModule(code []byte) (vk.ShaderModule, error) {
	if err := f.call("CreateShaderModule"); err != nil {
		return nil, err
	}
	f.create("shader")
	return vk.ShaderModule(handle()), nil
}

func (f *fakeDevice) DestroyShaderModule(vk.ShaderModule) {
	f.destroy("DestroyShaderModule", "shader")
}

func (f *fakeDevice) CreateDescriptorSetLayout(info *vk.DescriptorSetLayoutCreateInfo) (vk.DescriptorSetLayout, error) {
	if err := f.call("CreateDescriptorSetLayout"); err != nil {
		return nil, err
	}
	f.setLayouts = append(f.setLayouts, *info)
	f.create("setlayout")
	return vk.DescriptorSetLayout(handle()), nil
}

func (f *fakeDevice) DestroyDescriptorSetLayout(vk.DescriptorSetLayout) {
	f.destroy("DestroyDescriptorSetLayout", "setlayout")
}

func (f *fakeDevice) CreatePipelineLayout(info *vk.PipelineLayoutCreateInfo) (vk.PipelineLayout, error) {
	if err := f.call("CreatePipelineLayout"); err != nil {
		return nil, err
	}
	f.layouts = append(f.layouts, *info)
	f.create("layout")
	return vk.PipelineLayout(handle()), nil
}

func (f *fakeDevice) DestroyPipelineLayout(vk.PipelineLayout) {
	f.destroy("DestroyPipelineLayout", "layout")
}

func (f *fakeDevice) CreateDescriptorPool(info *vk.DescriptorPoolCreateInfo) (vk.DescriptorPool, error) {
	if err := f.call("CreateDescriptorPool"); err != nil {
		return nil, err
	}
	f.pools = append(f.pools, *info)
	f.create("pool")
	return vk.DescriptorPool(handle()), nil
}

func (f *fakeDevice) DestroyDescriptorPool(vk.DescriptorPool) {
	f.destroy("DestroyDescriptorPool", "pool")
}

func (f *fakeDevice) AllocateDescriptorSets(pool vk.DescriptorPool, layouts []vk.DescriptorSetLayout) ([]vk.DescriptorSet, error) {
	if err := f.call("AllocateDescriptorSets"); err != nil {
		return nil, err
	}
	sets := make([]vk.DescriptorSet, len(layouts))
	for idx := range sets {
		sets[idx] = vk.DescriptorSet(handle())
	}
	return sets, nil
}

func (f *fakeDevice) UpdateDescriptorSets(writes []vk.WriteDescriptorSet) {
	f.events = append(f.events, "UpdateDescriptorSets")
	f.writes = append(f.writes, writes...)
}

func (f *fakeDevice) CreateGraphicsPipeline(info *vk.GraphicsPipelineCreateInfo) (vk.Pipeline, error) {
	if err := f.call("CreateGraphicsPipeline"); err != nil {
		return nil, err
	}
	f.pipelines = append(f.pipelines, *info)
	f.create("pipeline")
	return vk.Pipeline(handle()), nil
}

func (f *fakeDevice) DestroyPipeline(vk.Pipeline) {
	f.destroy("DestroyPipeline", "pipeline")
}

func (f *fakeDevice) SwapchainImages() []vk.Image {
	return f.swapchain
}

func (f *fakeDevice) CreateFence(signaled bool) (vk.Fence, error) {
	if err := f.call("CreateFence"); err != nil {
		return nil, err
	}
	fence := vk.Fence(handle())
	f.signaled[fence] = signaled
	f.create("fence")
	return fence, nil
}

func (f *fakeDevice) DestroyFence(vk.Fence) {
	f.destroy("DestroyFence", "fence")
}

func (f *fakeDevice) CreateSemaphore() (vk.Semaphore, error) {
	if err := f.call("CreateSemaphore"); err != nil {
		return nil, err
	}
	f.create("semaphore")
	return vk.Semaphore(handle()), nil
}

func (f *fakeDevice) DestroySemaphore(vk.Semaphore) {
	f.destroy("DestroySemaphore", "semaphore")
}

func (f *fakeDevice) WaitForFence(fence vk.Fence) error {
	if err := f.call("WaitForFence"); err != nil {
		return err
	}
	f.waitCalls++
	if f.signaled[fence] {
		return nil
	}
	f.blockingWaits++
	for !f.signaled[fence] {
		if len(f.queue) == 0 {
			return errors.New("waiting on a fence that was never submitted")
		}
		f.retire(1)
	}
	return nil
}

func (f *fakeDevice) ResetFence(fence vk.Fence) error {
	if err := f.call("ResetFence"); err != nil {
		return err
	}
	f.signaled[fence] = false
	return nil
}

func (f *fakeDevice) AcquireNextImage(signal vk.Semaphore) (uint32, error) {
	if err := f.call("AcquireNextImage"); err != nil {
		return 0, err
	}
	var index uint32
	if f.nextImage < len(f.acquireOrder) {
		index = f.acquireOrder[f.nextImage]
	} else {
		index = uint32(f.nextImage % len(f.swapchain))
	}
	f.nextImage++
	return index, nil
}

func (f *fakeDevice) Submit(cmd vk.CommandBuffer, wait vk.Semaphore, waitStage vk.PipelineStageFlagBits, signal vk.Semaphore, fence vk.Fence) error {
	if err := f.call("Submit"); err != nil {
		return err
	}
	if f.signaled[fence] {
		return errors.New("submitted with a signaled fence")
	}
	f.queue = append(f.queue, fence)
	return nil
}

func (f *fakeDevice) Present(wait vk.Semaphore, imageIndex uint32) error {
	if err := f.call("Present"); err != nil {
		return err
	}
	f.presented = append(f.presented, imageIndex)
	return nil
}

func (f *fakeDevice) WaitIdle() error {
	if err := f.call("WaitIdle"); err != nil {
		return err
	}
	f.retire(len(f.queue))
	return nil
}

func (f *fakeDevice) CreateBuffer(size int, usage vk.BufferUsageFlagBits) (vk.Buffer, vk.DeviceMemory, error) {
	if err := f.call("CreateBuffer"); err != nil {
		return nil, nil, err
	}
	f.create("buffer")
	return vk.Buffer(handle()), vk.DeviceMemory(handle()), nil
}

func (f *fakeDevice) WriteBuffer(memory vk.DeviceMemory, data []byte) error {
	if err := f.call("WriteBuffer"); err != nil {
		return err
	}
	f.written[memory] = append([]byte(nil), data...)
	return nil
}

func (f *fakeDevice) DestroyBuffer(vk.Buffer, vk.DeviceMemory) {
	f.destroy("DestroyBuffer", "buffer")
}

func (f *fakeDevice) AllocateCommandBuffers(n int) ([]vk.CommandBuffer, error) {
	if err := f.call("AllocateCommandBuffers"); err != nil {
		return nil, err
	}
	buffers := make([]vk.CommandBuffer, n)
	for idx := range buffers {
		buffers[idx] = vk.CommandBuffer(handle())
		f.create("commandbuffer")
	}
	return buffers, nil
}

func (f *fakeDevice) FreeCommandBuffers(buffers []vk.CommandBuffer) {
	f.events = append(f.events, "FreeCommandBuffers")
	f.live["commandbuffer"] -= len(buffers)
}

func (f *fakeDevice) BeginRecording(vk.CommandBuffer) (core.Recorder, error) {
	if err := f.call("BeginRecording"); err != nil {
		return nil, err
	}
	return f.recorder, nil
}

func (f *fakeDevice) EndRecording(vk.CommandBuffer) error {
	return f.call("EndRecording")
}

func (f *fakeDevice) CreateSampler(info *vk.SamplerCreateInfo) (vk.Sampler, error) {
	if err := f.call("CreateSampler"); err != nil {
		return nil, err
	}
	f.samplers = append(f.samplers, *info)
	f.create("sampler")
	return vk.Sampler(handle()), nil
}

func (f *fakeDevice) DestroySampler(vk.Sampler) {
	f.destroy("DestroySampler", "sampler")
}

var _ renderer.Device = (*fakeDevice)(nil)

// fakeRecorder logs the commands recorded into it
type fakeRecorder struct {
	commands     []string
	framebuffers []vk.Framebuffer
	sets         []vk.DescriptorSet
	pushed       [][]byte
}

func (r *fakeRecorder) BeginRenderPass(pass vk.RenderPass, framebuffer vk.Framebuffer, area vk.Rect2D, clear []vk.ClearValue) {
	r.commands = append(r.commands, "BeginRenderPass")
	r.framebuffers = append(r.framebuffers, framebuffer)
}

func (r *fakeRecorder) EndRenderPass() {
	r.commands = append(r.commands, "EndRenderPass")
}

func (r *fakeRecorder) SetViewport(vk.Viewport) {
	r.commands = append(r.commands, "SetViewport")
}

func (r *fakeRecorder) SetScissor(vk.Rect2D) {
	r.commands = append(r.commands, "SetScissor")
}

func (r *fakeRecorder) BindPipeline(vk.Pipeline, vk.PipelineLayout) {
	r.commands = append(r.commands, "BindPipeline")
}

func (r *fakeRecorder) BindDescriptorSet(set vk.DescriptorSet) {
	r.commands = append(r.commands, "BindDescriptorSet")
	r.sets = append(r.sets, set)
}

func (r *fakeRecorder) PushConstants(stages vk.ShaderStageFlagBits, offset uint32, data []byte) {
	r.commands = append(r.commands, "PushConstants")
	r.pushed = append(r.pushed, data)
}

func (r *fakeRecorder) BindVertexBuffer(vk.Buffer) {
	r.commands = append(r.commands, "BindVertexBuffer")
}

func (r *fakeRecorder) BindIndexBuffer(vk.Buffer) {
	r.commands = append(r.commands, "BindIndexBuffer")
}

func (r *fakeRecorder) DrawIndexed(uint32) {
	r.commands = append(r.commands, "DrawIndexed")
}

func (r *fakeRecorder) reset() {
	*r = fakeRecorder{}
}

// shaderMap serves fake SPIR-V by file name
type shaderMap map[string][]byte

func (m shaderMap) Find(name string) ([]byte, error) {
	code, ok := m[name]
	if !ok {
		return nil, os.ErrNotExist
	}
	return code, nil
}

func allShaders() shaderMap {
	code := []byte{0x03, 0x02, 0x23, 0x07}
	shaders := shaderMap{}
	for _, name := range []string{
		renderer.ShadowShader, renderer.ShadowSkinnedShader,
		renderer.MainShader, renderer.MainSkinnedShader,
	} {
		shaders[core.ShaderFileName(name, core.VertexShaderType)] = code
		shaders[core.ShaderFileName(name, core.FragmentShaderType)] = code
	}
	return shaders
}
