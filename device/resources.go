// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package device

import (
	"errors"
	"unsafe"

	"github.com/devblok/umbra/core"
	vk "github.com/vulkan-go/vulkan"
)

// CreateImage creates an image and binds it to fresh device local memory
func (v *Vulkan) CreateImage(info *vk.ImageCreateInfo) (vk.Image, vk.DeviceMemory, error) {
	var image vk.Image
	if err := check("vk.CreateImage()", vk.CreateImage(v.logicalDevice, info, nil, &image)); err != nil {
		return nil, nil, err
	}

	var memoryRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(v.logicalDevice, image, &memoryRequirements)
	memoryRequirements.Deref()

	memory, err := v.allocator.Malloc(memoryRequirements, vk.MemoryPropertyDeviceLocalBit)
	if err != nil {
		vk.DestroyImage(v.logicalDevice, image, nil)
		return nil, nil, err
	}

	if err := check("vk.BindImageMemory()", vk.BindImageMemory(v.logicalDevice, image, memory, 0)); err != nil {
		v.allocator.Free(memory)
		vk.DestroyImage(v.logicalDevice, image, nil)
		return nil, nil, err
	}
	return image, memory, nil
}

// CreateImageView creates a 2D view covering the single mip level and layer of image
func (v *Vulkan) CreateImageView(image vk.Image, format vk.Format, aspect vk.ImageAspectFlagBits) (vk.ImageView, error) {
	ivci := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(aspect),
			LevelCount: 1,
			LayerCount: 1,
		},
	}

	var view vk.ImageView
	if err := check("vk.CreateImageView()", vk.CreateImageView(v.logicalDevice, &ivci, nil, &view)); err != nil {
		return nil, err
	}
	return view, nil
}

// DestroyImage destroys an image created with CreateImage and frees its memory
func (v *Vulkan) DestroyImage(image vk.Image, memory vk.DeviceMemory) {
	vk.DestroyImage(v.logicalDevice, image, nil)
	v.allocator.Free(memory)
}

// DestroyImageView destroys a view
func (v *Vulkan) DestroyImageView(view vk.ImageView) {
	vk.DestroyImageView(v.logicalDevice, view, nil)
}

// CreateBuffer creates a host visible, coherent buffer of size bytes
func (v *Vulkan) CreateBuffer(size int, usage vk.BufferUsageFlagBits) (vk.Buffer, vk.DeviceMemory, error) {
	bci := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       vk.BufferUsageFlags(usage),
		SharingMode: vk.SharingModeExclusive,
	}

	var buffer vk.Buffer
	if err := check("vk.CreateBuffer()", vk.CreateBuffer(v.logicalDevice, &bci, nil, &buffer)); err != nil {
		return nil, nil, err
	}

	var memoryRequirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(v.logicalDevice, buffer, &memoryRequirements)
	memoryRequirements.Deref()

	memory, err := v.allocator.Malloc(memoryRequirements, vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit)
	if err != nil {
		vk.DestroyBuffer(v.logicalDevice, buffer, nil)
		return nil, nil, err
	}

	if err := check("vk.BindBufferMemory()", vk.BindBufferMemory(v.logicalDevice, buffer, memory, 0)); err != nil {
		v.allocator.Free(memory)
		vk.DestroyBuffer(v.logicalDevice, buffer, nil)
		return nil, nil, err
	}
	return buffer, memory, nil
}

// WriteBuffer copies data to the start of host visible memory
func (v *Vulkan) WriteBuffer(memory vk.DeviceMemory, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var mapped unsafe.Pointer
	if err := check("vk.MapMemory()", vk.MapMemory(v.logicalDevice, memory, 0, vk.DeviceSize(len(data)), 0, &mapped)); err != nil {
		return err
	}
	vk.Memcopy(mapped, data)
	vk.UnmapMemory(v.logicalDevice, memory)
	return nil
}

// DestroyBuffer destroys a buffer created with CreateBuffer and frees its memory
func (v *Vulkan) DestroyBuffer(buffer vk.Buffer, memory vk.DeviceMemory) {
	vk.DestroyBuffer(v.logicalDevice, buffer, nil)
	v.allocator.Free(memory)
}

// CreateSampler creates a sampler, anisotropy is clamped to the device limit
func (v *Vulkan) CreateSampler(info *vk.SamplerCreateInfo) (vk.Sampler, error) {
	sci := *info
	if sci.AnisotropyEnable.B() && sci.MaxAnisotropy > v.maxAnisotropy {
		sci.MaxAnisotropy = v.maxAnisotropy
	}

	var sampler vk.Sampler
	if err := check("vk.CreateSampler()", vk.CreateSampler(v.logicalDevice, &sci, nil, &sampler)); err != nil {
		return nil, err
	}
	return sampler, nil
}

// DestroySampler destroys a sampler
func (v *Vulkan) DestroySampler(sampler vk.Sampler) {
	vk.DestroySampler(v.logicalDevice, sampler, nil)
}

// CreateRenderPass creates a render pass
func (v *Vulkan) CreateRenderPass(info *vk.RenderPassCreateInfo) (vk.RenderPass, error) {
	var renderPass vk.RenderPass
	if err := check("vk.CreateRenderPass()", vk.CreateRenderPass(v.logicalDevice, info, nil, &renderPass)); err != nil {
		return nil, err
	}
	return renderPass, nil
}

// DestroyRenderPass destroys a render pass
func (v *Vulkan) DestroyRenderPass(renderPass vk.RenderPass) {
	vk.DestroyRenderPass(v.logicalDevice, renderPass, nil)
}

// CreateFramebuffer creates a framebuffer
func (v *Vulkan) CreateFramebuffer(info *vk.FramebufferCreateInfo) (vk.Framebuffer, error) {
	var framebuffer vk.Framebuffer
	if err := check("vk.CreateFramebuffer()", vk.CreateFramebuffer(v.logicalDevice, info, nil, &framebuffer)); err != nil {
		return nil, err
	}
	return framebuffer, nil
}

// DestroyFramebuffer destroys a framebuffer
func (v *Vulkan) DestroyFramebuffer(framebuffer vk.Framebuffer) {
	vk.DestroyFramebuffer(v.logicalDevice, framebuffer, nil)
}

// CreateShaderModule creates a shader module from SPIR-V bytecode
func (v *Vulkan) CreateShaderModule(code []byte) (vk.ShaderModule, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, errors.New("vk.CreateShaderModule(): bytecode size is not a multiple of 4")
	}

	smci := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    core.SliceUint32(code),
	}

	var shader vk.ShaderModule
	if err := check("vk.CreateShaderModule()", vk.CreateShaderModule(v.logicalDevice, &smci, nil, &shader)); err != nil {
		return nil, err
	}
	return shader, nil
}

// DestroyShaderModule destroys a shader module
func (v *Vulkan) DestroyShaderModule(shader vk.ShaderModule) {
	vk.DestroyShaderModule(v.logicalDevice, shader, nil)
}

// CreateDescriptorSetLayout creates a descriptor set layout
func (v *Vulkan) CreateDescriptorSetLayout(info *vk.DescriptorSetLayoutCreateInfo) (vk.DescriptorSetLayout, error) {
	var layout vk.DescriptorSetLayout
	if err := check("vk.CreateDescriptorSetLayout()", vk.CreateDescriptorSetLayout(v.logicalDevice, info, nil, &layout)); err != nil {
		return nil, err
	}
	return layout, nil
}

// DestroyDescriptorSetLayout destroys a descriptor set layout
func (v *Vulkan) DestroyDescriptorSetLayout(layout vk.DescriptorSetLayout) {
	vk.DestroyDescriptorSetLayout(v.logicalDevice, layout, nil)
}

// CreatePipelineLayout creates a pipeline layout
func (v *Vulkan) CreatePipelineLayout(info *vk.PipelineLayoutCreateInfo) (vk.PipelineLayout, error) {
	var layout vk.PipelineLayout
	if err := check("vk.CreatePipelineLayout()", vk.CreatePipelineLayout(v.logicalDevice, info, nil, &layout)); err != nil {
		return nil, err
	}
	return layout, nil
}

// DestroyPipelineLayout destroys a pipeline layout
func (v *Vulkan) DestroyPipelineLayout(layout vk.PipelineLayout) {
	vk.DestroyPipelineLayout(v.logicalDevice, layout, nil)
}

// CreateDescriptorPool creates a descriptor pool
func (v *Vulkan) CreateDescriptorPool(info *vk.DescriptorPoolCreateInfo) (vk.DescriptorPool, error) {
	var pool vk.DescriptorPool
	if err := check("vk.CreateDescriptorPool()", vk.CreateDescriptorPool(v.logicalDevice, info, nil, &pool)); err != nil {
		return nil, err
	}
	return pool, nil
}

// DestroyDescriptorPool destroys a descriptor pool and every set allocated from it
func (v *Vulkan) DestroyDescriptorPool(pool vk.DescriptorPool) {
	vk.DestroyDescriptorPool(v.logicalDevice, pool, nil)
}

// AllocateDescriptorSets allocates one set per layout from pool
func (v *Vulkan) AllocateDescriptorSets(pool vk.DescriptorPool, layouts []vk.DescriptorSetLayout) ([]vk.DescriptorSet, error) {
	if len(layouts) == 0 {
		return nil, nil
	}
	dsai := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: uint32(len(layouts)),
		PSetLayouts:        layouts,
	}

	sets := make([]vk.DescriptorSet, len(layouts))
	if err := check("vk.AllocateDescriptorSets()", vk.AllocateDescriptorSets(v.logicalDevice, &dsai, &sets[0])); err != nil {
		return nil, err
	}
	return sets, nil
}

// UpdateDescriptorSets writes descriptors
func (v *Vulkan) UpdateDescriptorSets(writes []vk.WriteDescriptorSet) {
	if len(writes) == 0 {
		return
	}
	vk.UpdateDescriptorSets(v.logicalDevice, uint32(len(writes)), writes, 0, nil)
}

// CreateGraphicsPipeline creates a graphics pipeline through the device's pipeline cache
func (v *Vulkan) CreateGraphicsPipeline(info *vk.GraphicsPipelineCreateInfo) (vk.Pipeline, error) {
	pipelines := make([]vk.Pipeline, 1)
	if err := check("vk.CreateGraphicsPipelines()", vk.CreateGraphicsPipelines(v.logicalDevice, v.pipelineCache, 1, []vk.GraphicsPipelineCreateInfo{*info}, nil, pipelines)); err != nil {
		return nil, err
	}
	return pipelines[0], nil
}

// DestroyPipeline destroys a pipeline
func (v *Vulkan) DestroyPipeline(pipeline vk.Pipeline) {
	vk.DestroyPipeline(v.logicalDevice, pipeline, nil)
}
