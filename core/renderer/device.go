// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package renderer

import (
	"github.com/devblok/umbra/core"
	vk "github.com/vulkan-go/vulkan"
)

// RenderTarget describes the surface every pass renders at.
type RenderTarget interface {
	// Extent is the size of the presentable images
	Extent() vk.Extent2D

	// ColorFormat is the format of the presentable images
	ColorFormat() vk.Format

	// DepthFormat is the format of depth attachments
	DepthFormat() vk.Format
}

// ImageAllocator creates the images backing attachments.
type ImageAllocator interface {
	RenderTarget

	// CreateImage creates an image bound to device local memory
	CreateImage(info *vk.ImageCreateInfo) (vk.Image, vk.DeviceMemory, error)

	// CreateImageView creates a 2D view of image with the given aspect
	CreateImageView(image vk.Image, format vk.Format, aspect vk.ImageAspectFlagBits) (vk.ImageView, error)

	// DestroyImage destroys an image and frees its memory
	DestroyImage(image vk.Image, memory vk.DeviceMemory)

	// DestroyImageView destroys a view
	DestroyImageView(vk.ImageView)
}

// PassFactory creates render passes and framebuffers.
type PassFactory interface {
	CreateRenderPass(info *vk.RenderPassCreateInfo) (vk.RenderPass, error)
	DestroyRenderPass(vk.RenderPass)
	CreateFramebuffer(info *vk.FramebufferCreateInfo) (vk.Framebuffer, error)
	DestroyFramebuffer(vk.Framebuffer)
}

// PipelineFactory creates pipelines and the descriptor objects they read.
type PipelineFactory interface {
	CreateShaderModule(code []byte) (vk.ShaderModule, error)
	DestroyShaderModule(vk.ShaderModule)

	CreateDescriptorSetLayout(info *vk.DescriptorSetLayoutCreateInfo) (vk.DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(vk.DescriptorSetLayout)

	CreatePipelineLayout(info *vk.PipelineLayoutCreateInfo) (vk.PipelineLayout, error)
	DestroyPipelineLayout(vk.PipelineLayout)

	CreateDescriptorPool(info *vk.DescriptorPoolCreateInfo) (vk.DescriptorPool, error)
	DestroyDescriptorPool(vk.DescriptorPool)

	// AllocateDescriptorSets allocates one set per layout
	AllocateDescriptorSets(pool vk.DescriptorPool, layouts []vk.DescriptorSetLayout) ([]vk.DescriptorSet, error)
	UpdateDescriptorSets(writes []vk.WriteDescriptorSet)

	CreateGraphicsPipeline(info *vk.GraphicsPipelineCreateInfo) (vk.Pipeline, error)
	DestroyPipeline(vk.Pipeline)
}

// SwapchainDevice is the queue and swapchain side of the device,
// everything frame synchronization needs.
type SwapchainDevice interface {
	// SwapchainImages returns the presentable images, owned by the swapchain
	SwapchainImages() []vk.Image

	// CreateImageView creates a 2D view of image with the given aspect
	CreateImageView(image vk.Image, format vk.Format, aspect vk.ImageAspectFlagBits) (vk.ImageView, error)
	DestroyImageView(vk.ImageView)
	ColorFormat() vk.Format

	CreateFence(signaled bool) (vk.Fence, error)
	DestroyFence(vk.Fence)
	CreateSemaphore() (vk.Semaphore, error)
	DestroySemaphore(vk.Semaphore)

	// WaitForFence blocks until the fence is signaled
	WaitForFence(vk.Fence) error

	// ResetFence unsignals the fence
	ResetFence(vk.Fence) error

	// AcquireNextImage returns the index of the next presentable image,
	// signal is signaled when it may be written to
	AcquireNextImage(signal vk.Semaphore) (uint32, error)

	// Submit submits cmd gated on wait at waitStage, signaling signal and fence
	Submit(cmd vk.CommandBuffer, wait vk.Semaphore, waitStage vk.PipelineStageFlagBits, signal vk.Semaphore, fence vk.Fence) error

	// Present presents the image once wait is signaled
	Present(wait vk.Semaphore, imageIndex uint32) error

	// WaitIdle blocks until all submitted work has finished
	WaitIdle() error
}

// BufferAllocator creates host visible buffers.
type BufferAllocator interface {
	CreateBuffer(size int, usage vk.BufferUsageFlagBits) (vk.Buffer, vk.DeviceMemory, error)
	WriteBuffer(memory vk.DeviceMemory, data []byte) error
	DestroyBuffer(buffer vk.Buffer, memory vk.DeviceMemory)
}

// CommandDevice hands out command buffers and recorders for them.
type CommandDevice interface {
	AllocateCommandBuffers(n int) ([]vk.CommandBuffer, error)
	FreeCommandBuffers([]vk.CommandBuffer)
	BeginRecording(vk.CommandBuffer) (core.Recorder, error)
	EndRecording(vk.CommandBuffer) error
}

// Device is everything the two pass render graph is built from.
type Device interface {
	ImageAllocator
	PassFactory
	PipelineFactory
	SwapchainDevice
	BufferAllocator
	CommandDevice

	CreateSampler(info *vk.SamplerCreateInfo) (vk.Sampler, error)
	DestroySampler(vk.Sampler)

	// MaxSamples is the highest sample count usable for color and depth
	MaxSamples() vk.SampleCountFlagBits
}
