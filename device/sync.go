// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package device

import (
	"math"

	log "github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"
)

// SwapchainImages returns the images owned by the swapchain
func (v *Vulkan) SwapchainImages() []vk.Image {
	return v.swapchainImages
}

// CreateFence creates a fence, optionally already signaled
func (v *Vulkan) CreateFence(signaled bool) (vk.Fence, error) {
	fci := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		fci.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var fence vk.Fence
	if err := check("vk.CreateFence()", vk.CreateFence(v.logicalDevice, &fci, nil, &fence)); err != nil {
		return nil, err
	}
	return fence, nil
}

// DestroyFence destroys a fence
func (v *Vulkan) DestroyFence(fence vk.Fence) {
	vk.DestroyFence(v.logicalDevice, fence, nil)
}

// CreateSemaphore creates a binary semaphore
func (v *Vulkan) CreateSemaphore() (vk.Semaphore, error) {
	sci := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}

	var semaphore vk.Semaphore
	if err := check("vk.CreateSemaphore()", vk.CreateSemaphore(v.logicalDevice, &sci, nil, &semaphore)); err != nil {
		return nil, err
	}
	return semaphore, nil
}

// DestroySemaphore destroys a semaphore
func (v *Vulkan) DestroySemaphore(semaphore vk.Semaphore) {
	vk.DestroySemaphore(v.logicalDevice, semaphore, nil)
}

// WaitForFence blocks until fence is signaled, without a timeout
func (v *Vulkan) WaitForFence(fence vk.Fence) error {
	return check("vk.WaitForFences()", vk.WaitForFences(v.logicalDevice, 1, []vk.Fence{fence}, vk.True, math.MaxUint64))
}

// ResetFence puts fence back into the unsignaled state
func (v *Vulkan) ResetFence(fence vk.Fence) error {
	return check("vk.ResetFences()", vk.ResetFences(v.logicalDevice, 1, []vk.Fence{fence}))
}

// AcquireNextImage acquires a swapchain image, signal is signaled once
// the image can be written to.
func (v *Vulkan) AcquireNextImage(signal vk.Semaphore) (uint32, error) {
	var imageIndex uint32
	result := vk.AcquireNextImage(v.logicalDevice, v.swapchain, math.MaxUint64, signal, nil, &imageIndex)
	if result == vk.Suboptimal {
		log.WithField("image", imageIndex).Warn("swapchain is suboptimal for the surface")
		return imageIndex, nil
	}
	if err := check("vk.AcquireNextImage()", result); err != nil {
		return 0, err
	}
	return imageIndex, nil
}

// Submit submits cmd to the queue. The commands wait on wait at waitStage,
// signal and fence are signaled on completion.
func (v *Vulkan) Submit(cmd vk.CommandBuffer, wait vk.Semaphore, waitStage vk.PipelineStageFlagBits, signal vk.Semaphore, fence vk.Fence) error {
	submit := []vk.SubmitInfo{{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vk.Semaphore{wait},
		PWaitDstStageMask:    []vk.PipelineStageFlags{vk.PipelineStageFlags(waitStage)},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{cmd},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{signal},
	}}
	return check("vk.QueueSubmit()", vk.QueueSubmit(v.deviceQueue, 1, submit, fence))
}

// Present queues imageIndex for presentation once wait is signaled
func (v *Vulkan) Present(wait vk.Semaphore, imageIndex uint32) error {
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{wait},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{v.swapchain},
		PImageIndices:      []uint32{imageIndex},
	}

	result := vk.QueuePresent(v.deviceQueue, &presentInfo)
	if result == vk.Suboptimal {
		log.WithField("image", imageIndex).Warn("swapchain is suboptimal for the surface")
		return nil
	}
	return check("vk.QueuePresent()", result)
}

// WaitIdle blocks until the device has finished all submitted work
func (v *Vulkan) WaitIdle() error {
	return check("vk.DeviceWaitIdle()", vk.DeviceWaitIdle(v.logicalDevice))
}
