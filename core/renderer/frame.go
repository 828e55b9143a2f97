// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package renderer

import (
	"errors"
	"fmt"

	"github.com/devblok/umbra/core"
	log "github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"
)

// SlotState tracks whether a frame slot has work on the GPU
type SlotState int

// Slot states
const (
	SlotIdle SlotState = iota
	SlotSubmitted
)

func (s SlotState) String() string {
	if s == SlotSubmitted {
		return "submitted"
	}
	return "idle"
}

// FrameSlot holds the synchronization objects of one frame in flight.
type FrameSlot struct {
	Index          int
	ImageReady     vk.Semaphore
	RenderComplete vk.Semaphore

	// Fence is signaled when the slot's last submission has finished
	Fence vk.Fence
	State SlotState
}

// PresentableImage is one swapchain image with its view
type PresentableImage struct {
	Image vk.Image
	View  vk.ImageView

	// lastUser is the slot that last rendered into the image
	lastUser *FrameSlot
}

// ErrNotAcquired is returned when submitting an image that was not acquired
var ErrNotAcquired = errors.New("image was not acquired by the current frame")

// ErrAlreadyAcquired is returned when acquiring again before the acquired
// image was submitted
var ErrAlreadyAcquired = errors.New("an image is already acquired by the current frame")

// Synchronizer paces the CPU against the GPU with a bounded number of
// frames in flight and keeps presentable images from being written while
// an earlier frame still renders into them.
type Synchronizer struct {
	dev      SwapchainDevice
	slots    []FrameSlot
	images   []PresentableImage
	current  int
	acquired int
}

// NewSynchronizer creates framesInFlight slots, all idle with signaled
// fences, and a view for every swapchain image.
func NewSynchronizer(dev SwapchainDevice, framesInFlight int) (*Synchronizer, error) {
	if framesInFlight < 1 {
		return nil, fmt.Errorf("%d frames in flight: %w", framesInFlight, core.ErrInvalidConfiguration)
	}

	s := &Synchronizer{
		dev:      dev,
		acquired: -1,
	}

	if err := s.createImageViews(); err != nil {
		s.Destroy()
		return nil, err
	}

	if err := s.createSlots(framesInFlight); err != nil {
		s.Destroy()
		return nil, err
	}

	log.WithFields(log.Fields{
		"slots":  len(s.slots),
		"images": len(s.images),
	}).Debug("created frame synchronization")
	return s, nil
}

func (s *Synchronizer) createImageViews() error {
	images := s.dev.SwapchainImages()
	s.images = make([]PresentableImage, 0, len(images))
	for _, image := range images {
		view, err := s.dev.CreateImageView(image, s.dev.ColorFormat(), vk.ImageAspectColorBit)
		if err != nil {
			return err
		}
		s.images = append(s.images, PresentableImage{
			Image: image,
			View:  view,
		})
	}
	return nil
}

func (s *Synchronizer) createSlots(framesInFlight int) error {
	s.slots = make([]FrameSlot, 0, framesInFlight)
	for idx := 0; idx < framesInFlight; idx++ {
		s.slots = append(s.slots, FrameSlot{Index: idx})
		slot := &s.slots[idx]

		var err error
		if slot.ImageReady, err = s.dev.CreateSemaphore(); err != nil {
			return err
		}
		if slot.RenderComplete, err = s.dev.CreateSemaphore(); err != nil {
			return err
		}
		if slot.Fence, err = s.dev.CreateFence(true); err != nil {
			return err
		}
	}
	return nil
}

// FramesInFlight is the number of frame slots
func (s *Synchronizer) FramesInFlight() int {
	return len(s.slots)
}

// Current is the index of the slot the next frame is built in
func (s *Synchronizer) Current() int {
	return s.current
}

// Slot returns the frame slot at index
func (s *Synchronizer) Slot(index int) FrameSlot {
	return s.slots[index]
}

// Views returns the views of the presentable images, by image index
func (s *Synchronizer) Views() []vk.ImageView {
	views := make([]vk.ImageView, len(s.images))
	for idx := range s.images {
		views[idx] = s.images[idx].View
	}
	return views
}

// AcquireNextImage waits for the current slot to be free, acquires
// a presentable image and makes sure no other frame still renders into it.
func (s *Synchronizer) AcquireNextImage() (uint32, error) {
	if s.acquired >= 0 {
		return 0, fmt.Errorf("image %d: %w", s.acquired, ErrAlreadyAcquired)
	}
	slot := &s.slots[s.current]
	if err := s.wait(slot); err != nil {
		return 0, err
	}

	imageIndex, err := s.dev.AcquireNextImage(slot.ImageReady)
	if err != nil {
		return 0, err
	}
	if int(imageIndex) >= len(s.images) {
		return 0, fmt.Errorf("acquired image %d of %d", imageIndex, len(s.images))
	}

	image := &s.images[imageIndex]
	if image.lastUser != nil && image.lastUser != slot {
		if err := s.wait(image.lastUser); err != nil {
			return 0, err
		}
	}
	image.lastUser = slot
	s.acquired = int(imageIndex)
	return imageIndex, nil
}

// wait blocks on the slot's fence if it has work in flight
func (s *Synchronizer) wait(slot *FrameSlot) error {
	if slot.State != SlotSubmitted {
		return nil
	}
	if err := s.dev.WaitForFence(slot.Fence); err != nil {
		return fmt.Errorf("frame slot %d: %w", slot.Index, err)
	}
	slot.State = SlotIdle
	return nil
}

// SubmitAndPresent submits cmd for the current slot and presents
// imageIndex once rendering is done, then moves on to the next slot.
// It does not block.
func (s *Synchronizer) SubmitAndPresent(cmd vk.CommandBuffer, imageIndex uint32) error {
	if s.acquired < 0 || uint32(s.acquired) != imageIndex {
		return fmt.Errorf("image %d: %w", imageIndex, ErrNotAcquired)
	}
	slot := &s.slots[s.current]

	if err := s.dev.ResetFence(slot.Fence); err != nil {
		return err
	}

	if err := s.dev.Submit(cmd, slot.ImageReady, vk.PipelineStageColorAttachmentOutputBit, slot.RenderComplete, slot.Fence); err != nil {
		// the fence stays unsignaled without a submission
		return err
	}
	slot.State = SlotSubmitted
	s.acquired = -1

	if err := s.dev.Present(slot.RenderComplete, imageIndex); err != nil {
		return err
	}

	s.current = (s.current + 1) % len(s.slots)
	return nil
}

// Drain waits for the device to finish all work and marks every slot idle
func (s *Synchronizer) Drain() error {
	if err := s.dev.WaitIdle(); err != nil {
		return err
	}
	for idx := range s.slots {
		s.slots[idx].State = SlotIdle
	}
	return nil
}

// Destroy releases the synchronization objects and image views.
// The device must be drained first.
func (s *Synchronizer) Destroy() {
	for idx := len(s.slots) - 1; idx >= 0; idx-- {
		slot := &s.slots[idx]
		if slot.Fence != nil {
			s.dev.DestroyFence(slot.Fence)
		}
		if slot.RenderComplete != nil {
			s.dev.DestroySemaphore(slot.RenderComplete)
		}
		if slot.ImageReady != nil {
			s.dev.DestroySemaphore(slot.ImageReady)
		}
	}
	s.slots = nil

	for idx := len(s.images) - 1; idx >= 0; idx-- {
		s.dev.DestroyImageView(s.images[idx].View)
	}
	s.images = nil
}
