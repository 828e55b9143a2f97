// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package renderer

import (
	"errors"
	"fmt"

	"github.com/devblok/umbra/model"
	vk "github.com/vulkan-go/vulkan"
)

// ErrUniformSize is returned when a value does not fit the uniform buffers
var ErrUniformSize = errors.New("value does not match the uniform size")

// UniformRing is one host visible uniform buffer per frame in flight.
// A frame only writes its own buffer, so a buffer is never changed while
// the GPU may read it.
type UniformRing struct {
	dev     BufferAllocator
	size    int
	buffers []vk.Buffer
	memory  []vk.DeviceMemory
}

// NewUniformRing creates framesInFlight buffers of size bytes
func NewUniformRing(dev BufferAllocator, size, framesInFlight int) (*UniformRing, error) {
	if size <= 0 {
		return nil, fmt.Errorf("uniform of %d bytes: %w", size, ErrUniformSize)
	}

	u := &UniformRing{
		dev:  dev,
		size: size,
	}
	for idx := 0; idx < framesInFlight; idx++ {
		buffer, memory, err := dev.CreateBuffer(size, vk.BufferUsageUniformBufferBit)
		if err != nil {
			u.Destroy()
			return nil, err
		}
		u.buffers = append(u.buffers, buffer)
		u.memory = append(u.memory, memory)
	}
	return u, nil
}

// Size is the size of every buffer in bytes
func (u *UniformRing) Size() int {
	return u.size
}

// Write encodes v into the buffer of frame
func (u *UniformRing) Write(frame int, v interface{}) error {
	data := model.Bytes(v)
	if len(data) != u.size {
		return fmt.Errorf("%T encodes to %d bytes, uniform is %d: %w", v, len(data), u.size, ErrUniformSize)
	}
	return u.dev.WriteBuffer(u.memory[frame%len(u.memory)], data)
}

// Binding exposes the buffers as a uniform binding, row i read by frame i
func (u *UniformRing) Binding(stages vk.ShaderStageFlagBits) DescriptorBinding {
	buffers := make([]UniformBuffer, len(u.buffers))
	for idx, buffer := range u.buffers {
		buffers[idx] = UniformBuffer{
			Buffer: buffer,
			Range:  vk.DeviceSize(u.size),
		}
	}
	return UniformBinding(stages, buffers...)
}

// Destroy releases the buffers
func (u *UniformRing) Destroy() {
	for idx := len(u.buffers) - 1; idx >= 0; idx-- {
		u.dev.DestroyBuffer(u.buffers[idx], u.memory[idx])
	}
	u.buffers = nil
	u.memory = nil
}
