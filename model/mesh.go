// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package model

import (
	"errors"
	"sync"
	"unsafe"

	"github.com/devblok/umbra/core"
	glm "github.com/go-gl/mathgl/mgl32"
	vk "github.com/vulkan-go/vulkan"
)

// Buffers creates the host visible buffers a mesh is uploaded to
type Buffers interface {
	CreateBuffer(size int, usage vk.BufferUsageFlagBits) (vk.Buffer, vk.DeviceMemory, error)
	WriteBuffer(memory vk.DeviceMemory, data []byte) error
	DestroyBuffer(buffer vk.Buffer, memory vk.DeviceMemory)
}

// ErrEmptyMesh is returned for a mesh without vertices or indices
var ErrEmptyMesh = errors.New("mesh has no vertices or indices")

// Mesh is an indexed vertex buffer drawn with its own model matrix.
type Mesh struct {
	kind    core.VertexKind
	indices uint32

	vertexBuffer vk.Buffer
	vertexMemory vk.DeviceMemory
	indexBuffer  vk.Buffer
	indexMemory  vk.DeviceMemory

	dev Buffers

	mu        sync.RWMutex
	transform glm.Mat4
}

// NewMesh uploads vertices of kind and indices into new buffers
func NewMesh(dev Buffers, kind core.VertexKind, vertices []byte, indices []uint32) (*Mesh, error) {
	if len(vertices) == 0 || len(indices) == 0 {
		return nil, ErrEmptyMesh
	}

	m := &Mesh{
		kind:      kind,
		indices:   uint32(len(indices)),
		dev:       dev,
		transform: glm.Ident4(),
	}

	var err error
	if m.vertexBuffer, m.vertexMemory, err = dev.CreateBuffer(len(vertices), vk.BufferUsageVertexBufferBit); err != nil {
		return nil, err
	}
	if err := dev.WriteBuffer(m.vertexMemory, vertices); err != nil {
		m.Destroy()
		return nil, err
	}

	indexBytes := unsafe.Slice((*byte)(unsafe.Pointer(&indices[0])), len(indices)*4)
	if m.indexBuffer, m.indexMemory, err = dev.CreateBuffer(len(indexBytes), vk.BufferUsageIndexBufferBit); err != nil {
		m.Destroy()
		return nil, err
	}
	if err := dev.WriteBuffer(m.indexMemory, indexBytes); err != nil {
		m.Destroy()
		return nil, err
	}
	return m, nil
}

// Kind implements core.Drawable
func (m *Mesh) Kind() core.VertexKind {
	return m.kind
}

// SetTransform sets the model matrix, safe for concurrent use
func (m *Mesh) SetTransform(transform glm.Mat4) {
	m.mu.Lock()
	m.transform = transform
	m.mu.Unlock()
}

// Transform returns the model matrix, safe for concurrent use
func (m *Mesh) Transform() glm.Mat4 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.transform
}

// Bind implements core.Drawable
func (m *Mesh) Bind(rec core.Recorder) {
	rec.BindVertexBuffer(m.vertexBuffer)
	rec.BindIndexBuffer(m.indexBuffer)
}

// Draw implements core.Drawable
func (m *Mesh) Draw(rec core.Recorder) {
	rec.PushConstants(vk.ShaderStageVertexBit, 0, Bytes(PushConstant{Model: m.Transform()}))
	rec.DrawIndexed(m.indices)
}

// Destroy releases the buffers
func (m *Mesh) Destroy() {
	if m.indexBuffer != nil {
		m.dev.DestroyBuffer(m.indexBuffer, m.indexMemory)
		m.indexBuffer, m.indexMemory = nil, nil
	}
	if m.vertexBuffer != nil {
		m.dev.DestroyBuffer(m.vertexBuffer, m.vertexMemory)
		m.vertexBuffer, m.vertexMemory = nil, nil
	}
}
