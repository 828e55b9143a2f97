// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package model holds the vertex formats, uniforms and drawables the
// render graph consumes.
package model

import (
	"unsafe"

	"github.com/devblok/umbra/core"
	glm "github.com/go-gl/mathgl/mgl32"
	vk "github.com/vulkan-go/vulkan"
)

// MeshVertex is a vertex of a static mesh
type MeshVertex struct {
	Pos          glm.Vec3
	Normal       glm.Vec3
	UV           glm.Vec2
	TextureIndex uint8
}

// SkinnedVertex is a vertex influenced by up to two joints
type SkinnedVertex struct {
	Pos          glm.Vec3
	Normal       glm.Vec3
	UV           glm.Vec2
	TextureIndex uint8
	Joint1       uint8
	Weight1      float32
	Joint2       uint8
	Weight2      float32
}

// VertexLayout is the vertex input state of a pipeline
type VertexLayout struct {
	Bindings   []vk.VertexInputBindingDescription
	Attributes []vk.VertexInputAttributeDescription
}

// Stride is the size of one vertex at binding 0
func (l VertexLayout) Stride() uint32 {
	if len(l.Bindings) == 0 {
		return 0
	}
	return l.Bindings[0].Stride
}

// LayoutFor returns the vertex input layout of kind
func LayoutFor(kind core.VertexKind) VertexLayout {
	if kind == core.SkinnedVertices {
		return skinnedLayout()
	}
	return meshLayout()
}

func meshLayout() VertexLayout {
	return VertexLayout{
		Bindings: []vk.VertexInputBindingDescription{{
			Binding:   0,
			Stride:    uint32(unsafe.Sizeof(MeshVertex{})),
			InputRate: vk.VertexInputRateVertex,
		}},
		Attributes: []vk.VertexInputAttributeDescription{
			{
				Binding:  0,
				Location: 0,
				Format:   vk.FormatR32g32b32Sfloat,
				Offset:   uint32(unsafe.Offsetof(MeshVertex{}.Pos)),
			},
			{
				Binding:  0,
				Location: 1,
				Format:   vk.FormatR32g32b32Sfloat,
				Offset:   uint32(unsafe.Offsetof(MeshVertex{}.Normal)),
			},
			{
				Binding:  0,
				Location: 2,
				Format:   vk.FormatR32g32Sfloat,
				Offset:   uint32(unsafe.Offsetof(MeshVertex{}.UV)),
			},
			{
				Binding:  0,
				Location: 3,
				Format:   vk.FormatR8Uint,
				Offset:   uint32(unsafe.Offsetof(MeshVertex{}.TextureIndex)),
			},
		},
	}
}

func skinnedLayout() VertexLayout {
	return VertexLayout{
		Bindings: []vk.VertexInputBindingDescription{{
			Binding:   0,
			Stride:    uint32(unsafe.Sizeof(SkinnedVertex{})),
			InputRate: vk.VertexInputRateVertex,
		}},
		Attributes: []vk.VertexInputAttributeDescription{
			{
				Binding:  0,
				Location: 0,
				Format:   vk.FormatR32g32b32Sfloat,
				Offset:   uint32(unsafe.Offsetof(SkinnedVertex{}.Pos)),
			},
			{
				Binding:  0,
				Location: 1,
				Format:   vk.FormatR32g32b32Sfloat,
				Offset:   uint32(unsafe.Offsetof(SkinnedVertex{}.Normal)),
			},
			{
				Binding:  0,
				Location: 2,
				Format:   vk.FormatR32g32Sfloat,
				Offset:   uint32(unsafe.Offsetof(SkinnedVertex{}.UV)),
			},
			{
				Binding:  0,
				Location: 3,
				Format:   vk.FormatR8Uint,
				Offset:   uint32(unsafe.Offsetof(SkinnedVertex{}.TextureIndex)),
			},
			{
				Binding:  0,
				Location: 4,
				Format:   vk.FormatR8Uint,
				Offset:   uint32(unsafe.Offsetof(SkinnedVertex{}.Joint1)),
			},
			{
				Binding:  0,
				Location: 5,
				Format:   vk.FormatR32Sfloat,
				Offset:   uint32(unsafe.Offsetof(SkinnedVertex{}.Weight1)),
			},
			{
				Binding:  0,
				Location: 6,
				Format:   vk.FormatR8Uint,
				Offset:   uint32(unsafe.Offsetof(SkinnedVertex{}.Joint2)),
			},
			{
				Binding:  0,
				Location: 7,
				Format:   vk.FormatR32Sfloat,
				Offset:   uint32(unsafe.Offsetof(SkinnedVertex{}.Weight2)),
			},
		},
	}
}

// MeshVertexBytes views vertices as raw bytes for upload
func MeshVertexBytes(vertices []MeshVertex) []byte {
	if len(vertices) == 0 {
		return nil
	}
	size := len(vertices) * int(unsafe.Sizeof(MeshVertex{}))
	return unsafe.Slice((*byte)(unsafe.Pointer(&vertices[0])), size)
}

// SkinnedVertexBytes views vertices as raw bytes for upload
func SkinnedVertexBytes(vertices []SkinnedVertex) []byte {
	if len(vertices) == 0 {
		return nil
	}
	size := len(vertices) * int(unsafe.Sizeof(SkinnedVertex{}))
	return unsafe.Slice((*byte)(unsafe.Pointer(&vertices[0])), size)
}
