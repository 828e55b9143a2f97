// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	glm "github.com/go-gl/mathgl/mgl32"
	vk "github.com/vulkan-go/vulkan"
)

// Renderer describes the rendering machinery.
// It's created only with internal values set,
// it needs to be initialised with Initialise() before use.
type Renderer interface {
	// Initialise sets up the configured rendering pipeline
	Initialise() error

	// DrawFrame acquires an image, records both passes for the
	// given scene and submits them for presentation
	DrawFrame(Scene) error

	// Destroy waits for the device to go idle and destroys internal members
	Destroy()
}

// Recorder records commands into the command buffer of the frame
// being built. Calls are only valid between the start and the end of
// a recording, and never block.
type Recorder interface {
	// BeginRenderPass starts a render pass instance on the framebuffer
	BeginRenderPass(pass vk.RenderPass, framebuffer vk.Framebuffer, area vk.Rect2D, clear []vk.ClearValue)

	// EndRenderPass ends the current render pass instance
	EndRenderPass()

	// SetViewport sets the dynamic viewport
	SetViewport(vk.Viewport)

	// SetScissor sets the dynamic scissor
	SetScissor(vk.Rect2D)

	// BindPipeline binds a graphics pipeline, the layout is remembered
	// for descriptor sets and push constants that follow
	BindPipeline(vk.Pipeline, vk.PipelineLayout)

	// BindDescriptorSet binds set 0 of the current pipeline layout
	BindDescriptorSet(vk.DescriptorSet)

	// PushConstants updates the push constant range of the current layout
	PushConstants(stages vk.ShaderStageFlagBits, offset uint32, data []byte)

	// BindVertexBuffer binds the buffer at binding 0
	BindVertexBuffer(vk.Buffer)

	// BindIndexBuffer binds a buffer of uint32 indices
	BindIndexBuffer(vk.Buffer)

	// DrawIndexed draws indexCount indices of a single instance
	DrawIndexed(indexCount uint32)
}

// VertexKind identifies the vertex layout a drawable is built from.
type VertexKind int

// Supported vertex kinds
const (
	MeshVertices VertexKind = iota
	SkinnedVertices
)

func (k VertexKind) String() string {
	switch k {
	case MeshVertices:
		return "mesh"
	case SkinnedVertices:
		return "skinned"
	}
	return "unknown"
}

// Drawable is anything the render graph can draw. The graph calls
// Bind and then Draw for every drawable, once per pass it takes part in.
type Drawable interface {
	// Kind returns the vertex layout the drawable's buffers follow
	Kind() VertexKind

	// Bind records the bindings of the drawable's own buffers
	Bind(Recorder)

	// Draw records the draw call
	Draw(Recorder)
}

// Scene supplies the per-frame inputs of the render graph.
type Scene interface {
	// Camera returns the view and projection of the main pass
	Camera() (view, projection glm.Mat4)

	// LightSpace returns the view-projection of the shadow casting light
	LightSpace() glm.Mat4

	// Drawables returns everything that should be drawn this frame
	Drawables() []Drawable
}

// ShaderType represents the type of shader thats loaded
type ShaderType int

// Identifies shader objects with their types
const (
	VertexShaderType ShaderType = iota
	FragmentShaderType
	UnknownShaderType
)
