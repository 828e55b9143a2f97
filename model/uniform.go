// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package model

import (
	"bytes"
	"encoding/binary"

	glm "github.com/go-gl/mathgl/mgl32"
)

// PushConstantSize is the size of PushConstant as the shaders see it
const PushConstantSize = 64

// PushConstant is pushed to the vertex stage for every draw
type PushConstant struct {
	Model glm.Mat4
}

// CameraUniform is read by the main pass
type CameraUniform struct {
	View       glm.Mat4
	Projection glm.Mat4

	// LightSpace projects world positions into the shadow map
	LightSpace glm.Mat4
}

// LightUniform is read by the shadow pass
type LightUniform struct {
	LightSpace glm.Mat4
}

// Bytes encodes a fixed size value the way std140 lays out matrices
func Bytes(v interface{}) []byte {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
		return nil
	}
	return buf.Bytes()
}

// Size is the encoded size of v, or -1 when v is not fixed size
func Size(v interface{}) int {
	return binary.Size(v)
}

// LightSpace is the orthographic view-projection of a directional light
// at position looking at target, covering extent units around it.
func LightSpace(position, target glm.Vec3, extent, near, far float32) glm.Mat4 {
	projection := glm.Ortho(-extent, extent, -extent, extent, near, far)
	view := glm.LookAtV(position, target, glm.Vec3{0, 1, 0})
	return projection.Mul4(view)
}

// Perspective is a projection with the y axis flipped for Vulkan clip space
func Perspective(fovy, aspect, near, far float32) glm.Mat4 {
	projection := glm.Perspective(fovy, aspect, near, far)
	projection[5] *= -1
	return projection
}
