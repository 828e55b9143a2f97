// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package model

import (
	glm "github.com/go-gl/mathgl/mgl32"
)

// Cube returns a cube of edge size centered at the origin, four
// vertices per face so that normals stay flat.
func Cube(size float32) ([]MeshVertex, []uint32) {
	h := size / 2
	faces := []struct {
		normal    glm.Vec3
		right, up glm.Vec3
	}{
		{normal: glm.Vec3{0, 0, 1}, right: glm.Vec3{1, 0, 0}, up: glm.Vec3{0, 1, 0}},
		{normal: glm.Vec3{0, 0, -1}, right: glm.Vec3{-1, 0, 0}, up: glm.Vec3{0, 1, 0}},
		{normal: glm.Vec3{1, 0, 0}, right: glm.Vec3{0, 0, -1}, up: glm.Vec3{0, 1, 0}},
		{normal: glm.Vec3{-1, 0, 0}, right: glm.Vec3{0, 0, 1}, up: glm.Vec3{0, 1, 0}},
		{normal: glm.Vec3{0, 1, 0}, right: glm.Vec3{1, 0, 0}, up: glm.Vec3{0, 0, -1}},
		{normal: glm.Vec3{0, -1, 0}, right: glm.Vec3{1, 0, 0}, up: glm.Vec3{0, 0, 1}},
	}

	vertices := make([]MeshVertex, 0, len(faces)*4)
	indices := make([]uint32, 0, len(faces)*6)
	for _, f := range faces {
		center := f.normal.Mul(h)
		right := f.right.Mul(h)
		up := f.up.Mul(h)
		vertices, indices = quad(vertices, indices, center, right, up, f.normal)
	}
	return vertices, indices
}

// Plane returns a square of edge size in the XZ plane facing up
func Plane(size float32) ([]MeshVertex, []uint32) {
	h := size / 2
	return quad(nil, nil, glm.Vec3{}, glm.Vec3{h, 0, 0}, glm.Vec3{0, 0, -h}, glm.Vec3{0, 1, 0})
}

// quad appends a quad spanning center +- right +- up
func quad(vertices []MeshVertex, indices []uint32, center, right, up, normal glm.Vec3) ([]MeshVertex, []uint32) {
	base := uint32(len(vertices))
	corners := []struct {
		r, u float32
		uv   glm.Vec2
	}{
		{-1, -1, glm.Vec2{0, 1}},
		{1, -1, glm.Vec2{1, 1}},
		{1, 1, glm.Vec2{1, 0}},
		{-1, 1, glm.Vec2{0, 0}},
	}
	for _, c := range corners {
		vertices = append(vertices, MeshVertex{
			Pos:    center.Add(right.Mul(c.r)).Add(up.Mul(c.u)),
			Normal: normal,
			UV:     c.uv,
		})
	}
	indices = append(indices, base, base+2, base+1, base, base+3, base+2)
	return vertices, indices
}
