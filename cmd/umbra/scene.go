// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"os"

	"github.com/devblok/umbra/core"
	"github.com/devblok/umbra/model"
	glm "github.com/go-gl/mathgl/mgl32"
)

// demoScene is a spinning object above a floor, lit by one
// shadow casting light.
type demoScene struct {
	object *model.Mesh
	floor  *model.Mesh

	view       glm.Mat4
	projection glm.Mat4
	lightSpace glm.Mat4
}

func newDemoScene(dev model.Buffers, colladaFile string, aspect float32) (*demoScene, error) {
	vertices, indices := model.Cube(1)
	if colladaFile != "" {
		f, err := os.Open(colladaFile)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		if vertices, indices, err = model.LoadCollada(f); err != nil {
			return nil, err
		}
	}

	object, err := model.NewMesh(dev, core.MeshVertices, model.MeshVertexBytes(vertices), indices)
	if err != nil {
		return nil, err
	}

	floorVertices, floorIndices := model.Plane(10)
	floor, err := model.NewMesh(dev, core.MeshVertices, model.MeshVertexBytes(floorVertices), floorIndices)
	if err != nil {
		object.Destroy()
		return nil, err
	}
	floor.SetTransform(glm.Translate3D(0, -1, 0))

	return &demoScene{
		object:     object,
		floor:      floor,
		view:       glm.LookAtV(glm.Vec3{0, 3, 6}, glm.Vec3{}, glm.Vec3{0, 1, 0}),
		projection: model.Perspective(glm.DegToRad(45), aspect, 0.1, 100),
		lightSpace: model.LightSpace(glm.Vec3{4, 8, 4}, glm.Vec3{}, 8, 0.5, 30),
	}, nil
}

// Update spins the object with the elapsed time
func (s *demoScene) Update(ft core.FrameTime) {
	angle := float32(ft.Elapsed.Seconds())
	s.object.SetTransform(glm.HomogRotate3D(angle, glm.Vec3{0, 1, 0}))
}

func (s *demoScene) Camera() (glm.Mat4, glm.Mat4) {
	return s.view, s.projection
}

func (s *demoScene) LightSpace() glm.Mat4 {
	return s.lightSpace
}

func (s *demoScene) Drawables() []core.Drawable {
	return []core.Drawable{s.floor, s.object}
}

func (s *demoScene) Destroy() {
	s.object.Destroy()
	s.floor.Destroy()
}
