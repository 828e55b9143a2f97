// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package model_test

import (
	"errors"
	"sync/atomic"
	"testing"
	"unsafe"

	"github.com/devblok/umbra/core"
	"github.com/devblok/umbra/model"
	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
)

var (
	arena     [1 << 12]uint64
	arenaNext uint64
)

// handle returns a distinct address outside the heap for fake vk handles
func handle() unsafe.Pointer {
	idx := atomic.AddUint64(&arenaNext, 1) % uint64(len(arena))
	return unsafe.Pointer(&arena[idx])
}

func TestVertexSizes(t *testing.T) {
	assert.Equal(t, uintptr(36), unsafe.Sizeof(model.MeshVertex{}))
	assert.Equal(t, uintptr(48), unsafe.Sizeof(model.SkinnedVertex{}))
}

func TestLayoutFor(t *testing.T) {
	mesh := model.LayoutFor(core.MeshVertices)
	assert.Equal(t, uint32(36), mesh.Stride())
	assert.Len(t, mesh.Attributes, 4)

	skinned := model.LayoutFor(core.SkinnedVertices)
	assert.Equal(t, uint32(48), skinned.Stride())
	require.Len(t, skinned.Attributes, 8)

	for idx, attr := range skinned.Attributes {
		assert.Equal(t, uint32(idx), attr.Location)
		assert.Less(t, attr.Offset, skinned.Stride())
	}
	assert.Equal(t, vk.FormatR8Uint, skinned.Attributes[4].Format)
	assert.Equal(t, vk.FormatR32Sfloat, skinned.Attributes[5].Format)

	assert.Equal(t, uint32(0), model.VertexLayout{}.Stride())
}

func TestVertexBytes(t *testing.T) {
	vertices, _ := model.Cube(2)
	assert.Len(t, model.MeshVertexBytes(vertices), len(vertices)*36)
	assert.Nil(t, model.MeshVertexBytes(nil))
	assert.Len(t, model.SkinnedVertexBytes(make([]model.SkinnedVertex, 3)), 3*48)
	assert.Nil(t, model.SkinnedVertexBytes(nil))
}

func TestShapes(t *testing.T) {
	vertices, indices := model.Cube(2)
	assert.Len(t, vertices, 24)
	assert.Len(t, indices, 36)
	for _, v := range vertices {
		assert.InDelta(t, 1, v.Normal.Len(), 1e-6)
		for _, c := range v.Pos {
			assert.InDelta(t, 1, glm.Abs(c), 1e-6)
		}
	}
	for _, idx := range indices {
		assert.Less(t, idx, uint32(len(vertices)))
	}

	vertices, indices = model.Plane(4)
	assert.Len(t, vertices, 4)
	assert.Equal(t, []uint32{0, 2, 1, 0, 3, 2}, indices)
	for _, v := range vertices {
		assert.Equal(t, float32(0), v.Pos.Y())
		assert.Equal(t, glm.Vec3{0, 1, 0}, v.Normal)
	}
}

func TestUniformEncoding(t *testing.T) {
	assert.Len(t, model.Bytes(model.PushConstant{Model: glm.Ident4()}), model.PushConstantSize)
	assert.Equal(t, 192, model.Size(model.CameraUniform{}))
	assert.Equal(t, 64, model.Size(model.LightUniform{}))
	assert.Equal(t, -1, model.Size(struct{ S []int }{}))
	assert.Nil(t, model.Bytes(struct{ S []int }{}))

	// column major, first column first
	data := model.Bytes(model.LightUniform{LightSpace: glm.Translate3D(1, 2, 3)})
	assert.Equal(t, []byte{0, 0, 0x80, 0x3f}, data[0:4])
}

func TestLightSpace(t *testing.T) {
	target := glm.Vec3{1, 0, 1}
	m := model.LightSpace(glm.Vec3{5, 10, 5}, target, 10, 0.1, 50)

	projected := m.Mul4x1(target.Vec4(1))
	assert.InDelta(t, 0, projected.X(), 1e-5)
	assert.InDelta(t, 0, projected.Y(), 1e-5)
	assert.True(t, projected.Z() > -1 && projected.Z() < 1)
}

func TestPerspectiveFlipsY(t *testing.T) {
	gl := glm.Perspective(1, 1.5, 0.1, 10)
	vulkan := model.Perspective(1, 1.5, 0.1, 10)
	assert.Equal(t, -gl[5], vulkan[5])
	assert.Equal(t, gl[0], vulkan[0])
}

type fakeBuffers struct {
	live    int
	written [][]byte
	fail    bool
}

func (f *fakeBuffers) CreateBuffer(size int, usage vk.BufferUsageFlagBits) (vk.Buffer, vk.DeviceMemory, error) {
	if f.fail && f.live == 1 {
		return nil, nil, errors.New("out of memory")
	}
	f.live++
	return vk.Buffer(handle()), vk.DeviceMemory(handle()), nil
}

func (f *fakeBuffers) WriteBuffer(memory vk.DeviceMemory, data []byte) error {
	f.written = append(f.written, append([]byte(nil), data...))
	return nil
}

func (f *fakeBuffers) DestroyBuffer(vk.Buffer, vk.DeviceMemory) {
	f.live--
}

type fakeRecorder struct {
	core.Recorder
	commands []string
	pushed   []byte
	count    uint32
}

func (r *fakeRecorder) BindVertexBuffer(vk.Buffer) {
	r.commands = append(r.commands, "vertex")
}

func (r *fakeRecorder) BindIndexBuffer(vk.Buffer) {
	r.commands = append(r.commands, "index")
}

func (r *fakeRecorder) PushConstants(stages vk.ShaderStageFlagBits, offset uint32, data []byte) {
	r.commands = append(r.commands, "push")
	r.pushed = data
}

func (r *fakeRecorder) DrawIndexed(count uint32) {
	r.commands = append(r.commands, "draw")
	r.count = count
}

func TestMesh(t *testing.T) {
	buffers := &fakeBuffers{}
	vertices, indices := model.Cube(1)

	mesh, err := model.NewMesh(buffers, core.MeshVertices, model.MeshVertexBytes(vertices), indices)
	require.NoError(t, err)
	assert.Equal(t, core.MeshVertices, mesh.Kind())
	assert.Equal(t, 2, buffers.live)
	require.Len(t, buffers.written, 2)
	assert.Len(t, buffers.written[0], 24*36)
	assert.Len(t, buffers.written[1], 36*4)

	transform := glm.Translate3D(0, 1, 0)
	mesh.SetTransform(transform)
	assert.Equal(t, transform, mesh.Transform())

	rec := &fakeRecorder{}
	mesh.Bind(rec)
	mesh.Draw(rec)
	assert.Equal(t, []string{"vertex", "index", "push", "draw"}, rec.commands)
	assert.Equal(t, uint32(36), rec.count)
	assert.Equal(t, model.Bytes(model.PushConstant{Model: transform}), rec.pushed)

	mesh.Destroy()
	mesh.Destroy()
	assert.Zero(t, buffers.live)
}

func TestMeshErrors(t *testing.T) {
	_, err := model.NewMesh(&fakeBuffers{}, core.MeshVertices, nil, []uint32{0})
	assert.ErrorIs(t, err, model.ErrEmptyMesh)

	buffers := &fakeBuffers{fail: true}
	vertices, indices := model.Plane(1)
	_, err = model.NewMesh(buffers, core.MeshVertices, model.MeshVertexBytes(vertices), indices)
	assert.Error(t, err)
	assert.Zero(t, buffers.live)
}
