// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package renderer_test

import (
	"os"
	"testing"

	"github.com/devblok/umbra/core"
	"github.com/devblok/umbra/core/renderer"
	"github.com/devblok/umbra/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
)

func TestPipelineDescriptorSets(t *testing.T) {
	dev := newFakeDevice(2)
	shadow := compile(t, dev, shadowDescription(), nil)
	defer shadow.Destroy()
	pass := compile(t, dev, mainDescription(vk.SampleCount4Bit), targetViews(2))
	defer pass.Destroy()

	shadowMap, err := shadow.SampledImage(0, vk.Sampler(handle()))
	require.NoError(t, err)
	buffers := uniformBuffers(2)
	bindings := []renderer.DescriptorBinding{
		renderer.UniformBinding(vk.ShaderStageVertexBit, buffers...),
		renderer.CombinedBinding(vk.ShaderStageFragmentBit, shadowMap),
	}

	pipeline, err := renderer.NewPipeline(dev, pass, allShaders(), renderer.Shaders(renderer.MainShader, true), bindings, renderer.DefaultPipelineConfig(core.MeshVertices), 2)
	require.NoError(t, err)

	// binding numbers follow declaration order
	require.Len(t, dev.setLayouts, 1)
	layoutBindings := dev.setLayouts[0].PBindings
	require.Len(t, layoutBindings, 2)
	assert.Equal(t, uint32(0), layoutBindings[0].Binding)
	assert.Equal(t, vk.DescriptorTypeUniformBuffer, layoutBindings[0].DescriptorType)
	assert.Equal(t, vk.ShaderStageFlags(vk.ShaderStageVertexBit), layoutBindings[0].StageFlags)
	assert.Equal(t, uint32(1), layoutBindings[1].Binding)
	assert.Equal(t, vk.DescriptorTypeCombinedImageSampler, layoutBindings[1].DescriptorType)

	require.Len(t, dev.pools, 1)
	assert.Equal(t, uint32(2), dev.pools[0].MaxSets)
	for _, size := range dev.pools[0].PPoolSizes {
		assert.Equal(t, uint32(2), size.DescriptorCount)
	}

	// set i reads row i of the unique binding and row 0 of the shared one
	sets := pipeline.Sets()
	require.Len(t, sets, 2)
	require.Len(t, dev.writes, 4)
	for _, write := range dev.writes {
		frame := 0
		if write.DstSet == sets[1] {
			frame = 1
		}
		switch write.DstBinding {
		case 0:
			require.Len(t, write.PBufferInfo, 1)
			assert.Equal(t, buffers[frame].Buffer, write.PBufferInfo[0].Buffer)
		case 1:
			require.Len(t, write.PImageInfo, 1)
			assert.Equal(t, shadowMap.View, write.PImageInfo[0].ImageView)
			assert.Equal(t, vk.ImageLayoutDepthStencilReadOnlyOptimal, write.PImageInfo[0].ImageLayout)
		}
	}

	require.Len(t, dev.pipelines, 1)
	gpci := dev.pipelines[0]
	assert.Equal(t, uint32(2), gpci.StageCount)
	assert.Equal(t, vk.SampleCount4Bit, gpci.PMultisampleState.RasterizationSamples)
	assert.Equal(t, uint32(1), gpci.PColorBlendState.AttachmentCount)
	assert.Equal(t, uint32(len(model.LayoutFor(core.MeshVertices).Attributes)), gpci.PVertexInputState.VertexAttributeDescriptionCount)
	assert.Equal(t, pass.RenderPass, gpci.RenderPass)

	require.Len(t, dev.layouts, 1)
	require.Len(t, dev.layouts[0].PPushConstantRanges, 1)
	assert.Equal(t, uint32(model.PushConstantSize), dev.layouts[0].PPushConstantRanges[0].Size)

	// modules are released once the pipeline exists
	assert.Equal(t, 0, dev.live["shader"])

	pipeline.Destroy()
	assert.Zero(t, dev.live["pipeline"])
	assert.Zero(t, dev.live["pool"])
	assert.Zero(t, dev.live["setlayout"])
	assert.Zero(t, dev.live["layout"])
}

func TestPipelineWithoutFragmentStage(t *testing.T) {
	dev := newFakeDevice(2)
	pass := compile(t, dev, shadowDescription(), nil)
	defer pass.Destroy()

	bindings := []renderer.DescriptorBinding{
		renderer.UniformBinding(vk.ShaderStageVertexBit, uniformBuffers(3)...),
	}
	pipeline, err := renderer.NewPipeline(dev, pass, allShaders(), renderer.Shaders(renderer.ShadowSkinnedShader, false), bindings, renderer.ShadowPipelineConfig(core.SkinnedVertices), 3)
	require.NoError(t, err)
	defer pipeline.Destroy()

	gpci := dev.pipelines[0]
	require.Equal(t, uint32(1), gpci.StageCount)
	assert.Equal(t, vk.ShaderStageVertexBit, gpci.PStages[0].Stage)
	assert.Equal(t, uint32(0), gpci.PColorBlendState.AttachmentCount)
	assert.Equal(t, vk.SampleCount1Bit, gpci.PMultisampleState.RasterizationSamples)
	assert.Equal(t, vk.CullModeFlags(vk.CullModeFrontBit), gpci.PRasterizationState.CullMode)
	assert.Equal(t, vk.Bool32(vk.True), gpci.PRasterizationState.DepthBiasEnable)
	assert.Equal(t, uint32(len(model.LayoutFor(core.SkinnedVertices).Attributes)), gpci.PVertexInputState.VertexAttributeDescriptionCount)
	assert.Equal(t, 1, dev.count("CreateShaderModule"))
}

func TestPipelineBind(t *testing.T) {
	dev := newFakeDevice(2)
	pass := compile(t, dev, shadowDescription(), nil)
	defer pass.Destroy()

	bindings := []renderer.DescriptorBinding{
		renderer.UniformBinding(vk.ShaderStageVertexBit, uniformBuffers(2)...),
	}
	pipeline, err := renderer.NewPipeline(dev, pass, allShaders(), renderer.Shaders(renderer.ShadowShader, false), bindings, renderer.ShadowPipelineConfig(core.MeshVertices), 2)
	require.NoError(t, err)
	defer pipeline.Destroy()

	rec := &fakeRecorder{}
	pipeline.Bind(rec, 3)
	assert.Equal(t, []string{"BindPipeline", "BindDescriptorSet"}, rec.commands)
	assert.Equal(t, []vk.DescriptorSet{pipeline.Sets()[1]}, rec.sets)
}

func TestPipelineWithoutBindings(t *testing.T) {
	dev := newFakeDevice(2)
	pass := compile(t, dev, shadowDescription(), nil)
	defer pass.Destroy()

	pipeline, err := renderer.NewPipeline(dev, pass, allShaders(), renderer.Shaders(renderer.ShadowShader, false), nil, renderer.ShadowPipelineConfig(core.MeshVertices), 2)
	require.NoError(t, err)
	defer pipeline.Destroy()

	assert.Empty(t, dev.setLayouts)
	assert.Empty(t, dev.pools)
	assert.Empty(t, pipeline.Sets())

	rec := &fakeRecorder{}
	pipeline.Bind(rec, 0)
	assert.Equal(t, []string{"BindPipeline"}, rec.commands)
}

func TestPipelineFailures(t *testing.T) {
	dev := newFakeDevice(2)
	pass := compile(t, dev, shadowDescription(), nil)
	defer pass.Destroy()
	cfg := renderer.ShadowPipelineConfig(core.MeshVertices)

	bad := []renderer.DescriptorBinding{
		renderer.UniformBinding(vk.ShaderStageVertexBit, uniformBuffers(2)...),
	}
	_, err := renderer.NewPipeline(dev, pass, allShaders(), renderer.Shaders(renderer.ShadowShader, false), bad, cfg, 3)
	assert.ErrorIs(t, err, renderer.ErrDescriptorRows)
	assert.Empty(t, dev.setLayouts)

	_, err = renderer.NewPipeline(dev, pass, shaderMap{}, renderer.Shaders(renderer.ShadowShader, false), nil, cfg, 2)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = renderer.NewPipeline(dev, pass, allShaders(), renderer.ShaderSet{}, nil, cfg, 2)
	assert.ErrorIs(t, err, renderer.ErrNoVertexShader)

	_, err = renderer.NewPipeline(dev, pass, allShaders(), renderer.Shaders(renderer.ShadowShader, false), nil, cfg, 0)
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)

	dev.fail["CreateGraphicsPipeline"] = true
	_, err = renderer.NewPipeline(dev, pass, allShaders(), renderer.Shaders(renderer.MainShader, true), nil, cfg, 2)
	assert.ErrorIs(t, err, errInjected)

	for _, kind := range []string{"pipeline", "layout", "setlayout", "pool", "shader"} {
		assert.Zero(t, dev.live[kind], kind)
	}
}

func TestShaders(t *testing.T) {
	assert.Equal(t, renderer.ShaderSet{Vertex: "main.vert.spv", Fragment: "main.frag.spv"}, renderer.Shaders("main", true))
	assert.Equal(t, renderer.ShaderSet{Vertex: "shadow.vert.spv"}, renderer.Shaders("shadow", false))
}

func TestDirSource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/main.vert.spv", []byte{1, 2, 3, 4}, 0o644))

	code, err := renderer.DirSource(dir).Find("main.vert.spv")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, code)

	_, err = renderer.DirSource(dir).Find("main.frag.spv")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestUniformRing(t *testing.T) {
	dev := newFakeDevice(2)
	ring, err := renderer.NewUniformRing(dev, model.Size(model.LightUniform{}), 2)
	require.NoError(t, err)
	assert.Equal(t, 64, ring.Size())

	require.NoError(t, ring.Write(1, model.LightUniform{}))
	assert.Len(t, dev.written, 1)
	for _, data := range dev.written {
		assert.Len(t, data, 64)
	}

	err = ring.Write(0, model.CameraUniform{})
	assert.ErrorIs(t, err, renderer.ErrUniformSize)

	binding := ring.Binding(vk.ShaderStageVertexBit)
	assert.True(t, binding.PerFrameUnique)
	assert.NoError(t, binding.Validate(2))
	assert.Equal(t, vk.DeviceSize(64), binding.Row(1)[0].(renderer.UniformBuffer).Range)

	ring.Destroy()
	assert.Empty(t, dev.leaks())

	_, err = renderer.NewUniformRing(dev, 0, 2)
	assert.ErrorIs(t, err, renderer.ErrUniformSize)
}
