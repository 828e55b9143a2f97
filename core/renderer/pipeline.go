// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package renderer

import (
	"errors"
	"fmt"

	"github.com/devblok/umbra/core"
	"github.com/devblok/umbra/model"
	log "github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"
)

// PipelineConfig holds the fixed function state of a pipeline.
type PipelineConfig struct {
	// Vertex selects the vertex input layout
	Vertex core.VertexKind

	Topology    vk.PrimitiveTopology
	PolygonMode vk.PolygonMode
	CullMode    vk.CullModeFlagBits
	FrontFace   vk.FrontFace

	DepthTest    bool
	DepthWrite   bool
	DepthCompare vk.CompareOp

	DepthBias         bool
	DepthBiasConstant float32
	DepthBiasSlope    float32

	// PushConstantSize is the size of the vertex stage push constant range,
	// no range is declared when zero
	PushConstantSize uint32
}

// DefaultPipelineConfig is the state used by the main pass
func DefaultPipelineConfig(kind core.VertexKind) PipelineConfig {
	return PipelineConfig{
		Vertex:           kind,
		Topology:         vk.PrimitiveTopologyTriangleList,
		PolygonMode:      vk.PolygonModeFill,
		CullMode:         vk.CullModeBackBit,
		FrontFace:        vk.FrontFaceClockwise,
		DepthTest:        true,
		DepthWrite:       true,
		DepthCompare:     vk.CompareOpLess,
		PushConstantSize: model.PushConstantSize,
	}
}

// ShadowPipelineConfig renders back faces with a depth bias to keep
// surfaces from shadowing themselves.
func ShadowPipelineConfig(kind core.VertexKind) PipelineConfig {
	cfg := DefaultPipelineConfig(kind)
	cfg.CullMode = vk.CullModeFrontBit
	cfg.DepthBias = true
	cfg.DepthBiasConstant = 1.25
	cfg.DepthBiasSlope = 1.75
	return cfg
}

// ErrNoVertexShader is returned for a shader set without a vertex stage
var ErrNoVertexShader = errors.New("pipeline has no vertex shader")

// Pipeline is a graphics pipeline with its layout, descriptor pool and
// one descriptor set per frame in flight.
type Pipeline struct {
	Name     string
	Bindings []DescriptorBinding

	dev       PipelineFactory
	pipeline  vk.Pipeline
	layout    vk.PipelineLayout
	setLayout vk.DescriptorSetLayout
	pool      vk.DescriptorPool
	sets      []vk.DescriptorSet
}

// NewPipeline creates a pipeline for pass reading bindings. Every
// binding is validated against framesInFlight before anything is created.
func NewPipeline(dev PipelineFactory, pass *CompiledPass, source ShaderSource, shaders ShaderSet, bindings []DescriptorBinding, cfg PipelineConfig, framesInFlight int) (*Pipeline, error) {
	if framesInFlight < 1 {
		return nil, fmt.Errorf("pipeline %s: %d frames in flight: %w", shaders.Vertex, framesInFlight, core.ErrInvalidConfiguration)
	}
	if shaders.Vertex == "" {
		return nil, ErrNoVertexShader
	}
	for idx, b := range bindings {
		if err := b.Validate(framesInFlight); err != nil {
			return nil, fmt.Errorf("pipeline %s binding %d: %w", shaders.Vertex, idx, err)
		}
	}

	p := &Pipeline{
		Name:     shaders.Vertex,
		Bindings: bindings,
		dev:      dev,
	}

	if err := p.createLayouts(cfg); err != nil {
		p.Destroy()
		return nil, err
	}

	if err := p.createDescriptorSets(framesInFlight); err != nil {
		p.Destroy()
		return nil, err
	}

	if err := p.createPipeline(pass, source, shaders, cfg); err != nil {
		p.Destroy()
		return nil, err
	}

	log.WithFields(log.Fields{
		"pipeline": p.Name,
		"pass":     pass.Name,
		"bindings": len(bindings),
		"sets":     len(p.sets),
	}).Debug("created pipeline")
	return p, nil
}

func (p *Pipeline) createLayouts(cfg PipelineConfig) error {
	if len(p.Bindings) > 0 {
		layoutBindings := make([]vk.DescriptorSetLayoutBinding, len(p.Bindings))
		for idx, b := range p.Bindings {
			layoutBindings[idx] = b.layoutBinding(idx)
		}

		dslci := vk.DescriptorSetLayoutCreateInfo{
			SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
			BindingCount: uint32(len(layoutBindings)),
			PBindings:    layoutBindings,
		}

		setLayout, err := p.dev.CreateDescriptorSetLayout(&dslci)
		if err != nil {
			return err
		}
		p.setLayout = setLayout
	}

	plci := vk.PipelineLayoutCreateInfo{
		SType: vk.StructureTypePipelineLayoutCreateInfo,
	}
	if p.setLayout != nil {
		plci.SetLayoutCount = 1
		plci.PSetLayouts = []vk.DescriptorSetLayout{p.setLayout}
	}
	if cfg.PushConstantSize > 0 {
		plci.PushConstantRangeCount = 1
		plci.PPushConstantRanges = []vk.PushConstantRange{{
			StageFlags: vk.ShaderStageFlags(vk.ShaderStageVertexBit),
			Offset:     0,
			Size:       cfg.PushConstantSize,
		}}
	}

	layout, err := p.dev.CreatePipelineLayout(&plci)
	if err != nil {
		return err
	}
	p.layout = layout
	return nil
}

// createDescriptorSets allocates one set per frame and writes the row
// of each binding that frame reads.
func (p *Pipeline) createDescriptorSets(framesInFlight int) error {
	if len(p.Bindings) == 0 {
		return nil
	}

	sizes := make([]vk.DescriptorPoolSize, len(p.Bindings))
	for idx, b := range p.Bindings {
		sizes[idx] = vk.DescriptorPoolSize{
			Type:            b.Kind.vulkan(),
			DescriptorCount: uint32(framesInFlight * b.Count),
		}
	}

	dpci := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       uint32(framesInFlight),
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}

	pool, err := p.dev.CreateDescriptorPool(&dpci)
	if err != nil {
		return err
	}
	p.pool = pool

	layouts := make([]vk.DescriptorSetLayout, framesInFlight)
	for idx := range layouts {
		layouts[idx] = p.setLayout
	}

	sets, err := p.dev.AllocateDescriptorSets(p.pool, layouts)
	if err != nil {
		return err
	}
	p.sets = sets

	var writes []vk.WriteDescriptorSet
	for frame, set := range p.sets {
		for idx, b := range p.Bindings {
			writes = append(writes, b.write(set, idx, frame))
		}
	}
	p.dev.UpdateDescriptorSets(writes)
	return nil
}

func (p *Pipeline) createPipeline(pass *CompiledPass, source ShaderSource, shaders ShaderSet, cfg PipelineConfig) error {
	names := []string{shaders.Vertex}
	stages := []vk.ShaderStageFlagBits{vk.ShaderStageVertexBit}
	if shaders.Fragment != "" {
		names = append(names, shaders.Fragment)
		stages = append(stages, vk.ShaderStageFragmentBit)
	}

	var modules []vk.ShaderModule
	defer func() {
		for _, module := range modules {
			p.dev.DestroyShaderModule(module)
		}
	}()

	pipelineShaderStagesInfo := make([]vk.PipelineShaderStageCreateInfo, len(names))
	for idx, name := range names {
		code, err := load(source, name)
		if err != nil {
			return err
		}

		module, err := p.dev.CreateShaderModule(code)
		if err != nil {
			return fmt.Errorf("shader %s: %w", name, err)
		}
		modules = append(modules, module)

		pipelineShaderStagesInfo[idx] = vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  stages[idx],
			Module: module,
			PName:  core.SafeString("main"),
		}
	}

	vertexLayout := model.LayoutFor(cfg.Vertex)

	blendAttachments := make([]vk.PipelineColorBlendAttachmentState, pass.ColorAttachments)
	for idx := range blendAttachments {
		blendAttachments[idx] = vk.PipelineColorBlendAttachmentState{
			ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit),
			BlendEnable:    vk.False,
		}
	}

	gpci := vk.GraphicsPipelineCreateInfo{
		SType:      vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount: uint32(len(pipelineShaderStagesInfo)),
		PStages:    pipelineShaderStagesInfo,
		PVertexInputState: &vk.PipelineVertexInputStateCreateInfo{
			SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
			VertexAttributeDescriptionCount: uint32(len(vertexLayout.Attributes)),
			PVertexAttributeDescriptions:    vertexLayout.Attributes,
			VertexBindingDescriptionCount:   uint32(len(vertexLayout.Bindings)),
			PVertexBindingDescriptions:      vertexLayout.Bindings,
		},
		PInputAssemblyState: &vk.PipelineInputAssemblyStateCreateInfo{
			SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
			Topology: cfg.Topology,
		},
		PViewportState: &vk.PipelineViewportStateCreateInfo{
			SType:         vk.StructureTypePipelineViewportStateCreateInfo,
			ViewportCount: 1,
			ScissorCount:  1,
		},
		PRasterizationState: &vk.PipelineRasterizationStateCreateInfo{
			SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
			PolygonMode:             cfg.PolygonMode,
			CullMode:                vk.CullModeFlags(cfg.CullMode),
			FrontFace:               cfg.FrontFace,
			DepthBiasEnable:         vkBool(cfg.DepthBias),
			DepthBiasConstantFactor: cfg.DepthBiasConstant,
			DepthBiasSlopeFactor:    cfg.DepthBiasSlope,
			LineWidth:               1.0,
		},
		PDepthStencilState: &vk.PipelineDepthStencilStateCreateInfo{
			SType:                 vk.StructureTypePipelineDepthStencilStateCreateInfo,
			DepthTestEnable:       vkBool(cfg.DepthTest),
			DepthWriteEnable:      vkBool(cfg.DepthWrite),
			DepthCompareOp:        cfg.DepthCompare,
			DepthBoundsTestEnable: vk.False,
			StencilTestEnable:     vk.False,
			Back: vk.StencilOpState{
				FailOp:    vk.StencilOpKeep,
				PassOp:    vk.StencilOpKeep,
				CompareOp: vk.CompareOpAlways,
			},
			Front: vk.StencilOpState{
				FailOp:    vk.StencilOpKeep,
				PassOp:    vk.StencilOpKeep,
				CompareOp: vk.CompareOpAlways,
			},
		},
		PMultisampleState: &vk.PipelineMultisampleStateCreateInfo{
			SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
			RasterizationSamples: pass.Samples,
		},
		PColorBlendState: &vk.PipelineColorBlendStateCreateInfo{
			SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
			LogicOp:         vk.LogicOpCopy,
			AttachmentCount: uint32(len(blendAttachments)),
			PAttachments:    blendAttachments,
		},
		PDynamicState: &vk.PipelineDynamicStateCreateInfo{
			SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
			DynamicStateCount: 2,
			PDynamicStates: []vk.DynamicState{
				vk.DynamicStateViewport,
				vk.DynamicStateScissor,
			},
		},
		Layout:     p.layout,
		RenderPass: pass.RenderPass,
	}

	pipeline, err := p.dev.CreateGraphicsPipeline(&gpci)
	if err != nil {
		return fmt.Errorf("pipeline %s: %w", p.Name, err)
	}
	p.pipeline = pipeline
	return nil
}

// Layout returns the pipeline layout
func (p *Pipeline) Layout() vk.PipelineLayout {
	return p.layout
}

// Sets returns the descriptor sets, one per frame in flight
func (p *Pipeline) Sets() []vk.DescriptorSet {
	return p.sets
}

// Bind records binding the pipeline and the descriptor set of frame.
func (p *Pipeline) Bind(rec core.Recorder, frame int) {
	rec.BindPipeline(p.pipeline, p.layout)
	if len(p.sets) > 0 {
		rec.BindDescriptorSet(p.sets[frame%len(p.sets)])
	}
}

// Destroy destroys the pipeline, its layouts and the descriptor pool
// with the sets allocated from it.
func (p *Pipeline) Destroy() {
	if p.pipeline != nil {
		p.dev.DestroyPipeline(p.pipeline)
		p.pipeline = nil
	}
	if p.layout != nil {
		p.dev.DestroyPipelineLayout(p.layout)
		p.layout = nil
	}
	if p.pool != nil {
		p.dev.DestroyDescriptorPool(p.pool)
		p.pool = nil
	}
	p.sets = nil
	if p.setLayout != nil {
		p.dev.DestroyDescriptorSetLayout(p.setLayout)
		p.setLayout = nil
	}
}

func vkBool(b bool) vk.Bool32 {
	if b {
		return vk.True
	}
	return vk.False
}
