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

// Shader names of the passes, per vertex kind
const (
	ShadowShader        = "shadow"
	ShadowSkinnedShader = "shadow_skinned"
	MainShader          = "main"
	MainSkinnedShader   = "main_skinned"
)

// ErrUnsupportedKind is returned for drawables without a pipeline
var ErrUnsupportedKind = errors.New("no pipeline for the vertex kind")

// Option changes how a Renderer is set up
type Option func(*Renderer)

// WithVertexKinds sets the vertex kinds pipelines are created for
func WithVertexKinds(kinds ...core.VertexKind) Option {
	return func(r *Renderer) {
		r.kinds = kinds
	}
}

// WithClearColor sets the clear color of the main pass
func WithClearColor(red, green, blue, alpha float32) Option {
	return func(r *Renderer) {
		r.clearColor = [4]float32{red, green, blue, alpha}
	}
}

var _ core.Renderer = (*Renderer)(nil)

// Renderer draws a scene with a shadow depth pass followed by a
// multisampled main pass that samples the shadow map and resolves
// into the presentable image.
type Renderer struct {
	dev     Device
	shaders ShaderSource
	cfg     core.RendererConfiguration

	kinds      []core.VertexKind
	clearColor [4]float32

	sync    *Synchronizer
	samples vk.SampleCountFlagBits

	shadowPass *CompiledPass
	mainPass   *CompiledPass

	shadowSampler vk.Sampler
	light         *UniformRing
	camera        *UniformRing

	shadowPipelines map[core.VertexKind]*Pipeline
	mainPipelines   map[core.VertexKind]*Pipeline

	commandBuffers []vk.CommandBuffer
}

// NewRenderer creates an uninitialised renderer on dev
func NewRenderer(dev Device, shaders ShaderSource, cfg core.RendererConfiguration, opts ...Option) *Renderer {
	r := &Renderer{
		dev:        dev,
		shaders:    shaders,
		cfg:        cfg,
		kinds:      []core.VertexKind{core.MeshVertices, core.SkinnedVertices},
		clearColor: [4]float32{0, 0, 0, 1},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Initialise creates the passes, pipelines and frame synchronization.
// On failure everything created so far is destroyed.
func (r *Renderer) Initialise() error {
	steps := []func() error{
		r.createSynchronizer,
		r.chooseSamples,
		r.createShadowPass,
		r.createMainPass,
		r.createShadowSampler,
		r.createUniforms,
		r.createPipelines,
		r.createCommandBuffers,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			r.Destroy()
			return err
		}
	}

	log.WithFields(log.Fields{
		"samples":        r.samples,
		"framesInFlight": r.sync.FramesInFlight(),
		"images":         len(r.sync.Views()),
	}).Debug("renderer initialised")
	return nil
}

func (r *Renderer) createSynchronizer() error {
	sync, err := NewSynchronizer(r.dev, r.cfg.FramesInFlight)
	if err != nil {
		return err
	}
	r.sync = sync
	return nil
}

// chooseSamples clamps the configured sample count to the device
func (r *Renderer) chooseSamples() error {
	samples := vk.SampleCount1Bit
	if r.cfg.Samples > 1 {
		samples = vk.SampleCountFlagBits(r.cfg.Samples)
	}
	if supported := r.dev.MaxSamples(); samples > supported {
		log.WithFields(log.Fields{
			"desired":   samples,
			"supported": supported,
		}).Warn("sample count not supported by the device")
		samples = supported
	}
	r.samples = samples
	return nil
}

func (r *Renderer) createShadowPass() error {
	desc := NewPass("shadow").
		Depth(AttachmentInfo{
			LoadOp:      vk.AttachmentLoadOpClear,
			StoreOp:     vk.AttachmentStoreOpStore,
			FinalLayout: vk.ImageLayoutDepthStencilReadOnlyOptimal,
			Allocate:    true,
			Sampled:     true,
		}).
		Build()

	pass, err := r.compile(desc, nil)
	if err != nil {
		return err
	}
	r.shadowPass = pass
	return nil
}

func (r *Renderer) createMainPass() error {
	builder := NewPass("main").ClearColor(r.clearColor[0], r.clearColor[1], r.clearColor[2], r.clearColor[3])
	if r.samples == vk.SampleCount1Bit {
		builder.Color(AttachmentInfo{
			LoadOp:      vk.AttachmentLoadOpClear,
			StoreOp:     vk.AttachmentStoreOpStore,
			FinalLayout: vk.ImageLayoutPresentSrc,
		})
	} else {
		builder.Color(AttachmentInfo{
			Samples:  r.samples,
			LoadOp:   vk.AttachmentLoadOpClear,
			StoreOp:  vk.AttachmentStoreOpDontCare,
			Allocate: true,
		})
	}
	builder.Depth(AttachmentInfo{
		Samples:  r.samples,
		LoadOp:   vk.AttachmentLoadOpClear,
		StoreOp:  vk.AttachmentStoreOpDontCare,
		Allocate: true,
	})
	if r.samples != vk.SampleCount1Bit {
		builder.Resolve(AttachmentInfo{
			LoadOp:      vk.AttachmentLoadOpDontCare,
			StoreOp:     vk.AttachmentStoreOpStore,
			FinalLayout: vk.ImageLayoutPresentSrc,
		})
	}

	pass, err := r.compile(builder.Build(), r.sync.Views())
	if err != nil {
		return err
	}
	r.mainPass = pass
	return nil
}

// compile plans and compiles desc, releasing the attachments on failure
func (r *Renderer) compile(desc PassDescription, targets []vk.ImageView) (*CompiledPass, error) {
	planner := NewPlanner(r.dev)
	attachments, err := planner.Plan(desc)
	if err != nil {
		return nil, err
	}

	pass, err := Compile(r.dev, desc, attachments, targets)
	if err != nil {
		planner.Release(attachments)
		return nil, err
	}
	return pass, nil
}

func (r *Renderer) createShadowSampler() error {
	sci := vk.SamplerCreateInfo{
		SType:         vk.StructureTypeSamplerCreateInfo,
		MagFilter:     vk.FilterLinear,
		MinFilter:     vk.FilterLinear,
		MipmapMode:    vk.SamplerMipmapModeLinear,
		AddressModeU:  vk.SamplerAddressModeClampToBorder,
		AddressModeV:  vk.SamplerAddressModeClampToBorder,
		AddressModeW:  vk.SamplerAddressModeClampToBorder,
		BorderColor:   vk.BorderColorFloatOpaqueWhite,
		CompareEnable: vk.True,
		CompareOp:     vk.CompareOpLess,
		MaxLod:        1.0,
	}

	sampler, err := r.dev.CreateSampler(&sci)
	if err != nil {
		return err
	}
	r.shadowSampler = sampler
	return nil
}

func (r *Renderer) createUniforms() error {
	frames := r.sync.FramesInFlight()

	light, err := NewUniformRing(r.dev, model.Size(model.LightUniform{}), frames)
	if err != nil {
		return err
	}
	r.light = light

	camera, err := NewUniformRing(r.dev, model.Size(model.CameraUniform{}), frames)
	if err != nil {
		return err
	}
	r.camera = camera
	return nil
}

func (r *Renderer) createPipelines() error {
	frames := r.sync.FramesInFlight()
	r.shadowPipelines = make(map[core.VertexKind]*Pipeline, len(r.kinds))
	r.mainPipelines = make(map[core.VertexKind]*Pipeline, len(r.kinds))

	shadowMap, err := r.shadowPass.SampledImage(0, r.shadowSampler)
	if err != nil {
		return err
	}

	shadowBindings := []DescriptorBinding{
		r.light.Binding(vk.ShaderStageVertexBit),
	}
	mainBindings := []DescriptorBinding{
		r.camera.Binding(vk.ShaderStageVertexBit),
		CombinedBinding(vk.ShaderStageFragmentBit, shadowMap),
	}

	for _, kind := range r.kinds {
		shadowName, mainName := ShadowShader, MainShader
		if kind == core.SkinnedVertices {
			shadowName, mainName = ShadowSkinnedShader, MainSkinnedShader
		}

		shadow, err := NewPipeline(r.dev, r.shadowPass, r.shaders, Shaders(shadowName, false), shadowBindings, ShadowPipelineConfig(kind), frames)
		if err != nil {
			return err
		}
		r.shadowPipelines[kind] = shadow

		color, err := NewPipeline(r.dev, r.mainPass, r.shaders, Shaders(mainName, true), mainBindings, DefaultPipelineConfig(kind), frames)
		if err != nil {
			return err
		}
		r.mainPipelines[kind] = color
	}
	return nil
}

func (r *Renderer) createCommandBuffers() error {
	commandBuffers, err := r.dev.AllocateCommandBuffers(r.sync.FramesInFlight())
	if err != nil {
		return err
	}
	r.commandBuffers = commandBuffers
	return nil
}

// Samples is the sample count the main pass renders with
func (r *Renderer) Samples() vk.SampleCountFlagBits {
	return r.samples
}

// ShadowPass is the compiled shadow depth pass
func (r *Renderer) ShadowPass() *CompiledPass {
	return r.shadowPass
}

// MainPass is the compiled main color pass
func (r *Renderer) MainPass() *CompiledPass {
	return r.mainPass
}

// DrawFrame records the shadow pass and the main pass for scene into
// the current frame slot and submits them for presentation. Errors are
// not recoverable.
func (r *Renderer) DrawFrame(scene core.Scene) error {
	drawables := scene.Drawables()
	for _, d := range drawables {
		if _, ok := r.mainPipelines[d.Kind()]; !ok {
			return fmt.Errorf("%s drawable: %w", d.Kind(), ErrUnsupportedKind)
		}
	}

	imageIndex, err := r.sync.AcquireNextImage()
	if err != nil {
		return err
	}
	frame := r.sync.Current()

	view, projection := scene.Camera()
	lightSpace := scene.LightSpace()
	if err := r.light.Write(frame, model.LightUniform{LightSpace: lightSpace}); err != nil {
		return err
	}
	if err := r.camera.Write(frame, model.CameraUniform{
		View:       view,
		Projection: projection,
		LightSpace: lightSpace,
	}); err != nil {
		return err
	}

	cmd := r.commandBuffers[frame]
	rec, err := r.dev.BeginRecording(cmd)
	if err != nil {
		return err
	}

	r.record(rec, r.shadowPass, r.shadowPipelines, 0, frame, drawables)
	r.record(rec, r.mainPass, r.mainPipelines, int(imageIndex), frame, drawables)

	if err := r.dev.EndRecording(cmd); err != nil {
		return err
	}
	return r.sync.SubmitAndPresent(cmd, imageIndex)
}

// record draws every drawable into pass, grouped by vertex kind
func (r *Renderer) record(rec core.Recorder, pass *CompiledPass, pipelines map[core.VertexKind]*Pipeline, target, frame int, drawables []core.Drawable) {
	pass.Begin(rec, target)
	for _, kind := range r.kinds {
		bound := false
		for _, d := range drawables {
			if d.Kind() != kind {
				continue
			}
			if !bound {
				pipelines[kind].Bind(rec, frame)
				bound = true
			}
			d.Bind(rec)
			d.Draw(rec)
		}
	}
	pass.End(rec)
}

// Destroy waits for the device to go idle and destroys everything in
// reverse order of creation. Safe to call on a partly initialised renderer.
func (r *Renderer) Destroy() {
	if r.sync != nil {
		if err := r.sync.Drain(); err != nil {
			log.WithError(err).Error("failed to drain the device")
		}
	}

	for idx := len(r.kinds) - 1; idx >= 0; idx-- {
		if p, ok := r.mainPipelines[r.kinds[idx]]; ok {
			p.Destroy()
		}
		if p, ok := r.shadowPipelines[r.kinds[idx]]; ok {
			p.Destroy()
		}
	}
	r.mainPipelines, r.shadowPipelines = nil, nil

	if r.mainPass != nil {
		r.mainPass.Destroy()
		r.mainPass = nil
	}
	if r.shadowPass != nil {
		r.shadowPass.Destroy()
		r.shadowPass = nil
	}
	if r.shadowSampler != nil {
		r.dev.DestroySampler(r.shadowSampler)
		r.shadowSampler = nil
	}
	if r.camera != nil {
		r.camera.Destroy()
		r.camera = nil
	}
	if r.light != nil {
		r.light.Destroy()
		r.light = nil
	}
	if r.commandBuffers != nil {
		r.dev.FreeCommandBuffers(r.commandBuffers)
		r.commandBuffers = nil
	}
	if r.sync != nil {
		r.sync.Destroy()
		r.sync = nil
	}
}
