// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package renderer

import (
	"errors"
	"fmt"

	"github.com/devblok/umbra/core"
	log "github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"
)

// PassDevice creates passes and destroys the attachments they own.
type PassDevice interface {
	PassFactory
	ImageAllocator
}

// CompiledPass is a render pass with its framebuffers. It owns the
// attachments it was compiled with that are marked as owned.
type CompiledPass struct {
	Name         string
	RenderPass   vk.RenderPass
	Framebuffers []vk.Framebuffer
	Attachments  []Attachment
	Descriptions []vk.AttachmentDescription
	Subpass      vk.SubpassDescription

	// Dependencies starts with the external to subpass dependency. Passes
	// with sampled attachments add a subpass to external dependency that
	// makes their writes visible to fragment shaders of later passes.
	Dependencies []vk.SubpassDependency
	Extent       vk.Extent2D

	// Samples is the rasterization sample count of pipelines used in the pass
	Samples vk.SampleCountFlagBits

	// ColorAttachments is the number of color attachments of the subpass
	ColorAttachments int

	ClearValues []vk.ClearValue

	infos     []AttachmentInfo
	dev       PassDevice
	destroyed bool
}

// ErrNotSampled is returned when a non sampled attachment is requested for reading
var ErrNotSampled = errors.New("attachment is not sampled")

// Compile creates the render pass for desc and its framebuffers.
// Without external attachments one framebuffer is created, otherwise
// one per target view, each binding targets[i] in the external slots and
// sharing the owned attachments. On success the pass takes ownership of
// the owned attachments, on failure they stay with the caller.
func Compile(dev PassDevice, desc PassDescription, attachments []Attachment, targets []vk.ImageView) (*CompiledPass, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	if len(attachments) != len(desc.Attachments) {
		return nil, fmt.Errorf("pass %q: %d attachments for %d descriptions: %w", desc.Name, len(attachments), len(desc.Attachments), ErrAttachmentCount)
	}

	var external int
	for idx, info := range desc.Attachments {
		if info.Allocate != attachments[idx].Owned {
			return nil, fmt.Errorf("pass %q: attachment %d ownership differs from its description: %w", desc.Name, idx, ErrAttachmentCount)
		}
		if !info.Allocate {
			external++
		}
	}
	if (external == 0) != (len(targets) == 0) {
		return nil, fmt.Errorf("pass %q: %d external attachments, %d targets: %w", desc.Name, external, len(targets), ErrTargets)
	}

	pass := &CompiledPass{
		Name:        desc.Name,
		Attachments: attachments,
		Extent:      dev.Extent(),
		Samples:     vk.SampleCount1Bit,
		infos:       desc.Attachments,
		dev:         dev,
	}

	pass.describe(desc)

	if err := pass.createRenderPass(); err != nil {
		return nil, err
	}

	if err := pass.createFramebuffers(targets); err != nil {
		pass.destroyPassObjects()
		return nil, err
	}

	log.WithFields(log.Fields{
		"pass":         desc.Name,
		"attachments":  len(pass.Descriptions),
		"framebuffers": len(pass.Framebuffers),
		"samples":      pass.Samples,
	}).Debug("compiled render pass")
	return pass, nil
}

// describe fills descriptions, the subpass, dependencies and clear values
func (p *CompiledPass) describe(desc PassDescription) {
	references := make([]vk.AttachmentReference, len(desc.Attachments))
	p.Descriptions = make([]vk.AttachmentDescription, len(desc.Attachments))
	p.ClearValues = make([]vk.ClearValue, len(desc.Attachments))

	for idx, info := range desc.Attachments {
		p.Descriptions[idx] = vk.AttachmentDescription{
			Format:         p.Attachments[idx].Format,
			Samples:        info.samples(),
			LoadOp:         info.LoadOp,
			StoreOp:        info.StoreOp,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  info.InitialLayout,
			FinalLayout:    info.finalLayout(),
		}
		references[idx] = vk.AttachmentReference{
			Attachment: uint32(idx),
			Layout:     info.subpassLayout(),
		}

		if info.Kind == DepthAttachment {
			p.ClearValues[idx].SetDepthStencil(1, 0)
		} else {
			p.ClearValues[idx].SetColor(desc.ClearColor[:])
		}
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint: vk.PipelineBindPointGraphics,
	}
	if desc.Roles.Color != NoAttachment {
		subpass.ColorAttachmentCount = 1
		subpass.PColorAttachments = []vk.AttachmentReference{references[desc.Roles.Color]}
		p.ColorAttachments = 1
		p.Samples = desc.Attachments[desc.Roles.Color].samples()
	}
	if desc.Roles.Depth != NoAttachment {
		subpass.PDepthStencilAttachment = &references[desc.Roles.Depth]
		p.Samples = desc.Attachments[desc.Roles.Depth].samples()
	}
	if desc.Roles.Resolve != NoAttachment {
		subpass.PResolveAttachments = []vk.AttachmentReference{references[desc.Roles.Resolve]}
	}
	p.Subpass = subpass

	attachmentStages := vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit
	incoming := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(attachmentStages),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(attachmentStages),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit | vk.AccessDepthStencilAttachmentWriteBit),
	}

	var (
		writeStages vk.PipelineStageFlagBits
		writeAccess vk.AccessFlagBits
	)
	for _, info := range desc.Attachments {
		if !info.Sampled {
			continue
		}
		if info.Kind == DepthAttachment {
			writeStages |= vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit
			writeAccess |= vk.AccessDepthStencilAttachmentWriteBit
		} else {
			writeStages |= vk.PipelineStageColorAttachmentOutputBit
			writeAccess |= vk.AccessColorAttachmentWriteBit
		}
	}
	p.Dependencies = []vk.SubpassDependency{incoming}
	if writeStages == 0 {
		return
	}

	// reads of the previous frame must finish before this pass writes again
	p.Dependencies[0].SrcStageMask |= vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)
	p.Dependencies = append(p.Dependencies, vk.SubpassDependency{
		SrcSubpass:    0,
		DstSubpass:    vk.SubpassExternal,
		SrcStageMask:  vk.PipelineStageFlags(writeStages),
		SrcAccessMask: vk.AccessFlags(writeAccess),
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
		DstAccessMask: vk.AccessFlags(vk.AccessShaderReadBit),
	})
}

func (p *CompiledPass) createRenderPass() error {
	rpci := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(p.Descriptions)),
		PAttachments:    p.Descriptions,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{p.Subpass},
		DependencyCount: uint32(len(p.Dependencies)),
		PDependencies:   p.Dependencies,
	}

	renderPass, err := p.dev.CreateRenderPass(&rpci)
	if err != nil {
		return fmt.Errorf("pass %q: %w", p.Name, err)
	}
	p.RenderPass = renderPass
	return nil
}

func (p *CompiledPass) createFramebuffers(targets []vk.ImageView) error {
	count := len(targets)
	if count == 0 {
		count = 1
	}

	for fb := 0; fb < count; fb++ {
		views := make([]vk.ImageView, len(p.Attachments))
		for idx, a := range p.Attachments {
			if a.Owned {
				views[idx] = a.View
			} else {
				views[idx] = targets[fb]
			}
		}

		fci := vk.FramebufferCreateInfo{
			SType:           vk.StructureTypeFramebufferCreateInfo,
			RenderPass:      p.RenderPass,
			AttachmentCount: uint32(len(views)),
			PAttachments:    views,
			Width:           p.Extent.Width,
			Height:          p.Extent.Height,
			Layers:          1,
		}

		framebuffer, err := p.dev.CreateFramebuffer(&fci)
		if err != nil {
			return fmt.Errorf("pass %q framebuffer %d: %w", p.Name, fb, err)
		}
		p.Framebuffers = append(p.Framebuffers, framebuffer)
	}
	return nil
}

// Framebuffer returns the framebuffer for target, wrapping around
func (p *CompiledPass) Framebuffer(target int) vk.Framebuffer {
	return p.Framebuffers[target%len(p.Framebuffers)]
}

// Viewport covers the whole extent of the pass
func (p *CompiledPass) Viewport() vk.Viewport {
	return vk.Viewport{
		Width:    float32(p.Extent.Width),
		Height:   float32(p.Extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}
}

// Scissor covers the whole extent of the pass
func (p *CompiledPass) Scissor() vk.Rect2D {
	return vk.Rect2D{
		Extent: p.Extent,
	}
}

// Begin records the start of the pass on the target's framebuffer
// and sets the dynamic viewport and scissor.
func (p *CompiledPass) Begin(rec core.Recorder, target int) {
	rec.BeginRenderPass(p.RenderPass, p.Framebuffer(target), p.Scissor(), p.ClearValues)
	rec.SetViewport(p.Viewport())
	rec.SetScissor(p.Scissor())
}

// End records the end of the pass
func (p *CompiledPass) End(rec core.Recorder) {
	rec.EndRenderPass()
}

// SampledImage returns a non owning reference to an attachment for
// reading in a later pass, in the layout the pass leaves it in.
func (p *CompiledPass) SampledImage(index int, sampler vk.Sampler) (CombinedImageSampler, error) {
	if index < 0 || index >= len(p.infos) {
		return CombinedImageSampler{}, fmt.Errorf("pass %q: attachment %d: %w", p.Name, index, ErrInvalidRole)
	}
	if !p.infos[index].Sampled || !p.Attachments[index].Owned {
		return CombinedImageSampler{}, fmt.Errorf("pass %q: attachment %d: %w", p.Name, index, ErrNotSampled)
	}
	return CombinedImageSampler{
		View:    p.Attachments[index].View,
		Layout:  p.infos[index].finalLayout(),
		Sampler: sampler,
	}, nil
}

// Destroy destroys the framebuffers, the render pass and the owned
// attachments. Destroying twice does nothing.
func (p *CompiledPass) Destroy() {
	if p.destroyed {
		return
	}
	p.destroyed = true
	p.destroyPassObjects()
	releaseAttachments(p.dev, p.Attachments)
}

func (p *CompiledPass) destroyPassObjects() {
	for idx := len(p.Framebuffers) - 1; idx >= 0; idx-- {
		p.dev.DestroyFramebuffer(p.Framebuffers[idx])
	}
	p.Framebuffers = nil
	if p.RenderPass != nil {
		p.dev.DestroyRenderPass(p.RenderPass)
		p.RenderPass = nil
	}
}
