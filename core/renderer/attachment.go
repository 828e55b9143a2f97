// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package renderer

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"
)

// AttachmentKind is what an attachment holds.
type AttachmentKind int

// Attachment kinds
const (
	ColorAttachment AttachmentKind = iota
	DepthAttachment
	ResolveAttachment
)

func (k AttachmentKind) String() string {
	switch k {
	case ColorAttachment:
		return "color"
	case DepthAttachment:
		return "depth"
	case ResolveAttachment:
		return "resolve"
	}
	return "unknown"
}

// AttachmentInfo describes one attachment of a pass.
type AttachmentInfo struct {
	Kind AttachmentKind

	// Samples defaults to one sample when zero
	Samples vk.SampleCountFlagBits

	LoadOp  vk.AttachmentLoadOp
	StoreOp vk.AttachmentStoreOp

	InitialLayout vk.ImageLayout

	// FinalLayout defaults to the layout used inside the subpass
	FinalLayout vk.ImageLayout

	// Allocate creates a backing image owned by the pass. When unset
	// the image is supplied from outside, one per framebuffer.
	Allocate bool

	// Sampled marks an attachment read by a later pass
	Sampled bool

	// Usage is added to the usage implied by the kind
	Usage vk.ImageUsageFlagBits
}

func (a AttachmentInfo) samples() vk.SampleCountFlagBits {
	if a.Samples == 0 {
		return vk.SampleCount1Bit
	}
	return a.Samples
}

func (a AttachmentInfo) format(target RenderTarget) vk.Format {
	if a.Kind == DepthAttachment {
		return target.DepthFormat()
	}
	return target.ColorFormat()
}

func (a AttachmentInfo) aspect() vk.ImageAspectFlagBits {
	if a.Kind == DepthAttachment {
		return vk.ImageAspectDepthBit
	}
	return vk.ImageAspectColorBit
}

// subpassLayout is the layout the attachment is referenced with
func (a AttachmentInfo) subpassLayout() vk.ImageLayout {
	if a.Kind == DepthAttachment {
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	}
	return vk.ImageLayoutColorAttachmentOptimal
}

func (a AttachmentInfo) finalLayout() vk.ImageLayout {
	if a.FinalLayout == vk.ImageLayoutUndefined {
		return a.subpassLayout()
	}
	return a.FinalLayout
}

func (a AttachmentInfo) usage() vk.ImageUsageFlagBits {
	usage := a.Usage
	if a.Kind == DepthAttachment {
		usage |= vk.ImageUsageDepthStencilAttachmentBit
	} else {
		usage |= vk.ImageUsageColorAttachmentBit
	}
	if a.Sampled {
		usage |= vk.ImageUsageSampledBit
	} else if a.StoreOp == vk.AttachmentStoreOpDontCare {
		usage |= vk.ImageUsageTransientAttachmentBit
	}
	return usage
}

// NoAttachment marks an absent role
const NoAttachment = -1

// RoleAssignment maps the subpass roles to attachment indices.
// A role set to NoAttachment is absent.
type RoleAssignment struct {
	Color   int
	Depth   int
	Resolve int
}

// NoRoles has every role absent
var NoRoles = RoleAssignment{
	Color:   NoAttachment,
	Depth:   NoAttachment,
	Resolve: NoAttachment,
}

// PassDescription is the declarative form of a single subpass render pass.
type PassDescription struct {
	Name        string
	Attachments []AttachmentInfo
	Roles       RoleAssignment

	// ClearColor is used for color attachments that are cleared on load
	ClearColor [4]float32
}

// package errors
var (
	ErrNoAttachments   = errors.New("pass has no attachments")
	ErrInvalidRole     = errors.New("role does not name an attachment of the right kind")
	ErrAttachmentCount = errors.New("attachments do not match the pass description")
	ErrTargets         = errors.New("target views do not match the external attachments")
)

// Validate checks that every assigned role names an attachment of its kind
func (d PassDescription) Validate() error {
	if len(d.Attachments) == 0 {
		return fmt.Errorf("pass %q: %w", d.Name, ErrNoAttachments)
	}

	check := func(role string, index int, kinds ...AttachmentKind) error {
		if index == NoAttachment {
			return nil
		}
		if index < 0 || index >= len(d.Attachments) {
			return fmt.Errorf("pass %q: %s index %d of %d attachments: %w", d.Name, role, index, len(d.Attachments), ErrInvalidRole)
		}
		for _, kind := range kinds {
			if d.Attachments[index].Kind == kind {
				return nil
			}
		}
		return fmt.Errorf("pass %q: %s index %d is a %s attachment: %w", d.Name, role, index, d.Attachments[index].Kind, ErrInvalidRole)
	}

	if err := check("color", d.Roles.Color, ColorAttachment); err != nil {
		return err
	}
	if err := check("depth", d.Roles.Depth, DepthAttachment); err != nil {
		return err
	}
	if err := check("resolve", d.Roles.Resolve, ResolveAttachment, ColorAttachment); err != nil {
		return err
	}

	if d.Roles.Resolve != NoAttachment {
		if d.Roles.Color == NoAttachment {
			return fmt.Errorf("pass %q: resolve without a color attachment: %w", d.Name, ErrInvalidRole)
		}
		if d.Attachments[d.Roles.Color].samples() == vk.SampleCount1Bit {
			return fmt.Errorf("pass %q: resolving a single sampled color attachment: %w", d.Name, ErrInvalidRole)
		}
		if d.Attachments[d.Roles.Resolve].samples() != vk.SampleCount1Bit {
			return fmt.Errorf("pass %q: resolve target is multisampled: %w", d.Name, ErrInvalidRole)
		}
	}
	return nil
}

// PassBuilder builds a PassDescription, assigning roles by the
// position attachments are added at.
type PassBuilder struct {
	desc PassDescription
}

// NewPass starts a pass description with every role absent
func NewPass(name string) *PassBuilder {
	return &PassBuilder{
		desc: PassDescription{
			Name:  name,
			Roles: NoRoles,
		},
	}
}

// Color adds the color attachment
func (b *PassBuilder) Color(info AttachmentInfo) *PassBuilder {
	info.Kind = ColorAttachment
	b.desc.Roles.Color = b.add(info)
	return b
}

// Depth adds the depth attachment
func (b *PassBuilder) Depth(info AttachmentInfo) *PassBuilder {
	info.Kind = DepthAttachment
	b.desc.Roles.Depth = b.add(info)
	return b
}

// Resolve adds the attachment the color attachment resolves into
func (b *PassBuilder) Resolve(info AttachmentInfo) *PassBuilder {
	info.Kind = ResolveAttachment
	b.desc.Roles.Resolve = b.add(info)
	return b
}

// Attachment adds an attachment without a subpass role
func (b *PassBuilder) Attachment(info AttachmentInfo) *PassBuilder {
	b.add(info)
	return b
}

// ClearColor sets the clear color of the color attachment
func (b *PassBuilder) ClearColor(r, g, bl, a float32) *PassBuilder {
	b.desc.ClearColor = [4]float32{r, g, bl, a}
	return b
}

// Build returns the description
func (b *PassBuilder) Build() PassDescription {
	desc := b.desc
	desc.Attachments = append([]AttachmentInfo(nil), b.desc.Attachments...)
	return desc
}

func (b *PassBuilder) add(info AttachmentInfo) int {
	b.desc.Attachments = append(b.desc.Attachments, info)
	return len(b.desc.Attachments) - 1
}

// Attachment is the image behind one attachment of a pass. Images
// supplied from outside are placeholders with null handles and are
// never owned.
type Attachment struct {
	Image  vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	Format vk.Format
	Owned  bool
}

// Planner creates the images a pass description asks for.
type Planner struct {
	dev ImageAllocator
}

// NewPlanner creates a planner allocating from dev
func NewPlanner(dev ImageAllocator) *Planner {
	return &Planner{dev: dev}
}

// Plan returns one Attachment per entry of desc. Entries that allocate
// get an image of the target extent with its view, owned by the caller.
// On failure the images already created are released.
func (p *Planner) Plan(desc PassDescription) ([]Attachment, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	extent := p.dev.Extent()
	attachments := make([]Attachment, len(desc.Attachments))
	for idx, info := range desc.Attachments {
		format := info.format(p.dev)
		attachments[idx].Format = format
		if !info.Allocate {
			continue
		}

		ici := vk.ImageCreateInfo{
			SType:     vk.StructureTypeImageCreateInfo,
			ImageType: vk.ImageType2d,
			Format:    format,
			Extent: vk.Extent3D{
				Width:  extent.Width,
				Height: extent.Height,
				Depth:  1,
			},
			MipLevels:     1,
			ArrayLayers:   1,
			Samples:       info.samples(),
			Tiling:        vk.ImageTilingOptimal,
			Usage:         vk.ImageUsageFlags(info.usage()),
			SharingMode:   vk.SharingModeExclusive,
			InitialLayout: vk.ImageLayoutUndefined,
		}

		image, memory, err := p.dev.CreateImage(&ici)
		if err != nil {
			p.Release(attachments)
			return nil, fmt.Errorf("pass %q attachment %d: %w", desc.Name, idx, err)
		}
		attachments[idx].Image = image
		attachments[idx].Memory = memory
		attachments[idx].Owned = true

		view, err := p.dev.CreateImageView(image, format, info.aspect())
		if err != nil {
			p.Release(attachments)
			return nil, fmt.Errorf("pass %q attachment %d: %w", desc.Name, idx, err)
		}
		attachments[idx].View = view
	}

	log.WithFields(log.Fields{
		"pass":        desc.Name,
		"attachments": len(attachments),
	}).Debug("planned attachments")
	return attachments, nil
}

// Release destroys the owned attachments in reverse order and clears
// them. External placeholders are left alone.
func (p *Planner) Release(attachments []Attachment) {
	releaseAttachments(p.dev, attachments)
}

func releaseAttachments(dev ImageAllocator, attachments []Attachment) {
	for idx := len(attachments) - 1; idx >= 0; idx-- {
		a := &attachments[idx]
		if !a.Owned {
			continue
		}
		if a.View != nil {
			dev.DestroyImageView(a.View)
		}
		if a.Image != nil {
			dev.DestroyImage(a.Image, a.Memory)
		}
		*a = Attachment{Format: a.Format}
	}
}
