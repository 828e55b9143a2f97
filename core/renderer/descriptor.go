// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package renderer

import (
	"errors"
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// DescriptorKind is the type of resource a binding exposes to shaders.
type DescriptorKind int

// Descriptor kinds
const (
	UniformBufferDescriptor DescriptorKind = iota
	SampledImageDescriptor
	SamplerDescriptor
	CombinedImageSamplerDescriptor
)

func (k DescriptorKind) String() string {
	switch k {
	case UniformBufferDescriptor:
		return "uniform buffer"
	case SampledImageDescriptor:
		return "sampled image"
	case SamplerDescriptor:
		return "sampler"
	case CombinedImageSamplerDescriptor:
		return "combined image sampler"
	}
	return "unknown"
}

func (k DescriptorKind) vulkan() vk.DescriptorType {
	switch k {
	case UniformBufferDescriptor:
		return vk.DescriptorTypeUniformBuffer
	case SampledImageDescriptor:
		return vk.DescriptorTypeSampledImage
	case SamplerDescriptor:
		return vk.DescriptorTypeSampler
	}
	return vk.DescriptorTypeCombinedImageSampler
}

// Resource is one descriptor's payload. Each kind has its own type.
type Resource interface {
	Kind() DescriptorKind
}

// UniformBuffer is a range of a uniform buffer
type UniformBuffer struct {
	Buffer vk.Buffer
	Offset vk.DeviceSize
	Range  vk.DeviceSize
}

// Kind implements Resource
func (UniformBuffer) Kind() DescriptorKind { return UniformBufferDescriptor }

// SampledImage is an image view read without a sampler
type SampledImage struct {
	View   vk.ImageView
	Layout vk.ImageLayout
}

// Kind implements Resource
func (SampledImage) Kind() DescriptorKind { return SampledImageDescriptor }

// Sampler is a standalone sampler
type Sampler struct {
	Sampler vk.Sampler
}

// Kind implements Resource
func (Sampler) Kind() DescriptorKind { return SamplerDescriptor }

// CombinedImageSampler is an image view read through a sampler
type CombinedImageSampler struct {
	View    vk.ImageView
	Layout  vk.ImageLayout
	Sampler vk.Sampler
}

// Kind implements Resource
func (CombinedImageSampler) Kind() DescriptorKind { return CombinedImageSamplerDescriptor }

// descriptor errors
var (
	ErrDescriptorKind = errors.New("resource does not match the descriptor kind")
	ErrDescriptorRows = errors.New("descriptor rows do not match the binding")
)

// DescriptorBinding is one binding of a pipeline's descriptor set.
// Rows hold Count resources each. A binding that is unique per frame
// has one row per frame in flight, a shared binding has a single row.
type DescriptorBinding struct {
	Kind           DescriptorKind
	Count          int
	Stages         vk.ShaderStageFlagBits
	PerFrameUnique bool
	Rows           [][]Resource
}

// UniformBinding is a single uniform buffer binding with one row per buffer.
// More than one buffer makes it unique per frame.
func UniformBinding(stages vk.ShaderStageFlagBits, buffers ...UniformBuffer) DescriptorBinding {
	rows := make([][]Resource, len(buffers))
	for idx := range buffers {
		rows[idx] = []Resource{buffers[idx]}
	}
	return DescriptorBinding{
		Kind:           UniformBufferDescriptor,
		Count:          1,
		Stages:         stages,
		PerFrameUnique: len(buffers) > 1,
		Rows:           rows,
	}
}

// CombinedBinding is a single image sampler shared by every frame
func CombinedBinding(stages vk.ShaderStageFlagBits, image CombinedImageSampler) DescriptorBinding {
	return DescriptorBinding{
		Kind:   CombinedImageSamplerDescriptor,
		Count:  1,
		Stages: stages,
		Rows:   [][]Resource{{image}},
	}
}

// Validate checks the rows against the binding for framesInFlight frames
func (b DescriptorBinding) Validate(framesInFlight int) error {
	if b.Count < 1 {
		return fmt.Errorf("%s binding with count %d: %w", b.Kind, b.Count, ErrDescriptorRows)
	}

	expected := 1
	if b.PerFrameUnique {
		expected = framesInFlight
	}
	if len(b.Rows) != expected {
		return fmt.Errorf("%s binding has %d rows, expected %d: %w", b.Kind, len(b.Rows), expected, ErrDescriptorRows)
	}

	for r, row := range b.Rows {
		if len(row) != b.Count {
			return fmt.Errorf("%s binding row %d has %d resources, expected %d: %w", b.Kind, r, len(row), b.Count, ErrDescriptorRows)
		}
		for e, res := range row {
			if res == nil || res.Kind() != b.Kind {
				return fmt.Errorf("%s binding row %d element %d: %w", b.Kind, r, e, ErrDescriptorKind)
			}
		}
	}
	return nil
}

// Row returns the resources read by the set of frame, wrapping
// around the available rows.
func (b DescriptorBinding) Row(frame int) []Resource {
	return b.Rows[frame%len(b.Rows)]
}

func (b DescriptorBinding) layoutBinding(index int) vk.DescriptorSetLayoutBinding {
	return vk.DescriptorSetLayoutBinding{
		Binding:         uint32(index),
		DescriptorType:  b.Kind.vulkan(),
		DescriptorCount: uint32(b.Count),
		StageFlags:      vk.ShaderStageFlags(b.Stages),
	}
}

// write describes the update of binding index of set with the row of frame
func (b DescriptorBinding) write(set vk.DescriptorSet, index, frame int) vk.WriteDescriptorSet {
	wds := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          set,
		DstBinding:      uint32(index),
		DescriptorCount: uint32(b.Count),
		DescriptorType:  b.Kind.vulkan(),
	}

	for _, res := range b.Row(frame) {
		switch r := res.(type) {
		case UniformBuffer:
			wds.PBufferInfo = append(wds.PBufferInfo, vk.DescriptorBufferInfo{
				Buffer: r.Buffer,
				Offset: r.Offset,
				Range:  r.Range,
			})
		case SampledImage:
			wds.PImageInfo = append(wds.PImageInfo, vk.DescriptorImageInfo{
				ImageView:   r.View,
				ImageLayout: r.Layout,
			})
		case Sampler:
			wds.PImageInfo = append(wds.PImageInfo, vk.DescriptorImageInfo{
				Sampler: r.Sampler,
			})
		case CombinedImageSampler:
			wds.PImageInfo = append(wds.PImageInfo, vk.DescriptorImageInfo{
				Sampler:     r.Sampler,
				ImageView:   r.View,
				ImageLayout: r.Layout,
			})
		}
	}
	return wds
}
