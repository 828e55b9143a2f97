// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
)

func TestMaxSampleCount(t *testing.T) {
	tests := []struct {
		color, depth vk.SampleCountFlagBits
		expected     vk.SampleCountFlagBits
	}{
		{
			color:    vk.SampleCount1Bit | vk.SampleCount2Bit | vk.SampleCount4Bit | vk.SampleCount8Bit,
			depth:    vk.SampleCount1Bit | vk.SampleCount2Bit | vk.SampleCount4Bit,
			expected: vk.SampleCount4Bit,
		},
		{
			color:    vk.SampleCount1Bit | vk.SampleCount64Bit,
			depth:    vk.SampleCount1Bit | vk.SampleCount64Bit,
			expected: vk.SampleCount64Bit,
		},
		{
			color:    vk.SampleCount1Bit,
			depth:    vk.SampleCount1Bit | vk.SampleCount2Bit,
			expected: vk.SampleCount1Bit,
		},
	}

	for _, test := range tests {
		limits := vk.PhysicalDeviceLimits{
			FramebufferColorSampleCounts: vk.SampleCountFlags(test.color),
			FramebufferDepthSampleCounts: vk.SampleCountFlags(test.depth),
		}
		assert.Equal(t, test.expected, maxSampleCount(limits))
	}
}

func TestCheck(t *testing.T) {
	assert.NoError(t, check("vk.CreateFence()", vk.Success))

	err := check("vk.AcquireNextImage()", vk.ErrorOutOfDate)
	assert.ErrorIs(t, err, ErrOutOfDate)
	assert.Contains(t, err.Error(), "vk.AcquireNextImage()")

	err = check("vk.AllocateMemory()", vk.ErrorOutOfDeviceMemory)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrOutOfDate)
	assert.Contains(t, err.Error(), "vk.AllocateMemory()")
}

func TestFindMemoryType(t *testing.T) {
	var properties vk.PhysicalDeviceMemoryProperties
	properties.MemoryTypeCount = 3
	properties.MemoryTypes[0].PropertyFlags = vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	properties.MemoryTypes[1].PropertyFlags = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)
	properties.MemoryTypes[2].PropertyFlags = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	allocator := &MemoryAllocator{memProperties: properties}

	idx, err := allocator.findMemoryType(0b111, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	require.NoError(t, err)
	assert.Equal(t, uint32(0), idx)

	hostCoherent := vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	idx, err = allocator.findMemoryType(0b111, hostCoherent)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), idx)

	// the filter excludes the only matching type
	_, err = allocator.findMemoryType(0b011, hostCoherent)
	assert.ErrorIs(t, err, ErrMemoryType)
}
