// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/devblok/umbra/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseShaderName(t *testing.T) {
	pass, stage, ok := core.ParseShaderName("shaders/shadow.vert.spv")
	require.True(t, ok)
	assert.Equal(t, "shadow", pass)
	assert.Equal(t, core.VertexShaderType, stage)

	pass, stage, ok = core.ParseShaderName("main_skinned.frag.spv")
	require.True(t, ok)
	assert.Equal(t, "main_skinned", pass)
	assert.Equal(t, core.FragmentShaderType, stage)

	for _, name := range []string{"main.vert", "main.geom.spv", "a.b.vert.spv", ".vert.spv", "main.spv"} {
		_, _, ok := core.ParseShaderName(name)
		assert.False(t, ok, name)
	}
}

func TestShaderFileName(t *testing.T) {
	assert.Equal(t, "main.vert.spv", core.ShaderFileName("main", core.VertexShaderType))
	assert.Equal(t, "main.frag.spv", core.ShaderFileName("main", core.FragmentShaderType))
	assert.Equal(t, "", core.ShaderFileName("main", core.UnknownShaderType))
}

func TestShaderFilesInDirectory(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"main.vert.spv", "main.frag.spv", "notes.txt", "main.vert.glsl"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte{0, 0, 0, 0}, 0o644))
	}

	files, err := core.ShaderFilesInDirectory(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "main.vert.spv"),
		filepath.Join(dir, "main.frag.spv"),
	}, files)
}

func TestSliceUint32(t *testing.T) {
	data := []byte{1, 0, 0, 0, 2, 0, 0, 0, 9}
	words := core.SliceUint32(data)
	assert.Len(t, words, 2)
	assert.Nil(t, core.SliceUint32([]byte{1, 2}))
}

func TestSafeStrings(t *testing.T) {
	assert.Equal(t, []string{"a\x00", "bc\x00"}, core.SafeStrings([]string{"a", "bc"}))
}

func BenchmarkSliceUint32Small(b *testing.B) {
	data := make([]byte, 100)
	for idx := 0; idx < b.N; idx++ {
		core.SliceUint32(data)
	}
}

func BenchmarkSliceUint32Medium(b *testing.B) {
	data := make([]byte, 1000)
	for idx := 0; idx < b.N; idx++ {
		core.SliceUint32(data)
	}
}

func BenchmarkSliceUint32Big(b *testing.B) {
	data := make([]byte, 100000)
	for idx := 0; idx < b.N; idx++ {
		core.SliceUint32(data)
	}
}
