// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package renderer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/devblok/umbra/core"
)

// ShaderSource finds compiled SPIR-V by file name. A packr.Box,
// a spvpack.Archive and a DirSource all satisfy it.
type ShaderSource interface {
	Find(name string) ([]byte, error)
}

// DirSource reads shaders from a directory
type DirSource string

// Find implements ShaderSource
func (d DirSource) Find(name string) ([]byte, error) {
	return os.ReadFile(filepath.Join(string(d), name))
}

// ShaderSet names the stage files of a pipeline. An empty Fragment
// means the pipeline has no fragment stage.
type ShaderSet struct {
	Vertex   string
	Fragment string
}

// Shaders returns the conventional file names for the pass, with or
// without a fragment stage.
func Shaders(pass string, fragment bool) ShaderSet {
	set := ShaderSet{
		Vertex: core.ShaderFileName(pass, core.VertexShaderType),
	}
	if fragment {
		set.Fragment = core.ShaderFileName(pass, core.FragmentShaderType)
	}
	return set
}

// load reads a stage from source, wrapping errors with the file name
func load(source ShaderSource, name string) ([]byte, error) {
	code, err := source.Find(name)
	if err != nil {
		return nil, fmt.Errorf("shader %s: %w", name, err)
	}
	return code, nil
}
