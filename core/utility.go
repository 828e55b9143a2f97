// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unsafe"
)

const shaderSuffix = ".spv"

// ParseShaderName splits a compiled shader file name into the pass
// it belongs to and its stage. A valid name has exactly two dots,
// "<pass>.<vert|frag>.spv". Only compiled shaders have the .spv extension.
func ParseShaderName(name string) (string, ShaderType, bool) {
	base := filepath.Base(name)
	if !strings.HasSuffix(base, shaderSuffix) {
		return "", UnknownShaderType, false
	}

	nodes := strings.Split(strings.TrimSuffix(base, shaderSuffix), ".")
	if len(nodes) != 2 || nodes[0] == "" {
		return "", UnknownShaderType, false
	}

	switch nodes[1] {
	case "vert":
		return nodes[0], VertexShaderType, true
	case "frag":
		return nodes[0], FragmentShaderType, true
	}
	return "", UnknownShaderType, false
}

// ShaderFileName returns the file name a pass's shader stage is stored under
func ShaderFileName(pass string, stage ShaderType) string {
	switch stage {
	case VertexShaderType:
		return pass + ".vert" + shaderSuffix
	case FragmentShaderType:
		return pass + ".frag" + shaderSuffix
	}
	return ""
}

// ShaderFilesInDirectory walks dir and returns every compiled shader,
// keyed by the path relative to dir.
func ShaderFilesInDirectory(dir string) ([]string, error) {
	var shaders []string
	if err := filepath.Walk(dir, func(path string, f os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if f.IsDir() {
			return nil
		}
		if _, _, ok := ParseShaderName(f.Name()); ok {
			shaders = append(shaders, path)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return shaders, nil
}

// SliceUint32 reslices bytes into a uint32, that is used
// to sumbit vulkan shaders for processing
func SliceUint32(data []byte) []uint32 {
	if len(data) < 4 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&data[0])), len(data)/4)
}

// SafeString terminates a string for the C side
func SafeString(s string) string {
	return fmt.Sprintf("%s\x00", s)
}

// SafeStrings terminates all given strings for the C side
func SafeStrings(sgs []string) []string {
	safe := []string{}
	for _, s := range sgs {
		safe = append(safe, SafeString(s))
	}
	return safe
}
