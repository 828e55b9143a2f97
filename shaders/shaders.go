// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package shaders holds the GLSL sources of the render graph. The
// compiled SPIR-V next to them is what the renderer loads, from this
// directory, a shader pack or the binary itself.
package shaders

//go:generate glslc shadow.vert -o shadow.vert.spv
//go:generate glslc shadow_skinned.vert -o shadow_skinned.vert.spv
//go:generate glslc main.vert -o main.vert.spv
//go:generate glslc main.frag -o main.frag.spv
//go:generate glslc main_skinned.vert -o main_skinned.vert.spv
//go:generate glslc main_skinned.frag -o main_skinned.frag.spv
