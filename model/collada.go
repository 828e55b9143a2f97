// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package model

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	glm "github.com/go-gl/mathgl/mgl32"
)

// ErrCollada is returned when a Collada document has no usable triangles
var ErrCollada = errors.New("collada: unsupported geometry")

// collada is the top-level Collada object
type collada struct {
	Geometries []geometry `xml:"library_geometries>geometry"`
}

type geometry struct {
	Mesh colladaMesh `xml:"mesh"`
	ID   string      `xml:"id,attr"`
	Name string      `xml:"name,attr"`
}

type colladaMesh struct {
	Sources   []source  `xml:"source"`
	Vertices  vertices  `xml:"vertices"`
	Triangles triangles `xml:"triangles"`
}

type source struct {
	ID     string `xml:"id,attr"`
	Floats floats `xml:"float_array"`
}

type floats struct {
	ID   string
	Data []float32
}

func (f *floats) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, attr := range start.Attr {
		if attr.Name.Local == "id" {
			f.ID = attr.Value
		}
	}
	var raw string
	if err := d.DecodeElement(&raw, &start); err != nil {
		return err
	}
	for _, r := range strings.Fields(raw) {
		num, err := strconv.ParseFloat(r, 32)
		if err != nil {
			return err
		}
		f.Data = append(f.Data, float32(num))
	}
	return nil
}

type vertices struct {
	ID     string  `xml:"id,attr"`
	Inputs []input `xml:"input"`
}

type triangles struct {
	Count  int     `xml:"count,attr"`
	Inputs []input `xml:"input"`
	Index  []int
}

func (t *triangles) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, attr := range start.Attr {
		if attr.Name.Local == "count" {
			num, err := strconv.Atoi(attr.Value)
			if err != nil {
				return err
			}
			t.Count = num
		}
	}

	for {
		token, err := d.Token()
		if err != nil {
			return err
		}

		switch el := token.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "input":
				var in input
				if err := d.DecodeElement(&in, &el); err != nil {
					return err
				}
				t.Inputs = append(t.Inputs, in)
			case "p":
				var raw string
				if err := d.DecodeElement(&raw, &el); err != nil {
					return err
				}
				for _, r := range strings.Fields(raw) {
					num, err := strconv.Atoi(r)
					if err != nil {
						return err
					}
					t.Index = append(t.Index, num)
				}
			default:
				if err := d.Skip(); err != nil {
					return err
				}
			}
		case xml.EndElement:
			if el == start.End() {
				return nil
			}
		}
	}
}

type input struct {
	Semantic string `xml:"semantic,attr"`
	Source   string `xml:"source,attr"`
	Offset   int    `xml:"offset,attr"`
}

// LoadCollada reads the first triangulated geometry of a Collada
// document. Every triangle corner becomes its own vertex.
func LoadCollada(r io.Reader) ([]MeshVertex, []uint32, error) {
	var doc collada
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, nil, fmt.Errorf("collada: %w", err)
	}
	if len(doc.Geometries) == 0 {
		return nil, nil, ErrCollada
	}
	return doc.Geometries[0].Mesh.build()
}

func (m *colladaMesh) source(ref string) []float32 {
	id := strings.TrimPrefix(ref, "#")
	for _, s := range m.Sources {
		if s.ID == id {
			return s.Floats.Data
		}
	}
	return nil
}

func (m *colladaMesh) build() ([]MeshVertex, []uint32, error) {
	var (
		positions, normals, uvs []float32
		posOffset, normOffset   = -1, -1
		uvOffset                = -1
		stride                  int
	)
	for _, in := range m.Triangles.Inputs {
		if in.Offset+1 > stride {
			stride = in.Offset + 1
		}
		switch in.Semantic {
		case "VERTEX":
			posOffset = in.Offset
			for _, vi := range m.Vertices.Inputs {
				if vi.Semantic == "POSITION" {
					positions = m.source(vi.Source)
				}
			}
		case "NORMAL":
			normOffset = in.Offset
			normals = m.source(in.Source)
		case "TEXCOORD":
			uvOffset = in.Offset
			uvs = m.source(in.Source)
		}
	}
	if posOffset < 0 || len(positions) == 0 || stride == 0 {
		return nil, nil, ErrCollada
	}

	corners := len(m.Triangles.Index) / stride
	if corners == 0 || corners%3 != 0 {
		return nil, nil, ErrCollada
	}

	vertices := make([]MeshVertex, 0, corners)
	indices := make([]uint32, 0, corners)
	for c := 0; c < corners; c++ {
		p := m.Triangles.Index[c*stride:]
		var v MeshVertex
		var ok bool
		if v.Pos, ok = vec3(positions, p[posOffset]); !ok {
			return nil, nil, fmt.Errorf("%w: position %d out of range", ErrCollada, p[posOffset])
		}
		if normOffset >= 0 {
			if v.Normal, ok = vec3(normals, p[normOffset]); !ok {
				return nil, nil, fmt.Errorf("%w: normal %d out of range", ErrCollada, p[normOffset])
			}
		}
		if uvOffset >= 0 {
			idx := p[uvOffset] * 2
			if idx < 0 || idx+1 >= len(uvs) {
				return nil, nil, fmt.Errorf("%w: texture coordinate %d out of range", ErrCollada, p[uvOffset])
			}
			v.UV = glm.Vec2{uvs[idx], 1 - uvs[idx+1]}
		}
		vertices = append(vertices, v)
		indices = append(indices, uint32(c))
	}
	return vertices, indices, nil
}

func vec3(data []float32, index int) (glm.Vec3, bool) {
	idx := index * 3
	if idx < 0 || idx+2 >= len(data) {
		return glm.Vec3{}, false
	}
	return glm.Vec3{data[idx], data[idx+1], data[idx+2]}, true
}
