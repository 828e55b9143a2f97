// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"strings"

	"github.com/devblok/umbra/core/renderer"
	"github.com/devblok/umbra/utility/spvpack"
	"github.com/gobuffalo/packr"
	log "github.com/sirupsen/logrus"
)

// StaticShaders are the compiled shaders packed into the binary
var StaticShaders = packr.NewBox("../../shaders")

// shaderSource picks where compiled shaders are read from. The returned
// func releases the source once the renderer is destroyed.
func shaderSource(location string, embedded bool) (renderer.ShaderSource, func(), error) {
	if embedded {
		log.Debug("using embedded shaders")
		return &StaticShaders, func() {}, nil
	}

	if strings.HasSuffix(location, ".spvpack") {
		ar, err := spvpack.OpenFile(location)
		if err != nil {
			return nil, nil, err
		}
		log.WithFields(log.Fields{
			"file":    location,
			"shaders": len(ar.Names()),
		}).Debug("opened shader pack")
		return ar, func() {
			if err := ar.Close(); err != nil {
				log.WithError(err).Warn("closing shader pack")
			}
		}, nil
	}

	return renderer.DirSource(location), func() {}, nil
}
