// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"encoding/json"
	"fmt"

	"github.com/devblok/umbra/core"
	"github.com/devblok/umbra/device"
	log "github.com/sirupsen/logrus"
)

func main() {
	cfg := core.InstanceConfiguration{
		DebugMode:  false,
		Extensions: []string{},
		Layers:     []string{},
	}

	instance, err := device.NewInstance(device.DefaultVulkanApplicationInfo, nil, cfg)
	if err != nil {
		log.WithError(err).Fatal("creating vulkan instance")
	}
	defer instance.Destroy()

	bytes, err := json.MarshalIndent(instance.PhysicalDevicesInfo(), "", "  ")
	if err != nil {
		log.WithError(err).Fatal("encoding device info")
	}
	fmt.Printf("%s\n", bytes)
}
