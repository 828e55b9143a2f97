// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package device

import (
	"errors"
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// package errors
var (
	// ErrOutOfDate is returned when the surface no longer matches the
	// swapchain. The swapchain is never recreated, so it is fatal.
	ErrOutOfDate = errors.New("presentation surface out of date")

	ErrNoQueueFamily = errors.New("no queue family supports both graphics and present")
	ErrNoDevice      = errors.New("no physical device available")
	ErrMemoryType    = errors.New("suitable memory type not found")
)

// check turns a vk.Result into an error naming the call it came from
func check(call string, result vk.Result) error {
	switch result {
	case vk.Success:
		return nil
	case vk.ErrorOutOfDate:
		return fmt.Errorf("%s: %w", call, ErrOutOfDate)
	}
	return fmt.Errorf("%s: %w (%d)", call, vk.Error(result), result)
}
