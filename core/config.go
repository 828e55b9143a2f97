// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gobuffalo/envy"
	"github.com/joho/godotenv"
)

// Configuration defines a global engine configuration setting
type Configuration struct {
	Time     TimeConfiguration
	Renderer RendererConfiguration
	Instance InstanceConfiguration

	// LogLevel is parsed by logrus, e.g. "debug" or "info"
	LogLevel string
}

// TimeConfiguration is used to configure time services
type TimeConfiguration struct {
	// FramesPerSecond caps frames per second that is put out
	// To unlimit, set to 0
	FramesPerSecond int

	// EventPollDelay is the delay between window event polls in milliseconds
	EventPollDelay int
}

// RendererConfiguration is used to configure the renderer
type RendererConfiguration struct {
	SwapchainSize    uint32
	DeviceExtensions []string

	ScreenWidth  uint32
	ScreenHeight uint32

	// FramesInFlight bounds how many frames the CPU may record
	// ahead of the GPU
	FramesInFlight int

	// Samples is the desired MSAA sample count of the main pass,
	// clamped to what the device supports
	Samples int

	// Shaders is a directory or a shader pack file
	Shaders string
}

// InstanceConfiguration is used to configure the Vulkan instance
type InstanceConfiguration struct {
	DebugMode  bool
	Extensions []string
	Layers     []string
}

// Configuration keys read from the environment
const (
	EnvWidth          = "UMBRA_WIDTH"
	EnvHeight         = "UMBRA_HEIGHT"
	EnvSwapchainSize  = "UMBRA_SWAPCHAIN_SIZE"
	EnvFramesInFlight = "UMBRA_FRAMES_IN_FLIGHT"
	EnvSamples        = "UMBRA_MSAA_SAMPLES"
	EnvShaders        = "UMBRA_SHADERS"
	EnvFps            = "UMBRA_FPS"
	EnvEventPollDelay = "UMBRA_EVENT_POLL_DELAY"
	EnvDebug          = "UMBRA_DEBUG"
	EnvLogLevel       = "UMBRA_LOG_LEVEL"
)

// ErrInvalidConfiguration is returned when a loaded configuration cannot be used
var ErrInvalidConfiguration = errors.New("invalid configuration")

// DefaultConfiguration returns the settings used when nothing is overridden
func DefaultConfiguration() Configuration {
	return Configuration{
		Time: TimeConfiguration{
			FramesPerSecond: 60,
			EventPollDelay:  50,
		},
		Renderer: RendererConfiguration{
			ScreenWidth:    800,
			ScreenHeight:   600,
			SwapchainSize:  3,
			FramesInFlight: 2,
			Samples:        4,
			DeviceExtensions: []string{
				"VK_KHR_swapchain",
			},
			Shaders: "./shaders",
		},
		LogLevel: "info",
	}
}

// LoadConfiguration reads the given dotenv files into the environment
// and builds a configuration from it. Missing files are skipped, values
// not present fall back to DefaultConfiguration.
func LoadConfiguration(files ...string) (Configuration, error) {
	for _, file := range files {
		values, err := godotenv.Read(file)
		if err != nil {
			continue
		}
		for k, v := range values {
			envy.Set(k, v)
		}
	}

	cfg := DefaultConfiguration()
	var err error

	if cfg.Renderer.ScreenWidth, err = envUint32(EnvWidth, cfg.Renderer.ScreenWidth); err != nil {
		return cfg, err
	}
	if cfg.Renderer.ScreenHeight, err = envUint32(EnvHeight, cfg.Renderer.ScreenHeight); err != nil {
		return cfg, err
	}
	if cfg.Renderer.SwapchainSize, err = envUint32(EnvSwapchainSize, cfg.Renderer.SwapchainSize); err != nil {
		return cfg, err
	}
	if cfg.Renderer.FramesInFlight, err = envInt(EnvFramesInFlight, cfg.Renderer.FramesInFlight); err != nil {
		return cfg, err
	}
	if cfg.Renderer.Samples, err = envInt(EnvSamples, cfg.Renderer.Samples); err != nil {
		return cfg, err
	}
	if cfg.Time.FramesPerSecond, err = envInt(EnvFps, cfg.Time.FramesPerSecond); err != nil {
		return cfg, err
	}
	if cfg.Time.EventPollDelay, err = envInt(EnvEventPollDelay, cfg.Time.EventPollDelay); err != nil {
		return cfg, err
	}
	cfg.Renderer.Shaders = envy.Get(EnvShaders, cfg.Renderer.Shaders)
	cfg.LogLevel = envy.Get(EnvLogLevel, cfg.LogLevel)

	debug, err := strconv.ParseBool(envy.Get(EnvDebug, "false"))
	if err != nil {
		return cfg, fmt.Errorf("%s: %w", EnvDebug, ErrInvalidConfiguration)
	}
	cfg.Instance.DebugMode = debug

	return cfg, cfg.Validate()
}

// Validate checks that the configuration describes a renderer that can be built
func (c Configuration) Validate() error {
	r := c.Renderer
	if r.ScreenWidth == 0 || r.ScreenHeight == 0 {
		return fmt.Errorf("screen size %dx%d: %w", r.ScreenWidth, r.ScreenHeight, ErrInvalidConfiguration)
	}
	if r.FramesInFlight < 1 {
		return fmt.Errorf("frames in flight %d: %w", r.FramesInFlight, ErrInvalidConfiguration)
	}
	if r.Samples < 1 || r.Samples > 64 || r.Samples&(r.Samples-1) != 0 {
		return fmt.Errorf("sample count %d: %w", r.Samples, ErrInvalidConfiguration)
	}
	if strings.TrimSpace(r.Shaders) == "" {
		return fmt.Errorf("no shader location: %w", ErrInvalidConfiguration)
	}
	if c.Time.FramesPerSecond < 0 || c.Time.EventPollDelay < 0 {
		return fmt.Errorf("negative time settings: %w", ErrInvalidConfiguration)
	}
	return nil
}

func envInt(key string, fallback int) (int, error) {
	value := envy.Get(key, strconv.Itoa(fallback))
	num, err := strconv.Atoi(value)
	if err != nil {
		return fallback, fmt.Errorf("%s=%q: %w", key, value, ErrInvalidConfiguration)
	}
	return num, nil
}

func envUint32(key string, fallback uint32) (uint32, error) {
	value := envy.Get(key, strconv.FormatUint(uint64(fallback), 10))
	num, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return fallback, fmt.Errorf("%s=%q: %w", key, value, ErrInvalidConfiguration)
	}
	return uint32(num), nil
}
