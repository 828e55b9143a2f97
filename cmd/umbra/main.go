// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devblok/umbra/core"
	"github.com/devblok/umbra/core/renderer"
	"github.com/devblok/umbra/device"
	log "github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"
)

func init() {
	runtime.LockOSThread()
}

var (
	cpuProfile   = flag.String("cpuprof", "", "Profile CPU usage to file")
	memProfile   = flag.String("memprof", "", "Profile memory usage into a file")
	traceProfile = flag.String("trace", "", "Trace output for profiling")
	debug        = flag.Bool("vkdbg", false, "Load Vulkan validation layers")
	envFile      = flag.String("env", ".env", "Configuration file in dotenv format")
	shaders      = flag.String("shaders", "", "Shader directory or .spvpack file, overrides the configuration")
	embedded     = flag.Bool("embedded", false, "Use the shaders packed into the binary")
	modelFile    = flag.String("model", "", "Collada file drawn instead of the cube")
)

var frameCounter int64

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.WithError(err).Fatal("umbra exited")
	}
}

func run() error {
	cfg, err := core.LoadConfiguration(*envFile)
	if err != nil {
		return err
	}
	if *shaders != "" {
		cfg.Renderer.Shaders = *shaders
	}
	cfg.Instance.DebugMode = cfg.Instance.DebugMode || *debug

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	log.SetLevel(level)

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			return err
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			return err
		}
		defer pprof.StopCPUProfile()
	}

	if *traceProfile != "" {
		f, err := os.Create(*traceProfile)
		if err != nil {
			return err
		}
		if err := trace.Start(f); err != nil {
			return err
		}
		defer trace.Stop()
	}

	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return err
	}
	defer sdl.Quit()

	if err := sdl.VulkanLoadLibrary(""); err != nil {
		return err
	}
	defer sdl.VulkanUnloadLibrary()

	window, err := sdl.CreateWindow("Umbra",
		sdl.WINDOWPOS_UNDEFINED,
		sdl.WINDOWPOS_UNDEFINED,
		int32(cfg.Renderer.ScreenWidth),
		int32(cfg.Renderer.ScreenHeight),
		sdl.WINDOW_VULKAN)
	if err != nil {
		return err
	}
	defer window.Destroy()

	cfg.Instance.Extensions = append(cfg.Instance.Extensions, window.VulkanGetInstanceExtensions()...)
	instance, err := device.NewInstance(device.DefaultVulkanApplicationInfo, sdl.VulkanGetVkGetInstanceProcAddr(), cfg.Instance)
	if err != nil {
		return err
	}
	defer instance.Destroy()

	surface, err := window.VulkanCreateSurface(instance.Handle())
	if err != nil {
		return err
	}
	instance.SetSurface(surface)

	dev := device.NewVulkan(instance, cfg.Renderer)
	if err := dev.Initialise(); err != nil {
		return err
	}
	defer dev.Destroy()

	source, closeSource, err := shaderSource(cfg.Renderer.Shaders, *embedded)
	if err != nil {
		return err
	}
	defer closeSource()

	aspect := float32(cfg.Renderer.ScreenWidth) / float32(cfg.Renderer.ScreenHeight)
	scene, err := newDemoScene(dev, *modelFile, aspect)
	if err != nil {
		return err
	}
	defer scene.Destroy()

	r := renderer.NewRenderer(dev, source, cfg.Renderer, renderer.WithClearColor(0.05, 0.05, 0.08, 1))
	if err := r.Initialise(); err != nil {
		return err
	}
	defer r.Destroy()

	log.WithFields(log.Fields{
		"samples": r.Samples(),
		"frames":  cfg.Renderer.FramesInFlight,
		"shaders": cfg.Renderer.Shaders,
	}).Info("renderer initialised")

	timeService := core.NewTime(cfg.Time)
	defer timeService.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		programSync sync.WaitGroup
		drawErr     error
	)

	/* Frame counter loop */
	programSync.Add(1)
	go func() {
		defer programSync.Done()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				log.WithFields(log.Fields{
					"fps": atomic.SwapInt64(&frameCounter, 0),
					"cgo": runtime.NumCgoCall(),
				}).Debug("frame count")
			}
		}
	}()

	/* Renderer loop */
	programSync.Add(1)
	go func() {
		defer programSync.Done()
		clock := core.NewClock()
		for {
			select {
			case <-ctx.Done():
				log.Debug("draw loop exited")
				return
			case <-timeService.FpsTicker().C:
				scene.Update(clock.Tick())
				if err := r.DrawFrame(scene); err != nil {
					drawErr = err
					cancel()
					return
				}
				atomic.AddInt64(&frameCounter, 1)
			}
		}
	}()

	/* Event loop */
EventLoop:
	for {
		select {
		case <-ctx.Done():
			break EventLoop
		case <-timeService.EventTicker().C:
			for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
				switch et := event.(type) {
				case *sdl.KeyboardEvent:
					if et.Keysym.Sym == sdl.K_ESCAPE {
						cancel()
					}
				case *sdl.QuitEvent:
					cancel()
				}
			}
		}
	}

	programSync.Wait()

	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := pprof.WriteHeapProfile(f); err != nil {
			return err
		}
	}
	return drawErr
}
