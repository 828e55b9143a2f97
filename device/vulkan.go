// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package device

import (
	"errors"
	"fmt"
	"math"
	"unsafe"

	"github.com/devblok/umbra/core"
	log "github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"
)

// DefaultVulkanApplicationInfo application info describes a Vulkan application
var DefaultVulkanApplicationInfo = &vk.ApplicationInfo{
	SType:              vk.StructureTypeApplicationInfo,
	ApiVersion:         vk.MakeVersion(1, 0, 0),
	ApplicationVersion: vk.MakeVersion(1, 0, 0),
	PApplicationName:   core.SafeString("Umbra"),
	PEngineName:        core.SafeString("Umbra"),
}

// DepthFormat is the format of every depth attachment
const DepthFormat = vk.FormatD32Sfloat

// NewInstance creates a Vulkan instance. When procAddr is nil
// the default loader is used.
func NewInstance(appInfo *vk.ApplicationInfo, procAddr unsafe.Pointer, cfg core.InstanceConfiguration) (*Instance, error) {
	if cfg.DebugMode {
		cfg.Layers = append(cfg.Layers, "VK_LAYER_KHRONOS_validation")
	}

	if procAddr == nil {
		if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			return nil, errors.New("vk.InstanceProcAddr(): " + err.Error())
		}
	} else {
		vk.SetGetInstanceProcAddr(procAddr)
	}

	if err := vk.Init(); err != nil {
		return nil, errors.New("vk.Init(): " + err.Error())
	}

	instanceInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        appInfo,
		EnabledExtensionCount:   uint32(len(cfg.Extensions)),
		PpEnabledExtensionNames: core.SafeStrings(cfg.Extensions),
		EnabledLayerCount:       uint32(len(cfg.Layers)),
		PpEnabledLayerNames:     core.SafeStrings(cfg.Layers),
	}

	var instance vk.Instance
	if err := check("vk.CreateInstance()", vk.CreateInstance(&instanceInfo, nil, &instance)); err != nil {
		return nil, err
	}
	vk.InitInstance(instance)

	physicalDevices, err := enumerateDevices(instance)
	if err != nil {
		vk.DestroyInstance(instance, nil)
		return nil, err
	}

	log.WithFields(log.Fields{
		"devices": len(physicalDevices),
		"layers":  cfg.Layers,
	}).Debug("created vulkan instance")

	return &Instance{
		configuration:    cfg,
		instance:         instance,
		availableDevices: physicalDevices,
	}, nil
}

// Instance describes a Vulkan API Instance
type Instance struct {
	configuration core.InstanceConfiguration

	availableDevices []vk.PhysicalDevice
	surface          vk.Surface
	instance         vk.Instance
}

func enumerateDevices(instance vk.Instance) ([]vk.PhysicalDevice, error) {
	var deviceCount uint32
	if err := check("vk.EnumeratePhysicalDevices()", vk.EnumeratePhysicalDevices(instance, &deviceCount, nil)); err != nil {
		return nil, err
	}
	if deviceCount == 0 {
		return nil, ErrNoDevice
	}
	availableDevices := make([]vk.PhysicalDevice, deviceCount)
	if err := check("vk.EnumeratePhysicalDevices()", vk.EnumeratePhysicalDevices(instance, &deviceCount, availableDevices)); err != nil {
		return nil, err
	}
	return availableDevices, nil
}

// Handle returns the vk.Instance, typed as interface{} for window libraries
func (i *Instance) Handle() interface{} {
	return i.instance
}

// PhysicalDevicesInfo returns info about every available physical device
func (i *Instance) PhysicalDevicesInfo() []PhysicalDeviceInfo {
	pdi := make([]PhysicalDeviceInfo, len(i.availableDevices))
	for idx, pd := range i.availableDevices {
		pdi[idx] = physicalDeviceInfo(pd)
	}
	return pdi
}

// SetSurface sets the window surface for rendering
func (i *Instance) SetSurface(pSurface unsafe.Pointer) {
	i.surface = vk.SurfaceFromPointer(uintptr(pSurface))
}

// Surface returns the window surface or vk.NullSurface when not set
func (i *Instance) Surface() vk.Surface {
	if i.surface == nil {
		return vk.NullSurface
	}
	return i.surface
}

// Destroy destroys the surface and the instance
func (i *Instance) Destroy() {
	if i.surface != nil {
		vk.DestroySurface(i.instance, i.surface, nil)
		i.surface = nil
	}
	i.availableDevices = nil
	vk.DestroyInstance(i.instance, nil)
}

// NewVulkan creates a not yet initialised logical device
// on the first suitable physical device of the instance.
func NewVulkan(instance *Instance, cfg core.RendererConfiguration) *Vulkan {
	return &Vulkan{
		configuration: cfg,
		instance:      instance,
		surface:       instance.Surface(),
		extent: vk.Extent2D{
			Width:  cfg.ScreenWidth,
			Height: cfg.ScreenHeight,
		},
	}
}

// Vulkan is the logical device, its graphics and present queue and
// the swapchain presenting to the window surface.
type Vulkan struct {
	configuration core.RendererConfiguration
	instance      *Instance

	surface        vk.Surface
	physicalDevice vk.PhysicalDevice
	logicalDevice  vk.Device
	deviceQueue    vk.Queue
	queueIndex     uint32

	allocator     *MemoryAllocator
	commandPool   vk.CommandPool
	pipelineCache vk.PipelineCache

	swapchain       vk.Swapchain
	swapchainImages []vk.Image
	imageFormat     vk.Format
	imageColorspace vk.ColorSpace
	extent          vk.Extent2D

	maxSamples    vk.SampleCountFlagBits
	maxAnisotropy float32
}

// Initialise creates the logical device and the swapchain
func (v *Vulkan) Initialise() error {
	if err := v.selectPhysicalDevice(); err != nil {
		return err
	}

	if err := v.createLogicalDevice(); err != nil {
		return err
	}

	if err := v.chooseSurfaceFormat(); err != nil {
		return err
	}

	if err := v.createSwapchain(); err != nil {
		return err
	}

	if err := v.createCommandPool(); err != nil {
		return err
	}

	if err := v.createPipelineCache(); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"images":  len(v.swapchainImages),
		"extent":  fmt.Sprintf("%dx%d", v.extent.Width, v.extent.Height),
		"samples": v.maxSamples,
	}).Debug("initialised vulkan device")
	return nil
}

func (v *Vulkan) selectPhysicalDevice() error {
	for _, pd := range v.instance.availableDevices {
		var queueFamilyCount uint32
		vk.GetPhysicalDeviceQueueFamilyProperties(pd, &queueFamilyCount, nil)
		queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
		vk.GetPhysicalDeviceQueueFamilyProperties(pd, &queueFamilyCount, queueFamilies)

		for i := uint32(0); i < queueFamilyCount; i++ {
			queueFamilies[i].Deref()
			if queueFamilies[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) == 0 {
				continue
			}
			var supportsPresent vk.Bool32
			vk.GetPhysicalDeviceSurfaceSupport(pd, i, v.surface, &supportsPresent)
			if supportsPresent.B() {
				v.physicalDevice = pd
				v.queueIndex = i
				v.cacheDeviceProperties()
				return nil
			}
		}
	}
	return ErrNoQueueFamily
}

// cacheDeviceProperties records the limits later clamped against
func (v *Vulkan) cacheDeviceProperties() {
	var properties vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(v.physicalDevice, &properties)
	properties.Deref()
	properties.Limits.Deref()

	v.maxSamples = maxSampleCount(properties.Limits)
	v.maxAnisotropy = properties.Limits.MaxSamplerAnisotropy
}

func (v *Vulkan) createLogicalDevice() error {
	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: v.queueIndex,
		QueueCount:       1,
		PQueuePriorities: []float32{1},
	}}

	extensions := v.configuration.DeviceExtensions
	if len(extensions) == 0 {
		extensions = []string{vk.KhrSwapchainExtensionName}
	}

	dci := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: core.SafeStrings(extensions),
		PEnabledFeatures: []vk.PhysicalDeviceFeatures{{
			SamplerAnisotropy: vk.True,
		}},
	}

	var device vk.Device
	if err := check("vk.CreateDevice()", vk.CreateDevice(v.physicalDevice, &dci, nil, &device)); err != nil {
		return err
	}

	var queue vk.Queue
	vk.GetDeviceQueue(device, v.queueIndex, 0, &queue)

	v.logicalDevice = device
	v.deviceQueue = queue
	v.allocator = NewMemoryAllocator(device, v.physicalDevice)
	return nil
}

func (v *Vulkan) chooseSurfaceFormat() error {
	var surfaceFormatCount uint32
	if err := check("vk.GetPhysicalDeviceSurfaceFormats()", vk.GetPhysicalDeviceSurfaceFormats(v.physicalDevice, v.surface, &surfaceFormatCount, nil)); err != nil {
		return err
	}
	if surfaceFormatCount == 0 {
		return errors.New("vk.GetPhysicalDeviceSurfaceFormats(): no surface formats")
	}

	surfaceFormats := make([]vk.SurfaceFormat, surfaceFormatCount)
	if err := check("vk.GetPhysicalDeviceSurfaceFormats()", vk.GetPhysicalDeviceSurfaceFormats(v.physicalDevice, v.surface, &surfaceFormatCount, surfaceFormats)); err != nil {
		return err
	}
	surfaceFormats[0].Deref()

	v.imageFormat = surfaceFormats[0].Format
	if v.imageFormat == vk.FormatUndefined {
		v.imageFormat = vk.FormatB8g8r8a8Unorm
	}
	v.imageColorspace = surfaceFormats[0].ColorSpace
	return nil
}

func (v *Vulkan) createSwapchain() error {
	var surfaceCapabilities vk.SurfaceCapabilities
	if err := check("vk.GetPhysicalDeviceSurfaceCapabilities()", vk.GetPhysicalDeviceSurfaceCapabilities(v.physicalDevice, v.surface, &surfaceCapabilities)); err != nil {
		return err
	}
	surfaceCapabilities.Deref()
	surfaceCapabilities.CurrentExtent.Deref()

	// 0xFFFFFFFF means the surface size is set by the swapchain
	if surfaceCapabilities.CurrentExtent.Width != math.MaxUint32 {
		v.extent = surfaceCapabilities.CurrentExtent
	}

	imageCount := v.configuration.SwapchainSize
	if imageCount < surfaceCapabilities.MinImageCount {
		imageCount = surfaceCapabilities.MinImageCount
	}
	if surfaceCapabilities.MaxImageCount > 0 && imageCount > surfaceCapabilities.MaxImageCount {
		imageCount = surfaceCapabilities.MaxImageCount
	}

	compositeAlpha := vk.CompositeAlphaOpaqueBit
	for _, flag := range []vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
		vk.CompositeAlphaInheritBit,
	} {
		if surfaceCapabilities.SupportedCompositeAlpha&vk.CompositeAlphaFlags(flag) != 0 {
			compositeAlpha = flag
			break
		}
	}

	scci := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          v.surface,
		MinImageCount:    imageCount,
		ImageFormat:      v.imageFormat,
		ImageColorSpace:  v.imageColorspace,
		ImageExtent:      v.extent,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     surfaceCapabilities.CurrentTransform,
		CompositeAlpha:   compositeAlpha,
		PresentMode:      vk.PresentModeFifo,
		Clipped:          vk.True,
		ImageArrayLayers: 1,
		ImageSharingMode: vk.SharingModeExclusive,
	}

	var swapchain vk.Swapchain
	if err := check("vk.CreateSwapchain()", vk.CreateSwapchain(v.logicalDevice, &scci, nil, &swapchain)); err != nil {
		return err
	}
	v.swapchain = swapchain

	var numImages uint32
	if err := check("vk.GetSwapchainImages()", vk.GetSwapchainImages(v.logicalDevice, v.swapchain, &numImages, nil)); err != nil {
		return err
	}

	v.swapchainImages = make([]vk.Image, numImages)
	if err := check("vk.GetSwapchainImages()", vk.GetSwapchainImages(v.logicalDevice, v.swapchain, &numImages, v.swapchainImages)); err != nil {
		return err
	}
	return nil
}

func (v *Vulkan) createCommandPool() error {
	cpci := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: v.queueIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}

	var commandPool vk.CommandPool
	if err := check("vk.CreateCommandPool()", vk.CreateCommandPool(v.logicalDevice, &cpci, nil, &commandPool)); err != nil {
		return err
	}
	v.commandPool = commandPool
	return nil
}

func (v *Vulkan) createPipelineCache() error {
	pcci := vk.PipelineCacheCreateInfo{
		SType: vk.StructureTypePipelineCacheCreateInfo,
	}

	var pipelineCache vk.PipelineCache
	if err := check("vk.CreatePipelineCache()", vk.CreatePipelineCache(v.logicalDevice, &pcci, nil, &pipelineCache)); err != nil {
		return err
	}
	v.pipelineCache = pipelineCache
	return nil
}

// Extent is the fixed size of the swapchain images
func (v *Vulkan) Extent() vk.Extent2D {
	return v.extent
}

// ColorFormat is the format of the swapchain images
func (v *Vulkan) ColorFormat() vk.Format {
	return v.imageFormat
}

// DepthFormat is the format used for depth attachments
func (v *Vulkan) DepthFormat() vk.Format {
	return DepthFormat
}

// MaxSamples is the highest sample count usable for color and depth
func (v *Vulkan) MaxSamples() vk.SampleCountFlagBits {
	return v.maxSamples
}

// Destroy destroys the device owned objects. The caller must have
// waited for the device to go idle and destroyed everything created from it.
func (v *Vulkan) Destroy() {
	if v.logicalDevice == nil {
		return
	}
	vk.DestroyPipelineCache(v.logicalDevice, v.pipelineCache, nil)
	vk.DestroyCommandPool(v.logicalDevice, v.commandPool, nil)
	vk.DestroySwapchain(v.logicalDevice, v.swapchain, nil)
	vk.DestroyDevice(v.logicalDevice, nil)
	v.logicalDevice = nil
	v.swapchainImages = nil
}
