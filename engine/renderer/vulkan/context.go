package vulkan

import (
	"runtime"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/core"
)

// Window is what the backend needs from the platform window.
type Window interface {
	// FramebufferSize is the size of the window in pixels.
	FramebufferSize() (width, height uint32)
	RequiredInstanceExtensions() []string
	CreateSurface(instance vk.Instance) (vk.Surface, error)
}

const validationLayerName = "VK_LAYER_KHRONOS_validation"

// RendererContext owns the instance, the device, the swapchain and every
// other handle shared by the native objects of the backend.
type RendererContext struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Surface   vk.Surface

	validation     bool
	debugMessenger vk.DebugReportCallback

	Device    *VulkanDevice
	Swapchain *VulkanSwapchain

	lockPool     *VulkanLockPool
	renderpasses map[renderpassKey]*VulkanRenderpass
}

func NewRendererContext() *RendererContext {
	return &RendererContext{
		lockPool:     NewVulkanLockPool(),
		renderpasses: make(map[renderpassKey]*VulkanRenderpass),
	}
}

// Initialize creates the instance, the surface of window and the logical
// device. Any failure is fatal to the renderer.
func (rc *RendererContext) Initialize(window Window, appName string, validation bool) error {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return errors.New("GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		return errors.Wrap(err, "failed to initialize vk")
	}

	rc.validation = validation
	if err := rc.createInstance(window, appName); err != nil {
		return err
	}

	if rc.validation {
		core.LogDebug("Creating Vulkan debugger...")
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if res := vk.CreateDebugReportCallback(rc.Instance, &debugCreateInfo, rc.Allocator, &dbg); res != vk.Success {
			return VulkanError(res, "vkCreateDebugReportCallback")
		}
		rc.debugMessenger = dbg
		core.LogDebug("Vulkan debugger created.")
	}

	core.LogDebug("Creating Vulkan surface...")
	surface, err := window.CreateSurface(rc.Instance)
	if err != nil {
		return errors.Wrap(err, "failed to create platform surface")
	}
	rc.Surface = surface
	core.LogDebug("Vulkan surface created.")

	device, err := DeviceCreate(rc)
	if err != nil {
		return errors.Wrap(err, "failed to create device")
	}
	rc.Device = device
	return nil
}

func (rc *RendererContext) createInstance(window Window, appName string) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 3, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		EngineVersion:      uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("Prism"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	requiredExtensions := window.RequiredInstanceExtensions()
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}
	if rc.validation {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
	}
	core.LogDebug("Required extensions: %v", requiredExtensions)

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)

	var layers []string
	if rc.validation {
		core.LogInfo("Validation layers enabled. Enumerating...")
		found, err := instanceLayerAvailable(validationLayerName)
		if err != nil {
			return err
		}
		if !found {
			return errors.Newf("required validation layer is missing: %s", validationLayerName)
		}
		layers = append(layers, validationLayerName)
	}
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	if res := vk.CreateInstance(&createInfo, rc.Allocator, &rc.Instance); res != vk.Success {
		return VulkanError(res, "vkCreateInstance")
	}
	if err := vk.InitInstance(rc.Instance); err != nil {
		return errors.Wrap(err, "failed to load instance functions")
	}
	core.LogInfo("Vulkan Instance created.")
	return nil
}

func instanceLayerAvailable(name string) (bool, error) {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return false, VulkanError(res, "vkEnumerateInstanceLayerProperties")
	}
	available := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, available); res != vk.Success {
		return false, VulkanError(res, "vkEnumerateInstanceLayerProperties")
	}
	for i := range available {
		available[i].Deref()
		if cString(available[i].LayerName[:]) == name {
			return true, nil
		}
	}
	return false, nil
}

// Shutdown destroys everything Initialize created. The swapchain and the
// render passes must have been released by their owners already.
func (rc *RendererContext) Shutdown() {
	for key, rp := range rc.renderpasses {
		rp.RenderpassDestroy(rc)
		delete(rc.renderpasses, key)
	}

	if rc.Device != nil {
		core.LogDebug("Destroying Vulkan device...")
		DeviceDestroy(rc)
		rc.Device = nil
	}

	if rc.Surface != vk.NullSurface {
		core.LogDebug("Destroying Vulkan surface...")
		vk.DestroySurface(rc.Instance, rc.Surface, rc.Allocator)
		rc.Surface = vk.NullSurface
	}

	if rc.debugMessenger != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(rc.Instance, rc.debugMessenger, rc.Allocator)
		rc.debugMessenger = vk.NullDebugReportCallback
	}

	if rc.Instance != nil {
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(rc.Instance, rc.Allocator)
		rc.Instance = nil
	}
}

// WaitIdle blocks until the device finished all submitted work.
func (rc *RendererContext) WaitIdle() error {
	if res := vk.DeviceWaitIdle(rc.Device.LogicalDevice); res != vk.Success {
		return VulkanError(res, "vkDeviceWaitIdle")
	}
	return nil
}

func (rc *RendererContext) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) (uint32, error) {
	memoryProperties := rc.Device.Memory
	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		memoryType := memoryProperties.MemoryTypes[i]
		memoryType.Deref()
		if typeFilter&(1<<i) != 0 && memoryType.PropertyFlags&propertyFlags == propertyFlags {
			return i, nil
		}
	}
	return 0, errors.Newf("no memory type matches filter %#x with properties %#x", typeFilter, uint32(propertyFlags))
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("INFORMATION: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
