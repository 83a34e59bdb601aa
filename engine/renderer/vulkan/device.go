package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/core"
)

const portabilitySubsetExtensionName = "VK_KHR_portability_subset"

type VulkanDevice struct {
	PhysicalDevice     vk.PhysicalDevice
	LogicalDevice      vk.Device
	SwapchainSupport   VulkanSwapchainSupportInfo
	GraphicsQueueIndex int32
	PresentQueueIndex  int32
	TransferQueueIndex int32

	GraphicsQueue vk.Queue
	PresentQueue  vk.Queue
	TransferQueue vk.Queue

	GraphicsCommandPool vk.CommandPool

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties

	DepthFormat vk.Format
}

type VulkanPhysicalDeviceRequirements struct {
	Graphics             bool
	Present              bool
	Transfer             bool
	DeviceExtensionNames []string
	// MinAPIVersion is the lowest device API version accepted.
	MinAPIVersion uint32
	DepthFormat   vk.Format
}

// VulkanPhysicalDeviceQueueFamilyInfo holds the selected family of every
// queue type, -1 when the device has none.
type VulkanPhysicalDeviceQueueFamilyInfo struct {
	GraphicsFamilyIndex int32
	PresentFamilyIndex  int32
	ComputeFamilyIndex  int32
	TransferFamilyIndex int32
}

func (qi VulkanPhysicalDeviceQueueFamilyInfo) meets(r *VulkanPhysicalDeviceRequirements) bool {
	return (!r.Graphics || qi.GraphicsFamilyIndex >= 0) &&
		(!r.Present || qi.PresentFamilyIndex >= 0) &&
		(!r.Transfer || qi.TransferFamilyIndex >= 0)
}

func DeviceCreate(rc *RendererContext) (*VulkanDevice, error) {
	device, err := SelectPhysicalDevice(rc)
	if err != nil {
		return nil, err
	}

	core.LogInfo("Creating logical device...")

	// Shared families get a single queue.
	indices := []uint32{uint32(device.GraphicsQueueIndex)}
	for _, idx := range []int32{device.PresentQueueIndex, device.TransferQueueIndex} {
		dup := false
		for _, existing := range indices {
			if existing == uint32(idx) {
				dup = true
				break
			}
		}
		if !dup {
			indices = append(indices, uint32(idx))
		}
	}

	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(indices))
	for i, idx := range indices {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: idx,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	extensionNames := []string{vk.KhrSwapchainExtensionName}
	available, err := deviceExtensions(device.PhysicalDevice)
	if err != nil {
		return nil, err
	}
	if _, ok := available[portabilitySubsetExtensionName]; ok {
		core.LogInfo("Adding required extension '%s'.", portabilitySubsetExtensionName)
		extensionNames = append(extensionNames, portabilitySubsetExtensionName)
	}

	// Wireframe pipelines need non solid fill modes.
	deviceFeatures := vk.PhysicalDeviceFeatures{
		FillModeNonSolid: device.Features.FillModeNonSolid,
	}
	features12, features13 := requiredFeatures()
	ref13, _ := features13.PassRef()
	defer features13.Free()
	features12.PNext = unsafe.Pointer(ref13)
	ref12, _ := features12.PassRef()
	defer features12.Free()

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		PNext:                   unsafe.Pointer(ref12),
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{deviceFeatures},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}

	switch res := vk.CreateDevice(device.PhysicalDevice, &deviceCreateInfo, rc.Allocator, &device.LogicalDevice); res {
	case vk.Success:
	case vk.ErrorFeatureNotPresent:
		return nil, errors.Wrap(VulkanError(res, "vkCreateDevice"),
			"device lacks dynamic rendering, synchronization2, timeline semaphores, buffer device address or descriptor indexing")
	default:
		return nil, VulkanError(res, "vkCreateDevice")
	}
	core.LogInfo("Logical device created.")

	vk.GetDeviceQueue(device.LogicalDevice, uint32(device.GraphicsQueueIndex), 0, &device.GraphicsQueue)
	vk.GetDeviceQueue(device.LogicalDevice, uint32(device.PresentQueueIndex), 0, &device.PresentQueue)
	vk.GetDeviceQueue(device.LogicalDevice, uint32(device.TransferQueueIndex), 0, &device.TransferQueue)
	core.LogInfo("Queues obtained.")

	pool, err := CreateCommandPool(rc, device, uint32(device.GraphicsQueueIndex))
	if err != nil {
		return nil, err
	}
	device.GraphicsCommandPool = pool
	core.LogInfo("Graphics command pool created.")

	return device, nil
}

// requiredFeatures is the 1.2 and 1.3 feature chain every device must enable.
// The caller links the two structs through PNext.
func requiredFeatures() (*vk.PhysicalDeviceVulkan12Features, *vk.PhysicalDeviceVulkan13Features) {
	features12 := &vk.PhysicalDeviceVulkan12Features{
		SType:               vk.StructureTypePhysicalDeviceVulkan12Features,
		DescriptorIndexing:  vk.True,
		TimelineSemaphore:   vk.True,
		BufferDeviceAddress: vk.True,
	}
	features13 := &vk.PhysicalDeviceVulkan13Features{
		SType:            vk.StructureTypePhysicalDeviceVulkan13Features,
		DynamicRendering: vk.True,
		Synchronization2: vk.True,
	}
	return features12, features13
}

// CreateCommandPool creates a pool whose buffers can be reset one by one.
func CreateCommandPool(rc *RendererContext, device *VulkanDevice, queueFamily uint32) (vk.CommandPool, error) {
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: queueFamily,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if res := vk.CreateCommandPool(device.LogicalDevice, &poolCreateInfo, rc.Allocator, &pool); res != vk.Success {
		return nil, VulkanError(res, "vkCreateCommandPool")
	}
	return pool, nil
}

func DeviceDestroy(rc *RendererContext) {
	device := rc.Device

	device.GraphicsQueue = nil
	device.PresentQueue = nil
	device.TransferQueue = nil

	core.LogInfo("Destroying command pools...")
	if device.GraphicsCommandPool != nil {
		vk.DestroyCommandPool(device.LogicalDevice, device.GraphicsCommandPool, rc.Allocator)
		device.GraphicsCommandPool = nil
	}

	core.LogInfo("Destroying logical device...")
	if device.LogicalDevice != nil {
		vk.DestroyDevice(device.LogicalDevice, rc.Allocator)
		device.LogicalDevice = nil
	}

	// Physical devices are not destroyed.
	device.PhysicalDevice = nil
	device.SwapchainSupport = VulkanSwapchainSupportInfo{}
	device.GraphicsQueueIndex = -1
	device.PresentQueueIndex = -1
	device.TransferQueueIndex = -1
}

func DeviceQuerySwapchainSupport(physicalDevice vk.PhysicalDevice, surface vk.Surface, supportInfo *VulkanSwapchainSupportInfo) error {
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(physicalDevice, surface, &supportInfo.Capabilities); res != vk.Success {
		return VulkanError(res, "vkGetPhysicalDeviceSurfaceCapabilitiesKHR")
	}
	supportInfo.Capabilities.Deref()
	supportInfo.Capabilities.CurrentExtent.Deref()
	supportInfo.Capabilities.MinImageExtent.Deref()
	supportInfo.Capabilities.MaxImageExtent.Deref()

	supportInfo.FormatCount = 0
	if res := vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &supportInfo.FormatCount, nil); res != vk.Success {
		return VulkanError(res, "vkGetPhysicalDeviceSurfaceFormatsKHR")
	}
	supportInfo.Formats = make([]vk.SurfaceFormat, supportInfo.FormatCount)
	if supportInfo.FormatCount != 0 {
		if res := vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &supportInfo.FormatCount, supportInfo.Formats); res != vk.Success {
			return VulkanError(res, "vkGetPhysicalDeviceSurfaceFormatsKHR")
		}
		for i := range supportInfo.Formats {
			supportInfo.Formats[i].Deref()
		}
	}

	supportInfo.PresentModeCount = 0
	if res := vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &supportInfo.PresentModeCount, nil); res != vk.Success {
		return VulkanError(res, "vkGetPhysicalDeviceSurfacePresentModesKHR")
	}
	supportInfo.PresentModes = make([]vk.PresentMode, supportInfo.PresentModeCount)
	if supportInfo.PresentModeCount != 0 {
		if res := vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &supportInfo.PresentModeCount, supportInfo.PresentModes); res != vk.Success {
			return VulkanError(res, "vkGetPhysicalDeviceSurfacePresentModesKHR")
		}
	}
	return nil
}

func deviceExtensions(device vk.PhysicalDevice) (map[string]struct{}, error) {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, nil); res != vk.Success {
		return nil, VulkanError(res, "vkEnumerateDeviceExtensionProperties")
	}
	properties := make([]vk.ExtensionProperties, count)
	if count != 0 {
		if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, properties); res != vk.Success {
			return nil, VulkanError(res, "vkEnumerateDeviceExtensionProperties")
		}
	}
	out := make(map[string]struct{}, count)
	for i := range properties {
		properties[i].Deref()
		out[cString(properties[i].ExtensionName[:])] = struct{}{}
	}
	return out, nil
}

func depthFormatSupported(device vk.PhysicalDevice, format vk.Format) bool {
	var properties vk.FormatProperties
	vk.GetPhysicalDeviceFormatProperties(device, format, &properties)
	properties.Deref()
	flags := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
	return properties.OptimalTilingFeatures&flags == flags
}

// SelectPhysicalDevice picks the first device meeting the requirements,
// preferring a discrete GPU when there is one.
func SelectPhysicalDevice(rc *RendererContext) (*VulkanDevice, error) {
	var physicalDeviceCount uint32
	if res := vk.EnumeratePhysicalDevices(rc.Instance, &physicalDeviceCount, nil); res != vk.Success {
		return nil, VulkanError(res, "vkEnumeratePhysicalDevices")
	}
	if physicalDeviceCount == 0 {
		return nil, errors.New("no devices which support Vulkan were found")
	}
	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if res := vk.EnumeratePhysicalDevices(rc.Instance, &physicalDeviceCount, physicalDevices); res != vk.Success {
		return nil, VulkanError(res, "vkEnumeratePhysicalDevices")
	}

	requirements := VulkanPhysicalDeviceRequirements{
		Graphics:             true,
		Present:              true,
		Transfer:             true,
		DeviceExtensionNames: []string{vk.KhrSwapchainExtensionName},
		MinAPIVersion:        uint32(vk.MakeVersion(1, 3, 0)),
		DepthFormat:          vk.FormatD32Sfloat,
	}

	var selected *VulkanDevice
	for _, physicalDevice := range physicalDevices {
		candidate := &VulkanDevice{
			PhysicalDevice: physicalDevice,
			DepthFormat:    requirements.DepthFormat,
		}
		vk.GetPhysicalDeviceProperties(physicalDevice, &candidate.Properties)
		candidate.Properties.Deref()
		candidate.Properties.Limits.Deref()
		vk.GetPhysicalDeviceFeatures(physicalDevice, &candidate.Features)
		candidate.Features.Deref()
		vk.GetPhysicalDeviceMemoryProperties(physicalDevice, &candidate.Memory)
		candidate.Memory.Deref()

		queueInfo, ok, err := PhysicalDeviceMeetsRequirements(physicalDevice, rc.Surface, &candidate.Properties, &requirements, &candidate.SwapchainSupport)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		candidate.GraphicsQueueIndex = queueInfo.GraphicsFamilyIndex
		candidate.PresentQueueIndex = queueInfo.PresentFamilyIndex
		candidate.TransferQueueIndex = queueInfo.TransferFamilyIndex

		if selected == nil || (candidate.Properties.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu &&
			selected.Properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu) {
			selected = candidate
		}
	}

	if selected == nil {
		return nil, errors.New("no physical devices were found which meet the requirements")
	}
	logDevice(selected)
	core.LogInfo("Physical device selected.")
	return selected, nil
}

func logDevice(device *VulkanDevice) {
	properties := device.Properties
	core.LogInfo("Selected device: '%s'.", cString(properties.DeviceName[:]))
	switch properties.DeviceType {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		core.LogInfo("GPU type is Integrated.")
	case vk.PhysicalDeviceTypeDiscreteGpu:
		core.LogInfo("GPU type is Discrete.")
	case vk.PhysicalDeviceTypeVirtualGpu:
		core.LogInfo("GPU type is Virtual.")
	case vk.PhysicalDeviceTypeCpu:
		core.LogInfo("GPU type is CPU.")
	default:
		core.LogInfo("GPU type is Unknown.")
	}

	driver := vk.Version(properties.DriverVersion)
	core.LogInfo("GPU Driver version: %d.%d.%d", driver.Major(), driver.Minor(), driver.Patch())
	api := vk.Version(properties.ApiVersion)
	core.LogInfo("Vulkan API version: %d.%d.%d", api.Major(), api.Minor(), api.Patch())

	for j := uint32(0); j < device.Memory.MemoryHeapCount; j++ {
		heap := device.Memory.MemoryHeaps[j]
		heap.Deref()
		memorySizeGib := float64(heap.Size) / 1024.0 / 1024.0 / 1024.0
		if vk.MemoryHeapFlagBits(heap.Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			core.LogInfo("Local GPU memory: %.2f GiB", memorySizeGib)
		} else {
			core.LogInfo("Shared System memory: %.2f GiB", memorySizeGib)
		}
	}
}

// PhysicalDeviceMeetsRequirements reports whether device can run the
// renderer, filling in its queue families and swapchain support.
func PhysicalDeviceMeetsRequirements(
	device vk.PhysicalDevice,
	surface vk.Surface,
	properties *vk.PhysicalDeviceProperties,
	requirements *VulkanPhysicalDeviceRequirements,
	outSwapchainSupport *VulkanSwapchainSupportInfo,
) (VulkanPhysicalDeviceQueueFamilyInfo, bool, error) {
	queueInfo := VulkanPhysicalDeviceQueueFamilyInfo{
		GraphicsFamilyIndex: -1,
		PresentFamilyIndex:  -1,
		ComputeFamilyIndex:  -1,
		TransferFamilyIndex: -1,
	}
	name := cString(properties.DeviceName[:])

	if properties.ApiVersion < requirements.MinAPIVersion {
		api := vk.Version(properties.ApiVersion)
		core.LogInfo("Device '%s' only supports Vulkan %d.%d, skipping.", name, api.Major(), api.Minor())
		return queueInfo, false, nil
	}

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, queueFamilies)

	minTransferScore := 255
	for i := range queueFamilies {
		queueFamilies[i].Deref()
		flags := vk.QueueFlagBits(queueFamilies[i].QueueFlags)
		currentTransferScore := 0

		if flags&vk.QueueGraphicsBit != 0 {
			if queueInfo.GraphicsFamilyIndex < 0 {
				queueInfo.GraphicsFamilyIndex = int32(i)
			}
			currentTransferScore++
		}
		if flags&vk.QueueComputeBit != 0 {
			if queueInfo.ComputeFamilyIndex < 0 {
				queueInfo.ComputeFamilyIndex = int32(i)
			}
			currentTransferScore++
		}
		// The family with the fewest other capabilities is most likely a
		// dedicated transfer queue.
		if flags&vk.QueueTransferBit != 0 && currentTransferScore <= minTransferScore {
			minTransferScore = currentTransferScore
			queueInfo.TransferFamilyIndex = int32(i)
		}

		var supportsPresent vk.Bool32
		if res := vk.GetPhysicalDeviceSurfaceSupport(device, uint32(i), surface, &supportsPresent); res != vk.Success {
			return queueInfo, false, VulkanError(res, "vkGetPhysicalDeviceSurfaceSupportKHR")
		}
		// Prefer presenting from the graphics family.
		if supportsPresent == vk.True && (queueInfo.PresentFamilyIndex < 0 || queueInfo.GraphicsFamilyIndex == int32(i)) {
			queueInfo.PresentFamilyIndex = int32(i)
		}
	}

	core.LogDebug("Device '%s' queue families: graphics %d, present %d, compute %d, transfer %d",
		name,
		queueInfo.GraphicsFamilyIndex,
		queueInfo.PresentFamilyIndex,
		queueInfo.ComputeFamilyIndex,
		queueInfo.TransferFamilyIndex)

	if !queueInfo.meets(requirements) {
		core.LogInfo("Device '%s' does not meet queue requirements, skipping.", name)
		return queueInfo, false, nil
	}

	if err := DeviceQuerySwapchainSupport(device, surface, outSwapchainSupport); err != nil {
		return queueInfo, false, err
	}
	if outSwapchainSupport.FormatCount < 1 || outSwapchainSupport.PresentModeCount < 1 {
		core.LogInfo("Required swapchain support not present, skipping device.")
		return queueInfo, false, nil
	}

	available, err := deviceExtensions(device)
	if err != nil {
		return queueInfo, false, err
	}
	for _, ext := range requirements.DeviceExtensionNames {
		if _, ok := available[ext]; !ok {
			core.LogInfo("Required extension not found: '%s', skipping device.", ext)
			return queueInfo, false, nil
		}
	}

	if !depthFormatSupported(device, requirements.DepthFormat) {
		core.LogInfo("Device '%s' cannot render to the depth format, skipping.", name)
		return queueInfo, false, nil
	}

	return queueInfo, true, nil
}
