package vulkan

import (
	"math"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/core"
)

type VulkanSwapchain struct {
	ImageFormat vk.SurfaceFormat
	Handle      vk.Swapchain
	Extent      vk.Extent2D
	ImageCount  uint32
	Images      []vk.Image
	Views       []vk.ImageView

	vsync bool
}

type VulkanSwapchainSupportInfo struct {
	Capabilities     vk.SurfaceCapabilities
	FormatCount      uint32
	Formats          []vk.SurfaceFormat
	PresentModeCount uint32
	PresentModes     []vk.PresentMode
}

func SwapchainCreate(rc *RendererContext, width, height uint32, vsync bool) (*VulkanSwapchain, error) {
	sc := &VulkanSwapchain{vsync: vsync}
	if err := sc.create(rc, width, height, nil); err != nil {
		return nil, err
	}
	return sc, nil
}

// Recreate builds a new swapchain for the current surface. The caller makes
// sure the device is idle.
func (vs *VulkanSwapchain) Recreate(rc *RendererContext, width, height uint32) error {
	if err := DeviceQuerySwapchainSupport(rc.Device.PhysicalDevice, rc.Surface, &rc.Device.SwapchainSupport); err != nil {
		return err
	}
	old := vs.Handle
	vs.destroyViews(rc)
	err := vs.create(rc, width, height, old)
	if old != nil {
		vk.DestroySwapchain(rc.Device.LogicalDevice, old, rc.Allocator)
	}
	return err
}

func (vs *VulkanSwapchain) Destroy(rc *RendererContext) {
	vs.destroyViews(rc)
	if vs.Handle != nil {
		vk.DestroySwapchain(rc.Device.LogicalDevice, vs.Handle, rc.Allocator)
		vs.Handle = nil
	}
}

// AcquireNextImage returns the index of the next presentable image, which
// signals semaphore once available. A stale surface is reported as
// core.ErrSurfaceOutOfDate.
func (vs *VulkanSwapchain) AcquireNextImage(rc *RendererContext, timeoutNs uint64, semaphore vk.Semaphore) (uint32, error) {
	var imageIndex uint32
	result := vk.AcquireNextImage(rc.Device.LogicalDevice, vs.Handle, timeoutNs, semaphore, vk.NullFence, &imageIndex)
	switch result {
	// A suboptimal image was still acquired and its semaphore will signal, the
	// following present reports the staleness.
	case vk.Success, vk.Suboptimal:
		return imageIndex, nil
	}
	return 0, VulkanError(result, "vkAcquireNextImageKHR")
}

// Present queues image for presentation once waitSemaphore signals.
func (vs *VulkanSwapchain) Present(rc *RendererContext, waitSemaphore vk.Semaphore, imageIndex uint32) error {
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{waitSemaphore},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{vs.Handle},
		PImageIndices:      []uint32{imageIndex},
	}

	return rc.lockPool.SafeQueueCall(uint32(rc.Device.PresentQueueIndex), func() error {
		result := vk.QueuePresent(rc.Device.PresentQueue, &presentInfo)
		if result == vk.Success {
			return nil
		}
		return VulkanError(result, "vkQueuePresentKHR")
	})
}

func (vs *VulkanSwapchain) create(rc *RendererContext, width, height uint32, old vk.Swapchain) error {
	support := &rc.Device.SwapchainSupport
	if support.FormatCount == 0 {
		return errors.New("surface reports no formats")
	}

	found := false
	for _, format := range support.Formats {
		if format.Format == vk.FormatB8g8r8a8Unorm && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			vs.ImageFormat = format
			found = true
			break
		}
	}
	if !found {
		vs.ImageFormat = support.Formats[0]
	}

	// FIFO is always available and paces to the display.
	presentMode := vk.PresentModeFifo
	if !vs.vsync {
		for _, mode := range support.PresentModes {
			if mode == vk.PresentModeMailbox {
				presentMode = mode
				break
			}
		}
	}

	extent := vk.Extent2D{Width: width, Height: height}
	if support.Capabilities.CurrentExtent.Width != math.MaxUint32 {
		extent = support.Capabilities.CurrentExtent
	}
	minExtent := support.Capabilities.MinImageExtent
	maxExtent := support.Capabilities.MaxImageExtent
	extent.Width = MathClamp(extent.Width, minExtent.Width, maxExtent.Width)
	extent.Height = MathClamp(extent.Height, minExtent.Height, maxExtent.Height)
	vs.Extent = extent

	imageCount := support.Capabilities.MinImageCount + 1
	if support.Capabilities.MaxImageCount > 0 && imageCount > support.Capabilities.MaxImageCount {
		imageCount = support.Capabilities.MaxImageCount
	}

	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          rc.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      vs.ImageFormat.Format,
		ImageColorSpace:  vs.ImageFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		// The draw image is blitted in, the overlay is rendered on top.
		ImageUsage:     vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
		PreTransform:   support.Capabilities.CurrentTransform,
		CompositeAlpha: vk.CompositeAlphaOpaqueBit,
		PresentMode:    presentMode,
		Clipped:        vk.True,
		OldSwapchain:   old,
	}

	if rc.Device.GraphicsQueueIndex != rc.Device.PresentQueueIndex {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeConcurrent
		swapchainCreateInfo.QueueFamilyIndexCount = 2
		swapchainCreateInfo.PQueueFamilyIndices = []uint32{
			uint32(rc.Device.GraphicsQueueIndex),
			uint32(rc.Device.PresentQueueIndex),
		}
	} else {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	var handle vk.Swapchain
	if err := rc.lockPool.SafeCall(SwapchainManagement, func() error {
		if res := vk.CreateSwapchain(rc.Device.LogicalDevice, &swapchainCreateInfo, rc.Allocator, &handle); res != vk.Success {
			return VulkanError(res, "vkCreateSwapchainKHR")
		}
		return nil
	}); err != nil {
		return err
	}
	vs.Handle = handle

	vs.ImageCount = 0
	if res := vk.GetSwapchainImages(rc.Device.LogicalDevice, vs.Handle, &vs.ImageCount, nil); res != vk.Success {
		return VulkanError(res, "vkGetSwapchainImagesKHR")
	}
	vs.Images = make([]vk.Image, vs.ImageCount)
	vs.Views = make([]vk.ImageView, vs.ImageCount)
	if res := vk.GetSwapchainImages(rc.Device.LogicalDevice, vs.Handle, &vs.ImageCount, vs.Images); res != vk.Success {
		return VulkanError(res, "vkGetSwapchainImagesKHR")
	}

	for i := range vs.Images {
		view, err := CreateImageView(rc, vs.Images[i], vs.ImageFormat.Format, vk.ImageAspectFlags(vk.ImageAspectColorBit))
		if err != nil {
			return err
		}
		vs.Views[i] = view
	}

	core.LogInfo("Swapchain created: %dx%d, %d images, present mode %d.", extent.Width, extent.Height, vs.ImageCount, presentMode)
	return nil
}

// destroyViews releases the views only, the images belong to the swapchain.
func (vs *VulkanSwapchain) destroyViews(rc *RendererContext) {
	for i := range vs.Views {
		if vs.Views[i] != nil {
			vk.DestroyImageView(rc.Device.LogicalDevice, vs.Views[i], rc.Allocator)
		}
	}
	vs.Views = nil
	vs.Images = nil
	vs.ImageCount = 0
}
