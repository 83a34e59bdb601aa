package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

type VulkanImage struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	Format vk.Format
	Width  uint32
	Height uint32
}

// ImageCreate creates a device local 2D image with optimal tiling and a view
// over its single mip level.
func ImageCreate(rc *RendererContext, width, height uint32, format vk.Format, usage vk.ImageUsageFlags, aspect vk.ImageAspectFlags) (*VulkanImage, error) {
	img := &VulkanImage{Format: format, Width: width, Height: height}

	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    format,
		Extent: vk.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         usage,
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}

	err := rc.lockPool.SafeCall(ImageManagement, func() error {
		if res := vk.CreateImage(rc.Device.LogicalDevice, &imageCreateInfo, rc.Allocator, &img.Handle); res != vk.Success {
			return VulkanError(res, "vkCreateImage")
		}

		var requirements vk.MemoryRequirements
		vk.GetImageMemoryRequirements(rc.Device.LogicalDevice, img.Handle, &requirements)
		requirements.Deref()

		memoryType, err := rc.FindMemoryIndex(requirements.MemoryTypeBits, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
		if err != nil {
			return err
		}
		allocateInfo := vk.MemoryAllocateInfo{
			SType:           vk.StructureTypeMemoryAllocateInfo,
			AllocationSize:  requirements.Size,
			MemoryTypeIndex: memoryType,
		}
		if res := vk.AllocateMemory(rc.Device.LogicalDevice, &allocateInfo, rc.Allocator, &img.Memory); res != vk.Success {
			return VulkanError(res, "vkAllocateMemory")
		}
		if res := vk.BindImageMemory(rc.Device.LogicalDevice, img.Handle, img.Memory, 0); res != vk.Success {
			return VulkanError(res, "vkBindImageMemory")
		}
		return nil
	})
	if err == nil {
		img.View, err = CreateImageView(rc, img.Handle, format, aspect)
	}
	if err != nil {
		img.ImageDestroy(rc)
		return nil, errors.Wrapf(err, "failed to create %dx%d image", width, height)
	}
	return img, nil
}

func CreateImageView(rc *RendererContext, image vk.Image, format vk.Format, aspect vk.ImageAspectFlags) (vk.ImageView, error) {
	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspect,
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	var view vk.ImageView
	if res := vk.CreateImageView(rc.Device.LogicalDevice, &viewInfo, rc.Allocator, &view); res != vk.Success {
		return nil, VulkanError(res, "vkCreateImageView")
	}
	return view, nil
}

func (img *VulkanImage) ImageDestroy(rc *RendererContext) {
	_ = rc.lockPool.SafeCall(ImageManagement, func() error {
		if img.View != nil {
			vk.DestroyImageView(rc.Device.LogicalDevice, img.View, rc.Allocator)
			img.View = nil
		}
		if img.Handle != nil {
			vk.DestroyImage(rc.Device.LogicalDevice, img.Handle, rc.Allocator)
			img.Handle = nil
		}
		if img.Memory != nil {
			vk.FreeMemory(rc.Device.LogicalDevice, img.Memory, rc.Allocator)
			img.Memory = nil
		}
		return nil
	})
}

func (img *VulkanImage) Extent() vk.Extent2D {
	return vk.Extent2D{Width: img.Width, Height: img.Height}
}

// TransitionImage records a full barrier moving image between layouts.
// It waits on all commands, which is enough for the handful of transitions a
// frame needs.
func TransitionImage(cb *VulkanCommandBuffer, image vk.Image, aspect vk.ImageAspectFlags, oldLayout, newLayout vk.ImageLayout) {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       vk.AccessFlags(vk.AccessMemoryWriteBit),
		DstAccessMask:       vk.AccessFlags(vk.AccessMemoryWriteBit | vk.AccessMemoryReadBit),
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               image,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspect,
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	stages := vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit)
	vk.CmdPipelineBarrier(cb.Handle, stages, stages, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

// BlitImage records a linear filtered copy of the whole of src into the whole
// of dst. src must be in transfer source layout, dst in transfer destination.
func BlitImage(cb *VulkanCommandBuffer, src vk.Image, srcSize vk.Extent2D, dst vk.Image, dstSize vk.Extent2D) {
	subresource := vk.ImageSubresourceLayers{
		AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
		LayerCount: 1,
	}
	region := vk.ImageBlit{
		SrcSubresource: subresource,
		SrcOffsets: [2]vk.Offset3D{
			{},
			{X: int32(srcSize.Width), Y: int32(srcSize.Height), Z: 1},
		},
		DstSubresource: subresource,
		DstOffsets: [2]vk.Offset3D{
			{},
			{X: int32(dstSize.Width), Y: int32(dstSize.Height), Z: 1},
		},
	}
	vk.CmdBlitImage(cb.Handle,
		src, vk.ImageLayoutTransferSrcOptimal,
		dst, vk.ImageLayoutTransferDstOptimal,
		1, []vk.ImageBlit{region}, vk.FilterLinear)
}

// CopyBufferToImage records an upload of tightly packed pixels at offset of
// buffer into the whole of img, which must be in transfer destination layout.
func CopyBufferToImage(cb *VulkanCommandBuffer, buffer *VulkanBuffer, offset uint64, img *VulkanImage) {
	region := vk.BufferImageCopy{
		BufferOffset: vk.DeviceSize(offset),
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LayerCount: 1,
		},
		ImageExtent: vk.Extent3D{
			Width:  img.Width,
			Height: img.Height,
			Depth:  1,
		},
	}
	vk.CmdCopyBufferToImage(cb.Handle, buffer.Handle, img.Handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})
}
