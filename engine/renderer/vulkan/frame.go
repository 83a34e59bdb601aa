package vulkan

import (
	"time"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/allocator"
	"github.com/spaghettifunk/prism/engine/renderer/frame"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

type StagingBuffer = allocator.StagingBuffer[*VulkanBuffer]

// FrameData holds everything one frame slot owns. The slot is only touched
// again after RenderFence signals.
type FrameData struct {
	CommandPool   vk.CommandPool
	CommandBuffer *VulkanCommandBuffer
	RenderFence   *VulkanFence

	ImageAcquired  vk.Semaphore
	RenderFinished vk.Semaphore

	Staging     *StagingBuffer
	Descriptors *DescriptorAllocator

	imageIndex uint32
}

var frameDescriptorRatios = []allocator.PoolSizeRatio{
	{Type: metadata.DescriptorTypeCombinedImageSampler, Ratio: 2},
	{Type: metadata.DescriptorTypeStorageBuffer, Ratio: 2},
	{Type: metadata.DescriptorTypeUniformBuffer, Ratio: 1},
}

func FrameDataCreate(rc *RendererContext) (*FrameData, error) {
	fd := &FrameData{}

	pool, err := CreateCommandPool(rc, rc.Device, uint32(rc.Device.GraphicsQueueIndex))
	if err != nil {
		return nil, err
	}
	fd.CommandPool = pool

	if fd.CommandBuffer, err = NewVulkanCommandBuffer(rc, fd.CommandPool, true); err != nil {
		fd.Destroy(rc)
		return nil, err
	}
	// Signaled so the first wait on the slot returns right away.
	if fd.RenderFence, err = NewFence(rc, true); err != nil {
		fd.Destroy(rc)
		return nil, err
	}
	if fd.ImageAcquired, err = NewSemaphore(rc); err != nil {
		fd.Destroy(rc)
		return nil, err
	}
	if fd.RenderFinished, err = NewSemaphore(rc); err != nil {
		fd.Destroy(rc)
		return nil, err
	}

	staging, err := BufferCreate(rc, metadata.ResourceStagingBufferSize,
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit),
		true)
	if err != nil {
		fd.Destroy(rc)
		return nil, err
	}
	fd.Staging = allocator.NewStagingBuffer(staging)

	if fd.Descriptors, err = allocator.NewDescriptorAllocatorGrowable(rc, frameDescriptorSets, frameDescriptorRatios); err != nil {
		fd.Destroy(rc)
		return nil, err
	}
	return fd, nil
}

func (fd *FrameData) Destroy(rc *RendererContext) {
	if fd.Descriptors != nil {
		fd.Descriptors.DestroyPools()
		fd.Descriptors = nil
	}
	if fd.Staging != nil {
		fd.Staging.Destroy()
		fd.Staging = nil
	}
	if fd.RenderFinished != nil {
		vk.DestroySemaphore(rc.Device.LogicalDevice, fd.RenderFinished, rc.Allocator)
		fd.RenderFinished = nil
	}
	if fd.ImageAcquired != nil {
		vk.DestroySemaphore(rc.Device.LogicalDevice, fd.ImageAcquired, rc.Allocator)
		fd.ImageAcquired = nil
	}
	if fd.RenderFence != nil {
		fd.RenderFence.FenceDestroy(rc)
		fd.RenderFence = nil
	}
	if fd.CommandBuffer != nil {
		fd.CommandBuffer.Free(rc, fd.CommandPool)
		fd.CommandBuffer = nil
	}
	if fd.CommandPool != nil {
		vk.DestroyCommandPool(rc.Device.LogicalDevice, fd.CommandPool, rc.Allocator)
		fd.CommandPool = nil
	}
}

var _ frame.Device = (*VulkanRenderer)(nil)

func (vr *VulkanRenderer) WaitIdle() error {
	return vr.context.WaitIdle()
}

func (vr *VulkanRenderer) WaitForFence(slot int, timeout time.Duration) error {
	return vr.frames[slot].RenderFence.FenceWait(vr.context, uint64(timeout.Nanoseconds()))
}

func (vr *VulkanRenderer) ResetFence(slot int) error {
	return vr.frames[slot].RenderFence.FenceReset(vr.context)
}

// ResetFrameResources rewinds the slot staging buffer and descriptor pools.
// Only valid once the slot fence has signaled.
func (vr *VulkanRenderer) ResetFrameResources(slot int) error {
	fd := vr.frames[slot]
	fd.Staging.Reset()
	if err := fd.Descriptors.ClearPools(); err != nil {
		return errors.Wrapf(err, "frame slot %d", slot)
	}
	return nil
}

func (vr *VulkanRenderer) AcquireNextImage(slot int, timeout time.Duration) (uint32, error) {
	fd := vr.frames[slot]
	index, err := vr.context.Swapchain.AcquireNextImage(vr.context, uint64(timeout.Nanoseconds()), fd.ImageAcquired)
	if err != nil {
		return 0, err
	}
	fd.imageIndex = index
	return index, nil
}

func (vr *VulkanRenderer) BeginCommands(slot int) error {
	cb := vr.frames[slot].CommandBuffer
	if err := cb.Reset(); err != nil {
		return err
	}
	return cb.Begin(false, false, false)
}

// FinishCommands moves the swapchain image into present layout and closes the
// slot command buffer.
func (vr *VulkanRenderer) FinishCommands(slot int) error {
	fd := vr.frames[slot]
	TransitionImage(fd.CommandBuffer, vr.context.Swapchain.Images[fd.imageIndex],
		vk.ImageAspectFlags(vk.ImageAspectColorBit),
		vk.ImageLayoutColorAttachmentOptimal, vk.ImageLayoutPresentSrc)
	return fd.CommandBuffer.End()
}

func (vr *VulkanRenderer) Submit(slot int) error {
	fd := vr.frames[slot]
	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{fd.ImageAcquired},
		// The blit into the swapchain image is the first use of it.
		PWaitDstStageMask: []vk.PipelineStageFlags{
			vk.PipelineStageFlags(vk.PipelineStageTransferBit | vk.PipelineStageColorAttachmentOutputBit),
		},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{fd.CommandBuffer.Handle},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{fd.RenderFinished},
	}

	device := vr.context.Device
	return vr.context.lockPool.SafeQueueCall(uint32(device.GraphicsQueueIndex), func() error {
		if res := vk.QueueSubmit(device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, fd.RenderFence.Handle); res != vk.Success {
			return VulkanError(res, "vkQueueSubmit")
		}
		fd.CommandBuffer.UpdateSubmitted()
		return nil
	})
}

func (vr *VulkanRenderer) Present(slot int, image uint32) error {
	return vr.context.Swapchain.Present(vr.context, vr.frames[slot].RenderFinished, image)
}

// RecreateSwapchain rebuilds the swapchain and everything sized after it.
// The device is idle when the frame context calls it.
// The draw and depth images keep the resolution picked at startup; only the
// draw extent follows the window, clamped to those images.
func (vr *VulkanRenderer) RecreateSwapchain(width, height uint32) error {
	if err := vr.context.Swapchain.Recreate(vr.context, width, height); err != nil {
		return err
	}
	if err := vr.createPresentFramebuffers(); err != nil {
		return err
	}
	vr.updateDrawExtent()
	core.LogDebug("drawing at %dx%d", vr.drawExtent.Width, vr.drawExtent.Height)
	return nil
}
