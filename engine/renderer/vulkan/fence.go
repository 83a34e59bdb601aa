package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/core"
)

type VulkanFence struct {
	Handle     vk.Fence
	IsSignaled bool
}

func NewFence(rc *RendererContext, createSignaled bool) (*VulkanFence, error) {
	fence := &VulkanFence{
		IsSignaled: createSignaled,
	}

	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if fence.IsSignaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var pFence vk.Fence
	if res := vk.CreateFence(rc.Device.LogicalDevice, &fenceCreateInfo, rc.Allocator, &pFence); res != vk.Success {
		return nil, VulkanError(res, "vkCreateFence")
	}
	fence.Handle = pFence
	return fence, nil
}

func (vf *VulkanFence) FenceDestroy(rc *RendererContext) {
	if vf.Handle != nil {
		vk.DestroyFence(rc.Device.LogicalDevice, vf.Handle, rc.Allocator)
		vf.Handle = nil
	}
	vf.IsSignaled = false
}

// FenceWait blocks until the fence is signaled. A wait that runs out of time
// returns core.ErrFenceTimeout, which callers may retry.
func (vf *VulkanFence) FenceWait(rc *RendererContext, timeoutNs uint64) error {
	if vf.IsSignaled {
		return nil
	}
	result := vk.WaitForFences(rc.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}, vk.True, timeoutNs)
	switch result {
	case vk.Success:
		vf.IsSignaled = true
		return nil
	case vk.Timeout:
		return errors.Mark(errors.Newf("vkWaitForFences timed out after %dns", timeoutNs), core.ErrFenceTimeout)
	case vk.ErrorDeviceLost:
		core.LogError("vk_fence_wait - VK_ERROR_DEVICE_LOST.")
	}
	return VulkanError(result, "vkWaitForFences")
}

func (vf *VulkanFence) FenceReset(rc *RendererContext) error {
	if !vf.IsSignaled {
		return nil
	}
	if res := vk.ResetFences(rc.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}); res != vk.Success {
		return VulkanError(res, "vkResetFences")
	}
	vf.IsSignaled = false
	return nil
}

func NewSemaphore(rc *RendererContext) (vk.Semaphore, error) {
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var semaphore vk.Semaphore
	if res := vk.CreateSemaphore(rc.Device.LogicalDevice, &semaphoreCreateInfo, rc.Allocator, &semaphore); res != vk.Success {
		return nil, VulkanError(res, "vkCreateSemaphore")
	}
	return semaphore, nil
}
