package vulkan

import (
	vk "github.com/goki/vulkan"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

type VulkanCommandBuffer struct {
	Handle vk.CommandBuffer
	State  VulkanCommandBufferState
}

func NewVulkanCommandBuffer(rc *RendererContext, pool vk.CommandPool, isPrimary bool) (*VulkanCommandBuffer, error) {
	cb := &VulkanCommandBuffer{
		State: COMMAND_BUFFER_STATE_NOT_ALLOCATED,
	}

	level := vk.CommandBufferLevelSecondary
	if isPrimary {
		level = vk.CommandBufferLevelPrimary
	}

	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		CommandBufferCount: 1,
		Level:              level,
	}

	handles := make([]vk.CommandBuffer, 1)
	if err := rc.lockPool.SafeCall(CommandBufferManagement, func() error {
		if res := vk.AllocateCommandBuffers(rc.Device.LogicalDevice, &allocateInfo, handles); res != vk.Success {
			return VulkanError(res, "vkAllocateCommandBuffers")
		}
		return nil
	}); err != nil {
		return nil, err
	}
	cb.Handle = handles[0]
	cb.State = COMMAND_BUFFER_STATE_READY

	return cb, nil
}

func (v *VulkanCommandBuffer) Free(rc *RendererContext, pool vk.CommandPool) {
	if v.Handle != nil {
		_ = rc.lockPool.SafeCall(CommandBufferManagement, func() error {
			vk.FreeCommandBuffers(rc.Device.LogicalDevice, pool, 1, []vk.CommandBuffer{v.Handle})
			return nil
		})
	}
	v.Handle = nil
	v.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

func (v *VulkanCommandBuffer) Begin(isSingleUse, isRenderpassContinue, isSimultaneousUse bool) error {
	beginInfo := &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if isSingleUse {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if isRenderpassContinue {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageRenderPassContinueBit)
	}
	if isSimultaneousUse {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageSimultaneousUseBit)
	}

	if res := vk.BeginCommandBuffer(v.Handle, beginInfo); res != vk.Success {
		return VulkanError(res, "vkBeginCommandBuffer")
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (v *VulkanCommandBuffer) End() error {
	if res := vk.EndCommandBuffer(v.Handle); res != vk.Success {
		return VulkanError(res, "vkEndCommandBuffer")
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

// Reset returns the buffer to the initial state, its pool must allow
// individual resets.
func (v *VulkanCommandBuffer) Reset() error {
	if res := vk.ResetCommandBuffer(v.Handle, 0); res != vk.Success {
		return VulkanError(res, "vkResetCommandBuffer")
	}
	v.State = COMMAND_BUFFER_STATE_READY
	return nil
}

func (v *VulkanCommandBuffer) UpdateSubmitted() {
	v.State = COMMAND_BUFFER_STATE_SUBMITTED
}

// AllocateAndBeginSingleUse allocates a primary command buffer from pool and
// begins recording to it.
func AllocateAndBeginSingleUse(rc *RendererContext, pool vk.CommandPool) (*VulkanCommandBuffer, error) {
	cb, err := NewVulkanCommandBuffer(rc, pool, true)
	if err != nil {
		return nil, err
	}
	if err := cb.Begin(true, false, false); err != nil {
		cb.Free(rc, pool)
		return nil, err
	}
	return cb, nil
}

// EndSingleUse ends recording, submits to queue, waits for it to drain and
// frees the command buffer.
func (v *VulkanCommandBuffer) EndSingleUse(rc *RendererContext, pool vk.CommandPool, queue vk.Queue, queueFamily uint32) error {
	defer v.Free(rc, pool)

	if err := v.End(); err != nil {
		return err
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{v.Handle},
	}

	return rc.lockPool.SafeQueueCall(queueFamily, func() error {
		if res := vk.QueueSubmit(queue, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence); res != vk.Success {
			return VulkanError(res, "vkQueueSubmit")
		}
		if res := vk.QueueWaitIdle(queue); res != vk.Success {
			return VulkanError(res, "vkQueueWaitIdle")
		}
		v.UpdateSubmitted()
		return nil
	})
}
