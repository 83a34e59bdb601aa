package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

// VulkanBuffer is a buffer bound to its own memory allocation. Host visible
// buffers stay mapped for their whole lifetime.
type VulkanBuffer struct {
	rc     *RendererContext
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Size   uint64
	Usage  vk.BufferUsageFlags

	mapped []byte
}

func BufferCreate(rc *RendererContext, size uint64, usage vk.BufferUsageFlags, memoryFlags vk.MemoryPropertyFlags, mapped bool) (*VulkanBuffer, error) {
	if size == 0 {
		return nil, errors.New("buffer size must be non zero")
	}
	buffer := &VulkanBuffer{rc: rc, Size: size, Usage: usage}

	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}

	err := rc.lockPool.SafeCall(BufferManagement, func() error {
		if res := vk.CreateBuffer(rc.Device.LogicalDevice, &bufferInfo, rc.Allocator, &buffer.Handle); res != vk.Success {
			return VulkanError(res, "vkCreateBuffer")
		}

		var requirements vk.MemoryRequirements
		vk.GetBufferMemoryRequirements(rc.Device.LogicalDevice, buffer.Handle, &requirements)
		requirements.Deref()

		memoryType, err := rc.FindMemoryIndex(requirements.MemoryTypeBits, memoryFlags)
		if err != nil {
			return err
		}
		allocateInfo := vk.MemoryAllocateInfo{
			SType:           vk.StructureTypeMemoryAllocateInfo,
			AllocationSize:  requirements.Size,
			MemoryTypeIndex: memoryType,
		}
		if res := vk.AllocateMemory(rc.Device.LogicalDevice, &allocateInfo, rc.Allocator, &buffer.Memory); res != vk.Success {
			return VulkanError(res, "vkAllocateMemory")
		}
		if res := vk.BindBufferMemory(rc.Device.LogicalDevice, buffer.Handle, buffer.Memory, 0); res != vk.Success {
			return VulkanError(res, "vkBindBufferMemory")
		}

		if mapped {
			var data unsafe.Pointer
			if res := vk.MapMemory(rc.Device.LogicalDevice, buffer.Memory, 0, vk.DeviceSize(size), 0, &data); res != vk.Success {
				return VulkanError(res, "vkMapMemory")
			}
			buffer.mapped = unsafe.Slice((*byte)(data), size)
		}
		return nil
	})
	if err != nil {
		buffer.Destroy()
		return nil, errors.Wrapf(err, "failed to create buffer of %d bytes", size)
	}
	return buffer, nil
}

// Mapped is the host view of the buffer memory, nil for device local buffers.
func (b *VulkanBuffer) Mapped() []byte {
	return b.mapped
}

func (b *VulkanBuffer) Destroy() {
	device := b.rc.Device.LogicalDevice
	_ = b.rc.lockPool.SafeCall(BufferManagement, func() error {
		if b.mapped != nil {
			vk.UnmapMemory(device, b.Memory)
			b.mapped = nil
		}
		if b.Handle != nil {
			vk.DestroyBuffer(device, b.Handle, b.rc.Allocator)
			b.Handle = nil
		}
		if b.Memory != nil {
			vk.FreeMemory(device, b.Memory, b.rc.Allocator)
			b.Memory = nil
		}
		return nil
	})
}

// CopyBuffer records a copy of size bytes between two buffers.
func CopyBuffer(cb *VulkanCommandBuffer, src *VulkanBuffer, srcOffset uint64, dst *VulkanBuffer, dstOffset uint64, size uint64) {
	region := vk.BufferCopy{
		SrcOffset: vk.DeviceSize(srcOffset),
		DstOffset: vk.DeviceSize(dstOffset),
		Size:      vk.DeviceSize(size),
	}
	vk.CmdCopyBuffer(cb.Handle, src.Handle, dst.Handle, 1, []vk.BufferCopy{region})
}
