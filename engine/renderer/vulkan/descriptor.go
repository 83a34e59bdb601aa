package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/renderer/allocator"
)

type (
	DescriptorAllocator = allocator.DescriptorAllocatorGrowable[vk.DescriptorPool, vk.DescriptorSetLayout, vk.DescriptorSet]
	DescriptorWriter    = allocator.DescriptorWriter[*VulkanBuffer, vk.ImageView, vk.Sampler]
)

func (rc *RendererContext) CreateDescriptorPool(maxSets uint32, sizes []allocator.PoolSize) (vk.DescriptorPool, error) {
	poolSizes := make([]vk.DescriptorPoolSize, 0, len(sizes))
	for _, size := range sizes {
		poolSizes = append(poolSizes, vk.DescriptorPoolSize{
			Type:            vkDescriptorType(size.Type),
			DescriptorCount: size.Count,
		})
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}

	var pool vk.DescriptorPool
	err := rc.lockPool.SafeCall(DescriptorManagement, func() error {
		if res := vk.CreateDescriptorPool(rc.Device.LogicalDevice, &poolInfo, rc.Allocator, &pool); res != vk.Success {
			return VulkanError(res, "vkCreateDescriptorPool")
		}
		return nil
	})
	return pool, err
}

// AllocateDescriptorSet reports an exhausted pool with core.ErrPoolOutOfMemory
// or core.ErrFragmentedPool.
func (rc *RendererContext) AllocateDescriptorSet(pool vk.DescriptorPool, layout vk.DescriptorSetLayout) (vk.DescriptorSet, error) {
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout},
	}
	var set vk.DescriptorSet
	err := rc.lockPool.SafeCall(DescriptorManagement, func() error {
		if res := vk.AllocateDescriptorSets(rc.Device.LogicalDevice, &allocInfo, &set); res != vk.Success {
			return VulkanError(res, "vkAllocateDescriptorSets")
		}
		return nil
	})
	return set, err
}

func (rc *RendererContext) ResetDescriptorPool(pool vk.DescriptorPool) error {
	return rc.lockPool.SafeCall(DescriptorManagement, func() error {
		if res := vk.ResetDescriptorPool(rc.Device.LogicalDevice, pool, 0); res != vk.Success {
			return VulkanError(res, "vkResetDescriptorPool")
		}
		return nil
	})
}

func (rc *RendererContext) DestroyDescriptorPool(pool vk.DescriptorPool) {
	_ = rc.lockPool.SafeCall(DescriptorManagement, func() error {
		vk.DestroyDescriptorPool(rc.Device.LogicalDevice, pool, rc.Allocator)
		return nil
	})
}

func (rc *RendererContext) CreateDescriptorSetLayout(bindings []allocator.DescriptorBinding) (vk.DescriptorSetLayout, error) {
	layoutBindings := make([]vk.DescriptorSetLayoutBinding, 0, len(bindings))
	for _, b := range bindings {
		layoutBindings = append(layoutBindings, vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  vkDescriptorType(b.Type),
			DescriptorCount: b.Count,
			StageFlags:      vkShaderStages(b.Stages),
		})
	}
	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(layoutBindings)),
		PBindings:    layoutBindings,
	}

	var layout vk.DescriptorSetLayout
	if res := vk.CreateDescriptorSetLayout(rc.Device.LogicalDevice, &layoutInfo, rc.Allocator, &layout); res != vk.Success {
		return nil, VulkanError(res, "vkCreateDescriptorSetLayout")
	}
	return layout, nil
}

func (rc *RendererContext) DestroyDescriptorSetLayout(layout vk.DescriptorSetLayout) {
	if layout != nil {
		vk.DestroyDescriptorSetLayout(rc.Device.LogicalDevice, layout, rc.Allocator)
	}
}

// UpdateDescriptorSet writes a batch of image and buffer descriptors into set
// with a single call.
func (rc *RendererContext) UpdateDescriptorSet(set vk.DescriptorSet, images []allocator.ImageWrite[vk.ImageView, vk.Sampler], buffers []allocator.BufferWrite[*VulkanBuffer]) {
	writes := make([]vk.WriteDescriptorSet, 0, len(images)+len(buffers))
	for _, img := range images {
		writes = append(writes, vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      img.Binding,
			DescriptorCount: 1,
			DescriptorType:  vkDescriptorType(img.Type),
			PImageInfo: []vk.DescriptorImageInfo{{
				Sampler:     img.Sampler,
				ImageView:   img.View,
				ImageLayout: vkImageLayout(img.Layout),
			}},
		})
	}
	for _, buf := range buffers {
		writes = append(writes, vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      buf.Binding,
			DescriptorCount: 1,
			DescriptorType:  vkDescriptorType(buf.Type),
			PBufferInfo: []vk.DescriptorBufferInfo{{
				Buffer: buf.Buffer.Handle,
				Offset: vk.DeviceSize(buf.Offset),
				Range:  vk.DeviceSize(buf.Size),
			}},
		})
	}
	_ = rc.lockPool.SafeCall(DescriptorManagement, func() error {
		vk.UpdateDescriptorSets(rc.Device.LogicalDevice, uint32(len(writes)), writes, 0, nil)
		return nil
	})
}

// CreateSampler creates a clamped sampler without mipmaps.
func (rc *RendererContext) CreateSampler(filter vk.Filter) (vk.Sampler, error) {
	samplerInfo := vk.SamplerCreateInfo{
		SType:         vk.StructureTypeSamplerCreateInfo,
		MagFilter:     filter,
		MinFilter:     filter,
		MipmapMode:    vk.SamplerMipmapModeNearest,
		AddressModeU:  vk.SamplerAddressModeClampToEdge,
		AddressModeV:  vk.SamplerAddressModeClampToEdge,
		AddressModeW:  vk.SamplerAddressModeClampToEdge,
		CompareOp:     vk.CompareOpAlways,
		BorderColor:   vk.BorderColorIntOpaqueBlack,
		MaxAnisotropy: 1.0,
	}
	var sampler vk.Sampler
	if res := vk.CreateSampler(rc.Device.LogicalDevice, &samplerInfo, rc.Allocator, &sampler); res != vk.Success {
		return nil, VulkanError(res, "vkCreateSampler")
	}
	return sampler, nil
}

func (rc *RendererContext) DestroySampler(sampler vk.Sampler) {
	if sampler != nil {
		vk.DestroySampler(rc.Device.LogicalDevice, sampler, rc.Allocator)
	}
}

var (
	_ allocator.PoolDevice[vk.DescriptorPool, vk.DescriptorSetLayout, vk.DescriptorSet] = (*RendererContext)(nil)
	_ allocator.LayoutDevice[vk.DescriptorSetLayout]                                      = (*RendererContext)(nil)
	_ allocator.SetUpdater[vk.DescriptorSet, *VulkanBuffer, vk.ImageView, vk.Sampler]     = (*RendererContext)(nil)
	_ allocator.MappedBuffer                                                              = (*VulkanBuffer)(nil)
)
