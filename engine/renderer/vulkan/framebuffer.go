package vulkan

import (
	vk "github.com/goki/vulkan"
)

type VulkanFramebuffer struct {
	Handle      vk.Framebuffer
	Width       uint32
	Height      uint32
	Attachments []vk.ImageView
	Renderpass  *VulkanRenderpass
}

func FramebufferCreate(rc *RendererContext, renderpass *VulkanRenderpass, width, height uint32, attachments ...vk.ImageView) (*VulkanFramebuffer, error) {
	fb := &VulkanFramebuffer{
		Width:       width,
		Height:      height,
		Attachments: append([]vk.ImageView(nil), attachments...),
		Renderpass:  renderpass,
	}

	framebufferCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderpass.Handle,
		AttachmentCount: uint32(len(fb.Attachments)),
		PAttachments:    fb.Attachments,
		Width:           width,
		Height:          height,
		Layers:          1,
	}

	if res := vk.CreateFramebuffer(rc.Device.LogicalDevice, &framebufferCreateInfo, rc.Allocator, &fb.Handle); res != vk.Success {
		return nil, VulkanError(res, "vkCreateFramebuffer")
	}
	return fb, nil
}

func (vfb *VulkanFramebuffer) Destroy(rc *RendererContext) {
	if vfb.Handle != nil {
		vk.DestroyFramebuffer(rc.Device.LogicalDevice, vfb.Handle, rc.Allocator)
	}
	vfb.Handle = nil
	vfb.Attachments = nil
	vfb.Renderpass = nil
}
