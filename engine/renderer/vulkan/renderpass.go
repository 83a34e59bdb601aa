package vulkan

import (
	vk "github.com/goki/vulkan"
)

type renderpassKey struct {
	color vk.Format
	depth vk.Format
	clear bool
}

// VulkanRenderpass is a single subpass render pass over one color and an
// optional depth attachment. Passes differing only in their load operation
// are compatible, so pipelines built against the clearing pass also run
// inside the loading one.
type VulkanRenderpass struct {
	Handle      vk.RenderPass
	ColorFormat vk.Format
	DepthFormat vk.Format
	Clear       bool

	R, G, B, A float32
	Depth      float32
	Stencil    uint32
}

// Renderpass returns the cached render pass for the attachment formats,
// creating it on first use. depth is vk.FormatUndefined for color only passes.
func (rc *RendererContext) Renderpass(color, depth vk.Format, clear bool) (*VulkanRenderpass, error) {
	key := renderpassKey{color: color, depth: depth, clear: clear}
	if rp, ok := rc.renderpasses[key]; ok {
		return rp, nil
	}
	rp, err := RenderpassCreate(rc, color, depth, clear)
	if err != nil {
		return nil, err
	}
	rc.renderpasses[key] = rp
	return rp, nil
}

func RenderpassCreate(rc *RendererContext, color, depth vk.Format, clear bool) (*VulkanRenderpass, error) {
	rp := &VulkanRenderpass{
		ColorFormat: color,
		DepthFormat: depth,
		Clear:       clear,
		A:           1.0,
		// Reverse depth, far plane at zero.
		Depth: 0.0,
	}

	loadOp := vk.AttachmentLoadOpLoad
	colorInitial := vk.ImageLayoutColorAttachmentOptimal
	depthInitial := vk.ImageLayoutDepthStencilAttachmentOptimal
	if clear {
		loadOp = vk.AttachmentLoadOpClear
		colorInitial = vk.ImageLayoutUndefined
		depthInitial = vk.ImageLayoutUndefined
	}

	attachments := []vk.AttachmentDescription{{
		Format:         color,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         loadOp,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  colorInitial,
		// Transfers and presentation use explicit barriers afterwards.
		FinalLayout: vk.ImageLayoutColorAttachmentOptimal,
	}}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments: []vk.AttachmentReference{{
			Attachment: 0,
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}},
	}

	stages := vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	access := vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit)

	if depth != vk.FormatUndefined {
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         depth,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         loadOp,
			StoreOp:        vk.AttachmentStoreOpDontCare,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  depthInitial,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: 1,
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
		stages |= vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit)
		access |= vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit)
	}

	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  stages,
		SrcAccessMask: access,
		DstStageMask:  stages,
		DstAccessMask: access,
	}

	renderpassCreateInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	if res := vk.CreateRenderPass(rc.Device.LogicalDevice, &renderpassCreateInfo, rc.Allocator, &rp.Handle); res != vk.Success {
		return nil, VulkanError(res, "vkCreateRenderPass")
	}
	return rp, nil
}

func (vr *VulkanRenderpass) RenderpassDestroy(rc *RendererContext) {
	if vr.Handle != nil {
		vk.DestroyRenderPass(rc.Device.LogicalDevice, vr.Handle, rc.Allocator)
		vr.Handle = nil
	}
}

func (vr *VulkanRenderpass) RenderpassBegin(commandBuffer *VulkanCommandBuffer, framebuffer *VulkanFramebuffer) {
	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  vr.Handle,
		Framebuffer: framebuffer.Handle,
		RenderArea: vk.Rect2D{
			Extent: vk.Extent2D{Width: framebuffer.Width, Height: framebuffer.Height},
		},
	}

	if vr.Clear {
		clearValues := make([]vk.ClearValue, 1, 2)
		clearValues[0].SetColor([]float32{vr.R, vr.G, vr.B, vr.A})
		if vr.DepthFormat != vk.FormatUndefined {
			var depth vk.ClearValue
			depth.SetDepthStencil(vr.Depth, vr.Stencil)
			clearValues = append(clearValues, depth)
		}
		beginInfo.ClearValueCount = uint32(len(clearValues))
		beginInfo.PClearValues = clearValues
	}

	vk.CmdBeginRenderPass(commandBuffer.Handle, &beginInfo, vk.SubpassContentsInline)
	commandBuffer.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (vr *VulkanRenderpass) RenderpassEnd(commandBuffer *VulkanCommandBuffer) {
	vk.CmdEndRenderPass(commandBuffer.Handle)
	commandBuffer.State = COMMAND_BUFFER_STATE_RECORDING
}
