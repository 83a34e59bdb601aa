package vulkan

import (
	"encoding/binary"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/allocator"
	"github.com/spaghettifunk/prism/engine/renderer/frame"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/overlay"
	"github.com/spaghettifunk/prism/engine/renderer/pipeline"
)

const (
	overlayVertexShader   = "assets/shaders/overlay.vert"
	overlayFragmentShader = "assets/shaders/overlay.frag"
	// Distance of the panel from the top left corner of the window.
	overlayMargin = 8
)

// overlayPass draws the frame statistics panel straight onto the swapchain
// image after the draw target has been composed into it.
type overlayPass struct {
	vr *VulkanRenderer

	panel       *overlay.Panel
	image       *VulkanImage
	imageLayout vk.ImageLayout
	dirty       bool
	sampler     vk.Sampler
	pipeline    *GraphicsPipeline
}

func newOverlayPass(vr *VulkanRenderer) (*overlayPass, error) {
	rc := vr.context

	face := overlay.DefaultFace()
	if path := vr.config.Renderer.OverlayFont; path != "" {
		f, err := overlay.LoadBitmapFace(path)
		if err != nil {
			core.LogWarn("overlay font %s unusable, falling back to the built in face: %s", path, err)
		} else {
			face = f
		}
	}

	colorFormat := metadataFormat(rc.Swapchain.ImageFormat.Format)
	if colorFormat == metadata.FormatUndefined {
		return nil, errors.Newf("overlay cannot target swapchain format %d", rc.Swapchain.ImageFormat.Format)
	}

	op := &overlayPass{
		vr:          vr,
		panel:       overlay.NewPanel(face, overlayWidth, overlayHeight, overlayPadding),
		imageLayout: vk.ImageLayoutUndefined,
		dirty:       true,
	}

	var err error
	op.image, err = ImageCreate(rc, overlayWidth, overlayHeight, vk.FormatR8g8b8a8Unorm,
		vk.ImageUsageFlags(vk.ImageUsageSampledBit|vk.ImageUsageTransferDstBit),
		vk.ImageAspectFlags(vk.ImageAspectColorBit))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create overlay image")
	}
	if op.sampler, err = rc.CreateSampler(vk.FilterNearest); err != nil {
		op.destroy()
		return nil, err
	}

	var b allocator.DescriptorLayoutBuilder
	b.AddBinding(0, metadata.DescriptorTypeCombinedImageSampler, 1)
	setLayout, err := allocator.BuildLayout(rc, &b, metadata.ShaderStageFragment)
	if err != nil {
		op.destroy()
		return nil, err
	}

	builder := pipeline.NewGraphicsPipelineBuilder("overlay", overlayVertexShader, overlayFragmentShader).
		SetInputTopology(metadata.PrimitiveTopologyTriangleList).
		SetPolygonMode(metadata.PolygonModeFill, 1.0).
		SetCullMode(metadata.FaceCullModeNone, metadata.FrontFaceClockwise).
		EnableBlendingAlphaBlend().
		DisableDepthTest().
		SetColorAttachmentFormat(colorFormat).
		SetPushConstants(overlayPushConstantSize, metadata.ShaderStageVertex)

	layout, err := rc.CreatePipelineLayout([]vk.DescriptorSetLayout{setLayout}, overlayPushConstantSize, builder.PushConstantStages)
	if err != nil {
		rc.DestroyDescriptorSetLayout(setLayout)
		op.destroy()
		return nil, err
	}
	op.pipeline = pipeline.NewPipeline[vk.Pipeline]("overlay", layout)
	if err := vr.pipelines.RegisterGraphicsPipeline(op.pipeline, builder); err != nil {
		op.destroy()
		return nil, err
	}
	return op, nil
}

func (op *overlayPass) stats(f *frame.Frame) overlay.Stats {
	vr := op.vr
	extent := vr.context.Swapchain.Extent
	return overlay.Stats{
		FPS:         vr.stats.FPS,
		FrameTimeMS: vr.stats.FrameTimeMS,
		Frame:       f.Number,
		Extent:      [2]uint32{extent.Width, extent.Height},
		Pipelines:   vr.pipelines.Len(),
		Failed:      vr.pipelines.Failed(),
		VertexUsed:  vr.vertices.UsedElements(),
		IndexUsed:   vr.indices.UsedElements(),
	}
}

// upload records a copy of the panel pixels through the slot staging buffer.
// It reports false when the staging buffer has no room left this frame.
func (op *overlayPass) upload(fd *FrameData) (bool, error) {
	pixels := op.panel.Pixels()
	offset, granted := fd.Staging.RequestSpace(uint64(len(pixels)))
	if granted < uint64(len(pixels)) {
		return false, nil
	}
	if err := fd.Staging.Write(offset, pixels); err != nil {
		return false, err
	}

	color := vk.ImageAspectFlags(vk.ImageAspectColorBit)
	TransitionImage(fd.CommandBuffer, op.image.Handle, color, op.imageLayout, vk.ImageLayoutTransferDstOptimal)
	CopyBufferToImage(fd.CommandBuffer, fd.Staging.Buffer(), offset, op.image)
	TransitionImage(fd.CommandBuffer, op.image.Handle, color, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal)
	op.imageLayout = vk.ImageLayoutShaderReadOnlyOptimal
	return true, nil
}

func (op *overlayPass) record(f *frame.Frame) error {
	vr := op.vr
	fd := vr.frames[f.Slot]
	cb := fd.CommandBuffer

	if op.panel.Update(op.stats(f).Lines()) {
		op.dirty = true
	}
	native := op.pipeline.GetPipeline()
	if native == nil {
		return nil
	}
	if op.dirty {
		uploaded, err := op.upload(fd)
		if err != nil {
			return errors.Wrap(err, "failed to upload overlay")
		}
		op.dirty = !uploaded
	}
	if op.imageLayout != vk.ImageLayoutShaderReadOnlyOptimal {
		return nil
	}

	layout := op.pipeline.GetLayout()
	set, err := fd.Descriptors.Allocate(layout.SetLayouts[0])
	if err != nil {
		return errors.Wrap(err, "overlay")
	}
	var writer DescriptorWriter
	if err := writer.WriteImage(0, op.image.View, op.sampler, metadata.ImageLayoutShaderReadOnly, metadata.DescriptorTypeCombinedImageSampler); err != nil {
		return err
	}
	allocator.UpdateSet(vr.context, &writer, set)

	swapchain := vr.context.Swapchain
	w, h := op.panel.Size()
	transform := overlay.QuadTransform(swapchain.Extent.Width, swapchain.Extent.Height, overlayMargin, overlayMargin, float32(w), float32(h))
	push, err := overlayPushConstants(transform)
	if err != nil {
		return err
	}

	renderpass, err := vr.context.Renderpass(swapchain.ImageFormat.Format, vk.FormatUndefined, false)
	if err != nil {
		return err
	}
	renderpass.RenderpassBegin(cb, vr.presentFramebuffers[f.Image])
	BindPipeline(cb, native, swapchain.Extent)
	vk.CmdBindDescriptorSets(cb.Handle, vk.PipelineBindPointGraphics, layout.Handle, 0, 1, []vk.DescriptorSet{set}, 0, nil)
	vk.CmdPushConstants(cb.Handle, layout.Handle, layout.PushStages, 0, uint32(len(push)), unsafe.Pointer(&push[0]))
	// Two triangles generated from gl_VertexIndex.
	vk.CmdDraw(cb.Handle, 6, 1, 0, 0)
	renderpass.RenderpassEnd(cb)
	return nil
}

// destroy releases the overlay resources. The pipeline object itself belongs
// to the manager.
// overlayPushConstants encodes the panel transform in the vertex shader layout.
func overlayPushConstants(transform mgl32.Mat4) ([]byte, error) {
	push, err := binary.Append(make([]byte, 0, overlayPushConstantSize), binary.LittleEndian, transform)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode overlay transform")
	}
	if len(push) != overlayPushConstantSize {
		return nil, errors.Newf("overlay transform is %d bytes, want %d", len(push), overlayPushConstantSize)
	}
	return push, nil
}

func (op *overlayPass) destroy() {
	rc := op.vr.context
	if op.pipeline != nil {
		op.vr.pipelines.UnregisterGraphicsPipeline(op.pipeline)
		rc.DestroyPipelineLayout(op.pipeline.GetLayout())
		op.pipeline = nil
	}
	if op.sampler != nil {
		rc.DestroySampler(op.sampler)
		op.sampler = nil
	}
	if op.image != nil {
		op.image.ImageDestroy(rc)
		op.image = nil
	}
}
