package vulkan

import (
	"context"
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/allocator"
	"github.com/spaghettifunk/prism/engine/renderer/frame"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/pipeline"
)

type SharedBuffer = allocator.DynamicBuffer[*VulkanBuffer]

type VulkanRenderer struct {
	config  *core.Config
	window  Window
	context *RendererContext

	frames       [metadata.FrameOverlap]*FrameData
	frameContext *frame.FrameContext

	// Fixed resolution target every mesh pass draws into.
	drawImage       *VulkanImage
	depthImage      *VulkanImage
	drawFramebuffer *VulkanFramebuffer
	drawExtent      vk.Extent2D

	// One per swapchain image, used by the overlay passes.
	presentFramebuffers []*VulkanFramebuffer

	vertices     *SharedBuffer
	indices      *SharedBuffer
	drawCommands *SharedBuffer
	materials    *SharedBuffer

	pipelines     *PipelineManager
	meshPipelines []*GraphicsPipeline
	geometries    []*Geometry

	overlay *overlayPass
	stats   metadata.RenderPacket
}

func New(window Window, config *core.Config) *VulkanRenderer {
	return &VulkanRenderer{
		config:  config,
		window:  window,
		context: NewRendererContext(),
	}
}

// Initialize brings the device up and creates every renderer wide resource.
// Any failure here is fatal to the application.
func (vr *VulkanRenderer) Initialize(ctx context.Context) error {
	cfg := vr.config
	if err := vr.context.Initialize(vr.window, cfg.Application.Name, cfg.Renderer.Validation); err != nil {
		return err
	}

	width, height := vr.window.FramebufferSize()
	swapchain, err := SwapchainCreate(vr.context, width, height, cfg.Renderer.VSync)
	if err != nil {
		return err
	}
	vr.context.Swapchain = swapchain

	for i := range vr.frames {
		if vr.frames[i], err = FrameDataCreate(vr.context); err != nil {
			return errors.Wrapf(err, "failed to create frame slot %d", i)
		}
	}
	core.LogDebug("%d frame slots created", len(vr.frames))

	if err := vr.createDrawTarget(); err != nil {
		return err
	}
	if err := vr.createPresentFramebuffers(); err != nil {
		return err
	}
	vr.updateDrawExtent()

	if err := vr.createSharedBuffers(); err != nil {
		return err
	}

	options := []pipeline.ManagerOption{
		pipeline.WithContext(ctx),
		pipeline.WithReloadInterval(cfg.Pipelines.ReloadInterval.Duration),
	}
	if cfg.Pipelines.Watch {
		options = append(options, pipeline.WithFileWatcher())
	}
	compiler := pipeline.NewShaderCompiler(cfg.Pipelines.Compiler, cfg.Pipelines.CompileTimeout.Duration)
	if vr.pipelines, err = pipeline.NewManager(vr.context, compiler, options...); err != nil {
		return err
	}
	if err := vr.createMeshPipelines(); err != nil {
		return err
	}

	vr.frameContext = frame.NewFrameContext(vr, vr.window,
		frame.WithFenceTimeout(cfg.Renderer.FenceTimeout.Duration),
		frame.WithMaxFenceTimeouts(cfg.Renderer.MaxFenceTimeouts))
	vr.frameContext.AddRecorder(vr.recordMeshes)
	vr.frameContext.SetComposer(vr.compose)

	if cfg.Renderer.Overlay {
		if vr.overlay, err = newOverlayPass(vr); err != nil {
			return err
		}
		vr.frameContext.AddOverlay(vr.overlay.record)
	}

	core.LogInfo("Vulkan renderer initialized successfully.")
	return nil
}

func (vr *VulkanRenderer) createDrawTarget() error {
	width, height := vr.config.Renderer.DrawWidth, vr.config.Renderer.DrawHeight
	var err error
	vr.drawImage, err = ImageCreate(vr.context, width, height, drawImageFormat,
		vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit|vk.ImageUsageTransferSrcBit|vk.ImageUsageTransferDstBit),
		vk.ImageAspectFlags(vk.ImageAspectColorBit))
	if err != nil {
		return errors.Wrap(err, "failed to create draw image")
	}
	vr.depthImage, err = ImageCreate(vr.context, width, height, depthImageFormat,
		vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
		vk.ImageAspectFlags(vk.ImageAspectDepthBit))
	if err != nil {
		return errors.Wrap(err, "failed to create depth image")
	}

	renderpass, err := vr.context.Renderpass(drawImageFormat, depthImageFormat, true)
	if err != nil {
		return err
	}
	vr.drawFramebuffer, err = FramebufferCreate(vr.context, renderpass, width, height, vr.drawImage.View, vr.depthImage.View)
	return err
}

func (vr *VulkanRenderer) createPresentFramebuffers() error {
	vr.destroyPresentFramebuffers()

	swapchain := vr.context.Swapchain
	renderpass, err := vr.context.Renderpass(swapchain.ImageFormat.Format, vk.FormatUndefined, false)
	if err != nil {
		return err
	}
	vr.presentFramebuffers = make([]*VulkanFramebuffer, 0, len(swapchain.Views))
	for _, view := range swapchain.Views {
		fb, err := FramebufferCreate(vr.context, renderpass, swapchain.Extent.Width, swapchain.Extent.Height, view)
		if err != nil {
			return err
		}
		vr.presentFramebuffers = append(vr.presentFramebuffers, fb)
	}
	return nil
}

func (vr *VulkanRenderer) destroyPresentFramebuffers() {
	for _, fb := range vr.presentFramebuffers {
		fb.Destroy(vr.context)
	}
	vr.presentFramebuffers = nil
}

// updateDrawExtent renders at most the draw image size and never more than
// the window shows.
func (vr *VulkanRenderer) updateDrawExtent() {
	vr.drawExtent = clampDrawExtent(vr.context.Swapchain.Extent, vr.drawImage.Width, vr.drawImage.Height)
}

func clampDrawExtent(swapchain vk.Extent2D, width, height uint32) vk.Extent2D {
	return vk.Extent2D{
		Width:  min(swapchain.Width, width),
		Height: min(swapchain.Height, height),
	}
}

func (vr *VulkanRenderer) createSharedBuffers() error {
	deviceLocal := vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	hostVisible := vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)

	buffers := []struct {
		target   **SharedBuffer
		name     string
		size     uint64
		count    uint32
		usage    vk.BufferUsageFlagBits
		memory   vk.MemoryPropertyFlags
		hostView bool
	}{
		{&vr.vertices, "vertex", vertexSize, metadata.VertexBufferCapacity, vk.BufferUsageStorageBufferBit | vk.BufferUsageTransferDstBit, deviceLocal, false},
		{&vr.indices, "index", indexSize, metadata.IndexBufferCapacity, vk.BufferUsageIndexBufferBit | vk.BufferUsageTransferDstBit, deviceLocal, false},
		{&vr.drawCommands, "draw command", drawCommandSize, metadata.DrawCommandBufferCapacity, vk.BufferUsageIndirectBufferBit, hostVisible, true},
		{&vr.materials, "material", materialSize, metadata.MaterialSlotCount, vk.BufferUsageStorageBufferBit, hostVisible, true},
	}
	for _, b := range buffers {
		buffer, err := BufferCreate(vr.context, b.size*uint64(b.count), vk.BufferUsageFlags(b.usage), b.memory, b.hostView)
		if err != nil {
			return errors.Wrapf(err, "failed to create %s buffer", b.name)
		}
		*b.target = allocator.NewDynamicBuffer(buffer, b.size, b.count)
		core.LogDebug("%s buffer: %d elements of %d bytes", b.name, b.count, b.size)
	}
	return nil
}

// meshSetLayout describes set 0 of every mesh pipeline: the vertex buffer
// pulled by gl_VertexIndex and the material table.
func (vr *VulkanRenderer) meshSetLayout() (vk.DescriptorSetLayout, error) {
	var b allocator.DescriptorLayoutBuilder
	b.AddBinding(0, metadata.DescriptorTypeStorageBuffer, 1).
		AddBinding(1, metadata.DescriptorTypeStorageBuffer, 1)
	return allocator.BuildLayout(vr.context, &b, metadata.ShaderStageAllGraphics)
}

func (vr *VulkanRenderer) createMeshPipelines() error {
	for _, cfg := range vr.config.Pipelines.Graphics {
		builder, err := pipeline.BuilderFromConfig(cfg, metadataFormat(drawImageFormat), metadataFormat(depthImageFormat))
		if err != nil {
			return err
		}
		// The mesh pass always carries a depth attachment.
		builder.SetDepthFormat(metadataFormat(depthImageFormat)).SetPushConstantSize(meshPushConstantSize)

		setLayout, err := vr.meshSetLayout()
		if err != nil {
			return err
		}
		layout, err := vr.context.CreatePipelineLayout([]vk.DescriptorSetLayout{setLayout}, meshPushConstantSize, builder.PushConstantStages)
		if err != nil {
			vr.context.DestroyDescriptorSetLayout(setLayout)
			return err
		}
		p := pipeline.NewPipeline[vk.Pipeline](cfg.Name, layout)
		if err := vr.pipelines.RegisterGraphicsPipeline(p, builder); err != nil {
			vr.context.DestroyPipelineLayout(layout)
			return err
		}
		vr.meshPipelines = append(vr.meshPipelines, p)
	}
	core.LogInfo("%d mesh pipelines registered", len(vr.meshPipelines))
	return nil
}

// MeshPipeline looks a configured pipeline up by name, the first one when
// name is empty.
func (vr *VulkanRenderer) MeshPipeline(name string) (*GraphicsPipeline, error) {
	if len(vr.meshPipelines) == 0 {
		return nil, errors.New("no mesh pipelines configured")
	}
	if name == "" {
		return vr.meshPipelines[0], nil
	}
	for _, p := range vr.meshPipelines {
		if p.Name() == name {
			return p, nil
		}
	}
	return nil, errors.Newf("no mesh pipeline named %q", name)
}

func (vr *VulkanRenderer) Pipelines() *PipelineManager {
	return vr.pipelines
}

func (vr *VulkanRenderer) Resized(width, height uint32) {
	if vr.frameContext != nil {
		vr.frameContext.Resized(width, height)
	}
}

// DrawFrame ticks the pipeline reloader and renders one frame. It reports
// false when the frame was skipped.
func (vr *VulkanRenderer) DrawFrame(packet *metadata.RenderPacket) (bool, error) {
	vr.stats = *packet
	if err := vr.pipelines.Tick(packet.DeltaTime); err != nil {
		return false, err
	}
	return vr.frameContext.Draw()
}

func (vr *VulkanRenderer) recordMeshes(f *frame.Frame) error {
	fd := vr.frames[f.Slot]
	cb := fd.CommandBuffer

	renderpass, err := vr.context.Renderpass(drawImageFormat, depthImageFormat, true)
	if err != nil {
		return err
	}
	renderpass.RenderpassBegin(cb, vr.drawFramebuffer)
	defer renderpass.RenderpassEnd(cb)

	for _, p := range vr.meshPipelines {
		native := p.GetPipeline()
		if native == nil {
			continue
		}
		layout := p.GetLayout()

		set, err := fd.Descriptors.Allocate(layout.SetLayouts[0])
		if err != nil {
			return errors.Wrapf(err, "pipeline %s", p.Name())
		}
		var writer DescriptorWriter
		if err := writer.WriteBuffer(0, vr.vertices.Buffer(), vr.vertices.Buffer().Size, 0, metadata.DescriptorTypeStorageBuffer); err != nil {
			return err
		}
		if err := writer.WriteBuffer(1, vr.materials.Buffer(), vr.materials.Buffer().Size, 0, metadata.DescriptorTypeStorageBuffer); err != nil {
			return err
		}
		allocator.UpdateSet(vr.context, &writer, set)

		BindPipeline(cb, native, vr.drawExtent)
		vk.CmdBindDescriptorSets(cb.Handle, vk.PipelineBindPointGraphics, layout.Handle, 0, 1, []vk.DescriptorSet{set}, 0, nil)
		vk.CmdBindIndexBuffer(cb.Handle, vr.indices.Buffer().Handle, 0, vk.IndexTypeUint32)

		for _, g := range vr.geometries {
			if g.pipeline != p {
				continue
			}
			push := meshPushConstants(g)
			vk.CmdPushConstants(cb.Handle, layout.Handle, layout.PushStages, 0, uint32(len(push)), unsafe.Pointer(&push[0]))
			vk.CmdDrawIndexedIndirect(cb.Handle, vr.drawCommands.Buffer().Handle,
				vk.DeviceSize(vr.drawCommands.ByteOffset(g.DrawSlot)), 1, drawCommandSize)
		}
	}
	return nil
}

// compose copies the draw target into the swapchain image and leaves the
// latter ready for the overlay passes.
func (vr *VulkanRenderer) compose(f *frame.Frame) error {
	cb := vr.frames[f.Slot].CommandBuffer
	swapchain := vr.context.Swapchain
	image := swapchain.Images[f.Image]
	color := vk.ImageAspectFlags(vk.ImageAspectColorBit)

	TransitionImage(cb, vr.drawImage.Handle, color, vk.ImageLayoutColorAttachmentOptimal, vk.ImageLayoutTransferSrcOptimal)
	TransitionImage(cb, image, color, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal)
	BlitImage(cb, vr.drawImage.Handle, vr.drawExtent, image, swapchain.Extent)
	TransitionImage(cb, image, color, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutColorAttachmentOptimal)
	return nil
}

// Shutdown waits for the device and releases everything in reverse creation
// order.
func (vr *VulkanRenderer) Shutdown() error {
	if vr.context.Device == nil {
		return nil
	}
	if err := vr.context.WaitIdle(); err != nil {
		core.LogError("failed to wait for device idle on shutdown: %s", err)
	}

	if vr.overlay != nil {
		vr.overlay.destroy()
		vr.overlay = nil
	}
	if vr.pipelines != nil {
		vr.pipelines.Destroy()
	}
	for _, p := range vr.meshPipelines {
		vr.context.DestroyPipelineLayout(p.GetLayout())
	}
	vr.meshPipelines = nil
	vr.geometries = nil

	for _, b := range []*SharedBuffer{vr.vertices, vr.indices, vr.drawCommands, vr.materials} {
		if b != nil {
			b.Destroy()
		}
	}

	vr.destroyPresentFramebuffers()
	if vr.drawFramebuffer != nil {
		vr.drawFramebuffer.Destroy(vr.context)
	}
	if vr.depthImage != nil {
		vr.depthImage.ImageDestroy(vr.context)
	}
	if vr.drawImage != nil {
		vr.drawImage.ImageDestroy(vr.context)
	}

	for i, fd := range vr.frames {
		if fd != nil {
			fd.Destroy(vr.context)
			vr.frames[i] = nil
		}
	}
	if vr.context.Swapchain != nil {
		vr.context.Swapchain.Destroy(vr.context)
		vr.context.Swapchain = nil
	}

	vr.context.Shutdown()
	core.LogInfo("Vulkan renderer shut down.")
	return nil
}
