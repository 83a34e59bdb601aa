package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/pipeline"
)

// PipelineLayout is created once per pipeline and survives every rebuild of
// the pipeline object.
type PipelineLayout struct {
	Handle     vk.PipelineLayout
	SetLayouts []vk.DescriptorSetLayout
	// PushStages are the stages the push constant range is visible to.
	PushStages vk.ShaderStageFlags
}

type (
	GraphicsPipeline = pipeline.Pipeline[vk.Pipeline, *PipelineLayout]
	PipelineManager  = pipeline.Manager[vk.Pipeline, *PipelineLayout]
)

var _ pipeline.Device[vk.Pipeline, *PipelineLayout] = (*RendererContext)(nil)

func (rc *RendererContext) CreatePipelineLayout(setLayouts []vk.DescriptorSetLayout, pushConstantSize uint32, pushStages metadata.ShaderStageFlags) (*PipelineLayout, error) {
	layout := &PipelineLayout{
		SetLayouts: append([]vk.DescriptorSetLayout(nil), setLayouts...),
		PushStages: vkShaderStages(pushStages),
	}

	pipelineLayoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(layout.SetLayouts)),
		PSetLayouts:    layout.SetLayouts,
	}
	if pushConstantSize > 0 {
		pipelineLayoutCreateInfo.PushConstantRangeCount = 1
		pipelineLayoutCreateInfo.PPushConstantRanges = []vk.PushConstantRange{{
			StageFlags: layout.PushStages,
			Offset:     0,
			Size:       pushConstantSize,
		}}
	}

	if err := rc.lockPool.SafeCall(PipelineManagement, func() error {
		if res := vk.CreatePipelineLayout(rc.Device.LogicalDevice, &pipelineLayoutCreateInfo, rc.Allocator, &layout.Handle); res != vk.Success {
			return VulkanError(res, "vkCreatePipelineLayout")
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return layout, nil
}

// DestroyPipelineLayout releases the layout together with its set layouts.
func (rc *RendererContext) DestroyPipelineLayout(layout *PipelineLayout) {
	if layout == nil {
		return
	}
	_ = rc.lockPool.SafeCall(PipelineManagement, func() error {
		if layout.Handle != nil {
			vk.DestroyPipelineLayout(rc.Device.LogicalDevice, layout.Handle, rc.Allocator)
			layout.Handle = nil
		}
		return nil
	})
	for _, set := range layout.SetLayouts {
		rc.DestroyDescriptorSetLayout(set)
	}
	layout.SetLayouts = nil
}

// BuildGraphicsPipeline creates a pipeline for the state recorded in builder.
// Viewport and scissor are dynamic, vertices are pulled from storage buffers
// so there is no vertex input state.
func (rc *RendererContext) BuildGraphicsPipeline(builder *pipeline.GraphicsPipelineBuilder, layout *PipelineLayout, vertex, fragment []uint32) (vk.Pipeline, error) {
	if layout == nil || layout.Handle == nil {
		return nil, errors.Newf("pipeline %s has no layout", builder.Name)
	}
	colorFormat := vkFormat(builder.ColorFormat)
	depthFormat := vkFormat(builder.DepthFormat)
	renderpass, err := rc.Renderpass(colorFormat, depthFormat, true)
	if err != nil {
		return nil, err
	}

	vertexStage, err := NewShaderModule(rc, vertex, vk.ShaderStageVertexBit)
	if err != nil {
		return nil, errors.Wrapf(err, "vertex stage of %s", builder.Name)
	}
	defer vertexStage.Destroy(rc)
	fragmentStage, err := NewShaderModule(rc, fragment, vk.ShaderStageFragmentBit)
	if err != nil {
		return nil, errors.Wrapf(err, "fragment stage of %s", builder.Name)
	}
	defer fragmentStage.Destroy(rc)

	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vkTopology(builder.Topology),
		PrimitiveRestartEnable: vk.False,
	}

	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vkPolygonMode(builder.Polygon),
		LineWidth:               builder.LineWidth,
		CullMode:                vkCullMode(builder.Cull),
		FrontFace:               vkFrontFace(builder.FrontFace),
		DepthBiasEnable:         vk.False,
	}

	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples:  vk.SampleCount1Bit,
		SampleShadingEnable:   vk.False,
		MinSampleShading:      1.0,
		AlphaToCoverageEnable: vk.False,
		AlphaToOneEnable:      vk.False,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:                 vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:       vk.False,
		DepthWriteEnable:      vk.False,
		DepthCompareOp:        vk.CompareOpNever,
		DepthBoundsTestEnable: vk.False,
		StencilTestEnable:     vk.False,
		MinDepthBounds:        0.0,
		MaxDepthBounds:        1.0,
	}
	if builder.DepthTest {
		depthStencil.DepthTestEnable = vk.True
		depthStencil.DepthCompareOp = vkCompareOp(builder.DepthCompare)
		if builder.DepthWrite {
			depthStencil.DepthWriteEnable = vk.True
		}
	}

	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{vkBlendAttachment(builder.Blend)},
	}

	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicStateCreateInfo := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	stages := []vk.PipelineShaderStageCreateInfo{
		vertexStage.ShaderStageCreateInfo,
		fragmentStage.ShaderStageCreateInfo,
	}

	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizerCreateInfo,
		PMultisampleState:   &multisamplingCreateInfo,
		PColorBlendState:    &colorBlendStateCreateInfo,
		PDynamicState:       &dynamicStateCreateInfo,
		Layout:              layout.Handle,
		RenderPass:          renderpass.Handle,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}
	if depthFormat != vk.FormatUndefined {
		pipelineCreateInfo.PDepthStencilState = &depthStencil
	}

	pipelines := make([]vk.Pipeline, 1)
	if err := rc.lockPool.SafeCall(PipelineManagement, func() error {
		if res := vk.CreateGraphicsPipelines(rc.Device.LogicalDevice, vk.NullPipelineCache, 1, []vk.GraphicsPipelineCreateInfo{pipelineCreateInfo}, rc.Allocator, pipelines); res != vk.Success {
			return VulkanError(res, "vkCreateGraphicsPipelines")
		}
		return nil
	}); err != nil {
		return nil, errors.Wrapf(err, "pipeline %s", builder.Name)
	}

	core.LogDebug("Graphics pipeline %s created.", builder.Name)
	return pipelines[0], nil
}

func (rc *RendererContext) DestroyPipeline(p vk.Pipeline) {
	if p == nil {
		return
	}
	_ = rc.lockPool.SafeCall(PipelineManagement, func() error {
		vk.DestroyPipeline(rc.Device.LogicalDevice, p, rc.Allocator)
		return nil
	})
}

// BindPipeline binds p together with its dynamic viewport and scissor.
func BindPipeline(cb *VulkanCommandBuffer, p vk.Pipeline, extent vk.Extent2D) {
	vk.CmdBindPipeline(cb.Handle, vk.PipelineBindPointGraphics, p)
	viewport := vk.Viewport{
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0.0,
		MaxDepth: 1.0,
	}
	scissor := vk.Rect2D{Extent: extent}
	vk.CmdSetViewport(cb.Handle, 0, 1, []vk.Viewport{viewport})
	vk.CmdSetScissor(cb.Handle, 0, 1, []vk.Rect2D{scissor})
}
