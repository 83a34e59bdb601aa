package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

const (
	// vec3 position, vec3 color.
	vertexSize = 24
	indexSize  = 4
	// VkDrawIndexedIndirectCommand.
	drawCommandSize = 20
	// vec4 tint per material slot.
	materialSize = 16

	// mat4 transform, uint material and padding to 16 bytes.
	meshPushConstantSize = 80
	// mat4 quad transform.
	overlayPushConstantSize = 64

	drawImageFormat  = vk.FormatR16g16b16a16Sfloat
	depthImageFormat = vk.FormatD32Sfloat

	overlayWidth   = 256
	overlayHeight  = 112
	overlayPadding = 6
	// Descriptor sets handed out per frame slot before the first pool grows.
	frameDescriptorSets = 16
)

func vkFormat(f metadata.Format) vk.Format {
	switch f {
	case metadata.FormatR8G8B8A8Unorm:
		return vk.FormatR8g8b8a8Unorm
	case metadata.FormatB8G8R8A8Unorm:
		return vk.FormatB8g8r8a8Unorm
	case metadata.FormatR16G16B16A16Sfloat:
		return vk.FormatR16g16b16a16Sfloat
	case metadata.FormatD32Sfloat:
		return vk.FormatD32Sfloat
	case metadata.FormatB8G8R8A8Srgb:
		return vk.FormatB8g8r8a8Srgb
	case metadata.FormatR8G8B8A8Srgb:
		return vk.FormatR8g8b8a8Srgb
	}
	return vk.FormatUndefined
}

func metadataFormat(f vk.Format) metadata.Format {
	switch f {
	case vk.FormatR8g8b8a8Unorm:
		return metadata.FormatR8G8B8A8Unorm
	case vk.FormatB8g8r8a8Unorm:
		return metadata.FormatB8G8R8A8Unorm
	case vk.FormatR16g16b16a16Sfloat:
		return metadata.FormatR16G16B16A16Sfloat
	case vk.FormatD32Sfloat:
		return metadata.FormatD32Sfloat
	case vk.FormatB8g8r8a8Srgb:
		return metadata.FormatB8G8R8A8Srgb
	case vk.FormatR8g8b8a8Srgb:
		return metadata.FormatR8G8B8A8Srgb
	}
	return metadata.FormatUndefined
}

func vkTopology(t metadata.PrimitiveTopology) vk.PrimitiveTopology {
	switch t {
	case metadata.PrimitiveTopologyTriangleStrip:
		return vk.PrimitiveTopologyTriangleStrip
	case metadata.PrimitiveTopologyLineList:
		return vk.PrimitiveTopologyLineList
	case metadata.PrimitiveTopologyPointList:
		return vk.PrimitiveTopologyPointList
	}
	return vk.PrimitiveTopologyTriangleList
}

func vkPolygonMode(m metadata.PolygonMode) vk.PolygonMode {
	switch m {
	case metadata.PolygonModeLine:
		return vk.PolygonModeLine
	case metadata.PolygonModePoint:
		return vk.PolygonModePoint
	}
	return vk.PolygonModeFill
}

func vkCullMode(m metadata.FaceCullMode) vk.CullModeFlags {
	switch m {
	case metadata.FaceCullModeFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	case metadata.FaceCullModeBack:
		return vk.CullModeFlags(vk.CullModeBackBit)
	case metadata.FaceCullModeFrontAndBack:
		return vk.CullModeFlags(vk.CullModeFrontAndBack)
	}
	return vk.CullModeFlags(vk.CullModeNone)
}

func vkFrontFace(f metadata.FrontFace) vk.FrontFace {
	if f == metadata.FrontFaceCounterClockwise {
		return vk.FrontFaceCounterClockwise
	}
	return vk.FrontFaceClockwise
}

func vkCompareOp(op metadata.CompareOp) vk.CompareOp {
	switch op {
	case metadata.CompareOpLess:
		return vk.CompareOpLess
	case metadata.CompareOpLessOrEqual:
		return vk.CompareOpLessOrEqual
	case metadata.CompareOpGreaterOrEqual:
		return vk.CompareOpGreaterOrEqual
	case metadata.CompareOpAlways:
		return vk.CompareOpAlways
	}
	return vk.CompareOpNever
}

func vkDescriptorType(t metadata.DescriptorType) vk.DescriptorType {
	switch t {
	case metadata.DescriptorTypeSampler:
		return vk.DescriptorTypeSampler
	case metadata.DescriptorTypeCombinedImageSampler:
		return vk.DescriptorTypeCombinedImageSampler
	case metadata.DescriptorTypeSampledImage:
		return vk.DescriptorTypeSampledImage
	case metadata.DescriptorTypeStorageImage:
		return vk.DescriptorTypeStorageImage
	case metadata.DescriptorTypeUniformBuffer:
		return vk.DescriptorTypeUniformBuffer
	}
	return vk.DescriptorTypeStorageBuffer
}

func vkShaderStages(s metadata.ShaderStageFlags) vk.ShaderStageFlags {
	var out vk.ShaderStageFlags
	if s&metadata.ShaderStageVertex != 0 {
		out |= vk.ShaderStageFlags(vk.ShaderStageVertexBit)
	}
	if s&metadata.ShaderStageFragment != 0 {
		out |= vk.ShaderStageFlags(vk.ShaderStageFragmentBit)
	}
	if s&metadata.ShaderStageCompute != 0 {
		out |= vk.ShaderStageFlags(vk.ShaderStageComputeBit)
	}
	return out
}

func vkImageLayout(l metadata.ImageLayout) vk.ImageLayout {
	if l == metadata.ImageLayoutGeneral {
		return vk.ImageLayoutGeneral
	}
	return vk.ImageLayoutShaderReadOnlyOptimal
}

// vkBlendAttachment returns the color blend state of a blend mode writing all
// four channels.
func vkBlendAttachment(mode metadata.BlendMode) vk.PipelineColorBlendAttachmentState {
	state := vk.PipelineColorBlendAttachmentState{
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit |
			vk.ColorComponentBBit | vk.ColorComponentABit),
		BlendEnable: vk.False,
	}
	switch mode {
	case metadata.BlendModeAdditive:
		state.BlendEnable = vk.True
		state.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
		state.DstColorBlendFactor = vk.BlendFactorOne
	case metadata.BlendModeAlpha:
		state.BlendEnable = vk.True
		state.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
		state.DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
	default:
		return state
	}
	state.ColorBlendOp = vk.BlendOpAdd
	state.SrcAlphaBlendFactor = vk.BlendFactorOne
	state.DstAlphaBlendFactor = vk.BlendFactorZero
	state.AlphaBlendOp = vk.BlendOpAdd
	return state
}
