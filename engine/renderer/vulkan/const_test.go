package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

func TestFormatRoundTrip(t *testing.T) {
	formats := []metadata.Format{
		metadata.FormatR8G8B8A8Unorm,
		metadata.FormatB8G8R8A8Unorm,
		metadata.FormatR16G16B16A16Sfloat,
		metadata.FormatD32Sfloat,
		metadata.FormatB8G8R8A8Srgb,
		metadata.FormatR8G8B8A8Srgb,
	}
	for _, f := range formats {
		native := vkFormat(f)
		if native == vk.FormatUndefined {
			t.Errorf("vkFormat(%v) is undefined", f)
			continue
		}
		if got := metadataFormat(native); got != f {
			t.Errorf("metadataFormat(vkFormat(%v)) = %v", f, got)
		}
	}

	if got := vkFormat(metadata.FormatUndefined); got != vk.FormatUndefined {
		t.Errorf("vkFormat(undefined) = %v", got)
	}
	if got := metadataFormat(vk.FormatR8Unorm); got != metadata.FormatUndefined {
		t.Errorf("unmapped native format = %v, want undefined", got)
	}
}

func TestEnumTranslation(t *testing.T) {
	t.Run("topology", func(t *testing.T) {
		tests := []struct {
			in   metadata.PrimitiveTopology
			want vk.PrimitiveTopology
		}{
			{metadata.PrimitiveTopologyTriangleList, vk.PrimitiveTopologyTriangleList},
			{metadata.PrimitiveTopologyTriangleStrip, vk.PrimitiveTopologyTriangleStrip},
			{metadata.PrimitiveTopologyLineList, vk.PrimitiveTopologyLineList},
			{metadata.PrimitiveTopologyPointList, vk.PrimitiveTopologyPointList},
			{metadata.PrimitiveTopology(200), vk.PrimitiveTopologyTriangleList},
		}
		for _, tt := range tests {
			if got := vkTopology(tt.in); got != tt.want {
				t.Errorf("vkTopology(%v) = %v, want %v", tt.in, got, tt.want)
			}
		}
	})

	t.Run("cull mode", func(t *testing.T) {
		tests := []struct {
			in   metadata.FaceCullMode
			want vk.CullModeFlags
		}{
			{metadata.FaceCullModeNone, vk.CullModeFlags(vk.CullModeNone)},
			{metadata.FaceCullModeFront, vk.CullModeFlags(vk.CullModeFrontBit)},
			{metadata.FaceCullModeBack, vk.CullModeFlags(vk.CullModeBackBit)},
			{metadata.FaceCullModeFrontAndBack, vk.CullModeFlags(vk.CullModeFrontAndBack)},
		}
		for _, tt := range tests {
			if got := vkCullMode(tt.in); got != tt.want {
				t.Errorf("vkCullMode(%v) = %v, want %v", tt.in, got, tt.want)
			}
		}
	})

	t.Run("compare op", func(t *testing.T) {
		tests := []struct {
			in   metadata.CompareOp
			want vk.CompareOp
		}{
			{metadata.CompareOpNever, vk.CompareOpNever},
			{metadata.CompareOpLess, vk.CompareOpLess},
			{metadata.CompareOpLessOrEqual, vk.CompareOpLessOrEqual},
			{metadata.CompareOpGreaterOrEqual, vk.CompareOpGreaterOrEqual},
			{metadata.CompareOpAlways, vk.CompareOpAlways},
		}
		for _, tt := range tests {
			if got := vkCompareOp(tt.in); got != tt.want {
				t.Errorf("vkCompareOp(%v) = %v, want %v", tt.in, got, tt.want)
			}
		}
	})

	t.Run("descriptor type", func(t *testing.T) {
		tests := []struct {
			in   metadata.DescriptorType
			want vk.DescriptorType
		}{
			{metadata.DescriptorTypeSampler, vk.DescriptorTypeSampler},
			{metadata.DescriptorTypeCombinedImageSampler, vk.DescriptorTypeCombinedImageSampler},
			{metadata.DescriptorTypeSampledImage, vk.DescriptorTypeSampledImage},
			{metadata.DescriptorTypeStorageImage, vk.DescriptorTypeStorageImage},
			{metadata.DescriptorTypeUniformBuffer, vk.DescriptorTypeUniformBuffer},
			{metadata.DescriptorTypeStorageBuffer, vk.DescriptorTypeStorageBuffer},
		}
		for _, tt := range tests {
			if got := vkDescriptorType(tt.in); got != tt.want {
				t.Errorf("vkDescriptorType(%v) = %v, want %v", tt.in, got, tt.want)
			}
		}
	})

	t.Run("shader stages", func(t *testing.T) {
		vertex := vk.ShaderStageFlags(vk.ShaderStageVertexBit)
		fragment := vk.ShaderStageFlags(vk.ShaderStageFragmentBit)
		tests := []struct {
			in   metadata.ShaderStageFlags
			want vk.ShaderStageFlags
		}{
			{0, 0},
			{metadata.ShaderStageVertex, vertex},
			{metadata.ShaderStageFragment, fragment},
			{metadata.ShaderStageAllGraphics, vertex | fragment},
			{metadata.ShaderStageCompute, vk.ShaderStageFlags(vk.ShaderStageComputeBit)},
		}
		for _, tt := range tests {
			if got := vkShaderStages(tt.in); got != tt.want {
				t.Errorf("vkShaderStages(%v) = %v, want %v", tt.in, got, tt.want)
			}
		}
	})
}

func TestBlendAttachment(t *testing.T) {
	tests := []struct {
		name    string
		mode    metadata.BlendMode
		enabled bool
		src     vk.BlendFactor
		dst     vk.BlendFactor
	}{
		{"none", metadata.BlendModeNone, false, 0, 0},
		{"additive", metadata.BlendModeAdditive, true, vk.BlendFactorSrcAlpha, vk.BlendFactorOne},
		{"alpha", metadata.BlendModeAlpha, true, vk.BlendFactorSrcAlpha, vk.BlendFactorOneMinusSrcAlpha},
	}
	allChannels := vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit |
		vk.ColorComponentBBit | vk.ColorComponentABit)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := vkBlendAttachment(tt.mode)
			if state.ColorWriteMask != allChannels {
				t.Errorf("write mask = %v, want all channels", state.ColorWriteMask)
			}
			if (state.BlendEnable == vk.True) != tt.enabled {
				t.Fatalf("blend enable = %v, want %v", state.BlendEnable, tt.enabled)
			}
			if !tt.enabled {
				return
			}
			if state.SrcColorBlendFactor != tt.src || state.DstColorBlendFactor != tt.dst {
				t.Errorf("color factors = %v/%v, want %v/%v",
					state.SrcColorBlendFactor, state.DstColorBlendFactor, tt.src, tt.dst)
			}
			if state.ColorBlendOp != vk.BlendOpAdd || state.AlphaBlendOp != vk.BlendOpAdd {
				t.Errorf("blend ops = %v/%v, want add", state.ColorBlendOp, state.AlphaBlendOp)
			}
		})
	}
}

func TestClampDrawExtent(t *testing.T) {
	tests := []struct {
		name      string
		swapchain vk.Extent2D
		want      vk.Extent2D
	}{
		{"smaller window", vk.Extent2D{Width: 800, Height: 600}, vk.Extent2D{Width: 800, Height: 600}},
		{"larger window", vk.Extent2D{Width: 3840, Height: 2160}, vk.Extent2D{Width: 1920, Height: 1080}},
		{"wider window", vk.Extent2D{Width: 2560, Height: 720}, vk.Extent2D{Width: 1920, Height: 720}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := clampDrawExtent(tt.swapchain, 1920, 1080)
			if got.Width != tt.want.Width || got.Height != tt.want.Height {
				t.Errorf("clampDrawExtent() = %dx%d, want %dx%d", got.Width, got.Height, tt.want.Width, tt.want.Height)
			}
		})
	}
}
