package metadata

import (
	"strings"

	"github.com/cockroachdb/errors"
)

type PrimitiveTopology uint8

const (
	PrimitiveTopologyTriangleList PrimitiveTopology = iota
	PrimitiveTopologyTriangleStrip
	PrimitiveTopologyLineList
	PrimitiveTopologyPointList
)

type PolygonMode uint8

const (
	PolygonModeFill PolygonMode = iota
	PolygonModeLine
	PolygonModePoint
)

type FaceCullMode uint8

const (
	FaceCullModeNone FaceCullMode = iota
	FaceCullModeFront
	FaceCullModeBack
	FaceCullModeFrontAndBack
)

type FrontFace uint8

const (
	FrontFaceClockwise FrontFace = iota
	FrontFaceCounterClockwise
)

type BlendMode uint8

const (
	BlendModeNone BlendMode = iota
	BlendModeAdditive
	BlendModeAlpha
)

type CompareOp uint8

const (
	CompareOpNever CompareOp = iota
	CompareOpLess
	CompareOpLessOrEqual
	CompareOpGreaterOrEqual
	CompareOpAlways
)

// Format names the attachment formats the core renders to.
type Format uint8

const (
	FormatUndefined Format = iota
	FormatR8G8B8A8Unorm
	FormatB8G8R8A8Unorm
	FormatR16G16B16A16Sfloat
	FormatD32Sfloat
	FormatB8G8R8A8Srgb
	FormatR8G8B8A8Srgb
)

type DescriptorType uint8

const (
	DescriptorTypeSampler DescriptorType = iota
	DescriptorTypeCombinedImageSampler
	DescriptorTypeSampledImage
	DescriptorTypeStorageImage
	DescriptorTypeUniformBuffer
	DescriptorTypeStorageBuffer
)

type ShaderStageFlags uint8

const (
	ShaderStageVertex ShaderStageFlags = 1 << iota
	ShaderStageFragment
	ShaderStageCompute
)

const ShaderStageAllGraphics = ShaderStageVertex | ShaderStageFragment

func ParseTopology(s string) (PrimitiveTopology, error) {
	switch normalize(s) {
	case "", "triangle_list":
		return PrimitiveTopologyTriangleList, nil
	case "triangle_strip":
		return PrimitiveTopologyTriangleStrip, nil
	case "line_list":
		return PrimitiveTopologyLineList, nil
	case "point_list":
		return PrimitiveTopologyPointList, nil
	}
	return 0, errors.Newf("unknown topology %q", s)
}

func ParsePolygonMode(s string) (PolygonMode, error) {
	switch normalize(s) {
	case "", "fill":
		return PolygonModeFill, nil
	case "line", "wireframe":
		return PolygonModeLine, nil
	case "point":
		return PolygonModePoint, nil
	}
	return 0, errors.Newf("unknown polygon mode %q", s)
}

func ParseCullMode(s string) (FaceCullMode, error) {
	switch normalize(s) {
	case "none":
		return FaceCullModeNone, nil
	case "front":
		return FaceCullModeFront, nil
	case "", "back":
		return FaceCullModeBack, nil
	case "front_and_back":
		return FaceCullModeFrontAndBack, nil
	}
	return 0, errors.Newf("unknown cull mode %q", s)
}

func ParseFrontFace(s string) (FrontFace, error) {
	switch normalize(s) {
	case "", "clockwise", "cw":
		return FrontFaceClockwise, nil
	case "counter_clockwise", "ccw":
		return FrontFaceCounterClockwise, nil
	}
	return 0, errors.Newf("unknown front face %q", s)
}

func ParseBlendMode(s string) (BlendMode, error) {
	switch normalize(s) {
	case "", "none":
		return BlendModeNone, nil
	case "additive":
		return BlendModeAdditive, nil
	case "alpha":
		return BlendModeAlpha, nil
	}
	return 0, errors.Newf("unknown blend mode %q", s)
}

func normalize(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
}

// ImageLayout is the layout an image is in while a descriptor references it.
type ImageLayout uint8

const (
	ImageLayoutShaderReadOnly ImageLayout = iota
	ImageLayoutGeneral
)

func (t DescriptorType) IsImage() bool {
	switch t {
	case DescriptorTypeSampler, DescriptorTypeCombinedImageSampler, DescriptorTypeSampledImage, DescriptorTypeStorageImage:
		return true
	}
	return false
}
