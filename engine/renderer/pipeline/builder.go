package pipeline

import (
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// GraphicsPipelineBuilder records everything needed to (re)build a graphics
// pipeline except the shader binaries, which are loaded on every build.
type GraphicsPipelineBuilder struct {
	Name           string
	VertexSource   string
	FragmentSource string

	Topology  metadata.PrimitiveTopology
	Polygon   metadata.PolygonMode
	LineWidth float32
	Cull      metadata.FaceCullMode
	FrontFace metadata.FrontFace
	Blend     metadata.BlendMode

	DepthTest    bool
	DepthWrite   bool
	DepthCompare metadata.CompareOp

	ColorFormat metadata.Format
	DepthFormat metadata.Format

	PushConstantSize   uint32
	PushConstantStages metadata.ShaderStageFlags

	// Samples is the rasterization sample count, only 1 is supported.
	Samples uint32
}

func NewGraphicsPipelineBuilder(name, vertexSource, fragmentSource string) *GraphicsPipelineBuilder {
	b := &GraphicsPipelineBuilder{
		Name:           name,
		VertexSource:   vertexSource,
		FragmentSource: fragmentSource,
	}
	return b.Clear()
}

// Clear resets the fixed function state, the shader sources are kept.
func (b *GraphicsPipelineBuilder) Clear() *GraphicsPipelineBuilder {
	b.Topology = metadata.PrimitiveTopologyTriangleList
	b.Polygon = metadata.PolygonModeFill
	b.LineWidth = 1.0
	b.Cull = metadata.FaceCullModeNone
	b.FrontFace = metadata.FrontFaceClockwise
	b.Blend = metadata.BlendModeNone
	b.DepthTest = false
	b.DepthWrite = false
	b.DepthCompare = metadata.CompareOpNever
	b.ColorFormat = metadata.FormatUndefined
	b.DepthFormat = metadata.FormatUndefined
	b.PushConstantSize = 0
	b.PushConstantStages = 0
	b.Samples = 1
	return b
}

func (b *GraphicsPipelineBuilder) SetShaders(vertexSource, fragmentSource string) *GraphicsPipelineBuilder {
	b.VertexSource = vertexSource
	b.FragmentSource = fragmentSource
	return b
}

func (b *GraphicsPipelineBuilder) SetInputTopology(topology metadata.PrimitiveTopology) *GraphicsPipelineBuilder {
	b.Topology = topology
	return b
}

func (b *GraphicsPipelineBuilder) SetPolygonMode(mode metadata.PolygonMode, lineWidth float32) *GraphicsPipelineBuilder {
	b.Polygon = mode
	b.LineWidth = lineWidth
	return b
}

func (b *GraphicsPipelineBuilder) SetCullMode(mode metadata.FaceCullMode, frontFace metadata.FrontFace) *GraphicsPipelineBuilder {
	b.Cull = mode
	b.FrontFace = frontFace
	return b
}

func (b *GraphicsPipelineBuilder) SetBlendMode(mode metadata.BlendMode) *GraphicsPipelineBuilder {
	b.Blend = mode
	return b
}

func (b *GraphicsPipelineBuilder) DisableBlending() *GraphicsPipelineBuilder {
	return b.SetBlendMode(metadata.BlendModeNone)
}

func (b *GraphicsPipelineBuilder) EnableBlendingAdditive() *GraphicsPipelineBuilder {
	return b.SetBlendMode(metadata.BlendModeAdditive)
}

func (b *GraphicsPipelineBuilder) EnableBlendingAlphaBlend() *GraphicsPipelineBuilder {
	return b.SetBlendMode(metadata.BlendModeAlpha)
}

func (b *GraphicsPipelineBuilder) SetMultisamplingNone() *GraphicsPipelineBuilder {
	b.Samples = 1
	return b
}

func (b *GraphicsPipelineBuilder) SetColorAttachmentFormat(format metadata.Format) *GraphicsPipelineBuilder {
	b.ColorFormat = format
	return b
}

func (b *GraphicsPipelineBuilder) SetDepthFormat(format metadata.Format) *GraphicsPipelineBuilder {
	b.DepthFormat = format
	return b
}

func (b *GraphicsPipelineBuilder) EnableDepthTest(write bool, op metadata.CompareOp) *GraphicsPipelineBuilder {
	b.DepthTest = true
	b.DepthWrite = write
	b.DepthCompare = op
	return b
}

func (b *GraphicsPipelineBuilder) DisableDepthTest() *GraphicsPipelineBuilder {
	b.DepthTest = false
	b.DepthWrite = false
	b.DepthCompare = metadata.CompareOpNever
	return b
}

func (b *GraphicsPipelineBuilder) SetPushConstants(size uint32, stages metadata.ShaderStageFlags) *GraphicsPipelineBuilder {
	b.PushConstantSize = size
	b.PushConstantStages = stages
	return b
}

// SetPushConstantSize declares a push constant block visible to the vertex and
// fragment stages.
func (b *GraphicsPipelineBuilder) SetPushConstantSize(size uint32) *GraphicsPipelineBuilder {
	return b.SetPushConstants(size, metadata.ShaderStageAllGraphics)
}

// Sources returns the vertex and fragment shader source paths.
// Sources lists the distinct shader sources of the pipeline. A WGSL module
// may carry both stages.
func (b *GraphicsPipelineBuilder) Sources() []string {
	if b.VertexSource == b.FragmentSource {
		return []string{b.VertexSource}
	}
	return []string{b.VertexSource, b.FragmentSource}
}

func (b *GraphicsPipelineBuilder) VertexSPIRVPath() string {
	return SPIRVPath(b.VertexSource)
}

func (b *GraphicsPipelineBuilder) FragmentSPIRVPath() string {
	return SPIRVPath(b.FragmentSource)
}

func (b *GraphicsPipelineBuilder) Validate() error {
	if b.VertexSource == "" || b.FragmentSource == "" {
		return errors.Newf("pipeline %q needs a vertex and a fragment shader", b.Name)
	}
	if b.ColorFormat == metadata.FormatUndefined {
		return errors.Newf("pipeline %q has no color attachment format", b.Name)
	}
	if b.DepthTest && b.DepthFormat == metadata.FormatUndefined {
		return errors.Newf("pipeline %q tests depth without a depth attachment", b.Name)
	}
	if b.Samples != 1 {
		return errors.Newf("pipeline %q asks for %d samples, only single sampling is supported", b.Name, b.Samples)
	}
	if b.PushConstantSize%4 != 0 {
		return errors.Newf("pipeline %q push constant size %d is not a multiple of 4", b.Name, b.PushConstantSize)
	}
	return nil
}

// BuilderFromConfig turns a [[pipelines.graphics]] entry into a builder that
// renders into attachments of the given formats.
func BuilderFromConfig(cfg core.GraphicsPipelineConfig, color, depth metadata.Format) (*GraphicsPipelineBuilder, error) {
	b := NewGraphicsPipelineBuilder(cfg.Name, cfg.Vertex, cfg.Fragment)

	topology, err := metadata.ParseTopology(cfg.Topology)
	if err != nil {
		return nil, errors.Wrapf(err, "pipeline %q", cfg.Name)
	}
	polygon, err := metadata.ParsePolygonMode(cfg.Polygon)
	if err != nil {
		return nil, errors.Wrapf(err, "pipeline %q", cfg.Name)
	}
	cull, err := metadata.ParseCullMode(cfg.Cull)
	if err != nil {
		return nil, errors.Wrapf(err, "pipeline %q", cfg.Name)
	}
	front, err := metadata.ParseFrontFace(cfg.FrontFace)
	if err != nil {
		return nil, errors.Wrapf(err, "pipeline %q", cfg.Name)
	}
	blend, err := metadata.ParseBlendMode(cfg.Blend)
	if err != nil {
		return nil, errors.Wrapf(err, "pipeline %q", cfg.Name)
	}

	b.SetInputTopology(topology).
		SetPolygonMode(polygon, 1.0).
		SetCullMode(cull, front).
		SetBlendMode(blend).
		SetColorAttachmentFormat(color)
	if cfg.DepthTest {
		b.SetDepthFormat(depth).EnableDepthTest(true, metadata.CompareOpGreaterOrEqual)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}
