package allocator

import (
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

type DescriptorBinding struct {
	Binding uint32
	Type    metadata.DescriptorType
	Count   uint32
	Stages  metadata.ShaderStageFlags
}

// LayoutDevice creates native descriptor set layouts.
type LayoutDevice[L any] interface {
	CreateDescriptorSetLayout(bindings []DescriptorBinding) (L, error)
}

type DescriptorLayoutBuilder struct {
	bindings []DescriptorBinding
}

func (b *DescriptorLayoutBuilder) AddBinding(binding uint32, typ metadata.DescriptorType, count uint32) *DescriptorLayoutBuilder {
	if count == 0 {
		count = 1
	}
	b.bindings = append(b.bindings, DescriptorBinding{Binding: binding, Type: typ, Count: count})
	return b
}

func (b *DescriptorLayoutBuilder) Clear() {
	b.bindings = b.bindings[:0]
}

// Bindings returns the recorded bindings with stages added to each of them.
func (b *DescriptorLayoutBuilder) Bindings(stages metadata.ShaderStageFlags) ([]DescriptorBinding, error) {
	out := make([]DescriptorBinding, len(b.bindings))
	seen := make(map[uint32]struct{}, len(b.bindings))
	for i, binding := range b.bindings {
		if _, dup := seen[binding.Binding]; dup {
			return nil, errors.Newf("binding %d declared twice", binding.Binding)
		}
		seen[binding.Binding] = struct{}{}
		binding.Stages |= stages
		out[i] = binding
	}
	return out, nil
}

// BuildLayout creates the layout for the bindings recorded in b.
func BuildLayout[L any](device LayoutDevice[L], b *DescriptorLayoutBuilder, stages metadata.ShaderStageFlags) (L, error) {
	var zero L
	bindings, err := b.Bindings(stages)
	if err != nil {
		return zero, err
	}
	layout, err := device.CreateDescriptorSetLayout(bindings)
	if err != nil {
		return zero, errors.Wrap(err, "failed to create descriptor set layout")
	}
	return layout, nil
}
