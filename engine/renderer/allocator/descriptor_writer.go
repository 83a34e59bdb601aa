package allocator

import (
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

type ImageWrite[V any, Sm any] struct {
	Binding uint32
	View    V
	Sampler Sm
	Layout  metadata.ImageLayout
	Type    metadata.DescriptorType
}

type BufferWrite[B any] struct {
	Binding uint32
	Buffer  B
	Size    uint64
	Offset  uint64
	Type    metadata.DescriptorType
}

// DescriptorWriter batches descriptor updates so a set is written with one
// native call.
type DescriptorWriter[B any, V any, Sm any] struct {
	images  []ImageWrite[V, Sm]
	buffers []BufferWrite[B]
}

func (w *DescriptorWriter[B, V, Sm]) WriteImage(binding uint32, view V, sampler Sm, layout metadata.ImageLayout, typ metadata.DescriptorType) error {
	if !typ.IsImage() {
		return errors.Newf("descriptor type %d at binding %d is not an image type", typ, binding)
	}
	w.images = append(w.images, ImageWrite[V, Sm]{Binding: binding, View: view, Sampler: sampler, Layout: layout, Type: typ})
	return nil
}

func (w *DescriptorWriter[B, V, Sm]) WriteBuffer(binding uint32, buffer B, size, offset uint64, typ metadata.DescriptorType) error {
	if typ.IsImage() {
		return errors.Newf("descriptor type %d at binding %d is not a buffer type", typ, binding)
	}
	w.buffers = append(w.buffers, BufferWrite[B]{Binding: binding, Buffer: buffer, Size: size, Offset: offset, Type: typ})
	return nil
}

func (w *DescriptorWriter[B, V, Sm]) Images() []ImageWrite[V, Sm] {
	return w.images
}

func (w *DescriptorWriter[B, V, Sm]) Buffers() []BufferWrite[B] {
	return w.buffers
}

func (w *DescriptorWriter[B, V, Sm]) Len() int {
	return len(w.images) + len(w.buffers)
}

func (w *DescriptorWriter[B, V, Sm]) Clear() {
	w.images = w.images[:0]
	w.buffers = w.buffers[:0]
}

// SetUpdater applies a batch of descriptor writes to a native set.
type SetUpdater[S any, B any, V any, Sm any] interface {
	UpdateDescriptorSet(set S, images []ImageWrite[V, Sm], buffers []BufferWrite[B])
}

// UpdateSet writes everything recorded in w into set. The writer keeps its
// entries so the same batch can be applied to the set of every frame slot.
func UpdateSet[S any, B any, V any, Sm any](device SetUpdater[S, B, V, Sm], w *DescriptorWriter[B, V, Sm], set S) {
	if w.Len() == 0 {
		return
	}
	device.UpdateDescriptorSet(set, w.images, w.buffers)
}
