package allocator

import "github.com/cockroachdb/errors"

// MappedBuffer is a host visible buffer whose memory stays mapped.
type MappedBuffer interface {
	BufferResource
	Mapped() []byte
}

// StagingBuffer is a linear upload allocator that is rewound once per frame,
// after the fence of the owning frame slot has been waited on.
type StagingBuffer[B MappedBuffer] struct {
	buffer   B
	size     uint64
	occupied uint64
}

func NewStagingBuffer[B MappedBuffer](buffer B) *StagingBuffer[B] {
	return &StagingBuffer[B]{
		buffer: buffer,
		size:   uint64(len(buffer.Mapped())),
	}
}

func (sb *StagingBuffer[B]) Buffer() B {
	return sb.buffer
}

func (sb *StagingBuffer[B]) Size() uint64 {
	return sb.size
}

func (sb *StagingBuffer[B]) Occupied() uint64 {
	return sb.occupied
}

// RequestSpace claims up to size bytes at the current write head. The number
// of bytes granted is smaller than size when the buffer is nearly full.
func (sb *StagingBuffer[B]) RequestSpace(size uint64) (offset, granted uint64) {
	offset = sb.occupied
	granted = min(size, sb.size-sb.occupied)
	sb.occupied += granted
	return offset, granted
}

// Write copies data into previously requested space.
func (sb *StagingBuffer[B]) Write(offset uint64, data []byte) error {
	if offset+uint64(len(data)) > sb.occupied {
		return errors.Newf("staging write [%d, %d) exceeds requested space of %d bytes", offset, offset+uint64(len(data)), sb.occupied)
	}
	copy(sb.buffer.Mapped()[offset:], data)
	return nil
}

func (sb *StagingBuffer[B]) Reset() {
	sb.occupied = 0
}

func (sb *StagingBuffer[B]) Destroy() {
	sb.occupied = 0
	sb.size = 0
	sb.buffer.Destroy()
}
