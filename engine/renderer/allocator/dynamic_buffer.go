package allocator

import (
	"github.com/cockroachdb/errors"
)

// BufferResource is the native buffer a sub-allocator carves up.
type BufferResource interface {
	Destroy()
}

type FreeRange struct {
	Start  uint32
	Length uint32
}

func (r FreeRange) end() uint32 {
	return r.Start + r.Length
}

// DynamicBuffer hands out element ranges of one large pre-sized GPU buffer.
// Free ranges are kept sorted by start and fully coalesced. It does not grow
// and is not safe for concurrent use.
type DynamicBuffer[B BufferResource] struct {
	buffer       B
	elementSize  uint64
	elementCount uint32
	freeRanges   []FreeRange
}

func NewDynamicBuffer[B BufferResource](buffer B, elementSize uint64, elementCount uint32) *DynamicBuffer[B] {
	db := &DynamicBuffer[B]{
		buffer:       buffer,
		elementSize:  elementSize,
		elementCount: elementCount,
	}
	db.Clear()
	return db
}

func (db *DynamicBuffer[B]) Buffer() B {
	return db.buffer
}

func (db *DynamicBuffer[B]) ElementSize() uint64 {
	return db.elementSize
}

func (db *DynamicBuffer[B]) ElementCount() uint32 {
	return db.elementCount
}

// ByteOffset converts an element offset into a byte offset inside the buffer.
func (db *DynamicBuffer[B]) ByteOffset(offset uint32) uint64 {
	return uint64(offset) * db.elementSize
}

// Reserve grants count contiguous elements from the first free range large
// enough to hold them. ok is false when no such range exists.
func (db *DynamicBuffer[B]) Reserve(count uint32) (offset uint32, ok bool) {
	if count == 0 {
		return 0, false
	}
	for i, r := range db.freeRanges {
		if r.Length < count {
			continue
		}
		offset = r.Start
		if r.Length == count {
			db.freeRanges = append(db.freeRanges[:i], db.freeRanges[i+1:]...)
		} else {
			db.freeRanges[i] = FreeRange{Start: r.Start + count, Length: r.Length - count}
		}
		return offset, true
	}
	return 0, false
}

// Free returns [offset, offset+count) to the free list, merging it with the
// neighbouring free ranges. Freeing memory that is already free panics.
func (db *DynamicBuffer[B]) Free(offset, count uint32) {
	if count == 0 {
		return
	}
	freed := FreeRange{Start: offset, Length: count}
	if uint64(offset)+uint64(count) > uint64(db.elementCount) {
		panic(errors.AssertionFailedf("free of [%d, %d) outside of buffer with %d elements", offset, freed.end(), db.elementCount))
	}

	// First range starting after the freed block.
	next := len(db.freeRanges)
	for i, r := range db.freeRanges {
		if r.Start < freed.end() && freed.Start < r.end() {
			panic(errors.AssertionFailedf("double free of [%d, %d), overlaps free range [%d, %d)", freed.Start, freed.end(), r.Start, r.end()))
		}
		if r.Start >= freed.end() {
			next = i
			break
		}
	}
	prev := next - 1

	joinsPrev := prev >= 0 && db.freeRanges[prev].end() == freed.Start
	joinsNext := next < len(db.freeRanges) && freed.end() == db.freeRanges[next].Start

	switch {
	case joinsPrev && joinsNext:
		db.freeRanges[prev].Length += freed.Length + db.freeRanges[next].Length
		db.freeRanges = append(db.freeRanges[:next], db.freeRanges[next+1:]...)
	case joinsPrev:
		db.freeRanges[prev].Length += freed.Length
	case joinsNext:
		db.freeRanges[next].Start = freed.Start
		db.freeRanges[next].Length += freed.Length
	default:
		db.freeRanges = append(db.freeRanges, FreeRange{})
		copy(db.freeRanges[next+1:], db.freeRanges[next:])
		db.freeRanges[next] = freed
	}
}

func (db *DynamicBuffer[B]) UsedElements() uint32 {
	var free uint32
	for _, r := range db.freeRanges {
		free += r.Length
	}
	return db.elementCount - free
}

// FreeRanges returns a copy of the free list ordered by start.
func (db *DynamicBuffer[B]) FreeRanges() []FreeRange {
	out := make([]FreeRange, len(db.freeRanges))
	copy(out, db.freeRanges)
	return out
}

// Clear drops every reservation.
func (db *DynamicBuffer[B]) Clear() {
	db.freeRanges = db.freeRanges[:0]
	if db.elementCount > 0 {
		db.freeRanges = append(db.freeRanges, FreeRange{Start: 0, Length: db.elementCount})
	}
}

func (db *DynamicBuffer[B]) Destroy() {
	db.freeRanges = nil
	db.elementCount = 0
	db.buffer.Destroy()
}
