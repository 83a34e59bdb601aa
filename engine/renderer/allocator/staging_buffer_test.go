package allocator

import (
	"bytes"
	"testing"
)

type fakeMapped struct {
	fakeBuffer
	data []byte
}

func (m *fakeMapped) Mapped() []byte {
	return m.data
}

func TestStagingBufferRequestSpace(t *testing.T) {
	tests := []struct {
		name        string
		requests    []uint64
		wantOffset  uint64
		wantGranted uint64
	}{
		{"fits", []uint64{16}, 0, 16},
		{"follows previous", []uint64{10, 20}, 10, 20},
		{"partial grant", []uint64{50, 30}, 50, 14},
		{"full", []uint64{64, 1}, 64, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sb := NewStagingBuffer(&fakeMapped{data: make([]byte, 64)})
			var off, granted uint64
			for _, r := range tt.requests {
				off, granted = sb.RequestSpace(r)
			}
			if off != tt.wantOffset || granted != tt.wantGranted {
				t.Errorf("RequestSpace = (%d, %d), want (%d, %d)", off, granted, tt.wantOffset, tt.wantGranted)
			}
		})
	}
}

func TestStagingBufferWriteAndReset(t *testing.T) {
	mem := &fakeMapped{data: make([]byte, 32)}
	sb := NewStagingBuffer(mem)

	sb.RequestSpace(4)
	off, _ := sb.RequestSpace(4)
	if err := sb.Write(off, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !bytes.Equal(mem.data[4:8], []byte{1, 2, 3, 4}) {
		t.Errorf("mapped bytes = %v", mem.data[:8])
	}
	if err := sb.Write(off, make([]byte, 8)); err == nil {
		t.Error("Write past requested space succeeded")
	}

	sb.Reset()
	if sb.Occupied() != 0 {
		t.Errorf("Occupied() after Reset = %d", sb.Occupied())
	}
	sb.Destroy()
	if mem.destroyed != 1 {
		t.Errorf("buffer destroyed %d times, want 1", mem.destroyed)
	}
}
