package allocator

import (
	"math/rand"
	"reflect"
	"testing"
)

type fakeBuffer struct {
	destroyed int
}

func (b *fakeBuffer) Destroy() {
	b.destroyed++
}

func newTestBuffer(count uint32) *DynamicBuffer[*fakeBuffer] {
	return NewDynamicBuffer(&fakeBuffer{}, 16, count)
}

func sumFree(db *DynamicBuffer[*fakeBuffer]) uint32 {
	var n uint32
	for _, r := range db.FreeRanges() {
		n += r.Length
	}
	return n
}

func TestDynamicBufferScenario(t *testing.T) {
	db := newTestBuffer(100)

	steps := []struct {
		name  string
		count uint32
		want  uint32
	}{
		{"first", 40, 0},
		{"second", 30, 40},
	}
	for _, s := range steps {
		got, ok := db.Reserve(s.count)
		if !ok || got != s.want {
			t.Fatalf("%s Reserve(%d) = (%d, %v), want (%d, true)", s.name, s.count, got, ok, s.want)
		}
	}

	db.Free(0, 40)

	got, ok := db.Reserve(20)
	if !ok || got != 0 {
		t.Fatalf("Reserve(20) = (%d, %v), want (0, true)", got, ok)
	}

	want := []FreeRange{{Start: 20, Length: 20}, {Start: 70, Length: 30}}
	if ranges := db.FreeRanges(); !reflect.DeepEqual(ranges, want) {
		t.Errorf("FreeRanges() = %v, want %v", ranges, want)
	}
	if used := db.UsedElements(); used != 50 {
		t.Errorf("UsedElements() = %d, want 50", used)
	}
}

func TestDynamicBufferReserve(t *testing.T) {
	tests := []struct {
		name     string
		capacity uint32
		reserve  []uint32
		count    uint32
		wantOK   bool
		wantOff  uint32
	}{
		{"exact fit", 10, nil, 10, true, 0},
		{"split", 10, nil, 4, true, 0},
		{"after previous", 10, []uint32{3}, 4, true, 3},
		{"exhausted", 10, []uint32{10}, 1, false, 0},
		{"too large", 10, nil, 11, false, 0},
		{"zero count", 10, nil, 0, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestBuffer(tt.capacity)
			for _, n := range tt.reserve {
				if _, ok := db.Reserve(n); !ok {
					t.Fatalf("setup Reserve(%d) failed", n)
				}
			}
			off, ok := db.Reserve(tt.count)
			if ok != tt.wantOK || (ok && off != tt.wantOff) {
				t.Errorf("Reserve(%d) = (%d, %v), want (%d, %v)", tt.count, off, ok, tt.wantOff, tt.wantOK)
			}
		})
	}
}

func TestDynamicBufferFirstFit(t *testing.T) {
	db := newTestBuffer(100)
	for i := 0; i < 10; i++ {
		db.Reserve(10)
	}
	db.Free(10, 10)
	db.Free(50, 30)

	// The 10 element hole comes first but is too small.
	off, ok := db.Reserve(15)
	if !ok || off != 50 {
		t.Fatalf("Reserve(15) = (%d, %v), want (50, true)", off, ok)
	}
	off, ok = db.Reserve(5)
	if !ok || off != 10 {
		t.Fatalf("Reserve(5) = (%d, %v), want (10, true)", off, ok)
	}
}

func TestDynamicBufferCoalescing(t *testing.T) {
	tests := []struct {
		name      string
		free      [][2]uint32
		last      [2]uint32
		want      []FreeRange
		wantDelta int
	}{
		{
			name:      "no neighbour inserts",
			free:      [][2]uint32{{0, 10}, {80, 20}},
			last:      [2]uint32{40, 10},
			want:      []FreeRange{{0, 10}, {40, 10}, {80, 20}},
			wantDelta: 1,
		},
		{
			name:      "preceding neighbour extends",
			free:      [][2]uint32{{0, 10}, {80, 20}},
			last:      [2]uint32{10, 10},
			want:      []FreeRange{{0, 20}, {80, 20}},
			wantDelta: 0,
		},
		{
			name:      "following neighbour extends",
			free:      [][2]uint32{{0, 10}, {80, 20}},
			last:      [2]uint32{70, 10},
			want:      []FreeRange{{0, 10}, {70, 30}},
			wantDelta: 0,
		},
		{
			name:      "both neighbours merge",
			free:      [][2]uint32{{0, 10}, {20, 10}},
			last:      [2]uint32{10, 10},
			want:      []FreeRange{{0, 30}},
			wantDelta: -1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestBuffer(100)
			db.Reserve(100)
			for _, f := range tt.free {
				db.Free(f[0], f[1])
			}
			before := len(db.FreeRanges())
			db.Free(tt.last[0], tt.last[1])
			got := db.FreeRanges()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("FreeRanges() = %v, want %v", got, tt.want)
			}
			if delta := len(got) - before; delta != tt.wantDelta {
				t.Errorf("range count changed by %d, want %d", delta, tt.wantDelta)
			}
		})
	}
}

func TestDynamicBufferRoundTrip(t *testing.T) {
	db := newTestBuffer(64)
	db.Reserve(8)
	off, _ := db.Reserve(8)
	db.Reserve(8)
	db.Free(off, 8)

	for _, n := range []uint32{1, 4, 8, 20, 40} {
		before := db.FreeRanges()
		o, ok := db.Reserve(n)
		if !ok {
			t.Fatalf("Reserve(%d) failed", n)
		}
		db.Free(o, n)
		if after := db.FreeRanges(); !reflect.DeepEqual(before, after) {
			t.Errorf("reserve/free of %d changed free list from %v to %v", n, before, after)
		}
	}
}

func TestDynamicBufferInvariant(t *testing.T) {
	const capacity = 1000
	db := newTestBuffer(capacity)
	rng := rand.New(rand.NewSource(7))

	type block struct{ off, n uint32 }
	var live []block
	var reserved uint32

	for i := 0; i < 5000; i++ {
		if len(live) > 0 && rng.Intn(2) == 0 {
			j := rng.Intn(len(live))
			b := live[j]
			live = append(live[:j], live[j+1:]...)
			db.Free(b.off, b.n)
			reserved -= b.n
		} else {
			n := uint32(rng.Intn(50) + 1)
			if off, ok := db.Reserve(n); ok {
				live = append(live, block{off, n})
				reserved += n
			}
		}
		if free := sumFree(db); free+reserved != capacity {
			t.Fatalf("step %d: free %d + reserved %d != %d", i, free, reserved, capacity)
		}
		ranges := db.FreeRanges()
		for k := 1; k < len(ranges); k++ {
			if ranges[k-1].Start+ranges[k-1].Length >= ranges[k].Start {
				t.Fatalf("step %d: ranges %v and %v overlap or touch", i, ranges[k-1], ranges[k])
			}
		}
	}
}

func TestDynamicBufferFreePanics(t *testing.T) {
	tests := []struct {
		name      string
		off, size uint32
	}{
		{"double free", 10, 5},
		{"partial overlap", 5, 10},
		{"out of range", 95, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestBuffer(100)
			db.Reserve(100)
			db.Free(10, 5)
			defer func() {
				if recover() == nil {
					t.Errorf("Free(%d, %d) did not panic", tt.off, tt.size)
				}
			}()
			db.Free(tt.off, tt.size)
		})
	}
}

func TestDynamicBufferClearAndDestroy(t *testing.T) {
	buf := &fakeBuffer{}
	db := NewDynamicBuffer(buf, 4, 50)
	db.Reserve(20)
	db.Reserve(10)

	db.Clear()
	if used := db.UsedElements(); used != 0 {
		t.Errorf("UsedElements() after Clear = %d, want 0", used)
	}
	if got := db.ByteOffset(10); got != 40 {
		t.Errorf("ByteOffset(10) = %d, want 40", got)
	}

	db.Destroy()
	if buf.destroyed != 1 {
		t.Errorf("buffer destroyed %d times, want 1", buf.destroyed)
	}
	if _, ok := db.Reserve(1); ok {
		t.Error("Reserve succeeded on a destroyed buffer")
	}
}
