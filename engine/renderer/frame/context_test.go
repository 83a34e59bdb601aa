package frame

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

type fakeDevice struct {
	calls []string
	waits []int

	fenceTimeouts int
	acquireStale  int
	acquireErrs   []error
	presentStale  int
	recreated     [][2]uint32
}

func (d *fakeDevice) log(call string) {
	d.calls = append(d.calls, call)
}

func (d *fakeDevice) WaitIdle() error {
	d.log("idle")
	return nil
}

func (d *fakeDevice) WaitForFence(slot int, _ time.Duration) error {
	d.log("wait")
	d.waits = append(d.waits, slot)
	if d.fenceTimeouts > 0 {
		d.fenceTimeouts--
		return core.ErrFenceTimeout
	}
	return nil
}

func (d *fakeDevice) ResetFence(int) error {
	d.log("reset")
	return nil
}

func (d *fakeDevice) ResetFrameResources(int) error {
	d.log("resources")
	return nil
}

func (d *fakeDevice) AcquireNextImage(slot int, _ time.Duration) (uint32, error) {
	d.log("acquire")
	if d.acquireStale > 0 {
		d.acquireStale--
		return 0, core.ErrSurfaceOutOfDate
	}
	if len(d.acquireErrs) > 0 {
		err := d.acquireErrs[0]
		d.acquireErrs = d.acquireErrs[1:]
		return 0, err
	}
	return uint32(slot), nil
}

func (d *fakeDevice) BeginCommands(int) error {
	d.log("begin")
	return nil
}

func (d *fakeDevice) FinishCommands(int) error {
	d.log("finish")
	return nil
}

func (d *fakeDevice) Submit(int) error {
	d.log("submit")
	return nil
}

func (d *fakeDevice) Present(int, uint32) error {
	d.log("present")
	if d.presentStale > 0 {
		d.presentStale--
		return core.ErrSurfaceOutOfDate
	}
	return nil
}

func (d *fakeDevice) RecreateSwapchain(w, h uint32) error {
	d.log("recreate")
	d.recreated = append(d.recreated, [2]uint32{w, h})
	return nil
}

type fakeWindow struct {
	w, h uint32
}

func (w *fakeWindow) FramebufferSize() (uint32, uint32) {
	return w.w, w.h
}

func newTestContext(dev *fakeDevice, win *fakeWindow) *FrameContext {
	fc := NewFrameContext(dev, win, WithFenceTimeout(10*time.Millisecond), WithMaxFenceTimeouts(3))
	fc.AddRecorder(func(*Frame) error { dev.log("draw"); return nil })
	fc.SetComposer(func(*Frame) error { dev.log("compose"); return nil })
	fc.AddOverlay(func(*Frame) error { dev.log("overlay"); return nil })
	return fc
}

func TestFrameOrder(t *testing.T) {
	dev := &fakeDevice{}
	fc := newTestContext(dev, &fakeWindow{800, 600})

	presented, err := fc.Draw()
	if err != nil || !presented {
		t.Fatalf("Draw() = (%v, %v)", presented, err)
	}
	want := "wait resources acquire reset begin draw compose overlay finish submit present"
	if got := strings.Join(dev.calls, " "); got != want {
		t.Errorf("calls = %q\nwant    %q", got, want)
	}
	if fc.FrameNumber() != 1 || fc.State() != StateIdle {
		t.Errorf("frame %d state %d", fc.FrameNumber(), fc.State())
	}
}

func TestFrameIsolation(t *testing.T) {
	dev := &fakeDevice{}
	fc := newTestContext(dev, &fakeWindow{800, 600})

	var slots []int
	fc.AddRecorder(func(f *Frame) error {
		slots = append(slots, f.Slot)
		return nil
	})

	const frames = 3 * metadata.FrameOverlap
	for k := 0; k < frames; k++ {
		if _, err := fc.Draw(); err != nil {
			t.Fatalf("frame %d: %v", k, err)
		}
	}
	for k := 0; k < frames; k++ {
		if dev.waits[k] != k%metadata.FrameOverlap {
			t.Errorf("frame %d waited on slot %d, want %d", k, dev.waits[k], k%metadata.FrameOverlap)
		}
		if slots[k] != dev.waits[k] {
			t.Errorf("frame %d recorded into slot %d but waited on %d", k, slots[k], dev.waits[k])
		}
	}
}

func TestFrameAcquireOutOfDate(t *testing.T) {
	dev := &fakeDevice{acquireStale: 1}
	win := &fakeWindow{800, 600}
	fc := newTestContext(dev, win)

	presented, err := fc.Draw()
	if err != nil || presented {
		t.Fatalf("Draw() = (%v, %v), want skipped", presented, err)
	}
	if !fc.ResizePending() || fc.FrameNumber() != 0 {
		t.Fatalf("resize pending %v frame %d", fc.ResizePending(), fc.FrameNumber())
	}
	// The fence must stay signaled when nothing was submitted.
	for _, c := range dev.calls {
		if c == "reset" || c == "begin" {
			t.Fatalf("%s called for an aborted frame: %v", c, dev.calls)
		}
	}

	win.w, win.h = 1024, 768
	dev.calls = nil
	if presented, err := fc.Draw(); err != nil || !presented {
		t.Fatalf("Draw() after resize = (%v, %v)", presented, err)
	}
	if !reflect.DeepEqual(dev.calls[:2], []string{"idle", "recreate"}) {
		t.Errorf("resize calls = %v", dev.calls)
	}
	if !reflect.DeepEqual(dev.recreated, [][2]uint32{{1024, 768}}) {
		t.Errorf("recreated = %v", dev.recreated)
	}
	if fc.ResizePending() {
		t.Error("resize still pending")
	}
}

func TestFrameAcquireErrors(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantFatal    bool
		wantTimeouts uint64
	}{
		{"out of date", core.ErrSurfaceOutOfDate, false, 0},
		{"timeout", errors.Mark(errors.New("vkAcquireNextImageKHR failed with VK_TIMEOUT"), core.ErrFenceTimeout), false, 1},
		{"not ready", errors.Mark(errors.New("vkAcquireNextImageKHR failed with VK_NOT_READY"), core.ErrFenceTimeout), false, 1},
		{"device lost", core.ErrDeviceLost, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := &fakeDevice{acquireErrs: []error{tt.err}}
			fc := newTestContext(dev, &fakeWindow{800, 600})

			presented, err := fc.Draw()
			if presented {
				t.Fatal("frame presented after a failed acquire")
			}
			if tt.wantFatal {
				if !errors.Is(err, tt.err) {
					t.Fatalf("Draw() error = %v, want %v", err, tt.err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Draw() error = %v, want a skipped frame", err)
			}
			if !fc.ResizePending() {
				t.Error("resize not pending after a failed acquire")
			}
			stats := fc.Stats()
			if stats.Skipped != 1 || stats.AcquireTimeouts != tt.wantTimeouts {
				t.Errorf("skipped %d acquire timeouts %d, want 1 and %d", stats.Skipped, stats.AcquireTimeouts, tt.wantTimeouts)
			}
			if fc.FrameNumber() != 0 {
				t.Errorf("FrameNumber() = %d, want 0", fc.FrameNumber())
			}

			dev.calls = nil
			if presented, err := fc.Draw(); err != nil || !presented {
				t.Fatalf("Draw() after recovery = (%v, %v)", presented, err)
			}
			if !reflect.DeepEqual(dev.calls[:2], []string{"idle", "recreate"}) {
				t.Errorf("recovery calls = %v", dev.calls)
			}
		})
	}
}

func TestFramePresentOutOfDate(t *testing.T) {
	dev := &fakeDevice{presentStale: 1}
	fc := newTestContext(dev, &fakeWindow{800, 600})

	presented, err := fc.Draw()
	if err != nil || !presented {
		t.Fatalf("Draw() = (%v, %v)", presented, err)
	}
	if !fc.ResizePending() || fc.FrameNumber() != 1 {
		t.Errorf("resize pending %v frame %d", fc.ResizePending(), fc.FrameNumber())
	}
}

func TestFrameMinimizedKeepsResizePending(t *testing.T) {
	dev := &fakeDevice{}
	win := &fakeWindow{0, 0}
	fc := newTestContext(dev, win)
	fc.Resized(0, 0)

	for i := 0; i < 3; i++ {
		if presented, err := fc.Draw(); err != nil || presented {
			t.Fatalf("Draw() while minimized = (%v, %v)", presented, err)
		}
	}
	if len(dev.calls) != 0 {
		t.Errorf("device used while minimized: %v", dev.calls)
	}
	if !fc.ResizePending() || fc.Stats().Skipped != 3 {
		t.Errorf("pending %v skipped %d", fc.ResizePending(), fc.Stats().Skipped)
	}

	win.w, win.h = 640, 480
	if presented, err := fc.Draw(); err != nil || !presented {
		t.Fatalf("Draw() after restore = (%v, %v)", presented, err)
	}
	if fc.Stats().Resizes != 1 {
		t.Errorf("Resizes = %d, want 1", fc.Stats().Resizes)
	}
}

func TestFrameFenceTimeoutPolicy(t *testing.T) {
	tests := []struct {
		name       string
		timeouts   int
		wantHung   bool
		wantFrames uint64
	}{
		{"single timeout is skipped", 1, false, 1},
		{"timeouts below limit", 2, false, 1},
		{"limit reached", 3, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := &fakeDevice{fenceTimeouts: tt.timeouts}
			fc := newTestContext(dev, &fakeWindow{800, 600})

			var err error
			for i := 0; i <= tt.timeouts && err == nil; i++ {
				_, err = fc.Draw()
			}
			if got := errors.Is(err, core.ErrDeviceHung); got != tt.wantHung {
				t.Fatalf("last error = %v, want hung %v", err, tt.wantHung)
			}
			if fc.FrameNumber() != tt.wantFrames {
				t.Errorf("FrameNumber() = %d, want %d", fc.FrameNumber(), tt.wantFrames)
			}
			// Skipped frames retry the same slot.
			for i, slot := range dev.waits {
				if slot != 0 {
					t.Errorf("wait %d on slot %d, want 0", i, slot)
				}
			}
		})
	}
}

func TestFrameRecorderErrorIsReturned(t *testing.T) {
	dev := &fakeDevice{}
	fc := newTestContext(dev, &fakeWindow{800, 600})
	boom := errors.New("descriptor allocation failed")
	fc.AddOverlay(func(*Frame) error { return boom })

	if _, err := fc.Draw(); !errors.Is(err, boom) {
		t.Fatalf("Draw() error = %v, want %v", err, boom)
	}
	if fc.FrameNumber() != 0 {
		t.Errorf("FrameNumber() = %d after a failed frame", fc.FrameNumber())
	}
}
