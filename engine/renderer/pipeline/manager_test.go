package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

type fakePipelineDevice struct {
	next      int
	built     []int
	destroyed []int
	waits     int
	failBuild bool
}

func (d *fakePipelineDevice) WaitIdle() error {
	d.waits++
	return nil
}

func (d *fakePipelineDevice) BuildGraphicsPipeline(b *GraphicsPipelineBuilder, layout string, vertex, fragment []uint32) (int, error) {
	if d.failBuild {
		return 0, errors.New("driver rejected pipeline")
	}
	d.next++
	d.built = append(d.built, d.next)
	return d.next, nil
}

func (d *fakePipelineDevice) DestroyPipeline(p int) {
	d.destroyed = append(d.destroyed, p)
}

func (d *fakePipelineDevice) live() int {
	return len(d.built) - len(d.destroyed)
}

// fakeCompiler writes a minimal valid module next to each source.
type fakeCompiler struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]bool
}

func newFakeCompiler() *fakeCompiler {
	return &fakeCompiler{calls: map[string]int{}, fail: map[string]bool{}}
}

func (c *fakeCompiler) Compile(_ context.Context, source string) (string, error) {
	c.mu.Lock()
	c.calls[source]++
	calls, fail := c.calls[source], c.fail[source]
	c.mu.Unlock()
	if fail {
		return "", errors.Mark(errors.Newf("syntax error in %s", source), core.ErrCompileFailed)
	}
	out := SPIRVPath(source)
	return out, os.WriteFile(out, spirvModule(uint32(calls)), 0o644)
}

type managerFixture struct {
	dir      string
	device   *fakePipelineDevice
	compiler *fakeCompiler
	manager  *Manager[int, string]
	bumps    int
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	f := &managerFixture{
		dir:      t.TempDir(),
		device:   &fakePipelineDevice{},
		compiler: newFakeCompiler(),
	}
	m, err := NewManager[int, string](f.device, f.compiler, WithReloadInterval(time.Second))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	f.manager = m
	return f
}

func (f *managerFixture) source(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	if err := os.WriteFile(path, []byte("void main() {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// touch moves the modification time of path forward.
func (f *managerFixture) touch(t *testing.T, path string) {
	t.Helper()
	f.bumps++
	ts := time.Now().Add(time.Duration(f.bumps) * time.Hour)
	if err := os.Chtimes(path, ts, ts); err != nil {
		t.Fatal(err)
	}
}

func (f *managerFixture) register(t *testing.T, name, vert, frag string) *Pipeline[int, string] {
	t.Helper()
	p := NewPipeline[int, string](name, name+"-layout")
	b := NewGraphicsPipelineBuilder(name, vert, frag).SetColorAttachmentFormat(metadata.FormatR16G16B16A16Sfloat)
	if err := f.manager.RegisterGraphicsPipeline(p, b); err != nil {
		t.Fatalf("RegisterGraphicsPipeline(%s): %v", name, err)
	}
	return p
}

// tick runs one check regardless of the throttle.
func (f *managerFixture) tick(t *testing.T) {
	t.Helper()
	if err := f.manager.Tick(2); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if err := f.manager.Tick(0); err != nil {
		t.Fatalf("Tick: %v", err)
	}
}

func TestManagerRegisterBuildsImmediately(t *testing.T) {
	f := newManagerFixture(t)
	vert, frag := f.source(t, "mesh.vert"), f.source(t, "mesh.frag")

	p := f.register(t, "mesh", vert, frag)

	if p.GetPipeline() == 0 {
		t.Fatal("pipeline not built on registration")
	}
	if got := f.manager.State(p); got != StateBuilt {
		t.Errorf("State() = %s, want built", got)
	}
	if f.compiler.calls[vert] != 1 || f.compiler.calls[frag] != 1 {
		t.Errorf("compiler calls = %v", f.compiler.calls)
	}
	if err := f.manager.RegisterGraphicsPipeline(p, NewGraphicsPipelineBuilder("mesh", vert, frag).SetColorAttachmentFormat(metadata.FormatR16G16B16A16Sfloat)); err == nil {
		t.Error("registering the same pipeline twice succeeded")
	}
}

func TestManagerHotReload(t *testing.T) {
	f := newManagerFixture(t)
	vert, frag := f.source(t, "mesh.vert"), f.source(t, "mesh.frag")
	p := f.register(t, "mesh", vert, frag)

	// Nothing changed yet.
	f.tick(t)
	if f.device.waits != 0 || len(f.device.built) != 1 {
		t.Fatalf("unchanged sources triggered a reload: waits=%d built=%d", f.device.waits, len(f.device.built))
	}

	const reloads = 5
	for i := 0; i < reloads; i++ {
		before := p.GetPipeline()
		f.touch(t, frag)
		f.tick(t)

		after := p.GetPipeline()
		if after == before {
			t.Fatalf("reload %d: native pipeline unchanged", i)
		}
		if last := f.device.destroyed[len(f.device.destroyed)-1]; last != before {
			t.Errorf("reload %d destroyed %d, want %d", i, last, before)
		}
	}
	if len(f.device.destroyed) != reloads {
		t.Errorf("destroyed %d pipelines, want %d", len(f.device.destroyed), reloads)
	}
	if f.device.live() != 1 {
		t.Errorf("%d native pipelines alive, want 1", f.device.live())
	}
	if f.device.waits != reloads {
		t.Errorf("device waited idle %d times, want %d", f.device.waits, reloads)
	}
	if f.compiler.calls[vert] != 1 || f.compiler.calls[frag] != reloads+1 {
		t.Errorf("compiler calls = %v", f.compiler.calls)
	}
	if f.manager.Builds(p) != reloads+1 {
		t.Errorf("Builds() = %d, want %d", f.manager.Builds(p), reloads+1)
	}
}

func TestManagerSharedSourceRebuildsAllDependents(t *testing.T) {
	f := newManagerFixture(t)
	vert := f.source(t, "fullscreen.vert")
	a := f.register(t, "tonemap", vert, f.source(t, "tonemap.frag"))
	b := f.register(t, "blur", vert, f.source(t, "blur.frag"))

	if got := f.manager.Dependents(vert); len(got) != 2 || got[0] != a.ID() || got[1] != b.ID() {
		t.Fatalf("Dependents() = %v", got)
	}

	oldA, oldB := a.GetPipeline(), b.GetPipeline()
	f.touch(t, vert)
	f.tick(t)

	if a.GetPipeline() == oldA || b.GetPipeline() == oldB {
		t.Error("not every dependent pipeline was rebuilt")
	}
	if f.device.waits != 1 {
		t.Errorf("device waited idle %d times, want 1", f.device.waits)
	}
	if f.compiler.calls[vert] != 2 {
		t.Errorf("shared source compiled %d times, want 2", f.compiler.calls[vert])
	}
}

func TestManagerFailedRebuildKeepsPreviousPipeline(t *testing.T) {
	f := newManagerFixture(t)
	vert, frag := f.source(t, "mesh.vert"), f.source(t, "mesh.frag")
	p := f.register(t, "mesh", vert, frag)
	good := p.GetPipeline()

	tests := []struct {
		name  string
		setup func()
	}{
		{"compile error", func() { f.compiler.fail[frag] = true }},
		{"build error", func() { f.compiler.fail[frag] = false; f.device.failBuild = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			f.touch(t, frag)
			f.tick(t)

			if p.GetPipeline() != good {
				t.Errorf("pipeline = %d, want previous %d", p.GetPipeline(), good)
			}
			if f.manager.State(p) != StateFailed || f.manager.Err(p) == nil {
				t.Errorf("State() = %s, Err() = %v", f.manager.State(p), f.manager.Err(p))
			}
			if len(f.device.destroyed) != 0 {
				t.Errorf("destroyed %v after a failed rebuild", f.device.destroyed)
			}
		})
	}

	f.device.failBuild = false
	f.touch(t, frag)
	f.tick(t)
	if p.GetPipeline() == good || f.manager.State(p) != StateBuilt || f.manager.Err(p) != nil {
		t.Errorf("fixed shader not picked up: pipeline %d state %s", p.GetPipeline(), f.manager.State(p))
	}
}

func TestManagerRegisterCompileFailure(t *testing.T) {
	f := newManagerFixture(t)
	vert, frag := f.source(t, "mesh.vert"), f.source(t, "mesh.frag")
	f.compiler.fail[vert] = true

	p := NewPipeline[int, string]("mesh", "layout")
	b := NewGraphicsPipelineBuilder("mesh", vert, frag).SetColorAttachmentFormat(metadata.FormatR16G16B16A16Sfloat)
	err := f.manager.RegisterGraphicsPipeline(p, b)
	if !errors.Is(err, core.ErrCompileFailed) {
		t.Fatalf("RegisterGraphicsPipeline() error = %v, want ErrCompileFailed", err)
	}
	if p.GetPipeline() != 0 {
		t.Errorf("pipeline = %d, want none", p.GetPipeline())
	}
	if f.manager.Len() != 0 || f.manager.Dependents(vert) != nil || f.manager.Dependents(frag) != nil {
		t.Fatalf("failed registration still tracked: len %d", f.manager.Len())
	}

	// Nothing is rebuilt for a pipeline that never registered.
	f.touch(t, frag)
	f.tick(t)
	if len(f.device.built) != 0 {
		t.Errorf("built %v after failed registration", f.device.built)
	}

	f.compiler.fail[vert] = false
	if err := f.manager.RegisterGraphicsPipeline(p, b); err != nil {
		t.Fatalf("RegisterGraphicsPipeline() retry: %v", err)
	}
	if p.GetPipeline() == 0 || f.manager.State(p) != StateBuilt || f.manager.Len() != 1 {
		t.Errorf("retry: pipeline %d state %s len %d", p.GetPipeline(), f.manager.State(p), f.manager.Len())
	}
}

func TestManagerTickThrottle(t *testing.T) {
	f := newManagerFixture(t)
	frag := f.source(t, "mesh.frag")
	p := f.register(t, "mesh", f.source(t, "mesh.vert"), frag)
	built := p.GetPipeline()

	// First tick always checks.
	if err := f.manager.Tick(0.5); err != nil {
		t.Fatal(err)
	}
	f.touch(t, frag)

	steps := []struct {
		delta   float64
		rebuilt bool
	}{
		{0.4, false},
		{0.2, false},
		{0, true},
	}
	for i, s := range steps {
		if err := f.manager.Tick(s.delta); err != nil {
			t.Fatal(err)
		}
		if rebuilt := p.GetPipeline() != built; rebuilt != s.rebuilt {
			t.Fatalf("step %d: rebuilt = %v, want %v", i, rebuilt, s.rebuilt)
		}
	}
}

func TestManagerWatcherEventForcesCheck(t *testing.T) {
	f := newManagerFixture(t)
	frag := f.source(t, "mesh.frag")
	p := f.register(t, "mesh", f.source(t, "mesh.vert"), frag)
	built := p.GetPipeline()

	f.manager.Tick(0)
	f.touch(t, frag)
	f.manager.onSourceEvent(frag)
	f.manager.Tick(0)

	if p.GetPipeline() == built {
		t.Error("source event did not trigger a reload before the interval elapsed")
	}
}

func TestManagerUnregisterAndDestroy(t *testing.T) {
	f := newManagerFixture(t)
	vert := f.source(t, "mesh.vert")
	a := f.register(t, "a", vert, f.source(t, "a.frag"))
	b := f.register(t, "b", vert, f.source(t, "b.frag"))

	f.manager.UnregisterGraphicsPipeline(a)
	if a.GetPipeline() != 0 {
		t.Error("unregistered pipeline still holds a native object")
	}
	if got := f.manager.Dependents(vert); len(got) != 1 || got[0] != b.ID() {
		t.Errorf("Dependents() after unregister = %v", got)
	}
	if got := f.manager.Dependents(filepath.Join(f.dir, "a.frag")); got != nil {
		t.Errorf("a.frag still watched by %v", got)
	}

	f.manager.Destroy()
	if f.device.live() != 0 {
		t.Errorf("%d native pipelines alive after Destroy", f.device.live())
	}
	if f.manager.Len() != 0 {
		t.Errorf("Len() = %d after Destroy", f.manager.Len())
	}
}

func TestManagerCompileGraphicsPipeline(t *testing.T) {
	f := newManagerFixture(t)
	vert, frag := f.source(t, "mesh.vert"), f.source(t, "mesh.frag")
	p := f.register(t, "mesh", vert, frag)
	first := p.GetPipeline()

	if err := f.manager.CompileGraphicsPipeline(p); err != nil {
		t.Fatalf("CompileGraphicsPipeline: %v", err)
	}
	if p.GetPipeline() == first {
		t.Error("pipeline not rebuilt")
	}
	if f.compiler.calls[vert] != 2 || f.compiler.calls[frag] != 2 {
		t.Errorf("compiler calls = %v, want 2 each", f.compiler.calls)
	}
	if f.device.waits != 1 || f.device.live() != 1 {
		t.Errorf("waits = %d live = %d, want 1 and 1", f.device.waits, f.device.live())
	}

	f.compiler.fail[vert] = true
	if err := f.manager.CompileGraphicsPipeline(p); err == nil {
		t.Fatal("expected a compile error")
	}
	if f.manager.Failed() != 1 {
		t.Errorf("Failed() = %d, want 1", f.manager.Failed())
	}

	other := NewPipeline[int, string]("other", "layout")
	if err := f.manager.CompileGraphicsPipeline(other); err == nil {
		t.Error("compiling an unregistered pipeline succeeded")
	}
}
