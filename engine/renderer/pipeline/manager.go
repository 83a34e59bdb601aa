package pipeline

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"golang.org/x/exp/slices"

	"github.com/spaghettifunk/prism/engine/core"
)

// Device is the native side of pipeline management.
type Device[P comparable, L any] interface {
	// WaitIdle blocks until no submitted work references any pipeline.
	WaitIdle() error
	BuildGraphicsPipeline(builder *GraphicsPipelineBuilder, layout L, vertex, fragment []uint32) (P, error)
	DestroyPipeline(pipeline P)
}

type record[P comparable, L any] struct {
	handle  Handle[P, L]
	builder GraphicsPipelineBuilder
	state   State
	err     error
	builds  int
}

type watchEntry struct {
	modTime   time.Time
	pipelines map[uuid.UUID]struct{}
	// err is the result of the last compilation of the source.
	err      error
	compiled bool
}

type ManagerOption func(*managerOptions)

type managerOptions struct {
	interval time.Duration
	ctx      context.Context
	watch    bool
}

// WithReloadInterval sets how often shader sources are checked for changes.
func WithReloadInterval(d time.Duration) ManagerOption {
	return func(o *managerOptions) {
		o.interval = d
	}
}

// WithContext bounds every shader compilation the manager starts.
func WithContext(ctx context.Context) ManagerOption {
	return func(o *managerOptions) {
		o.ctx = ctx
	}
}

// WithFileWatcher makes filesystem events trigger a check on the next tick
// instead of waiting for the reload interval.
func WithFileWatcher() ManagerOption {
	return func(o *managerOptions) {
		o.watch = true
	}
}

// Manager owns every registered graphics pipeline and rebuilds the ones whose
// shader sources changed on disk. Apart from the file watcher callback it is
// meant to be driven from the render thread only.
type Manager[P comparable, L any] struct {
	device   Device[P, L]
	compiler Compiler
	ctx      context.Context

	interval    float64
	accumulator float64
	requested   atomic.Bool
	watcher     *Watcher

	records map[uuid.UUID]*record[P, L]
	order   []uuid.UUID
	sources map[string]*watchEntry
}

func NewManager[P comparable, L any](device Device[P, L], compiler Compiler, options ...ManagerOption) (*Manager[P, L], error) {
	opts := &managerOptions{
		interval: time.Second,
		ctx:      context.Background(),
	}
	for _, o := range options {
		o(opts)
	}

	m := &Manager[P, L]{
		device:   device,
		compiler: compiler,
		ctx:      opts.ctx,
		interval: opts.interval.Seconds(),
		// Seeded high so the first tick always checks.
		accumulator: 100,
		records:     make(map[uuid.UUID]*record[P, L]),
		sources:     make(map[string]*watchEntry),
	}
	if opts.watch {
		w, err := NewWatcher(m.onSourceEvent)
		if err != nil {
			return nil, err
		}
		m.watcher = w
	}
	return m, nil
}

func (m *Manager[P, L]) onSourceEvent(path string) {
	core.LogDebug("shader source %s changed", path)
	m.requested.Store(true)
}

// RegisterGraphicsPipeline starts tracking handle and builds it right away, so
// a successfully registered pipeline is always usable. When the first build
// fails the pipeline is not tracked and the caller still owns the layout.
func (m *Manager[P, L]) RegisterGraphicsPipeline(handle Handle[P, L], builder *GraphicsPipelineBuilder) error {
	if _, exists := m.records[handle.ID()]; exists {
		return errors.Newf("pipeline %s is already registered", handle.ID())
	}
	if err := builder.Validate(); err != nil {
		return err
	}

	rec := &record[P, L]{handle: handle, builder: *builder, state: StateRegistered}
	m.records[handle.ID()] = rec
	m.order = append(m.order, handle.ID())

	var jobs []Job
	for _, src := range builder.Sources() {
		entry, ok := m.sources[src]
		if !ok {
			entry = &watchEntry{pipelines: make(map[uuid.UUID]struct{})}
			if info, err := os.Stat(src); err == nil {
				entry.modTime = info.ModTime()
			} else {
				core.LogWarn("unable to stat shader source %s: %s", src, err)
			}
			m.sources[src] = entry
			if m.watcher != nil {
				if err := m.watcher.Add(src); err != nil {
					core.LogWarn("unable to watch shader source %s: %s", src, err)
				}
			}
		}
		entry.pipelines[handle.ID()] = struct{}{}
		// A source shared with an already built pipeline has a current binary.
		if !entry.compiled || entry.err != nil {
			jobs = append(jobs, m.compileJob(src, entry))
		}
	}
	runJobs(jobs)
	if err := m.compileGraphicsPipeline(rec); err != nil {
		m.forget(rec)
		return err
	}
	return nil
}

// UnregisterGraphicsPipeline stops tracking handle and destroys its native
// pipeline. The caller makes sure no submitted work still uses it.
func (m *Manager[P, L]) UnregisterGraphicsPipeline(handle Handle[P, L]) {
	rec, ok := m.records[handle.ID()]
	if !ok {
		return
	}
	m.forget(rec)
}

// forget drops rec from the watch table and destroys its native pipeline.
// Sources no other pipeline uses stop being watched.
func (m *Manager[P, L]) forget(rec *record[P, L]) {
	id := rec.handle.ID()
	for _, src := range rec.builder.Sources() {
		entry, ok := m.sources[src]
		if !ok {
			continue
		}
		delete(entry.pipelines, id)
		if len(entry.pipelines) == 0 {
			delete(m.sources, src)
			if m.watcher != nil {
				m.watcher.Remove(src)
			}
		}
	}
	m.destroyNative(rec.handle)
	delete(m.records, id)
	if i := slices.Index(m.order, id); i >= 0 {
		m.order = slices.Delete(m.order, i, i+1)
	}
}

// CompileGraphicsPipeline recompiles the shader sources of handle and rebuilds
// it immediately, outside of the reload throttle.
func (m *Manager[P, L]) CompileGraphicsPipeline(handle Handle[P, L]) error {
	rec, ok := m.records[handle.ID()]
	if !ok {
		return errors.Newf("pipeline %s is not registered", handle.ID())
	}
	if err := m.device.WaitIdle(); err != nil {
		return errors.Wrap(err, "failed to wait for device idle before pipeline compile")
	}
	var jobs []Job
	for _, src := range rec.builder.Sources() {
		entry := m.sources[src]
		if info, err := os.Stat(src); err == nil {
			entry.modTime = info.ModTime()
		}
		jobs = append(jobs, m.compileJob(src, entry))
	}
	runJobs(jobs)
	return m.compileGraphicsPipeline(rec)
}

// compileJob compiles src and records the outcome on entry. Jobs for
// different sources touch different entries and may run concurrently.
func (m *Manager[P, L]) compileJob(src string, entry *watchEntry) Job {
	return Job{
		Run: func() error {
			_, err := m.compiler.Compile(m.ctx, src)
			return err
		},
		OnComplete: func() {
			entry.compiled = true
			entry.err = nil
			core.LogDebug("compiled shader %s", src)
		},
		OnFailure: func(err error) {
			entry.compiled = true
			entry.err = err
			core.LogError("failed to compile shader %s: %s", src, err)
		},
	}
}

// compileGraphicsPipeline builds a new native pipeline from the current
// binaries and swaps it in. The previous pipeline is destroyed only once the
// new one exists.
func (m *Manager[P, L]) compileGraphicsPipeline(rec *record[P, L]) error {
	rec.state = StateCompiling
	fail := func(err error) error {
		rec.state = StateFailed
		rec.err = err
		core.LogError("pipeline %s (%s) kept its previous build: %s", rec.builder.Name, rec.handle.ID(), err)
		return err
	}

	for _, src := range rec.builder.Sources() {
		if entry, ok := m.sources[src]; ok && entry.err != nil {
			return fail(entry.err)
		}
	}
	vertex, err := LoadSPIRV(rec.builder.VertexSPIRVPath())
	if err != nil {
		return fail(err)
	}
	fragment, err := LoadSPIRV(rec.builder.FragmentSPIRVPath())
	if err != nil {
		return fail(err)
	}
	native, err := m.device.BuildGraphicsPipeline(&rec.builder, rec.handle.GetLayout(), vertex, fragment)
	if err != nil {
		return fail(errors.Wrapf(err, "failed to build pipeline %s", rec.builder.Name))
	}

	m.destroyNative(rec.handle)
	rec.handle.SetPipeline(native)
	rec.state = StateBuilt
	rec.err = nil
	rec.builds++
	core.LogInfo("pipeline %s built", rec.builder.Name)
	return nil
}

func (m *Manager[P, L]) destroyNative(handle Handle[P, L]) {
	var zero P
	if old := handle.GetPipeline(); old != zero {
		m.device.DestroyPipeline(old)
		handle.SetPipeline(zero)
	}
}

// Tick checks the shader sources at most once per reload interval, or on the
// next call after the file watcher saw a change.
func (m *Manager[P, L]) Tick(delta float64) error {
	var err error
	if m.accumulator > m.interval || m.requested.Swap(false) {
		err = m.reload()
		m.accumulator = 0
	}
	m.accumulator += delta
	return err
}

// reload recompiles every changed source once and then rebuilds every
// pipeline depending on any of them.
func (m *Manager[P, L]) reload() error {
	paths := make([]string, 0, len(m.sources))
	for path := range m.sources {
		paths = append(paths, path)
	}
	slices.Sort(paths)

	changed := make(map[string]time.Time)
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			// Editors that save by rename briefly remove the file.
			core.LogDebug("unable to stat shader source %s: %s", path, err)
			continue
		}
		if !info.ModTime().Equal(m.sources[path].modTime) {
			changed[path] = info.ModTime()
		}
	}
	if len(changed) == 0 {
		return nil
	}

	if err := m.device.WaitIdle(); err != nil {
		return errors.Wrap(err, "failed to wait for device idle before pipeline reload")
	}

	dirty := make(map[uuid.UUID]struct{})
	jobs := make([]Job, 0, len(changed))
	for _, path := range paths {
		modTime, ok := changed[path]
		if !ok {
			continue
		}
		entry := m.sources[path]
		entry.modTime = modTime
		jobs = append(jobs, m.compileJob(path, entry))
		for id := range entry.pipelines {
			dirty[id] = struct{}{}
		}
	}
	runJobs(jobs)

	for _, id := range m.order {
		if _, ok := dirty[id]; !ok {
			continue
		}
		// Failures are recorded on the pipeline and logged, the old build stays live.
		_ = m.compileGraphicsPipeline(m.records[id])
	}
	return nil
}

func (m *Manager[P, L]) State(handle Handle[P, L]) State {
	if rec, ok := m.records[handle.ID()]; ok {
		return rec.state
	}
	return StateRegistered
}

// Err returns the error of the last failed build of handle.
func (m *Manager[P, L]) Err(handle Handle[P, L]) error {
	if rec, ok := m.records[handle.ID()]; ok {
		return rec.err
	}
	return nil
}

// Builds returns how many times handle was built successfully.
func (m *Manager[P, L]) Builds(handle Handle[P, L]) int {
	if rec, ok := m.records[handle.ID()]; ok {
		return rec.builds
	}
	return 0
}

// Dependents returns the ids of the pipelines using the shader source path.
func (m *Manager[P, L]) Dependents(path string) []uuid.UUID {
	entry, ok := m.sources[path]
	if !ok {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(entry.pipelines))
	for _, id := range m.order {
		if _, ok := entry.pipelines[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Failed returns how many pipelines are running on a stale build.
func (m *Manager[P, L]) Failed() int {
	n := 0
	for _, rec := range m.records {
		if rec.state == StateFailed {
			n++
		}
	}
	return n
}

func (m *Manager[P, L]) Len() int {
	return len(m.records)
}

// Destroy releases every native pipeline and stops the file watcher.
func (m *Manager[P, L]) Destroy() {
	for _, id := range m.order {
		m.destroyNative(m.records[id].handle)
	}
	m.records = make(map[uuid.UUID]*record[P, L])
	m.sources = make(map[string]*watchEntry)
	m.order = nil
	if m.watcher != nil {
		if err := m.watcher.Close(); err != nil {
			core.LogWarn("failed to close shader watcher: %s", err)
		}
		m.watcher = nil
	}
}
