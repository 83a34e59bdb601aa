package pipeline

import (
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/prism/engine/core"
)

// Watcher reports changes of individual shader sources. It watches their
// directories, editors often replace a file instead of writing to it.
type Watcher struct {
	fsnotify *fsnotify.Watcher
	onChange func(path string)

	mu    sync.Mutex
	files map[string]string
	dirs  map[string]int

	done     chan struct{}
	wg       sync.WaitGroup
	isClosed bool
}

func NewWatcher(onChange func(path string)) (*Watcher, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create shader watcher")
	}
	w := &Watcher{
		fsnotify: fsWatch,
		onChange: onChange,
		files:    make(map[string]string),
		dirs:     make(map[string]int),
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.start()
	return w, nil
}

// Add starts reporting changes to path.
func (w *Watcher) Add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isClosed {
		return errors.New("shader watcher already closed")
	}
	if _, ok := w.files[abs]; ok {
		return nil
	}
	dir := filepath.Dir(abs)
	if w.dirs[dir] == 0 {
		if err := w.fsnotify.Add(dir); err != nil {
			return errors.Wrapf(err, "failed to watch %s", dir)
		}
	}
	w.dirs[dir]++
	w.files[abs] = path
	return nil
}

func (w *Watcher) Remove(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.files[abs]; !ok {
		return
	}
	delete(w.files, abs)
	dir := filepath.Dir(abs)
	w.dirs[dir]--
	if w.dirs[dir] == 0 {
		delete(w.dirs, dir)
		if !w.isClosed {
			w.fsnotify.Remove(dir)
		}
	}
}

func (w *Watcher) start() {
	defer w.wg.Done()
	for {
		select {
		case e, ok := <-w.fsnotify.Events:
			if !ok {
				return
			}
			if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) && !e.Has(fsnotify.Rename) {
				continue
			}
			abs, err := filepath.Abs(e.Name)
			if err != nil {
				continue
			}
			w.mu.Lock()
			path, tracked := w.files[abs]
			w.mu.Unlock()
			if tracked {
				w.onChange(path)
			}

		case err, ok := <-w.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("shader watcher: %s", err)

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.isClosed {
		w.mu.Unlock()
		return nil
	}
	w.isClosed = true
	w.mu.Unlock()

	close(w.done)
	w.wg.Wait()
	return w.fsnotify.Close()
}
