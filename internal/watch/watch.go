// Package watch observes an inbox directory and hands every category file
// dropped into it to the owner loop once it stops changing.
package watch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/OCAP2/bookmarks/internal/loop"
	"github.com/OCAP2/bookmarks/internal/storage"
	"github.com/fsnotify/fsnotify"
)

// DefaultSettle is how long a file must stay unchanged before it is imported.
const DefaultSettle = 250 * time.Millisecond

// Options configures a Watcher.
type Options struct {
	Dir    string
	Poster loop.Poster
	// Import runs on the owner loop for every settled file.
	Import func(path string)
	Settle time.Duration
	Logger *slog.Logger
}

// Watcher imports files appearing in a directory.
type Watcher struct {
	opts Options
	fsw  *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*time.Timer
	running bool

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates the inbox directory if needed and prepares a watcher.
func New(opts Options) (*Watcher, error) {
	if opts.Dir == "" {
		return nil, errors.New("watch: inbox directory is empty")
	}
	if opts.Poster == nil || opts.Import == nil {
		return nil, errors.New("watch: poster and import are required")
	}
	if opts.Settle <= 0 {
		opts.Settle = DefaultSettle
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		opts:    opts,
		fsw:     fsw,
		pending: make(map[string]*time.Timer),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching. Files already present are imported as well.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.fsw.Add(w.opts.Dir); err != nil {
		return err
	}

	entries, err := os.ReadDir(w.opts.Dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() {
			w.touch(filepath.Join(w.opts.Dir, e.Name()))
		}
	}

	w.wg.Add(1)
	go w.processEvents(ctx)
	w.opts.Logger.Info("Watching inbox", "dir", w.opts.Dir)
	return nil
}

// Stop ends watching and drops files that have not settled yet.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.fsw.Close()
		w.wg.Wait()

		w.mu.Lock()
		for p, t := range w.pending {
			t.Stop()
			delete(w.pending, p)
		}
		w.running = false
		w.mu.Unlock()
	})
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			switch {
			case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
				w.touch(event.Name)
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				w.forget(event.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.opts.Logger.Warn("Inbox watcher error", "error", err)
		}
	}
}

// touch (re)starts the settle timer of path.
func (w *Watcher) touch(path string) {
	if !storage.IsImportable(path) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Reset(w.opts.Settle)
		return
	}
	w.pending[path] = time.AfterFunc(w.opts.Settle, func() { w.settled(path) })
}

func (w *Watcher) forget(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) settled(path string) {
	w.mu.Lock()
	delete(w.pending, path)
	w.mu.Unlock()

	select {
	case <-w.done:
		return
	default:
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}
	w.opts.Logger.Debug("Inbox file settled", "path", path)
	w.opts.Poster.Post(func() { w.opts.Import(path) })
}
