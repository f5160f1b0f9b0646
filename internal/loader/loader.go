// Package loader imports category files one at a time on a background lane
// and hands every parsed file back to the owner goroutine in enqueue order.
package loader

import (
	"fmt"
	"log/slog"

	"github.com/OCAP2/bookmarks/internal/dispatcher"
	"github.com/OCAP2/bookmarks/internal/loop"
	"github.com/OCAP2/bookmarks/internal/queue"
	"github.com/OCAP2/bookmarks/internal/storage"
	"github.com/OCAP2/bookmarks/pkg/core"
)

const laneSize = 4

// Entry is one queued load.
type Entry struct {
	Path string
	// Transient files are removed by the caller after a successful import.
	Transient bool
}

// Handlers are invoked on the owner goroutine. Nil handlers are skipped.
type Handlers struct {
	// OnStarted fires when an idle loader receives its first entry.
	OnStarted func()
	// OnFinished fires once the queue has drained.
	OnFinished func()
	// OnFileSuccess receives the parsed file. Entries enqueued from inside
	// it extend the current episode.
	OnFileSuccess func(e Entry, data *core.FileData)
	// OnFileError reports a failed load. The file is left on disk.
	OnFileError func(e Entry, err error)
}

// Dependencies holds everything the loader needs.
type Dependencies struct {
	Poster     loop.Poster
	Checker    *loop.Checker
	Dispatcher *dispatcher.Dispatcher
	Logger     *slog.Logger
}

// Loader is the FIFO import pipeline.
type Loader struct {
	poster   loop.Poster
	checker  *loop.Checker
	disp     *dispatcher.Dispatcher
	logger   *slog.Logger
	handlers Handlers

	pending *queue.Queue[Entry]
	// active is set while one entry is on the lane
	active  bool
	episode bool
	closed  bool
	gen     uint64
}

type loadJob struct {
	gen   uint64
	entry Entry
}

type scanJob struct {
	dir  string
	done func([]string, error)
}

// New creates an idle loader and registers its lanes.
func New(deps Dependencies) *Loader {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{
		poster:  deps.Poster,
		checker: deps.Checker,
		disp:    deps.Dispatcher,
		logger:  logger.With("component", "loader"),
		pending: queue.New[Entry](),
	}
	l.disp.Register(dispatcher.CmdLoadFile, l.handleLoad, dispatcher.Buffered(laneSize), dispatcher.Blocking(), dispatcher.Logged())
	l.disp.Register(dispatcher.CmdScanDir, l.handleScan, dispatcher.Buffered(laneSize), dispatcher.Blocking(), dispatcher.Logged())
	return l
}

// SetHandlers replaces the notification handlers.
func (l *Loader) SetHandlers(h Handlers) {
	l.checker.Check()
	l.handlers = h
}

// Enqueue appends a file to the queue.
func (l *Loader) Enqueue(path string, transient bool) {
	l.checker.Check()
	if l.closed {
		return
	}
	l.pending.Push(Entry{Path: path, Transient: transient})
	if !l.episode {
		l.episode = true
		if l.handlers.OnStarted != nil {
			l.handlers.OnStarted()
		}
	}
	if !l.active {
		l.next()
	}
}

// IsLoading reports whether a loading episode is in progress.
func (l *Loader) IsLoading() bool {
	return l.episode
}

// Pending returns the number of entries not yet handed to the lane.
func (l *Loader) Pending() int {
	return l.pending.Len()
}

// ScanDir lists the category files of dir on the scan lane and calls done
// with the result on the owner goroutine.
func (l *Loader) ScanDir(dir string, done func(paths []string, err error)) {
	l.checker.Check()
	if l.closed {
		return
	}
	if _, err := l.disp.Dispatch(dispatcher.Event{Command: dispatcher.CmdScanDir, Payload: scanJob{dir: dir, done: done}}); err != nil {
		done(nil, err)
	}
}

// Close drops queued entries and ignores in-flight results.
func (l *Loader) Close() {
	l.checker.Check()
	l.closed = true
	l.gen++
	l.pending.Clear()
	l.active = false
	l.episode = false
}

func (l *Loader) next() {
	e, ok := l.pending.Pop()
	if !ok {
		l.active = false
		l.episode = false
		if l.handlers.OnFinished != nil {
			l.handlers.OnFinished()
		}
		return
	}
	l.active = true
	job := loadJob{gen: l.gen, entry: e}
	if _, err := l.disp.Dispatch(dispatcher.Event{Command: dispatcher.CmdLoadFile, Payload: job}); err != nil {
		l.done(job, nil, fmt.Errorf("dispatch load: %w", err))
	}
}

func (l *Loader) done(job loadJob, data *core.FileData, err error) {
	if job.gen != l.gen {
		return
	}
	if err != nil {
		l.logger.Warn("Failed to load file", "path", job.entry.Path, "error", err)
		if l.handlers.OnFileError != nil {
			l.handlers.OnFileError(job.entry, err)
		}
	} else if l.handlers.OnFileSuccess != nil {
		l.handlers.OnFileSuccess(job.entry, data)
	}
	l.next()
}

func (l *Loader) handleLoad(e dispatcher.Event) (any, error) {
	job := e.Payload.(loadJob)
	data, err := storage.ReadFile(job.entry.Path)
	l.poster.Post(func() { l.done(job, data, err) })
	return nil, err
}

func (l *Loader) handleScan(e dispatcher.Event) (any, error) {
	job := e.Payload.(scanJob)
	paths, err := storage.ScanDir(job.dir)
	l.poster.Post(func() {
		if !l.closed {
			job.done(paths, err)
		}
	})
	return len(paths), err
}
