// Package bookmarks is the bookmark manager: it owns the entity store, batches
// mutations into edit sessions, pushes diffs to the renderer and persists
// dirty categories.
//
// A Manager belongs to one owner goroutine. Every method panics when called
// from another goroutine; background work hands its results back through
// the owner loop.
package bookmarks

import (
	"log/slog"
	"os"
	"time"

	"github.com/OCAP2/bookmarks/internal/changes"
	"github.com/OCAP2/bookmarks/internal/cloud"
	"github.com/OCAP2/bookmarks/internal/dispatcher"
	"github.com/OCAP2/bookmarks/internal/ids"
	"github.com/OCAP2/bookmarks/internal/loader"
	"github.com/OCAP2/bookmarks/internal/loop"
	"github.com/OCAP2/bookmarks/internal/render"
	"github.com/OCAP2/bookmarks/internal/storage"
	"github.com/OCAP2/bookmarks/internal/store"
	"github.com/OCAP2/bookmarks/pkg/core"
)

const laneSize = 16

// StateStore persists the scalar manager state across restarts.
type StateStore interface {
	LoadState() (core.State, error)
	SaveState(core.State) error
}

// Callbacks are invoked on the owner goroutine. Nil callbacks are skipped.
type Callbacks struct {
	OnBookmarksCreated func(ids []core.MarkID)
	OnBookmarksUpdated func(ids []core.MarkID)
	OnBookmarksDeleted func(ids []core.MarkID)
	OnCategorySaved    func(id core.GroupID, path string)
	OnLoadStarted      func()
	OnLoadFinished     func()
	OnFileSuccess      func(path string, transient bool)
	OnFileError        func(path string, err error)
	OnFlush            func(stats core.FlushStats)
}

// Dependencies holds everything the manager needs.
type Dependencies struct {
	// Dir holds one file per category.
	Dir string
	// Binary selects the gzip format for new files.
	Binary bool
	// ShareDir receives archives built for sharing. Defaults to a temp dir.
	ShareDir string

	Poster     loop.Poster
	Checker    *loop.Checker
	Dispatcher *dispatcher.Dispatcher
	Logger     *slog.Logger
	State      StateStore

	// CloudStore enables backup and restore when set.
	CloudStore  cloud.Store
	CloudConfig cloud.Config

	Now func() time.Time
}

// Manager is the bookmark manager.
type Manager struct {
	dir      string
	binary   bool
	shareDir string

	poster  loop.Poster
	checker *loop.Checker
	disp    *dispatcher.Dispatcher
	logger  *slog.Logger
	states  StateStore
	now     func() time.Time

	ids      *ids.Allocator
	store    *store.Store
	tracker  *changes.Tracker
	renderer render.Renderer
	loader   *loader.Loader
	cloud    *cloud.Machine

	callbacks Callbacks

	editDepth int
	// directory scans not answered yet
	scanning int
	// categories whose creating flush must not save them
	skipSave map[core.GroupID]bool
	flushing bool
	// writeFile persists category files; tests replace it
	writeFile func(path string, data *core.FileData, binary bool) error

	state     core.State
	selection core.MarkID
	myPos     core.MarkID
	closed    bool
}

// New creates a manager with no categories. Persisted state is read once.
func New(deps Dependencies) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	shareDir := deps.ShareDir
	if shareDir == "" {
		shareDir = os.TempDir()
	}

	st := store.New()
	m := &Manager{
		dir:      deps.Dir,
		binary:   deps.Binary,
		shareDir: shareDir,
		poster:   deps.Poster,
		checker:  deps.Checker,
		disp:     deps.Dispatcher,
		logger:   logger.With("component", "bookmarks"),
		states:   deps.State,
		now:      now,
		ids:      ids.New(),
		store:    st,
		tracker:  changes.New(st),
		skipSave: make(map[core.GroupID]bool),
		state:    core.DefaultState(),

		writeFile: storage.WriteFile,
	}
	m.checker.Check()

	if m.states != nil {
		if s, err := m.states.LoadState(); err != nil {
			m.logger.Warn("Failed to load state, using defaults", "error", err)
		} else {
			m.state = s
		}
	}
	// group ids do not survive a restart, the file path does
	m.state.LastEditedCategory = core.InvalidGroupID

	m.disp.Register(dispatcher.CmdShare, m.handleShare, dispatcher.Buffered(laneSize), dispatcher.Blocking(), dispatcher.Logged())
	m.disp.Register(dispatcher.CmdRemoveFile, m.handleRemove, dispatcher.Buffered(laneSize), dispatcher.Blocking(), dispatcher.Logged())

	m.loader = loader.New(loader.Dependencies{
		Poster:     deps.Poster,
		Checker:    deps.Checker,
		Dispatcher: deps.Dispatcher,
		Logger:     logger,
	})
	m.loader.SetHandlers(loader.Handlers{
		OnStarted:     m.onLoadStarted,
		OnFinished:    m.onLoadFinished,
		OnFileSuccess: m.onFileLoaded,
		OnFileError:   m.onFileError,
	})

	m.cloud = cloud.New(cloud.Dependencies{
		Store:      deps.CloudStore,
		Poster:     deps.Poster,
		Checker:    deps.Checker,
		Dispatcher: deps.Dispatcher,
		Target:     m,
		Logger:     logger,
		Config:     deps.CloudConfig,
		Now:        now,
	})
	m.cloud.SetLastSynchronization(m.state.LastSynchronization)

	es := m.BeginEdit()
	m.selection = es.CreateUserMark(core.MarkTypeSelection, core.Position2D{})
	m.myPos = es.CreateUserMark(core.MarkTypeMyPosition, core.Position2D{})
	es.End()
	return m
}

// SetCallbacks replaces the notification callbacks.
func (m *Manager) SetCallbacks(cb Callbacks) {
	m.checker.Check()
	m.callbacks = cb
}

// SetRenderer attaches a renderer. It first receives the whole model,
// then one diff per flush. A nil renderer detaches.
func (m *Manager) SetRenderer(r render.Renderer) {
	m.checker.Check()
	m.renderer = r
	if r != nil && !m.closed {
		r.UpdateMarks(m.tracker.FullSnapshot())
	}
}

// Store gives read access to the entities.
func (m *Manager) Store() *store.Store {
	return m.store
}

// Cloud returns the backup/restore machine.
func (m *Manager) Cloud() *cloud.Machine {
	return m.cloud
}

// Dir is the category directory.
func (m *Manager) Dir() string {
	return m.dir
}

// SelectionMark is the single selection marker.
func (m *Manager) SelectionMark() core.MarkID {
	return m.selection
}

// MyPositionMark is the single current-position marker.
func (m *Manager) MyPositionMark() core.MarkID {
	return m.myPos
}

// IsLoading reports whether files are being imported or a directory
// scan is still running.
func (m *Manager) IsLoading() bool {
	return m.scanning > 0 || m.loader.IsLoading()
}

// PendingLoads is the number of queued imports.
func (m *Manager) PendingLoads() int {
	return m.loader.Pending()
}

// State returns a copy of the scalar state.
func (m *Manager) State() core.State {
	return m.state
}

// Teardown flushes the state and stops every background component. Late
// results are ignored.
func (m *Manager) Teardown() {
	m.checker.Check()
	if m.closed {
		return
	}
	if m.editDepth > 0 {
		panic("bookmarks: teardown inside an edit session")
	}
	m.loader.Close()
	m.cloud.Close()
	m.saveState()
	m.closed = true
	m.renderer = nil
}

func (m *Manager) saveState() {
	if m.states == nil {
		return
	}
	if err := m.states.SaveState(m.state); err != nil {
		m.logger.Error("Failed to save state", "error", err)
	}
}
