package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/OCAP2/bookmarks/internal/dispatcher"
	"github.com/OCAP2/bookmarks/internal/loop"
	"github.com/OCAP2/bookmarks/pkg/core"
	"golang.org/x/time/rate"
)

const (
	defaultInterval = time.Hour
	defaultTimeout  = time.Minute
	laneSize        = 16
)

// Dependencies holds everything the machine needs.
type Dependencies struct {
	Store      Store
	Poster     loop.Poster
	Checker    *loop.Checker
	Dispatcher *dispatcher.Dispatcher
	Target     Target
	Logger     *slog.Logger
	Config     Config
	// Now defaults to time.Now.
	Now func() time.Time
}

// Machine is the backup/restore state machine.
type Machine struct {
	store    Store
	poster   loop.Poster
	checker  *loop.Checker
	disp     *dispatcher.Dispatcher
	target   Target
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
	limiter  *rate.Limiter
	handlers Handlers

	ctx    context.Context
	cancel context.CancelFunc

	phase   Phase
	// mirror of phase for readers off the owner goroutine
	observed atomic.Int32
	enabled bool
	closed  bool
	// bumped whenever in-flight results must be ignored
	syncGen    uint64
	restoreGen uint64
	stopTicker chan struct{}

	stagingDir    string
	preparedFiles []string
	preparedData  []*core.FileData
	backupTime    time.Time
	lastSync      time.Time
}

type syncJob struct {
	gen   uint64
	files []string
	at    time.Time
}

type restoreQuery struct {
	gen uint64
	dir string
}

type restoreDownload struct {
	gen      uint64
	manifest *Manifest
	dir      string
}

type cleanupJob struct {
	dir string
}

// New creates an idle, disabled machine and registers its lanes.
func New(deps Dependencies) *Machine {
	cfg := deps.Config
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	limit := rate.Inf
	if cfg.MinRequestInterval > 0 {
		limit = rate.Every(cfg.MinRequestInterval)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())

	m := &Machine{
		store:   deps.Store,
		poster:  deps.Poster,
		checker: deps.Checker,
		disp:    deps.Dispatcher,
		target:  deps.Target,
		logger:  logger.With("component", "cloud"),
		cfg:     cfg,
		now:     now,
		limiter: rate.NewLimiter(limit, 1),
		ctx:     ctx,
		cancel:  cancel,
	}

	m.disp.Register(dispatcher.CmdCloudSync, m.handleSync, dispatcher.Buffered(laneSize), dispatcher.Blocking(), dispatcher.Logged())
	m.disp.Register(dispatcher.CmdCloudRestore, m.handleRestore, dispatcher.Buffered(laneSize), dispatcher.Blocking(), dispatcher.Logged())
	return m
}

// SetHandlers replaces the notification handlers.
func (m *Machine) SetHandlers(h Handlers) {
	m.checker.Check()
	m.handlers = h
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	return m.phase
}

// ObservedPhase returns the current phase and may be called from any goroutine.
func (m *Machine) ObservedPhase() Phase {
	return Phase(m.observed.Load())
}

func (m *Machine) setPhase(p Phase) {
	m.phase = p
	m.observed.Store(int32(p))
}

// IsEnabled reports whether periodic backups are on.
func (m *Machine) IsEnabled() bool {
	return m.enabled
}

// LastSynchronization returns the time of the last successful backup.
func (m *Machine) LastSynchronization() time.Time {
	return m.lastSync
}

// SetLastSynchronization seeds the last backup time from persisted state.
func (m *Machine) SetLastSynchronization(t time.Time) {
	m.lastSync = t
}

// PreparedFiles returns the staged restore files while in FilesPrepared.
func (m *Machine) PreparedFiles() []string {
	if m.phase != PhaseFilesPrepared {
		return nil
	}
	out := make([]string, len(m.preparedFiles))
	copy(out, m.preparedFiles)
	return out
}

// SetEnabled turns periodic backups on or off. Enabling starts a backup
// right away. Disabling drops pending attempts; an in-flight backup still
// finishes but its result is ignored.
func (m *Machine) SetEnabled(enabled bool) {
	m.checker.Check()
	if m.closed || enabled == m.enabled {
		return
	}
	m.enabled = enabled
	m.logger.Info("Cloud backup toggled", "enabled", enabled)

	if !enabled {
		m.stopScheduler()
		m.syncGen++
		if m.isSyncPhase() {
			m.setPhase(PhaseIdle)
		}
		return
	}

	m.startScheduler()
	m.startSync()
}

// RequestSynchronization asks for a backup after a local change. Requests
// are throttled by MinRequestInterval.
func (m *Machine) RequestSynchronization() bool {
	m.checker.Check()
	if !m.enabled || m.phase != PhaseIdle {
		return false
	}
	if !m.limiter.Allow() {
		m.logger.Debug("Backup request throttled")
		return false
	}
	return m.startSync()
}

// Synchronize starts a backup now regardless of throttling.
func (m *Machine) Synchronize() bool {
	m.checker.Check()
	if !m.enabled || m.phase != PhaseIdle {
		return false
	}
	return m.startSync()
}

// RequestRestoring asks the store whether a backup exists. Only valid while idle.
func (m *Machine) RequestRestoring() error {
	m.checker.Check()
	if m.closed {
		return ErrInvalidState
	}
	if m.store == nil {
		return ErrCloudUnavailable
	}
	if m.phase != PhaseIdle {
		return fmt.Errorf("%w: restore requested in %s", ErrInvalidState, m.phase)
	}

	m.restoreGen++
	m.setPhase(PhaseRestoreRequested)
	m.stagingDir = newStagingDir(m.cfg.StagingDir)
	m.notifyStarted(SyncRestore)

	if _, err := m.disp.Dispatch(dispatcher.Event{
		Command: dispatcher.CmdCloudRestore,
		Payload: restoreQuery{gen: m.restoreGen, dir: m.stagingDir},
	}); err != nil {
		m.setPhase(PhaseIdle)
		m.notifyFinished(SyncRestore, ResultInvalidCall, err.Error())
		return err
	}
	return nil
}

// ApplyRestoring replaces all categories by the prepared files. Only valid
// from FilesPrepared; any other phase is rejected without side effects. When
// the target fails to apply, the files stay prepared so the caller can retry
// or cancel.
func (m *Machine) ApplyRestoring() error {
	m.checker.Check()
	if m.phase != PhaseFilesPrepared {
		return fmt.Errorf("%w: apply requested in %s", ErrInvalidState, m.phase)
	}

	m.setPhase(PhaseApplyRestoring)
	if err := m.target.ApplyRestore(m.preparedData); err != nil {
		m.setPhase(PhaseFilesPrepared)
		return fmt.Errorf("apply restore: %w", err)
	}
	m.dropStaging()
	m.setPhase(PhaseIdle)
	m.notifyFinished(SyncRestore, ResultSuccess, "")
	return nil
}

// CancelRestoring discards staged files. Valid while a restore is pending.
func (m *Machine) CancelRestoring() error {
	m.checker.Check()
	switch m.phase {
	case PhaseRestoreRequested, PhaseRestoreResultReady, PhaseFilesPrepared:
	default:
		return fmt.Errorf("%w: cancel requested in %s", ErrInvalidState, m.phase)
	}

	m.setPhase(PhaseCancelRestoring)
	m.restoreGen++
	m.dropStaging()
	m.setPhase(PhaseIdle)
	m.notifyFinished(SyncRestore, ResultUserInterrupted, "")
	return nil
}

// Close stops scheduling and ignores every late result.
func (m *Machine) Close() {
	m.checker.Check()
	if m.closed {
		return
	}
	m.closed = true
	m.enabled = false
	m.stopScheduler()
	m.syncGen++
	m.restoreGen++
	m.cancel()
	if m.stagingDir != "" {
		_ = os.RemoveAll(m.stagingDir)
		m.stagingDir = ""
	}
}

func (m *Machine) isSyncPhase() bool {
	switch m.phase {
	case PhaseSynchronizationStarted, PhaseSynchronizationSucceeded, PhaseSynchronizationFailed:
		return true
	}
	return false
}

func (m *Machine) startSync() bool {
	if m.store == nil || m.phase != PhaseIdle {
		return false
	}
	m.syncGen++
	m.setPhase(PhaseSynchronizationStarted)
	m.notifyStarted(SyncBackup)

	job := syncJob{gen: m.syncGen, files: m.target.BackupFiles(), at: m.now()}
	if _, err := m.disp.Dispatch(dispatcher.Event{Command: dispatcher.CmdCloudSync, Payload: job}); err != nil {
		m.finishSync(job.gen, ResultInvalidCall, err.Error(), time.Time{})
		return false
	}
	return true
}

func (m *Machine) finishSync(gen uint64, result SyncResult, errorStr string, at time.Time) {
	if gen != m.syncGen || m.phase != PhaseSynchronizationStarted {
		m.logger.Debug("Ignoring stale backup result", "result", result.String())
		return
	}
	if result == ResultSuccess {
		m.setPhase(PhaseSynchronizationSucceeded)
		m.lastSync = at
		m.target.Synchronized(at)
	} else {
		m.setPhase(PhaseSynchronizationFailed)
		m.logger.Warn("Backup failed, retrying on next schedule", "result", result.String(), "error", errorStr)
	}
	m.notifyFinished(SyncBackup, result, errorStr)
	m.setPhase(PhaseIdle)
}

func (m *Machine) onRestoreResult(gen uint64, result RestoreRequestResult, manifest *Manifest, errorStr string) {
	if gen != m.restoreGen || m.phase != PhaseRestoreRequested {
		m.logger.Debug("Ignoring stale restore result", "result", result.String())
		return
	}
	m.setPhase(PhaseRestoreResultReady)
	if manifest != nil {
		m.backupTime = manifest.Timestamp
	}
	if m.handlers.OnRestoreRequested != nil {
		m.handlers.OnRestoreRequested(result, m.backupTime)
	}
	if m.phase != PhaseRestoreResultReady {
		// a handler cancelled
		return
	}

	if result != RestoreBackupExists {
		m.setPhase(PhaseIdle)
		code := ResultNetworkError
		if result == RestoreNotEnoughDiskSpace {
			code = ResultDiskError
		}
		if errorStr == "" {
			errorStr = result.String()
		}
		m.dropStaging()
		m.notifyFinished(SyncRestore, code, errorStr)
		return
	}

	if _, err := m.disp.Dispatch(dispatcher.Event{
		Command: dispatcher.CmdCloudRestore,
		Payload: restoreDownload{gen: gen, manifest: manifest, dir: m.stagingDir},
	}); err != nil {
		m.setPhase(PhaseIdle)
		m.dropStaging()
		m.notifyFinished(SyncRestore, ResultInvalidCall, err.Error())
	}
}

func (m *Machine) onFilesPrepared(gen uint64, paths []string, data []*core.FileData, err error) {
	if gen != m.restoreGen || m.phase != PhaseRestoreResultReady {
		m.logger.Debug("Ignoring stale restore download")
		return
	}
	if err != nil {
		m.setPhase(PhaseIdle)
		m.dropStaging()
		m.notifyFinished(SyncRestore, resultOf(err), err.Error())
		return
	}
	m.setPhase(PhaseFilesPrepared)
	m.preparedFiles = paths
	m.preparedData = data
	if m.handlers.OnRestoredFilesPrepared != nil {
		m.handlers.OnRestoredFilesPrepared()
	}
}

func (m *Machine) dropStaging() {
	m.preparedFiles = nil
	m.preparedData = nil
	if m.stagingDir == "" {
		return
	}
	dir := m.stagingDir
	m.stagingDir = ""
	// same lane as downloads, so an in-flight download finishes first
	if _, err := m.disp.Dispatch(dispatcher.Event{Command: dispatcher.CmdCloudRestore, Payload: cleanupJob{dir: dir}}); err != nil {
		_ = os.RemoveAll(dir)
	}
}

func (m *Machine) notifyStarted(t SyncType) {
	if m.handlers.OnSynchronizationStarted != nil {
		m.handlers.OnSynchronizationStarted(t)
	}
}

func (m *Machine) notifyFinished(t SyncType, result SyncResult, errorStr string) {
	if m.handlers.OnSynchronizationFinished != nil {
		m.handlers.OnSynchronizationFinished(t, result, errorStr)
	}
}

func (m *Machine) startScheduler() {
	stop := make(chan struct{})
	m.stopTicker = stop
	interval := m.cfg.Interval
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.poster.Post(func() {
					if m.enabled && m.phase == PhaseIdle {
						m.startSync()
					}
				})
			}
		}
	}()
}

func (m *Machine) stopScheduler() {
	if m.stopTicker != nil {
		close(m.stopTicker)
		m.stopTicker = nil
	}
}

// Lane handlers. They never touch machine state directly.

func (m *Machine) handleSync(e dispatcher.Event) (any, error) {
	job := e.Payload.(syncJob)
	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.Timeout)
	defer cancel()

	manifest, err := Backup(ctx, m.store, job.files, job.at)
	result, errorStr := resultOf(err), ""
	if err != nil {
		errorStr = err.Error()
	}
	at := job.at
	if manifest != nil {
		at = manifest.Timestamp
	}
	m.poster.Post(func() { m.finishSync(job.gen, result, errorStr, at) })
	return nil, err
}

func (m *Machine) handleRestore(e dispatcher.Event) (any, error) {
	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.Timeout)
	defer cancel()

	switch job := e.Payload.(type) {
	case restoreQuery:
		manifest, err := FetchManifest(ctx, m.store)
		result, errorStr := RestoreBackupExists, ""
		switch {
		case errors.Is(err, ErrNoBackup):
			result = RestoreNoBackup
		case err != nil:
			result, errorStr = RestoreRequestError, err.Error()
		case !m.enoughSpace(job.dir, manifest.TotalSize()):
			result = RestoreNotEnoughDiskSpace
		}
		m.poster.Post(func() { m.onRestoreResult(job.gen, result, manifest, errorStr) })
		return result, err
	case restoreDownload:
		paths, data, err := Download(ctx, m.store, job.manifest, job.dir)
		m.poster.Post(func() { m.onFilesPrepared(job.gen, paths, data, err) })
		return len(paths), err
	case cleanupJob:
		return nil, os.RemoveAll(job.dir)
	default:
		return nil, fmt.Errorf("unexpected restore payload %T", e.Payload)
	}
}

func (m *Machine) enoughSpace(dir string, need uint64) bool {
	if m.cfg.FreeSpace == nil {
		return true
	}
	probe := dir
	for probe != "" {
		if _, err := os.Stat(probe); err == nil {
			break
		}
		parent := filepath.Dir(probe)
		if parent == probe {
			break
		}
		probe = parent
	}
	free, err := m.cfg.FreeSpace(probe)
	if err != nil {
		m.logger.Warn("Free space check failed", "dir", probe, "error", err)
		return true
	}
	return free >= need
}
