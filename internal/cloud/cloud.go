// Package cloud drives backup and restore of category files against a remote
// store. The Machine is owned by the manager's goroutine; network work runs on
// dispatcher lanes and reports back through the owner loop.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OCAP2/bookmarks/pkg/core"
)

var (
	// ErrNotFound is returned by a Store for a missing key.
	ErrNotFound = errors.New("cloud: object not found")
	// ErrInvalidState is returned when an operation is not allowed in the current phase.
	ErrInvalidState = errors.New("cloud: operation not allowed in current phase")
	// ErrNoBackup is reported when the store holds no backup.
	ErrNoBackup = errors.New("cloud: no backup")
	// ErrAuth is wrapped by stores when the remote side refuses the credentials.
	ErrAuth = errors.New("cloud: authentication failed")
	// ErrCloudUnavailable is returned when no store is configured.
	ErrCloudUnavailable = errors.New("cloud: no backup store configured")
)

// Store is a flat key/value object store.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Target is the side of the manager the machine drives. All methods are
// called on the owner goroutine.
type Target interface {
	// BackupFiles returns the category files to upload.
	BackupFiles() []string
	// ApplyRestore replaces every category by the restored ones. On error
	// the existing categories must be left as they were.
	ApplyRestore(files []*core.FileData) error
	// Synchronized records the time of the last successful backup.
	Synchronized(at time.Time)
}

// Phase is the state of the machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSynchronizationStarted
	PhaseSynchronizationSucceeded
	PhaseSynchronizationFailed
	PhaseRestoreRequested
	PhaseRestoreResultReady
	PhaseFilesPrepared
	PhaseApplyRestoring
	PhaseCancelRestoring
)

var phaseNames = [...]string{
	"idle",
	"synchronization_started",
	"synchronization_succeeded",
	"synchronization_failed",
	"restore_requested",
	"restore_result_ready",
	"files_prepared",
	"apply_restoring",
	"cancel_restoring",
}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// SyncType tells backups and restores apart in handler calls.
type SyncType int

const (
	SyncBackup SyncType = iota
	SyncRestore
)

func (t SyncType) String() string {
	if t == SyncRestore {
		return "restore"
	}
	return "backup"
}

// SyncResult is the terminal code of a synchronization.
type SyncResult int

const (
	ResultSuccess SyncResult = iota
	ResultAuthError
	ResultNetworkError
	ResultDiskError
	ResultUserInterrupted
	ResultInvalidCall
)

var resultNames = [...]string{
	"success", "auth_error", "network_error", "disk_error", "user_interrupted", "invalid_call",
}

func (r SyncResult) String() string {
	if int(r) < len(resultNames) {
		return resultNames[r]
	}
	return fmt.Sprintf("result(%d)", int(r))
}

// RestoreRequestResult is the answer to a restore availability query.
type RestoreRequestResult int

const (
	RestoreBackupExists RestoreRequestResult = iota
	RestoreNoBackup
	RestoreNotEnoughDiskSpace
	RestoreRequestError
)

func (r RestoreRequestResult) String() string {
	switch r {
	case RestoreBackupExists:
		return "backup_exists"
	case RestoreNoBackup:
		return "no_backup"
	case RestoreNotEnoughDiskSpace:
		return "not_enough_disk_space"
	default:
		return "request_error"
	}
}

// Handlers are invoked on the owner goroutine. Nil handlers are skipped.
type Handlers struct {
	OnSynchronizationStarted  func(t SyncType)
	OnSynchronizationFinished func(t SyncType, result SyncResult, errorStr string)
	OnRestoreRequested        func(result RestoreRequestResult, backupTime time.Time)
	OnRestoredFilesPrepared   func()
}

// Config tunes scheduling and staging.
type Config struct {
	// Interval between periodic backups.
	Interval time.Duration
	// MinRequestInterval throttles backups requested by local changes.
	MinRequestInterval time.Duration
	// StagingDir receives restore downloads, one sub-directory per restore.
	StagingDir string
	// FreeSpace reports available bytes in dir. Nil means unlimited.
	FreeSpace func(dir string) (uint64, error)
	// Timeout bounds one network operation.
	Timeout time.Duration
}
