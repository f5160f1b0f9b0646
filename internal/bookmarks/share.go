package bookmarks

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/OCAP2/bookmarks/internal/dispatcher"
	"github.com/OCAP2/bookmarks/internal/storage"
	"github.com/OCAP2/bookmarks/pkg/core"
)

// SharingCode is the outcome of PrepareFileForSharing.
type SharingCode int

const (
	SharingSuccess SharingCode = iota
	SharingEmptyCategory
	SharingArchiveError
	SharingFileError
)

func (c SharingCode) String() string {
	switch c {
	case SharingSuccess:
		return "success"
	case SharingEmptyCategory:
		return "empty_category"
	case SharingArchiveError:
		return "archive_error"
	default:
		return "file_error"
	}
}

// SharingResult describes a prepared archive.
type SharingResult struct {
	Category core.GroupID
	Code     SharingCode
	Path     string
	Error    string
}

type shareJob struct {
	id   core.GroupID
	data *core.FileData
	dir  string
	done func(SharingResult)
}

// PrepareFileForSharing builds a zip archive of a category on the share
// lane and reports the result on the owner goroutine. A failed attempt
// leaves no archive behind.
func (m *Manager) PrepareFileForSharing(id core.GroupID, done func(SharingResult)) {
	m.checker.Check()
	if m.IsCategoryEmpty(id) {
		done(SharingResult{Category: id, Code: SharingEmptyCategory})
		return
	}
	job := shareJob{id: id, data: m.FileData(id), dir: m.shareDir, done: done}
	if _, err := m.disp.Dispatch(dispatcher.Event{Command: dispatcher.CmdShare, Payload: job}); err != nil {
		done(SharingResult{Category: id, Code: SharingFileError, Error: err.Error()})
	}
}

func (m *Manager) handleShare(e dispatcher.Event) (any, error) {
	job := e.Payload.(shareJob)
	res := buildArchive(job)
	m.poster.Post(func() {
		if !m.closed {
			job.done(res)
		}
	})
	if res.Error != "" {
		return res, errors.New(res.Error)
	}
	return res, nil
}

func buildArchive(job shareJob) SharingResult {
	res := SharingResult{Category: job.id}
	if err := os.MkdirAll(job.dir, 0755); err != nil {
		res.Code, res.Error = SharingFileError, err.Error()
		return res
	}
	name := storage.RemoveInvalidSymbols(job.data.Category.Name)
	if name == "" {
		name = storage.DefaultFileName
	}
	path := filepath.Join(job.dir, name+storage.ArchiveExt)
	if err := storage.WriteArchive(path, job.data); err != nil {
		res.Code, res.Error = SharingArchiveError, err.Error()
		return res
	}
	res.Code, res.Path = SharingSuccess, path
	return res
}
