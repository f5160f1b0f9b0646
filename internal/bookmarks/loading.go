package bookmarks

import (
	"os"

	"github.com/OCAP2/bookmarks/internal/dispatcher"
	"github.com/OCAP2/bookmarks/internal/loader"
	"github.com/OCAP2/bookmarks/internal/storage"
	"github.com/OCAP2/bookmarks/pkg/core"
)

// LoadBookmarks imports every category file of the directory that no
// category already owns.
func (m *Manager) LoadBookmarks() {
	m.checker.Check()
	if m.closed {
		return
	}
	m.scanning++
	m.loader.ScanDir(m.dir, func(paths []string, err error) {
		m.scanning--
		if err != nil {
			m.logger.Error("Failed to scan category directory", "dir", m.dir, "error", err)
			return
		}
		owned := make(map[string]bool)
		for _, path := range m.BackupFiles() {
			owned[path] = true
		}
		for _, path := range paths {
			if !owned[path] {
				m.loader.Enqueue(path, false)
			}
		}
	})
}

// LoadBookmark queues one file. Transient files are deleted once imported.
func (m *Manager) LoadBookmark(path string, transient bool) {
	m.checker.Check()
	m.loader.Enqueue(path, transient)
}

func (m *Manager) onLoadStarted() {
	if m.callbacks.OnLoadStarted != nil {
		m.callbacks.OnLoadStarted()
	}
}

func (m *Manager) onLoadFinished() {
	if m.callbacks.OnLoadFinished != nil {
		m.callbacks.OnLoadFinished()
	}
}

func (m *Manager) onFileLoaded(e loader.Entry, data *core.FileData) {
	if m.closed {
		return
	}
	// category files of the category directory become the category's own
	// file; archives are saved under a fresh name
	adopt := !e.Transient && m.isInDir(e.Path) && isCategoryFile(e.Path)

	es := m.BeginEdit()
	id := es.createFromFile(data, true)
	if adopt {
		m.store.MustCategory(id).SetFilePath(e.Path)
		m.skipSave[id] = true
		if m.state.LastEditedCategoryFile == e.Path {
			m.state.LastEditedCategory = id
		}
	}
	es.End()

	if e.Transient {
		m.removeFile(e.Path)
	}
	m.logger.Info("Category loaded", "path", e.Path, "bookmarks", len(data.Bookmarks), "tracks", len(data.Tracks))
	if m.callbacks.OnFileSuccess != nil {
		m.callbacks.OnFileSuccess(e.Path, e.Transient)
	}
}

func isCategoryFile(path string) bool {
	format, err := storage.FormatOf(path)
	return err == nil && format != storage.FormatArchive
}

func (m *Manager) onFileError(e loader.Entry, err error) {
	if m.callbacks.OnFileError != nil {
		m.callbacks.OnFileError(e.Path, err)
	}
}

func (m *Manager) removeFile(path string) {
	if _, err := m.disp.Dispatch(dispatcher.Event{Command: dispatcher.CmdRemoveFile, Payload: path}); err != nil {
		m.logger.Warn("Failed to queue file removal", "path", path, "error", err)
	}
}

func (m *Manager) handleRemove(e dispatcher.Event) (any, error) {
	path := e.Payload.(string)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return path, nil
}
