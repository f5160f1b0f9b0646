package bookmarks

import (
	"fmt"
	"os"
	"time"

	"github.com/OCAP2/bookmarks/internal/cloud"
	"github.com/OCAP2/bookmarks/internal/storage"
	"github.com/OCAP2/bookmarks/pkg/core"
)

var _ cloud.Target = (*Manager)(nil)

// SetCloudEnabled turns periodic backups on or off.
func (m *Manager) SetCloudEnabled(enabled bool) {
	m.cloud.SetEnabled(enabled)
}

// IsCloudEnabled reports whether periodic backups are on.
func (m *Manager) IsCloudEnabled() bool {
	return m.cloud.IsEnabled()
}

// SetCloudHandlers replaces the backup/restore notification handlers.
func (m *Manager) SetCloudHandlers(h cloud.Handlers) {
	m.cloud.SetHandlers(h)
}

// RequestCloudRestoring asks whether a backup exists. Only valid while idle.
func (m *Manager) RequestCloudRestoring() error {
	return m.cloud.RequestRestoring()
}

// ApplyCloudRestoring replaces every category by the restored ones. Only
// valid once the restored files are prepared.
func (m *Manager) ApplyCloudRestoring() error {
	return m.cloud.ApplyRestoring()
}

// CancelCloudRestoring discards the staged restore.
func (m *Manager) CancelCloudRestoring() error {
	return m.cloud.CancelRestoring()
}

// replacedSuffix marks category files moved aside while a restore is
// written. ScanDir ignores the suffix.
const replacedSuffix = ".replaced"

// ApplyRestore replaces every category by the restored ones. The current
// files are moved aside and the restored files written before the model
// changes; on any failure the old files are put back and the model is left
// as it was.
func (m *Manager) ApplyRestore(files []*core.FileData) error {
	m.checker.Check()
	old := m.store.CategoryIDs()
	moved, err := m.moveAside(old)
	if err != nil {
		m.putBack(moved)
		return err
	}

	written := make([]string, len(files))
	for i, data := range files {
		if len(data.Bookmarks) == 0 && len(data.Tracks) == 0 {
			continue
		}
		path := storage.GenerateUniqueFileName(m.dir, data.Category.Name, storage.Ext(m.binary))
		if err := m.writeFile(path, data, m.binary); err != nil {
			for _, p := range written {
				if p != "" {
					_ = os.Remove(p)
				}
			}
			m.putBack(moved)
			m.logger.Error("Failed to write restored category", "category", data.Category.Name, "error", err)
			return fmt.Errorf("write restored category %q: %w", data.Category.Name, err)
		}
		written[i] = path
	}

	es := m.BeginEdit()
	for _, id := range old {
		// the file was moved aside and its name may now belong to a restored one
		m.store.MustCategory(id).SetFilePath("")
		es.DeleteCategory(id)
	}
	created := make([]core.GroupID, len(files))
	for i, data := range files {
		id := es.createFromFile(data, true)
		if written[i] != "" {
			m.store.MustCategory(id).SetFilePath(written[i])
		}
		m.skipSave[id] = true
		created[i] = id
	}
	es.End()

	for _, aside := range moved {
		if err := os.Remove(aside); err != nil {
			m.logger.Warn("Failed to remove replaced category file", "path", aside, "error", err)
		}
	}
	if m.callbacks.OnCategorySaved != nil {
		for i, path := range written {
			if path != "" {
				m.callbacks.OnCategorySaved(created[i], path)
			}
		}
	}
	m.logger.Info("Restored categories applied", "categories", len(files))
	return nil
}

// moveAside renames the files of ids and returns original path -> new path
// for every file moved.
func (m *Manager) moveAside(ids []core.GroupID) (map[string]string, error) {
	moved := make(map[string]string)
	for _, id := range ids {
		path := m.store.MustCategory(id).FilePath()
		if path == "" {
			continue
		}
		aside := path + replacedSuffix
		if err := os.Rename(path, aside); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return moved, fmt.Errorf("move aside %s: %w", path, err)
		}
		moved[path] = aside
	}
	return moved, nil
}

func (m *Manager) putBack(moved map[string]string) {
	for path, aside := range moved {
		if err := os.Rename(aside, path); err != nil {
			m.logger.Error("Failed to put back category file", "path", path, "error", err)
		}
	}
}

// Synchronized records the time of the last successful backup.
func (m *Manager) Synchronized(at time.Time) {
	m.state.LastSynchronization = at
	m.saveState()
}
