package bookmarks

import (
	"fmt"
	"path/filepath"

	"github.com/OCAP2/bookmarks/internal/storage"
	"github.com/OCAP2/bookmarks/internal/store"
	"github.com/OCAP2/bookmarks/pkg/core"
)

// DefaultCategoryName is used when a bookmark is created with no category around.
const DefaultCategoryName = "My Places"

// CreateBookmarkCategory adds an empty visible category.
func (m *Manager) CreateBookmarkCategory(name string, autoSave bool) core.GroupID {
	return m.CreateBookmarkCategoryFromData(core.CategoryData{Name: name, Visible: true}, autoSave)
}

// CreateBookmarkCategoryFromData adds an empty category with the given metadata.
func (m *Manager) CreateBookmarkCategoryFromData(data core.CategoryData, autoSave bool) core.GroupID {
	es := m.BeginEdit()
	defer es.End()
	return es.CreateCategory(data, autoSave)
}

// CreateCategories adds one category per file with all its bookmarks and
// tracks, in a single session.
func (m *Manager) CreateCategories(collection []*core.FileData, autoSave bool) []core.GroupID {
	es := m.BeginEdit()
	defer es.End()
	out := make([]core.GroupID, 0, len(collection))
	for _, data := range collection {
		out = append(out, es.createFromFile(data, autoSave))
	}
	return out
}

func (es *EditSession) createFromFile(data *core.FileData, autoSave bool) core.GroupID {
	id := es.CreateCategory(data.Category, autoSave)
	for _, bm := range data.Bookmarks {
		es.CreateBookmark(bm, id)
	}
	for _, t := range data.Tracks {
		es.CreateTrack(t, id)
	}
	return id
}

// DeleteBookmarkCategory removes a category, its contents and its file.
func (m *Manager) DeleteBookmarkCategory(id core.GroupID) {
	m.Edit(func(es *EditSession) { es.DeleteCategory(id) })
}

// CategoryIDs returns every category in creation order.
func (m *Manager) CategoryIDs() []core.GroupID {
	return m.store.CategoryIDs()
}

// Category looks up a category.
func (m *Manager) Category(id core.GroupID) (*store.Category, bool) {
	return m.store.Category(id)
}

// CategoryByName returns the first category with the given name.
func (m *Manager) CategoryByName(name string) (core.GroupID, bool) {
	for _, id := range m.store.CategoryIDs() {
		if m.store.MustCategory(id).Name() == name {
			return id, true
		}
	}
	return core.InvalidGroupID, false
}

// IsCategoryEmpty reports whether a category holds neither bookmarks nor tracks.
func (m *Manager) IsCategoryEmpty(id core.GroupID) bool {
	return m.store.MustCategory(id).IsEmpty()
}

// IsUsedCategoryName reports whether a category already has that name.
func (m *Manager) IsUsedCategoryName(name string) bool {
	_, ok := m.CategoryByName(name)
	return ok
}

// AreAllCategoriesVisible reports whether no category is hidden.
func (m *Manager) AreAllCategoriesVisible() bool {
	for _, id := range m.store.CategoryIDs() {
		if !m.store.MustCategory(id).IsVisible() {
			return false
		}
	}
	return true
}

// AreAllCategoriesInvisible reports whether every category is hidden.
func (m *Manager) AreAllCategoriesInvisible() bool {
	for _, id := range m.store.CategoryIDs() {
		if m.store.MustCategory(id).IsVisible() {
			return false
		}
	}
	return true
}

// SetAllCategoriesVisibility shows or hides every category in one session.
func (m *Manager) SetAllCategoriesVisibility(visible bool) {
	m.Edit(func(es *EditSession) {
		for _, id := range m.store.CategoryIDs() {
			es.SetIsVisible(id, visible)
		}
	})
}

// LastEditedBMCategory returns the category new bookmarks go to, creating
// a default one when there is none.
func (m *Manager) LastEditedBMCategory() core.GroupID {
	m.checker.Check()
	if _, ok := m.store.Category(m.state.LastEditedCategory); ok {
		return m.state.LastEditedCategory
	}
	if path := m.state.LastEditedCategoryFile; path != "" {
		for _, id := range m.store.CategoryIDs() {
			if m.store.MustCategory(id).FilePath() == path {
				m.state.LastEditedCategory = id
				return id
			}
		}
	}
	if ids := m.store.CategoryIDs(); len(ids) > 0 {
		return ids[0]
	}
	id := m.CreateBookmarkCategory(DefaultCategoryName, true)
	m.SetLastEditedBmCategory(id)
	return id
}

// SetLastEditedBmCategory remembers the category for the next bookmark.
func (m *Manager) SetLastEditedBmCategory(id core.GroupID) {
	m.checker.Check()
	c := m.store.MustCategory(id)
	m.state.LastEditedCategory = id
	m.state.LastEditedCategoryFile = c.FilePath()
	m.saveState()
}

// LastEditedBMColor returns the color of the last edited bookmark.
func (m *Manager) LastEditedBMColor() core.Color {
	if m.state.LastColor == core.ColorNone {
		return core.DefaultColor
	}
	return m.state.LastColor
}

// SetLastEditedBmColor remembers the color for the next bookmark.
func (m *Manager) SetLastEditedBmColor(c core.Color) {
	m.checker.Check()
	m.state.LastColor = c
	m.saveState()
}

// FileData returns the content of a category as written to its file.
func (m *Manager) FileData(id core.GroupID) *core.FileData {
	c := m.store.MustCategory(id)
	data := &core.FileData{Category: c.Data()}
	for _, mid := range c.MarkIDs() {
		if bm, ok := m.store.Bookmark(mid); ok {
			data.Bookmarks = append(data.Bookmarks, bm.Data())
		}
	}
	for _, lid := range c.TrackIDs() {
		data.Tracks = append(data.Tracks, m.store.MustTrack(lid).Data())
	}
	return data
}

// SaveBookmarkCategory writes a category to its file, allocating a unique
// file name in the category directory on first save.
func (m *Manager) SaveBookmarkCategory(id core.GroupID) error {
	m.checker.Check()
	return m.saveCategory(m.store.MustCategory(id))
}

// SaveToFile exports a category to an arbitrary path without changing the
// category's own file.
func (m *Manager) SaveToFile(id core.GroupID, path string, binary bool) error {
	m.checker.Check()
	if err := storage.WriteFile(path, m.FileData(id), binary); err != nil {
		return fmt.Errorf("export category %d: %w", id, err)
	}
	return nil
}

func (m *Manager) saveCategory(c *store.Category) error {
	path := c.FilePath()
	if path == "" {
		path = storage.GenerateUniqueFileName(m.dir, c.Name(), storage.Ext(m.binary))
	}
	binary := false
	if format, err := storage.FormatOf(path); err == nil && format == storage.FormatBinary {
		binary = true
	}
	if err := m.writeFile(path, m.FileData(c.ID()), binary); err != nil {
		m.logger.Error("Failed to save category", "category", c.Name(), "path", path, "error", err)
		return fmt.Errorf("save category %q: %w", c.Name(), err)
	}
	if c.FilePath() == "" {
		c.SetFilePath(path)
		if m.state.LastEditedCategory == c.ID() {
			m.state.LastEditedCategoryFile = path
			m.saveState()
		}
	}
	m.logger.Debug("Category saved", "category", c.Name(), "path", path)
	if m.callbacks.OnCategorySaved != nil {
		m.callbacks.OnCategorySaved(c.ID(), path)
	}
	return nil
}

// BackupFiles returns the files of every saved category.
func (m *Manager) BackupFiles() []string {
	var files []string
	for _, id := range m.store.CategoryIDs() {
		if path := m.store.MustCategory(id).FilePath(); path != "" {
			files = append(files, path)
		}
	}
	return files
}

func (m *Manager) isInDir(path string) bool {
	if m.dir == "" {
		return false
	}
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return false
	}
	own, err := filepath.Abs(m.dir)
	if err != nil {
		return false
	}
	return dir == own
}
