package bookmarks

import (
	"fmt"
	"os"
	"time"

	"github.com/OCAP2/bookmarks/internal/store"
	"github.com/OCAP2/bookmarks/pkg/core"
)

// EditSession is the only way to mutate the model. Sessions nest; the
// outermost End flushes every change at once.
type EditSession struct {
	m     *Manager
	ended bool
}

// BeginEdit opens a session.
func (m *Manager) BeginEdit() *EditSession {
	m.checker.Check()
	m.editDepth++
	return &EditSession{m: m}
}

// Edit runs fn inside a session.
func (m *Manager) Edit(fn func(es *EditSession)) {
	es := m.BeginEdit()
	defer es.End()
	fn(es)
}

// End closes the session. Closing the outermost session notifies the
// renderer and saves dirty categories.
func (es *EditSession) End() {
	es.m.checker.Check()
	if es.ended {
		panic("bookmarks: edit session ended twice")
	}
	es.ended = true
	es.m.editDepth--
	if es.m.editDepth == 0 {
		es.m.flush()
	}
}

func (es *EditSession) check() *Manager {
	m := es.m
	m.checker.Check()
	if es.ended || m.editDepth == 0 {
		panic("bookmarks: mutation outside an edit session")
	}
	return m
}

// Marks

// CreateUserMark adds a non-bookmark mark to its type's layer.
func (es *EditSession) CreateUserMark(t core.MarkType, p core.Position2D) core.MarkID {
	m := es.check()
	id := m.ids.NextMark(t)
	m.store.AddMark(store.NewUserMark(id, p))
	m.tracker.OnAddMark(id)
	es.attachMark(id, core.LayerGroupID(t))
	return id
}

// CreateBookmark adds a bookmark to category cat.
func (es *EditSession) CreateBookmark(data core.BookmarkData, cat core.GroupID) core.MarkID {
	m := es.check()
	m.store.MustCategory(cat)
	if data.Timestamp.IsZero() {
		data.Timestamp = m.now()
	}
	id := m.ids.NextMark(core.MarkTypeBookmark)
	m.store.AddMark(store.NewBookmark(id, data))
	m.tracker.OnAddMark(id)
	es.attachMark(id, cat)
	return id
}

// UpdateBookmark replaces the payload of a bookmark.
func (es *EditSession) UpdateBookmark(id core.MarkID, data core.BookmarkData) {
	m := es.check()
	bm := store.As[*store.Bookmark](m.store.MustMark(id))
	bm.SetData(data)
	m.tracker.OnUpdateMark(id)
	m.tracker.OnGroupChanged(bm.GroupID())
}

// MoveMark changes the position of any mark.
func (es *EditSession) MoveMark(id core.MarkID, p core.Position2D) {
	m := es.check()
	m.store.MoveMark(id, p)
	m.tracker.OnUpdateMark(id)
	if id.IsBookmark() {
		m.tracker.OnGroupChanged(m.store.MustMark(id).GroupID())
	}
}

// SetUserMarkColor changes the color of a non-bookmark mark.
func (es *EditSession) SetUserMarkColor(id core.MarkID, c core.Color) {
	m := es.check()
	store.As[*store.UserMark](m.store.MustMark(id)).SetColor(c)
	m.tracker.OnUpdateMark(id)
}

// DeleteMark removes a mark. The selection and position marks cannot be deleted.
func (es *EditSession) DeleteMark(id core.MarkID) {
	m := es.check()
	if id == m.selection || id == m.myPos {
		panic(fmt.Sprintf("bookmarks: deleting static mark %#x", uint64(id)))
	}
	m.tracker.OnGroupChanged(m.store.DetachMark(id))
	m.store.DeleteMark(id)
	m.tracker.OnDeleteMark(id)
}

// AttachBookmark puts a detached bookmark into cat.
func (es *EditSession) AttachBookmark(id core.MarkID, cat core.GroupID) {
	es.check()
	store.As[*store.Bookmark](es.m.store.MustMark(id))
	es.m.store.MustCategory(cat)
	es.attachMark(id, cat)
}

// DetachBookmark takes a bookmark out of its category without deleting it.
func (es *EditSession) DetachBookmark(id core.MarkID) {
	m := es.check()
	store.As[*store.Bookmark](m.store.MustMark(id))
	m.tracker.OnGroupChanged(m.store.DetachMark(id))
	m.tracker.OnUpdateMark(id)
}

// MoveBookmark moves a bookmark to another category.
func (es *EditSession) MoveBookmark(id core.MarkID, cat core.GroupID) {
	es.DetachBookmark(id)
	es.AttachBookmark(id, cat)
}

func (es *EditSession) attachMark(id core.MarkID, g core.GroupID) {
	m := es.m
	m.store.AttachMark(id, g)
	m.tracker.OnUpdateMark(id)
	m.tracker.OnGroupChanged(g)
}

// Tracks

// CreateTrack adds a track to category cat.
func (es *EditSession) CreateTrack(data core.TrackData, cat core.GroupID) core.LineID {
	m := es.check()
	m.store.MustCategory(cat)
	if data.Timestamp.IsZero() {
		data.Timestamp = m.now()
	}
	id := m.ids.NextLine()
	m.store.AddTrack(store.NewTrack(id, data))
	m.tracker.OnAddLine(id)
	es.AttachTrack(id, cat)
	return id
}

// UpdateTrack replaces the payload of a track. The renderer sees it as a
// removal followed by a creation.
func (es *EditSession) UpdateTrack(id core.LineID, data core.TrackData) {
	m := es.check()
	t := m.store.MustTrack(id)
	t.SetData(data)
	m.tracker.OnDeleteLine(id)
	m.tracker.OnAddLine(id)
	m.tracker.OnGroupChanged(t.GroupID())
}

// AttachTrack puts a detached track into cat.
func (es *EditSession) AttachTrack(id core.LineID, cat core.GroupID) {
	m := es.check()
	m.store.AttachTrack(id, cat)
	m.tracker.OnGroupChanged(cat)
}

// DetachTrack takes a track out of its category.
func (es *EditSession) DetachTrack(id core.LineID) {
	m := es.check()
	m.tracker.OnGroupChanged(m.store.DetachTrack(id))
}

// DeleteTrack removes a track.
func (es *EditSession) DeleteTrack(id core.LineID) {
	m := es.check()
	m.tracker.OnGroupChanged(m.store.DetachTrack(id))
	m.store.DeleteTrack(id)
	m.tracker.OnDeleteLine(id)
}

// Categories

// CreateCategory adds an empty category.
func (es *EditSession) CreateCategory(data core.CategoryData, autoSave bool) core.GroupID {
	m := es.check()
	id := m.ids.NextGroup()
	m.store.AddCategory(store.NewCategory(id, data, autoSave))
	m.tracker.OnAddGroup(id)
	return id
}

// ClearCategory deletes every bookmark and track of a category.
func (es *EditSession) ClearCategory(id core.GroupID) {
	m := es.check()
	c := m.store.MustCategory(id)
	for _, mark := range c.MarkIDs() {
		es.DeleteMark(mark)
	}
	for _, track := range c.TrackIDs() {
		es.DeleteTrack(track)
	}
}

// DeleteCategory removes a category, its contents and its file.
func (es *EditSession) DeleteCategory(id core.GroupID) {
	m := es.check()
	es.ClearCategory(id)
	c := m.store.DeleteCategory(id)
	m.tracker.OnDeleteGroup(id)
	delete(m.skipSave, id)
	if path := c.FilePath(); path != "" {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			m.logger.Warn("Failed to remove category file", "path", path, "error", err)
		}
	}
	if m.state.LastEditedCategory == id {
		m.state.LastEditedCategory = core.InvalidGroupID
		m.state.LastEditedCategoryFile = ""
	}
}

// SetCategoryName renames a category. The file keeps its name.
func (es *EditSession) SetCategoryName(id core.GroupID, name string) {
	m := es.check()
	m.store.MustCategory(id).SetName(name)
	m.tracker.OnGroupChanged(id)
}

// SetCategoryDescription changes the description of a category.
func (es *EditSession) SetCategoryDescription(id core.GroupID, desc string) {
	m := es.check()
	m.store.MustCategory(id).SetDescription(desc)
	m.tracker.OnGroupChanged(id)
}

// SetIsVisible shows or hides a category or a user-mark layer.
func (es *EditSession) SetIsVisible(id core.GroupID, visible bool) {
	m := es.check()
	g, ok := m.store.Group(id)
	if !ok {
		panic(fmt.Sprintf("bookmarks: unknown group %d", id))
	}
	if g.IsVisible() == visible {
		return
	}
	m.tracker.OnVisibilityChanging(id, g.IsVisible())
	g.SetVisible(visible)
}

// flush delivers every pending epoch. Callbacks may open sessions of their
// own; their changes form the next epoch and are delivered after the current
// one completes.
func (m *Manager) flush() {
	if m.flushing {
		return
	}
	m.flushing = true
	defer func() { m.flushing = false }()
	for m.tracker.CheckChanges() {
		m.flushEpoch()
	}
}

// flushEpoch takes the epoch out of the tracker before anything sees it, then
// notifies the renderer and saves dirty categories.
func (m *Manager) flushEpoch() {
	start := time.Now()
	diff := m.tracker.Snapshot()
	dirty := m.tracker.DirtyGroups()
	skip := m.skipSave
	m.skipSave = make(map[core.GroupID]bool)
	m.tracker.ResetChanges()

	if m.renderer != nil && !m.closed {
		m.renderer.UpdateMarks(diff)
	}

	created, updated, removed := bookmarkIDs(diff.CreatedMarks()), bookmarkIDs(diff.UpdatedMarks()), bookmarkIDs(diff.RemovedMarks())
	if len(created) > 0 && m.callbacks.OnBookmarksCreated != nil {
		m.callbacks.OnBookmarksCreated(created)
	}
	if len(updated) > 0 && m.callbacks.OnBookmarksUpdated != nil {
		m.callbacks.OnBookmarksUpdated(updated)
	}
	if len(removed) > 0 && m.callbacks.OnBookmarksDeleted != nil {
		m.callbacks.OnBookmarksDeleted(removed)
	}

	stats := core.FlushStats{
		At:            m.now(),
		CreatedMarks:  len(diff.CreatedMarks()),
		UpdatedMarks:  len(diff.UpdatedMarks()),
		RemovedMarks:  len(diff.RemovedMarks()),
		CreatedLines:  len(diff.CreatedLines()),
		RemovedLines:  len(diff.RemovedLines()),
		DirtyGroups:   len(diff.DirtyGroups()),
		RemovedGroups: len(diff.RemovedGroups()),
	}
	for _, id := range dirty {
		c, ok := m.store.Category(id)
		if !ok || !c.AutoSave() || skip[id] {
			continue
		}
		if c.FilePath() == "" && c.IsEmpty() {
			continue
		}
		if err := m.saveCategory(c); err != nil {
			stats.FailedSaves++
			continue
		}
		stats.SavedFiles++
	}

	if stats.SavedFiles > 0 || stats.RemovedGroups > 0 {
		m.cloud.RequestSynchronization()
	}
	stats.Duration = time.Since(start)
	if m.callbacks.OnFlush != nil {
		m.callbacks.OnFlush(stats)
	}
}

func bookmarkIDs(ids []core.MarkID) []core.MarkID {
	var out []core.MarkID
	for _, id := range ids {
		if id.IsBookmark() {
			out = append(out, id)
		}
	}
	return out
}
