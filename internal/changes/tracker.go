// Package changes accumulates mutations between flushes and turns them into
// renderer diffs.
package changes

import (
	"github.com/OCAP2/bookmarks/internal/render"
	"github.com/OCAP2/bookmarks/internal/store"
	"github.com/OCAP2/bookmarks/pkg/core"
)

// Source is the read access the tracker needs to build a diff.
type Source interface {
	GroupIDs() []core.GroupID
	GroupState(id core.GroupID) (visible bool, marks []core.MarkID, lines []core.LineID, ok bool)
	PointMark(id core.MarkID) (render.PointMark, bool)
	LineMark(id core.LineID) (render.LineMark, bool)
}

// Tracker records created, updated and removed identifiers for one epoch.
//
// Precedence: removing an id created in the same epoch cancels both events;
// updates of ids created or removed in the epoch are dropped; an update is
// recorded at most once. Groups follow the same rules.
type Tracker struct {
	src Source

	createdMarks *store.IDSet[core.MarkID]
	updatedMarks *store.IDSet[core.MarkID]
	removedMarks *store.IDSet[core.MarkID]

	createdLines *store.IDSet[core.LineID]
	removedLines *store.IDSet[core.LineID]

	createdGroups *store.IDSet[core.GroupID]
	removedGroups *store.IDSet[core.GroupID]
	dirtyGroups   *store.IDSet[core.GroupID]

	// visibility at the first change in this epoch
	initialVisibility map[core.GroupID]bool
}

// New creates a tracker reading from src.
func New(src Source) *Tracker {
	return &Tracker{
		src:               src,
		createdMarks:      store.NewIDSet[core.MarkID](),
		updatedMarks:      store.NewIDSet[core.MarkID](),
		removedMarks:      store.NewIDSet[core.MarkID](),
		createdLines:      store.NewIDSet[core.LineID](),
		removedLines:      store.NewIDSet[core.LineID](),
		createdGroups:     store.NewIDSet[core.GroupID](),
		removedGroups:     store.NewIDSet[core.GroupID](),
		dirtyGroups:       store.NewIDSet[core.GroupID](),
		initialVisibility: make(map[core.GroupID]bool),
	}
}

// OnAddMark records a new mark.
func (t *Tracker) OnAddMark(id core.MarkID) {
	t.createdMarks.Add(id)
}

// OnDeleteMark records a removal.
func (t *Tracker) OnDeleteMark(id core.MarkID) {
	t.updatedMarks.Remove(id)
	if t.createdMarks.Remove(id) {
		return
	}
	t.removedMarks.Add(id)
}

// OnUpdateMark records a changed position or attribute.
func (t *Tracker) OnUpdateMark(id core.MarkID) {
	if t.createdMarks.Has(id) || t.removedMarks.Has(id) {
		return
	}
	t.updatedMarks.Add(id)
}

// OnAddLine records a new track.
func (t *Tracker) OnAddLine(id core.LineID) {
	t.createdLines.Add(id)
}

// OnDeleteLine records a track removal.
func (t *Tracker) OnDeleteLine(id core.LineID) {
	if t.createdLines.Remove(id) {
		return
	}
	t.removedLines.Add(id)
}

// OnAddGroup records a new group.
func (t *Tracker) OnAddGroup(id core.GroupID) {
	t.createdGroups.Add(id)
	t.dirtyGroups.Add(id)
}

// OnDeleteGroup records a group removal.
func (t *Tracker) OnDeleteGroup(id core.GroupID) {
	t.dirtyGroups.Remove(id)
	delete(t.initialVisibility, id)
	if t.createdGroups.Remove(id) {
		return
	}
	t.removedGroups.Add(id)
}

// OnGroupChanged marks a group whose membership or content changed.
func (t *Tracker) OnGroupChanged(id core.GroupID) {
	if id == core.InvalidGroupID || t.removedGroups.Has(id) {
		return
	}
	t.dirtyGroups.Add(id)
}

// OnVisibilityChanging must be called before the visibility of id is changed.
func (t *Tracker) OnVisibilityChanging(id core.GroupID, current bool) {
	if _, ok := t.initialVisibility[id]; !ok && !t.createdGroups.Has(id) {
		t.initialVisibility[id] = current
	}
	t.OnGroupChanged(id)
}

// CheckChanges reports whether anything was recorded since the last reset.
func (t *Tracker) CheckChanges() bool {
	return t.createdMarks.Len() > 0 || t.updatedMarks.Len() > 0 || t.removedMarks.Len() > 0 ||
		t.createdLines.Len() > 0 || t.removedLines.Len() > 0 ||
		t.createdGroups.Len() > 0 || t.removedGroups.Len() > 0 || t.dirtyGroups.Len() > 0
}

// DirtyGroups returns groups changed in this epoch, created ones included.
func (t *Tracker) DirtyGroups() []core.GroupID { return t.dirtyGroups.Values() }

// CreatedGroups returns groups created in this epoch.
func (t *Tracker) CreatedGroups() []core.GroupID { return t.createdGroups.Values() }

// RemovedGroups returns groups removed in this epoch.
func (t *Tracker) RemovedGroups() []core.GroupID { return t.removedGroups.Values() }

// CreatedMarks, UpdatedMarks and RemovedMarks expose the pending mark events.
func (t *Tracker) CreatedMarks() []core.MarkID { return t.createdMarks.Values() }
func (t *Tracker) UpdatedMarks() []core.MarkID { return t.updatedMarks.Values() }
func (t *Tracker) RemovedMarks() []core.MarkID { return t.removedMarks.Values() }

// ResetChanges clears the epoch. It is called once per flush after the
// renderer consumed the snapshot.
func (t *Tracker) ResetChanges() {
	t.createdMarks.Clear()
	t.updatedMarks.Clear()
	t.removedMarks.Clear()
	t.createdLines.Clear()
	t.removedLines.Clear()
	t.createdGroups.Clear()
	t.removedGroups.Clear()
	t.dirtyGroups.Clear()
	clear(t.initialVisibility)
}

// Snapshot builds the diff of the current epoch.
func (t *Tracker) Snapshot() *render.Diff {
	data := render.DiffData{
		Groups:        t.src.GroupIDs(),
		DirtyGroups:   t.dirtyGroups.Values(),
		CreatedGroups: t.createdGroups.Values(),
		RemovedGroups: t.removedGroups.Values(),
		Visible:       make(map[core.GroupID]bool),
		GroupMarks:    make(map[core.GroupID][]core.MarkID),
		GroupLines:    make(map[core.GroupID][]core.LineID),
		CreatedMarks:  t.createdMarks.Values(),
		UpdatedMarks:  t.updatedMarks.Values(),
		RemovedMarks:  t.removedMarks.Values(),
		CreatedLines:  t.createdLines.Values(),
		RemovedLines:  t.removedLines.Values(),
		Points:        make(map[core.MarkID]render.PointMark),
		Lines:         make(map[core.LineID]render.LineMark),
	}

	for _, g := range data.Groups {
		visible, _, _, _ := t.src.GroupState(g)
		data.Visible[g] = visible
		if before, ok := t.initialVisibility[g]; ok && before != visible {
			data.VisibilityChanged = append(data.VisibilityChanged, g)
		}
	}

	for _, g := range data.DirtyGroups {
		_, marks, lines, ok := t.src.GroupState(g)
		if !ok {
			continue
		}
		data.GroupMarks[g] = marks
		data.GroupLines[g] = lines
		t.addPoints(data.Points, marks)
		t.addLines(data.Lines, lines)
	}
	t.addPoints(data.Points, data.CreatedMarks)
	t.addPoints(data.Points, data.UpdatedMarks)
	t.addLines(data.Lines, data.CreatedLines)

	return render.NewDiff(data)
}

// FullSnapshot describes the whole model as if every group and mark had just
// been created. It is sent to a newly attached renderer.
func (t *Tracker) FullSnapshot() *render.Diff {
	data := render.DiffData{
		Groups:     t.src.GroupIDs(),
		Visible:    make(map[core.GroupID]bool),
		GroupMarks: make(map[core.GroupID][]core.MarkID),
		GroupLines: make(map[core.GroupID][]core.LineID),
		Points:     make(map[core.MarkID]render.PointMark),
		Lines:      make(map[core.LineID]render.LineMark),
	}
	data.DirtyGroups = data.Groups
	data.CreatedGroups = data.Groups
	for _, g := range data.Groups {
		visible, marks, lines, _ := t.src.GroupState(g)
		data.Visible[g] = visible
		data.GroupMarks[g] = marks
		data.GroupLines[g] = lines
		data.CreatedMarks = append(data.CreatedMarks, marks...)
		data.CreatedLines = append(data.CreatedLines, lines...)
		t.addPoints(data.Points, marks)
		t.addLines(data.Lines, lines)
	}
	return render.NewDiff(data)
}

func (t *Tracker) addPoints(dst map[core.MarkID]render.PointMark, ids []core.MarkID) {
	for _, id := range ids {
		if _, ok := dst[id]; ok {
			continue
		}
		if p, ok := t.src.PointMark(id); ok {
			dst[id] = p
		}
	}
}

func (t *Tracker) addLines(dst map[core.LineID]render.LineMark, ids []core.LineID) {
	for _, id := range ids {
		if _, ok := dst[id]; ok {
			continue
		}
		if l, ok := t.src.LineMark(id); ok {
			dst[id] = l
		}
	}
}
