package changes

import (
	"slices"
	"testing"

	"github.com/OCAP2/bookmarks/internal/store"
	"github.com/OCAP2/bookmarks/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type fixture struct {
	s   *store.Store
	tr  *Tracker
	cat core.GroupID
	seq uint64
}

func newFixture() *fixture {
	s := store.New()
	f := &fixture{s: s, tr: New(s), cat: core.FirstCategoryID}
	s.AddCategory(store.NewCategory(f.cat, core.CategoryData{Name: "Trip", Visible: true}, true))
	return f
}

func (f *fixture) addBookmark() core.MarkID {
	f.seq++
	id := core.NewMarkID(core.MarkTypeBookmark, f.seq)
	f.s.AddMark(store.NewBookmark(id, core.BookmarkData{Name: "bm"}))
	f.s.AttachMark(id, f.cat)
	f.tr.OnAddMark(id)
	f.tr.OnGroupChanged(f.cat)
	return id
}

func (f *fixture) deleteBookmark(id core.MarkID) {
	g := f.s.DetachMark(id)
	f.s.DeleteMark(id)
	f.tr.OnGroupChanged(g)
	f.tr.OnDeleteMark(id)
}

func TestTracker_CreateThenDeleteCancels(t *testing.T) {
	f := newFixture()
	f.tr.ResetChanges()

	id := f.addBookmark()
	f.tr.OnUpdateMark(id)
	f.deleteBookmark(id)

	diff := f.tr.Snapshot()
	assert.Empty(t, diff.CreatedMarks())
	assert.Empty(t, diff.UpdatedMarks())
	assert.Empty(t, diff.RemovedMarks())
}

func TestTracker_DeleteOfFlushedMarkIsReported(t *testing.T) {
	f := newFixture()
	id := f.addBookmark()
	f.tr.ResetChanges()

	f.tr.OnUpdateMark(id)
	f.deleteBookmark(id)

	diff := f.tr.Snapshot()
	assert.Equal(t, []core.MarkID{id}, diff.RemovedMarks())
	assert.Empty(t, diff.UpdatedMarks())
	assert.Equal(t, []core.GroupID{f.cat}, diff.DirtyGroups())
	assert.Empty(t, diff.GroupMarks(f.cat))
}

func TestTracker_UpdateIsIdempotent(t *testing.T) {
	f := newFixture()
	id := f.addBookmark()
	f.tr.ResetChanges()

	for range 10 {
		f.tr.OnUpdateMark(id)
	}
	diff := f.tr.Snapshot()
	assert.Equal(t, []core.MarkID{id}, diff.UpdatedMarks())
	p, ok := diff.PointMark(id)
	require.True(t, ok)
	assert.Equal(t, "bm", p.Name)
}

func TestTracker_GroupPrecedence(t *testing.T) {
	f := newFixture()
	f.tr.ResetChanges()

	g := core.FirstCategoryID + 1
	f.s.AddCategory(store.NewCategory(g, core.CategoryData{Name: "Tmp"}, true))
	f.tr.OnAddGroup(g)
	f.s.DeleteCategory(g)
	f.tr.OnDeleteGroup(g)

	assert.False(t, f.tr.CheckChanges())

	f.tr.OnDeleteGroup(f.cat)
	f.tr.OnGroupChanged(f.cat)
	diff := f.tr.Snapshot()
	assert.Equal(t, []core.GroupID{f.cat}, diff.RemovedGroups())
	assert.Empty(t, diff.DirtyGroups(), "removed groups are not dirty")
}

func TestTracker_VisibilityChanged(t *testing.T) {
	f := newFixture()
	f.tr.ResetChanges()
	c := f.s.MustCategory(f.cat)

	f.tr.OnVisibilityChanging(f.cat, c.IsVisible())
	c.SetVisible(false)

	diff := f.tr.Snapshot()
	assert.True(t, diff.IsVisibilityChanged(f.cat))
	assert.False(t, diff.IsVisible(f.cat))
	f.tr.ResetChanges()

	// Flipping twice within one epoch is no visibility change.
	f.tr.OnVisibilityChanging(f.cat, c.IsVisible())
	c.SetVisible(true)
	f.tr.OnVisibilityChanging(f.cat, c.IsVisible())
	c.SetVisible(false)
	diff = f.tr.Snapshot()
	assert.False(t, diff.IsVisibilityChanged(f.cat))
}

func TestTracker_SnapshotIsPointInTime(t *testing.T) {
	f := newFixture()
	f.tr.ResetChanges()
	id := f.addBookmark()

	diff := f.tr.Snapshot()
	f.deleteBookmark(id)

	assert.Equal(t, []core.MarkID{id}, diff.GroupMarks(f.cat))
	_, ok := diff.PointMark(id)
	assert.True(t, ok)
}

func TestTracker_ResetClearsEverything(t *testing.T) {
	f := newFixture()
	f.addBookmark()
	require.True(t, f.tr.CheckChanges())

	f.tr.ResetChanges()
	assert.False(t, f.tr.CheckChanges())
	assert.True(t, f.tr.Snapshot().IsEmpty())
}

func TestTracker_FullSnapshot(t *testing.T) {
	f := newFixture()
	id := f.addBookmark()
	f.tr.ResetChanges()

	diff := f.tr.FullSnapshot()
	assert.Contains(t, diff.CreatedGroups(), f.cat)
	assert.Equal(t, []core.MarkID{id}, diff.CreatedMarks())
	assert.Equal(t, []core.MarkID{id}, diff.GroupMarks(f.cat))
	assert.False(t, f.tr.CheckChanges(), "full snapshot does not touch the epoch")
}

// Across random create/update/delete/flush sequences the exposed sets always
// match the net effect relative to what the renderer saw at the last flush.
func TestTracker_NetEffectProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture()
		f.tr.ResetChanges()

		flushed := map[core.MarkID]bool{}
		alive := map[core.MarkID]bool{}

		steps := rapid.IntRange(1, 60).Draw(rt, "steps")
		for range steps {
			switch rapid.IntRange(0, 3).Draw(rt, "op") {
			case 0:
				alive[f.addBookmark()] = true
			case 1, 2:
				ids := sortedKeys(alive)
				if len(ids) == 0 {
					continue
				}
				id := rapid.SampledFrom(ids).Draw(rt, "id")
				if rapid.Bool().Draw(rt, "delete") {
					f.deleteBookmark(id)
					delete(alive, id)
				} else {
					f.tr.OnUpdateMark(id)
				}
			case 3:
				f.tr.ResetChanges()
				flushed = map[core.MarkID]bool{}
				for id := range alive {
					flushed[id] = true
				}
			}
		}

		diff := f.tr.Snapshot()
		created := diff.CreatedMarks()
		removed := diff.RemovedMarks()
		updated := diff.UpdatedMarks()

		for _, id := range created {
			if !alive[id] || flushed[id] {
				rt.Fatalf("created %x is not a new live mark", id)
			}
			if slices.Contains(removed, id) || slices.Contains(updated, id) {
				rt.Fatalf("created %x also reported removed or updated", id)
			}
		}
		for _, id := range removed {
			if alive[id] || !flushed[id] {
				rt.Fatalf("removed %x was not visible before this epoch", id)
			}
		}
		for _, id := range updated {
			if !alive[id] || !flushed[id] {
				rt.Fatalf("updated %x is not a flushed live mark", id)
			}
		}
		for id := range alive {
			if !flushed[id] && !slices.Contains(created, id) {
				rt.Fatalf("new mark %x missing from created", id)
			}
		}
		for id := range flushed {
			if !alive[id] && !slices.Contains(removed, id) {
				rt.Fatalf("deleted mark %x missing from removed", id)
			}
		}
	})
}

func sortedKeys(m map[core.MarkID]bool) []core.MarkID {
	ids := make([]core.MarkID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
