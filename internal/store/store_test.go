package store

import (
	"slices"
	"testing"

	"github.com/OCAP2/bookmarks/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func bookmarkID(seq uint64) core.MarkID { return core.NewMarkID(core.MarkTypeBookmark, seq) }

func TestNew_HasLayers(t *testing.T) {
	s := New()
	ids := s.GroupIDs()
	assert.Equal(t, []core.GroupID{
		core.LayerGroupID(core.MarkTypeGeneric),
		core.LayerGroupID(core.MarkTypeSelection),
		core.LayerGroupID(core.MarkTypeMyPosition),
		core.LayerGroupID(core.MarkTypeTrackAnchor),
	}, ids)
	assert.True(t, s.Layer(core.MarkTypeSelection).IsVisible())
	assert.Panics(t, func() { s.Layer(core.MarkTypeBookmark) })
}

func TestAttachDetachMark(t *testing.T) {
	s := New()
	c := NewCategory(core.FirstCategoryID, core.CategoryData{Name: "Trip", Visible: true}, true)
	s.AddCategory(c)

	bm := NewBookmark(bookmarkID(1), core.BookmarkData{Name: "Hotel"})
	s.AddMark(bm)
	s.AttachMark(bm.ID(), c.ID())

	assert.Equal(t, c.ID(), bm.GroupID())
	assert.Equal(t, []core.MarkID{bm.ID()}, c.MarkIDs())
	assert.False(t, c.IsEmpty())

	assert.Panics(t, func() { s.AttachMark(bm.ID(), c.ID()) }, "a mark belongs to one group at a time")

	assert.Equal(t, c.ID(), s.DetachMark(bm.ID()))
	assert.Equal(t, core.InvalidGroupID, bm.GroupID())
	assert.True(t, c.IsEmpty())

	// Detached marks stay in the store.
	_, ok := s.Mark(bm.ID())
	assert.True(t, ok)
}

func TestDeleteMark_RemovesMembership(t *testing.T) {
	s := New()
	m := NewUserMark(core.NewMarkID(core.MarkTypeSelection, 1), core.Position2D{X: 1})
	s.AddMark(m)
	s.AttachMark(m.ID(), core.LayerGroupID(core.MarkTypeSelection))

	s.DeleteMark(m.ID())
	_, ok := s.Mark(m.ID())
	assert.False(t, ok)
	assert.True(t, s.Layer(core.MarkTypeSelection).IsEmpty())
	assert.Panics(t, func() { s.DeleteMark(m.ID()) })
}

func TestTracks(t *testing.T) {
	s := New()
	c := NewCategory(core.FirstCategoryID+1, core.CategoryData{Name: "Runs"}, true)
	s.AddCategory(c)

	tr := NewTrack(7, core.TrackData{Name: "Morning", Points: core.Polyline{{X: 0}, {X: 1}}})
	s.AddTrack(tr)
	s.AttachTrack(tr.ID(), c.ID())
	assert.Equal(t, []core.LineID{7}, c.TrackIDs())
	assert.Equal(t, "Morning", tr.Render().Name)

	assert.Panics(t, func() { s.AttachTrack(tr.ID(), c.ID()) })
	assert.Panics(t, func() { s.DeleteCategory(c.ID()) }, "category still holds a track")

	s.DeleteTrack(tr.ID())
	assert.True(t, c.IsEmpty())
	assert.Equal(t, 0, s.TrackCount())
	s.DeleteCategory(c.ID())
	assert.Equal(t, 0, s.CategoryCount())
}

func TestCategoryOrder(t *testing.T) {
	s := New()
	for _, id := range []core.GroupID{core.FirstCategoryID + 2, core.FirstCategoryID, core.FirstCategoryID + 1} {
		s.AddCategory(NewCategory(id, core.CategoryData{}, true))
	}
	assert.Equal(t, []core.GroupID{core.FirstCategoryID + 2, core.FirstCategoryID, core.FirstCategoryID + 1}, s.CategoryIDs())
}

func TestAs(t *testing.T) {
	var m Mark = NewBookmark(bookmarkID(3), core.BookmarkData{Name: "Cafe"})
	assert.Equal(t, "Cafe", As[*Bookmark](m).Name())
	assert.Panics(t, func() { As[*UserMark](m) })
}

func TestVariantConstructorsCheckType(t *testing.T) {
	assert.Panics(t, func() { NewBookmark(core.NewMarkID(core.MarkTypeGeneric, 1), core.BookmarkData{}) })
	assert.Panics(t, func() { NewUserMark(bookmarkID(1), core.Position2D{}) })
	assert.Panics(t, func() { NewCategory(3, core.CategoryData{}, true) })
}

func TestBookmark_SetDataKeepsPosition(t *testing.T) {
	bm := NewBookmark(bookmarkID(1), core.BookmarkData{Name: "A", Position: core.Position2D{X: 5, Y: 6}})
	created := bm.Data().Timestamp
	require.False(t, created.IsZero())

	bm.SetData(core.BookmarkData{Name: "B"})
	assert.Equal(t, "B", bm.Name())
	assert.Equal(t, core.Position2D{X: 5, Y: 6}, bm.Position())
	assert.Equal(t, created, bm.Data().Timestamp)
}

func TestIDSet(t *testing.T) {
	s := NewIDSet[int]()
	assert.True(t, s.Add(3))
	assert.True(t, s.Add(1))
	assert.False(t, s.Add(3))
	assert.True(t, s.Add(2))
	assert.Equal(t, []int{3, 1, 2}, s.Values())

	assert.True(t, s.Remove(1))
	assert.False(t, s.Remove(1))
	assert.Equal(t, []int{3, 2}, s.Values())
	assert.True(t, s.Has(2))

	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.False(t, s.Has(3))
}

func TestIDSet_RemoveCompacts(t *testing.T) {
	s := NewIDSet[int]()
	for i := range 1000 {
		s.Add(i)
	}
	for i := 0; i < 1000; i += 2 {
		require.True(t, s.Remove(i))
	}
	assert.Equal(t, 500, s.Len())
	assert.LessOrEqual(t, len(s.order), 1000)

	for i := 1; i < 999; i += 2 {
		require.True(t, s.Remove(i))
	}
	assert.Equal(t, []int{999}, s.Values())
	assert.Less(t, len(s.order), 10)

	assert.True(t, s.Add(0))
	assert.Equal(t, []int{999, 0}, s.Values())
	assert.True(t, s.Remove(999))
	assert.Equal(t, []int{0}, s.Values())
	assert.True(t, s.Has(0))
}

func TestIDSet_MatchesSliceModel(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s := NewIDSet[int]()
		var model []int
		for range rapid.IntRange(0, 200).Draw(rt, "ops") {
			id := rapid.IntRange(0, 20).Draw(rt, "id")
			if rapid.Bool().Draw(rt, "add") {
				added := s.Add(id)
				if !slices.Contains(model, id) {
					model = append(model, id)
					assertTrue(rt, added, "add of new id")
				} else {
					assertTrue(rt, !added, "add of present id")
				}
				continue
			}
			i := slices.Index(model, id)
			removed := s.Remove(id)
			assertTrue(rt, removed == (i >= 0), "remove result")
			if i >= 0 {
				model = slices.Delete(model, i, i+1)
			}
		}
		if !slices.Equal(model, s.Values()) || s.Len() != len(model) {
			rt.Fatalf("set %v, model %v", s.Values(), model)
		}
	})
}

func assertTrue(rt *rapid.T, ok bool, what string) {
	if !ok {
		rt.Fatalf("%s failed", what)
	}
}
