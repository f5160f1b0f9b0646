// Package store owns the marks, tracks and groups of one manager.
//
// The store is not safe for concurrent use. Unknown identifiers passed to a
// mutation are contract violations and panic.
package store

import (
	"fmt"
	"sort"

	"github.com/OCAP2/bookmarks/internal/render"
	"github.com/OCAP2/bookmarks/pkg/core"
)

// Store holds every entity keyed by identifier.
type Store struct {
	marks      map[core.MarkID]Mark
	tracks     map[core.LineID]*Track
	categories map[core.GroupID]*Category
	catOrder   *IDSet[core.GroupID]
	layers     [core.MarkTypeCount]*Group
}

// New creates a store with one visible layer per non-bookmark mark type.
func New() *Store {
	s := &Store{
		marks:      make(map[core.MarkID]Mark),
		tracks:     make(map[core.LineID]*Track),
		categories: make(map[core.GroupID]*Category),
		catOrder:   NewIDSet[core.GroupID](),
	}
	for t := range core.MarkTypeCount {
		if core.MarkType(t) == core.MarkTypeBookmark {
			continue
		}
		s.layers[t] = newGroup(core.LayerGroupID(core.MarkType(t)), true)
	}
	return s
}

// Marks

// AddMark inserts a detached mark.
func (s *Store) AddMark(m Mark) {
	if _, ok := s.marks[m.ID()]; ok {
		panic(fmt.Sprintf("store: duplicate mark %#x", uint64(m.ID())))
	}
	s.marks[m.ID()] = m
}

// Mark looks up a mark.
func (s *Store) Mark(id core.MarkID) (Mark, bool) {
	m, ok := s.marks[id]
	return m, ok
}

// MustMark looks up a mark and panics when it does not exist.
func (s *Store) MustMark(id core.MarkID) Mark {
	m, ok := s.marks[id]
	if !ok {
		panic(fmt.Sprintf("store: unknown mark %#x", uint64(id)))
	}
	return m
}

// Bookmark looks up a bookmark. Non-bookmark ids report false.
func (s *Store) Bookmark(id core.MarkID) (*Bookmark, bool) {
	m, ok := s.marks[id]
	if !ok {
		return nil, false
	}
	bm, ok := m.(*Bookmark)
	return bm, ok
}

// MarkIDs returns all mark ids in ascending order.
func (s *Store) MarkIDs() []core.MarkID {
	ids := make([]core.MarkID, 0, len(s.marks))
	for id := range s.marks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// MarkCount returns the number of marks.
func (s *Store) MarkCount() int { return len(s.marks) }

// MoveMark changes the position of a mark.
func (s *Store) MoveMark(id core.MarkID, p core.Position2D) {
	s.MustMark(id).setPosition(p)
}

// AttachMark puts a detached mark into group g.
func (s *Store) AttachMark(id core.MarkID, g core.GroupID) {
	m := s.MustMark(id)
	if m.GroupID() != core.InvalidGroupID {
		panic(fmt.Sprintf("store: mark %#x already in group %d", uint64(id), m.GroupID()))
	}
	s.mustGroup(g).marks.Add(id)
	m.setGroup(g)
}

// DetachMark removes a mark from its group and returns the old group.
func (s *Store) DetachMark(id core.MarkID) core.GroupID {
	m := s.MustMark(id)
	g := m.GroupID()
	if g == core.InvalidGroupID {
		return g
	}
	if grp, ok := s.Group(g); ok {
		grp.marks.Remove(id)
	}
	m.setGroup(core.InvalidGroupID)
	return g
}

// DeleteMark detaches and removes a mark. The removed mark is returned.
func (s *Store) DeleteMark(id core.MarkID) Mark {
	m := s.MustMark(id)
	s.DetachMark(id)
	delete(s.marks, id)
	return m
}

// Tracks

// AddTrack inserts a detached track.
func (s *Store) AddTrack(t *Track) {
	if _, ok := s.tracks[t.ID()]; ok {
		panic(fmt.Sprintf("store: duplicate track %d", t.ID()))
	}
	s.tracks[t.ID()] = t
}

// Track looks up a track.
func (s *Store) Track(id core.LineID) (*Track, bool) {
	t, ok := s.tracks[id]
	return t, ok
}

// MustTrack looks up a track and panics when it does not exist.
func (s *Store) MustTrack(id core.LineID) *Track {
	t, ok := s.tracks[id]
	if !ok {
		panic(fmt.Sprintf("store: unknown track %d", id))
	}
	return t
}

// TrackCount returns the number of tracks.
func (s *Store) TrackCount() int { return len(s.tracks) }

// AttachTrack puts a detached track into category g.
func (s *Store) AttachTrack(id core.LineID, g core.GroupID) {
	t := s.MustTrack(id)
	if t.group != core.InvalidGroupID {
		panic(fmt.Sprintf("store: track %d already in group %d", id, t.group))
	}
	s.MustCategory(g).tracks.Add(id)
	t.group = g
}

// DetachTrack removes a track from its category and returns the old group.
func (s *Store) DetachTrack(id core.LineID) core.GroupID {
	t := s.MustTrack(id)
	g := t.group
	if g == core.InvalidGroupID {
		return g
	}
	if c, ok := s.categories[g]; ok {
		c.tracks.Remove(id)
	}
	t.group = core.InvalidGroupID
	return g
}

// DeleteTrack detaches and removes a track.
func (s *Store) DeleteTrack(id core.LineID) *Track {
	t := s.MustTrack(id)
	s.DetachTrack(id)
	delete(s.tracks, id)
	return t
}

// Groups

// AddCategory inserts an empty category.
func (s *Store) AddCategory(c *Category) {
	if _, ok := s.categories[c.ID()]; ok {
		panic(fmt.Sprintf("store: duplicate category %d", c.ID()))
	}
	s.categories[c.ID()] = c
	s.catOrder.Add(c.ID())
}

// Category looks up a category.
func (s *Store) Category(id core.GroupID) (*Category, bool) {
	c, ok := s.categories[id]
	return c, ok
}

// MustCategory looks up a category and panics when it does not exist.
func (s *Store) MustCategory(id core.GroupID) *Category {
	c, ok := s.categories[id]
	if !ok {
		panic(fmt.Sprintf("store: unknown category %d", id))
	}
	return c
}

// DeleteCategory removes an empty category.
func (s *Store) DeleteCategory(id core.GroupID) *Category {
	c := s.MustCategory(id)
	if !c.IsEmpty() {
		panic(fmt.Sprintf("store: deleting non-empty category %d", id))
	}
	delete(s.categories, id)
	s.catOrder.Remove(id)
	return c
}

// CategoryIDs returns category ids in creation order.
func (s *Store) CategoryIDs() []core.GroupID { return s.catOrder.Values() }

// CategoryCount returns the number of categories.
func (s *Store) CategoryCount() int { return s.catOrder.Len() }

// Layer returns the user-mark layer of type t.
func (s *Store) Layer(t core.MarkType) *Group {
	if t == core.MarkTypeBookmark || int(t) >= core.MarkTypeCount {
		panic(fmt.Sprintf("store: no layer for %s", t))
	}
	return s.layers[t]
}

// Group returns the membership record of a layer or category.
func (s *Store) Group(id core.GroupID) (*Group, bool) {
	if id.IsBookmarkCategory() {
		c, ok := s.categories[id]
		if !ok {
			return nil, false
		}
		return c.Group, true
	}
	if int(id) < core.MarkTypeCount && s.layers[id] != nil {
		return s.layers[id], true
	}
	return nil, false
}

func (s *Store) mustGroup(id core.GroupID) *Group {
	g, ok := s.Group(id)
	if !ok {
		panic(fmt.Sprintf("store: unknown group %d", id))
	}
	return g
}

// GroupIDs returns layer ids followed by category ids.
func (s *Store) GroupIDs() []core.GroupID {
	ids := make([]core.GroupID, 0, core.MarkTypeCount+s.catOrder.Len())
	for _, l := range s.layers {
		if l != nil {
			ids = append(ids, l.id)
		}
	}
	return append(ids, s.catOrder.Values()...)
}

// Read accessors used by the change tracker.

// GroupState returns the visibility and a membership snapshot of a group.
func (s *Store) GroupState(id core.GroupID) (visible bool, marks []core.MarkID, lines []core.LineID, ok bool) {
	g, ok := s.Group(id)
	if !ok {
		return false, nil, nil, false
	}
	return g.visible, g.marks.Values(), g.tracks.Values(), true
}

// PointMark returns the renderable view of a mark.
func (s *Store) PointMark(id core.MarkID) (render.PointMark, bool) {
	m, ok := s.marks[id]
	if !ok {
		return render.PointMark{}, false
	}
	return m.Render(), true
}

// LineMark returns the renderable view of a track.
func (s *Store) LineMark(id core.LineID) (render.LineMark, bool) {
	t, ok := s.tracks[id]
	if !ok {
		return render.LineMark{}, false
	}
	return t.Render(), true
}
