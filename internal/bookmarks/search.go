package bookmarks

import (
	"math"

	"github.com/OCAP2/bookmarks/pkg/core"
)

// FindNearestUserMark returns the mark closest to the center of rect among
// the selectable marks of every visible group.
func (m *Manager) FindNearestUserMark(rect core.Rect) (core.MarkID, bool) {
	best, bestDist := core.InvalidMarkID, math.Inf(1)
	for _, g := range m.store.GroupIDs() {
		if g == core.LayerGroupID(core.MarkTypeSelection) || g == core.LayerGroupID(core.MarkTypeMyPosition) {
			continue
		}
		if id, d, ok := m.nearestInGroup(g, rect); ok && d < bestDist {
			best, bestDist = id, d
		}
	}
	return best, best != core.InvalidMarkID
}

// FindMarkInRect returns the mark of group g closest to the center of rect.
func (m *Manager) FindMarkInRect(g core.GroupID, rect core.Rect) (core.MarkID, bool) {
	id, _, ok := m.nearestInGroup(g, rect)
	return id, ok
}

func (m *Manager) nearestInGroup(g core.GroupID, rect core.Rect) (core.MarkID, float64, bool) {
	grp, ok := m.store.Group(g)
	if !ok || !grp.IsVisible() {
		return core.InvalidMarkID, 0, false
	}
	center := rect.Center()
	best, bestDist := core.InvalidMarkID, math.Inf(1)
	for _, id := range grp.MarkIDs() {
		p := m.store.MustMark(id).Position()
		if !rect.Contains(p) {
			continue
		}
		if d := p.DistanceTo(center); d < bestDist {
			best, bestDist = id, d
		}
	}
	return best, bestDist, best != core.InvalidMarkID
}
