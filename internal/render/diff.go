package render

import (
	"encoding/json"
	"maps"
	"slices"

	"github.com/OCAP2/bookmarks/pkg/core"
)

// DiffData is the raw content of a Diff. It is copied by NewDiff.
type DiffData struct {
	Groups            []core.GroupID                 `json:"groups"`
	DirtyGroups       []core.GroupID                 `json:"dirtyGroups,omitempty"`
	CreatedGroups     []core.GroupID                 `json:"createdGroups,omitempty"`
	RemovedGroups     []core.GroupID                 `json:"removedGroups,omitempty"`
	Visible           map[core.GroupID]bool          `json:"visible,omitempty"`
	VisibilityChanged []core.GroupID                 `json:"visibilityChanged,omitempty"`
	GroupMarks        map[core.GroupID][]core.MarkID `json:"groupMarks,omitempty"`
	GroupLines        map[core.GroupID][]core.LineID `json:"groupLines,omitempty"`
	CreatedMarks      []core.MarkID                  `json:"createdMarks,omitempty"`
	UpdatedMarks      []core.MarkID                  `json:"updatedMarks,omitempty"`
	RemovedMarks      []core.MarkID                  `json:"removedMarks,omitempty"`
	CreatedLines      []core.LineID                  `json:"createdLines,omitempty"`
	RemovedLines      []core.LineID                  `json:"removedLines,omitempty"`
	Points            map[core.MarkID]PointMark      `json:"points,omitempty"`
	Lines             map[core.LineID]LineMark       `json:"lines,omitempty"`
}

// Diff is an immutable view of the changes of one flush. Membership is a
// snapshot taken when the diff was built and is only present for dirty groups.
type Diff struct {
	d                 DiffData
	visibilityChanged map[core.GroupID]struct{}
}

// NewDiff copies data into a new Diff.
func NewDiff(data DiffData) *Diff {
	d := DiffData{
		Groups:            slices.Clone(data.Groups),
		DirtyGroups:       slices.Clone(data.DirtyGroups),
		CreatedGroups:     slices.Clone(data.CreatedGroups),
		RemovedGroups:     slices.Clone(data.RemovedGroups),
		Visible:           maps.Clone(data.Visible),
		VisibilityChanged: slices.Clone(data.VisibilityChanged),
		GroupMarks:        make(map[core.GroupID][]core.MarkID, len(data.GroupMarks)),
		GroupLines:        make(map[core.GroupID][]core.LineID, len(data.GroupLines)),
		CreatedMarks:      slices.Clone(data.CreatedMarks),
		UpdatedMarks:      slices.Clone(data.UpdatedMarks),
		RemovedMarks:      slices.Clone(data.RemovedMarks),
		CreatedLines:      slices.Clone(data.CreatedLines),
		RemovedLines:      slices.Clone(data.RemovedLines),
		Points:            maps.Clone(data.Points),
		Lines:             make(map[core.LineID]LineMark, len(data.Lines)),
	}
	for g, ids := range data.GroupMarks {
		d.GroupMarks[g] = slices.Clone(ids)
	}
	for g, ids := range data.GroupLines {
		d.GroupLines[g] = slices.Clone(ids)
	}
	for id, l := range data.Lines {
		l.Points = l.Points.Clone()
		d.Lines[id] = l
	}
	vc := make(map[core.GroupID]struct{}, len(d.VisibilityChanged))
	for _, g := range d.VisibilityChanged {
		vc[g] = struct{}{}
	}
	return &Diff{d: d, visibilityChanged: vc}
}

// GroupIDs returns every group known at flush time.
func (d *Diff) GroupIDs() []core.GroupID { return slices.Clone(d.d.Groups) }

// DirtyGroups returns groups whose membership, content or visibility changed.
func (d *Diff) DirtyGroups() []core.GroupID { return slices.Clone(d.d.DirtyGroups) }

// CreatedGroups returns groups created since the previous flush.
func (d *Diff) CreatedGroups() []core.GroupID { return slices.Clone(d.d.CreatedGroups) }

// RemovedGroups returns groups the renderer knew and that are gone now.
func (d *Diff) RemovedGroups() []core.GroupID { return slices.Clone(d.d.RemovedGroups) }

// IsVisible reports the visibility of a known group.
func (d *Diff) IsVisible(g core.GroupID) bool { return d.d.Visible[g] }

// IsVisibilityChanged reports whether the visibility of g flipped.
func (d *Diff) IsVisibilityChanged(g core.GroupID) bool {
	_, ok := d.visibilityChanged[g]
	return ok
}

// GroupMarks returns the point membership of a dirty group.
func (d *Diff) GroupMarks(g core.GroupID) []core.MarkID { return slices.Clone(d.d.GroupMarks[g]) }

// GroupLines returns the line membership of a dirty group.
func (d *Diff) GroupLines(g core.GroupID) []core.LineID { return slices.Clone(d.d.GroupLines[g]) }

func (d *Diff) CreatedMarks() []core.MarkID { return slices.Clone(d.d.CreatedMarks) }
func (d *Diff) UpdatedMarks() []core.MarkID { return slices.Clone(d.d.UpdatedMarks) }
func (d *Diff) RemovedMarks() []core.MarkID { return slices.Clone(d.d.RemovedMarks) }
func (d *Diff) CreatedLines() []core.LineID { return slices.Clone(d.d.CreatedLines) }
func (d *Diff) RemovedLines() []core.LineID { return slices.Clone(d.d.RemovedLines) }

// PointMark looks up the attributes of a point carried by the diff.
func (d *Diff) PointMark(id core.MarkID) (PointMark, bool) {
	p, ok := d.d.Points[id]
	return p, ok
}

// LineMark looks up the attributes of a line carried by the diff.
func (d *Diff) LineMark(id core.LineID) (LineMark, bool) {
	l, ok := d.d.Lines[id]
	if ok {
		l.Points = l.Points.Clone()
	}
	return l, ok
}

// IsEmpty reports whether the diff changes nothing.
func (d *Diff) IsEmpty() bool {
	return len(d.d.DirtyGroups) == 0 && len(d.d.CreatedGroups) == 0 && len(d.d.RemovedGroups) == 0 &&
		len(d.d.CreatedMarks) == 0 && len(d.d.UpdatedMarks) == 0 && len(d.d.RemovedMarks) == 0 &&
		len(d.d.CreatedLines) == 0 && len(d.d.RemovedLines) == 0
}

// MarshalJSON encodes the full diff content.
func (d *Diff) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.d)
}
