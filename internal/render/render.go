// Package render defines what the map renderer receives on every flush.
package render

import (
	"log/slog"

	"github.com/OCAP2/bookmarks/pkg/core"
)

// Renderer consumes diffs. The diff is only valid for the duration of the
// call; anything kept must be copied.
type Renderer interface {
	UpdateMarks(diff *Diff)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(diff *Diff)

// UpdateMarks calls f(diff).
func (f RendererFunc) UpdateMarks(diff *Diff) { f(diff) }

// PointMark is the renderable view of a point.
type PointMark struct {
	ID       core.MarkID     `json:"id"`
	Type     core.MarkType   `json:"type"`
	GroupID  core.GroupID    `json:"groupId"`
	Position core.Position2D `json:"position"`
	Name     string          `json:"name,omitempty"`
	Color    core.Color      `json:"color"`
	Icon     string          `json:"icon,omitempty"`
	Scale    uint8           `json:"scale,omitempty"`
}

// LineMark is the renderable view of a track.
type LineMark struct {
	ID      core.LineID   `json:"id"`
	GroupID core.GroupID  `json:"groupId"`
	Points  core.Polyline `json:"points"`
	Name    string        `json:"name,omitempty"`
	Color   core.Color    `json:"color"`
	Width   float64       `json:"width,omitempty"`
}

// LogRenderer writes a one-line summary of every diff.
type LogRenderer struct {
	Logger *slog.Logger
}

// UpdateMarks logs the diff summary.
func (r LogRenderer) UpdateMarks(diff *Diff) {
	if r.Logger == nil {
		return
	}
	r.Logger.Info("marks updated",
		"groups", len(diff.GroupIDs()),
		"dirtyGroups", len(diff.DirtyGroups()),
		"removedGroups", len(diff.RemovedGroups()),
		"createdMarks", len(diff.CreatedMarks()),
		"updatedMarks", len(diff.UpdatedMarks()),
		"removedMarks", len(diff.RemovedMarks()),
		"createdLines", len(diff.CreatedLines()),
		"removedLines", len(diff.RemovedLines()),
	)
}
