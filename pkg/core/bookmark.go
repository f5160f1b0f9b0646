// pkg/core/bookmark.go
package core

import (
	"maps"
	"time"
)

// BookmarkData is the user-authored payload of a bookmark.
type BookmarkData struct {
	Name        string
	Description string
	Color       Color
	Icon        string
	Scale       uint8
	Position    Position2D
	Timestamp   time.Time
	Properties  map[string]string
}

// Clone returns a deep copy.
func (b BookmarkData) Clone() BookmarkData {
	b.Properties = maps.Clone(b.Properties)
	return b
}

// TrackData is the payload of a track.
type TrackData struct {
	Name        string
	Description string
	Color       Color
	Width       float64
	Points      Polyline
	Timestamp   time.Time
}

// Clone returns a deep copy.
func (t TrackData) Clone() TrackData {
	t.Points = t.Points.Clone()
	return t
}

// CategoryData holds category metadata.
type CategoryData struct {
	Name        string
	Description string
	Visible     bool
	Properties  map[string]string
}

// FileData is the content of one category file.
type FileData struct {
	Category  CategoryData
	Bookmarks []BookmarkData
	Tracks    []TrackData
}

// Clone returns a deep copy.
func (f *FileData) Clone() *FileData {
	if f == nil {
		return nil
	}
	out := &FileData{
		Category: f.Category,
	}
	out.Category.Properties = maps.Clone(f.Category.Properties)
	out.Bookmarks = make([]BookmarkData, len(f.Bookmarks))
	for i, b := range f.Bookmarks {
		out.Bookmarks[i] = b.Clone()
	}
	out.Tracks = make([]TrackData, len(f.Tracks))
	for i, t := range f.Tracks {
		out.Tracks[i] = t.Clone()
	}
	return out
}

// IsEmpty reports whether the file holds neither bookmarks nor tracks.
func (f *FileData) IsEmpty() bool {
	return f == nil || (len(f.Bookmarks) == 0 && len(f.Tracks) == 0)
}

// State is the small scalar state kept across restarts.
type State struct {
	LastEditedCategory     GroupID
	LastEditedCategoryFile string
	LastColor              Color
	LastSynchronization    time.Time
}

// DefaultState is the state of a fresh installation.
func DefaultState() State {
	return State{
		LastEditedCategory: InvalidGroupID,
		LastColor:          DefaultColor,
	}
}

// FlushStats summarizes one flush of an edit session.
type FlushStats struct {
	At            time.Time
	Duration      time.Duration
	CreatedMarks  int
	UpdatedMarks  int
	RemovedMarks  int
	CreatedLines  int
	RemovedLines  int
	DirtyGroups   int
	RemovedGroups int
	SavedFiles    int
	FailedSaves   int
}
