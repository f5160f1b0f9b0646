// pkg/core/ids.go
package core

import "fmt"

// MarkType tags a point mark. Every non-bookmark type owns one user-mark layer
// whose GroupID equals the type value.
type MarkType uint8

const (
	MarkTypeGeneric MarkType = iota
	MarkTypeSelection
	MarkTypeMyPosition
	MarkTypeTrackAnchor
	MarkTypeBookmark

	markTypeCount
)

// MarkTypeCount is the number of distinct mark types.
const MarkTypeCount = int(markTypeCount)

func (t MarkType) String() string {
	switch t {
	case MarkTypeGeneric:
		return "generic"
	case MarkTypeSelection:
		return "selection"
	case MarkTypeMyPosition:
		return "my_position"
	case MarkTypeTrackAnchor:
		return "track_anchor"
	case MarkTypeBookmark:
		return "bookmark"
	default:
		return fmt.Sprintf("mark_type(%d)", uint8(t))
	}
}

// MarkID identifies a point mark. The top byte carries the MarkType.
type MarkID uint64

// LineID identifies a track.
type LineID uint64

// GroupID identifies a user-mark layer or a bookmark category.
type GroupID uint64

const (
	// InvalidMarkID is never allocated.
	InvalidMarkID MarkID = 0
	// InvalidLineID is never allocated.
	InvalidLineID LineID = 0
	// InvalidGroupID marks a detached mark or track.
	InvalidGroupID GroupID = ^GroupID(0)

	// FirstCategoryID is the lowest id handed out to bookmark categories.
	// Ids below it belong to user-mark layers.
	FirstCategoryID GroupID = 16
)

const markTypeShift = 56

// NewMarkID packs a type and a sequence number.
func NewMarkID(t MarkType, seq uint64) MarkID {
	return MarkID(uint64(t)<<markTypeShift | seq&(1<<markTypeShift-1))
}

// Type returns the mark type encoded in the id.
func (id MarkID) Type() MarkType {
	return MarkType(uint64(id) >> markTypeShift)
}

// IsBookmark reports whether the id belongs to a bookmark.
func (id MarkID) IsBookmark() bool {
	return id != InvalidMarkID && id.Type() == MarkTypeBookmark
}

// IsBookmarkCategory reports whether the group is a category rather than a user-mark layer.
func (id GroupID) IsBookmarkCategory() bool {
	return id != InvalidGroupID && id >= FirstCategoryID
}

// LayerGroupID returns the user-mark layer that holds marks of type t.
func LayerGroupID(t MarkType) GroupID {
	return GroupID(t)
}
