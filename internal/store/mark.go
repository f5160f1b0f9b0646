package store

import (
	"fmt"
	"time"

	"github.com/OCAP2/bookmarks/internal/render"
	"github.com/OCAP2/bookmarks/pkg/core"
)

// Mark is a point on the map. The set of implementations is closed:
// *UserMark and *Bookmark.
type Mark interface {
	ID() core.MarkID
	Type() core.MarkType
	Position() core.Position2D
	GroupID() core.GroupID
	Render() render.PointMark

	setPosition(p core.Position2D)
	setGroup(g core.GroupID)
}

// UserMark is a non-bookmark point: selection, my position, track anchors and
// generic search results.
type UserMark struct {
	id       core.MarkID
	position core.Position2D
	group    core.GroupID
	color    core.Color
}

// NewUserMark creates a detached user mark.
func NewUserMark(id core.MarkID, p core.Position2D) *UserMark {
	if id.Type() == core.MarkTypeBookmark {
		panic(fmt.Sprintf("store: user mark with bookmark id %#x", uint64(id)))
	}
	return &UserMark{id: id, position: p, group: core.InvalidGroupID}
}

func (m *UserMark) ID() core.MarkID           { return m.id }
func (m *UserMark) Type() core.MarkType       { return m.id.Type() }
func (m *UserMark) Position() core.Position2D { return m.position }
func (m *UserMark) GroupID() core.GroupID     { return m.group }

// Color returns the display color.
func (m *UserMark) Color() core.Color { return m.color }

// SetColor changes the display color.
func (m *UserMark) SetColor(c core.Color) { m.color = c }

func (m *UserMark) Render() render.PointMark {
	return render.PointMark{
		ID:       m.id,
		Type:     m.Type(),
		GroupID:  m.group,
		Position: m.position,
		Color:    m.color,
	}
}

func (m *UserMark) setPosition(p core.Position2D) { m.position = p }
func (m *UserMark) setGroup(g core.GroupID)       { m.group = g }

// Bookmark is a user-authored mark.
type Bookmark struct {
	id    core.MarkID
	data  core.BookmarkData
	group core.GroupID
}

// NewBookmark creates a detached bookmark.
func NewBookmark(id core.MarkID, data core.BookmarkData) *Bookmark {
	if id.Type() != core.MarkTypeBookmark {
		panic(fmt.Sprintf("store: bookmark with %s id %#x", id.Type(), uint64(id)))
	}
	if data.Timestamp.IsZero() {
		data.Timestamp = time.Now().UTC().Truncate(time.Second)
	}
	return &Bookmark{id: id, data: data.Clone(), group: core.InvalidGroupID}
}

func (b *Bookmark) ID() core.MarkID           { return b.id }
func (b *Bookmark) Type() core.MarkType       { return core.MarkTypeBookmark }
func (b *Bookmark) Position() core.Position2D { return b.data.Position }
func (b *Bookmark) GroupID() core.GroupID     { return b.group }

// Data returns a copy of the bookmark payload.
func (b *Bookmark) Data() core.BookmarkData { return b.data.Clone() }

// Name returns the bookmark name.
func (b *Bookmark) Name() string { return b.data.Name }

// SetData replaces the payload. The position is kept when data has none.
func (b *Bookmark) SetData(data core.BookmarkData) {
	if data.Position == (core.Position2D{}) {
		data.Position = b.data.Position
	}
	if data.Timestamp.IsZero() {
		data.Timestamp = b.data.Timestamp
	}
	b.data = data.Clone()
}

func (b *Bookmark) Render() render.PointMark {
	return render.PointMark{
		ID:       b.id,
		Type:     core.MarkTypeBookmark,
		GroupID:  b.group,
		Position: b.data.Position,
		Name:     b.data.Name,
		Color:    b.data.Color,
		Icon:     b.data.Icon,
		Scale:    b.data.Scale,
	}
}

func (b *Bookmark) setPosition(p core.Position2D) { b.data.Position = p }
func (b *Bookmark) setGroup(g core.GroupID)       { b.group = g }

// As returns m as its concrete variant T and panics when m is another variant.
func As[T Mark](m Mark) T {
	v, ok := m.(T)
	if !ok {
		var want T
		panic(fmt.Sprintf("store: mark %#x is %T, not %T", uint64(m.ID()), m, want))
	}
	return v
}

// Track is a polyline owned by the store.
type Track struct {
	id    core.LineID
	data  core.TrackData
	group core.GroupID
}

// NewTrack creates a detached track.
func NewTrack(id core.LineID, data core.TrackData) *Track {
	if data.Timestamp.IsZero() {
		data.Timestamp = time.Now().UTC().Truncate(time.Second)
	}
	return &Track{id: id, data: data.Clone(), group: core.InvalidGroupID}
}

func (t *Track) ID() core.LineID       { return t.id }
func (t *Track) GroupID() core.GroupID { return t.group }

// Data returns a copy of the track payload.
func (t *Track) Data() core.TrackData { return t.data.Clone() }

// Name returns the track name.
func (t *Track) Name() string { return t.data.Name }

// SetData replaces the payload.
func (t *Track) SetData(data core.TrackData) {
	if data.Timestamp.IsZero() {
		data.Timestamp = t.data.Timestamp
	}
	t.data = data.Clone()
}

// Render returns the renderable view.
func (t *Track) Render() render.LineMark {
	return render.LineMark{
		ID:      t.id,
		GroupID: t.group,
		Points:  t.data.Points.Clone(),
		Name:    t.data.Name,
		Color:   t.data.Color,
		Width:   t.data.Width,
	}
}
