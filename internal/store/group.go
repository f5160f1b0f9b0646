package store

import (
	"maps"

	"github.com/OCAP2/bookmarks/pkg/core"
)

// Group is the membership record shared by user-mark layers and categories.
type Group struct {
	id      core.GroupID
	visible bool
	marks   *IDSet[core.MarkID]
	tracks  *IDSet[core.LineID]
}

func newGroup(id core.GroupID, visible bool) *Group {
	return &Group{
		id:      id,
		visible: visible,
		marks:   NewIDSet[core.MarkID](),
		tracks:  NewIDSet[core.LineID](),
	}
}

func (g *Group) ID() core.GroupID             { return g.id }
func (g *Group) IsVisible() bool              { return g.visible }
func (g *Group) SetVisible(v bool)            { g.visible = v }
func (g *Group) MarkIDs() []core.MarkID       { return g.marks.Values() }
func (g *Group) TrackIDs() []core.LineID      { return g.tracks.Values() }
func (g *Group) HasMark(id core.MarkID) bool  { return g.marks.Has(id) }
func (g *Group) HasTrack(id core.LineID) bool { return g.tracks.Has(id) }

// IsEmpty reports whether the group holds neither marks nor tracks.
func (g *Group) IsEmpty() bool { return g.marks.Len() == 0 && g.tracks.Len() == 0 }

// Category is a named group of bookmarks and tracks backed by one file.
type Category struct {
	*Group
	data     core.CategoryData
	filePath string
	autoSave bool
}

// NewCategory creates an empty category.
func NewCategory(id core.GroupID, data core.CategoryData, autoSave bool) *Category {
	if !id.IsBookmarkCategory() {
		panic("store: category id inside the user-mark layer range")
	}
	data.Properties = maps.Clone(data.Properties)
	return &Category{
		Group:    newGroup(id, data.Visible),
		data:     data,
		autoSave: autoSave,
	}
}

func (c *Category) Name() string        { return c.data.Name }
func (c *Category) SetName(name string) { c.data.Name = name }
func (c *Category) Description() string { return c.data.Description }

// SetDescription changes the description.
func (c *Category) SetDescription(d string) { c.data.Description = d }

// Data returns the category metadata including the current visibility.
func (c *Category) Data() core.CategoryData {
	d := c.data
	d.Visible = c.visible
	d.Properties = maps.Clone(c.data.Properties)
	return d
}

// FilePath is empty until the category was saved once.
func (c *Category) FilePath() string        { return c.filePath }
func (c *Category) SetFilePath(path string) { c.filePath = path }

// AutoSave reports whether flushes persist this category.
func (c *Category) AutoSave() bool     { return c.autoSave }
func (c *Category) SetAutoSave(v bool) { c.autoSave = v }
