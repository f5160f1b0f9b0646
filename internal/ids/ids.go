// Package ids hands out mark, line and group identifiers.
package ids

import (
	"sync/atomic"

	"github.com/OCAP2/bookmarks/pkg/core"
)

// Allocator owns three independent identifier spaces. Identifiers are
// monotonic and never reused for the lifetime of the allocator.
type Allocator struct {
	marks  atomic.Uint64
	lines  atomic.Uint64
	groups atomic.Uint64
}

// New creates an allocator. Group ids start at core.FirstCategoryID.
func New() *Allocator {
	a := &Allocator{}
	a.groups.Store(uint64(core.FirstCategoryID) - 1)
	return a
}

// NextMark returns a fresh mark id tagged with t.
func (a *Allocator) NextMark(t core.MarkType) core.MarkID {
	return core.NewMarkID(t, a.marks.Add(1))
}

// NextLine returns a fresh line id.
func (a *Allocator) NextLine() core.LineID {
	return core.LineID(a.lines.Add(1))
}

// NextGroup returns a fresh category id.
func (a *Allocator) NextGroup() core.GroupID {
	return core.GroupID(a.groups.Add(1))
}
