package ids

import (
	"sync"
	"testing"

	"github.com/OCAP2/bookmarks/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextMark_CarriesType(t *testing.T) {
	a := New()

	bm := a.NextMark(core.MarkTypeBookmark)
	sel := a.NextMark(core.MarkTypeSelection)

	assert.Equal(t, core.MarkTypeBookmark, bm.Type())
	assert.Equal(t, core.MarkTypeSelection, sel.Type())
	assert.True(t, bm.IsBookmark())
	assert.False(t, sel.IsBookmark())
	assert.NotEqual(t, bm, sel)
}

func TestNextGroup_StartsAtFirstCategory(t *testing.T) {
	a := New()

	first := a.NextGroup()
	second := a.NextGroup()

	assert.Equal(t, core.FirstCategoryID, first)
	assert.Equal(t, first+1, second)
	assert.True(t, first.IsBookmarkCategory())
	assert.False(t, core.LayerGroupID(core.MarkTypeGeneric).IsBookmarkCategory())
}

func TestSpacesAreIndependent(t *testing.T) {
	a := New()

	a.NextMark(core.MarkTypeGeneric)
	a.NextMark(core.MarkTypeGeneric)

	assert.Equal(t, core.LineID(1), a.NextLine())
}

func TestConcurrentAllocationNeverRepeats(t *testing.T) {
	a := New()
	const workers, perWorker = 8, 500

	var mu sync.Mutex
	seen := make(map[core.LineID]struct{}, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := a.NextLine()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, workers*perWorker)
}
