package bookmarks

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OCAP2/bookmarks/internal/cloud"
	"github.com/OCAP2/bookmarks/internal/cloud/badgerstore"
	"github.com/OCAP2/bookmarks/internal/storage"
	"github.com/OCAP2/bookmarks/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cloudEvents struct {
	finished []cloud.SyncResult
	prepared int
}

func newCloudFixture(t *testing.T) (*fixture, *cloudEvents) {
	t.Helper()
	backup, err := badgerstore.Open(badgerstore.Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = backup.Close() })

	staging := filepath.Join(t.TempDir(), "staging")
	f := newFixture(t, func(d *Dependencies) {
		d.CloudStore = backup
		d.CloudConfig = cloud.Config{StagingDir: staging}
	})
	ev := &cloudEvents{}
	f.m.SetCloudHandlers(cloud.Handlers{
		OnSynchronizationFinished: func(_ cloud.SyncType, r cloud.SyncResult, _ string) {
			ev.finished = append(ev.finished, r)
		},
		OnRestoredFilesPrepared: func() { ev.prepared++ },
	})
	return f, ev
}

func TestCloud_BackupAndRestore(t *testing.T) {
	f, ev := newCloudFixture(t)
	trip := f.m.CreateBookmarkCategory("Trip", true)
	f.m.Edit(func(es *EditSession) {
		es.CreateBookmark(core.BookmarkData{Name: "Hotel", Position: core.Position2D{X: 10, Y: 20}}, trip)
	})

	f.m.SetCloudEnabled(true)
	f.runUntil(func() bool { return len(ev.finished) == 1 })
	require.Equal(t, cloud.ResultSuccess, ev.finished[0])
	assert.False(t, f.state.state.LastSynchronization.IsZero())
	f.m.SetCloudEnabled(false)

	// local changes after the backup are discarded by the restore
	home := f.m.CreateBookmarkCategory("Home", true)
	f.m.Edit(func(es *EditSession) { es.CreateBookmark(core.BookmarkData{Name: "Sofa"}, home) })
	c, _ := f.m.Category(trip)
	oldFile := c.FilePath()

	require.NoError(t, f.m.RequestCloudRestoring())
	f.runUntil(func() bool { return ev.prepared == 1 })
	assert.Equal(t, cloud.PhaseFilesPrepared, f.m.Cloud().Phase())
	require.Len(t, f.m.CategoryIDs(), 2, "prepared files do not touch the model")

	f.diffs = nil
	require.NoError(t, f.m.ApplyCloudRestoring())

	require.Len(t, f.diffs, 1)
	ids := f.m.CategoryIDs()
	require.Len(t, ids, 1)
	restored, _ := f.m.Category(ids[0])
	assert.Equal(t, "Trip", restored.Name())
	require.Len(t, restored.MarkIDs(), 1)
	bm, ok := f.m.Store().Bookmark(restored.MarkIDs()[0])
	require.True(t, ok)
	assert.Equal(t, "Hotel", bm.Name())
	assert.Equal(t, oldFile, restored.FilePath(), "old file removed first, so the name is reused")
	assert.ElementsMatch(t, []core.GroupID{trip, home}, f.diffs[0].RemovedGroups())
	assert.Equal(t, cloud.PhaseIdle, f.m.Cloud().Phase())
}

func TestApplyRestore_WriteFailureKeepsCurrentFiles(t *testing.T) {
	f := newFixture(t)
	trip := f.m.CreateBookmarkCategory("Trip", true)
	f.m.Edit(func(es *EditSession) { es.CreateBookmark(core.BookmarkData{Name: "Hotel"}, trip) })
	c, _ := f.m.Category(trip)
	tripFile := c.FilePath()
	require.FileExists(t, tripFile)
	f.diffs = nil

	sofa := &core.FileData{
		Category:  core.CategoryData{Name: "Home", Visible: true},
		Bookmarks: []core.BookmarkData{{Name: "Sofa"}},
	}
	f.m.writeFile = func(string, *core.FileData, bool) error { return errors.New("disk full") }
	err := f.m.ApplyRestore([]*core.FileData{sofa})
	require.ErrorContains(t, err, "disk full")

	assert.Equal(t, []core.GroupID{trip}, f.m.CategoryIDs())
	assert.Empty(t, f.diffs)
	data, err := storage.ReadFile(tripFile)
	require.NoError(t, err, "the current file is put back")
	require.Len(t, data.Bookmarks, 1)
	assert.Equal(t, "Hotel", data.Bookmarks[0].Name)
	assert.NoFileExists(t, tripFile+replacedSuffix)

	f.m.writeFile = storage.WriteFile
	require.NoError(t, f.m.ApplyRestore([]*core.FileData{sofa}))
	ids := f.m.CategoryIDs()
	require.Len(t, ids, 1)
	home, _ := f.m.Category(ids[0])
	assert.Equal(t, "Home", home.Name())
	assert.FileExists(t, home.FilePath())
	assert.NoFileExists(t, tripFile)
	assert.NoFileExists(t, tripFile+replacedSuffix)
	entries, err := os.ReadDir(f.dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCloud_CancelLeavesModelUntouched(t *testing.T) {
	f, ev := newCloudFixture(t)
	trip := f.m.CreateBookmarkCategory("Trip", true)
	f.m.Edit(func(es *EditSession) { es.CreateBookmark(core.BookmarkData{Name: "Hotel"}, trip) })
	f.m.SetCloudEnabled(true)
	f.runUntil(func() bool { return len(ev.finished) == 1 })

	require.NoError(t, f.m.RequestCloudRestoring())
	f.runUntil(func() bool { return ev.prepared == 1 })
	f.diffs = nil

	require.NoError(t, f.m.CancelCloudRestoring())

	assert.Equal(t, []core.GroupID{trip}, f.m.CategoryIDs())
	assert.Empty(t, f.diffs)
	assert.Equal(t, cloud.ResultUserInterrupted, ev.finished[len(ev.finished)-1])
}

func TestCloud_NoStore(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.m.RequestCloudRestoring(), cloud.ErrCloudUnavailable)
}

func TestCloud_ChangeRequestsBackup(t *testing.T) {
	f, ev := newCloudFixture(t)
	f.m.SetCloudEnabled(true)
	f.runUntil(func() bool { return len(ev.finished) == 1 })

	cat := f.m.CreateBookmarkCategory("Trip", true)
	f.m.Edit(func(es *EditSession) { es.CreateBookmark(core.BookmarkData{Name: "x"}, cat) })
	f.runUntil(func() bool { return len(ev.finished) == 2 })

	assert.Equal(t, cloud.ResultSuccess, ev.finished[1])
	assert.WithinDuration(t, time.Now(), f.m.Cloud().LastSynchronization(), time.Minute)
}
