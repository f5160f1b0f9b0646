package s3store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/bookmarks/internal/cloud"
	"github.com/OCAP2/bookmarks/internal/storage"
	"github.com/OCAP2/bookmarks/pkg/core"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func writeSample(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "Trip"+storage.TextExt)
	data := &core.FileData{
		Category: core.CategoryData{Name: "Trip", Visible: true},
		Bookmarks: []core.BookmarkData{
			{Name: "Cafe", Color: core.DefaultColor, Position: core.Position2D{X: 100, Y: 200}, Timestamp: fixedNow},
		},
	}
	require.NoError(t, storage.WriteFile(path, data, false))
	return path
}

func TestStore_PutGet(t *testing.T) {
	s := TestStore(t, "backups")
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "files/Trip.geojson", []byte(`{"type":"FeatureCollection"}`)))

	data, err := s.Get(ctx, "files/Trip.geojson")
	require.NoError(t, err)
	assert.Equal(t, `{"type":"FeatureCollection"}`, string(data))
}

func TestStore_Overwrite(t *testing.T) {
	s := TestStore(t, "backups")
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "manifest.json", []byte("1")))
	require.NoError(t, s.Put(ctx, "manifest.json", []byte("2")))

	data, err := s.Get(ctx, "manifest.json")
	require.NoError(t, err)
	assert.Equal(t, "2", string(data))
}

func TestStore_GetMissing(t *testing.T) {
	s := TestStore(t, "backups")

	_, err := s.Get(context.Background(), "manifest.json")
	assert.ErrorIs(t, err, cloud.ErrNotFound)
}

func TestStore_Prefix(t *testing.T) {
	base := TestStore(t, "backups")
	alice := NewFromClient(base.client, "backups", "alice")
	bob := NewFromClient(base.client, "backups", "bob/")
	ctx := context.Background()

	require.NoError(t, alice.Put(ctx, "manifest.json", []byte("alice")))

	_, err := bob.Get(ctx, "manifest.json")
	assert.ErrorIs(t, err, cloud.ErrNotFound)

	data, err := base.Get(ctx, "alice/manifest.json")
	require.NoError(t, err)
	assert.Equal(t, "alice", string(data))
}

func TestStore_BackupRoundTrip(t *testing.T) {
	s := TestStore(t, "backups")
	ctx := context.Background()

	dir := t.TempDir()
	path := writeSample(t, dir)

	m, err := cloud.Backup(ctx, s, []string{path}, fixedNow)
	require.NoError(t, err)

	got, err := cloud.FetchManifest(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)
	require.Len(t, got.Files, 1)
}

func TestNew_RequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{Region: "us-east-1"})
	assert.Error(t, err)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/json", contentType("manifest.json"))
	assert.Equal(t, "application/json", contentType("files/a.geojson"))
	assert.Equal(t, "application/gzip", contentType("files/a.geojson.gz"))
	assert.Equal(t, "application/octet-stream", contentType("files/a.zip"))
}
