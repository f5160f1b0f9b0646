package storage_test

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/OCAP2/bookmarks/internal/storage"
	"github.com/OCAP2/bookmarks/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testData() *core.FileData {
	return &core.FileData{
		Category: core.CategoryData{Name: "Trip", Visible: true},
		Bookmarks: []core.BookmarkData{
			{Name: "Hotel", Color: core.ColorRed, Position: core.Position2D{X: 1000, Y: 2000}},
		},
		Tracks: []core.TrackData{
			{Name: "Road", Points: core.Polyline{{X: 0, Y: 0}, {X: 500, Y: 500}}},
		},
	}
}

func TestWriteReadFile_TextAndBinary(t *testing.T) {
	dir := t.TempDir()

	for _, binary := range []bool{false, true} {
		path := filepath.Join(dir, "Trip"+storage.Ext(binary))
		require.NoError(t, storage.WriteFile(path, testData(), binary))

		got, err := storage.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "Trip", got.Category.Name)
		assert.Len(t, got.Bookmarks, 1)
		assert.Len(t, got.Tracks, 1)
	}

	// No temporary files are left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestWriteFile_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Trip.geojson")
	require.NoError(t, storage.WriteFile(path, testData(), false))

	data := testData()
	data.Bookmarks = nil
	require.NoError(t, storage.WriteFile(path, data, false))

	got, err := storage.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, got.Bookmarks)
}

func TestReadFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := storage.ReadFile(filepath.Join(dir, "notes.txt"))
	assert.True(t, errors.Is(err, storage.ErrFormat))

	_, err = storage.ReadFile(filepath.Join(dir, "missing.geojson"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	garbage := filepath.Join(dir, "garbage.geojson.gz")
	require.NoError(t, os.WriteFile(garbage, []byte("not gzip"), 0644))
	_, err = storage.ReadFile(garbage)
	assert.True(t, errors.Is(err, storage.ErrFormat))
}

func TestWriteArchive_ReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Trip.zip")
	require.NoError(t, storage.WriteArchive(path, testData()))

	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, "Trip.geojson", zr.File[0].Name)
	zr.Close()

	got, err := storage.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Trip", got.Category.Name)
}

func TestWriteArchive_FailureLeavesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing-dir", "Trip.zip")
	err := storage.WriteArchive(path, testData())
	require.Error(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRemoveInvalidSymbols(t *testing.T) {
	assert.Equal(t, "Trip to Paris", storage.RemoveInvalidSymbols(" Trip/ to: Paris? "))
	assert.Equal(t, "", storage.RemoveInvalidSymbols(`\/:*?"<>|`))
	assert.Equal(t, "ab", storage.RemoveInvalidSymbols("a\tb\n"))
}

func TestGenerateUniqueFileName(t *testing.T) {
	dir := t.TempDir()

	first := storage.GenerateUniqueFileName(dir, "Trip", storage.TextExt)
	assert.Equal(t, filepath.Join(dir, "Trip.geojson"), first)
	require.NoError(t, os.WriteFile(first, nil, 0644))

	second := storage.GenerateUniqueFileName(dir, "Trip", storage.TextExt)
	assert.Equal(t, filepath.Join(dir, "Trip1.geojson"), second)
	require.NoError(t, os.WriteFile(second, nil, 0644))

	assert.Equal(t, filepath.Join(dir, "Trip2.geojson"), storage.GenerateUniqueFileName(dir, "Trip", storage.TextExt))
	assert.Equal(t, filepath.Join(dir, "Bookmarks.geojson"), storage.GenerateUniqueFileName(dir, "???", storage.TextExt))
}

func TestScanDir(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.geojson", "a.geojson.gz", "share.zip", "notes.txt", ".a.geojson.123.tmp"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.geojson"), 0755))

	files, err := storage.ScanDir(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.geojson.gz"),
		filepath.Join(dir, "b.geojson"),
	}, files)

	files, err = storage.ScanDir(filepath.Join(dir, "nope"))
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestFormatOf(t *testing.T) {
	f, err := storage.FormatOf("/x/Trip.GEOJSON")
	require.NoError(t, err)
	assert.Equal(t, storage.FormatText, f)

	f, err = storage.FormatOf("Trip.geojson.gz")
	require.NoError(t, err)
	assert.Equal(t, storage.FormatBinary, f)

	_, err = storage.FormatOf("Trip.kml")
	assert.Error(t, err)
}
