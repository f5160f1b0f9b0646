// Package storage reads and writes category files on disk.
package storage

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/OCAP2/bookmarks/internal/storage/geojson"
	"github.com/OCAP2/bookmarks/pkg/core"
)

// ErrFormat is returned for files that are not valid category documents.
var ErrFormat = geojson.ErrFormat

// ReadFile loads one category from path. The format is chosen by extension.
func ReadFile(path string) (*core.FileData, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}

	if format == FormatArchive {
		return readArchive(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Decode(f, format == FormatBinary)
}

// Decode parses a document, gunzipped first if binary is set.
func Decode(r io.Reader, binary bool) (*core.FileData, error) {
	if !binary {
		return geojson.Decode(r)
	}
	gzReader, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	defer gzReader.Close()
	return geojson.Decode(gzReader)
}

// Encode serializes data in text or binary mode.
func Encode(w io.Writer, data *core.FileData, binary bool) error {
	if !binary {
		return geojson.Encode(w, data)
	}
	gzWriter := gzip.NewWriter(w)
	if err := geojson.Encode(gzWriter, data); err != nil {
		gzWriter.Close()
		return err
	}
	return gzWriter.Close()
}

// WriteFile stores data at path. The document is written to a temporary file
// in the same directory and renamed over path, so readers never see a
// partially written file.
func WriteFile(path string, data *core.FileData, binary bool) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := Encode(tmp, data, binary); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// WriteArchive stores data as a zip archive holding a single text document
// named after the archive. On failure no file is left at path.
func WriteArchive(path string, data *core.FileData) error {
	var doc bytes.Buffer
	if err := geojson.Encode(&doc, data); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	entryName := strings.TrimSuffix(filepath.Base(path), ArchiveExt) + TextExt
	zw := zip.NewWriter(f)
	err = func() error {
		w, err := zw.Create(entryName)
		if err != nil {
			return err
		}
		if _, err := w.Write(doc.Bytes()); err != nil {
			return err
		}
		return zw.Close()
	}()
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to write archive %s: %w", path, err)
	}
	return nil
}

func readArchive(path string) (*core.FileData, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	defer zr.Close()

	for _, entry := range zr.File {
		format, err := FormatOf(entry.Name)
		if err != nil || format == FormatArchive {
			continue
		}
		rc, err := entry.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return Decode(rc, format == FormatBinary)
	}
	return nil, fmt.Errorf("%w: archive %s contains no category document", ErrFormat, filepath.Base(path))
}
