package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// Format is the on-disk representation of a category file.
type Format int

const (
	FormatText Format = iota
	FormatBinary
	FormatArchive
)

const (
	TextExt    = ".geojson"
	BinaryExt  = ".geojson.gz"
	ArchiveExt = ".zip"
)

// DefaultFileName is used when a category name has no usable characters.
const DefaultFileName = "Bookmarks"

// FormatOf returns the format implied by the file extension.
func FormatOf(path string) (Format, error) {
	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasSuffix(name, BinaryExt):
		return FormatBinary, nil
	case strings.HasSuffix(name, TextExt):
		return FormatText, nil
	case strings.HasSuffix(name, ArchiveExt):
		return FormatArchive, nil
	default:
		return 0, fmt.Errorf("%w: unsupported extension for %s", ErrFormat, filepath.Base(path))
	}
}

// Ext returns the extension used when saving in text or binary mode.
func Ext(binary bool) string {
	if binary {
		return BinaryExt
	}
	return TextExt
}

const invalidSymbols = `\/:*?"<>|`

// RemoveInvalidSymbols strips characters that are not allowed in file names.
func RemoveInvalidSymbols(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsControl(r) || strings.ContainsRune(invalidSymbols, r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// GenerateUniqueFileName returns a path in dir for name that does not exist
// yet, appending a counter when needed: Trip.geojson, Trip1.geojson, ...
func GenerateUniqueFileName(dir, name, ext string) string {
	name = RemoveInvalidSymbols(name)
	if name == "" {
		name = DefaultFileName
	}
	candidate := filepath.Join(dir, name+ext)
	for i := 1; fileExists(candidate); i++ {
		candidate = filepath.Join(dir, name+strconv.Itoa(i)+ext)
	}
	return candidate
}

// ScanDir lists the category files in dir, sorted by name. A missing
// directory yields no files.
func ScanDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if format, err := FormatOf(entry.Name()); err != nil || format == FormatArchive {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// IsImportable reports whether name can be handed to ReadFile: a visible
// file in any of the supported formats, share archives included.
func IsImportable(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	_, err := FormatOf(base)
	return err == nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
