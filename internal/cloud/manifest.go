package cloud

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/OCAP2/bookmarks/internal/storage"
	"github.com/OCAP2/bookmarks/pkg/core"
	"github.com/google/uuid"
)

const (
	manifestKey = "manifest.json"
	// objectsPrefix holds file contents keyed by their SHA-256, so an object
	// never changes once written.
	objectsPrefix   = "objects/"
	manifestVersion = 2
)

func objectKey(sum string) string { return objectsPrefix + sum }

// Manifest describes one complete backup.
type Manifest struct {
	Version   int            `json:"version"`
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Files     []ManifestFile `json:"files"`
}

// ManifestFile is one category file of a backup.
type ManifestFile struct {
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

// TotalSize returns the sum of all file sizes.
func (m *Manifest) TotalSize() uint64 {
	var total uint64
	for _, f := range m.Files {
		total += uint64(f.Size)
	}
	return total
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Backup uploads the file contents and then the manifest. Contents are
// content-addressed, so an interrupted backup leaves the previous manifest
// and every object it names intact.
func Backup(ctx context.Context, store Store, files []string, now time.Time) (*Manifest, error) {
	m := &Manifest{
		Version:   manifestVersion,
		ID:        uuid.NewString(),
		Timestamp: now.UTC(),
		Files:     make([]ManifestFile, 0, len(files)),
	}
	seen := make(map[string]bool, len(files))
	for _, file := range files {
		name := filepath.Base(file)
		if seen[name] {
			return nil, fmt.Errorf("duplicate file name %q in backup", name)
		}
		seen[name] = true

		data, err := os.ReadFile(file)
		if err != nil {
			return nil, &diskError{err: err}
		}
		sum := checksum(data)
		if err := store.Put(ctx, objectKey(sum), data); err != nil {
			return nil, fmt.Errorf("upload %s: %w", name, err)
		}
		m.Files = append(m.Files, ManifestFile{Name: name, Size: int64(len(data)), SHA256: sum})
	}

	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	if err := store.Put(ctx, manifestKey, raw); err != nil {
		return nil, fmt.Errorf("upload manifest: %w", err)
	}
	return m, nil
}

// FetchManifest returns the current backup manifest or ErrNoBackup.
func FetchManifest(ctx context.Context, store Store) (*Manifest, error) {
	raw, err := store.Get(ctx, manifestKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNoBackup
		}
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("corrupt manifest: %w", err)
	}
	if m.Version != manifestVersion {
		return nil, fmt.Errorf("unsupported manifest version %d", m.Version)
	}
	return &m, nil
}

// Download fetches every file of m into dir, verifies its checksum and
// decodes it. On error dir is left for the caller to remove.
func Download(ctx context.Context, store Store, m *Manifest, dir string) ([]string, []*core.FileData, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nil, &diskError{err: err}
	}
	paths := make([]string, 0, len(m.Files))
	datas := make([]*core.FileData, 0, len(m.Files))
	for _, f := range m.Files {
		// names come from the remote side
		name := path.Base(f.Name)
		if name != f.Name || name == "." || name == "/" {
			return nil, nil, fmt.Errorf("invalid file name %q in manifest", f.Name)
		}
		if len(f.SHA256) != sha256.Size*2 {
			return nil, nil, fmt.Errorf("invalid checksum for %s in manifest", name)
		}
		raw, err := store.Get(ctx, objectKey(f.SHA256))
		if err != nil {
			return nil, nil, fmt.Errorf("download %s: %w", name, err)
		}
		if checksum(raw) != f.SHA256 {
			return nil, nil, fmt.Errorf("checksum mismatch for %s", name)
		}
		target := filepath.Join(dir, name)
		if err := os.WriteFile(target, raw, 0644); err != nil {
			return nil, nil, &diskError{err: err}
		}
		data, err := storage.ReadFile(target)
		if err != nil {
			return nil, nil, fmt.Errorf("validate %s: %w", name, err)
		}
		paths = append(paths, target)
		datas = append(datas, data)
	}
	return paths, datas, nil
}

// diskError marks local file system failures.
type diskError struct{ err error }

func (e *diskError) Error() string { return e.err.Error() }
func (e *diskError) Unwrap() error { return e.err }

func resultOf(err error) SyncResult {
	if err == nil {
		return ResultSuccess
	}
	var de *diskError
	if errors.As(err, &de) {
		return ResultDiskError
	}
	if errors.Is(err, ErrAuth) {
		return ResultAuthError
	}
	return ResultNetworkError
}

func newStagingDir(base string) string {
	if base == "" {
		base = filepath.Join(os.TempDir(), "bookmarks-restore")
	}
	return filepath.Join(base, uuid.NewString())
}
