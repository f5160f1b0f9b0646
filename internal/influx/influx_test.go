package influx

import (
	"bufio"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/bookmarks/pkg/core"
)

var at = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeInflux struct {
	mu    sync.Mutex
	lines []string
}

func (f *fakeInflux) handler(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/ping", "/health":
		w.WriteHeader(http.StatusNoContent)
	case "/api/v2/orgs":
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"orgs":[{"id":"0000000000000001","name":"bookmarks"}]}`)
	case "/api/v2/buckets":
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"buckets":[{"id":"0000000000000002","orgID":"0000000000000001","name":"bookmarks","retentionRules":[]}]}`)
	case "/api/v2/write":
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		for _, l := range strings.Split(strings.TrimSpace(string(body)), "\n") {
			if l != "" {
				f.lines = append(f.lines, l)
			}
		}
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeInflux) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func TestFlushPoint(t *testing.T) {
	p := FlushPoint(core.FlushStats{At: at, Duration: 2 * time.Millisecond, CreatedMarks: 3, SavedFiles: 1})
	line := influxdb2_write.PointToLineProtocol(p, time.Nanosecond)

	assert.True(t, strings.HasPrefix(line, MeasurementFlush+" "))
	assert.Contains(t, line, "created_marks=3i")
	assert.Contains(t, line, "saved_files=1i")
	assert.Contains(t, line, "duration_ms=2")
}

func TestLoadPoint(t *testing.T) {
	ok := influxdb2_write.PointToLineProtocol(LoadPoint("/in/a.geojson", true, nil, at), time.Nanosecond)
	assert.Contains(t, ok, "result=success")
	assert.Contains(t, ok, "transient=true")
	assert.NotContains(t, ok, "error=")

	bad := influxdb2_write.PointToLineProtocol(LoadPoint("/in/b.geojson", false, errors.New("bad file"), at), time.Nanosecond)
	assert.Contains(t, bad, "result=error")
	assert.Contains(t, bad, `error="bad file"`)
}

func TestConnect_WritesToServer(t *testing.T) {
	fake := &fakeInflux{}
	srv := httptest.NewServer(http.HandlerFunc(fake.handler))
	defer srv.Close()

	m := NewManager(zerolog.Nop(), Config{URL: srv.URL, Token: "t", Org: "bookmarks", Bucket: "bookmarks"})
	require.NoError(t, m.Connect(context.Background()))
	assert.True(t, m.IsValid)

	require.NoError(t, m.RecordFlush(core.FlushStats{At: at, CreatedMarks: 1}))
	require.NoError(t, m.RecordLoad("a.geojson", false, nil, at))
	require.NoError(t, m.Close())

	lines := fake.written()
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], MeasurementFlush))
	assert.True(t, strings.HasPrefix(lines[1], MeasurementLoad))
}

func TestConnect_FallsBackToBackupFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	backup := filepath.Join(t.TempDir(), "influx.lp.gz")
	m := NewManager(zerolog.Nop(), Config{URL: srv.URL, Org: "bookmarks", Bucket: "bookmarks", BackupPath: backup})
	require.NoError(t, m.Connect(context.Background()))
	assert.False(t, m.IsValid)

	require.NoError(t, m.RecordFlush(core.FlushStats{At: at, RemovedGroups: 2}))
	require.NoError(t, m.Close())

	f, err := os.Open(backup)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)

	sc := bufio.NewScanner(gz)
	require.True(t, sc.Scan())
	assert.Contains(t, sc.Text(), "removed_groups=2i")
}

func TestConnect_NoBackupPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	m := NewManager(zerolog.Nop(), Config{URL: srv.URL})
	assert.Error(t, m.Connect(context.Background()))
	assert.Error(t, m.WritePoint(FlushPoint(core.FlushStats{At: at})))
}
