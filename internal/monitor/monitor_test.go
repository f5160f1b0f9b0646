package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OCAP2/bookmarks/internal/bookmarks"
	"github.com/OCAP2/bookmarks/internal/loop"
	"github.com/OCAP2/bookmarks/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// runLoop starts a loop owned by a dedicated goroutine.
func runLoop(t *testing.T) *loop.Loop {
	t.Helper()
	ch := make(chan *loop.Loop)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		lp := loop.New(0)
		ch <- lp
		_ = lp.Run(ctx)
	}()
	lp := <-ch
	t.Cleanup(func() {
		cancel()
		lp.Close()
	})
	return lp
}

func sampleStatus() bookmarks.Status {
	return bookmarks.Status{
		Categories: []bookmarks.CategoryStatus{{ID: 16, Name: "Trip", Visible: true, Bookmarks: 2}},
		Marks:      4,
		Lanes:      map[string]int{"load_file": 0},
		CloudPhase: "idle",
	}
}

func newService(t *testing.T, deps Dependencies) *Service {
	t.Helper()
	if deps.Poster == nil {
		deps.Poster = runLoop(t)
	}
	if deps.Status == nil {
		deps.Status = sampleStatus
	}
	deps.Now = func() time.Time { return fixedNow }
	return NewService(deps)
}

func TestSnapshot(t *testing.T) {
	s := newService(t, Dependencies{
		Flushes: func(limit int) ([]model.FlushRecord, error) {
			assert.Equal(t, defaultFlushLimit, limit)
			return []model.FlushRecord{{ID: 1, SavedFiles: 1}}, nil
		},
	})

	r, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fixedNow, r.Time)
	assert.Equal(t, 4, r.Marks)
	require.Len(t, r.Categories, 1)
	assert.Equal(t, "Trip", r.Categories[0].Name)
	require.Len(t, r.RecentFlushes, 1)
}

func TestSnapshot_ClosedLoop(t *testing.T) {
	lp := runLoop(t)
	lp.Close()
	s := newService(t, Dependencies{Poster: lp})

	_, err := s.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestHandler(t *testing.T) {
	s := newService(t, Dependencies{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var doc map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.Equal(t, "idle", doc["cloudPhase"])
	assert.Equal(t, float64(4), doc["marks"])
	assert.NotContains(t, doc, "recentFlushes")

	post, err := http.Post(srv.URL, "application/json", nil)
	require.NoError(t, err)
	post.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, post.StatusCode)
}

func TestStart_WritesStatusFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	s := newService(t, Dependencies{StatusFile: path, Interval: 10 * time.Millisecond})

	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	s.Stop()
	assert.False(t, s.IsRunning())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var r Report
	require.NoError(t, json.Unmarshal(data, &r))
	assert.Equal(t, 4, r.Marks)
}

func TestStart_NoFileIsNoop(t *testing.T) {
	s := newService(t, Dependencies{})
	require.NoError(t, s.Start())
	assert.False(t, s.IsRunning())
	s.Stop()
}
