// Package monitor publishes a JSON status report of the bookmark manager,
// both as a periodically rewritten file and over HTTP.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/OCAP2/bookmarks/internal/bookmarks"
	"github.com/OCAP2/bookmarks/internal/loop"
	"github.com/OCAP2/bookmarks/internal/model"
)

// ErrUnavailable is returned when the owner loop does not answer.
var ErrUnavailable = errors.New("monitor: owner loop unavailable")

const (
	defaultInterval   = time.Second
	defaultFlushLimit = 10
)

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Poster loop.Poster
	// Status runs on the owner goroutine.
	Status func() bookmarks.Status
	// Flushes is optional and must be safe from any goroutine.
	Flushes    func(limit int) ([]model.FlushRecord, error)
	StatusFile string
	Interval   time.Duration
	Logger     *slog.Logger
	Now        func() time.Time
}

// Report is the published status document.
type Report struct {
	Time time.Time `json:"time"`
	bookmarks.Status
	RecentFlushes []model.FlushRecord `json:"recentFlushes,omitempty"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	stopped   chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = defaultInterval
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Snapshot collects a report. The manager part is read on the owner loop.
func (s *Service) Snapshot(ctx context.Context) (Report, error) {
	ch := make(chan bookmarks.Status, 1)
	if !s.deps.Poster.Post(func() { ch <- s.deps.Status() }) {
		return Report{}, ErrUnavailable
	}

	var r Report
	select {
	case st := <-ch:
		r.Status = st
	case <-ctx.Done():
		return Report{}, ctx.Err()
	}
	r.Time = s.deps.Now()

	if s.deps.Flushes != nil {
		recs, err := s.deps.Flushes(defaultFlushLimit)
		if err != nil {
			s.deps.Logger.Warn("Failed to read flush history", "error", err)
		} else {
			r.RecentFlushes = recs
		}
	}
	return r, nil
}

// Handler serves the report as JSON.
func (s *Service) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
		defer cancel()

		r, err := s.Snapshot(ctx)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			s.deps.Logger.Error("Failed to encode status", "error", err)
		}
	})
}

// WriteStatusFile replaces the status file with the current report.
func (s *Service) WriteStatusFile(ctx context.Context) error {
	r, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.deps.StatusFile + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.deps.StatusFile)
}

// Start starts the status file goroutine. It is a no-op without a status file.
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning || s.deps.StatusFile == "" {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.stopped = make(chan struct{})
	stop, stopped := s.stopChan, s.stopped
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
			close(stopped)
		}()

		logger := s.deps.Logger
		logger.Debug("Starting status monitor", "file", s.deps.StatusFile)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), s.deps.Interval)
				err := s.WriteStatusFile(ctx)
				cancel()
				if errors.Is(err, ErrUnavailable) {
					return
				}
				if err != nil {
					logger.Error("Error writing status file", "error", err)
				}
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for its goroutine.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	stopped := s.stopped
	s.isRunning = false
	s.mu.Unlock()
	<-stopped
}
