package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/OCAP2/bookmarks/internal/api"
	"github.com/OCAP2/bookmarks/internal/bookmarks"
	"github.com/OCAP2/bookmarks/internal/cloud"
	"github.com/OCAP2/bookmarks/internal/cloud/badgerstore"
	"github.com/OCAP2/bookmarks/internal/cloud/s3store"
	"github.com/OCAP2/bookmarks/internal/config"
	"github.com/OCAP2/bookmarks/internal/database"
	"github.com/OCAP2/bookmarks/internal/dispatcher"
	"github.com/OCAP2/bookmarks/internal/influx"
	"github.com/OCAP2/bookmarks/internal/logging"
	"github.com/OCAP2/bookmarks/internal/loop"
	"github.com/OCAP2/bookmarks/internal/monitor"
	gormstorage "github.com/OCAP2/bookmarks/internal/storage/gorm"
	"github.com/OCAP2/bookmarks/pkg/core"
)

const loopSize = 256

// app is one manager with its collaborators. Everything except the closers
// is used from the goroutine that called newApp.
type app struct {
	rt     *runtime
	loop   *loop.Loop
	disp   *dispatcher.Dispatcher
	db     *database.Manager
	state  *gormstorage.Store
	mgr    *bookmarks.Manager
	influx *influx.Manager

	closers []io.Closer
}

// newApp builds the manager from the loaded config. withCloud skips the
// backup store when false, which keeps the badger directory unlocked for
// commands that never touch it.
func newApp(ctx context.Context, rt *runtime, withCloud bool) (*app, error) {
	a := &app{rt: rt, loop: loop.New(loopSize)}

	var err error
	a.disp, err = dispatcher.New(logging.NewDispatcherLogger(rt.logs.Zerolog("dispatcher")))
	if err != nil {
		return nil, fmt.Errorf("create dispatcher: %w", err)
	}

	stateCfg := config.GetStateConfig()
	a.db = database.NewManager(rt.logs.Zerolog("database"))
	err = a.db.Connect(database.Config{
		Driver:   stateCfg.Driver,
		Path:     stateCfg.Path,
		Host:     stateCfg.DB.Host,
		Port:     stateCfg.DB.Port,
		Username: stateCfg.DB.Username,
		Password: stateCfg.DB.Password,
		Database: stateCfg.DB.Database,
	})
	if err == nil {
		err = a.db.Setup()
	}
	if err != nil {
		a.close()
		return nil, fmt.Errorf("state database: %w", err)
	}
	a.state = gormstorage.New(a.db.DB)

	cloudCfg := config.GetCloudConfig()
	var cloudStore cloud.Store
	if withCloud {
		cloudStore, err = a.openCloudStore(ctx, cloudCfg)
		if err != nil {
			a.close()
			return nil, err
		}
	}

	bmCfg := config.GetBookmarksConfig()
	a.mgr = bookmarks.New(bookmarks.Dependencies{
		Dir:        bmCfg.Dir,
		Binary:     bmCfg.Binary,
		ShareDir:   bmCfg.ShareDir,
		Poster:     a.loop,
		Checker:    a.loop.Checker(),
		Dispatcher: a.disp,
		Logger:     rt.logger,
		State:      a.state,
		CloudStore: cloudStore,
		CloudConfig: cloud.Config{
			Interval:           cloudCfg.Interval,
			MinRequestInterval: cloudCfg.MinRequestInterval,
			StagingDir:         cloudCfg.StagingDir,
			Timeout:            cloudCfg.Timeout,
		},
	})
	rt.setMachine(a.mgr.Cloud())

	a.mgr.SetCallbacks(bookmarks.Callbacks{
		OnFlush: a.recordFlush,
	})
	return a, nil
}

func (a *app) openCloudStore(ctx context.Context, cfg config.CloudConfig) (cloud.Store, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "badger":
		st, err := badgerstore.Open(badgerstore.Config{
			Path:       cfg.BadgerPath,
			SyncWrites: true,
			Logger:     a.rt.logs.Component("badger"),
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, st)
		return st, nil
	case "s3":
		return s3store.New(ctx, s3store.Config{
			Endpoint:        cfg.S3.Endpoint,
			Region:          cfg.S3.Region,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Bucket:          cfg.S3.Bucket,
			Prefix:          cfg.S3.Prefix,
			UsePathStyle:    cfg.S3.UsePathStyle,
		})
	case "api":
		if cfg.API.ServerURL == "" {
			return nil, fmt.Errorf("cloud.api.serverUrl is required")
		}
		return api.New(cfg.API.ServerURL, cfg.API.APIKey), nil
	default:
		return nil, fmt.Errorf("unknown cloud type %q", cfg.Type)
	}
}

// connectInflux enables the metrics sink when configured. Failures are
// logged and the app keeps running without it.
func (a *app) connectInflux(ctx context.Context) {
	cfg := config.GetInfluxConfig()
	if !cfg.Enabled {
		return
	}
	m := influx.NewManager(a.rt.logs.Zerolog("influx"), influx.Config{
		URL:        cfg.URL(),
		Token:      cfg.Token,
		Org:        cfg.Org,
		Bucket:     cfg.Bucket,
		BackupPath: filepath.Join(config.GetString("logsDir"), "influx-backup.lp.gz"),
	})
	if err := m.Connect(ctx); err != nil {
		a.rt.logger.Warn("InfluxDB unavailable, metrics disabled", "error", err)
		return
	}
	a.influx = m
}

func (a *app) recordFlush(stats core.FlushStats) {
	if err := a.state.RecordFlush(stats); err != nil {
		a.rt.logger.Warn("Failed to record flush", "error", err)
	}
	if a.influx != nil {
		if err := a.influx.RecordFlush(stats); err != nil {
			a.rt.logger.Debug("Failed to write flush point", "error", err)
		}
	}
}

// loadAll reads the category directory and waits until every file is
// loaded.
func (a *app) loadAll(ctx context.Context) error {
	a.mgr.LoadBookmarks()
	return a.wait(ctx, func() bool { return !a.mgr.IsLoading() })
}

// wait runs posted callbacks until cond holds.
func (a *app) wait(ctx context.Context, cond func() bool) error {
	return a.loop.RunUntil(ctx, cond)
}

// targetCategory finds a category by name or creates it. An empty name
// selects the last edited category.
func (a *app) targetCategory(name string) (core.GroupID, string) {
	if name == "" {
		id := a.mgr.LastEditedBMCategory()
		c, _ := a.mgr.Category(id)
		return id, c.Name()
	}
	if id, ok := a.mgr.CategoryByName(name); ok {
		return id, name
	}
	return a.mgr.CreateBookmarkCategory(name, true), name
}

// setFileCallbacks reports load results, keeping the flush recorder.
func (a *app) setFileCallbacks(success func(path string, transient bool), failure func(path string, err error)) {
	a.mgr.SetCallbacks(bookmarks.Callbacks{
		OnFlush:       a.recordFlush,
		OnFileSuccess: success,
		OnFileError:   failure,
	})
}

// report builds the status document for the status command and serve.
func (a *app) report(flushes int) (monitor.Report, error) {
	r := monitor.Report{Time: time.Now(), Status: a.mgr.Status()}
	if flushes > 0 {
		recent, err := a.state.RecentFlushes(flushes)
		if err != nil {
			return r, err
		}
		r.RecentFlushes = recent
	}
	return r, nil
}

// close tears everything down. The dispatcher is closed after the loop so
// queued file removals still run.
func (a *app) close() {
	if a.mgr != nil {
		a.mgr.Teardown()
		a.rt.setMachine(nil)
	}
	a.loop.Close()
	if a.disp != nil {
		a.disp.Close()
	}
	if a.influx != nil {
		if err := a.influx.Close(); err != nil {
			a.rt.logger.Warn("Failed to close InfluxDB", "error", err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.rt.logger.Warn("Failed to close store", "error", err)
		}
	}
	a.closers = nil
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.rt.logger.Warn("Failed to close state database", "error", err)
		}
	}
}

// machineRef lets the log context read the cloud phase from any goroutine.
type machineRef struct {
	p atomic.Pointer[cloud.Machine]
}

func (r *machineRef) phase() string {
	if m := r.p.Load(); m != nil {
		return m.ObservedPhase().String()
	}
	return "none"
}

func (a *app) recordLoad(path string, transient bool, err error) {
	if a.influx == nil {
		return
	}
	if werr := a.influx.RecordLoad(path, transient, err, time.Now()); werr != nil {
		a.rt.logger.Debug("Failed to write load point", "error", werr)
	}
}
