package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/OCAP2/bookmarks/internal/bookmarks"
	"github.com/OCAP2/bookmarks/internal/config"
	"github.com/OCAP2/bookmarks/internal/loop"
	"github.com/OCAP2/bookmarks/internal/monitor"
	"github.com/OCAP2/bookmarks/internal/render/websocket"
	"github.com/OCAP2/bookmarks/internal/watch"
	"github.com/spf13/cobra"
)

// Version is reported to the streaming renderer.
var Version = "dev"

type serveOptions struct {
	listen     string
	statusFile string
	interval   time.Duration
}

func newServeCmd(rt *runtime) *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the manager with inbox watching, periodic backup and streaming",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), rt, opts)
		},
	}
	cmd.Flags().StringVar(&opts.listen, "listen", "", "address for the HTTP status endpoint, e.g. :8080")
	cmd.Flags().StringVar(&opts.statusFile, "status-file", "", "write the status document to this file periodically")
	cmd.Flags().DurationVar(&opts.interval, "status-interval", 10*time.Second, "status file refresh interval")
	return cmd
}

func serve(ctx context.Context, rt *runtime, opts serveOptions) error {
	a, err := newApp(ctx, rt, true)
	if err != nil {
		return err
	}
	defer a.close()
	a.connectInflux(ctx)

	log := rt.logger
	a.mgr.SetCallbacks(bookmarks.Callbacks{
		OnFlush: a.recordFlush,
		OnFileSuccess: func(path string, transient bool) {
			a.recordLoad(path, transient, nil)
		},
		OnFileError: func(path string, err error) {
			log.Warn("Failed to import file", "path", path, "error", err)
			a.recordLoad(path, false, err)
		},
		OnLoadFinished: func() {
			log.Info("Loading finished", "categories", len(a.mgr.CategoryIDs()))
		},
	})
	a.mgr.LoadBookmarks()

	if rc := config.GetRenderConfig(); rc.URL != "" {
		r := websocket.New(websocket.Config{URL: rc.URL, Secret: rc.Secret, Version: Version}, rt.logs.Component("render"))
		if err := r.Init(); err != nil {
			log.Warn("Streaming renderer unavailable", "url", rc.URL, "error", err)
		} else {
			defer func() { _ = r.Close() }()
			r.OnResync(func() {
				a.loop.Post(func() { a.mgr.SetRenderer(r) })
			})
			a.mgr.SetRenderer(r)
		}
	}

	if inbox := config.GetBookmarksConfig().InboxDir; inbox != "" {
		w, err := watch.New(watch.Options{
			Dir:    inbox,
			Poster: a.loop,
			Import: func(path string) { a.mgr.LoadBookmark(path, true) },
			Logger: rt.logs.Component("watch"),
		})
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		defer w.Stop()
	}

	mon := monitor.NewService(monitor.Dependencies{
		Poster:     a.loop,
		Status:     a.mgr.Status,
		Flushes:    a.state.RecentFlushes,
		StatusFile: opts.statusFile,
		Interval:   opts.interval,
		Logger:     rt.logs.Component("monitor"),
	})
	if err := mon.Start(); err != nil {
		return err
	}
	defer mon.Stop()

	if opts.listen != "" {
		srv, err := listenStatus(opts.listen, mon)
		if err != nil {
			return err
		}
		log.Info("Status endpoint listening", "addr", srv.Addr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	a.mgr.SetCloudEnabled(config.GetCloudConfig().Enabled)

	log.Info("Serving", "dir", a.mgr.Dir())
	err = a.loop.Run(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, loop.ErrClosed) {
		log.Info("Shutting down")
		return nil
	}
	return err
}

func listenStatus(addr string, mon *monitor.Service) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/status", mon.Handler())
	srv := &http.Server{Addr: ln.Addr().String(), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	return srv, nil
}
