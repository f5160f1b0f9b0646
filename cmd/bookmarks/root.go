package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/OCAP2/bookmarks/internal/cloud"
	"github.com/OCAP2/bookmarks/internal/config"
	"github.com/OCAP2/bookmarks/internal/logging"
	intOtel "github.com/OCAP2/bookmarks/internal/otel"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
)

const appName = "bookmarks"

// runtime holds what the root command sets up for every subcommand.
type runtime struct {
	configDir string
	dir       string
	logLevel  string

	start   time.Time
	logs    *logging.SlogManager
	logger  *slog.Logger
	logFile *os.File
	otel    *intOtel.Provider
	machine machineRef
}

func newRootCmd() *cobra.Command {
	rt := &runtime{start: time.Now(), logs: logging.NewSlogManager()}

	root := &cobra.Command{
		Use:           appName,
		Short:         "Manage bookmark categories",
		Long:          "bookmarks keeps one file per bookmark category and can import, export, share and back them up.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return rt.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			rt.shutdown()
		},
	}

	root.PersistentFlags().StringVar(&rt.configDir, "config-dir", ".", "directory containing "+config.FileName)
	root.PersistentFlags().StringVar(&rt.dir, "dir", "", "category directory (overrides bookmarks.dir)")
	root.PersistentFlags().StringVar(&rt.logLevel, "log-level", "", "log level (overrides logLevel)")

	root.AddCommand(
		newListCmd(rt),
		newImportCmd(rt),
		newExportCmd(rt),
		newAddBookmarkCmd(rt),
		newAddTrackCmd(rt),
		newDeleteCategoryCmd(rt),
		newShareCmd(rt),
		newBackupCmd(rt),
		newRestoreCmd(rt),
		newStatusCmd(rt),
		newServeCmd(rt),
	)
	return root
}

func (rt *runtime) setup() error {
	configErr := config.Load(rt.configDir)
	if rt.dir != "" {
		viper.Set("bookmarks.dir", rt.dir)
	}
	if rt.logLevel != "" {
		viper.Set("logLevel", rt.logLevel)
	}

	var err error
	rt.logFile, err = logging.OpenLogFile(config.GetString("logsDir"), appName, rt.start)
	if err != nil {
		return err
	}

	otelCfg := config.GetOTelConfig()
	rt.otel, err = intOtel.New(intOtel.Config{
		Enabled:      otelCfg.Enabled,
		ServiceName:  otelCfg.ServiceName,
		BatchTimeout: otelCfg.BatchTimeout,
		LogWriter:    rt.logFile,
		MetricWriter: rt.logFile,
		Endpoint:     otelCfg.Endpoint,
		Insecure:     otelCfg.Insecure,
	})
	if err != nil {
		return err
	}
	if mp := rt.otel.MeterProvider(); mp != nil {
		otel.SetMeterProvider(mp)
	}

	opts := logging.Options{
		File:     rt.logFile,
		Level:    config.GetString("logLevel"),
		Provider: rt.otel.LoggerProvider(),
		Context:  logging.StringAttr("cloud_phase", rt.machine.phase),
	}
	if gl := config.GetGraylogConfig(); gl.Enabled {
		w, err := logging.DialGELF(gl.Address)
		if err != nil {
			return err
		}
		opts.GELF = w
	}
	rt.logs.Setup(opts)
	rt.logger = rt.logs.Logger()

	if configErr != nil {
		rt.logger.Warn("Failed to load config, using defaults!", "error", configErr)
	} else {
		rt.logger.Info("Loaded config", "file", viper.ConfigFileUsed())
	}
	return nil
}

func (rt *runtime) setMachine(m *cloud.Machine) {
	rt.machine.p.Store(m)
}

func (rt *runtime) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if rt.otel != nil {
		if err := rt.otel.Shutdown(ctx); err != nil && rt.logger != nil {
			rt.logger.Warn("OTel shutdown failed", "error", err)
		}
	}
	if rt.logFile != nil {
		_ = rt.logFile.Close()
		rt.logFile = nil
	}
}
