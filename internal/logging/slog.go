package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// stdout is swapped by tests.
var stdout io.Writer = os.Stdout

// Options configures the handlers built by Setup.
type Options struct {
	// File receives text logs. When nil, text logs go to stdout.
	File  io.Writer
	Level string
	// Provider enables the otelslog bridge when non-nil.
	Provider *sdklog.LoggerProvider
	// GELF enables the Graylog handler when non-nil.
	GELF MessageWriter
	// Context adds dynamic attributes to every record.
	Context ContextProvider
}

// SlogManager owns the process logger and the sinks behind it.
type SlogManager struct {
	logger   *slog.Logger
	level    slog.Level
	out      io.Writer
	provider *sdklog.LoggerProvider
}

func NewSlogManager() *SlogManager {
	return &SlogManager{out: stdout}
}

// parseLevel accepts slog level names in any case; unknown names mean info.
func parseLevel(name string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func utcTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.TimeKey {
		return a
	}
	if t, ok := a.Value.Any().(time.Time); ok {
		a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
	}
	return a
}

// Setup builds the logger from opts. Calling it again replaces the logger.
func (m *SlogManager) Setup(opts Options) {
	m.level = parseLevel(opts.Level)
	m.provider = opts.Provider
	m.out = opts.File
	if m.out == nil {
		m.out = stdout
	}

	sinks := []slog.Handler{
		slog.NewTextHandler(m.out, &slog.HandlerOptions{Level: m.level, ReplaceAttr: utcTime}),
	}
	if opts.Provider != nil {
		sinks = append(sinks, otelslog.NewHandler("bookmarks", otelslog.WithLoggerProvider(opts.Provider)))
	}
	if opts.GELF != nil {
		sinks = append(sinks, NewGELFHandler(opts.GELF, m.level))
	}

	var h slog.Handler = NewMultiHandler(sinks...)
	if opts.Context != nil {
		h = NewContextHandler(h, opts.Context)
	}
	m.logger = slog.New(h)
	m.logger.Info("logging ready", "level", m.level.String())
}

// Logger returns slog.Default until Setup runs.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

func (m *SlogManager) Component(name string) *slog.Logger {
	return m.Logger().With("component", name)
}

// Zerolog returns a console-format zerolog logger on the text destination,
// for libraries that take one.
func (m *SlogManager) Zerolog(component string) zerolog.Logger {
	w := zerolog.ConsoleWriter{Out: m.out, TimeFormat: time.RFC3339, NoColor: true}
	return zerolog.New(w).
		Level(toZerolog(m.level)).
		With().Timestamp().Str("component", component).
		Logger()
}

func toZerolog(lvl slog.Level) zerolog.Level {
	switch {
	case lvl < slog.LevelInfo:
		return zerolog.DebugLevel
	case lvl < slog.LevelWarn:
		return zerolog.InfoLevel
	case lvl < slog.LevelError:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

// Flush pushes buffered OTel records.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.provider == nil {
		return nil
	}
	return m.provider.ForceFlush(ctx)
}
