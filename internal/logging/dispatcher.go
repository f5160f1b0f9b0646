package logging

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// badKey labels a value that arrived without a key, matching slog.
const badKey = "!BADKEY"

// DispatcherLogger writes dispatcher lane events through zerolog.
type DispatcherLogger struct {
	logger zerolog.Logger
}

func NewDispatcherLogger(logger zerolog.Logger) *DispatcherLogger {
	return &DispatcherLogger{logger: logger}
}

func (l *DispatcherLogger) Debug(msg string, kv ...any) { l.emit(zerolog.DebugLevel, msg, kv) }
func (l *DispatcherLogger) Info(msg string, kv ...any)  { l.emit(zerolog.InfoLevel, msg, kv) }
func (l *DispatcherLogger) Error(msg string, kv ...any) { l.emit(zerolog.ErrorLevel, msg, kv) }

func (l *DispatcherLogger) emit(level zerolog.Level, msg string, kv []any) {
	ev := l.logger.WithLevel(level)
	if !ev.Enabled() {
		return
	}
	for len(kv) > 0 {
		key, ok := kv[0].(string)
		if !ok || len(kv) == 1 {
			ev = field(ev, badKey, kv[0])
			kv = kv[1:]
			continue
		}
		ev = field(ev, key, kv[1])
		kv = kv[2:]
	}
	ev.Msg(msg)
}

func field(ev *zerolog.Event, key string, v any) *zerolog.Event {
	switch v := v.(type) {
	case string:
		return ev.Str(key, v)
	case int:
		return ev.Int(key, v)
	case int64:
		return ev.Int64(key, v)
	case bool:
		return ev.Bool(key, v)
	case time.Duration:
		return ev.Str(key, v.String())
	case error:
		return ev.AnErr(key, v)
	case fmt.Stringer:
		return ev.Stringer(key, v)
	default:
		return ev.Interface(key, v)
	}
}
