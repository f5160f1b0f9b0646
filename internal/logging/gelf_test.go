package logging

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingGELF struct {
	messages []*gelf.Message
}

func (r *recordingGELF) WriteMessage(m *gelf.Message) error {
	r.messages = append(r.messages, m)
	return nil
}

func TestGELFHandler_Fields(t *testing.T) {
	w := &recordingGELF{}
	logger := slog.New(NewGELFHandler(w, slog.LevelDebug)).With("component", "cloud").WithGroup("sync")

	logger.Error("upload failed", "files", 3, "took", 2*time.Second, "error", errors.New("timeout"))

	require.Len(t, w.messages, 1)
	m := w.messages[0]
	assert.Equal(t, "1.1", m.Version)
	assert.Equal(t, "upload failed", m.Short)
	assert.Equal(t, int32(3), m.Level)
	assert.Equal(t, "cloud", m.Extra["_component"])
	assert.Equal(t, int64(3), m.Extra["_sync.files"])
	assert.Equal(t, "2s", m.Extra["_sync.took"])
	assert.Equal(t, "timeout", m.Extra["_sync.error"])
	assert.NotZero(t, m.TimeUnix)
}

func TestGELFHandler_Level(t *testing.T) {
	w := &recordingGELF{}
	logger := slog.New(NewGELFHandler(w, slog.LevelInfo))

	logger.Debug("dropped")
	logger.Info("kept", slog.Group("req", slog.String("id", "x")))

	require.Len(t, w.messages, 1)
	assert.Equal(t, int32(6), w.messages[0].Level)
	assert.Equal(t, "x", w.messages[0].Extra["_req.id"])
}

func TestSyslogLevel(t *testing.T) {
	assert.Equal(t, int32(7), syslogLevel(slog.LevelDebug))
	assert.Equal(t, int32(6), syslogLevel(slog.LevelInfo))
	assert.Equal(t, int32(4), syslogLevel(slog.LevelWarn))
	assert.Equal(t, int32(3), syslogLevel(slog.LevelError))
}
