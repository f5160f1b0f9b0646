package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) add(level, msg string, kv []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf("%s %s %v", level, msg, kv))
}

func (l *recordingLogger) Debug(msg string, kv ...any) { l.add("DEBUG", msg, kv) }
func (l *recordingLogger) Info(msg string, kv ...any)  { l.add("INFO", msg, kv) }
func (l *recordingLogger) Error(msg string, kv ...any) { l.add("ERROR", msg, kv) }

func (l *recordingLogger) count(prefix string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, line := range l.lines {
		if strings.HasPrefix(line, prefix) {
			n++
		}
	}
	return n
}

func newDispatcher(t *testing.T) (*Dispatcher, *recordingLogger) {
	t.Helper()
	logger := &recordingLogger{}
	d, err := New(logger)
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d, logger
}

func TestDispatch_SyncHandlerRunsOnCaller(t *testing.T) {
	d, _ := newDispatcher(t)

	var got Event
	d.Register(CmdShare, func(e Event) (any, error) {
		got = e
		return "archive.zip", nil
	})

	res, err := d.Dispatch(Event{Command: CmdShare, Payload: "Trip"})
	require.NoError(t, err)
	assert.Equal(t, "archive.zip", res)
	assert.Equal(t, "Trip", got.Payload)
	assert.False(t, got.Timestamp.IsZero(), "timestamp is filled in")
	assert.True(t, d.HasHandler(CmdShare))
	assert.False(t, d.HasHandler(CmdCloudSync))
}

func TestDispatch_UnknownCommand(t *testing.T) {
	d, _ := newDispatcher(t)
	_, err := d.Dispatch(Event{Command: CmdLoadFile})
	assert.ErrorContains(t, err, "unknown command")
}

func TestLane_SerialAndOrdered(t *testing.T) {
	d, _ := newDispatcher(t)

	var mu sync.Mutex
	var order []int
	var running, peak atomic.Int32
	d.Register(CmdLoadFile, func(e Event) (any, error) {
		if n := running.Add(1); n > peak.Load() {
			peak.Store(n)
		}
		time.Sleep(time.Millisecond)
		mu.Lock()
		order = append(order, e.Payload.(int))
		mu.Unlock()
		running.Add(-1)
		return nil, nil
	}, Buffered(16), Blocking())

	for i := 0; i < 10; i++ {
		res, err := d.Dispatch(Event{Command: CmdLoadFile, Payload: i})
		require.NoError(t, err)
		assert.Equal(t, Queued, res)
	}
	d.Close()

	assert.EqualValues(t, 1, peak.Load())
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestLane_NonBlockingRejectsWhenFull(t *testing.T) {
	d, _ := newDispatcher(t)

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	d.Register(CmdCloudSync, func(e Event) (any, error) {
		started <- struct{}{}
		<-release
		return nil, nil
	}, Buffered(1))
	defer close(release)

	_, err := d.Dispatch(Event{Command: CmdCloudSync})
	require.NoError(t, err)
	<-started
	_, err = d.Dispatch(Event{Command: CmdCloudSync})
	require.NoError(t, err, "one waiting slot")

	_, err = d.Dispatch(Event{Command: CmdCloudSync})
	assert.ErrorIs(t, err, ErrLaneFull)
	assert.Equal(t, 1, d.QueueLengths()[CmdCloudSync])
}

func TestLane_BlockingWaitsForRoom(t *testing.T) {
	d, _ := newDispatcher(t)

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	d.Register(CmdRemoveFile, func(e Event) (any, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil, nil
	}, Buffered(1), Blocking())

	_, _ = d.Dispatch(Event{Command: CmdRemoveFile})
	<-started
	_, _ = d.Dispatch(Event{Command: CmdRemoveFile})

	done := make(chan struct{})
	go func() {
		_, _ = d.Dispatch(Event{Command: CmdRemoveFile})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("dispatch should block while the lane is full")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatch never got room")
	}
}

func TestLane_SurvivesPanic(t *testing.T) {
	d, logger := newDispatcher(t)

	var handled atomic.Int32
	d.Register(CmdScanDir, func(e Event) (any, error) {
		if e.Payload == "boom" {
			panic("scan exploded")
		}
		handled.Add(1)
		return nil, nil
	}, Buffered(4), Blocking())

	_, _ = d.Dispatch(Event{Command: CmdScanDir, Payload: "boom"})
	_, _ = d.Dispatch(Event{Command: CmdScanDir, Payload: "ok"})
	d.Close()

	assert.EqualValues(t, 1, handled.Load())
	assert.Equal(t, 1, logger.count("ERROR lane handler panicked"))
}

func TestLogged(t *testing.T) {
	d, logger := newDispatcher(t)

	d.Register(CmdShare, func(e Event) (any, error) { return "ok", nil }, Logged())
	d.Register(CmdCloudRestore, func(e Event) (any, error) { return nil, errors.New("offline") }, Logged())

	_, _ = d.Dispatch(Event{Command: CmdShare})
	_, err := d.Dispatch(Event{Command: CmdCloudRestore})
	require.EqualError(t, err, "offline")

	assert.Equal(t, 3, logger.count("DEBUG"), "start and end of the success, start of the failure")
	assert.Equal(t, 1, logger.count("ERROR event failed"))
}

func TestClose_DrainsAndRejects(t *testing.T) {
	d, _ := newDispatcher(t)

	var handled atomic.Int32
	d.Register(CmdRemoveFile, func(e Event) (any, error) {
		time.Sleep(time.Millisecond)
		handled.Add(1)
		return nil, nil
	}, Buffered(8), Blocking())

	for i := 0; i < 5; i++ {
		_, _ = d.Dispatch(Event{Command: CmdRemoveFile})
	}
	d.Close()
	assert.EqualValues(t, 5, handled.Load())

	_, err := d.Dispatch(Event{Command: CmdRemoveFile})
	assert.ErrorIs(t, err, ErrClosed)
	d.Close()
}

func TestMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))

	d, _ := newDispatcher(t)
	release := make(chan struct{})
	d.Register(CmdCloudSync, func(e Event) (any, error) {
		<-release
		return nil, nil
	}, Buffered(1))

	_, _ = d.Dispatch(Event{Command: CmdCloudSync})
	require.Eventually(t, func() bool { return d.QueueLengths()[CmdCloudSync] == 0 }, time.Second, time.Millisecond)
	_, _ = d.Dispatch(Event{Command: CmdCloudSync})
	_, err := d.Dispatch(Event{Command: CmdCloudSync})
	require.ErrorIs(t, err, ErrLaneFull)

	close(release)
	d.Close()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if s, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range s.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	assert.EqualValues(t, 2, sums["dispatcher.events.processed"])
	assert.EqualValues(t, 1, sums["dispatcher.events.dropped"])
}
