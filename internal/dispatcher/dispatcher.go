// Package dispatcher runs background work on named lanes. A buffered lane
// owns one goroutine, so work dispatched to it executes serially in
// dispatch order.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrClosed is returned by Dispatch after Close.
var ErrClosed = errors.New("dispatcher: closed")

// ErrLaneFull is returned by a non-blocking lane with no room left.
var ErrLaneFull = errors.New("dispatcher: lane full")

// Queued is the result of a dispatch accepted by a buffered lane.
const Queued = "queued"

// Lane commands shared by the bookmark components.
const (
	CmdLoadFile     = ":LOAD:FILE:"
	CmdScanDir      = ":SCAN:DIR:"
	CmdShare        = ":SHARE:CATEGORY:"
	CmdCloudSync    = ":CLOUD:SYNC:"
	CmdCloudRestore = ":CLOUD:RESTORE:"
	CmdRemoveFile   = ":REMOVE:FILE:"
)

// Event is a unit of background work.
type Event struct {
	Command   string
	Payload   any
	Timestamp time.Time
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered makes the handler async with a queue of the given size.
func Buffered(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// Blocking makes a buffered handler block when the queue is full instead of dropping.
func Blocking() Option {
	return func(c *config) {
		c.blocking = true
	}
}

// Logged adds debug logging around each execution of the handler.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// Dispatcher routes events to handlers. Unbuffered handlers run on the
// caller's goroutine; buffered ones run on their lane.
type Dispatcher struct {
	logger Logger

	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	lanes    map[string]*lane
	closed   bool
	wg       sync.WaitGroup
}

// lane is one buffered command with its worker goroutine.
type lane struct {
	command  string
	events   chan Event
	blocking bool
	attr     metric.MeasurementOption
}

// New creates a dispatcher. Metrics use the global OTel meter, which is a
// no-op until a provider is installed.
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		lanes:    make(map[string]*lane),
		logger:   logger,
	}
	if err := d.initMetrics(meter()); err != nil {
		return nil, err
	}
	return d, nil
}

// Register binds a handler to a command. Registering a command twice
// replaces the handler; an existing lane keeps running until Close.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logged {
		h = d.withLogging(command, h)
	}
	if cfg.bufferSize > 0 {
		h = d.startLane(command, cfg, h)
	}
	d.mu.Lock()
	d.handlers[command] = h
	d.mu.Unlock()
}

// Dispatch hands an event to its handler. Buffered lanes return Queued.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	d.mu.RLock()
	h, ok := d.handlers[e.Command]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown command: %s", e.Command)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return h(e)
}

// HasHandler reports whether command is registered.
func (d *Dispatcher) HasHandler(command string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[command]
	return ok
}

// QueueLengths returns the number of waiting events per lane.
func (d *Dispatcher) QueueLengths() map[string]int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]int, len(d.lanes))
	for cmd, l := range d.lanes {
		out[cmd] = len(l.events)
	}
	return out
}

// Close stops accepting events and waits until every lane is drained.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, l := range d.lanes {
		close(l.events)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) startLane(command string, cfg config, h HandlerFunc) HandlerFunc {
	l := &lane{
		command:  command,
		events:   make(chan Event, cfg.bufferSize),
		blocking: cfg.blocking,
		attr:     metric.WithAttributes(attribute.String("command", command)),
	}
	d.mu.Lock()
	d.lanes[command] = l
	d.mu.Unlock()

	d.wg.Add(1)
	go d.runLane(l, h)
	return func(e Event) (any, error) { return d.enqueue(l, e) }
}

func (d *Dispatcher) runLane(l *lane, h HandlerFunc) {
	defer d.wg.Done()
	for e := range l.events {
		d.handleSafely(l.command, h, e)
		d.processed.Add(context.Background(), 1, l.attr)
	}
}

// handleSafely keeps a lane alive when a handler panics.
func (d *Dispatcher) handleSafely(command string, h HandlerFunc, e Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("lane handler panicked", "command", command, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	_, _ = h(e)
}

// enqueue holds the read lock while sending so Close never closes a
// channel with a send in progress.
func (d *Dispatcher) enqueue(l *lane, e Event) (any, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrClosed
	}
	if l.blocking {
		l.events <- e
		return Queued, nil
	}
	select {
	case l.events <- e:
		return Queued, nil
	default:
		d.dropped.Add(context.Background(), 1, l.attr)
		return nil, fmt.Errorf("%w: %s", ErrLaneFull, l.command)
	}
}

func (d *Dispatcher) withLogging(command string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("handling event", "command", command, "queuedFor", start.Sub(e.Timestamp))
		result, err := h(e)
		if err != nil {
			d.logger.Error("event failed", "command", command, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "command", command, "duration", time.Since(start))
		}
		return result, err
	}
}
