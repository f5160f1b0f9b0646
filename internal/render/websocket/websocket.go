// Package websocket streams renderer diffs to a remote map view.
package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/OCAP2/bookmarks/internal/render"
	"github.com/OCAP2/bookmarks/pkg/streaming"
)

// Config holds WebSocket renderer configuration.
type Config struct {
	URL     string
	Secret  string
	Version string
}

// Renderer implements render.Renderer over a WebSocket connection. The first
// diff after a hello or a resync request is sent as a snapshot.
type Renderer struct {
	conn *connection
	cfg  Config
	seq  atomic.Uint64

	mu       sync.Mutex
	onResync func()
}

var _ render.Renderer = (*Renderer)(nil)

// New creates a renderer. Call Init to connect.
func New(cfg Config, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Renderer{
		conn: newConnection(logger),
		cfg:  cfg,
	}
	r.conn.onResync = r.resync
	return r
}

// OnResync registers a function called when the remote view needs the full
// model again. It runs on a connection goroutine.
func (r *Renderer) OnResync(fn func()) {
	r.mu.Lock()
	r.onResync = fn
	r.mu.Unlock()
}

func (r *Renderer) resync() {
	r.mu.Lock()
	fn := r.onResync
	r.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Init connects and performs the hello handshake.
func (r *Renderer) Init() error {
	if err := r.conn.dial(r.cfg.URL, r.cfg.Secret); err != nil {
		return err
	}

	data, err := r.marshalEnvelope(streaming.TypeHello, streaming.HelloPayload{
		Client:  "bookmarks",
		Version: r.cfg.Version,
	})
	if err != nil {
		return err
	}

	r.conn.setHello(data)

	return r.conn.sendAndWait(data, streaming.TypeHello, ackTimeout)
}

// Close says goodbye and disconnects.
func (r *Renderer) Close() error {
	data, err := r.marshalEnvelope(streaming.TypeGoodbye, nil)
	if err == nil {
		err = r.conn.sendAndWait(data, streaming.TypeGoodbye, ackTimeout)
	}
	if cerr := r.conn.close(); err == nil {
		err = cerr
	}
	return err
}

// UpdateMarks serializes the diff and queues it. A snapshot is recognised by
// every known group being reported as created.
func (r *Renderer) UpdateMarks(diff *render.Diff) {
	msgType := streaming.TypeDiff
	if isSnapshot(diff) {
		msgType = streaming.TypeSnapshot
	}
	data, err := r.marshalEnvelope(msgType, diff)
	if err != nil {
		r.conn.logger.Error("Failed to encode diff", "error", err)
		return
	}
	if !r.conn.send(data) {
		// The remote view missed a diff and must be rebuilt.
		go r.resync()
	}
}

func isSnapshot(diff *render.Diff) bool {
	groups := diff.GroupIDs()
	return len(groups) > 0 && len(diff.CreatedGroups()) == len(groups)
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func (r *Renderer) marshalEnvelope(msgType string, payload any) ([]byte, error) {
	env := streaming.Envelope{Type: msgType, Seq: r.seq.Add(1)}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
		}
		env.Payload = raw
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}
