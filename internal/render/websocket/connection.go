package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/OCAP2/bookmarks/pkg/streaming"
	ws "github.com/gorilla/websocket"
)

const (
	outboxSize   = 1024
	maxRedials   = 10
	firstBackoff = 500 * time.Millisecond
	maxBackoff   = 30 * time.Second
	writeWait    = 10 * time.Second
	ackTimeout   = 10 * time.Second
)

// connection keeps one socket to the renderer service. A supervisor
// goroutine owns the socket: it writes queued frames and redials when the
// socket breaks. Each socket has a reader that hands acks to waiters.
type connection struct {
	logger *slog.Logger
	target string

	outbox    chan []byte
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	mu      sync.Mutex
	sock    *ws.Conn
	hello   []byte
	waiters map[string][]chan struct{}

	// runs on the supervisor after every successful redial
	onResync func()
}

func newConnection(logger *slog.Logger) *connection {
	return &connection{
		logger:  logger,
		outbox:  make(chan []byte, outboxSize),
		done:    make(chan struct{}),
		waiters: make(map[string][]chan struct{}),
	}
}

// targetURL adds the shared secret as a query parameter.
func targetURL(rawURL, secret string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("secret", secret)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// dial opens the first socket and starts the supervisor.
func (c *connection) dial(rawURL, secret string) error {
	target, err := targetURL(rawURL, secret)
	if err != nil {
		return err
	}
	c.target = target
	sock, err := c.open()
	if err != nil {
		return err
	}
	c.wg.Add(1)
	go c.supervise(sock)
	return nil
}

func (c *connection) open() (*ws.Conn, error) {
	sock, _, err := ws.DefaultDialer.Dial(c.target, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	c.mu.Lock()
	c.sock = sock
	c.mu.Unlock()
	return sock, nil
}

func (c *connection) setHello(data []byte) {
	c.mu.Lock()
	c.hello = data
	c.mu.Unlock()
}

func (c *connection) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *connection) supervise(sock *ws.Conn) {
	defer c.wg.Done()
	for sock != nil {
		broken := make(chan struct{})
		go c.readAcks(sock, broken)
		if !c.pump(sock, broken) {
			return
		}
		_ = sock.Close()
		sock = c.redial()
	}
}

// pump writes queued frames. It returns true when the socket broke and
// false once the connection is closed.
func (c *connection) pump(sock *ws.Conn, broken <-chan struct{}) bool {
	for {
		select {
		case <-c.done:
			return false
		case <-broken:
			return true
		case data := <-c.outbox:
			if err := writeFrame(sock, data); err != nil {
				c.logger.Warn("WebSocket write error", "error", err)
				return true
			}
		}
	}
}

func writeFrame(sock *ws.Conn, data []byte) error {
	if err := sock.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return sock.WriteMessage(ws.TextMessage, data)
}

func (c *connection) readAcks(sock *ws.Conn, broken chan<- struct{}) {
	defer close(broken)
	for {
		_, msg, err := sock.ReadMessage()
		if err != nil {
			if !c.isClosed() {
				c.logger.Warn("WebSocket read error", "error", err)
			}
			return
		}
		var ack streaming.AckMessage
		if json.Unmarshal(msg, &ack) != nil || ack.Type != "ack" {
			c.logger.Debug("Ignoring non-ack message", "raw", string(msg))
			continue
		}
		c.release(ack.For)
	}
}

// redial retries with exponential backoff. A new socket first gets the
// hello frame, then the renderer is asked for a full resync. It returns
// nil when closed or out of attempts.
func (c *connection) redial() *ws.Conn {
	c.mu.Lock()
	c.sock = nil
	c.mu.Unlock()

	backoff := firstBackoff
	for attempt := 1; attempt <= maxRedials; attempt++ {
		c.logger.Info("Reconnecting to WebSocket", "attempt", attempt, "backoff", backoff)
		select {
		case <-c.done:
			return nil
		case <-time.After(backoff):
		}

		sock, err := c.open()
		if err == nil {
			c.mu.Lock()
			hello := c.hello
			c.mu.Unlock()
			if hello != nil {
				err = writeFrame(sock, hello)
			}
			if err == nil {
				c.logger.Info("WebSocket reconnected", "attempt", attempt)
				if c.onResync != nil {
					c.onResync()
				}
				return sock
			}
			_ = sock.Close()
		}
		c.logger.Warn("Reconnect failed", "attempt", attempt, "error", err)
		backoff = min(backoff*2, maxBackoff)
	}
	c.logger.Error("WebSocket reconnect failed after max attempts", "maxAttempts", maxRedials)
	return nil
}

// send queues a frame without blocking and reports whether it was queued.
func (c *connection) send(data []byte) bool {
	if c.isClosed() {
		return false
	}
	select {
	case c.outbox <- data:
		return true
	default:
		c.logger.Warn("WebSocket send queue full, dropping message")
		return false
	}
}

// sendAndWait queues a frame and blocks until the server acknowledges
// ackFor. The waiter is registered first so a fast ack is not lost.
func (c *connection) sendAndWait(data []byte, ackFor string, timeout time.Duration) error {
	ch := c.await(ackFor)
	defer c.forget(ackFor, ch)
	if !c.send(data) {
		return fmt.Errorf("could not queue %q", ackFor)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return nil
	case <-timer.C:
		return fmt.Errorf("timeout waiting for ack of %q", ackFor)
	case <-c.done:
		return fmt.Errorf("connection closed while waiting for ack of %q", ackFor)
	}
}

func (c *connection) await(ackFor string) chan struct{} {
	ch := make(chan struct{}, 1)
	c.mu.Lock()
	c.waiters[ackFor] = append(c.waiters[ackFor], ch)
	c.mu.Unlock()
	return ch
}

// release wakes the oldest waiter for ackFor.
func (c *connection) release(ackFor string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	queue := c.waiters[ackFor]
	if len(queue) == 0 {
		return
	}
	queue[0] <- struct{}{}
	c.waiters[ackFor] = queue[1:]
}

func (c *connection) forget(ackFor string, ch chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	queue := c.waiters[ackFor]
	for i, w := range queue {
		if w == ch {
			c.waiters[ackFor] = append(queue[:i:i], queue[i+1:]...)
			return
		}
	}
}

// close stops the supervisor, then sends a close frame on the live socket.
func (c *connection) close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.wg.Wait()

		c.mu.Lock()
		sock := c.sock
		c.sock = nil
		c.mu.Unlock()
		if sock == nil {
			return
		}
		_ = sock.SetWriteDeadline(time.Now().Add(writeWait))
		_ = sock.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""))
		err = sock.Close()
	})
	return err
}
