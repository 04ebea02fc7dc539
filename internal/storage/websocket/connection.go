package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/tactiboard/engine/pkg/streaming"
)

const (
	sendChSize   = 256
	ackChSize    = 16
	replyChSize  = 4
	maxReconnect = 10
	maxBackoff   = 30 * time.Second
	writeWait    = 10 * time.Second
	ackTimeout   = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
)

var (
	ErrSendQueueFull = errors.New("websocket send queue full")
	ErrClosed        = errors.New("websocket connection closed")
)

// connection owns one WebSocket to the library server. A single write
// goroutine serializes writes; a message whose write failed is kept and
// written first after reconnecting.
type connection struct {
	mu      sync.Mutex
	conn    *ws.Conn
	stop    chan struct{} // closed when conn is replaced
	sendCh  chan []byte
	ackCh   chan streaming.AckMessage
	replyCh chan streaming.Envelope
	done    chan struct{} // closed on shutdown
	closed  bool

	wsURL  string
	secret string

	hello   []byte // replayed after every reconnect
	pending []byte // message whose write failed

	logger *slog.Logger
}

func newConnection(logger *slog.Logger) *connection {
	return &connection{
		sendCh:  make(chan []byte, sendChSize),
		ackCh:   make(chan streaming.AckMessage, ackChSize),
		replyCh: make(chan streaming.Envelope, replyChSize),
		done:    make(chan struct{}),
		logger:  logger,
	}
}

func (c *connection) dial(rawURL, secret string) error {
	c.wsURL = rawURL
	c.secret = secret

	conn, err := c.dialOnce()
	if err != nil {
		return err
	}
	c.start(conn)
	return nil
}

// setHello stores the introduction replayed after reconnects.
func (c *connection) setHello(data []byte) {
	c.mu.Lock()
	c.hello = data
	c.mu.Unlock()
}

// dialOnce dials with the secret as a query parameter.
func (c *connection) dialOnce() (*ws.Conn, error) {
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("secret", c.secret)
	u.RawQuery = q.Encode()

	conn, _, err := ws.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// start installs conn and runs the read and write loops on it.
func (c *connection) start(conn *ws.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	stop := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.stop = stop
	c.mu.Unlock()

	go c.writeLoop(conn, stop)
	go c.readLoop(conn)
}

func write(conn *ws.Conn, msgType int, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(msgType, data)
}

// writeLoop writes queued messages and keepalive pings to conn until a
// write fails or the connection shuts down.
func (c *connection) writeLoop(conn *ws.Conn, stop <-chan struct{}) {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	c.mu.Lock()
	retry := c.pending
	c.pending = nil
	c.mu.Unlock()
	if retry != nil {
		if err := write(conn, ws.TextMessage, retry); err != nil {
			c.fail(conn, retry, err)
			return
		}
	}

	for {
		select {
		case <-c.done:
			return
		case <-stop:
			return
		case <-ping.C:
			if err := write(conn, ws.PingMessage, nil); err != nil {
				c.fail(conn, nil, err)
				return
			}
		case data := <-c.sendCh:
			if err := write(conn, ws.TextMessage, data); err != nil {
				c.fail(conn, data, err)
				return
			}
		}
	}
}

// fail keeps the unsent message and starts reconnecting. A failure on a
// connection that was already replaced puts the message back in the queue.
func (c *connection) fail(conn *ws.Conn, unsent []byte, err error) {
	c.mu.Lock()
	current := c.conn == conn
	if current && unsent != nil {
		c.pending = unsent
	}
	c.mu.Unlock()

	if !current {
		if unsent != nil {
			select {
			case c.sendCh <- unsent:
			default:
				c.logger.Warn("Dropping message after connection change")
			}
		}
		return
	}
	c.logger.Warn("WebSocket write error", "error", err)
	go c.reconnect(conn)
}

// inbound is the union of the fields of acks and envelopes.
type inbound struct {
	streaming.AckMessage
	Payload json.RawMessage `json:"payload"`
}

// readLoop routes acks to ackCh and every other envelope to replyCh.
func (c *connection) readLoop(conn *ws.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.logger.Debug("WebSocket read error", "error", err)
			go c.reconnect(conn)
			return
		}

		var in inbound
		if err := json.Unmarshal(message, &in); err != nil {
			c.logger.Debug("Malformed message received", "raw", string(message))
			continue
		}

		if in.Type == streaming.TypeAck {
			select {
			case c.ackCh <- in.AckMessage:
			default:
				c.logger.Debug("Ack channel full, dropping", "for", in.For, "id", in.ID)
			}
			continue
		}

		select {
		case c.replyCh <- streaming.Envelope{Type: in.Type, Payload: in.Payload}:
		default:
			c.logger.Debug("Reply channel full, dropping", "type", in.Type)
		}
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// reconnect replaces broken with a new connection: it redials with
// exponential backoff, replays the hello and restarts the loops. Calls for a
// connection that is no longer current do nothing.
func (c *connection) reconnect(broken *ws.Conn) {
	c.mu.Lock()
	if c.closed || c.conn != broken {
		c.mu.Unlock()
		return
	}
	_ = c.conn.Close()
	c.conn = nil
	close(c.stop)
	c.mu.Unlock()

	backoff := time.Second
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}
		c.logger.Info("Reconnecting to library server", "attempt", attempt)

		conn, err := c.dialOnce()
		if err != nil {
			c.logger.Warn("Reconnect dial failed", "attempt", attempt, "error", err)
			backoff = nextBackoff(backoff)
			continue
		}

		c.mu.Lock()
		hello := c.hello
		c.mu.Unlock()
		if hello != nil {
			if err := write(conn, ws.TextMessage, hello); err != nil {
				c.logger.Warn("Failed to replay hello after reconnect", "error", err)
				_ = conn.Close()
				backoff = nextBackoff(backoff)
				continue
			}
		}

		c.logger.Info("Library server reconnected", "attempt", attempt)
		c.start(conn)
		return
	}

	c.logger.Error("Library server reconnect failed", "maxAttempts", maxReconnect)
}

// send queues data for the write loop, waiting up to writeWait for room.
func (c *connection) send(data []byte) error {
	select {
	case c.sendCh <- data:
		return nil
	default:
	}

	timer := time.NewTimer(writeWait)
	defer timer.Stop()
	select {
	case c.sendCh <- data:
		return nil
	case <-c.done:
		return ErrClosed
	case <-timer.C:
		return ErrSendQueueFull
	}
}

// sendAndWait sends data and blocks until the ack for (ackFor, id) arrives.
func (c *connection) sendAndWait(data []byte, ackFor, id string, timeout time.Duration) (streaming.AckMessage, error) {
	if err := c.send(data); err != nil {
		return streaming.AckMessage{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ack := <-c.ackCh:
			if ack.For == ackFor && ack.ID == id {
				return ack, nil
			}
		case <-timer.C:
			return streaming.AckMessage{}, fmt.Errorf("timeout waiting for ack of %q %s", ackFor, id)
		case <-c.done:
			return streaming.AckMessage{}, fmt.Errorf("ack of %q: %w", ackFor, ErrClosed)
		}
	}
}

// sendAndReceive sends data and blocks until an envelope of replyType arrives.
func (c *connection) sendAndReceive(data []byte, replyType string, timeout time.Duration) (streaming.Envelope, error) {
	if err := c.send(data); err != nil {
		return streaming.Envelope{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case env := <-c.replyCh:
			if env.Type == replyType {
				return env, nil
			}
			c.logger.Debug("Unexpected reply, ignoring", "type", env.Type)
		case <-timer.C:
			return streaming.Envelope{}, fmt.Errorf("timeout waiting for %q", replyType)
		case <-c.done:
			return streaming.Envelope{}, fmt.Errorf("waiting for %q: %w", replyType, ErrClosed)
		}
	}
}

// close sends a close frame and stops all goroutines.
func (c *connection) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	_ = write(conn, ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""))
	return conn.Close()
}
