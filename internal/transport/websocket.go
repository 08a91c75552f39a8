package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Esaban17/impostor-app/internal/protocol"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocketPath is the endpoint the game server exposes the low
// latency transport on.
const WebSocketPath = "/ws"

// wsConn is the primary transport. A single reader goroutine feeds the
// events channel and resolves acks; writes are serialized with a
// mutex; a heartbeat goroutine pings on a fixed cadence. Lost
// connections reconnect automatically with capped backoff.
type wsConn struct {
	opts  Options
	wsURL string

	events chan protocol.Event
	acks   *ackTable
	seq    atomic.Uint64

	mu     sync.Mutex
	conn   *websocket.Conn
	connID string

	writeMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
}

// DialWebSocket connects the websocket transport to the server URL
// from config (http/https scheme; rewritten to ws/wss).
func DialWebSocket(serverURL string, opts Options) (Conn, error) {
	opts = opts.withDefaults()

	wsURL, err := toWebSocketURL(serverURL)
	if err != nil {
		return nil, err
	}

	c := &wsConn{
		opts:   opts,
		wsURL:  wsURL,
		events: make(chan protocol.Event, 64),
		acks:   newAckTable(),
		done:   make(chan struct{}),
	}

	if _, err := c.dial(); err != nil {
		return nil, err
	}

	go c.readLoop()
	go c.heartbeatLoop()

	return c, nil
}

func toWebSocketURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("parsing server url: %w", err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}

	if !strings.HasSuffix(u.Path, WebSocketPath) {
		u.Path = strings.TrimSuffix(u.Path, "/") + WebSocketPath
	}

	return u.String(), nil
}

// dial establishes one connection and consumes the welcome event so
// ConnectionID is valid as soon as the constructor returns. The welcome
// is handed back so reconnects can replay it into the event stream.
func (c *wsConn) dial() (protocol.Event, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.opts.DialTimeout}

	conn, _, err := dialer.Dial(c.wsURL, nil)
	if err != nil {
		return protocol.Event{}, fmt.Errorf("dialing %s: %w", c.wsURL, err)
	}

	conn.SetReadDeadline(time.Now().Add(c.opts.HeartbeatTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.opts.HeartbeatTimeout))
		return nil
	})

	// The welcome must be the first event on a fresh connection.
	var ev protocol.Event
	if err := conn.ReadJSON(&ev); err != nil {
		conn.Close()
		return protocol.Event{}, fmt.Errorf("reading welcome: %w", err)
	}

	welcome := protocol.TryUnwrapWelcome(ev)
	if welcome == nil {
		conn.Close()
		return protocol.Event{}, fmt.Errorf("expected %s as first event, got %q", protocol.EVENT_WELCOME, ev.Name)
	}

	c.mu.Lock()
	c.conn = conn
	c.connID = welcome.ConnectionID
	c.mu.Unlock()

	zap.L().Info(
		"websocket connected",
		zap.String("url", c.wsURL),
		zap.String("connection_id", welcome.ConnectionID),
	)

	return ev, nil
}

func (c *wsConn) readLoop() {
	defer close(c.events)

	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		var ev protocol.Event
		err := conn.ReadJSON(&ev)
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}

			zap.L().Warn("websocket read failed, reconnecting", zap.Error(err))
			conn.Close()

			if !c.reconnect() {
				return
			}
			continue
		}

		conn.SetReadDeadline(time.Now().Add(c.opts.HeartbeatTimeout))

		switch ev.Name {
		case protocol.EVENT_ACK:
			c.acks.resolve(ev.Seq, ev.Data)
		case protocol.EVENT_WELCOME:
			// A mid-stream welcome means the server restarted our
			// identity; keep the latest.
			if p := protocol.TryUnwrapWelcome(ev); p != nil {
				c.mu.Lock()
				c.connID = p.ConnectionID
				c.mu.Unlock()
			}
			c.deliver(ev)
		default:
			c.deliver(ev)
		}
	}
}

func (c *wsConn) deliver(ev protocol.Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// reconnect retries the dial with doubling backoff until it succeeds
// or the connection is closed for good. The server assigns a fresh
// connection id on every connection, so the consumed welcome is
// replayed into the event stream; consumers re-match their roster
// identity against it.
func (c *wsConn) reconnect() bool {
	backoff := time.Second

	for {
		select {
		case <-c.done:
			return false
		case <-time.After(backoff):
		}

		if ev, err := c.dial(); err == nil {
			c.deliver(ev)
			return true
		} else {
			zap.L().Warn("websocket reconnect failed", zap.Error(err))
		}

		backoff *= 2
		if backoff > c.opts.ReconnectMax {
			backoff = c.opts.ReconnectMax
		}
	}
}

func (c *wsConn) heartbeatLoop() {
	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()

			deadline := time.Now().Add(c.opts.HeartbeatTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				zap.L().Debug("ping failed", zap.Error(err))
			}
		}
	}
}

func (c *wsConn) Events() <-chan protocol.Event {
	return c.events
}

func (c *wsConn) Send(cmd protocol.Command) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("writing %s: %w", cmd.Name, err)
	}
	return nil
}

func (c *wsConn) SendWithAck(ctx context.Context, cmd protocol.Command) (json.RawMessage, error) {
	seq := c.seq.Add(1)
	cmd.Seq = seq

	ch := c.acks.register(seq)

	if err := c.Send(cmd); err != nil {
		c.acks.drop(seq)
		return nil, err
	}

	return awaitAck(ctx, ch, c.opts.AckTimeout, func() { c.acks.drop(seq) })
}

func (c *wsConn) ConnectionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connID
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		err = conn.Close()
	})
	return err
}
