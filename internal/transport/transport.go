package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/Esaban17/impostor-app/internal/protocol"
)

var (
	// ErrAckTimeout is returned when the server does not acknowledge a
	// command within the configured window. Callers surface it as a
	// retryable failure instead of hanging.
	ErrAckTimeout = errors.New("timed out waiting for server acknowledgement")
	// ErrClosed is returned when sending on a closed connection.
	ErrClosed = errors.New("connection closed")
)

// Conn is a persistent bidirectional channel to the game server.
// Implemented by the websocket transport and the polling fallback.
type Conn interface {
	// Events delivers inbound events in arrival order. The channel is
	// closed when the connection is torn down for good.
	Events() <-chan protocol.Event

	// Send fires a command without expecting a reply.
	Send(cmd protocol.Command) error

	// SendWithAck sends a command and blocks until the correlated ack
	// event arrives, the context is done, or the ack timeout expires.
	SendWithAck(ctx context.Context, cmd protocol.Command) (json.RawMessage, error)

	// ConnectionID is the transient transport identifier assigned by
	// the server, used to find ourselves in room rosters.
	ConnectionID() string

	Close() error
}

// Options tunes both transports. Zero values fall back to the same
// defaults the config package ships.
type Options struct {
	DialTimeout       time.Duration
	AckTimeout        time.Duration
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration

	// ReconnectMax caps the backoff between reconnect attempts.
	ReconnectMax time.Duration
}

func (o Options) withDefaults() Options {
	if o.DialTimeout <= 0 {
		o.DialTimeout = 10 * time.Second
	}
	if o.AckTimeout <= 0 {
		o.AckTimeout = 5 * time.Second
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 30 * time.Second
	}
	if o.HeartbeatTimeout <= 0 {
		o.HeartbeatTimeout = 45 * time.Second
	}
	if o.ReconnectMax <= 0 {
		o.ReconnectMax = 30 * time.Second
	}
	return o
}

// ackTable correlates outgoing seq numbers with waiting callers. Both
// transports embed one.
type ackTable struct {
	mu      sync.Mutex
	pending map[uint64]chan json.RawMessage
}

func newAckTable() *ackTable {
	return &ackTable{pending: make(map[uint64]chan json.RawMessage)}
}

func (t *ackTable) register(seq uint64) chan json.RawMessage {
	ch := make(chan json.RawMessage, 1)

	t.mu.Lock()
	t.pending[seq] = ch
	t.mu.Unlock()

	return ch
}

func (t *ackTable) drop(seq uint64) {
	t.mu.Lock()
	delete(t.pending, seq)
	t.mu.Unlock()
}

// resolve hands the ack payload to the waiting caller, if any is still
// around. Late acks after a timeout are dropped silently.
func (t *ackTable) resolve(seq uint64, data json.RawMessage) {
	t.mu.Lock()
	ch, ok := t.pending[seq]
	if ok {
		delete(t.pending, seq)
	}
	t.mu.Unlock()

	if ok {
		ch <- data
	}
}

// awaitAck blocks for the ack registered under seq.
func awaitAck(
	ctx context.Context,
	ch chan json.RawMessage,
	timeout time.Duration,
	cancel func(),
) (json.RawMessage, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case data := <-ch:
		return data, nil
	case <-timer.C:
		cancel()
		return nil, ErrAckTimeout
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	}
}
