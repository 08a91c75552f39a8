package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Esaban17/impostor-app/internal/protocol"

	"go.uber.org/zap"
)

// Endpoints of the fallback transport.
const (
	PollConnectPath = "/poll/connect"
	PollEventsPath  = "/poll/events"
	PollCommandPath = "/poll/cmd"
)

// pollConn is the fallback transport for environments where the
// websocket upgrade fails: commands go out as POSTs, events come back
// through a long-poll GET loop. Slower, same contract.
type pollConn struct {
	opts    Options
	baseURL string
	client  *http.Client

	events chan protocol.Event
	acks   *ackTable
	seq    atomic.Uint64

	connID string

	done      chan struct{}
	closeOnce sync.Once
}

// DialPolling connects the long-poll fallback.
func DialPolling(serverURL string, opts Options) (Conn, error) {
	opts = opts.withDefaults()

	c := &pollConn{
		opts:    opts,
		baseURL: strings.TrimSuffix(serverURL, "/"),
		client:  &http.Client{Timeout: opts.HeartbeatTimeout},
		events:  make(chan protocol.Event, 64),
		acks:    newAckTable(),
		done:    make(chan struct{}),
	}

	if err := c.connect(); err != nil {
		return nil, err
	}

	go c.pollLoop()

	return c, nil
}

func (c *pollConn) connect() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.DialTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+PollConnectPath, nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("poll connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("poll connect: unexpected status %d", resp.StatusCode)
	}

	var welcome protocol.WelcomePayload
	if err := json.NewDecoder(resp.Body).Decode(&welcome); err != nil {
		return fmt.Errorf("poll connect: decoding welcome: %w", err)
	}

	c.connID = welcome.ConnectionID

	zap.L().Info(
		"polling transport connected",
		zap.String("url", c.baseURL),
		zap.String("connection_id", c.connID),
	)

	return nil
}

// pollLoop repeatedly long-polls the events endpoint. An empty reply
// is a heartbeat; errors back off briefly and retry.
func (c *pollConn) pollLoop() {
	defer close(c.events)

	for {
		select {
		case <-c.done:
			return
		default:
		}

		batch, err := c.fetch()
		if err != nil {
			select {
			case <-c.done:
				return
			case <-time.After(time.Second):
			}
			zap.L().Debug("poll fetch failed", zap.Error(err))
			continue
		}

		for _, ev := range batch {
			if ev.Name == protocol.EVENT_ACK {
				c.acks.resolve(ev.Seq, ev.Data)
				continue
			}

			select {
			case c.events <- ev:
			case <-c.done:
				return
			}
		}
	}
}

func (c *pollConn) fetch() ([]protocol.Event, error) {
	url := fmt.Sprintf("%s%s?cid=%s", c.baseURL, PollEventsPath, c.connID)

	resp, err := c.client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var batch []protocol.Event
	if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
		return nil, err
	}
	return batch, nil
}

func (c *pollConn) Events() <-chan protocol.Event {
	return c.events
}

func (c *pollConn) Send(cmd protocol.Command) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	body, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", cmd.Name, err)
	}

	url := fmt.Sprintf("%s%s?cid=%s", c.baseURL, PollCommandPath, c.connID)

	resp, err := c.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("posting %s: %w", cmd.Name, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("posting %s: unexpected status %d", cmd.Name, resp.StatusCode)
	}
	return nil
}

func (c *pollConn) SendWithAck(ctx context.Context, cmd protocol.Command) (json.RawMessage, error) {
	seq := c.seq.Add(1)
	cmd.Seq = seq

	ch := c.acks.register(seq)

	if err := c.Send(cmd); err != nil {
		c.acks.drop(seq)
		return nil, err
	}

	return awaitAck(ctx, ch, c.opts.AckTimeout, func() { c.acks.drop(seq) })
}

func (c *pollConn) ConnectionID() string {
	return c.connID
}

func (c *pollConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}
