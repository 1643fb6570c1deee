package bridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chatfleet/sessiond/internal/protocol"
)

// Conn is one identity's WebSocket session with the bridge.
type Conn struct {
	cfg    Config
	logger *slog.Logger

	ws *websocket.Conn

	events chan protocol.Event
	done   chan struct{}

	// Write serialization
	writeMu sync.Mutex

	// Command/ack correlation
	pendingMu sync.Mutex
	pending   map[int64]chan frame
	cmdID     int64 // atomic counter

	// State
	mu       sync.Mutex
	closed   bool
	stale    bool
	lastPong time.Time
}

func newConn(cfg Config, ws *websocket.Conn, identity string, logger *slog.Logger) *Conn {
	c := &Conn{
		cfg:      cfg,
		logger:   logger.With("identity", identity),
		ws:       ws,
		events:   make(chan protocol.Event, cfg.BufferSize),
		done:     make(chan struct{}),
		pending:  make(map[int64]chan frame),
		lastPong: time.Now(),
	}

	// The bridge pings too; answer and count it as liveness.
	ws.SetPingHandler(func(data string) error {
		c.markAlive()
		return ws.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(c.cfg.WriteTimeout),
		)
	})
	ws.SetPongHandler(func(string) error {
		c.markAlive()
		return nil
	})

	return c
}

func (c *Conn) start() {
	go c.readLoop()
	go c.heartbeatLoop()
}

// Events returns the session's event stream.
func (c *Conn) Events() <-chan protocol.Event {
	return c.events
}

// Close tears the WebSocket down. Safe to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.done)

	c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.ws.Close()
}

// FollowChannel subscribes the session to a broadcast channel.
func (c *Conn) FollowChannel(ctx context.Context, target string) error {
	return c.command(ctx, command{Op: opFollow, Target: target})
}

// JoinGroup joins the session to a group via invite target.
func (c *Conn) JoinGroup(ctx context.Context, target string) error {
	return c.command(ctx, command{Op: opJoin, Target: target})
}

// SendText sends a text message from this session.
func (c *Conn) SendText(ctx context.Context, recipient, body string) error {
	return c.command(ctx, command{Op: opSend, Recipient: recipient, Body: body})
}

// command sends one acknowledged operation and waits for its ack.
func (c *Conn) command(ctx context.Context, cmd command) error {
	cmd.ID = atomic.AddInt64(&c.cmdID, 1)

	respCh := make(chan frame, 1)
	c.pendingMu.Lock()
	c.pending[cmd.ID] = respCh
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, cmd.ID)
		c.pendingMu.Unlock()
	}()

	if err := c.send(cmd); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return protocol.ErrConnClosed
	case <-time.After(c.cfg.AckTimeout):
		return fmt.Errorf("%w: %s not acknowledged", protocol.ErrSendTimeout, cmd.Op)
	case f := <-respCh:
		if f.Event == eventError {
			return fmt.Errorf("bridge rejected %s: %s", cmd.Op, f.Message)
		}
		return nil
	}
}

// send encodes and writes one frame under the write lock.
func (c *Conn) send(cmd command) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return protocol.ErrConnClosed
	}
	c.mu.Unlock()

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", cmd.Op, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// readLoop decodes bridge frames into session events until the connection
// ends. It is the only writer of the events channel and closes it on exit.
func (c *Conn) readLoop() {
	defer close(c.events)

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, data, err := c.ws.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			select {
			case <-c.done:
				// Local close; no close event needed.
			default:
				detail := err.Error()
				if c.isStale() {
					detail = "ping timeout"
				}
				c.deliver(protocol.Event{
					Kind:       protocol.EventClosed,
					Cause:      protocol.CloseCause{Code: protocol.CodeTransportLost, Detail: detail},
					ReceivedAt: receivedAt,
				})
			}
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Warn("undecodable bridge frame", "error", err)
			continue
		}

		switch f.Event {
		case eventAck, eventError:
			c.routeAck(f)

		case eventOpened:
			c.deliver(protocol.Event{Kind: protocol.EventOpened, ReceivedAt: receivedAt})

		case eventPairingCode:
			c.deliver(protocol.Event{
				Kind:        protocol.EventPairingCode,
				PairingCode: f.Code,
				ReceivedAt:  receivedAt,
			})

		case eventCredentials:
			cred, err := base64.StdEncoding.DecodeString(f.Credential)
			if err != nil {
				c.logger.Error("undecodable credential frame", "error", err)
				continue
			}
			c.deliver(protocol.Event{
				Kind:       protocol.EventCredentials,
				Credential: cred,
				ReceivedAt: receivedAt,
			})

		case eventMessage:
			c.tryDeliver(protocol.Event{
				Kind:       protocol.EventMessage,
				Payload:    []byte(f.Payload),
				ReceivedAt: receivedAt,
			})

		case eventCall:
			c.tryDeliver(protocol.Event{
				Kind:       protocol.EventCall,
				Payload:    []byte(f.Payload),
				ReceivedAt: receivedAt,
			})

		case eventClosed:
			c.deliver(protocol.Event{
				Kind:       protocol.EventClosed,
				Cause:      mapCause(f.Cause, f.Detail),
				ReceivedAt: receivedAt,
			})
			return

		default:
			c.logger.Debug("unhandled bridge event", "event", f.Event)
		}
	}
}

// heartbeatLoop pings the bridge and bails out when it goes silent. Closing
// the WebSocket here unblocks readLoop, which reports the lost transport.
func (c *Conn) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				c.logger.Debug("ping write failed", "error", err)
			}

			c.mu.Lock()
			last := c.lastPong
			c.mu.Unlock()

			if time.Since(last) > c.cfg.PongTimeout {
				c.logger.Warn("bridge connection stale",
					"last_pong", last,
					"timeout", c.cfg.PongTimeout,
				)
				c.mu.Lock()
				c.stale = true
				c.mu.Unlock()
				c.ws.Close()
				return
			}
		}
	}
}

// deliver blocks until the event is taken or the connection is closed. Used
// for lifecycle events that must not be lost.
func (c *Conn) deliver(ev protocol.Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// tryDeliver drops the event when the buffer is full. Used for traffic, which
// is lossy by contract.
func (c *Conn) tryDeliver(ev protocol.Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	default:
		c.logger.Warn("event buffer full, dropping traffic", "kind", ev.Kind)
	}
}

// routeAck hands an ack or error frame to the goroutine waiting on its id.
func (c *Conn) routeAck(f frame) {
	c.pendingMu.Lock()
	ch, ok := c.pending[f.ID]
	if ok {
		delete(c.pending, f.ID)
	}
	c.pendingMu.Unlock()

	if !ok {
		c.logger.Debug("ack for unknown command", "id", f.ID)
		return
	}
	ch <- f
}

func (c *Conn) markAlive() {
	c.mu.Lock()
	c.lastPong = time.Now()
	c.mu.Unlock()
}

func (c *Conn) isStale() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stale
}
