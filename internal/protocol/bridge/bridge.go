package bridge

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/chatfleet/sessiond/internal/protocol"
)

// Dialer opens one WebSocket per session against the bridge.
type Dialer struct {
	cfg    Config
	logger *slog.Logger
}

// NewDialer creates a bridge dialer.
func NewDialer(cfg Config, logger *slog.Logger) *Dialer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Dialer{
		cfg:    cfg,
		logger: logger,
	}
}

// Dial opens a session for identity. The connect frame is sent before Dial
// returns; the opened (or closed) event arrives later on the session stream.
func (d *Dialer) Dial(ctx context.Context, identity string, credential []byte) (protocol.Conn, error) {
	header := http.Header{}
	if d.cfg.AuthToken != "" {
		header.Set("Authorization", "Bearer "+d.cfg.AuthToken)
	}

	wsDialer := websocket.Dialer{
		HandshakeTimeout: d.cfg.HandshakeTimeout,
	}

	ws, resp, err := wsDialer.DialContext(ctx, d.cfg.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: %v (status %d)", protocol.ErrDialFailed, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %v", protocol.ErrDialFailed, err)
	}

	c := newConn(d.cfg, ws, identity, d.logger)

	connect := command{Op: opConnect, Identity: identity}
	if len(credential) > 0 {
		connect.Credential = base64.StdEncoding.EncodeToString(credential)
	}
	if err := c.send(connect); err != nil {
		ws.Close()
		return nil, fmt.Errorf("send connect frame: %w", err)
	}

	c.start()

	d.logger.Debug("bridge session dialed",
		"identity", identity,
		"resume", len(credential) > 0,
	)

	return c, nil
}
