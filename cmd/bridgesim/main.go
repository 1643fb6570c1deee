// bridgesim is a development stand-in for the provider bridge. It accepts
// session WebSockets, walks new identities through a fake pairing flow,
// acknowledges commands, and can emit synthetic inbound traffic.
// Usage: go run ./cmd/bridgesim --addr :8765 --traffic 5s
//
// A control endpoint forces session closes for exercising the disconnect
// paths:
//
//	curl -X POST 'http://localhost:8765/control/close?identity=15550100&cause=logged_out'
package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// command mirrors the client-to-bridge frame.
type command struct {
	Op         string `json:"op"`
	ID         int64  `json:"id,omitempty"`
	Identity   string `json:"identity,omitempty"`
	Credential string `json:"credential,omitempty"`
	Target     string `json:"target,omitempty"`
	Recipient  string `json:"recipient,omitempty"`
	Body       string `json:"body,omitempty"`
}

// frame mirrors the bridge-to-client frame.
type frame struct {
	Event      string          `json:"event"`
	ID         int64           `json:"id,omitempty"`
	Code       string          `json:"code,omitempty"`
	Credential string          `json:"credential,omitempty"`
	Cause      string          `json:"cause,omitempty"`
	Detail     string          `json:"detail,omitempty"`
	Message    string          `json:"message,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

type simSession struct {
	identity string
	ws       *websocket.Conn
	writeMu  sync.Mutex
	logger   *slog.Logger
}

func (s *simSession) writeFrame(f frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return s.ws.WriteJSON(f)
}

// closeWith sends a closed frame and tears the socket down.
func (s *simSession) closeWith(cause, detail string) {
	s.writeFrame(frame{Event: "closed", Cause: cause, Detail: detail})
	s.writeMu.Lock()
	s.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.writeMu.Unlock()
	s.ws.Close()
}

// simulator tracks live sessions so the control endpoint can reach them.
type simulator struct {
	pairingDelay time.Duration
	traffic      time.Duration
	logger       *slog.Logger

	mu       sync.Mutex
	sessions map[string]*simSession
}

func main() {
	addr := flag.String("addr", ":8765", "listen address")
	pairingDelay := flag.Duration("pairing-delay", 3*time.Second, "wait between pairing code and credentials")
	traffic := flag.Duration("traffic", 0, "interval for synthetic inbound messages (0 disables)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	sim := &simulator{
		pairingDelay: *pairingDelay,
		traffic:      *traffic,
		logger:       logger,
		sessions:     make(map[string]*simSession),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/session", sim.handleSession(ctx))
	mux.HandleFunc("/control/close", sim.handleControlClose)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("bridgesim listening", "addr", *addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("listen error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down...")
	sim.closeAll("server_shutdown", "simulator stopping")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)

	logger.Info("bridgesim stopped")
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

func (sim *simulator) handleSession(ctx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			sim.logger.Warn("upgrade failed", "error", err)
			return
		}

		var connect command
		ws.SetReadDeadline(time.Now().Add(10 * time.Second))
		if err := ws.ReadJSON(&connect); err != nil || connect.Op != "connect" || connect.Identity == "" {
			sim.logger.Warn("bad connect frame", "error", err, "op", connect.Op)
			ws.Close()
			return
		}
		ws.SetReadDeadline(time.Time{})

		sess := &simSession{
			identity: connect.Identity,
			ws:       ws,
			logger:   sim.logger.With("identity", connect.Identity),
		}
		sim.register(sess)
		defer sim.deregister(sess)

		resumed := connect.Credential != ""
		sess.logger.Info("session connected", "resumed", resumed)

		if !resumed {
			if !sim.runPairing(ctx, sess) {
				return
			}
		}

		if err := sess.writeFrame(frame{Event: "opened"}); err != nil {
			sess.logger.Warn("write opened failed", "error", err)
			return
		}

		done := make(chan struct{})
		defer close(done)
		if sim.traffic > 0 {
			go sim.emitTraffic(ctx, sess, done)
		}

		// Ack every command until the client goes away.
		for {
			var cmd command
			if err := ws.ReadJSON(&cmd); err != nil {
				sess.logger.Info("session ended", "error", err)
				return
			}
			sess.logger.Debug("command", "op", cmd.Op, "id", cmd.ID,
				"target", cmd.Target, "recipient", cmd.Recipient)
			if err := sess.writeFrame(frame{Event: "ack", ID: cmd.ID}); err != nil {
				return
			}
		}
	}
}

// runPairing sends a pairing code, waits, then issues fake credentials. It
// reports false when the session should be abandoned.
func (sim *simulator) runPairing(ctx context.Context, sess *simSession) bool {
	code := pairingCode()
	sess.logger.Info("issuing pairing code", "code", code)
	if err := sess.writeFrame(frame{Event: "pairing_code", Code: code}); err != nil {
		return false
	}

	select {
	case <-ctx.Done():
		return false
	case <-time.After(sim.pairingDelay):
	}

	blob, _ := json.Marshal(map[string]string{
		"identity": sess.identity,
		"session":  uuid.NewString(),
		"issued":   time.Now().UTC().Format(time.RFC3339),
	})
	f := frame{
		Event:      "credentials",
		Credential: base64.StdEncoding.EncodeToString(blob),
	}
	if err := sess.writeFrame(f); err != nil {
		return false
	}
	sess.logger.Info("credentials issued")
	return true
}

func (sim *simulator) emitTraffic(ctx context.Context, sess *simSession, done <-chan struct{}) {
	ticker := time.NewTicker(sim.traffic)
	defer ticker.Stop()

	n := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			n++
			payload, _ := json.Marshal(map[string]any{
				"from": "simulator",
				"text": fmt.Sprintf("synthetic message %d", n),
			})
			if err := sess.writeFrame(frame{Event: "message", Payload: payload}); err != nil {
				return
			}
		}
	}
}

// handleControlClose force-closes a live session with the given cause, for
// exercising disconnect handling. Defaults to transport_lost.
func (sim *simulator) handleControlClose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	identity := r.URL.Query().Get("identity")
	cause := r.URL.Query().Get("cause")
	if cause == "" {
		cause = "transport_lost"
	}

	sim.mu.Lock()
	sess, ok := sim.sessions[identity]
	sim.mu.Unlock()
	if !ok {
		http.Error(w, "no such session", http.StatusNotFound)
		return
	}

	sim.logger.Info("forcing close", "identity", identity, "cause", cause)
	sess.closeWith(cause, "forced by control endpoint")
	w.WriteHeader(http.StatusNoContent)
}

func (sim *simulator) register(sess *simSession) {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	// A reconnect for the same identity replaces the old entry.
	sim.sessions[sess.identity] = sess
}

func (sim *simulator) deregister(sess *simSession) {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	if sim.sessions[sess.identity] == sess {
		delete(sim.sessions, sess.identity)
	}
}

func (sim *simulator) closeAll(cause, detail string) {
	sim.mu.Lock()
	sessions := make([]*simSession, 0, len(sim.sessions))
	for _, s := range sim.sessions {
		sessions = append(sessions, s)
	}
	sim.mu.Unlock()

	for _, s := range sessions {
		s.closeWith(cause, detail)
	}
}

const pairingAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// pairingCode returns an 8-character code in two groups, e.g. "K4TN-W7QD".
func pairingCode() string {
	buf := make([]byte, 8)
	rand.Read(buf)
	for i, b := range buf {
		buf[i] = pairingAlphabet[int(b)%len(pairingAlphabet)]
	}
	return string(buf[:4]) + "-" + string(buf[4:])
}
