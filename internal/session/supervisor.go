package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/chatfleet/sessiond/internal/event"
	"github.com/chatfleet/sessiond/internal/identity"
	"github.com/chatfleet/sessiond/internal/protocol"
	"github.com/chatfleet/sessiond/internal/store"
)

// Supervisor orchestrates per-identity session lifecycles: explicit
// start/stop/restart requests, disconnect-driven retries, and teardown on
// shutdown.
type Supervisor struct {
	cfg    Config
	dialer protocol.Dialer
	store  store.Store
	bus    *event.Bus
	logger *slog.Logger

	hooks   []Hook
	traffic TrafficHandler

	registry *Registry
	locks    *LockTable

	// mu guards the retry bookkeeping below.
	mu       sync.Mutex
	attempts map[string]int                // consecutive automatic restarts
	gaveUp   map[string]struct{}           // terminal until an explicit start
	pending  map[string]context.CancelFunc // scheduled restarts
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures optional supervisor collaborators.
type Option func(*Supervisor)

// WithHooks sets the ordered post-connect hook list.
func WithHooks(hooks []Hook) Option {
	return func(s *Supervisor) {
		s.hooks = hooks
	}
}

// WithTrafficHandler sets the receiver for message and call traffic.
func WithTrafficHandler(h TrafficHandler) Option {
	return func(s *Supervisor) {
		s.traffic = h
	}
}

// NewSupervisor creates a supervisor. Call Start before issuing session
// operations.
func NewSupervisor(cfg Config, dialer protocol.Dialer, st store.Store, bus *event.Bus, logger *slog.Logger, opts ...Option) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Supervisor{
		cfg:      cfg,
		dialer:   dialer,
		store:    st,
		bus:      bus,
		logger:   logger,
		registry: NewRegistry(),
		locks:    NewLockTable(),
		attempts: make(map[string]int),
		gaveUp:   make(map[string]struct{}),
		pending:  make(map[string]context.CancelFunc),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start arms the supervisor's internal lifecycle context.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.closed = false
	s.mu.Unlock()

	s.logger.Info("session supervisor started",
		"max_restart_attempts", s.cfg.MaxRestartAttempts,
		"restart_delay", s.cfg.RestartDelay,
		"pairing_grace", s.cfg.PairingGrace,
	)

	return nil
}

// Stop cancels pending restarts, closes every live connection, and waits for
// the event pumps to drain. Records keep their active flag so the next boot's
// reconciliation restores them.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for id, cancel := range s.pending {
		cancel()
		delete(s.pending, id)
	}
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	for _, ent := range s.registry.Snapshot() {
		if _, ok := s.registry.Remove(ent.Identity, ent.Conn); !ok {
			continue
		}
		ent.cancel()
		if err := ent.Conn.Close(); err != nil {
			s.logger.Debug("close on shutdown", "identity", ent.Identity, "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("session supervisor stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("session supervisor stop timed out")
		return ctx.Err()
	}
}

// StartSession connects rawIdentity's session. ownerRef, when non-empty, is
// persisted with the credential for bookkeeping.
func (s *Supervisor) StartSession(ctx context.Context, rawIdentity, ownerRef string) (StartResult, error) {
	return s.startSession(ctx, rawIdentity, ownerRef, true)
}

func (s *Supervisor) startSession(ctx context.Context, rawIdentity, ownerRef string, explicit bool) (StartResult, error) {
	if !s.running() {
		return StartResult{Outcome: OutcomeFailed, Reason: ReasonNotRunning}, ErrNotRunning
	}

	id, err := identity.Normalize(rawIdentity)
	if err != nil {
		return StartResult{Outcome: OutcomeFailed, Reason: ReasonInvalidIdentity}, err
	}
	logger := s.logger.With("identity", id)

	if _, ok := s.registry.Get(id); ok {
		return StartResult{Outcome: OutcomeAlreadyConnected, Identity: id}, nil
	}

	if !s.locks.TryLock(id) {
		logger.Debug("start skipped, identity lock contended")
		return StartResult{Outcome: OutcomeInProgress, Identity: id}, nil
	}
	defer s.locks.Unlock(id)

	// Re-check now that we hold the lock; a concurrent start may have won.
	if _, ok := s.registry.Get(id); ok {
		return StartResult{Outcome: OutcomeAlreadyConnected, Identity: id}, nil
	}

	s.mu.Lock()
	if explicit {
		// An explicit request wipes the retry history and any pending restart.
		delete(s.attempts, id)
		delete(s.gaveUp, id)
		if cancel, ok := s.pending[id]; ok {
			cancel()
			delete(s.pending, id)
		}
	} else if _, terminal := s.gaveUp[id]; terminal {
		s.mu.Unlock()
		return StartResult{Outcome: OutcomeFailed, Identity: id, Reason: ReasonGaveUp}, ErrGaveUp
	}
	s.mu.Unlock()

	var credential []byte
	isNew := false

	rec, err := s.store.Load(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		isNew = true
	case err != nil:
		logger.Error("credential load failed", "error", err)
		return StartResult{Outcome: OutcomeFailed, Identity: id, Reason: ReasonCredentialLoad},
			fmt.Errorf("load credential: %w", err)
	default:
		credential = rec.Credential
		if len(credential) == 0 {
			isNew = true
		}
	}

	conn, err := s.dialer.Dial(ctx, id, credential)
	if err != nil {
		logger.Warn("dial failed", "new_session", isNew, "error", err)
		s.scheduleRestart(id, ReasonDialFailed)
		return StartResult{Outcome: OutcomeFailed, Identity: id, Reason: ReasonDialFailed},
			fmt.Errorf("dial: %w", err)
	}

	pumpCtx, pumpCancel := context.WithCancel(s.ctx)
	ent := &Entry{
		Identity:  id,
		Conn:      conn,
		CreatedAt: time.Now().UTC(),
		IsNew:     isNew,
		ownerRef:  ownerRef,
		cancel:    pumpCancel,
	}

	if !s.registry.SetIfAbsent(ent) {
		pumpCancel()
		conn.Close()
		return StartResult{Outcome: OutcomeAlreadyConnected, Identity: id}, nil
	}

	s.wg.Add(1)
	go s.pump(pumpCtx, ent)

	logger.Info("session started", "new_session", isNew)

	return StartResult{Outcome: OutcomeStarted, Identity: id, IsNew: isNew}, nil
}

// StopSession tears rawIdentity's session down. With purge the stored record
// is deleted outright; otherwise the record is marked inactive so
// reconciliation will not resurrect it. Stopping an identity with no live
// session is not an error.
func (s *Supervisor) StopSession(ctx context.Context, rawIdentity string, purge bool) error {
	id, err := identity.Normalize(rawIdentity)
	if err != nil {
		return err
	}
	logger := s.logger.With("identity", id)

	// Explicit stop cancels any scheduled restart and clears retry history.
	s.mu.Lock()
	if cancel, ok := s.pending[id]; ok {
		cancel()
		delete(s.pending, id)
	}
	delete(s.attempts, id)
	delete(s.gaveUp, id)
	s.mu.Unlock()

	ent, removed := s.registry.Remove(id, nil)
	if removed {
		ent.cancel()
		if err := ent.Conn.Close(); err != nil {
			logger.Debug("close on stop", "error", err)
		}
	}

	if purge {
		if err := s.store.Delete(ctx, id); err != nil {
			return fmt.Errorf("purge %s: %w", id, err)
		}
		logger.Info("session purged", "had_connection", removed)
	} else {
		if err := s.store.MarkInactive(ctx, id); err != nil {
			logger.Warn("mark inactive failed", "error", err)
		}
		if removed {
			logger.Info("session stopped")
		}
	}

	if removed {
		reason := "stopped"
		if purge {
			reason = "purged"
		}
		s.publishClosed(id, reason)
	}

	return nil
}

// RestartSession tears the session down (keeping the stored record active)
// and immediately starts it again.
func (s *Supervisor) RestartSession(ctx context.Context, rawIdentity string) (StartResult, error) {
	if !s.running() {
		return StartResult{Outcome: OutcomeFailed, Reason: ReasonNotRunning}, ErrNotRunning
	}

	id, err := identity.Normalize(rawIdentity)
	if err != nil {
		return StartResult{Outcome: OutcomeFailed, Reason: ReasonInvalidIdentity}, err
	}

	s.mu.Lock()
	if cancel, ok := s.pending[id]; ok {
		cancel()
		delete(s.pending, id)
	}
	delete(s.attempts, id)
	delete(s.gaveUp, id)
	s.mu.Unlock()

	if ent, removed := s.registry.Remove(id, nil); removed {
		ent.cancel()
		ent.Conn.Close()
		s.publishClosed(id, "restarted")
	}

	return s.startSession(ctx, id, "", true)
}

// Status reports rawIdentity's supervision state. ok is false when the
// supervisor knows nothing about the identity.
func (s *Supervisor) Status(rawIdentity string) (SessionStatus, bool) {
	id, err := identity.Normalize(rawIdentity)
	if err != nil {
		return SessionStatus{}, false
	}

	st := SessionStatus{Identity: id}
	known := false

	if ent, ok := s.registry.Get(id); ok {
		st.Connected = true
		st.ConnectedAt = ent.CreatedAt
		st.Pairing = ent.IsNew
		known = true
	}

	s.mu.Lock()
	if n, ok := s.attempts[id]; ok {
		st.RetryAttempts = n
		known = true
	}
	if _, ok := s.pending[id]; ok {
		st.PendingRestart = true
		known = true
	}
	if _, ok := s.gaveUp[id]; ok {
		st.GaveUp = true
		known = true
	}
	s.mu.Unlock()

	return st, known
}

// List returns the status of every identity with live or pending state,
// ascending by identity.
func (s *Supervisor) List() []SessionStatus {
	seen := make(map[string]struct{})
	for _, ent := range s.registry.Snapshot() {
		seen[ent.Identity] = struct{}{}
	}

	s.mu.Lock()
	for id := range s.attempts {
		seen[id] = struct{}{}
	}
	for id := range s.pending {
		seen[id] = struct{}{}
	}
	for id := range s.gaveUp {
		seen[id] = struct{}{}
	}
	s.mu.Unlock()

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	statuses := make([]SessionStatus, 0, len(ids))
	for _, id := range ids {
		if st, ok := s.Status(id); ok {
			statuses = append(statuses, st)
		}
	}

	return statuses
}

// Connected returns the number of live sessions.
func (s *Supervisor) Connected() int {
	return s.registry.Len()
}

func (s *Supervisor) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx != nil && !s.closed
}

// pump owns one session's event stream from registration to teardown.
// Handler failures are logged and never escape; a panic here would take the
// whole process down.
func (s *Supervisor) pump(ctx context.Context, ent *Entry) {
	defer s.wg.Done()

	logger := s.logger.With("identity", ent.Identity)

	var pairingC <-chan time.Time
	if ent.IsNew && s.cfg.PairingGrace > 0 {
		timer := time.NewTimer(s.cfg.PairingGrace)
		defer timer.Stop()
		pairingC = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			// Stop/shutdown owns the teardown.
			return

		case <-pairingC:
			logger.Info("pairing grace expired, abandoning session")
			s.teardown(ent, protocol.CloseCause{Code: protocol.CodePairingTimeout, Detail: "pairing grace expired"})
			return

		case ev, ok := <-ent.Conn.Events():
			if !ok {
				s.teardown(ent, protocol.CloseCause{Code: protocol.CodeTransportLost, Detail: "event stream ended"})
				return
			}

			switch ev.Kind {
			case protocol.EventOpened:
				pairingC = nil
				s.handleOpened(ctx, ent, logger)

			case protocol.EventCredentials:
				s.handleCredentials(ctx, ent, ev.Credential, logger)

			case protocol.EventPairingCode:
				logger.Info("pairing code issued", "code", ev.PairingCode)
				s.bus.Publish(event.Event{
					Kind:        event.KindPairingCode,
					Identity:    ent.Identity,
					PairingCode: ev.PairingCode,
				})

			case protocol.EventMessage:
				if s.traffic != nil {
					if err := s.traffic.HandleMessage(ctx, ent.Identity, ev.Payload); err != nil {
						logger.Warn("message handler failed", "error", err)
					}
				}

			case protocol.EventCall:
				if s.traffic != nil {
					if err := s.traffic.HandleCall(ctx, ent.Identity, ev.Payload); err != nil {
						logger.Warn("call handler failed", "error", err)
					}
				}

			case protocol.EventClosed:
				s.teardown(ent, ev.Cause)
				return

			default:
				logger.Debug("unhandled session event", "kind", ev.Kind)
			}
		}
	}
}

// handleOpened persists liveness, runs the post-connect hooks, and announces
// the session. A fresh open also clears the identity's retry history.
func (s *Supervisor) handleOpened(ctx context.Context, ent *Entry, logger *slog.Logger) {
	logger.Info("session opened", "new_session", ent.IsNew)

	if err := s.store.MarkActive(ctx, ent.Identity, time.Now().UTC()); err != nil {
		logger.Warn("mark active failed", "error", err)
	}

	s.mu.Lock()
	delete(s.attempts, ent.Identity)
	delete(s.gaveUp, ent.Identity)
	s.mu.Unlock()

	s.runHooks(ctx, ent)

	s.bus.Publish(event.Event{
		Kind:         event.KindSessionOpened,
		Identity:     ent.Identity,
		IsNewSession: ent.IsNew,
	})
}

// handleCredentials persists a new or rotated credential. Failures are logged
// and the session stays up; the provider re-delivers on the next rotation.
func (s *Supervisor) handleCredentials(ctx context.Context, ent *Entry, credential []byte, logger *slog.Logger) {
	if err := s.store.Save(ctx, ent.Identity, credential, ent.ownerRef); err != nil {
		logger.Error("credential save failed", "error", err)
		return
	}

	logger.Info("credentials persisted")

	s.bus.Publish(event.Event{
		Kind:     event.KindCredentialsPersisted,
		Identity: ent.Identity,
	})
}

// teardown handles a provider-initiated close: deregister, classify, and
// apply the resulting action.
func (s *Supervisor) teardown(ent *Entry, cause protocol.CloseCause) {
	logger := s.logger.With("identity", ent.Identity)

	// Compare-and-delete: if an explicit stop already removed this entry the
	// teardown (including classification) belongs to that caller.
	if _, ok := s.registry.Remove(ent.Identity, ent.Conn); !ok {
		return
	}
	ent.Conn.Close()

	action := Classify(cause)
	logger.Info("session closed",
		"cause", cause.Code.String(),
		"detail", cause.Detail,
		"action", action.String(),
	)

	switch action {
	case ActionPurge:
		s.mu.Lock()
		if cancel, ok := s.pending[ent.Identity]; ok {
			cancel()
			delete(s.pending, ent.Identity)
		}
		delete(s.attempts, ent.Identity)
		delete(s.gaveUp, ent.Identity)
		s.mu.Unlock()

		if err := s.store.Delete(s.ctx, ent.Identity); err != nil {
			logger.Error("purge after auth failure failed", "error", err)
		}

	case ActionIgnore:
		// Nothing to do: no retry, no budget charge, no record to touch.

	case ActionRetry:
		s.scheduleRestart(ent.Identity, cause.Code.String())
	}

	s.publishClosed(ent.Identity, cause.Code.String())
}

// scheduleRestart arms one delayed restart for identity, charging the retry
// budget. Beyond the budget the identity goes terminal until an explicit
// start.
func (s *Supervisor) scheduleRestart(id, reason string) {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return
	}
	if _, terminal := s.gaveUp[id]; terminal {
		s.mu.Unlock()
		return
	}
	if _, dup := s.pending[id]; dup {
		s.mu.Unlock()
		return
	}

	s.attempts[id]++
	n := s.attempts[id]
	if n > s.cfg.MaxRestartAttempts {
		s.gaveUp[id] = struct{}{}
		s.mu.Unlock()
		s.logger.Error("giving up on session",
			"identity", id,
			"attempts", n-1,
			"last_reason", reason,
		)
		return
	}

	restartCtx, cancel := context.WithCancel(s.ctx)
	s.pending[id] = cancel
	s.mu.Unlock()

	s.logger.Info("restart scheduled",
		"identity", id,
		"attempt", n,
		"max_attempts", s.cfg.MaxRestartAttempts,
		"delay", s.cfg.RestartDelay,
		"reason", reason,
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		select {
		case <-restartCtx.Done():
			return
		case <-time.After(s.cfg.RestartDelay):
		}

		s.mu.Lock()
		if restartCtx.Err() != nil {
			s.mu.Unlock()
			return
		}
		delete(s.pending, id)
		s.mu.Unlock()

		if _, err := s.startSession(s.ctx, id, "", false); err != nil {
			s.logger.Warn("scheduled restart failed", "identity", id, "error", err)
		}
	}()
}

func (s *Supervisor) publishClosed(id, reason string) {
	s.bus.Publish(event.Event{
		Kind:     event.KindSessionClosed,
		Identity: id,
		Reason:   reason,
	})
}
