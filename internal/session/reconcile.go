package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/chatfleet/sessiond/internal/store"
)

// SessionStarter is the slice of the supervisor the reconciler needs.
type SessionStarter interface {
	StartSession(ctx context.Context, identity, ownerRef string) (StartResult, error)
}

// ReconcileConfig holds reconciler tuning.
type ReconcileConfig struct {
	// StartupDelay is how long to wait after process start before restoring
	// sessions, giving the store and transport time to settle.
	StartupDelay time.Duration
	// Spacing separates consecutive start attempts so a restart never hits
	// the provider with a connect burst.
	Spacing time.Duration
}

// DefaultReconcileConfig returns sensible defaults.
func DefaultReconcileConfig() ReconcileConfig {
	return ReconcileConfig{
		StartupDelay: 3 * time.Second,
		Spacing:      2 * time.Second,
	}
}

// Reconciler restores previously active identities once at process start.
type Reconciler struct {
	cfg     ReconcileConfig
	store   store.Store
	starter SessionStarter
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewReconciler creates a reconciler.
func NewReconciler(cfg ReconcileConfig, st store.Store, starter SessionStarter, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		cfg:     cfg,
		store:   st,
		starter: starter,
		logger:  logger,
	}
}

// Start launches the one-shot restore pass.
func (r *Reconciler) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.run()

	r.logger.Info("reconciler started",
		"startup_delay", r.cfg.StartupDelay,
		"spacing", r.cfg.Spacing,
	)

	return nil
}

// Stop cancels a restore still in flight and waits for it to finish.
func (r *Reconciler) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("reconciler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run sleeps through the startup delay, then walks the active-identity list
// sequentially with spacing between attempts.
func (r *Reconciler) run() {
	defer r.wg.Done()

	select {
	case <-r.ctx.Done():
		return
	case <-time.After(r.cfg.StartupDelay):
	}

	ids, err := r.store.ListActive(r.ctx)
	if err != nil {
		r.logger.Error("reconciliation aborted, listing active identities failed", "error", err)
		return
	}
	if len(ids) == 0 {
		r.logger.Info("reconciliation complete, no active identities")
		return
	}

	start := time.Now()
	var started, skipped, failed int

	for i, id := range ids {
		if i > 0 {
			select {
			case <-r.ctx.Done():
				r.logger.Info("reconciliation canceled",
					"restored", started,
					"remaining", len(ids)-i,
				)
				return
			case <-time.After(r.cfg.Spacing):
			}
		}

		res, err := r.starter.StartSession(r.ctx, id, "")
		switch res.Outcome {
		case OutcomeStarted:
			started++
		case OutcomeAlreadyConnected, OutcomeInProgress:
			// Someone beat us to it; not an error.
			skipped++
		default:
			failed++
			r.logger.Warn("reconciliation start failed",
				"identity", id,
				"reason", res.Reason,
				"error", err,
			)
		}
	}

	r.logger.Info("reconciliation complete",
		"identities", len(ids),
		"started", started,
		"skipped", skipped,
		"failed", failed,
		"duration", time.Since(start),
	)
}
