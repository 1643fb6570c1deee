package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/chatfleet/sessiond/internal/store/memory"
)

// recordingStarter captures reconciliation start calls with their timestamps.
type recordingStarter struct {
	mu      sync.Mutex
	calls   []string
	times   []time.Time
	results map[string]StartResult
}

func (r *recordingStarter) StartSession(ctx context.Context, id, ownerRef string) (StartResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, id)
	r.times = append(r.times, time.Now())

	if res, ok := r.results[id]; ok {
		return res, nil
	}
	return StartResult{Outcome: OutcomeStarted, Identity: id}, nil
}

func (r *recordingStarter) recorded() ([]string, []time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...), append([]time.Time(nil), r.times...)
}

func seedActive(t *testing.T, st *memory.Store, ids ...string) {
	t.Helper()
	ctx := context.Background()
	for _, id := range ids {
		if err := st.Save(ctx, id, []byte("cred-"+id), ""); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
		if err := st.MarkActive(ctx, id, time.Now()); err != nil {
			t.Fatalf("mark active %s: %v", id, err)
		}
	}
}

func TestReconciler_RestoresActiveIdentities(t *testing.T) {
	st := memory.New()
	seedActive(t, st, "15550102", "15550100", "15550101")

	starter := &recordingStarter{}
	cfg := ReconcileConfig{StartupDelay: 10 * time.Millisecond, Spacing: 30 * time.Millisecond}
	rec := NewReconciler(cfg, st, starter, nil)

	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer rec.Stop(context.Background())

	waitFor(t, "all identities restored", func() bool {
		calls, _ := starter.recorded()
		return len(calls) == 3
	})

	calls, times := starter.recorded()
	want := []string{"15550100", "15550101", "15550102"}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("call order = %v, want %v", calls, want)
		}
	}

	// No dial bursts: consecutive attempts are spaced apart.
	for i := 1; i < len(times); i++ {
		if gap := times[i].Sub(times[i-1]); gap < cfg.Spacing-5*time.Millisecond {
			t.Errorf("gap %d = %v, want at least %v", i, gap, cfg.Spacing)
		}
	}
}

func TestReconciler_SkipsAlreadyConnected(t *testing.T) {
	st := memory.New()
	seedActive(t, st, "15550100", "15550101")

	starter := &recordingStarter{results: map[string]StartResult{
		"15550100": {Outcome: OutcomeAlreadyConnected, Identity: "15550100"},
	}}
	cfg := ReconcileConfig{StartupDelay: time.Millisecond, Spacing: time.Millisecond}
	rec := NewReconciler(cfg, st, starter, nil)

	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer rec.Stop(context.Background())

	// A skip never halts the walk; every active identity is still attempted.
	waitFor(t, "walk to finish", func() bool {
		calls, _ := starter.recorded()
		return len(calls) == 2
	})
}

func TestReconciler_StopCancelsMidWalk(t *testing.T) {
	st := memory.New()
	seedActive(t, st, "15550100", "15550101", "15550102", "15550103", "15550104")

	starter := &recordingStarter{}
	cfg := ReconcileConfig{StartupDelay: time.Millisecond, Spacing: 200 * time.Millisecond}
	rec := NewReconciler(cfg, st, starter, nil)

	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, "first restore", func() bool {
		calls, _ := starter.recorded()
		return len(calls) >= 1
	})

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rec.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	calls, _ := starter.recorded()
	if len(calls) >= 5 {
		t.Errorf("stop did not interrupt the walk, %d calls", len(calls))
	}
}

func TestReconciler_NoActiveIdentities(t *testing.T) {
	starter := &recordingStarter{}
	cfg := ReconcileConfig{StartupDelay: time.Millisecond, Spacing: time.Millisecond}
	rec := NewReconciler(cfg, memory.New(), starter, nil)

	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	time.Sleep(30 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rec.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if calls, _ := starter.recorded(); len(calls) != 0 {
		t.Errorf("empty store produced start calls: %v", calls)
	}
}
