package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type blockingWorker struct {
	started atomic.Bool
	err     error
}

func (w *blockingWorker) Run(ctx context.Context) error {
	w.started.Store(true)
	if w.err != nil {
		return w.err
	}
	<-ctx.Done()
	return nil
}

func TestRunner_StartsAllWorkers(t *testing.T) {
	t.Parallel()
	a := &blockingWorker{}
	b := &blockingWorker{}
	r := NewRunner(a, b)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for !a.started.Load() || !b.started.Load() {
		select {
		case <-deadline:
			t.Fatal("workers did not start")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() = %v, want nil after cancel", err)
	}
}

func TestRunner_FirstErrorCancelsRest(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	failing := &blockingWorker{err: boom}
	healthy := &blockingWorker{}
	r := NewRunner(failing, healthy)

	err := r.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("Run() = %v, want boom", err)
	}
}

type fakePruneStore struct {
	calls atomic.Int64
}

func (s *fakePruneStore) PruneUsage(context.Context, string) (int64, error) {
	s.calls.Add(1)
	return 1, nil
}

func TestUsagePruner_Sweeps(t *testing.T) {
	t.Parallel()
	store := &fakePruneStore{}
	p := NewUsagePruner(store, 24*time.Hour, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := p.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if store.calls.Load() == 0 {
		t.Error("pruner never swept")
	}
}

type fakeEvicter struct {
	calls atomic.Int64
}

func (e *fakeEvicter) EvictStale(time.Time) int {
	e.calls.Add(1)
	return 0
}

func TestLimiterJanitor_Sweeps(t *testing.T) {
	t.Parallel()
	evicter := &fakeEvicter{}
	j := NewLimiterJanitor(evicter, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := j.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if evicter.calls.Load() == 0 {
		t.Error("janitor never swept")
	}
}
