package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/catalogd/pkg/engine"
)

func TestReconcilerExpiresStaleDispatches(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	f := newFixture(engine.DispatchPending, engine.WithClock(clock))
	ctx := context.Background()

	h1 := f.addHost(t, "001", engine.StatusRestarting)
	h2 := f.addHost(t, "002", engine.StatusRestartQueued)
	first := hostItem(engine.OperationRestart, h1)
	second := hostItem(engine.OperationRestart, h2)
	head := f.persistChain(t, first, second)

	if err := f.processor.Submit(ctx, head); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	reconciler := engine.NewReconciler(f.processor, time.Hour, time.Minute, zerolog.Nop())

	now = now.Add(30 * time.Minute)
	expired, err := reconciler.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if expired != 0 {
		t.Errorf("expected nothing expired before the deadline, got %d", expired)
	}

	now = now.Add(2 * time.Hour)
	expired, err = reconciler.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expected 1 expired item, got %d", expired)
	}

	if f.workItemExists(first.ID) || f.workItemExists(second.ID) {
		t.Error("expired item and its queued successor should be removed")
	}
	if len(f.sender.Sent()) != 1 {
		t.Error("queued successor must never be dispatched")
	}
	if f.hostStatus(t, "002") != engine.StatusRestartQueued {
		t.Error("queued host must be left untouched")
	}
	if f.recorder.expired != 1 {
		t.Errorf("expected 1 expired recorded, got %d", f.recorder.expired)
	}
	if len(f.audits(t)) != 0 {
		t.Error("expired items must not be audited")
	}
}

func TestReconcilerDisabledByDefault(t *testing.T) {
	f := newFixture(engine.DispatchPending)
	reconciler := engine.NewReconciler(f.processor, 0, 0, zerolog.Nop())

	if reconciler.Enabled() {
		t.Fatal("reconciler with zero deadline must be disabled")
	}

	host := f.addHost(t, "001", engine.StatusRestarting)
	item := f.persistChain(t, hostItem(engine.OperationRestart, host))
	if err := f.processor.Submit(context.Background(), item); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	expired, err := reconciler.Sweep(context.Background())
	if err != nil || expired != 0 {
		t.Errorf("disabled sweep should do nothing, got %d (%v)", expired, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := reconciler.Run(ctx); err != nil {
		t.Errorf("disabled Run should return nil, got %v", err)
	}
}

func TestReconcilerRunStopsOnCancel(t *testing.T) {
	f := newFixture(engine.DispatchPending)
	reconciler := engine.NewReconciler(f.processor, time.Hour, 10*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- reconciler.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
