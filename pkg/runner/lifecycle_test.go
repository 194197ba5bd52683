package runner

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLifecycleRunnerDrainsOnCancel(t *testing.T) {
	BannerOutput = nil
	drained := false
	stopped := false
	r := NewLifecycleRunner(DrainFunc(func(ctx context.Context) error {
		drained = true
		return nil
	}), Hooks{OnStop: func() { stopped = true }}, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	deadline := time.Now().Add(time.Second)
	for r.State() != StateRunning && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run error: %v", err)
	}
	if !drained || !stopped {
		t.Fatalf("expected drain and stop hook, got drained=%v stopped=%v", drained, stopped)
	}
	if r.State() != StateStopped {
		t.Fatalf("expected stopped, got %s", r.State())
	}
	if err := r.Run(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state on second run, got %v", err)
	}
}

func TestLifecycleRunnerStartFailure(t *testing.T) {
	BannerOutput = nil
	boom := errors.New("listen failed")
	r := NewLifecycleRunner(nil, Hooks{OnStart: func(context.Context) error { return boom }}, time.Second)
	if err := r.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected start error, got %v", err)
	}
}

func TestLifecycleRunnerDrainTimeout(t *testing.T) {
	BannerOutput = nil
	r := NewLifecycleRunner(DrainFunc(func(ctx context.Context) error {
		time.Sleep(200 * time.Millisecond)
		return nil
	}), Hooks{}, 20*time.Millisecond)
	if err := r.Stop(); !errors.Is(err, ErrDrainTimeout) {
		t.Fatalf("expected drain timeout, got %v", err)
	}
}
