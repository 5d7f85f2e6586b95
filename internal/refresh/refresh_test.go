package refresh

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewRejectsBadSpec(t *testing.T) {
	if _, err := New("every now and then", func(context.Context) {}); err == nil {
		t.Fatal("expected error for invalid spec")
	}
}

func TestSchedulerRunsJobWithRunContext(t *testing.T) {
	var runs atomic.Int32
	var sawCtx atomic.Bool

	ctx, cancel := context.WithCancel(context.Background())
	type key struct{}
	ctx = context.WithValue(ctx, key{}, "run")

	s, err := New("@every 1s", func(jobCtx context.Context) {
		if jobCtx.Value(key{}) == "run" {
			sawCtx.Store(true)
		}
		runs.Add(1)
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for runs.Load() == 0 {
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("job never ran")
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if !sawCtx.Load() {
		t.Error("job did not receive the Run context")
	}
}
