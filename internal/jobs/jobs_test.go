package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sweatpact/sweatpact/internal/clock"
)

func newRunner(t *testing.T) *TimerRunner {
	t.Helper()
	r := NewTimerRunner(clock.System{}, slog.Default())
	r.Start(context.Background())
	t.Cleanup(r.Stop)
	return r
}

func waitFor(t *testing.T, ch <-chan Job) Job {
	t.Helper()
	select {
	case j := <-ch:
		return j
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatch")
		return Job{}
	}
}

func TestPastRunAtDispatchesImmediately(t *testing.T) {
	r := newRunner(t)
	got := make(chan Job, 1)
	r.Handle("echo", func(_ context.Context, j Job) error {
		got <- j
		return nil
	})

	err := r.Enqueue(Job{Name: "echo", DedupeKey: "k1", RunAt: time.Now().Add(-time.Minute)})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if j := waitFor(t, got); j.DedupeKey != "k1" {
		t.Errorf("dispatched key = %q, want k1", j.DedupeKey)
	}
}

func TestDelayedDispatch(t *testing.T) {
	r := newRunner(t)
	got := make(chan Job, 1)
	r.Handle("echo", func(_ context.Context, j Job) error {
		got <- j
		return nil
	})

	if err := r.Enqueue(Job{Name: "echo", DedupeKey: "k1", RunAt: time.Now().Add(20 * time.Millisecond)}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if r.Pending() != 1 {
		t.Errorf("pending = %d, want 1", r.Pending())
	}
	waitFor(t, got)
	if r.Pending() != 0 {
		t.Errorf("pending = %d after fire, want 0", r.Pending())
	}
}

func TestDuplicateKeyIsNoOp(t *testing.T) {
	r := newRunner(t)
	var calls atomic.Int32
	done := make(chan Job, 2)
	r.Handle("echo", func(_ context.Context, j Job) error {
		calls.Add(1)
		done <- j
		return nil
	})

	at := time.Now().Add(20 * time.Millisecond)
	if err := r.Enqueue(Job{Name: "echo", DedupeKey: "same", RunAt: at}); err != nil {
		t.Fatal(err)
	}
	if err := r.Enqueue(Job{Name: "echo", DedupeKey: "same", RunAt: at}); err != nil {
		t.Fatalf("duplicate enqueue should be a no-op, got %v", err)
	}

	waitFor(t, done)
	time.Sleep(50 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("handler ran %d times, want 1", n)
	}
}

func TestCancelPendingJob(t *testing.T) {
	r := newRunner(t)
	var calls atomic.Int32
	r.Handle("echo", func(_ context.Context, j Job) error {
		calls.Add(1)
		return nil
	})

	if err := r.Enqueue(Job{Name: "echo", DedupeKey: "k1", RunAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}
	if !r.Cancel("k1") {
		t.Fatal("expected cancel to find the pending job")
	}
	if r.Cancel("k1") {
		t.Error("second cancel should report nothing to remove")
	}
	if r.Pending() != 0 {
		t.Errorf("pending = %d, want 0", r.Pending())
	}
	if calls.Load() != 0 {
		t.Error("cancelled job must not run")
	}
}

func TestDispatchRetriesTransientFailures(t *testing.T) {
	r := newRunner(t)
	var attempts atomic.Int32
	done := make(chan Job, 1)
	r.Handle("flaky", func(_ context.Context, j Job) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient")
		}
		done <- j
		return nil
	})

	if err := r.Enqueue(Job{Name: "flaky", DedupeKey: "k1", RunAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, done)
	if n := attempts.Load(); n != 3 {
		t.Errorf("attempts = %d, want 3", n)
	}
}

func TestEnqueueValidation(t *testing.T) {
	r := newRunner(t)
	r.Handle("echo", func(context.Context, Job) error { return nil })

	if err := r.Enqueue(Job{Name: "echo"}); err == nil {
		t.Error("missing dedupe key should error")
	}
	if err := r.Enqueue(Job{Name: "unknown", DedupeKey: "k"}); err == nil {
		t.Error("unregistered handler should error")
	}
}
