// Package jobs is an in-process delayed job runner. Jobs are keyed for
// de-duplication, held on timers until their run time, and dispatched to
// named handlers with backoff on failure.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/sweatpact/sweatpact/internal/clock"
)

// Job is one unit of deferred work. DedupeKey makes enqueueing
// idempotent: a second job with the same key is dropped while the first
// is still pending.
type Job struct {
	Name      string          `json:"name"`
	DedupeKey string          `json:"dedupe_key"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RunAt     time.Time       `json:"run_at"`
}

// Handler executes a dispatched job. Returning an error triggers the
// runner's backoff retries.
type Handler func(ctx context.Context, job Job) error

type Runner interface {
	Enqueue(job Job) error
	Cancel(dedupeKey string) bool
}

const (
	dispatchAttempts = 3
	backoffBase      = 500 * time.Millisecond
)

// TimerRunner holds pending jobs on in-process timers. Jobs do not
// survive a restart; the call scheduler rebuilds still-due dispatch
// jobs from the calls table at startup.
type TimerRunner struct {
	mu       sync.Mutex
	handlers map[string]Handler
	pending  map[string]*time.Timer
	clk      clock.Clock
	logger   *slog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	inFlight sync.WaitGroup
}

func NewTimerRunner(clk clock.Clock, logger *slog.Logger) *TimerRunner {
	return &TimerRunner{
		handlers: make(map[string]Handler),
		pending:  make(map[string]*time.Timer),
		clk:      clk,
		logger:   logger,
	}
}

// Handle registers the handler for a job name. Must be called before
// Start.
func (r *TimerRunner) Handle(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Start makes the runner accept and dispatch jobs.
func (r *TimerRunner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctx, r.cancel = context.WithCancel(ctx)
}

// Stop cancels all pending timers and waits for in-flight dispatches.
func (r *TimerRunner) Stop() {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	for key, timer := range r.pending {
		timer.Stop()
		delete(r.pending, key)
	}
	r.mu.Unlock()

	r.inFlight.Wait()
}

// Enqueue schedules the job. A job whose key is already pending is an
// idempotent no-op; a run time in the past dispatches immediately.
func (r *TimerRunner) Enqueue(job Job) error {
	if job.Name == "" || job.DedupeKey == "" {
		return fmt.Errorf("job needs a name and dedupe key: %+v", job)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ctx == nil {
		return fmt.Errorf("runner not started")
	}
	if _, ok := r.handlers[job.Name]; !ok {
		return fmt.Errorf("no handler registered for job %q", job.Name)
	}
	if _, exists := r.pending[job.DedupeKey]; exists {
		r.logger.Debug("job already pending", "name", job.Name, "key", job.DedupeKey)
		return nil
	}

	delay := job.RunAt.Sub(r.clk.Now())
	if delay <= 0 {
		r.inFlight.Add(1)
		go r.dispatch(job)
		return nil
	}

	r.pending[job.DedupeKey] = time.AfterFunc(delay, func() {
		r.mu.Lock()
		delete(r.pending, job.DedupeKey)
		r.mu.Unlock()

		r.inFlight.Add(1)
		r.dispatch(job)
	})
	r.logger.Debug("job enqueued", "name", job.Name, "key", job.DedupeKey, "run_at", job.RunAt)
	return nil
}

// Cancel removes a pending job by key. Returns false when the job
// already fired or was never enqueued.
func (r *TimerRunner) Cancel(dedupeKey string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	timer, ok := r.pending[dedupeKey]
	if !ok {
		return false
	}
	timer.Stop()
	delete(r.pending, dedupeKey)
	return true
}

// Pending reports the number of jobs waiting on timers.
func (r *TimerRunner) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *TimerRunner) dispatch(job Job) {
	defer r.inFlight.Done()

	r.mu.Lock()
	h := r.handlers[job.Name]
	ctx := r.ctx
	r.mu.Unlock()

	backoff := retry.WithMaxRetries(dispatchAttempts-1, retry.NewFibonacci(backoffBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := h(ctx, job); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		r.logger.Error("job failed after retries", "name", job.Name, "key", job.DedupeKey, "error", err)
		return
	}
	r.logger.Debug("job dispatched", "name", job.Name, "key", job.DedupeKey)
}
