// Package call owns the coaching-call lifecycle: scheduling, the status
// state machine driven by provider webhooks, and no-answer retries.
package call

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/sweatpact/sweatpact/internal/clock"
	"github.com/sweatpact/sweatpact/internal/jobs"
	"github.com/sweatpact/sweatpact/internal/model"
	"github.com/sweatpact/sweatpact/internal/store"
)

// JobCallDispatch is the runner job that hands a due call to the voice
// provider.
const JobCallDispatch = "call.dispatch"

// OutcomeRetriesExhausted marks a NO_ANSWER call whose retry budget is
// spent.
const OutcomeRetriesExhausted = "retries_exhausted"

// RetryPolicy bounds no-answer retries. MaxRetries counts retry calls,
// not total attempts.
type RetryPolicy struct {
	MaxRetries int
	RetryDelay time.Duration
}

var DefaultRetryPolicy = RetryPolicy{MaxRetries: 2, RetryDelay: 15 * time.Minute}

// SnapshotFunc captures the user's point-in-time context (streak, wallet
// headroom, goal) for embedding in a call at scheduling time.
type SnapshotFunc func(userID string) (json.RawMessage, error)

// Dialer places a call with the external voice provider and returns its
// provider-side call ID.
type Dialer interface {
	PlaceCall(ctx context.Context, c *model.Call) (string, error)
}

// allowed transitions out of each non-terminal state.
var transitions = map[model.CallStatus][]model.CallStatus{
	model.CallScheduled:  {model.CallInProgress, model.CallNoAnswer, model.CallCancelled, model.CallFailed},
	model.CallInProgress: {model.CallCompleted, model.CallFailed, model.CallNoAnswer},
}

func transitionAllowed(from, to model.CallStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Scheduler struct {
	calls    *store.CallStore
	users    *store.UserStore
	runner   jobs.Runner
	dialer   Dialer
	snapshot SnapshotFunc
	policy   RetryPolicy
	clk      clock.Clock
	logger   *slog.Logger
}

func NewScheduler(calls *store.CallStore, users *store.UserStore, runner jobs.Runner, dialer Dialer, snapshot SnapshotFunc, policy RetryPolicy, clk clock.Clock, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		calls:    calls,
		users:    users,
		runner:   runner,
		dialer:   dialer,
		snapshot: snapshot,
		policy:   policy,
		clk:      clk,
		logger:   logger,
	}
}

// Register wires the scheduler's dispatch handler into the job runner.
func (s *Scheduler) Register(r *jobs.TimerRunner) {
	r.Handle(JobCallDispatch, s.handleDispatch)
}

type dispatchPayload struct {
	CallID string `json:"call_id"`
}

// ScheduleCall creates a SCHEDULED call and enqueues its dispatch job.
// jobKey de-duplicates logical calls: scheduling an already-known key
// returns the existing call unchanged. An empty jobKey falls back to the
// call's own ID.
func (s *Scheduler) ScheduleCall(userID string, callType model.CallType, at time.Time, jobKey string) (*model.Call, error) {
	if jobKey != "" {
		existing, err := s.calls.GetByJobKey(jobKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			s.logger.Debug("call already scheduled", "job_key", jobKey)
			return existing, nil
		}
	}
	return s.create(userID, callType, at, jobKey, 0, nil)
}

func (s *Scheduler) create(userID string, callType model.CallType, at time.Time, jobKey string, attempt int, snapshot json.RawMessage) (*model.Call, error) {
	if snapshot == nil && s.snapshot != nil {
		snap, err := s.snapshot(userID)
		if err != nil {
			// A stale or missing snapshot must not block the call itself.
			s.logger.Warn("context snapshot failed", "user_id", userID, "error", err)
		} else {
			snapshot = snap
		}
	}

	c, err := s.calls.Create(&model.Call{
		UserID:          userID,
		CallType:        callType,
		Status:          model.CallScheduled,
		ScheduledAt:     at,
		ContextSnapshot: snapshot,
		Attempt:         attempt,
		JobKey:          jobKey,
	})
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(dispatchPayload{CallID: c.ID})
	if err != nil {
		return nil, fmt.Errorf("marshal dispatch payload: %w", err)
	}
	if err := s.runner.Enqueue(jobs.Job{
		Name:      JobCallDispatch,
		DedupeKey: c.JobKey,
		Payload:   payload,
		RunAt:     at,
	}); err != nil {
		return nil, fmt.Errorf("enqueue call dispatch: %w", err)
	}

	s.logger.Info("call scheduled",
		"call_id", c.ID, "user_id", userID, "type", string(callType), "at", at, "attempt", attempt)
	return c, nil
}

// recoverBatch bounds how many pending calls one recovery pass rebuilds.
const recoverBatch = 500

// RecoverPending re-enqueues dispatch jobs for SCHEDULED calls that are
// still in the future. The runner's timers are in-process and die with
// it; the rows survive, so a restart rebuilds their jobs from here.
// Returns how many jobs were enqueued.
func (s *Scheduler) RecoverPending() (int, error) {
	pending, err := s.calls.ListUpcoming(s.clk.Now(), recoverBatch)
	if err != nil {
		return 0, fmt.Errorf("recover pending calls: %w", err)
	}

	n := 0
	for _, c := range pending {
		payload, err := json.Marshal(dispatchPayload{CallID: c.ID})
		if err != nil {
			return n, fmt.Errorf("marshal dispatch payload: %w", err)
		}
		if err := s.runner.Enqueue(jobs.Job{
			Name:      JobCallDispatch,
			DedupeKey: c.JobKey,
			Payload:   payload,
			RunAt:     c.ScheduledAt,
		}); err != nil {
			return n, fmt.Errorf("enqueue recovered dispatch: %w", err)
		}
		n++
	}
	if n > 0 {
		s.logger.Info("pending calls recovered", "count", n)
	}
	return n, nil
}

// DailyJobKey is the stable dedupe key for one user's call of one type on
// one calendar day.
func DailyJobKey(userID string, callType model.CallType, date time.Time, loc *time.Location) string {
	return fmt.Sprintf("daily-%s-%s-%s", userID, callType, date.In(loc).Format("2006-01-02"))
}

// ScheduleDailyCalls enqueues the user's morning and evening calls for
// date at their configured local times. Calls whose time has already
// passed today, and calls already scheduled under the same key, are
// skipped. Re-running for the same date is idempotent.
func (s *Scheduler) ScheduleDailyCalls(userID string, date time.Time) ([]model.Call, error) {
	u, err := s.users.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("schedule daily calls: user %s not found", userID)
	}
	loc := clock.LocationFor(u.Timezone)
	now := s.clk.Now()

	slots := []struct {
		callType model.CallType
		hhmm     string
	}{
		{model.CallMorningPlanning, u.MorningCallTime},
		{model.CallEveningReview, u.EveningCallTime},
	}

	var scheduled []model.Call
	for _, slot := range slots {
		at, ok := clock.At(date, slot.hhmm, loc)
		if !ok {
			s.logger.Warn("unparseable call time", "user_id", userID, "type", string(slot.callType), "time", slot.hhmm)
			continue
		}
		if at.Before(now) {
			continue
		}

		key := DailyJobKey(userID, slot.callType, date, loc)
		existing, err := s.calls.GetByJobKey(key)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			continue
		}

		c, err := s.create(userID, slot.callType, at, key, 0, nil)
		if err != nil {
			return nil, err
		}
		scheduled = append(scheduled, *c)
	}
	return scheduled, nil
}

// ScheduleRescueCall books a RESCUE call a short delay from now, used
// after a skipped workout.
func (s *Scheduler) ScheduleRescueCall(userID string, delay time.Duration) (*model.Call, error) {
	at := s.clk.Now().Add(delay)
	key := fmt.Sprintf("rescue-%s-%d", userID, at.Unix())
	return s.ScheduleCall(userID, model.CallRescue, at, key)
}

// HandleMissedCall marks the call NO_ANSWER and, while the retry budget
// lasts, books a retry of the same type carrying the original context
// snapshot. A call already past SCHEDULED/IN_PROGRESS is treated as a
// duplicate webhook and ignored. Returns the retry call, or nil when
// none was created.
func (s *Scheduler) HandleMissedCall(callID string) (*model.Call, error) {
	c, err := s.calls.GetByID(callID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("handle missed call: call %s not found", callID)
	}
	if c.Status.Terminal() {
		s.logger.Info("duplicate no-answer ignored", "call_id", callID, "status", string(c.Status))
		return nil, nil
	}

	exhausted := c.Attempt >= s.policy.MaxRetries
	upd := store.CallUpdate{}
	if exhausted {
		outcome := OutcomeRetriesExhausted
		upd.Outcome = &outcome
	}
	if _, err := s.calls.UpdateStatus(callID, model.CallNoAnswer, upd); err != nil {
		return nil, err
	}

	if exhausted {
		s.logger.Info("no-answer retries exhausted", "call_id", callID, "user_id", c.UserID, "attempt", c.Attempt)
		return nil, nil
	}

	retryAt := s.clk.Now().Add(s.policy.RetryDelay)
	retryKey := fmt.Sprintf("%s-retry-%d", c.JobKey, c.Attempt+1)
	retry, err := s.create(c.UserID, c.CallType, retryAt, retryKey, c.Attempt+1, c.ContextSnapshot)
	if err != nil {
		return nil, fmt.Errorf("schedule retry: %w", err)
	}
	s.logger.Info("no-answer retry scheduled",
		"original", callID, "retry", retry.ID, "at", retryAt, "attempt", retry.Attempt)
	return retry, nil
}

// UpdateCallStatus applies a webhook-driven status change. Transitions
// out of a terminal state, and transitions the state machine does not
// allow, are logged and ignored so duplicated or out-of-order webhooks
// stay harmless. The call as stored afterwards is returned either way.
func (s *Scheduler) UpdateCallStatus(callID string, status model.CallStatus, upd store.CallUpdate) (*model.Call, error) {
	c, err := s.calls.GetByID(callID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("update call status: call %s not found", callID)
	}
	if !transitionAllowed(c.Status, status) {
		s.logger.Warn("invalid call transition ignored",
			"call_id", callID, "from", string(c.Status), "to", string(status))
		return c, nil
	}
	return s.calls.UpdateStatus(callID, status, upd)
}

// AttachAnalysis records the provider's post-call analysis on a finished
// call without changing its status. Analysis for a call that never
// completed is ignored.
func (s *Scheduler) AttachAnalysis(callID, outcome, sentiment, transcript string) (*model.Call, error) {
	c, err := s.calls.GetByID(callID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("attach analysis: call %s not found", callID)
	}
	if c.Status != model.CallCompleted {
		s.logger.Warn("analysis for uncompleted call ignored", "call_id", callID, "status", string(c.Status))
		return c, nil
	}
	return s.calls.UpdateStatus(callID, c.Status, store.CallUpdate{
		Outcome:    &outcome,
		Sentiment:  &sentiment,
		Transcript: &transcript,
	})
}

// CancelCall removes the pending dispatch job and marks the row
// CANCELLED. If the call already started or finished, the cancel is a
// no-op.
func (s *Scheduler) CancelCall(callID string) (*model.Call, error) {
	c, err := s.calls.GetByID(callID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("cancel call: call %s not found", callID)
	}
	if c.Status != model.CallScheduled {
		s.logger.Info("cancel is a no-op", "call_id", callID, "status", string(c.Status))
		return c, nil
	}

	s.runner.Cancel(c.JobKey)
	return s.calls.UpdateStatus(callID, model.CallCancelled, store.CallUpdate{})
}

// handleDispatch runs when a call's scheduled time arrives: it hands the
// call to the voice provider. Calls cancelled in the meantime are
// skipped.
func (s *Scheduler) handleDispatch(ctx context.Context, job jobs.Job) error {
	var p dispatchPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("decode dispatch payload: %w", err)
	}

	c, err := s.calls.GetByID(p.CallID)
	if err != nil {
		return err
	}
	if c == nil || c.Status != model.CallScheduled {
		s.logger.Debug("dispatch skipped", "call_id", p.CallID)
		return nil
	}
	if s.dialer == nil {
		s.logger.Warn("no dialer configured, call not placed", "call_id", c.ID)
		return nil
	}

	providerID, err := s.dialer.PlaceCall(ctx, c)
	if err != nil {
		return fmt.Errorf("place call %s: %w", c.ID, err)
	}
	_, err = s.calls.UpdateStatus(c.ID, model.CallScheduled, store.CallUpdate{ProviderCallID: &providerID})
	return err
}
