// Package engine sequences what happens when a workout is completed or
// skipped: streak update, completion donation, milestone bonuses, and
// the real-time notifications that follow.
package engine

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/sweatpact/sweatpact/internal/clock"
	"github.com/sweatpact/sweatpact/internal/donation"
	"github.com/sweatpact/sweatpact/internal/model"
	"github.com/sweatpact/sweatpact/internal/notify"
	"github.com/sweatpact/sweatpact/internal/store"
	"github.com/sweatpact/sweatpact/internal/streak"
	"github.com/sweatpact/sweatpact/internal/wallet"
	"github.com/sweatpact/sweatpact/internal/websocket"
)

const lockStripes = 64

// WorkoutResult is what a completion or skip produced: the workout as
// stored, the streak afterwards, and any donations created (completion
// first, then at most one newly crossed milestone bonus).
type WorkoutResult struct {
	Workout   *model.Workout   `json:"workout"`
	Streak    *model.Streak    `json:"streak"`
	Donations []model.Donation `json:"donations,omitempty"`
}

// WalletView is the read projection of a wallet with its computed
// remaining headroom.
type WalletView struct {
	model.ImpactWallet
	MonthRemaining model.Pence `json:"month_remaining"`
	TodaySpent     model.Pence `json:"today_spent"`
	TodayRemaining model.Pence `json:"today_remaining"`
}

// RescueScheduler books a short-notice coaching call after a skipped
// workout.
type RescueScheduler interface {
	ScheduleRescueCall(userID string, delay time.Duration) (*model.Call, error)
}

// rescueDelay is how long after a skip the rescue call is placed.
const rescueDelay = 30 * time.Minute

// Engine serializes the streak-then-donate sequence per user so two
// concurrent completions cannot double-award a milestone.
type Engine struct {
	users     *store.UserStore
	workouts  *store.WorkoutStore
	charities *store.CharityStore
	tracker   *streak.Tracker
	awarder   *donation.Awarder
	wallet    *wallet.Service
	hub       *websocket.Hub
	notifier  *notify.Service
	rescue    RescueScheduler
	clk       clock.Clock
	logger    *slog.Logger

	locks [lockStripes]sync.Mutex
}

// SetRescueScheduler wires the call scheduler in after construction; the
// scheduler itself needs the engine's Snapshot, so the two cannot be
// built in one pass.
func (e *Engine) SetRescueScheduler(r RescueScheduler) {
	e.rescue = r
}

func New(
	users *store.UserStore,
	workouts *store.WorkoutStore,
	charities *store.CharityStore,
	tracker *streak.Tracker,
	awarder *donation.Awarder,
	walletSvc *wallet.Service,
	hub *websocket.Hub,
	notifier *notify.Service,
	clk clock.Clock,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		users:     users,
		workouts:  workouts,
		charities: charities,
		tracker:   tracker,
		awarder:   awarder,
		wallet:    walletSvc,
		hub:       hub,
		notifier:  notifier,
		clk:       clk,
		logger:    logger,
	}
}

func (e *Engine) lockFor(userID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return &e.locks[h.Sum32()%lockStripes]
}

// CompleteWorkout applies a workout outcome. Completions and partials
// advance the streak and trigger donation evaluation; skips zero the
// streak. A failed donation award never reverts the recorded workout or
// streak: it is logged and the result returned without those donations.
func (e *Engine) CompleteWorkout(userID, workoutID string, status model.WorkoutStatus, reason string) (*WorkoutResult, error) {
	switch status {
	case model.WorkoutCompleted, model.WorkoutPartial, model.WorkoutSkipped:
	default:
		return nil, fmt.Errorf("complete workout: invalid outcome %q", status)
	}

	w, err := e.workouts.GetByID(workoutID)
	if err != nil {
		return nil, err
	}
	if w == nil || w.UserID != userID {
		return nil, fmt.Errorf("complete workout: workout %s not found for user %s", workoutID, userID)
	}
	u, err := e.users.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("complete workout: user %s not found", userID)
	}
	loc := clock.LocationFor(u.Timezone)

	mu := e.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	var completedAt *time.Time
	if status != model.WorkoutSkipped {
		now := e.clk.Now()
		completedAt = &now
	}
	w, err = e.workouts.MarkStatus(workoutID, status, reason, completedAt)
	if err != nil {
		return nil, err
	}

	if status == model.WorkoutSkipped {
		s, err := e.tracker.RecordSkip(userID)
		if err != nil {
			return nil, err
		}
		e.publishStreak(userID, s)
		// A failed rescue booking must not undo the recorded skip.
		if e.rescue != nil {
			if _, err := e.rescue.ScheduleRescueCall(userID, rescueDelay); err != nil {
				e.logger.Error("rescue call scheduling failed", "user_id", userID, "error", err)
			}
		}
		return &WorkoutResult{Workout: w, Streak: s}, nil
	}

	s, err := e.tracker.RecordCompletion(userID, w.PlannedDate, loc)
	if err != nil {
		return nil, err
	}
	e.publishStreak(userID, s)

	result := &WorkoutResult{Workout: w, Streak: s}

	// Donation failures are reconciled later, never propagated: the
	// user's completion already counts.
	var awardErr error

	d, err := e.awarder.AwardCompletion(userID, workoutID)
	awardErr = multierr.Append(awardErr, err)
	if d != nil {
		result.Donations = append(result.Donations, *d)
		e.publishDonation(userID, d)
	}

	for _, m := range model.MilestoneDays {
		if s.CurrentStreak < m {
			break
		}
		bonus, err := e.awarder.AwardStreakBonus(userID, m)
		awardErr = multierr.Append(awardErr, err)
		if bonus == nil {
			continue
		}
		// The claim flipped a flag on the stored streak row; keep the
		// returned copy in sync with it.
		s.SetBonusClaimed(m)
		result.Donations = append(result.Donations, *bonus)
		e.publishBonus(userID, m, bonus)
	}

	if awardErr != nil {
		e.logger.Error("donation awards incomplete", "user_id", userID, "workout_id", workoutID, "error", awardErr)
	}
	return result, nil
}

// GetStreak returns the user's streak, zero-valued if none exists.
func (e *Engine) GetStreak(userID string) (*model.Streak, error) {
	return e.tracker.Get(userID)
}

// GetImpactWallet returns the wallet projection with remaining monthly
// and daily headroom.
func (e *Engine) GetImpactWallet(userID string) (*WalletView, error) {
	u, err := e.users.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("get wallet: user %s not found", userID)
	}
	loc := clock.LocationFor(u.Timezone)

	w, err := e.wallet.Get(userID, loc)
	if err != nil {
		return nil, err
	}
	today, err := e.wallet.TodayTotal(userID, loc)
	if err != nil {
		return nil, err
	}

	view := &WalletView{
		ImpactWallet:   *w,
		MonthRemaining: w.MonthRemaining(),
		TodaySpent:     today,
	}
	if r := w.DailyCap - today; r > 0 {
		view.TodayRemaining = r
	}
	return view, nil
}

// SetWalletLimits applies admin-configured caps and returns the
// refreshed wallet projection.
func (e *Engine) SetWalletLimits(userID string, monthlyLimit, dailyCap model.Pence) (*WalletView, error) {
	u, err := e.users.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("set wallet limits: user %s not found", userID)
	}
	if _, err := e.wallet.SetLimits(userID, monthlyLimit, dailyCap, clock.LocationFor(u.Timezone)); err != nil {
		return nil, err
	}
	return e.GetImpactWallet(userID)
}

// Snapshot builds the point-in-time context embedded in a call at
// scheduling time.
func (e *Engine) Snapshot(userID string) (json.RawMessage, error) {
	u, err := e.users.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("snapshot: user %s not found", userID)
	}
	s, err := e.tracker.Get(userID)
	if err != nil {
		return nil, err
	}
	view, err := e.GetImpactWallet(userID)
	if err != nil {
		return nil, err
	}

	loc := clock.LocationFor(u.Timezone)
	weekCount, err := e.workouts.CountCompletedSince(userID, clock.StartOfWeek(e.clk.Now(), loc))
	if err != nil {
		return nil, err
	}

	snap := map[string]any{
		"name":                  strings.TrimSpace(u.FirstName + " " + u.LastName),
		"current_streak":        s.CurrentStreak,
		"longest_streak":        s.LongestStreak,
		"workouts_this_week":    weekCount,
		"month_remaining_pence": view.MonthRemaining,
		"today_remaining_pence": view.TodayRemaining,
		"lifetime_donated":      view.LifetimeDonated,
		"goal":                  u.Goal,
		"track":                 u.Track,
		"minimum_mode":          u.MinimumMode,
		"gift_frame":            u.GiftFrame,
	}
	if u.PreferredCharityID != nil {
		if c, err := e.charities.GetByID(*u.PreferredCharityID); err == nil && c != nil {
			snap["charity_name"] = c.Name
			snap["charity_impact_metric"] = c.ImpactMetric
		}
	}
	return json.Marshal(snap)
}

func (e *Engine) publishStreak(userID string, s *model.Streak) {
	if e.hub == nil {
		return
	}
	e.hub.Send(userID, websocket.Message{
		Type: websocket.EventStreakUpdated,
		Data: map[string]any{"current_streak": s.CurrentStreak, "longest_streak": s.LongestStreak},
	})
}

func (e *Engine) publishDonation(userID string, d *model.Donation) {
	if e.hub != nil {
		e.hub.Send(userID, websocket.Message{
			Type: websocket.EventDonationMade,
			Data: map[string]any{"donation_id": d.ID, "amount": int64(d.Amount)},
		})
	}
	if e.notifier != nil {
		name := ""
		if c, err := e.charities.GetByID(d.CharityID); err == nil && c != nil {
			name = c.Name
		}
		e.notifier.NotifyDonation(userID, d.Amount, name)
	}
}

func (e *Engine) publishBonus(userID string, days int, d *model.Donation) {
	if e.hub != nil {
		e.hub.Send(userID, websocket.Message{
			Type: websocket.EventBonusAwarded,
			Data: map[string]any{"days": days, "amount": int64(d.Amount)},
		})
	}
	if e.notifier != nil {
		e.notifier.NotifyMilestoneBonus(userID, days, d.Amount)
	}
}
