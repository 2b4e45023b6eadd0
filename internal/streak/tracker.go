// Package streak derives consecutive-day workout streaks from completion
// events. One streak row per user, created lazily on first completion and
// never deleted.
package streak

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/sweatpact/sweatpact/internal/clock"
	"github.com/sweatpact/sweatpact/internal/model"
	"github.com/sweatpact/sweatpact/internal/store"
)

type Tracker struct {
	streaks *store.StreakStore
	logger  *slog.Logger
}

func NewTracker(streaks *store.StreakStore, logger *slog.Logger) *Tracker {
	return &Tracker{streaks: streaks, logger: logger}
}

// RecordCompletion applies a workout completion dated workoutDate to the
// user's streak. Day boundaries are evaluated in loc. Same-day repeats are
// idempotent; a gap of two or more days, or a backdated completion, resets
// the run to 1 (most recent date wins).
func (t *Tracker) RecordCompletion(userID string, workoutDate time.Time, loc *time.Location) (*model.Streak, error) {
	s, err := t.streaks.Get(userID)
	if err != nil {
		return nil, fmt.Errorf("load streak: %w", err)
	}

	day := clock.StartOfDay(workoutDate, loc)

	if s == nil {
		s = &model.Streak{
			UserID:             userID,
			CurrentStreak:      1,
			CurrentStreakStart: &day,
			LongestStreak:      1,
			LongestStreakStart: &day,
			LastWorkoutDate:    &day,
		}
		saved, err := t.streaks.Save(s)
		if err != nil {
			return nil, err
		}
		t.logger.Info("streak started", "user_id", userID, "day", day.Format("2006-01-02"))
		return saved, nil
	}

	advance(s, day, loc)

	saved, err := t.streaks.Save(s)
	if err != nil {
		return nil, err
	}
	t.logger.Info("streak updated", "user_id", userID, "current", saved.CurrentStreak, "longest", saved.LongestStreak)
	return saved, nil
}

// RecordSkip zeroes the current run. The longest streak and claimed
// bonuses are untouched.
func (t *Tracker) RecordSkip(userID string) (*model.Streak, error) {
	s, err := t.streaks.Get(userID)
	if err != nil {
		return nil, fmt.Errorf("load streak: %w", err)
	}
	if s == nil {
		// Nothing to reset; report a zero streak without creating a row.
		return &model.Streak{UserID: userID}, nil
	}

	s.CurrentStreak = 0
	s.CurrentStreakStart = nil

	saved, err := t.streaks.Save(s)
	if err != nil {
		return nil, err
	}
	t.logger.Info("streak reset", "user_id", userID)
	return saved, nil
}

// Get returns the user's streak, or a zero-value streak if none exists yet.
func (t *Tracker) Get(userID string) (*model.Streak, error) {
	s, err := t.streaks.Get(userID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return &model.Streak{UserID: userID}, nil
	}
	return s, nil
}

// advance mutates s for a completion on day. s.LastWorkoutDate is assumed
// non-nil for existing rows; a row with no last date behaves like a reset.
func advance(s *model.Streak, day time.Time, loc *time.Location) {
	switch {
	case s.LastWorkoutDate == nil:
		s.CurrentStreak = 1
		s.CurrentStreakStart = &day
	default:
		switch daysSince := clock.DaysBetween(*s.LastWorkoutDate, day, loc); daysSince {
		case 0:
			// Same-day duplicate: no increment.
		case 1:
			s.CurrentStreak++
		default:
			// Gap or backdated completion: start over.
			s.CurrentStreak = 1
			s.CurrentStreakStart = &day
		}
	}

	if s.CurrentStreak > s.LongestStreak {
		s.LongestStreak = s.CurrentStreak
		s.LongestStreakStart = s.CurrentStreakStart
		s.LongestStreakEnd = nil
	}
	s.LastWorkoutDate = &day
}
