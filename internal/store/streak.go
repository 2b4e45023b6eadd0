package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/sweatpact/sweatpact/internal/model"
)

type StreakStore struct {
	db Querier
}

func NewStreakStore(db Querier) *StreakStore {
	return &StreakStore{db: db}
}

func scanStreak(scanner interface{ Scan(...any) error }) (*model.Streak, error) {
	var s model.Streak
	var currentStart, longestStart, longestEnd, lastWorkout sql.NullTime
	var b7, b30, b90 int

	err := scanner.Scan(
		&s.UserID, &s.CurrentStreak, &currentStart, &s.LongestStreak,
		&longestStart, &longestEnd, &lastWorkout, &b7, &b30, &b90,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if currentStart.Valid {
		s.CurrentStreakStart = &currentStart.Time
	}
	if longestStart.Valid {
		s.LongestStreakStart = &longestStart.Time
	}
	if longestEnd.Valid {
		s.LongestStreakEnd = &longestEnd.Time
	}
	if lastWorkout.Valid {
		s.LastWorkoutDate = &lastWorkout.Time
	}
	s.Bonus7DayClaimed = b7 != 0
	s.Bonus30DayClaimed = b30 != 0
	s.Bonus90DayClaimed = b90 != 0
	return &s, nil
}

const streakCols = `user_id, current_streak, current_streak_start, longest_streak, longest_streak_start, longest_streak_end, last_workout_date, bonus_7_day_claimed, bonus_30_day_claimed, bonus_90_day_claimed, created_at, updated_at`

func (s *StreakStore) Get(userID string) (*model.Streak, error) {
	row := s.db.QueryRow(`SELECT `+streakCols+` FROM streaks WHERE user_id = ?`, userID)
	st, err := scanStreak(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get streak: %w", err)
	}
	return st, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// Save upserts a streak row. The row is keyed by user; one per user, never
// deleted.
func (s *StreakStore) Save(st *model.Streak) (*model.Streak, error) {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO streaks (user_id, current_streak, current_streak_start, longest_streak, longest_streak_start, longest_streak_end, last_workout_date, bonus_7_day_claimed, bonus_30_day_claimed, bonus_90_day_claimed, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   current_streak = excluded.current_streak,
		   current_streak_start = excluded.current_streak_start,
		   longest_streak = excluded.longest_streak,
		   longest_streak_start = excluded.longest_streak_start,
		   longest_streak_end = excluded.longest_streak_end,
		   last_workout_date = excluded.last_workout_date,
		   bonus_7_day_claimed = excluded.bonus_7_day_claimed,
		   bonus_30_day_claimed = excluded.bonus_30_day_claimed,
		   bonus_90_day_claimed = excluded.bonus_90_day_claimed,
		   updated_at = excluded.updated_at`,
		st.UserID, st.CurrentStreak, nullTime(st.CurrentStreakStart),
		st.LongestStreak, nullTime(st.LongestStreakStart), nullTime(st.LongestStreakEnd),
		nullTime(st.LastWorkoutDate), boolToInt(st.Bonus7DayClaimed),
		boolToInt(st.Bonus30DayClaimed), boolToInt(st.Bonus90DayClaimed),
		now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("save streak: %w", err)
	}
	return s.Get(st.UserID)
}

// ClaimBonus sets a milestone claimed flag. Flags are monotonic: the update
// only ever turns them on.
func (s *StreakStore) ClaimBonus(userID string, days int) error {
	var col string
	switch days {
	case 7:
		col = "bonus_7_day_claimed"
	case 30:
		col = "bonus_30_day_claimed"
	case 90:
		col = "bonus_90_day_claimed"
	default:
		return fmt.Errorf("no bonus for %d-day streak", days)
	}

	_, err := s.db.Exec(
		`UPDATE streaks SET `+col+` = 1, updated_at = ? WHERE user_id = ?`,
		time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("claim %d-day bonus: %w", days, err)
	}
	return nil
}
