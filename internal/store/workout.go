package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sweatpact/sweatpact/internal/model"
)

type WorkoutStore struct {
	db Querier
}

func NewWorkoutStore(db Querier) *WorkoutStore {
	return &WorkoutStore{db: db}
}

func scanWorkout(scanner interface{ Scan(...any) error }) (*model.Workout, error) {
	var w model.Workout
	var isMinimum int
	var completedAt sql.NullTime

	err := scanner.Scan(
		&w.ID, &w.UserID, &w.PlannedDate, &w.PlannedTime, &w.Activity,
		&w.Duration, &isMinimum, &w.Status, &w.SkippedReason, &completedAt,
		&w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	w.IsMinimum = isMinimum != 0
	if completedAt.Valid {
		w.CompletedAt = &completedAt.Time
	}
	return &w, nil
}

const workoutCols = `id, user_id, planned_date, planned_time, activity, duration, is_minimum, status, skipped_reason, completed_at, created_at, updated_at`

func (s *WorkoutStore) Create(w *model.Workout) (*model.Workout, error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.Status == "" {
		w.Status = model.WorkoutPlanned
	}
	now := time.Now().UTC()

	_, err := s.db.Exec(
		`INSERT INTO workouts (id, user_id, planned_date, planned_time, activity, duration, is_minimum, status, skipped_reason, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.UserID, w.PlannedDate.UTC(), w.PlannedTime, w.Activity,
		w.Duration, boolToInt(w.IsMinimum), w.Status, w.SkippedReason, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert workout: %w", err)
	}
	return s.GetByID(w.ID)
}

func (s *WorkoutStore) GetByID(id string) (*model.Workout, error) {
	row := s.db.QueryRow(`SELECT `+workoutCols+` FROM workouts WHERE id = ?`, id)
	w, err := scanWorkout(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get workout: %w", err)
	}
	return w, nil
}

// MarkStatus records the outcome of a workout. completedAt is set only for
// COMPLETED and PARTIAL outcomes.
func (s *WorkoutStore) MarkStatus(id string, status model.WorkoutStatus, skippedReason string, completedAt *time.Time) (*model.Workout, error) {
	var done sql.NullTime
	if completedAt != nil {
		done = sql.NullTime{Time: completedAt.UTC(), Valid: true}
	}

	_, err := s.db.Exec(
		`UPDATE workouts SET status = ?, skipped_reason = ?, completed_at = ?, updated_at = ? WHERE id = ?`,
		status, skippedReason, done, time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("mark workout status: %w", err)
	}
	return s.GetByID(id)
}

// CountCompletedSince counts workouts completed or partially completed at
// or after the given instant.
func (s *WorkoutStore) CountCompletedSince(userID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM workouts WHERE user_id = ? AND status IN ('COMPLETED', 'PARTIAL') AND completed_at >= ?`,
		userID, since.UTC(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count completed workouts: %w", err)
	}
	return n, nil
}
