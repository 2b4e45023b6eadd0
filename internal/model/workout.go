package model

import "time"

type WorkoutStatus string

const (
	WorkoutPlanned   WorkoutStatus = "PLANNED"
	WorkoutCompleted WorkoutStatus = "COMPLETED"
	WorkoutPartial   WorkoutStatus = "PARTIAL"
	WorkoutSkipped   WorkoutStatus = "SKIPPED"
)

type Workout struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	PlannedDate   time.Time     `json:"planned_date"`
	PlannedTime   string        `json:"planned_time"` // "HH:MM", optional
	Activity      string        `json:"activity"`
	Duration      int           `json:"duration"` // minutes
	IsMinimum     bool          `json:"is_minimum"`
	Status        WorkoutStatus `json:"status"`
	SkippedReason string        `json:"skipped_reason,omitempty"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}
