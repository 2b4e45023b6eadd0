package model

import (
	"encoding/json"
	"time"
)

type CallType string

const (
	CallMorningPlanning CallType = "MORNING_PLANNING"
	CallEveningReview   CallType = "EVENING_REVIEW"
	CallRescue          CallType = "RESCUE"
	CallWeeklyPlanning  CallType = "WEEKLY_PLANNING"
	CallMonthlyCheckin  CallType = "MONTHLY_CHECKIN"
	CallOnboarding      CallType = "ONBOARDING"
)

type CallStatus string

const (
	CallScheduled  CallStatus = "SCHEDULED"
	CallInProgress CallStatus = "IN_PROGRESS"
	CallCompleted  CallStatus = "COMPLETED"
	CallNoAnswer   CallStatus = "NO_ANSWER"
	CallFailed     CallStatus = "FAILED"
	CallCancelled  CallStatus = "CANCELLED"
)

// Terminal reports whether no further status change is allowed from s.
// A NO_ANSWER row is terminal too: its retry is a new call, not a
// transition of the old one.
func (s CallStatus) Terminal() bool {
	switch s {
	case CallCompleted, CallFailed, CallCancelled, CallNoAnswer:
		return true
	}
	return false
}

// Call is one scheduled coaching call. ContextSnapshot is captured once at
// scheduling time and never refreshed.
type Call struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	CallType        CallType        `json:"call_type"`
	Status          CallStatus      `json:"status"`
	ScheduledAt     time.Time       `json:"scheduled_at"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	EndedAt         *time.Time      `json:"ended_at,omitempty"`
	Duration        *int            `json:"duration,omitempty"` // seconds
	Outcome         string          `json:"outcome,omitempty"`
	Sentiment       string          `json:"sentiment,omitempty"`
	Transcript      string          `json:"transcript,omitempty"`
	ContextSnapshot json.RawMessage `json:"context_snapshot,omitempty"`
	Attempt         int             `json:"attempt"` // 0 for the original call, 1.. for retries
	JobKey          string          `json:"job_key"`
	ProviderCallID  string          `json:"provider_call_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}
