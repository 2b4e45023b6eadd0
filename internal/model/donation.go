package model

import "time"

type DonationType string

const (
	DonationCompletion  DonationType = "COMPLETION"
	DonationStreak7Day  DonationType = "STREAK_7_DAY"
	DonationStreak30Day DonationType = "STREAK_30_DAY"
	DonationStreak90Day DonationType = "STREAK_90_DAY"
	DonationManual      DonationType = "MANUAL"
)

// Donation is an append-only ledger row. Once created it is never updated
// or deleted.
type Donation struct {
	ID           string       `json:"id"`
	UserID       string       `json:"user_id"`
	CharityID    string       `json:"charity_id"`
	Amount       Pence        `json:"amount"`
	Currency     string       `json:"currency"`
	DonationType DonationType `json:"donation_type"`
	WorkoutID    *string      `json:"workout_id,omitempty"`
	StreakDays   *int         `json:"streak_days,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}
