package model

import "time"

// Default caps applied when a wallet is created lazily on first donation.
const (
	DefaultMonthlyLimit Pence = 2000 // £20.00
	DefaultDailyCap     Pence = 300  // £3.00
)

// ImpactWallet is the per-user capped donation budget. currentMonthSpent
// never exceeds monthlyLimit after a successful commit, and lifetimeDonated
// only grows.
type ImpactWallet struct {
	UserID            string    `json:"user_id"`
	MonthlyLimit      Pence     `json:"monthly_limit"`
	DailyCap          Pence     `json:"daily_cap"`
	CurrentMonthSpent Pence     `json:"current_month_spent"`
	MonthStartDate    time.Time `json:"month_start_date"`
	LifetimeDonated   Pence     `json:"lifetime_donated"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// MonthRemaining is the headroom left under the monthly limit.
func (w *ImpactWallet) MonthRemaining() Pence {
	if r := w.MonthlyLimit - w.CurrentMonthSpent; r > 0 {
		return r
	}
	return 0
}
