package model

import "time"

type Tier string

const (
	TierFree      Tier = "FREE"
	TierPro       Tier = "PRO"
	TierElite     Tier = "ELITE"
	TierConcierge Tier = "CONCIERGE"
	TierB2B       Tier = "B2B"
)

type User struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email"`
	FirstName          string    `json:"first_name"`
	LastName           string    `json:"last_name"`
	Phone              string    `json:"phone"`
	Timezone           string    `json:"timezone"`
	SubscriptionTier   Tier      `json:"subscription_tier"`
	StripeCustomerID   string    `json:"stripe_customer_id,omitempty"`
	Track              string    `json:"track"`
	Goal               string    `json:"goal"`
	MinimumMode        string    `json:"minimum_mode"`
	GiftFrame          string    `json:"gift_frame"`
	MorningCallTime    string    `json:"morning_call_time"` // "HH:MM" in the user's timezone, empty = no call
	EveningCallTime    string    `json:"evening_call_time"`
	PreferredCharityID *string   `json:"preferred_charity_id"`
	IsActive           bool      `json:"is_active"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}
