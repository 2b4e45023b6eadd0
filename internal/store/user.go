package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sweatpact/sweatpact/internal/model"
)

type UserStore struct {
	db Querier
}

func NewUserStore(db Querier) *UserStore {
	return &UserStore{db: db}
}

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	var preferredCharity sql.NullString
	var active int

	err := scanner.Scan(
		&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Phone, &u.Timezone,
		&u.SubscriptionTier, &u.StripeCustomerID, &u.Track, &u.Goal,
		&u.MinimumMode, &u.GiftFrame, &u.MorningCallTime, &u.EveningCallTime,
		&preferredCharity, &active, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if preferredCharity.Valid {
		u.PreferredCharityID = &preferredCharity.String
	}
	u.IsActive = active != 0
	return &u, nil
}

const userCols = `id, email, first_name, last_name, phone, timezone, subscription_tier, stripe_customer_id, track, goal, minimum_mode, gift_frame, morning_call_time, evening_call_time, preferred_charity_id, is_active, created_at, updated_at`

func (s *UserStore) Create(u *model.User) (*model.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.SubscriptionTier == "" {
		u.SubscriptionTier = model.TierFree
	}
	now := time.Now().UTC()

	var preferredCharity sql.NullString
	if u.PreferredCharityID != nil {
		preferredCharity = sql.NullString{String: *u.PreferredCharityID, Valid: true}
	}

	_, err := s.db.Exec(
		`INSERT INTO users (id, email, first_name, last_name, phone, timezone, subscription_tier, stripe_customer_id, track, goal, minimum_mode, gift_frame, morning_call_time, evening_call_time, preferred_charity_id, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.FirstName, u.LastName, u.Phone, u.Timezone,
		u.SubscriptionTier, u.StripeCustomerID, u.Track, u.Goal,
		u.MinimumMode, u.GiftFrame, u.MorningCallTime, u.EveningCallTime,
		preferredCharity, boolToInt(u.IsActive), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return s.GetByID(u.ID)
}

func (s *UserStore) GetByID(id string) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByStripeCustomerID(customerID string) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE stripe_customer_id = ?`, customerID)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by stripe customer: %w", err)
	}
	return u, nil
}

// ListActive returns all active users, ordered by creation.
func (s *UserStore) ListActive() ([]model.User, error) {
	rows, err := s.db.Query(`SELECT ` + userCols + ` FROM users WHERE is_active = 1 ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// SetSubscriptionTier updates the stored tier, the fallback used when
// Stripe cannot be consulted.
func (s *UserStore) SetSubscriptionTier(userID string, t model.Tier) error {
	_, err := s.db.Exec(
		`UPDATE users SET subscription_tier = ?, updated_at = ? WHERE id = ?`,
		t, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("set subscription tier: %w", err)
	}
	return nil
}

func (s *UserStore) SetPreferredCharity(userID string, charityID *string) error {
	var v sql.NullString
	if charityID != nil {
		v = sql.NullString{String: *charityID, Valid: true}
	}
	_, err := s.db.Exec(
		`UPDATE users SET preferred_charity_id = ?, updated_at = ? WHERE id = ?`,
		v, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("set preferred charity: %w", err)
	}
	return nil
}
