package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sweatpact/sweatpact/internal/model"
)

// DonationStore is append-only: donations are never updated or deleted.
type DonationStore struct {
	db Querier
}

func NewDonationStore(db Querier) *DonationStore {
	return &DonationStore{db: db}
}

func scanDonation(scanner interface{ Scan(...any) error }) (*model.Donation, error) {
	var d model.Donation
	var workoutID sql.NullString
	var streakDays sql.NullInt64

	err := scanner.Scan(
		&d.ID, &d.UserID, &d.CharityID, &d.Amount, &d.Currency,
		&d.DonationType, &workoutID, &streakDays, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if workoutID.Valid {
		d.WorkoutID = &workoutID.String
	}
	if streakDays.Valid {
		days := int(streakDays.Int64)
		d.StreakDays = &days
	}
	return &d, nil
}

const donationCols = `id, user_id, charity_id, amount, currency, donation_type, workout_id, streak_days, created_at`

func (s *DonationStore) Create(d *model.Donation) (*model.Donation, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Currency == "" {
		d.Currency = "GBP"
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	var workoutID sql.NullString
	if d.WorkoutID != nil {
		workoutID = sql.NullString{String: *d.WorkoutID, Valid: true}
	}
	var streakDays sql.NullInt64
	if d.StreakDays != nil {
		streakDays = sql.NullInt64{Int64: int64(*d.StreakDays), Valid: true}
	}

	_, err := s.db.Exec(
		`INSERT INTO donations (id, user_id, charity_id, amount, currency, donation_type, workout_id, streak_days, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.UserID, d.CharityID, d.Amount, d.Currency,
		d.DonationType, workoutID, streakDays, d.CreatedAt.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert donation: %w", err)
	}
	return s.GetByID(d.ID)
}

func (s *DonationStore) GetByID(id string) (*model.Donation, error) {
	row := s.db.QueryRow(`SELECT `+donationCols+` FROM donations WHERE id = ?`, id)
	d, err := scanDonation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get donation: %w", err)
	}
	return d, nil
}

// SumInRange totals a user's donations with created_at in [from, to).
func (s *DonationStore) SumInRange(userID string, from, to time.Time) (model.Pence, error) {
	var total int64
	err := s.db.QueryRow(
		`SELECT COALESCE(SUM(amount), 0) FROM donations WHERE user_id = ? AND created_at >= ? AND created_at < ?`,
		userID, from.UTC(), to.UTC(),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum donations: %w", err)
	}
	return model.Pence(total), nil
}

// CountInRange counts a user's donations with created_at in [from, to).
func (s *DonationStore) CountInRange(userID string, from, to time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM donations WHERE user_id = ? AND created_at >= ? AND created_at < ?`,
		userID, from.UTC(), to.UTC(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count donations: %w", err)
	}
	return n, nil
}

// SumLifetime totals all of a user's donations.
func (s *DonationStore) SumLifetime(userID string) (model.Pence, error) {
	var total int64
	err := s.db.QueryRow(
		`SELECT COALESCE(SUM(amount), 0) FROM donations WHERE user_id = ?`,
		userID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum lifetime donations: %w", err)
	}
	return model.Pence(total), nil
}

// ListByUser returns the most recent donations first.
func (s *DonationStore) ListByUser(userID string, limit int) ([]model.Donation, error) {
	rows, err := s.db.Query(
		`SELECT `+donationCols+` FROM donations WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list donations: %w", err)
	}
	defer rows.Close()

	var donations []model.Donation
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan donation: %w", err)
		}
		donations = append(donations, *d)
	}
	return donations, rows.Err()
}
