package store

import (
	"testing"
	"time"

	"github.com/sweatpact/sweatpact/internal/model"
)

func TestDonationCreateAndSum(t *testing.T) {
	db := setupTestDB(t)
	user, charity := seedUser(t, db, "donor@example.com")
	ds := NewDonationStore(db)

	base := time.Date(2025, 4, 10, 9, 0, 0, 0, time.UTC)

	for i, amount := range []model.Pence{100, 150, 200} {
		_, err := ds.Create(&model.Donation{
			UserID:       user.ID,
			CharityID:    charity.ID,
			Amount:       amount,
			DonationType: model.DonationCompletion,
			CreatedAt:    base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("create donation: %v", err)
		}
	}

	dayStart := time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)

	total, err := ds.SumInRange(user.ID, dayStart, dayEnd)
	if err != nil {
		t.Fatalf("sum in range: %v", err)
	}
	if total != 450 {
		t.Errorf("total = %d, want 450", total)
	}

	count, err := ds.CountInRange(user.ID, dayStart, dayEnd)
	if err != nil {
		t.Fatalf("count in range: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}

	// Range is half-open: a donation exactly at dayEnd is excluded
	if _, err := ds.Create(&model.Donation{
		UserID:       user.ID,
		CharityID:    charity.ID,
		Amount:       999,
		DonationType: model.DonationCompletion,
		CreatedAt:    dayEnd,
	}); err != nil {
		t.Fatalf("create boundary donation: %v", err)
	}
	total, err = ds.SumInRange(user.ID, dayStart, dayEnd)
	if err != nil {
		t.Fatalf("sum in range: %v", err)
	}
	if total != 450 {
		t.Errorf("total after boundary insert = %d, want 450", total)
	}
}

func TestDonationFields(t *testing.T) {
	db := setupTestDB(t)
	user, charity := seedUser(t, db, "fields@example.com")
	ds := NewDonationStore(db)

	days := 7
	workoutID := "w-123"
	d, err := ds.Create(&model.Donation{
		UserID:       user.ID,
		CharityID:    charity.ID,
		Amount:       300,
		DonationType: model.DonationStreak7Day,
		WorkoutID:    &workoutID,
		StreakDays:   &days,
	})
	if err != nil {
		t.Fatalf("create donation: %v", err)
	}

	if d.ID == "" {
		t.Error("expected generated id")
	}
	if d.Currency != "GBP" {
		t.Errorf("currency = %q, want GBP", d.Currency)
	}
	if d.StreakDays == nil || *d.StreakDays != 7 {
		t.Errorf("streak_days = %v, want 7", d.StreakDays)
	}
	if d.WorkoutID == nil || *d.WorkoutID != "w-123" {
		t.Errorf("workout_id = %v, want w-123", d.WorkoutID)
	}
}

func TestDonationSumLifetime(t *testing.T) {
	db := setupTestDB(t)
	user, charity := seedUser(t, db, "lifetime@example.com")
	ds := NewDonationStore(db)

	for _, amount := range []model.Pence{100, 300} {
		if _, err := ds.Create(&model.Donation{
			UserID:       user.ID,
			CharityID:    charity.ID,
			Amount:       amount,
			DonationType: model.DonationManual,
		}); err != nil {
			t.Fatalf("create donation: %v", err)
		}
	}

	total, err := ds.SumLifetime(user.ID)
	if err != nil {
		t.Fatalf("sum lifetime: %v", err)
	}
	if total != 400 {
		t.Errorf("lifetime = %d, want 400", total)
	}
}
