package streak

import (
	"database/sql"
	"log/slog"
	"testing"
	"time"

	"github.com/sweatpact/sweatpact/internal/database"
	"github.com/sweatpact/sweatpact/internal/model"
	"github.com/sweatpact/sweatpact/internal/store"
)

func setupTracker(t *testing.T) (*Tracker, *sql.DB, string) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	user, err := store.NewUserStore(db).Create(&model.User{
		Email:    "runner@example.com",
		IsActive: true,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	tracker := NewTracker(store.NewStreakStore(db), slog.Default())
	return tracker, db, user.ID
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 10, 0, 0, 0, time.UTC)
}

func TestFirstCompletionCreatesStreak(t *testing.T) {
	tracker, _, userID := setupTracker(t)

	s, err := tracker.RecordCompletion(userID, day(2025, 3, 1), time.UTC)
	if err != nil {
		t.Fatalf("record completion: %v", err)
	}
	if s.CurrentStreak != 1 || s.LongestStreak != 1 {
		t.Errorf("streak = %d/%d, want 1/1", s.CurrentStreak, s.LongestStreak)
	}
	if s.CurrentStreakStart == nil {
		t.Fatal("expected streak start")
	}
	want := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	if !s.CurrentStreakStart.Equal(want) {
		t.Errorf("start = %v, want %v", s.CurrentStreakStart, want)
	}
}

func TestConsecutiveDaysIncrement(t *testing.T) {
	tracker, _, userID := setupTracker(t)

	var s *model.Streak
	var err error
	for d := 1; d <= 5; d++ {
		s, err = tracker.RecordCompletion(userID, day(2025, 3, d), time.UTC)
		if err != nil {
			t.Fatalf("day %d: %v", d, err)
		}
	}
	if s.CurrentStreak != 5 {
		t.Errorf("current = %d, want 5", s.CurrentStreak)
	}
	if s.LongestStreak != 5 {
		t.Errorf("longest = %d, want 5", s.LongestStreak)
	}
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	if s.CurrentStreakStart == nil || !s.CurrentStreakStart.Equal(start) {
		t.Errorf("start = %v, want %v (kept across increments)", s.CurrentStreakStart, start)
	}
}

func TestSameDayIsIdempotent(t *testing.T) {
	tracker, _, userID := setupTracker(t)

	if _, err := tracker.RecordCompletion(userID, day(2025, 3, 1), time.UTC); err != nil {
		t.Fatal(err)
	}
	s, err := tracker.RecordCompletion(userID, day(2025, 3, 1).Add(6*time.Hour), time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if s.CurrentStreak != 1 {
		t.Errorf("current = %d, want 1 after same-day duplicate", s.CurrentStreak)
	}
}

func TestGapResetsToOne(t *testing.T) {
	tracker, _, userID := setupTracker(t)

	for d := 1; d <= 3; d++ {
		if _, err := tracker.RecordCompletion(userID, day(2025, 3, d), time.UTC); err != nil {
			t.Fatal(err)
		}
	}
	// Skip March 4th entirely
	s, err := tracker.RecordCompletion(userID, day(2025, 3, 5), time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if s.CurrentStreak != 1 {
		t.Errorf("current = %d, want 1 after gap", s.CurrentStreak)
	}
	if s.LongestStreak != 3 {
		t.Errorf("longest = %d, want 3 (high-water mark survives reset)", s.LongestStreak)
	}
	newStart := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)
	if s.CurrentStreakStart == nil || !s.CurrentStreakStart.Equal(newStart) {
		t.Errorf("start = %v, want %v", s.CurrentStreakStart, newStart)
	}
}

func TestBackdatedCompletionResets(t *testing.T) {
	tracker, _, userID := setupTracker(t)

	for d := 1; d <= 4; d++ {
		if _, err := tracker.RecordCompletion(userID, day(2025, 3, d), time.UTC); err != nil {
			t.Fatal(err)
		}
	}
	// Completion dated before the last workout: most recent date wins,
	// so the run restarts from the backdated day.
	s, err := tracker.RecordCompletion(userID, day(2025, 3, 2), time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if s.CurrentStreak != 1 {
		t.Errorf("current = %d, want 1 after backdated completion", s.CurrentStreak)
	}
	backDay := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	if s.LastWorkoutDate == nil || !s.LastWorkoutDate.Equal(backDay) {
		t.Errorf("last = %v, want %v", s.LastWorkoutDate, backDay)
	}
}

func TestLongestIsHighWaterMark(t *testing.T) {
	tracker, _, userID := setupTracker(t)

	// Build a 3-day run, break it, build a 2-day run
	for d := 1; d <= 3; d++ {
		if _, err := tracker.RecordCompletion(userID, day(2025, 3, d), time.UTC); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := tracker.RecordCompletion(userID, day(2025, 3, 10), time.UTC); err != nil {
		t.Fatal(err)
	}
	s, err := tracker.RecordCompletion(userID, day(2025, 3, 11), time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if s.CurrentStreak != 2 {
		t.Errorf("current = %d, want 2", s.CurrentStreak)
	}
	if s.LongestStreak != 3 {
		t.Errorf("longest = %d, want 3", s.LongestStreak)
	}

	// Exceed the old record: longest follows, and its start tracks the
	// current run.
	for d := 12; d <= 13; d++ {
		if s, err = tracker.RecordCompletion(userID, day(2025, 3, d), time.UTC); err != nil {
			t.Fatal(err)
		}
	}
	if s.CurrentStreak != 4 || s.LongestStreak != 4 {
		t.Errorf("streak = %d/%d, want 4/4", s.CurrentStreak, s.LongestStreak)
	}
	runStart := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	if s.LongestStreakStart == nil || !s.LongestStreakStart.Equal(runStart) {
		t.Errorf("longest start = %v, want %v", s.LongestStreakStart, runStart)
	}
	if s.LongestStreakEnd != nil {
		t.Error("longest end should be cleared while the record run is live")
	}
}

func TestRecordSkip(t *testing.T) {
	tracker, _, userID := setupTracker(t)

	for d := 1; d <= 3; d++ {
		if _, err := tracker.RecordCompletion(userID, day(2025, 3, d), time.UTC); err != nil {
			t.Fatal(err)
		}
	}

	s, err := tracker.RecordSkip(userID)
	if err != nil {
		t.Fatalf("record skip: %v", err)
	}
	if s.CurrentStreak != 0 {
		t.Errorf("current = %d, want 0 after skip", s.CurrentStreak)
	}
	if s.CurrentStreakStart != nil {
		t.Error("streak start should be cleared on skip")
	}
	if s.LongestStreak != 3 {
		t.Errorf("longest = %d, want 3 (untouched by skip)", s.LongestStreak)
	}
	if s.LastWorkoutDate == nil {
		t.Error("last workout date should survive a skip")
	}
}

func TestRecordSkipWithoutStreak(t *testing.T) {
	tracker, db, userID := setupTracker(t)

	s, err := tracker.RecordSkip(userID)
	if err != nil {
		t.Fatalf("record skip: %v", err)
	}
	if s.CurrentStreak != 0 {
		t.Errorf("current = %d, want 0", s.CurrentStreak)
	}

	// A skip before any completion must not create a row
	stored, err := store.NewStreakStore(db).Get(userID)
	if err != nil {
		t.Fatalf("get streak: %v", err)
	}
	if stored != nil {
		t.Error("skip should not create a streak row")
	}
}

func TestRunLengthProperty(t *testing.T) {
	tracker, _, userID := setupTracker(t)

	// Any unbroken run of daily completions yields a streak equal to the
	// run length.
	var s *model.Streak
	var err error
	for d := 0; d < 12; d++ {
		s, err = tracker.RecordCompletion(userID, day(2025, 6, 1).AddDate(0, 0, d), time.UTC)
		if err != nil {
			t.Fatal(err)
		}
		if s.CurrentStreak != d+1 {
			t.Fatalf("after %d days: current = %d, want %d", d+1, s.CurrentStreak, d+1)
		}
	}
}
