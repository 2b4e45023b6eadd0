package store

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sweatpact/sweatpact/internal/model"
)

func TestCallCreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	user, _ := seedUser(t, db, "caller@example.com")
	cs := NewCallStore(db)

	at := time.Date(2025, 5, 1, 7, 0, 0, 0, time.UTC)
	snapshot := json.RawMessage(`{"current_streak":3}`)

	call, err := cs.Create(&model.Call{
		UserID:          user.ID,
		CallType:        model.CallMorningPlanning,
		ScheduledAt:     at,
		ContextSnapshot: snapshot,
	})
	if err != nil {
		t.Fatalf("create call: %v", err)
	}

	if call.Status != model.CallScheduled {
		t.Errorf("status = %q, want SCHEDULED", call.Status)
	}
	if call.JobKey != call.ID {
		t.Errorf("job_key = %q, want call id default", call.JobKey)
	}
	if string(call.ContextSnapshot) != `{"current_streak":3}` {
		t.Errorf("snapshot = %s", call.ContextSnapshot)
	}
	if !call.ScheduledAt.Equal(at) {
		t.Errorf("scheduled_at = %v, want %v", call.ScheduledAt, at)
	}
}

func TestCallGetByJobKey(t *testing.T) {
	db := setupTestDB(t)
	user, _ := seedUser(t, db, "jobkey@example.com")
	cs := NewCallStore(db)

	_, err := cs.Create(&model.Call{
		UserID:      user.ID,
		CallType:    model.CallEveningReview,
		ScheduledAt: time.Now().UTC(),
		JobKey:      "daily-x-EVENING_REVIEW-2025-05-01",
	})
	if err != nil {
		t.Fatalf("create call: %v", err)
	}

	got, err := cs.GetByJobKey("daily-x-EVENING_REVIEW-2025-05-01")
	if err != nil {
		t.Fatalf("get by job key: %v", err)
	}
	if got == nil {
		t.Fatal("expected call")
	}

	missing, err := cs.GetByJobKey("nope")
	if err != nil {
		t.Fatalf("get by job key: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for unknown job key")
	}
}

func TestCallUpdateStatus(t *testing.T) {
	db := setupTestDB(t)
	user, _ := seedUser(t, db, "update@example.com")
	cs := NewCallStore(db)

	call, err := cs.Create(&model.Call{
		UserID:      user.ID,
		CallType:    model.CallRescue,
		ScheduledAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create call: %v", err)
	}

	started := time.Date(2025, 5, 1, 7, 0, 5, 0, time.UTC)
	providerID := "retell-abc"
	got, err := cs.UpdateStatus(call.ID, model.CallInProgress, CallUpdate{
		StartedAt:      &started,
		ProviderCallID: &providerID,
	})
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if got.Status != model.CallInProgress {
		t.Errorf("status = %q, want IN_PROGRESS", got.Status)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(started) {
		t.Errorf("started_at = %v, want %v", got.StartedAt, started)
	}
	if got.ProviderCallID != "retell-abc" {
		t.Errorf("provider_call_id = %q", got.ProviderCallID)
	}

	// Partial update leaves earlier fields alone
	duration := 180
	outcome := "completed"
	got, err = cs.UpdateStatus(call.ID, model.CallCompleted, CallUpdate{
		Duration: &duration,
		Outcome:  &outcome,
	})
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if got.StartedAt == nil {
		t.Error("started_at should survive later updates")
	}
	if got.Duration == nil || *got.Duration != 180 {
		t.Errorf("duration = %v, want 180", got.Duration)
	}

	byProvider, err := cs.GetByProviderID("retell-abc")
	if err != nil {
		t.Fatalf("get by provider: %v", err)
	}
	if byProvider == nil || byProvider.ID != call.ID {
		t.Error("expected provider lookup to find the call")
	}
}

func TestCallUpdateStatusMissing(t *testing.T) {
	db := setupTestDB(t)
	cs := NewCallStore(db)

	got, err := cs.UpdateStatus("ghost", model.CallCompleted, CallUpdate{})
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if got != nil {
		t.Error("expected nil for missing call")
	}
}

func TestCallListUpcoming(t *testing.T) {
	db := setupTestDB(t)
	user, _ := seedUser(t, db, "upcoming@example.com")
	cs := NewCallStore(db)

	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	past, err := cs.Create(&model.Call{UserID: user.ID, CallType: model.CallMorningPlanning, ScheduledAt: now.Add(-2 * time.Hour)})
	if err != nil {
		t.Fatalf("create past call: %v", err)
	}
	_ = past
	later, err := cs.Create(&model.Call{UserID: user.ID, CallType: model.CallEveningReview, ScheduledAt: now.Add(8 * time.Hour)})
	if err != nil {
		t.Fatalf("create later call: %v", err)
	}
	soon, err := cs.Create(&model.Call{UserID: user.ID, CallType: model.CallRescue, ScheduledAt: now.Add(time.Hour)})
	if err != nil {
		t.Fatalf("create soon call: %v", err)
	}

	upcoming, err := cs.ListUpcoming(now, 10)
	if err != nil {
		t.Fatalf("list upcoming: %v", err)
	}
	if len(upcoming) != 2 {
		t.Fatalf("len = %d, want 2", len(upcoming))
	}
	if upcoming[0].ID != soon.ID || upcoming[1].ID != later.ID {
		t.Error("expected soonest-first ordering")
	}
}
