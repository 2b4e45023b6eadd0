package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sweatpact/sweatpact/internal/model"
)

type CallStore struct {
	db Querier
}

func NewCallStore(db Querier) *CallStore {
	return &CallStore{db: db}
}

func scanCall(scanner interface{ Scan(...any) error }) (*model.Call, error) {
	var c model.Call
	var startedAt, endedAt sql.NullTime
	var duration sql.NullInt64
	var snapshot sql.NullString

	err := scanner.Scan(
		&c.ID, &c.UserID, &c.CallType, &c.Status, &c.ScheduledAt,
		&startedAt, &endedAt, &duration, &c.Outcome, &c.Sentiment,
		&c.Transcript, &snapshot, &c.Attempt, &c.JobKey, &c.ProviderCallID,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if startedAt.Valid {
		c.StartedAt = &startedAt.Time
	}
	if endedAt.Valid {
		c.EndedAt = &endedAt.Time
	}
	if duration.Valid {
		d := int(duration.Int64)
		c.Duration = &d
	}
	if snapshot.Valid && snapshot.String != "" {
		c.ContextSnapshot = json.RawMessage(snapshot.String)
	}
	return &c, nil
}

const callCols = `id, user_id, call_type, status, scheduled_at, started_at, ended_at, duration, outcome, sentiment, transcript, context_snapshot, attempt, job_key, provider_call_id, created_at, updated_at`

func (s *CallStore) Create(c *model.Call) (*model.Call, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = model.CallScheduled
	}
	if c.JobKey == "" {
		c.JobKey = c.ID
	}
	now := time.Now().UTC()

	var snapshot sql.NullString
	if len(c.ContextSnapshot) > 0 {
		snapshot = sql.NullString{String: string(c.ContextSnapshot), Valid: true}
	}

	_, err := s.db.Exec(
		`INSERT INTO calls (id, user_id, call_type, status, scheduled_at, context_snapshot, attempt, job_key, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.CallType, c.Status, c.ScheduledAt.UTC(),
		snapshot, c.Attempt, c.JobKey, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert call: %w", err)
	}
	return s.GetByID(c.ID)
}

func (s *CallStore) GetByID(id string) (*model.Call, error) {
	row := s.db.QueryRow(`SELECT `+callCols+` FROM calls WHERE id = ?`, id)
	c, err := scanCall(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get call: %w", err)
	}
	return c, nil
}

// GetByJobKey finds the call scheduled under a dedupe key, if any.
func (s *CallStore) GetByJobKey(jobKey string) (*model.Call, error) {
	row := s.db.QueryRow(`SELECT `+callCols+` FROM calls WHERE job_key = ? ORDER BY created_at DESC LIMIT 1`, jobKey)
	c, err := scanCall(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get call by job key: %w", err)
	}
	return c, nil
}

// GetByProviderID finds the call correlated with an external provider call id.
func (s *CallStore) GetByProviderID(providerCallID string) (*model.Call, error) {
	row := s.db.QueryRow(`SELECT `+callCols+` FROM calls WHERE provider_call_id = ? LIMIT 1`, providerCallID)
	c, err := scanCall(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get call by provider id: %w", err)
	}
	return c, nil
}

// CallUpdate carries the optional fields a status change may set. Nil
// fields are left untouched.
type CallUpdate struct {
	StartedAt      *time.Time
	EndedAt        *time.Time
	Duration       *int
	Outcome        *string
	Sentiment      *string
	Transcript     *string
	ProviderCallID *string
}

// UpdateStatus writes the new status plus any provided fields. It does not
// validate the transition; that is the scheduler's job.
func (s *CallStore) UpdateStatus(id string, status model.CallStatus, upd CallUpdate) (*model.Call, error) {
	existing, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}

	set := *existing
	set.Status = status
	if upd.StartedAt != nil {
		set.StartedAt = upd.StartedAt
	}
	if upd.EndedAt != nil {
		set.EndedAt = upd.EndedAt
	}
	if upd.Duration != nil {
		set.Duration = upd.Duration
	}
	if upd.Outcome != nil {
		set.Outcome = *upd.Outcome
	}
	if upd.Sentiment != nil {
		set.Sentiment = *upd.Sentiment
	}
	if upd.Transcript != nil {
		set.Transcript = *upd.Transcript
	}
	if upd.ProviderCallID != nil {
		set.ProviderCallID = *upd.ProviderCallID
	}

	_, err = s.db.Exec(
		`UPDATE calls SET status = ?, started_at = ?, ended_at = ?, duration = ?, outcome = ?, sentiment = ?, transcript = ?, provider_call_id = ?, updated_at = ? WHERE id = ?`,
		set.Status, nullTime(set.StartedAt), nullTime(set.EndedAt),
		nullableInt(set.Duration), set.Outcome, set.Sentiment, set.Transcript,
		set.ProviderCallID, time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update call status: %w", err)
	}
	return s.GetByID(id)
}

// ListUpcoming returns SCHEDULED calls with scheduled_at at or after now,
// soonest first.
func (s *CallStore) ListUpcoming(now time.Time, limit int) ([]model.Call, error) {
	rows, err := s.db.Query(
		`SELECT `+callCols+` FROM calls WHERE status = 'SCHEDULED' AND scheduled_at >= ? ORDER BY scheduled_at ASC LIMIT ?`,
		now.UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list upcoming calls: %w", err)
	}
	defer rows.Close()

	var calls []model.Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		calls = append(calls, *c)
	}
	return calls, rows.Err()
}

// ListByUser returns a user's calls, most recently scheduled first.
func (s *CallStore) ListByUser(userID string, limit int) ([]model.Call, error) {
	rows, err := s.db.Query(
		`SELECT `+callCols+` FROM calls WHERE user_id = ? ORDER BY scheduled_at DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	defer rows.Close()

	var calls []model.Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		calls = append(calls, *c)
	}
	return calls, rows.Err()
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
