package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sweatpact/sweatpact/internal/auth"
	"github.com/sweatpact/sweatpact/internal/call"
	"github.com/sweatpact/sweatpact/internal/model"
	"github.com/sweatpact/sweatpact/internal/store"
	"github.com/sweatpact/sweatpact/internal/websocket"
)

type CallHandler struct {
	sched  *call.Scheduler
	calls  *store.CallStore
	hub    *websocket.Hub
	logger *slog.Logger
}

func NewCallHandler(sched *call.Scheduler, calls *store.CallStore, hub *websocket.Hub, logger *slog.Logger) *CallHandler {
	return &CallHandler{sched: sched, calls: calls, hub: hub, logger: logger}
}

func (h *CallHandler) publish(userID, event string, c *model.Call) {
	if h.hub == nil || c == nil {
		return
	}
	h.hub.Send(userID, websocket.Message{
		Type: event,
		Data: map[string]any{
			"call_id": c.ID,
			"type":    string(c.CallType),
			"status":  string(c.Status),
		},
	})
}

// webhookEvent is the envelope the voice provider posts. Calls are
// referenced by our call ID or by the provider's own ID.
type webhookEvent struct {
	Event          string `json:"event"`
	CallID         string `json:"call_id,omitempty"`
	ProviderCallID string `json:"provider_call_id,omitempty"`
	Timestamp      string `json:"timestamp,omitempty"`
	Duration       int    `json:"duration,omitempty"`
	Outcome        string `json:"outcome,omitempty"`
	Sentiment      string `json:"sentiment,omitempty"`
	Transcript     string `json:"transcript,omitempty"`
}

func (h *CallHandler) resolveCall(ev webhookEvent) (*model.Call, error) {
	if ev.CallID != "" {
		return h.calls.GetByID(ev.CallID)
	}
	if ev.ProviderCallID != "" {
		return h.calls.GetByProviderID(ev.ProviderCallID)
	}
	return nil, nil
}

func eventTime(ev webhookEvent) time.Time {
	if t, err := time.Parse(time.RFC3339, ev.Timestamp); err == nil {
		return t
	}
	return time.Now().UTC()
}

// Webhook handles POST /webhooks/calls. Unknown events and duplicate
// deliveries are acknowledged without effect so the provider stops
// retrying them.
func (h *CallHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	var ev webhookEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	c, err := h.resolveCall(ev)
	if err != nil {
		h.logger.Error("webhook: resolve call", "error", err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if c == nil {
		h.logger.Warn("webhook for unknown call", "event", ev.Event, "call_id", ev.CallID, "provider_call_id", ev.ProviderCallID)
		writeError(w, http.StatusNotFound, "unknown call")
		return
	}

	var updated *model.Call
	switch ev.Event {
	case "call_started":
		at := eventTime(ev)
		upd := store.CallUpdate{StartedAt: &at}
		if ev.ProviderCallID != "" {
			upd.ProviderCallID = &ev.ProviderCallID
		}
		updated, err = h.sched.UpdateCallStatus(c.ID, model.CallInProgress, upd)
	case "call_ended":
		at := eventTime(ev)
		upd := store.CallUpdate{EndedAt: &at}
		if ev.Duration > 0 {
			upd.Duration = &ev.Duration
		}
		updated, err = h.sched.UpdateCallStatus(c.ID, model.CallCompleted, upd)
	case "call_analyzed":
		updated, err = h.sched.AttachAnalysis(c.ID, ev.Outcome, ev.Sentiment, ev.Transcript)
	case "call_no_answer":
		updated, err = h.sched.HandleMissedCall(c.ID)
	case "call_failed":
		at := eventTime(ev)
		outcome := ev.Outcome
		updated, err = h.sched.UpdateCallStatus(c.ID, model.CallFailed, store.CallUpdate{EndedAt: &at, Outcome: &outcome})
	default:
		h.logger.Warn("unknown webhook event", "event", ev.Event)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	if err != nil {
		h.logger.Error("webhook apply failed", "event", ev.Event, "call_id", c.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to apply event")
		return
	}
	h.publish(c.UserID, websocket.EventCallUpdated, updated)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type scheduleDailyRequest struct {
	UserID string `json:"user_id"`
	Date   string `json:"date,omitempty"` // "2006-01-02", defaults to today
}

// ScheduleDaily handles POST /internal/calls/schedule-daily, the
// service-token entry point for per-user catch-up scheduling.
func (h *CallHandler) ScheduleDaily(w http.ResponseWriter, r *http.Request) {
	var req scheduleDailyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	date := time.Now().UTC()
	if req.Date != "" {
		parsed, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		date = parsed
	}

	calls, err := h.sched.ScheduleDailyCalls(req.UserID, date)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Error("schedule daily calls", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "scheduling failed")
		return
	}
	if calls == nil {
		calls = []model.Call{}
	}
	for i := range calls {
		h.publish(req.UserID, websocket.EventCallScheduled, &calls[i])
	}
	writeJSON(w, http.StatusOK, calls)
}

// Cancel handles POST /api/calls/{id}/cancel
func (h *CallHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	callID := r.PathValue("id")

	c, err := h.calls.GetByID(callID)
	if err != nil {
		h.logger.Error("cancel call lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if c == nil || c.UserID != userID {
		writeError(w, http.StatusNotFound, "call not found")
		return
	}

	cancelled, err := h.sched.CancelCall(callID)
	if err != nil {
		h.logger.Error("cancel call", "call_id", callID, "error", err)
		writeError(w, http.StatusInternalServerError, "cancel failed")
		return
	}
	writeJSON(w, http.StatusOK, cancelled)
}

// List handles GET /api/calls
func (h *CallHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	calls, err := h.calls.ListByUser(userID, 50)
	if err != nil {
		h.logger.Error("list calls", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list calls")
		return
	}
	if calls == nil {
		calls = []model.Call{}
	}
	writeJSON(w, http.StatusOK, calls)
}
