package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sweatpact/sweatpact/internal/auth"
	"github.com/sweatpact/sweatpact/internal/engine"
	"github.com/sweatpact/sweatpact/internal/model"
	"github.com/sweatpact/sweatpact/internal/store"
)

type WorkoutHandler struct {
	engine    *engine.Engine
	workouts  *store.WorkoutStore
	donations *store.DonationStore
	logger    *slog.Logger
}

func NewWorkoutHandler(eng *engine.Engine, workouts *store.WorkoutStore, donations *store.DonationStore, logger *slog.Logger) *WorkoutHandler {
	return &WorkoutHandler{engine: eng, workouts: workouts, donations: donations, logger: logger}
}

type createWorkoutRequest struct {
	PlannedDate string `json:"planned_date"` // "2006-01-02"
	PlannedTime string `json:"planned_time,omitempty"`
	Activity    string `json:"activity"`
	Duration    int    `json:"duration"`
	IsMinimum   bool   `json:"is_minimum"`
}

// Create handles POST /api/workouts
func (h *WorkoutHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	var req createWorkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	date, err := time.Parse("2006-01-02", req.PlannedDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "planned_date must be YYYY-MM-DD")
		return
	}
	if req.Activity == "" {
		writeError(w, http.StatusBadRequest, "activity is required")
		return
	}

	workout, err := h.workouts.Create(&model.Workout{
		UserID:      userID,
		PlannedDate: date,
		PlannedTime: req.PlannedTime,
		Activity:    req.Activity,
		Duration:    req.Duration,
		IsMinimum:   req.IsMinimum,
		Status:      model.WorkoutPlanned,
	})
	if err != nil {
		h.logger.Error("create workout", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create workout")
		return
	}
	writeJSON(w, http.StatusCreated, workout)
}

type completeWorkoutRequest struct {
	Outcome string `json:"outcome"` // COMPLETED | PARTIAL | SKIPPED
	Reason  string `json:"reason,omitempty"`
}

// Complete handles POST /api/workouts/{id}/complete
func (h *WorkoutHandler) Complete(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	workoutID := r.PathValue("id")

	var req completeWorkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	var status model.WorkoutStatus
	switch strings.ToUpper(req.Outcome) {
	case string(model.WorkoutCompleted):
		status = model.WorkoutCompleted
	case string(model.WorkoutPartial):
		status = model.WorkoutPartial
	case string(model.WorkoutSkipped):
		status = model.WorkoutSkipped
	default:
		writeError(w, http.StatusBadRequest, "outcome must be COMPLETED, PARTIAL, or SKIPPED")
		return
	}

	result, err := h.engine.CompleteWorkout(userID, workoutID, status, req.Reason)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, "workout not found")
			return
		}
		h.logger.Error("complete workout", "workout_id", workoutID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to complete workout")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetStreak handles GET /api/streak
func (h *WorkoutHandler) GetStreak(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	s, err := h.engine.GetStreak(userID)
	if err != nil {
		h.logger.Error("get streak", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load streak")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// GetWallet handles GET /api/wallet
func (h *WorkoutHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	view, err := h.engine.GetImpactWallet(userID)
	if err != nil {
		h.logger.Error("get wallet", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load wallet")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type walletLimitsRequest struct {
	MonthlyLimitPence int64 `json:"monthly_limit_pence"`
	DailyCapPence     int64 `json:"daily_cap_pence"`
}

// SetWalletLimits handles PUT /admin/wallets/{user_id}/limits
func (h *WorkoutHandler) SetWalletLimits(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")

	var req walletLimitsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.MonthlyLimitPence <= 0 || req.DailyCapPence <= 0 {
		writeError(w, http.StatusBadRequest, "monthly_limit_pence and daily_cap_pence must be positive")
		return
	}
	if req.DailyCapPence > req.MonthlyLimitPence {
		writeError(w, http.StatusBadRequest, "daily_cap_pence cannot exceed monthly_limit_pence")
		return
	}

	view, err := h.engine.SetWalletLimits(userID, model.Pence(req.MonthlyLimitPence), model.Pence(req.DailyCapPence))
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Error("set wallet limits", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update limits")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ListDonations handles GET /api/donations
func (h *WorkoutHandler) ListDonations(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	donations, err := h.donations.ListByUser(userID, 100)
	if err != nil {
		h.logger.Error("list donations", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list donations")
		return
	}
	if donations == nil {
		donations = []model.Donation{}
	}
	writeJSON(w, http.StatusOK, donations)
}
