package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sweatpact/sweatpact/internal/auth"
	"github.com/sweatpact/sweatpact/internal/donation"
	"github.com/sweatpact/sweatpact/internal/model"
	"github.com/sweatpact/sweatpact/internal/store"
)

type CharityHandler struct {
	charities *store.CharityStore
	users     *store.UserStore
	awarder   *donation.Awarder
	logger    *slog.Logger
}

func NewCharityHandler(charities *store.CharityStore, users *store.UserStore, awarder *donation.Awarder, logger *slog.Logger) *CharityHandler {
	return &CharityHandler{charities: charities, users: users, awarder: awarder, logger: logger}
}

// List handles GET /api/charities
func (h *CharityHandler) List(w http.ResponseWriter, r *http.Request) {
	charities, err := h.charities.ListActive()
	if err != nil {
		h.logger.Error("list charities", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list charities")
		return
	}
	if charities == nil {
		charities = []model.Charity{}
	}
	writeJSON(w, http.StatusOK, charities)
}

type preferenceRequest struct {
	CharityID string `json:"charity_id"`
}

// SetPreference handles PUT /api/charity-preference
func (h *CharityHandler) SetPreference(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	var req preferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CharityID == "" {
		writeError(w, http.StatusBadRequest, "charity_id is required")
		return
	}

	c, err := h.charities.GetByID(req.CharityID)
	if err != nil {
		h.logger.Error("get charity", "error", err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if c == nil || !c.IsActive {
		writeError(w, http.StatusNotFound, "charity not found")
		return
	}

	if err := h.users.SetPreferredCharity(userID, &req.CharityID); err != nil {
		h.logger.Error("set charity preference", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save preference")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

type manualDonationRequest struct {
	UserID      string `json:"user_id"`
	CharityID   string `json:"charity_id"`
	AmountPence int64  `json:"amount_pence"`
}

// ManualDonation handles POST /admin/donations, the out-of-band admin
// path that bypasses the wallet caps. An omitted charity_id falls back
// to the user's preferred charity.
func (h *CharityHandler) ManualDonation(w http.ResponseWriter, r *http.Request) {
	var req manualDonationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.UserID == "" || req.AmountPence <= 0 {
		writeError(w, http.StatusBadRequest, "user_id and a positive amount_pence are required")
		return
	}

	d, err := h.awarder.AwardManual(req.UserID, req.CharityID, model.Pence(req.AmountPence))
	if err != nil {
		if errors.Is(err, donation.ErrNoCharity) {
			writeError(w, http.StatusBadRequest, "charity_id is required when the user has no preferred charity")
			return
		}
		h.logger.Error("manual donation", "error", err)
		writeError(w, http.StatusInternalServerError, "donation failed")
		return
	}
	writeJSON(w, http.StatusCreated, d)
}
