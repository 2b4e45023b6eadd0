package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	stripe "github.com/stripe/stripe-go/v82"

	"github.com/sweatpact/sweatpact/internal/model"
	"github.com/sweatpact/sweatpact/internal/store"
)

// maxWebhookBody bounds how much of a Stripe webhook payload is read.
const maxWebhookBody = 65536

// eventVerifier checks a Stripe webhook signature and parses the event.
type eventVerifier interface {
	ConstructWebhookEvent(payload []byte, sigHeader string) (stripe.Event, error)
}

type BillingHandler struct {
	verifier   eventVerifier
	users      *store.UserStore
	priceTiers map[string]model.Tier
	logger     *slog.Logger
}

func NewBillingHandler(verifier eventVerifier, users *store.UserStore, priceTiers map[string]model.Tier, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{verifier: verifier, users: users, priceTiers: priceTiers, logger: logger}
}

// StripeWebhook handles POST /webhooks/stripe. Subscription changes are
// written to the stored tier, which tier resolution falls back on when
// Stripe itself cannot be consulted.
func (h *BillingHandler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}
	event, err := h.verifier.ConstructWebhookEvent(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated":
		h.syncSubscription(event, false)
	case "customer.subscription.deleted":
		h.syncSubscription(event, true)
	}

	// Stripe retries anything but a 2xx; processing errors are logged,
	// not surfaced, so one bad event does not wedge the queue.
	w.WriteHeader(http.StatusOK)
}

func (h *BillingHandler) syncSubscription(event stripe.Event, deleted bool) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		h.logger.Error("unmarshal subscription event", "event_id", event.ID, "error", err)
		return
	}
	if sub.Customer == nil {
		h.logger.Warn("subscription event without customer", "event_id", event.ID)
		return
	}

	u, err := h.users.GetByStripeCustomerID(sub.Customer.ID)
	if err != nil {
		h.logger.Error("lookup stripe customer", "customer_id", sub.Customer.ID, "error", err)
		return
	}
	if u == nil {
		h.logger.Warn("subscription event for unknown customer", "customer_id", sub.Customer.ID)
		return
	}

	newTier := model.TierFree
	if !deleted {
		newTier = ""
		for _, item := range sub.Items.Data {
			if item.Price == nil {
				continue
			}
			if t, ok := h.priceTiers[item.Price.ID]; ok {
				newTier = t
				break
			}
		}
		if newTier == "" {
			h.logger.Warn("no mapped price on subscription, stored tier unchanged",
				"user_id", u.ID, "subscription_id", sub.ID)
			return
		}
	}

	if err := h.users.SetSubscriptionTier(u.ID, newTier); err != nil {
		h.logger.Error("sync subscription tier", "user_id", u.ID, "error", err)
		return
	}
	h.logger.Info("subscription tier synced", "user_id", u.ID, "tier", string(newTier))
}
