package tier

import (
	"fmt"
	"log/slog"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/sweatpact/sweatpact/internal/model"
)

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	// PriceTiers maps Stripe price IDs to subscription tiers.
	PriceTiers map[string]model.Tier
}

// StripeSource resolves tiers from the customer's active Stripe
// subscription, falling back to the stored tier when the customer has no
// Stripe record or no recognised price.
type StripeSource struct {
	cfg    StripeConfig
	logger *slog.Logger
}

func NewStripeSource(cfg StripeConfig, logger *slog.Logger) *StripeSource {
	stripe.Key = cfg.SecretKey
	return &StripeSource{cfg: cfg, logger: logger}
}

func (s *StripeSource) Resolve(u *model.User) (model.Tier, error) {
	if u.StripeCustomerID == "" {
		return StoreSource{}.Resolve(u)
	}

	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(u.StripeCustomerID),
		Status:   stripe.String(string(stripe.SubscriptionStatusActive)),
	}
	params.Limit = stripe.Int64(1)

	iter := subscription.List(params)
	for iter.Next() {
		sub := iter.Subscription()
		for _, item := range sub.Items.Data {
			if item.Price == nil {
				continue
			}
			if t, ok := s.cfg.PriceTiers[item.Price.ID]; ok {
				return t, nil
			}
			s.logger.Warn("unmapped stripe price", "price_id", item.Price.ID, "user_id", u.ID)
		}
	}
	if err := iter.Err(); err != nil {
		return "", fmt.Errorf("list stripe subscriptions: %w", err)
	}
	return StoreSource{}.Resolve(u)
}

// ConstructWebhookEvent verifies the signature and returns the parsed event.
func (s *StripeSource) ConstructWebhookEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, sigHeader, s.cfg.WebhookSecret)
}
