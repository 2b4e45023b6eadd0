// Package tier resolves a user's subscription tier, either from the local
// user record or live from Stripe.
package tier

import (
	"github.com/sweatpact/sweatpact/internal/model"
)

// Source resolves the effective subscription tier for a user.
type Source interface {
	Resolve(u *model.User) (model.Tier, error)
}

// StoreSource trusts the tier persisted on the user row. It is the
// default when no Stripe key is configured.
type StoreSource struct{}

func (StoreSource) Resolve(u *model.User) (model.Tier, error) {
	if u.SubscriptionTier == "" {
		return model.TierFree, nil
	}
	return u.SubscriptionTier, nil
}
