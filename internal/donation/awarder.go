// Package donation turns completions and streak milestones into wallet
// donations. Amounts are tier-based for completions and fixed per
// milestone; a skipped award (cap hit, no charity) is a nil donation,
// not an error.
package donation

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/sweatpact/sweatpact/internal/model"
	"github.com/sweatpact/sweatpact/internal/store"
	"github.com/sweatpact/sweatpact/internal/tier"
	"github.com/sweatpact/sweatpact/internal/wallet"
)

var completionAmounts = map[model.Tier]model.Pence{
	model.TierFree:      100,
	model.TierPro:       100,
	model.TierElite:     150,
	model.TierConcierge: 200,
	model.TierB2B:       100,
}

var bonusAmounts = map[int]model.Pence{
	7:  300,
	30: 1000,
	90: 2500,
}

// CompletionAmount is the per-workout donation for a tier. Unknown tiers
// pay the FREE rate.
func CompletionAmount(t model.Tier) model.Pence {
	if amount, ok := completionAmounts[t]; ok {
		return amount
	}
	return completionAmounts[model.TierFree]
}

// BonusAmount is the one-time payout for a streak milestone, 0 for
// lengths that are not milestones.
func BonusAmount(days int) model.Pence {
	return bonusAmounts[days]
}

func bonusType(days int) model.DonationType {
	switch days {
	case 7:
		return model.DonationStreak7Day
	case 30:
		return model.DonationStreak30Day
	case 90:
		return model.DonationStreak90Day
	}
	return ""
}

type Awarder struct {
	users   *store.UserStore
	streaks *store.StreakStore
	wallet  *wallet.Service
	tiers   tier.Source
	logger  *slog.Logger
}

func NewAwarder(users *store.UserStore, streaks *store.StreakStore, w *wallet.Service, tiers tier.Source, logger *slog.Logger) *Awarder {
	return &Awarder{users: users, streaks: streaks, wallet: w, tiers: tiers, logger: logger}
}

// AwardCompletion donates the user's tier amount for one completed
// workout. Returns nil without error when the user has no preferred
// charity or a cap rejects the donation.
func (a *Awarder) AwardCompletion(userID, workoutID string) (*model.Donation, error) {
	u, err := a.users.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("award completion: user %s not found", userID)
	}
	if u.PreferredCharityID == nil {
		a.logger.Info("donation skipped, no preferred charity", "user_id", userID)
		return nil, nil
	}

	t, err := a.tiers.Resolve(u)
	if err != nil {
		return nil, fmt.Errorf("resolve tier: %w", err)
	}

	d, _, err := a.wallet.Award(wallet.Request{
		UserID:    userID,
		CharityID: *u.PreferredCharityID,
		Amount:    CompletionAmount(t),
		Type:      model.DonationCompletion,
		WorkoutID: &workoutID,
	})
	return d, err
}

// AwardStreakBonus pays the milestone bonus for streakDays if the user
// has never claimed it. Bonuses bypass the caps; the claimed flag is only
// set after the donation commits, so a failed write can be retried.
func (a *Awarder) AwardStreakBonus(userID string, streakDays int) (*model.Donation, error) {
	if BonusAmount(streakDays) == 0 {
		return nil, nil
	}

	s, err := a.streaks.Get(userID)
	if err != nil {
		return nil, err
	}
	if s == nil || s.BonusClaimed(streakDays) {
		return nil, nil
	}

	u, err := a.users.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("award streak bonus: user %s not found", userID)
	}
	if u.PreferredCharityID == nil {
		a.logger.Info("streak bonus skipped, no preferred charity", "user_id", userID, "days", streakDays)
		return nil, nil
	}

	days := streakDays
	d, _, err := a.wallet.Award(wallet.Request{
		UserID:     userID,
		CharityID:  *u.PreferredCharityID,
		Amount:     BonusAmount(streakDays),
		Type:       bonusType(streakDays),
		StreakDays: &days,
		CapExempt:  true,
	})
	if err != nil {
		return nil, err
	}

	if err := a.streaks.ClaimBonus(userID, streakDays); err != nil {
		return nil, fmt.Errorf("mark bonus claimed: %w", err)
	}
	a.logger.Info("streak bonus awarded", "user_id", userID, "days", streakDays, "amount", d.Amount.String())
	return d, nil
}

// ErrNoCharity means a manual donation named no charity and the user has
// no preferred one to fall back on.
var ErrNoCharity = errors.New("no charity specified and no preferred charity set")

// AwardManual records an out-of-band admin donation, bypassing the caps.
// An empty charityID falls back to the user's preferred charity.
func (a *Awarder) AwardManual(userID, charityID string, amount model.Pence) (*model.Donation, error) {
	if charityID == "" {
		u, err := a.users.GetByID(userID)
		if err != nil {
			return nil, err
		}
		if u == nil {
			return nil, fmt.Errorf("award manual: user %s not found", userID)
		}
		if u.PreferredCharityID == nil {
			return nil, ErrNoCharity
		}
		charityID = *u.PreferredCharityID
	}

	d, _, err := a.wallet.Award(wallet.Request{
		UserID:    userID,
		CharityID: charityID,
		Amount:    amount,
		Type:      model.DonationManual,
		CapExempt: true,
	})
	return d, err
}
