// Package wallet enforces the capped donation budget. All cap checks and
// ledger writes for one donation happen inside a single transaction so a
// concurrent attempt cannot slip past the same headroom.
package wallet

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sweatpact/sweatpact/internal/clock"
	"github.com/sweatpact/sweatpact/internal/database"
	"github.com/sweatpact/sweatpact/internal/model"
	"github.com/sweatpact/sweatpact/internal/store"
)

const (
	ReasonMonthlyLimit = "monthly_limit_exceeded"
	ReasonDailyCap     = "daily_cap_exceeded"
)

// Decision is the outcome of a cap check. A disallowed donation is a
// normal result, not an error.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Request describes a donation to commit. CapExempt requests skip the
// daily and monthly checks and do not count toward currentMonthSpent,
// but still grow lifetimeDonated.
type Request struct {
	UserID     string
	CharityID  string
	Amount     model.Pence
	Type       model.DonationType
	WorkoutID  *string
	StreakDays *int
	CapExempt  bool
}

type Service struct {
	db     *sql.DB
	clk    clock.Clock
	logger *slog.Logger
}

func NewService(db *sql.DB, clk clock.Clock, logger *slog.Logger) *Service {
	return &Service{db: db, clk: clk, logger: logger}
}

// RollOverIfNeeded zeroes the month counter when now has crossed into a
// later calendar month than the wallet's recorded month. It reports
// whether the wallet changed. Calling it again in the same month is a
// no-op.
func RollOverIfNeeded(w *model.ImpactWallet, now time.Time, loc *time.Location) bool {
	current := clock.StartOfMonth(now, loc)
	if !current.After(clock.StartOfMonth(w.MonthStartDate, loc)) {
		return false
	}
	w.CurrentMonthSpent = 0
	w.MonthStartDate = current
	return true
}

// Get returns the user's wallet with any pending month rollover applied
// in memory. Users who have never donated get a default-cap wallet; the
// row itself is only written on the first committed donation.
func (s *Service) Get(userID string, loc *time.Location) (*model.ImpactWallet, error) {
	w, err := store.NewWalletStore(s.db).Get(userID)
	if err != nil {
		return nil, err
	}
	now := s.clk.Now()
	if w == nil {
		return defaultWallet(userID, now, loc), nil
	}
	RollOverIfNeeded(w, now, loc)
	return w, nil
}

// TodayTotal sums donations committed today in the user's timezone.
func (s *Service) TodayTotal(userID string, loc *time.Location) (model.Pence, error) {
	now := s.clk.Now()
	return store.NewDonationStore(s.db).SumInRange(userID, clock.StartOfDay(now, loc), clock.EndOfDay(now, loc))
}

// CanDonate evaluates the caps for a prospective amount without
// committing anything. The answer can go stale immediately; Award
// re-checks inside its transaction.
func (s *Service) CanDonate(userID string, amount model.Pence, loc *time.Location) (Decision, error) {
	w, err := s.Get(userID, loc)
	if err != nil {
		return Decision{}, err
	}
	today, err := s.TodayTotal(userID, loc)
	if err != nil {
		return Decision{}, err
	}
	return evaluate(w, amount, today), nil
}

// Award checks the caps and, if allowed, writes the donation row and the
// updated wallet in one transaction. A cap rejection returns a nil
// donation and a nil error.
func (s *Service) Award(req Request) (*model.Donation, Decision, error) {
	if req.Amount <= 0 {
		return nil, Decision{}, fmt.Errorf("donation amount must be positive, got %d", req.Amount)
	}
	if req.CharityID == "" {
		return nil, Decision{}, errors.New("donation requires a charity")
	}

	loc := s.userLocation(req.UserID)
	now := s.clk.Now()

	var donation *model.Donation
	var decision Decision

	err := database.WithTx(s.db, func(tx *sql.Tx) error {
		wallets := store.NewWalletStore(tx)
		donations := store.NewDonationStore(tx)

		w, err := wallets.Get(req.UserID)
		if err != nil {
			return err
		}
		created := false
		if w == nil {
			w = defaultWallet(req.UserID, now, loc)
			created = true
		}
		rolled := RollOverIfNeeded(w, now, loc)

		if !req.CapExempt {
			today, err := donations.SumInRange(req.UserID, clock.StartOfDay(now, loc), clock.EndOfDay(now, loc))
			if err != nil {
				return err
			}
			decision = evaluate(w, req.Amount, today)
			if !decision.Allowed {
				// Persist a rollover even when the donation itself is
				// rejected, so reads reflect the new month.
				if rolled && !created {
					_, err := wallets.Save(w)
					return err
				}
				return nil
			}
			w.CurrentMonthSpent += req.Amount
		} else {
			decision = Decision{Allowed: true}
		}
		w.LifetimeDonated += req.Amount

		if created {
			if _, err := wallets.Create(w); err != nil {
				return err
			}
		} else {
			if _, err := wallets.Save(w); err != nil {
				return err
			}
		}

		donation, err = donations.Create(&model.Donation{
			UserID:       req.UserID,
			CharityID:    req.CharityID,
			Amount:       req.Amount,
			Currency:     "GBP",
			DonationType: req.Type,
			WorkoutID:    req.WorkoutID,
			StreakDays:   req.StreakDays,
			CreatedAt:    now,
		})
		return err
	})
	if err != nil {
		return nil, Decision{}, fmt.Errorf("award donation: %w", err)
	}

	if !decision.Allowed {
		s.logger.Info("donation rejected by cap",
			"user_id", req.UserID, "amount", req.Amount.String(), "reason", decision.Reason)
		return nil, decision, nil
	}
	s.logger.Info("donation committed",
		"user_id", req.UserID, "amount", req.Amount.String(), "type", string(req.Type))
	return donation, decision, nil
}

// SetLimits updates the admin-configurable caps, creating the wallet row
// with defaults first if the user has never donated.
func (s *Service) SetLimits(userID string, monthlyLimit, dailyCap model.Pence, loc *time.Location) (*model.ImpactWallet, error) {
	wallets := store.NewWalletStore(s.db)
	w, err := wallets.Get(userID)
	if err != nil {
		return nil, err
	}
	if w == nil {
		if _, err := wallets.Create(defaultWallet(userID, s.clk.Now(), loc)); err != nil {
			return nil, err
		}
	}
	return wallets.SetLimits(userID, monthlyLimit, dailyCap)
}

func (s *Service) userLocation(userID string) *time.Location {
	u, err := store.NewUserStore(s.db).GetByID(userID)
	if err != nil || u == nil {
		return time.UTC
	}
	return clock.LocationFor(u.Timezone)
}

func evaluate(w *model.ImpactWallet, amount, todayTotal model.Pence) Decision {
	if w.CurrentMonthSpent+amount > w.MonthlyLimit {
		return Decision{Reason: ReasonMonthlyLimit}
	}
	if todayTotal+amount > w.DailyCap {
		return Decision{Reason: ReasonDailyCap}
	}
	return Decision{Allowed: true}
}

func defaultWallet(userID string, now time.Time, loc *time.Location) *model.ImpactWallet {
	return &model.ImpactWallet{
		UserID:         userID,
		MonthlyLimit:   model.DefaultMonthlyLimit,
		DailyCap:       model.DefaultDailyCap,
		MonthStartDate: clock.StartOfMonth(now, loc),
	}
}
