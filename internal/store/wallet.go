package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/sweatpact/sweatpact/internal/model"
)

type WalletStore struct {
	db Querier
}

func NewWalletStore(db Querier) *WalletStore {
	return &WalletStore{db: db}
}

func scanWallet(scanner interface{ Scan(...any) error }) (*model.ImpactWallet, error) {
	var w model.ImpactWallet

	err := scanner.Scan(
		&w.UserID, &w.MonthlyLimit, &w.DailyCap, &w.CurrentMonthSpent,
		&w.MonthStartDate, &w.LifetimeDonated, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

const walletCols = `user_id, monthly_limit, daily_cap, current_month_spent, month_start_date, lifetime_donated, created_at, updated_at`

func (s *WalletStore) Get(userID string) (*model.ImpactWallet, error) {
	row := s.db.QueryRow(`SELECT `+walletCols+` FROM impact_wallets WHERE user_id = ?`, userID)
	w, err := scanWallet(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return w, nil
}

func (s *WalletStore) Create(w *model.ImpactWallet) (*model.ImpactWallet, error) {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO impact_wallets (user_id, monthly_limit, daily_cap, current_month_spent, month_start_date, lifetime_donated, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		w.UserID, w.MonthlyLimit, w.DailyCap, w.CurrentMonthSpent,
		w.MonthStartDate.UTC(), w.LifetimeDonated, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert wallet: %w", err)
	}
	return s.Get(w.UserID)
}

// Save writes back the wallet's mutable fields.
func (s *WalletStore) Save(w *model.ImpactWallet) (*model.ImpactWallet, error) {
	_, err := s.db.Exec(
		`UPDATE impact_wallets SET monthly_limit = ?, daily_cap = ?, current_month_spent = ?, month_start_date = ?, lifetime_donated = ?, updated_at = ? WHERE user_id = ?`,
		w.MonthlyLimit, w.DailyCap, w.CurrentMonthSpent, w.MonthStartDate.UTC(),
		w.LifetimeDonated, time.Now().UTC(), w.UserID,
	)
	if err != nil {
		return nil, fmt.Errorf("save wallet: %w", err)
	}
	return s.Get(w.UserID)
}

// SetLimits updates the admin-configurable caps.
func (s *WalletStore) SetLimits(userID string, monthlyLimit, dailyCap model.Pence) (*model.ImpactWallet, error) {
	_, err := s.db.Exec(
		`UPDATE impact_wallets SET monthly_limit = ?, daily_cap = ?, updated_at = ? WHERE user_id = ?`,
		monthlyLimit, dailyCap, time.Now().UTC(), userID,
	)
	if err != nil {
		return nil, fmt.Errorf("set wallet limits: %w", err)
	}
	return s.Get(userID)
}
