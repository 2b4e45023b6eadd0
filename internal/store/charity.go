package store

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/sweatpact/sweatpact/internal/model"
)

type CharityStore struct {
	db Querier
}

func NewCharityStore(db Querier) *CharityStore {
	return &CharityStore{db: db}
}

func scanCharity(scanner interface{ Scan(...any) error }) (*model.Charity, error) {
	var c model.Charity
	var active int

	err := scanner.Scan(
		&c.ID, &c.Name, &c.Description, &c.Category, &c.ImpactMetric,
		&c.ImpactPerPound, &c.LogoURL, &active, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.IsActive = active != 0
	return &c, nil
}

const charityCols = `id, name, description, category, impact_metric, impact_per_pound, logo_url, is_active, created_at`

func (s *CharityStore) Create(c *model.Charity) (*model.Charity, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := s.db.Exec(
		`INSERT INTO charities (id, name, description, category, impact_metric, impact_per_pound, logo_url, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Description, c.Category, c.ImpactMetric,
		c.ImpactPerPound, c.LogoURL, boolToInt(c.IsActive),
	)
	if err != nil {
		return nil, fmt.Errorf("insert charity: %w", err)
	}
	return s.GetByID(c.ID)
}

func (s *CharityStore) GetByID(id string) (*model.Charity, error) {
	row := s.db.QueryRow(`SELECT `+charityCols+` FROM charities WHERE id = ?`, id)
	c, err := scanCharity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get charity: %w", err)
	}
	return c, nil
}

// ListActive returns active charities ordered by name.
func (s *CharityStore) ListActive() ([]model.Charity, error) {
	rows, err := s.db.Query(`SELECT ` + charityCols + ` FROM charities WHERE is_active = 1 ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list charities: %w", err)
	}
	defer rows.Close()

	var charities []model.Charity
	for rows.Next() {
		c, err := scanCharity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan charity: %w", err)
		}
		charities = append(charities, *c)
	}
	return charities, rows.Err()
}
