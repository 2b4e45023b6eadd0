package model

import "time"

type Charity struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Category       string    `json:"category"`
	ImpactMetric   string    `json:"impact_metric"`
	ImpactPerPound float64   `json:"impact_per_pound"`
	LogoURL        string    `json:"logo_url"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}
