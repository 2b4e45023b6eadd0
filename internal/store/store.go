// Package store contains the SQLite persistence layer. Each store wraps a
// Querier so callers can point it at the shared *sql.DB or at an open
// transaction when a sequence has to be atomic.
package store

import "database/sql"

// Querier is the subset of *sql.DB and *sql.Tx the stores use.
type Querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
