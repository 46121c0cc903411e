/**
 * @description
 * This file implements the data access layer for the gifting-service.
 * It holds the shared pgx pool and the sentinel errors returned by the
 * fund, notification, post and imbalance alert queries.
 */
package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrFundNotFound  = errors.New("fund not found")
	ErrAlertNotFound = errors.New("imbalance alert not found")
)

// AlertsChangedChannel is the NOTIFY channel raised whenever an imbalance alert row changes.
const AlertsChangedChannel = "imbalance_alerts_changed"

// Repository handles database operations for the gifting service.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}
