package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/joiedevivre/gifting-service/internal/domain"
)

const alertSelect = `
	SELECT
		a.id, a.user_id,
		COALESCE(NULLIF(TRIM(CONCAT_WS(' ', p.first_name, p.last_name)), ''), 'Un utilisateur'),
		a.alert_type, a.severity, a.total_received, a.total_contributed,
		a.imbalance_ratio::float8, a.contributions_received_count, a.contributions_given_count,
		a.days_since_last_contribution, a.recommended_action, a.status,
		a.reviewed_by, a.reviewed_at, a.admin_notes, a.created_at
	FROM imbalance_alerts a
	LEFT JOIN profiles p ON p.user_id = a.user_id`

func scanAlert(row pgx.Row) (domain.ImbalanceAlert, error) {
	var a domain.ImbalanceAlert
	err := row.Scan(
		&a.ID, &a.UserID, &a.UserName,
		&a.AlertType, &a.Severity, &a.TotalReceived, &a.TotalContributed,
		&a.ImbalanceRatio, &a.ContributionsReceivedCount, &a.ContributionsGivenCount,
		&a.DaysSinceLastContribution, &a.RecommendedAction, &a.Status,
		&a.ReviewedBy, &a.ReviewedAt, &a.AdminNotes, &a.CreatedAt,
	)
	return a, err
}

// ListAlerts returns imbalance alerts newest first, optionally filtered by status.
func (r *Repository) ListAlerts(ctx context.Context, status *string) ([]domain.ImbalanceAlert, error) {
	query := alertSelect
	args := []interface{}{}
	if status != nil {
		query += ` WHERE a.status = $1`
		args = append(args, *status)
	}
	query += ` ORDER BY a.created_at DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	alerts := make([]domain.ImbalanceAlert, 0)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// GetAlert loads one alert with its subject's display name.
func (r *Repository) GetAlert(ctx context.Context, alertID uuid.UUID) (*domain.ImbalanceAlert, error) {
	a, err := scanAlert(r.db.QueryRow(ctx, alertSelect+` WHERE a.id = $1`, alertID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAlertNotFound
		}
		return nil, err
	}
	return &a, nil
}

// ReviewAlert records a reviewer disposition. There is no guard on the previous status.
func (r *Repository) ReviewAlert(ctx context.Context, alertID, reviewerID uuid.UUID, status string, notes *string) (*domain.ImbalanceAlert, error) {
	query := `
		UPDATE imbalance_alerts
		SET status = $2,
			reviewed_by = $3,
			reviewed_at = NOW(),
			admin_notes = $4
		WHERE id = $1
	`
	if err := r.updateAndNotify(ctx, alertID, query, alertID, status, reviewerID, notes); err != nil {
		return nil, err
	}
	return r.GetAlert(ctx, alertID)
}

// UpdateAlert applies an administrative field patch.
func (r *Repository) UpdateAlert(ctx context.Context, alertID uuid.UUID, patch domain.AlertPatch) (*domain.ImbalanceAlert, error) {
	setClause, args := buildAlertPatch(patch, 2)
	if setClause == "" {
		return r.GetAlert(ctx, alertID)
	}
	query := `UPDATE imbalance_alerts SET ` + setClause + ` WHERE id = $1`
	if err := r.updateAndNotify(ctx, alertID, query, append([]interface{}{alertID}, args...)...); err != nil {
		return nil, err
	}
	return r.GetAlert(ctx, alertID)
}

// updateAndNotify runs an alert UPDATE and raises the change notification in the same
// transaction so listeners only hear about committed changes.
func (r *Repository) updateAndNotify(ctx context.Context, alertID uuid.UUID, query string, args ...interface{}) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlertNotFound
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, AlertsChangedChannel, alertID.String()); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// buildAlertPatch renders the SET list for the non-nil fields of patch, numbering
// placeholders from firstArg.
func buildAlertPatch(patch domain.AlertPatch, firstArg int) (string, []interface{}) {
	var sets []string
	var args []interface{}
	argPos := firstArg

	add := func(column string, value interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, argPos))
		args = append(args, value)
		argPos++
	}

	if patch.AlertType != nil {
		add("alert_type", *patch.AlertType)
	}
	if patch.Severity != nil {
		add("severity", *patch.Severity)
	}
	if patch.TotalReceived != nil {
		add("total_received", *patch.TotalReceived)
	}
	if patch.TotalContributed != nil {
		add("total_contributed", *patch.TotalContributed)
	}
	if patch.ImbalanceRatio != nil {
		add("imbalance_ratio", *patch.ImbalanceRatio)
	}
	if patch.ContributionsReceivedCount != nil {
		add("contributions_received_count", *patch.ContributionsReceivedCount)
	}
	if patch.ContributionsGivenCount != nil {
		add("contributions_given_count", *patch.ContributionsGivenCount)
	}
	if patch.DaysSinceLastContribution != nil {
		add("days_since_last_contribution", *patch.DaysSinceLastContribution)
	}
	if patch.RecommendedAction != nil {
		add("recommended_action", *patch.RecommendedAction)
	}
	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.AdminNotes != nil {
		add("admin_notes", *patch.AdminNotes)
	}
	if patch.ReviewedBy != nil {
		add("reviewed_by", *patch.ReviewedBy)
	}
	if patch.ReviewedAt != nil {
		add("reviewed_at", *patch.ReviewedAt)
	}

	return strings.Join(sets, ", "), args
}

// AlertStats counts alerts by status and by severity.
func (r *Repository) AlertStats(ctx context.Context) (*domain.AlertStats, error) {
	rows, err := r.db.Query(ctx, `
		SELECT status, severity, COUNT(*)
		FROM imbalance_alerts
		GROUP BY status, severity
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &domain.AlertStats{
		ByStatus:   map[string]int64{},
		BySeverity: map[string]int64{},
	}
	for rows.Next() {
		var (
			status, severity string
			count            int64
		)
		if err := rows.Scan(&status, &severity, &count); err != nil {
			return nil, err
		}
		stats.Total += count
		stats.ByStatus[status] += count
		stats.BySeverity[severity] += count
	}
	return stats, rows.Err()
}

// HasRole reports whether userID holds role in user_roles.
func (r *Repository) HasRole(ctx context.Context, userID uuid.UUID, role string) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_roles WHERE user_id = $1 AND role = $2)`, userID, role,
	).Scan(&ok)
	return ok, err
}
