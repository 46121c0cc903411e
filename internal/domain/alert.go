package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Imbalance alert statuses. Every status other than pending records a reviewer.
const (
	AlertStatusPending   = "pending"
	AlertStatusReviewed  = "reviewed"
	AlertStatusResolved  = "resolved"
	AlertStatusDismissed = "dismissed"
)

// Imbalance alert severities.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// ImbalanceAlert flags an account whose received and contributed totals diverge.
type ImbalanceAlert struct {
	ID                         uuid.UUID       `json:"id"`
	UserID                     uuid.UUID       `json:"user_id"`
	UserName                   string          `json:"user_name"`
	AlertType                  string          `json:"alert_type"`
	Severity                   string          `json:"severity"`
	TotalReceived              decimal.Decimal `json:"total_received"`
	TotalContributed           decimal.Decimal `json:"total_contributed"`
	ImbalanceRatio             float64         `json:"imbalance_ratio"`
	ContributionsReceivedCount int             `json:"contributions_received_count"`
	ContributionsGivenCount    int             `json:"contributions_given_count"`
	DaysSinceLastContribution  *int            `json:"days_since_last_contribution,omitempty"`
	RecommendedAction          *string         `json:"recommended_action,omitempty"`
	Status                     string          `json:"status"`
	ReviewedBy                 *uuid.UUID      `json:"reviewed_by,omitempty"`
	ReviewedAt                 *time.Time      `json:"reviewed_at,omitempty"`
	AdminNotes                 *string         `json:"admin_notes,omitempty"`
	CreatedAt                  time.Time       `json:"created_at"`
}

// AlertPatch carries an administrative correction. Nil fields are left untouched.
type AlertPatch struct {
	AlertType                  *string          `json:"alert_type,omitempty"`
	Severity                   *string          `json:"severity,omitempty"`
	TotalReceived              *decimal.Decimal `json:"total_received,omitempty"`
	TotalContributed           *decimal.Decimal `json:"total_contributed,omitempty"`
	ImbalanceRatio             *float64         `json:"imbalance_ratio,omitempty"`
	ContributionsReceivedCount *int             `json:"contributions_received_count,omitempty"`
	ContributionsGivenCount    *int             `json:"contributions_given_count,omitempty"`
	DaysSinceLastContribution  *int             `json:"days_since_last_contribution,omitempty"`
	RecommendedAction          *string          `json:"recommended_action,omitempty"`
	Status                     *string          `json:"status,omitempty"`
	AdminNotes                 *string          `json:"admin_notes,omitempty"`
	ReviewedBy                 *uuid.UUID       `json:"reviewed_by,omitempty"`
	ReviewedAt                 *time.Time       `json:"reviewed_at,omitempty"`
}

// IsEmpty reports whether the patch sets nothing.
func (p AlertPatch) IsEmpty() bool {
	return p.AlertType == nil && p.Severity == nil && p.TotalReceived == nil &&
		p.TotalContributed == nil && p.ImbalanceRatio == nil &&
		p.ContributionsReceivedCount == nil && p.ContributionsGivenCount == nil &&
		p.DaysSinceLastContribution == nil && p.RecommendedAction == nil &&
		p.Status == nil && p.AdminNotes == nil && p.ReviewedBy == nil && p.ReviewedAt == nil
}

// AlertStats summarizes alerts for the admin dashboard header.
type AlertStats struct {
	Total      int64            `json:"total"`
	ByStatus   map[string]int64 `json:"by_status"`
	BySeverity map[string]int64 `json:"by_severity"`
}

// IsKnownAlertStatus reports whether status is one of the alert statuses.
func IsKnownAlertStatus(status string) bool {
	switch status {
	case AlertStatusPending, AlertStatusReviewed, AlertStatusResolved, AlertStatusDismissed:
		return true
	}
	return false
}

// IsKnownSeverity reports whether severity is one of the alert severities.
func IsKnownSeverity(severity string) bool {
	switch severity {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}
