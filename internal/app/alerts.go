/**
 * @description
 * Administrative operations on imbalance alerts.
 *
 * @notes
 * - Review and update are permissive: any status may be set again, including
 *   moving an alert back to pending. Only the values themselves are validated.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/joiedevivre/gifting-service/internal/domain"
)

var (
	ErrUnauthenticated     = errors.New("authenticated reviewer required")
	ErrInvalidReviewStatus = errors.New("review status must be one of reviewed, resolved, dismissed")
	ErrInvalidAlertStatus  = errors.New("unknown imbalance alert status")
	ErrEmptyPatch          = errors.New("patch sets no fields")
	ErrInvalidPatch        = errors.New("invalid imbalance alert patch")
)

// AlertRepository defines database operations on imbalance alerts.
type AlertRepository interface {
	ListAlerts(ctx context.Context, status *string) ([]domain.ImbalanceAlert, error)
	ReviewAlert(ctx context.Context, alertID, reviewerID uuid.UUID, status string, notes *string) (*domain.ImbalanceAlert, error)
	UpdateAlert(ctx context.Context, alertID uuid.UUID, patch domain.AlertPatch) (*domain.ImbalanceAlert, error)
	AlertStats(ctx context.Context) (*domain.AlertStats, error)
}

// AlertService exposes imbalance alerts to administrators.
type AlertService struct {
	repo AlertRepository
}

// NewAlertService creates an alert service.
func NewAlertService(repo AlertRepository) *AlertService {
	return &AlertService{repo: repo}
}

// ListAlerts returns alerts newest first, optionally filtered by status.
func (s *AlertService) ListAlerts(ctx context.Context, statusFilter *string) ([]domain.ImbalanceAlert, error) {
	if statusFilter != nil {
		status := strings.ToLower(strings.TrimSpace(*statusFilter))
		if status == "" {
			statusFilter = nil
		} else if !domain.IsKnownAlertStatus(status) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidAlertStatus, status)
		} else {
			statusFilter = &status
		}
	}
	return s.repo.ListAlerts(ctx, statusFilter)
}

// ReviewAlert records the caller's disposition of an alert.
func (s *AlertService) ReviewAlert(ctx context.Context, reviewerID, alertID uuid.UUID, newStatus string, notes *string) (*domain.ImbalanceAlert, error) {
	if reviewerID == uuid.Nil {
		return nil, ErrUnauthenticated
	}
	status := strings.ToLower(strings.TrimSpace(newStatus))
	switch status {
	case domain.AlertStatusReviewed, domain.AlertStatusResolved, domain.AlertStatusDismissed:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidReviewStatus, newStatus)
	}
	return s.repo.ReviewAlert(ctx, alertID, reviewerID, status, notes)
}

// UpdateAlert applies an administrative correction to any alert field.
func (s *AlertService) UpdateAlert(ctx context.Context, alertID uuid.UUID, patch domain.AlertPatch) (*domain.ImbalanceAlert, error) {
	if patch.IsEmpty() {
		return nil, ErrEmptyPatch
	}
	if err := validatePatch(&patch); err != nil {
		return nil, err
	}
	return s.repo.UpdateAlert(ctx, alertID, patch)
}

// AlertStats counts alerts by status and severity.
func (s *AlertService) AlertStats(ctx context.Context) (*domain.AlertStats, error) {
	return s.repo.AlertStats(ctx)
}

func validatePatch(patch *domain.AlertPatch) error {
	if patch.Status != nil {
		status := strings.ToLower(strings.TrimSpace(*patch.Status))
		if !domain.IsKnownAlertStatus(status) {
			return fmt.Errorf("%w: unknown status %q", ErrInvalidPatch, *patch.Status)
		}
		patch.Status = &status
	}
	if patch.Severity != nil {
		severity := strings.ToLower(strings.TrimSpace(*patch.Severity))
		if !domain.IsKnownSeverity(severity) {
			return fmt.Errorf("%w: unknown severity %q", ErrInvalidPatch, *patch.Severity)
		}
		patch.Severity = &severity
	}
	if patch.AlertType != nil && strings.TrimSpace(*patch.AlertType) == "" {
		return fmt.Errorf("%w: alert_type cannot be blank", ErrInvalidPatch)
	}
	for name, v := range map[string]*int{
		"contributions_received_count": patch.ContributionsReceivedCount,
		"contributions_given_count":    patch.ContributionsGivenCount,
		"days_since_last_contribution": patch.DaysSinceLastContribution,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%w: %s cannot be negative", ErrInvalidPatch, name)
		}
	}
	return nil
}
