/**
 * @description
 * HTTP handlers for the gifting service. Handlers decode requests, delegate to
 * the app services and map their sentinel errors onto status codes.
 */
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/joiedevivre/gifting-service/internal/app"
	"github.com/joiedevivre/gifting-service/internal/domain"
	"github.com/joiedevivre/gifting-service/internal/store"
)

// RevealRunner runs one surprise reveal pass.
type RevealRunner interface {
	RunRevealPass(ctx context.Context) (*domain.RevealPassResult, error)
}

// ReciprocityNotifier sends reciprocity reminders for a fund.
type ReciprocityNotifier interface {
	NotifyCandidates(ctx context.Context, fundID uuid.UUID) (*domain.ReciprocityResult, error)
}

// AlertManager serves the imbalance alert admin surface.
type AlertManager interface {
	ListAlerts(ctx context.Context, statusFilter *string) ([]domain.ImbalanceAlert, error)
	ReviewAlert(ctx context.Context, reviewerID, alertID uuid.UUID, newStatus string, notes *string) (*domain.ImbalanceAlert, error)
	UpdateAlert(ctx context.Context, alertID uuid.UUID, patch domain.AlertPatch) (*domain.ImbalanceAlert, error)
	AlertStats(ctx context.Context) (*domain.AlertStats, error)
}

// Handler holds the dependencies of the HTTP handlers.
type Handler struct {
	reveals     RevealRunner
	reciprocity ReciprocityNotifier
	alerts      AlertManager
	feed        ChangeFeed
	logger      *slog.Logger

	pingInterval time.Duration
}

// NewHandler creates a new Handler.
func NewHandler(reveals RevealRunner, reciprocity ReciprocityNotifier, alerts AlertManager, feed ChangeFeed, logger *slog.Logger) *Handler {
	return &Handler{
		reveals:      reveals,
		reciprocity:  reciprocity,
		alerts:       alerts,
		feed:         feed,
		logger:       logger,
		pingInterval: defaultPingInterval,
	}
}

type reciprocityRequest struct {
	FundID string `json:"fund_id"`
}

type reviewRequest struct {
	Status     string  `json:"status"`
	AdminNotes *string `json:"admin_notes"`
}

func (h *Handler) handleRevealPass(w http.ResponseWriter, r *http.Request) {
	// Claimed funds are worked through even if the caller hangs up.
	result, err := h.reveals.RunRevealPass(context.WithoutCancel(r.Context()))
	if err != nil {
		h.logger.Error("surprise reveal pass failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleReciprocityNotify(w http.ResponseWriter, r *http.Request) {
	var req reciprocityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.FundID) == "" {
		writeError(w, http.StatusBadRequest, "fund_id is required")
		return
	}
	fundID, err := uuid.Parse(strings.TrimSpace(req.FundID))
	if err != nil {
		writeError(w, http.StatusBadRequest, "fund_id must be a valid UUID")
		return
	}

	result, err := h.reciprocity.NotifyCandidates(r.Context(), fundID)
	if err != nil {
		if errors.Is(err, store.ErrFundNotFound) {
			writeError(w, http.StatusNotFound, "Fund not found")
			return
		}
		h.logger.Error("reciprocity notification failed", "fund_id", fundID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	var filter *string
	if status := r.URL.Query().Get("status"); status != "" {
		filter = &status
	}

	alerts, err := h.alerts.ListAlerts(r.Context(), filter)
	if err != nil {
		h.writeAlertError(w, err, "Failed to list alerts")
		return
	}
	if alerts == nil {
		alerts = []domain.ImbalanceAlert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (h *Handler) handleAlertStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.alerts.AlertStats(r.Context())
	if err != nil {
		h.writeAlertError(w, err, "Failed to load alert statistics")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleReviewAlert(w http.ResponseWriter, r *http.Request) {
	alertID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid alert ID")
		return
	}
	reviewerID, _ := UserFromContext(r.Context())

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	alert, err := h.alerts.ReviewAlert(r.Context(), reviewerID, alertID, req.Status, req.AdminNotes)
	if err != nil {
		h.writeAlertError(w, err, "Failed to review alert")
		return
	}
	h.logger.Info("imbalance alert reviewed", "alert_id", alertID, "reviewer_id", reviewerID, "status", alert.Status)
	writeJSON(w, http.StatusOK, alert)
}

func (h *Handler) handleUpdateAlert(w http.ResponseWriter, r *http.Request) {
	alertID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid alert ID")
		return
	}

	var patch domain.AlertPatch
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	alert, err := h.alerts.UpdateAlert(r.Context(), alertID, patch)
	if err != nil {
		h.writeAlertError(w, err, "Failed to update alert")
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (h *Handler) writeAlertError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, store.ErrAlertNotFound):
		writeError(w, http.StatusNotFound, "Alert not found")
	case errors.Is(err, app.ErrUnauthenticated):
		writeErrorCode(w, http.StatusUnauthorized, "Authentication required", CodeAuthRequired)
	case errors.Is(err, app.ErrInvalidReviewStatus),
		errors.Is(err, app.ErrInvalidAlertStatus),
		errors.Is(err, app.ErrEmptyPatch),
		errors.Is(err, app.ErrInvalidPatch):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error(fallback, "error", err)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeErrorCode(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, map[string]string{"error": message, "code": code})
}
