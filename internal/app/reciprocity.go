package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joiedevivre/gifting-service/internal/config"
	"github.com/joiedevivre/gifting-service/internal/domain"
	"github.com/joiedevivre/gifting-service/pkg/rabbitmq"
)

// DefaultCreatorName is shown when the fund creator has no usable profile name.
const DefaultCreatorName = "Un utilisateur"

const reciprocityTitle = "🎉 C'est le moment de rendre la pareille !"

// ReciprocityRepository defines the lookups needed to build reciprocity reminders.
type ReciprocityRepository interface {
	GetFund(ctx context.Context, fundID uuid.UUID) (*domain.Fund, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*domain.Profile, error)
	ListReciprocityCandidates(ctx context.Context, fundID uuid.UUID) ([]domain.ReciprocityCandidate, error)
}

// ReciprocityService reminds past beneficiaries of a creator to contribute back.
type ReciprocityService struct {
	repo     ReciprocityRepository
	notifier NotificationEnqueuer
	events   EventPublisher
	metrics  *Metrics
	logger   *slog.Logger
	config   config.Config
	now      func() time.Time
}

// NewReciprocityService creates a reciprocity service. events and metrics may be nil.
func NewReciprocityService(repo ReciprocityRepository, notifier NotificationEnqueuer, events EventPublisher, metrics *Metrics, logger *slog.Logger, cfg config.Config) *ReciprocityService {
	return &ReciprocityService{
		repo:     repo,
		notifier: notifier,
		events:   events,
		metrics:  metrics,
		logger:   logger,
		config:   cfg,
		now:      time.Now,
	}
}

// NotifyCandidates enqueues one reciprocity reminder per candidate of fundID.
func (s *ReciprocityService) NotifyCandidates(ctx context.Context, fundID uuid.UUID) (*domain.ReciprocityResult, error) {
	fund, err := s.repo.GetFund(ctx, fundID)
	if err != nil {
		return nil, fmt.Errorf("load fund %s: %w", fundID, err)
	}
	logger := s.logger.With("fund_id", fund.ID)

	profile, err := s.repo.GetProfile(ctx, fund.CreatorID)
	if err != nil {
		logger.Warn("failed to load creator profile, using default name", "creator_id", fund.CreatorID, "error", err)
		profile = nil
	}
	creatorName := DisplayName(profile)

	candidates, err := s.repo.ListReciprocityCandidates(ctx, fund.ID)
	if err != nil {
		return nil, fmt.Errorf("list reciprocity candidates for fund %s: %w", fund.ID, err)
	}

	result := &domain.ReciprocityResult{Success: true, FundTitle: fund.Title, Creator: creatorName}
	if len(candidates) == 0 {
		logger.Info("no reciprocity candidates for fund")
		return result, nil
	}

	now := s.now()
	notifications := make([]domain.ScheduledNotification, 0, len(candidates))
	for _, candidate := range candidates {
		notifications = append(notifications, buildReciprocityNotification(*fund, creatorName, candidate, now))
	}

	inserted, err := s.notifier.EnqueueNotifications(ctx, notifications)
	if err != nil {
		return nil, fmt.Errorf("enqueue reciprocity reminders for fund %s: %w", fund.ID, err)
	}
	result.NotifiedCount = inserted
	s.metrics.notificationsEnqueued(domain.NotificationTypeReciprocityReminder, inserted)
	logger.Info("reciprocity reminders enqueued", "candidates", len(candidates), "inserted", inserted)

	if inserted > 0 && s.events != nil {
		event := domain.NotificationsScheduledEvent{
			NotificationType: domain.NotificationTypeReciprocityReminder,
			FundID:           fund.ID,
			Count:            inserted,
			ScheduledAt:      now.UTC(),
		}
		if err := s.events.Publish(ctx, s.config.EventsExchange, rabbitmq.RoutingKeyNotificationsScheduled, event); err != nil {
			logger.Warn("failed to publish notifications scheduled event", "error", err)
		}
	}

	return result, nil
}

// DisplayName joins first and last name, falling back to DefaultCreatorName.
func DisplayName(p *domain.Profile) string {
	if p == nil {
		return DefaultCreatorName
	}
	var parts []string
	if p.FirstName != nil {
		parts = append(parts, strings.TrimSpace(*p.FirstName))
	}
	if p.LastName != nil {
		parts = append(parts, strings.TrimSpace(*p.LastName))
	}
	name := strings.TrimSpace(strings.Join(parts, " "))
	if name == "" {
		return DefaultCreatorName
	}
	return name
}

func buildReciprocityNotification(fund domain.Fund, creatorName string, candidate domain.ReciprocityCandidate, now time.Time) domain.ScheduledNotification {
	currency := candidate.Currency
	if currency == "" {
		currency = fund.Currency
	}
	amount := candidate.PastContributionAmount.String()
	dedupeKey := domain.DailyDedupeKey(domain.NotificationTypeReciprocityReminder, candidate.UserID, fund.ID, now)

	return domain.ScheduledNotification{
		UserID:           candidate.UserID,
		NotificationType: domain.NotificationTypeReciprocityReminder,
		Title:            reciprocityTitle,
		Message: fmt.Sprintf("%s vous avait offert %s %s. Participez à sa cagnotte « %s » pour lui rendre la pareille !",
			creatorName, amount, currency, fund.Title),
		ScheduledFor:    now.UTC(),
		DeliveryMethods: []string{domain.ChannelPush, domain.ChannelInApp},
		Metadata: map[string]interface{}{
			"fund_id":                  fund.ID.String(),
			"past_contribution_amount": amount,
			"past_contribution_date":   candidate.PastContributionDate.UTC().Format(time.RFC3339),
			"generosity_score":         candidate.GenerosityScore,
			"fund_title":               fund.Title,
			"creator_name":             creatorName,
			"occasion":                 fund.Occasion,
		},
		Status:    "pending",
		DedupeKey: &dedupeKey,
	}
}
