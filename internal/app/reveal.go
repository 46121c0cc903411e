/**
 * @description
 * Surprise reveal pass. Each pass claims the surprise funds whose reveal date has
 * passed and runs the reveal cascade for them: audio, reveal post, beneficiary
 * notification, then the one-way transition to revealed.
 *
 * @notes
 * - Funds are processed one by one and a failing step never aborts the pass.
 *   Only a failure of the claim query is returned to the caller.
 * - The final transition is conditional on the claim token, so a pass that lost
 *   its claim reports revealed=false instead of revealing twice.
 */
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/joiedevivre/gifting-service/internal/config"
	"github.com/joiedevivre/gifting-service/internal/domain"
	"github.com/joiedevivre/gifting-service/pkg/rabbitmq"
)

const (
	revealPostVisibility = "friends"
	revealPostType       = "surprise_reveal"
)

// RevealRepository defines database operations needed by the reveal pass.
type RevealRepository interface {
	ClaimDueSurpriseFunds(ctx context.Context, token uuid.UUID, lease time.Duration, limit int) ([]domain.Fund, error)
	RenewFundClaim(ctx context.Context, fundID, token uuid.UUID) (bool, error)
	MarkFundRevealed(ctx context.Context, fundID, token uuid.UUID) (bool, error)
	FindBeneficiaryUserID(ctx context.Context, fund domain.Fund) (*uuid.UUID, error)
}

// AudioGenerator turns a song prompt into a hosted audio file.
type AudioGenerator interface {
	GenerateAudio(ctx context.Context, prompt string, durationSeconds int) (string, error)
}

// PostPublisher creates social posts.
type PostPublisher interface {
	CreatePost(ctx context.Context, post domain.Post) (uuid.UUID, error)
}

// NotificationEnqueuer persists scheduled notifications and reports how many were inserted.
type NotificationEnqueuer interface {
	EnqueueNotifications(ctx context.Context, items []domain.ScheduledNotification) (int, error)
}

// EventPublisher publishes domain events.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// RevealService runs surprise reveal passes.
type RevealService struct {
	repo     RevealRepository
	audio    AudioGenerator
	posts    PostPublisher
	notifier NotificationEnqueuer
	events   EventPublisher
	lock     PassLock
	metrics  *Metrics
	logger   *slog.Logger
	config   config.Config
	now      func() time.Time
}

// NewRevealService creates a reveal service. lock and metrics may be nil.
func NewRevealService(
	repo RevealRepository,
	audio AudioGenerator,
	posts PostPublisher,
	notifier NotificationEnqueuer,
	events EventPublisher,
	lock PassLock,
	metrics *Metrics,
	logger *slog.Logger,
	cfg config.Config,
) *RevealService {
	if lock == nil {
		lock = NoopPassLock{}
	}
	return &RevealService{
		repo:     repo,
		audio:    audio,
		posts:    posts,
		notifier: notifier,
		events:   events,
		lock:     lock,
		metrics:  metrics,
		logger:   logger,
		config:   cfg,
		now:      time.Now,
	}
}

// RunRevealPass claims due surprise funds and reveals each of them.
func (s *RevealService) RunRevealPass(ctx context.Context) (*domain.RevealPassResult, error) {
	started := time.Now()

	release, acquired, err := s.lock.TryAcquire(ctx)
	switch {
	case err != nil:
		s.logger.Warn("reveal pass lock unavailable, continuing without it", "error", err)
	case !acquired:
		s.logger.Info("reveal pass already running on another instance, skipping")
		s.metrics.observePass("skipped", started)
		return &domain.RevealPassResult{Success: true, Count: 0, Skipped: true, Results: []domain.FundRevealResult{}}, nil
	default:
		defer release()
	}

	token := uuid.New()
	funds, err := s.repo.ClaimDueSurpriseFunds(ctx, token, s.config.RevealClaimLease, s.config.RevealBatchSize)
	if err != nil {
		s.metrics.observePass("error", started)
		return nil, fmt.Errorf("claim due surprise funds: %w", err)
	}

	if len(funds) == 0 {
		s.logger.Info("no surprise funds due for reveal")
	} else {
		s.logger.Info("claimed surprise funds for reveal", "count", len(funds), "claim_token", token)
	}

	results := make([]domain.FundRevealResult, 0, len(funds))
	for _, fund := range funds {
		result := s.revealFund(ctx, fund, token)
		s.metrics.fundProcessed(result.Revealed)
		results = append(results, result)
	}

	s.metrics.observePass("ok", started)
	s.logger.Info("reveal pass finished", "count", len(results), "duration_ms", time.Since(started).Milliseconds())
	return &domain.RevealPassResult{Success: true, Count: len(results), Results: results}, nil
}

func (s *RevealService) revealFund(ctx context.Context, fund domain.Fund, token uuid.UUID) domain.FundRevealResult {
	logger := s.logger.With("fund_id", fund.ID)
	result := domain.FundRevealResult{FundID: fund.ID}
	var errs *multierror.Error

	fail := func(step string, err error) {
		s.metrics.stepFailed(step)
		logger.Error("reveal step failed", "step", step, "error", err)
		errs = multierror.Append(errs, fmt.Errorf("%s: %w", step, err))
	}
	// Every side effect runs under a freshly renewed claim. A pass that outlived its
	// lease stops here instead of posting or notifying for a fund another pass now owns.
	holdsClaim := func() bool {
		held, err := s.repo.RenewFundClaim(ctx, fund.ID, token)
		if err != nil {
			fail("renew_claim", err)
			return false
		}
		if !held {
			logger.Warn("reveal claim lost to another pass, skipping fund")
		}
		return held
	}

	if !holdsClaim() {
		return s.finishFund(logger, result, errs)
	}

	var audioURL *string
	if prompt := trimmed(fund.SurpriseSongPrompt); prompt != "" {
		audioCtx, cancel := context.WithTimeout(ctx, s.config.ContentGenerationTimeout)
		url, err := s.audio.GenerateAudio(audioCtx, prompt, s.config.AudioDurationSeconds)
		cancel()
		if err != nil {
			fail("generate_audio", err)
		} else {
			audioURL = &url
			result.AudioGenerated = true
		}
	}

	if audioURL != nil && !holdsClaim() {
		return s.finishFund(logger, result, errs)
	}

	beneficiaryID, err := s.repo.FindBeneficiaryUserID(ctx, fund)
	if err != nil {
		fail("resolve_beneficiary", err)
	}

	var postID *uuid.UUID
	postCtx, cancel := context.WithTimeout(ctx, s.config.PostPublishTimeout)
	id, err := s.posts.CreatePost(postCtx, buildRevealPost(fund, beneficiaryID, audioURL))
	cancel()
	if err != nil {
		fail("publish_post", err)
	} else {
		postID = &id
	}

	if beneficiaryID != nil {
		notification := buildRevealNotification(fund, *beneficiaryID, audioURL, postID, s.now())
		inserted, err := s.notifier.EnqueueNotifications(ctx, []domain.ScheduledNotification{notification})
		if err != nil {
			fail("notify_beneficiary", err)
		} else {
			result.ContributorsNotified = inserted
			s.metrics.notificationsEnqueued(domain.NotificationTypeSurpriseRevealed, inserted)
		}
	} else {
		logger.Info("beneficiary has no linked account, skipping notification")
	}

	revealed, err := s.repo.MarkFundRevealed(ctx, fund.ID, token)
	switch {
	case err != nil:
		fail("mark_revealed", err)
	case !revealed:
		logger.Warn("reveal claim lost to another pass")
	default:
		result.Revealed = true
		s.publishRevealed(ctx, logger, fund, beneficiaryID, postID, audioURL)
	}

	return s.finishFund(logger, result, errs)
}

func (s *RevealService) finishFund(logger *slog.Logger, result domain.FundRevealResult, errs *multierror.Error) domain.FundRevealResult {
	if errs != nil {
		for _, e := range errs.Errors {
			result.Errors = append(result.Errors, e.Error())
		}
	}
	logger.Info("processed surprise fund",
		"revealed", result.Revealed,
		"audio_generated", result.AudioGenerated,
		"contributors_notified", result.ContributorsNotified)
	return result
}

func (s *RevealService) publishRevealed(ctx context.Context, logger *slog.Logger, fund domain.Fund, beneficiaryID, postID *uuid.UUID, audioURL *string) {
	if s.events == nil {
		return
	}
	event := domain.FundRevealedEvent{
		FundID:            fund.ID,
		CreatorID:         fund.CreatorID,
		BeneficiaryUserID: beneficiaryID,
		PostID:            postID,
		AudioURL:          audioURL,
		RevealedAt:        s.now().UTC(),
	}
	if err := s.events.Publish(ctx, s.config.EventsExchange, rabbitmq.RoutingKeyFundRevealed, event); err != nil {
		s.metrics.stepFailed("publish_event")
		logger.Warn("failed to publish fund revealed event", "error", err)
	}
}

func buildRevealPost(fund domain.Fund, beneficiaryID *uuid.UUID, audioURL *string) domain.Post {
	content := trimmed(fund.SurpriseMessage)
	if content == "" {
		content = fmt.Sprintf("🎉 Surprise ! La cagnotte « %s » est enfin révélée !", fund.Title)
	}

	metadata := map[string]interface{}{
		"fund_id":             fund.ID.String(),
		"beneficiary_user_id": optionalID(beneficiaryID),
		"audio_url":           audioURL,
	}
	return domain.Post{
		AuthorID:   fund.CreatorID,
		Content:    content,
		Visibility: revealPostVisibility,
		PostType:   revealPostType,
		MediaURL:   audioURL,
		Metadata:   metadata,
	}
}

func buildRevealNotification(fund domain.Fund, userID uuid.UUID, audioURL *string, postID *uuid.UUID, now time.Time) domain.ScheduledNotification {
	dedupeKey := domain.DailyDedupeKey(domain.NotificationTypeSurpriseRevealed, userID, fund.ID, now)
	return domain.ScheduledNotification{
		UserID:           userID,
		NotificationType: domain.NotificationTypeSurpriseRevealed,
		Title:            "🎁 Votre surprise est prête !",
		Message:          fmt.Sprintf("Vos proches vous ont préparé une surprise : « %s ». Découvrez-la maintenant !", fund.Title),
		ScheduledFor:     now.UTC(),
		DeliveryMethods:  []string{domain.ChannelEmail, domain.ChannelPush, domain.ChannelInApp},
		Metadata: map[string]interface{}{
			"fund_id":    fund.ID.String(),
			"audio_url":  audioURL,
			"fund_title": fund.Title,
			"post_id":    optionalID(postID),
		},
		Status:    "pending",
		DedupeKey: &dedupeKey,
	}
}

func optionalID(id *uuid.UUID) interface{} {
	if id == nil {
		return nil
	}
	return id.String()
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
