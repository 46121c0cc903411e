/**
 * @description
 * Result payloads returned by the batch operations and the events they publish.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// FundRevealResult is the per-fund outcome of a reveal pass.
type FundRevealResult struct {
	FundID               uuid.UUID `json:"fund_id"`
	Revealed             bool      `json:"revealed"`
	AudioGenerated       bool      `json:"audio_generated"`
	ContributorsNotified int       `json:"contributors_notified"`
	Errors               []string  `json:"errors,omitempty"`
}

// RevealPassResult summarizes one reveal pass.
type RevealPassResult struct {
	Success bool               `json:"success"`
	Count   int                `json:"count"`
	Skipped bool               `json:"skipped,omitempty"`
	Results []FundRevealResult `json:"results"`
}

// ReciprocityResult summarizes one reciprocity notification run.
type ReciprocityResult struct {
	Success       bool   `json:"success"`
	NotifiedCount int    `json:"notified_count"`
	FundTitle     string `json:"fund_title"`
	Creator       string `json:"creator"`
}

// FundRevealedEvent is published once a fund's reveal transition has been won.
type FundRevealedEvent struct {
	FundID            uuid.UUID  `json:"fund_id"`
	CreatorID         uuid.UUID  `json:"creator_id"`
	BeneficiaryUserID *uuid.UUID `json:"beneficiary_user_id,omitempty"`
	PostID            *uuid.UUID `json:"post_id,omitempty"`
	AudioURL          *string    `json:"audio_url,omitempty"`
	RevealedAt        time.Time  `json:"revealed_at"`
}

// NotificationsScheduledEvent nudges the delivery worker after a bulk enqueue.
type NotificationsScheduledEvent struct {
	NotificationType string    `json:"notification_type"`
	FundID           uuid.UUID `json:"fund_id"`
	Count            int       `json:"count"`
	ScheduledAt      time.Time `json:"scheduled_at"`
}
