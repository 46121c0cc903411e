/**
 * @description
 * Core domain models for collective gift funds ("cagnottes") and the
 * contributions made toward them.
 *
 * @notes
 * - Amounts use shopspring/decimal because fund currencies (XOF, EUR, ...) do not
 *   share a common minor unit and the source data is stored as NUMERIC.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Fund statuses. FundStatusRevealed is terminal.
const (
	FundStatusActive        = "active"
	FundStatusTargetReached = "target_reached"
	FundStatusExpired       = "expired"
	FundStatusRevealed      = "revealed"
)

// Fund represents a collective gift campaign as stored in the `funds` table.
type Fund struct {
	ID                   uuid.UUID       `json:"id"`
	CreatorID            uuid.UUID       `json:"creator_id"`
	BeneficiaryUserID    *uuid.UUID      `json:"beneficiary_user_id,omitempty"`
	BeneficiaryContactID *uuid.UUID      `json:"beneficiary_contact_id,omitempty"`
	Title                string          `json:"title"`
	Occasion             string          `json:"occasion"`
	TargetAmount         decimal.Decimal `json:"target_amount"`
	CurrentAmount        decimal.Decimal `json:"current_amount"`
	Currency             string          `json:"currency"`
	Status               string          `json:"status"`
	IsPublic             bool            `json:"is_public"`
	RevealDate           *time.Time      `json:"reveal_date,omitempty"`
	IsSurprise           bool            `json:"is_surprise"`
	SurpriseMessage      *string         `json:"surprise_message,omitempty"`
	SurpriseSongPrompt   *string         `json:"surprise_song_prompt,omitempty"`
	RevealedAt           *time.Time      `json:"revealed_at,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
}

// Contribution is a monetary pledge by a contributor toward a fund.
type Contribution struct {
	ID            uuid.UUID       `json:"id"`
	FundID        uuid.UUID       `json:"fund_id"`
	ContributorID uuid.UUID       `json:"contributor_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ReciprocityCandidate is derived per fund: a user who previously received a
// contribution from the fund's creator and has not contributed to this fund yet.
type ReciprocityCandidate struct {
	UserID                 uuid.UUID       `json:"user_id"`
	PastContributionAmount decimal.Decimal `json:"past_contribution_amount"`
	Currency               string          `json:"currency"`
	PastContributionDate   time.Time       `json:"past_contribution_date"`
	GenerosityScore        float64         `json:"generosity_score"`
}

// Profile holds the public name fields of a platform user.
type Profile struct {
	UserID    uuid.UUID `json:"user_id"`
	FirstName *string   `json:"first_name,omitempty"`
	LastName  *string   `json:"last_name,omitempty"`
}

// Post is a social feed entry created on behalf of a user.
type Post struct {
	ID         uuid.UUID              `json:"id"`
	AuthorID   uuid.UUID              `json:"user_id"`
	Content    string                 `json:"content"`
	Visibility string                 `json:"visibility"`
	PostType   string                 `json:"post_type"`
	MediaURL   *string                `json:"media_url,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}
