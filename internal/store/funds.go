package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/joiedevivre/gifting-service/internal/domain"
)

const fundColumns = `
	f.id, f.creator_id, f.beneficiary_user_id, f.beneficiary_contact_id,
	f.title, COALESCE(f.occasion, ''), f.target_amount, f.current_amount, f.currency,
	f.status, f.is_public, f.reveal_date, f.is_surprise, f.surprise_message,
	f.surprise_song_prompt, f.revealed_at, f.created_at`

func scanFund(row pgx.Row) (domain.Fund, error) {
	var f domain.Fund
	err := row.Scan(
		&f.ID, &f.CreatorID, &f.BeneficiaryUserID, &f.BeneficiaryContactID,
		&f.Title, &f.Occasion, &f.TargetAmount, &f.CurrentAmount, &f.Currency,
		&f.Status, &f.IsPublic, &f.RevealDate, &f.IsSurprise, &f.SurpriseMessage,
		&f.SurpriseSongPrompt, &f.RevealedAt, &f.CreatedAt,
	)
	return f, err
}

// ClaimDueSurpriseFunds stamps up to limit due surprise funds with token and returns them.
// A fund whose claim is younger than lease is left to the pass that holds it.
func (r *Repository) ClaimDueSurpriseFunds(ctx context.Context, token uuid.UUID, lease time.Duration, limit int) ([]domain.Fund, error) {
	if limit <= 0 {
		limit = 100
	}
	leaseSeconds := int(lease.Seconds())
	if leaseSeconds <= 0 {
		leaseSeconds = 600
	}

	query := `
		WITH due AS (
			SELECT id
			FROM funds
			WHERE is_surprise = TRUE
			  AND status <> 'revealed'
			  AND reveal_date IS NOT NULL
			  AND reveal_date <= NOW()
			  AND (reveal_claimed_at IS NULL OR reveal_claimed_at < NOW() - ($3 * INTERVAL '1 second'))
			ORDER BY reveal_date
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE funds AS f
		SET reveal_claim_token = $1,
			reveal_claimed_at = NOW()
		FROM due
		WHERE f.id = due.id
		RETURNING ` + fundColumns

	rows, err := r.db.Query(ctx, query, token, limit, leaseSeconds)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	funds := make([]domain.Fund, 0, limit)
	for rows.Next() {
		f, err := scanFund(rows)
		if err != nil {
			return nil, err
		}
		funds = append(funds, f)
	}
	return funds, rows.Err()
}

// RenewFundClaim refreshes the claim on fundID if token still holds it. False means the
// lease lapsed and another pass took the fund, or it is already revealed.
func (r *Repository) RenewFundClaim(ctx context.Context, fundID, token uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE funds
		SET reveal_claimed_at = NOW()
		WHERE id = $1
		  AND reveal_claim_token = $2
		  AND status <> 'revealed'
	`, fundID, token)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkFundRevealed performs the one-way transition to revealed. It only succeeds for
// the pass still holding the claim; false means another writer got there first.
func (r *Repository) MarkFundRevealed(ctx context.Context, fundID, token uuid.UUID) (bool, error) {
	query := `
		UPDATE funds
		SET status = 'revealed',
			revealed_at = NOW(),
			reveal_claim_token = NULL,
			reveal_claimed_at = NULL,
			updated_at = NOW()
		WHERE id = $1
		  AND reveal_claim_token = $2
		  AND status <> 'revealed'
	`
	tag, err := r.db.Exec(ctx, query, fundID, token)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// GetFund loads a fund by id.
func (r *Repository) GetFund(ctx context.Context, fundID uuid.UUID) (*domain.Fund, error) {
	f, err := scanFund(r.db.QueryRow(ctx, `SELECT `+fundColumns+` FROM funds f WHERE f.id = $1`, fundID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFundNotFound
		}
		return nil, err
	}
	return &f, nil
}

// GetProfile returns the name fields of a user, or nil when no profile exists.
func (r *Repository) GetProfile(ctx context.Context, userID uuid.UUID) (*domain.Profile, error) {
	p := domain.Profile{UserID: userID}
	err := r.db.QueryRow(ctx,
		`SELECT first_name, last_name FROM profiles WHERE user_id = $1`, userID,
	).Scan(&p.FirstName, &p.LastName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// FindBeneficiaryUserID resolves the platform account a fund is addressed to.
// It returns nil when the beneficiary is an external contact with no linked account.
func (r *Repository) FindBeneficiaryUserID(ctx context.Context, fund domain.Fund) (*uuid.UUID, error) {
	if fund.BeneficiaryUserID != nil {
		id := *fund.BeneficiaryUserID
		return &id, nil
	}
	if fund.BeneficiaryContactID == nil {
		return nil, nil
	}

	var linked *uuid.UUID
	err := r.db.QueryRow(ctx,
		`SELECT linked_user_id FROM contacts WHERE id = $1`, *fund.BeneficiaryContactID,
	).Scan(&linked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return linked, nil
}

// reciprocityCandidatesQuery resolves each past fund's beneficiary the way
// FindBeneficiaryUserID does: the direct user id, else the contact's linked account.
const reciprocityCandidatesQuery = `
	WITH target AS (
		SELECT id, creator_id FROM funds WHERE id = $1
	),
	received AS (
		SELECT
			COALESCE(past.beneficiary_user_id, ct.linked_user_id) AS user_id,
			c.amount,
			c.currency,
			c.created_at
		FROM target t
		JOIN contributions c ON c.contributor_id = t.creator_id
		JOIN funds past ON past.id = c.fund_id AND past.id <> t.id
		LEFT JOIN contacts ct ON ct.id = past.beneficiary_contact_id
	)
	SELECT DISTINCT ON (rc.user_id)
		rc.user_id,
		rc.amount,
		rc.currency,
		rc.created_at,
		COALESCE(rs.generosity_score, 0)::float8
	FROM received rc
	CROSS JOIN target t
	LEFT JOIN reciprocity_scores rs ON rs.user_id = rc.user_id
	WHERE rc.user_id IS NOT NULL
	  AND rc.user_id <> t.creator_id
	  AND NOT EXISTS (
		SELECT 1 FROM contributions mine
		WHERE mine.fund_id = t.id
		  AND mine.contributor_id = rc.user_id
	  )
	ORDER BY rc.user_id, rc.created_at DESC
`

// ListReciprocityCandidates returns the users who were beneficiaries of funds the creator
// of fundID contributed to and who have not contributed to fundID. Only the most recent
// past contribution per candidate is kept.
func (r *Repository) ListReciprocityCandidates(ctx context.Context, fundID uuid.UUID) ([]domain.ReciprocityCandidate, error) {
	rows, err := r.db.Query(ctx, reciprocityCandidatesQuery, fundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []domain.ReciprocityCandidate
	for rows.Next() {
		var c domain.ReciprocityCandidate
		if err := rows.Scan(&c.UserID, &c.PastContributionAmount, &c.Currency, &c.PastContributionDate, &c.GenerosityScore); err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}
