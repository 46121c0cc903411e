package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/joiedevivre/gifting-service/internal/domain"
)

// CreatePost inserts a social post and returns its identifier.
func (r *Repository) CreatePost(ctx context.Context, post domain.Post) (uuid.UUID, error) {
	metadata := post.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return uuid.Nil, err
	}

	query := `
		INSERT INTO posts (user_id, content, visibility, post_type, media_url, metadata)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb)
		RETURNING id
	`
	var id uuid.UUID
	err = r.db.QueryRow(ctx, query,
		post.AuthorID,
		post.Content,
		post.Visibility,
		post.PostType,
		post.MediaURL,
		string(metadataJSON),
	).Scan(&id)
	return id, err
}
