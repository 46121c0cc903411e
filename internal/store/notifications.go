package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/joiedevivre/gifting-service/internal/domain"
)

const notificationInsertColumns = 9

// EnqueueNotifications bulk-inserts scheduled notifications in one statement and returns
// how many rows were actually written. Rows whose dedupe_key already exists are skipped.
func (r *Repository) EnqueueNotifications(ctx context.Context, items []domain.ScheduledNotification) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	query, args, err := buildEnqueueNotificationsQuery(items, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	inserted := 0
	for rows.Next() {
		inserted++
	}
	return inserted, rows.Err()
}

func buildEnqueueNotificationsQuery(items []domain.ScheduledNotification, now time.Time) (string, []interface{}, error) {
	var sb strings.Builder
	sb.WriteString(`
		INSERT INTO scheduled_notifications (
			user_id, notification_type, title, message, scheduled_for,
			delivery_methods, metadata, status, dedupe_key
		)
		VALUES `)

	args := make([]interface{}, 0, len(items)*notificationInsertColumns)
	for i, item := range items {
		metadata := item.Metadata
		if metadata == nil {
			metadata = map[string]interface{}{}
		}
		metadataJSON, err := json.Marshal(metadata)
		if err != nil {
			return "", nil, fmt.Errorf("encode metadata for %s: %w", item.UserID, err)
		}

		scheduledFor := item.ScheduledFor
		if scheduledFor.IsZero() {
			scheduledFor = now
		}
		status := item.Status
		if status == "" {
			status = "pending"
		}
		methods := item.DeliveryMethods
		if methods == nil {
			methods = []string{}
		}

		if i > 0 {
			sb.WriteString(", ")
		}
		base := len(args)
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d::text[], $%d::jsonb, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9)
		args = append(args,
			item.UserID,
			item.NotificationType,
			item.Title,
			item.Message,
			scheduledFor,
			methods,
			string(metadataJSON),
			status,
			item.DedupeKey,
		)
	}
	sb.WriteString(`
		ON CONFLICT (dedupe_key) WHERE dedupe_key IS NOT NULL DO NOTHING
		RETURNING id`)

	return sb.String(), args, nil
}
