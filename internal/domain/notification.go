package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Notification type tags written to scheduled_notifications.notification_type.
const (
	NotificationTypeSurpriseRevealed    = "surprise_revealed"
	NotificationTypeReciprocityReminder = "reciprocity_reminder"
)

// Delivery channels understood by the delivery worker.
const (
	ChannelEmail = "email"
	ChannelPush  = "push"
	ChannelInApp = "in_app"
)

// ScheduledNotification is an outbound message queued for the delivery worker.
type ScheduledNotification struct {
	ID               uuid.UUID              `json:"id"`
	UserID           uuid.UUID              `json:"user_id"`
	NotificationType string                 `json:"notification_type"`
	Title            string                 `json:"title"`
	Message          string                 `json:"message"`
	ScheduledFor     time.Time              `json:"scheduled_for"`
	DeliveryMethods  []string               `json:"delivery_methods"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
	Status           string                 `json:"status"`
	DedupeKey        *string                `json:"-"`
	CreatedAt        time.Time              `json:"created_at"`
}

// DailyDedupeKey builds the key that limits a recipient to one notification of a
// given type per subject and calendar day (UTC).
func DailyDedupeKey(notificationType string, userID, subjectID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("%s:%s:%s:%s", notificationType, userID, subjectID, at.UTC().Format("2006-01-02"))
}
