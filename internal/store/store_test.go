package store

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joiedevivre/gifting-service/internal/domain"
	"github.com/shopspring/decimal"
)

func TestBuildAlertPatch_OnlySetsProvidedFields(t *testing.T) {
	severity := domain.SeverityHigh
	notes := "corrected totals"
	received := decimal.NewFromInt(120000)

	setClause, args := buildAlertPatch(domain.AlertPatch{
		Severity:      &severity,
		TotalReceived: &received,
		AdminNotes:    &notes,
	}, 2)

	want := "severity = $2, total_received = $3, admin_notes = $4"
	if setClause != want {
		t.Fatalf("expected %q, got %q", want, setClause)
	}
	if len(args) != 3 {
		t.Fatalf("expected 3 args, got %d", len(args))
	}
	if args[0] != severity || args[2] != notes {
		t.Fatalf("unexpected args: %#v", args)
	}
	if got := args[1].(decimal.Decimal); !got.Equal(received) {
		t.Fatalf("expected total_received %s, got %s", received, got)
	}
}

func TestBuildAlertPatch_EmptyPatch(t *testing.T) {
	setClause, args := buildAlertPatch(domain.AlertPatch{}, 2)
	if setClause != "" || len(args) != 0 {
		t.Fatalf("expected empty patch to render nothing, got %q %v", setClause, args)
	}
}

func TestBuildEnqueueNotificationsQuery_NumbersPlaceholdersPerRow(t *testing.T) {
	key := "reciprocity_reminder:a:b:2024-01-10"
	now := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)
	items := []domain.ScheduledNotification{
		{UserID: uuid.New(), NotificationType: domain.NotificationTypeReciprocityReminder, Title: "t", Message: "m", DedupeKey: &key},
		{UserID: uuid.New(), NotificationType: domain.NotificationTypeReciprocityReminder, Title: "t", Message: "m",
			Metadata: map[string]interface{}{"fund_id": "f"}},
	}

	query, args, err := buildEnqueueNotificationsQuery(items, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(args) != 2*notificationInsertColumns {
		t.Fatalf("expected %d args, got %d", 2*notificationInsertColumns, len(args))
	}
	if !strings.Contains(query, "($10, $11, $12, $13, $14, $15::text[], $16::jsonb, $17, $18)") {
		t.Fatalf("second row placeholders missing from query: %s", query)
	}
	if !strings.Contains(query, "ON CONFLICT (dedupe_key) WHERE dedupe_key IS NOT NULL DO NOTHING") {
		t.Fatalf("expected dedupe conflict clause, got: %s", query)
	}
	if args[4] != now {
		t.Fatalf("expected zero scheduled_for to default to now, got %v", args[4])
	}
	if args[7] != "pending" {
		t.Fatalf("expected default status pending, got %v", args[7])
	}
	if args[6] != "{}" {
		t.Fatalf("expected nil metadata to encode as {}, got %v", args[6])
	}
	if args[15] != `{"fund_id":"f"}` {
		t.Fatalf("unexpected metadata json: %v", args[15])
	}
}

func TestListener_BroadcastAndClose(t *testing.T) {
	l := NewListener(nil, AlertsChangedChannel, slog.New(slog.NewTextHandler(io.Discard, nil)))
	first := l.Subscribe()
	second := l.Subscribe()

	l.broadcast("alert-1")

	for _, sub := range []*Subscription{first, second} {
		select {
		case got := <-sub.Changes():
			if got != "alert-1" {
				t.Fatalf("expected alert-1, got %q", got)
			}
		default:
			t.Fatal("expected a change signal")
		}
	}

	first.Close()
	first.Close()
	if _, ok := <-first.Changes(); ok {
		t.Fatal("expected closed subscription channel")
	}

	l.broadcast("alert-2")
	if got := <-second.Changes(); got != "alert-2" {
		t.Fatalf("expected alert-2, got %q", got)
	}
}

func TestListener_BroadcastDoesNotBlockOnFullBuffer(t *testing.T) {
	l := NewListener(nil, AlertsChangedChannel, slog.New(slog.NewTextHandler(io.Discard, nil)))
	sub := l.Subscribe()
	defer sub.Close()

	for i := 0; i < subscriptionBuffer+5; i++ {
		l.broadcast("alert")
	}
	if n := len(sub.Changes()); n != subscriptionBuffer {
		t.Fatalf("expected buffer to hold %d signals, got %d", subscriptionBuffer, n)
	}
}

func TestReciprocityCandidatesQuery_ResolvesLinkedContacts(t *testing.T) {
	query := strings.Join(strings.Fields(reciprocityCandidatesQuery), " ")

	for _, want := range []string{
		"LEFT JOIN contacts ct ON ct.id = past.beneficiary_contact_id",
		"COALESCE(past.beneficiary_user_id, ct.linked_user_id) AS user_id",
		"DISTINCT ON (rc.user_id)",
		"rs.user_id = rc.user_id",
		"mine.contributor_id = rc.user_id",
	} {
		if !strings.Contains(query, want) {
			t.Fatalf("expected candidate query to contain %q", want)
		}
	}
	if strings.Contains(query, "past.beneficiary_user_id IS NOT NULL") {
		t.Fatal("expected contact beneficiaries not to be filtered out")
	}
}
