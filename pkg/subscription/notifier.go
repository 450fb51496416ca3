package subscription

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// EventKind identifies a user-facing subscription event.
type EventKind string

const (
	EventWaitingListJoined     EventKind = "waiting_list_joined"
	EventWaitingListPromoted   EventKind = "waiting_list_promoted"
	EventSubscriptionRenewed   EventKind = "subscription_renewed"
	EventSubscriptionSuspended EventKind = "subscription_suspended"
	EventSubscriptionCancelled EventKind = "subscription_cancelled"
	EventSubscriptionExpired   EventKind = "subscription_expired"
)

// Notifier abstracts notification dispatch. Delivery is fire-and-forget:
// the service logs failures and never lets them roll back a transition.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, kind EventKind, payload map[string]any) error
}

// LogNotifier is a Notifier that only writes structured log records.
// Useful as a default and for local development.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger falls back to
// slog.Default().
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(ctx context.Context, userID uuid.UUID, kind EventKind, payload map[string]any) error {
	n.log.InfoContext(ctx, "subscription notification",
		slog.String("user_id", userID.String()),
		slog.String("kind", string(kind)),
		slog.Any("payload", payload),
	)
	return nil
}
