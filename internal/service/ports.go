package service

import (
	"context"

	"github.com/pairwave/chat-backend/internal/notify"
	"github.com/pairwave/chat-backend/internal/ws"
)

// Broadcaster pushes real-time events to a connected user. Injected at
// construction; delivery is best-effort and never fails the caller.
type Broadcaster interface {
	SendToUser(userID string, event *ws.Event)
}

// Notifier hands a notification to the external notification/email
// pipeline. Best-effort; failures are logged and swallowed.
type Notifier interface {
	Notify(ctx context.Context, n notify.Notification) error
}
