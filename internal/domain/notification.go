package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Notification levels.
const (
	LevelError   = "error"
	LevelSuccess = "success"
	LevelInfo    = "info"
)

// Operation names used in notifications, metrics, and logs.
const (
	OpForward = "forward"
	OpReverse = "reverse"
	OpRoute   = "route"
	OpLocate  = "locate"
)

// Notification is a user-visible message about a lookup outcome.
// ID lets consumers of several channels drop duplicates.
type Notification struct {
	ID        string    `json:"id"`
	Level     string    `json:"level"`
	Operation string    `json:"operation"`
	Message   string    `json:"message"`
	Detail    string    `json:"detail,omitempty"`
	EmittedAt time.Time `json:"emitted_at"`
}

// NewNotification stamps a notification with the current time.
func NewNotification(level, operation, message string, cause error) Notification {
	n := Notification{
		ID:        uuid.NewString(),
		Level:     level,
		Operation: operation,
		Message:   message,
		EmittedAt: clock.Now().UTC(),
	}
	if cause != nil {
		n.Detail = cause.Error()
	}
	return n
}

// Notifier delivers notifications to the user. Delivery failures are the
// notifier's problem to report; callers only log them.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
