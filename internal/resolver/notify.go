package resolver

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/couchcryptid/cadet-location-service/internal/domain"
)

// DefaultFeedSize is the number of notifications a Feed keeps by default.
const DefaultFeedSize = 50

// LogNotifier writes notifications to a structured logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier that logs errors at Warn and everything
// else at Info.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify implements domain.Notifier.
func (l *LogNotifier) Notify(ctx context.Context, n domain.Notification) error {
	level := slog.LevelInfo
	if n.Level == domain.LevelError {
		level = slog.LevelWarn
	}
	attrs := []any{"notification_level", n.Level, "operation", n.Operation}
	if n.Detail != "" {
		attrs = append(attrs, "detail", n.Detail)
	}
	l.logger.Log(ctx, level, n.Message, attrs...)
	return nil
}

// Feed keeps the most recent notifications in a fixed-size ring so the
// dashboard can poll and render them.
type Feed struct {
	mu    sync.Mutex
	items []domain.Notification
	next  int
	full  bool
}

// NewFeed creates a feed holding up to size notifications.
func NewFeed(size int) *Feed {
	if size <= 0 {
		size = DefaultFeedSize
	}
	return &Feed{items: make([]domain.Notification, size)}
}

// Notify implements domain.Notifier.
func (f *Feed) Notify(_ context.Context, n domain.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.items[f.next] = n
	f.next = (f.next + 1) % len(f.items)
	if f.next == 0 {
		f.full = true
	}
	return nil
}

// Recent returns the retained notifications, newest first.
func (f *Feed) Recent() []domain.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := f.next
	if f.full {
		count = len(f.items)
	}
	out := make([]domain.Notification, 0, count)
	for i := 1; i <= count; i++ {
		idx := (f.next - i + len(f.items)) % len(f.items)
		out = append(out, f.items[idx])
	}
	return out
}

// Notifiers delivers each notification to every member. All members are
// attempted; their errors are joined.
type Notifiers []domain.Notifier

// Notify implements domain.Notifier.
func (ns Notifiers) Notify(ctx context.Context, n domain.Notification) error {
	var errs []error
	for _, notifier := range ns {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
