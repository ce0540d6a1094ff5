package resolver_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/couchcryptid/cadet-location-service/internal/domain"
	"github.com/couchcryptid/cadet-location-service/internal/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingNotifier struct{ err error }

func (f failingNotifier) Notify(context.Context, domain.Notification) error { return f.err }

func note(msg string) domain.Notification {
	return domain.Notification{Level: domain.LevelInfo, Operation: domain.OpForward, Message: msg}
}

func messages(ns []domain.Notification) []string {
	out := make([]string, 0, len(ns))
	for _, n := range ns {
		out = append(out, n.Message)
	}
	return out
}

func TestFeed_RecentNewestFirst(t *testing.T) {
	feed := resolver.NewFeed(5)
	for _, m := range []string{"a", "b", "c"} {
		require.NoError(t, feed.Notify(context.Background(), note(m)))
	}

	assert.Equal(t, []string{"c", "b", "a"}, messages(feed.Recent()))
}

func TestFeed_DropsOldestWhenFull(t *testing.T) {
	feed := resolver.NewFeed(3)
	for _, m := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, feed.Notify(context.Background(), note(m)))
	}

	assert.Equal(t, []string{"e", "d", "c"}, messages(feed.Recent()))
}

func TestFeed_EmptyAndDefaultSize(t *testing.T) {
	feed := resolver.NewFeed(0)
	assert.Empty(t, feed.Recent())

	for range resolver.DefaultFeedSize + 10 {
		require.NoError(t, feed.Notify(context.Background(), note("x")))
	}
	assert.Len(t, feed.Recent(), resolver.DefaultFeedSize)
}

func TestNotifiers_DeliversToAllAndJoinsErrors(t *testing.T) {
	feed := resolver.NewFeed(2)
	boom := errors.New("broker down")
	ns := resolver.Notifiers{failingNotifier{err: boom}, feed}

	err := ns.Notify(context.Background(), note("hello"))

	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"hello"}, messages(feed.Recent()))
}

func TestLogNotifier_LevelMapping(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	n := resolver.NewLogNotifier(logger)

	require.NoError(t, n.Notify(context.Background(), domain.Notification{
		Level: domain.LevelError, Operation: domain.OpRoute, Message: "Failed to calculate route", Detail: "status 502",
	}))
	require.NoError(t, n.Notify(context.Background(), domain.Notification{
		Level: domain.LevelSuccess, Operation: domain.OpRoute, Message: "Route calculated successfully",
	}))

	out := buf.String()
	assert.Contains(t, out, `level=WARN msg="Failed to calculate route"`)
	assert.Contains(t, out, "detail=\"status 502\"")
	assert.Contains(t, out, `level=INFO msg="Route calculated successfully"`)
}
