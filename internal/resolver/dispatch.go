package resolver

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/cadet-location-service/internal/domain"
	"github.com/couchcryptid/cadet-location-service/internal/observability"
)

// DefaultNotifyTimeout bounds a single notification delivery.
const DefaultNotifyTimeout = 5 * time.Second

const notifyQueueSize = 256

type dispatchItem struct {
	note    domain.Notification
	flushed chan struct{} // set for flush markers only
}

// dispatcher delivers notifications in order on its own goroutine so a slow
// or hung notifier never holds up a lookup. When the queue is full new
// notifications are dropped.
type dispatcher struct {
	notifier domain.Notifier
	timeout  time.Duration
	queue    chan dispatchItem
	stop     chan struct{}
	logger   *slog.Logger
	metrics  *observability.Metrics

	mu     sync.Mutex
	closed bool
}

func newDispatcher(notifier domain.Notifier, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *dispatcher {
	if timeout <= 0 {
		timeout = DefaultNotifyTimeout
	}
	d := &dispatcher{
		notifier: notifier,
		timeout:  timeout,
		queue:    make(chan dispatchItem, notifyQueueSize),
		stop:     make(chan struct{}),
		logger:   logger,
		metrics:  metrics,
	}
	go d.run()
	return d
}

// send enqueues n without blocking.
func (d *dispatcher) send(n domain.Notification) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.drop(n, "dispatcher closed")
		return
	}
	select {
	case d.queue <- dispatchItem{note: n}:
	default:
		d.drop(n, "queue full")
	}
}

// flush waits until everything enqueued before the call has been delivered.
func (d *dispatcher) flush(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case d.queue <- dispatchItem{flushed: done}:
	case <-d.stop:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-d.stop:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close flushes pending deliveries and stops the worker. Later sends are
// dropped.
func (d *dispatcher) close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	err := d.flush(ctx)
	close(d.stop)
	return err
}

func (d *dispatcher) run() {
	for {
		select {
		case item := <-d.queue:
			if item.flushed != nil {
				close(item.flushed)
				continue
			}
			d.deliver(item.note)
		case <-d.stop:
			return
		}
	}
}

func (d *dispatcher) deliver(n domain.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.notifier.Notify(ctx, n); err != nil {
		d.logger.Warn("notification delivery failed", "operation", n.Operation, "error", err)
	}
}

func (d *dispatcher) drop(n domain.Notification, reason string) {
	d.metrics.NotificationsDropped.Inc()
	d.logger.Warn("notification dropped", "operation", n.Operation, "message", n.Message, "reason", reason)
}
