// Package mqtt provides the device location capability over an MQTT broker.
//
// The console's GPS agent publishes fixes to the position topic:
//
//	{"lat": -1.9441, "lon": 30.0619, "accuracy": 4.5, "timestamp": "2026-03-01T12:00:00Z"}
//
// or, when the device refuses or cannot get a fix:
//
//	{"error": "User denied Geolocation"}
//
// Each CurrentPosition call publishes a request to the request topic so the
// agent takes a fresh reading:
//
//	{"high_accuracy": true, "timeout_ms": 5000, "maximum_age_ms": 0}
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/cadet-location-service/internal/domain"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/jonboulle/clockwork"
)

const qos = 1

// ErrNotConnected is returned while the broker connection is down.
var ErrNotConnected = errors.New("mqtt broker not connected")

// Options configures the broker connection.
type Options struct {
	Broker         string
	ClientID       string
	PositionTopic  string
	RequestTopic   string
	ConnectTimeout time.Duration
	// RetryInterval is the pause between connection attempts while the
	// broker is unreachable.
	RetryInterval time.Duration
}

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

type connection interface {
	IsConnectionOpen() bool
}

// Locator implements domain.DeviceLocator from fixes published over MQTT.
type Locator struct {
	client        paho.Client
	pub           publisher
	conn          connection // nil means always connected
	positionTopic string
	requestTopic  string
	clock         clockwork.Clock
	logger        *slog.Logger

	mu      sync.Mutex
	latest  *fix
	waiters map[chan fixResult]struct{}
}

type fix struct {
	coord      domain.Coordinate
	accuracy   float64
	receivedAt time.Time
}

type fixResult struct {
	coord domain.Coordinate
	err   error
}

// Connect dials the broker and subscribes to the position topic. The
// subscription is renewed on every reconnect. An unreachable broker is not
// an error: the client keeps retrying in the background and the Locator
// reports ErrNotConnected until the first connection succeeds.
func Connect(opts Options, logger *slog.Logger) (*Locator, error) {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 5 * time.Second
	}

	l := newLocator(nil, opts.PositionTopic, opts.RequestTopic, clockwork.NewRealClock(), logger)

	clientOpts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(opts.RetryInterval).
		SetConnectTimeout(opts.ConnectTimeout).
		SetOnConnectHandler(func(c paho.Client) {
			tok := c.Subscribe(opts.PositionTopic, qos, l.handleMessage)
			if tok.WaitTimeout(opts.ConnectTimeout) && tok.Error() != nil {
				logger.Error("mqtt subscribe failed", "topic", opts.PositionTopic, "error", tok.Error())
				return
			}
			logger.Info("mqtt subscribed", "topic", opts.PositionTopic)
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warn("mqtt connection lost", "error", err)
		})

	client := paho.NewClient(clientOpts)
	tok := client.Connect()
	if !tok.WaitTimeout(opts.ConnectTimeout) {
		logger.Warn("mqtt broker unreachable, retrying in background",
			"broker", opts.Broker, "retry_interval", opts.RetryInterval)
	} else if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", opts.Broker, err)
	}

	l.client = client
	l.pub = client
	l.conn = client
	return l, nil
}

func newLocator(pub publisher, positionTopic, requestTopic string, clock clockwork.Clock, logger *slog.Logger) *Locator {
	return &Locator{
		pub:           pub,
		positionTopic: positionTopic,
		requestTopic:  requestTopic,
		clock:         clock,
		logger:        logger,
		waiters:       make(map[chan fixResult]struct{}),
	}
}

// CurrentPosition returns a fix no older than opts.MaximumAge. With a zero
// MaximumAge it asks the device for a new reading and waits for the next
// fix, up to opts.Timeout.
func (l *Locator) CurrentPosition(ctx context.Context, opts domain.PositionOptions) (domain.Coordinate, error) {
	if opts.MaximumAge > 0 {
		if c, ok := l.cachedFix(opts.MaximumAge); ok {
			return c, nil
		}
	}
	if !l.connected() {
		return domain.Coordinate{}, ErrNotConnected
	}

	ch := make(chan fixResult, 1)
	l.mu.Lock()
	l.waiters[ch] = struct{}{}
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.waiters, ch)
		l.mu.Unlock()
	}()

	if err := l.requestFix(opts); err != nil {
		return domain.Coordinate{}, err
	}

	var timeout <-chan time.Time
	if opts.Timeout > 0 {
		timer := l.clock.NewTimer(opts.Timeout)
		defer timer.Stop()
		timeout = timer.Chan()
	}

	select {
	case res := <-ch:
		return res.coord, res.err
	case <-timeout:
		return domain.Coordinate{}, fmt.Errorf("timeout expired after %s", opts.Timeout)
	case <-ctx.Done():
		return domain.Coordinate{}, ctx.Err()
	}
}

// CheckReadiness reports whether the broker connection is up.
func (l *Locator) CheckReadiness(_ context.Context) error {
	if !l.connected() {
		return ErrNotConnected
	}
	return nil
}

// connected uses IsConnectionOpen because IsConnected is also true while
// the client is still retrying its first connection.
func (l *Locator) connected() bool {
	return l.conn == nil || l.conn.IsConnectionOpen()
}

// Close disconnects from the broker, allowing in-flight work 250ms.
func (l *Locator) Close() {
	if l.client != nil {
		l.client.Disconnect(250)
	}
}

func (l *Locator) cachedFix(maxAge time.Duration) (domain.Coordinate, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.latest == nil || l.clock.Since(l.latest.receivedAt) > maxAge {
		return domain.Coordinate{}, false
	}
	return l.latest.coord, true
}

func (l *Locator) requestFix(opts domain.PositionOptions) error {
	if l.requestTopic == "" || l.pub == nil {
		return nil
	}
	payload, err := json.Marshal(positionRequest{
		HighAccuracy: opts.HighAccuracy,
		TimeoutMS:    opts.Timeout.Milliseconds(),
		MaximumAgeMS: opts.MaximumAge.Milliseconds(),
	})
	if err != nil {
		return fmt.Errorf("encode position request: %w", err)
	}
	tok := l.pub.Publish(l.requestTopic, qos, false, payload)
	if opts.Timeout > 0 && !tok.WaitTimeout(opts.Timeout) {
		return errors.New("timeout expired publishing position request")
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("publish position request: %w", err)
	}
	return nil
}

func (l *Locator) handleMessage(_ paho.Client, msg paho.Message) {
	l.receive(msg.Payload())
}

// receive parses a device message and hands the result to every waiter.
func (l *Locator) receive(payload []byte) {
	var m positionMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		l.logger.Warn("discarding malformed position message", "topic", l.positionTopic, "error", err)
		return
	}

	var res fixResult
	switch {
	case m.Error != "":
		res.err = errors.New(m.Error)
	case m.Lat == nil || m.Lon == nil:
		l.logger.Warn("discarding position message without coordinates", "topic", l.positionTopic)
		return
	default:
		res.coord = domain.Coordinate{Lat: *m.Lat, Lng: *m.Lon}
		if err := res.coord.Validate(); err != nil {
			l.logger.Warn("discarding invalid position fix", "error", err)
			return
		}
	}

	l.logger.Debug("position message received", "error", m.Error, "accuracy_m", m.Accuracy, "device_time", m.Timestamp)

	l.mu.Lock()
	defer l.mu.Unlock()
	if res.err == nil {
		l.latest = &fix{coord: res.coord, accuracy: m.Accuracy, receivedAt: l.clock.Now()}
	}
	for ch := range l.waiters {
		select {
		case ch <- res:
		default:
		}
	}
}

type positionRequest struct {
	HighAccuracy bool  `json:"high_accuracy"`
	TimeoutMS    int64 `json:"timeout_ms"`
	MaximumAgeMS int64 `json:"maximum_age_ms"`
}

type positionMessage struct {
	Lat       *float64  `json:"lat"`
	Lon       *float64  `json:"lon"`
	Accuracy  float64   `json:"accuracy"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error"`
}
