// Package feed delivers newly inserted alerts for one owner as a channel, reconnecting
// with exponential backoff when the underlying change stream drops.
package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/linesmerrill/planner-alerts/models"
)

// EventAlertCreated is the event name of an inserted alert on the wire.
const EventAlertCreated = "alert.created"

// Envelope is the frame shape used by the websocket and redis transports.
type Envelope struct {
	Event string       `json:"event"`
	Data  models.Alert `json:"data"`
}

// Source opens a stream of inserted alerts filtered to one owner.
type Source interface {
	Open(ctx context.Context, ownerID string) (Stream, error)
}

// Stream yields alerts in delivery order. Close must be safe to call more than once and
// must unblock a pending Next.
type Stream interface {
	Next(ctx context.Context) (models.Alert, error)
	Close() error
}

// Reconnect defaults.
const (
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultMaxBackoff     = 30 * time.Second
)

// Listener turns a Source into subscriptions.
type Listener struct {
	Source         Source
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// OnReconnect runs after the stream was re-established, so callers can resync
	// anything inserted during the gap.
	OnReconnect func(ownerID string)
	Buffer      int
}

// NewListener returns a Listener over source with default backoff.
func NewListener(source Source) *Listener {
	return &Listener{
		Source:         source,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
	}
}

// Subscription is a live feed for one owner. It must be released with Unsubscribe.
type Subscription struct {
	ownerID string
	alerts  chan models.Alert
	done    chan struct{}
	cancel  context.CancelFunc
	once    sync.Once
}

// OwnerID is the owner this subscription is filtered to.
func (s *Subscription) OwnerID() string {
	return s.ownerID
}

// Alerts delivers inserted alerts. It is closed once the subscription ends.
func (s *Subscription) Alerts() <-chan models.Alert {
	return s.alerts
}

// Done is closed once the subscription has fully stopped.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Unsubscribe stops the feed and waits for it to release its stream. Calling it again is
// a no-op.
func (s *Subscription) Unsubscribe() {
	s.once.Do(s.cancel)
	<-s.done
}

// Subscribe opens the feed for ownerID. The first connection attempt is synchronous so
// setup errors reach the caller; later drops are retried in the background until ctx is
// done or the subscription is released.
func (l *Listener) Subscribe(ctx context.Context, ownerID string) (*Subscription, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("subscribe: owner id is required")
	}
	ctx, cancel := context.WithCancel(ctx)
	stream, err := l.Source.Open(ctx, ownerID)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open feed for %s: %w", ownerID, err)
	}

	buffer := l.Buffer
	if buffer <= 0 {
		buffer = 16
	}
	s := &Subscription{
		ownerID: ownerID,
		alerts:  make(chan models.Alert, buffer),
		done:    make(chan struct{}),
		cancel:  cancel,
	}
	go l.run(ctx, s, stream)
	return s, nil
}

func (l *Listener) newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.InitialBackoff
	if b.InitialInterval <= 0 {
		b.InitialInterval = DefaultInitialBackoff
	}
	b.MaxInterval = l.MaxBackoff
	if b.MaxInterval <= 0 {
		b.MaxInterval = DefaultMaxBackoff
	}
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.Reset()
	return b
}

func (l *Listener) run(ctx context.Context, s *Subscription, stream Stream) {
	defer close(s.done)
	defer close(s.alerts)

	b := l.newBackoff()
	for {
		delivered, err := pump(ctx, s, stream)
		_ = stream.Close()
		if ctx.Err() != nil {
			return
		}
		if delivered > 0 {
			b.Reset()
		}
		zap.S().Warnw("alert feed lost", "owner_id", s.ownerID, "error", err)

		stream = nil
		for stream == nil {
			wait := b.NextBackOff()
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			stream, err = l.Source.Open(ctx, s.ownerID)
			if err != nil {
				zap.S().Warnw("alert feed reconnect failed", "owner_id", s.ownerID, "retry_in", wait, "error", err)
				stream = nil
			}
		}
		zap.S().Infow("alert feed reconnected", "owner_id", s.ownerID)
		if l.OnReconnect != nil {
			l.OnReconnect(s.ownerID)
		}
	}
}

func pump(ctx context.Context, s *Subscription, stream Stream) (int, error) {
	stop := context.AfterFunc(ctx, func() { _ = stream.Close() })
	defer stop()

	delivered := 0
	for {
		a, err := stream.Next(ctx)
		if err != nil {
			return delivered, err
		}
		if a.OwnerID != s.ownerID {
			zap.S().Warnw("dropping feed alert for another owner", "alert_id", a.ID, "owner_id", a.OwnerID)
			continue
		}
		select {
		case s.alerts <- a:
			delivered++
		case <-ctx.Done():
			return delivered, ctx.Err()
		}
	}
}
