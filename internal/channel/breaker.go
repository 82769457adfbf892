package channel

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/drivewatch/drivewatch/internal/alert"
	"github.com/drivewatch/drivewatch/internal/notify"
)

// Breaker wraps a channel in a circuit breaker. After MaxFailures
// consecutive failures the channel is skipped, failing fast with
// gobreaker.ErrOpenState, until the open timeout has passed.
type Breaker struct {
	next notify.Channel
	cb   *gobreaker.CircuitBreaker
}

// WithBreaker wraps next. openTimeout <= 0 uses the gobreaker default (60s).
func WithBreaker(next notify.Channel, maxFailures uint32, openTimeout time.Duration) *Breaker {
	settings := gobreaker.Settings{
		Name:    next.Name(),
		Timeout: openTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("channel: breaker state changed",
				"channel", name, "from", from.String(), "to", to.String())
		},
	}
	return &Breaker{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Name implements notify.Channel.
func (b *Breaker) Name() string { return b.next.Name() }

// State returns the breaker state.
func (b *Breaker) State() gobreaker.State { return b.cb.State() }

// Send implements notify.Channel.
func (b *Breaker) Send(ctx context.Context, title, body string, a alert.Alert) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Send(ctx, title, body, a)
	})
	return err
}
