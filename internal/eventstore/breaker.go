package eventstore

import (
	"context"
	"time"

	"github.com/huangsam/subpulse/internal/contract"
	"github.com/huangsam/subpulse/internal/logging"
	"github.com/huangsam/subpulse/schema"
	"github.com/sony/gobreaker/v2"
)

// BreakerConfig configures the circuit breaker around an event source.
type BreakerConfig struct {
	Name             string
	FailureThreshold uint32        // consecutive failures before opening
	OpenTimeout      time.Duration // time spent open before a trial request
	HalfOpenRequests uint32
}

// DefaultBreakerConfig opens after 5 consecutive failures for 30 seconds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "event-source",
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
		HalfOpenRequests: 1,
	}
}

// Breaker stops calling a failing event source until it had time to recover.
// While open, FetchEvents returns gobreaker.ErrOpenState without touching the source.
type Breaker struct {
	source contract.EventSource
	cb     *gobreaker.CircuitBreaker[[]schema.RawEvent]
}

var _ contract.EventSource = &Breaker{} // Compile-time check

// NewBreaker wraps source with a circuit breaker.
func NewBreaker(source contract.EventSource, cfg BreakerConfig) *Breaker {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 1
	}
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// A cancelled caller says nothing about the health of the source.
		IsSuccessful: func(err error) bool {
			return err == nil || err == context.Canceled
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("event source circuit changed state")
		},
	}
	return &Breaker{source: source, cb: gobreaker.NewCircuitBreaker[[]schema.RawEvent](settings)}
}

// FetchEvents calls the wrapped source through the breaker.
func (b *Breaker) FetchEvents(ctx context.Context, r schema.DateRange) ([]schema.RawEvent, error) {
	return b.cb.Execute(func() ([]schema.RawEvent, error) {
		return b.source.FetchEvents(ctx, r)
	})
}

// State returns the current breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
