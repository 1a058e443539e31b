package connector

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
)

// ChatFunc is the shape shared by every connector kind's chat entry point.
type ChatFunc func(ctx context.Context, prompt string) (<-chan Event, error)

// BreakerConnector wraps a ChatFunc with a circuit breaker so a
// persistently failing provider stops being hammered with fresh
// retry-with-backoff cycles while it recovers.
type BreakerConnector struct {
	breaker *gobreaker.CircuitBreaker
	chat    ChatFunc
}

// NewBreakerConnector wraps chat in a breaker named name that trips open
// after 5 consecutive failures and probes again after a 30s cooldown.
func NewBreakerConnector(name string, chat ChatFunc) *BreakerConnector {
	settings := gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &BreakerConnector{breaker: gobreaker.NewCircuitBreaker(settings), chat: chat}
}

func (b *BreakerConnector) Chat(ctx context.Context, prompt string) (<-chan Event, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.chat(ctx, prompt)
	})
	if err != nil {
		return nil, err
	}
	return result.(<-chan Event), nil
}

// State reports the breaker's current state, surfaced by callers wanting
// to fold it into a connector's Health().
func (b *BreakerConnector) State() gobreaker.State { return b.breaker.State() }
