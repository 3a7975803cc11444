package provider

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerClient wraps a ModelClient with a circuit breaker so a failing
// provider sheds load quickly instead of queueing timeouts.
type BreakerClient struct {
	inner ModelClient
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerClient wraps inner with a breaker that opens after five
// consecutive failures and probes again after thirty seconds.
func NewBreakerClient(inner ModelClient) *BreakerClient {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "model-" + inner.Model(),
		MaxRequests: 3,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Model circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		},
	})
	return &BreakerClient{inner: inner, cb: cb}
}

// Model returns the wrapped client's model identifier.
func (b *BreakerClient) Model() string {
	return b.inner.Model()
}

// Generate forwards to the wrapped client while the breaker is closed.
func (b *BreakerClient) Generate(ctx context.Context, in GenerateInput) (*GenerateResult, error) {
	result, err := b.cb.Execute(func() (any, error) {
		return b.inner.Generate(ctx, in)
	})
	if err != nil {
		return nil, err
	}
	return result.(*GenerateResult), nil
}
