package client

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-aggregator/types"
)

const (
	defaultBreakerMaxFailures uint32 = 5
	defaultBreakerTimeout            = 30 * time.Second
	defaultBreakerInterval           = 60 * time.Second
)

// Breaker fails calls fast once a provider has failed repeatedly. A nil
// *Breaker is valid and simply runs the call.
type Breaker[T any] struct {
	name    string
	breaker *gobreaker.CircuitBreaker[T]
}

// NewBreaker returns nil when the breaker is disabled.
func NewBreaker[T any](name string, config *types.CircuitBreakerConfig, logger types.Logger) *Breaker[T] {
	if config == nil || !config.Enabled {
		return nil
	}

	maxFailures := config.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultBreakerMaxFailures
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultBreakerTimeout
	}
	interval := config.Interval
	if interval <= 0 {
		interval = defaultBreakerInterval
	}

	cb := gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &Breaker[T]{name: name, breaker: cb}
}

func (b *Breaker[T]) Execute(fn func() (T, error)) (T, error) {
	if b == nil {
		return fn()
	}

	result, err := b.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return result, types.ErrCircuitOpen
	}
	return result, err
}

func (b *Breaker[T]) State() string {
	if b == nil {
		return "disabled"
	}
	return b.breaker.State().String()
}
