package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"sphere/internal/middleware"
	"sphere/internal/observability"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

// CircuitBreakerHook stops sending commands to Redis after repeated failures so
// that callers fall back to the database instead of waiting on timeouts.
type CircuitBreakerHook struct {
	cb *gobreaker.CircuitBreaker
}

var _ redis.Hook = (*CircuitBreakerHook)(nil)

// NewCircuitBreakerHook trips after 5 requests with a failure ratio of 60% or more
// and probes again after 30s.
func NewCircuitBreakerHook() *CircuitBreakerHook {
	return newCircuitBreakerHook(gobreaker.Settings{
		Name:        "redis",
		MaxRequests: 1,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
	})
}

func newCircuitBreakerHook(settings gobreaker.Settings) *CircuitBreakerHook {
	settings.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, redis.Nil) || errors.Is(err, redis.TxFailedErr)
	}
	settings.OnStateChange = func(name string, from, to gobreaker.State) {
		middleware.Logger.Warn("Circuit breaker state changed",
			slog.String("component", name),
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
		observability.RedisBreakerState.Set(stateToFloat(to))
	}
	return &CircuitBreakerHook{cb: gobreaker.NewCircuitBreaker(settings)}
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// State returns the current breaker state.
func (h *CircuitBreakerHook) State() gobreaker.State {
	return h.cb.State()
}

func (h *CircuitBreakerHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := h.cb.Execute(func() (interface{}, error) {
			return next(ctx, network, addr)
		})
		if err != nil {
			return nil, fmt.Errorf("redis circuit breaker: %w", err)
		}
		return conn.(net.Conn), nil
	}
}

func (h *CircuitBreakerHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		_, err := h.cb.Execute(func() (interface{}, error) {
			return nil, next(ctx, cmd)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			cmd.SetErr(err)
			return fmt.Errorf("redis circuit breaker open: %w", err)
		}
		return err
	}
}

func (h *CircuitBreakerHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		_, err := h.cb.Execute(func() (interface{}, error) {
			return nil, next(ctx, cmds)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("redis circuit breaker open: %w", err)
		}
		return err
	}
}
