package connectivity

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-marketplace-stock/internal/apperr"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

type BreakerConfig struct {
	Name             string
	FailureThreshold uint32        // consecutive failures to trip
	Timeout          time.Duration // open -> half-open
	MaxRequests      uint32        // allowed while half-open
}

func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		FailureThreshold: 3,
		Timeout:          15 * time.Second,
		MaxRequests:      1,
	}
}

// NewBreaker guards remote reads. An open breaker marks the monitor offline,
// a closed one marks it online again.
func NewBreaker(cfg BreakerConfig, m *Monitor) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// business outcomes and caller cancellations say nothing about the link;
		// a hung link is caught by the monitor probe
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true
			}
			e, ok := apperr.As(err)
			return ok && e.Code != apperr.CodeBackendUnavailable
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if m == nil {
				return
			}
			m.log.Warn("circuit breaker state changed",
				zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
			switch to {
			case gobreaker.StateOpen:
				m.SetOnline(false)
			case gobreaker.StateClosed:
				m.SetOnline(true)
			}
		},
	})
}
