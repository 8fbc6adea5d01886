package ai

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerConfig configures the circuit breaker placed in front of an LLMService.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns the breaker settings used for graph extraction.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      2,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

type breakerLLMService struct {
	next LLMService
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerLLMService wraps an LLMService so that a failing provider is
// short-circuited instead of being called for every journal entry.
// An open circuit surfaces as gobreaker.ErrOpenState.
func NewBreakerLLMService(next LLMService, cfg BreakerConfig) LLMService {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("llm circuit breaker state changed",
				slog.String("name", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
	return &breakerLLMService{next: next, cb: cb}
}

func (b *breakerLLMService) Chat(ctx context.Context, messages []Message) (string, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Chat(ctx, messages)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}
