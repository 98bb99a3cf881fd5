package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/chris/taskbot/internal/domain"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before a probe is allowed.
	Timeout  time.Duration
	Interval time.Duration
}

// BreakerClient fails fast with domain.ErrService once the inner client keeps failing.
type BreakerClient struct {
	inner   Client
	breaker *gobreaker.CircuitBreaker[string]
}

func WithBreaker(inner Client, cfg BreakerConfig, logger *slog.Logger) *BreakerClient {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}

	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "llm",
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		// Rate limits and caller cancellation say nothing about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrRateLimit) || errors.Is(err, context.Canceled)
		},
	})
	return &BreakerClient{inner: inner, breaker: cb}
}

func (b *BreakerClient) Complete(ctx context.Context, systemPrompt string, history []Message, prompt string) (string, error) {
	out, err := b.breaker.Execute(func() (string, error) {
		return b.inner.Complete(ctx, systemPrompt, history, prompt)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", domain.NewError("llm.Complete", domain.ErrService, "circuit open")
	}
	return out, err
}

func (b *BreakerClient) State() gobreaker.State {
	return b.breaker.State()
}

// RateLimitedClient rejects calls beyond the configured rate with domain.ErrRateLimit.
type RateLimitedClient struct {
	inner   Client
	limiter *rate.Limiter
}

// WithRateLimit allows perMinute calls per minute with a burst of burst.
func WithRateLimit(inner Client, perMinute, burst int) *RateLimitedClient {
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedClient{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), burst),
	}
}

func (r *RateLimitedClient) Complete(ctx context.Context, systemPrompt string, history []Message, prompt string) (string, error) {
	if !r.limiter.Allow() {
		return "", domain.NewError("llm.Complete", domain.ErrRateLimit, "local limit")
	}
	return r.inner.Complete(ctx, systemPrompt, history, prompt)
}
