package provider

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/h1v3-io/ticketbot/pkg/protocol"
)

// RetryConfig holds retry settings for LLM requests.
type RetryConfig struct {
	MaxAttempts       int
	BackoffBase       time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
}

// DefaultRetryConfig returns the retry defaults used for provider calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       2 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        30 * time.Second,
	}
}

// IsTransient reports whether a provider error may succeed on retry:
// rate limiting, server errors, network failures and empty answers.
// Cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	if errors.Is(err, ErrEmptyResponse) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Retrying wraps a Provider and retries transient failures with
// exponential backoff.
type Retrying struct {
	inner  Provider
	cfg    RetryConfig
	logger *slog.Logger
}

// NewRetrying wraps p. A nil logger uses slog.Default.
func NewRetrying(p Provider, cfg RetryConfig, logger *slog.Logger) *Retrying {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Retrying{inner: p, cfg: cfg, logger: logger}
}

func (r *Retrying) Name() string { return r.inner.Name() }

func (r *Retrying) Chat(ctx context.Context, req protocol.ChatRequest) (*protocol.ChatResponse, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.BackoffBase
	b.Multiplier = r.cfg.BackoffMultiplier
	b.MaxInterval = r.cfg.MaxBackoff
	b.MaxElapsedTime = 0

	attempt := 0
	op := func() (*protocol.ChatResponse, error) {
		attempt++
		resp, err := r.inner.Chat(ctx, req)
		if err != nil && !IsTransient(err) {
			return nil, backoff.Permanent(err)
		}
		return resp, err
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Warn("llm call failed, retrying",
			"provider", r.inner.Name(), "attempt", attempt, "wait", wait, "error", err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.cfg.MaxAttempts-1)), ctx)
	return backoff.RetryNotifyWithData(op, policy, notify)
}
