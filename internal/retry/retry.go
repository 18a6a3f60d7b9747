// Package retry runs remote calls with bounded exponential backoff.
//
// Only transient failures are retried: rate limiting and server-side (5xx)
// errors. Everything else, including auth and permission failures, is
// returned on the first occurrence. The delay before retry n is
// BaseDelay * 2^n, capped at MaxDelay, without jitter.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"google.golang.org/api/googleapi"

	"github.com/teemow/inboxprune/internal/logging"
)

// Defaults used when Config fields are zero.
const (
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 30 * time.Second
	DefaultMaxAttempts = 3
)

// Class is the retry classification of a failure.
type Class int

const (
	// Terminal failures are returned immediately.
	Terminal Class = iota
	// Transient failures are retried.
	Transient
)

func (c Class) String() string {
	if c == Transient {
		return "transient"
	}
	return "terminal"
}

// Config holds the retry policy.
type Config struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// MaxAttempts is the number of retries after the first attempt.
	MaxAttempts int
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Executor applies the retry policy to operations.
type Executor struct {
	cfg    Config
	logger *slog.Logger

	// Classify decides whether a failure is retried. Defaults to Classify.
	Classify func(error) Class
	// Sleep waits between attempts. Defaults to a timer honoring ctx.
	Sleep SleepFunc
	// OnRetry, if set, is called before each wait.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// New returns an Executor for cfg. Zero fields take the package defaults; a
// negative MaxAttempts disables retries.
func New(cfg Config, logger *slog.Logger) *Executor {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.MaxAttempts < 0 {
		cfg.MaxAttempts = 0
	}
	return &Executor{
		cfg:      cfg,
		logger:   logging.OrDiscard(logger),
		Classify: Classify,
		Sleep:    SleepContext,
	}
}

// Config returns the effective policy.
func (e *Executor) Config() Config {
	return e.cfg
}

// schedule returns a fresh delay generator: base, 2*base, 4*base ... capped.
func (e *Executor) schedule() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     e.cfg.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         e.cfg.MaxDelay,
	}
	b.Reset()
	return b
}

// Do runs op until it succeeds, fails terminally, or the retry budget is
// spent. On exhaustion the last failure is returned inside *ExhaustedError.
func (e *Executor) Do(ctx context.Context, op func(ctx context.Context) error) error {
	delays := e.schedule()
	for attempt := 0; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if e.Classify(err) != Transient {
			return err
		}
		if attempt >= e.cfg.MaxAttempts {
			return &ExhaustedError{Attempts: attempt + 1, Err: err}
		}

		delay := delays.NextBackOff()
		e.logger.Warn("transient failure, retrying",
			slog.Int(logging.KeyAttempt, attempt+1),
			slog.Duration(logging.KeyDelay, delay),
			logging.Err(err))
		if e.OnRetry != nil {
			e.OnRetry(attempt+1, delay, err)
		}
		if serr := e.Sleep(ctx, delay); serr != nil {
			return errors.Join(err, serr)
		}
	}
}

// Run is Do for operations that return a value.
func Run[T any](ctx context.Context, e *Executor, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := e.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// SleepContext waits for d unless ctx is done first.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ExhaustedError is returned when a transient failure outlived all retries.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// MarkTransient wraps err so that Classify treats it as transient.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// rateLimitReasons are 403 reasons Gmail uses for quota exhaustion.
var rateLimitReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
}

// Classify is the default classifier for Google API errors.
func Classify(err error) Class {
	if err == nil {
		return Terminal
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Terminal
	}
	var marked *transientError
	if errors.As(err, &marked) {
		return Transient
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return Terminal
	}
	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		return Transient
	case apiErr.Code >= http.StatusInternalServerError && apiErr.Code < 600:
		return Transient
	case apiErr.Code == http.StatusForbidden:
		for _, item := range apiErr.Errors {
			if rateLimitReasons[item.Reason] {
				return Transient
			}
		}
	}
	return Terminal
}
