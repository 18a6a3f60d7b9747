package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

// recordingSleep collects requested delays without waiting.
type recordingSleep struct {
	delays []time.Duration
}

func (r *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func newTestExecutor(cfg Config) (*Executor, *recordingSleep) {
	e := New(cfg, nil)
	rs := &recordingSleep{}
	e.Sleep = rs.sleep
	return e, rs
}

func apiError(code int, reasons ...string) error {
	err := &googleapi.Error{Code: code, Message: fmt.Sprintf("status %d", code)}
	for _, r := range reasons {
		err.Errors = append(err.Errors, googleapi.ErrorItem{Reason: r})
	}
	return err
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"nil", nil, Terminal},
		{"rate limited", apiError(429), Transient},
		{"server error", apiError(500), Transient},
		{"bad gateway wrapped", fmt.Errorf("failed to list messages: %w", apiError(502)), Transient},
		{"service unavailable", apiError(503), Transient},
		{"quota 403", apiError(403, "userRateLimitExceeded"), Transient},
		{"rate 403", apiError(403, "rateLimitExceeded"), Transient},
		{"permission 403", apiError(403, "insufficientPermissions"), Terminal},
		{"unauthorized", apiError(401), Terminal},
		{"not found", apiError(404), Terminal},
		{"bad request", apiError(400), Terminal},
		{"plain error", errors.New("boom"), Terminal},
		{"marked", MarkTransient(errors.New("reset")), Transient},
		{"cancelled", context.Canceled, Terminal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestDoSucceedsFirstTry(t *testing.T) {
	e, rs := newTestExecutor(Config{})
	calls := 0
	err := e.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rs.delays)
}

func TestDoRetriesTransientWithExponentialDelays(t *testing.T) {
	e, rs := newTestExecutor(Config{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Minute, MaxAttempts: 3})
	calls := 0
	err := e.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 4 {
			return apiError(503)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}, rs.delays)
}

func TestDoExhaustsRetries(t *testing.T) {
	e, rs := newTestExecutor(Config{BaseDelay: time.Second, MaxAttempts: 3})
	calls := 0
	last := apiError(429)
	err := e.Do(context.Background(), func(context.Context) error {
		calls++
		return last
	})

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 4, exhausted.Attempts)
	assert.Equal(t, 4, calls, "one attempt plus three retries")
	assert.Len(t, rs.delays, 3)

	var apiErr *googleapi.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 429, apiErr.Code)
}

func TestDoCapsDelay(t *testing.T) {
	e, rs := newTestExecutor(Config{BaseDelay: time.Second, MaxDelay: 3 * time.Second, MaxAttempts: 4})
	_ = e.Do(context.Background(), func(context.Context) error { return apiError(500) })
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second}, rs.delays)
}

func TestDoTerminalReturnsImmediately(t *testing.T) {
	e, rs := newTestExecutor(Config{})
	calls := 0
	terminal := apiError(403, "insufficientPermissions")
	err := e.Do(context.Background(), func(context.Context) error {
		calls++
		return terminal
	})
	assert.Equal(t, terminal, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rs.delays)
}

func TestDoStopsWhenSleepIsCancelled(t *testing.T) {
	e := New(Config{BaseDelay: time.Hour}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := e.Do(ctx, func(context.Context) error {
		calls++
		return apiError(500)
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDoNegativeAttemptsDisablesRetry(t *testing.T) {
	e, rs := newTestExecutor(Config{MaxAttempts: -1})
	calls := 0
	err := e.Do(context.Background(), func(context.Context) error {
		calls++
		return apiError(500)
	})
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rs.delays)
}

func TestOnRetryHook(t *testing.T) {
	e, _ := newTestExecutor(Config{MaxAttempts: 2})
	var attempts []int
	e.OnRetry = func(attempt int, _ time.Duration, _ error) {
		attempts = append(attempts, attempt)
	}
	_ = e.Do(context.Background(), func(context.Context) error { return apiError(500) })
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestRunReturnsValue(t *testing.T) {
	e, _ := newTestExecutor(Config{})
	calls := 0
	v, err := Run(context.Background(), e, func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, apiError(500)
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestDefaults(t *testing.T) {
	cfg := New(Config{}, nil).Config()
	assert.Equal(t, DefaultBaseDelay, cfg.BaseDelay)
	assert.Equal(t, DefaultMaxDelay, cfg.MaxDelay)
	assert.Equal(t, DefaultMaxAttempts, cfg.MaxAttempts)
}
