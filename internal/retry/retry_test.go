package retry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testPolicy() Policy {
	return Policy{MaxAttempts: 3, Delay: time.Millisecond, MaxDelay: 5 * time.Millisecond, OnExhaustion: Fail}
}

func TestDo(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds after rate limits", func(t *testing.T) {
		calls := 0
		got, err := Do(ctx, testPolicy(), "test", func(ctx context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", &RateLimitedError{}
			}
			return "ok", nil
		})
		require.NoError(t, err)
		require.Equal(t, "ok", got)
		require.Equal(t, 3, calls)
	})

	t.Run("exhaustion returns rate limited error", func(t *testing.T) {
		calls := 0
		_, err := Do(ctx, testPolicy(), "test", func(ctx context.Context) (int, error) {
			calls++
			return 0, &RateLimitedError{}
		})
		var rl *RateLimitedError
		require.ErrorAs(t, err, &rl)
		require.Equal(t, 3, calls)
	})

	t.Run("retry after header is honoured and capped", func(t *testing.T) {
		calls := 0
		start := time.Now()
		_, err := Do(ctx, testPolicy(), "test", func(ctx context.Context) (int, error) {
			calls++
			if calls == 1 {
				return 0, &RateLimitedError{RetryAfter: time.Hour}
			}
			return 1, nil
		})
		require.NoError(t, err)
		require.Equal(t, 2, calls)
		require.Less(t, time.Since(start), time.Second)
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		boom := errors.New("boom")
		calls := 0
		_, err := Do(ctx, testPolicy(), "test", func(ctx context.Context) (int, error) {
			calls++
			return 0, boom
		})
		require.ErrorIs(t, err, boom)
		require.Equal(t, 1, calls)
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		p := testPolicy()
		p.Delay = time.Hour
		p.MaxAttempts = 5
		calls := 0
		_, err := Do(cctx, p, "test", func(ctx context.Context) (int, error) {
			calls++
			cancel()
			return 0, &RateLimitedError{}
		})
		require.Error(t, err)
		require.Equal(t, 1, calls)
	})
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{name: "empty", value: "", want: 0},
		{name: "seconds", value: "10", want: 10 * time.Second},
		{name: "negative", value: "-1", want: 0},
		{name: "http date", value: now.Add(30 * time.Second).Format(http.TimeFormat), want: 30 * time.Second},
		{name: "past date", value: now.Add(-time.Minute).Format(http.TimeFormat), want: 0},
		{name: "garbage", value: "soon", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ParseRetryAfter(tt.value, now))
		})
	}
}

func TestPolicyValidate(t *testing.T) {
	require.NoError(t, DefaultPolicy().Validate())

	p := DefaultPolicy()
	p.MaxAttempts = 0
	require.Error(t, p.Validate())

	p = DefaultPolicy()
	p.OnExhaustion = "sometimes"
	require.Error(t, p.Validate())
}
