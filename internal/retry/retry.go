// Package retry holds the single retry policy applied to every upstream CRM
// call. Only rate-limit responses are retried; everything else is permanent.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
)

// OnExhaustion selects what a pipeline does once retries run out.
type OnExhaustion string

const (
	// Fail surfaces the rate-limit error to the caller.
	Fail OnExhaustion = "fail"
	// Partial keeps whatever was accumulated before the failing page.
	Partial OnExhaustion = "partial"
)

// Valid returns true for known exhaustion modes.
func (o OnExhaustion) Valid() bool {
	return o == Fail || o == Partial
}

// Policy is a fixed-delay bounded retry for rate-limited upstream calls.
type Policy struct {
	MaxAttempts  uint          `yaml:"max_attempts" json:"max_attempts"`
	Delay        time.Duration `yaml:"delay" json:"delay"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay"`
	OnExhaustion OnExhaustion  `yaml:"on_exhaustion" json:"on_exhaustion"`
}

// DefaultPolicy returns three attempts two seconds apart, failing on exhaustion.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		Delay:        2 * time.Second,
		MaxDelay:     30 * time.Second,
		OnExhaustion: Fail,
	}
}

// Validate checks the policy is usable.
func (p Policy) Validate() error {
	if p.MaxAttempts == 0 {
		return errors.New("max_attempts must be at least 1")
	}
	if p.Delay < 0 || p.MaxDelay < 0 {
		return errors.New("delays must not be negative")
	}
	if !p.OnExhaustion.Valid() {
		return fmt.Errorf("unknown on_exhaustion mode %q", p.OnExhaustion)
	}
	return nil
}

// RateLimitedError marks a retryable rate-limit response. RetryAfter is zero
// when the upstream did not send a usable Retry-After header.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

// ParseRetryAfter reads a Retry-After value in delay-seconds or HTTP-date form.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}

	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}

	return 0
}

// Do runs op until it succeeds, returns a non rate-limit error, or the policy
// runs out of attempts. The last error is returned as is so callers can match
// it with errors.As.
func Do[T any](ctx context.Context, p Policy, name string, op func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}

	attempt := 0
	result, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		res, err := op(ctx)
		if err == nil {
			return res, nil
		}

		var rl *RateLimitedError
		if !errors.As(err, &rl) {
			return res, backoff.Permanent(err)
		}

		if wait := p.wait(rl.RetryAfter); wait != p.Delay {
			return res, &backoff.RetryAfterError{Duration: wait}
		}
		return res, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(p.Delay)),
		backoff.WithMaxTries(attempts),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn().
				Err(err).
				Str("operation", name).
				Int("attempt", attempt).
				Dur("next_retry", next).
				Msg("Upstream rate limited, will retry")
		}),
	)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Err
		}
		var ra *backoff.RetryAfterError
		if errors.As(err, &ra) {
			err = &RateLimitedError{RetryAfter: ra.Duration}
		}
		return result, err
	}

	return result, nil
}

// wait returns the delay before the next attempt, honouring the header value
// up to MaxDelay.
func (p Policy) wait(retryAfter time.Duration) time.Duration {
	if retryAfter <= 0 {
		return p.Delay
	}
	if p.MaxDelay > 0 && retryAfter > p.MaxDelay {
		return p.MaxDelay
	}
	return retryAfter
}
