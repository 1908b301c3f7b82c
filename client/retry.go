package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-aggregator/types"
)

const (
	DefaultMaxAttempts = 5
	DefaultTimeout     = 20 * time.Second
	DefaultBaseDelay   = time.Second
)

type Policy struct {
	MaxAttempts int
	Timeout     time.Duration
	BaseDelay   time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		Timeout:     DefaultTimeout,
		BaseDelay:   DefaultBaseDelay,
	}
}

func PolicyFromConfig(config *types.RetryConfig) Policy {
	policy := DefaultPolicy()
	if config == nil {
		return policy
	}
	if config.MaxAttempts > 0 {
		policy.MaxAttempts = config.MaxAttempts
	}
	if config.Timeout > 0 {
		policy.Timeout = config.Timeout
	}
	if config.BaseDelay >= 0 {
		policy.BaseDelay = config.BaseDelay
	}
	return policy
}

// WaitFunc blocks for d or until ctx is done, whichever comes first.
type WaitFunc func(ctx context.Context, d time.Duration) error

// RetryError is the terminal failure of Executor. It unwraps to the last attempt's error.
type RetryError struct {
	Attempts  int
	Retryable bool
	Err       error
}

func (e *RetryError) Error() string {
	if e.Retryable {
		return fmt.Sprintf("%s after %d attempts: %v", types.ErrRetryExhausted, e.Attempts, e.Err)
	}
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error {
	return e.Err
}

func (e *RetryError) Is(target error) bool {
	return e.Retryable && target == types.ErrRetryExhausted
}

type Executor struct {
	logger types.Logger
	policy Policy
	wait   WaitFunc
}

func NewExecutor(policy Policy, logger types.Logger) *Executor {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.Timeout <= 0 {
		policy.Timeout = DefaultTimeout
	}

	return &Executor{
		logger: logger,
		policy: policy,
		wait:   sleepContext,
	}
}

// WithWait replaces the delay function, mainly so tests can skip real sleeps.
func (e *Executor) WithWait(wait WaitFunc) *Executor {
	clone := *e
	clone.wait = wait
	return &clone
}

func (e *Executor) Policy() Policy {
	return e.policy
}

// Do runs op under the executor's policy. Every attempt shares one deadline
// armed here; once it fires no new attempt starts and the running one sees a
// cancelled context.
func Do[T any](ctx context.Context, e *Executor, name string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	callCtx, cancel := context.WithTimeout(ctx, e.policy.Timeout)
	defer cancel()

	deadline, _ := callCtx.Deadline()

	var lastErr error
	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		if err := callCtx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			return zero, &RetryError{Attempts: attempt - 1, Err: lastErr}
		}

		result, err := op(callCtx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !retryable(callCtx, err) {
			e.logger.Debug("Not retrying terminal failure",
				zap.String("operation", name),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return zero, &RetryError{Attempts: attempt, Err: err}
		}

		if attempt == e.policy.MaxAttempts {
			break
		}

		delay := e.delay(attempt, err)
		if time.Now().Add(delay).After(deadline) {
			e.logger.Debug("Retry delay exceeds deadline, giving up",
				zap.String("operation", name),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err))
			return zero, &RetryError{Attempts: attempt, Err: err}
		}

		e.logger.Debug("Retrying operation",
			zap.String("operation", name),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err))

		if waitErr := e.wait(callCtx, delay); waitErr != nil {
			return zero, &RetryError{Attempts: attempt, Err: err}
		}
	}

	return zero, &RetryError{Attempts: e.policy.MaxAttempts, Retryable: true, Err: lastErr}
}

// delay after failed attempt n (1-based): rate limits back off linearly or as
// instructed, everything else doubles from BaseDelay (1s, 2s, 4s, 8s by default).
func (e *Executor) delay(attempt int, err error) time.Duration {
	var statusErr *types.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == 429 {
		if statusErr.RetryAfter > 0 {
			return statusErr.RetryAfter
		}
		return e.policy.BaseDelay * time.Duration(attempt)
	}
	return e.policy.BaseDelay << (attempt - 1)
}

func retryable(callCtx context.Context, err error) bool {
	if errors.Is(err, types.ErrTimeout) {
		return true
	}

	// the attempt's own timeout is transient; the shared deadline firing is not
	if errors.Is(err, context.DeadlineExceeded) {
		return callCtx.Err() == nil
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var statusErr *types.StatusError
	if errors.As(err, &statusErr) {
		return IsRetryableStatus(statusErr.StatusCode)
	}

	var parseErr *types.ParseError
	if errors.As(err, &parseErr) {
		return false
	}

	return isNetworkError(err)
}

func IsRetryableStatus(statusCode int) bool {
	switch {
	case statusCode == 408, statusCode == 429:
		return true
	case statusCode >= 500 && statusCode <= 599:
		return true
	default:
		return false
	}
}

func isNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Timeout() || dnsErr.IsTemporary
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return isNetworkError(urlErr.Err)
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ECONNABORTED,
			syscall.EHOSTUNREACH, syscall.ENETUNREACH, syscall.ETIMEDOUT, syscall.EPIPE:
			return true
		}
	}

	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
