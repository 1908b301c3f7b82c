package types

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	ErrConfigNotFound       = errors.New("config not found")
	ErrConfigParseFailed    = errors.New("config parse failed")
	ErrConfigValidateFailed = errors.New("config validate failed")
)

var (
	ErrCacheKeyEmpty        = errors.New("cache key empty")
	ErrCacheTypeUnknown     = errors.New("cache type unknown")
	ErrCacheOperationFailed = errors.New("cache operation failed")
	ErrCacheEntryCorrupt    = errors.New("cache entry corrupt")
)

var (
	ErrProviderNameEmpty     = errors.New("provider name empty")
	ErrProviderWeightInvalid = errors.New("provider weight must be positive")
	ErrProviderFetcherNil    = errors.New("provider fetcher is nil")
	ErrProviderDuplicate     = errors.New("provider already registered")
	ErrProviderTypeUnknown   = errors.New("provider type unknown")
	ErrProviderPanic         = errors.New("provider panicked")
	ErrNoProviders           = errors.New("no providers registered")
)

var (
	ErrCategoryUnknown = errors.New("category unknown")
	ErrQueryEmpty      = errors.New("query empty")
)

var (
	ErrTimeout         = errors.New("request timeout")
	ErrRetryExhausted  = errors.New("retry attempts exhausted")
	ErrCircuitOpen     = errors.New("circuit open")
	ErrClientNotActive = errors.New("client not running")
)

var (
	ErrMetricsTypeUnknown = errors.New("metrics type unknown")
)

var (
	ErrLogFileIsEmpty     = errors.New("log file is empty")
	ErrLogFileWrongFormat = errors.New("log file wrong format")
)

var (
	ErrCronJobNameIsEmpty    = errors.New("cron job name is empty")
	ErrCronExpressionInvalid = errors.New("cron expression invalid")
	ErrCronJobIsNil          = errors.New("cron job is nil")
	ErrCronJobExists         = errors.New("cron job exists")
	ErrCronIsRunning         = errors.New("cron is running")
	ErrCronNotRunning        = errors.New("cron is not running")
	ErrCronJobFailed         = errors.New("cron job failed")
)

// StatusError is an HTTP-equivalent status failure reported by a provider.
type StatusError struct {
	StatusCode int
	RetryAfter time.Duration
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return "HTTP " + strconv.Itoa(e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// ParseError marks a response the provider could not interpret. It is never retried.
type ParseError struct {
	Provider string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: malformed response: %v", e.Provider, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func NewParseError(provider string, err error) error {
	return &ParseError{Provider: provider, Err: err}
}

func Errorf(baseErr error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", baseErr, fmt.Sprintf(format, args...))
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func IsError(err, target error) bool {
	return errors.Is(err, target)
}
