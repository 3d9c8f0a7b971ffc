// Package retry implements the retry/timeout engine: per-operation-type
// timeout profiles, substring-based retryability classification, and
// jittered exponential backoff, grounded on backend/codex.Client's
// isRetryable/retryDelay pattern but generalized from HTTP status codes to
// the five OperationType profiles and a text-based classifier.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// OperationType selects a timeout/retry profile.
type OperationType int

const (
	ToolExecution OperationType = iota
	ApiCall
	NetworkRequest
	FileOperation
	Processing
)

// Profile is the (base_timeout, max_timeout, max_retries, backoff_mul)
// tuple for one OperationType.
type Profile struct {
	BaseTimeout time.Duration
	MaxTimeout  time.Duration
	MaxRetries  int
	BackoffMul  float64
}

var defaultProfiles = map[OperationType]Profile{
	ToolExecution:  {BaseTimeout: 30 * time.Second, MaxTimeout: 120 * time.Second, MaxRetries: 3, BackoffMul: 2.0},
	ApiCall:        {BaseTimeout: 30 * time.Second, MaxTimeout: 60 * time.Second, MaxRetries: 5, BackoffMul: 2.0},
	NetworkRequest: {BaseTimeout: 20 * time.Second, MaxTimeout: 60 * time.Second, MaxRetries: 4, BackoffMul: 2.0},
	FileOperation:  {BaseTimeout: 10 * time.Second, MaxTimeout: 30 * time.Second, MaxRetries: 3, BackoffMul: 2.0},
	Processing:     {BaseTimeout: 60 * time.Second, MaxTimeout: 300 * time.Second, MaxRetries: 2, BackoffMul: 1.5},
}

// ProfileFor returns the default profile for t.
func ProfileFor(t OperationType) Profile {
	return defaultProfiles[t]
}

var retryableSubstrings = []string{
	"timeout", "rate limit", "5xx", "connection", "network", "temporary", "overloaded", "quota",
}

var nonRetryableSubstrings = []string{
	"invalid api key", "invalid-api-key", "permission denied", "invalid model", "invalid-model",
}

// IsRetryable classifies err by substring match on its textual form, per
// spec.md §4.7. Empty-response errors (ErrEmptyResponse) are explicitly
// retryable; invalid-key/permission-denied/invalid-model errors are
// explicitly not, even if some other retryable substring also appears.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrEmptyResponse) {
		return true
	}
	text := strings.ToLower(err.Error())
	for _, s := range nonRetryableSubstrings {
		if strings.Contains(text, s) {
			return false
		}
	}
	for _, s := range retryableSubstrings {
		if strings.Contains(text, s) {
			return true
		}
	}
	return false
}

// ErrEmptyResponse marks a provider response with null content, an empty
// candidates array, or empty choices — explicitly retryable even though
// its text carries none of the usual retryable substrings.
var ErrEmptyResponse = errors.New("empty response")

// Stats accumulates observability counters across calls sharing an
// Engine, mirroring the teacher's metrics.Collector accumulation idiom.
type Stats struct {
	mu                 sync.Mutex
	TotalAttempts      int
	SuccessfulRetries  int
	FailedRetries      int
	FallbackActivations int
	TotalBackoffTime   time.Duration
}

func (s *Stats) record(attempts int, succeededAfterRetry bool, failedAfterRetries bool, backoff time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TotalAttempts += attempts
	if succeededAfterRetry {
		s.SuccessfulRetries++
	}
	if failedAfterRetries {
		s.FailedRetries++
	}
	s.TotalBackoffTime += backoff
}

func (s *Stats) recordFallback() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FallbackActivations++
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		TotalAttempts:       s.TotalAttempts,
		SuccessfulRetries:   s.SuccessfulRetries,
		FailedRetries:       s.FailedRetries,
		FallbackActivations: s.FallbackActivations,
		TotalBackoffTime:    s.TotalBackoffTime,
	}
}

// Engine runs operations under per-OperationType timeout/retry profiles.
// A shared rate.Limiter paces retry attempts across every call through
// this Engine, so a burst of independently-retrying operations (e.g. many
// tool calls failing at once) cannot hammer a struggling backend in
// lockstep.
type Engine struct {
	profiles map[OperationType]Profile
	stats    *Stats
	limiter  *rate.Limiter
}

// NewEngine builds an Engine using the default profiles from spec.md
// §4.7 and an unbounded retry-pacing limiter. Profiles can be overridden
// per call site via WithProfile; pacing via WithRetryRateLimit.
func NewEngine() *Engine {
	profiles := make(map[OperationType]Profile, len(defaultProfiles))
	for k, v := range defaultProfiles {
		profiles[k] = v
	}
	return &Engine{profiles: profiles, stats: &Stats{}, limiter: rate.NewLimiter(rate.Inf, 1)}
}

// WithProfile overrides the profile for one OperationType and returns the
// same Engine for chaining.
func (e *Engine) WithProfile(t OperationType, p Profile) *Engine {
	e.profiles[t] = p
	return e
}

// WithRetryRateLimit caps the rate of retry attempts (not first attempts)
// issued across every operation sharing this Engine.
func (e *Engine) WithRetryRateLimit(r rate.Limit, burst int) *Engine {
	e.limiter = rate.NewLimiter(r, burst)
	return e
}

// Stats returns the engine's shared, thread-safe statistics accumulator.
func (e *Engine) Stats() *Stats {
	return e.stats
}

// Fn is the operation executed under retry; it must itself respect ctx's
// deadline (the per-attempt timeout is applied via context).
type Fn[T any] func(ctx context.Context, attempt int) (T, error)

// Execute runs fn under opType's profile: up to MaxRetries+1 attempts,
// each bounded by a per-attempt timeout that grows by BackoffMul up to
// MaxTimeout, with a jittered sleep between retryable failures.
func Execute[T any](ctx context.Context, e *Engine, opID string, opType OperationType, fn Fn[T]) (T, error) {
	profile := e.profiles[opType]
	var zero T
	var lastErr error
	totalAttempts := 0
	var totalBackoff time.Duration

	for attempt := 0; attempt <= profile.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := e.limiter.Wait(ctx); err != nil {
				e.stats.record(totalAttempts, false, true, totalBackoff)
				return zero, err
			}
		}
		totalAttempts++
		timeout := scaledDuration(profile.BaseTimeout, profile.BackoffMul, attempt, profile.MaxTimeout)
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		result, err := fn(attemptCtx, attempt)
		cancel()

		if err == nil {
			e.stats.record(totalAttempts, attempt > 0, false, totalBackoff)
			return result, nil
		}
		lastErr = err
		if !IsRetryable(err) || attempt == profile.MaxRetries {
			e.stats.record(totalAttempts, false, attempt > 0, totalBackoff)
			return zero, fmt.Errorf("retry: %s (%s): %w", opID, opTypeName(opType), err)
		}

		delay := jitter(scaledDuration(profile.BaseTimeout, profile.BackoffMul, attempt, profile.MaxTimeout))
		totalBackoff += delay
		select {
		case <-ctx.Done():
			e.stats.record(totalAttempts, false, true, totalBackoff)
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
	return zero, lastErr
}

// ExecuteWithFallback behaves like Execute, but on exhaustion of the
// primary model's retries, makes one additional attempt against
// fallbackFn before surfacing the error, per spec.md's fallback-model
// rule for provider operations.
func ExecuteWithFallback[T any](ctx context.Context, e *Engine, opID string, opType OperationType, fn Fn[T], fallbackFn Fn[T]) (T, error) {
	result, err := Execute(ctx, e, opID, opType, fn)
	if err == nil || fallbackFn == nil {
		return result, err
	}
	e.stats.recordFallback()
	profile := e.profiles[opType]
	attemptCtx, cancel := context.WithTimeout(ctx, profile.BaseTimeout)
	defer cancel()
	fallbackResult, fallbackErr := fallbackFn(attemptCtx, 0)
	if fallbackErr != nil {
		var zero T
		return zero, fmt.Errorf("retry: %s (%s): primary failed (%v), fallback failed: %w", opID, opTypeName(opType), err, fallbackErr)
	}
	return fallbackResult, nil
}

func scaledDuration(base time.Duration, mul float64, attempt int, max time.Duration) time.Duration {
	d := time.Duration(float64(base) * pow(mul, attempt))
	if d > max {
		return max
	}
	return d
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// jitter adds up to ±20% randomness to d to avoid synchronized retry
// storms across concurrently retrying operations.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	spread := float64(d) * 0.2
	delta := (rand.Float64()*2 - 1) * spread
	return time.Duration(float64(d) + delta)
}

func opTypeName(t OperationType) string {
	switch t {
	case ToolExecution:
		return "tool_execution"
	case ApiCall:
		return "api_call"
	case NetworkRequest:
		return "network_request"
	case FileOperation:
		return "file_operation"
	case Processing:
		return "processing"
	default:
		return "unknown"
	}
}
