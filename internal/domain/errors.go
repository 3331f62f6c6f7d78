package domain

import "errors"

// Whole-call failure conditions surfaced by the orchestrator. Per-source
// problems never become errors; they are folded into ValidationResults.
var (
	// ErrNoSourcesAvailable: every requested source was excluded before any
	// validation ran (all circuit breakers open, or the caller passed none).
	ErrNoSourcesAvailable = errors.New("no data sources available")

	// ErrAllValidationsFailed: every attempted source produced an invalid
	// result. Distinct from timeout; the integration layer decides fallback.
	ErrAllValidationsFailed = errors.New("all validations failed")

	// ErrValidationTimeout: the whole cross-validation call missed its
	// deadline. Partial reports are never returned.
	ErrValidationTimeout = errors.New("validation timeout")

	// ErrRateLimitExceeded is surfaced immediately and never retried here;
	// retry policy belongs to the caller.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrConcurrencyLimitExceeded: the in-flight validation bound was hit and
	// the orchestrator is configured to reject rather than queue.
	ErrConcurrencyLimitExceeded = errors.New("concurrency limit exceeded")
)
