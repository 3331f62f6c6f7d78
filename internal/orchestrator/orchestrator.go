// Package orchestrator is the public entry point for cross-validation. It
// wraps the engine with resilience policy: report caching, per-source
// circuit breakers, a system-wide concurrency bound, a sliding-window rate
// limit, and a whole-call deadline.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/propsignal/crosscheck/internal/cache"
	"github.com/propsignal/crosscheck/internal/datasources"
	"github.com/propsignal/crosscheck/internal/domain"
	"github.com/propsignal/crosscheck/internal/engine"
	"github.com/propsignal/crosscheck/internal/metrics"
)

// EventSink receives observability events (conflicts, breaker transitions,
// fallbacks). Implementations must not block; a nil sink drops everything.
type EventSink interface {
	Publish(event string, payload map[string]interface{})
}

// Config tunes one Orchestrator. Use config.Default()-derived values in
// production; the zero value is not runnable.
type Config struct {
	Timeout              time.Duration
	MaxConcurrent        int64
	MaxRequestsPerMinute int
	CacheResults         bool
	CrossValidate        bool
	AlertOnConflicts     bool
}

// Orchestrator coordinates cross-validation calls. Safe for concurrent use;
// all shared state (cache, breakers, limiter) is internally synchronized.
type Orchestrator struct {
	engine   *engine.Engine
	breakers *datasources.BreakerManager
	cache    *cache.ReportCache
	limiter  *datasources.SlidingWindowLimiter
	sem      *semaphore.Weighted
	metrics  *metrics.Registry
	events   EventSink
	cfg      Config

	inFlight atomic.Int64
	started  time.Time
}

// New assembles an orchestrator. cache may be nil when CacheResults is
// false; reg and events may be nil to disable metrics and event publishing.
func New(eng *engine.Engine, breakers *datasources.BreakerManager, reportCache *cache.ReportCache, reg *metrics.Registry, events EventSink, cfg Config) *Orchestrator {
	return &Orchestrator{
		engine:   eng,
		breakers: breakers,
		cache:    reportCache,
		limiter:  datasources.NewSlidingWindowLimiter(cfg.MaxRequestsPerMinute, time.Minute),
		sem:      semaphore.NewWeighted(cfg.MaxConcurrent),
		metrics:  reg,
		events:   events,
		cfg:      cfg,
	}
}

// ValidatePlayerData cross-validates one player's record across sources.
func (o *Orchestrator) ValidatePlayerData(ctx context.Context, sources []engine.SourceRecord, playerID int64) (*domain.CrossValidationReport, error) {
	return o.ValidateEntity(ctx, domain.EntityPlayer, playerID, sources)
}

// ValidateGameData cross-validates one game's record across sources.
func (o *Orchestrator) ValidateGameData(ctx context.Context, sources []engine.SourceRecord, gameID int64) (*domain.CrossValidationReport, error) {
	return o.ValidateEntity(ctx, domain.EntityGame, gameID, sources)
}

// ValidateEntity runs one cross-validation call under the full resilience
// policy. Errors are whole-call failures only: rate limit, concurrency
// limit, no sources, all validations failed, or timeout. Partial reports are
// never returned on timeout.
func (o *Orchestrator) ValidateEntity(ctx context.Context, entityKind string, entityID int64, sources []engine.SourceRecord) (*domain.CrossValidationReport, error) {
	if !o.limiter.Allow() {
		if o.metrics != nil {
			o.metrics.RateLimited.Inc()
		}
		return nil, fmt.Errorf("%w: %d requests/min", domain.ErrRateLimitExceeded, o.limiter.InWindow())
	}

	if !o.sem.TryAcquire(1) {
		return nil, fmt.Errorf("%w: %d in flight", domain.ErrConcurrencyLimitExceeded, o.inFlight.Load())
	}
	defer o.sem.Release(1)

	o.inFlight.Add(1)
	defer o.inFlight.Add(-1)
	if o.metrics != nil {
		o.metrics.ActiveValidations.Inc()
		defer o.metrics.ActiveValidations.Dec()
	}

	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: no sources supplied for %s %d", domain.ErrNoSourcesAvailable, entityKind, entityID)
	}

	sourceIDs := make([]domain.DataSource, len(sources))
	for i, sr := range sources {
		sourceIDs[i] = sr.Source
	}
	if o.breakers.AllOpen(sourceIDs) {
		return nil, fmt.Errorf("%w: all circuit breakers open", domain.ErrNoSourcesAvailable)
	}

	start := time.Now()

	if o.cfg.CacheResults && o.cache != nil {
		key := cache.Key(entityKind, entityID, sourceIDs)
		if report, ok := o.cache.Get(key); ok {
			if o.metrics != nil {
				o.metrics.RecordCacheHit("report")
				o.metrics.ObserveValidation(entityKind, "cache_hit", time.Since(start))
			}
			return report, nil
		}
		if o.metrics != nil {
			o.metrics.RecordCacheMiss("report")
		}
	}

	report, err := o.runWithDeadline(ctx, entityKind, entityID, sources)
	if err != nil {
		if o.metrics != nil {
			o.metrics.ObserveValidation(entityKind, outcomeLabel(err), time.Since(start))
		}
		return nil, err
	}

	o.afterReport(entityKind, entityID, report)

	if o.cfg.CacheResults && o.cache != nil {
		o.cache.Set(cache.Key(entityKind, entityID, sourceIDs), report)
	}
	if o.metrics != nil {
		o.metrics.ObserveValidation(entityKind, "success", time.Since(start))
	}
	return report, nil
}

// runWithDeadline executes the engine call under the configured timeout. The
// engine goroutine is not cancellable mid-validation; on timeout its result
// is discarded when it eventually lands.
func (o *Orchestrator) runWithDeadline(ctx context.Context, entityKind string, entityID int64, sources []engine.SourceRecord) (*domain.CrossValidationReport, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	type outcome struct {
		report *domain.CrossValidationReport
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		report := o.validateGated(entityKind, entityID, sources)
		done <- outcome{report: report, err: o.checkReport(report)}
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			log.Error().
				Str("entity_kind", entityKind).
				Int64("entity_id", entityID).
				Dur("timeout", o.cfg.Timeout).
				Msg("cross-validation deadline exceeded")
			return nil, fmt.Errorf("%w after %s", domain.ErrValidationTimeout, o.cfg.Timeout)
		}
		return nil, ctx.Err()
	case out := <-done:
		return out.report, out.err
	}
}

// validateGated runs the engine with the breaker gate. An invalid result
// counts as a failure against its source's breaker; an open breaker excludes
// the source from the call entirely.
func (o *Orchestrator) validateGated(entityKind string, entityID int64, sources []engine.SourceRecord) *domain.CrossValidationReport {
	gate := func(source domain.DataSource, run func() *domain.ValidationResult) (*domain.ValidationResult, bool) {
		var result *domain.ValidationResult
		err := o.breakers.Execute(source, func() error {
			result = run()
			if result.Status == domain.StatusInvalid {
				return fmt.Errorf("source %s produced invalid data", source)
			}
			return nil
		})
		if datasources.IsUnavailable(err) {
			log.Debug().
				Str("source", string(source)).
				Str("entity_kind", entityKind).
				Int64("entity_id", entityID).
				Msg("source excluded by open circuit breaker")
			return nil, false
		}
		return result, true
	}

	if !o.cfg.CrossValidate {
		return o.engine.ValidateIndependent(entityKind, entityID, sources, gate)
	}
	return o.engine.ValidateGated(entityKind, entityID, sources, gate)
}

// checkReport converts degenerate reports into whole-call errors.
func (o *Orchestrator) checkReport(report *domain.CrossValidationReport) error {
	if len(report.ValidationResults) == 0 {
		return fmt.Errorf("%w: every source excluded by circuit breakers", domain.ErrNoSourcesAvailable)
	}
	for _, res := range report.ValidationResults {
		if res.Status != domain.StatusInvalid {
			return nil
		}
	}
	return fmt.Errorf("%w: %d sources attempted", domain.ErrAllValidationsFailed, len(report.ValidationResults))
}

// afterReport emits conflict metrics and observability events for a
// successful report.
func (o *Orchestrator) afterReport(entityKind string, entityID int64, report *domain.CrossValidationReport) {
	if o.metrics != nil {
		for _, c := range report.Conflicts {
			o.metrics.RecordConflict(string(c.ResolutionMethod))
		}
	}

	if o.cfg.AlertOnConflicts && len(report.Conflicts) > 0 {
		fields := make([]string, 0, len(report.Conflicts))
		for _, c := range report.Conflicts {
			fields = append(fields, c.Field)
		}
		log.Warn().
			Str("entity_kind", entityKind).
			Int64("entity_id", entityID).
			Strs("fields", fields).
			Msg("cross-validation conflicts detected")
		if o.events != nil {
			o.events.Publish("conflict_detected", map[string]interface{}{
				"report_id":   report.ReportID,
				"entity_kind": entityKind,
				"entity_id":   entityID,
				"fields":      fields,
				"confidence":  report.ConfidenceScore,
			})
		}
	}
}

// CacheStats snapshots the report cache, for the integration metrics
// surface. Zero stats when caching is off.
func (o *Orchestrator) CacheStats() cache.CacheStats {
	if o.cache == nil {
		return cache.CacheStats{}
	}
	return o.cache.Stats()
}

// ClearCache drops every cached report.
func (o *Orchestrator) ClearCache() {
	if o.cache != nil {
		o.cache.Clear()
	}
}

// Start launches the background cache cleanup worker. Idempotent callers
// should invoke it once at service startup.
func (o *Orchestrator) Start(ctx context.Context, cleanupInterval time.Duration) {
	o.started = time.Now()
	if o.cache != nil {
		o.cache.StartCleanupWorker(ctx, cleanupInterval)
	}
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidationTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrAllValidationsFailed):
		return "all_failed"
	case errors.Is(err, domain.ErrNoSourcesAvailable):
		return "no_sources"
	default:
		return "error"
	}
}
