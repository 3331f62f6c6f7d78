// Package integration adapts the orchestrator to caller-specific shapes:
// player, game, and prop-generation payloads, with fallback-on-failure
// policy so callers get a usable record even when validation cannot run.
package integration

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/propsignal/crosscheck/internal/datasources"
	"github.com/propsignal/crosscheck/internal/domain"
	"github.com/propsignal/crosscheck/internal/engine"
	"github.com/propsignal/crosscheck/internal/metrics"
	"github.com/propsignal/crosscheck/internal/orchestrator"
)

// Config governs the integration layer's behavior.
type Config struct {
	EnableValidation       bool
	EnableFallback         bool
	MinConfidenceThreshold float64
}

// Counters is a snapshot of the integration layer's activity.
type Counters struct {
	ValidationsPerformed int64 `json:"validations_performed"`
	CacheHits            int64 `json:"cache_hits"`
	FallbacksTriggered   int64 `json:"fallbacks_triggered"`
	ConflictsResolved    int64 `json:"conflicts_resolved"`
}

// Service turns orchestrator reports and errors into enhanced records for
// callers. Safe for concurrent use.
type Service struct {
	orch     *orchestrator.Orchestrator
	registry *datasources.ClientRegistry
	metrics  *metrics.Registry
	events   orchestrator.EventSink
	cfg      Config

	validations atomic.Int64
	fallbacks   atomic.Int64
	conflicts   atomic.Int64
}

// NewService builds the integration layer. registry, reg, and events may be
// nil; a nil registry limits fallback to the records the caller supplied.
func NewService(orch *orchestrator.Orchestrator, registry *datasources.ClientRegistry, reg *metrics.Registry, events orchestrator.EventSink, cfg Config) *Service {
	return &Service{
		orch:     orch,
		registry: registry,
		metrics:  reg,
		events:   events,
		cfg:      cfg,
	}
}

// ValidateAndEnhance cross-validates one entity and returns an enhanced
// record: the consensus annotated with a _validation block on success, a raw
// source tagged _fallback on handled failure, or an error when fallback is
// disabled or yields nothing.
func (s *Service) ValidateAndEnhance(ctx context.Context, entityKind string, entityID int64, sources []engine.SourceRecord) (domain.Record, *domain.CrossValidationReport, error) {
	if !s.cfg.EnableValidation {
		for _, sr := range sources {
			if sr.Record != nil {
				return sr.Record, nil, nil
			}
		}
		return nil, nil, fmt.Errorf("validation disabled and no source supplied data for %s %d", entityKind, entityID)
	}

	report, err := s.orch.ValidateEntity(ctx, entityKind, entityID, sources)
	if err != nil {
		return s.handleFailure(ctx, entityKind, entityID, sources, err)
	}

	s.validations.Add(1)
	s.conflicts.Add(int64(len(report.Conflicts)))

	enhanced := s.enhancedData(report)
	if enhanced == nil {
		return s.handleFailure(ctx, entityKind, entityID, sources, fmt.Errorf("%w: report carried no usable data", domain.ErrAllValidationsFailed))
	}

	if report.ConfidenceScore < s.cfg.MinConfidenceThreshold {
		log.Warn().
			Str("entity_kind", entityKind).
			Int64("entity_id", entityID).
			Float64("confidence", report.ConfidenceScore).
			Float64("threshold", s.cfg.MinConfidenceThreshold).
			Msg("validation confidence below threshold")
	}

	enhanced["_validation"] = map[string]interface{}{
		"confidence_score":   report.ConfidenceScore,
		"quality_score":      report.QualityScore(),
		"conflicts_resolved": len(report.Conflicts),
		"sources_used":       report.SourcesUsed(),
		"validated_at":       report.GeneratedAt.Format(time.RFC3339),
	}
	return enhanced, report, nil
}

// enhancedData picks the record to return: the consensus when one exists,
// otherwise the data of the best-confidence result.
func (s *Service) enhancedData(report *domain.CrossValidationReport) domain.Record {
	if report.ConsensusData != nil {
		return report.ConsensusData.Clone()
	}

	var best *domain.ValidationResult
	for _, res := range report.ValidationResults {
		if res.Data == nil {
			continue
		}
		if best == nil || res.ConfidenceScore > best.ConfidenceScore {
			best = res
		}
	}
	if best == nil {
		return nil
	}
	return best.Data.Clone()
}

// handleFailure applies the fallback policy to a whole-call error: pick the
// most trusted source that has data, tag it with provenance, and return it
// instead of the error.
func (s *Service) handleFailure(ctx context.Context, entityKind string, entityID int64, sources []engine.SourceRecord, cause error) (domain.Record, *domain.CrossValidationReport, error) {
	if !s.cfg.EnableFallback {
		return nil, nil, cause
	}

	source, record := s.fallbackRecord(ctx, entityKind, entityID, sources)
	if record == nil {
		return nil, nil, fmt.Errorf("fallback found no usable source: %w", cause)
	}

	s.fallbacks.Add(1)
	if s.metrics != nil {
		s.metrics.RecordFallback(failureReason(cause))
	}

	eventID := uuid.NewString()
	log.Warn().
		Err(cause).
		Str("entity_kind", entityKind).
		Int64("entity_id", entityID).
		Str("source", string(source)).
		Str("event_id", eventID).
		Msg("serving fallback record")
	if s.events != nil {
		s.events.Publish("fallback_triggered", map[string]interface{}{
			"event_id":    eventID,
			"entity_kind": entityKind,
			"entity_id":   entityID,
			"source":      string(source),
			"reason":      failureReason(cause),
		})
	}

	out := record.Clone()
	out["_fallback"] = map[string]interface{}{
		"reason":    failureReason(cause),
		"source":    string(source),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	return out, nil, nil
}

// fallbackRecord walks the fixed trust order over the supplied records, then
// over registered source clients when the caller supplied nothing usable.
func (s *Service) fallbackRecord(ctx context.Context, entityKind string, entityID int64, sources []engine.SourceRecord) (domain.DataSource, domain.Record) {
	supplied := make(map[domain.DataSource]domain.Record, len(sources))
	for _, sr := range sources {
		if len(sr.Record) > 0 {
			supplied[sr.Source] = sr.Record
		}
	}
	for _, source := range datasources.FallbackPriority {
		if record, ok := supplied[source]; ok {
			return source, record
		}
	}

	if s.registry != nil {
		for _, source := range s.registry.Sources() {
			record, err := s.registry.Fetch(ctx, source, entityKind, entityID)
			if err != nil {
				log.Debug().Err(err).Str("source", string(source)).Msg("fallback fetch failed")
				continue
			}
			if len(record) > 0 {
				return source, record
			}
		}
	}
	return "", nil
}

// Metrics snapshots the service counters, folding in the orchestrator's
// cache hits.
func (s *Service) Metrics() Counters {
	return Counters{
		ValidationsPerformed: s.validations.Load(),
		CacheHits:            s.orch.CacheStats().Hits,
		FallbacksTriggered:   s.fallbacks.Load(),
		ConflictsResolved:    s.conflicts.Load(),
	}
}

func failureReason(err error) string {
	switch {
	case err == nil:
		return "unknown"
	case errors.Is(err, domain.ErrValidationTimeout):
		return "validation_timeout"
	case errors.Is(err, domain.ErrAllValidationsFailed):
		return "all_validations_failed"
	case errors.Is(err, domain.ErrNoSourcesAvailable):
		return "no_sources_available"
	case errors.Is(err, domain.ErrRateLimitExceeded):
		return "rate_limit_exceeded"
	case errors.Is(err, domain.ErrConcurrencyLimitExceeded):
		return "concurrency_limit_exceeded"
	default:
		return "validation_error"
	}
}
