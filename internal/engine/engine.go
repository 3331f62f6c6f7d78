// Package engine runs cross-validation: concurrent per-source validation
// followed by field-level reconciliation into one consensus record.
package engine

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/propsignal/crosscheck/internal/consensus"
	"github.com/propsignal/crosscheck/internal/datasources"
	"github.com/propsignal/crosscheck/internal/domain"
	"github.com/propsignal/crosscheck/internal/validate"
)

// SourceRecord pairs one provider with its report of the entity. Callers
// supply sources as an ordered slice; ties in consensus resolution break in
// favor of earlier entries, so a stable order gives reproducible reports.
type SourceRecord struct {
	Source domain.DataSource
	Record domain.Record
}

// ConsensusStrategy selects how numeric conflicts resolve.
type ConsensusStrategy string

const (
	// StrategyAuto resolves numeric conflicts by median and everything else
	// by majority vote.
	StrategyAuto ConsensusStrategy = "auto"
	// StrategyWeighted resolves numeric conflicts by reliability-weighted
	// average instead of median.
	StrategyWeighted ConsensusStrategy = "weighted"
)

// SourceGate wraps one source's validation attempt. Returning attempted
// false excludes the source from the report entirely, as if the caller never
// supplied it. The orchestrator uses this for circuit-breaker gating.
type SourceGate func(source domain.DataSource, run func() *domain.ValidationResult) (result *domain.ValidationResult, attempted bool)

// Config tunes an Engine. The zero value selects StrategyAuto and the
// default reliability weights.
type Config struct {
	Strategy           ConsensusStrategy
	ReliabilityWeights map[domain.DataSource]float64
}

// Engine owns the fan-out and reconciliation logic. It is stateless across
// calls and safe for concurrent use.
type Engine struct {
	single   *validate.SingleSourceValidator
	strategy ConsensusStrategy
	weights  map[domain.DataSource]float64
}

func New(single *validate.SingleSourceValidator, cfg Config) *Engine {
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyAuto
	}
	if cfg.ReliabilityWeights == nil {
		cfg.ReliabilityWeights = datasources.DefaultReliabilityWeights
	}
	return &Engine{
		single:   single,
		strategy: cfg.Strategy,
		weights:  cfg.ReliabilityWeights,
	}
}

// Validate cross-validates one entity across the given sources.
func (e *Engine) Validate(entityKind string, entityID int64, sources []SourceRecord) *domain.CrossValidationReport {
	return e.ValidateGated(entityKind, entityID, sources, nil)
}

// ValidateGated is Validate with a per-source gate. A nil gate admits every
// source.
func (e *Engine) ValidateGated(entityKind string, entityID int64, sources []SourceRecord, gate SourceGate) *domain.CrossValidationReport {
	return e.run(entityKind, entityID, sources, gate, true)
}

// ValidateIndependent validates each source on its own and skips
// reconciliation, for deployments that disable cross-validation. The report
// carries per-source results but no consensus and no conflicts.
func (e *Engine) ValidateIndependent(entityKind string, entityID int64, sources []SourceRecord, gate SourceGate) *domain.CrossValidationReport {
	return e.run(entityKind, entityID, sources, gate, false)
}

func (e *Engine) run(entityKind string, entityID int64, sources []SourceRecord, gate SourceGate, reconcile bool) *domain.CrossValidationReport {
	report := &domain.CrossValidationReport{
		ReportID:    uuid.NewString(),
		EntityKind:  entityKind,
		EntityID:    entityID,
		GeneratedAt: time.Now().UTC(),
	}

	if len(sources) == 0 {
		report.Recommendations = recommend(nil, nil)
		return report
	}

	report.PrimarySource = sources[0].Source
	for _, sr := range sources[1:] {
		report.ComparisonSources = append(report.ComparisonSources, sr.Source)
	}

	// Fan out one validation per source. Each slot is written by exactly one
	// goroutine; a failing source yields an invalid result instead of
	// cancelling its siblings.
	type slot struct {
		result    *domain.ValidationResult
		attempted bool
	}
	slots := make([]slot, len(sources))

	var wg sync.WaitGroup
	for i, sr := range sources {
		wg.Add(1)
		go func(i int, sr SourceRecord) {
			defer wg.Done()
			run := func() *domain.ValidationResult {
				return e.single.Validate(sr.Source, sr.Record, entityKind)
			}
			if gate != nil {
				res, attempted := gate(sr.Source, run)
				slots[i] = slot{result: res, attempted: attempted}
				return
			}
			slots[i] = slot{result: run(), attempted: true}
		}(i, sr)
	}
	wg.Wait()

	var attempted []SourceRecord
	for i, s := range slots {
		if !s.attempted || s.result == nil {
			continue
		}
		report.ValidationResults = append(report.ValidationResults, s.result)
		attempted = append(attempted, sources[i])
	}

	if reconcile {
		switch len(attempted) {
		case 0:
			// every source was gated away; the caller decides what that means
		case 1:
			report.ConsensusData = attempted[0].Record
		default:
			report.ConsensusData, report.Conflicts = e.reconcile(attempted)
		}
	}

	report.ConfidenceScore = aggregateConfidence(report.ValidationResults)
	report.Recommendations = recommend(report.ValidationResults, report.Conflicts)

	if len(report.Conflicts) > 0 {
		log.Debug().
			Str("report_id", report.ReportID).
			Str("entity_kind", entityKind).
			Int64("entity_id", entityID).
			Int("conflicts", len(report.Conflicts)).
			Msg("cross-validation resolved conflicts")
	}

	return report
}

// reconcile merges the attempted records field by field. Field order is
// sorted so conflict lists are deterministic.
func (e *Engine) reconcile(sources []SourceRecord) (domain.Record, []domain.ConflictRecord) {
	fieldSet := make(map[string]struct{})
	for _, sr := range sources {
		for field := range sr.Record {
			fieldSet[field] = struct{}{}
		}
	}
	fields := make([]string, 0, len(fieldSet))
	for f := range fieldSet {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	consensusData := make(domain.Record, len(fields))
	var conflicts []domain.ConflictRecord

	for _, field := range fields {
		var contribSources []domain.DataSource
		var contribValues []interface{}
		for _, sr := range sources {
			if v, ok := sr.Record[field]; ok && v != nil {
				contribSources = append(contribSources, sr.Source)
				contribValues = append(contribValues, v)
			}
		}

		switch len(contribValues) {
		case 0:
			// only null reports; the field stays out of the consensus
			continue
		case 1:
			consensusData[field] = contribValues[0]
			continue
		}

		if value, agree := allEqual(contribValues); agree {
			consensusData[field] = value
			continue
		}

		value, method := e.resolveConflict(contribSources, contribValues)
		consensusData[field] = value

		values := make(map[domain.DataSource]interface{}, len(contribSources))
		for i, src := range contribSources {
			values[src] = contribValues[i]
		}
		conflicts = append(conflicts, domain.ConflictRecord{
			Field:            field,
			Values:           values,
			ResolutionMethod: method,
			ConsensusValue:   value,
		})
	}

	return consensusData, conflicts
}

// allEqual reports agreement across contributed values. Raw equality is
// checked first; numeric strings then get one normalization pass, so "150"
// and 150 agree on the number 150.
func allEqual(values []interface{}) (interface{}, bool) {
	raw := true
	for _, v := range values[1:] {
		if !reflect.DeepEqual(values[0], v) {
			raw = false
			break
		}
	}
	if raw {
		return values[0], true
	}

	first, ok := normalizeNumeric(values[0])
	if !ok {
		return nil, false
	}
	for _, v := range values[1:] {
		n, ok := normalizeNumeric(v)
		if !ok || n != first {
			return nil, false
		}
	}
	return first, true
}

// resolveConflict picks the consensus value for genuinely disagreeing
// sources: numeric conflicts by the configured strategy, everything else by
// majority vote.
func (e *Engine) resolveConflict(sources []domain.DataSource, values []interface{}) (interface{}, domain.ResolutionMethod) {
	numeric := make([]float64, 0, len(values))
	allNumeric := true
	for _, v := range values {
		n, ok := normalizeNumeric(v)
		if !ok {
			allNumeric = false
			break
		}
		numeric = append(numeric, n)
	}

	if allNumeric {
		if e.strategy == StrategyWeighted {
			pairs := make([]consensus.WeightedValue, len(numeric))
			for i, n := range numeric {
				pairs[i] = consensus.WeightedValue{Value: n, Weight: e.weightFor(sources[i])}
			}
			if value, ok := consensus.WeightedAverage(pairs); ok {
				return value, domain.ResolutionWeightedAverage
			}
		}
		if value, ok := consensus.MedianConsensus(numeric); ok {
			return value, domain.ResolutionMedian
		}
	}

	return consensus.MajorityVote(values), domain.ResolutionMajorityVote
}

func (e *Engine) weightFor(source domain.DataSource) float64 {
	if w, ok := e.weights[source]; ok {
		return w
	}
	return datasources.ReliabilityWeight(source)
}

// aggregateConfidence is the weighted mean of per-source confidences. Valid
// results carry full weight; everything else carries half, so one bad source
// depresses confidence without dominating the report.
func aggregateConfidence(results []*domain.ValidationResult) float64 {
	if len(results) == 0 {
		return 0.0
	}

	var totalWeight, weighted float64
	for _, r := range results {
		weight := 0.5
		if r.Status == domain.StatusValid {
			weight = 1.0
		}
		totalWeight += weight
		weighted += r.ConfidenceScore * weight
	}
	if totalWeight == 0 {
		return 0.0
	}
	return weighted / totalWeight
}

func recommend(results []*domain.ValidationResult, conflicts []domain.ConflictRecord) []string {
	var recs []string

	var invalid, suspicious []string
	slow := 0
	for _, r := range results {
		switch r.Status {
		case domain.StatusInvalid:
			invalid = append(invalid, string(r.Source))
		case domain.StatusSuspicious:
			suspicious = append(suspicious, string(r.Source))
		}
		if r.ValidationTime > time.Second {
			slow++
		}
	}

	if len(invalid) > 0 {
		recs = append(recs, fmt.Sprintf("Consider excluding data from sources: %s", strings.Join(invalid, ", ")))
	}
	if len(suspicious) > 0 {
		recs = append(recs, fmt.Sprintf("Review data quality from sources: %s", strings.Join(suspicious, ", ")))
	}

	var highConflict []string
	for _, c := range conflicts {
		if len(c.Values) > 2 {
			highConflict = append(highConflict, c.Field)
		}
	}
	if len(highConflict) > 0 {
		recs = append(recs, fmt.Sprintf("High conflict detected in fields: %s. Consider manual review.", strings.Join(highConflict, ", ")))
	}

	if len(results) < 2 {
		recs = append(recs, "Consider adding additional data sources for cross-validation")
	}
	if slow > 0 {
		recs = append(recs, fmt.Sprintf("Performance: %d validations were slow (>1s)", slow))
	}

	return recs
}

// normalizeNumeric coerces numbers and numeric strings to float64 for
// cross-source comparison. Booleans stay non-numeric.
func normalizeNumeric(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
