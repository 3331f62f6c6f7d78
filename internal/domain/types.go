package domain

import (
	"time"
)

// DataSource identifies an upstream provider. Values are stable wire
// identifiers used as map keys and cache key components, never free text.
type DataSource string

const (
	SourcePrimaryStats    DataSource = "primary_stats_api"
	SourceAdvancedMetrics DataSource = "advanced_metrics_provider"
	SourceSecondaryStats  DataSource = "secondary_stats_api"
	SourceExternal        DataSource = "external_api"
)

// AllSources lists every known provider in registry order.
func AllSources() []DataSource {
	return []DataSource{
		SourcePrimaryStats,
		SourceAdvancedMetrics,
		SourceSecondaryStats,
		SourceExternal,
	}
}

// ValidationStatus classifies the outcome of validating one source's record.
// There is no severity ordering between statuses; each has distinct handling.
type ValidationStatus string

const (
	StatusValid      ValidationStatus = "valid"
	StatusInvalid    ValidationStatus = "invalid"
	StatusSuspicious ValidationStatus = "suspicious"
	StatusMissing    ValidationStatus = "missing"
	StatusConflicted ValidationStatus = "conflicted"
)

// Entity kinds accepted by the validation pipeline.
const (
	EntityPlayer = "player"
	EntityGame   = "game"
)

// Record is one source's report of an entity: open field name to scalar
// (string, number, bool) or nil.
type Record map[string]interface{}

// Clone returns a shallow copy so downstream annotation cannot mutate the
// caller's map.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ValidationResult is the outcome of validating one source's record for one
// entity. Created once per (source, entity, pass) and treated as immutable
// afterward.
//
// Invariants: StatusInvalid implies ConfidenceScore == 0.0, and a non-empty
// Errors slice implies StatusInvalid.
type ValidationResult struct {
	Status          ValidationStatus       `json:"status"`
	Source          DataSource             `json:"source"`
	Data            Record                 `json:"data,omitempty"`
	ConfidenceScore float64                `json:"confidence_score"`
	ValidationTime  time.Duration          `json:"validation_time"`
	Errors          []string               `json:"errors,omitempty"`
	Warnings        []string               `json:"warnings,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// ResolutionMethod names the strategy that produced a consensus value.
type ResolutionMethod string

const (
	ResolutionMedian          ResolutionMethod = "median"
	ResolutionMajorityVote    ResolutionMethod = "majority_vote"
	ResolutionWeightedAverage ResolutionMethod = "weighted_average"
	ResolutionConfidenceBased ResolutionMethod = "confidence_based"
)

// ConflictRecord captures one field where two or more sources disagreed after
// normalization, with every contributing value and the resolved consensus.
type ConflictRecord struct {
	Field            string                     `json:"field"`
	Values           map[DataSource]interface{} `json:"values"`
	ResolutionMethod ResolutionMethod           `json:"resolution_method"`
	ConsensusValue   interface{}                `json:"consensus_value"`
}

// CrossValidationReport is the outcome of validating one entity across all
// provided sources.
type CrossValidationReport struct {
	ReportID          string              `json:"report_id"`
	EntityKind        string              `json:"entity_kind"`
	EntityID          int64               `json:"entity_id"`
	PrimarySource     DataSource          `json:"primary_source"`
	ComparisonSources []DataSource        `json:"comparison_sources"`
	ValidationResults []*ValidationResult `json:"validation_results"`
	ConsensusData     Record              `json:"consensus_data,omitempty"`
	ConfidenceScore   float64             `json:"confidence_score"`
	Conflicts         []ConflictRecord    `json:"conflicts,omitempty"`
	Recommendations   []string            `json:"recommendations,omitempty"`
	GeneratedAt       time.Time           `json:"generated_at"`
}

// QualityScore is the fraction of attempted sources that validated clean.
func (r *CrossValidationReport) QualityScore() float64 {
	if len(r.ValidationResults) == 0 {
		return 0.0
	}
	valid := 0
	for _, res := range r.ValidationResults {
		if res.Status == StatusValid {
			valid++
		}
	}
	return float64(valid) / float64(len(r.ValidationResults))
}

// ConflictCount reports how many fields needed consensus resolution.
func (r *CrossValidationReport) ConflictCount() int {
	return len(r.Conflicts)
}

// SourcesUsed lists the sources that produced a validation result, in report
// order.
func (r *CrossValidationReport) SourcesUsed() []DataSource {
	out := make([]DataSource, 0, len(r.ValidationResults))
	for _, res := range r.ValidationResults {
		out = append(out, res.Source)
	}
	return out
}
