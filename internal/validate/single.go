package validate

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/propsignal/crosscheck/internal/domain"
)

// Fields eligible for statistical checks, per entity kind. Unknown kinds fall
// back to every numeric field in the record.
var numericFieldsByKind = map[string][]string{
	domain.EntityPlayer: {"games_played", "hits", "home_runs", "rbis", "runs", "avg", "obp", "slg"},
	domain.EntityGame:   {"home_score", "away_score", "inning"},
}

// StatisticalCheckResult summarizes the anomaly pass over one record.
type StatisticalCheckResult struct {
	Anomalies   []string              `json:"anomalies,omitempty"`
	FieldChecks map[string]FieldCheck `json:"field_checks,omitempty"`
	TotalChecks int                   `json:"total_checks"`
}

// FieldCheck records the outcome for one numeric field.
type FieldCheck struct {
	Value     float64 `json:"value"`
	IsOutlier bool    `json:"is_outlier"`
	InRange   bool    `json:"in_range"`
}

// CompletenessResult scores how much of a record carries usable values.
type CompletenessResult struct {
	Score          float64  `json:"score"`
	MissingFields  []string `json:"missing_fields,omitempty"`
	TotalFields    int      `json:"total_fields"`
	CompleteFields int      `json:"complete_fields"`
}

// SingleSourceValidator runs the per-source pipeline: schema check, then
// statistical check, then completeness, then finalize. Schema violations are
// errors; statistical anomalies are warnings only, since a record-breaking
// game is suspicious but not necessarily wrong.
type SingleSourceValidator struct {
	schema SchemaValidator
	stats  *StatisticalValidator
}

func NewSingleSourceValidator(schema SchemaValidator, stats *StatisticalValidator) *SingleSourceValidator {
	return &SingleSourceValidator{schema: schema, stats: stats}
}

// Validate never returns an error and never panics outward: internal
// failures become an invalid result with the failure recorded in Errors, so
// cross-validation always receives one result per attempted source.
func (v *SingleSourceValidator) Validate(source domain.DataSource, record domain.Record, entityKind string) (result *domain.ValidationResult) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("source", string(source)).
				Str("entity_kind", entityKind).
				Interface("panic", r).
				Msg("single-source validation panicked")
			result = &domain.ValidationResult{
				Status:          domain.StatusInvalid,
				Source:          source,
				Data:            record,
				ConfidenceScore: 0.0,
				ValidationTime:  time.Since(start),
				Errors:          []string{fmt.Sprintf("validation exception: %v", r)},
			}
		}
	}()

	if len(record) == 0 {
		return &domain.ValidationResult{
			Status:          domain.StatusMissing,
			Source:          source,
			ConfidenceScore: 0.0,
			ValidationTime:  time.Since(start),
			Warnings:        []string{"no data provided"},
		}
	}

	var errs, warnings []string
	metadata := make(map[string]interface{}, 3)

	schemaRes := v.schema.Check(record, entityKind)
	if !schemaRes.Valid {
		errs = append(errs, schemaRes.Errors...)
	}
	metadata["schema_validation"] = schemaRes

	statsRes := v.checkStatistics(record, entityKind)
	warnings = append(warnings, statsRes.Anomalies...)
	metadata["statistical_validation"] = statsRes

	completeness := CheckCompleteness(record)
	metadata["completeness"] = completeness

	var status domain.ValidationStatus
	var confidence float64
	switch {
	case len(errs) > 0:
		status = domain.StatusInvalid
		confidence = 0.0
	case len(warnings) > 0:
		status = domain.StatusSuspicious
		confidence = 0.7
	default:
		status = domain.StatusValid
		confidence = math.Min(1.0, completeness.Score)
	}

	return &domain.ValidationResult{
		Status:          status,
		Source:          source,
		Data:            record,
		ConfidenceScore: confidence,
		ValidationTime:  time.Since(start),
		Errors:          errs,
		Warnings:        warnings,
		Metadata:        metadata,
	}
}

func (v *SingleSourceValidator) checkStatistics(record domain.Record, entityKind string) StatisticalCheckResult {
	res := StatisticalCheckResult{FieldChecks: make(map[string]FieldCheck)}

	for _, field := range numericFieldNames(record, entityKind) {
		value, ok := toFloat64(record[field])
		if !ok {
			continue
		}

		isOutlier, outlierReason := v.stats.IsStatisticalOutlier(field, value)
		if isOutlier {
			res.Anomalies = append(res.Anomalies, fmt.Sprintf("%s: %s", field, outlierReason))
		}

		inRange, rangeReason := v.stats.ValidateAgainstRange(field, value)
		if !inRange {
			res.Anomalies = append(res.Anomalies, fmt.Sprintf("%s: %s", field, rangeReason))
		}

		res.FieldChecks[field] = FieldCheck{Value: value, IsOutlier: isOutlier, InRange: inRange}
	}

	res.TotalChecks = len(res.FieldChecks)
	return res
}

// numericFieldNames returns the check order: the declared list for known
// kinds, otherwise every numeric field sorted for deterministic warnings.
func numericFieldNames(record domain.Record, entityKind string) []string {
	if declared, ok := numericFieldsByKind[entityKind]; ok {
		return declared
	}
	var fields []string
	for k, v := range record {
		if _, ok := toFloat64(v); ok {
			fields = append(fields, k)
		}
	}
	sort.Strings(fields)
	return fields
}

// CheckCompleteness counts a field as missing when it is nil, an empty
// string, or numeric zero. True zeros are rare in box scores and usually
// mean the provider had no data, so a legitimate zero stat is misclassified
// here; callers that care about real zeros must handle them upstream.
func CheckCompleteness(record domain.Record) CompletenessResult {
	if len(record) == 0 {
		return CompletenessResult{Score: 0.0}
	}

	var missing []string
	for key, value := range record {
		if value == nil || value == "" {
			missing = append(missing, key)
			continue
		}
		if n, ok := toFloat64(value); ok && n == 0 {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)

	total := len(record)
	complete := total - len(missing)
	return CompletenessResult{
		Score:          float64(complete) / float64(total),
		MissingFields:  missing,
		TotalFields:    total,
		CompleteFields: complete,
	}
}
