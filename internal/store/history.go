// Package store persists validation report summaries for trend analysis.
// The repository is optional: a nil *HistoryRepo is safe to call and records
// nothing, so deployments without a database lose only the history surface.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/propsignal/crosscheck/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS validation_history (
	report_id      UUID PRIMARY KEY,
	entity_kind    TEXT NOT NULL,
	entity_id      BIGINT NOT NULL,
	confidence     DOUBLE PRECISION NOT NULL,
	quality        DOUBLE PRECISION NOT NULL,
	conflict_count INTEGER NOT NULL,
	sources        TEXT NOT NULL,
	duration_ms    BIGINT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_validation_history_entity
	ON validation_history (entity_kind, entity_id, created_at DESC);
`

// HistoryRow is one persisted report summary.
type HistoryRow struct {
	ReportID      string    `db:"report_id" json:"report_id"`
	EntityKind    string    `db:"entity_kind" json:"entity_kind"`
	EntityID      int64     `db:"entity_id" json:"entity_id"`
	Confidence    float64   `db:"confidence" json:"confidence"`
	Quality       float64   `db:"quality" json:"quality"`
	ConflictCount int       `db:"conflict_count" json:"conflict_count"`
	Sources       string    `db:"sources" json:"sources"`
	DurationMS    int64     `db:"duration_ms" json:"duration_ms"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// QualityTrend aggregates recent history for one entity kind.
type QualityTrend struct {
	EntityKind    string  `db:"entity_kind" json:"entity_kind"`
	Reports       int64   `db:"reports" json:"reports"`
	AvgConfidence float64 `db:"avg_confidence" json:"avg_confidence"`
	AvgQuality    float64 `db:"avg_quality" json:"avg_quality"`
	Conflicts     int64   `db:"conflicts" json:"conflicts"`
}

// HistoryRepo writes and reads validation history rows.
type HistoryRepo struct {
	db *sqlx.DB
}

// Open connects to Postgres and ensures the schema. Empty databaseURL
// returns a nil repo, which every method tolerates.
func Open(databaseURL string) (*HistoryRepo, error) {
	if databaseURL == "" {
		return nil, nil
	}
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting validation history store: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensuring validation history schema: %w", err)
	}
	log.Info().Msg("validation history store connected")
	return &HistoryRepo{db: db}, nil
}

// NewWithDB wraps an existing connection, which keeps the repo testable
// against a mock.
func NewWithDB(db *sqlx.DB) *HistoryRepo {
	return &HistoryRepo{db: db}
}

// Record persists one report summary. Failures are logged, not returned;
// history is advisory and must never fail a validation call.
func (r *HistoryRepo) Record(ctx context.Context, report *domain.CrossValidationReport, duration time.Duration) {
	if r == nil || r.db == nil || report == nil {
		return
	}

	sources := make([]string, 0, len(report.ValidationResults))
	for _, res := range report.ValidationResults {
		sources = append(sources, string(res.Source))
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO validation_history
			(report_id, entity_kind, entity_id, confidence, quality, conflict_count, sources, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (report_id) DO NOTHING`,
		report.ReportID,
		report.EntityKind,
		report.EntityID,
		report.ConfidenceScore,
		report.QualityScore(),
		len(report.Conflicts),
		strings.Join(sources, ","),
		duration.Milliseconds(),
		report.GeneratedAt,
	)
	if err != nil {
		log.Warn().Err(err).Str("report_id", report.ReportID).Msg("failed to record validation history")
	}
}

// RecentByEntity returns the latest rows for one entity, newest first.
func (r *HistoryRepo) RecentByEntity(ctx context.Context, entityKind string, entityID int64, limit int) ([]HistoryRow, error) {
	if r == nil || r.db == nil {
		return nil, nil
	}
	var rows []HistoryRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT report_id, entity_kind, entity_id, confidence, quality, conflict_count, sources, duration_ms, created_at
		FROM validation_history
		WHERE entity_kind = $1 AND entity_id = $2
		ORDER BY created_at DESC
		LIMIT $3`,
		entityKind, entityID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying validation history: %w", err)
	}
	return rows, nil
}

// QualityTrends aggregates per-kind quality over the trailing window.
func (r *HistoryRepo) QualityTrends(ctx context.Context, since time.Duration) ([]QualityTrend, error) {
	if r == nil || r.db == nil {
		return nil, nil
	}
	var trends []QualityTrend
	err := r.db.SelectContext(ctx, &trends, `
		SELECT entity_kind,
		       COUNT(*) AS reports,
		       AVG(confidence) AS avg_confidence,
		       AVG(quality) AS avg_quality,
		       COALESCE(SUM(conflict_count), 0) AS conflicts
		FROM validation_history
		WHERE created_at >= $1
		GROUP BY entity_kind
		ORDER BY entity_kind`,
		time.Now().Add(-since),
	)
	if err != nil {
		return nil, fmt.Errorf("querying quality trends: %w", err)
	}
	return trends, nil
}

// Close releases the underlying connection pool.
func (r *HistoryRepo) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}
