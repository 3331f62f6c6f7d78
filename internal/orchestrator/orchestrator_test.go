package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propsignal/crosscheck/internal/cache"
	"github.com/propsignal/crosscheck/internal/datasources"
	"github.com/propsignal/crosscheck/internal/domain"
	"github.com/propsignal/crosscheck/internal/engine"
	"github.com/propsignal/crosscheck/internal/validate"
)

// stubSchema scripts schema outcomes per source field "src" so tests can
// force invalid results, and can block to simulate slow validation.
type stubSchema struct {
	mu      sync.Mutex
	failAll bool
	block   chan struct{} // when set, Check waits until closed
	started chan struct{} // closed once the first Check begins
	once    sync.Once
}

func (s *stubSchema) Available() bool { return true }

func (s *stubSchema) Check(record domain.Record, entityKind string) validate.SchemaCheckResult {
	if s.started != nil {
		s.once.Do(func() { close(s.started) })
	}
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	failAll := s.failAll
	s.mu.Unlock()
	if failAll {
		return validate.SchemaCheckResult{Performed: true, Valid: false, Errors: []string{"hits: forced failure"}}
	}
	return validate.SchemaCheckResult{Performed: true, Valid: true}
}

func testConfig() Config {
	return Config{
		Timeout:              2 * time.Second,
		MaxConcurrent:        8,
		MaxRequestsPerMinute: 1000,
		CacheResults:         true,
		CrossValidate:        true,
	}
}

func newTestOrchestrator(schema *stubSchema, breakerSettings datasources.BreakerSettings, cfg Config) *Orchestrator {
	single := validate.NewSingleSourceValidator(schema, validate.NewStatisticalValidator())
	eng := engine.New(single, engine.Config{})
	breakers := datasources.NewBreakerManager(breakerSettings, nil, nil)
	reportCache := cache.NewReportCache(time.Minute, 100, nil)
	return New(eng, breakers, reportCache, nil, nil, cfg)
}

func twoSources() []engine.SourceRecord {
	return []engine.SourceRecord{
		{Source: domain.SourcePrimaryStats, Record: domain.Record{"hits": 180, "avg": 0.285}},
		{Source: domain.SourceSecondaryStats, Record: domain.Record{"hits": 180, "avg": 0.285}},
	}
}

func TestValidateEntitySuccess(t *testing.T) {
	o := newTestOrchestrator(&stubSchema{}, datasources.DefaultBreakerSettings, testConfig())

	report, err := o.ValidatePlayerData(context.Background(), twoSources(), 660271)
	require.NoError(t, err)

	assert.Equal(t, domain.EntityPlayer, report.EntityKind)
	assert.Len(t, report.ValidationResults, 2)
	assert.Empty(t, report.Conflicts)
	assert.Equal(t, 180, report.ConsensusData["hits"])
}

func TestValidateEntityNoSources(t *testing.T) {
	o := newTestOrchestrator(&stubSchema{}, datasources.DefaultBreakerSettings, testConfig())

	_, err := o.ValidateEntity(context.Background(), domain.EntityPlayer, 1, nil)
	assert.ErrorIs(t, err, domain.ErrNoSourcesAvailable)
}

func TestValidateEntityCachesReports(t *testing.T) {
	o := newTestOrchestrator(&stubSchema{}, datasources.DefaultBreakerSettings, testConfig())

	first, err := o.ValidatePlayerData(context.Background(), twoSources(), 7)
	require.NoError(t, err)
	second, err := o.ValidatePlayerData(context.Background(), twoSources(), 7)
	require.NoError(t, err)

	assert.Equal(t, first.ReportID, second.ReportID, "cache hit must return the prior report")
}

func TestValidateEntityCacheDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.CacheResults = false
	o := newTestOrchestrator(&stubSchema{}, datasources.DefaultBreakerSettings, cfg)

	first, err := o.ValidatePlayerData(context.Background(), twoSources(), 7)
	require.NoError(t, err)
	second, err := o.ValidatePlayerData(context.Background(), twoSources(), 7)
	require.NoError(t, err)

	assert.NotEqual(t, first.ReportID, second.ReportID)
}

func TestValidateEntityRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRequestsPerMinute = 1
	o := newTestOrchestrator(&stubSchema{}, datasources.DefaultBreakerSettings, cfg)

	_, err := o.ValidatePlayerData(context.Background(), twoSources(), 1)
	require.NoError(t, err)

	_, err = o.ValidatePlayerData(context.Background(), twoSources(), 2)
	assert.ErrorIs(t, err, domain.ErrRateLimitExceeded)
}

func TestValidateEntityConcurrencyLimitRejects(t *testing.T) {
	schema := &stubSchema{block: make(chan struct{}), started: make(chan struct{})}
	cfg := testConfig()
	cfg.MaxConcurrent = 1
	cfg.CacheResults = false
	o := newTestOrchestrator(schema, datasources.DefaultBreakerSettings, cfg)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = o.ValidatePlayerData(context.Background(), twoSources(), 1)
	}()
	<-schema.started

	_, err := o.ValidatePlayerData(context.Background(), twoSources(), 2)
	assert.ErrorIs(t, err, domain.ErrConcurrencyLimitExceeded)

	close(schema.block)
	<-done
}

func TestValidateEntityTimeout(t *testing.T) {
	schema := &stubSchema{block: make(chan struct{})}
	cfg := testConfig()
	cfg.Timeout = 50 * time.Millisecond
	o := newTestOrchestrator(schema, datasources.DefaultBreakerSettings, cfg)

	start := time.Now()
	_, err := o.ValidatePlayerData(context.Background(), twoSources(), 1)
	assert.ErrorIs(t, err, domain.ErrValidationTimeout)
	assert.Less(t, time.Since(start), time.Second, "timeout must not wait for straggler sources")

	close(schema.block)
}

func TestValidateEntityAllValidationsFailed(t *testing.T) {
	o := newTestOrchestrator(&stubSchema{failAll: true}, datasources.DefaultBreakerSettings, testConfig())

	_, err := o.ValidatePlayerData(context.Background(), twoSources(), 1)
	assert.ErrorIs(t, err, domain.ErrAllValidationsFailed)
}

func TestOpenBreakerExcludesSource(t *testing.T) {
	schema := &stubSchema{failAll: true}
	settings := datasources.BreakerSettings{FailureThreshold: 2, RecoveryTimeout: time.Minute, SuccessThreshold: 1}
	cfg := testConfig()
	cfg.CacheResults = false
	o := newTestOrchestrator(schema, settings, cfg)

	bad := []engine.SourceRecord{
		{Source: domain.SourceExternal, Record: domain.Record{"hits": 1}},
	}

	// two invalid runs trip the external source's breaker
	for i := 0; i < 2; i++ {
		_, err := o.ValidatePlayerData(context.Background(), bad, 1)
		assert.ErrorIs(t, err, domain.ErrAllValidationsFailed)
	}

	// with its only source's breaker open, the call fails fast
	_, err := o.ValidatePlayerData(context.Background(), bad, 1)
	assert.ErrorIs(t, err, domain.ErrNoSourcesAvailable)

	// a healthy source alongside the broken one still validates, with the
	// broken source silently excluded
	schema.mu.Lock()
	schema.failAll = false
	schema.mu.Unlock()
	mixed := append([]engine.SourceRecord{
		{Source: domain.SourcePrimaryStats, Record: domain.Record{"hits": 180}},
	}, bad...)

	report, err := o.ValidatePlayerData(context.Background(), mixed, 1)
	require.NoError(t, err)
	require.Len(t, report.ValidationResults, 1)
	assert.Equal(t, domain.SourcePrimaryStats, report.ValidationResults[0].Source)
}

func TestCrossValidationDisabledSkipsConsensus(t *testing.T) {
	cfg := testConfig()
	cfg.CrossValidate = false
	o := newTestOrchestrator(&stubSchema{}, datasources.DefaultBreakerSettings, cfg)

	sources := []engine.SourceRecord{
		{Source: domain.SourcePrimaryStats, Record: domain.Record{"hits": 180}},
		{Source: domain.SourceSecondaryStats, Record: domain.Record{"hits": 182}},
	}
	report, err := o.ValidatePlayerData(context.Background(), sources, 1)
	require.NoError(t, err)

	assert.Len(t, report.ValidationResults, 2)
	assert.Nil(t, report.ConsensusData)
	assert.Empty(t, report.Conflicts)
}

func TestHealthCheck(t *testing.T) {
	o := newTestOrchestrator(&stubSchema{}, datasources.DefaultBreakerSettings, testConfig())
	o.Start(context.Background(), time.Minute)

	_, err := o.ValidatePlayerData(context.Background(), twoSources(), 1)
	require.NoError(t, err)

	h := o.HealthCheck()
	assert.Equal(t, "healthy", h.Status)
	assert.True(t, h.CachingEnabled)
	assert.True(t, h.CrossValidation)
	assert.Equal(t, int64(0), h.InFlight)
	assert.NotNil(t, h.Cache)
}
