package datasources

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/propsignal/crosscheck/internal/domain"
)

// DefaultReliabilityWeights are per-source trust factors used by weighted
// consensus and best-single-source selection.
var DefaultReliabilityWeights = map[domain.DataSource]float64{
	domain.SourcePrimaryStats:    1.0,
	domain.SourceAdvancedMetrics: 0.95,
	domain.SourceSecondaryStats:  0.9,
	domain.SourceExternal:        0.8,
}

// FallbackPriority orders sources most trusted first for single-source
// fallback selection.
var FallbackPriority = []domain.DataSource{
	domain.SourceAdvancedMetrics,
	domain.SourcePrimaryStats,
	domain.SourceSecondaryStats,
	domain.SourceExternal,
}

// ReliabilityWeight returns the configured trust factor, defaulting to the
// external-source weight for unknown providers.
func ReliabilityWeight(source domain.DataSource) float64 {
	if w, ok := DefaultReliabilityWeights[source]; ok {
		return w
	}
	return DefaultReliabilityWeights[domain.SourceExternal]
}

// SourceClient fetches one entity's record from an upstream provider. The
// validation pipeline has no opinion on transport; implementations wrap HTTP
// APIs, fixtures, or anything else.
type SourceClient interface {
	Fetch(ctx context.Context, entityKind string, entityID int64) (domain.Record, error)
}

// PacerConfig is the politeness limit applied in front of one provider.
type PacerConfig struct {
	RequestsPerSecond rate.Limit
	Burst             int
}

// DefaultPacerConfigs keeps upstream providers comfortable. External APIs
// get the tightest budget.
var DefaultPacerConfigs = map[domain.DataSource]PacerConfig{
	domain.SourcePrimaryStats:    {RequestsPerSecond: 10, Burst: 20},
	domain.SourceAdvancedMetrics: {RequestsPerSecond: 5, Burst: 10},
	domain.SourceSecondaryStats:  {RequestsPerSecond: 10, Burst: 20},
	domain.SourceExternal:        {RequestsPerSecond: 2, Burst: 4},
}

// ClientRegistry pairs registered source clients with their pacers.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[domain.DataSource]SourceClient
	pacers  map[domain.DataSource]*rate.Limiter
}

func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{
		clients: make(map[domain.DataSource]SourceClient),
		pacers:  make(map[domain.DataSource]*rate.Limiter),
	}
}

// Register adds a client for a source, using the default pacer config when
// none is known for it.
func (r *ClientRegistry) Register(source domain.DataSource, client SourceClient) {
	cfg, ok := DefaultPacerConfigs[source]
	if !ok {
		cfg = DefaultPacerConfigs[domain.SourceExternal]
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[source] = client
	r.pacers[source] = rate.NewLimiter(cfg.RequestsPerSecond, cfg.Burst)
}

// Has reports whether a client is registered for the source.
func (r *ClientRegistry) Has(source domain.DataSource) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clients[source]
	return ok
}

// Sources lists registered sources in fallback-priority order.
func (r *ClientRegistry) Sources() []domain.DataSource {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.DataSource, 0, len(r.clients))
	for _, s := range FallbackPriority {
		if _, ok := r.clients[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Fetch waits for the source's pacer, then fetches the entity record.
func (r *ClientRegistry) Fetch(ctx context.Context, source domain.DataSource, entityKind string, entityID int64) (domain.Record, error) {
	r.mu.RLock()
	client, ok := r.clients[source]
	pacer := r.pacers[source]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no client registered for source %s", source)
	}
	if err := pacer.Wait(ctx); err != nil {
		return nil, fmt.Errorf("pacing wait for %s: %w", source, err)
	}
	return client.Fetch(ctx, entityKind, entityID)
}
