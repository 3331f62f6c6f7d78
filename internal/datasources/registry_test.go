package datasources

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propsignal/crosscheck/internal/domain"
)

type staticClient struct {
	record domain.Record
	err    error
	calls  int
}

func (c *staticClient) Fetch(_ context.Context, _ string, _ int64) (domain.Record, error) {
	c.calls++
	return c.record, c.err
}

func TestClientRegistryFetch(t *testing.T) {
	r := NewClientRegistry()
	client := &staticClient{record: domain.Record{"hits": 155}}
	r.Register(domain.SourcePrimaryStats, client)

	got, err := r.Fetch(context.Background(), domain.SourcePrimaryStats, domain.EntityPlayer, 660271)
	require.NoError(t, err)
	assert.Equal(t, domain.Record{"hits": 155}, got)
	assert.Equal(t, 1, client.calls)
}

func TestClientRegistryUnknownSource(t *testing.T) {
	r := NewClientRegistry()

	_, err := r.Fetch(context.Background(), domain.SourceExternal, domain.EntityPlayer, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no client registered")
}

func TestClientRegistrySourcesFollowFallbackPriority(t *testing.T) {
	r := NewClientRegistry()
	r.Register(domain.SourceExternal, &staticClient{})
	r.Register(domain.SourceAdvancedMetrics, &staticClient{})
	r.Register(domain.SourcePrimaryStats, &staticClient{})

	assert.Equal(t, []domain.DataSource{
		domain.SourceAdvancedMetrics,
		domain.SourcePrimaryStats,
		domain.SourceExternal,
	}, r.Sources())
	assert.True(t, r.Has(domain.SourceExternal))
	assert.False(t, r.Has(domain.SourceSecondaryStats))
}

func TestReliabilityWeight(t *testing.T) {
	assert.Equal(t, 1.0, ReliabilityWeight(domain.SourcePrimaryStats))
	assert.Equal(t, 0.95, ReliabilityWeight(domain.SourceAdvancedMetrics))
	assert.Equal(t, 0.8, ReliabilityWeight(domain.DataSource("someday_api")))
}
