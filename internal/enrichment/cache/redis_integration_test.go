//go:build integration

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zahori/internal/domain"
	"zahori/internal/enrichment/cache"
	"zahori/pkg/platform/sentinel"
	"zahori/pkg/testutil/containers"
)

func TestRedisCache(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	rc := containers.GetManager().GetRedis(t)
	ctx := context.Background()
	require.NoError(t, rc.FlushAll(ctx))

	c := cache.NewRedisCache(rc.Client, time.Minute)

	_, err := c.Find(ctx, "ip:8.8.8.8:")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	rec := domain.EnrichmentRecord{
		SourceType: "ip",
		Identifier: domain.Identifier{Kind: domain.KindIP, Value: "8.8.8.8"},
		Attributes: domain.Attributes{"ip": "8.8.8.8", "risk_score": 12},
		ProposedEdges: []domain.ProposedEdge{
			{Source: domain.Origin(), Target: domain.ByIndex(2)},
		},
	}
	require.NoError(t, c.Save(ctx, "ip:8.8.8.8:", rec))

	got, err := c.Find(ctx, "ip:8.8.8.8:")
	require.NoError(t, err)
	assert.Equal(t, rec.Identifier, got.Identifier)
	assert.Equal(t, "8.8.8.8", got.Attributes["ip"])
	assert.InDelta(t, 12, got.Attributes["risk_score"], 0)
	assert.Equal(t, domain.ByIndex(2), got.ProposedEdges[0].Target)

	ttl, err := rc.Client.TTL(ctx, "zahori:enrich:ip:8.8.8.8:").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Second)
}
