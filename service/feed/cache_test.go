package feed

import (
	"context"
	"os"
	"testing"

	"github.com/AdomakoJ/Inkwell-server/cmd/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheDisabled(t *testing.T) {
	// A nil cache is the disabled state; every operation must be a no-op.
	var cache *Cache

	page, err := cache.FrontPage(context.Background())
	require.NoError(t, err)
	assert.Nil(t, page)

	require.NoError(t, cache.SetFrontPage(context.Background(), Page{Number: 1}))
	require.NoError(t, cache.Invalidate(context.Background()))
}

func TestCacheRoundTrip(t *testing.T) {
	if os.Getenv("REDIS_ADDR") == "" {
		t.Skip("Skipping test - no Redis connection configured")
	}

	cache := NewCacheFromEnv()
	require.NotNil(t, cache)
	ctx := context.Background()

	require.NoError(t, cache.Invalidate(ctx))

	miss, err := cache.FrontPage(ctx)
	require.NoError(t, err)
	assert.Nil(t, miss)

	page := Page{
		Posts:   []models.Post{{Text: "cached"}},
		Total:   1,
		Number:  1,
		HasMore: false,
	}
	require.NoError(t, cache.SetFrontPage(ctx, page))

	hit, err := cache.FrontPage(ctx)
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, int64(1), hit.Total)
	require.Len(t, hit.Posts, 1)
	assert.Equal(t, "cached", hit.Posts[0].Text)

	require.NoError(t, cache.Invalidate(ctx))
}
