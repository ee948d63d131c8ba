package redisclient

import (
	"context"
	"testing"
	"time"

	"storefront-service/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewFromRedis(rdb, Options{ClaimTTL: time.Minute, ResellerTTL: time.Minute}), mr
}

func TestClaimIsExclusivePerOwner(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	ok, err := c.Claim(ctx, "key-1", "owner-a")
	require.NoError(t, err)
	assert.True(t, ok)

	// Same owner re-claims
	ok, err = c.Claim(ctx, "key-1", "owner-a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Claim(ctx, "key-1", "owner-b")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReleaseOnlyByOwner(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	_, err := c.Claim(ctx, "key-2", "owner-a")
	require.NoError(t, err)

	require.NoError(t, c.Release(ctx, "key-2", "owner-b"))
	assert.True(t, mr.Exists("idempotency:key-2"))

	require.NoError(t, c.Release(ctx, "key-2", "owner-a"))
	assert.False(t, mr.Exists("idempotency:key-2"))

	ok, err := c.Claim(ctx, "key-2", "owner-b")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClaimExpires(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	_, err := c.Claim(ctx, "key-3", "owner-a")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	ok, err := c.Claim(ctx, "key-3", "owner-b")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestResellerCache(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	miss, err := c.GetReseller(ctx, "BUDI01")
	require.NoError(t, err)
	assert.Nil(t, miss)

	require.NoError(t, c.SetReseller(ctx, &models.Reseller{ID: 7, Name: "Budi", Phone: "0812", UniqueID: "BUDI01"}))

	hit, err := c.GetReseller(ctx, "BUDI01")
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, int64(7), hit.ID)
	assert.Equal(t, "Budi", hit.Name)

	require.NoError(t, c.InvalidateReseller(ctx, "BUDI01"))
	assert.False(t, mr.Exists("reseller:BUDI01"))
}

func TestHitCounterWindow(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		n, err := c.Hit(ctx, "login:ops", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(i), n)
	}

	mr.FastForward(2 * time.Minute)

	n, err := c.Hit(ctx, "login:ops", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, c.ResetHits(ctx, "login:ops"))
	assert.False(t, mr.Exists("hits:login:ops"))
}
