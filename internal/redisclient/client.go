package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront-service/internal/models"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/claim_idempotency.lua
var claimIdempotencyScript string

//go:embed scripts/release_claim.lua
var releaseClaimScript string

//go:embed scripts/hit_counter.lua
var hitCounterScript string

type Client struct {
	rdb           *redis.Client
	claimScript   *redis.Script
	releaseScript *redis.Script
	counterScript *redis.Script
	claimTTL      time.Duration
	resellerTTL   time.Duration
}

// Options tunes key lifetimes
type Options struct {
	ClaimTTL    time.Duration
	ResellerTTL time.Duration
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int, opts Options) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewFromRedis(rdb, opts), nil
}

// NewFromRedis wraps an existing go-redis client
func NewFromRedis(rdb *redis.Client, opts Options) *Client {
	if opts.ClaimTTL <= 0 {
		opts.ClaimTTL = 30 * time.Second
	}
	if opts.ResellerTTL <= 0 {
		opts.ResellerTTL = 5 * time.Minute
	}
	return &Client{
		rdb:           rdb,
		claimScript:   redis.NewScript(claimIdempotencyScript),
		releaseScript: redis.NewScript(releaseClaimScript),
		counterScript: redis.NewScript(hitCounterScript),
		claimTTL:      opts.ClaimTTL,
		resellerTTL:   opts.ResellerTTL,
	}
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Ping checks connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("idempotency:%s", key)
}

func resellerKey(uniqueID string) string {
	return fmt.Sprintf("reseller:%s", uniqueID)
}

// Claim marks an idempotency key as in flight for owner.
// Returns false when a different owner already holds it.
func (c *Client) Claim(ctx context.Context, key, owner string) (bool, error) {
	result, err := c.claimScript.Run(ctx, c.rdb,
		[]string{idempotencyKey(key)}, owner, c.claimTTL.Milliseconds()).Result()
	if err != nil {
		return false, fmt.Errorf("claim script failed: %w", err)
	}

	claimed, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}

	return claimed == 1, nil
}

// Release drops a claim if owner still holds it
func (c *Client) Release(ctx context.Context, key, owner string) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{idempotencyKey(key)}, owner).Result()
	if err != nil {
		return fmt.Errorf("release claim script failed: %w", err)
	}
	return nil
}

// GetReseller reads a cached reseller. A miss returns nil, nil.
func (c *Client) GetReseller(ctx context.Context, uniqueID string) (*models.Reseller, error) {
	raw, err := c.rdb.Get(ctx, resellerKey(uniqueID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var reseller models.Reseller
	if err := json.Unmarshal(raw, &reseller); err != nil {
		return nil, fmt.Errorf("corrupt reseller cache entry: %w", err)
	}
	return &reseller, nil
}

// SetReseller caches a reseller under its referral code
func (c *Client) SetReseller(ctx context.Context, reseller *models.Reseller) error {
	raw, err := json.Marshal(reseller)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, resellerKey(reseller.UniqueID), raw, c.resellerTTL).Err()
}

// InvalidateReseller drops cached entries for the given referral codes
func (c *Client) InvalidateReseller(ctx context.Context, uniqueIDs ...string) error {
	if len(uniqueIDs) == 0 {
		return nil
	}
	keys := make([]string, len(uniqueIDs))
	for i, id := range uniqueIDs {
		keys[i] = resellerKey(id)
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// Hit increments a windowed counter and returns its new value
func (c *Client) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	result, err := c.counterScript.Run(ctx, c.rdb,
		[]string{fmt.Sprintf("hits:%s", key)}, window.Milliseconds()).Result()
	if err != nil {
		return 0, fmt.Errorf("hit counter script failed: %w", err)
	}

	n, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected script result type")
	}
	return n, nil
}

// ResetHits clears a counter
func (c *Client) ResetHits(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("hits:%s", key)).Err()
}
