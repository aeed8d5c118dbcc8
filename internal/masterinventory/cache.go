package masterinventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheVersionKey = "stock:inventory:version"

// Cache keeps JSON snapshots of aggregates in Redis. A nil Cache or client disables caching.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil
}

// Version returns the current cache generation, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if !c.enabled() {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, cacheVersionKey).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

func (c *Cache) key(ctx context.Context, productID int64) (string, error) {
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("stock:inventory:%d:%d", productID, ver), nil
}

// FetchJSON loads the product snapshot or populates it using the loader.
func (c *Cache) FetchJSON(ctx context.Context, productID int64, loader func(context.Context) (MasterInventory, error)) (MasterInventory, error) {
	if !c.enabled() {
		return loader(ctx)
	}
	key, err := c.key(ctx, productID)
	if err != nil {
		return loader(ctx)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var inv MasterInventory
		if err := json.Unmarshal(payload, &inv); err == nil {
			return inv, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return loader(ctx)
	}
	inv, err := loader(ctx)
	if err != nil {
		return MasterInventory{}, err
	}
	_ = c.Store(ctx, inv)
	return inv, nil
}

// Store writes a fresh snapshot.
func (c *Cache) Store(ctx context.Context, inv MasterInventory) error {
	if !c.enabled() {
		return nil
	}
	key, err := c.key(ctx, inv.ProductID)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(inv)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// Invalidate drops snapshots for the given products.
func (c *Cache) Invalidate(ctx context.Context, productIDs ...int64) error {
	if !c.enabled() || len(productIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(productIDs))
	for _, id := range productIDs {
		key, err := c.key(ctx, id)
		if err != nil {
			return err
		}
		keys = append(keys, key)
	}
	return c.client.Del(ctx, keys...).Err()
}

// Bump invalidates every snapshot by moving to a new generation.
func (c *Cache) Bump(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}
