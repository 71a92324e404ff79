// Package cache provides a Redis read-side cache for reporting queries.
// Only snapshots are cached; the ledger itself never reads from here.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/pkg/logger"
)

const (
	stockKeyPrefix  = "stock:wh:"
	expiryKeyPrefix = "lots:expiring:"
)

// StockCache caches warehouse stock and near-expiry snapshots.
// A miss or Redis failure falls back to the database; staleness is
// bounded by the TTL.
type StockCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStockCache creates a cache with the given TTL (default 30s).
func NewStockCache(client *redis.Client, ttl time.Duration) *StockCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &StockCache{client: client, ttl: ttl}
}

// GetWarehouseStock returns the cached snapshot, or (nil, false) on miss.
func (c *StockCache) GetWarehouseStock(ctx context.Context, warehouseID id.ID) ([]*entity.StockRecord, bool) {
	raw, err := c.client.Get(ctx, stockKeyPrefix+warehouseID.String()).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Warn(ctx, "stock cache read failed", "error", err)
		}
		return nil, false
	}

	var records []*entity.StockRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		logger.Warn(ctx, "stock cache decode failed", "error", err)
		return nil, false
	}
	return records, true
}

// SetWarehouseStock stores a snapshot. Failures are logged, not returned.
func (c *StockCache) SetWarehouseStock(ctx context.Context, warehouseID id.ID, records []*entity.StockRecord) {
	raw, err := json.Marshal(records)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, stockKeyPrefix+warehouseID.String(), raw, c.ttl).Err(); err != nil {
		logger.Warn(ctx, "stock cache write failed", "error", err)
	}
}

// InvalidateWarehouse drops the snapshot after a movement.
func (c *StockCache) InvalidateWarehouse(ctx context.Context, warehouseID id.ID) {
	if err := c.client.Del(ctx, stockKeyPrefix+warehouseID.String()).Err(); err != nil {
		logger.Warn(ctx, "stock cache invalidation failed", "error", err)
	}
}

// GetExpiringLots returns the cached near-expiry snapshot for a scope.
func (c *StockCache) GetExpiringLots(ctx context.Context, scope string) ([]*entity.Lot, bool) {
	raw, err := c.client.Get(ctx, expiryKeyPrefix+scope).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Warn(ctx, "expiry cache read failed", "error", err)
		}
		return nil, false
	}

	var lots []*entity.Lot
	if err := json.Unmarshal(raw, &lots); err != nil {
		return nil, false
	}
	return lots, true
}

// SetExpiringLots stores a near-expiry snapshot.
func (c *StockCache) SetExpiringLots(ctx context.Context, scope string, lots []*entity.Lot) {
	raw, err := json.Marshal(lots)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, expiryKeyPrefix+scope, raw, c.ttl).Err(); err != nil {
		logger.Warn(ctx, "expiry cache write failed", "error", err)
	}
}

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
