// Package cache provides a two-tier TTL cache: an in-process ttlcache tier in
// front of an optional shared Redis tier, with at most one concurrent load per key.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ekaya-inc/ekaya-vkg/pkg/metrics"
)

const (
	defaultTTL         = 10 * time.Minute
	defaultLoadTimeout = 30 * time.Second
)

// LoadFunc produces the value for a key on a miss in both tiers.
type LoadFunc[V any] func(ctx context.Context) (V, error)

// Config configures a TieredCache.
type Config struct {
	// Name distinguishes caches sharing one Redis; it is part of every remote key.
	Name string
	TTL  time.Duration
	// KeyPrefix is prepended to every remote key.
	KeyPrefix string
	// LoadTimeout bounds a shared load, which runs detached from any one caller.
	LoadTimeout time.Duration
}

// TieredCache is safe for concurrent use. Values must round-trip through JSON
// when a Redis tier is configured.
type TieredCache[V any] struct {
	cfg    Config
	local  *ttlcache.Cache[string, V]
	remote *redis.Client
	group  singleflight.Group
	logger *zap.Logger
}

// New creates a TieredCache. A nil redis client disables the shared tier.
func New[V any](cfg Config, remote *redis.Client, logger *zap.Logger) *TieredCache[V] {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = defaultLoadTimeout
	}
	local := ttlcache.New(
		ttlcache.WithTTL[string, V](cfg.TTL),
		ttlcache.WithDisableTouchOnHit[string, V](),
	)
	go local.Start()

	return &TieredCache[V]{
		cfg:    cfg,
		local:  local,
		remote: remote,
		logger: logger.Named("cache").With(zap.String("cache", cfg.Name)),
	}
}

// Stop halts the local tier's expiry loop.
func (c *TieredCache[V]) Stop() {
	c.local.Stop()
}

// GetOrLoad returns the cached value for key, consulting the local tier, then
// the remote tier, then load. Concurrent misses for the same key share one load.
// The shared load keeps the first caller's values but not its cancellation; a
// caller whose ctx ends stops waiting without failing the others.
// Remote tier failures are logged and treated as misses.
func (c *TieredCache[V]) GetOrLoad(ctx context.Context, key string, load LoadFunc[V]) (V, error) {
	var zero V
	if item := c.local.Get(key); item != nil {
		metrics.ObserveCacheLookup(metrics.TierLocal, metrics.ResultHit)
		return item.Value(), nil
	}
	metrics.ObserveCacheLookup(metrics.TierLocal, metrics.ResultMiss)

	ch := c.group.DoChan(key, func() (any, error) {
		// Another caller may have filled the local tier while we waited.
		if item := c.local.Get(key); item != nil {
			return item.Value(), nil
		}

		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.LoadTimeout)
		defer cancel()

		if value, ok := c.getRemote(loadCtx, key); ok {
			c.local.Set(key, value, ttlcache.DefaultTTL)
			return value, nil
		}

		value, err := load(loadCtx)
		if err != nil {
			return value, err
		}
		c.local.Set(key, value, ttlcache.DefaultTTL)
		c.setRemote(loadCtx, key, value)
		return value, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(V), nil
	}
}

func (c *TieredCache[V]) remoteKey(key string) string {
	return c.cfg.KeyPrefix + c.cfg.Name + ":" + key
}

func (c *TieredCache[V]) getRemote(ctx context.Context, key string) (V, bool) {
	var value V
	if c.remote == nil {
		return value, false
	}

	data, err := c.remote.Get(ctx, c.remoteKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.ObserveCacheLookup(metrics.TierRemote, metrics.ResultMiss)
		return value, false
	}
	if err != nil {
		metrics.ObserveCacheLookup(metrics.TierRemote, metrics.ResultError)
		c.logger.Warn("Remote cache read failed", zap.String("key", key), zap.Error(err))
		return value, false
	}
	if err := json.Unmarshal(data, &value); err != nil {
		metrics.ObserveCacheLookup(metrics.TierRemote, metrics.ResultError)
		c.logger.Warn("Discarding undecodable remote cache entry", zap.String("key", key), zap.Error(err))
		return value, false
	}

	metrics.ObserveCacheLookup(metrics.TierRemote, metrics.ResultHit)
	return value, true
}

func (c *TieredCache[V]) setRemote(ctx context.Context, key string, value V) {
	if c.remote == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("Failed to encode cache entry", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.remote.Set(ctx, c.remoteKey(key), data, c.cfg.TTL).Err(); err != nil {
		c.logger.Warn("Remote cache write failed", zap.String("key", key), zap.Error(err))
	}
}
