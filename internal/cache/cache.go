// Package cache is the Redis result cache in front of the replay
// engine. Entries are keyed by (wallet, semantics) and guarded by the
// event-set fingerprint: a hit whose fingerprint no longer matches the
// live event set is a miss, because upstream backfills rewrite history
// without necessarily growing it.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/rawborkchop/polymarket-wallet-analysis/internal/observability"
	"github.com/rawborkchop/polymarket-wallet-analysis/internal/pnl"
)

const (
	reportKeyPrefix = "pnl:report:"
	lockKeyPrefix   = "pnl:refresh-lock:"
)

// ResultCache caches computed reports and coordinates refresh workers
// through per-wallet locks.
type ResultCache struct {
	rdb     *redis.Client
	ttl     time.Duration
	metrics *observability.Metrics
	log     zerolog.Logger
}

// New creates a cache. metrics may be nil.
func New(rdb *redis.Client, ttl time.Duration, metrics *observability.Metrics, log zerolog.Logger) *ResultCache {
	return &ResultCache{
		rdb:     rdb,
		ttl:     ttl,
		metrics: metrics,
		log:     log,
	}
}

func reportKey(wallet string, semantics pnl.Semantics) string {
	return fmt.Sprintf("%s%s:%s", reportKeyPrefix, wallet, semantics)
}

// Get returns the cached report if present and its fingerprint matches
// the live event set. Cache failures degrade to a miss: a report is
// always recomputable, and a flaky cache must not fail a query.
func (c *ResultCache) Get(ctx context.Context, wallet string, semantics pnl.Semantics, fingerprint string) (*pnl.Report, bool) {
	data, err := c.rdb.Get(ctx, reportKey(wallet, semantics)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.miss()
		return nil, false
	}
	if err != nil {
		c.log.Warn().Err(err).Str("wallet", wallet).Msg("result cache read failed")
		c.miss()
		return nil, false
	}

	var report pnl.Report
	if err := json.Unmarshal(data, &report); err != nil {
		c.log.Warn().Err(err).Str("wallet", wallet).Msg("result cache entry corrupt")
		c.miss()
		return nil, false
	}

	if report.Fingerprint != fingerprint {
		c.miss()
		return nil, false
	}

	if c.metrics != nil {
		c.metrics.CacheHits.Inc()
	}
	return &report, true
}

// Put stores a report under its (wallet, semantics) key.
func (c *ResultCache) Put(ctx context.Context, report *pnl.Report) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report for cache: %w", err)
	}
	if err := c.rdb.Set(ctx, reportKey(report.Wallet, report.Semantics), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache report for %s: %w", report.Wallet, err)
	}
	return nil
}

// Invalidate drops every cached semantics for a wallet, typically after
// new events for it arrive.
func (c *ResultCache) Invalidate(ctx context.Context, wallet string) error {
	keys := []string{
		reportKey(wallet, pnl.SemanticsFullHistory),
		reportKey(wallet, pnl.SemanticsWindowSnapshot),
		reportKey(wallet, pnl.SemanticsWindowRealized),
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate cache for %s: %w", wallet, err)
	}
	return nil
}

// AcquireRefreshLock takes the per-wallet recompute lock. ok=false means
// another worker already holds it and this refresh should be skipped —
// two concurrent replays of the same wallet produce identical results
// and just waste a replay budget.
func (c *ResultCache) AcquireRefreshLock(ctx context.Context, wallet string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, lockKeyPrefix+wallet, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire refresh lock for %s: %w", wallet, err)
	}
	if !ok && c.metrics != nil {
		c.metrics.CacheSkips.Inc()
	}
	return ok, nil
}

// ReleaseRefreshLock drops the per-wallet recompute lock.
func (c *ResultCache) ReleaseRefreshLock(ctx context.Context, wallet string) {
	if err := c.rdb.Del(ctx, lockKeyPrefix+wallet).Err(); err != nil {
		c.log.Warn().Err(err).Str("wallet", wallet).Msg("release refresh lock failed")
	}
}

func (c *ResultCache) miss() {
	if c.metrics != nil {
		c.metrics.CacheMisses.Inc()
	}
}
