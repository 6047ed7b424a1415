package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rawborkchop/polymarket-wallet-analysis/internal/cache"
	"github.com/rawborkchop/polymarket-wallet-analysis/internal/pnl"
	"github.com/rawborkchop/polymarket-wallet-analysis/internal/testutil"
)

func setupCache(t *testing.T) *cache.ResultCache {
	t.Helper()
	testutil.RequireIntegration(t)

	rdb := redis.NewClient(&redis.Options{Addr: testutil.TestRedisAddr()})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		t.Skipf("test redis not available: %v (start with: docker compose -f docker-compose.test.yml up -d)", err)
	}

	t.Cleanup(func() {
		rdb.FlushDB(context.Background())
		rdb.Close()
	})
	return cache.New(rdb, time.Minute, nil, zerolog.Nop())
}

func sampleReport(wallet, fingerprint string) *pnl.Report {
	return &pnl.Report{
		Wallet:      wallet,
		Semantics:   pnl.SemanticsFullHistory,
		GeneratedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Realized:    decimal.NewFromInt(15),
		Total:       decimal.NewFromInt(10),
		Fingerprint: fingerprint,
	}
}

func TestCachePutGet(t *testing.T) {
	c := setupCache(t)
	ctx := context.Background()

	if _, ok := c.Get(ctx, "0xa", pnl.SemanticsFullHistory, "fp-1"); ok {
		t.Fatal("hit on empty cache")
	}

	if err := c.Put(ctx, sampleReport("0xa", "fp-1")); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok := c.Get(ctx, "0xa", pnl.SemanticsFullHistory, "fp-1")
	if !ok {
		t.Fatal("expected hit")
	}
	if got.Fingerprint != "fp-1" || !got.Total.Equal(decimal.NewFromInt(10)) {
		t.Errorf("cached report mismatch: %+v", got)
	}
}

func TestCacheFingerprintMismatchIsMiss(t *testing.T) {
	c := setupCache(t)
	ctx := context.Background()

	if err := c.Put(ctx, sampleReport("0xa", "fp-old")); err != nil {
		t.Fatalf("put: %v", err)
	}

	// The live event set moved on; the stale entry must not be served.
	if _, ok := c.Get(ctx, "0xa", pnl.SemanticsFullHistory, "fp-new"); ok {
		t.Error("stale fingerprint served as hit")
	}
}

func TestCacheInvalidate(t *testing.T) {
	c := setupCache(t)
	ctx := context.Background()

	if err := c.Put(ctx, sampleReport("0xa", "fp-1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := c.Invalidate(ctx, "0xa"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	if _, ok := c.Get(ctx, "0xa", pnl.SemanticsFullHistory, "fp-1"); ok {
		t.Error("invalidated entry served")
	}
}

func TestRefreshLock(t *testing.T) {
	c := setupCache(t)
	ctx := context.Background()

	ok, err := c.AcquireRefreshLock(ctx, "0xa", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}

	// Second worker is locked out.
	ok, err = c.AcquireRefreshLock(ctx, "0xa", time.Minute)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if ok {
		t.Error("lock acquired twice")
	}

	c.ReleaseRefreshLock(ctx, "0xa")

	ok, err = c.AcquireRefreshLock(ctx, "0xa", time.Minute)
	if err != nil || !ok {
		t.Errorf("acquire after release: ok=%v err=%v", ok, err)
	}
}
