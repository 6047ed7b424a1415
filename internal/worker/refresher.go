package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rawborkchop/polymarket-wallet-analysis/internal/cache"
	"github.com/rawborkchop/polymarket-wallet-analysis/internal/event"
	"github.com/rawborkchop/polymarket-wallet-analysis/internal/observability"
	"github.com/rawborkchop/polymarket-wallet-analysis/internal/pnl"
	"github.com/rawborkchop/polymarket-wallet-analysis/internal/store"
)

// Refresher recomputes full-history reports and persists them. One
// wallet's refresh is a single-threaded replay; the pool runs many
// wallets at once.
type Refresher struct {
	store     store.Store
	engine    *pnl.Engine
	cache     *cache.ResultCache // optional
	publisher *ReportPublisher   // optional
	metrics   *observability.Metrics
	log       zerolog.Logger

	lockTTL time.Duration
}

func NewRefresher(st store.Store, engine *pnl.Engine, c *cache.ResultCache, publisher *ReportPublisher, metrics *observability.Metrics, log zerolog.Logger) *Refresher {
	return &Refresher{
		store:     st,
		engine:    engine,
		cache:     c,
		publisher: publisher,
		metrics:   metrics,
		log:       log,
		lockTTL:   5 * time.Minute,
	}
}

// RefreshWallet recomputes one wallet. The per-wallet lock makes
// concurrent refresh requests for the same wallet collapse into one
// replay; a refresh whose fingerprint already matches the stored cache
// entry is a no-op.
func (r *Refresher) RefreshWallet(ctx context.Context, wallet string) error {
	// Job ID correlates the log lines of one refresh across the pool.
	log := r.log.With().Str("job", uuid.NewString()).Str("wallet", wallet).Logger()

	if r.cache != nil {
		ok, err := r.cache.AcquireRefreshLock(ctx, wallet, r.lockTTL)
		if err != nil {
			return err
		}
		if !ok {
			r.countJob("skipped_locked")
			return nil
		}
		defer r.cache.ReleaseRefreshLock(ctx, wallet)
	}

	start := time.Now()
	if r.metrics != nil {
		r.metrics.RefreshInFlight.Inc()
		defer r.metrics.RefreshInFlight.Dec()
	}

	in, err := r.store.ReplayInput(ctx, wallet)
	if err != nil {
		r.countJob("load_error")
		return fmt.Errorf("load replay input for %s: %w", wallet, err)
	}

	fingerprint := event.Fingerprint(in.Events)
	if r.cache != nil {
		if _, hit := r.cache.Get(ctx, wallet, pnl.SemanticsFullHistory, fingerprint); hit {
			r.countJob("unchanged")
			return nil
		}
	}

	report, err := r.engine.FullHistory(ctx, in, time.Now().UTC())
	if err != nil {
		r.countJob("replay_error")
		return fmt.Errorf("refresh %s: %w", wallet, err)
	}

	if err := r.store.SaveReport(ctx, report); err != nil {
		r.countJob("save_error")
		return err
	}
	if r.cache != nil {
		if err := r.cache.Put(ctx, report); err != nil {
			log.Warn().Err(err).Msg("cache write failed")
		}
	}
	if r.publisher != nil {
		if err := r.publisher.PublishReport(ctx, report); err != nil {
			log.Warn().Err(err).Msg("report notice publish failed")
		}
	}

	r.countJob("ok")
	if r.metrics != nil {
		r.metrics.RefreshDuration.Observe(time.Since(start).Seconds())
	}
	log.Info().
		Str("total", report.Total.String()).
		Int("events", report.Diagnostics.EventsProcessed).
		Dur("took", time.Since(start)).
		Msg("wallet refreshed")
	return nil
}

// RefreshAll recomputes every stored wallet with the given parallelism.
// Failures are logged per wallet and do not stop the sweep; the first
// error is returned at the end.
func (r *Refresher) RefreshAll(ctx context.Context, parallelism int) error {
	if parallelism < 1 {
		parallelism = 1
	}

	wallets, err := r.store.Wallets(ctx)
	if err != nil {
		return fmt.Errorf("list wallets: %w", err)
	}

	jobs := make(chan string)
	errs := make(chan error, len(wallets))

	var wg sync.WaitGroup
	for i := 0; i < parallelism; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for wallet := range jobs {
				if err := r.RefreshWallet(ctx, wallet); err != nil {
					r.log.Error().Err(err).Str("wallet", wallet).Msg("refresh failed")
					errs <- err
				}
			}
		}()
	}

	for _, wallet := range wallets {
		select {
		case jobs <- wallet:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return ctx.Err()
		}
	}
	close(jobs)
	wg.Wait()
	close(errs)

	return <-errs
}

// RunPeriodic sweeps all wallets on the given interval until ctx ends.
func (r *Refresher) RunPeriodic(ctx context.Context, interval time.Duration, parallelism int) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.RefreshAll(ctx, parallelism); err != nil && ctx.Err() == nil {
				r.log.Error().Err(err).Msg("periodic refresh sweep had failures")
			}
		}
	}
}

func (r *Refresher) countJob(outcome string) {
	if r.metrics != nil {
		r.metrics.RefreshJobs.WithLabelValues(outcome).Inc()
	}
}
