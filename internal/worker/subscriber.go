package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/rawborkchop/polymarket-wallet-analysis/internal/cache"
	"github.com/rawborkchop/polymarket-wallet-analysis/internal/event"
	"github.com/rawborkchop/polymarket-wallet-analysis/internal/store"
)

// IngestStore is the slice of the store the subscriber writes to.
type IngestStore interface {
	InsertEvents(ctx context.Context, events []event.Event) error
	InsertPricePoints(ctx context.Context, points []store.PricePoint) error
	UpsertResolution(ctx context.Context, marketID, winningOutcome string, resolvedAt time.Time) error
}

// Subscriber consumes the upstream feeds and keeps the store current.
// Durable consumers with explicit ACK distribute messages across
// instances; a parse failure is permanent and is ACKed away after
// logging, while a store failure is NAKed for redelivery.
type Subscriber struct {
	js        jetstream.JetStream
	store     IngestStore
	cache     *cache.ResultCache // optional
	refresher *Refresher         // optional, drives pnl.refresh.>
	log       zerolog.Logger

	consumers []jetstream.ConsumeContext
}

func NewSubscriber(js jetstream.JetStream, st IngestStore, c *cache.ResultCache, r *Refresher, log zerolog.Logger) *Subscriber {
	return &Subscriber{
		js:        js,
		store:     st,
		cache:     c,
		refresher: r,
		log:       log,
	}
}

// Subscribe creates JetStream consumers for all feeds.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (s *Subscriber) Subscribe(ctx context.Context) error {
	feeds := []struct {
		stream   string
		subject  string
		consumer string
		handler  func(ctx context.Context, data []byte) (permanent bool, err error)
	}{
		{StreamActivity, SubjectActivity, "pnl-activity", s.handleActivity},
		{StreamPrices, SubjectPrices, "pnl-prices", s.handlePrice},
		{StreamMarkets, SubjectResolutions, "pnl-resolutions", s.handleResolution},
		{StreamRefresh, SubjectRefresh, "pnl-refresh", s.handleRefresh},
	}

	for _, feed := range feeds {
		consumer, err := s.js.CreateOrUpdateConsumer(ctx, feed.stream, jetstream.ConsumerConfig{
			Durable:       feed.consumer,
			FilterSubject: feed.subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", feed.consumer, err)
		}

		handler := feed.handler
		subject := feed.subject
		cc, err := consumer.Consume(func(msg jetstream.Msg) {
			permanent, err := handler(ctx, msg.Data())
			if err != nil {
				s.log.Error().Err(err).Str("subject", msg.Subject()).Bool("permanent", permanent).
					Msg("feed message failed")
				if permanent {
					msg.Ack()
				} else {
					msg.Nak()
				}
				return
			}
			msg.Ack()
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", feed.consumer, err)
		}

		s.consumers = append(s.consumers, cc)
		s.log.Info().Str("subject", subject).Str("consumer", feed.consumer).Msg("subscribed")
	}

	return nil
}

// Stop gracefully stops all consumers.
func (s *Subscriber) Stop() {
	for _, cc := range s.consumers {
		cc.Stop()
	}
	s.log.Info().Msg("feed consumers stopped")
}

func (s *Subscriber) handleActivity(ctx context.Context, data []byte) (bool, error) {
	e, err := parseActivity(data)
	if err != nil {
		return true, err
	}
	if err := s.store.InsertEvents(ctx, []event.Event{e}); err != nil {
		return false, err
	}
	// New activity changes the wallet's fingerprint; stale cached
	// reports must not be served in the meantime.
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, e.Wallet); err != nil {
			s.log.Warn().Err(err).Str("wallet", e.Wallet).Msg("cache invalidation failed")
		}
	}
	return false, nil
}

func (s *Subscriber) handlePrice(ctx context.Context, data []byte) (bool, error) {
	point, err := parsePricePoint(data)
	if err != nil {
		return true, err
	}
	if err := s.store.InsertPricePoints(ctx, []store.PricePoint{point}); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Subscriber) handleResolution(ctx context.Context, data []byte) (bool, error) {
	res, err := parseResolution(data)
	if err != nil {
		return true, err
	}
	resolvedAt := time.UnixMicro(res.ResolvedAtUs).UTC()
	if err := s.store.UpsertResolution(ctx, res.MarketID, res.WinningOutcome, resolvedAt); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Subscriber) handleRefresh(ctx context.Context, data []byte) (bool, error) {
	wallet, err := parseRefresh(data)
	if err != nil {
		return true, err
	}
	if s.refresher == nil {
		return true, fmt.Errorf("refresh requested for %s but no refresher configured", wallet)
	}
	if err := s.refresher.RefreshWallet(ctx, wallet); err != nil {
		return false, err
	}
	return false, nil
}
