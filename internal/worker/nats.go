// Package worker keeps stored state and cached reports current. It
// consumes activity, price, and resolution feeds from NATS JetStream
// and recomputes wallet reports, with wallet-level parallelism — each
// refresh runs its own single-threaded replay.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/rawborkchop/polymarket-wallet-analysis/internal/pnl"
)

// Subject layout. One subject family per feed so consumers scale
// independently.
const (
	SubjectActivity    = "pnl.activity.>"
	SubjectPrices      = "pnl.prices.>"
	SubjectResolutions = "pnl.markets.resolved.>"
	SubjectRefresh     = "pnl.refresh.>"
	subjectReports     = "pnl.reports."

	StreamActivity = "PNL_ACTIVITY"
	StreamPrices   = "PNL_PRICES"
	StreamMarkets  = "PNL_MARKETS"
	StreamRefresh  = "PNL_REFRESH"
)

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, log zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}

// EnsureStreams creates the required JetStream streams if they don't exist.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      StreamActivity,
			Subjects:  []string{"pnl.activity.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    7 * 24 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      StreamPrices,
			Subjects:  []string{"pnl.prices.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    7 * 24 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      StreamMarkets,
			Subjects:  []string{"pnl.markets.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    7 * 24 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      StreamRefresh,
			Subjects:  []string{"pnl.refresh.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    24 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
	}
	return nil
}

// reportNotice is the summary broadcast after a refresh lands. Consumers
// wanting the full report read it from the store; the notice only says
// what changed.
type reportNotice struct {
	Wallet      string    `json:"wallet"`
	Semantics   string    `json:"semantics"`
	Realized    string    `json:"realized"`
	Unrealized  string    `json:"unrealized"`
	Total       string    `json:"total"`
	Fingerprint string    `json:"fingerprint"`
	GeneratedAt time.Time `json:"generated_at"`
}

// ReportPublisher broadcasts refresh results on pnl.reports.<wallet>.
// Notices are fire-and-forget over core NATS: a missed notice costs a
// subscriber one store read, nothing more.
type ReportPublisher struct {
	nc *nats.Conn
}

func NewReportPublisher(nc *nats.Conn) *ReportPublisher {
	return &ReportPublisher{nc: nc}
}

func (p *ReportPublisher) PublishReport(ctx context.Context, report *pnl.Report) error {
	data, err := json.Marshal(reportNotice{
		Wallet:      report.Wallet,
		Semantics:   string(report.Semantics),
		Realized:    report.Realized.String(),
		Unrealized:  report.Unrealized.String(),
		Total:       report.Total.String(),
		Fingerprint: report.Fingerprint,
		GeneratedAt: report.GeneratedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal report notice for %s: %w", report.Wallet, err)
	}
	if err := p.nc.Publish(subjectReports+report.Wallet, data); err != nil {
		return fmt.Errorf("publish report notice for %s: %w", report.Wallet, err)
	}
	return nil
}
