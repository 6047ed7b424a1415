// Package pnl turns wallet event histories into PnL reports. The engine
// owns the three query semantics (full history, snapshot-difference
// window, in-window realized) and keeps them separate: each answers a
// different question and none can substitute for another.
package pnl

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rawborkchop/polymarket-wallet-analysis/internal/event"
	"github.com/rawborkchop/polymarket-wallet-analysis/internal/observability"
	"github.com/rawborkchop/polymarket-wallet-analysis/internal/position"
	"github.com/rawborkchop/polymarket-wallet-analysis/internal/resolve"
)

// Semantics names the query flavor a report was produced under. Reports
// always carry it so a consumer cannot mistake a windowed figure for a
// lifetime one.
type Semantics string

const (
	SemanticsFullHistory    Semantics = "full_history"
	SemanticsWindowSnapshot Semantics = "window_snapshot"
	SemanticsWindowRealized Semantics = "window_realized"
)

// PriceSource supplies per-asset mark prices. PriceAt answers "what did
// this token trade at, at or before the given instant"; ok=false means
// no observation exists and the caller marks the position at cost.
type PriceSource interface {
	PriceAt(ctx context.Context, assetID string, at time.Time) (decimal.Decimal, bool, error)
}

// ReplayInput bundles everything one wallet replay needs: the raw event
// history plus the store-sourced identity seed and market resolutions
// the resolver folds in.
type ReplayInput struct {
	Wallet string
	Events []event.Event

	// MarketAssets is marketID -> outcome -> assetID, from the market
	// metadata store. Event-sourced identity wins over this seed.
	MarketAssets map[string]map[string]string

	// Resolutions is marketID -> winning outcome for resolved markets.
	Resolutions map[string]string
}

// PositionReport is one open or closed position row in a report, with
// the mark applied.
type PositionReport struct {
	MarketID    string          `json:"market_id"`
	Outcome     string          `json:"outcome"`
	AssetID     string          `json:"asset_id,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	AverageCost decimal.Decimal `json:"average_cost"`
	CostBasis   decimal.Decimal `json:"cost_basis"`
	MarkPrice   decimal.Decimal `json:"mark_price"`
	Priced      bool            `json:"priced"`
	Unrealized  decimal.Decimal `json:"unrealized"`
	Realized    decimal.Decimal `json:"realized"`
}

// Report is the engine's answer to one query. Realized comes from the
// replay ledger, Unrealized from marking open positions, and Total is
// their sum — except under window-realized semantics, where Unrealized
// is definitionally zero.
type Report struct {
	Wallet      string    `json:"wallet"`
	Semantics   Semantics `json:"semantics"`
	GeneratedAt time.Time `json:"generated_at"`

	WindowStart *time.Time `json:"window_start,omitempty"`
	WindowEnd   *time.Time `json:"window_end,omitempty"`

	Realized   decimal.Decimal `json:"realized"`
	Unrealized decimal.Decimal `json:"unrealized"`
	Total      decimal.Decimal `json:"total"`

	Positions []PositionReport  `json:"positions"`
	Markets   []MarketAggregate `json:"markets"`
	Daily     []DailyPoint      `json:"daily"`

	CashFlow CashFlowTotals `json:"cash_flow"`

	Diagnostics position.Diagnostics `json:"diagnostics"`

	// Fingerprint identifies the exact event set this report was
	// computed from; cache entries are valid only while it matches.
	Fingerprint string `json:"fingerprint"`

	// UnpricedPositions counts open positions marked at cost because
	// no price observation existed.
	UnpricedPositions int `json:"unpriced_positions"`
}

// Engine runs replays and assembles reports. It is stateless across
// calls and safe for concurrent use: every replay gets its own tracker,
// so wallet-level parallelism is just calling the engine from multiple
// goroutines.
type Engine struct {
	prices  PriceSource
	budget  position.Budget
	metrics *observability.Metrics
	log     zerolog.Logger
}

// NewEngine creates an engine. metrics may be nil for library use.
func NewEngine(prices PriceSource, budget position.Budget, metrics *observability.Metrics, log zerolog.Logger) *Engine {
	return &Engine{
		prices:  prices,
		budget:  budget,
		metrics: metrics,
		log:     log,
	}
}

// FullHistory replays the wallet's entire history and marks the final
// open positions at asOf. This is the "lifetime PnL" figure.
func (e *Engine) FullHistory(ctx context.Context, in ReplayInput, asOf time.Time) (_ *Report, err error) {
	defer e.observeQuery(SemanticsFullHistory, time.Now(), &err)

	ordered, err := event.Prepare(in.Events)
	if err != nil {
		return nil, fmt.Errorf("prepare events for %s: %w", in.Wallet, err)
	}

	result, err := e.replay(ctx, in, ordered)
	if err != nil {
		return nil, err
	}

	rows, unrealized, unpriced, err := e.markToMarket(ctx, result, asOf)
	if err != nil {
		return nil, fmt.Errorf("mark to market for %s: %w", in.Wallet, err)
	}

	realized := result.TotalRealized()
	report := &Report{
		Wallet:            in.Wallet,
		Semantics:         SemanticsFullHistory,
		GeneratedAt:       asOf,
		Realized:          realized,
		Unrealized:        unrealized,
		Total:             realized.Add(unrealized),
		Positions:         rows,
		Markets:           AggregateByMarket(result.Ledger),
		Daily:             AggregateDaily(result.Ledger),
		CashFlow:          CashFlow(ordered),
		Diagnostics:       result.Diagnostics,
		Fingerprint:       event.Fingerprint(ordered),
		UnpricedPositions: unpriced,
	}
	return report, nil
}

// WindowSnapshot answers "how much did this wallet's total PnL change
// between start and end": two bounded replays, each marked at its own
// boundary with historical prices, and the report is the difference of
// the two totals. Price movement on positions opened before the window
// is included — that is the point of this semantics.
func (e *Engine) WindowSnapshot(ctx context.Context, in ReplayInput, start, end time.Time) (_ *Report, err error) {
	defer e.observeQuery(SemanticsWindowSnapshot, time.Now(), &err)

	if !start.Before(end) {
		return nil, fmt.Errorf("window start %s is not before end %s", start, end)
	}

	ordered, err := event.Prepare(in.Events)
	if err != nil {
		return nil, fmt.Errorf("prepare events for %s: %w", in.Wallet, err)
	}

	startRealized, startUnrealized, startUnpriced, _, err := e.snapshotAt(ctx, in, ordered, start)
	if err != nil {
		return nil, fmt.Errorf("snapshot at window start for %s: %w", in.Wallet, err)
	}
	endRealized, endUnrealized, _, endResult, err := e.snapshotAt(ctx, in, ordered, end)
	if err != nil {
		return nil, fmt.Errorf("snapshot at window end for %s: %w", in.Wallet, err)
	}

	realized := endRealized.Sub(startRealized)
	unrealized := endUnrealized.Sub(startUnrealized)

	rows, _, unpriced, err := e.markToMarket(ctx, endResult, end)
	if err != nil {
		return nil, fmt.Errorf("mark to market for %s: %w", in.Wallet, err)
	}
	// A baseline marked at cost blinds the difference just as much as an
	// endpoint marked at cost, so the report carries the worse of the two.
	if startUnpriced > unpriced {
		unpriced = startUnpriced
	}

	report := &Report{
		Wallet:            in.Wallet,
		Semantics:         SemanticsWindowSnapshot,
		GeneratedAt:       time.Now().UTC(),
		WindowStart:       &start,
		WindowEnd:         &end,
		Realized:          realized,
		Unrealized:        unrealized,
		Total:             realized.Add(unrealized),
		Positions:         rows,
		Markets:           AggregateByMarket(filterLedger(endResult.Ledger, start, end)),
		Daily:             AggregateDaily(filterLedger(endResult.Ledger, start, end)),
		CashFlow:          CashFlowWindow(ordered, start, end),
		Diagnostics:       endResult.Diagnostics,
		Fingerprint:       event.Fingerprint(ordered),
		UnpricedPositions: unpriced,
	}
	return report, nil
}

// WindowRealized answers "how much PnL did this wallet lock in between
// start and end": one full replay, then the ledger filtered to entries
// inside the window. Open-position price movement is excluded by
// definition. Always positive for a wallet that only closed winners in
// the window, even if its open book collapsed.
func (e *Engine) WindowRealized(ctx context.Context, in ReplayInput, start, end time.Time) (_ *Report, err error) {
	defer e.observeQuery(SemanticsWindowRealized, time.Now(), &err)

	if !start.Before(end) {
		return nil, fmt.Errorf("window start %s is not before end %s", start, end)
	}

	ordered, err := event.Prepare(in.Events)
	if err != nil {
		return nil, fmt.Errorf("prepare events for %s: %w", in.Wallet, err)
	}

	result, err := e.replay(ctx, in, ordered)
	if err != nil {
		return nil, err
	}

	windowLedger := filterLedger(result.Ledger, start, end)
	realized := decimal.Zero
	for i := range windowLedger {
		realized = realized.Add(windowLedger[i].Amount)
	}

	report := &Report{
		Wallet:      in.Wallet,
		Semantics:   SemanticsWindowRealized,
		GeneratedAt: time.Now().UTC(),
		WindowStart: &start,
		WindowEnd:   &end,
		Realized:    realized,
		Unrealized:  decimal.Zero,
		Total:       realized,
		Markets:     AggregateByMarket(windowLedger),
		Daily:       AggregateDaily(windowLedger),
		CashFlow:    CashFlowWindow(ordered, start, end),
		Diagnostics: result.Diagnostics,
		Fingerprint: event.Fingerprint(ordered),
	}
	return report, nil
}

// Diagnostics replays the wallet and returns only the integrity report.
func (e *Engine) Diagnostics(ctx context.Context, in ReplayInput) (*position.Diagnostics, error) {
	ordered, err := event.Prepare(in.Events)
	if err != nil {
		return nil, fmt.Errorf("prepare events for %s: %w", in.Wallet, err)
	}
	result, err := e.replay(ctx, in, ordered)
	if err != nil {
		return nil, err
	}
	diags := result.Diagnostics
	return &diags, nil
}

// replay builds a per-replay resolver over the full ordered history and
// runs one tracker over it. The resolver sees all events — identity
// observed late in the history still attributes early events correctly.
func (e *Engine) replay(ctx context.Context, in ReplayInput, ordered []event.Event) (*position.Result, error) {
	start := time.Now()

	resolver := resolve.New(ordered, in.MarketAssets, in.Resolutions)
	tracker := position.NewTracker(resolver, e.budget)

	result, err := tracker.Replay(ctx, ordered)
	if err != nil {
		return nil, fmt.Errorf("replay wallet %s: %w", in.Wallet, err)
	}

	e.observeReplay(ordered, result, time.Since(start))

	if len(result.Diagnostics.UnresolvedEvents) > 0 || result.Diagnostics.Partial {
		e.log.Warn().
			Str("wallet", in.Wallet).
			Int("unresolved", len(result.Diagnostics.UnresolvedEvents)).
			Int("oversold", len(result.Diagnostics.OversoldPositions)).
			Bool("partial", result.Diagnostics.Partial).
			Msg("replay completed with integrity findings")
	}
	return result, nil
}

// snapshotAt replays the prefix of history at or before the boundary and
// marks its open positions with prices as of the boundary.
func (e *Engine) snapshotAt(ctx context.Context, in ReplayInput, ordered []event.Event, boundary time.Time) (realized, unrealized decimal.Decimal, unpriced int, result *position.Result, err error) {
	cut := len(ordered)
	for i := range ordered {
		if ordered[i].Timestamp.After(boundary) {
			cut = i
			break
		}
	}

	// The resolver still sees the full history: a boundary must not
	// degrade attribution of events inside the prefix.
	resolver := resolve.New(ordered, in.MarketAssets, in.Resolutions)
	tracker := position.NewTracker(resolver, e.budget)

	result, err = tracker.Replay(ctx, ordered[:cut])
	if err != nil {
		return decimal.Zero, decimal.Zero, 0, nil, err
	}

	_, unrealized, unpriced, err = e.markToMarket(ctx, result, boundary)
	if err != nil {
		return decimal.Zero, decimal.Zero, 0, nil, err
	}
	return result.TotalRealized(), unrealized, unpriced, result, nil
}

// markToMarket values every open position at asOf. Positions with no
// price observation are marked at cost (zero unrealized) and counted.
func (e *Engine) markToMarket(ctx context.Context, result *position.Result, asOf time.Time) ([]PositionReport, decimal.Decimal, int, error) {
	snapshot := result.Snapshot()
	rows := make([]PositionReport, 0, len(snapshot))
	unrealized := decimal.Zero
	unpriced := 0

	for _, pos := range snapshot {
		row := PositionReport{
			MarketID:    pos.MarketID,
			Outcome:     pos.Outcome,
			AssetID:     pos.AssetID,
			Quantity:    pos.Quantity,
			AverageCost: pos.AverageCost,
			CostBasis:   pos.CostBasis(),
			Realized:    pos.RealizedPnl,
			Unrealized:  decimal.Zero,
		}

		if pos.Open() && pos.AssetID != "" && e.prices != nil {
			price, ok, err := e.prices.PriceAt(ctx, pos.AssetID, asOf)
			if err != nil {
				return nil, decimal.Zero, 0, fmt.Errorf("price for asset %s: %w", pos.AssetID, err)
			}
			if ok {
				row.MarkPrice = price
				row.Priced = true
				row.Unrealized = price.Sub(pos.AverageCost).Mul(pos.Quantity)
				unrealized = unrealized.Add(row.Unrealized)
			}
		}
		if pos.Open() && !row.Priced {
			row.MarkPrice = pos.AverageCost
			unpriced++
		}

		rows = append(rows, row)
	}
	return rows, unrealized, unpriced, nil
}

func (e *Engine) observeQuery(sem Semantics, start time.Time, errp *error) {
	if e.metrics == nil {
		return
	}
	status := "ok"
	if *errp != nil {
		status = "error"
	}
	e.metrics.QueryRequests.WithLabelValues(string(sem), status).Inc()
	if *errp == nil {
		e.metrics.QueryDuration.WithLabelValues(string(sem)).Observe(time.Since(start).Seconds())
	}
}

func (e *Engine) observeReplay(ordered []event.Event, result *position.Result, took time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.ReplayDuration.Observe(took.Seconds())
	e.metrics.ReplayEventCount.Observe(float64(result.Diagnostics.EventsProcessed))
	for i := 0; i < result.Diagnostics.EventsProcessed && i < len(ordered); i++ {
		e.metrics.ReplayEventsApplied.WithLabelValues(ordered[i].Kind.String()).Inc()
	}
	if result.Diagnostics.Partial {
		e.metrics.ReplayPartial.Inc()
	}
	e.metrics.ReplayUnresolved.Add(float64(len(result.Diagnostics.UnresolvedEvents)))
	e.metrics.ReplayOversold.Add(float64(len(result.Diagnostics.OversoldPositions)))
	e.metrics.ReplayOrphaned.Add(float64(len(result.Diagnostics.OrphanedConversions)))
}

// filterLedger returns the entries with start <= timestamp <= end.
func filterLedger(ledger []position.RealizedPnlEvent, start, end time.Time) []position.RealizedPnlEvent {
	var out []position.RealizedPnlEvent
	for i := range ledger {
		ts := ledger[i].Timestamp
		if ts.Before(start) || ts.After(end) {
			continue
		}
		out = append(out, ledger[i])
	}
	return out
}
