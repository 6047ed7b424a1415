package position

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rawborkchop/polymarket-wallet-analysis/internal/event"
	"github.com/rawborkchop/polymarket-wallet-analysis/internal/resolve"
)

var two = decimal.NewFromInt(2)

// Budget bounds a replay. Zero values disable the corresponding limit.
// A replay that exhausts its budget terminates gracefully and reports a
// partial result via Diagnostics; it does not hang or return garbage.
type Budget struct {
	MaxEvents   int
	MaxDuration time.Duration
}

// Result is the immutable outcome of one replay: the final position
// snapshot, the realized-PnL ledger in event order, and the integrity
// diagnostics. It is returned by value semantics — callers never share
// mutable tracker state.
type Result struct {
	Positions   map[Key]*Position
	Ledger      []RealizedPnlEvent
	Diagnostics Diagnostics
}

// Snapshot returns the positions as a slice sorted by (market, outcome)
// for deterministic iteration and reporting.
func (r *Result) Snapshot() []*Position {
	out := make([]*Position, 0, len(r.Positions))
	for _, p := range r.Positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MarketID != out[j].MarketID {
			return out[i].MarketID < out[j].MarketID
		}
		return out[i].Outcome < out[j].Outcome
	})
	return out
}

// TotalRealized sums the full ledger.
func (r *Result) TotalRealized() decimal.Decimal {
	total := decimal.Zero
	for i := range r.Ledger {
		total = total.Add(r.Ledger[i].Amount)
	}
	return total
}

// Tracker is the single-threaded replay state machine. It owns its
// position map exclusively for the duration of one replay; there is no
// internal concurrency and no locking. Parallelism across wallets is
// achieved by giving each wallet its own Tracker.
type Tracker struct {
	resolver  *resolve.Resolver
	budget    Budget
	positions map[Key]*Position
	ledger    []RealizedPnlEvent
	diags     Diagnostics
	now       func() time.Time
}

// NewTracker creates a tracker bound to a per-replay resolver.
func NewTracker(resolver *resolve.Resolver, budget Budget) *Tracker {
	return &Tracker{
		resolver:  resolver,
		budget:    budget,
		positions: make(map[Key]*Position),
		now:       time.Now,
	}
}

// OpenCandidates implements resolve.PositionView: the open positions in
// a market, sorted by outcome for deterministic inference.
func (t *Tracker) OpenCandidates(marketID string) []resolve.Candidate {
	var out []resolve.Candidate
	for key, pos := range t.positions {
		if key.MarketID == marketID && pos.Open() {
			out = append(out, resolve.Candidate{Outcome: key.Outcome, AssetID: pos.AssetID})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Outcome < out[j].Outcome })
	return out
}

// Replay applies the prepared (validated, deterministically ordered)
// event sequence and returns the result. A context cancellation aborts
// the replay with an error and the partial state must be discarded; a
// budget exhaustion returns the partial result flagged in diagnostics.
func (t *Tracker) Replay(ctx context.Context, events []event.Event) (*Result, error) {
	start := t.now()

	for i := range events {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("replay cancelled after %d events: %w", i, err)
			}
			if t.budget.MaxDuration > 0 && t.now().Sub(start) > t.budget.MaxDuration {
				t.diags.Partial = true
				t.diags.PartialReason = fmt.Sprintf("wall-clock budget %s exceeded at event %d of %d",
					t.budget.MaxDuration, i, len(events))
				break
			}
		}
		if t.budget.MaxEvents > 0 && i >= t.budget.MaxEvents {
			t.diags.Partial = true
			t.diags.PartialReason = fmt.Sprintf("event budget %d exceeded (%d events in history)",
				t.budget.MaxEvents, len(events))
			break
		}

		t.apply(&events[i])
		t.diags.EventsProcessed++
	}

	t.finalizeDiagnostics()

	return &Result{
		Positions:   t.positions,
		Ledger:      t.ledger,
		Diagnostics: t.diags,
	}, nil
}

// apply dispatches one event. The switch is exhaustive over the closed
// Kind set; unknown kinds were rejected during validation.
func (t *Tracker) apply(e *event.Event) {
	switch e.Kind {
	case event.KindBuy:
		t.applyBuy(e)
	case event.KindSell:
		t.applySell(e)
	case event.KindSplit:
		t.applySplit(e)
	case event.KindMerge:
		t.applyMerge(e)
	case event.KindRedeem:
		t.applyRedeem(e)
	case event.KindConversion:
		t.applyConversion(e)
	case event.KindReward:
		t.applyReward(e)
	}
}

func (t *Tracker) position(res resolve.Resolution) *Position {
	key := Key{MarketID: res.MarketID, Outcome: res.Outcome}
	pos := t.positions[key]
	if pos == nil {
		pos = &Position{
			MarketID:     res.MarketID,
			Outcome:      res.Outcome,
			AssetID:      res.AssetID,
			Quantity:     decimal.Zero,
			AverageCost:  decimal.Zero,
			RealizedPnl:  decimal.Zero,
			TotalBought:  decimal.Zero,
			TotalSold:    decimal.Zero,
			TotalCost:    decimal.Zero,
			TotalRevenue: decimal.Zero,
		}
		t.positions[key] = pos
	}
	if pos.AssetID == "" && res.AssetID != "" {
		pos.AssetID = res.AssetID
	}
	return pos
}

// buy folds size shares at the given per-share price into the weighted
// average: new_avg = (avg*qty + price*size) / (qty+size).
func (t *Tracker) buy(pos *Position, size, price, cost decimal.Decimal) {
	if !size.IsPositive() {
		return
	}
	newQuantity := pos.Quantity.Add(size)
	oldCost := pos.AverageCost.Mul(pos.Quantity)
	pos.AverageCost = oldCost.Add(price.Mul(size)).Div(newQuantity)
	pos.Quantity = newQuantity
	pos.TotalBought = pos.TotalBought.Add(size)
	pos.TotalCost = pos.TotalCost.Add(cost)
}

// sell closes up to size shares at the given per-share price and emits
// a realized-PnL ledger entry. The realized quantity is capped at the
// tracked quantity: synthesizing PnL against shares the tracker never
// recorded owning manufactures profit from a stale or zero cost basis,
// so the excess is recorded as an oversold diagnostic instead.
func (t *Tracker) sell(e *event.Event, pos *Position, size, price, revenue decimal.Decimal) {
	if !size.IsPositive() {
		return
	}

	closed := size
	if size.GreaterThan(pos.Quantity) {
		t.diags.OversoldPositions = append(t.diags.OversoldPositions, OversoldRecord{
			Timestamp: e.Timestamp,
			Seq:       e.Seq,
			MarketID:  pos.MarketID,
			Outcome:   pos.Outcome,
			Kind:      e.Kind,
			Requested: size,
			Tracked:   pos.Quantity,
			Shortfall: size.Sub(pos.Quantity),
		})
		closed = pos.Quantity
	}

	pos.TotalSold = pos.TotalSold.Add(size)
	pos.TotalRevenue = pos.TotalRevenue.Add(revenue)

	if !closed.IsPositive() {
		return
	}

	realized := price.Sub(pos.AverageCost).Mul(closed)
	pos.RealizedPnl = pos.RealizedPnl.Add(realized)
	pos.Quantity = pos.Quantity.Sub(closed)
	// AverageCost is unchanged by sells.

	t.ledger = append(t.ledger, RealizedPnlEvent{
		Timestamp:  e.Timestamp,
		Seq:        e.Seq,
		MarketID:   pos.MarketID,
		Outcome:    pos.Outcome,
		AssetID:    pos.AssetID,
		Amount:     realized,
		SourceKind: e.Kind,
	})
}

func (t *Tracker) applyBuy(e *event.Event) {
	res, ok := t.resolver.Resolve(e, t)
	if !ok {
		t.unresolved(e, "no position key for buy")
		return
	}
	pos := t.position(res)
	t.buy(pos, e.Size, e.Price, e.TotalValue())
}

func (t *Tracker) applySell(e *event.Event) {
	res, ok := t.resolver.Resolve(e, t)
	if !ok {
		t.unresolved(e, "no position key for sell")
		return
	}
	pos := t.position(res)
	t.sell(e, pos, e.Size, e.Price, e.TotalValue())
}

// applySplit converts cash collateral into a full set of complementary
// outcome shares: a simultaneous buy of every outcome at half the cash
// per share. The spend is an outflow, not realized PnL.
func (t *Tracker) applySplit(e *event.Event) {
	if e.MarketID == "" {
		t.unresolved(e, "split without market")
		return
	}
	if !e.Size.IsPositive() {
		return
	}

	legs := t.splitLegs(e.MarketID)
	legCost := e.USDCAmount.Div(two)
	legPrice := legCost.Div(e.Size)

	for _, leg := range legs {
		pos := t.position(resolve.Resolution{
			MarketID: e.MarketID,
			Outcome:  leg.Outcome,
			AssetID:  leg.AssetID,
		})
		t.buy(pos, e.Size, legPrice, legCost)
	}
}

// applyMerge is the inverse of a split: both outcome positions are sold
// at the per-leg share of the cash received. Realized PnL is whatever
// the merge returns above the combined cost basis.
func (t *Tracker) applyMerge(e *event.Event) {
	if e.MarketID == "" {
		t.unresolved(e, "merge without market")
		return
	}
	if !e.Size.IsPositive() {
		return
	}

	legs := t.splitLegs(e.MarketID)

	anyOpen := false
	for _, leg := range legs {
		if pos := t.positions[Key{MarketID: e.MarketID, Outcome: leg.Outcome}]; pos != nil && pos.Open() {
			anyOpen = true
			break
		}
	}
	if !anyOpen {
		// No cost basis to merge against: the split (or the buys)
		// never reached this replay. Attributing the full inflow as
		// profit would overstate PnL, so record and skip.
		t.unresolved(e, "merge with no open positions in market")
		return
	}

	legRevenue := e.USDCAmount.Div(two)
	legPrice := legRevenue.Div(e.Size)

	for _, leg := range legs {
		pos := t.position(resolve.Resolution{
			MarketID: e.MarketID,
			Outcome:  leg.Outcome,
			AssetID:  leg.AssetID,
		})
		t.sell(e, pos, e.Size, legPrice, legRevenue)
	}
}

// splitLegs returns the market's outcome pairs for split/merge handling.
// A single observed outcome keeps its identity and only the opposing leg
// is synthesized — discarding the observed label would park the split
// basis on a key that never reconciles with the real position. With no
// identity at all, placeholder labels keep the two synthetic positions
// apart; a later merge finds them again through the same placeholders.
func (t *Tracker) splitLegs(marketID string) []resolve.OutcomeAsset {
	legs := t.resolver.Outcomes(marketID)
	switch len(legs) {
	case 0:
		return []resolve.OutcomeAsset{{Outcome: "YES"}, {Outcome: "NO"}}
	case 1:
		return append(legs, resolve.OutcomeAsset{Outcome: complementLabel(legs[0].Outcome)})
	default:
		return legs
	}
}

// complementLabel names the opposing outcome of a binary market where
// only one side was ever observed, matching the observed label's casing.
func complementLabel(outcome string) string {
	complements := map[string]string{
		"YES": "NO", "NO": "YES",
		"Yes": "No", "No": "Yes",
		"yes": "no", "no": "yes",
		"UP": "DOWN", "DOWN": "UP",
		"Up": "Down", "Down": "Up",
	}
	if c, ok := complements[outcome]; ok {
		return c
	}
	return "NOT:" + outcome
}

// applyRedeem settles a resolved position: winners pay out their cash
// amount (~1 per share), losers pay nothing. The settlement price is
// derived from the cash actually received rather than assumed, which
// also absorbs markets that resolve to fractional payouts.
func (t *Tracker) applyRedeem(e *event.Event) {
	res, ok := t.resolver.Resolve(e, t)
	if !ok {
		t.unresolved(e, "no position key for redeem")
		return
	}
	if !e.Size.IsPositive() {
		return
	}
	price := e.USDCAmount.Div(e.Size)
	pos := t.position(res)
	t.sell(e, pos, e.Size, price, e.USDCAmount)
}

// applyConversion exchanges shares of one outcome for the complementary
// outcome at equal valuation: a paired sell of the source and buy of the
// destination. The cash effect is zero unless the event carries a cash
// amount, in which case the valuation follows the cash. A conversion is
// never a unilateral inflow.
func (t *Tracker) applyConversion(e *event.Event) {
	res, ok := t.resolver.Resolve(e, t)
	if !ok {
		t.unresolved(e, "no position key for conversion")
		return
	}
	if !e.Size.IsPositive() {
		return
	}

	src := t.position(res)

	valuation := src.AverageCost
	if e.USDCAmount.IsPositive() {
		valuation = e.USDCAmount.Div(e.Size)
	}

	t.sell(e, src, e.Size, valuation, e.USDCAmount)

	dest, ok := t.conversionDestination(e.MarketID, res.Outcome)
	if !ok {
		t.diags.OrphanedConversions = append(t.diags.OrphanedConversions, OrphanedConversion{
			Timestamp:  e.Timestamp,
			Seq:        e.Seq,
			MarketID:   e.MarketID,
			Outcome:    res.Outcome,
			Size:       e.Size,
			USDCAmount: e.USDCAmount,
		})
		return
	}

	destPos := t.position(resolve.Resolution{
		MarketID: e.MarketID,
		Outcome:  dest.Outcome,
		AssetID:  dest.AssetID,
	})
	t.buy(destPos, e.Size, valuation, valuation.Mul(e.Size))
}

// conversionDestination picks the complementary outcome. Unambiguous
// only when the market map knows exactly one other outcome.
func (t *Tracker) conversionDestination(marketID, sourceOutcome string) (resolve.OutcomeAsset, bool) {
	var others []resolve.OutcomeAsset
	for _, leg := range t.resolver.Outcomes(marketID) {
		if leg.Outcome != sourceOutcome {
			others = append(others, leg)
		}
	}
	if len(others) == 1 {
		return others[0], true
	}
	return resolve.OutcomeAsset{}, false
}

// applyReward books a pure cash inflow straight into realized PnL with
// no position effect.
func (t *Tracker) applyReward(e *event.Event) {
	if e.USDCAmount.IsZero() {
		return
	}
	t.ledger = append(t.ledger, RealizedPnlEvent{
		Timestamp:  e.Timestamp,
		Seq:        e.Seq,
		MarketID:   e.MarketID,
		Amount:     e.USDCAmount,
		SourceKind: event.KindReward,
	})
}

func (t *Tracker) unresolved(e *event.Event, reason string) {
	t.diags.UnresolvedEvents = append(t.diags.UnresolvedEvents, UnresolvedEvent{
		Timestamp:  e.Timestamp,
		Seq:        e.Seq,
		MarketID:   e.MarketID,
		Kind:       e.Kind,
		Size:       e.Size,
		USDCAmount: e.USDCAmount,
		Reason:     reason,
	})
}

func (t *Tracker) finalizeDiagnostics() {
	count := 0
	basis := decimal.Zero
	for _, pos := range t.positions {
		if pos.Open() {
			count++
			basis = basis.Add(pos.CostBasis())
		}
	}
	t.diags.OpenPositionCount = count
	t.diags.OpenPositionCostBasis = basis
}
