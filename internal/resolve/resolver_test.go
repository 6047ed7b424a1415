package resolve_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rawborkchop/polymarket-wallet-analysis/internal/event"
	"github.com/rawborkchop/polymarket-wallet-analysis/internal/resolve"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// staticView is a canned PositionView for stage-3 tests.
type staticView map[string][]resolve.Candidate

func (v staticView) OpenCandidates(marketID string) []resolve.Candidate {
	return v[marketID]
}

func identityEvents() []event.Event {
	return []event.Event{
		{Seq: 1, Timestamp: t0, Kind: event.KindBuy, MarketID: "m1", Outcome: "YES", AssetID: "a1"},
		{Seq: 2, Timestamp: t0, Kind: event.KindBuy, MarketID: "m1", Outcome: "NO", AssetID: "a2"},
	}
}

func TestResolveDeclaredByAsset(t *testing.T) {
	r := resolve.New(identityEvents(), nil, nil)

	// Asset only: market and outcome are backfilled from the map.
	e := &event.Event{Kind: event.KindSell, AssetID: "a2"}
	res, ok := r.Resolve(e, nil)
	if !ok {
		t.Fatal("declared asset not resolved")
	}
	if res.MarketID != "m1" || res.Outcome != "NO" {
		t.Errorf("got (%s, %s), want (m1, NO)", res.MarketID, res.Outcome)
	}
	if res.Stage != resolve.StageDeclared {
		t.Errorf("stage: got %s, want declared", res.Stage)
	}
}

func TestResolveDeclaredByMarketOutcome(t *testing.T) {
	r := resolve.New(identityEvents(), nil, nil)

	e := &event.Event{Kind: event.KindBuy, MarketID: "m1", Outcome: "YES"}
	res, ok := r.Resolve(e, nil)
	if !ok {
		t.Fatal("declared market+outcome not resolved")
	}
	if res.AssetID != "a1" {
		t.Errorf("asset backfill: got %s, want a1", res.AssetID)
	}
}

func TestResolveUnknownAssetFails(t *testing.T) {
	r := resolve.New(identityEvents(), nil, nil)

	e := &event.Event{Kind: event.KindSell, AssetID: "a-unknown"}
	if _, ok := r.Resolve(e, nil); ok {
		t.Error("unknown asset resolved")
	}
}

func TestSeedLosesToEventSourcedIdentity(t *testing.T) {
	seed := map[string]map[string]string{
		"m1": {"YES": "stale-asset"},
	}
	r := resolve.New(identityEvents(), seed, nil)

	e := &event.Event{Kind: event.KindBuy, MarketID: "m1", Outcome: "YES"}
	res, _ := r.Resolve(e, nil)
	if res.AssetID != "a1" {
		t.Errorf("event-sourced identity should win: got %s, want a1", res.AssetID)
	}
}

func TestSeedFillsUnobservedMarkets(t *testing.T) {
	seed := map[string]map[string]string{
		"m9": {"UP": "u1", "DOWN": "d1"},
	}
	r := resolve.New(identityEvents(), seed, nil)

	e := &event.Event{Kind: event.KindBuy, MarketID: "m9", Outcome: "DOWN"}
	res, ok := r.Resolve(e, nil)
	if !ok || res.AssetID != "d1" {
		t.Errorf("seeded market not resolved: ok=%v asset=%s", ok, res.AssetID)
	}
}

func TestRedeemWinnerInference(t *testing.T) {
	r := resolve.New(identityEvents(), nil, map[string]string{"m1": "YES"})

	e := &event.Event{
		Kind:       event.KindRedeem,
		MarketID:   "m1",
		USDCAmount: decimal.NewFromInt(100),
	}
	res, ok := r.Resolve(e, nil)
	if !ok {
		t.Fatal("paying redeem on resolved market not inferred")
	}
	if res.Outcome != "YES" || res.Stage != resolve.StageMarketMap {
		t.Errorf("got outcome=%s stage=%s, want YES market_map", res.Outcome, res.Stage)
	}
}

func TestRedeemLoserInference(t *testing.T) {
	r := resolve.New(identityEvents(), nil, map[string]string{"m1": "YES"})

	e := &event.Event{Kind: event.KindRedeem, MarketID: "m1"}
	res, ok := r.Resolve(e, nil)
	if !ok {
		t.Fatal("zero-cash redeem on binary resolved market not inferred")
	}
	if res.Outcome != "NO" {
		t.Errorf("loser outcome: got %s, want NO", res.Outcome)
	}
}

func TestRedeemLoserAmbiguousInMultiOutcomeMarket(t *testing.T) {
	events := append(identityEvents(),
		event.Event{Seq: 3, Timestamp: t0, Kind: event.KindBuy, MarketID: "m1", Outcome: "MAYBE", AssetID: "a3"},
	)
	r := resolve.New(events, nil, map[string]string{"m1": "YES"})

	// Two non-winning outcomes: the loser side cannot be inferred.
	e := &event.Event{Kind: event.KindRedeem, MarketID: "m1"}
	if _, ok := r.Resolve(e, nil); ok {
		t.Error("ambiguous loser redeem resolved")
	}
}

func TestRedeemInferenceRequiresResolution(t *testing.T) {
	r := resolve.New(identityEvents(), nil, nil)

	e := &event.Event{
		Kind:       event.KindRedeem,
		MarketID:   "m1",
		USDCAmount: decimal.NewFromInt(100),
	}
	if _, ok := r.Resolve(e, nil); ok {
		t.Error("redeem inferred without a market resolution")
	}
}

func TestOpenPositionInference(t *testing.T) {
	r := resolve.New(nil, nil, nil)
	view := staticView{
		"m1": {{Outcome: "YES", AssetID: "a1"}},
	}

	e := &event.Event{Kind: event.KindRedeem, MarketID: "m1"}
	res, ok := r.Resolve(e, view)
	if !ok {
		t.Fatal("single open position not inferred")
	}
	if res.Outcome != "YES" || res.Stage != resolve.StageOpenPosition {
		t.Errorf("got outcome=%s stage=%s, want YES open_position", res.Outcome, res.Stage)
	}
}

func TestOpenPositionInferenceAmbiguous(t *testing.T) {
	r := resolve.New(nil, nil, nil)
	view := staticView{
		"m1": {{Outcome: "YES", AssetID: "a1"}, {Outcome: "NO", AssetID: "a2"}},
	}

	e := &event.Event{Kind: event.KindRedeem, MarketID: "m1"}
	if _, ok := r.Resolve(e, view); ok {
		t.Error("two open positions resolved to one")
	}
}

func TestOutcomesSorted(t *testing.T) {
	events := []event.Event{
		{Seq: 1, Timestamp: t0, Kind: event.KindBuy, MarketID: "m1", Outcome: "NO", AssetID: "a2"},
		{Seq: 2, Timestamp: t0, Kind: event.KindBuy, MarketID: "m1", Outcome: "YES", AssetID: "a1"},
	}
	r := resolve.New(events, nil, nil)

	outcomes := r.Outcomes("m1")
	if len(outcomes) != 2 {
		t.Fatalf("outcomes: got %d, want 2", len(outcomes))
	}
	if outcomes[0].Outcome != "NO" || outcomes[1].Outcome != "YES" {
		t.Errorf("not sorted: got %s, %s", outcomes[0].Outcome, outcomes[1].Outcome)
	}
}
