// Package resolve attributes events to positions. The upstream activity
// feed routinely omits asset and outcome identity on REDEEM and
// CONVERSION records; attributing those events wrongly, or dropping them
// silently, shows up as unexplained PnL drift. Resolution is layered:
// declared identity first, then inference from the market-asset map,
// then inference from the single open position in the market.
package resolve

import (
	"sort"

	"github.com/rawborkchop/polymarket-wallet-analysis/internal/event"
)

// Stage records which fallback produced a resolution, for diagnostics.
type Stage int32

const (
	StageDeclared Stage = iota + 1
	StageMarketMap
	StageOpenPosition
)

func (s Stage) String() string {
	switch s {
	case StageDeclared:
		return "declared"
	case StageMarketMap:
		return "market_map"
	case StageOpenPosition:
		return "open_position"
	default:
		return "unresolved"
	}
}

// Resolution is a fully attributed position key. MarketID and Outcome are
// always set on success; AssetID may remain empty when no token id was
// ever observed for the outcome.
type Resolution struct {
	MarketID string
	Outcome  string
	AssetID  string
	Stage    Stage
}

// Candidate is an open position the tracker exposes for stage-3 inference.
type Candidate struct {
	Outcome string
	AssetID string
}

// PositionView is the tracker-side interface the resolver consults for
// open-position inference. Only positions with non-zero quantity count.
type PositionView interface {
	OpenCandidates(marketID string) []Candidate
}

// OutcomeAsset pairs an outcome label with its token id.
type OutcomeAsset struct {
	Outcome string
	AssetID string
}

// Resolver holds the per-replay lookup state. It is built once from the
// full event list plus collaborator-supplied data and is read-only for
// the duration of the replay; it is never persisted as authoritative.
type Resolver struct {
	// marketID -> outcome -> assetID
	byMarket map[string]map[string]string
	// assetID -> (marketID, outcome)
	byAsset map[string]OutcomeRef
	// marketID -> winning outcome, for resolved markets only
	resolutions map[string]string
}

// OutcomeRef locates an asset inside a market.
type OutcomeRef struct {
	MarketID string
	Outcome  string
}

// New builds a resolver from every event that carries declared identity,
// then merges in the store-sourced market-asset map (seed) and market
// resolutions. Event-sourced entries win over seeded ones.
func New(events []event.Event, seed map[string]map[string]string, resolutions map[string]string) *Resolver {
	r := &Resolver{
		byMarket:    make(map[string]map[string]string),
		byAsset:     make(map[string]OutcomeRef),
		resolutions: resolutions,
	}
	if r.resolutions == nil {
		r.resolutions = make(map[string]string)
	}

	for i := range events {
		e := &events[i]
		if e.MarketID == "" || e.Outcome == "" || e.AssetID == "" {
			continue
		}
		r.add(e.MarketID, e.Outcome, e.AssetID, false)
	}

	for marketID, outcomes := range seed {
		for outcome, assetID := range outcomes {
			r.add(marketID, outcome, assetID, true)
		}
	}

	return r
}

func (r *Resolver) add(marketID, outcome, assetID string, keepExisting bool) {
	m := r.byMarket[marketID]
	if m == nil {
		m = make(map[string]string)
		r.byMarket[marketID] = m
	}
	if _, exists := m[outcome]; exists && keepExisting {
		return
	}
	m[outcome] = assetID
	if _, exists := r.byAsset[assetID]; !exists || !keepExisting {
		r.byAsset[assetID] = OutcomeRef{MarketID: marketID, Outcome: outcome}
	}
}

// Outcomes returns the known (outcome, asset) pairs for a market, sorted
// by outcome label for deterministic iteration.
func (r *Resolver) Outcomes(marketID string) []OutcomeAsset {
	m := r.byMarket[marketID]
	if len(m) == 0 {
		return nil
	}
	out := make([]OutcomeAsset, 0, len(m))
	for outcome, assetID := range m {
		out = append(out, OutcomeAsset{Outcome: outcome, AssetID: assetID})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Outcome < out[j].Outcome })
	return out
}

// WinningOutcome returns the resolved winner for a market, if known.
func (r *Resolver) WinningOutcome(marketID string) (string, bool) {
	w, ok := r.resolutions[marketID]
	return w, ok
}

// Resolve attributes an event to a position key. The three stages run in
// order and the first success wins. On failure the caller must record the
// event as unresolved — skipping it without a diagnostic is not an option.
func (r *Resolver) Resolve(e *event.Event, view PositionView) (Resolution, bool) {
	// Stage 1: declared identity.
	if res, ok := r.resolveDeclared(e); ok {
		return res, true
	}

	// Stage 2: market-asset-map inference. For REDEEMs on resolved
	// markets the cash amount tells the sides apart: winners receive
	// USDC, losers receive nothing.
	if res, ok := r.resolveFromMarketMap(e); ok {
		return res, true
	}

	// Stage 3: open-position inference. Unambiguous only when exactly
	// one position in the market is open.
	if e.MarketID != "" && view != nil {
		candidates := view.OpenCandidates(e.MarketID)
		if len(candidates) == 1 {
			return Resolution{
				MarketID: e.MarketID,
				Outcome:  candidates[0].Outcome,
				AssetID:  candidates[0].AssetID,
				Stage:    StageOpenPosition,
			}, true
		}
	}

	return Resolution{}, false
}

func (r *Resolver) resolveDeclared(e *event.Event) (Resolution, bool) {
	if e.AssetID != "" {
		ref, known := r.byAsset[e.AssetID]

		marketID := e.MarketID
		outcome := e.Outcome
		if marketID == "" && known {
			marketID = ref.MarketID
		}
		if outcome == "" && known {
			outcome = ref.Outcome
		}
		if marketID != "" && outcome != "" {
			return Resolution{
				MarketID: marketID,
				Outcome:  outcome,
				AssetID:  e.AssetID,
				Stage:    StageDeclared,
			}, true
		}
		return Resolution{}, false
	}

	if e.MarketID != "" && e.Outcome != "" {
		assetID := ""
		if m := r.byMarket[e.MarketID]; m != nil {
			assetID = m[e.Outcome]
		}
		return Resolution{
			MarketID: e.MarketID,
			Outcome:  e.Outcome,
			AssetID:  assetID,
			Stage:    StageDeclared,
		}, true
	}

	return Resolution{}, false
}

func (r *Resolver) resolveFromMarketMap(e *event.Event) (Resolution, bool) {
	if e.MarketID == "" || e.Kind != event.KindRedeem {
		return Resolution{}, false
	}

	winner, resolved := r.resolutions[e.MarketID]
	outcomes := r.byMarket[e.MarketID]
	if !resolved || len(outcomes) == 0 {
		return Resolution{}, false
	}

	var outcome string
	if e.USDCAmount.IsPositive() {
		outcome = winner
	} else {
		// Loser side: the market's other outcome. Ambiguous in
		// multi-outcome markets, so only infer when there is
		// exactly one non-winning outcome.
		var others []string
		for o := range outcomes {
			if o != winner {
				others = append(others, o)
			}
		}
		if len(others) != 1 {
			return Resolution{}, false
		}
		outcome = others[0]
	}

	assetID, ok := outcomes[outcome]
	if !ok {
		return Resolution{}, false
	}
	return Resolution{
		MarketID: e.MarketID,
		Outcome:  outcome,
		AssetID:  assetID,
		Stage:    StageMarketMap,
	}, true
}
