package position

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rawborkchop/polymarket-wallet-analysis/internal/event"
)

// UnresolvedEvent records an event that passed validation but could not
// be attributed to any position. It carries enough detail for operators
// to quantify the value the replay could not account for.
type UnresolvedEvent struct {
	Timestamp  time.Time       `json:"timestamp"`
	Seq        int64           `json:"seq"`
	MarketID   string          `json:"market_id"`
	Kind       event.Kind      `json:"kind"`
	Size       decimal.Decimal `json:"size"`
	USDCAmount decimal.Decimal `json:"usdc_amount"`
	Reason     string          `json:"reason"`
}

// OversoldRecord captures a SELL or REDEEM whose size exceeded the
// tracked quantity. The realized-PnL computation was capped at the
// tracked quantity; the shortfall indicates missing upstream data.
type OversoldRecord struct {
	Timestamp time.Time       `json:"timestamp"`
	Seq       int64           `json:"seq"`
	MarketID  string          `json:"market_id"`
	Outcome   string          `json:"outcome"`
	Kind      event.Kind      `json:"kind"`
	Requested decimal.Decimal `json:"requested"`
	Tracked   decimal.Decimal `json:"tracked"`
	Shortfall decimal.Decimal `json:"shortfall"`
}

// OrphanedConversion records a CONVERSION whose destination outcome
// could not be determined. The source leg was applied; the destination
// buy was not, so the market's complementary position is understated.
type OrphanedConversion struct {
	Timestamp  time.Time       `json:"timestamp"`
	Seq        int64           `json:"seq"`
	MarketID   string          `json:"market_id"`
	Outcome    string          `json:"source_outcome"`
	Size       decimal.Decimal `json:"size"`
	USDCAmount decimal.Decimal `json:"usdc_amount"`
}

// Diagnostics is the integrity report returned alongside every replay
// result. None of these conditions abort a replay; all of them degrade
// the trustworthiness of the numeric result and are surfaced so the
// caller can judge it per wallet.
type Diagnostics struct {
	UnresolvedEvents    []UnresolvedEvent    `json:"unresolved_events"`
	OversoldPositions   []OversoldRecord     `json:"oversold_positions"`
	OrphanedConversions []OrphanedConversion `json:"orphaned_conversions"`

	OpenPositionCount     int             `json:"open_position_count"`
	OpenPositionCostBasis decimal.Decimal `json:"open_position_cost_basis"`

	EventsProcessed int `json:"events_processed"`

	// Partial is set when the replay hit its event-count or wall-clock
	// budget and terminated early. A partial result covers a prefix of
	// the history; it is reported, never silently passed off as complete.
	Partial       bool   `json:"partial"`
	PartialReason string `json:"partial_reason,omitempty"`
}

// UnrecognizedValue sums the cash amounts of all unresolved events — the
// upper bound on PnL the replay could not attribute.
func (d *Diagnostics) UnrecognizedValue() decimal.Decimal {
	total := decimal.Zero
	for i := range d.UnresolvedEvents {
		total = total.Add(d.UnresolvedEvents[i].USDCAmount)
	}
	return total
}
