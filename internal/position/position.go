package position

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rawborkchop/polymarket-wallet-analysis/internal/event"
)

// Key identifies a position: one wallet holds at most one position per
// (market, outcome) pair.
type Key struct {
	MarketID string
	Outcome  string
}

// Position is the per-(market, outcome) accumulator the tracker mutates
// during a replay. Positions are created lazily on first reference and
// never deleted: a closed position stays at zero quantity as an
// auditable record of the activity that flowed through it.
type Position struct {
	MarketID string
	Outcome  string
	AssetID  string

	Quantity    decimal.Decimal // Shares currently held, >= 0 after every event
	AverageCost decimal.Decimal // Weighted average price paid for held shares
	RealizedPnl decimal.Decimal // Cumulative realized profit for this position

	// Cumulative counters for diagnostics; they do not feed PnL.
	TotalBought  decimal.Decimal
	TotalSold    decimal.Decimal
	TotalCost    decimal.Decimal
	TotalRevenue decimal.Decimal
}

// Open reports whether the position currently holds shares.
func (p *Position) Open() bool {
	return p.Quantity.IsPositive()
}

// CostBasis returns quantity * average cost for the held shares.
func (p *Position) CostBasis() decimal.Decimal {
	return p.Quantity.Mul(p.AverageCost)
}

// RealizedPnlEvent is one entry in the append-only ledger the tracker
// emits. Every period and window figure is derived from this ledger;
// entries are never mutated after creation.
type RealizedPnlEvent struct {
	Timestamp  time.Time
	Seq        int64
	MarketID   string
	Outcome    string
	AssetID    string
	Amount     decimal.Decimal
	SourceKind event.Kind
}
