package event

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Kind discriminates the seven economic event types the replay engine
// understands. The set is closed: the position tracker matches it
// exhaustively, and adding a kind means touching every switch over it.
type Kind int32

const (
	KindUnknown Kind = iota
	KindBuy
	KindSell
	KindSplit
	KindMerge
	KindRedeem
	KindConversion
	KindReward
)

func (k Kind) String() string {
	switch k {
	case KindBuy:
		return "BUY"
	case KindSell:
		return "SELL"
	case KindSplit:
		return "SPLIT"
	case KindMerge:
		return "MERGE"
	case KindRedeem:
		return "REDEEM"
	case KindConversion:
		return "CONVERSION"
	case KindReward:
		return "REWARD"
	default:
		return "UNKNOWN"
	}
}

// ParseKind maps the upstream activity-type string to a Kind.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "BUY":
		return KindBuy, true
	case "SELL":
		return KindSell, true
	case "SPLIT":
		return KindSplit, true
	case "MERGE":
		return KindMerge, true
	case "REDEEM":
		return KindRedeem, true
	case "CONVERSION":
		return KindConversion, true
	case "REWARD":
		return KindReward, true
	default:
		return KindUnknown, false
	}
}

// Event is one unit of economic activity for a wallet at a point in time.
// MarketID, Outcome and AssetID may arrive empty — REDEEM and CONVERSION
// records from the upstream activity feed frequently carry no token
// identity, and the resolver backfills them during replay.
type Event struct {
	Wallet    string
	Seq       int64 // Ingestion sequence: stable tie-break for equal timestamps
	Timestamp time.Time
	Kind      Kind

	MarketID string
	Outcome  string
	AssetID  string

	Size       decimal.Decimal // Outcome shares, >= 0
	Price      decimal.Decimal // Per-share execution price in [0, 1]
	USDCAmount decimal.Decimal // Cash leg; cross-checks Size*Price for trades
}

// TotalValue returns the cash value of the event: the trade notional for
// BUY/SELL, the reported USDC amount for everything else.
func (e *Event) TotalValue() decimal.Decimal {
	switch e.Kind {
	case KindBuy, KindSell:
		if !e.USDCAmount.IsZero() {
			return e.USDCAmount
		}
		return e.Price.Mul(e.Size)
	default:
		return e.USDCAmount
	}
}

// HasIdentity reports whether the event carries enough declared identity
// to be attributed to a position without inference.
func (e *Event) HasIdentity() bool {
	return e.MarketID != "" && (e.AssetID != "" || e.Outcome != "")
}

// ValidationError identifies a malformed input record. Per the error
// taxonomy, validation failures are fatal for the replay that received
// them; the caller decides whether to drop the record or halt the batch.
type ValidationError struct {
	Seq    int64
	Wallet string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid event seq=%d wallet=%s: %s", e.Seq, e.Wallet, e.Reason)
}

// Validate checks a single event against the input contract.
func (e *Event) Validate() error {
	if e.Kind == KindUnknown {
		return &ValidationError{Seq: e.Seq, Wallet: e.Wallet, Reason: "unknown kind"}
	}
	if e.Size.IsNegative() {
		return &ValidationError{
			Seq:    e.Seq,
			Wallet: e.Wallet,
			Reason: fmt.Sprintf("negative size %s", e.Size),
		}
	}
	if e.Price.IsNegative() {
		return &ValidationError{
			Seq:    e.Seq,
			Wallet: e.Wallet,
			Reason: fmt.Sprintf("negative price %s", e.Price),
		}
	}
	return nil
}
