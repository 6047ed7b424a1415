package pnl

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rawborkchop/polymarket-wallet-analysis/internal/event"
)

// CashFlowTotals is the pure cash view of a wallet's activity: money out
// versus money in, with no cost-basis attribution at all. It converges
// with the replay total only once every position is closed, which makes
// it a cheap cross-check on the replay rather than a substitute for it.
type CashFlowTotals struct {
	Buys    decimal.Decimal `json:"buys"`
	Sells   decimal.Decimal `json:"sells"`
	Splits  decimal.Decimal `json:"splits"`
	Merges  decimal.Decimal `json:"merges"`
	Redeems decimal.Decimal `json:"redeems"`
	Rewards decimal.Decimal `json:"rewards"`

	Inflows  decimal.Decimal `json:"inflows"`
	Outflows decimal.Decimal `json:"outflows"`
	Net      decimal.Decimal `json:"net"`
}

// CashFlow sums cash in and out over the whole event list. Conversions
// are cash-neutral exchanges of one outcome for another and contribute
// nothing here.
func CashFlow(events []event.Event) CashFlowTotals {
	var t CashFlowTotals
	t.Buys, t.Sells = decimal.Zero, decimal.Zero
	t.Splits, t.Merges = decimal.Zero, decimal.Zero
	t.Redeems, t.Rewards = decimal.Zero, decimal.Zero

	for i := range events {
		e := &events[i]
		value := e.TotalValue()
		switch e.Kind {
		case event.KindBuy:
			t.Buys = t.Buys.Add(value)
		case event.KindSell:
			t.Sells = t.Sells.Add(value)
		case event.KindSplit:
			t.Splits = t.Splits.Add(value)
		case event.KindMerge:
			t.Merges = t.Merges.Add(value)
		case event.KindRedeem:
			t.Redeems = t.Redeems.Add(value)
		case event.KindReward:
			t.Rewards = t.Rewards.Add(value)
		}
	}

	t.Inflows = t.Sells.Add(t.Redeems).Add(t.Merges).Add(t.Rewards)
	t.Outflows = t.Buys.Add(t.Splits)
	t.Net = t.Inflows.Sub(t.Outflows)
	return t
}

// CashFlowWindow restricts the cash view to events with
// start <= timestamp <= end.
func CashFlowWindow(events []event.Event, start, end time.Time) CashFlowTotals {
	var windowed []event.Event
	for i := range events {
		ts := events[i].Timestamp
		if ts.Before(start) || ts.After(end) {
			continue
		}
		windowed = append(windowed, events[i])
	}
	return CashFlow(windowed)
}
