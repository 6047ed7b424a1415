package pnl

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rawborkchop/polymarket-wallet-analysis/internal/position"
)

// MarketAggregate sums a wallet's realized PnL within one market.
type MarketAggregate struct {
	MarketID string          `json:"market_id"`
	Realized decimal.Decimal `json:"realized"`
	Entries  int             `json:"entries"`
}

// AggregateByMarket groups the realized-PnL ledger by market, ordered by
// absolute PnL descending so the biggest winners and losers surface
// first. Ties break on market id for deterministic output.
func AggregateByMarket(ledger []position.RealizedPnlEvent) []MarketAggregate {
	byMarket := make(map[string]*MarketAggregate)
	for i := range ledger {
		entry := &ledger[i]
		agg := byMarket[entry.MarketID]
		if agg == nil {
			agg = &MarketAggregate{MarketID: entry.MarketID, Realized: decimal.Zero}
			byMarket[entry.MarketID] = agg
		}
		agg.Realized = agg.Realized.Add(entry.Amount)
		agg.Entries++
	}

	out := make([]MarketAggregate, 0, len(byMarket))
	for _, agg := range byMarket {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := out[i].Realized.Abs(), out[j].Realized.Abs()
		if !ai.Equal(aj) {
			return ai.GreaterThan(aj)
		}
		return out[i].MarketID < out[j].MarketID
	})
	return out
}

// TopMarkets truncates a market aggregation to its n largest entries.
func TopMarkets(aggs []MarketAggregate, n int) []MarketAggregate {
	if n <= 0 || n >= len(aggs) {
		return aggs
	}
	return aggs[:n]
}

// DailyPoint is one UTC calendar day of realized PnL, with the running
// cumulative total through that day.
type DailyPoint struct {
	Date       time.Time       `json:"date"`
	Realized   decimal.Decimal `json:"realized"`
	Cumulative decimal.Decimal `json:"cumulative"`
}

// AggregateDaily buckets the realized-PnL ledger into UTC calendar days,
// sorted ascending, and threads a cumulative sum through them. Days with
// no ledger activity are omitted rather than zero-filled.
func AggregateDaily(ledger []position.RealizedPnlEvent) []DailyPoint {
	byDay := make(map[time.Time]decimal.Decimal)
	for i := range ledger {
		day := ledger[i].Timestamp.UTC().Truncate(24 * time.Hour)
		byDay[day] = byDay[day].Add(ledger[i].Amount)
	}

	days := make([]time.Time, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	out := make([]DailyPoint, 0, len(days))
	cumulative := decimal.Zero
	for _, day := range days {
		cumulative = cumulative.Add(byDay[day])
		out = append(out, DailyPoint{
			Date:       day,
			Realized:   byDay[day],
			Cumulative: cumulative,
		})
	}
	return out
}
