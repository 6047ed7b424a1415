package pnl

import (
	"github.com/shopspring/decimal"
)

// Discrepancy quantifies the gap between an engine-computed total and an
// externally sourced ground-truth figure for the same wallet.
type Discrepancy struct {
	Wallet string          `json:"wallet"`
	Engine decimal.Decimal `json:"engine"`
	Oracle decimal.Decimal `json:"oracle"`
	AbsGap decimal.Decimal `json:"abs_gap"`
	RelGap decimal.Decimal `json:"rel_gap"`
}

// CompareWithOracle measures a report against an external ground-truth
// total and records the gap in the engine's gauges. The relative gap is
// scaled by the oracle magnitude, floored at 1 to keep tiny oracle
// values from exploding the ratio.
func (e *Engine) CompareWithOracle(report *Report, oracle decimal.Decimal) Discrepancy {
	abs := report.Total.Sub(oracle).Abs()

	scale := oracle.Abs()
	if scale.LessThan(decimal.NewFromInt(1)) {
		scale = decimal.NewFromInt(1)
	}
	rel := abs.Div(scale)

	d := Discrepancy{
		Wallet: report.Wallet,
		Engine: report.Total,
		Oracle: oracle,
		AbsGap: abs,
		RelGap: rel,
	}

	if e.metrics != nil {
		e.metrics.OracleGapAbs.WithLabelValues(report.Wallet).Set(abs.InexactFloat64())
		e.metrics.OracleGapRel.WithLabelValues(report.Wallet).Set(rel.InexactFloat64())
	}
	return d
}
