package worker

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rawborkchop/polymarket-wallet-analysis/internal/event"
	"github.com/rawborkchop/polymarket-wallet-analysis/internal/store"
)

// --- JSON wire formats ---
// These structs represent the payloads received from NATS. Field names
// use snake_case to match upstream producers; decimal fields travel as
// strings so no producer rounding leaks into the engine.

type activityJSON struct {
	Wallet      string `json:"wallet"`
	Seq         int64  `json:"seq"`
	TimestampUs int64  `json:"timestamp_us"`
	Kind        string `json:"kind"`
	MarketID    string `json:"market_id,omitempty"`
	Outcome     string `json:"outcome,omitempty"`
	AssetID     string `json:"asset_id,omitempty"`
	Size        string `json:"size"`
	Price       string `json:"price"`
	USDCAmount  string `json:"usdc_amount"`
}

// parseActivity converts an activity payload into a typed event.Event.
func parseActivity(data []byte) (event.Event, error) {
	var j activityJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return event.Event{}, fmt.Errorf("parse activity: %w", err)
	}

	kind, ok := event.ParseKind(j.Kind)
	if !ok {
		return event.Event{}, fmt.Errorf("parse activity: unknown kind %q", j.Kind)
	}

	size, err := parseDecimal(j.Size, "size")
	if err != nil {
		return event.Event{}, err
	}
	price, err := parseDecimal(j.Price, "price")
	if err != nil {
		return event.Event{}, err
	}
	usdc, err := parseDecimal(j.USDCAmount, "usdc_amount")
	if err != nil {
		return event.Event{}, err
	}

	e := event.Event{
		Wallet:     j.Wallet,
		Seq:        j.Seq,
		Timestamp:  time.UnixMicro(j.TimestampUs).UTC(),
		Kind:       kind,
		MarketID:   j.MarketID,
		Outcome:    j.Outcome,
		AssetID:    j.AssetID,
		Size:       size,
		Price:      price,
		USDCAmount: usdc,
	}
	if err := e.Validate(); err != nil {
		return event.Event{}, err
	}
	return e, nil
}

type pricePointJSON struct {
	AssetID     string `json:"asset_id"`
	TimestampUs int64  `json:"timestamp_us"`
	Price       string `json:"price"`
}

func parsePricePoint(data []byte) (store.PricePoint, error) {
	var j pricePointJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return store.PricePoint{}, fmt.Errorf("parse price point: %w", err)
	}
	price, err := parseDecimal(j.Price, "price")
	if err != nil {
		return store.PricePoint{}, err
	}
	return store.PricePoint{
		AssetID:   j.AssetID,
		Timestamp: time.UnixMicro(j.TimestampUs).UTC(),
		Price:     price,
	}, nil
}

type resolutionJSON struct {
	MarketID       string `json:"market_id"`
	WinningOutcome string `json:"winning_outcome"`
	ResolvedAtUs   int64  `json:"resolved_at_us"`
}

func parseResolution(data []byte) (resolutionJSON, error) {
	var j resolutionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return resolutionJSON{}, fmt.Errorf("parse resolution: %w", err)
	}
	if j.MarketID == "" || j.WinningOutcome == "" {
		return resolutionJSON{}, fmt.Errorf("parse resolution: missing market_id or winning_outcome")
	}
	return j, nil
}

type refreshJSON struct {
	Wallet string `json:"wallet"`
}

func parseRefresh(data []byte) (string, error) {
	var j refreshJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return "", fmt.Errorf("parse refresh request: %w", err)
	}
	if j.Wallet == "" {
		return "", fmt.Errorf("parse refresh request: missing wallet")
	}
	return j.Wallet, nil
}

func parseDecimal(s, field string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %s %q: %w", field, s, err)
	}
	return d, nil
}
