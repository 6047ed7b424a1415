package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rawborkchop/polymarket-wallet-analysis/internal/event"
	"github.com/rawborkchop/polymarket-wallet-analysis/internal/pnl"
	"github.com/rawborkchop/polymarket-wallet-analysis/internal/store"
)

var t0 = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func buyEvent(wallet string, seq int64) event.Event {
	return event.Event{
		Wallet:     wallet,
		Seq:        seq,
		Timestamp:  t0.Add(time.Duration(seq) * time.Minute),
		Kind:       event.KindBuy,
		MarketID:   "m1",
		Outcome:    "YES",
		AssetID:    "a1",
		Size:       dec("10"),
		Price:      dec("0.5"),
		USDCAmount: dec("5"),
	}
}

func TestMemoryStoreInsertDedup(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	events := []event.Event{buyEvent("0xa", 1), buyEvent("0xa", 2)}
	if err := s.InsertEvents(ctx, events); err != nil {
		t.Fatalf("insert: %v", err)
	}
	// Re-inserting the same (wallet, seq) pairs is a no-op.
	if err := s.InsertEvents(ctx, events); err != nil {
		t.Fatalf("re-insert: %v", err)
	}

	in, err := s.ReplayInput(ctx, "0xa")
	if err != nil {
		t.Fatalf("replay input: %v", err)
	}
	if len(in.Events) != 2 {
		t.Errorf("events after duplicate insert: got %d, want 2", len(in.Events))
	}
	if in.Wallet != "0xa" {
		t.Errorf("wallet: got %s", in.Wallet)
	}
}

func TestMemoryStoreReplayInputCarriesSeedsAndResolutions(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	if err := s.InsertEvents(ctx, []event.Event{buyEvent("0xa", 1)}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	s.SetMarketOutcome("m1", "YES", "a1")
	s.SetMarketOutcome("m1", "NO", "a2")
	s.SetResolution("m1", "YES")

	in, err := s.ReplayInput(ctx, "0xa")
	if err != nil {
		t.Fatalf("replay input: %v", err)
	}
	if in.MarketAssets["m1"]["NO"] != "a2" {
		t.Errorf("market seed missing: %v", in.MarketAssets)
	}
	if in.Resolutions["m1"] != "YES" {
		t.Errorf("resolution missing: %v", in.Resolutions)
	}

	// The input is a snapshot: mutating it must not touch the store.
	in.MarketAssets["m1"]["NO"] = "tampered"
	again, _ := s.ReplayInput(ctx, "0xa")
	if again.MarketAssets["m1"]["NO"] != "a2" {
		t.Error("replay input aliases store state")
	}
}

func TestMemoryStoreWallets(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	if err := s.InsertEvents(ctx, []event.Event{
		buyEvent("0xb", 1),
		buyEvent("0xa", 1),
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	wallets, err := s.Wallets(ctx)
	if err != nil {
		t.Fatalf("wallets: %v", err)
	}
	if len(wallets) != 2 || wallets[0] != "0xa" || wallets[1] != "0xb" {
		t.Errorf("wallets not sorted: %v", wallets)
	}
}

func TestMemoryStorePriceAt(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	// Inserted out of order; lookups must still find the latest at-or-before.
	s.AddPricePoint("a1", t0.Add(2*time.Hour), dec("0.7"))
	s.AddPricePoint("a1", t0, dec("0.5"))

	price, ok, err := s.PriceAt(ctx, "a1", t0.Add(time.Hour))
	if err != nil || !ok {
		t.Fatalf("lookup: ok=%v err=%v", ok, err)
	}
	if !price.Equal(dec("0.5")) {
		t.Errorf("mid-window price: got %s, want 0.5", price)
	}

	price, ok, _ = s.PriceAt(ctx, "a1", t0.Add(3*time.Hour))
	if !ok || !price.Equal(dec("0.7")) {
		t.Errorf("latest price: got %s ok=%v, want 0.7", price, ok)
	}

	if _, ok, _ := s.PriceAt(ctx, "a1", t0.Add(-time.Hour)); ok {
		t.Error("lookup before first observation returned a price")
	}
	if _, ok, _ := s.PriceAt(ctx, "unknown", t0); ok {
		t.Error("unknown asset returned a price")
	}
}

func TestMemoryStoreReportRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	if _, err := s.LatestReport(ctx, "0xa", pnl.SemanticsFullHistory); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("empty store: got %v, want ErrNotFound", err)
	}

	report := &pnl.Report{
		Wallet:      "0xa",
		Semantics:   pnl.SemanticsFullHistory,
		GeneratedAt: t0,
		Realized:    dec("15"),
		Total:       dec("10"),
		Fingerprint: "abc123",
	}
	if err := s.SaveReport(ctx, report); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.LatestReport(ctx, "0xa", pnl.SemanticsFullHistory)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Fingerprint != "abc123" || !got.Realized.Equal(dec("15")) {
		t.Errorf("round trip mismatch: %+v", got)
	}

	// Other semantics for the same wallet stay independent.
	if _, err := s.LatestReport(ctx, "0xa", pnl.SemanticsWindowRealized); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("wrong semantics returned a report: %v", err)
	}
}
