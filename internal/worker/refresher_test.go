package worker

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rawborkchop/polymarket-wallet-analysis/internal/event"
	"github.com/rawborkchop/polymarket-wallet-analysis/internal/pnl"
	"github.com/rawborkchop/polymarket-wallet-analysis/internal/position"
	"github.com/rawborkchop/polymarket-wallet-analysis/internal/store"
)

var refreshT0 = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func seedWallet(t *testing.T, s *store.MemoryStore, wallet string) {
	t.Helper()
	err := s.InsertEvents(context.Background(), []event.Event{
		{
			Wallet: wallet, Seq: 1, Timestamp: refreshT0,
			Kind: event.KindBuy, MarketID: "m1", Outcome: "YES", AssetID: "a1",
			Size: dec(t, "100"), Price: dec(t, "0.5"), USDCAmount: dec(t, "50"),
		},
		{
			Wallet: wallet, Seq: 2, Timestamp: refreshT0.Add(time.Hour),
			Kind: event.KindSell, MarketID: "m1", Outcome: "YES", AssetID: "a1",
			Size: dec(t, "100"), Price: dec(t, "0.8"), USDCAmount: dec(t, "80"),
		},
	})
	if err != nil {
		t.Fatalf("seed %s: %v", wallet, err)
	}
}

func TestRefreshWalletPersistsReport(t *testing.T) {
	s := store.NewMemoryStore()
	seedWallet(t, s, "0xa")

	engine := pnl.NewEngine(s, position.Budget{}, nil, zerolog.Nop())
	r := NewRefresher(s, engine, nil, nil, nil, zerolog.Nop())

	if err := r.RefreshWallet(context.Background(), "0xa"); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	report, err := s.LatestReport(context.Background(), "0xa", pnl.SemanticsFullHistory)
	if err != nil {
		t.Fatalf("load report: %v", err)
	}
	if !report.Realized.Equal(dec(t, "30")) {
		t.Errorf("realized: got %s, want 30", report.Realized)
	}
	if report.Fingerprint == "" {
		t.Error("stored report missing fingerprint")
	}
}

func TestRefreshAllCoversEveryWallet(t *testing.T) {
	s := store.NewMemoryStore()
	seedWallet(t, s, "0xa")
	seedWallet(t, s, "0xb")
	seedWallet(t, s, "0xc")

	engine := pnl.NewEngine(s, position.Budget{}, nil, zerolog.Nop())
	r := NewRefresher(s, engine, nil, nil, nil, zerolog.Nop())

	if err := r.RefreshAll(context.Background(), 2); err != nil {
		t.Fatalf("refresh all: %v", err)
	}

	for _, wallet := range []string{"0xa", "0xb", "0xc"} {
		if _, err := s.LatestReport(context.Background(), wallet, pnl.SemanticsFullHistory); err != nil {
			t.Errorf("no report for %s: %v", wallet, err)
		}
	}
}

func TestRefreshAllHonorsCancellation(t *testing.T) {
	s := store.NewMemoryStore()
	seedWallet(t, s, "0xa")

	engine := pnl.NewEngine(s, position.Budget{}, nil, zerolog.Nop())
	r := NewRefresher(s, engine, nil, nil, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.RefreshAll(ctx, 1); err == nil {
		t.Error("cancelled sweep reported success")
	}
}
