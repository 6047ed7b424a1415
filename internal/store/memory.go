package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rawborkchop/polymarket-wallet-analysis/internal/event"
	"github.com/rawborkchop/polymarket-wallet-analysis/internal/pnl"
)

// MemoryStore is an in-memory Store for library embedding and tests.
// All methods are safe for concurrent use.
type MemoryStore struct {
	mu sync.RWMutex

	events       map[string][]event.Event // wallet -> events
	seen         map[string]map[int64]bool
	marketAssets map[string]map[string]string
	resolutions  map[string]string
	prices       map[string][]PricePoint // assetID -> observations, ts ascending

	reports map[string]map[pnl.Semantics]*pnl.Report
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:       make(map[string][]event.Event),
		seen:         make(map[string]map[int64]bool),
		marketAssets: make(map[string]map[string]string),
		resolutions:  make(map[string]string),
		prices:       make(map[string][]PricePoint),
		reports:      make(map[string]map[pnl.Semantics]*pnl.Report),
	}
}

func (s *MemoryStore) ReplayInput(ctx context.Context, wallet string) (pnl.ReplayInput, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	in := pnl.ReplayInput{
		Wallet:       wallet,
		Events:       append([]event.Event(nil), s.events[wallet]...),
		MarketAssets: make(map[string]map[string]string, len(s.marketAssets)),
		Resolutions:  make(map[string]string, len(s.resolutions)),
	}
	for marketID, outcomes := range s.marketAssets {
		m := make(map[string]string, len(outcomes))
		for outcome, assetID := range outcomes {
			m[outcome] = assetID
		}
		in.MarketAssets[marketID] = m
	}
	for marketID, winner := range s.resolutions {
		in.Resolutions[marketID] = winner
	}
	return in, nil
}

func (s *MemoryStore) Wallets(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wallets := make([]string, 0, len(s.events))
	for w := range s.events {
		wallets = append(wallets, w)
	}
	sort.Strings(wallets)
	return wallets, nil
}

func (s *MemoryStore) InsertEvents(ctx context.Context, events []event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range events {
		e := events[i]
		seen := s.seen[e.Wallet]
		if seen == nil {
			seen = make(map[int64]bool)
			s.seen[e.Wallet] = seen
		}
		if seen[e.Seq] {
			continue
		}
		seen[e.Seq] = true
		s.events[e.Wallet] = append(s.events[e.Wallet], e)
	}
	return nil
}

// SetMarketOutcome seeds a (market, outcome) -> asset binding.
func (s *MemoryStore) SetMarketOutcome(marketID, outcome, assetID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.marketAssets[marketID]
	if m == nil {
		m = make(map[string]string)
		s.marketAssets[marketID] = m
	}
	m[outcome] = assetID
}

// SetResolution seeds a market's winning outcome.
func (s *MemoryStore) SetResolution(marketID, winningOutcome string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolutions[marketID] = winningOutcome
}

// AddPricePoint records a historical price observation.
func (s *MemoryStore) AddPricePoint(assetID string, ts time.Time, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	points := append(s.prices[assetID], PricePoint{AssetID: assetID, Timestamp: ts, Price: price})
	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp.Before(points[j].Timestamp) })
	s.prices[assetID] = points
}

func (s *MemoryStore) PriceAt(ctx context.Context, assetID string, at time.Time) (decimal.Decimal, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	points := s.prices[assetID]
	for i := len(points) - 1; i >= 0; i-- {
		if !points[i].Timestamp.After(at) {
			return points[i].Price, true, nil
		}
	}
	return decimal.Zero, false, nil
}

func (s *MemoryStore) SaveReport(ctx context.Context, report *pnl.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byKind := s.reports[report.Wallet]
	if byKind == nil {
		byKind = make(map[pnl.Semantics]*pnl.Report)
		s.reports[report.Wallet] = byKind
	}
	byKind[report.Semantics] = report
	return nil
}

func (s *MemoryStore) LatestReport(ctx context.Context, wallet string, semantics pnl.Semantics) (*pnl.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r := s.reports[wallet][semantics]; r != nil {
		return r, nil
	}
	return nil, ErrNotFound
}
