// Package store persists wallet event histories, market metadata, price
// observations, and computed reports. Postgres is the system of record;
// an in-memory implementation backs library use and tests.
package store

import (
	"context"
	"errors"

	"github.com/rawborkchop/polymarket-wallet-analysis/internal/event"
	"github.com/rawborkchop/polymarket-wallet-analysis/internal/pnl"
)

// ErrNotFound is returned when a requested wallet or report has no rows.
var ErrNotFound = errors.New("store: not found")

// Store is the full surface the engine, worker, and CLI consume.
type Store interface {
	// ReplayInput loads everything one replay needs in a single
	// consistent snapshot: the wallet's ordered events plus the market
	// identity seed and resolutions for the markets it touched.
	ReplayInput(ctx context.Context, wallet string) (pnl.ReplayInput, error)

	// Wallets lists every wallet with at least one stored event.
	Wallets(ctx context.Context) ([]string, error)

	// InsertEvents appends activity records. Re-inserting an existing
	// (wallet, seq) pair is a no-op, so ingestion can replay feeds.
	InsertEvents(ctx context.Context, events []event.Event) error

	// SaveReport upserts the latest report for (wallet, semantics).
	SaveReport(ctx context.Context, report *pnl.Report) error

	// LatestReport returns the stored report, or ErrNotFound.
	LatestReport(ctx context.Context, wallet string, semantics pnl.Semantics) (*pnl.Report, error)

	// PriceAt implements pnl.PriceSource from stored price points.
	pnl.PriceSource
}
