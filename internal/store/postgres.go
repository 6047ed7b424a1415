package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/rawborkchop/polymarket-wallet-analysis/internal/event"
	"github.com/rawborkchop/polymarket-wallet-analysis/internal/pnl"
)

// insertBatchSize caps the rows per multi-row INSERT so the statement
// stays under the Postgres parameter limit.
const insertBatchSize = 500

// PostgresStore is the production Store backed by lib/pq. Monetary
// columns are NUMERIC and travel as strings, never through float64.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Open connects and verifies the database is reachable.
func Open(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

// DB exposes the underlying handle for the migrator.
func (s *PostgresStore) DB() *sql.DB { return s.db }

// ReplayInput loads the wallet's events, market identity, and market
// resolutions inside one REPEATABLE READ read-only transaction, so a
// concurrent ingest cannot hand the replay a torn view of history.
func (s *PostgresStore) ReplayInput(ctx context.Context, wallet string) (pnl.ReplayInput, error) {
	in := pnl.ReplayInput{Wallet: wallet}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelRepeatableRead,
		ReadOnly:  true,
	})
	if err != nil {
		return in, fmt.Errorf("begin replay-input tx: %w", err)
	}
	defer tx.Rollback()

	in.Events, err = loadEvents(ctx, tx, wallet)
	if err != nil {
		return in, err
	}

	markets := make(map[string]struct{})
	for i := range in.Events {
		if in.Events[i].MarketID != "" {
			markets[in.Events[i].MarketID] = struct{}{}
		}
	}

	in.MarketAssets, err = loadMarketAssets(ctx, tx, markets)
	if err != nil {
		return in, err
	}
	in.Resolutions, err = loadResolutions(ctx, tx, markets)
	if err != nil {
		return in, err
	}

	if err := tx.Commit(); err != nil {
		return in, fmt.Errorf("commit replay-input tx: %w", err)
	}
	return in, nil
}

func loadEvents(ctx context.Context, tx *sql.Tx, wallet string) ([]event.Event, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT seq, ts, kind, market_id, outcome, asset_id,
		       size::text, price::text, usdc_amount::text
		FROM wallet_events
		WHERE wallet = $1
		ORDER BY ts ASC, seq ASC
	`, wallet)
	if err != nil {
		return nil, fmt.Errorf("load events for %s: %w", wallet, err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var (
			e                      event.Event
			kind                   string
			size, price, usdc      string
			market, outcome, asset sql.NullString
		)
		if err := rows.Scan(&e.Seq, &e.Timestamp, &kind, &market, &outcome, &asset,
			&size, &price, &usdc); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}

		e.Wallet = wallet
		e.Kind, _ = event.ParseKind(kind)
		e.MarketID = market.String
		e.Outcome = outcome.String
		e.AssetID = asset.String

		if e.Size, err = decimal.NewFromString(size); err != nil {
			return nil, fmt.Errorf("parse size %q seq %d: %w", size, e.Seq, err)
		}
		if e.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse price %q seq %d: %w", price, e.Seq, err)
		}
		if e.USDCAmount, err = decimal.NewFromString(usdc); err != nil {
			return nil, fmt.Errorf("parse usdc_amount %q seq %d: %w", usdc, e.Seq, err)
		}

		events = append(events, e)
	}
	return events, rows.Err()
}

func loadMarketAssets(ctx context.Context, tx *sql.Tx, markets map[string]struct{}) (map[string]map[string]string, error) {
	out := make(map[string]map[string]string)
	if len(markets) == 0 {
		return out, nil
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT market_id, outcome, asset_id
		FROM market_outcomes
		WHERE market_id = ANY($1)
	`, pqStringArray(markets))
	if err != nil {
		return nil, fmt.Errorf("load market outcomes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var marketID, outcome, assetID string
		if err := rows.Scan(&marketID, &outcome, &assetID); err != nil {
			return nil, fmt.Errorf("scan market outcome: %w", err)
		}
		m := out[marketID]
		if m == nil {
			m = make(map[string]string)
			out[marketID] = m
		}
		m[outcome] = assetID
	}
	return out, rows.Err()
}

func loadResolutions(ctx context.Context, tx *sql.Tx, markets map[string]struct{}) (map[string]string, error) {
	out := make(map[string]string)
	if len(markets) == 0 {
		return out, nil
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT market_id, winning_outcome
		FROM market_resolutions
		WHERE market_id = ANY($1)
	`, pqStringArray(markets))
	if err != nil {
		return nil, fmt.Errorf("load market resolutions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var marketID, winner string
		if err := rows.Scan(&marketID, &winner); err != nil {
			return nil, fmt.Errorf("scan market resolution: %w", err)
		}
		out[marketID] = winner
	}
	return out, rows.Err()
}

// Wallets lists every wallet with stored activity, sorted.
func (s *PostgresStore) Wallets(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT wallet FROM wallet_events ORDER BY wallet`)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	var wallets []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// InsertEvents batch-inserts activity records with multi-row INSERTs.
// Duplicate (wallet, seq) pairs are skipped, so feed replays and
// backfills are safe to re-run.
func (s *PostgresStore) InsertEvents(ctx context.Context, events []event.Event) error {
	for start := 0; start < len(events); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(events) {
			end = len(events)
		}
		if err := s.insertEventChunk(ctx, events[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) insertEventChunk(ctx context.Context, events []event.Event) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO wallet_events
		(wallet, seq, ts, kind, market_id, outcome, asset_id, size, price, usdc_amount)
		VALUES `

	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*10)

	for i := range events {
		e := &events[i]
		base := i * 10
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10,
		))
		args = append(args,
			e.Wallet, e.Seq, e.Timestamp, e.Kind.String(),
			nullIfEmpty(e.MarketID), nullIfEmpty(e.Outcome), nullIfEmpty(e.AssetID),
			e.Size.String(), e.Price.String(), e.USDCAmount.String(),
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (wallet, seq) DO NOTHING"

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert %d events: %w", len(events), err)
	}
	return nil
}

// UpsertMarketOutcome records a (market, outcome) -> asset binding.
func (s *PostgresStore) UpsertMarketOutcome(ctx context.Context, marketID, outcome, assetID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO market_outcomes (market_id, outcome, asset_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (market_id, outcome) DO UPDATE SET asset_id = EXCLUDED.asset_id
	`, marketID, outcome, assetID)
	if err != nil {
		return fmt.Errorf("upsert market outcome %s/%s: %w", marketID, outcome, err)
	}
	return nil
}

// UpsertResolution records the winning outcome of a resolved market.
func (s *PostgresStore) UpsertResolution(ctx context.Context, marketID, winningOutcome string, resolvedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO market_resolutions (market_id, winning_outcome, resolved_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (market_id) DO UPDATE
			SET winning_outcome = EXCLUDED.winning_outcome,
			    resolved_at     = EXCLUDED.resolved_at
	`, marketID, winningOutcome, resolvedAt)
	if err != nil {
		return fmt.Errorf("upsert resolution %s: %w", marketID, err)
	}
	return nil
}

// PricePoint is one historical price observation for an asset.
type PricePoint struct {
	AssetID   string
	Timestamp time.Time
	Price     decimal.Decimal
}

// InsertPricePoints batch-inserts price observations.
func (s *PostgresStore) InsertPricePoints(ctx context.Context, points []PricePoint) error {
	for start := 0; start < len(points); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(points) {
			end = len(points)
		}
		if err := s.insertPriceChunk(ctx, points[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) insertPriceChunk(ctx context.Context, points []PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	query := `INSERT INTO price_points (asset_id, ts, price) VALUES `
	values := make([]string, 0, len(points))
	args := make([]interface{}, 0, len(points)*3)

	for i := range points {
		base := i * 3
		values = append(values, fmt.Sprintf("($%d, $%d, $%d)", base+1, base+2, base+3))
		args = append(args, points[i].AssetID, points[i].Timestamp, points[i].Price.String())
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (asset_id, ts) DO UPDATE SET price = EXCLUDED.price"

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert %d price points: %w", len(points), err)
	}
	return nil
}

// PriceAt returns the most recent price observation at or before the
// given instant. ok=false when the asset has no observation that early.
func (s *PostgresStore) PriceAt(ctx context.Context, assetID string, at time.Time) (decimal.Decimal, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `
		SELECT price::text FROM price_points
		WHERE asset_id = $1 AND ts <= $2
		ORDER BY ts DESC
		LIMIT 1
	`, assetID, at).Scan(&raw)
	if err == sql.ErrNoRows {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("price for %s: %w", assetID, err)
	}

	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("parse price %q for %s: %w", raw, assetID, err)
	}
	return price, true, nil
}

// SaveReport upserts the latest computed report for (wallet, semantics).
// The summary columns are queryable; the full report rides along as JSON.
func (s *PostgresStore) SaveReport(ctx context.Context, report *pnl.Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report for %s: %w", report.Wallet, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO wallet_reports
			(wallet, semantics, fingerprint, realized, unrealized, total, generated_at, report)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (wallet, semantics) DO UPDATE SET
			fingerprint  = EXCLUDED.fingerprint,
			realized     = EXCLUDED.realized,
			unrealized   = EXCLUDED.unrealized,
			total        = EXCLUDED.total,
			generated_at = EXCLUDED.generated_at,
			report       = EXCLUDED.report
	`, report.Wallet, string(report.Semantics), report.Fingerprint,
		report.Realized.String(), report.Unrealized.String(), report.Total.String(),
		report.GeneratedAt, payload)
	if err != nil {
		return fmt.Errorf("save report for %s: %w", report.Wallet, err)
	}
	return nil
}

// LatestReport loads the stored report for (wallet, semantics).
func (s *PostgresStore) LatestReport(ctx context.Context, wallet string, semantics pnl.Semantics) (*pnl.Report, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT report FROM wallet_reports
		WHERE wallet = $1 AND semantics = $2
	`, wallet, string(semantics)).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load report for %s: %w", wallet, err)
	}

	var report pnl.Report
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, fmt.Errorf("unmarshal report for %s: %w", wallet, err)
	}
	return &report, nil
}

// pqStringArray turns a market-id set into a sorted Postgres array
// parameter for ANY($1) lookups.
func pqStringArray(set map[string]struct{}) interface{} {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return pq.Array(ids)
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
