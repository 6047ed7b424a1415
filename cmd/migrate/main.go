// Command migrate steps the Postgres schema up or down one level at a
// time, reading SQL files from the migrations directory. The serve
// command applies pending migrations on startup too; this binary exists
// for rollbacks and for migrating without starting the service.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"

	"github.com/rawborkchop/polymarket-wallet-analysis/internal/observability"
	"github.com/rawborkchop/polymarket-wallet-analysis/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: migrate <up|down>")
		fmt.Println("  up   - apply all pending migrations")
		fmt.Println("  down - roll back the last migration")
		fmt.Println()
		fmt.Println("Environment:")
		fmt.Println("  PNL_POSTGRES_DSN    - Postgres connection string (required)")
		fmt.Println("  PNL_MIGRATIONS_DIR  - path to migrations directory (default: migrations)")
		os.Exit(1)
	}

	dsn := os.Getenv("PNL_POSTGRES_DSN")
	if dsn == "" {
		dsn = "postgres://localhost:5432/pnlengine?sslmode=disable"
	}

	dir := os.Getenv("PNL_MIGRATIONS_DIR")
	if dir == "" {
		dir = "migrations"
	}

	log := observability.NewLogger("migrate")

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open postgres")
	}
	defer db.Close()

	ctx := context.Background()
	migrator := store.NewMigrator(db, dir, log)

	switch os.Args[1] {
	case "up":
		if err := migrator.Up(ctx); err != nil {
			log.Fatal().Err(err).Msg("migrate up")
		}
		log.Info().Msg("schema up to date")

	case "down":
		if err := migrator.Down(ctx); err != nil {
			log.Fatal().Err(err).Msg("migrate down")
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s (use 'up' or 'down')\n", os.Args[1])
		os.Exit(1)
	}
}
