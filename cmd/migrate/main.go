package main

import (
	"TrueMarket/internal/observability"
	"TrueMarket/internal/persistence"
	"context"
	"fmt"
	"log"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: migrate <up|down|status>")
		fmt.Println("  up     - apply all pending migrations")
		fmt.Println("  down   - roll back the last migration")
		fmt.Println("  status - list applied migration versions")
		fmt.Println()
		fmt.Println("Environment:")
		fmt.Println("  TRUEMARKET_MIGRATE_DIALECT - postgres or sqlite (default: postgres)")
		fmt.Println("  TRUEMARKET_MIGRATE_DSN     - connection string (required)")
		os.Exit(1)
	}

	dialect, err := persistence.ParseDialect(envOrDefault("TRUEMARKET_MIGRATE_DIALECT", "postgres"))
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	dsn := os.Getenv("TRUEMARKET_MIGRATE_DSN")
	if dsn == "" {
		log.Fatalf("FATAL: TRUEMARKET_MIGRATE_DSN is required")
	}

	db, err := persistence.Open(dialect, dsn)
	if err != nil {
		log.Fatalf("FATAL: open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	migrator := persistence.NewMigrator(db, dialect, persistence.Migrations(), "migrations", observability.NewLogger("migrate"))

	switch os.Args[1] {
	case "up":
		n, err := migrator.Up(ctx)
		if err != nil {
			log.Fatalf("FATAL: migrate up: %v", err)
		}
		log.Printf("INFO: %d migrations applied", n)

	case "down":
		rolled, err := migrator.Down(ctx)
		if err != nil {
			log.Fatalf("FATAL: migrate down: %v", err)
		}
		if rolled {
			log.Println("INFO: last migration rolled back")
		} else {
			log.Println("INFO: nothing to roll back")
		}

	case "status":
		applied, err := migrator.Applied(ctx)
		if err != nil {
			log.Fatalf("FATAL: migrate status: %v", err)
		}
		for _, v := range applied {
			fmt.Println(v)
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s (use 'up', 'down' or 'status')\n", os.Args[1])
		os.Exit(1)
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
