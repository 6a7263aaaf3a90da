package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sqlpilot/sqlpilot/internal/config"
	"github.com/sqlpilot/sqlpilot/internal/migrations"
	"github.com/sqlpilot/sqlpilot/internal/observability"
	"github.com/sqlpilot/sqlpilot/internal/seed"
	"github.com/sqlpilot/sqlpilot/internal/store"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up|down|status")
	steps := flag.Int("steps", 0, "number of migration steps; 0 means all for up, 1 for down")
	withSeed := flag.Bool("seed", false, "load a sample dataset after migrating up (skipped when customers exist)")
	dataset := flag.String("dataset", "sample", "dataset to seed: sample|minimal")
	flag.Parse()

	cfg, err := config.LoadFromEnv("sqlpilot-migrate")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := store.Open(ctx, store.Config{Driver: cfg.Store.Driver, DSN: cfg.Store.DSN})
	if err != nil {
		fmt.Fprintf(os.Stderr, "database open error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	logger := observability.NewLogger(cfg, os.Stderr)
	runner, err := migrations.NewRunner(cfg.Store.Driver)
	if err != nil {
		fmt.Fprintf(os.Stderr, "migration setup failed: %v\n", err)
		os.Exit(1)
	}
	runner.Logger = logger
	switch *direction {
	case "status":
		status, err := runner.Status(ctx, db)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migration status failed: %v\n", err)
			os.Exit(1)
		}
		for _, item := range status {
			state := "pending"
			if item.Applied {
				state = "applied"
			}
			fmt.Printf("%06d %-32s %s\n", item.Version, item.Name, state)
		}
		return
	case "up":
		applied, err := runner.Up(ctx, db, *steps)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migration up failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("applied %d migration(s)\n", applied)
	case "down":
		if *withSeed {
			fmt.Fprintln(os.Stderr, "-seed cannot be combined with -direction=down")
			os.Exit(1)
		}
		applied, err := runner.Down(ctx, db, *steps)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migration down failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("rolled back %d migration(s)\n", applied)
	default:
		fmt.Fprintf(os.Stderr, "invalid direction: %s\n", *direction)
		os.Exit(1)
	}

	if !*withSeed {
		return
	}
	data, err := seed.ByName(*dataset)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed error: %v\n", err)
		os.Exit(1)
	}
	seeder := seed.Seeder{DB: db, Logger: logger, Now: time.Now}
	result, err := seeder.Run(ctx, data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	if result.Skipped {
		fmt.Println("customers already present; seed skipped")
		return
	}
	fmt.Printf("seeded %d customer(s) and %d order(s) from %s\n", result.Customers, result.Orders, data.Name)
}
