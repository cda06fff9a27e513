package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/leafsii/collateral-engine/internal/config"
)

const usage = `Usage: migrate [-dir sql] COMMAND [ARGS]

Applies the event journal schema to DSC_POSTGRES_DSN.

Commands:
  up            apply all pending migrations
  up-to VERSION apply migrations up to VERSION
  down          roll back the latest migration
  reset         roll back every migration
  status        print applied and pending migrations
  version       print the current schema version`

var (
	flags = flag.NewFlagSet("migrate", flag.ExitOnError)
	dir   = flags.String("dir", "sql", "directory with migration files")
	table = flags.String("table", "engine_schema_version", "goose version table")
)

func main() {
	flags.Usage = func() { fmt.Fprintln(flags.Output(), usage) }
	_ = flags.Parse(os.Args[1:])
	args := flags.Args()
	if len(args) < 1 {
		flags.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.PostgresDSN == "" {
		log.Fatal("DSC_POSTGRES_DSN is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("pgx", cfg.Database.PostgresDSN)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("Failed to reach database: %v", err)
	}
	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatalf("Failed to set dialect: %v", err)
	}
	goose.SetTableName(*table)

	command := args[0]
	switch command {
	case "up", "up-to", "down", "reset", "status", "version":
	default:
		log.Fatalf("Unknown command: %s\n\n%s", command, usage)
	}
	if err := goose.RunContext(ctx, command, db, *dir, args[1:]...); err != nil {
		log.Fatalf("migrate %s: %v", command, err)
	}
}
