// Package main applies the embedded SQL migrations.
//
//	migrate up | down | steps N | version | force V
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"pestctl/internal/config"
	"pestctl/internal/infrastructure/storage/postgres"
	"pestctl/pkg/logger"
)

func main() {
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	dsn := flag.String("database-url", "", "Database URL (default: DATABASE_URL)")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: *logLevel, Development: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	if *dsn == "" {
		cfg, err := config.Load()
		if err != nil {
			log.Fatalw("failed to load config", "error", err)
		}
		*dsn = cfg.DatabaseURL
	}

	m, err := postgres.NewMigrator(*dsn, log.SugaredLogger)
	if err != nil {
		log.Fatalw("failed to create migrator", "error", err)
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Warnw("failed to close migrator", "error", err)
		}
	}()

	if err := execute(m, args); err != nil {
		log.Fatalw("migration failed", "command", args[0], "error", err)
	}
}

func execute(m *postgres.Migrator, args []string) error {
	switch args[0] {
	case "up":
		return m.Up()
	case "down":
		return m.Down()
	case "steps":
		n, err := intArg(args)
		if err != nil {
			return err
		}
		return m.Steps(n)
	case "force":
		v, err := intArg(args)
		if err != nil {
			return err
		}
		return m.Force(v)
	case "version":
		v, dirty, err := m.Version()
		if err != nil {
			return err
		}
		fmt.Printf("version: %d, dirty: %v\n", v, dirty)
		return nil
	}
	printUsage()
	return fmt.Errorf("unknown command %q", args[0])
}

func intArg(args []string) (int, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("%s requires a number", args[0])
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", args[1], err)
	}
	return n, nil
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: migrate [flags] <command> [arg]

Commands:
  up          apply all pending migrations
  down        roll back all migrations
  steps N     apply N migrations (negative rolls back)
  version     print the current version
  force V     set the version without running migrations`)
	flag.PrintDefaults()
}
