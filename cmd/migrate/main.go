package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/ibabi/ibabi-backend/migrations"
	"github.com/ibabi/ibabi-backend/pkg/config"
	"github.com/ibabi/ibabi-backend/pkg/database"
	"github.com/ibabi/ibabi-backend/pkg/logger"
)

func main() {
	var (
		service  string
		logLevel string
	)
	flag.StringVar(&service, "service", "resource-service", "Service whose database configuration is used")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	command := args[0]

	cfg, err := config.Load(service)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("migrate", cfg.Server.Environment).SetLevel(logLevel)

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	m, err := database.NewMigrator(db, migrations.FS, ".", log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create migrator")
	}
	defer m.Close()

	switch command {
	case "up":
		err = m.Up()

	case "down":
		err = m.Down()

	case "step":
		n, convErr := intArg(args, "step count")
		if convErr != nil {
			log.Fatal().Err(convErr).Msg("usage: migrate step <n>")
		}
		err = m.Steps(n)

	case "force":
		v, convErr := intArg(args, "version")
		if convErr != nil {
			log.Fatal().Err(convErr).Msg("usage: migrate force <version>")
		}
		err = m.Force(v)

	case "version":
		version, dirty, vErr := m.Version()
		if vErr != nil {
			log.Fatal().Err(vErr).Msg("failed to get version")
		}
		log.Info().Uint("version", version).Bool("dirty", dirty).Msg("current migration version")

	default:
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		log.Fatal().Err(err).Str("command", command).Msg("migration failed")
	}
}

func intArg(args []string, name string) (int, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("%s required", name)
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, args[1])
	}
	return n, nil
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: migrate [flags] <command> [args]

Commands:
  up              apply all pending migrations
  down            roll back all migrations
  step <n>        apply n migrations (negative rolls back)
  force <version> set the version without running migrations
  version         print the current version

Flags:`)
	flag.PrintDefaults()
}
