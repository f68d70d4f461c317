package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/stampbook/stampbook-backend/pkg/config"
	"github.com/stampbook/stampbook-backend/pkg/db"
	"github.com/stampbook/stampbook-backend/pkg/logger"
	"github.com/stampbook/stampbook-backend/pkg/migrate"
)

type options struct {
	dir     string
	name    string
	version string
}

// offlineCommand runs without a database connection.
type offlineCommand func(opts options) error

// dbCommand needs an open schema connection.
type dbCommand func(ctx context.Context, sqlDB *sql.DB, opts options) error

var offlineCommands = map[string]offlineCommand{
	"create": func(opts options) error {
		if opts.name == "" {
			return fmt.Errorf("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
		if err != nil {
			return err
		}
		fmt.Println("created migration:", path)
		return nil
	},
	"validate": func(opts options) error {
		files, err := migrate.ValidateDir(opts.dir)
		if err != nil {
			return err
		}
		fmt.Printf("migration validation passed (%d files)\n", len(files))
		return nil
	},
}

var dbCommands = map[string]dbCommand{
	"up":     gooseCommand("up"),
	"down":   gooseCommand("down"),
	"status": gooseCommand("status"),
	"redo":   gooseCommand("redo"),
	"version": func(ctx context.Context, sqlDB *sql.DB, opts options) error {
		if opts.version == "" {
			return fmt.Errorf("missing -version for version command")
		}
		return migrate.MigrateToVersion(ctx, sqlDB, opts.dir, opts.version)
	},
}

func gooseCommand(name string) dbCommand {
	return func(ctx context.Context, sqlDB *sql.DB, opts options) error {
		return migrate.Run(ctx, sqlDB, opts.dir, name)
	}
}

func commandNames() string {
	names := make([]string, 0, len(offlineCommands)+len(dbCommands))
	for name := range offlineCommands {
		names = append(names, name)
	}
	for name := range dbCommands {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, "|")
}

func main() {
	_ = godotenv.Load()

	var opts options
	cmd := flag.String("cmd", "up", "migration command: "+commandNames())
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	flag.StringVar(&opts.name, "name", "", "migration name (for create)")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": *cmd,
		"dir": opts.dir,
	})

	if run, ok := offlineCommands[*cmd]; ok {
		exitOnError(ctx, logg, *cmd, run(opts))
		return
	}

	run, ok := dbCommands[*cmd]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown -cmd value %q (want %s)\n", *cmd, commandNames())
		os.Exit(2)
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	exitOnError(ctx, logg, "database", err)
	defer dbClient.Close()

	sqlDB, err := dbClient.SQL()
	exitOnError(ctx, logg, "sql database", err)

	logg.Info(ctx, "migrate.start")
	exitOnError(ctx, logg, *cmd, run(ctx, sqlDB, opts))
	logg.Info(ctx, "migrate.done")
}

func exitOnError(ctx context.Context, logg *logger.Logger, step string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("migrate.%s.failed", step), err)
	os.Exit(1)
}
