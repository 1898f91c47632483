package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/erp/receiving/internal/infrastructure/config"
	"github.com/erp/receiving/internal/infrastructure/logger"
	"github.com/erp/receiving/internal/infrastructure/migration"
	_ "github.com/lib/pq"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	app := &cli.App{
		Name:  "migrate",
		Usage: "Manage the PostgreSQL receipt journal schema",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to config.toml (default: search ./, ./config, /app)",
				EnvVars: []string{"RECV_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
				Value: "info",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List the embedded migrations",
				Action: func(c *cli.Context) error {
					names, err := migration.List()
					if err != nil {
						return err
					}
					for _, name := range names {
						fmt.Fprintln(c.App.Writer, name)
					}
					return nil
				},
			},
			{
				Name:  "up",
				Usage: "Apply all pending migrations",
				Action: withMigrator(func(_ *cli.Context, m *migration.Migrator, _ *zap.Logger) error {
					return m.Up()
				}),
			},
			{
				Name:  "down",
				Usage: "Roll back all migrations",
				Action: withMigrator(func(_ *cli.Context, m *migration.Migrator, _ *zap.Logger) error {
					return m.Down()
				}),
			},
			{
				Name:      "step",
				Usage:     "Apply n migrations, negative n rolls back",
				ArgsUsage: "<n>",
				Action: withMigrator(func(c *cli.Context, m *migration.Migrator, _ *zap.Logger) error {
					var n int
					if _, err := fmt.Sscan(c.Args().First(), &n); err != nil {
						return cli.Exit("step count required: migrate step <n>", 2)
					}
					return m.Steps(n)
				}),
			},
			{
				Name:  "version",
				Usage: "Print the applied migration version",
				Action: withMigrator(func(c *cli.Context, m *migration.Migrator, log *zap.Logger) error {
					version, dirty, err := m.Version()
					if err != nil {
						return err
					}
					if version == 0 {
						log.Info("No migrations applied")
						return nil
					}
					log.Info("Current migration version", zap.Uint("version", version), zap.Bool("dirty", dirty))
					return nil
				}),
			},
			{
				Name:      "force",
				Usage:     "Set the version without running migrations (clears a dirty state)",
				ArgsUsage: "<version>",
				Action: withMigrator(func(c *cli.Context, m *migration.Migrator, _ *zap.Logger) error {
					var version int
					if _, err := fmt.Sscan(c.Args().First(), &version); err != nil {
						return cli.Exit("version required: migrate force <version>", 2)
					}
					return m.Force(version)
				}),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type migratorAction func(c *cli.Context, m *migration.Migrator, log *zap.Logger) error

// withMigrator loads configuration, connects to the journal database and
// hands a Migrator to fn
func withMigrator(fn migratorAction) cli.ActionFunc {
	return func(c *cli.Context) error {
		log, err := logger.New(&logger.Config{
			Level:      c.String("log-level"),
			Format:     "console",
			Output:     "stdout",
			TimeFormat: "2006-01-02 15:04:05",
		})
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		defer func() { _ = log.Sync() }()

		cfg, err := config.LoadFrom(c.String("config"))
		if err != nil {
			return err
		}
		if cfg.Database.Driver != "postgres" {
			return cli.Exit(fmt.Sprintf("database driver %q is migrated by the server on startup; migrate only manages postgres", cfg.Database.Driver), 2)
		}

		db, err := sql.Open("postgres", cfg.Database.DSN())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(c.Context); err != nil {
			return fmt.Errorf("failed to ping database: %w", err)
		}

		m, err := migration.New(db, log)
		if err != nil {
			return err
		}
		defer func() {
			if err := m.Close(); err != nil {
				log.Warn("Failed to close migrator", zap.Error(err))
			}
		}()

		log.Info("Migration command started", zap.String("command", c.Command.Name))
		return fn(c, m, log)
	}
}
