package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/lewisedginton/organizer/internal/persistence"
	"github.com/lewisedginton/organizer/pkg/logger"
)

// DBCommand returns a command for database operations
func DBCommand() *cli.Command {
	return &cli.Command{
		Name:  "db",
		Usage: "Database operations",
		Subcommands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Apply pending schema migrations",
				Action: dbMigrateAction,
			},
		},
	}
}

func dbMigrateAction(ctx *cli.Context) error {
	log := getLogger(ctx)

	cfg, err := loadConfig(ctx)
	if err != nil {
		log.Error("Failed to load configuration", logger.ErrorField(err))
		return err
	}

	pool, err := persistence.Connect(ctx.Context, cfg.Database)
	if err != nil {
		log.Error("Failed to connect to database", logger.ErrorField(err))
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	migrations := persistence.NewMigrationManager(pool, log)
	defer func() { _ = migrations.Close() }()

	return migrations.RunMigrations()
}
