package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	commands "github.com/lewisedginton/organizer/internal/cli"
	"github.com/lewisedginton/organizer/pkg/logger"
)

func main() {
	app := &cli.App{
		Name:    "organizer",
		Usage:   "J.A.R.V.I.S. voice executive assistant",
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   "json",
				Usage:   "Log format (json, text)",
				EnvVars: []string{"LOG_FORMAT"},
			},
			&cli.StringFlag{
				Name:    "config-file",
				Value:   "",
				Usage:   "Path to configuration file",
				EnvVars: []string{"CONFIG_FILE"},
			},
		},
		Before: func(ctx *cli.Context) error {
			log := logger.NewLogger(logger.Config{
				Level:   logger.ParseLevel(ctx.String("log-level")),
				Format:  ctx.String("log-format"),
				Service: "organizer",
			})

			ctx.App.Metadata = map[string]interface{}{
				"logger": log,
			}

			return nil
		},
		Commands: []*cli.Command{
			commands.ConfigCommand(),
			commands.ServerCommand(),
			commands.DBCommand(),
			commands.ConsoleCommand(),
		},
	}

	if err := app.RunContext(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
