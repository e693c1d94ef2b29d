package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	appconfig "github.com/lewisedginton/organizer/internal/config"
	"github.com/lewisedginton/organizer/pkg/config"
	"github.com/lewisedginton/organizer/pkg/logger"
)

// getLogger retrieves the logger from the CLI context metadata
func getLogger(ctx *cli.Context) logger.Logger {
	if ctx.App.Metadata != nil {
		if log, ok := ctx.App.Metadata["logger"].(logger.Logger); ok {
			return log
		}
	}

	return logger.NewLogger(logger.Config{
		Level:   logger.InfoLevel,
		Format:  "json",
		Service: "organizer",
	})
}

// loadConfig reads the application config from --config-file, if given,
// overlaid with environment variables.
func loadConfig(ctx *cli.Context) (*appconfig.AppConfig, error) {
	cfg := &appconfig.AppConfig{}
	if err := config.GetConfig(cfg, ctx.String("config-file"), false); err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}
