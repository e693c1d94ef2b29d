package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	appconfig "github.com/lewisedginton/organizer/internal/config"
	"github.com/lewisedginton/organizer/internal/server"
	"github.com/lewisedginton/organizer/pkg/httpmiddleware"
	"github.com/lewisedginton/organizer/pkg/logger"
)

// ServerCommand returns a command for server operations
func ServerCommand() *cli.Command {
	return &cli.Command{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "Server operations",
		Subcommands: []*cli.Command{
			{
				Name:   "start",
				Usage:  "Start the assistant API and voice endpoint",
				Action: serverStartAction,
			},
		},
	}
}

func serverStartAction(ctx *cli.Context) error {
	log := getLogger(ctx)

	cfg, err := loadConfig(ctx)
	if err != nil {
		log.Error("Failed to load config", logger.ErrorField(err))
		return err
	}
	cfg.LogConfig(log)

	sigCtx, stop := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(sigCtx, cfg, log)
	if err != nil {
		log.Error("Failed to initialise application", logger.ErrorField(err))
		return err
	}
	defer app.Close()

	srv, err := server.New(server.Config{
		Turns:       app.orchestrator,
		Poller:      app.scanner,
		Speech:      app.speech,
		Logger:      log,
		Metrics:     app.metrics,
		Health:      app.health,
		HTTP:        cfg.HTTP,
		Middleware:  middlewareConfig(cfg),
		Environment: cfg.Environment,
		Voice:       server.VoiceConfig{MaxMessageSize: cfg.Security.MaxRequestSize},
	})
	if err != nil {
		log.Error("Failed to create server", logger.ErrorField(err))
		return fmt.Errorf("create server: %w", err)
	}

	errChan, closer, gracefulCloser := srv.Listen()
	log.Info("HTTP service started successfully", logger.IntField("http_port", cfg.HTTP.Port))

	g, gctx := errgroup.WithContext(sigCtx)
	if cfg.Metrics.ExposeMetrics {
		g.Go(func() error { return app.metrics.Listen(gctx, cfg.Metrics.Port) })
	}
	g.Go(func() error {
		select {
		case err := <-errChan:
			closer()
			return fmt.Errorf("server error: %w", err)
		case <-gctx.Done():
			gracefulCloser()
			return nil
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Fatal server error occurred", logger.ErrorField(err))
		return err
	}
	log.Info("Server exited gracefully")
	return nil
}

func middlewareConfig(cfg *appconfig.AppConfig) httpmiddleware.Config {
	mw := httpmiddleware.DefaultConfig()
	mw.EnableLogging = true
	mw.MaxRequestSize = cfg.Security.MaxRequestSize
	if len(cfg.Security.CORSAllowedOrigins) > 0 {
		mw.CORS.AllowedOrigins = cfg.Security.CORSAllowedOrigins
	}
	return mw
}
