// Package server exposes the assistant over HTTP: the turn, proactive, speech
// and debug endpoints plus the websocket voice session.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lewisedginton/organizer/internal/conversation"
	"github.com/lewisedginton/organizer/internal/orchestrator"
	"github.com/lewisedginton/organizer/internal/proactive"
	"github.com/lewisedginton/organizer/pkg/config"
	"github.com/lewisedginton/organizer/pkg/health"
	"github.com/lewisedginton/organizer/pkg/httpmiddleware"
	"github.com/lewisedginton/organizer/pkg/logger"
	"github.com/lewisedginton/organizer/pkg/metrics"
)

// TurnHandler runs one conversational turn.
type TurnHandler interface {
	HandleTurn(ctx context.Context, req orchestrator.TurnRequest) (conversation.Reply, error)
}

// Poller runs a proactive scan.
type Poller interface {
	Scan(ctx context.Context, owner string, creds conversation.Credentials) proactive.Result
}

// Synthesizer turns text into MP3 audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Config holds the server's collaborators.
type Config struct {
	Turns       TurnHandler
	Poller      Poller
	Speech      Synthesizer
	Logger      logger.Logger
	Metrics     *metrics.Metrics
	Health      *health.HealthChecker
	HTTP        config.HTTPServerConfig
	Middleware  httpmiddleware.Config
	Environment string
	Voice       VoiceConfig
}

// Server is the assistant's HTTP API.
type Server struct {
	turns       TurnHandler
	poller      Poller
	speech      Synthesizer
	log         logger.Logger
	metrics     *metrics.Metrics
	health      *health.HealthChecker
	middleware  httpmiddleware.Config
	environment string
	voice       VoiceConfig
	server      *http.Server
	shutdown    time.Duration
}

// New validates cfg and builds the server. It does not start listening.
func New(cfg Config) (*Server, error) {
	if cfg.Turns == nil {
		return nil, errors.New("turn handler is required")
	}
	if cfg.Poller == nil {
		return nil, errors.New("poller is required")
	}
	if cfg.Speech == nil {
		return nil, errors.New("speech synthesizer is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.Health == nil {
		cfg.Health = health.New(health.WithLogger(cfg.Logger))
	}

	s := &Server{
		turns:       cfg.Turns,
		poller:      cfg.Poller,
		speech:      cfg.Speech,
		log:         cfg.Logger,
		metrics:     cfg.Metrics,
		health:      cfg.Health,
		middleware:  cfg.Middleware,
		environment: cfg.Environment,
		voice:       cfg.Voice,
		shutdown:    cfg.HTTP.ShutdownTimeout,
	}
	if s.shutdown <= 0 {
		s.shutdown = 30 * time.Second
	}
	s.middleware.Logger = cfg.Logger
	if cfg.Metrics != nil {
		s.middleware.Metrics = cfg.Metrics.HTTPMiddleware()
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
		MaxHeaderBytes:    cfg.HTTP.MaxHeaderBytes,
	}
	return s, nil
}

// Router builds the route table. Websocket routes sit outside the buffered
// group so they are not subject to the request timeout.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	httpmiddleware.ApplyToRouter(r, s.middleware)

	r.Get("/health/live", s.health.LivenessHandler())
	r.Get("/health/ready", s.health.ReadinessHandler())
	r.Get("/ws/voice", s.handleVoice)

	// /api/chat has no request timeout; the orchestrator bounds each model
	// pass and tool call.
	untimed := s.middleware
	untimed.EnableTimeout = false
	r.Group(func(r chi.Router) {
		r.Use(httpmiddleware.Buffered(untimed)...)
		r.Use(recoverTurn(s.log))
		r.Post("/api/chat", s.handleChat)
	})

	r.Group(func(r chi.Router) {
		r.Use(httpmiddleware.Buffered(s.middleware)...)
		r.Use(recoverTurn(s.log))
		r.Get("/api/proactive", s.handleProactive)
		r.Post("/api/tts", s.handleTTS)
		r.Get("/api/session-debug", s.handleSessionDebug)
	})

	return r
}

// Listen starts the HTTP server and returns channels for error handling
func (s *Server) Listen() (chan error, func(), func()) {
	errChan := make(chan error, 1)

	go func() {
		s.log.Info("Starting HTTP server", logger.StringField("addr", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	closer := func() {
		s.log.Info("Forcefully closing HTTP server")
		if err := s.server.Close(); err != nil {
			s.log.Error("Error during forced shutdown", logger.ErrorField(err))
		}
	}

	gracefulCloser := func() {
		s.log.Info("Gracefully closing HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), s.shutdown)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			s.log.Error("Error during graceful shutdown", logger.ErrorField(err))
		}
	}

	return errChan, closer, gracefulCloser
}
