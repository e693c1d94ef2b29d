package cli

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	appconfig "github.com/lewisedginton/organizer/internal/config"
	"github.com/lewisedginton/organizer/internal/google"
	"github.com/lewisedginton/organizer/internal/history"
	"github.com/lewisedginton/organizer/internal/messaging"
	"github.com/lewisedginton/organizer/internal/models/openai"
	"github.com/lewisedginton/organizer/internal/orchestrator"
	"github.com/lewisedginton/organizer/internal/persistence"
	"github.com/lewisedginton/organizer/internal/proactive"
	"github.com/lewisedginton/organizer/internal/retrieval"
	"github.com/lewisedginton/organizer/internal/speech"
	"github.com/lewisedginton/organizer/internal/storage"
	"github.com/lewisedginton/organizer/internal/tools"
	"github.com/lewisedginton/organizer/pkg/health"
	"github.com/lewisedginton/organizer/pkg/logger"
	"github.com/lewisedginton/organizer/pkg/metrics"
)

// application holds the wired components shared by the server and console
// commands.
type application struct {
	cfg          *appconfig.AppConfig
	log          logger.Logger
	pool         *pgxpool.Pool
	metrics      *metrics.Metrics
	health       *health.HealthChecker
	orchestrator *orchestrator.Orchestrator
	scanner      *proactive.Scanner
	speech       *speech.Service
}

//nolint:revive // cognitive-complexity: wiring is a flat sequence of constructors
func newApplication(ctx context.Context, cfg *appconfig.AppConfig, log logger.Logger) (*application, error) {
	app := &application{
		cfg:     cfg,
		log:     log,
		metrics: metrics.NewMetrics(cfg.Metrics.EnableHTTPMetrics, log),
		health:  health.New(health.WithLogger(log)),
	}

	pool, err := persistence.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	app.pool = pool
	app.health.AddReadinessCheck(health.NewCheckFunc("database", pool.Ping))

	model, err := openai.New(openai.Config{
		APIKey:         cfg.OpenAI.APIKey,
		BaseURL:        cfg.OpenAI.APIBaseURL,
		Model:          cfg.OpenAI.Model,
		EmbeddingModel: cfg.OpenAI.EmbeddingModel,
		TTSModel:       cfg.OpenAI.TTSModel,
		Voice:          cfg.OpenAI.Voice,
		MaxRetries:     cfg.OpenAI.MaxRetries,
	})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("create model: %w", err)
	}

	blobs, err := newBlobStore(ctx, cfg.Speech)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("create blob store: %w", err)
	}

	provider := google.NewProvider(google.ProviderConfig{Logger: log})
	relay := messaging.NewWhatsAppRelay(messaging.Config{
		WebhookURL: cfg.Messaging.WhatsAppWebhookURL,
		Timeout:    cfg.Messaging.Timeout,
		Logger:     log,
	})

	executor, err := tools.NewExecutor(tools.ExecutorConfig{
		Logger:       log,
		Metrics:      app.metrics,
		Messenger:    relay,
		Timeout:      cfg.Assistant.ToolTimeout,
		StatusWindow: cfg.Assistant.StatusWindow,
	})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("create tool executor: %w", err)
	}

	merger, err := history.New(history.Config{
		Store:  persistence.NewHistoryRepository(pool, log),
		Logger: log,
		Window: cfg.Assistant.HistoryWindow,
	})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("create history merger: %w", err)
	}

	retriever, err := retrieval.New(retrieval.Config{
		Embedder:      model,
		Store:         persistence.NewMemoryRepository(pool, log),
		Logger:        log,
		TopK:          cfg.Assistant.MemoryTopK,
		MinSimilarity: cfg.Assistant.MemoryMinSimilarity,
	})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("create retriever: %w", err)
	}

	persona, err := orchestrator.LoadPersona(ctx, blobs)
	if err != nil {
		log.Warn("Failed to load persona override, using default", logger.ErrorField(err))
		persona = orchestrator.DefaultPersona
	}

	loc := cfg.Assistant.Location()
	app.orchestrator, err = orchestrator.New(orchestrator.Config{
		Model:       model,
		Tools:       provider,
		Executor:    executor,
		History:     merger,
		Retriever:   retriever,
		Logger:      log,
		Metrics:     app.metrics,
		Persona:     persona,
		Location:    loc,
		Temperature: cfg.OpenAI.Temperature,
		MaxTokens:   cfg.OpenAI.MaxTokens,
		PassTimeout: cfg.OpenAI.PassTimeout,
	})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("create orchestrator: %w", err)
	}

	app.scanner, err = proactive.New(proactive.Config{
		Tools:     provider,
		Alerts:    persistence.NewAlertRepository(pool, log),
		Lines:     proactive.NewModelLines(model, cfg.OpenAI.AlertModel, loc),
		Logger:    log,
		Metrics:   app.metrics,
		Lookahead: cfg.Assistant.ProactiveLookahead,
	})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("create proactive scanner: %w", err)
	}

	var cache storage.BlobStore
	if blobs != nil {
		cache = blobs
		if cfg.Speech.CacheBackend == appconfig.SpeechCacheS3 {
			cache = storage.Prefixed(blobs, cfg.Speech.S3Prefix)
		}
	}
	app.speech, err = speech.New(speech.Config{
		Synthesizer: model,
		Cache:       cache,
		Logger:      log,
		Model:       model.SpeechModel(),
		Voice:       model.Voice(),
	})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("create speech service: %w", err)
	}

	return app, nil
}

// newBlobStore returns the configured blob store, or nil when caching is off.
func newBlobStore(ctx context.Context, cfg appconfig.SpeechConfig) (storage.BlobStore, error) {
	switch cfg.CacheBackend {
	case appconfig.SpeechCacheLocal:
		return storage.New(storage.Config{Backend: storage.BackendLocal, BaseDir: cfg.CacheDir})
	case appconfig.SpeechCacheS3:
		client, err := storage.NewS3Client(ctx, cfg.S3Region)
		if err != nil {
			return nil, err
		}
		return storage.New(storage.Config{Backend: storage.BackendS3, Bucket: cfg.S3Bucket, Client: client})
	default:
		return nil, nil
	}
}

// Close waits for background memory writes and releases the database pool.
func (a *application) Close() {
	if a.orchestrator != nil {
		a.orchestrator.Wait()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
