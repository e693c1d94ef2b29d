// Package config defines the assistant's application configuration.
package config

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/hashicorp/go-multierror"
	pkgconfig "github.com/lewisedginton/organizer/pkg/config"
	"github.com/lewisedginton/organizer/pkg/logger"
)

// AppConfig holds all application configuration
type AppConfig struct {
	pkgconfig.CommonConfig `yaml:",inline"`

	HTTP      pkgconfig.HTTPServerConfig `yaml:"http"`
	Database  pkgconfig.DatabaseConfig   `yaml:"database"`
	Metrics   pkgconfig.MetricsConfig    `yaml:"metrics"`
	OpenAI    OpenAIConfig               `yaml:"openai"`
	Assistant AssistantConfig            `yaml:"assistant"`
	Messaging MessagingConfig            `yaml:"messaging"`
	Speech    SpeechConfig               `yaml:"speech"`
	Security  SecurityConfig             `yaml:"security"`
}

// OpenAIConfig configures every model call: both turn passes, embeddings,
// the proactive opening line and speech synthesis.
type OpenAIConfig struct {
	APIKey         string        `env:"OPENAI_API_KEY" yaml:"api_key" required:"true"`
	APIBaseURL     string        `env:"OPENAI_API_URL" yaml:"api_base_url" default:"https://api.openai.com/v1"`
	Model          string        `env:"OPENAI_MODEL" yaml:"model" default:"gpt-4o"`
	AlertModel     string        `env:"OPENAI_ALERT_MODEL" yaml:"alert_model" default:"gpt-4o-mini"`
	EmbeddingModel string        `env:"OPENAI_EMBEDDING_MODEL" yaml:"embedding_model" default:"text-embedding-3-small"`
	TTSModel       string        `env:"OPENAI_TTS_MODEL" yaml:"tts_model" default:"tts-1"`
	Voice          string        `env:"OPENAI_VOICE" yaml:"voice" default:"onyx"`
	Temperature    float64       `env:"OPENAI_TEMPERATURE" yaml:"temperature" default:"0.7"`
	MaxTokens      int           `env:"OPENAI_MAX_TOKENS" yaml:"max_tokens" default:"300"`
	PassTimeout    time.Duration `env:"OPENAI_PASS_TIMEOUT" yaml:"pass_timeout" default:"30s"`
	MaxRetries     int           `env:"OPENAI_MAX_RETRIES" yaml:"max_retries" default:"2"`
}

// AssistantConfig holds the turn and memory tuning knobs.
type AssistantConfig struct {
	Timezone            string        `env:"ASSISTANT_TIMEZONE" yaml:"timezone" default:"America/Sao_Paulo"`
	HistoryWindow       int           `env:"ASSISTANT_HISTORY_WINDOW" yaml:"history_window" default:"20"`
	MemoryTopK          int           `env:"ASSISTANT_MEMORY_TOP_K" yaml:"memory_top_k" default:"5"`
	MemoryMinSimilarity float64       `env:"ASSISTANT_MEMORY_MIN_SIMILARITY" yaml:"memory_min_similarity" default:"0.5"`
	ProactiveLookahead  time.Duration `env:"ASSISTANT_PROACTIVE_LOOKAHEAD" yaml:"proactive_lookahead" default:"20m"`
	StatusWindow        time.Duration `env:"ASSISTANT_STATUS_WINDOW" yaml:"status_window" default:"4h"`
	ToolTimeout         time.Duration `env:"ASSISTANT_TOOL_TIMEOUT" yaml:"tool_timeout" default:"15s"`
}

// Location resolves Timezone, falling back to UTC when it is unknown.
func (a AssistantConfig) Location() *time.Location {
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// MessagingConfig points at the n8n workflow that relays WhatsApp messages.
type MessagingConfig struct {
	WhatsAppWebhookURL string        `env:"N8N_WHATSAPP_WEBHOOK_URL" yaml:"whatsapp_webhook_url"`
	Timeout            time.Duration `env:"N8N_TIMEOUT" yaml:"timeout" default:"10s"`
}

// Speech cache backends.
const (
	SpeechCacheNone  = "none"
	SpeechCacheLocal = "local"
	SpeechCacheS3    = "s3"
)

// SpeechConfig selects where synthesized audio is cached.
type SpeechConfig struct {
	CacheBackend string `env:"SPEECH_CACHE_BACKEND" yaml:"cache_backend" default:"none"`
	CacheDir     string `env:"SPEECH_CACHE_DIR" yaml:"cache_dir" default:"./data/speech"`
	S3Bucket     string `env:"SPEECH_CACHE_S3_BUCKET" yaml:"s3_bucket"`
	S3Prefix     string `env:"SPEECH_CACHE_S3_PREFIX" yaml:"s3_prefix" default:"speech/"`
	S3Region     string `env:"SPEECH_CACHE_S3_REGION" yaml:"s3_region"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" yaml:"cors_allowed_origins" default:"http://localhost:3000,http://localhost:8080"`
	MaxRequestSize     int64    `env:"MAX_REQUEST_SIZE" yaml:"max_request_size" default:"1048576"`
}

// Validate validates the configuration and returns an error if invalid
func (c *AppConfig) Validate() error {
	var result error

	if err := c.CommonConfig.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := c.HTTP.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := c.Metrics.Validate(); err != nil {
		result = multierror.Append(result, err)
	}

	if c.OpenAI.PassTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("openai pass_timeout must be greater than 0"))
	}
	if c.OpenAI.MaxRetries < 0 {
		result = multierror.Append(result, fmt.Errorf("openai max_retries cannot be negative"))
	}
	if c.OpenAI.MaxTokens <= 0 {
		result = multierror.Append(result, fmt.Errorf("openai max_tokens must be greater than 0"))
	}
	if c.OpenAI.Temperature < 0 || c.OpenAI.Temperature > 2 {
		result = multierror.Append(result, fmt.Errorf("openai temperature must be between 0 and 2, got %v", c.OpenAI.Temperature))
	}

	a := c.Assistant
	if _, err := time.LoadLocation(a.Timezone); err != nil {
		result = multierror.Append(result, fmt.Errorf("assistant timezone %q: %w", a.Timezone, err))
	}
	if a.HistoryWindow <= 0 {
		result = multierror.Append(result, fmt.Errorf("history_window must be greater than 0"))
	}
	if a.MemoryTopK <= 0 || a.MemoryTopK > 5 {
		result = multierror.Append(result, fmt.Errorf("memory_top_k must be between 1 and 5, got %d", a.MemoryTopK))
	}
	if a.MemoryMinSimilarity < 0.5 || a.MemoryMinSimilarity > 1 {
		result = multierror.Append(result, fmt.Errorf("memory_min_similarity must be between 0.5 and 1, got %v", a.MemoryMinSimilarity))
	}
	if a.ProactiveLookahead <= 0 || a.StatusWindow <= 0 || a.ToolTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("proactive_lookahead, status_window and tool_timeout must be greater than 0"))
	}

	if c.Messaging.Timeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("n8n timeout must be greater than 0"))
	}

	switch c.Speech.CacheBackend {
	case SpeechCacheNone, SpeechCacheLocal:
	case SpeechCacheS3:
		if c.Speech.S3Bucket == "" {
			result = multierror.Append(result, fmt.Errorf("speech cache s3_bucket is required for the s3 backend"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("speech cache_backend must be one of [none, local, s3], got %q", c.Speech.CacheBackend))
	}

	if c.Security.MaxRequestSize <= 0 {
		result = multierror.Append(result, fmt.Errorf("max_request_size must be greater than 0"))
	}

	return result
}

// GetLogLevel returns the parsed logger level
func (c *AppConfig) GetLogLevel() logger.Level {
	return logger.ParseLevel(c.LogLevel)
}

// LogConfig logs the current configuration (without sensitive data)
func (c *AppConfig) LogConfig(log logger.Logger) {
	log.Info("Application configuration loaded",
		logger.StringField("service_name", c.ServiceName),
		logger.StringField("environment", c.Environment),
		logger.IntField("http_port", c.HTTP.Port),
		logger.StringField("model", c.OpenAI.Model),
		logger.StringField("alert_model", c.OpenAI.AlertModel),
		logger.StringField("embedding_model", c.OpenAI.EmbeddingModel),
		logger.DurationField("pass_timeout", c.OpenAI.PassTimeout),
		logger.StringField("timezone", c.Assistant.Timezone),
		logger.IntField("history_window", c.Assistant.HistoryWindow),
		logger.BoolField("whatsapp_configured", c.Messaging.WhatsAppWebhookURL != ""),
		logger.StringField("speech_cache", c.Speech.CacheBackend),
		logger.BoolField("database_url_set", c.Database.URL != ""),
		logger.BoolField("metrics_exposed", c.Metrics.ExposeMetrics),
	)
}
