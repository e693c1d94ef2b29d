// Package openai implements the assistant's model, embedding and speech calls
// on the OpenAI API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/lewisedginton/organizer/internal/conversation"
)

// ErrEmptyResponse is returned when the API answers without usable content.
var ErrEmptyResponse = errors.New("openai: empty response")

// Config configures a Model. Only APIKey and Model are required.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
	TTSModel       string
	Voice          string
	MaxRetries     int
	HTTPClient     *http.Client
}

// Model wraps an OpenAI client.
type Model struct {
	client openai.Client
	cfg    Config
}

// New creates a new Model.
func New(cfg Config) (*Model, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.TTSModel == "" {
		cfg.TTSModel = "tts-1"
	}
	if cfg.Voice == "" {
		cfg.Voice = "onyx"
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &Model{client: openai.NewClient(opts...), cfg: cfg}, nil
}

// Name returns the default chat model name.
func (m *Model) Name() string {
	return m.cfg.Model
}

// Voice returns the configured speech voice.
func (m *Model) Voice() string {
	return m.cfg.Voice
}

// SpeechModel returns the configured speech model.
func (m *Model) SpeechModel() string {
	return m.cfg.TTSModel
}

// Complete runs one chat completion.
func (m *Model) Complete(ctx context.Context, req conversation.Request) (conversation.Completion, error) {
	params := toParams(req, m.cfg.Model)

	completion, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return conversation.Completion{}, fmt.Errorf("openai API error: %w", err)
	}

	out, err := fromCompletion(completion)
	if err != nil {
		return conversation.Completion{}, fmt.Errorf("failed to transform response: %w", err)
	}
	return out, nil
}

// Embed returns the embedding vector for text.
func (m *Model) Embed(ctx context.Context, text string) ([]float64, error) {
	res, err := m.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(m.cfg.EmbeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings error: %w", err)
	}
	if len(res.Data) == 0 || len(res.Data[0].Embedding) == 0 {
		return nil, ErrEmptyResponse
	}
	return res.Data[0].Embedding, nil
}

// Synthesize converts text to MP3 audio.
func (m *Model) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text is required")
	}

	resp, err := m.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(m.cfg.TTSModel),
		Voice:          openai.AudioSpeechNewParamsVoice(m.cfg.Voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech error: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, ErrEmptyResponse
	}
	return audio, nil
}
