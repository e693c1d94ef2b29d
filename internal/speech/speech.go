// Package speech turns reply text into spoken audio, caching synthesized clips.
package speech

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/lewisedginton/organizer/internal/storage"
	"github.com/lewisedginton/organizer/pkg/logger"
)

// ErrEmptyText is returned when there is nothing left to say after cleanup.
var ErrEmptyText = errors.New("text is required")

var markdown = strings.NewReplacer("*", "", "_", "", "`", "", "#", "")

// StripMarkdown removes emphasis and heading marks that would otherwise be
// read aloud.
func StripMarkdown(text string) string {
	return strings.TrimSpace(markdown.Replace(text))
}

// Synthesizer renders text as MP3 audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Config holds the Service's collaborators. Cache is optional.
type Config struct {
	Synthesizer Synthesizer
	Cache       storage.BlobStore
	Logger      logger.Logger
	Model       string
	Voice       string
}

// Service synthesizes speech through an optional blob cache.
type Service struct {
	synth Synthesizer
	cache storage.BlobStore
	log   logger.Logger
	model string
	voice string
}

// New creates a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Synthesizer == nil {
		return nil, errors.New("synthesizer is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{
		synth: cfg.Synthesizer,
		cache: cfg.Cache,
		log:   cfg.Logger,
		model: cfg.Model,
		voice: cfg.Voice,
	}, nil
}

// CacheKey identifies a clip by model, voice and text.
func CacheKey(model, voice, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + voice + "\x00" + text))
	return hex.EncodeToString(sum[:]) + ".mp3"
}

// Synthesize returns MP3 audio for text. Cache failures are logged and
// bypassed.
func (s *Service) Synthesize(ctx context.Context, text string) ([]byte, error) {
	text = StripMarkdown(text)
	if text == "" {
		return nil, ErrEmptyText
	}

	key := CacheKey(s.model, s.voice, text)
	if s.cache != nil {
		audio, err := s.cache.Get(ctx, key)
		switch {
		case err == nil && len(audio) > 0:
			s.log.Debug("Speech cache hit", logger.StringField("key", key))
			return audio, nil
		case err != nil && !errors.Is(err, storage.ErrNotFound):
			s.log.Warn("Speech cache read failed", logger.ErrorField(err))
		}
	}

	audio, err := s.synth.Synthesize(ctx, text)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Put(ctx, key, audio); err != nil {
			s.log.Warn("Speech cache write failed", logger.ErrorField(err))
		}
	}
	return audio, nil
}
