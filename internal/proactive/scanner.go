// Package proactive looks for imminent calendar events and produces at most
// one unsolicited alert per event.
package proactive

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/lewisedginton/organizer/internal/conversation"
	"github.com/lewisedginton/organizer/internal/tools"
	"github.com/lewisedginton/organizer/pkg/logger"
	"github.com/lewisedginton/organizer/pkg/metrics"
)

const (
	// DefaultLookahead is how far ahead the calendar is scanned.
	DefaultLookahead = 20 * time.Minute
	// AlertTypeCalendar tags alerts raised for calendar events.
	AlertTypeCalendar = "calendar"
)

// Result is what a poll reports.
type Result struct {
	HasAlert     bool   `json:"hasAlert"`
	OpeningLine  string `json:"openingLine,omitempty"`
	EventSummary string `json:"eventSummary,omitempty"`
}

// AlertStore records raised alerts. Claim atomically inserts the record and
// reports false when one already existed for (owner, eventID).
type AlertStore interface {
	Claim(ctx context.Context, owner, eventID, alertType string) (bool, error)
}

// LineWriter writes the spoken opening line for an alert.
type LineWriter interface {
	OpeningLine(ctx context.Context, event tools.Event) (string, error)
}

// Config holds the Scanner's collaborators.
type Config struct {
	Tools     tools.Provider
	Alerts    AlertStore
	Lines     LineWriter
	Logger    logger.Logger
	Metrics   *metrics.Metrics
	Lookahead time.Duration
	Now       func() time.Time
}

// Scanner runs proactive polls.
type Scanner struct {
	provider  tools.Provider
	alerts    AlertStore
	lines     LineWriter
	log       logger.Logger
	metrics   *metrics.Metrics
	lookahead time.Duration
	now       func() time.Time
}

// New creates a Scanner.
func New(cfg Config) (*Scanner, error) {
	if cfg.Tools == nil {
		return nil, errors.New("tool provider is required")
	}
	if cfg.Alerts == nil {
		return nil, errors.New("alert store is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = DefaultLookahead
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scanner{
		provider:  cfg.Tools,
		alerts:    cfg.Alerts,
		lines:     cfg.Lines,
		log:       cfg.Logger,
		metrics:   cfg.Metrics,
		lookahead: cfg.Lookahead,
		now:       cfg.Now,
	}, nil
}

// Scan checks owner's calendar for an event starting within the lookahead.
// Every failure reports no alert.
func (s *Scanner) Scan(ctx context.Context, owner string, creds conversation.Credentials) Result {
	if owner == "" || !creds.Valid() {
		return Result{}
	}
	log := s.log.WithFields(logger.OwnerField(owner))

	services, err := s.provider.Services(ctx, creds)
	if err != nil || services.Calendar == nil {
		log.Warn("Proactive scan unavailable", logger.ErrorField(err))
		s.metrics.RecordProactivePoll(metrics.OutcomeError)
		return Result{}
	}

	now := s.now()
	events, err := services.Calendar.ListEvents(ctx, tools.EventQuery{From: now, Until: now.Add(s.lookahead)})
	if err != nil {
		log.Warn("Proactive calendar scan failed", logger.ErrorField(err))
		s.metrics.RecordProactivePoll(metrics.OutcomeError)
		return Result{}
	}
	if len(events) == 0 {
		s.metrics.RecordProactivePoll(metrics.OutcomeNoAlert)
		return Result{}
	}

	event := events[0]
	eventID := EventKey(event)

	claimed, err := s.alerts.Claim(ctx, owner, eventID, AlertTypeCalendar)
	if err != nil {
		log.Warn("Failed to record proactive alert", logger.StringField("event_id", eventID), logger.ErrorField(err))
		s.metrics.RecordProactivePoll(metrics.OutcomeError)
		return Result{}
	}
	if !claimed {
		s.metrics.RecordProactivePoll(metrics.OutcomeDuplicate)
		return Result{}
	}

	line := s.openingLine(ctx, log, event)
	s.metrics.RecordProactivePoll(metrics.OutcomeAlert)
	log.Info("Proactive alert raised", logger.StringField("event_id", eventID))
	return Result{HasAlert: true, OpeningLine: line, EventSummary: event.Summary}
}

func (s *Scanner) openingLine(ctx context.Context, log logger.Logger, event tools.Event) string {
	if s.lines != nil {
		line, err := s.lines.OpeningLine(ctx, event)
		if err != nil {
			log.Warn("Opening line generation failed", logger.ErrorField(err))
		}
		if line = strings.TrimSpace(line); err == nil && line != "" {
			return line
		}
	}
	return FallbackLine(event.Summary)
}

// EventKey identifies an event for deduplication.
func EventKey(e tools.Event) string {
	switch {
	case e.ID != "":
		return e.ID
	case e.Summary != "":
		return e.Summary
	default:
		return "unknown"
	}
}

// FallbackLine is spoken when no opening line could be generated.
func FallbackLine(summary string) string {
	return "Senhor, notei que \"" + summary + "\" começa em breve."
}
