package proactive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lewisedginton/organizer/internal/conversation"
	"github.com/lewisedginton/organizer/internal/tools"
)

// Completer runs one model call.
type Completer interface {
	Complete(ctx context.Context, req conversation.Request) (conversation.Completion, error)
}

// ModelLines writes opening lines with a small, fast model.
type ModelLines struct {
	model    Completer
	name     string
	location *time.Location
}

// NewModelLines creates a LineWriter. modelName selects the model used for
// alerts; loc renders the event time.
func NewModelLines(model Completer, modelName string, loc *time.Location) *ModelLines {
	if loc == nil {
		loc = time.UTC
	}
	return &ModelLines{model: model, name: modelName, location: loc}
}

// OpeningLine asks the model for a short in-character interruption.
func (m *ModelLines) OpeningLine(ctx context.Context, event tools.Event) (string, error) {
	c, err := m.model.Complete(ctx, conversation.Request{
		Model:       m.name,
		Messages:    []conversation.Message{conversation.SystemMessage(m.prompt(event))},
		Temperature: 0.8,
	})
	if err != nil {
		return "", err
	}
	line := strings.Trim(strings.TrimSpace(c.Content), `"`)
	if line == "" {
		return "", errors.New("empty opening line")
	}
	return line, nil
}

func (m *ModelLines) prompt(event tools.Event) string {
	return fmt.Sprintf(`Você é J.A.R.V.I.S., o assistente executivo do Senhor.
O Senhor tem um compromisso prestes a começar: "%s" às %s.
Escreva UMA frase de abertura curta (no máximo 15 palavras), leal e levemente sarcástica, em português, para interromper o silêncio e avisá-lo.
Chame-o de "Senhor". Responda apenas com a frase.`, event.Summary, startClock(event.Start, m.location))
}

// startClock renders an event start as HH:MM in loc. All-day and unparsable
// starts are returned unchanged.
func startClock(start string, loc *time.Location) string {
	t, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return start
	}
	return t.In(loc).Format("15:04")
}
