package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Invocation is one decoded tool call. The set of implementations is closed:
// every registry entry decodes into exactly one of the types below.
type Invocation interface {
	Tool() Name
	Run(ctx context.Context, s Services) (string, error)
}

// count accepts JSON numbers such as 5 or 5.0.
type count int

func (c *count) UnmarshalJSON(b []byte) error {
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*c = count(math.Round(f))
	return nil
}

func (c count) or(def int) int {
	if c <= 0 {
		return def
	}
	return int(c)
}

func marshalResult(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// localLayouts are accepted when a timestamp carries no offset.
var localLayouts = []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04:05", "2006-01-02"}

// parseTimestamp reads an RFC 3339 timestamp, or a local one interpreted in loc.
func parseTimestamp(value string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if lt, lerr := time.ParseInLocation(layout, value, loc); lerr == nil {
			return lt, nil
		}
	}
	return time.Time{}, err
}

type ListCalendarEvents struct {
	TimeMin    string `json:"timeMin"`
	MaxResults count  `json:"maxResults"`
}

func (ListCalendarEvents) Tool() Name { return ListCalendarEventsTool }

func (a ListCalendarEvents) Run(ctx context.Context, s Services) (string, error) {
	if s.Calendar == nil {
		return "", errServiceUnavailable
	}
	from := s.now()
	if a.TimeMin != "" {
		t, err := parseTimestamp(a.TimeMin, from.Location())
		if err != nil {
			return "", fmt.Errorf("timeMin must be an ISO 8601 timestamp: %w", err)
		}
		from = t
	}
	events, err := s.Calendar.ListEvents(ctx, EventQuery{From: from, Max: a.MaxResults.or(5)})
	if err != nil {
		return "", err
	}
	if events == nil {
		events = []Event{}
	}
	return marshalResult(events)
}

type CreateCalendarEvent struct {
	Summary       string `json:"summary"`
	Description   string `json:"description"`
	StartDateTime string `json:"startDateTime"`
	EndDateTime   string `json:"endDateTime"`
}

func (CreateCalendarEvent) Tool() Name { return CreateCalendarEventTool }

func (a CreateCalendarEvent) Run(ctx context.Context, s Services) (string, error) {
	if s.Calendar == nil {
		return "", errServiceUnavailable
	}
	link, err := s.Calendar.CreateEvent(ctx, NewEvent{
		Summary:     a.Summary,
		Description: a.Description,
		Start:       a.StartDateTime,
		End:         a.EndDateTime,
	})
	if err != nil {
		return "", err
	}
	return "Evento criado: " + link, nil
}

type AddContact struct {
	GivenName   string `json:"givenName"`
	FamilyName  string `json:"familyName"`
	PhoneNumber string `json:"phoneNumber"`
	Email       string `json:"email"`
}

func (AddContact) Tool() Name { return AddContactTool }

func (a AddContact) Run(ctx context.Context, s Services) (string, error) {
	if s.Contacts == nil {
		return "", errServiceUnavailable
	}
	name, err := s.Contacts.Create(ctx, Contact(a))
	if err != nil {
		return "", err
	}
	return "Contato criado: " + name, nil
}

type SendEmail struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (SendEmail) Tool() Name { return SendEmailTool }

func (a SendEmail) Run(ctx context.Context, s Services) (string, error) {
	if s.Mail == nil {
		return "", errServiceUnavailable
	}
	if err := s.Mail.Send(ctx, Email(a)); err != nil {
		return "", err
	}
	return "E-mail enviado com sucesso.", nil
}

type ListRecentEmails struct {
	MaxResults count `json:"maxResults"`
}

func (ListRecentEmails) Tool() Name { return ListRecentEmailsTool }

func (a ListRecentEmails) Run(ctx context.Context, s Services) (string, error) {
	if s.Mail == nil {
		return "", errServiceUnavailable
	}
	msgs, err := s.Mail.Recent(ctx, a.MaxResults.or(3))
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 {
		return "Nenhum e-mail recente encontrado.", nil
	}
	return marshalResult(msgs)
}

type CreateTask struct {
	Title string `json:"title"`
	Notes string `json:"notes"`
}

func (CreateTask) Tool() Name { return CreateTaskTool }

func (a CreateTask) Run(ctx context.Context, s Services) (string, error) {
	if s.Tasks == nil {
		return "", errServiceUnavailable
	}
	task, err := s.Tasks.Create(ctx, a.Title, a.Notes)
	if err != nil {
		return "", err
	}
	return "Tarefa criada: " + task.Title, nil
}

type ListTasks struct {
	MaxResults count `json:"maxResults"`
}

func (ListTasks) Tool() Name { return ListTasksTool }

func (a ListTasks) Run(ctx context.Context, s Services) (string, error) {
	if s.Tasks == nil {
		return "", errServiceUnavailable
	}
	tasks, err := s.Tasks.List(ctx, a.MaxResults.or(5))
	if err != nil {
		return "", err
	}
	if tasks == nil {
		tasks = []Task{}
	}
	return marshalResult(tasks)
}

type CreateDoc struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (CreateDoc) Tool() Name { return CreateDocTool }

func (a CreateDoc) Run(ctx context.Context, s Services) (string, error) {
	if s.Docs == nil {
		return "", errServiceUnavailable
	}
	doc, err := s.Docs.Create(ctx, a.Title, a.Content)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Documento criado: %s (ID: %s)", doc.Name, doc.ID), nil
}

type GenerateMapsLink struct {
	Destination string `json:"destination"`
	Mode        string `json:"mode"`
}

func (GenerateMapsLink) Tool() Name { return GenerateMapsLinkTool }

func (a GenerateMapsLink) Run(context.Context, Services) (string, error) {
	return "Link do Maps gerado: " + MapsLink(a.Destination, a.Mode), nil
}

// MapsLink builds a Google Maps directions URL. Mode defaults to driving.
func MapsLink(destination, mode string) string {
	if mode == "" {
		mode = "driving"
	}
	return "https://www.google.com/maps/dir/?api=1&destination=" + escapeComponent(destination) +
		"&travelmode=" + escapeComponent(mode)
}

// escapeComponent percent-encodes spaces as %20 rather than '+'.
func escapeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

type CheckProactiveStatus struct{}

func (CheckProactiveStatus) Tool() Name { return CheckProactiveStatusTool }

// Run fetches calendar and tasks concurrently and summarizes what is coming up.
func (CheckProactiveStatus) Run(ctx context.Context, s Services) (string, error) {
	if s.Calendar == nil || s.Tasks == nil {
		return "", errServiceUnavailable
	}
	window := s.StatusWindow
	if window <= 0 {
		window = 4 * time.Hour
	}
	now := s.now()

	var events []Event
	var tasks []Task
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		events, err = s.Calendar.ListEvents(gctx, EventQuery{From: now, Until: now.Add(window)})
		return err
	})
	g.Go(func() error {
		var err error
		tasks, err = s.Tasks.List(gctx, 0)
		return err
	})
	if err := g.Wait(); err != nil {
		return "", err
	}

	eventNames := make([]string, 0, len(events))
	for _, e := range events {
		eventNames = append(eventNames, e.Summary)
	}
	taskNames := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if t.Status != TaskCompleted {
			taskNames = append(taskNames, t.Title)
		}
	}

	return fmt.Sprintf("Próximas %s: Eventos [%s], Tarefas [%s]",
		formatWindow(window), joinOr(eventNames, "Nenhum"), joinOr(taskNames, "Nenhuma")), nil
}

func formatWindow(d time.Duration) string {
	if d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dmin", int(d.Minutes()))
}

func joinOr(items []string, empty string) string {
	if len(items) == 0 {
		return empty
	}
	return strings.Join(items, ", ")
}

type SendWhatsAppMessage struct {
	ContactName string `json:"contactName"`
	PhoneNumber string `json:"phoneNumber"`
	Message     string `json:"message"`
}

func (SendWhatsAppMessage) Tool() Name { return SendWhatsAppMessageTool }

// Run relays the message. A missing relay or a rejected delivery are reported
// as results, not failures, so the assistant can explain them.
func (a SendWhatsAppMessage) Run(ctx context.Context, s Services) (string, error) {
	if s.Messenger == nil {
		return whatsAppNotConfigured, nil
	}
	err := s.Messenger.SendWhatsApp(ctx, WhatsApp(a))
	switch {
	case err == nil:
		return "WhatsApp enviado com sucesso.", nil
	case errors.Is(err, ErrServiceNotConfigured):
		return whatsAppNotConfigured, nil
	case errors.Is(err, ErrDeliveryRejected):
		return "O n8n retornou um erro ao tentar enviar o WhatsApp.", nil
	default:
		return "", err
	}
}

const whatsAppNotConfigured = "Erro: Configuração do n8n (N8N_WHATSAPP_WEBHOOK_URL) não encontrada."
