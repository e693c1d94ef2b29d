// Package tools is the assistant's closed tool registry. Every tool is a
// typed Invocation that knows how to run itself against the Services ports.
package tools

import (
	"context"
	"errors"
	"time"

	"github.com/lewisedginton/organizer/internal/conversation"
)

var (
	// ErrCredentialExpired marks a 401 from a delegated-credential service.
	ErrCredentialExpired = errors.New("credential expired")
	ErrUnknownTool       = errors.New("unknown tool")
	ErrInvalidArguments  = errors.New("invalid tool arguments")
	// ErrServiceNotConfigured and ErrDeliveryRejected are wrapped by adapters
	// that relay through optional external services.
	ErrServiceNotConfigured = errors.New("service not configured")
	ErrDeliveryRejected     = errors.New("delivery rejected")
	errServiceUnavailable   = errors.New("service unavailable for this request")
)

// Event is a calendar entry. Start is an RFC 3339 timestamp or an all-day date.
type Event struct {
	ID      string `json:"-"`
	Summary string `json:"summary"`
	Start   string `json:"start"`
}

// EventQuery selects events starting in [From, Until). A zero Until or Max is unbounded.
type EventQuery struct {
	From  time.Time
	Until time.Time
	Max   int
}

// NewEvent is the input of Calendar.CreateEvent.
type NewEvent struct {
	Summary     string
	Description string
	Start       string
	End         string
}

type Calendar interface {
	ListEvents(ctx context.Context, q EventQuery) ([]Event, error)
	// CreateEvent returns the event's web link.
	CreateEvent(ctx context.Context, e NewEvent) (string, error)
}

// Email is an outgoing plain-text message.
type Email struct {
	To      string
	Subject string
	Body    string
}

// MailSummary describes one inbox message.
type MailSummary struct {
	From    string `json:"from"`
	Subject string `json:"subject"`
	Snippet string `json:"snippet"`
}

type Mail interface {
	Send(ctx context.Context, e Email) error
	Recent(ctx context.Context, max int) ([]MailSummary, error)
}

// Contact is the input of Contacts.Create.
type Contact struct {
	GivenName   string
	FamilyName  string
	PhoneNumber string
	Email       string
}

type Contacts interface {
	// Create returns the new contact's resource name.
	Create(ctx context.Context, c Contact) (string, error)
}

// Task is an entry of the default task list.
type Task struct {
	Title  string `json:"title"`
	Status string `json:"status"`
}

// TaskCompleted is the status Google Tasks reports for done tasks.
const TaskCompleted = "completed"

type Tasks interface {
	Create(ctx context.Context, title, notes string) (Task, error)
	// List returns up to max tasks; max <= 0 means the service default.
	List(ctx context.Context, max int) ([]Task, error)
}

// Document identifies a created document.
type Document struct {
	ID   string
	Name string
}

type Docs interface {
	Create(ctx context.Context, title, content string) (Document, error)
}

// WhatsApp is a message relayed to a contact.
type WhatsApp struct {
	ContactName string
	PhoneNumber string
	Message     string
}

type Messenger interface {
	SendWhatsApp(ctx context.Context, m WhatsApp) error
}

// Services are the request-scoped ports a tool runs against. Nil ports are
// reported as tool failures.
type Services struct {
	Calendar  Calendar
	Mail      Mail
	Contacts  Contacts
	Tasks     Tasks
	Docs      Docs
	Messenger Messenger

	Now          func() time.Time
	StatusWindow time.Duration
}

func (s Services) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Provider builds credential-bound services for one request.
type Provider interface {
	Services(ctx context.Context, creds conversation.Credentials) (Services, error)
}
