package tools

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/lewisedginton/organizer/pkg/logger"
)

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newTestLogger() logger.Logger {
	return logger.NewLogger(logger.Config{Level: logger.DebugLevel, Output: io.Discard})
}

type fakeCalendar struct {
	mu       sync.Mutex
	events   []Event
	err      error
	queries  []EventQuery
	created  []NewEvent
	link     string
	blockFor time.Duration
}

func (f *fakeCalendar) ListEvents(ctx context.Context, q EventQuery) ([]Event, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if f.blockFor > 0 {
		select {
		case <-time.After(f.blockFor):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.events, f.err
}

func (f *fakeCalendar) CreateEvent(_ context.Context, e NewEvent) (string, error) {
	f.created = append(f.created, e)
	return f.link, f.err
}

type fakeMail struct {
	sent   []Email
	recent []MailSummary
	gotMax int
	err    error
}

func (f *fakeMail) Send(_ context.Context, e Email) error {
	f.sent = append(f.sent, e)
	return f.err
}

func (f *fakeMail) Recent(_ context.Context, max int) ([]MailSummary, error) {
	f.gotMax = max
	return f.recent, f.err
}

type fakeContacts struct {
	created []Contact
	err     error
}

func (f *fakeContacts) Create(_ context.Context, c Contact) (string, error) {
	f.created = append(f.created, c)
	return "people/c123", f.err
}

type fakeTasks struct {
	tasks  []Task
	gotMax int
	err    error
}

func (f *fakeTasks) Create(_ context.Context, title, _ string) (Task, error) {
	return Task{Title: title, Status: "needsAction"}, f.err
}

func (f *fakeTasks) List(_ context.Context, max int) ([]Task, error) {
	f.gotMax = max
	return f.tasks, f.err
}

type fakeDocs struct{ err error }

func (f *fakeDocs) Create(_ context.Context, title, _ string) (Document, error) {
	return Document{ID: "doc-1", Name: title}, f.err
}

type fakeMessenger struct {
	sent []WhatsApp
	err  error
}

func (f *fakeMessenger) SendWhatsApp(_ context.Context, m WhatsApp) error {
	f.sent = append(f.sent, m)
	return f.err
}
