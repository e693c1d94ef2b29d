package google

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/lewisedginton/organizer/internal/conversation"
	"github.com/lewisedginton/organizer/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	method string
	path   string
	query  string
	body   string
}

type fakeGoogle struct {
	t        *testing.T
	mu       sync.Mutex
	requests []recorded
}

func (f *fakeGoogle) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recorded{r.Method, r.URL.Path, r.URL.RawQuery, string(body)})
	f.mu.Unlock()

	assert.Equal(f.t, "Bearer access-token", r.Header.Get("Authorization"))
	w.Header().Set("Content-Type", "application/json")

	p := r.URL.Path
	switch {
	case strings.HasSuffix(p, "/calendars/primary/events") && r.Method == http.MethodGet:
		fmt.Fprint(w, `{"items":[
			{"id":"e1","summary":"Standup","start":{"dateTime":"2026-03-02T09:30:00Z"}},
			{"id":"e2","summary":"Feriado","start":{"date":"2026-03-03"}}]}`)
	case strings.HasSuffix(p, "/calendars/primary/events"):
		fmt.Fprint(w, `{"id":"e3","htmlLink":"https://calendar.google.com/event?eid=e3"}`)
	case strings.HasSuffix(p, "/messages/send"):
		fmt.Fprint(w, `{"id":"sent-1"}`)
	case strings.HasSuffix(p, "/users/me/messages"):
		fmt.Fprint(w, `{"messages":[{"id":"a"},{"id":"b"}]}`)
	case strings.HasSuffix(p, "/users/me/messages/a"):
		fmt.Fprint(w, `{"id":"a","snippet":"Tudo bem?","payload":{"headers":[{"name":"From","value":"Ana"},{"name":"Subject","value":"Oi"}]}}`)
	case strings.HasSuffix(p, "/users/me/messages/b"):
		fmt.Fprint(w, `{"id":"b","snippet":"Segue anexo","payload":{"headers":[{"name":"subject","value":"Relatório"},{"name":"from","value":"Bruno"}]}}`)
	case strings.HasSuffix(p, "people:createContact"):
		fmt.Fprint(w, `{"resourceName":"people/c42"}`)
	case strings.HasSuffix(p, "/tasks") && r.Method == http.MethodPost:
		fmt.Fprint(w, `{"title":"Comprar café","status":"needsAction"}`)
	case strings.HasSuffix(p, "/tasks"):
		fmt.Fprint(w, `{"items":[{"title":"Relatório","status":"needsAction"},{"title":"Feito","status":"completed"}]}`)
	case strings.HasSuffix(p, "/files"):
		fmt.Fprint(w, `{"id":"doc-9","name":"Ata"}`)
	default:
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"code":404,"message":"not found"}}`)
	}
}

func (f *fakeGoogle) last() recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newTestServices(t *testing.T, h http.Handler) tools.Services {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	p := NewProvider(ProviderConfig{ClientOptions: []option.ClientOption{option.WithEndpoint(srv.URL + "/")}})
	s, err := p.Services(context.Background(), conversation.Credentials{AccessToken: "access-token", RefreshToken: "refresh"})
	require.NoError(t, err)
	return s
}

func TestProvider_RequiresAccessToken(t *testing.T) {
	_, err := NewProvider(ProviderConfig{}).Services(context.Background(), conversation.Credentials{RefreshToken: "r"})
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestCalendar(t *testing.T) {
	fake := &fakeGoogle{t: t}
	s := newTestServices(t, fake)
	from := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	events, err := s.Calendar.ListEvents(context.Background(), tools.EventQuery{From: from, Until: from.Add(4 * time.Hour), Max: 5})
	require.NoError(t, err)
	assert.Equal(t, []tools.Event{
		{ID: "e1", Summary: "Standup", Start: "2026-03-02T09:30:00Z"},
		{ID: "e2", Summary: "Feriado", Start: "2026-03-03"},
	}, events)

	q := fake.last().query
	assert.Contains(t, q, "singleEvents=true")
	assert.Contains(t, q, "orderBy=startTime")
	assert.Contains(t, q, "maxResults=5")
	assert.Contains(t, q, "timeMax=")

	link, err := s.Calendar.CreateEvent(context.Background(), tools.NewEvent{
		Summary: "Reunião", Start: "2026-03-02T15:00:00-03:00", End: "2026-03-02T16:00:00-03:00",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://calendar.google.com/event?eid=e3", link)

	var sent map[string]any
	require.NoError(t, json.Unmarshal([]byte(fake.last().body), &sent))
	assert.Equal(t, "Reunião", sent["summary"])
	assert.Equal(t, map[string]any{"dateTime": "2026-03-02T15:00:00-03:00"}, sent["start"])
}

func TestMail(t *testing.T) {
	fake := &fakeGoogle{t: t}
	s := newTestServices(t, fake)

	require.NoError(t, s.Mail.Send(context.Background(), tools.Email{To: "joao@example.com", Subject: "Olá", Body: "15h"}))
	var msg map[string]string
	require.NoError(t, json.Unmarshal([]byte(fake.last().body), &msg))
	assert.Equal(t, RawMessage(tools.Email{To: "joao@example.com", Subject: "Olá", Body: "15h"}), msg["raw"])

	recent, err := s.Mail.Recent(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []tools.MailSummary{
		{From: "Ana", Subject: "Oi", Snippet: "Tudo bem?"},
		{From: "Bruno", Subject: "Relatório", Snippet: "Segue anexo"},
	}, recent)
}

func TestContactsTasksDocs(t *testing.T) {
	fake := &fakeGoogle{t: t}
	s := newTestServices(t, fake)
	ctx := context.Background()

	name, err := s.Contacts.Create(ctx, tools.Contact{GivenName: "João", PhoneNumber: "+5511999999999"})
	require.NoError(t, err)
	assert.Equal(t, "people/c42", name)
	assert.Contains(t, fake.last().body, `"phoneNumbers":[{"value":"+5511999999999"}]`)
	assert.NotContains(t, fake.last().body, "emailAddresses")

	task, err := s.Tasks.Create(ctx, "Comprar café", "")
	require.NoError(t, err)
	assert.Equal(t, tools.Task{Title: "Comprar café", Status: "needsAction"}, task)

	list, err := s.Tasks.List(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Contains(t, fake.last().path, "@default")

	doc, err := s.Docs.Create(ctx, "Ata", "Pauta da reunião")
	require.NoError(t, err)
	assert.Equal(t, tools.Document{ID: "doc-9", Name: "Ata"}, doc)
	assert.Contains(t, fake.last().body, googleDocMimeType)
	assert.Contains(t, fake.last().body, "Pauta da reunião")
}

func TestUnauthorizedMapsToCredentialExpired(t *testing.T) {
	s := newTestServices(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"code":401,"message":"Invalid Credentials"}}`)
	}))

	_, err := s.Calendar.ListEvents(context.Background(), tools.EventQuery{From: time.Now()})
	assert.ErrorIs(t, err, tools.ErrCredentialExpired)

	err = s.Mail.Send(context.Background(), tools.Email{To: "x@example.com"})
	assert.ErrorIs(t, err, tools.ErrCredentialExpired)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		expired bool
	}{
		{name: "api 401", err: &googleapi.Error{Code: 401}, expired: true},
		{name: "api 403", err: &googleapi.Error{Code: 403}},
		{name: "token refresh 401", err: &oauth2.RetrieveError{Response: &http.Response{StatusCode: 401}}, expired: true},
		{name: "token refresh 400", err: &oauth2.RetrieveError{Response: &http.Response{StatusCode: 400}}},
		{name: "wrapped 401", err: fmt.Errorf("do: %w", &googleapi.Error{Code: 401}), expired: true},
		{name: "other", err: io.ErrUnexpectedEOF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("op", tt.err)
			require.Error(t, got)
			assert.Equal(t, tt.expired, errors.Is(got, tools.ErrCredentialExpired))
			assert.ErrorIs(t, got, tt.err)
		})
	}
	assert.NoError(t, classify("op", nil))
}

func TestRawMessage(t *testing.T) {
	raw := RawMessage(tools.Email{To: "joao@example.com", Subject: "Reunião amanhã", Body: "Às 15h."})
	assert.NotContains(t, raw, "=")
	assert.NotContains(t, raw, "+")
	assert.NotContains(t, raw, "/")

	decoded, err := base64.RawURLEncoding.DecodeString(raw)
	require.NoError(t, err)
	subject := "=?utf-8?B?" + base64.StdEncoding.EncodeToString([]byte("Reunião amanhã")) + "?="
	assert.Equal(t, "From: me\nTo: joao@example.com\nSubject: "+subject+
		"\nMIME-Version: 1.0\nContent-Type: text/plain; charset=utf-8\nContent-Transfer-Encoding: 8bit\n\nÀs 15h.", string(decoded))
}
