// Package google adapts Google Workspace APIs to the assistant's tool ports.
package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/people/v1"
	"google.golang.org/api/tasks/v1"

	"github.com/lewisedginton/organizer/internal/conversation"
	"github.com/lewisedginton/organizer/internal/tools"
	"github.com/lewisedginton/organizer/pkg/logger"
)

// ErrNoCredentials is returned when a request carries no access token.
var ErrNoCredentials = errors.New("google: no access token")

// ProviderConfig configures the Provider. ClientOptions are appended to every
// service client and are mainly used to point clients at a test endpoint.
type ProviderConfig struct {
	Logger        logger.Logger
	ClientOptions []option.ClientOption
}

// Provider builds request-scoped Google service adapters.
type Provider struct {
	log  logger.Logger
	opts []option.ClientOption
}

var _ tools.Provider = (*Provider)(nil)

// NewProvider creates a Provider.
func NewProvider(cfg ProviderConfig) *Provider {
	return &Provider{log: cfg.Logger, opts: cfg.ClientOptions}
}

// Services returns adapters authorized with the caller's credentials.
func (p *Provider) Services(ctx context.Context, creds conversation.Credentials) (tools.Services, error) {
	if !creds.Valid() {
		return tools.Services{}, ErrNoCredentials
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    "Bearer",
	})
	opts := append([]option.ClientOption{option.WithTokenSource(ts)}, p.opts...)

	cal, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return tools.Services{}, fmt.Errorf("failed to create calendar client: %w", err)
	}
	gm, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return tools.Services{}, fmt.Errorf("failed to create gmail client: %w", err)
	}
	ppl, err := people.NewService(ctx, opts...)
	if err != nil {
		return tools.Services{}, fmt.Errorf("failed to create people client: %w", err)
	}
	tsk, err := tasks.NewService(ctx, opts...)
	if err != nil {
		return tools.Services{}, fmt.Errorf("failed to create tasks client: %w", err)
	}
	drv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return tools.Services{}, fmt.Errorf("failed to create drive client: %w", err)
	}

	return tools.Services{
		Calendar: &Calendar{svc: cal},
		Mail:     &Mail{svc: gm},
		Contacts: &Contacts{svc: ppl},
		Tasks:    &Tasks{svc: tsk},
		Docs:     &Docs{svc: drv},
	}, nil
}

// classify wraps authorization failures as tools.ErrCredentialExpired.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized {
		return fmt.Errorf("%s: %w: %w", op, tools.ErrCredentialExpired, err)
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil &&
		retrieveErr.Response.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%s: %w: %w", op, tools.ErrCredentialExpired, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
