package google

import (
	"context"
	"encoding/base64"
	"strings"

	"golang.org/x/sync/errgroup"
	"google.golang.org/api/gmail/v1"

	"github.com/lewisedginton/organizer/internal/tools"
)

const me = "me"

// Mail implements tools.Mail for the authorized mailbox.
type Mail struct {
	svc *gmail.Service
}

// Send delivers a plain-text message.
func (m *Mail) Send(ctx context.Context, e tools.Email) error {
	_, err := m.svc.Users.Messages.Send(me, &gmail.Message{Raw: RawMessage(e)}).Context(ctx).Do()
	return classify("send email", err)
}

// Recent lists the newest messages with sender, subject and snippet.
func (m *Mail) Recent(ctx context.Context, max int) ([]tools.MailSummary, error) {
	call := m.svc.Users.Messages.List(me).Context(ctx)
	if max > 0 {
		call = call.MaxResults(int64(max))
	}
	list, err := call.Do()
	if err != nil {
		return nil, classify("list emails", err)
	}

	out := make([]tools.MailSummary, len(list.Messages))
	g, gctx := errgroup.WithContext(ctx)
	for i, ref := range list.Messages {
		g.Go(func() error {
			msg, err := m.svc.Users.Messages.Get(me, ref.Id).
				Format("metadata").
				MetadataHeaders("Subject", "From").
				Context(gctx).
				Do()
			if err != nil {
				return classify("get email", err)
			}
			out[i] = summarize(msg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func summarize(msg *gmail.Message) tools.MailSummary {
	s := tools.MailSummary{Snippet: msg.Snippet}
	if msg.Payload == nil {
		return s
	}
	for _, h := range msg.Payload.Headers {
		switch {
		case strings.EqualFold(h.Name, "From"):
			s.From = h.Value
		case strings.EqualFold(h.Name, "Subject"):
			s.Subject = h.Value
		}
	}
	return s
}

// RawMessage renders e as an RFC 2822 message encoded for the Gmail API.
// The subject is MIME encoded-word so non-ASCII text survives transport.
func RawMessage(e tools.Email) string {
	subject := "=?utf-8?B?" + base64.StdEncoding.EncodeToString([]byte(e.Subject)) + "?="
	lines := []string{
		"From: me",
		"To: " + e.To,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"Content-Transfer-Encoding: 8bit",
		"",
		e.Body,
	}
	return base64.RawURLEncoding.EncodeToString([]byte(strings.Join(lines, "\n")))
}
