package google

import (
	"context"
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/lewisedginton/organizer/internal/tools"
)

const primaryCalendar = "primary"

// Calendar implements tools.Calendar on the primary calendar.
type Calendar struct {
	svc *calendar.Service
}

// ListEvents returns single events ordered by start time.
func (c *Calendar) ListEvents(ctx context.Context, q tools.EventQuery) ([]tools.Event, error) {
	call := c.svc.Events.List(primaryCalendar).
		TimeMin(q.From.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx)
	if !q.Until.IsZero() {
		call = call.TimeMax(q.Until.Format(time.RFC3339))
	}
	if q.Max > 0 {
		call = call.MaxResults(int64(q.Max))
	}

	res, err := call.Do()
	if err != nil {
		return nil, classify("list calendar events", err)
	}

	events := make([]tools.Event, 0, len(res.Items))
	for _, item := range res.Items {
		events = append(events, tools.Event{
			ID:      item.Id,
			Summary: item.Summary,
			Start:   eventStart(item.Start),
		})
	}
	return events, nil
}

// CreateEvent inserts an event and returns its HTML link.
func (c *Calendar) CreateEvent(ctx context.Context, e tools.NewEvent) (string, error) {
	created, err := c.svc.Events.Insert(primaryCalendar, &calendar.Event{
		Summary:     e.Summary,
		Description: e.Description,
		Start:       &calendar.EventDateTime{DateTime: e.Start},
		End:         &calendar.EventDateTime{DateTime: e.End},
	}).Context(ctx).Do()
	if err != nil {
		return "", classify("create calendar event", err)
	}
	return created.HtmlLink, nil
}

// eventStart prefers the timed start and falls back to the all-day date.
func eventStart(dt *calendar.EventDateTime) string {
	if dt == nil {
		return ""
	}
	if dt.DateTime != "" {
		return dt.DateTime
	}
	return dt.Date
}
