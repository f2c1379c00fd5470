package integrations

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sendloop/sendloop/internal/store"
)

const gcalBase = "https://www.googleapis.com/calendar/v3"

// GoogleCalendar calls the Calendar v3 API with an OAuth access token
// stored on the connection record. Token refresh happens in the connect
// flow, not here.
type GoogleCalendar struct{}

func NewGoogleCalendar() *GoogleCalendar { return &GoogleCalendar{} }

func (g *GoogleCalendar) ID() string { return "google_calendar" }

func (g *GoogleCalendar) Actions() map[string]ActionConfig {
	return map[string]ActionConfig{
		"list_events": {
			Title:       "List events",
			Description: "List upcoming events on the user's primary Google Calendar within an optional time window.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"time_min": map[string]any{"type": "string", "description": "RFC3339 lower bound, defaults to now"},
					"time_max": map[string]any{"type": "string", "description": "RFC3339 upper bound"},
					"limit":    map[string]any{"type": "integer", "description": "Max results, default 10"},
				},
			},
			Execute: g.listEvents,
		},
		"create_event": {
			Title:       "Create event",
			Description: "Create an event on the user's primary Google Calendar.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"summary":     map[string]any{"type": "string", "description": "Event title"},
					"description": map[string]any{"type": "string", "description": "Event details"},
					"start":       map[string]any{"type": "string", "description": "RFC3339 start time"},
					"end":         map[string]any{"type": "string", "description": "RFC3339 end time"},
				},
				"required": []string{"summary", "start", "end"},
			},
			Execute: g.createEvent,
		},
	}
}

type gcalEvent struct {
	ID      string `json:"id,omitempty"`
	Summary string `json:"summary"`
	Status  string `json:"status,omitempty"`
	Start   struct {
		DateTime string `json:"dateTime,omitempty"`
		Date     string `json:"date,omitempty"`
	} `json:"start"`
	End struct {
		DateTime string `json:"dateTime,omitempty"`
		Date     string `json:"date,omitempty"`
	} `json:"end"`
	HTMLLink string `json:"htmlLink,omitempty"`
}

func (g *GoogleCalendar) listEvents(ctx context.Context, args map[string]any, rec store.IntegrationRecord) (string, error) {
	headers, err := g.auth(rec)
	if err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("singleEvents", "true")
	q.Set("orderBy", "startTime")
	q.Set("maxResults", fmt.Sprint(intArg(args, "limit", 10)))
	timeMin := stringArg(args, "time_min")
	if timeMin == "" {
		timeMin = time.Now().UTC().Format(time.RFC3339)
	}
	q.Set("timeMin", timeMin)
	if timeMax := stringArg(args, "time_max"); timeMax != "" {
		q.Set("timeMax", timeMax)
	}

	var resp struct {
		Items []gcalEvent `json:"items"`
	}
	if err := doJSON(ctx, http.MethodGet, gcalBase+"/calendars/primary/events?"+q.Encode(), headers, nil, &resp); err != nil {
		return "", fmt.Errorf("calendar events: %w", err)
	}
	if len(resp.Items) == 0 {
		return "No events in that window.", nil
	}
	return compactJSON(resp.Items), nil
}

func (g *GoogleCalendar) createEvent(ctx context.Context, args map[string]any, rec store.IntegrationRecord) (string, error) {
	headers, err := g.auth(rec)
	if err != nil {
		return "", err
	}

	start := stringArg(args, "start")
	end := stringArg(args, "end")
	if _, err := time.Parse(time.RFC3339, start); err != nil {
		return "", fmt.Errorf("start must be RFC3339: %w", err)
	}
	if _, err := time.Parse(time.RFC3339, end); err != nil {
		return "", fmt.Errorf("end must be RFC3339: %w", err)
	}

	body := map[string]any{
		"summary":     stringArg(args, "summary"),
		"description": stringArg(args, "description"),
		"start":       map[string]string{"dateTime": start},
		"end":         map[string]string{"dateTime": end},
	}

	var created gcalEvent
	if err := doJSON(ctx, http.MethodPost, gcalBase+"/calendars/primary/events", headers, body, &created); err != nil {
		return "", fmt.Errorf("create calendar event: %w", err)
	}
	return compactJSON(created), nil
}

func (g *GoogleCalendar) auth(rec store.IntegrationRecord) (map[string]string, error) {
	if err := requireCreds(rec.Credentials, "access_token"); err != nil {
		return nil, err
	}
	return map[string]string{"Authorization": "Bearer " + rec.Credentials["access_token"]}, nil
}

var _ Integration = (*GoogleCalendar)(nil)
