// Package graphapi is the WhatsApp Cloud API gateway client: it turns
// channel-neutral payloads into Graph API requests and fetches message
// template definitions.
package graphapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/sendloop/sendloop/internal/dispatch"
)

const (
	defaultBaseURL    = "https://graph.facebook.com"
	defaultAPIVersion = "v20.0"
	requestTimeout    = 30 * time.Second
	maxSendAttempts   = 3
)

// Client calls the WhatsApp Cloud API. Safe for concurrent use.
type Client struct {
	baseURL    string
	apiVersion string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL    string // override for tests/proxies
	APIVersion string
	RatePerSec float64 // outbound request rate cap, 0 = default 50/s
	Burst      int
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 50
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RatePerSec)
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiVersion: cfg.APIVersion,
		httpClient: &http.Client{Timeout: requestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
	}
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("graph api error %d (%s): %s", e.Code, e.Type, e.Message)
}

// Send delivers one payload to one recipient and returns the message id
// assigned by the Cloud API. Transient statuses (429, 5xx) are retried with
// backoff; business rejections are returned as-is.
func (c *Client) Send(ctx context.Context, creds dispatch.AccountCreds, p dispatch.Payload) (string, error) {
	body, err := buildMessagePayload(p)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode message payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/%s/messages", c.baseURL, c.apiVersion, creds.PhoneNumberID)

	var lastErr error
	for attempt := 1; attempt <= maxSendAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}

		id, retryable, err := c.doSend(ctx, endpoint, creds.AccessToken, raw)
		if err == nil {
			return id, nil
		}
		lastErr = err
		if !retryable {
			return "", err
		}

		slog.Warn("graph api send retry", "attempt", attempt, "to", p.To, "error", err)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
		}
	}
	return "", fmt.Errorf("send exhausted %d attempts: %w", maxSendAttempts, lastErr)
}

func (c *Client) doSend(ctx context.Context, endpoint, token string, raw []byte) (id string, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", true, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", true, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", true, fmt.Errorf("graph api status %d: %s", resp.StatusCode, truncate(data, 300))
	}

	var parsed sendResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", false, fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= 300 {
		if parsed.Error != nil {
			return "", false, parsed.Error
		}
		return "", false, fmt.Errorf("graph api status %d: %s", resp.StatusCode, truncate(data, 300))
	}
	if len(parsed.Messages) == 0 || parsed.Messages[0].ID == "" {
		return "", false, fmt.Errorf("graph api returned no message id")
	}
	return parsed.Messages[0].ID, false, nil
}

type templateListResponse struct {
	Data []struct {
		Name       string `json:"name"`
		Status     string `json:"status"`
		Components []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"components"`
	} `json:"data"`
	Error *apiError `json:"error"`
}

// GetTemplateByName fetches a template definition from the business
// account's message_templates edge.
func (c *Client) GetTemplateByName(ctx context.Context, creds dispatch.AccountCreds, name string) (*dispatch.TemplateDefinition, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/%s/%s/message_templates?name=%s",
		c.baseURL, c.apiVersion, creds.BusinessID, url.QueryEscape(name))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch template: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read template response: %w", err)
	}

	var parsed templateListResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decode template response: %w", err)
	}
	if resp.StatusCode >= 300 {
		if parsed.Error != nil {
			return nil, parsed.Error
		}
		return nil, fmt.Errorf("graph api status %d: %s", resp.StatusCode, truncate(data, 300))
	}

	for _, t := range parsed.Data {
		if t.Name != name {
			continue
		}
		def := &dispatch.TemplateDefinition{Name: t.Name}
		for _, comp := range t.Components {
			switch comp.Type {
			case "HEADER":
				def.HeaderText = comp.Text
			case "BODY":
				def.BodyText = comp.Text
			case "FOOTER":
				def.FooterText = comp.Text
			}
		}
		return def, nil
	}
	return nil, fmt.Errorf("template %q not found", name)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

var _ dispatch.Gateway = (*Client)(nil)
var _ dispatch.TemplateStore = (*Client)(nil)
