package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Webhook talks to a Discord channel webhook. Messages are created with
// POST ?wait=true so the response carries the message id, and edited
// with PATCH /messages/{id}. When ThreadID is set, every request targets
// that thread of a forum channel.
type Webhook struct {
	URL      string
	ThreadID string

	Client *http.Client
	Logger *slog.Logger
}

// NewWebhook returns a Webhook with a 15s HTTP timeout.
func NewWebhook(rawURL, threadID string, logger *slog.Logger) *Webhook {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Webhook{
		URL:      strings.TrimSuffix(rawURL, "/"),
		ThreadID: threadID,
		Client:   &http.Client{Timeout: 15 * time.Second},
		Logger:   logger,
	}
}

type webhookMessage struct {
	ID string `json:"id"`
}

type rateLimitBody struct {
	RetryAfter float64 `json:"retry_after"`
	Global     bool    `json:"global"`
}

// Post creates msg and returns the new message id.
func (w *Webhook) Post(ctx context.Context, msg Message) (string, error) {
	params := url.Values{"wait": {"true"}}
	body, err := w.do(ctx, http.MethodPost, w.URL, params, msg)
	if err != nil {
		return "", fmt.Errorf("post message: %w", err)
	}
	var created webhookMessage
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("post message: decode response: %w", err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("post message: response has no message id")
	}
	return created.ID, nil
}

// Edit replaces message id with msg.
func (w *Webhook) Edit(ctx context.Context, id string, msg Message) error {
	if _, err := w.do(ctx, http.MethodPatch, w.URL+"/messages/"+url.PathEscape(id), url.Values{}, msg); err != nil {
		return fmt.Errorf("edit message %s: %w", id, err)
	}
	return nil
}

// Announce posts text as a plain message.
func (w *Webhook) Announce(ctx context.Context, text string) error {
	_, err := w.Post(ctx, Message{Content: text})
	return err
}

func (w *Webhook) do(ctx context.Context, method, endpoint string, params url.Values, msg Message) ([]byte, error) {
	if w.URL == "" {
		return nil, fmt.Errorf("webhook url not configured")
	}
	if w.ThreadID != "" {
		params.Set("thread_id", w.ThreadID)
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		rl := &RateLimitedError{RetryAfter: retryAfter(resp.Header, body)}
		w.logger().Warn("webhook rate limited", "method", method, "retry_after", rl.RetryAfter)
		return nil, rl
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("webhook HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func (w *Webhook) logger() *slog.Logger {
	if w.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return w.Logger
}

// retryAfter prefers the JSON body (fractional seconds) and falls back
// to the Retry-After header. Unknown means one second.
func retryAfter(h http.Header, body []byte) time.Duration {
	var rl rateLimitBody
	if err := json.Unmarshal(body, &rl); err == nil && rl.RetryAfter > 0 {
		return time.Duration(rl.RetryAfter * float64(time.Second))
	}
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return time.Second
}
