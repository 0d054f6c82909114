// Package notify delivers short text messages to the household's chat.
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Notifier sends one text message.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Webhook posts form-encoded `message` to a notify endpoint with a static
// bearer token (the LINE Notify contract).
type Webhook struct {
	url     string
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

// WebhookOption customises a Webhook.
type WebhookOption func(*Webhook)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) WebhookOption { return func(w *Webhook) { w.http = c } }

// WithRateLimit caps sends to perMinute, waiting when the budget is spent.
// Zero or less disables limiting.
func WithRateLimit(perMinute int) WebhookOption {
	return func(w *Webhook) {
		if perMinute <= 0 {
			w.limiter = nil
			return
		}
		w.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	}
}

func NewWebhook(endpoint, token string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:   endpoint,
		token: token,
		http:  &http.Client{Timeout: 20 * time.Second},
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

func (w *Webhook) Notify(ctx context.Context, message string) error {
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("notify: %w", err)
		}
	}
	form := url.Values{"message": {message}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+w.token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	res, err := w.http.Do(req)
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	if res.StatusCode >= 300 {
		return fmt.Errorf("notify status=%d body=%s", res.StatusCode, string(body))
	}
	return nil
}

// Discard drops every message. Used when notifications are disabled.
type Discard struct{}

func (Discard) Notify(context.Context, string) error { return nil }
