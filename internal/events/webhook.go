package events

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

// Webhook POSTs each event as JSON to a single URL.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook creates a webhook publisher with the given client timeout.
func NewWebhook(url string, timeout time.Duration) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (w *Webhook) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return eris.Wrap(err, "events: marshal webhook payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "events: build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Risk-Event", e.EventType)

	resp, err := w.client.Do(req)
	if err != nil {
		return eris.Wrapf(err, "events: deliver webhook to %s", w.url)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return eris.Errorf("events: webhook %s returned %d", w.url, resp.StatusCode)
	}
	return nil
}
