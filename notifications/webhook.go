// Package notifications delivers operator-facing alerts over a webhook.
// The one alert that must never be missed is the "position NOT flat"
// escalation from the exit executor.
package notifications

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// AlertPayload is the JSON body posted to the operator webhook.
type AlertPayload struct {
	Severity   string    `json:"Severity"`
	Title      string    `json:"Title"`
	Message    string    `json:"Message"`
	Symbol     string    `json:"Symbol,omitempty"`
	OccurredAt time.Time `json:"OccurredAt"`
}

// WebhookManager posts alerts to a configured endpoint. A manager with an
// empty URL is a no-op, so callers never need to nil-check.
type WebhookManager struct {
	url    string
	client *http.Client
}

// NewWebhookManager creates a webhook manager for the given endpoint URL.
func NewWebhookManager(url string) *WebhookManager {
	return &WebhookManager{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Alert delivers an operator alert asynchronously; delivery failures are
// logged, never propagated (the triggering condition was already logged
// loudly by the caller).
func (wm *WebhookManager) Alert(severity, title, message, symbol string) {
	if wm == nil || wm.url == "" {
		return
	}

	payload := AlertPayload{
		Severity:   severity,
		Title:      title,
		Message:    message,
		Symbol:     symbol,
		OccurredAt: time.Now(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("⚠️  Failed to marshal alert payload: %v", err)
		return
	}

	go wm.deliver(body)
}

func (wm *WebhookManager) deliver(body []byte) {
	resp, err := wm.client.Post(wm.url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("⚠️  Alert webhook delivery failed: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Printf("⚠️  Alert webhook returned HTTP %d", resp.StatusCode)
	}
}
