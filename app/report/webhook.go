package report

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// WebhookPayload is the JSON body posted after each completed validation.
type WebhookPayload struct {
	Email     string `json:"email"`
	URL       string `json:"url"`
	Score     int    `json:"score"`
	Errors    int    `json:"errors"`
	Warnings  int    `json:"warnings"`
	ReportURL string `json:"report_url,omitempty"`
}

type WebhookNotifier struct {
	url    string
	client *http.Client
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// Notify posts the payload to the configured endpoint. Delivery is best
// effort: failures are logged and never fail the validation that
// triggered them.
func (w *WebhookNotifier) Notify(payload WebhookPayload) {
	if w.url == "" {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to marshal webhook payload", "error", err)
		return
	}

	resp, err := w.client.Post(w.url, "application/json", bytes.NewReader(body))
	if err != nil {
		slog.Warn("Webhook delivery failed", "url", w.url, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		slog.Warn("Webhook endpoint returned non-success status",
			"url", w.url, "status", resp.StatusCode)
		return
	}

	slog.Debug("Webhook delivered", "url", w.url, "status", resp.StatusCode)
}
