package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/reportdesk/api/pkg/logger"
	"golang.org/x/sync/errgroup"
)

const maxWebhookWorkers = 4

// WebhookEvent is one audit event rendered for an outbound chat webhook.
type WebhookEvent struct {
	Action      string
	Title       string
	Description string
	Actor       string
	OccurredAt  time.Time
}

type webhookEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color"`
	Timestamp   string         `json:"timestamp"`
	Fields      []webhookField `json:"fields,omitempty"`
}

type webhookField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type webhookMessage struct {
	Username string         `json:"username,omitempty"`
	Embeds   []webhookEmbed `json:"embeds"`
}

// WebhookNotifier posts Discord-compatible webhook messages. Delivery is best effort.
type WebhookNotifier struct {
	URLs     []string
	Username string
	Client   *http.Client
}

func NewWebhookNotifier(urls []string, username string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookNotifier{
		URLs:     urls,
		Username: username,
		Client:   &http.Client{Timeout: timeout},
	}
}

func (w *WebhookNotifier) Enabled() bool {
	return w != nil && len(w.URLs) > 0
}

// Send delivers event to every URL concurrently. One failing URL does not stop the others;
// each failure is logged and the first one is returned.
func (w *WebhookNotifier) Send(ctx context.Context, event WebhookEvent) error {
	if !w.Enabled() {
		return nil
	}

	body, err := json.Marshal(w.message(event))
	if err != nil {
		return err
	}

	var eg errgroup.Group
	eg.SetLimit(maxWebhookWorkers)
	for _, url := range w.URLs {
		eg.Go(func() error {
			if err := w.post(ctx, url, body); err != nil {
				logger.Warn("webhook_delivery_failed", map[string]interface{}{
					"action": event.Action,
					"error":  err.Error(),
				})
				return err
			}
			return nil
		})
	}
	return eg.Wait()
}

func (w *WebhookNotifier) message(event WebhookEvent) webhookMessage {
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}

	embed := webhookEmbed{
		Title:       event.Title,
		Description: event.Description,
		Color:       colorForAction(event.Action),
		Timestamp:   occurred.Format(time.RFC3339),
		Fields: []webhookField{
			{Name: "Action", Value: event.Action, Inline: true},
		},
	}
	if event.Actor != "" {
		embed.Fields = append(embed.Fields, webhookField{Name: "By", Value: event.Actor, Inline: true})
	}

	return webhookMessage{Username: w.Username, Embeds: []webhookEmbed{embed}}
}

func (w *WebhookNotifier) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("webhook responded with status %d", resp.StatusCode)
	}
	return nil
}

func colorForAction(action string) int {
	switch {
	case strings.HasPrefix(action, "folder."):
		return 0x5865F2
	case strings.HasPrefix(action, "report."):
		return 0x57F287
	case strings.HasPrefix(action, "mission."):
		return 0xFEE75C
	case strings.HasPrefix(action, "role."), strings.HasPrefix(action, "user."):
		return 0xED4245
	default:
		return 0x99AAB5
	}
}
