package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/scouthq/scout/config"
)

// WebhookNotifier posts a completion summary to a configured URL.
type WebhookNotifier struct {
	config config.NotifyConfig
	client *http.Client
	logger *log.Logger
}

func NewWebhookNotifier(cfg config.NotifyConfig) *WebhookNotifier {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		config: cfg,
		client: &http.Client{Timeout: timeout},
		logger: log.New(log.Writer(), "[NOTIFY] ", log.LstdFlags),
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, summary string) error {
	body, err := json.Marshal(map[string]string{"summary": summary})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.config.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	n.logger.Printf("completion webhook delivered")
	return nil
}

// NoopNotifier is used when no webhook is configured.
type NoopNotifier struct{}

func (NoopNotifier) Notify(ctx context.Context, summary string) error { return nil }
