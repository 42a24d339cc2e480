package email

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

// SendGridMailer delivers reports through the SendGrid v3 mail API.
type SendGridMailer struct {
	config config.EmailConfig
	client *http.Client
	logger *log.Logger
}

func NewSendGridMailer(cfg config.EmailConfig) *SendGridMailer {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &SendGridMailer{
		config: cfg,
		client: &http.Client{Timeout: timeout},
		logger: log.New(log.Writer(), "[EMAIL] ", log.LstdFlags),
	}
}

func (m *SendGridMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	payload := map[string]any{
		"personalizations": []map[string]any{
			{"to": []map[string]string{{"email": to}}},
		},
		"from":    map[string]string{"email": m.config.From},
		"subject": subject,
		"content": []map[string]string{
			{"type": "text/html", "value": htmlBody},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.config.SendGridAPIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid returned status %d", resp.StatusCode)
	}

	m.logger.Printf("report emailed to %s", to)
	return nil
}

// NoopMailer satisfies the mailer contract when email is not
// configured.
type NoopMailer struct{}

func (NoopMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	return nil
}
