package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/LovationAdmin/aldia-api/utils"
)

// Mailer delivers one HTML email.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}

const resendEndpoint = "https://api.resend.com/emails"

// ResendMailer sends through the Resend HTTP API.
type ResendMailer struct {
	apiKey    string
	fromEmail string
	fromName  string
	endpoint  string
	client    *http.Client
}

func NewResendMailer(apiKey, fromEmail, fromName string) *ResendMailer {
	return &ResendMailer{
		apiKey:    apiKey,
		fromEmail: fromEmail,
		fromName:  fromName,
		endpoint:  resendEndpoint,
		client:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (m *ResendMailer) Send(ctx context.Context, to, subject, html string) error {
	if m.apiKey == "" {
		return fmt.Errorf("RESEND_API_KEY not configured")
	}

	payload := map[string]interface{}{
		"from":    fmt.Sprintf("%s <%s>", m.fromName, m.fromEmail),
		"to":      []string{to},
		"subject": subject,
		"html":    html,
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach mail API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("failed to send email: status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}

// LogMailer only logs the message. It is the transport used in development
// and whenever no mail API key is configured.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger.Named("mailer")}
}

func (m *LogMailer) Send(_ context.Context, to, subject, html string) error {
	m.logger.Info("Email (not sent, development transport)",
		utils.EmailField(to),
		zap.String("subject", subject),
		zap.Int("html_bytes", len(html)))
	return nil
}
