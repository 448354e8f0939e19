package executors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"flowforge/internal/models"

	"github.com/sirupsen/logrus"
)

const resendEndpoint = "https://api.resend.com/emails"

// EmailExecutor sends transactional email through the Resend API. Without an
// API key it logs the message and succeeds.
type EmailExecutor struct {
	client   *http.Client
	settings EmailSettings
	logger   *logrus.Logger
}

type emailParams struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (e *EmailExecutor) Name() string { return models.ActionSendEmail }

func (e *EmailExecutor) Execute(ctx context.Context, metadata map[string]interface{}, creds Credentials) error {
	var params emailParams
	if err := decodeParams(metadata, &params); err != nil {
		return err
	}
	if params.To == "" {
		return fmt.Errorf("send email: recipient required")
	}

	if e.settings.APIKey == "" {
		e.logger.Infof("Send Email: no API key configured, demo mode (to=%s subject=%q)", params.To, params.Subject)
		return nil
	}

	subject := params.Subject
	if subject == "" {
		subject = "No Subject"
	}
	body := params.Body
	if body == "" {
		body = "No content"
	}
	payload, err := json.Marshal(map[string]interface{}{
		"from":    e.settings.From,
		"to":      []string{params.To},
		"subject": subject,
		"html":    "<p>" + body + "</p>",
	})
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, resendEndpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.settings.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("send email: API error [%d]: %s", resp.StatusCode, string(raw))
	}

	e.logger.Infof("Send Email: delivered to %s", params.To)
	return nil
}
