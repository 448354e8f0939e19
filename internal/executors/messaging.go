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

// SlackExecutor posts a message to a Slack incoming webhook.
type SlackExecutor struct {
	client *http.Client
	logger *logrus.Logger
}

type slackParams struct {
	WebhookURL string `json:"webhookUrl"`
	Channel    string `json:"channel"`
	Message    string `json:"message"`
}

func (e *SlackExecutor) Name() string { return models.ActionSendSlack }

func (e *SlackExecutor) Execute(ctx context.Context, metadata map[string]interface{}, creds Credentials) error {
	var params slackParams
	if err := decodeParams(metadata, &params); err != nil {
		return err
	}
	if params.WebhookURL == "" {
		e.logger.Info("Send Slack Message: no webhook URL provided, demo mode")
		return nil
	}
	return postWebhook(ctx, e.client, "slack", params.WebhookURL, map[string]string{
		"text":    params.Message,
		"channel": params.Channel,
	})
}

// DiscordExecutor posts a message to a Discord webhook.
type DiscordExecutor struct {
	client *http.Client
	logger *logrus.Logger
}

type discordParams struct {
	WebhookURL string `json:"webhookUrl"`
	Message    string `json:"message"`
}

func (e *DiscordExecutor) Name() string { return models.ActionSendDiscord }

func (e *DiscordExecutor) Execute(ctx context.Context, metadata map[string]interface{}, creds Credentials) error {
	var params discordParams
	if err := decodeParams(metadata, &params); err != nil {
		return err
	}
	if params.WebhookURL == "" {
		e.logger.Info("Send Discord Message: no webhook URL provided, demo mode")
		return nil
	}
	return postWebhook(ctx, e.client, "discord", params.WebhookURL, map[string]string{
		"content": params.Message,
	})
}

// SMSExecutor is a demo-mode stub; a production build would back it with an
// SMS provider.
type SMSExecutor struct {
	logger *logrus.Logger
}

type smsParams struct {
	PhoneNumber string `json:"phoneNumber"`
	Message     string `json:"message"`
}

func (e *SMSExecutor) Name() string { return models.ActionSendSMS }

func (e *SMSExecutor) Execute(ctx context.Context, metadata map[string]interface{}, creds Credentials) error {
	var params smsParams
	if err := decodeParams(metadata, &params); err != nil {
		return err
	}
	e.logger.Infof("Send SMS: demo mode (to=%s)", params.PhoneNumber)
	return nil
}

func postWebhook(ctx context.Context, client *http.Client, kind, webhookURL string, payload map[string]string) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s webhook: %w", kind, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%s webhook: %w", kind, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s webhook: %w", kind, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	// Discord replies 204 on success.
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s webhook returned %d", kind, resp.StatusCode)
	}
	return nil
}
