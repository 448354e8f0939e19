package qstash

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ErrBreakerOpen is returned when the circuit breaker rejects a call without
// contacting the service.
var ErrBreakerOpen = errors.New("qstash: circuit breaker open")

// SchedulerInterface is the scheduler/queue surface the engine depends on.
// Constructed once at process start and injected, so tests substitute fakes.
type SchedulerInterface interface {
	// Queue transport.
	PublishJSON(ctx context.Context, req *PublishRequest) (*PublishResponse, error)

	// Schedule lifecycle.
	CreateSchedule(ctx context.Context, req *CreateScheduleRequest) (*Schedule, error)
	GetSchedule(ctx context.Context, scheduleID string) (*Schedule, error)
	DeleteSchedule(ctx context.Context, scheduleID string) error
	PauseSchedule(ctx context.Context, scheduleID string) error
	ResumeSchedule(ctx context.Context, scheduleID string) error
}

// Client is an HTTP client for a QStash-compatible scheduler/queue service.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *logrus.Logger
	config     *Config
	breaker    *Breaker
}

// NewClient creates a scheduler client. nil config/logger fall back to
// defaults.
func NewClient(config *Config, logger *logrus.Logger) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{
		baseURL: config.BaseURL,
		token:   config.Token,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger:  logger,
		config:  config,
		breaker: NewBreaker(nil),
	}
}

// PublishJSON enqueues body for delivery to req.Destination.
func (c *Client) PublishJSON(ctx context.Context, req *PublishRequest) (*PublishResponse, error) {
	endpoint := "/v2/publish/" + url.QueryEscape(req.Destination)
	headers := map[string]string{}
	if req.Retries > 0 {
		headers["Upstash-Retries"] = fmt.Sprintf("%d", req.Retries)
	}
	var result PublishResponse
	if err := c.doRequestWithRetry(ctx, http.MethodPost, endpoint, headers, req.Body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateSchedule registers a cron schedule for req.Destination.
func (c *Client) CreateSchedule(ctx context.Context, req *CreateScheduleRequest) (*Schedule, error) {
	endpoint := "/v2/schedules/" + url.QueryEscape(req.Destination)
	headers := map[string]string{"Upstash-Cron": req.Cron}
	var result Schedule
	if err := c.doRequestWithRetry(ctx, http.MethodPost, endpoint, headers, req.Body, &result); err != nil {
		return nil, err
	}
	if result.Cron == "" {
		result.Cron = req.Cron
	}
	return &result, nil
}

// GetSchedule fetches the live state of a schedule.
func (c *Client) GetSchedule(ctx context.Context, scheduleID string) (*Schedule, error) {
	var result Schedule
	if err := c.doRequestWithRetry(ctx, http.MethodGet, "/v2/schedules/"+scheduleID, nil, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteSchedule removes a schedule.
func (c *Client) DeleteSchedule(ctx context.Context, scheduleID string) error {
	return c.doRequestWithRetry(ctx, http.MethodDelete, "/v2/schedules/"+scheduleID, nil, nil, nil)
}

// PauseSchedule suspends deliveries without deleting the schedule.
func (c *Client) PauseSchedule(ctx context.Context, scheduleID string) error {
	return c.doRequestWithRetry(ctx, http.MethodPost, "/v2/schedules/"+scheduleID+"/pause", nil, nil, nil)
}

// ResumeSchedule re-enables a paused schedule.
func (c *Client) ResumeSchedule(ctx context.Context, scheduleID string) error {
	return c.doRequestWithRetry(ctx, http.MethodPost, "/v2/schedules/"+scheduleID+"/resume", nil, nil, nil)
}

func (c *Client) createRequest(ctx context.Context, method, endpoint string, headers map[string]string, body interface{}) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("User-Agent", "FlowForge-QStash-Client/1.0")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func (c *Client) doRequest(req *http.Request, result interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	c.logger.Debugf("QStash API Request: %s %s", req.Method, req.URL.String())
	c.logger.Debugf("QStash API Response: %d %s", resp.StatusCode, string(body))

	if resp.StatusCode >= 400 {
		var errResp ErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
			return fmt.Errorf("API error [%d]: %s", resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("API error [%d]: %s", resp.StatusCode, string(body))
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) doRequestWithRetry(ctx context.Context, method, endpoint string, headers map[string]string, body interface{}, result interface{}) error {
	if !c.breaker.Allow() {
		return ErrBreakerOpen
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			}
			c.logger.Warnf("QStash API retry attempt %d/%d", attempt, c.config.MaxRetries)
		}

		req, err := c.createRequest(ctx, method, endpoint, headers, body)
		if err != nil {
			return err
		}
		if lastErr = c.doRequest(req, result); lastErr == nil {
			c.breaker.RecordSuccess()
			return nil
		}
	}

	c.breaker.RecordFailure()
	return fmt.Errorf("request failed after %d retries: %w", c.config.MaxRetries, lastErr)
}
