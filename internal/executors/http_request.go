package executors

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"flowforge/internal/models"

	"github.com/sirupsen/logrus"
)

// HTTPRequestExecutor performs an arbitrary HTTP call configured in the
// action metadata.
type HTTPRequestExecutor struct {
	client *http.Client
	logger *logrus.Logger
}

type httpRequestParams struct {
	URL    string `json:"url"`
	Method string `json:"method"`
	Body   string `json:"body"`
}

func (e *HTTPRequestExecutor) Name() string { return models.ActionHTTPRequest }

func (e *HTTPRequestExecutor) Execute(ctx context.Context, metadata map[string]interface{}, creds Credentials) error {
	var params httpRequestParams
	if err := decodeParams(metadata, &params); err != nil {
		return err
	}
	if params.URL == "" {
		e.logger.Info("HTTP Request: no URL provided, skipping")
		return nil
	}

	method := strings.ToUpper(params.Method)
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if method != http.MethodGet && params.Body != "" {
		body = strings.NewReader(params.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, params.URL, body)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	e.logger.Infof("HTTP Request: %s %s -> %d", method, params.URL, resp.StatusCode)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("http request: %s %s returned %d", method, params.URL, resp.StatusCode)
	}
	return nil
}
