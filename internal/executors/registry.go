// Package executors holds the action-type registry and the reference
// executors behind it. Each executor parses its own typed view of the
// schemaless action metadata at the point of execution and degrades to a
// logged no-op when its integration key is absent (demo mode).
package executors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Credentials carries per-user tokens resolved at dispatch time. They are
// passed alongside metadata rather than smuggled into it, so action
// configuration and injected secrets never share a namespace.
type Credentials struct {
	GoogleAccessToken string
}

// Executor performs one action's side effect. A returned error is an
// attributable action failure; it is recorded on the run, never propagated to
// the triggering caller.
type Executor interface {
	Name() string
	Execute(ctx context.Context, metadata map[string]interface{}, creds Credentials) error
}

// Registry maps action-type names to executors.
type Registry struct {
	byName map[string]Executor
	logger *logrus.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{byName: make(map[string]Executor), logger: logger}
}

// Register adds or replaces an executor under its name.
func (r *Registry) Register(e Executor) {
	r.byName[e.Name()] = e
}

// Lookup returns the executor for name, or nil when the catalog has drifted
// past what this build knows.
func (r *Registry) Lookup(name string) Executor {
	return r.byName[name]
}

// Names returns the registered action-type names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	return names
}

// EmailSettings configures the Send Email executor.
type EmailSettings struct {
	APIKey string
	From   string
}

// NewDefaultRegistry wires the full reference catalog. httpClient is shared by
// every outbound-calling executor; nil gets a sane default.
func NewDefaultRegistry(httpClient *http.Client, email EmailSettings, logger *logrus.Logger) *Registry {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = logrus.New()
	}
	r := NewRegistry(logger)
	r.Register(&EmailExecutor{client: httpClient, settings: email, logger: logger})
	r.Register(&HTTPRequestExecutor{client: httpClient, logger: logger})
	r.Register(&SlackExecutor{client: httpClient, logger: logger})
	r.Register(&DiscordExecutor{client: httpClient, logger: logger})
	r.Register(&SMSExecutor{logger: logger})
	r.Register(&SpreadsheetRowExecutor{logger: logger})
	r.Register(&NotionPageExecutor{logger: logger})
	r.Register(&TrelloCardExecutor{logger: logger})
	return r
}

// decodeParams re-marshals the schemaless metadata into a typed parameter
// struct. Shape mismatches come back as a typed failure, not a panic.
func decodeParams(metadata map[string]interface{}, out interface{}) error {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("invalid action metadata: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("invalid action metadata: %w", err)
	}
	return nil
}
