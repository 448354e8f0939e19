package qstash

import "time"

// Config holds client settings for the QStash-compatible scheduler/queue.
type Config struct {
	BaseURL    string        `yaml:"base_url"`
	Token      string        `yaml:"token"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// DefaultConfig returns conservative defaults for the hosted service.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "https://qstash.upstash.io",
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		RetryDelay: time.Second,
	}
}

// PublishRequest enqueues a JSON message for delivery to Destination.
type PublishRequest struct {
	Destination string      `json:"-"`
	Body        interface{} `json:"-"`
	Retries     int         `json:"-"`
}

// PublishResponse is the queue's acknowledgement of an enqueued message.
type PublishResponse struct {
	MessageID string `json:"messageId"`
}

// CreateScheduleRequest registers a cron schedule that POSTs Body to
// Destination on the given cadence.
type CreateScheduleRequest struct {
	Destination string      `json:"-"`
	Cron        string      `json:"-"`
	Body        interface{} `json:"-"`
}

// Schedule describes a registered schedule.
type Schedule struct {
	ScheduleID  string `json:"scheduleId"`
	Cron        string `json:"cron"`
	Destination string `json:"destination"`
	IsPaused    bool   `json:"isPaused"`
	CreatedAt   int64  `json:"createdAt"`
}

// ErrorResponse is the service's error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
