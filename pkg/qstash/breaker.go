package qstash

import (
	"sync"
	"time"
)

// BreakerState is the circuit breaker state.
type BreakerState int

const (
	StateClosed   BreakerState = iota // normal operation
	StateOpen                         // tripped, requests rejected
	StateHalfOpen                     // probing
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes the circuit breaker guarding the external service.
type BreakerConfig struct {
	MaxFailures     int           `yaml:"max_failures"`
	ResetTimeout    time.Duration `yaml:"reset_timeout"`
	HalfOpenMaxReqs int           `yaml:"half_open_max_reqs"`
}

// DefaultBreakerConfig returns the default breaker tuning.
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		MaxFailures:     5,
		ResetTimeout:    60 * time.Second,
		HalfOpenMaxReqs: 3,
	}
}

// Breaker is a minimal three-state circuit breaker. The scheduler is an
// external SaaS; once it starts failing there is no point hammering it from
// every dispatch goroutine.
type Breaker struct {
	config       *BreakerConfig
	state        BreakerState
	failureCount int
	lastFailTime time.Time
	halfOpenReqs int
	mutex        sync.Mutex
}

// NewBreaker creates a breaker with the given config (nil for defaults).
func NewBreaker(config *BreakerConfig) *Breaker {
	if config == nil {
		config = DefaultBreakerConfig()
	}
	return &Breaker{config: config, state: StateClosed}
}

// Allow reports whether a request may proceed.
func (b *Breaker) Allow() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(b.lastFailTime) >= b.config.ResetTimeout {
			b.state = StateHalfOpen
			// The transition admits this request, so it spends the first
			// slot of the half-open allowance.
			b.halfOpenReqs = 1
			return true
		}
		return false
	case StateHalfOpen:
		if b.halfOpenReqs < b.config.HalfOpenMaxReqs {
			b.halfOpenReqs++
			return true
		}
		return false
	}
	return false
}

// RecordSuccess resets failure tracking and closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.failureCount = 0
	b.state = StateClosed
}

// RecordFailure counts a failure and trips the breaker past the threshold.
func (b *Breaker) RecordFailure() {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.failureCount++
	b.lastFailTime = time.Now()
	if b.state == StateHalfOpen || b.failureCount >= b.config.MaxFailures {
		b.state = StateOpen
	}
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.state
}
