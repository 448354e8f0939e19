package services

import (
	"errors"
	"fmt"
)

// Dispatch error taxonomy. Handlers map these to HTTP statuses; everything
// else is treated as a persistence or transport failure.
var (
	ErrZapNotFound   = errors.New("zap not found")
	ErrRunNotFound   = errors.New("zap run not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrZapInactive   = errors.New("zap is inactive")
	ErrQuotaExceeded = errors.New("run limit reached")
)

// QuotaExceededError carries the counts callers surface in the 429 body. It
// matches ErrQuotaExceeded under errors.Is.
type QuotaExceededError struct {
	RunCount int64
	MaxRuns  int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("run limit reached (%d/%d)", e.RunCount, e.MaxRuns)
}

func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}
