package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ShayCichocki/geodecomp/internal/logging"
)

// RetryDecision represents the decision after evaluating a failure.
type RetryDecision int

const (
	// Retry indicates the call should be attempted again after a delay.
	Retry RetryDecision = iota
	// Abort indicates the failure is final.
	Abort
)

// String returns a human-readable representation of the retry decision.
func (d RetryDecision) String() string {
	switch d {
	case Retry:
		return "retry"
	case Abort:
		return "abort"
	default:
		return "unknown"
	}
}

// DefaultRetryBackoff is the delay before the first retry. It doubles
// with every further attempt.
const DefaultRetryBackoff = 2 * time.Second

// RetryContext describes one failed attempt and what happens next.
type RetryContext struct {
	// CallID identifies the sub-agent call that failed.
	CallID string
	// Error is the error message from the failure.
	Error string
	// Attempt is the current attempt number (1-indexed).
	Attempt int
	// Delay is how long to wait before retrying.
	Delay time.Duration
	// Strategy names the path taken: retry_backoff, cancelled or exhausted.
	Strategy string
}

// RetryHandler tracks failed sub-agent calls and decides whether each
// one is attempted again.
type RetryHandler struct {
	maxAttempts int
	backoff     time.Duration
	attempts    map[string]int      // callID -> attempt count
	errors      map[string][]string // callID -> errors encountered
	mu          sync.RWMutex
}

// NewRetryHandler creates a RetryHandler allowing maxAttempts attempts per
// call. maxAttempts < 1 is treated as 1 (no retries).
func NewRetryHandler(maxAttempts int, backoff time.Duration) *RetryHandler {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RetryHandler{
		maxAttempts: maxAttempts,
		backoff:     backoff,
		attempts:    make(map[string]int),
		errors:      make(map[string][]string),
	}
}

// MaxAttempts returns the maximum attempts per call.
func (h *RetryHandler) MaxAttempts() int {
	return h.maxAttempts
}

// HandleFailure records a failed attempt of callID and decides what to do.
// Cancellation and empty output are never retried.
func (h *RetryHandler) HandleFailure(callID string, err error) (*RetryContext, RetryDecision) {
	h.mu.Lock()
	h.attempts[callID]++
	attempt := h.attempts[callID]
	h.errors[callID] = append(h.errors[callID], err.Error())
	h.mu.Unlock()

	rc := &RetryContext{
		CallID:  callID,
		Error:   err.Error(),
		Attempt: attempt,
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrEmptyOutput) {
		rc.Strategy = "cancelled"
		return rc, Abort
	}
	if attempt >= h.maxAttempts {
		rc.Strategy = "exhausted"
		if h.maxAttempts > 1 {
			logging.Debugf("[retry] call %s: giving up after %d attempts", callID, attempt)
		}
		return rc, Abort
	}

	rc.Strategy = "retry_backoff"
	rc.Delay = h.backoff << (attempt - 1)
	logging.Debugf("[retry] call %s: attempt %d failed (%s), retrying in %s", callID, attempt, rc.Error, rc.Delay)
	return rc, Retry
}

// Reset clears the attempt counter and error history for a call.
func (h *RetryHandler) Reset(callID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.attempts, callID)
	delete(h.errors, callID)
}

// GetAttempts returns the current attempt count for a call.
func (h *RetryHandler) GetAttempts(callID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.attempts[callID]
}

// GetErrors returns all errors recorded for a call.
func (h *RetryHandler) GetErrors(callID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	errs := make([]string, len(h.errors[callID]))
	copy(errs, h.errors[callID])
	return errs
}
