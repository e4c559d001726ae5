package llmresilience

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrRateLimited        = errors.New("llmresilience: rate limited by backend")
	ErrAuthFailed         = errors.New("llmresilience: authentication failed")
	ErrInvalidRequest     = errors.New("llmresilience: invalid request")
	ErrBackendUnavailable = errors.New("llmresilience: backend unavailable")
	ErrModelNotFound      = errors.New("llmresilience: model not found")
	ErrTimeout            = errors.New("llmresilience: call timed out")

	ErrNoRequests   = errors.New("llmresilience: at least one request is required")
	ErrInvalidGroup = errors.New("llmresilience: invalid target group")
)

// DispatchError wraps a call failure with the descriptor that produced it.
type DispatchError struct {
	Err       error
	RequestID string
	Group     string
	Seq       int
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("llmresilience: group=%s seq=%d request=%s: %v",
		e.Group, e.Seq, e.RequestID, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// Classify maps a call error onto an outcome status.
func Classify(err error) Status {
	switch {
	case err == nil:
		return StatusSuccess
	case IsRateLimited(err):
		return StatusRateLimited
	default:
		return StatusFailed
	}
}

// IsRateLimited returns true if the backend rejected the call for capacity reasons.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsFatal returns true if the error points at the caller's setup rather than
// backend capacity: repeating the call will not help.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAuthFailed) ||
		errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrModelNotFound)
}
