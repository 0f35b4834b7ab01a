package translator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	// ErrMalformedResponse is wrapped by GenerationError when model output
	// cannot be parsed.
	ErrMalformedResponse = errors.New("malformed model response")

	// ErrUnsafePlan is returned when a plan names something outside the
	// allow-list.
	ErrUnsafePlan = errors.New("plan rejected")

	// ErrEmptyResponse is returned by a generator that got no candidates.
	ErrEmptyResponse = errors.New("empty model response")
)

// GenerationError exposes the offending model output.
type GenerationError struct {
	Raw string
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%v (response: %.200s)", e.Err, e.Raw)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// StatusError is a non-200 reply from the model endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("model endpoint returned %d: %s", e.Code, truncate(e.Body, 200))
}

// ExternalError is returned once every attempt at the model call failed.
type ExternalError struct {
	Attempts int
	Err      error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("model call failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ExternalError) Unwrap() error { return e.Err }

// IsRetryable reports whether a single failed call is worth repeating:
// timeouts, network failures, throttling and server errors. An
// ExternalError is never retryable; its attempts are spent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ext *ExternalError
	if errors.As(err, &ext) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.Code == http.StatusTooManyRequests || status.Code >= 500
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
