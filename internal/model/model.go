// Package model invokes agent CLI processes and normalizes their failures
// into a small closed set of error kinds.
package model

import (
	"context"
	"fmt"
	"time"
)

// ErrorKind classifies why a model invocation failed.
type ErrorKind string

const (
	KindTimeout         ErrorKind = "timeout"
	KindMalformedOutput ErrorKind = "malformed_output"
	KindRateLimited     ErrorKind = "rate_limited"
	KindAuthFailed      ErrorKind = "auth_failed"
	KindProcessError    ErrorKind = "process_error"
)

// InvokeError is the only error type Invoke returns. Kind is always one of
// the constants above so callers can route on it without string matching.
type InvokeError struct {
	Kind    ErrorKind
	ModelID string
	Err     error
}

func (e *InvokeError) Error() string {
	if e.ModelID != "" {
		return fmt.Sprintf("model %s: %s: %v", e.ModelID, e.Kind, e.Err)
	}
	return fmt.Sprintf("model invocation: %s: %v", e.Kind, e.Err)
}

func (e *InvokeError) Unwrap() error { return e.Err }

// Output holds the successful result of a model invocation. An Output is
// only returned when the model completed without reporting an error.
type Output struct {
	Text       string
	CostUSD    float64
	DurationMS int64
	SessionID  string
}

// Invoker runs a single prompt against a named model and waits for the
// result. Implementations must honor ctx cancellation and the timeout.
type Invoker interface {
	Invoke(ctx context.Context, modelID, prompt string, timeout time.Duration) (*Output, error)
}
