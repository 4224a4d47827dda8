// Package fault classifies failures into the four recovery classes the
// engine routes on: transient, fatal, structural and resource.
package fault

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/gantry-dev/gantry/internal/model"
)

// Class is the closed set of failure classes. Every error the engine sees
// maps onto exactly one class.
type Class string

const (
	// Transient faults are worth retrying: timeouts, rate limits, flaky
	// subprocesses, malformed model output.
	Transient Class = "transient"
	// Fatal faults will not recover on retry, for example auth failures
	// and invalid requests.
	Fatal Class = "fatal"
	// Structural faults mean generated work cannot be applied, for
	// example conflicting edits. They always block the session.
	Structural Class = "structural"
	// Resource faults are local exhaustion: disk, memory, file handles.
	Resource Class = "resource"
)

// Error tags an underlying error with its class.
type Error struct {
	Class Class
	Err   error
}

func (e *Error) Error() string { return fmt.Sprintf("%s fault: %v", e.Class, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

// New returns a classified error from a formatted message.
func New(class Class, format string, args ...any) *Error {
	return &Error{Class: class, Err: fmt.Errorf(format, args...)}
}

// Wrap tags err with class. Returns nil when err is nil.
func Wrap(class Class, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Class: class, Err: err}
}

// Classify maps any error onto its class. Explicit tags win, then model
// error kinds, then OS level resource exhaustion. Unknown errors count as
// transient so the retry path gets a chance before the session gives up.
func Classify(err error) Class {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Class
	}

	var invokeErr *model.InvokeError
	if errors.As(err, &invokeErr) {
		if invokeErr.Kind == model.KindAuthFailed {
			return Fatal
		}
		return Transient
	}

	if errors.Is(err, syscall.ENOSPC) ||
		errors.Is(err, syscall.EMFILE) ||
		errors.Is(err, syscall.ENFILE) ||
		errors.Is(err, syscall.ENOMEM) {
		return Resource
	}

	return Transient
}
