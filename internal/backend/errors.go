package backend

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptySelection is returned when a dispatch is attempted with no
// selected files. The resolver treats an empty selection as valid; refusing
// to run is the dispatcher's call.
var ErrEmptySelection = errors.New("no files selected")

// ErrorKind classifies a dispatch failure.
type ErrorKind int

const (
	// ErrorNotFound means no runnable backend entry point was available.
	ErrorNotFound ErrorKind = iota
	// ErrorExecutionFailed means the backend process exited non-zero.
	ErrorExecutionFailed
	// ErrorTimedOut means the backend exceeded the dispatch timeout and was
	// terminated.
	ErrorTimedOut
)

// DispatchError describes a failed backend run. It is terminal for the run
// only; tree and selection state are left untouched for a retry.
type DispatchError struct {
	Kind     ErrorKind
	Backend  Backend
	ExitCode int
	Stderr   string
	Err      error
}

func (e *DispatchError) Error() string {
	switch e.Kind {
	case ErrorNotFound:
		if e.Err != nil {
			return fmt.Sprintf("%s not available: %v", e.Backend, e.Err)
		}
		return fmt.Sprintf("%s not available", e.Backend)
	case ErrorTimedOut:
		return fmt.Sprintf("%s timed out", e.Backend)
	default:
		message := fmt.Sprintf("%s failed with exit code %d", e.Backend, e.ExitCode)
		if trimmed := strings.TrimSpace(e.Stderr); trimmed != "" {
			message += ": " + trimmed
		}
		return message
	}
}

func (e *DispatchError) Unwrap() error { return e.Err }

// notFound wraps err as a missing-backend failure.
func notFound(b Backend, err error) *DispatchError {
	return &DispatchError{Kind: ErrorNotFound, Backend: b, Err: err}
}
