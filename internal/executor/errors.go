package executor

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimeout matches every *TimeoutError.
	ErrTimeout = errors.New("execution timeout")

	// ErrFailure matches every *FailureError.
	ErrFailure = errors.New("execution failure")
)

// ReasonOutputLimit is the FailureError reason when output exceeds the cap.
const ReasonOutputLimit = "output limit exceeded"

// TimeoutError is returned after the child was killed for running too long.
type TimeoutError struct {
	Binary  string
	Timeout time.Duration
	PID     int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("execution timeout: %s killed after %s", e.Binary, e.Timeout)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// FailureError is a run that completed unsuccessfully. Output is passed through verbatim.
type FailureError struct {
	Binary   string
	ExitCode int
	Stdout   string
	Stderr   string
	Reason   string
}

func (e *FailureError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("execution failure: %s: %s", e.Binary, e.Reason)
	}
	return fmt.Sprintf("execution failure: %s exited with code %d", e.Binary, e.ExitCode)
}

func (e *FailureError) Is(target error) bool { return target == ErrFailure }
