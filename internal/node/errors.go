package node

import (
	"errors"
	"fmt"
)

var (
	// ErrKillFailure matches every *KillFailureError.
	ErrKillFailure = errors.New("process kill failure")

	// ErrStart matches every *StartError.
	ErrStart = errors.New("daemon start failure")
)

// KillFailureError lists processes that survived the full escalation.
type KillFailureError struct {
	Survivors []int

	// StillHealthy is set when the endpoint kept answering after the stop.
	StillHealthy bool
}

func (e *KillFailureError) Error() string {
	if len(e.Survivors) == 0 && e.StillHealthy {
		return "process kill failure: endpoint still healthy after stop"
	}
	return fmt.Sprintf("process kill failure: survivors %v", e.Survivors)
}

func (e *KillFailureError) Is(target error) bool { return target == ErrKillFailure }

// StartError reports a daemon that did not become healthy.
type StartError struct {
	Reason     string
	SpawnedPID int
	PIDs       []int
	State      State
	Err        error
}

func (e *StartError) Error() string {
	msg := "daemon start failure: " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StartError) Unwrap() error { return e.Err }

func (e *StartError) Is(target error) bool { return target == ErrStart }
