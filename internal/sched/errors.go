package sched

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyQueue indicates a blend was requested with no live chunks.
	// This is a logic error in the caller's configuration, never a
	// transient condition.
	ErrEmptyQueue = errors.New("sched: action queue empty at blend time")

	// ErrNoFallback indicates the policy failed before any chunk was cached.
	ErrNoFallback = errors.New("sched: policy failed and no previous chunk is cached")

	// ErrUnknownMode indicates an unrecognised control mode name.
	ErrUnknownMode = errors.New("sched: unknown control mode")
)

// StepError attaches the control step to an Act failure.
type StepError struct {
	Step int
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
