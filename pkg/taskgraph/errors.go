package taskgraph

import (
	"fmt"
	"strings"
)

// UnknownTaskError is returned when a task name can't be found in the registry.
type UnknownTaskError struct {
	Name string
	// ReferencedBy is empty if the name was passed to Run directly.
	ReferencedBy string
}

func (e *UnknownTaskError) Error() string {
	if e.ReferencedBy == "" {
		return fmt.Sprintf("task %s not found", e.Name)
	}
	return fmt.Sprintf("task %s not found (referenced by %s)", e.Name, e.ReferencedBy)
}

// ActionFailureError wraps the error returned by a task's action.
type ActionFailureError struct {
	Task string
	Err  error
}

func (e *ActionFailureError) Error() string {
	return fmt.Sprintf("task %s failed: %s", e.Task, e.Err.Error())
}

func (e *ActionFailureError) Unwrap() error { return e.Err }

// PrerequisiteFailureError wraps the error of the first prerequisite that failed.
type PrerequisiteFailureError struct {
	Task         string
	Prerequisite string
	Err          error
}

func (e *PrerequisiteFailureError) Error() string {
	return fmt.Sprintf("task %s failed due to its dependency %s: %s", e.Task, e.Prerequisite, e.Err.Error())
}

func (e *PrerequisiteFailureError) Unwrap() error { return e.Err }

// CycleError is returned when a task can reach itself through its prerequisites or steps.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "task cycle detected: " + strings.Join(e.Path, " -> ")
}

// PanicError replaces the error of an action that panicked.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("action panicked: %v", e.Value)
}
