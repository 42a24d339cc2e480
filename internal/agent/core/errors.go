package core

import (
	"fmt"
	"strings"
)

// ModelError is a fatal failure of a non-search model call
// (clarify, plan, write). It aborts the run.
type ModelError struct {
	Stage Stage
	Err   error
}

func (e ModelError) Error() string {
	return fmt.Sprintf("model error in %s: %v", e.Stage, e.Err)
}

func (e ModelError) Unwrap() error { return e.Err }

// SearchError is a per-task search failure. It is recoverable: the
// orchestrator substitutes a placeholder result and proceeds.
type SearchError struct {
	TaskID int
	Err    error
}

func (e SearchError) Error() string {
	return fmt.Sprintf("search task %d failed: %v", e.TaskID, e.Err)
}

func (e SearchError) Unwrap() error { return e.Err }

// GuardrailError is a blocked query or report. It is fatal: the run
// terminates without touching any later stage.
type GuardrailError struct {
	Direction string // query, report
	Flags     []string
	Reason    string
}

func (e GuardrailError) Error() string {
	return fmt.Sprintf("%s blocked by guardrail (%s): %s", e.Direction, strings.Join(e.Flags, ","), e.Reason)
}

// DeliveryError is an email or notify failure. It is logged and never
// changes a run's terminal classification.
type DeliveryError struct {
	Channel string // email, webhook
	Err     error
}

func (e DeliveryError) Error() string {
	return fmt.Sprintf("%s delivery failed: %v", e.Channel, e.Err)
}

func (e DeliveryError) Unwrap() error { return e.Err }
