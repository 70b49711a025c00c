package ports

import (
	"context"
	"errors"
	"time"
)

// ErrContinuationGone is returned when a handle no longer refers to a parked
// continuation (already resumed, timed out upstream or never parked).
var ErrContinuationGone = errors.New("continuation gone")

// Failure kinds carried by a failed Outcome.
const (
	FailureTokenExpired         = "TokenExpired"
	FailureConfirmationRejected = "ConfirmationRejected"
)

// Outcome is what a suspended orchestration receives when it is resumed.
type Outcome struct {
	Success bool `json:"success"`

	// Actor and At describe a successful confirmation or grant.
	Actor string    `json:"actor,omitempty"`
	At    time.Time `json:"at"`

	QueuePosition int `json:"queuePosition,omitempty"`

	// FailureKind and Cause describe a failure.
	FailureKind string `json:"failureKind,omitempty"`
	Cause       string `json:"cause,omitempty"`
}

// Continuations is the handle-based resumption mechanism of the orchestration
// engine. A continuation is parked once and resolved at most once.
type Continuations interface {
	// Park registers the caller's continuation token and returns the handle
	// under which it can be resolved.
	Park(ctx context.Context, continuationToken string) (string, error)

	// Resolve resumes the continuation with a success outcome.
	Resolve(ctx context.Context, handle string, outcome Outcome) error

	// Fail resumes the continuation with a failure of the given kind.
	Fail(ctx context.Context, handle, kind, cause string) error

	// Heartbeat signals that a parked continuation is still legitimately waiting.
	Heartbeat(ctx context.Context, handle string) error
}

// ContinuationAwaiter blocks until a parked continuation is resolved.
// Implemented by in-process engines; durable engines resume on their own.
type ContinuationAwaiter interface {
	Await(ctx context.Context, handle string) (Outcome, error)
}
