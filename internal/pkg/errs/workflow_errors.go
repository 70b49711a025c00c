package errs

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition    = errors.New("invalid transition")
	ErrTokenExpired         = errors.New("token expired")
	ErrConfirmationRejected = errors.New("confirmation rejected")
	ErrConcurrentUpdate     = errors.New("concurrent update")

	ErrStoreUnavailable        = errors.New("store unavailable")
	ErrNotifierUnavailable     = errors.New("notifier unavailable")
	ErrContinuationUnavailable = errors.New("continuation unavailable")
)

// InvalidTransitionError reports a stage move the lifecycle does not allow.
type InvalidTransitionError struct {
	From   string
	To     string
	Reason string
}

func NewInvalidTransitionError(from, to, reason string) *InvalidTransitionError {
	return &InvalidTransitionError{From: from, To: to, Reason: reason}
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s: %s", ErrInvalidTransition, e.From, e.To, e.Reason)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// TokenExpiredError is the failure a suspended caller receives when its
// confirmation or capacity wait ran out.
type TokenExpiredError struct {
	OrderKey string
	Scope    string
}

func NewTokenExpiredError(orderKey, scope string) *TokenExpiredError {
	return &TokenExpiredError{OrderKey: orderKey, Scope: scope}
}

func (e *TokenExpiredError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrTokenExpired, e.OrderKey, e.Scope)
}

func (e *TokenExpiredError) Unwrap() error {
	return ErrTokenExpired
}

// ConfirmationRejectedError is the failure a suspended caller receives when an
// operator explicitly rejected the stage.
type ConfirmationRejectedError struct {
	OrderKey string
	Scope    string
	Reason   string
}

func NewConfirmationRejectedError(orderKey, scope, reason string) *ConfirmationRejectedError {
	return &ConfirmationRejectedError{OrderKey: orderKey, Scope: scope, Reason: reason}
}

func (e *ConfirmationRejectedError) Error() string {
	return fmt.Sprintf("%s: %s %s: %s", ErrConfirmationRejected, e.OrderKey, e.Scope, e.Reason)
}

func (e *ConfirmationRejectedError) Unwrap() error {
	return ErrConfirmationRejected
}

// UnavailableError wraps an infrastructure failure of a collaborator.
// errors.Is matches both the kind sentinel and the underlying cause.
type UnavailableError struct {
	Kind  error
	Cause error
}

func NewStoreUnavailableError(cause error) *UnavailableError {
	return &UnavailableError{Kind: ErrStoreUnavailable, Cause: cause}
}

func NewNotifierUnavailableError(cause error) *UnavailableError {
	return &UnavailableError{Kind: ErrNotifierUnavailable, Cause: cause}
}

func NewContinuationUnavailableError(cause error) *UnavailableError {
	return &UnavailableError{Kind: ErrContinuationUnavailable, Cause: cause}
}

func (e *UnavailableError) Error() string {
	return withCause(e.Kind.Error(), e.Cause)
}

func (e *UnavailableError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}
