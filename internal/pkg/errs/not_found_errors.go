package errs

import (
	"errors"
	"fmt"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrStageNotFound  = errors.New("stage not found")
	ErrTokenNotFound  = errors.New("token not found")
)

// ObjectNotFoundError reports a lookup by identifier that matched nothing.
type ObjectNotFoundError struct {
	ParamName string
	ID        any
	Cause     error
}

func NewObjectNotFoundError(paramName string, id any) *ObjectNotFoundError {
	return &ObjectNotFoundError{ParamName: paramName, ID: id}
}

func NewObjectNotFoundErrorWithCause(paramName string, id any, cause error) *ObjectNotFoundError {
	return &ObjectNotFoundError{ParamName: paramName, ID: id, Cause: cause}
}

func (e *ObjectNotFoundError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: param is: %s, ID is: %s (cause: %v)", ErrObjectNotFound, e.ParamName, e.ID, e.Cause)
	}
	//nolint:perfsprint // ID may be any type
	return fmt.Sprintf("%s: %s", ErrObjectNotFound, e.ID)
}

func (e *ObjectNotFoundError) Unwrap() error {
	return ErrObjectNotFound
}

// StageNotFoundError is returned when no stage record is eligible for completion.
// It matches both ErrStageNotFound and ErrObjectNotFound.
type StageNotFoundError struct {
	OrderKey string
	Stage    string
	Reason   string
}

func NewStageNotFoundError(orderKey, stage, reason string) *StageNotFoundError {
	return &StageNotFoundError{OrderKey: orderKey, Stage: stage, Reason: reason}
}

func (e *StageNotFoundError) Error() string {
	return fmt.Sprintf("%s: %s %s: %s", ErrStageNotFound, e.OrderKey, e.Stage, e.Reason)
}

func (e *StageNotFoundError) Unwrap() []error {
	return []error{ErrStageNotFound, ErrObjectNotFound}
}

// TokenNotFoundError is returned when no live confirmation token exists.
// It matches both ErrTokenNotFound and ErrObjectNotFound.
type TokenNotFoundError struct {
	OrderKey string
	Scope    string
}

func NewTokenNotFoundError(orderKey, scope string) *TokenNotFoundError {
	return &TokenNotFoundError{OrderKey: orderKey, Scope: scope}
}

func (e *TokenNotFoundError) Error() string {
	return fmt.Sprintf("%s: no pending token for %s %s", ErrTokenNotFound, e.OrderKey, e.Scope)
}

func (e *TokenNotFoundError) Unwrap() []error {
	return []error{ErrTokenNotFound, ErrObjectNotFound}
}
