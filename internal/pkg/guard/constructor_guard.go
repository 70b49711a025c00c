// Package guard holds the constructor guard embedded by value objects and
// commands that must only be built through their constructor.
package guard

import "errors"

// ErrDefaultConstructorGuard is returned by Validate when the caller passes no error of its own.
var ErrDefaultConstructorGuard = errors.New("object must be created via its constructor")

// ConstructorGuard tells a constructed value apart from its zero value.
//
// Example:
//
//	type StageCommand struct {
//	    stage order.Stage
//	    guard guard.ConstructorGuard
//	}
//
//	func NewStageCommand(stage order.Stage) (StageCommand, error) {
//	    return StageCommand{stage: stage, guard: guard.NewConstructorGuard()}, nil
//	}
//
//	func (c StageCommand) Validate() error {
//	    return c.guard.Validate(ErrStageCommandIsNotConstructed)
//	}
type ConstructorGuard struct {
	isConstructed bool
}

// NewConstructorGuard returns a guard marked as constructed.
func NewConstructorGuard() ConstructorGuard {
	return ConstructorGuard{isConstructed: true}
}

// Validate returns validationError (or ErrDefaultConstructorGuard when it is nil)
// if the guard is a zero value.
func (g ConstructorGuard) Validate(validationError error) error {
	if validationError == nil {
		validationError = ErrDefaultConstructorGuard
	}
	if !g.isConstructed {
		return validationError
	}
	return nil
}
