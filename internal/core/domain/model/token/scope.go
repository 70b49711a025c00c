package token

import (
	"fmt"
	"strings"

	"fulfillment/internal/core/domain/model/order"
	"fulfillment/internal/pkg/errs"
)

// Scope names what a token waits for: a working stage's confirmation or a delivery slot.
type Scope string

// CapacityScope is the scope of capacity-wait tokens.
const CapacityScope Scope = "CAPACITY"

// StageScope is the scope of the confirmation token for stage.
func StageScope(stage order.Stage) Scope {
	return Scope(stage.String())
}

// ParseScope accepts CAPACITY or the name of a working stage.
func ParseScope(s string) (Scope, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if name == string(CapacityScope) {
		return CapacityScope, nil
	}

	stage, err := order.ParseStage(name)
	if err != nil || !stage.IsWorking() {
		return "", errs.NewValueIsInvalidErrorWithCause("scope", fmt.Errorf("%q is not a confirmable stage", s))
	}
	return StageScope(stage), nil
}

// Stage returns the stage a confirmation scope refers to. ok is false for CapacityScope.
func (s Scope) Stage() (order.Stage, bool) {
	if s == CapacityScope {
		return order.StageUnknown, false
	}
	stage, err := order.ParseStage(string(s))
	if err != nil {
		return order.StageUnknown, false
	}
	return stage, true
}

func (s Scope) String() string {
	return string(s)
}
