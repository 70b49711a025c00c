package order

import (
	"fmt"
	"strings"

	"fulfillment/internal/pkg/errs"
)

// Stage is a named phase of the fulfillment lifecycle.
//
// Stages form a strict sequence:
//
//	CREATED ──> COOKING ──> PACKAGING ──> DELIVERY ──> DELIVERED
//
// An order only ever moves to the immediate successor of its current stage.
// CREATED is the initial stage and has no step record; DELIVERED is terminal.
type Stage int

const (
	// StageUnknown (0) catches uninitialized Stage values.
	StageUnknown Stage = iota
	StageCreated
	StageCooking
	StagePackaging
	StageDelivery
	StageDelivered
)

// getStageStrings returns the wire names of all stages, including StageUnknown.
func getStageStrings() map[Stage]string {
	return map[Stage]string{
		StageUnknown:   "UNKNOWN",
		StageCreated:   "CREATED",
		StageCooking:   "COOKING",
		StagePackaging: "PACKAGING",
		StageDelivery:  "DELIVERY",
		StageDelivered: "DELIVERED",
	}
}

// Stages returns the lifecycle in order.
func Stages() []Stage {
	return []Stage{StageCreated, StageCooking, StagePackaging, StageDelivery, StageDelivered}
}

// ParseStage maps a wire name (case-insensitive) to a Stage.
//
// Example:
//
//	stage, err := order.ParseStage("cooking")
//	// stage == order.StageCooking
func ParseStage(s string) (Stage, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for stage, str := range getStageStrings() {
		if stage != StageUnknown && str == name {
			return stage, nil
		}
	}
	return StageUnknown, errs.NewValueIsInvalidErrorWithCause("stage", fmt.Errorf("%q is not a known stage", s))
}

// Validate rejects StageUnknown and out-of-range values.
func (s Stage) Validate() error {
	if s <= StageUnknown || s > StageDelivered {
		return errs.NewValueIsInvalidErrorWithCause("stage is invalid", fmt.Errorf("%d is not a valid stage", s))
	}
	return nil
}

// String returns the wire name of the stage, "UNKNOWN" for invalid values.
func (s Stage) String() string {
	if str, ok := getStageStrings()[s]; ok {
		return str
	}
	return "UNKNOWN"
}

// Next returns the immediate successor. ok is false for DELIVERED and invalid stages.
func (s Stage) Next() (Stage, bool) {
	if s.Validate() != nil || s == StageDelivered {
		return StageUnknown, false
	}
	return s + 1, true
}

// Previous returns the immediate predecessor. ok is false for CREATED and invalid stages.
func (s Stage) Previous() (Stage, bool) {
	if s.Validate() != nil || s == StageCreated {
		return StageUnknown, false
	}
	return s - 1, true
}

// IsWorking reports whether the stage is performed by someone and therefore
// gets an IN_PROGRESS step record: COOKING, PACKAGING and DELIVERY.
func (s Stage) IsWorking() bool {
	return s == StageCooking || s == StagePackaging || s == StageDelivery
}

// ValidateSuccessor checks that next is the immediate successor of s.
//
// Returns an InvalidTransitionError for skips, backward moves, repeats and
// moves out of DELIVERED.
func (s Stage) ValidateSuccessor(next Stage) error {
	if err := next.Validate(); err != nil {
		return err
	}

	expected, ok := s.Next()
	if !ok {
		return errs.NewInvalidTransitionError(s.String(), next.String(), "stage has no successor")
	}
	if next != expected {
		return errs.NewInvalidTransitionError(
			s.String(), next.String(), fmt.Sprintf("expected %s", expected),
		)
	}
	return nil
}
