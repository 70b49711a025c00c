package order

import (
	"fmt"
	"strings"

	"fulfillment/internal/pkg/errs"
)

// Status is the overall state of an order, independent of its stage.
//
// State transitions:
//
//	Created ──> InProgress ──┬──> Completed
//	                         ├──> Expired
//	                         └──> Failed
//
// Completed, Expired and Failed are final.
type Status int

const (
	// Unknown represents an invalid or undefined status.
	Unknown Status = iota

	// Created is the status of a new order that has not entered COOKING.
	Created

	// InProgress covers every working stage (COOKING, PACKAGING, DELIVERY).
	InProgress

	// Completed is set when the order reaches DELIVERED.
	Completed

	// Expired is set when a confirmation or capacity wait timed out.
	Expired

	// Failed is set when a stage was explicitly rejected.
	Failed
)

func getStatusStrings() map[Status]string {
	return map[Status]string{
		Unknown:    "UNKNOWN",
		Created:    "CREATED",
		InProgress: "IN_PROGRESS",
		Completed:  "COMPLETED",
		Expired:    "EXPIRED",
		Failed:     "FAILED",
	}
}

// ParseStatus maps a wire name to a Status.
func ParseStatus(s string) (Status, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for status, str := range getStatusStrings() {
		if status != Unknown && str == name {
			return status, nil
		}
	}
	return Unknown, errs.NewValueIsInvalidErrorWithCause("status", fmt.Errorf("%q is not a known status", s))
}

// Validate rejects Unknown and out-of-range values.
func (s Status) Validate() error {
	if s <= Unknown || s > Failed {
		return errs.NewValueIsInvalidErrorWithCause("status is invalid", fmt.Errorf("%d is not a valid status", s))
	}
	return nil
}

func (s Status) String() string {
	if str, ok := getStatusStrings()[s]; ok {
		return str
	}
	return "UNKNOWN"
}

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == Completed || s == Expired || s == Failed
}

// Start transitions into InProgress. Created and InProgress may start a stage.
func (s Status) Start() (Status, error) {
	if s != Created && s != InProgress {
		return Unknown, errs.NewInvalidTransitionError(s.String(), InProgress.String(), "order is not active")
	}
	return InProgress, nil
}

// Complete transitions InProgress into Completed.
func (s Status) Complete() (Status, error) {
	if s != InProgress {
		return Unknown, errs.NewInvalidTransitionError(s.String(), Completed.String(), "order is not in progress")
	}
	return Completed, nil
}

// Expire transitions an active order into Expired.
func (s Status) Expire() (Status, error) {
	if s.IsTerminal() || s.Validate() != nil {
		return Unknown, errs.NewInvalidTransitionError(s.String(), Expired.String(), "order is not active")
	}
	return Expired, nil
}

// Fail transitions an active order into Failed.
func (s Status) Fail() (Status, error) {
	if s.IsTerminal() || s.Validate() != nil {
		return Unknown, errs.NewInvalidTransitionError(s.String(), Failed.String(), "order is not active")
	}
	return Failed, nil
}
