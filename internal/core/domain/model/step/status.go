package step

import (
	"fmt"
	"strings"

	"fulfillment/internal/pkg/errs"
)

// Status is the state of one stage step record.
//
//	InProgress ──┬──> Completed
//	             └──> Expired
//
// Done is written directly for the DELIVERED stage, which has no duration.
type Status int

const (
	Unknown Status = iota
	InProgress
	Completed
	Done
	Expired
)

func getStatusStrings() map[Status]string {
	return map[Status]string{
		Unknown:    "UNKNOWN",
		InProgress: "IN_PROGRESS",
		Completed:  "COMPLETED",
		Done:       "DONE",
		Expired:    "EXPIRED",
	}
}

func ParseStatus(s string) (Status, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for status, str := range getStatusStrings() {
		if status != Unknown && str == name {
			return status, nil
		}
	}
	return Unknown, errs.NewValueIsInvalidErrorWithCause("step status", fmt.Errorf("%q is not a known status", s))
}

func (s Status) Validate() error {
	if s <= Unknown || s > Expired {
		return errs.NewValueIsInvalidErrorWithCause("step status is invalid", fmt.Errorf("%d is not a valid status", s))
	}
	return nil
}

func (s Status) String() string {
	if str, ok := getStatusStrings()[s]; ok {
		return str
	}
	return "UNKNOWN"
}

// IsFinished reports whether the record is immutable.
func (s Status) IsFinished() bool {
	return s == Completed || s == Done || s == Expired
}
