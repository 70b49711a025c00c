package token

import (
	"fmt"
	"strings"

	"fulfillment/internal/pkg/errs"
)

// Status of a token. Pending resolves to exactly one of Confirmed, Expired or Failed.
type Status int

const (
	Unknown Status = iota
	Pending
	Confirmed
	Expired
	Failed
)

func getStatusStrings() map[Status]string {
	return map[Status]string{
		Unknown:   "UNKNOWN",
		Pending:   "PENDING_CONFIRMATION",
		Confirmed: "CONFIRMED",
		Expired:   "EXPIRED",
		Failed:    "FAILED",
	}
}

func ParseStatus(s string) (Status, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for status, str := range getStatusStrings() {
		if status != Unknown && str == name {
			return status, nil
		}
	}
	return Unknown, errs.NewValueIsInvalidErrorWithCause("token status", fmt.Errorf("%q is not a known status", s))
}

func (s Status) Validate() error {
	if s <= Unknown || s > Failed {
		return errs.NewValueIsInvalidErrorWithCause("token status is invalid", fmt.Errorf("%d is not a valid status", s))
	}
	return nil
}

func (s Status) String() string {
	if str, ok := getStatusStrings()[s]; ok {
		return str
	}
	return "UNKNOWN"
}

func (s Status) IsTerminal() bool {
	return s == Confirmed || s == Expired || s == Failed
}
