package step

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/core/domain/model/order"
	"fulfillment/internal/pkg/errs"
)

// SystemActor is recorded when no human performed or completed a stage.
const SystemActor = "system"

var ErrStepIsNotConstructed = errors.New("Step must be created via NewStep constructor")

// Step records one execution of a stage for an order.
//
// A step is identified by (order, stage, startedAt). Several records may exist
// for the same stage; the one with the latest startedAt is the live one.
// Once Completed, Done or Expired a record never changes again.
type Step struct {
	key        kernel.OrderKey
	stage      order.Stage
	status     Status
	startedAt  time.Time
	finishedAt *time.Time

	assignedTo  string
	completedBy string

	isConstructed bool
}

// NewStep starts a working stage. assignedTo defaults to SystemActor.
func NewStep(key kernel.OrderKey, stage order.Stage, startedAt time.Time, assignedTo string) (*Step, error) {
	s := &Step{
		status:        InProgress,
		startedAt:     startedAt.UTC(),
		assignedTo:    actorOrSystem(assignedTo),
		isConstructed: true,
	}

	if err := errors.Join(s.setKey(key), s.setStage(stage)); err != nil {
		return nil, err
	}
	return s, nil
}

// NewDoneStep writes an already finished record with startedAt == finishedAt.
// It is used for DELIVERED, which is reached instantly.
func NewDoneStep(key kernel.OrderKey, stage order.Stage, at time.Time, completedBy string) (*Step, error) {
	at = at.UTC()
	actor := actorOrSystem(completedBy)
	s := &Step{
		status:        Done,
		startedAt:     at,
		finishedAt:    &at,
		assignedTo:    actor,
		completedBy:   actor,
		isConstructed: true,
	}

	if err := errors.Join(s.setKey(key), s.setStage(stage)); err != nil {
		return nil, err
	}
	return s, nil
}

// RestoreStep rebuilds a record from persistence.
func RestoreStep(
	key kernel.OrderKey,
	stage order.Stage,
	status Status,
	startedAt time.Time,
	finishedAt *time.Time,
	assignedTo, completedBy string,
) (*Step, error) {
	s := &Step{
		status:        status,
		startedAt:     startedAt.UTC(),
		assignedTo:    assignedTo,
		completedBy:   completedBy,
		isConstructed: true,
	}
	if finishedAt != nil {
		f := finishedAt.UTC()
		s.finishedAt = &f
	}

	if err := errors.Join(s.setKey(key), s.setStage(stage), status.Validate()); err != nil {
		return nil, err
	}
	if status.IsFinished() && s.finishedAt == nil {
		return nil, errs.NewValueIsRequiredErrorWithCause("finishedAt", fmt.Errorf("step is %s", status))
	}
	return s, nil
}

func (s *Step) Validate() error {
	if s == nil || !s.isConstructed {
		return ErrStepIsNotConstructed
	}
	return nil
}

func (s *Step) Key() kernel.OrderKey {
	return s.key
}

func (s *Step) Stage() order.Stage {
	return s.stage
}

func (s *Step) Status() Status {
	return s.status
}

func (s *Step) StartedAt() time.Time {
	return s.startedAt
}

// FinishedAt is nil while the step is in progress.
func (s *Step) FinishedAt() *time.Time {
	return s.finishedAt
}

func (s *Step) AssignedTo() string {
	return s.assignedTo
}

func (s *Step) CompletedBy() string {
	return s.completedBy
}

// SortKey renders STEP#<stage>#<startedAt>, which orders records of one stage chronologically.
func (s *Step) SortKey() string {
	return fmt.Sprintf("STEP#%s#%s", s.stage, s.startedAt.Format(time.RFC3339Nano))
}

// DurationSeconds is the whole number of seconds between start and finish,
// fractional seconds truncated. It is 0 for unfinished records.
func (s *Step) DurationSeconds() int64 {
	if s.finishedAt == nil {
		return 0
	}
	return int64(s.finishedAt.Sub(s.startedAt) / time.Second)
}

// Complete finishes an in-progress record and returns its duration in seconds.
func (s *Step) Complete(now time.Time, actor string) (int64, error) {
	if s.status != InProgress {
		return 0, errs.NewInvalidTransitionError(s.status.String(), Completed.String(),
			fmt.Sprintf("%s step is not in progress", s.stage))
	}

	finished := now.UTC()
	if finished.Before(s.startedAt) {
		finished = s.startedAt
	}

	s.status = Completed
	s.finishedAt = &finished
	s.completedBy = actorOrSystem(actor)
	return s.DurationSeconds(), nil
}

// Expire closes an in-progress record whose confirmation timed out.
func (s *Step) Expire(now time.Time) error {
	if s.status != InProgress {
		return errs.NewInvalidTransitionError(s.status.String(), Expired.String(),
			fmt.Sprintf("%s step is not in progress", s.stage))
	}

	finished := now.UTC()
	s.status = Expired
	s.finishedAt = &finished
	return nil
}

// Latest returns the record with the latest startedAt. Ties go to the later
// element of steps, which repositories return in insertion order.
func Latest(steps []*Step) *Step {
	var latest *Step
	for _, s := range steps {
		if latest == nil || !s.startedAt.Before(latest.startedAt) {
			latest = s
		}
	}
	return latest
}

func (s *Step) setKey(key kernel.OrderKey) error {
	if err := key.Validate(); err != nil {
		return err
	}
	s.key = key
	return nil
}

func (s *Step) setStage(stage order.Stage) error {
	if err := stage.Validate(); err != nil {
		return err
	}
	if stage == order.StageCreated {
		return errs.NewValueIsInvalidErrorWithCause("stage", errors.New("CREATED has no step record"))
	}
	s.stage = stage
	return nil
}

func actorOrSystem(actor string) string {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return SystemActor
	}
	return actor
}
