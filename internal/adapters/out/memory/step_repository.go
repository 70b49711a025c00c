package memory

import (
	"context"
	"fmt"
	"slices"

	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/core/domain/model/order"
	"fulfillment/internal/core/domain/model/step"
	"fulfillment/internal/pkg/errs"
)

type stepRepository struct {
	uow *UnitOfWork
}

func (r *stepRepository) Add(ctx context.Context, record *step.Step) error {
	if err := record.Validate(); err != nil {
		return err
	}

	return r.uow.with(ctx, func(st *state) error {
		id := record.Key().String()
		if record.Status() == step.InProgress {
			for _, existing := range st.steps[id] {
				if existing.stage == record.Stage() && existing.status == step.InProgress {
					return fmt.Errorf("%w: %s %s already in progress", errs.ErrConcurrentUpdate, id, record.Stage())
				}
			}
		}
		st.steps[id] = append(st.steps[id], stepFromDomain(record))
		return nil
	})
}

func (r *stepRepository) ListByStage(ctx context.Context, key kernel.OrderKey, stage order.Stage) ([]*step.Step, error) {
	return r.list(ctx, key, func(rec stepRecord) bool { return rec.stage == stage })
}

func (r *stepRepository) List(ctx context.Context, key kernel.OrderKey) ([]*step.Step, error) {
	return r.list(ctx, key, func(stepRecord) bool { return true })
}

func (r *stepRepository) list(ctx context.Context, key kernel.OrderKey, match func(stepRecord) bool) ([]*step.Step, error) {
	var steps []*step.Step
	err := r.uow.with(ctx, func(st *state) error {
		for _, rec := range st.steps[key.String()] {
			if !match(rec) {
				continue
			}
			s, err := rec.toDomain()
			if err != nil {
				return err
			}
			steps = append(steps, s)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(steps, func(a, b *step.Step) int {
		return a.StartedAt().Compare(b.StartedAt())
	})
	return steps, nil
}

func (r *stepRepository) UpdateIfStatus(ctx context.Context, record *step.Step, expected step.Status) error {
	if err := record.Validate(); err != nil {
		return err
	}

	return r.uow.with(ctx, func(st *state) error {
		id := record.Key().String()
		records := st.steps[id]
		for i := len(records) - 1; i >= 0; i-- {
			if !records[i].sameInstance(record) {
				continue
			}
			if records[i].status != expected {
				return fmt.Errorf("%w: %s %s is %s, expected %s",
					errs.ErrConcurrentUpdate, id, record.Stage(), records[i].status, expected)
			}
			records[i] = stepFromDomain(record)
			return nil
		}
		return errs.NewObjectNotFoundError("step", record.SortKey())
	})
}
