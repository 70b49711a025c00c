// Package steprepo maps stage step records to the stage_steps table.
package steprepo

import (
	"time"

	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/core/domain/model/order"
	"fulfillment/internal/core/domain/model/step"
)

// StepDTO is one row of stage_steps. The partial unique index allows at most
// one IN_PROGRESS record per (order, stage).
type StepDTO struct {
	ID          uint64     `gorm:"primaryKey;autoIncrement"`
	TenantID    string     `gorm:"size:64;not null;index:idx_stage_steps_order;uniqueIndex:idx_stage_steps_in_progress,where:status = 'IN_PROGRESS'"`
	OrderID     string     `gorm:"size:64;not null;index:idx_stage_steps_order;uniqueIndex:idx_stage_steps_in_progress,where:status = 'IN_PROGRESS'"`
	Stage       string     `gorm:"size:16;not null;uniqueIndex:idx_stage_steps_in_progress,where:status = 'IN_PROGRESS'"`
	Status      string     `gorm:"size:16;not null"`
	StartedAt   time.Time  `gorm:"not null"`
	FinishedAt  *time.Time
	AssignedTo  string `gorm:"size:64"`
	CompletedBy string `gorm:"size:64"`
}

func (StepDTO) TableName() string {
	return "stage_steps"
}

// Postgres keeps microseconds, so timestamps are truncated before they are
// written or compared.
func truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func fromDomain(s *step.Step) StepDTO {
	var finishedAt *time.Time
	if f := s.FinishedAt(); f != nil {
		v := truncate(*f)
		finishedAt = &v
	}

	return StepDTO{
		TenantID:    s.Key().TenantID(),
		OrderID:     s.Key().OrderID(),
		Stage:       s.Stage().String(),
		Status:      s.Status().String(),
		StartedAt:   truncate(s.StartedAt()),
		FinishedAt:  finishedAt,
		AssignedTo:  s.AssignedTo(),
		CompletedBy: s.CompletedBy(),
	}
}

func toDomain(dto StepDTO) (*step.Step, error) {
	key, err := kernel.NewOrderKey(dto.TenantID, dto.OrderID)
	if err != nil {
		return nil, err
	}
	stage, err := order.ParseStage(dto.Stage)
	if err != nil {
		return nil, err
	}
	status, err := step.ParseStatus(dto.Status)
	if err != nil {
		return nil, err
	}

	return step.RestoreStep(key, stage, status, dto.StartedAt, dto.FinishedAt, dto.AssignedTo, dto.CompletedBy)
}
