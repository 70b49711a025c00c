package orchestration

import (
	"time"

	"fulfillment/internal/core/domain/model/order"
)

// DefaultConfirmationTimeout applies to manual stages without their own timeout.
const DefaultConfirmationTimeout = 30 * time.Minute

// Plan says which working stages wait for a human confirmation and for how long.
type Plan struct {
	Manual              map[order.Stage]bool
	Timeouts            map[order.Stage]time.Duration
	ConfirmationTimeout time.Duration
}

// AutomaticPlan runs every stage without confirmations.
func AutomaticPlan() Plan {
	return Plan{ConfirmationTimeout: DefaultConfirmationTimeout}
}

func (p Plan) IsManual(stage order.Stage) bool {
	return stage.IsWorking() && p.Manual[stage]
}

func (p Plan) TimeoutFor(stage order.Stage) time.Duration {
	if d, ok := p.Timeouts[stage]; ok && d > 0 {
		return d
	}
	if p.ConfirmationTimeout > 0 {
		return p.ConfirmationTimeout
	}
	return DefaultConfirmationTimeout
}
