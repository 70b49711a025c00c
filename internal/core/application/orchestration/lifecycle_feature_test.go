package orchestration_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"fulfillment/internal/core/application/orchestration"
	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/core/domain/model/order"
	"fulfillment/internal/pkg/errs"

	"github.com/cucumber/godog"
)

type lifecycleTestContext struct {
	ctx      context.Context
	capacity int
	plan     orchestration.Plan
	h        *harness
	keys     map[string]kernel.OrderKey
	current  kernel.OrderKey
}

func (c *lifecycleTestContext) reset() {
	c.ctx = context.Background()
	c.capacity = 5
	c.plan = orchestration.Plan{Manual: map[order.Stage]bool{}, Timeouts: map[order.Stage]time.Duration{}}
	c.h = nil
	c.keys = map[string]kernel.OrderKey{}
}

func (c *lifecycleTestContext) harness() (*harness, error) {
	if c.h != nil {
		return c.h, nil
	}
	h, err := newHarness(c.plan, c.capacity)
	c.h = h
	return h, err
}

func (c *lifecycleTestContext) aDeliveryCapacityOf(n int) error {
	c.capacity = n
	return nil
}

func (c *lifecycleTestContext) stageNeedsConfirmationWithin(name string, minutes int) error {
	stage, err := order.ParseStage(name)
	if err != nil {
		return err
	}
	c.plan.Manual[stage] = true
	c.plan.Timeouts[stage] = time.Duration(minutes) * time.Minute
	return nil
}

func (c *lifecycleTestContext) anOrder(id string) error {
	h, err := c.harness()
	if err != nil {
		return err
	}
	key, err := h.createOrder(c.ctx, id)
	if err != nil {
		return err
	}
	c.keys[id] = key
	c.current = key
	return nil
}

func (c *lifecycleTestContext) anOrderHoldingADeliverySlot(id string) error {
	if err := c.anOrder(id); err != nil {
		return err
	}
	a, err := c.h.admission.RequestDeliverySlot(c.ctx, c.keys[id], "")
	if err != nil {
		return err
	}
	if !a.CanProceed {
		return fmt.Errorf("order %s was not admitted", id)
	}
	return nil
}

func (c *lifecycleTestContext) theOrderIsDrivenToTheEnd() error {
	return c.h.driver.Run(c.ctx, c.current)
}

func (c *lifecycleTestContext) theOrderIsLaunched() error {
	return c.h.driver.Launch(context.Background(), c.current)
}

func (c *lifecycleTestContext) actorConfirmsStage(actor, name, id string) error {
	stage, err := order.ParseStage(name)
	if err != nil {
		return err
	}
	key := c.keys[id]
	if err := eventually(func() bool { return c.h.awaitingConfirmation(c.ctx, key, stage) }); err != nil {
		return err
	}
	_, err = c.h.waiter.Confirm(c.ctx, key, stage, actor)
	return err
}

func (c *lifecycleTestContext) minutesPassAndTheSweepRuns(minutes int) error {
	if err := eventually(func() bool { return c.pendingConfirmations() > 0 }); err != nil {
		return err
	}
	c.h.clock.Jump(time.Duration(minutes) * time.Minute)
	_, err := c.h.waiter.SweepExpired(c.ctx)
	return err
}

func (c *lifecycleTestContext) pendingConfirmations() int {
	n := 0
	for _, key := range c.keys {
		for _, stage := range []order.Stage{order.StageCooking, order.StagePackaging, order.StageDelivery} {
			if c.h.awaitingConfirmation(c.ctx, key, stage) {
				n++
			}
		}
	}
	return n
}

func (c *lifecycleTestContext) theOrderIsAt(id, status, stageName string) error {
	c.h.driver.Wait()

	o, err := c.h.order(c.ctx, c.keys[id])
	if err != nil {
		return err
	}
	if o.Status().String() != status || o.CurrentStage().String() != stageName {
		return fmt.Errorf("order %s is %s at %s, want %s at %s", id, o.Status(), o.CurrentStage(), status, stageName)
	}
	return nil
}

func (c *lifecycleTestContext) theOrderHasFinishedStageRecords(id string, n int) error {
	steps, err := c.h.steps(c.ctx, c.keys[id])
	if err != nil {
		return err
	}
	finished := 0
	for _, s := range steps {
		if s.Status().IsFinished() {
			finished++
		}
	}
	if finished != n {
		return fmt.Errorf("order %s has %d finished records, want %d", id, finished, n)
	}
	return nil
}

func (c *lifecycleTestContext) stageWasCompletedBy(name, id, actor string) error {
	steps, err := c.h.steps(c.ctx, c.keys[id])
	if err != nil {
		return err
	}
	for _, s := range steps {
		if s.Stage().String() == name {
			if s.CompletedBy() != actor {
				return fmt.Errorf("%s was completed by %q", name, s.CompletedBy())
			}
			return nil
		}
	}
	return fmt.Errorf("no %s record", name)
}

func (c *lifecycleTestContext) confirmingFailsWithTokenNotFound(name, id string) error {
	stage, err := order.ParseStage(name)
	if err != nil {
		return err
	}
	_, err = c.h.waiter.Confirm(c.ctx, c.keys[id], stage, "someone")
	if !errors.Is(err, errs.ErrTokenNotFound) {
		return fmt.Errorf("expected token not found, got %v", err)
	}
	return nil
}

func (c *lifecycleTestContext) ordersAreWaitingForCapacity(n int) error {
	return eventually(func() bool { return c.h.waitingForCapacity(c.ctx) == n })
}

func (c *lifecycleTestContext) theDeliverySlotIsReleased(id string) error {
	_, err := c.h.admission.ReleaseDeliverySlot(c.ctx, c.keys[id])
	return err
}

func eventually(cond func() bool) error {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return nil
		}
		time.Sleep(5 * time.Millisecond)
	}
	return errors.New("condition not met in time")
}

func InitializeLifecycleScenario(ctx *godog.ScenarioContext) {
	tc := &lifecycleTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})
	ctx.After(func(ctx context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		if tc.h != nil {
			tc.h.driver.Close()
		}
		return ctx, nil
	})

	// Given steps
	ctx.Step(`^a delivery capacity of (\d+)$`, tc.aDeliveryCapacityOf)
	ctx.Step(`^([A-Z]+) needs confirmation within (\d+) minutes$`, tc.stageNeedsConfirmationWithin)
	ctx.Step(`^an order "([^"]*)"$`, tc.anOrder)
	ctx.Step(`^an order "([^"]*)" holding a delivery slot$`, tc.anOrderHoldingADeliverySlot)

	// When steps
	ctx.Step(`^the order is driven to the end$`, tc.theOrderIsDrivenToTheEnd)
	ctx.Step(`^the order is launched$`, tc.theOrderIsLaunched)
	ctx.Step(`^"([^"]*)" confirms ([A-Z]+) of order "([^"]*)"$`, tc.actorConfirmsStage)
	ctx.Step(`^(\d+) minutes pass and the expiry sweep runs$`, tc.minutesPassAndTheSweepRuns)
	ctx.Step(`^the delivery slot of "([^"]*)" is released$`, tc.theDeliverySlotIsReleased)

	// Then steps
	ctx.Step(`^the order "([^"]*)" is ([A-Z_]+) at ([A-Z]+)$`, tc.theOrderIsAt)
	ctx.Step(`^the order "([^"]*)" has (\d+) finished stage records$`, tc.theOrderHasFinishedStageRecords)
	ctx.Step(`^([A-Z]+) of order "([^"]*)" was completed by "([^"]*)"$`, tc.stageWasCompletedBy)
	ctx.Step(`^confirming ([A-Z]+) of order "([^"]*)" fails with token not found$`, tc.confirmingFailsWithTokenNotFound)
	ctx.Step(`^(\d+) orders? (?:is|are) waiting for delivery capacity$`, tc.ordersAreWaitingForCapacity)
}

func TestLifecycleFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeLifecycleScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features/order_lifecycle.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
