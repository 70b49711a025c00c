package orchestration_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"fulfillment/internal/adapters/out/inproc"
	"fulfillment/internal/adapters/out/memory"
	"fulfillment/internal/core/application/admission"
	"fulfillment/internal/core/application/confirmation"
	"fulfillment/internal/core/application/orchestration"
	"fulfillment/internal/core/application/stages"
	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/core/domain/model/order"
	"fulfillment/internal/core/domain/model/step"
	"fulfillment/internal/core/domain/model/token"
	"fulfillment/internal/core/ports"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []ports.Event
}

func (n *recordingNotifier) Publish(_ context.Context, event ports.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) count(eventType string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e.Type == eventType {
			c++
		}
	}
	return c
}

type movableClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *movableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *movableClock) Jump(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	factory   *memory.UnitOfWorkFactory
	hub       *inproc.Hub
	notifier  *recordingNotifier
	clock     *movableClock
	machine   *stages.Machine
	waiter    *confirmation.Waiter
	admission *admission.Controller
	driver    *orchestration.Driver
}

func newHarness(plan orchestration.Plan, capacity int) (*harness, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{
		factory:  memory.NewUnitOfWorkFactory(memory.NewStore()),
		hub:      inproc.NewHub(logger),
		notifier: &recordingNotifier{},
		clock:    &movableClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	var err error
	if h.machine, err = stages.NewMachine(h.factory, h.notifier, h.clock, logger); err != nil {
		return nil, err
	}
	if h.waiter, err = confirmation.NewWaiter(h.factory, h.hub, h.notifier, h.clock, logger); err != nil {
		return nil, err
	}
	h.waiter.WithRetryPolicy(confirmation.RetryPolicy{MaxRetries: 1, InitialInterval: time.Millisecond})

	h.admission, err = admission.NewController(h.factory, memory.NewCapacityQueue(), h.hub, h.notifier, h.clock, logger,
		admission.Config{MaxDeliveryCapacity: capacity, WaitTimeout: time.Hour})
	if err != nil {
		return nil, err
	}

	h.driver, err = orchestration.NewDriver(h.machine, h.waiter, h.admission, h.hub, plan, logger)
	return h, err
}

func (h *harness) createOrder(ctx context.Context, id string) (kernel.OrderKey, error) {
	key, err := kernel.NewOrderKey("pardos", id)
	if err != nil {
		return kernel.OrderKey{}, err
	}
	item, err := order.NewLineItem("pollo-1/4", 2, 2590)
	if err != nil {
		return kernel.OrderKey{}, err
	}
	o, err := order.NewOrder(key, "cust-7", []order.LineItem{item}, h.clock.Now())
	if err != nil {
		return kernel.OrderKey{}, err
	}
	return key, h.factory.Create().OrderRepository().Add(ctx, o)
}

func (h *harness) order(ctx context.Context, key kernel.OrderKey) (*order.Order, error) {
	return h.factory.Create().OrderRepository().Get(ctx, key)
}

func (h *harness) steps(ctx context.Context, key kernel.OrderKey) ([]*step.Step, error) {
	return h.factory.Create().StepRepository().List(ctx, key)
}

func (h *harness) awaitingConfirmation(ctx context.Context, key kernel.OrderKey, stage order.Stage) bool {
	t, err := h.factory.Create().TokenRepository().Get(ctx, key, token.StageScope(stage))
	return err == nil && t.Status() == token.Pending
}

func (h *harness) waitingForCapacity(ctx context.Context) int {
	snap, err := h.admission.Snapshot(ctx)
	if err != nil {
		return -1
	}
	return snap.Waiting
}

