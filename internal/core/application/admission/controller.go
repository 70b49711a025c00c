// Package admission gates entry into DELIVERY against a fixed number of slots.
//
// The reservation set in the store is authoritative. Every decision runs
// under a process mutex and a store-level capacity lock, so concurrent
// requests never overshoot the cap. The capacity queue only carries one
// marker per reservation for collaborators and is never counted.
package admission

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/core/domain/model/order"
	"fulfillment/internal/core/domain/model/reservation"
	"fulfillment/internal/core/domain/model/step"
	"fulfillment/internal/core/domain/model/token"
	"fulfillment/internal/core/domain/services"
	"fulfillment/internal/core/ports"
	"fulfillment/internal/pkg/errs"
	"fulfillment/internal/pkg/retry"

	"github.com/cenkalti/backoff/v4"
)

// Admission statuses.
const (
	StatusAdmitted        = "ADMITTED"
	StatusWaitingCapacity = "WAITING_CAPACITY"
)

// DefaultWaitTimeout bounds how long an order waits for a slot.
const DefaultWaitTimeout = 30 * time.Minute

type Config struct {
	MaxDeliveryCapacity int
	WaitTimeout         time.Duration
}

// Admission is the outcome of RequestDeliverySlot.
//
// When admitted, QueuePosition is the slot number taken. When waiting it is
// the 1-based position among waiters and Handle resolves on grant.
type Admission struct {
	CanProceed    bool
	Status        string
	QueuePosition int
	InFlight      int
	MaxCapacity   int
	Handle        string
}

// Release is the outcome of ReleaseDeliverySlot.
type Release struct {
	Released bool
	Granted  []kernel.OrderKey
}

// Snapshot describes current capacity usage.
type Snapshot struct {
	InFlight    int
	Waiting     int
	MaxCapacity int
	QueueDepth  int
}

type marker struct {
	TenantID   string    `json:"tenantId"`
	OrderID    string    `json:"orderId"`
	ReservedAt time.Time `json:"reservedAt"`
}

type grant struct {
	waiter *token.Token
	handle string
}

// Controller is the capacity admission controller. Safe for concurrent use.
type Controller struct {
	mu sync.Mutex

	uowFactory    ports.UnitOfWorkFactory
	queue         ports.CapacityQueue
	continuations ports.Continuations
	notifier      ports.EventNotifier
	policy        services.CapacityPolicy
	waitTimeout   time.Duration
	resolveRetry  retry.Policy
	clock         kernel.Clock
	logger        *slog.Logger
}

func NewController(
	uowFactory ports.UnitOfWorkFactory,
	queue ports.CapacityQueue,
	continuations ports.Continuations,
	notifier ports.EventNotifier,
	clock kernel.Clock,
	logger *slog.Logger,
	cfg Config,
) (*Controller, error) {
	if uowFactory == nil {
		return nil, errs.NewValueIsRequiredError("uowFactory")
	}
	if queue == nil {
		return nil, errs.NewValueIsRequiredError("queue")
	}
	if continuations == nil {
		return nil, errs.NewValueIsRequiredError("continuations")
	}
	if notifier == nil {
		return nil, errs.NewValueIsRequiredError("notifier")
	}
	if clock == nil {
		clock = kernel.SystemClock{}
	}
	if cfg.MaxDeliveryCapacity == 0 {
		cfg.MaxDeliveryCapacity = services.DefaultMaxDeliveryCapacity
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = DefaultWaitTimeout
	}

	policy, err := services.NewCapacityPolicy(cfg.MaxDeliveryCapacity)
	if err != nil {
		return nil, err
	}

	return &Controller{
		uowFactory:    uowFactory,
		queue:         queue,
		continuations: continuations,
		notifier:      notifier,
		policy:        policy,
		waitTimeout:   cfg.WaitTimeout,
		resolveRetry:  retry.DefaultPolicy,
		clock:         clock,
		logger:        logger.With("component", "AdmissionController"),
	}, nil
}

// WithRetryPolicy replaces the policy used to resume granted waiters.
func (c *Controller) WithRetryPolicy(p retry.Policy) *Controller {
	c.resolveRetry = p
	return c
}

func (c *Controller) MaxCapacity() int {
	return c.policy.MaxCapacity()
}

// RequestDeliverySlot reserves a slot for key when one is free and nobody is
// queued ahead. Otherwise it parks continuationToken behind a capacity-wait
// token and reports WAITING_CAPACITY. Repeated calls are idempotent.
func (c *Controller) RequestDeliverySlot(ctx context.Context, key kernel.OrderKey, continuationToken string) (Admission, error) {
	if err := key.Validate(); err != nil {
		return Admission{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	uow := c.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return Admission{}, errs.NewStoreUnavailableError(err)
	}
	defer func() { _ = uow.Rollback(ctx) }()

	reservations := uow.ReservationRepository()
	if err := reservations.LockCapacity(ctx); err != nil {
		return Admission{}, errs.NewStoreUnavailableError(err)
	}

	inFlight, err := reservations.Count(ctx)
	if err != nil {
		return Admission{}, err
	}

	held, err := reservations.Get(ctx, key)
	switch {
	case err == nil:
		return c.admitted(inFlight, held.Handle()), nil
	case !errors.Is(err, errs.ErrObjectNotFound):
		return Admission{}, err
	}

	now := c.clock.Now()
	waiters, err := uow.TokenRepository().ListPending(ctx, token.CapacityScope)
	if err != nil {
		return Admission{}, err
	}
	for _, w := range waiters {
		if !w.Key().IsEqual(key) {
			continue
		}
		if !w.IsLive(now) {
			return Admission{}, errs.NewTokenExpiredError(key.String(), token.CapacityScope.String())
		}
		return c.waiting(inFlight, c.policy.QueuePosition(waiters, key, now), w.Handle()), nil
	}

	queued := c.policy.Queue(waiters, now)
	if c.policy.Admit(inFlight, len(queued)) {
		handle, err := c.reserve(ctx, reservations, key, now)
		if err != nil {
			return Admission{}, err
		}
		if err := uow.Commit(ctx); err != nil {
			c.dequeue(ctx, key, handle)
			return Admission{}, errs.NewStoreUnavailableError(err)
		}

		c.logger.InfoContext(ctx, "delivery slot reserved",
			"order", key.String(), "inFlight", inFlight+1, "max", c.policy.MaxCapacity())
		c.publish(ctx, ports.EventDeliverySlotReserved, key, map[string]any{
			"inFlight":    inFlight + 1,
			"maxCapacity": c.policy.MaxCapacity(),
		})
		return c.admitted(inFlight+1, handle), nil
	}

	handle, err := c.continuations.Park(ctx, continuationToken)
	if err != nil {
		return Admission{}, err
	}

	t, err := token.NewToken(key, token.CapacityScope, handle, now, c.waitTimeout)
	if err == nil {
		err = uow.TokenRepository().Put(ctx, t)
	}
	if err == nil {
		if err = uow.Commit(ctx); err != nil {
			err = errs.NewStoreUnavailableError(err)
		}
	}
	if err != nil {
		if failErr := c.continuations.Fail(ctx, handle, ports.FailureTokenExpired, "capacity wait was not persisted"); failErr != nil {
			c.logger.WarnContext(ctx, "failed to release parked continuation", "handle", handle, "error", failErr)
		}
		return Admission{}, err
	}

	position := len(queued) + 1
	c.logger.InfoContext(ctx, "waiting for delivery capacity",
		"order", key.String(), "position", position, "inFlight", inFlight)
	c.publish(ctx, ports.EventDeliveryCapacityWaiting, key, map[string]any{
		"queuePosition": position,
		"inFlight":      inFlight,
		"maxCapacity":   c.policy.MaxCapacity(),
		"expiresAt":     t.ExpiresAt().Format(time.RFC3339Nano),
	})
	return c.waiting(inFlight, position, handle), nil
}

// ReleaseDeliverySlot frees the slot held by key and grants free slots to
// waiters oldest first. Releasing without a reservation still grants.
// Waiters whose continuation is gone give their slot back immediately.
func (c *Controller) ReleaseDeliverySlot(ctx context.Context, key kernel.OrderKey) (Release, error) {
	if err := key.Validate(); err != nil {
		return Release{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.release(ctx, key, false)
}

// Heartbeat signals every live capacity waiter that it is still queued.
// It returns the number of continuations reached.
func (c *Controller) Heartbeat(ctx context.Context) (int, error) {
	waiters, err := c.uowFactory.Create().TokenRepository().ListPending(ctx, token.CapacityScope)
	if err != nil {
		return 0, err
	}

	reached := 0
	for _, w := range c.policy.Queue(waiters, c.clock.Now()) {
		if err := c.continuations.Heartbeat(ctx, w.Handle()); err != nil {
			c.logger.WarnContext(ctx, "heartbeat failed", "order", w.Key().String(), "error", err)
			continue
		}
		reached++
	}
	return reached, nil
}

// ReapStale releases reservations held longer than maxAge and grants their
// slots. A reservation whose order is still out for delivery is kept however
// old it is.
func (c *Controller) ReapStale(ctx context.Context, maxAge time.Duration) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	held, err := c.uowFactory.Create().ReservationRepository().List(ctx)
	if err != nil {
		return 0, err
	}

	now := c.clock.Now()
	reaped := 0
	for _, r := range held {
		if !r.IsStale(now, maxAge) {
			continue
		}
		result, err := c.release(ctx, r.Key(), true)
		if err != nil {
			return reaped, err
		}
		if !result.Released {
			continue
		}
		c.logger.WarnContext(ctx, "stale delivery reservation reaped",
			"order", r.Key().String(), "reservedAt", r.ReservedAt())
		reaped++
	}
	return reaped, nil
}

// RedeliverGrants retries resuming waiters that were granted a slot but never
// acknowledged it. A grant whose continuation is gone gives its slot back.
// It returns the number settled by this call.
func (c *Controller) RedeliverGrants(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	undelivered, err := c.uowFactory.Create().TokenRepository().ListUndelivered(ctx)
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, t := range undelivered {
		if t.Scope() != token.CapacityScope || t.Status() != token.Confirmed {
			continue
		}

		err := c.handOver(ctx, t, 0)
		switch {
		case errors.Is(err, ports.ErrContinuationGone):
			c.logger.WarnContext(ctx, "capacity waiter is gone, returning its slot", "order", t.Key().String())
			if _, err := c.release(ctx, t.Key(), true); err != nil {
				return settled, err
			}
		case err != nil:
			continue
		}
		settled++
	}
	return settled, nil
}

// Snapshot reports current usage. The queue depth is approximate.
func (c *Controller) Snapshot(ctx context.Context) (Snapshot, error) {
	uow := c.uowFactory.Create()
	inFlight, err := uow.ReservationRepository().Count(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	waiters, err := uow.TokenRepository().ListPending(ctx, token.CapacityScope)
	if err != nil {
		return Snapshot{}, err
	}

	depth, err := c.queue.ApproximateDepth(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to read queue depth", "error", err)
		depth = -1
	}

	return Snapshot{
		InFlight:    inFlight,
		Waiting:     len(c.policy.Queue(waiters, c.clock.Now())),
		MaxCapacity: c.policy.MaxCapacity(),
		QueueDepth:  depth,
	}, nil
}

// release runs with c.mu held. Slots granted to vanished waiters are
// released again in the same call. With idleOnly set, key keeps its slot
// while its order is out for delivery.
func (c *Controller) release(ctx context.Context, key kernel.OrderKey, idleOnly bool) (Release, error) {
	result := Release{}
	pending := []kernel.OrderKey{key}

	for len(pending) > 0 {
		next := pending[0]
		pending = pending[1:]

		released, granted, gone, err := c.releaseOne(ctx, next, idleOnly && next.IsEqual(key))
		if err != nil {
			return result, err
		}
		if next.IsEqual(key) {
			result.Released = released
		}
		result.Granted = append(result.Granted, granted...)
		pending = append(pending, gone...)
	}
	return result, nil
}

func (c *Controller) releaseOne(
	ctx context.Context,
	key kernel.OrderKey,
	idleOnly bool,
) (bool, []kernel.OrderKey, []kernel.OrderKey, error) {
	uow := c.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return false, nil, nil, errs.NewStoreUnavailableError(err)
	}
	defer func() { _ = uow.Rollback(ctx) }()

	reservations := uow.ReservationRepository()
	if err := reservations.LockCapacity(ctx); err != nil {
		return false, nil, nil, errs.NewStoreUnavailableError(err)
	}

	if idleOnly {
		delivering, err := c.outForDelivery(ctx, uow, key)
		if err != nil {
			return false, nil, nil, err
		}
		if delivering {
			c.logger.InfoContext(ctx, "keeping reservation of order out for delivery", "order", key.String())
			return false, nil, nil, nil
		}
	}

	released := true
	held, err := reservations.Get(ctx, key)
	switch {
	case errors.Is(err, errs.ErrObjectNotFound):
		released = false
	case err != nil:
		return false, nil, nil, err
	default:
		if err := reservations.Delete(ctx, key); err != nil {
			return false, nil, nil, err
		}
		c.dequeue(ctx, key, held.Handle())
	}

	inFlight, err := reservations.Count(ctx)
	if err != nil {
		return false, nil, nil, err
	}
	waiters, err := uow.TokenRepository().ListPending(ctx, token.CapacityScope)
	if err != nil {
		return false, nil, nil, err
	}

	now := c.clock.Now()
	var grants []grant
	for _, w := range c.policy.SelectGrants(waiters, inFlight, now) {
		handle, err := c.reserve(ctx, reservations, w.Key(), now)
		if err != nil {
			c.compensate(ctx, grants)
			return false, nil, nil, err
		}
		grants = append(grants, grant{waiter: w, handle: handle})

		// The confirmed token stays until the waiter acknowledges the grant.
		err = w.Confirm(step.SystemActor, now)
		if err == nil {
			err = uow.TokenRepository().UpdateIfStatus(ctx, w, token.Pending)
		}
		if err != nil {
			c.compensate(ctx, grants)
			return false, nil, nil, err
		}
	}

	if err := uow.Commit(ctx); err != nil {
		c.compensate(ctx, grants)
		return false, nil, nil, errs.NewStoreUnavailableError(err)
	}

	if released {
		c.logger.InfoContext(ctx, "delivery slot released", "order", key.String(), "inFlight", inFlight)
		c.publish(ctx, ports.EventDeliverySlotReleased, key, map[string]any{
			"inFlight":    inFlight,
			"maxCapacity": c.policy.MaxCapacity(),
		})
	}

	var granted, gone []kernel.OrderKey
	for i, g := range grants {
		if err := c.handOver(ctx, g.waiter, i+1); errors.Is(err, ports.ErrContinuationGone) {
			c.logger.WarnContext(ctx, "capacity waiter is gone, returning its slot", "order", g.waiter.Key().String())
			gone = append(gone, g.waiter.Key())
			continue
		}

		granted = append(granted, g.waiter.Key())
		c.publish(ctx, ports.EventDeliverySlotReserved, g.waiter.Key(), map[string]any{
			"inFlight":    inFlight + i + 1,
			"maxCapacity": c.policy.MaxCapacity(),
			"granted":     true,
		})
	}
	return released, granted, gone, nil
}

// handOver resumes a granted waiter and clears its token once the
// continuation took the outcome or is gone. On any other failure the token
// is kept for RedeliverGrants.
func (c *Controller) handOver(ctx context.Context, t *token.Token, position int) error {
	outcome := ports.Outcome{Success: true, Actor: t.ResolvedBy(), QueuePosition: position}
	if at := t.ResolvedAt(); at != nil {
		outcome.At = *at
	}

	err := backoff.Retry(func() error {
		err := c.continuations.Resolve(ctx, t.Handle(), outcome)
		if errors.Is(err, ports.ErrContinuationGone) {
			return backoff.Permanent(err)
		}
		return err
	}, c.resolveRetry.BackOff(ctx))
	if err != nil && !errors.Is(err, ports.ErrContinuationGone) {
		c.logger.ErrorContext(ctx, "failed to resume capacity waiter, will retry",
			"order", t.Key().String(), "error", err)
		return err
	}

	if clearErr := c.clearGrant(ctx, t); clearErr != nil {
		c.logger.ErrorContext(ctx, "failed to clear capacity grant", "order", t.Key().String(), "error", clearErr)
	}
	return err
}

func (c *Controller) clearGrant(ctx context.Context, t *token.Token) error {
	uow := c.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return errs.NewStoreUnavailableError(err)
	}
	defer func() { _ = uow.Rollback(ctx) }()

	stored, err := uow.TokenRepository().Get(ctx, t.Key(), token.CapacityScope)
	if errors.Is(err, errs.ErrObjectNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if stored.Handle() != t.Handle() || stored.Status() != token.Confirmed {
		return nil
	}

	if err := uow.TokenRepository().Delete(ctx, t.Key(), token.CapacityScope); err != nil {
		return err
	}
	if err := uow.Commit(ctx); err != nil {
		return errs.NewStoreUnavailableError(err)
	}
	return nil
}

// outForDelivery reports whether the order is in DELIVERY with a step still
// in progress. Unknown and finished orders are not.
func (c *Controller) outForDelivery(ctx context.Context, uow ports.UnitOfWork, key kernel.OrderKey) (bool, error) {
	o, err := uow.OrderRepository().Get(ctx, key)
	if errors.Is(err, errs.ErrObjectNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if o.Status().IsTerminal() || o.CurrentStage() != order.StageDelivery {
		return false, nil
	}

	steps, err := uow.StepRepository().ListByStage(ctx, key, order.StageDelivery)
	if err != nil {
		return false, err
	}
	latest := step.Latest(steps)
	return latest != nil && latest.Status() == step.InProgress, nil
}

// reserve enqueues a marker and stores the reservation under its handle.
func (c *Controller) reserve(ctx context.Context, reservations ports.ReservationRepository, key kernel.OrderKey, now time.Time) (string, error) {
	payload, err := json.Marshal(marker{TenantID: key.TenantID(), OrderID: key.OrderID(), ReservedAt: now})
	if err != nil {
		return "", err
	}

	handle, err := c.queue.Enqueue(ctx, payload)
	if err != nil {
		return "", errs.NewStoreUnavailableError(err)
	}

	r, err := reservation.NewReservation(key, handle, now)
	if err == nil {
		err = reservations.Add(ctx, r)
	}
	if err != nil {
		c.dequeue(ctx, key, handle)
		return "", err
	}
	return handle, nil
}

func (c *Controller) compensate(ctx context.Context, grants []grant) {
	for _, g := range grants {
		c.dequeue(ctx, g.waiter.Key(), g.handle)
	}
}

func (c *Controller) dequeue(ctx context.Context, key kernel.OrderKey, handle string) {
	if err := c.queue.Dequeue(ctx, handle); err != nil && !errors.Is(err, errs.ErrObjectNotFound) {
		c.logger.WarnContext(ctx, "failed to dequeue reservation marker",
			"order", key.String(), "handle", handle, "error", err)
	}
}

func (c *Controller) admitted(inFlight int, handle string) Admission {
	return Admission{
		CanProceed:    true,
		Status:        StatusAdmitted,
		QueuePosition: inFlight,
		InFlight:      inFlight,
		MaxCapacity:   c.policy.MaxCapacity(),
		Handle:        handle,
	}
}

func (c *Controller) waiting(inFlight, position int, handle string) Admission {
	return Admission{
		Status:        StatusWaitingCapacity,
		QueuePosition: position,
		InFlight:      inFlight,
		MaxCapacity:   c.policy.MaxCapacity(),
		Handle:        handle,
	}
}

func (c *Controller) publish(ctx context.Context, eventType string, key kernel.OrderKey, payload map[string]any) {
	event := ports.Event{
		Source:     ports.SourceStages,
		Type:       eventType,
		Key:        key,
		Payload:    payload,
		OccurredAt: c.clock.Now(),
	}
	if err := c.notifier.Publish(ctx, event); err != nil {
		c.logger.ErrorContext(ctx, "failed to publish event",
			"order", key.String(), "event", eventType, "error", errs.NewNotifierUnavailableError(err))
	}
}
