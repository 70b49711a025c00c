// Package confirmation parks orchestrations that need a human sign-off and
// resumes them exactly once: on confirmation, on explicit rejection or when
// the expiry sweep finds the token past its deadline.
//
// Tokens are resolved with a compare-and-swap on their status inside a unit
// of work. Only the winner hands the outcome to the continuation, after the
// commit. A hand-over that keeps failing leaves the token undelivered and
// Redeliver tries again later.
package confirmation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fulfillment/internal/core/application/stages"
	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/core/domain/model/order"
	"fulfillment/internal/core/domain/model/token"
	"fulfillment/internal/core/ports"
	"fulfillment/internal/pkg/errs"
	"fulfillment/internal/pkg/retry"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds the attempts to hand an outcome to a continuation.
type RetryPolicy = retry.Policy

// DefaultRetryPolicy retries three times starting at 200ms.
var DefaultRetryPolicy = retry.DefaultPolicy

// OrphanHandler settles a stage whose orchestration is gone by the time its
// confirmation resolves.
type OrphanHandler interface {
	CompleteStage(ctx context.Context, key kernel.OrderKey, stage order.Stage, actor string) (stages.Completion, error)
	ExpireStage(ctx context.Context, key kernel.OrderKey, stage order.Stage) error
	FailStage(ctx context.Context, key kernel.OrderKey, stage order.Stage, reason string) error
}

// Waiter is the confirmation waiter. Safe for concurrent use.
type Waiter struct {
	uowFactory    ports.UnitOfWorkFactory
	continuations ports.Continuations
	notifier      ports.EventNotifier
	orphans       OrphanHandler
	clock         kernel.Clock
	retry         RetryPolicy
	logger        *slog.Logger
}

func NewWaiter(
	uowFactory ports.UnitOfWorkFactory,
	continuations ports.Continuations,
	notifier ports.EventNotifier,
	clock kernel.Clock,
	logger *slog.Logger,
) (*Waiter, error) {
	if uowFactory == nil {
		return nil, errs.NewValueIsRequiredError("uowFactory")
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

	return &Waiter{
		uowFactory:    uowFactory,
		continuations: continuations,
		notifier:      notifier,
		clock:         clock,
		retry:         DefaultRetryPolicy,
		logger:        logger.With("component", "ConfirmationWaiter"),
	}, nil
}

// WithRetryPolicy replaces the hand-over retry policy.
func (w *Waiter) WithRetryPolicy(p RetryPolicy) *Waiter {
	w.retry = p
	return w
}

// WithOrphanHandler lets the waiter settle stages whose orchestration vanished.
func (w *Waiter) WithOrphanHandler(h OrphanHandler) *Waiter {
	w.orphans = h
	return w
}

// WaitForConfirmation parks continuationToken and persists a pending token
// for (key, scope) expiring after timeout. It does not block.
//
// A still pending token for the same (key, scope) fails with InvalidTransition.
func (w *Waiter) WaitForConfirmation(
	ctx context.Context,
	key kernel.OrderKey,
	scope token.Scope,
	continuationToken string,
	timeout time.Duration,
) (*token.Token, error) {
	if _, err := token.ParseScope(scope.String()); err != nil {
		return nil, err
	}

	uow := w.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, errs.NewStoreUnavailableError(err)
	}
	defer func() { _ = uow.Rollback(ctx) }()

	existing, err := uow.TokenRepository().Get(ctx, key, scope)
	switch {
	case err == nil && existing.Status() == token.Pending:
		return nil, errs.NewInvalidTransitionError(existing.Status().String(), token.Pending.String(),
			fmt.Sprintf("%s is already awaiting confirmation", scope))
	case err != nil && !errors.Is(err, errs.ErrObjectNotFound):
		return nil, err
	}

	handle, err := w.continuations.Park(ctx, continuationToken)
	if err != nil {
		return nil, err
	}

	now := w.clock.Now()
	t, err := token.NewToken(key, scope, handle, now, timeout)
	if err == nil {
		err = uow.TokenRepository().Put(ctx, t)
	}
	if err == nil {
		err = uow.Commit(ctx)
		if err != nil {
			err = errs.NewStoreUnavailableError(err)
		}
	}
	if err != nil {
		if failErr := w.continuations.Fail(ctx, handle, ports.FailureTokenExpired, "token was not persisted"); failErr != nil {
			w.logger.WarnContext(ctx, "failed to release parked continuation", "handle", handle, "error", failErr)
		}
		return nil, err
	}

	w.logger.InfoContext(ctx, "awaiting confirmation",
		"order", key.String(), "scope", scope.String(), "expiresAt", t.ExpiresAt())

	w.publish(ctx, ports.EventStageConfirmationPending, t, map[string]any{
		"expiresAt": t.ExpiresAt().Format(time.RFC3339Nano),
		"ttl":       int64(timeout / time.Second),
	})
	return t, nil
}

// Confirm resolves the pending confirmation of stage successfully.
// Fails with TokenNotFound when no live pending token exists.
func (w *Waiter) Confirm(ctx context.Context, key kernel.OrderKey, stage order.Stage, actor string) (*token.Token, error) {
	scope, err := stageScope(stage)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(actor) == "" {
		return nil, errs.NewValueIsRequiredError("actor")
	}

	t, err := w.transition(ctx, key, scope, func(t *token.Token, now time.Time) error {
		return t.Confirm(actor, now)
	})
	if err != nil {
		return nil, err
	}

	w.logger.InfoContext(ctx, "stage confirmed", "order", key.String(), "stage", stage.String(), "actor", actor)
	w.handOver(ctx, t)
	w.publish(ctx, ports.EventStageConfirmed, t, map[string]any{
		"confirmedBy": t.ResolvedBy(),
		"confirmedAt": t.ResolvedAt().Format(time.RFC3339Nano),
	})
	return t, nil
}

// Reject resolves the pending confirmation of stage with a failure.
// Fails with TokenNotFound when no live pending token exists.
func (w *Waiter) Reject(ctx context.Context, key kernel.OrderKey, stage order.Stage, actor, reason string) (*token.Token, error) {
	scope, err := stageScope(stage)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(actor) == "" {
		return nil, errs.NewValueIsRequiredError("actor")
	}

	t, err := w.transition(ctx, key, scope, func(t *token.Token, now time.Time) error {
		return t.Fail(actor, reason, now)
	})
	if err != nil {
		return nil, err
	}

	w.logger.WarnContext(ctx, "stage rejected",
		"order", key.String(), "stage", stage.String(), "actor", actor, "reason", reason)
	w.handOver(ctx, t)
	w.publish(ctx, ports.EventStageConfirmationRejected, t, map[string]any{
		"rejectedBy": t.ResolvedBy(),
		"reason":     reason,
	})
	return t, nil
}

// SweepExpired expires every pending token past its deadline and fails its
// continuation with TokenExpired. Tokens resolved concurrently are skipped.
// It returns the number of tokens this call expired.
func (w *Waiter) SweepExpired(ctx context.Context) (int, error) {
	now := w.clock.Now()
	overdue, err := w.uowFactory.Create().TokenRepository().ListOverdue(ctx, now)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, candidate := range overdue {
		t, err := w.transition(ctx, candidate.Key(), candidate.Scope(), func(t *token.Token, now time.Time) error {
			if t.Handle() != candidate.Handle() {
				return errs.NewTokenNotFoundError(t.Key().String(), t.Scope().String())
			}
			return t.Expire(now)
		})
		if errors.Is(err, errs.ErrTokenNotFound) {
			continue
		}
		if err != nil {
			return expired, err
		}

		expired++
		w.logger.WarnContext(ctx, "confirmation expired",
			"order", t.Key().String(), "scope", t.Scope().String(), "expiresAt", t.ExpiresAt())
		w.handOver(ctx, t)
		w.publish(ctx, ports.EventStageConfirmationExpired, t, map[string]any{
			"expiredAt": t.ResolvedAt().Format(time.RFC3339Nano),
			"reason":    t.Reason(),
		})
	}
	return expired, nil
}

// Redeliver retries the hand-over of resolved tokens whose continuation did
// not acknowledge the outcome. It returns the number settled by this call.
// Granted capacity waits are left to the admission controller.
func (w *Waiter) Redeliver(ctx context.Context) (int, error) {
	pending, err := w.uowFactory.Create().TokenRepository().ListUndelivered(ctx)
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, t := range pending {
		if t.Scope() == token.CapacityScope && t.Status() == token.Confirmed {
			continue
		}
		if w.handOver(ctx, t) {
			settled++
		}
	}
	return settled, nil
}

// transition loads the token, applies resolve and stores it if it was still pending.
func (w *Waiter) transition(
	ctx context.Context,
	key kernel.OrderKey,
	scope token.Scope,
	resolve func(*token.Token, time.Time) error,
) (*token.Token, error) {
	uow := w.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, errs.NewStoreUnavailableError(err)
	}
	defer func() { _ = uow.Rollback(ctx) }()

	t, err := uow.TokenRepository().Get(ctx, key, scope)
	if errors.Is(err, errs.ErrObjectNotFound) {
		return nil, errs.NewTokenNotFoundError(key.String(), scope.String())
	}
	if err != nil {
		return nil, err
	}

	if err := resolve(t, w.clock.Now()); err != nil {
		return nil, err
	}
	if err := uow.TokenRepository().UpdateIfStatus(ctx, t, token.Pending); err != nil {
		if errors.Is(err, errs.ErrConcurrentUpdate) {
			return nil, errs.NewTokenNotFoundError(key.String(), scope.String())
		}
		return nil, err
	}
	if err := uow.Commit(ctx); err != nil {
		return nil, errs.NewStoreUnavailableError(err)
	}
	return t, nil
}

// handOver passes the outcome of a resolved token to its continuation and
// records the acknowledgement. It reports whether the token is settled.
func (w *Waiter) handOver(ctx context.Context, t *token.Token) bool {
	err := backoff.Retry(func() error {
		err := w.deliver(ctx, t)
		if errors.Is(err, ports.ErrContinuationGone) {
			return backoff.Permanent(err)
		}
		return err
	}, w.retry.BackOff(ctx))

	gone := errors.Is(err, ports.ErrContinuationGone)
	if err != nil && !gone {
		w.logger.ErrorContext(ctx, "failed to resume continuation, will retry",
			"order", t.Key().String(), "scope", t.Scope().String(), "error", err)
		return false
	}

	if gone {
		w.logger.WarnContext(ctx, "continuation is gone",
			"order", t.Key().String(), "scope", t.Scope().String(), "status", t.Status().String())
		w.settleOrphan(ctx, t)
	}

	if err := w.markDelivered(ctx, t); err != nil {
		w.logger.ErrorContext(ctx, "failed to record delivery", "order", t.Key().String(), "error", err)
		return false
	}
	return true
}

func (w *Waiter) deliver(ctx context.Context, t *token.Token) error {
	switch t.Status() {
	case token.Confirmed:
		return w.continuations.Resolve(ctx, t.Handle(), ports.Outcome{
			Success: true,
			Actor:   t.ResolvedBy(),
			At:      *t.ResolvedAt(),
		})
	case token.Failed:
		return w.continuations.Fail(ctx, t.Handle(), ports.FailureConfirmationRejected, t.Reason())
	case token.Expired:
		return w.continuations.Fail(ctx, t.Handle(), ports.FailureTokenExpired,
			fmt.Sprintf("%s expired at %s", t.Scope(), t.ExpiresAt().Format(time.RFC3339)))
	default:
		return backoff.Permanent(fmt.Errorf("token %s %s is %s", t.Key(), t.Scope(), t.Status()))
	}
}

func (w *Waiter) markDelivered(ctx context.Context, t *token.Token) error {
	uow := w.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return errs.NewStoreUnavailableError(err)
	}
	defer func() { _ = uow.Rollback(ctx) }()

	stored, err := uow.TokenRepository().Get(ctx, t.Key(), t.Scope())
	if errors.Is(err, errs.ErrObjectNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if stored.Handle() != t.Handle() || stored.Status() != t.Status() {
		return nil
	}

	stored.MarkDelivered()
	if err := uow.TokenRepository().UpdateIfStatus(ctx, stored, stored.Status()); err != nil {
		return err
	}
	if err := uow.Commit(ctx); err != nil {
		return errs.NewStoreUnavailableError(err)
	}
	t.MarkDelivered()
	return nil
}

func (w *Waiter) settleOrphan(ctx context.Context, t *token.Token) {
	stage, ok := t.Scope().Stage()
	if w.orphans == nil || !ok {
		return
	}

	var err error
	switch t.Status() {
	case token.Confirmed:
		_, err = w.orphans.CompleteStage(ctx, t.Key(), stage, t.ResolvedBy())
	case token.Failed:
		err = w.orphans.FailStage(ctx, t.Key(), stage, t.Reason())
	case token.Expired:
		err = w.orphans.ExpireStage(ctx, t.Key(), stage)
	}
	if err != nil {
		w.logger.WarnContext(ctx, "failed to settle orphaned stage",
			"order", t.Key().String(), "stage", stage.String(), "error", err)
	}
}

func (w *Waiter) publish(ctx context.Context, eventType string, t *token.Token, payload map[string]any) {
	payload["scope"] = t.Scope().String()
	if stage, ok := t.Scope().Stage(); ok {
		payload["stage"] = stage.String()
	}

	event := ports.Event{
		Source:     ports.SourceStages,
		Type:       eventType,
		Key:        t.Key(),
		Payload:    payload,
		OccurredAt: w.clock.Now(),
	}
	if err := w.notifier.Publish(ctx, event); err != nil {
		w.logger.ErrorContext(ctx, "failed to publish event",
			"order", t.Key().String(), "event", eventType, "error", errs.NewNotifierUnavailableError(err))
	}
}

func stageScope(stage order.Stage) (token.Scope, error) {
	if err := stage.Validate(); err != nil {
		return "", err
	}
	return token.ParseScope(stage.String())
}
