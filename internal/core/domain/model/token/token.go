package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/pkg/errs"
)

var ErrTokenIsNotConstructed = errors.New("Token must be created via NewToken constructor")

// Token records a parked continuation: an orchestration suspended until an
// operator confirms a stage or a delivery slot frees up.
//
// Invariants:
//   - Identified by (order, scope); at most one live token per pair
//   - Live means Pending and not past expiresAt
//   - Confirm, Fail and Expire are mutually exclusive; whichever runs first on
//     a Pending token wins and the others fail
//
// Delivered tracks whether the continuation acknowledged the resolution, so a
// resolution that could not be handed over is retried instead of dropped.
type Token struct {
	key       kernel.OrderKey
	scope     Scope
	handle    string
	status    Status
	createdAt time.Time
	expiresAt time.Time

	resolvedBy string
	resolvedAt *time.Time
	reason     string
	delivered  bool

	isConstructed bool
}

// NewToken creates a Pending token expiring ttl after createdAt.
//
// Example:
//
//	t, err := token.NewToken(key, token.StageScope(order.StageCooking), handle, clock.Now(), 30*time.Minute)
func NewToken(key kernel.OrderKey, scope Scope, handle string, createdAt time.Time, ttl time.Duration) (*Token, error) {
	t := &Token{
		status:        Pending,
		createdAt:     createdAt.UTC(),
		expiresAt:     createdAt.UTC().Add(ttl),
		isConstructed: true,
	}

	var ttlErr error
	if ttl <= 0 {
		ttlErr = errs.NewValueIsInvalidErrorWithCause("ttl", fmt.Errorf("%s is not positive", ttl))
	}

	if err := errors.Join(t.setKey(key), t.setScope(scope), t.setHandle(handle), ttlErr); err != nil {
		return nil, err
	}
	return t, nil
}

// RestoreToken rebuilds a token from persistence.
func RestoreToken(
	key kernel.OrderKey,
	scope Scope,
	handle string,
	status Status,
	createdAt, expiresAt time.Time,
	resolvedBy string,
	resolvedAt *time.Time,
	reason string,
	delivered bool,
) (*Token, error) {
	t := &Token{
		status:        status,
		createdAt:     createdAt.UTC(),
		expiresAt:     expiresAt.UTC(),
		resolvedBy:    resolvedBy,
		reason:        reason,
		delivered:     delivered,
		isConstructed: true,
	}
	if resolvedAt != nil {
		r := resolvedAt.UTC()
		t.resolvedAt = &r
	}

	if err := errors.Join(t.setKey(key), t.setScope(scope), t.setHandle(handle), status.Validate()); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Token) Validate() error {
	if t == nil || !t.isConstructed {
		return ErrTokenIsNotConstructed
	}
	return nil
}

func (t *Token) Key() kernel.OrderKey {
	return t.key
}

func (t *Token) Scope() Scope {
	return t.scope
}

// Handle is the opaque continuation handle resolved when the token is.
func (t *Token) Handle() string {
	return t.handle
}

func (t *Token) Status() Status {
	return t.status
}

func (t *Token) CreatedAt() time.Time {
	return t.createdAt
}

func (t *Token) ExpiresAt() time.Time {
	return t.expiresAt
}

func (t *Token) TTL() time.Duration {
	return t.expiresAt.Sub(t.createdAt)
}

// ResolvedBy is the confirming or rejecting actor; empty for expiry.
func (t *Token) ResolvedBy() string {
	return t.resolvedBy
}

// ResolvedAt is nil while the token is pending.
func (t *Token) ResolvedAt() *time.Time {
	return t.resolvedAt
}

// Reason holds the rejection reason or the expiry cause.
func (t *Token) Reason() string {
	return t.reason
}

// Delivered reports whether the continuation acknowledged the resolution.
func (t *Token) Delivered() bool {
	return t.delivered
}

// IsLive reports whether the token is Pending and not past its deadline.
func (t *Token) IsLive(now time.Time) bool {
	return t.status == Pending && !now.After(t.expiresAt)
}

// IsOverdue reports whether the sweep may expire the token (expiresAt < now).
func (t *Token) IsOverdue(now time.Time) bool {
	return t.status == Pending && now.After(t.expiresAt)
}

// Confirm resolves a live token successfully.
// Returns a TokenNotFoundError when the token is not live.
func (t *Token) Confirm(actor string, now time.Time) error {
	if !t.IsLive(now) {
		return errs.NewTokenNotFoundError(t.key.String(), t.scope.String())
	}
	t.resolve(Confirmed, actor, "", now)
	return nil
}

// Fail resolves a live token with an explicit failure.
// Returns a TokenNotFoundError when the token is not live.
func (t *Token) Fail(actor, reason string, now time.Time) error {
	if !t.IsLive(now) {
		return errs.NewTokenNotFoundError(t.key.String(), t.scope.String())
	}
	t.resolve(Failed, actor, reason, now)
	return nil
}

// Expire resolves an overdue token as timed out.
// Returns a TokenNotFoundError when the token is not Pending or not yet overdue.
func (t *Token) Expire(now time.Time) error {
	if !t.IsOverdue(now) {
		return errs.NewTokenNotFoundError(t.key.String(), t.scope.String())
	}
	t.resolve(Expired, "", "TokenExpired", now)
	return nil
}

// MarkDelivered records that the continuation acknowledged the resolution.
func (t *Token) MarkDelivered() {
	t.delivered = true
}

func (t *Token) resolve(status Status, actor, reason string, now time.Time) {
	at := now.UTC()
	t.status = status
	t.resolvedBy = strings.TrimSpace(actor)
	t.reason = reason
	t.resolvedAt = &at
	t.delivered = false
}

func (t *Token) setKey(key kernel.OrderKey) error {
	if err := key.Validate(); err != nil {
		return err
	}
	t.key = key
	return nil
}

func (t *Token) setScope(scope Scope) error {
	parsed, err := ParseScope(string(scope))
	if err != nil {
		return err
	}
	t.scope = parsed
	return nil
}

func (t *Token) setHandle(handle string) error {
	if strings.TrimSpace(handle) == "" {
		return errs.NewValueIsRequiredError("continuation handle")
	}
	t.handle = handle
	return nil
}
