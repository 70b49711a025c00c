package services

import (
	"fmt"
	"slices"
	"time"

	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/core/domain/model/token"
	"fulfillment/internal/pkg/errs"
)

// DefaultMaxDeliveryCapacity is the number of orders allowed in DELIVERY at once
// when no other limit is configured.
const DefaultMaxDeliveryCapacity = 5

// CapacityPolicy is a domain service deciding who may enter DELIVERY.
//
// Business rules:
//   - At most MaxCapacity reservations are held at any instant
//   - A new request is admitted only when a slot is free and nobody is queued ahead
//   - Freed slots go to waiters in creation order (FIFO)
//   - Waiters whose token is no longer live are skipped; the expiry sweep owns them
//
// Example usage:
//
//	policy, _ := services.NewCapacityPolicy(5)
//	if policy.Admit(inFlight, len(waiters)) {
//	    // reserve a slot
//	}
//	for _, w := range policy.SelectGrants(waiters, inFlight, now) {
//	    // reserve on behalf of w and resume it
//	}
type CapacityPolicy struct {
	maxCapacity int
}

// NewCapacityPolicy requires a positive capacity.
func NewCapacityPolicy(maxCapacity int) (CapacityPolicy, error) {
	if maxCapacity <= 0 {
		return CapacityPolicy{}, errs.NewValueIsInvalidErrorWithCause(
			"max delivery capacity", fmt.Errorf("%d is not greater than 0", maxCapacity))
	}
	return CapacityPolicy{maxCapacity: maxCapacity}, nil
}

func (p CapacityPolicy) MaxCapacity() int {
	return p.maxCapacity
}

// FreeSlots is the number of reservations that can still be granted.
func (p CapacityPolicy) FreeSlots(inFlight int) int {
	return max(p.maxCapacity-inFlight, 0)
}

// Admit reports whether a new request may reserve a slot right away.
func (p CapacityPolicy) Admit(inFlight, waitingAhead int) bool {
	return waitingAhead == 0 && p.FreeSlots(inFlight) > 0
}

// SelectGrants returns the live waiters that fit into the free slots, oldest first.
func (p CapacityPolicy) SelectGrants(waiters []*token.Token, inFlight int, now time.Time) []*token.Token {
	free := p.FreeSlots(inFlight)
	if free == 0 {
		return nil
	}

	grants := make([]*token.Token, 0, free)
	for _, w := range p.Queue(waiters, now) {
		if len(grants) == free {
			break
		}
		grants = append(grants, w)
	}
	return grants
}

// Queue returns the live waiters in FIFO order.
func (p CapacityPolicy) Queue(waiters []*token.Token, now time.Time) []*token.Token {
	live := make([]*token.Token, 0, len(waiters))
	for _, w := range waiters {
		if w.Scope() == token.CapacityScope && w.IsLive(now) {
			live = append(live, w)
		}
	}
	slices.SortStableFunc(live, func(a, b *token.Token) int {
		return a.CreatedAt().Compare(b.CreatedAt())
	})
	return live
}

// QueuePosition is the 1-based position of key among live waiters, 0 if absent.
func (p CapacityPolicy) QueuePosition(waiters []*token.Token, key kernel.OrderKey, now time.Time) int {
	for i, w := range p.Queue(waiters, now) {
		if w.Key().IsEqual(key) {
			return i + 1
		}
	}
	return 0
}
