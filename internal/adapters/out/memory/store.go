// Package memory provides an in-process implementation of the persistence
// ports. A Store holds committed state; each UnitOfWork works on a private
// copy taken at Begin and swaps it in on Commit, so concurrent units of work
// are serialized and a rollback leaves no trace.
//
// It backs single-process deployments (STORAGE=memory) and the service tests.
package memory

import (
	"time"

	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/core/domain/model/order"
	"fulfillment/internal/core/domain/model/reservation"
	"fulfillment/internal/core/domain/model/step"
	"fulfillment/internal/core/domain/model/token"
)

// Store is the committed state shared by all units of work created from it.
type Store struct {
	sem  chan struct{}
	data *state
}

func NewStore() *Store {
	return &Store{
		sem:  make(chan struct{}, 1),
		data: newState(),
	}
}

func (s *Store) lock() {
	s.sem <- struct{}{}
}

func (s *Store) unlock() {
	<-s.sem
}

type state struct {
	orders       map[string]orderRecord
	steps        map[string][]stepRecord
	tokens       map[string]tokenRecord
	reservations map[string]reservation.Reservation
}

func newState() *state {
	return &state{
		orders:       make(map[string]orderRecord),
		steps:        make(map[string][]stepRecord),
		tokens:       make(map[string]tokenRecord),
		reservations: make(map[string]reservation.Reservation),
	}
}

// clone copies every map and slice; records are plain values.
func (s *state) clone() *state {
	c := newState()
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.steps {
		c.steps[k] = append([]stepRecord(nil), v...)
	}
	for k, v := range s.tokens {
		c.tokens[k] = v
	}
	for k, v := range s.reservations {
		c.reservations[k] = v
	}
	return c
}

type orderRecord struct {
	key        kernel.OrderKey
	customerID string
	items      []order.LineItem
	stage      order.Stage
	status     order.Status
	createdAt  time.Time
	updatedAt  time.Time
}

func orderFromDomain(o *order.Order) orderRecord {
	return orderRecord{
		key:        o.Key(),
		customerID: o.CustomerID(),
		items:      o.Items(),
		stage:      o.CurrentStage(),
		status:     o.Status(),
		createdAt:  o.CreatedAt(),
		updatedAt:  o.UpdatedAt(),
	}
}

func (r orderRecord) toDomain() (*order.Order, error) {
	return order.RestoreOrder(r.key, r.customerID, r.items, r.stage, r.status, r.createdAt, r.updatedAt)
}

type stepRecord struct {
	key         kernel.OrderKey
	stage       order.Stage
	status      step.Status
	startedAt   time.Time
	finishedAt  time.Time
	finished    bool
	assignedTo  string
	completedBy string
}

func stepFromDomain(s *step.Step) stepRecord {
	r := stepRecord{
		key:         s.Key(),
		stage:       s.Stage(),
		status:      s.Status(),
		startedAt:   s.StartedAt(),
		assignedTo:  s.AssignedTo(),
		completedBy: s.CompletedBy(),
	}
	if f := s.FinishedAt(); f != nil {
		r.finishedAt = *f
		r.finished = true
	}
	return r
}

func (r stepRecord) toDomain() (*step.Step, error) {
	var finishedAt *time.Time
	if r.finished {
		f := r.finishedAt
		finishedAt = &f
	}
	return step.RestoreStep(r.key, r.stage, r.status, r.startedAt, finishedAt, r.assignedTo, r.completedBy)
}

func (r stepRecord) sameInstance(s *step.Step) bool {
	return r.stage == s.Stage() && r.startedAt.Equal(s.StartedAt())
}

type tokenRecord struct {
	key        kernel.OrderKey
	scope      token.Scope
	handle     string
	status     token.Status
	createdAt  time.Time
	expiresAt  time.Time
	resolvedBy string
	resolvedAt time.Time
	resolved   bool
	reason     string
	delivered  bool
}

func tokenFromDomain(t *token.Token) tokenRecord {
	r := tokenRecord{
		key:        t.Key(),
		scope:      t.Scope(),
		handle:     t.Handle(),
		status:     t.Status(),
		createdAt:  t.CreatedAt(),
		expiresAt:  t.ExpiresAt(),
		resolvedBy: t.ResolvedBy(),
		reason:     t.Reason(),
		delivered:  t.Delivered(),
	}
	if at := t.ResolvedAt(); at != nil {
		r.resolvedAt = *at
		r.resolved = true
	}
	return r
}

func (r tokenRecord) toDomain() (*token.Token, error) {
	var resolvedAt *time.Time
	if r.resolved {
		at := r.resolvedAt
		resolvedAt = &at
	}
	return token.RestoreToken(r.key, r.scope, r.handle, r.status, r.createdAt, r.expiresAt,
		r.resolvedBy, resolvedAt, r.reason, r.delivered)
}

func tokenID(key kernel.OrderKey, scope token.Scope) string {
	return key.String() + "#SCOPE#" + scope.String()
}
