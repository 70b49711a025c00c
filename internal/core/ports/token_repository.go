package ports

import (
	"context"
	"time"

	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/core/domain/model/token"
)

// TokenRepository stores confirmation and capacity-wait tokens keyed by (order, scope).
type TokenRepository interface {
	// Get returns the token for (key, scope) or an ObjectNotFoundError.
	Get(ctx context.Context, key kernel.OrderKey, scope token.Scope) (*token.Token, error)

	// Put inserts the token, replacing a terminal token with the same identity.
	// Replacing a Pending token fails with errs.ErrConcurrentUpdate.
	Put(ctx context.Context, t *token.Token) error

	// UpdateIfStatus persists the token only if the stored status still equals
	// expected. Returns errs.ErrConcurrentUpdate otherwise.
	UpdateIfStatus(ctx context.Context, t *token.Token, expected token.Status) error

	// Delete removes the token for (key, scope). Deleting a missing token is not an error.
	Delete(ctx context.Context, key kernel.OrderKey, scope token.Scope) error

	// ListOverdue returns Pending tokens with expiresAt < now, oldest first.
	ListOverdue(ctx context.Context, now time.Time) ([]*token.Token, error)

	// ListPending returns Pending tokens of one scope ordered by createdAt.
	ListPending(ctx context.Context, scope token.Scope) ([]*token.Token, error)

	// ListUndelivered returns terminal tokens whose resolution was not acknowledged.
	ListUndelivered(ctx context.Context) ([]*token.Token, error)

	// ListByOrder returns every token of an order.
	ListByOrder(ctx context.Context, key kernel.OrderKey) ([]*token.Token, error)
}
