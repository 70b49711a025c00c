package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/core/domain/model/token"
	"fulfillment/internal/pkg/errs"
)

type tokenRepository struct {
	uow *UnitOfWork
}

func (r *tokenRepository) Get(ctx context.Context, key kernel.OrderKey, scope token.Scope) (*token.Token, error) {
	var found *token.Token
	err := r.uow.with(ctx, func(st *state) error {
		rec, ok := st.tokens[tokenID(key, scope)]
		if !ok {
			return errs.NewObjectNotFoundError("token", tokenID(key, scope))
		}
		t, err := rec.toDomain()
		found = t
		return err
	})
	return found, err
}

func (r *tokenRepository) Put(ctx context.Context, t *token.Token) error {
	if err := t.Validate(); err != nil {
		return err
	}

	return r.uow.with(ctx, func(st *state) error {
		id := tokenID(t.Key(), t.Scope())
		if existing, ok := st.tokens[id]; ok && existing.status == token.Pending {
			return fmt.Errorf("%w: token %s is still pending", errs.ErrConcurrentUpdate, id)
		}
		st.tokens[id] = tokenFromDomain(t)
		return nil
	})
}

func (r *tokenRepository) UpdateIfStatus(ctx context.Context, t *token.Token, expected token.Status) error {
	if err := t.Validate(); err != nil {
		return err
	}

	return r.uow.with(ctx, func(st *state) error {
		id := tokenID(t.Key(), t.Scope())
		existing, ok := st.tokens[id]
		if !ok {
			return errs.NewObjectNotFoundError("token", id)
		}
		if existing.status != expected || existing.handle != t.Handle() {
			return fmt.Errorf("%w: token %s is %s, expected %s", errs.ErrConcurrentUpdate, id, existing.status, expected)
		}
		st.tokens[id] = tokenFromDomain(t)
		return nil
	})
}

func (r *tokenRepository) Delete(ctx context.Context, key kernel.OrderKey, scope token.Scope) error {
	return r.uow.with(ctx, func(st *state) error {
		delete(st.tokens, tokenID(key, scope))
		return nil
	})
}

func (r *tokenRepository) ListOverdue(ctx context.Context, now time.Time) ([]*token.Token, error) {
	return r.list(ctx, func(rec tokenRecord) bool {
		return rec.status == token.Pending && rec.expiresAt.Before(now)
	})
}

func (r *tokenRepository) ListPending(ctx context.Context, scope token.Scope) ([]*token.Token, error) {
	return r.list(ctx, func(rec tokenRecord) bool {
		return rec.status == token.Pending && rec.scope == scope
	})
}

func (r *tokenRepository) ListUndelivered(ctx context.Context) ([]*token.Token, error) {
	return r.list(ctx, func(rec tokenRecord) bool {
		return rec.status.IsTerminal() && !rec.delivered
	})
}

func (r *tokenRepository) ListByOrder(ctx context.Context, key kernel.OrderKey) ([]*token.Token, error) {
	return r.list(ctx, func(rec tokenRecord) bool {
		return rec.key.IsEqual(key)
	})
}

func (r *tokenRepository) list(ctx context.Context, match func(tokenRecord) bool) ([]*token.Token, error) {
	var tokens []*token.Token
	err := r.uow.with(ctx, func(st *state) error {
		for _, rec := range st.tokens {
			if !match(rec) {
				continue
			}
			t, err := rec.toDomain()
			if err != nil {
				return err
			}
			tokens = append(tokens, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(tokens, func(a, b *token.Token) int {
		if c := a.CreatedAt().Compare(b.CreatedAt()); c != 0 {
			return c
		}
		return cmp.Compare(tokenID(a.Key(), a.Scope()), tokenID(b.Key(), b.Scope()))
	})
	return tokens, nil
}
