package services_test

import (
	"fmt"
	"testing"
	"time"

	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/core/domain/model/token"
	"fulfillment/internal/core/domain/services"
	"fulfillment/internal/pkg/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func waiter(t *testing.T, orderID string, createdAt time.Time) *token.Token {
	t.Helper()
	key, err := kernel.NewOrderKey("pardos", orderID)
	require.NoError(t, err)
	w, err := token.NewToken(key, token.CapacityScope, "h-"+orderID, createdAt, time.Hour)
	require.NoError(t, err)
	return w
}

func TestNewCapacityPolicy(t *testing.T) {
	_, err := services.NewCapacityPolicy(0)
	require.ErrorIs(t, err, errs.ErrValueIsInvalid)

	p, err := services.NewCapacityPolicy(services.DefaultMaxDeliveryCapacity)
	require.NoError(t, err)
	assert.Equal(t, 5, p.MaxCapacity())
}

func TestCapacityPolicy_Admit(t *testing.T) {
	p, _ := services.NewCapacityPolicy(2)

	assert.True(t, p.Admit(0, 0))
	assert.True(t, p.Admit(1, 0))
	assert.False(t, p.Admit(2, 0), "full")
	assert.False(t, p.Admit(1, 1), "someone queued ahead")
	assert.Equal(t, 0, p.FreeSlots(7))
}

func TestCapacityPolicy_SelectGrants(t *testing.T) {
	p, _ := services.NewCapacityPolicy(3)

	third := waiter(t, "c", base.Add(3*time.Second))
	first := waiter(t, "a", base.Add(1*time.Second))
	second := waiter(t, "b", base.Add(2*time.Second))
	waiters := []*token.Token{third, first, second}

	t.Run("oldest first up to free capacity", func(t *testing.T) {
		grants := p.SelectGrants(waiters, 1, base.Add(time.Minute))

		require.Len(t, grants, 2)
		assert.Same(t, first, grants[0])
		assert.Same(t, second, grants[1])
	})

	t.Run("none when full", func(t *testing.T) {
		assert.Empty(t, p.SelectGrants(waiters, 3, base))
	})

	t.Run("skips waiters past their deadline", func(t *testing.T) {
		stale := waiter(t, "old", base.Add(-2*time.Hour))
		grants := p.SelectGrants(append([]*token.Token{stale}, waiters...), 2, base.Add(time.Minute))

		require.Len(t, grants, 1)
		assert.Same(t, first, grants[0])
	})
}

func TestCapacityPolicy_QueuePosition(t *testing.T) {
	p, _ := services.NewCapacityPolicy(1)

	var waiters []*token.Token
	for i := range 4 {
		waiters = append(waiters, waiter(t, fmt.Sprintf("o%d", i), base.Add(time.Duration(4-i)*time.Second)))
	}

	assert.Equal(t, 4, p.QueuePosition(waiters, waiters[0].Key(), base))
	assert.Equal(t, 1, p.QueuePosition(waiters, waiters[3].Key(), base))

	missing, _ := kernel.NewOrderKey("pardos", "nobody")
	assert.Equal(t, 0, p.QueuePosition(waiters, missing, base))
}
