package order_test

import (
	"testing"
	"time"

	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/core/domain/model/order"
	"fulfillment/internal/pkg/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var createdAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestOrder(t *testing.T) *order.Order {
	t.Helper()

	key, err := kernel.NewOrderKey("pardos", "ord-1")
	require.NoError(t, err)
	chicken, err := order.NewLineItem("pollo-1/4", 2, 2590)
	require.NoError(t, err)
	soda, err := order.NewLineItem("inca-kola", 1, 700)
	require.NoError(t, err)

	o, err := order.NewOrder(key, "cust-7", []order.LineItem{chicken, soda}, createdAt)
	require.NoError(t, err)
	return o
}

func TestNewOrder(t *testing.T) {
	t.Run("starts in CREATED with computed total", func(t *testing.T) {
		o := newTestOrder(t)

		require.NoError(t, o.Validate())
		assert.Equal(t, order.StageCreated, o.CurrentStage())
		assert.Equal(t, order.Created, o.Status())
		assert.Equal(t, int64(2*2590+700), o.Total())
		assert.Len(t, o.Items(), 2)
		assert.Equal(t, createdAt, o.CreatedAt())
	})

	t.Run("requires customer and items", func(t *testing.T) {
		key, _ := kernel.NewOrderKey("pardos", "ord-1")

		_, err := order.NewOrder(key, " ", nil, createdAt)

		require.ErrorIs(t, err, errs.ErrValueIsRequired)
		assert.Contains(t, err.Error(), "customerId")
		assert.Contains(t, err.Error(), "items")
	})

	t.Run("rejects zero key", func(t *testing.T) {
		item, _ := order.NewLineItem("p", 1, 1)
		_, err := order.NewOrder(kernel.OrderKey{}, "c", []order.LineItem{item}, createdAt)
		require.ErrorIs(t, err, kernel.ErrOrderKeyIsNotConstructed)
	})

	t.Run("rejects unconstructed line item", func(t *testing.T) {
		key, _ := kernel.NewOrderKey("pardos", "ord-1")
		_, err := order.NewOrder(key, "c", []order.LineItem{{}}, createdAt)
		require.ErrorIs(t, err, errs.ErrValueIsInvalid)
	})
}

func TestNewLineItem(t *testing.T) {
	_, err := order.NewLineItem("", 0, -1)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "productId")
	assert.Contains(t, err.Error(), "quantity")
	assert.Contains(t, err.Error(), "price")
}

func TestOrder_Advance(t *testing.T) {
	t.Run("walks the whole lifecycle", func(t *testing.T) {
		o := newTestOrder(t)
		now := createdAt

		for _, stage := range []order.Stage{order.StageCooking, order.StagePackaging, order.StageDelivery} {
			now = now.Add(time.Minute)
			require.NoError(t, o.Advance(stage, now))
			assert.Equal(t, stage, o.CurrentStage())
			assert.Equal(t, order.InProgress, o.Status())
		}

		require.NoError(t, o.Advance(order.StageDelivered, now))
		assert.Equal(t, order.StageDelivered, o.CurrentStage())
		assert.Equal(t, order.Completed, o.Status())
		assert.Equal(t, now, o.UpdatedAt())
	})

	t.Run("rejects skips", func(t *testing.T) {
		o := newTestOrder(t)

		err := o.Advance(order.StagePackaging, createdAt)

		require.ErrorIs(t, err, errs.ErrInvalidTransition)
		assert.Equal(t, order.StageCreated, o.CurrentStage())
	})

	t.Run("rejects repeats", func(t *testing.T) {
		o := newTestOrder(t)
		require.NoError(t, o.Advance(order.StageCooking, createdAt))

		require.ErrorIs(t, o.Advance(order.StageCooking, createdAt), errs.ErrInvalidTransition)
	})

	t.Run("terminal orders do not move", func(t *testing.T) {
		o := newTestOrder(t)
		require.NoError(t, o.Advance(order.StageCooking, createdAt))
		require.NoError(t, o.Expire(createdAt))

		require.ErrorIs(t, o.Advance(order.StagePackaging, createdAt), errs.ErrInvalidTransition)
		require.ErrorIs(t, o.Fail(createdAt), errs.ErrInvalidTransition)
		assert.Equal(t, order.Expired, o.Status())
		assert.Equal(t, order.StageCooking, o.CurrentStage())
	})
}

func TestRestoreOrder(t *testing.T) {
	key, _ := kernel.NewOrderKey("pardos", "ord-1")
	item, _ := order.NewLineItem("p", 1, 100)

	o, err := order.RestoreOrder(key, "c", []order.LineItem{item},
		order.StagePackaging, order.InProgress, createdAt, createdAt.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, order.StagePackaging, o.CurrentStage())
	assert.Equal(t, int64(100), o.Total())

	_, err = order.RestoreOrder(key, "c", []order.LineItem{item},
		order.StageUnknown, order.Status(42), createdAt, createdAt)
	require.Error(t, err)
}

func TestStatus(t *testing.T) {
	for _, s := range []order.Status{order.Created, order.InProgress, order.Completed, order.Expired, order.Failed} {
		parsed, err := order.ParseStatus(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}

	assert.True(t, order.Completed.IsTerminal())
	assert.False(t, order.InProgress.IsTerminal())

	_, err := order.Created.Complete()
	require.ErrorIs(t, err, errs.ErrInvalidTransition)
}
