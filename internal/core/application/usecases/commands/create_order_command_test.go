package commands_test

import (
	"testing"

	"fulfillment/internal/core/application/usecases/commands"
	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/core/domain/model/order"
	"fulfillment/internal/pkg/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) kernel.OrderKey {
	t.Helper()
	key, err := kernel.NewOrderKey("pardos", "o-1")
	require.NoError(t, err)
	return key
}

func testItems(t *testing.T) []order.LineItem {
	t.Helper()
	item, err := order.NewLineItem("pollo", 2, 2590)
	require.NoError(t, err)
	return []order.LineItem{item}
}

func TestNewCreateOrderCommand(t *testing.T) {
	cmd, err := commands.NewCreateOrderCommand(testKey(t), "c-1", testItems(t), true)

	require.NoError(t, err)
	require.NoError(t, cmd.Validate())
	assert.Equal(t, "c-1", cmd.CustomerID())
	assert.Len(t, cmd.Items(), 1)
	assert.True(t, cmd.AutoStart())
}

func TestNewCreateOrderCommand_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   kernel.OrderKey
		items []order.LineItem
	}{
		{name: "zero key", key: kernel.OrderKey{}, items: testItems(t)},
		{name: "no items", key: testKey(t), items: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := commands.NewCreateOrderCommand(tt.key, "c-1", tt.items, false)
			assert.Error(t, err)
		})
	}

	_, err := commands.NewCreateOrderCommand(testKey(t), "c-1", nil, false)
	assert.ErrorIs(t, err, errs.ErrValueIsRequired)
}

func TestCreateOrderCommand_ZeroValueIsNotConstructed(t *testing.T) {
	assert.ErrorIs(t, commands.CreateOrderCommand{}.Validate(), commands.ErrCreateOrderCommandIsNotConstructed)
}
