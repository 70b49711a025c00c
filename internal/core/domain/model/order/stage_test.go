package order_test

import (
	"testing"

	"fulfillment/internal/core/domain/model/order"
	"fulfillment/internal/pkg/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStage(t *testing.T) {
	for _, stage := range order.Stages() {
		parsed, err := order.ParseStage(stage.String())
		require.NoError(t, err)
		assert.Equal(t, stage, parsed)
	}

	parsed, err := order.ParseStage(" packaging ")
	require.NoError(t, err)
	assert.Equal(t, order.StagePackaging, parsed)

	_, err = order.ParseStage("UNKNOWN")
	require.ErrorIs(t, err, errs.ErrValueIsInvalid)
}

func TestStage_NextAndPrevious(t *testing.T) {
	next, ok := order.StageCreated.Next()
	require.True(t, ok)
	assert.Equal(t, order.StageCooking, next)

	_, ok = order.StageDelivered.Next()
	assert.False(t, ok)

	prev, ok := order.StageDelivery.Previous()
	require.True(t, ok)
	assert.Equal(t, order.StagePackaging, prev)

	_, ok = order.StageCreated.Previous()
	assert.False(t, ok)

	_, ok = order.StageUnknown.Next()
	assert.False(t, ok)
}

func TestStage_ValidateSuccessor(t *testing.T) {
	stages := order.Stages()

	// Only (s, s.Next()) pairs are accepted.
	for _, from := range stages {
		for _, to := range stages {
			err := from.ValidateSuccessor(to)
			if next, ok := from.Next(); ok && next == to {
				require.NoError(t, err, "%s -> %s", from, to)
				continue
			}
			require.ErrorIs(t, err, errs.ErrInvalidTransition, "%s -> %s", from, to)
		}
	}
}

func TestStage_IsWorking(t *testing.T) {
	assert.False(t, order.StageCreated.IsWorking())
	assert.True(t, order.StageCooking.IsWorking())
	assert.True(t, order.StagePackaging.IsWorking())
	assert.True(t, order.StageDelivery.IsWorking())
	assert.False(t, order.StageDelivered.IsWorking())
}
