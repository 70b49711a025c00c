package step_test

import (
	"testing"
	"time"

	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/core/domain/model/order"
	"fulfillment/internal/core/domain/model/step"
	"fulfillment/internal/pkg/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var startedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testKey(t *testing.T) kernel.OrderKey {
	t.Helper()
	key, err := kernel.NewOrderKey("pardos", "ord-1")
	require.NoError(t, err)
	return key
}

func TestNewStep(t *testing.T) {
	s, err := step.NewStep(testKey(t), order.StageCooking, startedAt, "")

	require.NoError(t, err)
	assert.Equal(t, step.InProgress, s.Status())
	assert.Equal(t, step.SystemActor, s.AssignedTo())
	assert.Nil(t, s.FinishedAt())
	assert.Equal(t, "STEP#COOKING#2024-05-01T12:00:00Z", s.SortKey())

	_, err = step.NewStep(testKey(t), order.StageCreated, startedAt, "")
	require.ErrorIs(t, err, errs.ErrValueIsInvalid)
}

func TestStep_Complete(t *testing.T) {
	t.Run("duration truncates fractional seconds", func(t *testing.T) {
		s, err := step.NewStep(testKey(t), order.StageCooking, startedAt, "chef-1")
		require.NoError(t, err)

		duration, err := s.Complete(startedAt.Add(17900*time.Millisecond), "chef-2")

		require.NoError(t, err)
		assert.Equal(t, int64(17), duration)
		assert.Equal(t, step.Completed, s.Status())
		assert.Equal(t, "chef-2", s.CompletedBy())
		assert.Equal(t, "chef-1", s.AssignedTo())
		require.NotNil(t, s.FinishedAt())
	})

	t.Run("timestamps are normalized to UTC", func(t *testing.T) {
		lima := time.FixedZone("PET", -5*60*60)
		s, err := step.NewStep(testKey(t), order.StageCooking, startedAt.In(lima), "")
		require.NoError(t, err)

		duration, err := s.Complete(startedAt.Add(61*time.Second).In(lima), "")

		require.NoError(t, err)
		assert.Equal(t, int64(61), duration)
		assert.Equal(t, time.UTC, s.StartedAt().Location())
		assert.Equal(t, time.UTC, s.FinishedAt().Location())
	})

	t.Run("second completion fails", func(t *testing.T) {
		s, _ := step.NewStep(testKey(t), order.StageCooking, startedAt, "")
		_, err := s.Complete(startedAt.Add(time.Second), "")
		require.NoError(t, err)

		_, err = s.Complete(startedAt.Add(2*time.Second), "")
		require.ErrorIs(t, err, errs.ErrInvalidTransition)
	})
}

func TestStep_Expire(t *testing.T) {
	s, _ := step.NewStep(testKey(t), order.StagePackaging, startedAt, "")

	require.NoError(t, s.Expire(startedAt.Add(time.Hour)))
	assert.Equal(t, step.Expired, s.Status())

	require.ErrorIs(t, s.Expire(startedAt.Add(2*time.Hour)), errs.ErrInvalidTransition)
	_, err := s.Complete(startedAt.Add(2*time.Hour), "")
	require.ErrorIs(t, err, errs.ErrInvalidTransition)
}

func TestNewDoneStep(t *testing.T) {
	s, err := step.NewDoneStep(testKey(t), order.StageDelivered, startedAt, "rider-3")

	require.NoError(t, err)
	assert.Equal(t, step.Done, s.Status())
	require.NotNil(t, s.FinishedAt())
	assert.Equal(t, s.StartedAt(), *s.FinishedAt())
	assert.Equal(t, int64(0), s.DurationSeconds())
	assert.Equal(t, "rider-3", s.CompletedBy())
}

func TestLatest(t *testing.T) {
	key := testKey(t)
	first, _ := step.NewStep(key, order.StageCooking, startedAt, "a")
	second, _ := step.NewStep(key, order.StageCooking, startedAt.Add(time.Minute), "b")
	tie, _ := step.NewStep(key, order.StageCooking, startedAt.Add(time.Minute), "c")

	assert.Nil(t, step.Latest(nil))
	assert.Same(t, second, step.Latest([]*step.Step{second, first}))
	assert.Same(t, tie, step.Latest([]*step.Step{first, second, tie}))
}

func TestRestoreStep(t *testing.T) {
	_, err := step.RestoreStep(testKey(t), order.StageCooking, step.Completed, startedAt, nil, "a", "b")
	require.ErrorIs(t, err, errs.ErrValueIsRequired)

	finished := startedAt.Add(90 * time.Second)
	s, err := step.RestoreStep(testKey(t), order.StageCooking, step.Completed, startedAt, &finished, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, int64(90), s.DurationSeconds())
}
