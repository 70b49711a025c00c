package errs_test

import (
	"errors"
	"testing"

	"fulfillment/internal/pkg/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectNotFoundError(t *testing.T) {
	t.Run("without cause prints the id only", func(t *testing.T) {
		err := errs.NewObjectNotFoundError("order", "TENANT#pardos#ORDER#o1")

		assert.Equal(t, "order", err.ParamName)
		require.NoError(t, err.Cause)
		assert.Equal(t, "object not found: TENANT#pardos#ORDER#o1", err.Error())
		require.ErrorIs(t, err, errs.ErrObjectNotFound)
	})

	t.Run("with cause names the param", func(t *testing.T) {
		cause := errors.New("record not found")
		err := errs.NewObjectNotFoundErrorWithCause("reservation", "o1", cause)

		assert.Equal(t,
			"object not found: param is: reservation, ID is: o1 (cause: record not found)",
			err.Error())
		require.ErrorIs(t, err, errs.ErrObjectNotFound)
	})
}

func TestValueErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		message  string
	}{
		{
			name:     "required",
			err:      errs.NewValueIsRequiredError("tenantID"),
			sentinel: errs.ErrValueIsRequired,
			message:  "value is required: tenantID",
		},
		{
			name:     "required with cause",
			err:      errs.NewValueIsRequiredErrorWithCause("items", errors.New("empty basket")),
			sentinel: errs.ErrValueIsRequired,
			message:  "value is required: items (cause: empty basket)",
		},
		{
			name:     "invalid",
			err:      errs.NewValueIsInvalidError("stage"),
			sentinel: errs.ErrValueIsInvalid,
			message:  "value is invalid: stage",
		},
		{
			name:     "invalid with cause",
			err:      errs.NewValueIsInvalidErrorWithCause("scope", errors.New("unknown scope BAKING")),
			sentinel: errs.ErrValueIsInvalid,
			message:  "value is invalid: scope (cause: unknown scope BAKING)",
		},
		{
			name:     "out of range",
			err:      errs.NewValueIsOutOfRangeError("quantity", 0, 1, 99),
			sentinel: errs.ErrValueIsOutOfRange,
			message:  "value is invalid: 0 is quantity, min value is 1, max value is 99",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, tt.err, tt.sentinel)
			assert.Equal(t, tt.message, tt.err.Error())
		})
	}
}

func TestValueIsOutOfRangeError_SanitizesValue(t *testing.T) {
	err := errs.NewValueIsOutOfRangeError("productID", "pollo\na la brasa", 1, 64)

	assert.Contains(t, err.Error(), "pollo a la brasa")
	assert.NotContains(t, err.Error(), "\n")
	assert.Equal(t, 1, err.Min)
	assert.Equal(t, 64, err.Max)
}

func TestStageAndTokenNotFoundErrors(t *testing.T) {
	t.Run("stage not found matches both sentinels", func(t *testing.T) {
		err := errs.NewStageNotFoundError("TENANT#t1#ORDER#o1", "COOKING", "no step records")

		require.ErrorIs(t, err, errs.ErrStageNotFound)
		require.ErrorIs(t, err, errs.ErrObjectNotFound)
		assert.Equal(t, "stage not found: TENANT#t1#ORDER#o1 COOKING: no step records", err.Error())
	})

	t.Run("token not found matches both sentinels", func(t *testing.T) {
		err := errs.NewTokenNotFoundError("TENANT#t1#ORDER#o1", "PACKAGING")

		require.ErrorIs(t, err, errs.ErrTokenNotFound)
		require.ErrorIs(t, err, errs.ErrObjectNotFound)
		assert.NotErrorIs(t, err, errs.ErrStageNotFound)
	})
}

func TestWorkflowErrors(t *testing.T) {
	t.Run("invalid transition", func(t *testing.T) {
		err := errs.NewInvalidTransitionError("CREATED", "PACKAGING", "stage skipped")

		require.ErrorIs(t, err, errs.ErrInvalidTransition)
		assert.Equal(t, "invalid transition: CREATED -> PACKAGING: stage skipped", err.Error())
	})

	t.Run("token expired", func(t *testing.T) {
		err := errs.NewTokenExpiredError("TENANT#t1#ORDER#o1", "COOKING")
		require.ErrorIs(t, err, errs.ErrTokenExpired)
	})

	t.Run("confirmation rejected", func(t *testing.T) {
		err := errs.NewConfirmationRejectedError("TENANT#t1#ORDER#o1", "COOKING", "burnt")
		require.ErrorIs(t, err, errs.ErrConfirmationRejected)
		assert.Contains(t, err.Error(), "burnt")
	})

	t.Run("unavailable keeps the cause reachable", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := errs.NewStoreUnavailableError(cause)

		require.ErrorIs(t, err, errs.ErrStoreUnavailable)
		require.ErrorIs(t, err, cause)
		assert.NotErrorIs(t, err, errs.ErrNotifierUnavailable)
		assert.Equal(t, "store unavailable (cause: connection refused)", err.Error())
	})
}
