package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"fulfillment/internal/pkg/retry"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
)

func TestPolicy_StopsAfterMaxRetries(t *testing.T) {
	p := retry.Policy{MaxRetries: 2, InitialInterval: time.Millisecond}

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		return errors.New("unavailable")
	}, p.BackOff(t.Context()))

	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestPolicy_StopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		return errors.New("unavailable")
	}, retry.DefaultPolicy.BackOff(ctx))

	assert.Error(t, err)
	assert.LessOrEqual(t, attempts, 1)
}
