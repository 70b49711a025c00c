// Package retry holds the bounded backoff used when handing outcomes to
// suspended orchestrations.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds the attempts to hand an outcome to a continuation.
type Policy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
}

// DefaultPolicy retries three times starting at 200ms.
var DefaultPolicy = Policy{MaxRetries: 3, InitialInterval: 200 * time.Millisecond}

// BackOff returns an exponential backoff that stops after MaxRetries or when ctx ends.
func (p Policy) BackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, p.MaxRetries), ctx)
}
