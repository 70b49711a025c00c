// Package temporal resumes suspended Temporal activities. A continuation
// token is the base64 task token of an activity that returned
// activity.ErrResultPending, and the token itself serves as the handle.
package temporal

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"fulfillment/internal/core/ports"
	"fulfillment/internal/pkg/errs"

	"go.temporal.io/api/serviceerror"
	sdktemporal "go.temporal.io/sdk/temporal"
)

// ActivityCompleter is the subset of client.Client used to resume activities.
type ActivityCompleter interface {
	CompleteActivity(ctx context.Context, taskToken []byte, result interface{}, err error) error
	RecordActivityHeartbeat(ctx context.Context, taskToken []byte, details ...interface{}) error
}

// Continuations implements ports.Continuations on top of Temporal async activity completion.
type Continuations struct {
	completer ActivityCompleter
	logger    *slog.Logger
}

func NewContinuations(completer ActivityCompleter, logger *slog.Logger) *Continuations {
	return &Continuations{completer: completer, logger: logger.With("component", "TemporalContinuations")}
}

// EncodeTaskToken renders a task token as a continuation token.
func EncodeTaskToken(taskToken []byte) string {
	return base64.StdEncoding.EncodeToString(taskToken)
}

// Park accepts the encoded task token as the handle. Temporal already holds
// the activity open, so nothing is registered here.
func (c *Continuations) Park(_ context.Context, continuationToken string) (string, error) {
	if _, err := decode(continuationToken); err != nil {
		return "", errs.NewContinuationUnavailableError(err)
	}
	return continuationToken, nil
}

func (c *Continuations) Resolve(ctx context.Context, handle string, outcome ports.Outcome) error {
	taskToken, err := decode(handle)
	if err != nil {
		return err
	}
	outcome.Success = true
	return c.translate(ctx, handle, c.completer.CompleteActivity(ctx, taskToken, outcome, nil))
}

// Fail completes the activity with an application error whose type is kind,
// so workflows can branch on it with ApplicationError.Type.
func (c *Continuations) Fail(ctx context.Context, handle, kind, cause string) error {
	taskToken, err := decode(handle)
	if err != nil {
		return err
	}
	appErr := sdktemporal.NewNonRetryableApplicationError(cause, kind, nil)
	return c.translate(ctx, handle, c.completer.CompleteActivity(ctx, taskToken, nil, appErr))
}

func (c *Continuations) Heartbeat(ctx context.Context, handle string) error {
	taskToken, err := decode(handle)
	if err != nil {
		return err
	}
	return c.translate(ctx, handle, c.completer.RecordActivityHeartbeat(ctx, taskToken))
}

// translate maps "activity no longer exists" to ports.ErrContinuationGone.
func (c *Continuations) translate(ctx context.Context, handle string, err error) error {
	if err == nil {
		return nil
	}

	var notFound *serviceerror.NotFound
	if errors.As(err, &notFound) {
		c.logger.WarnContext(ctx, "activity is gone", "handle", shorten(handle), "error", err)
		return fmt.Errorf("%w: %v", ports.ErrContinuationGone, err)
	}
	return errs.NewContinuationUnavailableError(err)
}

func decode(token string) ([]byte, error) {
	if token == "" {
		return nil, errs.NewValueIsRequiredError("continuation token")
	}
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, errs.NewValueIsInvalidErrorWithCause("continuation token", err)
	}
	return raw, nil
}

func shorten(handle string) string {
	if len(handle) > 12 {
		return handle[:12] + "..."
	}
	return handle
}
