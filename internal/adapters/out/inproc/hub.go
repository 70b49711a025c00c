// Package inproc resumes suspended orchestrations inside the running process.
// Each parked continuation is a one-slot channel; resolving it sends the
// outcome and removes the handle, so a handle resolves at most once.
package inproc

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/core/ports"
	"fulfillment/internal/pkg/errs"
)

var (
	_ ports.Continuations       = (*Hub)(nil)
	_ ports.ContinuationAwaiter = (*Hub)(nil)
)

type parked struct {
	outcome  chan ports.Outcome
	resolved bool
	beats    int
}

// Hub is the in-process continuation engine.
type Hub struct {
	mu      sync.Mutex
	waiting map[string]*parked
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		waiting: make(map[string]*parked),
		logger:  logger.With("component", "ContinuationHub"),
	}
}

// Park registers a continuation. The continuation token becomes the handle;
// an empty token gets a generated one.
func (h *Hub) Park(ctx context.Context, continuationToken string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errs.NewContinuationUnavailableError(err)
	}

	handle := strings.TrimSpace(continuationToken)
	if handle == "" {
		handle = kernel.NewUUID().String()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.waiting[handle]; exists {
		return "", errs.NewContinuationUnavailableError(fmt.Errorf("handle %s is already parked", handle))
	}
	h.waiting[handle] = &parked{outcome: make(chan ports.Outcome, 1)}
	return handle, nil
}

func (h *Hub) Resolve(_ context.Context, handle string, outcome ports.Outcome) error {
	outcome.Success = true
	return h.deliver(handle, outcome)
}

func (h *Hub) Fail(_ context.Context, handle, kind, cause string) error {
	return h.deliver(handle, ports.Outcome{FailureKind: kind, Cause: cause})
}

func (h *Hub) Heartbeat(_ context.Context, handle string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, ok := h.waiting[handle]
	if !ok || p.resolved {
		return ports.ErrContinuationGone
	}
	p.beats++
	return nil
}

// Await blocks until handle is resolved or ctx ends. An abandoned handle is
// forgotten, so later resolutions report ErrContinuationGone.
func (h *Hub) Await(ctx context.Context, handle string) (ports.Outcome, error) {
	h.mu.Lock()
	p, ok := h.waiting[handle]
	h.mu.Unlock()
	if !ok {
		return ports.Outcome{}, ports.ErrContinuationGone
	}

	select {
	case outcome := <-p.outcome:
		h.forget(handle)
		return outcome, nil
	case <-ctx.Done():
		h.forget(handle)
		return ports.Outcome{}, ctx.Err()
	}
}

// Heartbeats returns how many heartbeats handle received, for diagnostics.
func (h *Hub) Heartbeats(handle string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if p, ok := h.waiting[handle]; ok {
		return p.beats
	}
	return 0
}

// Parked returns the number of continuations still waiting.
func (h *Hub) Parked() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.waiting)
}

func (h *Hub) deliver(handle string, outcome ports.Outcome) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, ok := h.waiting[handle]
	if !ok || p.resolved {
		return ports.ErrContinuationGone
	}
	p.resolved = true
	p.outcome <- outcome

	h.logger.Debug("continuation resolved", "handle", handle, "success", outcome.Success)
	return nil
}

func (h *Hub) forget(handle string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.waiting, handle)
}
