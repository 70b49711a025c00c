package memory

import (
	"context"
	"sync"

	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/pkg/errs"
)

// CapacityQueue keeps reservation markers in memory, in enqueue order.
type CapacityQueue struct {
	mu      sync.Mutex
	handles []string
	markers map[string][]byte
}

func NewCapacityQueue() *CapacityQueue {
	return &CapacityQueue{markers: make(map[string][]byte)}
}

func (q *CapacityQueue) Enqueue(ctx context.Context, payload []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	handle := kernel.NewUUID().String()

	q.mu.Lock()
	defer q.mu.Unlock()
	q.handles = append(q.handles, handle)
	q.markers[handle] = append([]byte(nil), payload...)
	return handle, nil
}

func (q *CapacityQueue) Dequeue(ctx context.Context, handle string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.markers[handle]; !ok {
		return errs.NewObjectNotFoundError("queue marker", handle)
	}
	delete(q.markers, handle)
	for i, h := range q.handles {
		if h == handle {
			q.handles = append(q.handles[:i], q.handles[i+1:]...)
			break
		}
	}
	return nil
}

func (q *CapacityQueue) ApproximateDepth(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.markers), nil
}

// Payloads returns the markers in enqueue order.
func (q *CapacityQueue) Payloads() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([][]byte, 0, len(q.handles))
	for _, h := range q.handles {
		out = append(out, q.markers[h])
	}
	return out
}
