package ports

import "context"

// CapacityQueue carries one reservation marker per order in DELIVERY, visible
// to collaborators (dispatch, dashboards). The reservation store stays authoritative.
type CapacityQueue interface {
	// Enqueue adds a marker and returns its handle.
	Enqueue(ctx context.Context, payload []byte) (string, error)

	// Dequeue removes the marker with the given handle.
	Dequeue(ctx context.Context, handle string) error

	// ApproximateDepth returns the number of markers, possibly stale.
	ApproximateDepth(ctx context.Context) (int, error)
}
