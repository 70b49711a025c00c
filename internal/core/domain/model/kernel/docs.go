// Package kernel provides the shared value objects of the fulfillment domain.
//
// The package includes:
//   - OrderKey: the (tenant, order) identity every record is partitioned by
//   - UUID: identifiers for tokens, reservation handles and events
//   - Clock: the UTC time source injected into services
package kernel
