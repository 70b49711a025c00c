// Package order provides the Order aggregate and the fulfillment lifecycle it follows.
//
// The package includes:
//   - Order: the aggregate root holding customer, line items, current stage and status
//   - Stage: the strict CREATED -> COOKING -> PACKAGING -> DELIVERY -> DELIVERED sequence
//   - Status: the overall order state (CREATED, IN_PROGRESS, COMPLETED, EXPIRED, FAILED)
//   - LineItem: a product line with quantity and unit price in minor units
//
// Key business rules:
//   - An order only advances to the immediate successor of its current stage
//   - Reaching DELIVERED completes the order
//   - Expired and failed orders accept no further transitions
package order
