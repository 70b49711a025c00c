// Package services contains domain services: business rules that involve
// several aggregates and do not belong to any one of them.
//
// CapacityPolicy decides admission to the DELIVERY stage and the order in
// which queued orders receive freed delivery slots.
package services
