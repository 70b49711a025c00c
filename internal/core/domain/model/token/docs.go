// Package token models the records behind suspended orchestrations: stage
// confirmation tokens and capacity-wait tokens share one shape and lifecycle
// and differ only in their Scope.
package token
