// Package errs provides standardized error types for the fulfillment application.
// It implements a consistent pattern for error creation, formatting, and unwrapping
// that is used throughout the application.
//
// The package includes several error types for common error scenarios:
//   - ValueIsRequiredError: For when a required value is missing
//   - ValueIsInvalidError: For when a value is invalid
//   - ObjectNotFoundError: For when an object cannot be found
//   - StageNotFoundError, TokenNotFoundError: lookups of stage records and
//     confirmation tokens; both also match ErrObjectNotFound
//   - InvalidTransitionError: a stage move outside the order lifecycle
//   - TokenExpiredError, ConfirmationRejectedError: failure outcomes delivered
//     to a suspended orchestration
//   - UnavailableError: store, notifier or continuation infrastructure failures
//
// Each error type follows a consistent pattern:
//   - A sentinel error variable (e.g., ErrValueIsRequired)
//   - A struct type with fields for error details
//   - Constructor functions with and without cause
//   - Error() method for formatting the error message
//   - Unwrap() method for error wrapping/unwrapping support
//
// ErrConcurrentUpdate is returned by repositories when a conditional write
// lost to another writer; services translate it into the domain error that
// fits the operation.
package errs
