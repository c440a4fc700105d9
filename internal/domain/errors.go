package domain

import "errors"

// Every failed operation leaves registry state exactly as it was: no field
// mutated, no checkpoint appended, no notification emitted.
var (
	// ErrUnauthorized means the caller lacks the role or ownership the
	// operation requires.
	ErrUnauthorized = errors.New("caller is not authorized for this operation")

	// ErrNotFound means the referenced product id has never been assigned.
	ErrNotFound = errors.New("product not found")

	// ErrInvalidArgument means a required text field was empty or a zero
	// identity was supplied where a real identity is required.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrAlreadyVerified means verify was called on a verified product.
	ErrAlreadyVerified = errors.New("product already verified")
)
