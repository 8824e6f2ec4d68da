package gloss

import (
	"errors"
	"fmt"
)

// Common errors returned by the gloss client.
var (
	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("store is closed")

	// ErrNotFound is returned when a key or entry does not exist.
	ErrNotFound = errors.New("not found")

	// ErrOffline is returned when a cloud operation is attempted without a configured cloud.
	ErrOffline = errors.New("operation unavailable in offline mode")

	// ErrNoSession is returned when a cloud operation needs a signed-in account.
	ErrNoSession = errors.New("no account session")

	// ErrCloudUnsupported is returned when none of the known cloud schema shapes
	// is usable for this account.
	ErrCloudUnsupported = errors.New("cloud schema unsupported")

	// ErrInvalidID is returned when an entry id cannot be parsed back into scope and range.
	ErrInvalidID = errors.New("invalid entry id")
)

// ValidationError is returned when configuration or a stored/inbound entry
// fails shape checks. Extractable via errors.As().
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// UserInputError is returned by mutations for reader input that cannot be
// stored, such as an empty note body. It is the only error class a mutation
// reports for input. Extractable via errors.As().
type UserInputError struct {
	Field   string
	Message string
}

func (e *UserInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// SyncError is returned when a cloud operation fails with details.
// Extractable via errors.As(). Supports Unwrap().
type SyncError struct {
	Operation string
	Err       error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync: %s failed: %v", e.Operation, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }
