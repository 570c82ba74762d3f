package store

import "errors"

// Sentinel errors surfaced by the store and session layers, per spec.md §7.
var (
	// ErrUnableToAcquireLock is returned when a non-blocking lock acquire
	// loses the race. The sweeper swallows it; synchronous callers surface
	// it as a 409-equivalent.
	ErrUnableToAcquireLock = errors.New("store: unable to acquire job lock")

	// ErrFlushWhileFlushing indicates a Record was flushed re-entrantly.
	// A programming error, fatal to the operation in progress.
	ErrFlushWhileFlushing = errors.New("store: flush already in progress")

	// ErrTriggerDataMissing is raised when the trigger field is absent or
	// fails to decode.
	ErrTriggerDataMissing = errors.New("store: trigger data missing")

	// ErrVariablesDataMissing is raised when the frozen variables field is
	// absent or fails to decode.
	ErrVariablesDataMissing = errors.New("store: variables data missing")
)
