// Package repository implements all database queries for the registration
// ledger. It uses pgx directly (no ORM) for transparency and performance.
package repository

import "errors"

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrEventFull is returned when an event has no remaining capacity.
var ErrEventFull = errors.New("event is fully booked")

// ErrNotAuthenticated is returned when an operation that requires a
// caller identity is invoked without one.
var ErrNotAuthenticated = errors.New("authentication required")

// ErrPermissionDenied is returned when an operation requires
// administrator privilege and the caller lacks it.
var ErrPermissionDenied = errors.New("administrator privileges required")
