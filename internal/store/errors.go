package store

import "errors"

// ErrConflict is returned by the write path when a booking would overlap
// another live booking of the same provider. It is the authoritative answer,
// even when an earlier advisory check accepted the time.
var (
	ErrConflict            = errors.New("booking conflict")
	ErrNotFound            = errors.New("booking not found")
	ErrIdempotencyConflict = errors.New("idempotency key conflict")
)
