package bookings

import (
	"errors"

	"salonbook/internal/domain"
)

var ErrBookingCancelled = errors.New("booking is cancelled")

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// RejectionError carries the engine's reason for refusing a booking time.
type RejectionError struct {
	Reason domain.RejectReason
}

func (e *RejectionError) Error() string {
	return e.Reason.Message()
}
