package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"salonbook/internal/domain"
)

// ScheduleSource returns one owner's weekly hours. Implementations must
// return an error rather than an empty schedule when the read fails.
type ScheduleSource interface {
	GetWeeklySchedule(ctx context.Context, ownerType domain.OwnerType, ownerID string) (domain.WeeklySchedule, error)
}

// BookingSource returns a provider's non-cancelled bookings intersecting
// [rangeStart, rangeEnd).
type BookingSource interface {
	GetBookedIntervals(ctx context.Context, providerID string, rangeStart, rangeEnd time.Time) ([]domain.BookedInterval, error)
}

type BookingRepository interface {
	ScheduleSource
	BookingSource

	// InProviderTransaction runs fn while holding the provider's calendar lock.
	InProviderTransaction(ctx context.Context, providerID string, fn func(ctx context.Context, tx CalendarTx) error) error
}

// CalendarTx is the set of reads and writes available inside a provider
// transaction.
type CalendarTx interface {
	GetWeeklySchedule(ctx context.Context, ownerType domain.OwnerType, ownerID string) (domain.WeeklySchedule, error)
	ListBookings(ctx context.Context, providerID string, windowStart, windowEnd time.Time) ([]domain.BookedInterval, error)
	GetBooking(ctx context.Context, providerID string, bookingID uuid.UUID) (domain.BookedInterval, error)
	InsertBooking(ctx context.Context, b domain.BookedInterval) (domain.BookedInterval, error)
	UpdateBookingTimes(ctx context.Context, b domain.BookedInterval) (domain.BookedInterval, error)
	CancelBooking(ctx context.Context, providerID string, bookingID uuid.UUID, at time.Time) (domain.BookedInterval, error)
}
