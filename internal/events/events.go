// Package events publishes booking lifecycle events after a write commits.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"salonbook/internal/domain"
)

const (
	TypeBookingCreated     = "booking.created.v1"
	TypeBookingRescheduled = "booking.rescheduled.v1"
	TypeBookingCancelled   = "booking.cancelled.v1"
)

type Event struct {
	ID         uuid.UUID
	Type       string
	Key        string
	OccurredAt time.Time
	Payload    any
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop drops every event. It is used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

type BookingPayload struct {
	BookingID   string     `json:"booking_id"`
	SalonID     string     `json:"salon_id"`
	ProviderID  string     `json:"provider_id"`
	ServiceID   string     `json:"service_id"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     time.Time  `json:"end_time"`
	Status      string     `json:"status"`
	Notes       string     `json:"notes,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

// BookingEvent builds an event of eventType for b, keyed by the booking id so
// every event of one booking lands on the same partition.
func BookingEvent(eventType string, b domain.BookedInterval, at time.Time) Event {
	return Event{
		ID:         uuid.New(),
		Type:       eventType,
		Key:        b.ID.String(),
		OccurredAt: at.UTC(),
		Payload: BookingPayload{
			BookingID:   b.ID.String(),
			SalonID:     b.SalonID,
			ProviderID:  b.ProviderID,
			ServiceID:   b.ServiceID,
			StartTime:   b.StartTime.UTC(),
			EndTime:     b.EndTime.UTC(),
			Status:      string(b.Status),
			Notes:       b.Notes,
			CancelledAt: b.CancelledAt,
		},
	}
}
