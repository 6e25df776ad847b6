package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type BookingStatus string

const (
	BookingStatusBooked    BookingStatus = "booked"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// BookedInterval is a committed booking occupying provider time.
type BookedInterval struct {
	bun.BaseModel `bun:"table:bookings"`

	ID          uuid.UUID     `bun:"id,pk,type:uuid"`
	SalonID     string        `bun:"salon_id,notnull"`
	ProviderID  string        `bun:"provider_id,notnull"`
	ServiceID   string        `bun:"service_id,notnull"`
	Notes       string        `bun:"notes"`
	StartTime   time.Time     `bun:"start_time,notnull"`
	EndTime     time.Time     `bun:"end_time,notnull"`
	Status      BookingStatus `bun:"status,notnull"`
	CancelledAt *time.Time    `bun:"cancelled_at"`
	CreatedAt   time.Time     `bun:"created_at,notnull"`
	UpdatedAt   time.Time     `bun:"updated_at,notnull"`
}

func (b *BookedInterval) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if b.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			b.ID = id
		}
		if b.Status == "" {
			b.Status = BookingStatusBooked
		}
		if b.CreatedAt.IsZero() {
			b.CreatedAt = now
		}
		if b.UpdatedAt.IsZero() {
			b.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		b.UpdatedAt = now
	}
	return nil
}

func (b BookedInterval) Window() TimeWindow {
	return TimeWindow{Start: b.StartTime, End: b.EndTime}
}

func (b BookedInterval) IsCancelled() bool {
	return b.Status == BookingStatusCancelled
}

// Occupies reports whether b takes provider time that other bookings must
// avoid, ignoring the booking named by excludeID.
func (b BookedInterval) Occupies(excludeID *uuid.UUID) bool {
	if b.IsCancelled() {
		return false
	}
	return excludeID == nil || b.ID != *excludeID
}

// CandidateSlot is one derived, never persisted, slot option.
type CandidateSlot struct {
	Start           time.Time
	DurationMinutes int
	IsFree          bool
}

func (s CandidateSlot) End() time.Time {
	return s.Start.Add(time.Duration(s.DurationMinutes) * time.Minute)
}

// BookingRequest is the input to the booking validator. ExcludeIntervalID is
// set when an existing booking is being edited so it does not conflict with itself.
type BookingRequest struct {
	ProviderID        string
	ServiceID         string
	DurationMinutes   int
	ProposedStart     time.Time
	ExcludeIntervalID *uuid.UUID
}

// MutationRequest is what an accepted edit session hands to the write path.
type MutationRequest struct {
	SalonID        string
	ProviderID     string
	ServiceID      string
	Start          time.Time
	End            time.Time
	Notes          string
	BookingID      *uuid.UUID
	IdempotencyKey string
}
