package bookings

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"salonbook/internal/availability"
	"salonbook/internal/clock"
	"salonbook/internal/domain"
	"salonbook/internal/events"
	"salonbook/internal/store"
)

const (
	DefaultSlotStep    = 15 * time.Minute
	DefaultMaxDuration = 8 * time.Hour

	maxIdempotencyKeyLen = 256
	maxNotesLen          = 2000
)

type Options struct {
	Clock       clock.Clock
	Publisher   events.Publisher
	Logger      *slog.Logger
	Location    *time.Location
	SlotStep    time.Duration
	MaxDuration time.Duration
}

// Service is the authoritative write path. Every mutation re-runs the
// validator on a snapshot read while the provider's calendar lock is held.
type Service struct {
	repo        store.BookingRepository
	clock       clock.Clock
	publisher   events.Publisher
	log         *slog.Logger
	loc         *time.Location
	step        time.Duration
	maxDuration time.Duration
}

func NewService(repo store.BookingRepository, opts Options) *Service {
	s := &Service{
		repo:        repo,
		clock:       opts.Clock,
		publisher:   opts.Publisher,
		log:         opts.Logger,
		loc:         opts.Location,
		step:        opts.SlotStep,
		maxDuration: opts.MaxDuration,
	}
	if s.clock == nil {
		s.clock = clock.System{}
	}
	if s.publisher == nil {
		s.publisher = events.Nop{}
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.log = s.log.With(slog.String("component", "service.bookings"))
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.step <= 0 {
		s.step = DefaultSlotStep
	}
	if s.maxDuration <= 0 {
		s.maxDuration = DefaultMaxDuration
	}
	return s
}

func (s *Service) Location() *time.Location { return s.loc }

type AvailabilityInput struct {
	SalonID          string
	ProviderID       string
	DurationMinutes  int
	Day              time.Time
	Step             time.Duration
	ExcludeBookingID *uuid.UUID
}

// Availability returns the slot grid for one provider on the salon-local date
// of in.Day.
func (s *Service) Availability(ctx context.Context, in AvailabilityInput) ([]domain.CandidateSlot, error) {
	if err := requireIDs(in.SalonID, in.ProviderID); err != nil {
		return nil, err
	}
	if in.DurationMinutes <= 0 {
		return nil, validationError("duration_minutes must be positive")
	}
	if err := s.checkDuration(in.DurationMinutes); err != nil {
		return nil, err
	}
	step := in.Step
	if step == 0 {
		step = s.step
	}
	if step < time.Minute || step%time.Minute != 0 {
		return nil, validationError("step must be a whole number of minutes")
	}

	provider, err := s.repo.GetWeeklySchedule(ctx, domain.OwnerTypeProvider, in.ProviderID)
	if err != nil {
		return nil, err
	}
	salon, err := s.repo.GetWeeklySchedule(ctx, domain.OwnerTypeSalon, in.SalonID)
	if err != nil {
		return nil, err
	}

	y, m, d := in.Day.In(s.loc).Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, s.loc)
	day := domain.TimeWindow{Start: midnight, End: midnight.AddDate(0, 0, 1)}

	windows := availability.BookableWindows(day, provider, &salon)
	if len(windows) == 0 {
		return []domain.CandidateSlot{}, nil
	}

	booked, err := s.repo.GetBookedIntervals(ctx, in.ProviderID, windows[0].Start, windows[len(windows)-1].End)
	if err != nil {
		return nil, err
	}

	return availability.Grid(availability.GridInput{
		Range:           day,
		Step:            step,
		DurationMinutes: in.DurationMinutes,
		Provider:        provider,
		Salon:           &salon,
		Booked:          booked,
		ExcludeID:       in.ExcludeBookingID,
		Now:             s.clock.Now(),
	}), nil
}

type ValidateInput struct {
	SalonID          string
	ProviderID       string
	ServiceID        string
	DurationMinutes  int
	Start            time.Time
	ExcludeBookingID *uuid.UUID
}

// Validate is the advisory check: it reads fresh snapshots without locking.
func (s *Service) Validate(ctx context.Context, in ValidateInput) (domain.ValidationResult, error) {
	if err := requireIDs(in.SalonID, in.ProviderID); err != nil {
		return domain.ValidationResult{}, err
	}
	if in.DurationMinutes <= 0 {
		return domain.Reject(domain.RejectMissingDuration), nil
	}

	req := domain.BookingRequest{
		ProviderID:        in.ProviderID,
		ServiceID:         in.ServiceID,
		DurationMinutes:   in.DurationMinutes,
		ProposedStart:     in.Start.In(s.loc),
		ExcludeIntervalID: in.ExcludeBookingID,
	}
	provider, err := s.repo.GetWeeklySchedule(ctx, domain.OwnerTypeProvider, in.ProviderID)
	if err != nil {
		return domain.ValidationResult{}, err
	}
	salon, err := s.repo.GetWeeklySchedule(ctx, domain.OwnerTypeSalon, in.SalonID)
	if err != nil {
		return domain.ValidationResult{}, err
	}
	end := req.ProposedStart.Add(minutes(in.DurationMinutes))
	booked, err := s.repo.GetBookedIntervals(ctx, in.ProviderID, req.ProposedStart, end)
	if err != nil {
		return domain.ValidationResult{}, err
	}
	return availability.Validate(req, provider, &salon, booked, s.clock.Now()), nil
}

type BookInput struct {
	SalonID         string
	ProviderID      string
	ServiceID       string
	DurationMinutes int
	Start           time.Time
	Notes           string
	IdempotencyKey  string
}

func (s *Service) Book(ctx context.Context, in BookInput) (domain.BookedInterval, error) {
	if err := requireIDs(in.SalonID, in.ProviderID); err != nil {
		return domain.BookedInterval{}, err
	}
	if in.ServiceID == "" {
		return domain.BookedInterval{}, validationError("service_id is required")
	}
	if err := s.checkDuration(in.DurationMinutes); err != nil {
		return domain.BookedInterval{}, err
	}
	notes := strings.TrimSpace(in.Notes)
	if len(notes) > maxNotesLen {
		return domain.BookedInterval{}, validationError("notes too long")
	}

	start := in.Start.UTC()
	b := domain.BookedInterval{
		SalonID:    in.SalonID,
		ProviderID: in.ProviderID,
		ServiceID:  in.ServiceID,
		Notes:      notes,
		StartTime:  start,
		EndTime:    start.Add(minutes(in.DurationMinutes)),
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		if len(key) > maxIdempotencyKeyLen {
			return domain.BookedInterval{}, validationError("idempotency_key too long")
		}
		b.ID = idempotentBookingID(in.ProviderID, key)
	}

	var created domain.BookedInterval
	replayed := false
	err := s.repo.InProviderTransaction(ctx, in.ProviderID, func(ctx context.Context, tx store.CalendarTx) error {
		if b.ID != uuid.Nil {
			existing, err := tx.GetBooking(ctx, in.ProviderID, b.ID)
			switch {
			case err == nil:
				if !sameBooking(existing, b) {
					return store.ErrIdempotencyConflict
				}
				created, replayed = existing, true
				return nil
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
		}

		req := domain.BookingRequest{
			ProviderID:      in.ProviderID,
			ServiceID:       in.ServiceID,
			DurationMinutes: in.DurationMinutes,
			ProposedStart:   start,
		}
		if err := s.recheck(ctx, tx, in.SalonID, req); err != nil {
			return err
		}

		var err error
		created, err = tx.InsertBooking(ctx, b)
		return err
	})
	if err != nil {
		s.logRefusal("create", in.ProviderID, err)
		return domain.BookedInterval{}, err
	}

	if !replayed {
		s.publish(ctx, events.TypeBookingCreated, created)
	}
	return created, nil
}

type RescheduleInput struct {
	ProviderID string
	BookingID  uuid.UUID
	Start      time.Time
	// DurationMinutes of zero keeps the booking's current length.
	DurationMinutes int
	// Notes replaces the booking's notes when set.
	Notes *string
}

func (s *Service) Reschedule(ctx context.Context, in RescheduleInput) (domain.BookedInterval, error) {
	if in.ProviderID == "" {
		return domain.BookedInterval{}, validationError("provider_id is required")
	}
	if in.BookingID == uuid.Nil {
		return domain.BookedInterval{}, validationError("booking_id is required")
	}
	if in.DurationMinutes < 0 {
		return domain.BookedInterval{}, validationError("duration_minutes must not be negative")
	}
	if in.DurationMinutes > 0 {
		if err := s.checkDuration(in.DurationMinutes); err != nil {
			return domain.BookedInterval{}, err
		}
	}
	var notes *string
	if in.Notes != nil {
		n := strings.TrimSpace(*in.Notes)
		if len(n) > maxNotesLen {
			return domain.BookedInterval{}, validationError("notes too long")
		}
		notes = &n
	}

	start := in.Start.UTC()
	var updated domain.BookedInterval
	err := s.repo.InProviderTransaction(ctx, in.ProviderID, func(ctx context.Context, tx store.CalendarTx) error {
		current, err := tx.GetBooking(ctx, in.ProviderID, in.BookingID)
		if err != nil {
			return err
		}
		if current.IsCancelled() {
			return ErrBookingCancelled
		}

		duration := in.DurationMinutes
		if duration == 0 {
			duration = int(current.Window().Duration() / time.Minute)
		}
		id := current.ID
		req := domain.BookingRequest{
			ProviderID:        current.ProviderID,
			ServiceID:         current.ServiceID,
			DurationMinutes:   duration,
			ProposedStart:     start,
			ExcludeIntervalID: &id,
		}
		if err := s.recheck(ctx, tx, current.SalonID, req); err != nil {
			return err
		}

		next := current
		next.StartTime = start
		next.EndTime = start.Add(minutes(duration))
		if notes != nil {
			next.Notes = *notes
		}
		updated, err = tx.UpdateBookingTimes(ctx, next)
		return err
	})
	if err != nil {
		s.logRefusal("reschedule", in.ProviderID, err)
		return domain.BookedInterval{}, err
	}

	s.publish(ctx, events.TypeBookingRescheduled, updated)
	return updated, nil
}

// Cancel marks the booking cancelled. Cancelling twice is a no-op that
// returns the booking as first cancelled.
func (s *Service) Cancel(ctx context.Context, providerID string, bookingID uuid.UUID) (domain.BookedInterval, error) {
	if providerID == "" {
		return domain.BookedInterval{}, validationError("provider_id is required")
	}
	if bookingID == uuid.Nil {
		return domain.BookedInterval{}, validationError("booking_id is required")
	}

	var cancelled domain.BookedInterval
	alreadyCancelled := false
	err := s.repo.InProviderTransaction(ctx, providerID, func(ctx context.Context, tx store.CalendarTx) error {
		current, err := tx.GetBooking(ctx, providerID, bookingID)
		if err != nil {
			return err
		}
		if current.IsCancelled() {
			cancelled, alreadyCancelled = current, true
			return nil
		}
		cancelled, err = tx.CancelBooking(ctx, providerID, bookingID, s.clock.Now())
		return err
	})
	if err != nil {
		return domain.BookedInterval{}, err
	}

	if !alreadyCancelled {
		s.publish(ctx, events.TypeBookingCancelled, cancelled)
	}
	return cancelled, nil
}

// CreateOrUpdateBooking applies a confirmed edit session: a create when
// req.BookingID is nil, a reschedule of that booking otherwise.
func (s *Service) CreateOrUpdateBooking(ctx context.Context, req domain.MutationRequest) (domain.BookedInterval, error) {
	if !req.Start.Before(req.End) {
		return domain.BookedInterval{}, validationError("end must be after start")
	}
	length := req.End.Sub(req.Start)
	if length%time.Minute != 0 {
		return domain.BookedInterval{}, validationError("duration must be a whole number of minutes")
	}
	duration := int(length / time.Minute)

	if req.BookingID == nil {
		return s.Book(ctx, BookInput{
			SalonID:         req.SalonID,
			ProviderID:      req.ProviderID,
			ServiceID:       req.ServiceID,
			DurationMinutes: duration,
			Start:           req.Start,
			Notes:           req.Notes,
			IdempotencyKey:  req.IdempotencyKey,
		})
	}

	in := RescheduleInput{
		ProviderID:      req.ProviderID,
		BookingID:       *req.BookingID,
		Start:           req.Start,
		DurationMinutes: duration,
	}
	if req.Notes != "" {
		notes := req.Notes
		in.Notes = &notes
	}
	return s.Reschedule(ctx, in)
}

// recheck runs the validator against a snapshot read inside the provider
// transaction. Times are validated in the salon's location.
func (s *Service) recheck(ctx context.Context, tx store.CalendarTx, salonID string, req domain.BookingRequest) error {
	provider, err := tx.GetWeeklySchedule(ctx, domain.OwnerTypeProvider, req.ProviderID)
	if err != nil {
		return err
	}
	salon, err := tx.GetWeeklySchedule(ctx, domain.OwnerTypeSalon, salonID)
	if err != nil {
		return err
	}

	req.ProposedStart = req.ProposedStart.In(s.loc)
	end := req.ProposedStart.Add(minutes(req.DurationMinutes))
	booked, err := tx.ListBookings(ctx, req.ProviderID, req.ProposedStart, end)
	if err != nil {
		return err
	}

	res := availability.Validate(req, provider, &salon, booked, s.clock.Now())
	return rejectionToError(res)
}

func rejectionToError(res domain.ValidationResult) error {
	switch {
	case res.Accepted:
		return nil
	case res.Reason == domain.RejectOverlapsExisting:
		return store.ErrConflict
	default:
		return &RejectionError{Reason: res.Reason}
	}
}

func (s *Service) publish(ctx context.Context, eventType string, b domain.BookedInterval) {
	e := events.BookingEvent(eventType, b, s.clock.Now())
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.log.Error(
			"publish booking event failed",
			slog.String("event_type", eventType),
			slog.String("booking_id", b.ID.String()),
			slog.Any("err", err),
		)
	}
}

func (s *Service) logRefusal(op, providerID string, err error) {
	var rErr *RejectionError
	switch {
	case errors.Is(err, store.ErrConflict):
		s.log.Info("booking conflict", slog.String("op", op), slog.String("provider_id", providerID))
	case errors.As(err, &rErr):
		s.log.Info("booking rejected", slog.String("op", op), slog.String("provider_id", providerID), slog.String("reason", string(rErr.Reason)))
	}
}

func (s *Service) checkDuration(durationMinutes int) error {
	if durationMinutes > 0 && minutes(durationMinutes) > s.maxDuration {
		return validationError("duration too long")
	}
	return nil
}

func requireIDs(salonID, providerID string) error {
	if salonID == "" {
		return validationError("salon_id is required")
	}
	if providerID == "" {
		return validationError("provider_id is required")
	}
	return nil
}

func idempotentBookingID(providerID, key string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("salonbook:create_booking:"+providerID+":"+key))
}

func sameBooking(a, b domain.BookedInterval) bool {
	return a.SalonID == b.SalonID &&
		a.ProviderID == b.ProviderID &&
		a.ServiceID == b.ServiceID &&
		a.Notes == b.Notes &&
		a.StartTime.Equal(b.StartTime) &&
		a.EndTime.Equal(b.EndTime)
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}
