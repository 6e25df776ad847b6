// Package reschedule drives one booking edit session: pick a provider, pick
// or drag a time, confirm. It validates locally against snapshots and leaves
// the final say to the mutation sink.
package reschedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"salonbook/internal/availability"
	"salonbook/internal/clock"
	"salonbook/internal/domain"
	"salonbook/internal/service/bookings"
	"salonbook/internal/store"
)

type State int

const (
	Idle State = iota
	ProviderSelected
	CandidateChosen
	Validated
	Confirmed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case ProviderSelected:
		return "provider_selected"
	case CandidateChosen:
		return "candidate_chosen"
	case Validated:
		return "validated"
	case Confirmed:
		return "confirmed"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) terminal() bool {
	return s == Confirmed || s == Cancelled
}

var (
	// ErrStaleLoad is returned by a load that finished after a newer request
	// replaced it. Its result was discarded.
	ErrStaleLoad       = errors.New("load superseded by a newer request")
	ErrSlotUnavailable = errors.New("time no longer available")
	ErrInvalidState    = errors.New("operation not allowed in current state")
	ErrNoSnapshot      = errors.New("no schedule loaded")
	// ErrOutOfRange is returned for a candidate that starts outside the
	// loaded range. Its bookings were never fetched.
	ErrOutOfRange = errors.New("candidate outside loaded range")
)

// Sink applies a confirmed session. It returns store.ErrConflict when the
// time was taken since the session last looked and a *bookings.RejectionError
// when its own recheck refuses the time.
type Sink interface {
	CreateOrUpdateBooking(ctx context.Context, req domain.MutationRequest) (domain.BookedInterval, error)
}

type Session struct {
	SalonID         string
	ServiceID       string
	DurationMinutes int
	// EditingBookingID is set when an existing booking is being moved.
	EditingBookingID *uuid.UUID
	// Location is the salon's time zone. Weekdays and opening hours are
	// resolved in it. Nil means UTC.
	Location *time.Location
}

type snapshot struct {
	provider domain.WeeklySchedule
	salon    *domain.WeeklySchedule
	booked   []domain.BookedInterval
}

type Coordinator struct {
	session   Session
	schedules store.ScheduleSource
	bookings  store.BookingSource
	sink      Sink
	clock     clock.Clock
	log       *slog.Logger
	loc       *time.Location

	mu             sync.Mutex
	state          State
	generation     uint64
	providerID     string
	rng            domain.TimeWindow
	snap           *snapshot
	current        *domain.ValidationResult
	lastValid      *domain.TimeWindow
	idempotencyKey string
}

func NewCoordinator(session Session, schedules store.ScheduleSource, bookings store.BookingSource, sink Sink, clk clock.Clock, log *slog.Logger) *Coordinator {
	if clk == nil {
		clk = clock.System{}
	}
	if log == nil {
		log = slog.Default()
	}
	loc := session.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Coordinator{
		session:   session,
		schedules: schedules,
		bookings:  bookings,
		sink:      sink,
		clock:     clk,
		log:       log.With(slog.String("component", "reschedule")),
		loc:       loc,
	}
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) Provider() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.providerID
}

func (c *Coordinator) Range() domain.TimeWindow {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng
}

// SelectProvider loads the provider's schedule, the salon's schedule and the
// provider's bookings for [rangeStart, rangeEnd). Any candidate is dropped.
func (c *Coordinator) SelectProvider(ctx context.Context, providerID string, rangeStart, rangeEnd time.Time) error {
	if providerID == "" {
		return errors.New("provider id is required")
	}
	rng, err := domain.NewTimeWindow(rangeStart.In(c.loc), rangeEnd.In(c.loc))
	if err != nil {
		return err
	}
	return c.load(ctx, providerID, rng)
}

// SelectProviderWeek selects the provider for the salon-local Monday-to-Monday
// week that contains day.
func (c *Coordinator) SelectProviderWeek(ctx context.Context, providerID string, day time.Time) error {
	start := domain.MondayOf(day.In(c.loc))
	return c.SelectProvider(ctx, providerID, start, start.AddDate(0, 0, 7))
}

// ChangeRange reloads the current provider for a new visible range.
func (c *Coordinator) ChangeRange(ctx context.Context, rangeStart, rangeEnd time.Time) error {
	rng, err := domain.NewTimeWindow(rangeStart.In(c.loc), rangeEnd.In(c.loc))
	if err != nil {
		return err
	}
	c.mu.Lock()
	providerID := c.providerID
	c.mu.Unlock()
	if providerID == "" {
		return ErrInvalidState
	}
	return c.load(ctx, providerID, rng)
}

// load fetches fresh snapshots outside the lock. Only the most recent load
// may install its result.
func (c *Coordinator) load(ctx context.Context, providerID string, rng domain.TimeWindow) error {
	c.mu.Lock()
	if c.state.terminal() {
		c.mu.Unlock()
		return ErrInvalidState
	}
	c.generation++
	gen := c.generation
	c.providerID = providerID
	c.rng = rng
	c.snap = nil
	c.clearCandidate()
	if c.state != Idle {
		c.state = ProviderSelected
	}
	c.mu.Unlock()

	snap, err := c.fetch(ctx, providerID, rng)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		c.log.Debug("discarding stale load", slog.String("provider_id", providerID), slog.Uint64("generation", gen))
		return ErrStaleLoad
	}
	if err != nil {
		c.log.Warn("schedule load failed", slog.String("provider_id", providerID), slog.Any("err", err))
		c.resetToIdle()
		return err
	}
	c.snap = snap
	c.state = ProviderSelected
	return nil
}

func (c *Coordinator) fetch(ctx context.Context, providerID string, rng domain.TimeWindow) (*snapshot, error) {
	provider, err := c.schedules.GetWeeklySchedule(ctx, domain.OwnerTypeProvider, providerID)
	if err != nil {
		return nil, fmt.Errorf("load provider schedule: %w", err)
	}

	var salon *domain.WeeklySchedule
	if c.session.SalonID != "" {
		s, err := c.schedules.GetWeeklySchedule(ctx, domain.OwnerTypeSalon, c.session.SalonID)
		if err != nil {
			return nil, fmt.Errorf("load salon schedule: %w", err)
		}
		salon = &s
	}

	// A candidate starting near the range end may run past it.
	end := rng.End.Add(time.Duration(max(c.session.DurationMinutes, 0)) * time.Minute)
	booked, err := c.bookings.GetBookedIntervals(ctx, providerID, rng.Start, end)
	if err != nil {
		return nil, fmt.Errorf("load bookings: %w", err)
	}
	return &snapshot{provider: provider, salon: salon, booked: booked}, nil
}

// ChooseCandidate validates start against the current snapshot. A rejected
// candidate is not committed: the last valid position stays available.
// Starts outside the loaded range fail with ErrOutOfRange and leave the
// candidate untouched.
func (c *Coordinator) ChooseCandidate(start time.Time) (domain.ValidationResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case ProviderSelected, CandidateChosen, Validated:
	default:
		return domain.ValidationResult{}, ErrInvalidState
	}
	if c.snap == nil {
		return domain.ValidationResult{}, ErrNoSnapshot
	}
	start = start.In(c.loc)
	if !c.rng.Contains(start) {
		return domain.ValidationResult{}, ErrOutOfRange
	}

	req := domain.BookingRequest{
		ProviderID:        c.providerID,
		ServiceID:         c.session.ServiceID,
		DurationMinutes:   c.session.DurationMinutes,
		ProposedStart:     start,
		ExcludeIntervalID: c.session.EditingBookingID,
	}
	res := availability.Validate(req, c.snap.provider, c.snap.salon, c.snap.booked, c.clock.Now())
	c.current = &res

	if !res.Accepted {
		c.state = CandidateChosen
		return res, nil
	}

	w := res.Window()
	if c.lastValid == nil || !c.lastValid.Start.Equal(w.Start) || !c.lastValid.End.Equal(w.End) {
		c.idempotencyKey = uuid.NewString()
	}
	c.lastValid = &w
	c.state = Validated
	return res, nil
}

// DragTo moves the candidate to an arbitrary start, off the slot grid.
func (c *Coordinator) DragTo(start time.Time) (domain.ValidationResult, error) {
	return c.ChooseCandidate(start)
}

// Current returns the result for the most recent candidate.
func (c *Coordinator) Current() (domain.ValidationResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return domain.ValidationResult{}, false
	}
	return *c.current, true
}

// LastValid returns the last accepted window, where a rejected drag snaps back to.
func (c *Coordinator) LastValid() (domain.TimeWindow, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastValid == nil {
		return domain.TimeWindow{}, false
	}
	return *c.lastValid, true
}

// Availability resolves the visible range of the current snapshot into slots.
func (c *Coordinator) Availability(step time.Duration) ([]domain.CandidateSlot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap == nil {
		return nil, ErrNoSnapshot
	}
	return availability.Grid(availability.GridInput{
		Range:           c.rng,
		Step:            step,
		DurationMinutes: c.session.DurationMinutes,
		Provider:        c.snap.provider,
		Salon:           c.snap.salon,
		Booked:          c.snap.booked,
		ExcludeID:       c.session.EditingBookingID,
		Now:             c.clock.Now(),
	}), nil
}

// Confirm sends the validated candidate to the sink. When the sink reports a
// conflict or rejects the time the session returns to ProviderSelected with
// bookings reloaded. If the session moved on while the sink was working, the
// outcome is returned but the session state is left alone.
func (c *Coordinator) Confirm(ctx context.Context, notes string) (domain.BookedInterval, error) {
	c.mu.Lock()
	if c.state != Validated || c.lastValid == nil {
		c.mu.Unlock()
		return domain.BookedInterval{}, ErrInvalidState
	}
	req := domain.MutationRequest{
		SalonID:    c.session.SalonID,
		ProviderID: c.providerID,
		ServiceID:  c.session.ServiceID,
		Start:      c.lastValid.Start,
		End:        c.lastValid.End,
		Notes:      notes,
		BookingID:  c.session.EditingBookingID,
	}
	if req.BookingID == nil {
		req.IdempotencyKey = c.idempotencyKey
	}
	providerID, rng := c.providerID, c.rng
	gen := c.generation
	c.mu.Unlock()

	b, err := c.sink.CreateOrUpdateBooking(ctx, req)

	var rejected *bookings.RejectionError
	conflict := errors.Is(err, store.ErrConflict)

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		c.log.Info("session changed during confirm", slog.String("provider_id", providerID), slog.Any("err", err))
		if conflict {
			return domain.BookedInterval{}, ErrSlotUnavailable
		}
		return b, err
	}
	if err == nil {
		c.generation++
		c.state = Confirmed
		c.snap = nil
		c.clearCandidate()
		c.mu.Unlock()
		c.log.Info("booking confirmed", slog.String("provider_id", providerID), slog.String("booking_id", b.ID.String()))
		return b, nil
	}
	c.mu.Unlock()

	var result error
	switch {
	case conflict:
		c.log.Info("slot taken before confirm", slog.String("provider_id", providerID))
		result = ErrSlotUnavailable
	case errors.As(err, &rejected):
		c.log.Info("confirm rejected", slog.String("provider_id", providerID), slog.String("reason", string(rejected.Reason)))
		result = err
	default:
		return domain.BookedInterval{}, err
	}
	if reloadErr := c.load(ctx, providerID, rng); reloadErr != nil {
		return domain.BookedInterval{}, errors.Join(result, reloadErr)
	}
	return domain.BookedInterval{}, result
}

// Cancel ends the session and drops every snapshot. Loads still in flight
// are discarded when they return.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.terminal() {
		return
	}
	c.generation++
	c.state = Cancelled
	c.snap = nil
	c.clearCandidate()
}

func (c *Coordinator) clearCandidate() {
	c.current = nil
	c.lastValid = nil
	c.idempotencyKey = ""
}

func (c *Coordinator) resetToIdle() {
	c.state = Idle
	c.providerID = ""
	c.rng = domain.TimeWindow{}
	c.snap = nil
	c.clearCandidate()
}
