package availability

import (
	"time"

	"github.com/google/uuid"

	"salonbook/internal/domain"
)

// BookableWindows returns the provider's open windows that intersect rng,
// each clipped to the salon's hours on the same date. A nil or unconfigured
// salon schedule leaves the provider windows as they are.
func BookableWindows(rng domain.TimeWindow, provider domain.WeeklySchedule, salon *domain.WeeklySchedule) []domain.TimeWindow {
	checkSalon := salon != nil && salon.Configured()

	var out []domain.TimeWindow
	for _, w := range provider.WindowsBetween(rng.Start, rng.End) {
		if checkSalon {
			salonWindow, ok := salon.WindowOn(w.Start)
			if !ok {
				continue
			}
			if w, ok = w.Intersect(salonWindow); !ok {
				continue
			}
		}
		out = append(out, w)
	}
	return out
}

type GridInput struct {
	Range           domain.TimeWindow
	Step            time.Duration
	DurationMinutes int
	Provider        domain.WeeklySchedule
	Salon           *domain.WeeklySchedule
	Booked          []domain.BookedInterval
	ExcludeID       *uuid.UUID
	Now             time.Time
}

// Grid lays slots over every bookable window in the range and resolves them.
// Only starts inside the range are returned. On top of Resolve, a slot is
// busy when it starts before Now or runs past its bookable window, so a free
// slot always passes Validate.
func Grid(in GridInput) []domain.CandidateSlot {
	out := []domain.CandidateSlot{}
	for _, w := range BookableWindows(in.Range, in.Provider, in.Salon) {
		slots := Resolve(GenerateSlots(&w, in.Step), in.DurationMinutes, in.Provider, in.Booked, in.ExcludeID)
		for _, s := range slots {
			if !in.Range.Contains(s.Start) {
				continue
			}
			if s.IsFree && (s.Start.Before(in.Now) || s.End().After(w.End)) {
				s.IsFree = false
			}
			out = append(out, s)
		}
	}
	return out
}
