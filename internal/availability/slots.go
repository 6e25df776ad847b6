// Package availability holds the pure scheduling core: slot generation,
// free/busy resolution and booking validation. Nothing here performs I/O or
// reads the wall clock.
package availability

import (
	"iter"
	"time"

	"github.com/google/uuid"

	"salonbook/internal/domain"
)

// GenerateSlots yields window.Start, window.Start+step, ... while the slot
// start is before window.End. A nil window (closed day) or a non-positive
// step yields nothing. The sequence can be ranged over more than once.
func GenerateSlots(window *domain.TimeWindow, step time.Duration) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		if window == nil || step <= 0 {
			return
		}
		for t := window.Start; t.Before(window.End); t = t.Add(step) {
			if !yield(t) {
				return
			}
		}
	}
}

// Resolve classifies each candidate start as free or busy for a booking of
// durationMinutes with the given provider.
func Resolve(candidateStarts iter.Seq[time.Time], durationMinutes int, providerSchedule domain.WeeklySchedule, booked []domain.BookedInterval, excludeID *uuid.UUID) []domain.CandidateSlot {
	var out []domain.CandidateSlot
	if candidateStarts == nil {
		return out
	}
	duration := time.Duration(durationMinutes) * time.Minute

	for start := range candidateStarts {
		slot := domain.CandidateSlot{Start: start, DurationMinutes: durationMinutes}
		if durationMinutes > 0 {
			candidate := domain.TimeWindow{Start: start, End: start.Add(duration)}
			slot.IsFree = withinHours(candidate, providerSchedule) && !overlapsAny(candidate, booked, excludeID)
		}
		out = append(out, slot)
	}
	return out
}

func withinHours(candidate domain.TimeWindow, schedule domain.WeeklySchedule) bool {
	w, ok := schedule.WindowOn(candidate.Start)
	if !ok {
		return false
	}
	return w.ContainsWindow(candidate)
}

func overlapsAny(candidate domain.TimeWindow, booked []domain.BookedInterval, excludeID *uuid.UUID) bool {
	for _, b := range booked {
		if !b.Occupies(excludeID) {
			continue
		}
		if candidate.Overlaps(b.Window()) {
			return true
		}
	}
	return false
}
