package availability

import (
	"time"

	"salonbook/internal/domain"
)

// Validate checks a proposed booking and returns the first failing rule, in
// this order: duration, past time, provider day, provider hours, salon hours,
// overlap. salonSchedule may be nil, or built from no rules, when the caller
// only checks provider hours; the salon check is then skipped. A configured
// salon schedule that is closed on the day rejects with OUTSIDE_SALON_HOURS.
func Validate(req domain.BookingRequest, providerSchedule domain.WeeklySchedule, salonSchedule *domain.WeeklySchedule, booked []domain.BookedInterval, now time.Time) domain.ValidationResult {
	if req.DurationMinutes <= 0 {
		return domain.Reject(domain.RejectMissingDuration)
	}

	start := req.ProposedStart
	if start.Before(now) {
		return domain.Reject(domain.RejectPastTime)
	}

	candidate := domain.TimeWindow{
		Start: start,
		End:   start.Add(time.Duration(req.DurationMinutes) * time.Minute),
	}

	providerWindow, ok := providerSchedule.WindowOn(start)
	if !ok {
		return domain.Reject(domain.RejectProviderNotScheduledThatDay)
	}
	if !providerWindow.ContainsWindow(candidate) {
		return domain.Reject(domain.RejectOutsideProviderHours)
	}

	if salonSchedule != nil && salonSchedule.Configured() {
		salonWindow, ok := salonSchedule.WindowOn(start)
		if !ok || !salonWindow.ContainsWindow(candidate) {
			return domain.Reject(domain.RejectOutsideSalonHours)
		}
	}

	if overlapsAny(candidate, booked, req.ExcludeIntervalID) {
		return domain.Reject(domain.RejectOverlapsExisting)
	}

	return domain.Accept(candidate.Start, candidate.End)
}
