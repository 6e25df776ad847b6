package domain

import "time"

type RejectReason string

const (
	RejectPastTime                    RejectReason = "PAST_TIME"
	RejectOutsideProviderHours        RejectReason = "OUTSIDE_PROVIDER_HOURS"
	RejectOutsideSalonHours           RejectReason = "OUTSIDE_SALON_HOURS"
	RejectOverlapsExisting            RejectReason = "OVERLAPS_EXISTING"
	RejectMissingDuration             RejectReason = "MISSING_DURATION"
	RejectProviderNotScheduledThatDay RejectReason = "PROVIDER_NOT_SCHEDULED_THAT_DAY"
)

// Message is the single user-facing explanation for a rejection.
func (r RejectReason) Message() string {
	switch r {
	case RejectPastTime:
		return "That time has already passed. Pick a later slot."
	case RejectOutsideProviderHours:
		return "That time is outside the provider's working hours."
	case RejectOutsideSalonHours:
		return "That time is outside the salon's opening hours."
	case RejectOverlapsExisting:
		return "The provider already has an appointment during that time. Pick a different slot."
	case RejectMissingDuration:
		return "The service has no duration."
	case RejectProviderNotScheduledThatDay:
		return "The provider does not work on that day."
	default:
		return string(r)
	}
}

// ValidationResult is either Accepted with the booking's window or Rejected
// with exactly one reason.
type ValidationResult struct {
	Accepted bool
	Start    time.Time
	End      time.Time
	Reason   RejectReason
}

func Accept(start, end time.Time) ValidationResult {
	return ValidationResult{Accepted: true, Start: start, End: end}
}

func Reject(reason RejectReason) ValidationResult {
	return ValidationResult{Reason: reason}
}

func (r ValidationResult) Window() TimeWindow {
	return TimeWindow{Start: r.Start, End: r.End}
}
