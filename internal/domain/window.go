package domain

import (
	"errors"
	"time"
)

var ErrInvalidWindow = errors.New("invalid time window")

// TimeWindow is a half-open interval [Start, End).
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

func NewTimeWindow(start, end time.Time) (TimeWindow, error) {
	if !start.Before(end) {
		return TimeWindow{}, ErrInvalidWindow
	}
	return TimeWindow{Start: start, End: end}, nil
}

func (w TimeWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Contains reports whether p lies in [Start, End).
func (w TimeWindow) Contains(p time.Time) bool {
	return !p.Before(w.Start) && p.Before(w.End)
}

// ContainsWindow reports whether other lies entirely inside w.
func (w TimeWindow) ContainsWindow(other TimeWindow) bool {
	return !other.Start.Before(w.Start) && !other.End.After(w.End)
}

// Overlaps reports whether the two windows share at least one instant.
// Touching windows (a.End == b.Start) do not overlap.
func (w TimeWindow) Overlaps(other TimeWindow) bool {
	return w.Start.Before(other.End) && other.Start.Before(w.End)
}

// Intersect returns the common part of both windows, if any.
func (w TimeWindow) Intersect(other TimeWindow) (TimeWindow, bool) {
	if !w.Overlaps(other) {
		return TimeWindow{}, false
	}
	start := w.Start
	if other.Start.After(start) {
		start = other.Start
	}
	end := w.End
	if other.End.Before(end) {
		end = other.End
	}
	return TimeWindow{Start: start, End: end}, true
}

// FitsStep reports whether the window length is a non-negative multiple of
// step, which keeps slot generation aligned to the window end.
func (w TimeWindow) FitsStep(step time.Duration) bool {
	if step <= 0 {
		return false
	}
	d := w.Duration()
	if d < 0 {
		return false
	}
	return d%step == 0
}
