package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var ErrInvalidRule = errors.New("invalid schedule rule")

// Weekday is the ISO-8601 day index used everywhere in this module:
// Monday is 0 and Sunday is 6.
type Weekday int16

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

func WeekdayOf(t time.Time) Weekday {
	return Weekday((int(t.Weekday()) + 6) % 7)
}

func (d Weekday) Valid() bool {
	return d >= Monday && d <= Sunday
}

func (d Weekday) String() string {
	if !d.Valid() {
		return fmt.Sprintf("Weekday(%d)", int16(d))
	}
	return time.Weekday((int(d) + 1) % 7).String()
}

// TimeOfDay is a wall-clock time expressed in minutes since local midnight.
// 1440 is allowed as an end-of-day marker.
type TimeOfDay int

const endOfDay TimeOfDay = 24 * 60

func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// On places the wall-clock time on the calendar date of day, in day's location.
func (t TimeOfDay) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, day.Location())
}

type OwnerType string

const (
	OwnerTypeSalon    OwnerType = "salon"
	OwnerTypeProvider OwnerType = "provider"
)

// ScheduleRule is one weekday entry of a salon's or provider's weekly hours.
type ScheduleRule struct {
	bun.BaseModel `bun:"table:schedule_rules"`

	ID          uuid.UUID `bun:"id,pk,type:uuid"`
	OwnerType   OwnerType `bun:"owner_type,notnull"`
	OwnerID     string    `bun:"owner_id,notnull"`
	Weekday     Weekday   `bun:"weekday,notnull"`
	IsOpen      bool      `bun:"is_open,notnull"`
	StartMinute *int      `bun:"start_minute"`
	EndMinute   *int      `bun:"end_minute"`
	CreatedAt   time.Time `bun:"created_at,notnull"`
	UpdatedAt   time.Time `bun:"updated_at,notnull"`
}

func (r *ScheduleRule) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if r.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			r.ID = id
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		if r.UpdatedAt.IsZero() {
			r.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		r.UpdatedAt = now
	}
	return nil
}

// OpenRule and ClosedRule build rules for in-memory schedules.
func OpenRule(day Weekday, start, end TimeOfDay) ScheduleRule {
	s, e := int(start), int(end)
	return ScheduleRule{Weekday: day, IsOpen: true, StartMinute: &s, EndMinute: &e}
}

func ClosedRule(day Weekday) ScheduleRule {
	return ScheduleRule{Weekday: day}
}

// DayHours is the open window of one weekday.
type DayHours struct {
	Start TimeOfDay
	End   TimeOfDay
}

func (r ScheduleRule) hours() (DayHours, bool, error) {
	if !r.Weekday.Valid() {
		return DayHours{}, false, fmt.Errorf("%w: weekday %d out of range", ErrInvalidRule, r.Weekday)
	}
	if !r.IsOpen {
		if r.StartMinute != nil || r.EndMinute != nil {
			return DayHours{}, false, fmt.Errorf("%w: closed %s has hours", ErrInvalidRule, r.Weekday)
		}
		return DayHours{}, false, nil
	}
	if r.StartMinute == nil || r.EndMinute == nil {
		return DayHours{}, false, fmt.Errorf("%w: open %s is missing hours", ErrInvalidRule, r.Weekday)
	}
	start, end := TimeOfDay(*r.StartMinute), TimeOfDay(*r.EndMinute)
	if start < 0 || end > endOfDay {
		return DayHours{}, false, fmt.Errorf("%w: %s hours out of range", ErrInvalidRule, r.Weekday)
	}
	if start >= end {
		return DayHours{}, false, fmt.Errorf("%w: %s %s-%s: %w", ErrInvalidRule, r.Weekday, start, end, ErrInvalidWindow)
	}
	return DayHours{Start: start, End: end}, true, nil
}

// WeeklySchedule maps each weekday to zero or one open window.
// The zero value is a schedule that is closed every day and was never
// configured.
type WeeklySchedule struct {
	days       [7]*DayHours
	configured bool
}

// NewWeeklySchedule merges rules into a schedule. When several rules name the
// same weekday the first one wins and the rest are ignored.
func NewWeeklySchedule(rules ...ScheduleRule) (WeeklySchedule, error) {
	var ws WeeklySchedule
	var seen [7]bool
	for _, r := range rules {
		h, open, err := r.hours()
		if err != nil {
			return WeeklySchedule{}, err
		}
		if seen[r.Weekday] {
			continue
		}
		seen[r.Weekday] = true
		ws.configured = true
		if open {
			ws.days[r.Weekday] = &h
		}
	}
	return ws, nil
}

// DuplicateWeekdays returns the weekdays named by more than one rule.
func DuplicateWeekdays(rules []ScheduleRule) []Weekday {
	var count [7]int
	var out []Weekday
	for _, r := range rules {
		if !r.Weekday.Valid() {
			continue
		}
		count[r.Weekday]++
		if count[r.Weekday] == 2 {
			out = append(out, r.Weekday)
		}
	}
	return out
}

func (ws WeeklySchedule) ForWeekday(day Weekday) (DayHours, bool) {
	if !day.Valid() || ws.days[day] == nil {
		return DayHours{}, false
	}
	return *ws.days[day], true
}

// Configured reports whether the schedule was built from at least one rule.
// A schedule with seven closed rules is configured; one with no rules is not.
func (ws WeeklySchedule) Configured() bool {
	return ws.configured
}

// IsEmpty reports whether the schedule has no open day at all.
func (ws WeeklySchedule) IsEmpty() bool {
	for _, d := range ws.days {
		if d != nil {
			return false
		}
	}
	return true
}

// WindowOn materialises the hours for the calendar date of day, in day's location.
func (ws WeeklySchedule) WindowOn(day time.Time) (TimeWindow, bool) {
	h, ok := ws.ForWeekday(WeekdayOf(day))
	if !ok {
		return TimeWindow{}, false
	}
	return TimeWindow{Start: h.Start.On(day), End: h.End.On(day)}, true
}

// WindowsBetween returns every open window that intersects [rangeStart, rangeEnd),
// walking calendar dates in rangeStart's location.
func (ws WeeklySchedule) WindowsBetween(rangeStart, rangeEnd time.Time) []TimeWindow {
	if !rangeStart.Before(rangeEnd) {
		return nil
	}
	loc := rangeStart.Location()
	rng := TimeWindow{Start: rangeStart, End: rangeEnd}

	y, m, d := rangeStart.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, loc)
	end := rangeEnd.In(loc)

	out := make([]TimeWindow, 0, 7)
	for !day.After(end) {
		if w, ok := ws.WindowOn(day); ok && w.Overlaps(rng) {
			out = append(out, w)
		}
		day = day.AddDate(0, 0, 1)
	}
	return out
}

// MondayOf returns local midnight of the Monday starting t's week.
func MondayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return midnight.AddDate(0, 0, -int(WeekdayOf(t)))
}
