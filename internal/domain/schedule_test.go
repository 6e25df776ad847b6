package domain

import (
	"errors"
	"testing"
	"time"
)

func TestWeekdayOf_MondayIsZero(t *testing.T) {
	// 2026-01-05 is a Monday.
	monday := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		day := monday.AddDate(0, 0, i)
		if got := WeekdayOf(day); got != Weekday(i) {
			t.Fatalf("WeekdayOf(%s) = %d, want %d", day.Weekday(), got, i)
		}
	}
	if Sunday.String() != "Sunday" || Monday.String() != "Monday" {
		t.Fatalf("String() = %q/%q, want Sunday/Monday", Sunday.String(), Monday.String())
	}
}

func TestNewWeeklySchedule_FirstRuleWins(t *testing.T) {
	ws, err := NewWeeklySchedule(
		OpenRule(Monday, NewTimeOfDay(9, 0), NewTimeOfDay(17, 0)),
		OpenRule(Monday, NewTimeOfDay(10, 0), NewTimeOfDay(12, 0)),
		ClosedRule(Tuesday),
	)
	if err != nil {
		t.Fatalf("NewWeeklySchedule error: %v", err)
	}

	h, ok := ws.ForWeekday(Monday)
	if !ok {
		t.Fatalf("expected Monday to be open")
	}
	if h.Start != NewTimeOfDay(9, 0) || h.End != NewTimeOfDay(17, 0) {
		t.Fatalf("Monday hours = %s-%s, want 09:00-17:00", h.Start, h.End)
	}
	if _, ok := ws.ForWeekday(Tuesday); ok {
		t.Fatalf("expected Tuesday to be closed")
	}
	if _, ok := ws.ForWeekday(Sunday); ok {
		t.Fatalf("expected a day without a rule to be closed")
	}
}

func TestNewWeeklySchedule_EnforcesRuleInvariant(t *testing.T) {
	nine := 9 * 60

	tests := []struct {
		name string
		rule ScheduleRule
	}{
		{"open without hours", ScheduleRule{Weekday: Monday, IsOpen: true}},
		{"closed with hours", ScheduleRule{Weekday: Monday, StartMinute: &nine}},
		{"start not before end", OpenRule(Monday, NewTimeOfDay(17, 0), NewTimeOfDay(9, 0))},
		{"weekday out of range", OpenRule(Weekday(7), NewTimeOfDay(9, 0), NewTimeOfDay(17, 0))},
		{"end past midnight", OpenRule(Friday, NewTimeOfDay(22, 0), NewTimeOfDay(25, 0))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWeeklySchedule(tt.rule)
			if !errors.Is(err, ErrInvalidRule) {
				t.Fatalf("error = %v, want %v", err, ErrInvalidRule)
			}
		})
	}

	_, err := NewWeeklySchedule(OpenRule(Monday, NewTimeOfDay(9, 0), NewTimeOfDay(9, 0)))
	if !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("empty hours error = %v, want %v", err, ErrInvalidWindow)
	}
}

func TestDuplicateWeekdays(t *testing.T) {
	rules := []ScheduleRule{
		OpenRule(Monday, NewTimeOfDay(9, 0), NewTimeOfDay(17, 0)),
		OpenRule(Monday, NewTimeOfDay(10, 0), NewTimeOfDay(12, 0)),
		OpenRule(Monday, NewTimeOfDay(11, 0), NewTimeOfDay(12, 0)),
		ClosedRule(Sunday),
	}
	got := DuplicateWeekdays(rules)
	if len(got) != 1 || got[0] != Monday {
		t.Fatalf("DuplicateWeekdays = %v, want [Monday]", got)
	}
}

func TestWeeklySchedule_WindowOn(t *testing.T) {
	ws, err := NewWeeklySchedule(OpenRule(Monday, NewTimeOfDay(9, 0), NewTimeOfDay(17, 30)))
	if err != nil {
		t.Fatalf("NewWeeklySchedule error: %v", err)
	}

	monday := time.Date(2026, 1, 5, 13, 45, 0, 0, time.UTC)
	w, ok := ws.WindowOn(monday)
	if !ok {
		t.Fatalf("expected a window on Monday")
	}
	wantStart := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2026, 1, 5, 17, 30, 0, 0, time.UTC)
	if !w.Start.Equal(wantStart) || !w.End.Equal(wantEnd) {
		t.Fatalf("window = [%v, %v), want [%v, %v)", w.Start, w.End, wantStart, wantEnd)
	}

	if _, ok := ws.WindowOn(monday.AddDate(0, 0, 1)); ok {
		t.Fatalf("expected no window on Tuesday")
	}
}

func TestWeeklySchedule_WindowOnFollowsLocalWallClockAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation error: %v", err)
	}
	ws, err := NewWeeklySchedule(OpenRule(Sunday, NewTimeOfDay(9, 0), NewTimeOfDay(17, 0)))
	if err != nil {
		t.Fatalf("NewWeeklySchedule error: %v", err)
	}

	// Clocks move forward at 02:00 on 2026-03-08.
	w, ok := ws.WindowOn(time.Date(2026, 3, 8, 0, 30, 0, 0, loc))
	if !ok {
		t.Fatalf("expected a window on Sunday")
	}
	if w.Start.Hour() != 9 || w.End.Hour() != 17 {
		t.Fatalf("local hours = %d-%d, want 9-17", w.Start.Hour(), w.End.Hour())
	}
	if w.Duration() != 8*time.Hour {
		t.Fatalf("duration = %s, want 8h", w.Duration())
	}
}

func TestWeeklySchedule_WindowsBetween(t *testing.T) {
	ws, err := NewWeeklySchedule(
		OpenRule(Monday, NewTimeOfDay(9, 0), NewTimeOfDay(17, 0)),
		OpenRule(Wednesday, NewTimeOfDay(12, 0), NewTimeOfDay(20, 0)),
		ClosedRule(Tuesday),
	)
	if err != nil {
		t.Fatalf("NewWeeklySchedule error: %v", err)
	}

	rangeStart := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	rangeEnd := time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC)
	got := ws.WindowsBetween(rangeStart, rangeEnd)
	if len(got) != 2 {
		t.Fatalf("len(windows) = %d, want 2", len(got))
	}
	if WeekdayOf(got[0].Start) != Monday || WeekdayOf(got[1].Start) != Wednesday {
		t.Fatalf("weekdays = %s,%s, want Monday,Wednesday", WeekdayOf(got[0].Start), WeekdayOf(got[1].Start))
	}

	if got := ws.WindowsBetween(rangeEnd, rangeStart); got != nil {
		t.Fatalf("inverted range = %v, want nil", got)
	}
}

func TestWeeklySchedule_IsEmpty(t *testing.T) {
	var zero WeeklySchedule
	if !zero.IsEmpty() {
		t.Fatalf("zero schedule must be empty")
	}
	closed, err := NewWeeklySchedule(ClosedRule(Monday), ClosedRule(Tuesday))
	if err != nil {
		t.Fatalf("NewWeeklySchedule error: %v", err)
	}
	if !closed.IsEmpty() {
		t.Fatalf("all-closed schedule must be empty")
	}
}

func TestWeeklySchedule_Configured(t *testing.T) {
	var zero WeeklySchedule
	if zero.Configured() {
		t.Fatalf("zero schedule must not be configured")
	}
	none, err := NewWeeklySchedule()
	if err != nil {
		t.Fatalf("NewWeeklySchedule error: %v", err)
	}
	if none.Configured() {
		t.Fatalf("schedule without rules must not be configured")
	}

	var rules []ScheduleRule
	for d := Monday; d <= Sunday; d++ {
		rules = append(rules, ClosedRule(d))
	}
	closed, err := NewWeeklySchedule(rules...)
	if err != nil {
		t.Fatalf("NewWeeklySchedule error: %v", err)
	}
	if !closed.Configured() || !closed.IsEmpty() {
		t.Fatalf("all-closed schedule: configured=%v empty=%v, want true, true", closed.Configured(), closed.IsEmpty())
	}
}

func TestMondayOf(t *testing.T) {
	sunday := time.Date(2026, 1, 11, 18, 0, 0, 0, time.UTC)
	want := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	if got := MondayOf(sunday); !got.Equal(want) {
		t.Fatalf("MondayOf(Sunday) = %v, want %v", got, want)
	}
}
