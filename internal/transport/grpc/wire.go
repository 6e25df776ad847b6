package grpc

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"salonbook/internal/domain"
)

const dateLayout = "2006-01-02"

// fieldError is an input problem found while decoding a request document.
type fieldError struct {
	field string
	msg   string
}

func (e *fieldError) Error() string {
	return e.field + " " + e.msg
}

// decoder reads typed fields from a request document and keeps the first
// error, so handlers can read every field and check once.
type decoder struct {
	m   map[string]*structpb.Value
	err error
}

func decode(req *structpb.Struct) *decoder {
	return &decoder{m: req.GetFields()}
}

func (d *decoder) fail(field, msg string) {
	if d.err == nil {
		d.err = &fieldError{field: field, msg: msg}
	}
}

func (d *decoder) has(name string) bool {
	v, ok := d.m[name]
	if !ok {
		return false
	}
	_, isNull := v.GetKind().(*structpb.Value_NullValue)
	return !isNull
}

func (d *decoder) str(name string) string {
	if !d.has(name) {
		return ""
	}
	s, ok := d.m[name].GetKind().(*structpb.Value_StringValue)
	if !ok {
		d.fail(name, "must be a string")
		return ""
	}
	return strings.TrimSpace(s.StringValue)
}

func (d *decoder) optionalStr(name string) *string {
	if !d.has(name) {
		return nil
	}
	s := d.str(name)
	return &s
}

func (d *decoder) integer(name string) int {
	if !d.has(name) {
		return 0
	}
	n, ok := d.m[name].GetKind().(*structpb.Value_NumberValue)
	if !ok {
		d.fail(name, "must be a number")
		return 0
	}
	v := n.NumberValue
	if v != math.Trunc(v) || v > math.MaxInt32 || v < math.MinInt32 {
		d.fail(name, "must be a whole number")
		return 0
	}
	return int(v)
}

func (d *decoder) required(name string) string {
	s := d.str(name)
	if s == "" && d.err == nil {
		d.fail(name, "is required")
	}
	return s
}

func (d *decoder) timestamp(name string) time.Time {
	s := d.required(name)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		d.fail(name, "must be an RFC 3339 timestamp")
	}
	return t
}

// day accepts either a calendar date, read in loc, or a full timestamp.
func (d *decoder) day(name string, loc *time.Location) time.Time {
	s := d.required(name)
	if s == "" {
		return time.Time{}
	}
	if t, err := time.ParseInLocation(dateLayout, s, loc); err == nil {
		return t
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		d.fail(name, "must be a date (YYYY-MM-DD) or an RFC 3339 timestamp")
	}
	return t
}

func (d *decoder) id(name string) uuid.UUID {
	s := d.required(name)
	if s == "" {
		return uuid.Nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		d.fail(name, "must be a UUID")
	}
	return id
}

func (d *decoder) optionalID(name string) *uuid.UUID {
	if !d.has(name) {
		return nil
	}
	id := d.id(name)
	return &id
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

func bookingValue(b domain.BookedInterval) map[string]any {
	out := map[string]any{
		"id":          b.ID.String(),
		"salon_id":    b.SalonID,
		"provider_id": b.ProviderID,
		"service_id":  b.ServiceID,
		"start":       formatTime(b.StartTime),
		"end":         formatTime(b.EndTime),
		"status":      string(b.Status),
		"notes":       b.Notes,
	}
	if b.CancelledAt != nil {
		out["cancelled_at"] = formatTime(*b.CancelledAt)
	}
	return out
}

func slotsValue(slots []domain.CandidateSlot) []any {
	out := make([]any, 0, len(slots))
	for _, s := range slots {
		out = append(out, map[string]any{
			"start": formatTime(s.Start),
			"end":   formatTime(s.End()),
			"free":  s.IsFree,
		})
	}
	return out
}

func validationValue(res domain.ValidationResult) map[string]any {
	if res.Accepted {
		return map[string]any{
			"accepted": true,
			"start":    formatTime(res.Start),
			"end":      formatTime(res.End),
		}
	}
	return map[string]any{
		"accepted": false,
		"reason":   string(res.Reason),
		"message":  res.Reason.Message(),
	}
}

func newStruct(v map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return s, nil
}
