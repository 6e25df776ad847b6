package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"salonbook/internal/domain"
)

type fakeWriter struct {
	writeFn func(ctx context.Context, msgs ...kafka.Message) error
	closed  bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.writeFn == nil {
		panic("WriteMessages not configured")
	}
	return f.writeFn(ctx, msgs...)
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func testBooking() domain.BookedInterval {
	start := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	return domain.BookedInterval{
		ID:         uuid.MustParse("00000000-0000-0000-0000-000000000101"),
		SalonID:    "s1",
		ProviderID: "p1",
		ServiceID:  "cut",
		StartTime:  start,
		EndTime:    start.Add(time.Hour),
		Status:     domain.BookingStatusBooked,
	}
}

func TestKafkaPublisher_WritesKeyedMessageWithHeaders(t *testing.T) {
	var got []kafka.Message
	w := &fakeWriter{writeFn: func(ctx context.Context, msgs ...kafka.Message) error {
		got = append(got, msgs...)
		return nil
	}}
	p := newKafkaPublisher(w, " salonbook. ", nil)

	e := BookingEvent(TypeBookingCreated, testBooking(), time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC))
	if err := p.Publish(context.Background(), e); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("messages = %d, want 1", len(got))
	}
	msg := got[0]
	if msg.Topic != "salonbook.booking.created.v1" {
		t.Fatalf("topic = %q, want %q", msg.Topic, "salonbook.booking.created.v1")
	}
	if string(msg.Key) != "00000000-0000-0000-0000-000000000101" {
		t.Fatalf("key = %q", msg.Key)
	}
	if headerValue(msg.Headers, headerEventType) != TypeBookingCreated {
		t.Fatalf("event_type header = %q", headerValue(msg.Headers, headerEventType))
	}
	if headerValue(msg.Headers, headerEventID) != e.ID.String() {
		t.Fatalf("event_id header = %q, want %q", headerValue(msg.Headers, headerEventID), e.ID)
	}

	var payload BookingPayload
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		t.Fatalf("payload decode error: %v", err)
	}
	if payload.ProviderID != "p1" || payload.Status != "booked" {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestKafkaPublisher_InjectsTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	var got kafka.Message
	w := &fakeWriter{writeFn: func(ctx context.Context, msgs ...kafka.Message) error {
		got = msgs[0]
		return nil
	}}
	p := newKafkaPublisher(w, "", nil)

	if err := p.Publish(ctx, BookingEvent(TypeBookingCancelled, testBooking(), time.Now())); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if got.Topic != TypeBookingCancelled {
		t.Fatalf("topic = %q, want %q", got.Topic, TypeBookingCancelled)
	}
	want := "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	if tp := headerValue(got.Headers, "traceparent"); tp != want {
		t.Fatalf("traceparent = %q, want %q", tp, want)
	}
}

func TestKafkaPublisher_WrapsWriteError(t *testing.T) {
	boom := errors.New("broker down")
	w := &fakeWriter{writeFn: func(ctx context.Context, msgs ...kafka.Message) error { return boom }}
	p := newKafkaPublisher(w, "x", nil)

	err := p.Publish(context.Background(), BookingEvent(TypeBookingRescheduled, testBooking(), time.Now()))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapping %v", err, boom)
	}
	if err := p.Close(); err != nil || !w.closed {
		t.Fatalf("Close = %v, closed = %v", err, w.closed)
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" a:9092, ,b:9092,")
	if len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Fatalf("SplitBrokers = %q", got)
	}
	if SplitBrokers("") != nil {
		t.Fatalf("SplitBrokers(\"\") should be nil")
	}
}
