package grpc

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"salonbook/internal/domain"
	"salonbook/internal/service/bookings"
	"salonbook/internal/store"
)

const errorDomain = "salonbook"

type BookingServer struct {
	svc bookingsService
	log *slog.Logger
}

type bookingsService interface {
	Location() *time.Location
	Availability(ctx context.Context, in bookings.AvailabilityInput) ([]domain.CandidateSlot, error)
	Validate(ctx context.Context, in bookings.ValidateInput) (domain.ValidationResult, error)
	Book(ctx context.Context, in bookings.BookInput) (domain.BookedInterval, error)
	Reschedule(ctx context.Context, in bookings.RescheduleInput) (domain.BookedInterval, error)
	Cancel(ctx context.Context, providerID string, bookingID uuid.UUID) (domain.BookedInterval, error)
}

var _ BookingServiceServer = (*BookingServer)(nil)

func NewBookingServer(svc bookingsService, log *slog.Logger) *BookingServer {
	if log == nil {
		log = slog.Default()
	}
	return &BookingServer{
		svc: svc,
		log: log.With(slog.String("component", "grpc.bookings")),
	}
}

func (s *BookingServer) ListAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.rpcLogger(ctx, "ListAvailability")

	d := decode(req)
	in := bookings.AvailabilityInput{
		SalonID:          d.required("salon_id"),
		ProviderID:       d.required("provider_id"),
		DurationMinutes:  d.integer("duration_minutes"),
		Day:              d.day("day", s.svc.Location()),
		Step:             time.Duration(d.integer("step_minutes")) * time.Minute,
		ExcludeBookingID: d.optionalID("exclude_booking_id"),
	}
	if d.err != nil {
		return nil, invalidRequest(log, d.err)
	}

	slots, err := s.svc.Availability(ctx, in)
	if err != nil {
		return nil, s.toStatus(log, "availability", err, slog.String("provider_id", in.ProviderID))
	}

	log.Debug(
		"availability listed",
		slog.String("provider_id", in.ProviderID),
		slog.Int("count", len(slots)),
		slog.Time("day", in.Day),
	)
	return newStruct(map[string]any{"slots": slotsValue(slots)})
}

func (s *BookingServer) ValidateBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.rpcLogger(ctx, "ValidateBooking")

	d := decode(req)
	in := bookings.ValidateInput{
		SalonID:          d.required("salon_id"),
		ProviderID:       d.required("provider_id"),
		ServiceID:        d.str("service_id"),
		DurationMinutes:  d.integer("duration_minutes"),
		Start:            d.timestamp("start"),
		ExcludeBookingID: d.optionalID("exclude_booking_id"),
	}
	if d.err != nil {
		return nil, invalidRequest(log, d.err)
	}

	res, err := s.svc.Validate(ctx, in)
	if err != nil {
		return nil, s.toStatus(log, "validate", err, slog.String("provider_id", in.ProviderID))
	}
	return newStruct(validationValue(res))
}

func (s *BookingServer) CreateBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.rpcLogger(ctx, "CreateBooking")

	d := decode(req)
	in := bookings.BookInput{
		SalonID:         d.required("salon_id"),
		ProviderID:      d.required("provider_id"),
		ServiceID:       d.required("service_id"),
		DurationMinutes: d.integer("duration_minutes"),
		Start:           d.timestamp("start"),
		Notes:           d.str("notes"),
		IdempotencyKey:  idempotencyKey(ctx),
	}
	if d.err != nil {
		return nil, invalidRequest(log, d.err)
	}

	b, err := s.svc.Book(ctx, in)
	if err != nil {
		return nil, s.toStatus(log, "create", err,
			slog.String("provider_id", in.ProviderID),
			slog.Time("start_time", in.Start),
		)
	}

	log.Info(
		"booking created",
		slog.String("booking_id", b.ID.String()),
		slog.String("provider_id", b.ProviderID),
		slog.Time("start_time", b.StartTime),
		slog.Time("end_time", b.EndTime),
	)
	return newStruct(map[string]any{"booking": bookingValue(b)})
}

func (s *BookingServer) RescheduleBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.rpcLogger(ctx, "RescheduleBooking")

	d := decode(req)
	in := bookings.RescheduleInput{
		ProviderID:      d.required("provider_id"),
		BookingID:       d.id("booking_id"),
		Start:           d.timestamp("start"),
		DurationMinutes: d.integer("duration_minutes"),
		Notes:           d.optionalStr("notes"),
	}
	if d.err != nil {
		return nil, invalidRequest(log, d.err)
	}

	b, err := s.svc.Reschedule(ctx, in)
	if err != nil {
		return nil, s.toStatus(log, "reschedule", err,
			slog.String("provider_id", in.ProviderID),
			slog.String("booking_id", in.BookingID.String()),
		)
	}

	log.Info(
		"booking rescheduled",
		slog.String("booking_id", b.ID.String()),
		slog.String("provider_id", b.ProviderID),
		slog.Time("start_time", b.StartTime),
		slog.Time("end_time", b.EndTime),
	)
	return newStruct(map[string]any{"booking": bookingValue(b)})
}

func (s *BookingServer) CancelBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.rpcLogger(ctx, "CancelBooking")

	d := decode(req)
	providerID := d.required("provider_id")
	bookingID := d.id("booking_id")
	if d.err != nil {
		return nil, invalidRequest(log, d.err)
	}

	b, err := s.svc.Cancel(ctx, providerID, bookingID)
	if err != nil {
		return nil, s.toStatus(log, "cancel", err,
			slog.String("provider_id", providerID),
			slog.String("booking_id", bookingID.String()),
		)
	}

	log.Info("booking cancelled", slog.String("booking_id", b.ID.String()), slog.String("provider_id", providerID))
	return newStruct(map[string]any{"booking": bookingValue(b)})
}

func (s *BookingServer) rpcLogger(ctx context.Context, rpc string) *slog.Logger {
	log := s.log.With(slog.String("rpc", rpc))
	if id := RequestIDFromContext(ctx); id != "" {
		log = log.With(slog.String("request_id", id))
	}
	return log
}

func invalidRequest(log *slog.Logger, err error) error {
	log.Warn("invalid request", slog.Any("err", err))
	return status.Error(codes.InvalidArgument, err.Error())
}

// toStatus maps service and store errors to gRPC status codes. Business
// outcomes log at Info, bad input at Warn and everything else at Error.
func (s *BookingServer) toStatus(log *slog.Logger, op string, err error, attrs ...any) error {
	var (
		vErr *bookings.ValidationError
		rErr *bookings.RejectionError
	)
	switch {
	case errors.Is(err, store.ErrConflict):
		log.Info(op+" conflict", attrs...)
		return rejectionStatus(domain.RejectOverlapsExisting)
	case errors.Is(err, store.ErrIdempotencyConflict):
		log.Info(op+" idempotency conflict", attrs...)
		return status.Error(codes.FailedPrecondition, "This request key was already used for a different booking. Try again.")
	case errors.Is(err, store.ErrNotFound):
		log.Info(op+" not found", attrs...)
		return status.Error(codes.NotFound, "booking not found")
	case errors.Is(err, bookings.ErrBookingCancelled):
		log.Info(op+" on cancelled booking", attrs...)
		return status.Error(codes.FailedPrecondition, "That booking has been cancelled.")
	case errors.As(err, &rErr):
		log.Info(op+" rejected", append(attrs, slog.String("reason", string(rErr.Reason)))...)
		return rejectionStatus(rErr.Reason)
	case errors.As(err, &vErr):
		log.Warn("invalid request", append(attrs, slog.Any("err", err))...)
		return status.Error(codes.InvalidArgument, vErr.Error())
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn(op+" timed out", attrs...)
		return status.Error(codes.DeadlineExceeded, "request timed out")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request cancelled")
	default:
		log.Error(op+" failed", append(attrs, slog.Any("err", err))...)
		return status.Error(codes.Internal, "internal error")
	}
}

// rejectionStatus carries the machine-readable reason in an ErrorInfo detail
// next to the human message.
func rejectionStatus(reason domain.RejectReason) error {
	st := status.New(codes.FailedPrecondition, reason.Message())
	if withDetails, err := st.WithDetails(&errdetails.ErrorInfo{Reason: string(reason), Domain: errorDomain}); err == nil {
		st = withDetails
	}
	return st.Err()
}

func idempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, key := range []string{"idempotency-key", "x-idempotency-key"} {
		if values := md.Get(key); len(values) > 0 {
			if v := strings.TrimSpace(values[0]); v != "" {
				return v
			}
		}
	}
	return ""
}
