package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"salonbook/internal/domain"
	"salonbook/internal/store"
)

const (
	bookingsNoOverlapConstraint = "bookings_no_overlap"

	sqlStateExclusionViolation = "23P01"
	sqlStateUniqueViolation    = "23505"
)

var _ store.BookingRepository = (*BookingRepo)(nil)

type BookingRepo struct {
	db  *bun.DB
	log *slog.Logger
}

func NewBookingRepo(db *bun.DB, log *slog.Logger) *BookingRepo {
	if log == nil {
		log = slog.Default()
	}
	return &BookingRepo{db: db, log: log.With(slog.String("component", "store.postgres"))}
}

type calendarTx struct {
	tx  bun.Tx
	log *slog.Logger
}

func (r *BookingRepo) GetWeeklySchedule(ctx context.Context, ownerType domain.OwnerType, ownerID string) (domain.WeeklySchedule, error) {
	return getWeeklySchedule(ctx, r.db, r.log, ownerType, ownerID)
}

func (r *BookingRepo) GetBookedIntervals(ctx context.Context, providerID string, rangeStart, rangeEnd time.Time) ([]domain.BookedInterval, error) {
	return listLiveBookings(ctx, r.db, providerID, rangeStart, rangeEnd)
}

func (r *BookingRepo) InProviderTransaction(ctx context.Context, providerID string, fn func(ctx context.Context, tx store.CalendarTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockProviderCalendar(ctx, tx, providerID); err != nil {
			return err
		}
		return fn(ctx, calendarTx{tx: tx, log: r.log})
	})
}

func lockProviderCalendar(ctx context.Context, tx bun.Tx, providerID string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", "provider:"+providerID).Exec(ctx)
	return err
}

func getWeeklySchedule(ctx context.Context, db bun.IDB, log *slog.Logger, ownerType domain.OwnerType, ownerID string) (domain.WeeklySchedule, error) {
	var rules []domain.ScheduleRule
	err := db.NewSelect().
		Model(&rules).
		Where("owner_type = ?", ownerType).
		Where("owner_id = ?", ownerID).
		OrderExpr("weekday ASC, created_at ASC").
		Scan(ctx)
	if err != nil {
		return domain.WeeklySchedule{}, fmt.Errorf("load %s schedule %q: %w", ownerType, ownerID, err)
	}

	if dups := domain.DuplicateWeekdays(rules); len(dups) > 0 {
		log.Warn(
			"duplicate schedule rules; keeping the first per weekday",
			slog.String("owner_type", string(ownerType)),
			slog.String("owner_id", ownerID),
			slog.Any("weekdays", dups),
		)
	}

	ws, err := domain.NewWeeklySchedule(rules...)
	if err != nil {
		return domain.WeeklySchedule{}, fmt.Errorf("build %s schedule %q: %w", ownerType, ownerID, err)
	}
	return ws, nil
}

func listLiveBookings(ctx context.Context, db bun.IDB, providerID string, windowStart, windowEnd time.Time) ([]domain.BookedInterval, error) {
	var rows []domain.BookedInterval
	err := db.NewSelect().
		Model(&rows).
		Where("provider_id = ?", providerID).
		Where("status <> ?", domain.BookingStatusCancelled).
		Where("start_time < ?", windowEnd).
		Where("end_time > ?", windowStart).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r calendarTx) GetWeeklySchedule(ctx context.Context, ownerType domain.OwnerType, ownerID string) (domain.WeeklySchedule, error) {
	return getWeeklySchedule(ctx, r.tx, r.log, ownerType, ownerID)
}

func (r calendarTx) ListBookings(ctx context.Context, providerID string, windowStart, windowEnd time.Time) ([]domain.BookedInterval, error) {
	return listLiveBookings(ctx, r.tx, providerID, windowStart, windowEnd)
}

func (r calendarTx) GetBooking(ctx context.Context, providerID string, bookingID uuid.UUID) (domain.BookedInterval, error) {
	var b domain.BookedInterval
	err := r.tx.NewSelect().
		Model(&b).
		Where("provider_id = ?", providerID).
		Where("id = ?", bookingID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.BookedInterval{}, store.ErrNotFound
		}
		return domain.BookedInterval{}, err
	}
	return b, nil
}

func (r calendarTx) InsertBooking(ctx context.Context, b domain.BookedInterval) (domain.BookedInterval, error) {
	m := b
	err := withSavepoint(ctx, r.tx, func() error {
		_, err := r.tx.NewInsert().Model(&m).Exec(ctx)
		return err
	})
	if err == nil {
		return m, nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != sqlStateUniqueViolation {
		return domain.BookedInterval{}, mapWriteError(err)
	}

	// The id was derived from an idempotency key: replay the earlier result
	// if it describes the same booking.
	var existing domain.BookedInterval
	selectErr := r.tx.NewSelect().
		Model(&existing).
		Where("id = ?", m.ID).
		Limit(1).
		Scan(ctx)
	if selectErr != nil {
		return domain.BookedInterval{}, err
	}
	if !sameBooking(existing, b) {
		return domain.BookedInterval{}, store.ErrIdempotencyConflict
	}
	return existing, nil
}

func (r calendarTx) UpdateBookingTimes(ctx context.Context, b domain.BookedInterval) (domain.BookedInterval, error) {
	m := b
	var res sql.Result
	err := withSavepoint(ctx, r.tx, func() error {
		var err error
		res, err = r.tx.NewUpdate().
			Model(&m).
			Column("start_time", "end_time", "notes", "updated_at").
			WherePK().
			Where("provider_id = ?", m.ProviderID).
			Where("status <> ?", domain.BookingStatusCancelled).
			Exec(ctx)
		return err
	})
	if err != nil {
		return domain.BookedInterval{}, mapWriteError(err)
	}
	if err := expectOneRow(res); err != nil {
		return domain.BookedInterval{}, err
	}
	return m, nil
}

func (r calendarTx) CancelBooking(ctx context.Context, providerID string, bookingID uuid.UUID, at time.Time) (domain.BookedInterval, error) {
	b, err := r.GetBooking(ctx, providerID, bookingID)
	if err != nil {
		return domain.BookedInterval{}, err
	}
	if b.IsCancelled() {
		return b, nil
	}

	cancelledAt := at.UTC()
	b.Status = domain.BookingStatusCancelled
	b.CancelledAt = &cancelledAt
	res, err := r.tx.NewUpdate().
		Model(&b).
		Column("status", "cancelled_at", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return domain.BookedInterval{}, err
	}
	if err := expectOneRow(res); err != nil {
		return domain.BookedInterval{}, err
	}
	return b, nil
}

// withSavepoint keeps the surrounding transaction usable after a constraint
// violation inside fn.
func withSavepoint(ctx context.Context, tx bun.Tx, fn func() error) error {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT booking_write"); err != nil {
		return err
	}
	if err := fn(); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT booking_write"); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	_, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT booking_write")
	return err
}

func expectOneRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// mapWriteError turns the exclusion-constraint violation into store.ErrConflict.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == sqlStateExclusionViolation && pgErr.ConstraintName == bookingsNoOverlapConstraint {
		return store.ErrConflict
	}
	return err
}

func sameBooking(a, b domain.BookedInterval) bool {
	return a.SalonID == b.SalonID &&
		a.ProviderID == b.ProviderID &&
		a.ServiceID == b.ServiceID &&
		a.Notes == b.Notes &&
		a.StartTime.Equal(b.StartTime) &&
		a.EndTime.Equal(b.EndTime)
}
