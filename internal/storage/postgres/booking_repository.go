package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatherhq/ticketing/internal/app"
	"github.com/gatherhq/ticketing/internal/domain"
)

// BookingRepository persists the booking ledger and performs the atomic
// capacity mutations of the booking engine.
type BookingRepository struct {
	pool *pgxpool.Pool
}

func NewBookingRepository(pool *pgxpool.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

func (r *BookingRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *BookingRepository) GetEvent(ctx context.Context, eventID string) (domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	event, err := scanEvent(r.queryRow(ctx, query, eventID))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Event{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Event{}, domain.ErrEventNotFound
		}
		return domain.Event{}, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

func (r *BookingRepository) CountTicketTypes(ctx context.Context, eventID string) (int, error) {
	var count int
	err := r.queryRow(ctx, `SELECT COUNT(*) FROM ticket_types WHERE event_id = $1`, eventID).Scan(&count)
	if err != nil {
		if isInvalidUUID(err) {
			return 0, domain.ErrInvalidID
		}
		return 0, fmt.Errorf("count ticket types: %w", err)
	}
	return count, nil
}

func (r *BookingRepository) GetTicketType(ctx context.Context, id string) (domain.TicketType, error) {
	query := `SELECT ` + ticketTypeColumns + ` FROM ticket_types WHERE id = $1`
	tt, err := scanTicketType(r.queryRow(ctx, query, id))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.TicketType{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.TicketType{}, domain.ErrTicketTypeNotFound
		}
		return domain.TicketType{}, fmt.Errorf("get ticket type: %w", err)
	}
	return tt, nil
}

// ReserveTicketTypeCapacity is the single conditional mutation that keeps
// two concurrent requests for the last unit from both succeeding. The
// remaining-capacity guard is part of the statement itself, never a
// separate read.
func (r *BookingRepository) ReserveTicketTypeCapacity(ctx context.Context, ticketTypeID string, quantity int) error {
	const stmt = `
UPDATE ticket_types
SET sold = sold + $2, updated_at = NOW()
WHERE id = $1 AND available - sold - reserved >= $2`

	tag, err := r.exec(ctx, stmt, ticketTypeID, quantity)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("reserve capacity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.queryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ticket_types WHERE id = $1)`, ticketTypeID).Scan(&exists); err != nil {
			return fmt.Errorf("reserve capacity: %w", err)
		}
		if !exists {
			return domain.ErrTicketTypeNotFound
		}
		return domain.ErrInsufficientInventory
	}
	return nil
}

// ReleaseTicketTypeCapacity returns quantity units to the pool, clamped so
// sold never drops below zero.
func (r *BookingRepository) ReleaseTicketTypeCapacity(ctx context.Context, ticketTypeID string, quantity int) error {
	const stmt = `
UPDATE ticket_types
SET sold = GREATEST(sold - $2, 0), updated_at = NOW()
WHERE id = $1`

	tag, err := r.exec(ctx, stmt, ticketTypeID, quantity)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("release capacity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTicketTypeNotFound
	}
	return nil
}

// ReserveEventCapacity applies an embedded-mode reservation directly to the
// event aggregate under the same conditional guard.
func (r *BookingRepository) ReserveEventCapacity(ctx context.Context, eventID string, quantity int) error {
	const stmt = `
UPDATE events
SET sold_tickets = sold_tickets + $2
WHERE id = $1 AND available_tickets - sold_tickets - reserved_tickets >= $2`

	tag, err := r.exec(ctx, stmt, eventID, quantity)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("reserve event capacity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.queryRow(ctx, `SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`, eventID).Scan(&exists); err != nil {
			return fmt.Errorf("reserve event capacity: %w", err)
		}
		if !exists {
			return domain.ErrEventNotFound
		}
		return domain.ErrInsufficientInventory
	}
	return nil
}

func (r *BookingRepository) ReleaseEventCapacity(ctx context.Context, eventID string, quantity int) error {
	const stmt = `
UPDATE events
SET sold_tickets = GREATEST(sold_tickets - $2, 0)
WHERE id = $1`

	tag, err := r.exec(ctx, stmt, eventID, quantity)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("release event capacity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEventNotFound
	}
	return nil
}

func (r *BookingRepository) CreateBooking(ctx context.Context, b domain.Booking) error {
	const stmt = `
INSERT INTO bookings (
	id, event_id, ticket_type_id,
	full_name, email, phone, age, gender,
	ticket_type_label, quantity, unit_price, total_amount, currency,
	status, payment_status, booking_reference,
	checked_in, created_at, updated_at
) VALUES (
	$1, $2, $3,
	$4, $5, $6, $7, $8,
	$9, $10, $11, $12, $13,
	$14, $15, $16,
	FALSE, $17, $18
)`
	_, err := r.exec(ctx, stmt,
		b.ID, b.EventID, b.TicketTypeID,
		b.Attendee.FullName, b.Attendee.Email, b.Attendee.Phone, b.Attendee.Age, b.Attendee.Gender,
		b.TicketTypeLabel, b.Quantity, b.UnitPrice, b.TotalAmount, b.Currency,
		string(b.Status), string(b.PaymentStatus), b.Reference,
		b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrReferenceCollision
		}
		if isForeignKeyViolation(err) {
			return domain.ErrEventNotFound
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create booking: %w", err)
	}
	return nil
}

func (r *BookingRepository) GetBooking(ctx context.Context, id string) (domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	return r.getBooking(ctx, query, id)
}

func (r *BookingRepository) GetBookingForUpdate(ctx context.Context, id string) (domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1 FOR UPDATE`
	return r.getBooking(ctx, query, id)
}

func (r *BookingRepository) GetBookingByReference(ctx context.Context, reference string) (domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE booking_reference = $1`
	return r.getBooking(ctx, query, reference)
}

func (r *BookingRepository) getBooking(ctx context.Context, query, key string) (domain.Booking, error) {
	b, err := scanBooking(r.queryRow(ctx, query, key))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Booking{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Booking{}, domain.ErrBookingNotFound
		}
		return domain.Booking{}, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

func (r *BookingRepository) ListBookingsByEvent(ctx context.Context, eventID string, f app.BookingFilters) ([]domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE event_id = $1`
	args := []any{eventID}
	if f.Status != "" {
		args = append(args, string(f.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.CheckedIn != nil {
		args = append(args, *f.CheckedIn)
		query += fmt.Sprintf(" AND checked_in = $%d", len(args))
	}
	if f.Email != "" {
		args = append(args, f.Email)
		query += fmt.Sprintf(" AND email = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.query(ctx, query, args...)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate bookings: %w", rows.Err())
	}
	return bookings, nil
}

// SumBookedQuantity totals the confirmed units already booked for a ticket
// type under the given attendee email. Used for max-per-person checks.
func (r *BookingRepository) SumBookedQuantity(ctx context.Context, ticketTypeID, email string) (int, error) {
	const query = `
SELECT COALESCE(SUM(quantity), 0)
FROM bookings
WHERE ticket_type_id = $1 AND email = $2 AND status = 'confirmed'`

	var total int
	if err := r.queryRow(ctx, query, ticketTypeID, email).Scan(&total); err != nil {
		if isInvalidUUID(err) {
			return 0, domain.ErrInvalidID
		}
		return 0, fmt.Errorf("sum booked quantity: %w", err)
	}
	return total, nil
}

func (r *BookingRepository) MarkBookingCancelled(ctx context.Context, id string, at time.Time) error {
	const stmt = `
UPDATE bookings
SET status = 'cancelled', cancelled_at = $2, updated_at = $2
WHERE id = $1 AND status = 'confirmed'`
	return r.markBooking(ctx, stmt, id, at)
}

func (r *BookingRepository) MarkBookingRefunded(ctx context.Context, id string, at time.Time) error {
	const stmt = `
UPDATE bookings
SET status = 'refunded', payment_status = 'refunded', cancelled_at = $2, updated_at = $2
WHERE id = $1 AND status = 'confirmed'`
	return r.markBooking(ctx, stmt, id, at)
}

func (r *BookingRepository) markBooking(ctx context.Context, stmt, id string, at time.Time) error {
	tag, err := r.exec(ctx, stmt, id, at)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("mark booking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBookingNotConfirmed
	}
	return nil
}

func (r *BookingRepository) MarkBookingCheckedIn(ctx context.Context, id, operatorID string, at time.Time) error {
	const stmt = `
UPDATE bookings
SET checked_in = TRUE, checked_in_at = $2, checked_in_by = $3, updated_at = $2
WHERE id = $1 AND status = 'confirmed' AND NOT checked_in`

	tag, err := r.exec(ctx, stmt, id, at, operatorID)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("mark checked in: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyCheckedIn
	}
	return nil
}

func (r *BookingRepository) EventStatistics(ctx context.Context, eventID string) (domain.EventStatistics, error) {
	const query = `
SELECT
	COUNT(*),
	COUNT(*) FILTER (WHERE status = 'confirmed'),
	COUNT(*) FILTER (WHERE status = 'cancelled'),
	COALESCE(SUM(quantity) FILTER (WHERE status = 'confirmed'), 0),
	COALESCE(SUM(total_amount) FILTER (WHERE status = 'confirmed'), 0),
	COUNT(*) FILTER (WHERE checked_in)
FROM bookings
WHERE event_id = $1`

	var stats domain.EventStatistics
	err := r.queryRow(ctx, query, eventID).Scan(
		&stats.TotalAttendees, &stats.Confirmed, &stats.Cancelled,
		&stats.TicketsSold, &stats.Revenue, &stats.CheckedInCount,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.EventStatistics{}, domain.ErrInvalidID
		}
		return domain.EventStatistics{}, fmt.Errorf("event statistics: %w", err)
	}
	return stats, nil
}

func (r *BookingRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *BookingRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}

func (r *BookingRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
