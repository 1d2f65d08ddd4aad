package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/gatherhq/ticketing/internal/domain"
)

// CatalogRepository persists ticket types and the event aggregate. It
// backs both the catalog service and the reconciler.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

func (r *CatalogRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *CatalogRepository) GetEvent(ctx context.Context, eventID string) (domain.Event, error) {
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

func (r *CatalogRepository) CreateTicketType(ctx context.Context, tt domain.TicketType) error {
	const stmt = `
INSERT INTO ticket_types (
	id, event_id, title, description, kind,
	price_amount, currency, original_price, discount_percent,
	total, available, sold, reserved,
	valid_from, valid_until, sale_start, sale_end, early_bird, last_minute,
	age_min, age_max, max_per_person, requires_id,
	refund_allowed, refund_deadline_days, refund_fee,
	lifecycle, created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5,
	$6, $7, $8, $9,
	$10, $11, $12, $13,
	$14, $15, $16, $17, $18, $19,
	$20, $21, $22, $23,
	$24, $25, $26,
	$27, $28, $29
)`
	var original *decimal.Decimal
	if tt.Price.OriginalAmount != nil {
		original = tt.Price.OriginalAmount
	}
	_, err := r.exec(ctx, stmt,
		tt.ID, tt.EventID, tt.Title, tt.Description, tt.Kind,
		tt.Price.Amount, tt.Price.Currency, original, tt.Price.DiscountPercent,
		tt.Capacity.Total, tt.Capacity.Available, tt.Capacity.Sold, tt.Capacity.Reserved,
		tt.Validity.Start, tt.Validity.End, tt.Sales.Start, tt.Sales.End, tt.EarlyBird, tt.LastMinute,
		tt.Restrictions.AgeMin, tt.Restrictions.AgeMax, tt.Restrictions.MaxPerPerson, tt.Restrictions.RequiresID,
		tt.RefundPolicy.Allowed, tt.RefundPolicy.DeadlineDays, tt.RefundPolicy.Fee,
		string(tt.Lifecycle), tt.CreatedAt, tt.UpdatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isForeignKeyViolation(err) {
			return domain.ErrEventNotFound
		}
		return fmt.Errorf("create ticket type: %w", err)
	}
	return nil
}

func (r *CatalogRepository) GetTicketType(ctx context.Context, id string) (domain.TicketType, error) {
	query := `SELECT ` + ticketTypeColumns + ` FROM ticket_types WHERE id = $1`
	return r.getTicketType(ctx, query, id)
}

func (r *CatalogRepository) GetTicketTypeForUpdate(ctx context.Context, id string) (domain.TicketType, error) {
	query := `SELECT ` + ticketTypeColumns + ` FROM ticket_types WHERE id = $1 FOR UPDATE`
	return r.getTicketType(ctx, query, id)
}

func (r *CatalogRepository) getTicketType(ctx context.Context, query, id string) (domain.TicketType, error) {
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

func (r *CatalogRepository) ListTicketTypesByEvent(ctx context.Context, eventID string) ([]domain.TicketType, error) {
	query := `SELECT ` + ticketTypeColumns + ` FROM ticket_types WHERE event_id = $1 ORDER BY created_at ASC`
	rows, err := r.query(ctx, query, eventID)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("list ticket types: %w", err)
	}
	defer rows.Close()

	var types []domain.TicketType
	for rows.Next() {
		tt, err := scanTicketType(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket type: %w", err)
		}
		types = append(types, tt)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate ticket types: %w", rows.Err())
	}
	return types, nil
}

func (r *CatalogRepository) UpdateTicketType(ctx context.Context, tt domain.TicketType) error {
	const stmt = `
UPDATE ticket_types SET
	title = $2, description = $3,
	price_amount = $4, original_price = $5, discount_percent = $6,
	total = $7, available = $8,
	valid_from = $9, valid_until = $10, sale_start = $11, sale_end = $12,
	age_min = $13, age_max = $14, max_per_person = $15, requires_id = $16,
	refund_allowed = $17, refund_deadline_days = $18, refund_fee = $19,
	lifecycle = $20, updated_at = $21
WHERE id = $1`
	tag, err := r.exec(ctx, stmt,
		tt.ID, tt.Title, tt.Description,
		tt.Price.Amount, tt.Price.OriginalAmount, tt.Price.DiscountPercent,
		tt.Capacity.Total, tt.Capacity.Available,
		tt.Validity.Start, tt.Validity.End, tt.Sales.Start, tt.Sales.End,
		tt.Restrictions.AgeMin, tt.Restrictions.AgeMax, tt.Restrictions.MaxPerPerson, tt.Restrictions.RequiresID,
		tt.RefundPolicy.Allowed, tt.RefundPolicy.DeadlineDays, tt.RefundPolicy.Fee,
		string(tt.Lifecycle), tt.UpdatedAt,
	)
	if err != nil {
		if isCheckViolation(err) {
			return domain.ErrCapacityBelowSold
		}
		return fmt.Errorf("update ticket type: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTicketTypeNotFound
	}
	return nil
}

func (r *CatalogRepository) DeleteTicketType(ctx context.Context, id string) error {
	tag, err := r.exec(ctx, `DELETE FROM ticket_types WHERE id = $1`, id)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isForeignKeyViolation(err) {
			return domain.ErrTicketTypeHasSales
		}
		return fmt.Errorf("delete ticket type: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTicketTypeNotFound
	}
	return nil
}

func (r *CatalogRepository) UpdateEventAggregate(ctx context.Context, eventID string, agg domain.TicketAggregate) error {
	const stmt = `
UPDATE events SET
	available_tickets = $2, sold_tickets = $3, reserved_tickets = $4,
	price_min = $5, price_max = $6, is_free = $7
WHERE id = $1`
	tag, err := r.exec(ctx, stmt,
		eventID, agg.AvailableTickets, agg.SoldTickets, agg.ReservedTickets,
		agg.PriceMin, agg.PriceMax, agg.IsFree,
	)
	if err != nil {
		return fmt.Errorf("update event aggregate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEventNotFound
	}
	return nil
}

func (r *CatalogRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *CatalogRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}

func (r *CatalogRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
