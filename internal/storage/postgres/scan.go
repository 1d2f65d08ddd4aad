package postgres

import (
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/gatherhq/ticketing/internal/domain"
)

const ticketTypeColumns = `
id, event_id, title, description, kind,
price_amount, currency, original_price, discount_percent,
total, available, sold, reserved,
valid_from, valid_until, sale_start, sale_end, early_bird, last_minute,
age_min, age_max, max_per_person, requires_id,
refund_allowed, refund_deadline_days, refund_fee,
lifecycle, created_at, updated_at`

func scanTicketType(row pgx.Row) (domain.TicketType, error) {
	var (
		tt       domain.TicketType
		original decimal.NullDecimal
		discount *int
		ageMin   *int
		ageMax   *int
		state    string
	)
	err := row.Scan(
		&tt.ID, &tt.EventID, &tt.Title, &tt.Description, &tt.Kind,
		&tt.Price.Amount, &tt.Price.Currency, &original, &discount,
		&tt.Capacity.Total, &tt.Capacity.Available, &tt.Capacity.Sold, &tt.Capacity.Reserved,
		&tt.Validity.Start, &tt.Validity.End, &tt.Sales.Start, &tt.Sales.End, &tt.EarlyBird, &tt.LastMinute,
		&ageMin, &ageMax, &tt.Restrictions.MaxPerPerson, &tt.Restrictions.RequiresID,
		&tt.RefundPolicy.Allowed, &tt.RefundPolicy.DeadlineDays, &tt.RefundPolicy.Fee,
		&state, &tt.CreatedAt, &tt.UpdatedAt,
	)
	if err != nil {
		return domain.TicketType{}, err
	}
	if original.Valid {
		v := original.Decimal
		tt.Price.OriginalAmount = &v
	}
	tt.Price.DiscountPercent = discount
	tt.Restrictions.AgeMin = ageMin
	tt.Restrictions.AgeMax = ageMax
	tt.Lifecycle = domain.TicketTypeStatus(state)
	return tt, nil
}

const eventColumns = `
id, name, is_public, starts_at, ends_at,
available_tickets, sold_tickets, reserved_tickets,
price_min, price_max, is_free, created_at`

func scanEvent(row pgx.Row) (domain.Event, error) {
	var (
		e        domain.Event
		priceMin decimal.NullDecimal
		priceMax decimal.NullDecimal
	)
	err := row.Scan(
		&e.ID, &e.Name, &e.IsPublic, &e.StartsAt, &e.EndsAt,
		&e.Aggregate.AvailableTickets, &e.Aggregate.SoldTickets, &e.Aggregate.ReservedTickets,
		&priceMin, &priceMax, &e.Aggregate.IsFree, &e.CreatedAt,
	)
	if err != nil {
		return domain.Event{}, err
	}
	if priceMin.Valid {
		v := priceMin.Decimal
		e.Aggregate.PriceMin = &v
	}
	if priceMax.Valid {
		v := priceMax.Decimal
		e.Aggregate.PriceMax = &v
	}
	return e, nil
}

const bookingColumns = `
id, event_id, ticket_type_id,
full_name, email, phone, age, gender,
ticket_type_label, quantity, unit_price, total_amount, currency,
status, payment_status, booking_reference,
checked_in, checked_in_at, checked_in_by, cancelled_at,
created_at, updated_at`

func scanBooking(row pgx.Row) (domain.Booking, error) {
	var (
		b           domain.Booking
		status      string
		payStatus   string
		checkedInBy *string
	)
	err := row.Scan(
		&b.ID, &b.EventID, &b.TicketTypeID,
		&b.Attendee.FullName, &b.Attendee.Email, &b.Attendee.Phone, &b.Attendee.Age, &b.Attendee.Gender,
		&b.TicketTypeLabel, &b.Quantity, &b.UnitPrice, &b.TotalAmount, &b.Currency,
		&status, &payStatus, &b.Reference,
		&b.CheckedIn, &b.CheckedInAt, &checkedInBy, &b.CancelledAt,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return domain.Booking{}, err
	}
	b.Status = domain.BookingStatus(status)
	b.PaymentStatus = domain.PaymentStatus(payStatus)
	if checkedInBy != nil {
		b.CheckedInBy = *checkedInBy
	}
	return b, nil
}
