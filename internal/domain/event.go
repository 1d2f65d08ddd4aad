package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TicketAggregate is the denormalized inventory snapshot stored on the event
// row. When the event has a ticket catalog the aggregate mirrors the sum of
// its ticket types and only the reconciler writes it; without a catalog
// (embedded mode) the aggregate is the sole source of truth and booking
// deltas are applied to it directly.
type TicketAggregate struct {
	AvailableTickets int
	SoldTickets      int
	ReservedTickets  int
	PriceMin         *decimal.Decimal
	PriceMax         *decimal.Decimal
	IsFree           bool
}

// Remaining reports how many tickets can still be reserved against the
// aggregate.
func (a TicketAggregate) Remaining() int {
	return a.AvailableTickets - a.SoldTickets - a.ReservedTickets
}

// Event carries the collaborator-owned fields the booking engine reads plus
// the embedded ticket aggregate it owns.
type Event struct {
	ID        string
	Name      string
	IsPublic  bool
	StartsAt  time.Time
	EndsAt    time.Time
	Aggregate TicketAggregate
	CreatedAt time.Time
}

// Ended reports whether the event is over and can no longer be booked.
func (e Event) Ended(now time.Time) bool {
	return now.After(e.EndsAt)
}
