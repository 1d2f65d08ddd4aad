package app

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gatherhq/ticketing/internal/clock"
	"github.com/gatherhq/ticketing/internal/domain"
)

// ReconcilerRepository is the storage surface the reconciler needs.
type ReconcilerRepository interface {
	ListTicketTypesByEvent(ctx context.Context, eventID string) ([]domain.TicketType, error)
	UpdateEventAggregate(ctx context.Context, eventID string, agg domain.TicketAggregate) error
}

// Reconciler keeps the event-level ticket aggregate consistent with the
// underlying ticket-type rows. It is idempotent and writes nothing but the
// aggregate; ticket-type rows are never touched. When the event has no
// catalog there is nothing to recompute: the aggregate is maintained by
// direct booking deltas instead.
type Reconciler struct {
	repo  ReconcilerRepository
	clock clock.Clock
}

func NewReconciler(repo ReconcilerRepository, clk clock.Clock) *Reconciler {
	return &Reconciler{repo: repo, clock: clk}
}

// Resync recomputes the aggregate from the current ticket-type rows.
// Counters sum every non-cancelled type; the price range and the free flag
// consider only types that are effectively active right now.
func (r *Reconciler) Resync(ctx context.Context, eventID string) error {
	types, err := r.repo.ListTicketTypesByEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("reconcile event %s: %w", eventID, err)
	}
	if len(types) == 0 {
		// Embedded-aggregate mode; the aggregate is the source of truth.
		return nil
	}

	agg := Aggregate(types, r.clock.Now())
	if err := r.repo.UpdateEventAggregate(ctx, eventID, agg); err != nil {
		return fmt.Errorf("reconcile event %s: %w", eventID, err)
	}
	return nil
}

// Clear zeroes the aggregate. Called when a catalog mutation removes the
// last ticket type, so the event does not keep phantom availability or a
// stale price range from the row that just went away.
func (r *Reconciler) Clear(ctx context.Context, eventID string) error {
	if err := r.repo.UpdateEventAggregate(ctx, eventID, domain.TicketAggregate{}); err != nil {
		return fmt.Errorf("reconcile event %s: %w", eventID, err)
	}
	return nil
}

// Aggregate folds ticket-type rows into the snapshot stored on the event.
func Aggregate(types []domain.TicketType, now time.Time) domain.TicketAggregate {
	var agg domain.TicketAggregate
	var min, max *decimal.Decimal

	for _, t := range types {
		if t.Lifecycle == domain.TicketTypeCancelled {
			continue
		}
		agg.AvailableTickets += t.Capacity.Total
		agg.SoldTickets += t.Capacity.Sold
		agg.ReservedTickets += t.Capacity.Reserved

		status := t.EffectiveStatus(now)
		if status != domain.TicketTypeActive && status != domain.TicketTypeSoldOut {
			continue
		}
		price := t.Price.Amount
		if min == nil || price.LessThan(*min) {
			p := price
			min = &p
		}
		if max == nil || price.GreaterThan(*max) {
			p := price
			max = &p
		}
	}

	agg.PriceMin = min
	agg.PriceMax = max
	agg.IsFree = min != nil && min.IsZero()
	return agg
}
