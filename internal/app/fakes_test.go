package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gatherhq/ticketing/internal/domain"
)

// fakeBookingRepo is an in-memory BookingRepository. WithTx serializes
// transactions and restores a snapshot on error, mirroring the rollback
// behavior of the real storage layer.
type fakeBookingRepo struct {
	mu   sync.Mutex
	txMu sync.Mutex

	events      map[string]domain.Event
	ticketTypes map[string]domain.TicketType
	bookings    map[string]domain.Booking

	createBookingErrs []error
}

func newFakeBookingRepo() *fakeBookingRepo {
	return &fakeBookingRepo{
		events:      map[string]domain.Event{},
		ticketTypes: map[string]domain.TicketType{},
		bookings:    map[string]domain.Booking{},
	}
}

func (r *fakeBookingRepo) addEvent(e domain.Event)          { r.events[e.ID] = e }
func (r *fakeBookingRepo) addTicketType(t domain.TicketType) { r.ticketTypes[t.ID] = t }
func (r *fakeBookingRepo) addBooking(b domain.Booking)      { r.bookings[b.ID] = b }

func (r *fakeBookingRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	r.mu.Lock()
	events := cloneMap(r.events)
	ticketTypes := cloneMap(r.ticketTypes)
	bookings := cloneMap(r.bookings)
	r.mu.Unlock()

	if err := fn(ctx); err != nil {
		r.mu.Lock()
		r.events = events
		r.ticketTypes = ticketTypes
		r.bookings = bookings
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *fakeBookingRepo) GetEvent(ctx context.Context, eventID string) (domain.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[eventID]
	if !ok {
		return domain.Event{}, domain.ErrEventNotFound
	}
	return event, nil
}

func (r *fakeBookingRepo) CountTicketTypes(ctx context.Context, eventID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, tt := range r.ticketTypes {
		if tt.EventID == eventID {
			n++
		}
	}
	return n, nil
}

func (r *fakeBookingRepo) GetTicketType(ctx context.Context, id string) (domain.TicketType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tt, ok := r.ticketTypes[id]
	if !ok {
		return domain.TicketType{}, domain.ErrTicketTypeNotFound
	}
	return tt, nil
}

func (r *fakeBookingRepo) ReserveTicketTypeCapacity(ctx context.Context, ticketTypeID string, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tt, ok := r.ticketTypes[ticketTypeID]
	if !ok {
		return domain.ErrTicketTypeNotFound
	}
	if tt.Capacity.Remaining() < quantity {
		return domain.ErrInsufficientInventory
	}
	tt.Capacity.Sold += quantity
	r.ticketTypes[ticketTypeID] = tt
	return nil
}

func (r *fakeBookingRepo) ReleaseTicketTypeCapacity(ctx context.Context, ticketTypeID string, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tt, ok := r.ticketTypes[ticketTypeID]
	if !ok {
		return domain.ErrTicketTypeNotFound
	}
	tt.Capacity.Sold -= quantity
	if tt.Capacity.Sold < 0 {
		tt.Capacity.Sold = 0
	}
	r.ticketTypes[ticketTypeID] = tt
	return nil
}

func (r *fakeBookingRepo) ReserveEventCapacity(ctx context.Context, eventID string, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[eventID]
	if !ok {
		return domain.ErrEventNotFound
	}
	if event.Aggregate.Remaining() < quantity {
		return domain.ErrInsufficientInventory
	}
	event.Aggregate.SoldTickets += quantity
	r.events[eventID] = event
	return nil
}

func (r *fakeBookingRepo) ReleaseEventCapacity(ctx context.Context, eventID string, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[eventID]
	if !ok {
		return domain.ErrEventNotFound
	}
	event.Aggregate.SoldTickets -= quantity
	if event.Aggregate.SoldTickets < 0 {
		event.Aggregate.SoldTickets = 0
	}
	r.events[eventID] = event
	return nil
}

func (r *fakeBookingRepo) CreateBooking(ctx context.Context, b domain.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.createBookingErrs) > 0 {
		err := r.createBookingErrs[0]
		r.createBookingErrs = r.createBookingErrs[1:]
		if err != nil {
			return err
		}
	}
	for _, existing := range r.bookings {
		if existing.Reference == b.Reference {
			return domain.ErrReferenceCollision
		}
	}
	r.bookings[b.ID] = b
	return nil
}

func (r *fakeBookingRepo) GetBooking(ctx context.Context, id string) (domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return domain.Booking{}, domain.ErrBookingNotFound
	}
	return b, nil
}

func (r *fakeBookingRepo) GetBookingForUpdate(ctx context.Context, id string) (domain.Booking, error) {
	return r.GetBooking(ctx, id)
}

func (r *fakeBookingRepo) GetBookingByReference(ctx context.Context, reference string) (domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.bookings {
		if b.Reference == reference {
			return b, nil
		}
	}
	return domain.Booking{}, domain.ErrBookingNotFound
}

func (r *fakeBookingRepo) ListBookingsByEvent(ctx context.Context, eventID string, f BookingFilters) ([]domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Booking
	for _, b := range r.bookings {
		if b.EventID != eventID {
			continue
		}
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		if f.CheckedIn != nil && b.CheckedIn != *f.CheckedIn {
			continue
		}
		if f.Email != "" && b.Attendee.Email != f.Email {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeBookingRepo) SumBookedQuantity(ctx context.Context, ticketTypeID, email string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, b := range r.bookings {
		if b.TicketTypeID == nil || *b.TicketTypeID != ticketTypeID {
			continue
		}
		if b.Attendee.Email != email || b.Status != domain.BookingConfirmed {
			continue
		}
		total += b.Quantity
	}
	return total, nil
}

func (r *fakeBookingRepo) MarkBookingCancelled(ctx context.Context, id string, at time.Time) error {
	return r.markStatus(id, domain.BookingCancelled, at)
}

func (r *fakeBookingRepo) MarkBookingRefunded(ctx context.Context, id string, at time.Time) error {
	return r.markStatus(id, domain.BookingRefunded, at)
}

func (r *fakeBookingRepo) markStatus(id string, status domain.BookingStatus, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return domain.ErrBookingNotFound
	}
	if b.Status != domain.BookingConfirmed {
		return domain.ErrBookingNotConfirmed
	}
	b.Status = status
	if status == domain.BookingRefunded {
		b.PaymentStatus = domain.PaymentRefunded
	}
	b.CancelledAt = &at
	b.UpdatedAt = at
	r.bookings[id] = b
	return nil
}

func (r *fakeBookingRepo) MarkBookingCheckedIn(ctx context.Context, id, operatorID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return domain.ErrBookingNotFound
	}
	if b.CheckedIn {
		return domain.ErrAlreadyCheckedIn
	}
	b.CheckedIn = true
	b.CheckedInAt = &at
	b.CheckedInBy = operatorID
	b.UpdatedAt = at
	r.bookings[id] = b
	return nil
}

func (r *fakeBookingRepo) EventStatistics(ctx context.Context, eventID string) (domain.EventStatistics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := domain.EventStatistics{}
	for _, b := range r.bookings {
		if b.EventID != eventID {
			continue
		}
		stats.TotalAttendees++
		switch b.Status {
		case domain.BookingConfirmed:
			stats.Confirmed++
			stats.TicketsSold += b.Quantity
			stats.Revenue = stats.Revenue.Add(b.TotalAmount)
		case domain.BookingCancelled:
			stats.Cancelled++
		}
		if b.CheckedIn {
			stats.CheckedInCount++
		}
	}
	return stats, nil
}

func (r *fakeBookingRepo) ListTicketTypesByEvent(ctx context.Context, eventID string) ([]domain.TicketType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.TicketType
	for _, tt := range r.ticketTypes {
		if tt.EventID == eventID {
			out = append(out, tt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeBookingRepo) UpdateEventAggregate(ctx context.Context, eventID string, agg domain.TicketAggregate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[eventID]
	if !ok {
		return domain.ErrEventNotFound
	}
	event.Aggregate = agg
	r.events[eventID] = event
	return nil
}

// fakeCatalogRepo is an in-memory CatalogRepository with the same
// snapshot-rollback WithTx behavior.
type fakeCatalogRepo struct {
	mu   sync.Mutex
	txMu sync.Mutex

	events      map[string]domain.Event
	ticketTypes map[string]domain.TicketType
}

func newFakeCatalogRepo() *fakeCatalogRepo {
	return &fakeCatalogRepo{
		events:      map[string]domain.Event{},
		ticketTypes: map[string]domain.TicketType{},
	}
}

func (r *fakeCatalogRepo) addEvent(e domain.Event)          { r.events[e.ID] = e }
func (r *fakeCatalogRepo) addTicketType(t domain.TicketType) { r.ticketTypes[t.ID] = t }

func (r *fakeCatalogRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	r.mu.Lock()
	events := cloneMap(r.events)
	ticketTypes := cloneMap(r.ticketTypes)
	r.mu.Unlock()

	if err := fn(ctx); err != nil {
		r.mu.Lock()
		r.events = events
		r.ticketTypes = ticketTypes
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *fakeCatalogRepo) GetEvent(ctx context.Context, eventID string) (domain.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[eventID]
	if !ok {
		return domain.Event{}, domain.ErrEventNotFound
	}
	return event, nil
}

func (r *fakeCatalogRepo) CreateTicketType(ctx context.Context, tt domain.TicketType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticketTypes[tt.ID] = tt
	return nil
}

func (r *fakeCatalogRepo) GetTicketType(ctx context.Context, id string) (domain.TicketType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tt, ok := r.ticketTypes[id]
	if !ok {
		return domain.TicketType{}, domain.ErrTicketTypeNotFound
	}
	return tt, nil
}

func (r *fakeCatalogRepo) GetTicketTypeForUpdate(ctx context.Context, id string) (domain.TicketType, error) {
	return r.GetTicketType(ctx, id)
}

func (r *fakeCatalogRepo) ListTicketTypesByEvent(ctx context.Context, eventID string) ([]domain.TicketType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.TicketType
	for _, tt := range r.ticketTypes {
		if tt.EventID == eventID {
			out = append(out, tt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeCatalogRepo) UpdateTicketType(ctx context.Context, tt domain.TicketType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ticketTypes[tt.ID]; !ok {
		return domain.ErrTicketTypeNotFound
	}
	r.ticketTypes[tt.ID] = tt
	return nil
}

func (r *fakeCatalogRepo) DeleteTicketType(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ticketTypes[id]; !ok {
		return domain.ErrTicketTypeNotFound
	}
	delete(r.ticketTypes, id)
	return nil
}

func (r *fakeCatalogRepo) UpdateEventAggregate(ctx context.Context, eventID string, agg domain.TicketAggregate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[eventID]
	if !ok {
		return domain.ErrEventNotFound
	}
	event.Aggregate = agg
	r.events[eventID] = event
	return nil
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
