package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/gatherhq/ticketing/internal/clock"
	"github.com/gatherhq/ticketing/internal/domain"
	"github.com/gatherhq/ticketing/internal/metrics"
)

// referenceAttempts bounds regeneration when a generated booking reference
// collides with an existing row.
const referenceAttempts = 3

// BookingRepository is the storage surface of the booking engine. WithTx
// must run fn inside a single transaction; implementations may retry fn a
// bounded number of times on transient storage conflicts, so fn has to be
// safe to re-run from scratch.
type BookingRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetEvent(ctx context.Context, eventID string) (domain.Event, error)
	CountTicketTypes(ctx context.Context, eventID string) (int, error)
	GetTicketType(ctx context.Context, id string) (domain.TicketType, error)

	// ReserveTicketTypeCapacity increments sold by quantity in a single
	// conditional statement guarded by remaining >= quantity. It returns
	// domain.ErrInsufficientInventory when the guard fails.
	ReserveTicketTypeCapacity(ctx context.Context, ticketTypeID string, quantity int) error
	// ReleaseTicketTypeCapacity decrements sold by quantity, clamped at zero.
	ReleaseTicketTypeCapacity(ctx context.Context, ticketTypeID string, quantity int) error
	// ReserveEventCapacity and ReleaseEventCapacity are the embedded-mode
	// equivalents operating on the event aggregate.
	ReserveEventCapacity(ctx context.Context, eventID string, quantity int) error
	ReleaseEventCapacity(ctx context.Context, eventID string, quantity int) error

	CreateBooking(ctx context.Context, b domain.Booking) error
	GetBooking(ctx context.Context, id string) (domain.Booking, error)
	GetBookingForUpdate(ctx context.Context, id string) (domain.Booking, error)
	GetBookingByReference(ctx context.Context, reference string) (domain.Booking, error)
	ListBookingsByEvent(ctx context.Context, eventID string, f BookingFilters) ([]domain.Booking, error)
	SumBookedQuantity(ctx context.Context, ticketTypeID, email string) (int, error)
	MarkBookingCancelled(ctx context.Context, id string, at time.Time) error
	MarkBookingRefunded(ctx context.Context, id string, at time.Time) error
	MarkBookingCheckedIn(ctx context.Context, id, operatorID string, at time.Time) error
	EventStatistics(ctx context.Context, eventID string) (domain.EventStatistics, error)
}

// Notifier delivers booking notices to the notification collaborator.
// Failures are logged by the engine and never affect the booking result.
type Notifier interface {
	BookingConfirmed(ctx context.Context, n BookingNotice) error
	BookingCancelled(ctx context.Context, n BookingNotice) error
}

// BookingNotice is the payload sent to the notification collaborator.
type BookingNotice struct {
	EventID     string          `json:"event_id"`
	References  []string        `json:"references"`
	Attendee    string          `json:"attendee"`
	Email       string          `json:"email"`
	Tickets     int             `json:"tickets"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// StatisticsCache caches per-event booking statistics. A nil cache is valid
// and behaves as a permanent miss.
type StatisticsCache interface {
	Get(ctx context.Context, eventID string) (domain.EventStatistics, bool)
	Set(ctx context.Context, eventID string, stats domain.EventStatistics)
	Invalidate(ctx context.Context, eventID string)
}

// BookingService orchestrates validation, atomic capacity reservation,
// ledger writes and aggregate reconciliation as one unit of work.
type BookingService struct {
	repo       BookingRepository
	reconciler *Reconciler
	notifier   Notifier
	stats      StatisticsCache
	clock      clock.Clock
	log        *logrus.Logger
}

func NewBookingService(repo BookingRepository, rec *Reconciler, clk clock.Clock, log *logrus.Logger, opts ...BookingServiceOption) *BookingService {
	svc := &BookingService{
		repo:       repo,
		reconciler: rec,
		clock:      clk,
		log:        log,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type BookingServiceOption func(*BookingService)

// WithNotifier attaches a notification publisher.
func WithNotifier(n Notifier) BookingServiceOption {
	return func(s *BookingService) { s.notifier = n }
}

// WithStatisticsCache attaches a statistics cache.
func WithStatisticsCache(c StatisticsCache) BookingServiceOption {
	return func(s *BookingService) { s.stats = c }
}

// LineItem is one requested ticket type and quantity. TicketTypeID is empty
// in embedded-aggregate mode.
type LineItem struct {
	TicketTypeID string
	Quantity     int
}

// AttendeeInfo is the attendee snapshot submitted with a booking.
type AttendeeInfo struct {
	FullName string
	Email    string
	Phone    string
	Age      *int
	Gender   string
}

// RegisterBookingInput is a booking request for one attendee.
type RegisterBookingInput struct {
	EventID   string
	Attendee  AttendeeInfo
	LineItems []LineItem
}

// RegisterBookingResult reports the created ledger entries.
type RegisterBookingResult struct {
	References  []string
	TotalAmount decimal.Decimal
	Currency    string
}

// resolvedLine is a line item after resolution: either backed by a catalog
// row or by the event aggregate (degraded embedded mode). The tagged variant
// keeps the engine free of mode conditionals past this point.
type resolvedLine struct {
	ticketType *domain.TicketType // nil means aggregate-backed
	label      string
	unitPrice  decimal.Decimal
	currency   string
	quantity   int
}

func (l resolvedLine) aggregateBacked() bool { return l.ticketType == nil }

// RegisterBooking books tickets against an event. The whole request is
// all-or-nothing across its line items: any failed line rolls back every
// reservation and no ledger row survives.
func (s *BookingService) RegisterBooking(ctx context.Context, in RegisterBookingInput) (RegisterBookingResult, error) {
	if in.EventID == "" {
		return RegisterBookingResult{}, domain.ErrInvalidID
	}
	if in.Attendee.FullName == "" {
		return RegisterBookingResult{}, domain.ErrAttendeeNameRequired
	}
	if in.Attendee.Email == "" {
		return RegisterBookingResult{}, domain.ErrAttendeeEmailRequired
	}
	if len(in.LineItems) == 0 {
		return RegisterBookingResult{}, domain.ErrInvalidQuantity
	}
	for _, li := range in.LineItems {
		if li.Quantity < 1 {
			return RegisterBookingResult{}, domain.ErrInvalidQuantity
		}
	}

	now := s.clock.Now()
	var result RegisterBookingResult

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		event, err := s.repo.GetEvent(txCtx, in.EventID)
		if err != nil {
			return err
		}
		if !event.IsPublic {
			return domain.ErrEventNotPublic
		}
		if event.Ended(now) {
			return domain.ErrEventEnded
		}

		catalogSize, err := s.repo.CountTicketTypes(txCtx, in.EventID)
		if err != nil {
			return err
		}

		// Per-person caps hold for the request as a whole, so duplicate
		// lines for one type count together.
		requested := make(map[string]int, len(in.LineItems))
		for _, li := range in.LineItems {
			if li.TicketTypeID != "" {
				requested[li.TicketTypeID] += li.Quantity
			}
		}

		lines := make([]resolvedLine, 0, len(in.LineItems))
		for i, li := range in.LineItems {
			line, err := s.resolveLine(txCtx, event, catalogSize, li, requested, in.Attendee, now)
			if err != nil {
				return fmt.Errorf("line item %d: %w", i+1, err)
			}
			lines = append(lines, line)
		}

		for i, line := range lines {
			if err := s.reserve(txCtx, event.ID, line); err != nil {
				return fmt.Errorf("line item %d (%s): %w", i+1, line.label, err)
			}
		}

		references := make([]string, 0, len(lines))
		total := decimal.Zero
		currency := ""
		for i, line := range lines {
			booking, err := s.appendLedgerEntry(txCtx, event.ID, line, in.Attendee, now)
			if err != nil {
				return fmt.Errorf("line item %d (%s): %w", i+1, line.label, err)
			}
			references = append(references, booking.Reference)
			total = total.Add(booking.TotalAmount)
			if currency == "" {
				currency = booking.Currency
			}
		}

		if catalogSize > 0 {
			if err := s.reconciler.Resync(txCtx, event.ID); err != nil {
				return err
			}
		}

		result = RegisterBookingResult{References: references, TotalAmount: total, Currency: currency}
		return nil
	})
	if err != nil {
		metrics.BookingsTotal.WithLabelValues("rejected").Inc()
		return RegisterBookingResult{}, err
	}

	metrics.BookingsTotal.WithLabelValues("confirmed").Inc()
	metrics.TicketsSoldTotal.Add(float64(ticketCount(in.LineItems)))
	s.invalidateStats(ctx, in.EventID)
	s.notify(ctx, func(n Notifier, notice BookingNotice) error {
		return n.BookingConfirmed(ctx, notice)
	}, BookingNotice{
		EventID:     in.EventID,
		References:  result.References,
		Attendee:    in.Attendee.FullName,
		Email:       in.Attendee.Email,
		Tickets:     ticketCount(in.LineItems),
		TotalAmount: result.TotalAmount,
		Currency:    result.Currency,
		OccurredAt:  now,
	})

	return result, nil
}

func ticketCount(items []LineItem) int {
	n := 0
	for _, li := range items {
		n += li.Quantity
	}
	return n
}

// resolveLine turns a line item into a resolved line. With a catalog present
// every line must name an existing ticket type and pass its restrictions;
// without one the event aggregate backs the line directly and only the
// remaining count is enforced.
func (s *BookingService) resolveLine(ctx context.Context, event domain.Event, catalogSize int, li LineItem, requested map[string]int, attendee AttendeeInfo, now time.Time) (resolvedLine, error) {
	if catalogSize == 0 {
		price := decimal.Zero
		if event.Aggregate.PriceMin != nil {
			price = *event.Aggregate.PriceMin
		}
		return resolvedLine{
			label:     "General Admission",
			unitPrice: price,
			currency:  "USD",
			quantity:  li.Quantity,
		}, nil
	}

	if li.TicketTypeID == "" {
		return resolvedLine{}, domain.ErrTicketTypeNotFound
	}
	tt, err := s.repo.GetTicketType(ctx, li.TicketTypeID)
	if err != nil {
		return resolvedLine{}, err
	}
	if tt.EventID != event.ID {
		return resolvedLine{}, domain.ErrTicketTypeNotFound
	}

	switch tt.EffectiveStatus(now) {
	case domain.TicketTypeActive:
	case domain.TicketTypeSoldOut:
		return resolvedLine{}, domain.ErrInsufficientInventory
	default:
		return resolvedLine{}, domain.ErrTicketTypeUnavailable
	}
	if !tt.Sales.Contains(now) {
		return resolvedLine{}, domain.ErrSalesClosed
	}
	if !tt.Restrictions.AllowsAge(attendee.Age) {
		return resolvedLine{}, domain.ErrAgeRestricted
	}
	if tt.Restrictions.MaxPerPerson > 0 {
		already, err := s.repo.SumBookedQuantity(ctx, tt.ID, attendee.Email)
		if err != nil {
			return resolvedLine{}, err
		}
		if already+requested[tt.ID] > tt.Restrictions.MaxPerPerson {
			return resolvedLine{}, domain.ErrMaxPerPersonExceeded
		}
	}

	ttCopy := tt
	return resolvedLine{
		ticketType: &ttCopy,
		label:      tt.Title,
		unitPrice:  tt.Price.Amount,
		currency:   tt.Price.Currency,
		quantity:   li.Quantity,
	}, nil
}

// reserve performs the single conditional mutation that makes overselling
// structurally impossible. The guard lives in the storage layer; a lost race
// surfaces as ErrInsufficientInventory and rolls the whole request back.
func (s *BookingService) reserve(ctx context.Context, eventID string, line resolvedLine) error {
	if line.aggregateBacked() {
		return s.repo.ReserveEventCapacity(ctx, eventID, line.quantity)
	}
	return s.repo.ReserveTicketTypeCapacity(ctx, line.ticketType.ID, line.quantity)
}

func (s *BookingService) appendLedgerEntry(ctx context.Context, eventID string, line resolvedLine, attendee AttendeeInfo, now time.Time) (domain.Booking, error) {
	booking := domain.Booking{
		EventID: eventID,
		Attendee: domain.Attendee{
			FullName: attendee.FullName,
			Email:    attendee.Email,
			Phone:    attendee.Phone,
			Age:      attendee.Age,
			Gender:   attendee.Gender,
		},
		TicketTypeLabel: line.label,
		Quantity:        line.quantity,
		UnitPrice:       line.unitPrice,
		TotalAmount:     line.unitPrice.Mul(decimal.NewFromInt(int64(line.quantity))),
		Currency:        line.currency,
		Status:          domain.BookingConfirmed,
		PaymentStatus:   domain.PaymentCompleted,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if !line.aggregateBacked() {
		id := line.ticketType.ID
		booking.TicketTypeID = &id
	}

	// The unique constraint on the reference is the uniqueness guarantee;
	// regenerate on the (vanishingly rare) collision.
	var err error
	for attempt := 0; attempt < referenceAttempts; attempt++ {
		booking.ID = newID()
		booking.Reference = newBookingReference()
		err = s.repo.CreateBooking(ctx, booking)
		if err == nil {
			return booking, nil
		}
		if !errors.Is(err, domain.ErrReferenceCollision) {
			return domain.Booking{}, err
		}
	}
	return domain.Booking{}, err
}

// CancelBooking flips a confirmed booking to cancelled and restores the
// reserved capacity, flipping a sold-out type back to active implicitly
// through derived status.
func (s *BookingService) CancelBooking(ctx context.Context, id, operatorID string) (domain.Booking, error) {
	return s.terminate(ctx, id, operatorID, domain.BookingCancelled)
}

// RefundBooking flips a confirmed booking to refunded. The ticket type's
// refund policy must allow it; capacity is restored the same way as for a
// cancellation.
func (s *BookingService) RefundBooking(ctx context.Context, id, operatorID string) (domain.Booking, error) {
	return s.terminate(ctx, id, operatorID, domain.BookingRefunded)
}

func (s *BookingService) terminate(ctx context.Context, id, operatorID string, target domain.BookingStatus) (domain.Booking, error) {
	if id == "" {
		return domain.Booking{}, domain.ErrInvalidID
	}
	if operatorID == "" {
		return domain.Booking{}, domain.ErrOperatorRequired
	}

	now := s.clock.Now()
	var booking domain.Booking

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		b, err := s.repo.GetBookingForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		switch b.Status {
		case domain.BookingConfirmed:
		case domain.BookingCancelled:
			return domain.ErrBookingCancelled
		default:
			return domain.ErrBookingNotConfirmed
		}

		if target == domain.BookingRefunded && b.TicketTypeID != nil {
			tt, err := s.repo.GetTicketType(txCtx, *b.TicketTypeID)
			if err != nil {
				return err
			}
			if !tt.RefundPolicy.Allowed {
				return domain.ErrRefundNotAllowed
			}
		}

		if target == domain.BookingRefunded {
			if err := s.repo.MarkBookingRefunded(txCtx, id, now); err != nil {
				return err
			}
			b.Status = domain.BookingRefunded
			b.PaymentStatus = domain.PaymentRefunded
		} else {
			if err := s.repo.MarkBookingCancelled(txCtx, id, now); err != nil {
				return err
			}
			b.Status = domain.BookingCancelled
		}
		b.CancelledAt = &now
		b.UpdatedAt = now

		if b.TicketTypeID != nil {
			if err := s.repo.ReleaseTicketTypeCapacity(txCtx, *b.TicketTypeID, b.Quantity); err != nil {
				return err
			}
			if err := s.reconciler.Resync(txCtx, b.EventID); err != nil {
				return err
			}
		} else {
			if err := s.repo.ReleaseEventCapacity(txCtx, b.EventID, b.Quantity); err != nil {
				return err
			}
		}

		booking = b
		return nil
	})
	if err != nil {
		return domain.Booking{}, err
	}

	if target == domain.BookingRefunded {
		metrics.RefundsTotal.Inc()
	} else {
		metrics.CancellationsTotal.Inc()
	}
	s.invalidateStats(ctx, booking.EventID)
	s.notify(ctx, func(n Notifier, notice BookingNotice) error {
		return n.BookingCancelled(ctx, notice)
	}, BookingNotice{
		EventID:     booking.EventID,
		References:  []string{booking.Reference},
		Attendee:    booking.Attendee.FullName,
		Email:       booking.Attendee.Email,
		Tickets:     booking.Quantity,
		TotalAmount: booking.TotalAmount,
		Currency:    booking.Currency,
		OccurredAt:  now,
	})

	return booking, nil
}

// CheckIn stamps a confirmed booking as checked in. A second call is a
// conflict and leaves the original stamp untouched.
func (s *BookingService) CheckIn(ctx context.Context, id, operatorID string) (domain.Booking, error) {
	if id == "" {
		return domain.Booking{}, domain.ErrInvalidID
	}
	if operatorID == "" {
		return domain.Booking{}, domain.ErrOperatorRequired
	}

	now := s.clock.Now()
	var booking domain.Booking

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		b, err := s.repo.GetBookingForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if b.CheckedIn {
			return domain.ErrAlreadyCheckedIn
		}
		if b.Status != domain.BookingConfirmed {
			return domain.ErrBookingNotConfirmed
		}
		if err := s.repo.MarkBookingCheckedIn(txCtx, id, operatorID, now); err != nil {
			return err
		}
		b.CheckedIn = true
		b.CheckedInAt = &now
		b.CheckedInBy = operatorID
		b.UpdatedAt = now
		booking = b
		return nil
	})
	if err != nil {
		return domain.Booking{}, err
	}

	metrics.CheckInsTotal.Inc()
	s.invalidateStats(ctx, booking.EventID)
	return booking, nil
}

func (s *BookingService) invalidateStats(ctx context.Context, eventID string) {
	if s.stats != nil {
		s.stats.Invalidate(ctx, eventID)
	}
}

// GetByReference looks a booking up by its public reference.
func (s *BookingService) GetByReference(ctx context.Context, reference string) (domain.Booking, error) {
	if reference == "" {
		return domain.Booking{}, domain.ErrBookingNotFound
	}
	return s.repo.GetBookingByReference(ctx, reference)
}

// BookingFilters narrows ListForEvent results.
type BookingFilters struct {
	Status    domain.BookingStatus
	CheckedIn *bool
	Email     string
}

// ListForEvent returns the event's bookings, newest first.
func (s *BookingService) ListForEvent(ctx context.Context, eventID string, f BookingFilters) ([]domain.Booking, error) {
	if eventID == "" {
		return nil, domain.ErrInvalidID
	}
	if _, err := s.repo.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return s.repo.ListBookingsByEvent(ctx, eventID, f)
}

// Statistics returns the per-event booking summary, served from cache when
// fresh.
func (s *BookingService) Statistics(ctx context.Context, eventID string) (domain.EventStatistics, error) {
	if eventID == "" {
		return domain.EventStatistics{}, domain.ErrInvalidID
	}
	if s.stats != nil {
		if cached, ok := s.stats.Get(ctx, eventID); ok {
			return cached, nil
		}
	}
	if _, err := s.repo.GetEvent(ctx, eventID); err != nil {
		return domain.EventStatistics{}, err
	}
	stats, err := s.repo.EventStatistics(ctx, eventID)
	if err != nil {
		return domain.EventStatistics{}, err
	}
	if s.stats != nil {
		s.stats.Set(ctx, eventID, stats)
	}
	return stats, nil
}

// notify dispatches a notice fire-and-forget: failures are logged and never
// surfaced as a booking failure.
func (s *BookingService) notify(ctx context.Context, send func(Notifier, BookingNotice) error, notice BookingNotice) {
	if s.notifier == nil {
		return
	}
	if err := send(s.notifier, notice); err != nil {
		s.log.WithError(err).WithField("event_id", notice.EventID).
			Warn("notification dispatch failed")
	}
}
