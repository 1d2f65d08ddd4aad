package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gatherhq/ticketing/internal/app"
	"github.com/gatherhq/ticketing/internal/domain"
	"github.com/gatherhq/ticketing/internal/testutil"
)

func TestBookingRepository_Capacity(t *testing.T) {
	pool := testutil.NewTestPool(t)
	repo := NewBookingRepository(pool)
	testutil.ApplyMigrations(t, context.Background(), pool)

	t.Run("ReserveTicketTypeCapacity guards the remaining count", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		eventID := testutil.InsertEvent(t, ctx, pool, "Concert", 0)
		ttID := testutil.InsertTicketType(t, ctx, pool, eventID, "General", "25.00", 5)

		if err := repo.ReserveTicketTypeCapacity(ctx, ttID, 3); err != nil {
			t.Fatalf("expected reservation to succeed, got %v", err)
		}
		if err := repo.ReserveTicketTypeCapacity(ctx, ttID, 3); !errors.Is(err, domain.ErrInsufficientInventory) {
			t.Fatalf("expected ErrInsufficientInventory, got %v", err)
		}

		tt, err := repo.GetTicketType(ctx, ttID)
		if err != nil {
			t.Fatalf("get ticket type: %v", err)
		}
		if tt.Capacity.Sold != 3 {
			t.Fatalf("expected sold 3, got %d", tt.Capacity.Sold)
		}

		missingID := "00000000-0000-0000-0000-000000000001"
		if err := repo.ReserveTicketTypeCapacity(ctx, missingID, 1); !errors.Is(err, domain.ErrTicketTypeNotFound) {
			t.Fatalf("expected ErrTicketTypeNotFound, got %v", err)
		}
	})

	t.Run("ReleaseTicketTypeCapacity clamps at zero", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		eventID := testutil.InsertEvent(t, ctx, pool, "Concert", 0)
		ttID := testutil.InsertTicketType(t, ctx, pool, eventID, "General", "25.00", 5)

		if err := repo.ReserveTicketTypeCapacity(ctx, ttID, 2); err != nil {
			t.Fatalf("reserve: %v", err)
		}
		if err := repo.ReleaseTicketTypeCapacity(ctx, ttID, 10); err != nil {
			t.Fatalf("release: %v", err)
		}

		tt, err := repo.GetTicketType(ctx, ttID)
		if err != nil {
			t.Fatalf("get ticket type: %v", err)
		}
		if tt.Capacity.Sold != 0 {
			t.Fatalf("expected sold clamped to 0, got %d", tt.Capacity.Sold)
		}
	})

	t.Run("ReserveEventCapacity works against the aggregate", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		eventID := testutil.InsertEvent(t, ctx, pool, "Meetup", 2)

		if err := repo.ReserveEventCapacity(ctx, eventID, 2); err != nil {
			t.Fatalf("expected reservation to succeed, got %v", err)
		}
		if err := repo.ReserveEventCapacity(ctx, eventID, 1); !errors.Is(err, domain.ErrInsufficientInventory) {
			t.Fatalf("expected ErrInsufficientInventory, got %v", err)
		}

		if err := repo.ReleaseEventCapacity(ctx, eventID, 1); err != nil {
			t.Fatalf("release: %v", err)
		}
		event, err := repo.GetEvent(ctx, eventID)
		if err != nil {
			t.Fatalf("get event: %v", err)
		}
		if event.Aggregate.SoldTickets != 1 {
			t.Fatalf("expected sold 1, got %d", event.Aggregate.SoldTickets)
		}
	})

	t.Run("concurrent reservations never oversell", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		eventID := testutil.InsertEvent(t, ctx, pool, "Concert", 0)
		ttID := testutil.InsertTicketType(t, ctx, pool, eventID, "General", "25.00", 1)

		results := make(chan error, 2)
		for i := 0; i < 2; i++ {
			go func() {
				results <- repo.ReserveTicketTypeCapacity(ctx, ttID, 1)
			}()
		}

		var won, lost int
		for i := 0; i < 2; i++ {
			switch err := <-results; {
			case err == nil:
				won++
			case errors.Is(err, domain.ErrInsufficientInventory):
				lost++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if won != 1 || lost != 1 {
			t.Fatalf("expected exactly one winner, got won=%d lost=%d", won, lost)
		}

		tt, err := repo.GetTicketType(ctx, ttID)
		if err != nil {
			t.Fatalf("get ticket type: %v", err)
		}
		if tt.Capacity.Sold != 1 {
			t.Fatalf("expected sold 1, got %d", tt.Capacity.Sold)
		}
	})

	t.Run("a failed tx leaves no trace", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		eventID := testutil.InsertEvent(t, ctx, pool, "Concert", 0)
		ttID := testutil.InsertTicketType(t, ctx, pool, eventID, "General", "25.00", 5)

		sentinel := errors.New("abort")
		err := repo.WithTx(ctx, func(txCtx context.Context) error {
			if err := repo.ReserveTicketTypeCapacity(txCtx, ttID, 2); err != nil {
				return err
			}
			return sentinel
		})
		if !errors.Is(err, sentinel) {
			t.Fatalf("expected sentinel error, got %v", err)
		}

		tt, err := repo.GetTicketType(ctx, ttID)
		if err != nil {
			t.Fatalf("get ticket type: %v", err)
		}
		if tt.Capacity.Sold != 0 {
			t.Fatalf("expected rollback, sold=%d", tt.Capacity.Sold)
		}
	})
}

func TestBookingRepository_Bookings(t *testing.T) {
	pool := testutil.NewTestPool(t)
	repo := NewBookingRepository(pool)
	testutil.ApplyMigrations(t, context.Background(), pool)

	newBooking := func(eventID string, ttID *string, reference, email string, quantity int) domain.Booking {
		now := time.Now().UTC().Truncate(time.Microsecond)
		return domain.Booking{
			EventID:         eventID,
			TicketTypeID:    ttID,
			Attendee:        domain.Attendee{FullName: "Ada Lovelace", Email: email},
			TicketTypeLabel: "General",
			Quantity:        quantity,
			UnitPrice:       decimal.RequireFromString("25.00"),
			TotalAmount:     decimal.RequireFromString("25.00").Mul(decimal.NewFromInt(int64(quantity))),
			Currency:        "USD",
			Status:          domain.BookingConfirmed,
			PaymentStatus:   domain.PaymentCompleted,
			Reference:       reference,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
	}

	t.Run("CreateBooking and lookups", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		eventID := testutil.InsertEvent(t, ctx, pool, "Concert", 0)
		ttID := testutil.InsertTicketType(t, ctx, pool, eventID, "General", "25.00", 10)

		b := newBooking(eventID, &ttID, "BK-TESTREF001", "ada@example.com", 2)
		b.ID = "3f1c41c8-9f4e-4d0a-b1de-111111111111"
		if err := repo.CreateBooking(ctx, b); err != nil {
			t.Fatalf("create booking: %v", err)
		}

		got, err := repo.GetBooking(ctx, b.ID)
		if err != nil {
			t.Fatalf("get booking: %v", err)
		}
		if got.Reference != "BK-TESTREF001" || got.Quantity != 2 {
			t.Fatalf("unexpected booking %+v", got)
		}
		if !got.TotalAmount.Equal(decimal.RequireFromString("50.00")) {
			t.Fatalf("expected total 50.00, got %s", got.TotalAmount)
		}

		byRef, err := repo.GetBookingByReference(ctx, "BK-TESTREF001")
		if err != nil {
			t.Fatalf("get by reference: %v", err)
		}
		if byRef.ID != b.ID {
			t.Fatalf("expected same booking, got %s", byRef.ID)
		}

		if _, err := repo.GetBookingByReference(ctx, "BK-MISSING"); !errors.Is(err, domain.ErrBookingNotFound) {
			t.Fatalf("expected ErrBookingNotFound, got %v", err)
		}
	})

	t.Run("duplicate reference is a collision", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		eventID := testutil.InsertEvent(t, ctx, pool, "Concert", 0)

		first := newBooking(eventID, nil, "BK-SAMEREF000", "ada@example.com", 1)
		first.ID = "3f1c41c8-9f4e-4d0a-b1de-222222222222"
		if err := repo.CreateBooking(ctx, first); err != nil {
			t.Fatalf("create first: %v", err)
		}

		dup := newBooking(eventID, nil, "BK-SAMEREF000", "bob@example.com", 1)
		dup.ID = "3f1c41c8-9f4e-4d0a-b1de-333333333333"
		if err := repo.CreateBooking(ctx, dup); !errors.Is(err, domain.ErrReferenceCollision) {
			t.Fatalf("expected ErrReferenceCollision, got %v", err)
		}
	})

	t.Run("ListBookingsByEvent applies filters", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		eventID := testutil.InsertEvent(t, ctx, pool, "Concert", 0)

		confirmed := newBooking(eventID, nil, "BK-LIST000001", "ada@example.com", 1)
		confirmed.ID = "3f1c41c8-9f4e-4d0a-b1de-444444444444"
		if err := repo.CreateBooking(ctx, confirmed); err != nil {
			t.Fatalf("create: %v", err)
		}
		other := newBooking(eventID, nil, "BK-LIST000002", "bob@example.com", 1)
		other.ID = "3f1c41c8-9f4e-4d0a-b1de-555555555555"
		if err := repo.CreateBooking(ctx, other); err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := repo.MarkBookingCancelled(ctx, other.ID, time.Now().UTC()); err != nil {
			t.Fatalf("cancel: %v", err)
		}

		all, err := repo.ListBookingsByEvent(ctx, eventID, app.BookingFilters{})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(all) != 2 {
			t.Fatalf("expected 2 bookings, got %d", len(all))
		}

		onlyConfirmed, err := repo.ListBookingsByEvent(ctx, eventID, app.BookingFilters{Status: domain.BookingConfirmed})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(onlyConfirmed) != 1 || onlyConfirmed[0].ID != confirmed.ID {
			t.Fatalf("expected only the confirmed booking, got %+v", onlyConfirmed)
		}

		byEmail, err := repo.ListBookingsByEvent(ctx, eventID, app.BookingFilters{Email: "bob@example.com"})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(byEmail) != 1 || byEmail[0].ID != other.ID {
			t.Fatalf("expected only bob's booking, got %+v", byEmail)
		}
	})

	t.Run("state transitions are guarded in SQL", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		eventID := testutil.InsertEvent(t, ctx, pool, "Concert", 0)

		b := newBooking(eventID, nil, "BK-GUARD00001", "ada@example.com", 1)
		b.ID = "3f1c41c8-9f4e-4d0a-b1de-666666666666"
		if err := repo.CreateBooking(ctx, b); err != nil {
			t.Fatalf("create: %v", err)
		}

		now := time.Now().UTC()
		if err := repo.MarkBookingCheckedIn(ctx, b.ID, "op-1", now); err != nil {
			t.Fatalf("check in: %v", err)
		}
		if err := repo.MarkBookingCheckedIn(ctx, b.ID, "op-2", now); !errors.Is(err, domain.ErrAlreadyCheckedIn) {
			t.Fatalf("expected ErrAlreadyCheckedIn, got %v", err)
		}

		if err := repo.MarkBookingCancelled(ctx, b.ID, now); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if err := repo.MarkBookingCancelled(ctx, b.ID, now); !errors.Is(err, domain.ErrBookingNotConfirmed) {
			t.Fatalf("expected ErrBookingNotConfirmed, got %v", err)
		}
		if err := repo.MarkBookingRefunded(ctx, b.ID, now); !errors.Is(err, domain.ErrBookingNotConfirmed) {
			t.Fatalf("expected ErrBookingNotConfirmed, got %v", err)
		}
	})

	t.Run("SumBookedQuantity counts confirmed rows only", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		eventID := testutil.InsertEvent(t, ctx, pool, "Concert", 0)
		ttID := testutil.InsertTicketType(t, ctx, pool, eventID, "General", "25.00", 10)

		first := newBooking(eventID, &ttID, "BK-SUM0000001", "ada@example.com", 2)
		first.ID = "3f1c41c8-9f4e-4d0a-b1de-777777777777"
		if err := repo.CreateBooking(ctx, first); err != nil {
			t.Fatalf("create: %v", err)
		}
		second := newBooking(eventID, &ttID, "BK-SUM0000002", "ada@example.com", 3)
		second.ID = "3f1c41c8-9f4e-4d0a-b1de-888888888888"
		if err := repo.CreateBooking(ctx, second); err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := repo.MarkBookingCancelled(ctx, second.ID, time.Now().UTC()); err != nil {
			t.Fatalf("cancel: %v", err)
		}

		total, err := repo.SumBookedQuantity(ctx, ttID, "ada@example.com")
		if err != nil {
			t.Fatalf("sum: %v", err)
		}
		if total != 2 {
			t.Fatalf("expected 2, got %d", total)
		}
	})

	t.Run("EventStatistics aggregates the ledger", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		eventID := testutil.InsertEvent(t, ctx, pool, "Concert", 0)

		first := newBooking(eventID, nil, "BK-STATS00001", "ada@example.com", 2)
		first.ID = "3f1c41c8-9f4e-4d0a-b1de-999999999999"
		if err := repo.CreateBooking(ctx, first); err != nil {
			t.Fatalf("create: %v", err)
		}
		now := time.Now().UTC()
		if err := repo.MarkBookingCheckedIn(ctx, first.ID, "op-1", now); err != nil {
			t.Fatalf("check in: %v", err)
		}
		second := newBooking(eventID, nil, "BK-STATS00002", "bob@example.com", 1)
		second.ID = "3f1c41c8-9f4e-4d0a-b1de-aaaaaaaaaaaa"
		if err := repo.CreateBooking(ctx, second); err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := repo.MarkBookingCancelled(ctx, second.ID, now); err != nil {
			t.Fatalf("cancel: %v", err)
		}

		stats, err := repo.EventStatistics(ctx, eventID)
		if err != nil {
			t.Fatalf("statistics: %v", err)
		}
		if stats.TotalAttendees != 2 || stats.Confirmed != 1 || stats.Cancelled != 1 {
			t.Fatalf("unexpected stats %+v", stats)
		}
		if stats.TicketsSold != 2 || stats.CheckedInCount != 1 {
			t.Fatalf("unexpected stats %+v", stats)
		}
		if !stats.Revenue.Equal(decimal.RequireFromString("50.00")) {
			t.Fatalf("expected revenue 50.00, got %s", stats.Revenue)
		}
	})
}
