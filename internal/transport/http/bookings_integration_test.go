package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/gatherhq/ticketing/internal/app"
	"github.com/gatherhq/ticketing/internal/clock"
	"github.com/gatherhq/ticketing/internal/storage/postgres"
	"github.com/gatherhq/ticketing/internal/testutil"
)

func TestBookingFlow_HTTPIntegration(t *testing.T) {
	pool := testutil.NewTestPool(t)
	testutil.ApplyMigrations(t, context.Background(), pool)

	log := logrus.New()
	log.SetOutput(io.Discard)
	clk := clock.NewSystem()

	catalogRepo := postgres.NewCatalogRepository(pool)
	bookingRepo := postgres.NewBookingRepository(pool)
	reconciler := app.NewReconciler(catalogRepo, clk)
	catalogSvc := app.NewCatalogService(catalogRepo, reconciler, clk, log)
	bookingSvc := app.NewBookingService(bookingRepo, reconciler, clk, log)

	ctx := context.Background()
	testutil.TruncateAll(t, ctx, pool)
	eventID := testutil.InsertEvent(t, ctx, pool, "Concert", 0)
	ttID := testutil.InsertTicketType(t, ctx, pool, eventID, "General", "25.00", 5)

	mux := http.NewServeMux()
	mux.Handle("/events/", HandleEvents(catalogSvc, bookingSvc))
	mux.Handle("/bookings/", HandleBookings(bookingSvc))

	body := []byte(`{"attendee":{"full_name":"Ada Lovelace","email":"ada@example.com"},"line_items":[{"ticket_type_id":"` + ttID + `","quantity":2}]}`)
	req := httptest.NewRequest(http.MethodPost, "/events/"+eventID+"/bookings", bytes.NewBuffer(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var created registerBookingResponse
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(created.References) != 1 {
		t.Fatalf("expected 1 reference, got %d", len(created.References))
	}
	if !created.TotalAmount.Equal(decimal.RequireFromString("50.00")) {
		t.Fatalf("expected total 50.00, got %s", created.TotalAmount)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/bookings/"+created.References[0], nil)
	rec2 := httptest.NewRecorder()
	mux.ServeHTTP(rec2, req2)

	if rec2.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec2.Code)
	}
	var booking bookingResponse
	if err := json.NewDecoder(rec2.Body).Decode(&booking); err != nil {
		t.Fatalf("decode booking: %v", err)
	}
	if booking.Status != "confirmed" || booking.Quantity != 2 {
		t.Fatalf("unexpected booking %+v", booking)
	}

	req3 := httptest.NewRequest(http.MethodPost, "/bookings/"+booking.ID+"/check-in", nil)
	req3.Header.Set("X-Operator-ID", "op-42")
	rec3 := httptest.NewRecorder()
	mux.ServeHTTP(rec3, req3)

	if rec3.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec3.Code, rec3.Body.String())
	}
	var checked bookingResponse
	if err := json.NewDecoder(rec3.Body).Decode(&checked); err != nil {
		t.Fatalf("decode booking: %v", err)
	}
	if !checked.CheckedIn || checked.CheckedInBy != "op-42" {
		t.Fatalf("expected checked in by op-42, got %+v", checked)
	}

	req4 := httptest.NewRequest(http.MethodGet, "/events/"+eventID+"/statistics", nil)
	rec4 := httptest.NewRecorder()
	mux.ServeHTTP(rec4, req4)

	if rec4.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec4.Code)
	}
	if !bytes.Contains(rec4.Body.Bytes(), []byte(`"tickets_sold":2`)) {
		t.Fatalf("expected 2 tickets sold, got %s", rec4.Body.String())
	}
	if !bytes.Contains(rec4.Body.Bytes(), []byte(`"checked_in_count":1`)) {
		t.Fatalf("expected 1 check-in, got %s", rec4.Body.String())
	}

	var sold int
	if err := pool.QueryRow(ctx, `SELECT sold FROM ticket_types WHERE id = $1`, ttID).Scan(&sold); err != nil {
		t.Fatalf("query sold: %v", err)
	}
	if sold != 2 {
		t.Fatalf("expected sold 2, got %d", sold)
	}

	var aggSold int
	if err := pool.QueryRow(ctx, `SELECT sold_tickets FROM events WHERE id = $1`, eventID).Scan(&aggSold); err != nil {
		t.Fatalf("query aggregate: %v", err)
	}
	if aggSold != 2 {
		t.Fatalf("expected aggregate sold 2, got %d", aggSold)
	}
}
