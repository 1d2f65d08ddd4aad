package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gatherhq/ticketing/internal/app"
	"github.com/gatherhq/ticketing/internal/domain"
)

// BookingService is the minimal interface needed by the booking endpoints.
type BookingService interface {
	RegisterBooking(ctx context.Context, in app.RegisterBookingInput) (app.RegisterBookingResult, error)
	GetByReference(ctx context.Context, reference string) (domain.Booking, error)
	ListForEvent(ctx context.Context, eventID string, f app.BookingFilters) ([]domain.Booking, error)
	CancelBooking(ctx context.Context, id, operatorID string) (domain.Booking, error)
	RefundBooking(ctx context.Context, id, operatorID string) (domain.Booking, error)
	CheckIn(ctx context.Context, id, operatorID string) (domain.Booking, error)
	Statistics(ctx context.Context, eventID string) (domain.EventStatistics, error)
}

func serveEventBookings(w http.ResponseWriter, r *http.Request, svc BookingService, eventID string) {
	switch r.Method {
	case http.MethodGet:
		filters, err := bookingFiltersFromQuery(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeValidation, err.Error())
			return
		}
		bookings, err := svc.ListForEvent(r.Context(), eventID, filters)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		resp := make([]bookingResponse, 0, len(bookings))
		for _, b := range bookings {
			resp = append(resp, newBookingResponse(b))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	case http.MethodPost:
		var req registerBookingRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		in := app.RegisterBookingInput{
			EventID: eventID,
			Attendee: app.AttendeeInfo{
				FullName: req.Attendee.FullName,
				Email:    req.Attendee.Email,
				Phone:    req.Attendee.Phone,
				Age:      req.Attendee.Age,
				Gender:   req.Attendee.Gender,
			},
		}
		for _, li := range req.LineItems {
			in.LineItems = append(in.LineItems, app.LineItem{
				TicketTypeID: li.TicketTypeID,
				Quantity:     li.Quantity,
			})
		}

		result, err := svc.RegisterBooking(r.Context(), in)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(registerBookingResponse{
			References:  result.References,
			TotalAmount: result.TotalAmount,
			Currency:    result.Currency,
		})
	default:
		writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
	}
}

// HandleBookings serves booking lookup by reference and the check-in,
// cancel and refund transitions.
func HandleBookings(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, action, ok := parseBookingPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		if action == "" {
			if r.Method != http.MethodGet {
				writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
				return
			}
			booking, err := svc.GetByReference(r.Context(), id)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(newBookingResponse(booking))
			return
		}

		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var (
			booking domain.Booking
			err     error
		)
		switch action {
		case "check-in":
			booking, err = svc.CheckIn(r.Context(), id, operatorID(r))
		case "cancel":
			booking, err = svc.CancelBooking(r.Context(), id, operatorID(r))
		case "refund":
			booking, err = svc.RefundBooking(r.Context(), id, operatorID(r))
		default:
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}
		if err != nil {
			writeServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(newBookingResponse(booking))
	}
}

func parseBookingPath(path string) (id, action string, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || len(parts) > 3 || parts[0] != "bookings" || parts[1] == "" {
		return "", "", false
	}
	if len(parts) == 3 {
		if parts[2] == "" {
			return "", "", false
		}
		return parts[1], parts[2], true
	}
	return parts[1], "", true
}

var (
	errInvalidStatusFilter    = errors.New("status filter must be one of pending, confirmed, cancelled, refunded")
	errInvalidCheckedInFilter = errors.New("checked_in filter must be true or false")
)

func bookingFiltersFromQuery(r *http.Request) (app.BookingFilters, error) {
	var f app.BookingFilters
	q := r.URL.Query()

	if status := q.Get("status"); status != "" {
		switch domain.BookingStatus(status) {
		case domain.BookingPending, domain.BookingConfirmed, domain.BookingCancelled, domain.BookingRefunded:
			f.Status = domain.BookingStatus(status)
		default:
			return f, errInvalidStatusFilter
		}
	}
	if checked := q.Get("checked_in"); checked != "" {
		v := checked == "true"
		if !v && checked != "false" {
			return f, errInvalidCheckedInFilter
		}
		f.CheckedIn = &v
	}
	f.Email = q.Get("email")
	return f, nil
}

type registerBookingRequest struct {
	Attendee  attendeeRequest   `json:"attendee"`
	LineItems []lineItemRequest `json:"line_items"`
}

type attendeeRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	Age      *int   `json:"age,omitempty"`
	Gender   string `json:"gender,omitempty"`
}

type lineItemRequest struct {
	TicketTypeID string `json:"ticket_type_id,omitempty"`
	Quantity     int    `json:"quantity"`
}

type registerBookingResponse struct {
	References  []string        `json:"references"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency"`
}

type bookingResponse struct {
	ID              string          `json:"id"`
	EventID         string          `json:"event_id"`
	TicketTypeID    *string         `json:"ticket_type_id,omitempty"`
	TicketTypeLabel string          `json:"ticket_type_label"`
	FullName        string          `json:"full_name"`
	Email           string          `json:"email"`
	Phone           string          `json:"phone,omitempty"`
	Age             *int            `json:"age,omitempty"`
	Gender          string          `json:"gender,omitempty"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Currency        string          `json:"currency"`
	Status          string          `json:"status"`
	PaymentStatus   string          `json:"payment_status"`
	Reference       string          `json:"booking_reference"`
	CheckedIn       bool            `json:"checked_in"`
	CheckedInAt     *time.Time      `json:"checked_in_at,omitempty"`
	CheckedInBy     string          `json:"checked_in_by,omitempty"`
	CancelledAt     *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func newBookingResponse(b domain.Booking) bookingResponse {
	return bookingResponse{
		ID:              b.ID,
		EventID:         b.EventID,
		TicketTypeID:    b.TicketTypeID,
		TicketTypeLabel: b.TicketTypeLabel,
		FullName:        b.Attendee.FullName,
		Email:           b.Attendee.Email,
		Phone:           b.Attendee.Phone,
		Age:             b.Attendee.Age,
		Gender:          b.Attendee.Gender,
		Quantity:        b.Quantity,
		UnitPrice:       b.UnitPrice,
		TotalAmount:     b.TotalAmount,
		Currency:        b.Currency,
		Status:          string(b.Status),
		PaymentStatus:   string(b.PaymentStatus),
		Reference:       b.Reference,
		CheckedIn:       b.CheckedIn,
		CheckedInAt:     b.CheckedInAt,
		CheckedInBy:     b.CheckedInBy,
		CancelledAt:     b.CancelledAt,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}
