package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gatherhq/ticketing/internal/domain"
)

const (
	codeMethodNotAllowed      = "method_not_allowed"
	codeForbidden             = "forbidden"
	codeNotFound              = "not_found"
	codeInvalidRequestBody    = "invalid_request_body"
	codeValidation            = "validation_failed"
	codeOperatorRequired      = "operator_required"
	codeEventNotFound         = "event_not_found"
	codeTicketTypeNotFound    = "ticket_type_not_found"
	codeBookingNotFound       = "booking_not_found"
	codeEventNotPublic        = "event_not_public"
	codeEventEnded            = "event_ended"
	codeSalesClosed           = "sales_closed"
	codeTicketTypeUnavailable = "ticket_type_unavailable"
	codeConflict              = "conflict"
	codeAlreadyCheckedIn      = "already_checked_in"
	codeInsufficientInventory = "insufficient_inventory"
	codeInternalError         = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{Error: msg, Code: code})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

// writeServiceError maps a service error onto the HTTP taxonomy. Wrapped
// errors (line-item failures) keep their message so callers learn which
// line failed and why.
func writeServiceError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeError(w, status, code, msg)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidCapacity),
		errors.Is(err, domain.ErrInvalidPrice),
		errors.Is(err, domain.ErrInvalidWindow),
		errors.Is(err, domain.ErrTitleRequired),
		errors.Is(err, domain.ErrAttendeeNameRequired),
		errors.Is(err, domain.ErrAttendeeEmailRequired),
		errors.Is(err, domain.ErrAgeRestricted),
		errors.Is(err, domain.ErrMaxPerPersonExceeded):
		return http.StatusBadRequest, codeValidation
	case errors.Is(err, domain.ErrOperatorRequired):
		return http.StatusBadRequest, codeOperatorRequired
	case errors.Is(err, domain.ErrEventNotFound):
		return http.StatusNotFound, codeEventNotFound
	case errors.Is(err, domain.ErrTicketTypeNotFound):
		return http.StatusNotFound, codeTicketTypeNotFound
	case errors.Is(err, domain.ErrBookingNotFound):
		return http.StatusNotFound, codeBookingNotFound
	case errors.Is(err, domain.ErrEventNotPublic):
		return http.StatusForbidden, codeEventNotPublic
	case errors.Is(err, domain.ErrSalesClosed):
		return http.StatusForbidden, codeSalesClosed
	case errors.Is(err, domain.ErrEventEnded):
		return http.StatusGone, codeEventEnded
	case errors.Is(err, domain.ErrTicketTypeUnavailable):
		return http.StatusConflict, codeTicketTypeUnavailable
	case errors.Is(err, domain.ErrInsufficientInventory):
		return http.StatusConflict, codeInsufficientInventory
	case errors.Is(err, domain.ErrAlreadyCheckedIn):
		return http.StatusConflict, codeAlreadyCheckedIn
	case errors.Is(err, domain.ErrBookingCancelled),
		errors.Is(err, domain.ErrBookingNotConfirmed),
		errors.Is(err, domain.ErrCapacityBelowSold),
		errors.Is(err, domain.ErrTicketTypeHasSales),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrRefundNotAllowed),
		errors.Is(err, domain.ErrReferenceCollision):
		return http.StatusConflict, codeConflict
	default:
		return http.StatusInternalServerError, codeInternalError
	}
}
