package domain

import "errors"

// Validation failures. These are all raised before any mutation happens.
var (
	ErrInvalidID             = errors.New("invalid id")
	ErrInvalidQuantity       = errors.New("quantity must be at least 1")
	ErrInvalidCapacity       = errors.New("capacity must be at least 1")
	ErrInvalidPrice          = errors.New("price must not be negative")
	ErrInvalidWindow         = errors.New("window end must be after start")
	ErrTitleRequired         = errors.New("title required")
	ErrAttendeeNameRequired  = errors.New("attendee full name required")
	ErrAttendeeEmailRequired = errors.New("attendee email required")
	ErrOperatorRequired      = errors.New("operator id required")
	ErrAgeRestricted         = errors.New("attendee age outside allowed range")
	ErrMaxPerPersonExceeded  = errors.New("quantity exceeds per-person limit")
)

// Lookup failures.
var (
	ErrEventNotFound      = errors.New("event not found")
	ErrTicketTypeNotFound = errors.New("ticket type not found")
	ErrBookingNotFound    = errors.New("booking not found")
)

// Access and sale-window failures.
var (
	ErrEventNotPublic        = errors.New("event is not open for public booking")
	ErrEventEnded            = errors.New("event has already ended")
	ErrSalesClosed           = errors.New("ticket sales are closed for this type")
	ErrTicketTypeUnavailable = errors.New("ticket type is not available for sale")
)

// Conflicts: state has already moved past the requested transition.
var (
	ErrCapacityBelowSold   = errors.New("total capacity cannot drop below tickets sold")
	ErrTicketTypeHasSales  = errors.New("ticket type with sales cannot be removed")
	ErrBookingNotConfirmed = errors.New("booking is not in confirmed state")
	ErrBookingCancelled    = errors.New("booking is already cancelled")
	ErrAlreadyCheckedIn    = errors.New("booking is already checked in")
	ErrRefundNotAllowed    = errors.New("refunds are not allowed for this ticket type")
	ErrInvalidTransition   = errors.New("ticket type cannot make this transition")
	ErrReferenceCollision  = errors.New("booking reference already taken")
)

// ErrInsufficientInventory is returned when a reservation loses the capacity
// race or the type is genuinely sold out. Partial success across a request's
// line items is never reported; the whole booking fails with this error.
var ErrInsufficientInventory = errors.New("insufficient ticket inventory")
