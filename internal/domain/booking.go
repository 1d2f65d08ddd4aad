package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BookingStatus is the ledger state of a booking. The synchronous booking
// path jumps straight to confirmed; pending exists only as the placeholder
// initial state. cancelled and refunded are terminal.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingRefunded  BookingStatus = "refunded"
)

// PaymentStatus records the payment outcome. No gateway is modeled; the
// synchronous path records completed.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Attendee is the immutable snapshot of the person a booking belongs to.
// It represents a person, not an account.
type Attendee struct {
	FullName string
	Email    string
	Phone    string
	Age      *int
	Gender   string
}

// Booking is one confirmed purchase of one or more units of a ticket type,
// identified by a globally unique reference. TicketTypeID is nil in embedded
// mode, where no catalog entry existed and the event aggregate was debited
// directly. Price fields are snapshots and are never recomputed.
type Booking struct {
	ID              string
	EventID         string
	TicketTypeID    *string
	Attendee        Attendee
	TicketTypeLabel string
	Quantity        int
	UnitPrice       decimal.Decimal
	TotalAmount     decimal.Decimal
	Currency        string
	Status          BookingStatus
	PaymentStatus   PaymentStatus
	Reference       string
	CheckedIn       bool
	CheckedInAt     *time.Time
	CheckedInBy     string
	CancelledAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// EventStatistics is the per-event booking summary.
type EventStatistics struct {
	TotalAttendees int             `json:"total_attendees"`
	Confirmed      int             `json:"confirmed"`
	Cancelled      int             `json:"cancelled"`
	TicketsSold    int             `json:"tickets_sold"`
	Revenue        decimal.Decimal `json:"revenue"`
	CheckedInCount int             `json:"checked_in_count"`
}
