package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TicketTypeStatus is the status reported for a ticket type. Only draft,
// active, paused and cancelled are stored; sold_out and expired are derived
// on read.
type TicketTypeStatus string

const (
	TicketTypeDraft     TicketTypeStatus = "draft"
	TicketTypeActive    TicketTypeStatus = "active"
	TicketTypePaused    TicketTypeStatus = "paused"
	TicketTypeSoldOut   TicketTypeStatus = "sold_out"
	TicketTypeExpired   TicketTypeStatus = "expired"
	TicketTypeCancelled TicketTypeStatus = "cancelled"
)

// Price is the monetary snapshot attached to a ticket type.
type Price struct {
	Amount          decimal.Decimal
	Currency        string
	OriginalAmount  *decimal.Decimal
	DiscountPercent *int
}

// Capacity tracks the inventory counters of a ticket type. The invariant
// available - sold - reserved >= 0 is enforced by the storage layer; the
// difference is the remaining sellable quantity.
type Capacity struct {
	Total     int
	Available int
	Sold      int
	Reserved  int
}

// Remaining reports how many tickets can still be reserved.
func (c Capacity) Remaining() int {
	return c.Available - c.Sold - c.Reserved
}

// Window is a closed time interval (validity or sales period).
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Restrictions limit who may book a ticket type and how many units.
type Restrictions struct {
	AgeMin       *int
	AgeMax       *int
	MaxPerPerson int
	RequiresID   bool
}

// AllowsAge reports whether an attendee of the given age may book. A nil age
// passes unless a bound is set.
func (r Restrictions) AllowsAge(age *int) bool {
	if r.AgeMin == nil && r.AgeMax == nil {
		return true
	}
	if age == nil {
		return false
	}
	if r.AgeMin != nil && *age < *r.AgeMin {
		return false
	}
	if r.AgeMax != nil && *age > *r.AgeMax {
		return false
	}
	return true
}

// RefundPolicy records the refund terms of a ticket type. The policy is
// recorded and enforced for the refund transition; no money movement is
// modeled.
type RefundPolicy struct {
	Allowed      bool
	DeadlineDays int
	Fee          decimal.Decimal
}

// TicketType defines a sellable admission category for one event.
type TicketType struct {
	ID           string
	EventID      string
	Title        string
	Description  string
	Kind         string
	Price        Price
	Capacity     Capacity
	Validity     Window
	Sales        Window
	EarlyBird    bool
	LastMinute   bool
	Restrictions Restrictions
	RefundPolicy RefundPolicy

	// Lifecycle is the explicitly stored state: draft, active, paused or
	// cancelled. Use EffectiveStatus for the reported status.
	Lifecycle TicketTypeStatus

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EffectiveStatus derives the reported status at read time. An explicitly
// cancelled or expired type is never reported sold_out, even at zero
// remaining capacity. Expiry is computed lazily here; rows are never swept.
func (t TicketType) EffectiveStatus(now time.Time) TicketTypeStatus {
	switch {
	case t.Lifecycle == TicketTypeCancelled:
		return TicketTypeCancelled
	case now.After(t.Validity.End):
		return TicketTypeExpired
	case t.Lifecycle != TicketTypeDraft && t.Capacity.Remaining() <= 0:
		return TicketTypeSoldOut
	case t.Lifecycle == TicketTypePaused:
		return TicketTypePaused
	case t.Lifecycle == TicketTypeDraft:
		return TicketTypeDraft
	default:
		return TicketTypeActive
	}
}

// OnSale reports whether the type can be booked at the given instant:
// effectively active and inside the sales window.
func (t TicketType) OnSale(now time.Time) bool {
	if t.EffectiveStatus(now) != TicketTypeActive {
		return false
	}
	return t.Sales.Contains(now)
}
