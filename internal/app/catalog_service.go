package app

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/gatherhq/ticketing/internal/clock"
	"github.com/gatherhq/ticketing/internal/domain"
)

// CatalogRepository is the storage surface for ticket-type management.
type CatalogRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetEvent(ctx context.Context, eventID string) (domain.Event, error)
	CreateTicketType(ctx context.Context, tt domain.TicketType) error
	GetTicketType(ctx context.Context, id string) (domain.TicketType, error)
	GetTicketTypeForUpdate(ctx context.Context, id string) (domain.TicketType, error)
	ListTicketTypesByEvent(ctx context.Context, eventID string) ([]domain.TicketType, error)
	UpdateTicketType(ctx context.Context, tt domain.TicketType) error
	DeleteTicketType(ctx context.Context, id string) error
}

// CatalogService manages the sellable ticket types of an event. Every
// mutation runs in a transaction and finishes with an aggregate resync so
// the event snapshot never drifts from the catalog.
type CatalogService struct {
	repo       CatalogRepository
	reconciler *Reconciler
	clock      clock.Clock
	log        *logrus.Logger
}

func NewCatalogService(repo CatalogRepository, rec *Reconciler, clk clock.Clock, log *logrus.Logger) *CatalogService {
	return &CatalogService{repo: repo, reconciler: rec, clock: clk, log: log}
}

// TicketTypeSpec describes a new ticket type.
type TicketTypeSpec struct {
	Title           string
	Description     string
	Kind            string
	PriceAmount     decimal.Decimal
	Currency        string
	OriginalAmount  *decimal.Decimal
	DiscountPercent *int
	Quantity        int
	ValidFrom       time.Time
	ValidUntil      time.Time
	SaleStart       time.Time
	SaleEnd         time.Time
	EarlyBird       bool
	LastMinute      bool
	AgeMin          *int
	AgeMax          *int
	MaxPerPerson    int
	RequiresID      bool
	RefundAllowed   bool
	RefundDeadline  int
	RefundFee       decimal.Decimal
	Draft           bool
}

func (s TicketTypeSpec) validate() error {
	if s.Title == "" {
		return domain.ErrTitleRequired
	}
	if s.Quantity < 1 {
		return domain.ErrInvalidCapacity
	}
	if s.PriceAmount.IsNegative() {
		return domain.ErrInvalidPrice
	}
	if !s.ValidUntil.After(s.ValidFrom) {
		return domain.ErrInvalidWindow
	}
	if !s.SaleEnd.After(s.SaleStart) {
		return domain.ErrInvalidWindow
	}
	return nil
}

// Define creates a ticket type with available=total=quantity and zero
// sold/reserved counters. Types start active unless the spec marks them as
// draft.
func (s *CatalogService) Define(ctx context.Context, eventID string, spec TicketTypeSpec) (domain.TicketType, error) {
	if eventID == "" {
		return domain.TicketType{}, domain.ErrInvalidID
	}
	if err := spec.validate(); err != nil {
		return domain.TicketType{}, err
	}

	now := s.clock.Now()
	lifecycle := domain.TicketTypeActive
	if spec.Draft {
		lifecycle = domain.TicketTypeDraft
	}
	currency := spec.Currency
	if currency == "" {
		currency = "USD"
	}

	tt := domain.TicketType{
		ID:          newID(),
		EventID:     eventID,
		Title:       spec.Title,
		Description: spec.Description,
		Kind:        spec.Kind,
		Price: domain.Price{
			Amount:          spec.PriceAmount,
			Currency:        currency,
			OriginalAmount:  spec.OriginalAmount,
			DiscountPercent: spec.DiscountPercent,
		},
		Capacity: domain.Capacity{
			Total:     spec.Quantity,
			Available: spec.Quantity,
		},
		Validity:   domain.Window{Start: spec.ValidFrom, End: spec.ValidUntil},
		Sales:      domain.Window{Start: spec.SaleStart, End: spec.SaleEnd},
		EarlyBird:  spec.EarlyBird,
		LastMinute: spec.LastMinute,
		Restrictions: domain.Restrictions{
			AgeMin:       spec.AgeMin,
			AgeMax:       spec.AgeMax,
			MaxPerPerson: spec.MaxPerPerson,
			RequiresID:   spec.RequiresID,
		},
		RefundPolicy: domain.RefundPolicy{
			Allowed:      spec.RefundAllowed,
			DeadlineDays: spec.RefundDeadline,
			Fee:          spec.RefundFee,
		},
		Lifecycle: lifecycle,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		if _, err := s.repo.GetEvent(txCtx, eventID); err != nil {
			return err
		}
		if err := s.repo.CreateTicketType(txCtx, tt); err != nil {
			return err
		}
		return s.reconciler.Resync(txCtx, eventID)
	})
	if err != nil {
		return domain.TicketType{}, err
	}
	return tt, nil
}

// TicketTypePatch updates mutable fields of a ticket type. Nil fields are
// left unchanged.
type TicketTypePatch struct {
	Title           *string
	Description     *string
	PriceAmount     *decimal.Decimal
	OriginalAmount  *decimal.Decimal
	DiscountPercent *int
	Quantity        *int
	ValidFrom       *time.Time
	ValidUntil      *time.Time
	SaleStart       *time.Time
	SaleEnd         *time.Time
	AgeMin          *int
	AgeMax          *int
	MaxPerPerson    *int
	RequiresID      *bool
	RefundAllowed   *bool
	RefundDeadline  *int
	RefundFee       *decimal.Decimal
}

// Revise applies a patch to a ticket type. Shrinking total capacity below
// the tickets already sold is a conflict.
func (s *CatalogService) Revise(ctx context.Context, id string, patch TicketTypePatch) (domain.TicketType, error) {
	if id == "" {
		return domain.TicketType{}, domain.ErrInvalidID
	}

	var revised domain.TicketType
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		tt, err := s.repo.GetTicketTypeForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if err := applyPatch(&tt, patch); err != nil {
			return err
		}
		tt.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateTicketType(txCtx, tt); err != nil {
			return err
		}
		revised = tt
		return s.reconciler.Resync(txCtx, tt.EventID)
	})
	if err != nil {
		return domain.TicketType{}, err
	}
	return revised, nil
}

func applyPatch(tt *domain.TicketType, patch TicketTypePatch) error {
	if patch.Title != nil {
		if *patch.Title == "" {
			return domain.ErrTitleRequired
		}
		tt.Title = *patch.Title
	}
	if patch.Description != nil {
		tt.Description = *patch.Description
	}
	if patch.PriceAmount != nil {
		if patch.PriceAmount.IsNegative() {
			return domain.ErrInvalidPrice
		}
		tt.Price.Amount = *patch.PriceAmount
	}
	if patch.OriginalAmount != nil {
		tt.Price.OriginalAmount = patch.OriginalAmount
	}
	if patch.DiscountPercent != nil {
		tt.Price.DiscountPercent = patch.DiscountPercent
	}
	if patch.Quantity != nil {
		if *patch.Quantity < 1 {
			return domain.ErrInvalidCapacity
		}
		if *patch.Quantity < tt.Capacity.Sold {
			return domain.ErrCapacityBelowSold
		}
		tt.Capacity.Total = *patch.Quantity
		tt.Capacity.Available = *patch.Quantity
	}
	if patch.ValidFrom != nil {
		tt.Validity.Start = *patch.ValidFrom
	}
	if patch.ValidUntil != nil {
		tt.Validity.End = *patch.ValidUntil
	}
	if !tt.Validity.End.After(tt.Validity.Start) {
		return domain.ErrInvalidWindow
	}
	if patch.SaleStart != nil {
		tt.Sales.Start = *patch.SaleStart
	}
	if patch.SaleEnd != nil {
		tt.Sales.End = *patch.SaleEnd
	}
	if !tt.Sales.End.After(tt.Sales.Start) {
		return domain.ErrInvalidWindow
	}
	if patch.AgeMin != nil {
		tt.Restrictions.AgeMin = patch.AgeMin
	}
	if patch.AgeMax != nil {
		tt.Restrictions.AgeMax = patch.AgeMax
	}
	if patch.MaxPerPerson != nil {
		tt.Restrictions.MaxPerPerson = *patch.MaxPerPerson
	}
	if patch.RequiresID != nil {
		tt.Restrictions.RequiresID = *patch.RequiresID
	}
	if patch.RefundAllowed != nil {
		tt.RefundPolicy.Allowed = *patch.RefundAllowed
	}
	if patch.RefundDeadline != nil {
		tt.RefundPolicy.DeadlineDays = *patch.RefundDeadline
	}
	if patch.RefundFee != nil {
		tt.RefundPolicy.Fee = *patch.RefundFee
	}
	return nil
}

// Retire removes a ticket type that never sold. Once a single ticket has
// been sold the row is kept forever; use Cancel to soft-disable it.
func (s *CatalogService) Retire(ctx context.Context, id string) error {
	if id == "" {
		return domain.ErrInvalidID
	}
	return s.repo.WithTx(ctx, func(txCtx context.Context) error {
		tt, err := s.repo.GetTicketTypeForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if tt.Capacity.Sold > 0 {
			return domain.ErrTicketTypeHasSales
		}
		if err := s.repo.DeleteTicketType(txCtx, id); err != nil {
			return err
		}
		remaining, err := s.repo.ListTicketTypesByEvent(txCtx, tt.EventID)
		if err != nil {
			return err
		}
		if len(remaining) == 0 {
			return s.reconciler.Clear(txCtx, tt.EventID)
		}
		return s.reconciler.Resync(txCtx, tt.EventID)
	})
}

// Transition moves a ticket type between explicit lifecycle states:
// activate (draft to active), pause (active to paused), resume (paused to
// active) and cancel (any state, terminal).
func (s *CatalogService) Transition(ctx context.Context, id string, target domain.TicketTypeStatus) (domain.TicketType, error) {
	if id == "" {
		return domain.TicketType{}, domain.ErrInvalidID
	}

	var updated domain.TicketType
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		tt, err := s.repo.GetTicketTypeForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if !transitionAllowed(tt.Lifecycle, target) {
			return domain.ErrInvalidTransition
		}
		tt.Lifecycle = target
		tt.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateTicketType(txCtx, tt); err != nil {
			return err
		}
		updated = tt
		return s.reconciler.Resync(txCtx, tt.EventID)
	})
	if err != nil {
		return domain.TicketType{}, err
	}
	return updated, nil
}

func transitionAllowed(from, to domain.TicketTypeStatus) bool {
	if from == domain.TicketTypeCancelled {
		return false
	}
	switch to {
	case domain.TicketTypeCancelled:
		return true
	case domain.TicketTypeActive:
		return from == domain.TicketTypeDraft || from == domain.TicketTypePaused
	case domain.TicketTypePaused:
		return from == domain.TicketTypeActive
	default:
		return false
	}
}

// Get returns a single ticket type.
func (s *CatalogService) Get(ctx context.Context, id string) (domain.TicketType, error) {
	if id == "" {
		return domain.TicketType{}, domain.ErrInvalidID
	}
	return s.repo.GetTicketType(ctx, id)
}

// ListByEvent returns the event's ticket types.
func (s *CatalogService) ListByEvent(ctx context.Context, eventID string) ([]domain.TicketType, error) {
	if eventID == "" {
		return nil, domain.ErrInvalidID
	}
	if _, err := s.repo.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return s.repo.ListTicketTypesByEvent(ctx, eventID)
}
