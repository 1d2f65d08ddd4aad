package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gatherhq/ticketing/internal/app"
	"github.com/gatherhq/ticketing/internal/domain"
)

// CatalogService is the minimal interface needed by the ticket type
// endpoints.
type CatalogService interface {
	Define(ctx context.Context, eventID string, spec app.TicketTypeSpec) (domain.TicketType, error)
	Revise(ctx context.Context, id string, patch app.TicketTypePatch) (domain.TicketType, error)
	Retire(ctx context.Context, id string) error
	Transition(ctx context.Context, id string, target domain.TicketTypeStatus) (domain.TicketType, error)
	Get(ctx context.Context, id string) (domain.TicketType, error)
	ListByEvent(ctx context.Context, eventID string) ([]domain.TicketType, error)
}

func serveEventTicketTypes(w http.ResponseWriter, r *http.Request, svc CatalogService, eventID string) {
	switch r.Method {
	case http.MethodGet:
		types, err := svc.ListByEvent(r.Context(), eventID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		now := time.Now().UTC()
		resp := make([]ticketTypeResponse, 0, len(types))
		for _, tt := range types {
			resp = append(resp, newTicketTypeResponse(tt, now))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	case http.MethodPost:
		var req ticketTypeRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		tt, err := svc.Define(r.Context(), eventID, req.toSpec())
		if err != nil {
			writeServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(newTicketTypeResponse(tt, time.Now().UTC()))
	default:
		writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
	}
}

// HandleTicketTypes serves single ticket type reads, revisions, retirement
// and lifecycle transitions.
func HandleTicketTypes(svc CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, action, ok := parseTicketTypePath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		if action != "" {
			serveTicketTypeTransition(w, r, svc, id, action)
			return
		}

		switch r.Method {
		case http.MethodGet:
			tt, err := svc.Get(r.Context(), id)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(newTicketTypeResponse(tt, time.Now().UTC()))
		case http.MethodPatch:
			var req ticketTypePatchRequest
			dec := json.NewDecoder(r.Body)
			dec.DisallowUnknownFields()
			if err := dec.Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
				return
			}

			tt, err := svc.Revise(r.Context(), id, req.toPatch())
			if err != nil {
				writeServiceError(w, err)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(newTicketTypeResponse(tt, time.Now().UTC()))
		case http.MethodDelete:
			if err := svc.Retire(r.Context(), id); err != nil {
				writeServiceError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		}
	}
}

func serveTicketTypeTransition(w http.ResponseWriter, r *http.Request, svc CatalogService, id, action string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		return
	}

	var target domain.TicketTypeStatus
	switch action {
	case "activate", "resume":
		target = domain.TicketTypeActive
	case "pause":
		target = domain.TicketTypePaused
	case "cancel":
		target = domain.TicketTypeCancelled
	default:
		writeError(w, http.StatusNotFound, codeNotFound, "not found")
		return
	}

	tt, err := svc.Transition(r.Context(), id, target)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(newTicketTypeResponse(tt, time.Now().UTC()))
}

func parseTicketTypePath(path string) (id, action string, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || len(parts) > 3 || parts[0] != "ticket-types" || parts[1] == "" {
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

type ticketTypeRequest struct {
	Title           string           `json:"title"`
	Description     string           `json:"description,omitempty"`
	Kind            string           `json:"kind,omitempty"`
	Price           decimal.Decimal  `json:"price"`
	Currency        string           `json:"currency,omitempty"`
	OriginalPrice   *decimal.Decimal `json:"original_price,omitempty"`
	DiscountPercent *int             `json:"discount_percent,omitempty"`
	Quantity        int              `json:"quantity"`
	ValidFrom       time.Time        `json:"valid_from"`
	ValidUntil      time.Time        `json:"valid_until"`
	SaleStart       time.Time        `json:"sale_start"`
	SaleEnd         time.Time        `json:"sale_end"`
	EarlyBird       bool             `json:"early_bird,omitempty"`
	LastMinute      bool             `json:"last_minute,omitempty"`
	AgeMin          *int             `json:"age_min,omitempty"`
	AgeMax          *int             `json:"age_max,omitempty"`
	MaxPerPerson    int              `json:"max_per_person,omitempty"`
	RequiresID      bool             `json:"requires_id,omitempty"`
	RefundAllowed   bool             `json:"refund_allowed,omitempty"`
	RefundDeadline  int              `json:"refund_deadline_days,omitempty"`
	RefundFee       decimal.Decimal  `json:"refund_fee,omitempty"`
	Draft           bool             `json:"draft,omitempty"`
}

func (r ticketTypeRequest) toSpec() app.TicketTypeSpec {
	return app.TicketTypeSpec{
		Title:           r.Title,
		Description:     r.Description,
		Kind:            r.Kind,
		PriceAmount:     r.Price,
		Currency:        r.Currency,
		OriginalAmount:  r.OriginalPrice,
		DiscountPercent: r.DiscountPercent,
		Quantity:        r.Quantity,
		ValidFrom:       r.ValidFrom,
		ValidUntil:      r.ValidUntil,
		SaleStart:       r.SaleStart,
		SaleEnd:         r.SaleEnd,
		EarlyBird:       r.EarlyBird,
		LastMinute:      r.LastMinute,
		AgeMin:          r.AgeMin,
		AgeMax:          r.AgeMax,
		MaxPerPerson:    r.MaxPerPerson,
		RequiresID:      r.RequiresID,
		RefundAllowed:   r.RefundAllowed,
		RefundDeadline:  r.RefundDeadline,
		RefundFee:       r.RefundFee,
		Draft:           r.Draft,
	}
}

type ticketTypePatchRequest struct {
	Title           *string          `json:"title,omitempty"`
	Description     *string          `json:"description,omitempty"`
	Price           *decimal.Decimal `json:"price,omitempty"`
	OriginalPrice   *decimal.Decimal `json:"original_price,omitempty"`
	DiscountPercent *int             `json:"discount_percent,omitempty"`
	Quantity        *int             `json:"quantity,omitempty"`
	ValidFrom       *time.Time       `json:"valid_from,omitempty"`
	ValidUntil      *time.Time       `json:"valid_until,omitempty"`
	SaleStart       *time.Time       `json:"sale_start,omitempty"`
	SaleEnd         *time.Time       `json:"sale_end,omitempty"`
	AgeMin          *int             `json:"age_min,omitempty"`
	AgeMax          *int             `json:"age_max,omitempty"`
	MaxPerPerson    *int             `json:"max_per_person,omitempty"`
	RequiresID      *bool            `json:"requires_id,omitempty"`
	RefundAllowed   *bool            `json:"refund_allowed,omitempty"`
	RefundDeadline  *int             `json:"refund_deadline_days,omitempty"`
	RefundFee       *decimal.Decimal `json:"refund_fee,omitempty"`
}

func (r ticketTypePatchRequest) toPatch() app.TicketTypePatch {
	return app.TicketTypePatch{
		Title:           r.Title,
		Description:     r.Description,
		PriceAmount:     r.Price,
		OriginalAmount:  r.OriginalPrice,
		DiscountPercent: r.DiscountPercent,
		Quantity:        r.Quantity,
		ValidFrom:       r.ValidFrom,
		ValidUntil:      r.ValidUntil,
		SaleStart:       r.SaleStart,
		SaleEnd:         r.SaleEnd,
		AgeMin:          r.AgeMin,
		AgeMax:          r.AgeMax,
		MaxPerPerson:    r.MaxPerPerson,
		RequiresID:      r.RequiresID,
		RefundAllowed:   r.RefundAllowed,
		RefundDeadline:  r.RefundDeadline,
		RefundFee:       r.RefundFee,
	}
}

type ticketTypeResponse struct {
	ID              string           `json:"id"`
	EventID         string           `json:"event_id"`
	Title           string           `json:"title"`
	Description     string           `json:"description,omitempty"`
	Kind            string           `json:"kind,omitempty"`
	Price           decimal.Decimal  `json:"price"`
	Currency        string           `json:"currency"`
	OriginalPrice   *decimal.Decimal `json:"original_price,omitempty"`
	DiscountPercent *int             `json:"discount_percent,omitempty"`
	Quantity        int              `json:"quantity"`
	Available       int              `json:"available"`
	Sold            int              `json:"sold"`
	Reserved        int              `json:"reserved"`
	Remaining       int              `json:"remaining"`
	ValidFrom       time.Time        `json:"valid_from"`
	ValidUntil      time.Time        `json:"valid_until"`
	SaleStart       time.Time        `json:"sale_start"`
	SaleEnd         time.Time        `json:"sale_end"`
	EarlyBird       bool             `json:"early_bird"`
	LastMinute      bool             `json:"last_minute"`
	AgeMin          *int             `json:"age_min,omitempty"`
	AgeMax          *int             `json:"age_max,omitempty"`
	MaxPerPerson    int              `json:"max_per_person,omitempty"`
	RequiresID      bool             `json:"requires_id"`
	RefundAllowed   bool             `json:"refund_allowed"`
	RefundDeadline  int              `json:"refund_deadline_days,omitempty"`
	RefundFee       decimal.Decimal  `json:"refund_fee"`
	Status          string           `json:"status"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

func newTicketTypeResponse(tt domain.TicketType, now time.Time) ticketTypeResponse {
	return ticketTypeResponse{
		ID:              tt.ID,
		EventID:         tt.EventID,
		Title:           tt.Title,
		Description:     tt.Description,
		Kind:            tt.Kind,
		Price:           tt.Price.Amount,
		Currency:        tt.Price.Currency,
		OriginalPrice:   tt.Price.OriginalAmount,
		DiscountPercent: tt.Price.DiscountPercent,
		Quantity:        tt.Capacity.Total,
		Available:       tt.Capacity.Available,
		Sold:            tt.Capacity.Sold,
		Reserved:        tt.Capacity.Reserved,
		Remaining:       tt.Capacity.Remaining(),
		ValidFrom:       tt.Validity.Start,
		ValidUntil:      tt.Validity.End,
		SaleStart:       tt.Sales.Start,
		SaleEnd:         tt.Sales.End,
		EarlyBird:       tt.EarlyBird,
		LastMinute:      tt.LastMinute,
		AgeMin:          tt.Restrictions.AgeMin,
		AgeMax:          tt.Restrictions.AgeMax,
		MaxPerPerson:    tt.Restrictions.MaxPerPerson,
		RequiresID:      tt.Restrictions.RequiresID,
		RefundAllowed:   tt.RefundPolicy.Allowed,
		RefundDeadline:  tt.RefundPolicy.DeadlineDays,
		RefundFee:       tt.RefundPolicy.Fee,
		Status:          string(tt.EffectiveStatus(now)),
		CreatedAt:       tt.CreatedAt,
		UpdatedAt:       tt.UpdatedAt,
	}
}
