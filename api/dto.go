/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupling the internal
  domain model from the external contract. The Warehouse tagged variant and
  the normalized Folio are decoded to display text here, at the boundary.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers
*/
package api

import (
	"time"

	"github.com/warp/order-board/board"
)

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// CardDTO is one merged order card.
type CardDTO struct {
	OrderID       int64   `json:"order_id"`
	Folio         string  `json:"folio"`
	Customer      string  `json:"customer"`
	CreatedAt     string  `json:"created_at"`
	FinalizedAt   *string `json:"finalized_at,omitempty"`
	Agent         string  `json:"agent"`
	Warehouse     string  `json:"warehouse"`
	DeliverAt     string  `json:"deliver_at,omitempty"`
	Delivery      string  `json:"delivery_method"`
	Status        string  `json:"status"`
	Finalized     bool    `json:"finalized"`
	HasError      bool    `json:"has_error"`
	ErrorOwner    string  `json:"error_owner,omitempty"`
	ErrorResolved bool    `json:"error_resolved"`
	ErrorComment  string  `json:"error_comment,omitempty"`
}

// CountsDTO are the KPI totals per display status.
type CountsDTO struct {
	Pending   int `json:"pending"`
	Fulfilled int `json:"fulfilled"`
	Finalized int `json:"finalized"`
}

// BoardResponse is the dashboard payload: ordered cards plus KPI counts.
type BoardResponse struct {
	Cards       []CardDTO `json:"cards"`
	Counts      CountsDTO `json:"counts"`
	GeneratedAt string    `json:"generated_at"`
}

// ItemDTO is one order line in the detail/print views.
type ItemDTO struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Warehouse   string `json:"warehouse"`
	Units       string `json:"units"`
}

// DetailResponse is the order detail payload.
type DetailResponse struct {
	Card    *CardDTO   `json:"card"`
	Items   []ItemDTO  `json:"items"`
	Parties []PartyDTO `json:"parties"`
}

// CardResponse wraps a single refreshed card. The card is null when the order
// left the current view after a mutation.
type CardResponse struct {
	Card *CardDTO `json:"card"`
}

// PrintResponse is the printable order sheet.
type PrintResponse struct {
	Card  CardDTO   `json:"card"`
	Items []ItemDTO `json:"items"`
}

// PartyDTO represents a responsible party.
type PartyDTO struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// REQUEST TYPES
// =============================================================================

// SaveErrorRequest carries the error sub-record edits. Owner stays a string:
// anything that is not a well-formed positive integer clears the assignment.
type SaveErrorRequest struct {
	Owner    string `json:"owner"`
	Resolved bool   `json:"resolved"`
	Comment  string `json:"comment"`
}

// CreatePartyRequest creates a responsible party.
type CreatePartyRequest struct {
	Name   string `json:"name"`
	Active *bool  `json:"active,omitempty"` // default true
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toCardDTO(c *board.PresentationCard) *CardDTO {
	if c == nil {
		return nil
	}
	dto := &CardDTO{
		OrderID:       c.OrderID,
		Folio:         c.Folio.String(),
		Customer:      c.Customer,
		CreatedAt:     c.CreatedAt.Format(time.RFC3339),
		Agent:         c.Agent,
		Warehouse:     c.Warehouse.Display(),
		Delivery:      string(c.Delivery),
		Status:        string(c.Status),
		Finalized:     c.Finalized,
		HasError:      c.HasError,
		ErrorOwner:    c.ErrorOwner,
		ErrorResolved: c.ErrorResolved,
		ErrorComment:  c.ErrorComment,
	}
	if c.FinalizedAt != nil {
		s := c.FinalizedAt.Format(time.RFC3339)
		dto.FinalizedAt = &s
	}
	if !c.DeliverAt.IsZero() {
		dto.DeliverAt = c.DeliverAt.Format(time.RFC3339)
	}
	return dto
}

func toCardDTOs(cards []board.PresentationCard) []CardDTO {
	dtos := make([]CardDTO, len(cards))
	for i := range cards {
		dtos[i] = *toCardDTO(&cards[i])
	}
	return dtos
}

func toItemDTOs(items []board.OrderItem) []ItemDTO {
	dtos := make([]ItemDTO, len(items))
	for i, item := range items {
		dtos[i] = ItemDTO{
			Code:        item.Code,
			Description: item.Description,
			Warehouse:   item.WarehouseCode,
			Units:       item.Units.String(),
		}
	}
	return dtos
}

func toPartyDTOs(parties []board.ResponsibleParty) []PartyDTO {
	dtos := make([]PartyDTO, len(parties))
	for i, p := range parties {
		dtos[i] = PartyDTO{ID: p.ID, Name: p.Name, Active: p.Active}
	}
	return dtos
}
