/*
types.go - Core domain types for the order board

PURPOSE:
  Defines the three shapes the board works with:
  - SourceOrder:      a row fetched from the external order ledger (ephemeral)
  - OverlayRecord:    locally owned workflow state per order (persisted)
  - PresentationCard: the merged record served to the UI (ephemeral)

OWNERSHIP:
  The ledger is authoritative for everything on SourceOrder. The overlay is
  authoritative for finalization, the error sub-record, and the first-seen
  timestamp. Neither side ever writes the other's fields.

SEE ALSO:
  - engine.go: merges SourceOrder + OverlayRecord into PresentationCard
  - store.go: storage interfaces for OverlayRecord and the ledger
*/
package board

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// VIEW MODE AND STATUS
// =============================================================================

// ViewMode selects which partition of the board a query targets.
type ViewMode string

const (
	// ViewRelevant shows orders still active today: not finalized, or
	// finalized during the current calendar day.
	ViewRelevant ViewMode = "relevant"

	// ViewPast shows orders finalized on a prior calendar day.
	ViewPast ViewMode = "past"
)

// DisplayStatus is the status shown on a card. FINALIZED is local state and
// always wins over the ledger's supply status.
type DisplayStatus string

const (
	StatusPending   DisplayStatus = "PENDING"
	StatusFulfilled DisplayStatus = "FULFILLED"
	StatusFinalized DisplayStatus = "FINALIZED"
)

// =============================================================================
// LEDGER-COMPUTED FIELDS
// =============================================================================

// DeliveryMethod is classified from the order's free-text notes.
type DeliveryMethod string

const (
	DeliveryParcel       DeliveryMethod = "PARCEL"
	DeliveryCourier      DeliveryMethod = "COURIER"
	DeliveryBranchPickup DeliveryMethod = "BRANCH_PICKUP"
	DeliveryUnknown      DeliveryMethod = "UNKNOWN"
)

// ClassifyDelivery inspects notes for the literal marker characters used by
// sales staff: '1' means parcel, '2' courier, '3' branch pickup. First match
// wins, checked in that fixed order.
func ClassifyDelivery(notes string) DeliveryMethod {
	switch {
	case strings.ContainsRune(notes, '1'):
		return DeliveryParcel
	case strings.ContainsRune(notes, '2'):
		return DeliveryCourier
	case strings.ContainsRune(notes, '3'):
		return DeliveryBranchPickup
	default:
		return DeliveryUnknown
	}
}

// Warehouse is a tagged variant: either every item of the order ships from a
// single warehouse, or the order is mixed. The display string is decoded only
// at the presentation boundary.
type Warehouse struct {
	Mixed bool
	Code  string
}

func SingleWarehouse(code string) Warehouse { return Warehouse{Code: code} }
func MixedWarehouse() Warehouse             { return Warehouse{Mixed: true} }

// Display returns the UI label for the warehouse.
func (w Warehouse) Display() string {
	if w.Mixed {
		return "Mixed"
	}
	return w.Code
}

// =============================================================================
// SOURCE ORDER (ledger row, ephemeral)
// =============================================================================

// SourceOrder is one row from the external order ledger, with the
// ledger-computed fields already resolved. Regenerated on every fetch, never
// persisted here.
type SourceOrder struct {
	ID           int64
	Folio        string
	Customer     string
	CreatedAt    time.Time
	DeliverAt    time.Time
	Notes        string
	Reference    string
	TotalUnits   decimal.Decimal
	PendingUnits decimal.Decimal
	Agent        string
	Warehouse    Warehouse
	Delivery     DeliveryMethod
}

// SupplyStatus derives the ledger-side fulfillment status: PENDING while any
// units remain to be picked, FULFILLED otherwise.
func (o SourceOrder) SupplyStatus() DisplayStatus {
	if o.PendingUnits.IsPositive() {
		return StatusPending
	}
	return StatusFulfilled
}

// =============================================================================
// OVERLAY RECORD (persisted workflow state)
// =============================================================================

// OverlayRecord is the locally owned workflow state for one order. Created
// lazily the first time an order is observed or targeted by a workflow action;
// never deleted by normal operation.
//
// Invariants:
//   - FinalizedAt is non-nil iff Finalized is true.
//   - FirstSeenAt is assigned exactly once and never reassigned.
//   - When HasError is false, owner/resolved/comment hold their empty baseline.
type OverlayRecord struct {
	OrderID       int64
	Folio         string // normalized folio cache, for past-view recovery
	Finalized     bool
	FinalizedAt   *time.Time
	FirstSeenAt   *time.Time
	HasError      bool
	ErrorOwnerID  *int64
	ErrorResolved bool
	ErrorComment  string
	UpdatedAt     time.Time
}

// ClearError returns the error sub-record to its empty baseline.
func (r *OverlayRecord) ClearError() {
	r.ErrorOwnerID = nil
	r.ErrorResolved = false
	r.ErrorComment = ""
}

// ResponsibleParty is an employee who can own an escalated order error. Only
// active parties are selectable for new assignments; an already-assigned party
// that is later deactivated remains referenced until cleared.
type ResponsibleParty struct {
	ID     int64
	Name   string
	Active bool
}

// =============================================================================
// PRESENTATION CARD (merge output, ephemeral)
// =============================================================================

// PresentationCard is one merged order as served to the board UI.
type PresentationCard struct {
	OrderID     int64
	Folio       Folio
	Customer    string
	CreatedAt   time.Time // ledger calendar date + first-seen clock time
	FinalizedAt *time.Time
	Agent       string
	Warehouse   Warehouse
	DeliverAt   time.Time
	Delivery    DeliveryMethod
	Status      DisplayStatus
	Finalized   bool

	// Error sub-record, copied from the overlay.
	HasError      bool
	ErrorOwner    string // party name, empty when unassigned
	ErrorResolved bool
	ErrorComment  string
}

// OrderItem is one line of an order's item detail, fetched on demand.
type OrderItem struct {
	Code          string
	Description   string
	WarehouseCode string
	Units         decimal.Decimal
}

// StatusCounts are the per-status totals shown as board KPIs.
type StatusCounts struct {
	Pending   int
	Fulfilled int
	Finalized int
}
