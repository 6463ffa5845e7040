/*
store.go - Storage and upstream interfaces for the board core

PURPOSE:
  Declares what the engine needs from its collaborators without binding to an
  implementation:
  - OverlayStore:    persisted per-order workflow state
  - PartyDirectory:  responsible-party lookup for the error workflow
  - LedgerClient:    read-only queries against the external order ledger

IMPLEMENTATIONS:
  store/sqlite:  OverlayStore + PartyDirectory on SQLite (production)
  board/store:   in-memory OverlayStore + PartyDirectory (tests/dev)
  ledger:        LedgerClient on the upstream MySQL read replica

CONCURRENCY:
  Every call is request-scoped and blocking. Get-or-create races are resolved
  by the store's unique key on order id: losers re-read instead of inserting a
  duplicate. SaveBatch must never clobber an existing non-null first_seen_at;
  the first writer's value is authoritative.
*/
package board

import (
	"context"
	"time"
)

// =============================================================================
// OVERLAY STORE
// =============================================================================

// OverlayStore persists OverlayRecords. No business logic lives behind this
// interface beyond referential integrity on the error-owner reference.
type OverlayStore interface {
	// GetOrCreate returns the record for the order, atomically creating a
	// default one (all flags false, timestamps nil) if none exists. Concurrent
	// calls for the same id must not create duplicates.
	GetOrCreate(ctx context.Context, orderID int64) (*OverlayRecord, error)

	// LoadMany bulk-fetches records. Ids with no record are absent from the
	// result; the engine treats absence as "not yet seen".
	LoadMany(ctx context.Context, orderIDs []int64) (map[int64]*OverlayRecord, error)

	// SaveBatch upserts the given records idempotently. An existing non-nil
	// first_seen_at is preserved even if the incoming record carries a
	// different value.
	SaveBatch(ctx context.Context, records []*OverlayRecord) error

	// ListFinalizedBefore returns records with finalized = true and a
	// finalization timestamp strictly before cutoff, most recent first,
	// capped at limit. This is the past view's identifier source.
	ListFinalizedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*OverlayRecord, error)
}

// PartyDirectory resolves responsible parties for the error workflow.
type PartyDirectory interface {
	// ListActiveParties returns active parties ordered by name.
	ListActiveParties(ctx context.Context) ([]ResponsibleParty, error)

	// GetParty returns a party by id regardless of its active flag, or
	// (nil, nil) when absent.
	GetParty(ctx context.Context, id int64) (*ResponsibleParty, error)

	// GetActiveParty returns the party only if it exists and is active, or
	// (nil, nil) otherwise.
	GetActiveParty(ctx context.Context, id int64) (*ResponsibleParty, error)

	// SaveParty creates or updates a party. On create the assigned id is
	// written back to p.
	SaveParty(ctx context.Context, p *ResponsibleParty) error
}

// =============================================================================
// LEDGER CLIENT
// =============================================================================

// LedgerFilter is the query contract of the external ledger. Filters compose
// with AND; zero values mean "no restriction".
type LedgerFilter struct {
	DateFrom *time.Time // creation date lower bound (inclusive)
	DateTo   *time.Time // creation date upper bound (exclusive)
	Search   string     // digits match folio, other text matches customer
	Limit    int        // 0 = unbounded
	OrderIDs []int64    // restrict to exactly this id set (past view path)
}

// LedgerClient issues read-only queries against the external order ledger.
// Result ordering is advisory; callers needing deterministic order re-sort.
// Calls are synchronous with no retry policy.
type LedgerClient interface {
	FetchOrders(ctx context.Context, f LedgerFilter) ([]SourceOrder, error)

	// FetchItems returns the order's item detail, ordered by product code.
	FetchItems(ctx context.Context, orderID int64) ([]OrderItem, error)
}
