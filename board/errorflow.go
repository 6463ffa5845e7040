/*
errorflow.go - Guarded error-escalation state machine

PURPOSE:
  Toggles and edits the error sub-record on an order's overlay. One guard
  covers every transition: mutations are rejected with ErrNotFinalized unless
  the order is locally finalized. No partial mutation ever occurs on a
  rejected call.

STATE MACHINE:
  inactive --toggle--> active (owner/resolved/comment keep prior values,
                               which are the empty baseline unless details
                               were saved while active)
  active --toggle--> inactive (owner/resolved/comment cleared)
  active/inactive --save-details--> active with the given fields

Both operations re-run the reconciliation merge for the affected id, so the
caller always gets a freshly derived card.
*/
package board

import (
	"context"
	"strconv"
	"strings"
)

// ErrorWorkflow is the guarded controller over the overlay's error fields.
type ErrorWorkflow struct {
	overlay OverlayStore
	parties PartyDirectory
	engine  *Engine
}

// NewErrorWorkflow wires the controller against the same stores the engine
// uses, so status derivation stays consistent.
func NewErrorWorkflow(overlay OverlayStore, parties PartyDirectory, engine *Engine) *ErrorWorkflow {
	return &ErrorWorkflow{overlay: overlay, parties: parties, engine: engine}
}

// Toggle flips the error flag. Deactivating clears owner, resolved flag and
// comment back to the empty baseline; re-activating restores nothing.
func (w *ErrorWorkflow) Toggle(ctx context.Context, orderID int64, q ViewQuery) (*PresentationCard, error) {
	ov, err := w.overlay.GetOrCreate(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !ov.Finalized {
		return nil, ErrNotFinalized
	}

	ov.HasError = !ov.HasError
	if !ov.HasError {
		ov.ClearError()
	}

	if err := w.overlay.SaveBatch(ctx, []*OverlayRecord{ov}); err != nil {
		return nil, err
	}
	return w.engine.Card(ctx, orderID, q)
}

// SaveDetails stores the error fields and forces the error active (saving
// details implies an active error). ownerRef is resolved to a party only when
// it is a well-formed positive integer naming an active party; anything else
// clears the owner. The comment is trimmed of surrounding whitespace.
func (w *ErrorWorkflow) SaveDetails(ctx context.Context, orderID int64, ownerRef string, resolved bool, comment string, q ViewQuery) (*PresentationCard, error) {
	ov, err := w.overlay.GetOrCreate(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !ov.Finalized {
		return nil, ErrNotFinalized
	}

	ov.HasError = true
	ov.ErrorOwnerID = nil
	if id, ok := parsePositiveID(ownerRef); ok {
		p, err := w.parties.GetActiveParty(ctx, id)
		if err != nil {
			return nil, err
		}
		if p != nil {
			ov.ErrorOwnerID = &p.ID
		}
	}
	ov.ErrorResolved = resolved
	ov.ErrorComment = strings.TrimSpace(comment)

	if err := w.overlay.SaveBatch(ctx, []*OverlayRecord{ov}); err != nil {
		return nil, err
	}
	return w.engine.Card(ctx, orderID, q)
}

func parsePositiveID(raw string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
