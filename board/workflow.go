/*
workflow.go - Single-order operations layered on the reconciliation merge

Every mutation here concludes by re-running the engine's merge for the
affected identifier, so callers always observe a freshly derived card and
never a stale cached one.
*/
package board

import (
	"context"
	"sort"
	"strconv"
)

// Card re-runs the merge under the given filters and returns the one card for
// orderID, or ErrOrderNotFound when the order is absent from that view.
func (e *Engine) Card(ctx context.Context, orderID int64, q ViewQuery) (*PresentationCard, error) {
	res, err := e.BuildView(ctx, q)
	if err != nil {
		return nil, err
	}
	for i := range res.Cards {
		if res.Cards[i].OrderID == orderID {
			return &res.Cards[i], nil
		}
	}
	return nil, ErrOrderNotFound
}

// ToggleFinalize flips the local finalization state:
//   - finalized  -> reopened (finalization timestamp cleared)
//   - otherwise  -> finalized now
//
// The ledger is never touched. Returns the refreshed card; an order that left
// the current view after the toggle surfaces as ErrOrderNotFound.
func (e *Engine) ToggleFinalize(ctx context.Context, orderID int64, q ViewQuery) (*PresentationCard, error) {
	ov, err := e.overlay.GetOrCreate(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if ov.Finalized {
		ov.Finalized = false
		ov.FinalizedAt = nil
	} else {
		t := e.cfg.Now()
		ov.Finalized = true
		ov.FinalizedAt = &t
	}

	if err := e.overlay.SaveBatch(ctx, []*OverlayRecord{ov}); err != nil {
		return nil, err
	}
	return e.Card(ctx, orderID, q)
}

// Items returns the order's item detail. A ledger failure degrades to an
// empty list, matching BuildView's availability stance.
func (e *Engine) Items(ctx context.Context, orderID int64) []OrderItem {
	items, err := e.ledger.FetchItems(ctx, orderID)
	if err != nil {
		e.log.WithError(err).WithField("order_id", orderID).Warn("ledger item fetch failed")
		return nil
	}
	return items
}

// PrintSheet is a printable rendition of one order: a direct by-id ledger
// fetch (bypassing the board filters) with the overlay's first-seen and
// finalization timestamps taking precedence over the ledger's, and items
// sorted for the picking floor.
type PrintSheet struct {
	Card  PresentationCard
	Items []OrderItem
}

// BuildPrintSheet returns the print payload for one order, or
// ErrOrderNotFound when the ledger does not know the id.
func (e *Engine) BuildPrintSheet(ctx context.Context, orderID int64) (*PrintSheet, error) {
	rows, err := e.ledger.FetchOrders(ctx, LedgerFilter{OrderIDs: []int64{orderID}})
	if err != nil {
		e.log.WithError(err).WithField("order_id", orderID).Warn("ledger fetch failed for print sheet")
		return nil, ErrOrderNotFound
	}
	if len(rows) == 0 {
		return nil, ErrOrderNotFound
	}
	r := rows[0]

	existing, err := e.overlay.LoadMany(ctx, []int64{orderID})
	if err != nil {
		return nil, err
	}

	card := PresentationCard{
		OrderID:   r.ID,
		Folio:     ParseFolio(r.Folio),
		Customer:  r.Customer,
		CreatedAt: r.CreatedAt,
		Agent:     r.Agent,
		Warehouse: r.Warehouse,
		DeliverAt: r.DeliverAt,
		Delivery:  r.Delivery,
		Status:    r.SupplyStatus(),
	}
	if ov := existing[orderID]; ov != nil {
		// The sheet shows when the order entered this system, not the
		// ledger's midnight-only date.
		if ov.FirstSeenAt != nil {
			card.CreatedAt = ov.FirstSeenAt.In(e.cfg.Location)
		}
		card.Finalized = ov.Finalized
		if ov.Finalized {
			card.Status = StatusFinalized
			card.FinalizedAt = ov.FinalizedAt
		}
		card.HasError = ov.HasError
		card.ErrorResolved = ov.ErrorResolved
		card.ErrorComment = ov.ErrorComment
		card.ErrorOwner = e.ownerName(ctx, ov.ErrorOwnerID, map[int64]string{})
	}

	items := e.Items(ctx, orderID)
	sortItemsForPicking(items)

	return &PrintSheet{Card: card, Items: items}, nil
}

// sortItemsForPicking orders items by warehouse (numeric ascending, text and
// missing codes last) then product code, so pickers walk warehouses in order.
func sortItemsForPicking(items []OrderItem) {
	sort.Slice(items, func(i, j int) bool {
		wi, wj := warehouseSortKey(items[i].WarehouseCode), warehouseSortKey(items[j].WarehouseCode)
		if wi != wj {
			return wi < wj
		}
		return items[i].Code < items[j].Code
	})
}

func warehouseSortKey(code string) int64 {
	if n, err := strconv.ParseInt(code, 10, 64); err == nil {
		return n
	}
	return folioSentinel
}
