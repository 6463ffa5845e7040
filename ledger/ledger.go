/*
Package ledger implements the read-only client for the external order ledger.

PURPOSE:
  The upstream order-management system is the authority for orders; this
  service only reads from its MySQL reporting replica. The client composes
  AND-ed filters into one query, resolves the ledger-computed fields
  (warehouse label, delivery method, supply status inputs) and returns
  normalized rows. It never writes.

QUERY SHAPE:
  A base CTE selects the order rows under the filters (with the recency
  ORDER BY pushed inside when a limit is set), then a second CTE aggregates
  the warehouse codes of only those orders' lines. This keeps the line scan
  bounded by the selected id set instead of the whole ledger.

SEARCH CONTRACT:
  A run of digits in the search term matches the folio (numeric-equal OR text
  substring); any other text matches the customer name by substring.

ORDERING:
  Advisory only. The reconciliation engine re-sorts; see board/engine.go.

FAILURE MODE:
  Errors are returned as-is, with no retries. The engine degrades a failed
  call to an empty snapshot.
*/
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/warp/order-board/board"
)

// salesOrderKind is the document-kind discriminator for sales orders in the
// upstream schema; other kinds (quotes, invoices) share the same table.
const salesOrderKind = 2

// Client is a read-only MySQL client for the order ledger.
type Client struct {
	db  *sql.DB
	loc *time.Location
	log *logrus.Logger
}

// New opens the ledger connection. The DSN is parsed so time parsing and the
// local zone can be forced regardless of what the caller configured.
func New(dsn string, loc *time.Location, log *logrus.Logger) (*Client, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid ledger dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = loc

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build ledger connector: %w", err)
	}

	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{db: sql.OpenDB(connector), loc: loc, log: log}, nil
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	return c.db.Close()
}

// =============================================================================
// ORDERS
// =============================================================================

// FetchOrders runs one filtered ledger query and returns normalized rows with
// the computed fields resolved.
func (c *Client) FetchOrders(ctx context.Context, f board.LedgerFilter) ([]board.SourceOrder, error) {
	where := []string{"o.doc_kind = ?"}
	args := []any{salesOrderKind}

	if f.DateFrom != nil {
		where = append(where, "o.created_at >= ?")
		args = append(args, *f.DateFrom)
	}
	if f.DateTo != nil {
		where = append(where, "o.created_at < ?")
		args = append(args, *f.DateTo)
	}
	if len(f.OrderIDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(f.OrderIDs)), ",")
		where = append(where, "o.doc_id IN ("+placeholders+")")
		for _, id := range f.OrderIDs {
			args = append(args, id)
		}
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		if digits := digitRun(s); digits != "" {
			where = append(where, "(CAST(o.folio AS UNSIGNED) = ? OR o.folio LIKE ?)")
			args = append(args, digits, "%"+digits+"%")
		} else {
			where = append(where, "o.customer LIKE ?")
			args = append(args, "%"+s+"%")
		}
	}

	// Limited queries order by recency inside the CTE so the cap keeps the
	// newest orders; the unlimited case orders folio-ascending at the end.
	baseTail := ""
	if f.Limit > 0 {
		baseTail = "ORDER BY o.created_at DESC LIMIT ?"
		args = append(args, f.Limit)
	}

	query := fmt.Sprintf(`
	WITH base AS (
	  SELECT
	    o.doc_id, o.folio, o.customer, o.created_at, o.deliver_at,
	    o.notes, o.reference, o.total_units, o.pending_units,
	    COALESCE(a.name, '') AS agent
	  FROM orders o
	  LEFT JOIN agents a ON a.agent_id = o.agent_id
	  WHERE %s
	  %s
	),
	line_warehouses AS (
	  SELECT
	    l.doc_id,
	    MIN(w.code) AS min_code,
	    MAX(w.code) AS max_code
	  FROM order_lines l
	  JOIN warehouses w ON w.warehouse_id = l.warehouse_id
	  JOIN base b ON b.doc_id = l.doc_id
	  GROUP BY l.doc_id
	)
	SELECT
	  b.doc_id, b.folio, b.customer, b.created_at, b.deliver_at,
	  b.notes, b.reference, b.total_units, b.pending_units, b.agent,
	  lw.min_code, lw.max_code
	FROM base b
	LEFT JOIN line_warehouses lw ON lw.doc_id = b.doc_id
	ORDER BY
	  (b.folio REGEXP '^[0-9]+$') DESC,
	  CAST(b.folio AS UNSIGNED) ASC,
	  b.folio ASC,
	  b.doc_id ASC`, strings.Join(where, " AND "), baseTail)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger order query failed: %w", err)
	}
	defer rows.Close()

	var orders []board.SourceOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func scanOrder(rows *sql.Rows) (board.SourceOrder, error) {
	var (
		o            board.SourceOrder
		folio        sql.NullString
		customer     sql.NullString
		deliverAt    sql.NullTime
		notes        sql.NullString
		reference    sql.NullString
		totalUnits   sql.NullString
		pendingUnits sql.NullString
		minCode      sql.NullString
		maxCode      sql.NullString
	)

	err := rows.Scan(
		&o.ID, &folio, &customer, &o.CreatedAt, &deliverAt,
		&notes, &reference, &totalUnits, &pendingUnits, &o.Agent,
		&minCode, &maxCode,
	)
	if err != nil {
		return o, fmt.Errorf("failed to scan ledger order: %w", err)
	}

	o.Folio = folio.String
	o.Customer = customer.String
	o.DeliverAt = deliverAt.Time
	o.Notes = strings.TrimSpace(notes.String)
	o.Reference = reference.String
	o.TotalUnits = parseUnits(totalUnits)
	o.PendingUnits = parseUnits(pendingUnits)
	o.Delivery = board.ClassifyDelivery(o.Notes)
	o.Warehouse = warehouseLabel(minCode, maxCode)

	return o, nil
}

// warehouseLabel collapses the per-line warehouse aggregate: one shared code
// means a single-warehouse order, anything else (including no lines) is mixed.
func warehouseLabel(minCode, maxCode sql.NullString) board.Warehouse {
	if minCode.Valid && maxCode.Valid && minCode.String == maxCode.String {
		return board.SingleWarehouse(minCode.String)
	}
	return board.MixedWarehouse()
}

func parseUnits(s sql.NullString) decimal.Decimal {
	if !s.Valid {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// digitRun strips everything but digits from the search term. Empty result
// means the term is a customer-name search.
func digitRun(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// =============================================================================
// ITEMS
// =============================================================================

// FetchItems returns the order's item detail, ordered by product code.
func (c *Client) FetchItems(ctx context.Context, orderID int64) ([]board.OrderItem, error) {
	query := `
	SELECT p.code, p.name, w.code, l.units
	FROM order_lines l
	JOIN products p ON p.product_id = l.product_id
	JOIN warehouses w ON w.warehouse_id = l.warehouse_id
	WHERE l.doc_id = ?
	ORDER BY p.code ASC`

	rows, err := c.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("ledger item query failed: %w", err)
	}
	defer rows.Close()

	var items []board.OrderItem
	for rows.Next() {
		var (
			item  board.OrderItem
			units sql.NullString
		)
		if err := rows.Scan(&item.Code, &item.Description, &item.WarehouseCode, &units); err != nil {
			return nil, fmt.Errorf("failed to scan ledger item: %w", err)
		}
		item.Units = parseUnits(units)
		items = append(items, item)
	}
	return items, rows.Err()
}
