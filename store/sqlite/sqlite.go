/*
Package sqlite provides the SQLite-backed OverlayStore and PartyDirectory.

PURPOSE:
  Persists the locally owned workflow state (overlay records and responsible
  parties). The external order ledger is NOT stored here; this database only
  holds what the ledger has no concept of.

INTERFACES IMPLEMENTED:
  board.OverlayStore:    per-order workflow records
  board.PartyDirectory:  error-owner lookups

KEY TABLES:
  overlay_orders: one row per observed order id (unique key on order_id)
  parties:        responsible parties for the error workflow

CONCURRENCY:
  Get-or-create races are resolved by the unique key: the insert is
  INSERT ... ON CONFLICT DO NOTHING, and every caller re-reads afterwards, so
  the losing writer observes the winner's row. Upserts preserve an existing
  non-null first_seen_at via COALESCE - the first writer's timestamp is
  authoritative.

WAL MODE:
  SQLite is opened with WAL for better concurrency: multiple readers don't
  block and a single writer at a time suffices for the board's traffic.

USAGE:
  store, err := sqlite.New("./data/board.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/order-board/board"
)

// Store implements board.OverlayStore and board.PartyDirectory on SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS parties (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		active INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS overlay_orders (
		order_id INTEGER PRIMARY KEY,
		folio TEXT NOT NULL DEFAULT '',
		finalized INTEGER NOT NULL DEFAULT 0,
		finalized_at TEXT,
		first_seen_at TEXT,
		has_error INTEGER NOT NULL DEFAULT 0,
		error_owner_id INTEGER REFERENCES parties(id) ON DELETE SET NULL,
		error_resolved INTEGER NOT NULL DEFAULT 0,
		error_comment TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_overlay_folio
		ON overlay_orders(folio);

	-- Past-view source query: finalized records by finalization time
	CREATE INDEX IF NOT EXISTS idx_overlay_finalized_at
		ON overlay_orders(finalized, finalized_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// OVERLAY STORE (board.OverlayStore interface)
// =============================================================================

// GetOrCreate returns the record for the order, creating the default row if
// none exists. The unique key on order_id makes concurrent creators converge
// on one row; everyone re-reads after the insert attempt.
func (s *Store) GetOrCreate(ctx context.Context, orderID int64) (*board.OverlayRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO overlay_orders (order_id, updated_at) VALUES (?, ?)
		 ON CONFLICT(order_id) DO NOTHING`,
		orderID, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create overlay record: %w", err)
	}

	rows, err := s.queryRecords(ctx, selectRecord+` WHERE order_id = ?`, orderID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("overlay record %d missing after insert", orderID)
	}
	return rows[0], nil
}

// LoadMany bulk-fetches records. Ids with no record are absent from the map.
func (s *Store) LoadMany(ctx context.Context, orderIDs []int64) (map[int64]*board.OverlayRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[int64]*board.OverlayRecord, len(orderIDs))
	if len(orderIDs) == 0 {
		return result, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(orderIDs)), ",")
	args := make([]any, len(orderIDs))
	for i, id := range orderIDs {
		args[i] = id
	}

	rows, err := s.queryRecords(ctx,
		selectRecord+` WHERE order_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	for _, rec := range rows {
		result[rec.OrderID] = rec
	}
	return result, nil
}

// SaveBatch upserts the records in one transaction. first_seen_at is written
// through COALESCE so an existing non-null value is never overwritten.
func (s *Store) SaveBatch(ctx context.Context, records []*board.OverlayRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO overlay_orders
		(order_id, folio, finalized, finalized_at, first_seen_at,
		 has_error, error_owner_id, error_resolved, error_comment, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(order_id) DO UPDATE SET
			folio          = excluded.folio,
			finalized      = excluded.finalized,
			finalized_at   = excluded.finalized_at,
			first_seen_at  = COALESCE(overlay_orders.first_seen_at, excluded.first_seen_at),
			has_error      = excluded.has_error,
			error_owner_id = excluded.error_owner_id,
			error_resolved = excluded.error_resolved,
			error_comment  = excluded.error_comment,
			updated_at     = excluded.updated_at
	`

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, rec := range records {
		_, err := tx.ExecContext(ctx, query,
			rec.OrderID,
			rec.Folio,
			rec.Finalized,
			nullTime(rec.FinalizedAt),
			nullTime(rec.FirstSeenAt),
			rec.HasError,
			nullInt(rec.ErrorOwnerID),
			rec.ErrorResolved,
			rec.ErrorComment,
			now,
		)
		if err != nil {
			return fmt.Errorf("failed to save overlay record %d: %w", rec.OrderID, err)
		}
	}

	return tx.Commit()
}

// ListFinalizedBefore returns finalized records older than cutoff, most
// recent first, capped at limit.
func (s *Store) ListFinalizedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*board.OverlayRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := selectRecord + `
		WHERE finalized = 1 AND finalized_at IS NOT NULL AND finalized_at < ?
		ORDER BY finalized_at DESC`
	args := []any{cutoff.UTC().Format(time.RFC3339Nano)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	return s.queryRecords(ctx, query, args...)
}

const selectRecord = `
	SELECT order_id, folio, finalized, finalized_at, first_seen_at,
	       has_error, error_owner_id, error_resolved, error_comment, updated_at
	FROM overlay_orders`

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]*board.OverlayRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query overlay records: %w", err)
	}
	defer rows.Close()

	var records []*board.OverlayRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanRecord(rows *sql.Rows) (*board.OverlayRecord, error) {
	var (
		rec         board.OverlayRecord
		finalizedAt sql.NullString
		firstSeenAt sql.NullString
		ownerID     sql.NullInt64
		updatedAt   string
	)

	err := rows.Scan(
		&rec.OrderID, &rec.Folio, &rec.Finalized, &finalizedAt, &firstSeenAt,
		&rec.HasError, &ownerID, &rec.ErrorResolved, &rec.ErrorComment, &updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan overlay record: %w", err)
	}

	rec.FinalizedAt = parseNullTime(finalizedAt)
	rec.FirstSeenAt = parseNullTime(firstSeenAt)
	if ownerID.Valid {
		id := ownerID.Int64
		rec.ErrorOwnerID = &id
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		rec.UpdatedAt = t
	}

	return &rec, nil
}

// =============================================================================
// PARTY DIRECTORY (board.PartyDirectory interface)
// =============================================================================

// SaveParty inserts or updates a responsible party. On insert the generated
// id is written back.
func (s *Store) SaveParty(ctx context.Context, p *board.ResponsibleParty) error {
	if p.Name == "" {
		return board.ErrPartyNameRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == 0 {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO parties (name, active) VALUES (?, ?)`,
			p.Name, p.Active,
		)
		if err != nil {
			return fmt.Errorf("failed to insert party: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read party id: %w", err)
		}
		p.ID = id
		return nil
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE parties SET name = ?, active = ? WHERE id = ?`,
		p.Name, p.Active, p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update party: %w", err)
	}
	return nil
}

// ListActiveParties returns active parties ordered by name.
func (s *Store) ListActiveParties(ctx context.Context) ([]board.ResponsibleParty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, active FROM parties WHERE active = 1 ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list parties: %w", err)
	}
	defer rows.Close()

	var parties []board.ResponsibleParty
	for rows.Next() {
		var p board.ResponsibleParty
		if err := rows.Scan(&p.ID, &p.Name, &p.Active); err != nil {
			return nil, fmt.Errorf("failed to scan party: %w", err)
		}
		parties = append(parties, p)
	}
	return parties, rows.Err()
}

// GetParty returns a party by id regardless of active flag, or (nil, nil).
func (s *Store) GetParty(ctx context.Context, id int64) (*board.ResponsibleParty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var p board.ResponsibleParty
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, active FROM parties WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.Active)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get party: %w", err)
	}
	return &p, nil
}

// GetActiveParty returns the party only if it exists and is active.
func (s *Store) GetActiveParty(ctx context.Context, id int64) (*board.ResponsibleParty, error) {
	p, err := s.GetParty(ctx, id)
	if err != nil || p == nil || !p.Active {
		return nil, err
	}
	return p, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func nullInt(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}
