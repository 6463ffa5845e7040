// Package store provides an in-memory OverlayStore and PartyDirectory
// implementation for tests and development.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/order-board/board"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	records     map[int64]*board.OverlayRecord
	parties     map[int64]*board.ResponsibleParty
	nextPartyID int64
}

func NewMemory() *Memory {
	return &Memory{
		records: make(map[int64]*board.OverlayRecord),
		parties: make(map[int64]*board.ResponsibleParty),
	}
}

// GetOrCreate returns a copy of the record, creating the default one first if
// the id was never seen.
func (m *Memory) GetOrCreate(_ context.Context, orderID int64) (*board.OverlayRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[orderID]
	if !ok {
		rec = &board.OverlayRecord{OrderID: orderID, UpdatedAt: time.Now()}
		m.records[orderID] = rec
	}
	return copyRecord(rec), nil
}

func (m *Memory) LoadMany(_ context.Context, orderIDs []int64) (map[int64]*board.OverlayRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[int64]*board.OverlayRecord, len(orderIDs))
	for _, id := range orderIDs {
		if rec, ok := m.records[id]; ok {
			result[id] = copyRecord(rec)
		}
	}
	return result, nil
}

// SaveBatch upserts copies of the given records. An existing non-nil
// first_seen_at wins over whatever the incoming record carries.
func (m *Memory) SaveBatch(_ context.Context, records []*board.OverlayRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for _, rec := range records {
		stored := copyRecord(rec)
		if prev, ok := m.records[rec.OrderID]; ok && prev.FirstSeenAt != nil {
			stored.FirstSeenAt = prev.FirstSeenAt
		}
		stored.UpdatedAt = now
		m.records[rec.OrderID] = stored
	}
	return nil
}

func (m *Memory) ListFinalizedBefore(_ context.Context, cutoff time.Time, limit int) ([]*board.OverlayRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*board.OverlayRecord
	for _, rec := range m.records {
		if rec.Finalized && rec.FinalizedAt != nil && rec.FinalizedAt.Before(cutoff) {
			result = append(result, copyRecord(rec))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].FinalizedAt.After(*result[j].FinalizedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// =============================================================================
// PARTY DIRECTORY
// =============================================================================

func (m *Memory) ListActiveParties(_ context.Context) ([]board.ResponsibleParty, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []board.ResponsibleParty
	for _, p := range m.parties {
		if p.Active {
			result = append(result, *p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *Memory) GetParty(_ context.Context, id int64) (*board.ResponsibleParty, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if p, ok := m.parties[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (m *Memory) GetActiveParty(ctx context.Context, id int64) (*board.ResponsibleParty, error) {
	p, err := m.GetParty(ctx, id)
	if err != nil || p == nil || !p.Active {
		return nil, err
	}
	return p, nil
}

func (m *Memory) SaveParty(_ context.Context, p *board.ResponsibleParty) error {
	if p.Name == "" {
		return board.ErrPartyNameRequired
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if p.ID == 0 {
		m.nextPartyID++
		p.ID = m.nextPartyID
	}
	cp := *p
	m.parties[p.ID] = &cp
	return nil
}

func copyRecord(rec *board.OverlayRecord) *board.OverlayRecord {
	cp := *rec
	if rec.FinalizedAt != nil {
		t := *rec.FinalizedAt
		cp.FinalizedAt = &t
	}
	if rec.FirstSeenAt != nil {
		t := *rec.FirstSeenAt
		cp.FirstSeenAt = &t
	}
	if rec.ErrorOwnerID != nil {
		id := *rec.ErrorOwnerID
		cp.ErrorOwnerID = &id
	}
	return &cp
}
