package board_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/order-board/board"
	"github.com/warp/order-board/board/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testZone = time.FixedZone("TEST", -6*3600)

// stubLedger is a canned LedgerClient. It honors the OrderIDs restriction so
// the past-view path behaves like the real client; other filters are recorded
// for inspection but not applied.
type stubLedger struct {
	rows       []board.SourceOrder
	items      []board.OrderItem
	err        error
	lastFilter board.LedgerFilter
	calls      int
}

func (s *stubLedger) FetchOrders(_ context.Context, f board.LedgerFilter) ([]board.SourceOrder, error) {
	s.lastFilter = f
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if len(f.OrderIDs) == 0 {
		return s.rows, nil
	}
	want := make(map[int64]bool, len(f.OrderIDs))
	for _, id := range f.OrderIDs {
		want[id] = true
	}
	var out []board.SourceOrder
	for _, r := range s.rows {
		if want[r.ID] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *stubLedger) FetchItems(_ context.Context, _ int64) ([]board.OrderItem, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.items, nil
}

// testClock is a settable clock for deterministic merges.
type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestEngine(mem *store.Memory, led *stubLedger, clock *testClock) *board.Engine {
	cfg := board.Config{Location: testZone, Now: clock.Now}
	return board.NewEngine(mem, mem, led, cfg, quietLogger())
}

func sourceOrder(id int64, folio string, created time.Time, pending int64) board.SourceOrder {
	return board.SourceOrder{
		ID:           id,
		Folio:        folio,
		Customer:     "ACME Hardware",
		CreatedAt:    created,
		TotalUnits:   decimal.NewFromInt(10),
		PendingUnits: decimal.NewFromInt(pending),
		Agent:        "R. Fuentes",
		Warehouse:    board.SingleWarehouse("3"),
		Delivery:     board.DeliveryParcel,
	}
}

// =============================================================================
// FIRST-SEEN IDEMPOTENCY
// =============================================================================

func TestBuildView_FirstSeenAssignedExactlyOnce(t *testing.T) {
	// GIVEN: a new order observed at t1
	// WHEN: the view is rebuilt at t2
	// THEN: the persisted first-seen timestamp is still t1

	t1 := time.Date(2025, 8, 27, 14, 5, 30, 0, testZone)
	t2 := t1.Add(45 * time.Minute)

	mem := store.NewMemory()
	led := &stubLedger{rows: []board.SourceOrder{
		sourceOrder(101, "55", time.Date(2025, 8, 27, 0, 0, 0, 0, testZone), 4),
	}}
	clock := &testClock{now: t1}
	engine := newTestEngine(mem, led, clock)
	ctx := context.Background()

	_, err := engine.BuildView(ctx, board.ViewQuery{Mode: board.ViewRelevant})
	require.NoError(t, err)

	clock.now = t2
	_, err = engine.BuildView(ctx, board.ViewQuery{Mode: board.ViewRelevant})
	require.NoError(t, err)

	rec, err := mem.GetOrCreate(ctx, 101)
	require.NoError(t, err)
	require.NotNil(t, rec.FirstSeenAt)
	assert.True(t, rec.FirstSeenAt.Equal(t1), "first-seen must keep the first observation time")
}

func TestBuildView_LegacyRecordGetsFirstSeenOnce(t *testing.T) {
	// GIVEN: an overlay record persisted before first-seen tracking existed
	// WHEN: the order is observed again
	// THEN: first-seen is backfilled once and kept on later rebuilds

	t1 := time.Date(2025, 8, 27, 9, 0, 0, 0, testZone)
	mem := store.NewMemory()
	ctx := context.Background()

	_, err := mem.GetOrCreate(ctx, 7) // record with nil first_seen_at
	require.NoError(t, err)

	led := &stubLedger{rows: []board.SourceOrder{
		sourceOrder(7, "7", time.Date(2025, 8, 27, 0, 0, 0, 0, testZone), 1),
	}}
	clock := &testClock{now: t1}
	engine := newTestEngine(mem, led, clock)

	_, err = engine.BuildView(ctx, board.ViewQuery{Mode: board.ViewRelevant})
	require.NoError(t, err)

	clock.now = t1.Add(time.Hour)
	_, err = engine.BuildView(ctx, board.ViewQuery{Mode: board.ViewRelevant})
	require.NoError(t, err)

	rec, err := mem.GetOrCreate(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, rec.FirstSeenAt)
	assert.True(t, rec.FirstSeenAt.Equal(t1))
}

// =============================================================================
// FOLIO ORDERING AND NORMALIZATION
// =============================================================================

func TestBuildView_FolioOrdering(t *testing.T) {
	// GIVEN: folios ["10", "2", "abc", "1"]
	// THEN: output order is 1, 2, 10, abc (numeric ascending, text last)

	now := time.Date(2025, 8, 27, 10, 0, 0, 0, testZone)
	created := time.Date(2025, 8, 27, 0, 0, 0, 0, testZone)
	mem := store.NewMemory()
	led := &stubLedger{rows: []board.SourceOrder{
		sourceOrder(4, "10", created, 1),
		sourceOrder(3, "2", created, 1),
		sourceOrder(2, "abc", created, 1),
		sourceOrder(1, "1", created, 1),
	}}
	engine := newTestEngine(mem, led, &testClock{now: now})

	res, err := engine.BuildView(context.Background(), board.ViewQuery{Mode: board.ViewRelevant})
	require.NoError(t, err)
	require.Len(t, res.Cards, 4)

	var folios []string
	for _, c := range res.Cards {
		folios = append(folios, c.Folio.String())
	}
	assert.Equal(t, []string{"1", "2", "10", "abc"}, folios)
}

func TestBuildView_NonNumericFoliosTieBreakByID(t *testing.T) {
	now := time.Date(2025, 8, 27, 10, 0, 0, 0, testZone)
	created := time.Date(2025, 8, 27, 0, 0, 0, 0, testZone)
	mem := store.NewMemory()
	led := &stubLedger{rows: []board.SourceOrder{
		sourceOrder(9, "zz", created, 1),
		sourceOrder(5, "aa", created, 1),
	}}
	engine := newTestEngine(mem, led, &testClock{now: now})

	res, err := engine.BuildView(context.Background(), board.ViewQuery{Mode: board.ViewRelevant})
	require.NoError(t, err)
	require.Len(t, res.Cards, 2)

	// Both folios hit the sentinel; the identifier breaks the tie.
	assert.Equal(t, int64(5), res.Cards[0].OrderID)
	assert.Equal(t, int64(9), res.Cards[1].OrderID)
}

func TestBuildView_NormalizedFolioPersistedToOverlay(t *testing.T) {
	// GIVEN: a ledger folio with numeric padding
	// THEN: the parsed form is cached onto the overlay record

	now := time.Date(2025, 8, 27, 10, 0, 0, 0, testZone)
	mem := store.NewMemory()
	led := &stubLedger{rows: []board.SourceOrder{
		sourceOrder(42, "007", time.Date(2025, 8, 27, 0, 0, 0, 0, testZone), 1),
	}}
	engine := newTestEngine(mem, led, &testClock{now: now})

	_, err := engine.BuildView(context.Background(), board.ViewQuery{Mode: board.ViewRelevant})
	require.NoError(t, err)

	rec, err := mem.GetOrCreate(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "7", rec.Folio)
}

// =============================================================================
// VIEW PARTITION
// =============================================================================

func TestBuildView_PartitionDisjointness(t *testing.T) {
	// GIVEN: one open order, one finalized today, one finalized yesterday
	// THEN: relevant shows the first two, past shows only the third

	now := time.Date(2025, 8, 27, 12, 0, 0, 0, testZone)
	created := time.Date(2025, 8, 26, 0, 0, 0, 0, testZone)
	today := time.Date(2025, 8, 27, 8, 30, 0, 0, testZone)
	yesterday := time.Date(2025, 8, 26, 17, 0, 0, 0, testZone)

	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.SaveBatch(ctx, []*board.OverlayRecord{
		{OrderID: 2, Finalized: true, FinalizedAt: &today, FirstSeenAt: &today},
		{OrderID: 3, Finalized: true, FinalizedAt: &yesterday, FirstSeenAt: &yesterday},
	}))

	led := &stubLedger{rows: []board.SourceOrder{
		sourceOrder(1, "1", created, 5),
		sourceOrder(2, "2", created, 0),
		sourceOrder(3, "3", created, 0),
	}}
	engine := newTestEngine(mem, led, &testClock{now: now})

	relevant, err := engine.BuildView(ctx, board.ViewQuery{Mode: board.ViewRelevant})
	require.NoError(t, err)
	past, err := engine.BuildView(ctx, board.ViewQuery{Mode: board.ViewPast})
	require.NoError(t, err)

	relevantIDs := cardIDs(relevant.Cards)
	pastIDs := cardIDs(past.Cards)
	assert.Equal(t, []int64{1, 2}, relevantIDs)
	assert.Equal(t, []int64{3}, pastIDs)

	for _, id := range relevantIDs {
		assert.NotContains(t, pastIDs, id, "no id may appear in both views")
	}

	// Relevant's finalized card was finalized today; past's strictly before.
	assert.Equal(t, board.StatusFinalized, relevant.Cards[1].Status)
	require.NotNil(t, past.Cards[0].FinalizedAt)
	assert.True(t, past.Cards[0].FinalizedAt.Before(time.Date(2025, 8, 27, 0, 0, 0, 0, testZone)))
}

func TestBuildView_PastShortCircuitsWithoutLedgerCall(t *testing.T) {
	// GIVEN: no finalized-before-today overlay records
	// THEN: the past view returns empty without touching the ledger

	now := time.Date(2025, 8, 27, 12, 0, 0, 0, testZone)
	mem := store.NewMemory()
	led := &stubLedger{rows: []board.SourceOrder{sourceOrder(1, "1", now, 1)}}
	engine := newTestEngine(mem, led, &testClock{now: now})

	res, err := engine.BuildView(context.Background(), board.ViewQuery{Mode: board.ViewPast})
	require.NoError(t, err)
	assert.Empty(t, res.Cards)
	assert.Zero(t, led.calls)
}

func TestBuildView_PastQueriesLedgerByIDSetOnly(t *testing.T) {
	now := time.Date(2025, 8, 27, 12, 0, 0, 0, testZone)
	yesterday := time.Date(2025, 8, 26, 17, 0, 0, 0, testZone)

	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.SaveBatch(ctx, []*board.OverlayRecord{
		{OrderID: 3, Finalized: true, FinalizedAt: &yesterday, FirstSeenAt: &yesterday},
	}))

	led := &stubLedger{rows: []board.SourceOrder{
		sourceOrder(3, "3", yesterday, 0),
		sourceOrder(4, "4", yesterday, 0),
	}}
	engine := newTestEngine(mem, led, &testClock{now: now})

	res, err := engine.BuildView(ctx, board.ViewQuery{Mode: board.ViewPast})
	require.NoError(t, err)

	assert.Equal(t, []int64{3}, led.lastFilter.OrderIDs)
	assert.Nil(t, led.lastFilter.DateFrom, "past mode bypasses date filtering")
	assert.Equal(t, []int64{3}, cardIDs(res.Cards))
}

// =============================================================================
// SOURCE SELECTION DEFAULTS
// =============================================================================

func TestBuildView_RelevantDefaultsToStartOfDay(t *testing.T) {
	now := time.Date(2025, 8, 27, 16, 45, 0, 0, testZone)
	mem := store.NewMemory()
	led := &stubLedger{}
	engine := newTestEngine(mem, led, &testClock{now: now})

	_, err := engine.BuildView(context.Background(), board.ViewQuery{Mode: board.ViewRelevant})
	require.NoError(t, err)

	require.NotNil(t, led.lastFilter.DateFrom)
	assert.True(t, led.lastFilter.DateFrom.Equal(time.Date(2025, 8, 27, 0, 0, 0, 0, testZone)))
}

func TestBuildView_ConfiguredDefaultDateFromWins(t *testing.T) {
	now := time.Date(2025, 8, 27, 16, 45, 0, 0, testZone)
	configured := time.Date(2025, 8, 20, 0, 0, 0, 0, testZone)

	mem := store.NewMemory()
	led := &stubLedger{}
	cfg := board.Config{Location: testZone, Now: (&testClock{now: now}).Now, DefaultDateFrom: &configured}
	engine := board.NewEngine(mem, mem, led, cfg, quietLogger())

	_, err := engine.BuildView(context.Background(), board.ViewQuery{Mode: board.ViewRelevant})
	require.NoError(t, err)

	require.NotNil(t, led.lastFilter.DateFrom)
	assert.True(t, led.lastFilter.DateFrom.Equal(configured))
}

func TestBuildView_CallerDateFromOverridesConfig(t *testing.T) {
	now := time.Date(2025, 8, 27, 16, 45, 0, 0, testZone)
	configured := time.Date(2025, 8, 20, 0, 0, 0, 0, testZone)
	callers := time.Date(2025, 8, 25, 0, 0, 0, 0, testZone)

	mem := store.NewMemory()
	led := &stubLedger{}
	cfg := board.Config{Location: testZone, Now: (&testClock{now: now}).Now, DefaultDateFrom: &configured}
	engine := board.NewEngine(mem, mem, led, cfg, quietLogger())

	_, err := engine.BuildView(context.Background(), board.ViewQuery{Mode: board.ViewRelevant, DateFrom: &callers})
	require.NoError(t, err)

	require.NotNil(t, led.lastFilter.DateFrom)
	assert.True(t, led.lastFilter.DateFrom.Equal(callers))
}

// =============================================================================
// LEDGER OUTAGE RESILIENCE
// =============================================================================

func TestBuildView_LedgerOutageYieldsEmptyResult(t *testing.T) {
	// GIVEN: the ledger is unreachable
	// THEN: both view modes return an empty list, not an error

	now := time.Date(2025, 8, 27, 12, 0, 0, 0, testZone)
	yesterday := time.Date(2025, 8, 26, 17, 0, 0, 0, testZone)

	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.SaveBatch(ctx, []*board.OverlayRecord{
		{OrderID: 3, Finalized: true, FinalizedAt: &yesterday, FirstSeenAt: &yesterday},
	}))

	led := &stubLedger{err: errors.New("dial tcp: connection refused")}
	engine := newTestEngine(mem, led, &testClock{now: now})

	relevant, err := engine.BuildView(ctx, board.ViewQuery{Mode: board.ViewRelevant})
	require.NoError(t, err)
	assert.Empty(t, relevant.Cards)

	past, err := engine.BuildView(ctx, board.ViewQuery{Mode: board.ViewPast})
	require.NoError(t, err)
	assert.Empty(t, past.Cards)
}

// =============================================================================
// COMBINED TIMESTAMP
// =============================================================================

func TestBuildView_CombinedTimestampComposition(t *testing.T) {
	// GIVEN: ledger creation date 2025-08-27 (midnight only) and first-seen
	//        local time 14:05:30
	// THEN: the card's timestamp is 2025-08-27 14:05:30 local

	firstSeen := time.Date(2025, 8, 27, 14, 5, 30, 0, testZone)
	mem := store.NewMemory()
	led := &stubLedger{rows: []board.SourceOrder{
		sourceOrder(1, "1", time.Date(2025, 8, 27, 0, 0, 0, 0, testZone), 2),
	}}
	engine := newTestEngine(mem, led, &testClock{now: firstSeen})

	res, err := engine.BuildView(context.Background(), board.ViewQuery{Mode: board.ViewRelevant})
	require.NoError(t, err)
	require.Len(t, res.Cards, 1)

	want := time.Date(2025, 8, 27, 14, 5, 30, 0, testZone)
	assert.True(t, res.Cards[0].CreatedAt.Equal(want),
		"got %s, want %s", res.Cards[0].CreatedAt, want)
}

// =============================================================================
// KPI COUNTS
// =============================================================================

func TestBuildView_StatusCounts(t *testing.T) {
	now := time.Date(2025, 8, 27, 12, 0, 0, 0, testZone)
	created := time.Date(2025, 8, 27, 0, 0, 0, 0, testZone)
	today := time.Date(2025, 8, 27, 8, 0, 0, 0, testZone)

	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.SaveBatch(ctx, []*board.OverlayRecord{
		{OrderID: 3, Finalized: true, FinalizedAt: &today, FirstSeenAt: &today},
	}))

	led := &stubLedger{rows: []board.SourceOrder{
		sourceOrder(1, "1", created, 5), // pending
		sourceOrder(2, "2", created, 0), // fulfilled
		sourceOrder(3, "3", created, 0), // finalized today
	}}
	engine := newTestEngine(mem, led, &testClock{now: now})

	res, err := engine.BuildView(ctx, board.ViewQuery{Mode: board.ViewRelevant})
	require.NoError(t, err)

	assert.Equal(t, board.StatusCounts{Pending: 1, Fulfilled: 1, Finalized: 1}, res.Counts)
}

func cardIDs(cards []board.PresentationCard) []int64 {
	ids := make([]int64, len(cards))
	for i, c := range cards {
		ids[i] = c.OrderID
	}
	return ids
}
