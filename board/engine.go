/*
engine.go - Reconciliation engine

PURPOSE:
  Merges a fresh ledger snapshot with the persisted overlay state and produces
  the ordered card list the board renders. This is the only component with
  real invariants:

  1. Source selection   - relevant: ledger by date lower bound;
                          past: overlay-known finalized ids only, then ledger
                          restricted to exactly that set (never a full scan)
  2. Overlay resolution - lazily create records; assign first_seen_at exactly
                          once per order, idempotently across requests
  3. Status derivation  - FINALIZED (local) wins over the ledger supply status
  4. Combined timestamp - ledger calendar date + first-seen local clock time
                          (the ledger only carries midnight dates)
  5. View partition     - relevant drops orders finalized on a prior day;
                          past keeps only those
  6. Folio normalization- parsed folio cached onto the overlay record
  7. Persistence        - dirty records saved in one batch before returning
  8. Ordering           - (parsed folio | sentinel, order id) ascending

AVAILABILITY:
  A ledger outage degrades to an empty result with a logged warning. The board
  polls frequently; a transient empty refresh is preferable to a crash.
  Overlay store failures are local faults and do propagate.

SEE ALSO:
  - workflow.go:  single-card operations layered on the same merge
  - errorflow.go: the guarded error state machine
*/
package board

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config carries the engine's injected knobs. The default date lower bound is
// explicit configuration, not a hidden constant.
type Config struct {
	// DefaultDateFrom is used for the relevant view when the caller supplies
	// no lower bound. Nil means "start of the current local day", which keeps
	// ledger load minimal.
	DefaultDateFrom *time.Time

	// PastPageSize caps how many finalized records feed the past view.
	// Zero means the default of 500.
	PastPageSize int

	// Location is the local timezone for day boundaries and combined
	// timestamps. Nil means time.Local.
	Location *time.Location

	// Now is the clock; nil means time.Now. Injected for tests.
	Now func() time.Time
}

const defaultPastPageSize = 500

func (c Config) withDefaults() Config {
	if c.PastPageSize <= 0 {
		c.PastPageSize = defaultPastPageSize
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine is the reconciliation engine. Stateless per request; all state lives
// in the overlay store and the upstream ledger.
type Engine struct {
	overlay OverlayStore
	parties PartyDirectory
	ledger  LedgerClient
	cfg     Config
	log     *logrus.Logger
}

// NewEngine wires the engine with its collaborators.
func NewEngine(overlay OverlayStore, parties PartyDirectory, ledger LedgerClient, cfg Config, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{
		overlay: overlay,
		parties: parties,
		ledger:  ledger,
		cfg:     cfg.withDefaults(),
		log:     log,
	}
}

// ViewQuery are the caller-supplied board filters.
type ViewQuery struct {
	DateFrom *time.Time // ignored in past mode
	Search   string
	Mode     ViewMode
}

// ViewResult is the ordered card list plus the KPI counts.
type ViewResult struct {
	Cards  []PresentationCard
	Counts StatusCounts
}

// BuildView runs one full reconciliation pass and returns the partitioned,
// deterministically ordered card list.
func (e *Engine) BuildView(ctx context.Context, q ViewQuery) (*ViewResult, error) {
	now := e.cfg.Now().In(e.cfg.Location)
	today := startOfDay(now)

	// Step 1: source selection.
	var raw []SourceOrder
	if q.Mode == ViewPast {
		finalized, err := e.overlay.ListFinalizedBefore(ctx, today, e.cfg.PastPageSize)
		if err != nil {
			return nil, err
		}
		if len(finalized) == 0 {
			return &ViewResult{Cards: []PresentationCard{}}, nil
		}
		ids := make([]int64, len(finalized))
		for i, r := range finalized {
			ids[i] = r.OrderID
		}
		// The ledger is hit only for ids already known to be finalized and
		// past, which bounds cost without scanning history.
		raw = e.fetchOrders(ctx, LedgerFilter{Search: q.Search, OrderIDs: ids})
	} else {
		from := q.DateFrom
		if from == nil {
			from = e.cfg.DefaultDateFrom
		}
		if from == nil {
			from = &today
		}
		raw = e.fetchOrders(ctx, LedgerFilter{DateFrom: from, Search: q.Search})
	}

	ids := make([]int64, len(raw))
	for i, r := range raw {
		ids[i] = r.ID
	}

	// Step 2: overlay resolution.
	existing, err := e.overlay.LoadMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	dirty := make(map[int64]*OverlayRecord)
	seenAt := e.cfg.Now()
	cards := make([]PresentationCard, 0, len(raw))
	ownerNames := map[int64]string{}

	for _, r := range raw {
		ov := existing[r.ID]
		if ov == nil {
			t := seenAt
			ov = &OverlayRecord{OrderID: r.ID, FirstSeenAt: &t}
			existing[r.ID] = ov
			dirty[r.ID] = ov
		} else if ov.FirstSeenAt == nil {
			// Legacy record from before first-seen tracking. Assign once;
			// after this the timestamp is never reassigned.
			t := seenAt
			ov.FirstSeenAt = &t
			dirty[r.ID] = ov
		}

		// Step 3: status derivation.
		status := r.SupplyStatus()
		var finalizedAt *time.Time
		if ov.Finalized {
			status = StatusFinalized
			finalizedAt = ov.FinalizedAt
		}

		// Step 4: combined timestamp.
		created := combineDateAndTime(r.CreatedAt, *ov.FirstSeenAt, e.cfg.Location)

		// Step 5: view partition filter.
		if q.Mode == ViewPast {
			if status != StatusFinalized || finalizedAt == nil || !startOfDayIn(*finalizedAt, e.cfg.Location).Before(today) {
				continue
			}
		} else {
			if status == StatusFinalized && (finalizedAt == nil || !sameDay(*finalizedAt, today, e.cfg.Location)) {
				continue
			}
		}

		// Step 6: folio normalization, cached onto the overlay.
		folio := ParseFolio(r.Folio)
		if norm := folio.String(); ov.Folio != norm {
			ov.Folio = norm
			dirty[r.ID] = ov
		}

		cards = append(cards, PresentationCard{
			OrderID:       r.ID,
			Folio:         folio,
			Customer:      r.Customer,
			CreatedAt:     created,
			FinalizedAt:   finalizedAt,
			Agent:         r.Agent,
			Warehouse:     r.Warehouse,
			DeliverAt:     r.DeliverAt,
			Delivery:      r.Delivery,
			Status:        status,
			Finalized:     ov.Finalized,
			HasError:      ov.HasError,
			ErrorOwner:    e.ownerName(ctx, ov.ErrorOwnerID, ownerNames),
			ErrorResolved: ov.ErrorResolved,
			ErrorComment:  ov.ErrorComment,
		})
	}

	// Step 7: persist dirty records in one batch.
	if len(dirty) > 0 {
		batch := make([]*OverlayRecord, 0, len(dirty))
		for _, ov := range dirty {
			batch = append(batch, ov)
		}
		if err := e.overlay.SaveBatch(ctx, batch); err != nil {
			return nil, err
		}
	}

	// Step 8: deterministic ordering.
	sort.Slice(cards, func(i, j int) bool {
		ki, kj := cards[i].Folio.SortKey(), cards[j].Folio.SortKey()
		if ki != kj {
			return ki < kj
		}
		return cards[i].OrderID < cards[j].OrderID
	})

	res := &ViewResult{Cards: cards}
	for _, c := range cards {
		switch c.Status {
		case StatusPending:
			res.Counts.Pending++
		case StatusFulfilled:
			res.Counts.Fulfilled++
		case StatusFinalized:
			res.Counts.Finalized++
		}
	}
	return res, nil
}

// fetchOrders degrades a ledger failure to an empty snapshot. The overlay is
// still consistent; the next poll retries naturally.
func (e *Engine) fetchOrders(ctx context.Context, f LedgerFilter) []SourceOrder {
	rows, err := e.ledger.FetchOrders(ctx, f)
	if err != nil {
		e.log.WithError(err).Warn("ledger fetch failed, serving empty view")
		return nil
	}
	return rows
}

// ownerName resolves an error-owner reference to a display name, memoized per
// reconciliation pass. A missing party (or directory fault) renders empty
// rather than failing the merge.
func (e *Engine) ownerName(ctx context.Context, id *int64, cache map[int64]string) string {
	if id == nil {
		return ""
	}
	if name, ok := cache[*id]; ok {
		return name
	}
	name := ""
	if p, err := e.parties.GetParty(ctx, *id); err == nil && p != nil {
		name = p.Name
	}
	cache[*id] = name
	return name
}

// =============================================================================
// DATE HELPERS
// =============================================================================

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func startOfDayIn(t time.Time, loc *time.Location) time.Time {
	return startOfDay(t.In(loc))
}

func sameDay(t, day time.Time, loc *time.Location) bool {
	return startOfDayIn(t, loc).Equal(startOfDayIn(day, loc))
}

// combineDateAndTime composes the ledger's calendar date with the first-seen
// clock time. The ledger only carries a date; the time users care about is
// when the order entered this system's view.
func combineDateAndTime(ledgerDate, firstSeen time.Time, loc *time.Location) time.Time {
	d := ledgerDate.In(loc)
	s := firstSeen.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), s.Hour(), s.Minute(), s.Second(), s.Nanosecond(), loc)
}
