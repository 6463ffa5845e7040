/*
handlers.go - HTTP handlers for the order board

PURPOSE:
  Exposes the reconciliation engine and error workflow over REST. Handles
  HTTP parsing, JSON serialization, and error-to-status mapping; all
  reconciliation logic lives in the board package.

ENDPOINTS:
  GET  /api/board                     Cards + KPI counts (dashboard, polling)
  GET  /api/board/summary             KPI counts only
  GET  /api/orders/{id}               Card + items + parties (detail modal)
  POST /api/orders/{id}/complete      Finalize toggle
  POST /api/orders/{id}/error/toggle  Error flag toggle (guarded)
  POST /api/orders/{id}/error         Error detail save (guarded)
  GET  /api/orders/{id}/print         Printable order sheet
  GET  /api/parties                   Active responsible parties
  POST /api/parties                   Create a responsible party

FILTERS:
  q          free-text search (digits match folio, text matches customer)
  view       "relevant" (default) or "past"
  date_from  RFC3339 or 2006-01-02; malformed values are ignored

ERROR MAPPING:
  403 guard violation (mutation on a non-finalized order)
  404 order/print sheet not found
  400 malformed request body
  500 overlay store failures
  Ledger outages never surface as errors: the engine degrades to empty.
*/
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/warp/order-board/board"
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine  *board.Engine
	Errors  *board.ErrorWorkflow
	Parties board.PartyDirectory
	Log     *logrus.Logger
}

// NewHandler creates a handler around the engine, error workflow and party
// directory.
func NewHandler(engine *board.Engine, errors *board.ErrorWorkflow, parties board.PartyDirectory, log *logrus.Logger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{Engine: engine, Errors: errors, Parties: parties, Log: log}
}

// =============================================================================
// BOARD
// =============================================================================

// GetBoard returns the merged, ordered card list with KPI counts.
func (h *Handler) GetBoard(w http.ResponseWriter, r *http.Request) {
	res, err := h.Engine.BuildView(r.Context(), viewQuery(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build view", err)
		return
	}

	writeJSON(w, http.StatusOK, BoardResponse{
		Cards:       toCardDTOs(res.Cards),
		Counts:      CountsDTO(res.Counts),
		GeneratedAt: time.Now().Format(time.RFC3339),
	})
}

// GetSummary returns only the KPI counts, for cheap polling.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	res, err := h.Engine.BuildView(r.Context(), viewQuery(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build view", err)
		return
	}
	writeJSON(w, http.StatusOK, CountsDTO(res.Counts))
}

// =============================================================================
// SINGLE ORDER
// =============================================================================

// GetOrder returns one order's card, items and the selectable parties.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	card, err := h.Engine.Card(r.Context(), id, viewQuery(r))
	if board.IsNotFound(err) {
		writeError(w, http.StatusNotFound, "Order not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load order", err)
		return
	}

	parties, err := h.Parties.ListActiveParties(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list parties", err)
		return
	}

	writeJSON(w, http.StatusOK, DetailResponse{
		Card:    toCardDTO(card),
		Items:   toItemDTOs(h.Engine.Items(r.Context(), id)),
		Parties: toPartyDTOs(parties),
	})
}

// ToggleComplete flips the local finalization state and returns the refreshed
// card. A card that left the current view comes back null.
func (h *Handler) ToggleComplete(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	card, err := h.Engine.ToggleFinalize(r.Context(), id, viewQuery(r))
	h.writeCard(w, card, err)
}

// PrintOrder returns the printable sheet for one order.
func (h *Handler) PrintOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	sheet, err := h.Engine.BuildPrintSheet(r.Context(), id)
	if board.IsNotFound(err) {
		writeError(w, http.StatusNotFound, "Order not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build print sheet", err)
		return
	}

	writeJSON(w, http.StatusOK, PrintResponse{
		Card:  *toCardDTO(&sheet.Card),
		Items: toItemDTOs(sheet.Items),
	})
}

// =============================================================================
// ERROR WORKFLOW
// =============================================================================

// ToggleError flips the error flag; forbidden unless the order is finalized.
func (h *Handler) ToggleError(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	card, err := h.Errors.Toggle(r.Context(), id, viewQuery(r))
	h.writeCard(w, card, err)
}

// SaveError stores the error details; forbidden unless the order is finalized.
func (h *Handler) SaveError(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	var req SaveErrorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	card, err := h.Errors.SaveDetails(r.Context(), id, req.Owner, req.Resolved, req.Comment, viewQuery(r))
	h.writeCard(w, card, err)
}

// =============================================================================
// PARTIES
// =============================================================================

// ListParties returns the active responsible parties.
func (h *Handler) ListParties(w http.ResponseWriter, r *http.Request) {
	parties, err := h.Parties.ListActiveParties(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list parties", err)
		return
	}
	writeJSON(w, http.StatusOK, toPartyDTOs(parties))
}

// CreateParty adds a responsible party (active unless stated otherwise).
func (h *Handler) CreateParty(w http.ResponseWriter, r *http.Request) {
	var req CreatePartyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	party := board.ResponsibleParty{Name: req.Name, Active: true}
	if req.Active != nil {
		party.Active = *req.Active
	}

	if err := h.Parties.SaveParty(r.Context(), &party); err != nil {
		if err == board.ErrPartyNameRequired {
			writeError(w, http.StatusBadRequest, "Party name is required", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to save party", err)
		return
	}

	writeJSON(w, http.StatusCreated, PartyDTO{ID: party.ID, Name: party.Name, Active: party.Active})
}

// =============================================================================
// HELPERS
// =============================================================================

// viewQuery extracts the board filters with safe defaults: unknown view modes
// fall back to relevant, malformed dates are ignored.
func viewQuery(r *http.Request) board.ViewQuery {
	q := board.ViewQuery{
		Search: r.URL.Query().Get("q"),
		Mode:   board.ViewRelevant,
	}
	if r.URL.Query().Get("view") == string(board.ViewPast) {
		q.Mode = board.ViewPast
	}
	if raw := r.URL.Query().Get("date_from"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			q.DateFrom = &t
		} else if t, err := time.ParseInLocation("2006-01-02", raw, time.Local); err == nil {
			q.DateFrom = &t
		}
	}
	return q
}

func orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid order id", err)
		return 0, false
	}
	return id, true
}

// writeCard maps the shared mutation outcomes: forbidden guard, vanished
// card, store failure, or the refreshed card.
func (h *Handler) writeCard(w http.ResponseWriter, card *board.PresentationCard, err error) {
	switch {
	case board.IsForbidden(err):
		writeError(w, http.StatusForbidden, "Order must be finalized first", nil)
	case board.IsNotFound(err):
		// Mutation succeeded but the order left the current view.
		writeJSON(w, http.StatusOK, CardResponse{Card: nil})
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Operation failed", err)
	default:
		writeJSON(w, http.StatusOK, CardResponse{Card: toCardDTO(card)})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
