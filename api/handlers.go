/*
handlers.go - HTTP API handlers for the sales aggregation engine

PURPOSE:
  Exposes the aggregation and goal-setting engine via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to domain
  logic.

ENDPOINTS:
  Dataset:
    GET    /api/health                 Liveness and dataset status
    POST   /api/ingest                 Replace the dataset wholesale

  Aggregation:
    POST   /api/aggregate              Compute a filtered rollup

  Goals:
    GET    /api/goals                  List months with stored snapshots
    POST   /api/goals                  Save snapshot and load it in-memory
    GET    /api/goals/{monthKey}       Fetch a stored snapshot
    DELETE /api/goals/{monthKey}       Delete snapshot, reset goal state
    GET    /api/goals/export/{monthKey} Serialize live goal state
    POST   /api/goals/clients          Store one client goal
    POST   /api/goals/adjustments      Nudge a positivation count or mix quota
    POST   /api/goals/overrides        Pin or clear an absolute override

  Planning:
    POST   /api/redistribution         Rebalance a monthly target over weeks

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (engine, goal store, planner)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: No dataset loaded yet
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/sales-engine/aggregate"
	"github.com/warp/sales-engine/category"
	"github.com/warp/sales-engine/columnar"
	"github.com/warp/sales-engine/goals"
	"github.com/warp/sales-engine/ingest"
	"github.com/warp/sales-engine/planner"
	"github.com/warp/sales-engine/schedule"
	"github.com/warp/sales-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers. The session pointer is
// swapped wholesale after a successful ingestion; goals and the snapshot
// store survive dataset replacement.
type Handler struct {
	Snapshots *sqlite.Store

	mu      sync.RWMutex
	session *aggregate.Session

	catalog  *category.Catalog
	goals    *goals.Store
	runner   *schedule.Runner
	validate *validator.Validate
	log      zerolog.Logger
}

// NewHandler creates a handler with an empty dataset.
func NewHandler(snapshots *sqlite.Store, log zerolog.Logger) *Handler {
	return &Handler{
		Snapshots: snapshots,
		catalog:   category.Default(),
		goals:     goals.NewStore(),
		runner:    schedule.NewRunner(0),
		validate:  validator.New(),
		log:       log,
	}
}

// Close releases the background runner.
func (h *Handler) Close() {
	h.runner.Close()
}

// Session returns the current computation session, or nil before the
// first successful ingestion.
func (h *Handler) Session() *aggregate.Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.session
}

func (h *Handler) swapSession(store *columnar.Store) *aggregate.Session {
	s := aggregate.NewSession(store, h.catalog, h.goals, h.runner, h.log)
	h.mu.Lock()
	h.session = s
	h.mu.Unlock()
	return s
}

func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// =============================================================================
// DATASET HANDLERS
// =============================================================================

// Health reports liveness and whether a dataset is loaded.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	s := h.Session()
	resp := map[string]any{"status": "ok", "dataset_loaded": s != nil}
	if s != nil {
		resp["records"] = len(s.Store.Records)
		resp["clients"] = len(s.Store.Clients)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Ingest replaces the dataset wholesale. The previous dataset stays live
// until the rebuild succeeds.
// POST /api/ingest
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	res := <-ingest.Rebuild(r.Context(), h.log, req.Sales, req.Clients)
	if res.Err != nil {
		if errors.Is(res.Err, columnar.ErrEmptyIngestion) {
			writeError(w, http.StatusBadRequest, "Dataset contains no usable rows", res.Err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to rebuild dataset", res.Err)
		return
	}

	s := h.swapSession(res.Store)
	writeJSON(w, http.StatusOK, IngestResponse{
		Records:     len(s.Store.Records),
		Clients:     len(s.Store.Clients),
		Sellers:     len(s.Store.Sellers),
		StockLines:  len(s.Store.StockLines),
		DroppedRows: s.Store.DroppedRows,
		LastSale:    s.Store.LastSaleDate.Format("2006-01-02"),
		TookMs:      res.Took.Milliseconds(),
	})
}

// =============================================================================
// AGGREGATION HANDLERS
// =============================================================================

// Aggregate computes a filtered rollup synchronously.
// POST /api/aggregate
func (h *Handler) Aggregate(w http.ResponseWriter, r *http.Request) {
	s := h.Session()
	if s == nil {
		writeError(w, http.StatusConflict, "No dataset loaded", nil)
		return
	}

	var req AggregateRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	rollup := s.ComputeAggregate(req.filter(), req.categories())
	writeJSON(w, http.StatusOK, toAggregateResponse(rollup))
}

// =============================================================================
// GOAL HANDLERS
// =============================================================================

// ListGoalMonths lists the months with a stored snapshot.
// GET /api/goals
func (h *Handler) ListGoalMonths(w http.ResponseWriter, r *http.Request) {
	months, err := h.Snapshots.ListMonths(r.Context(), goals.SnapshotSupplier, goals.SnapshotBrand)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list snapshots", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"months": months})
}

// SaveGoals persists a snapshot and loads it into the live goal state.
// POST /api/goals
func (h *Handler) SaveGoals(w http.ResponseWriter, r *http.Request) {
	var snap goals.Snapshot
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}
	if snap.Supplier == "" {
		snap.Supplier = goals.SnapshotSupplier
	}
	if snap.Brand == "" {
		snap.Brand = goals.SnapshotBrand
	}
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now()
	}
	if err := snap.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	if err := h.Snapshots.SaveSnapshot(r.Context(), &snap); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save snapshot", err)
		return
	}
	h.goals.Load(&snap)
	h.log.Info().Str("month", snap.MonthKey).Msg("goal snapshot saved")
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved", "month_key": snap.MonthKey})
}

// GetGoals returns the stored snapshot for a month.
// GET /api/goals/{monthKey}
func (h *Handler) GetGoals(w http.ResponseWriter, r *http.Request) {
	monthKey := chi.URLParam(r, "monthKey")
	snap, err := h.Snapshots.LoadSnapshot(r.Context(), monthKey, goals.SnapshotSupplier, goals.SnapshotBrand)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "No snapshot for month", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// DeleteGoals deletes a month's snapshot and resets the live goal state.
// DELETE /api/goals/{monthKey}
func (h *Handler) DeleteGoals(w http.ResponseWriter, r *http.Request) {
	monthKey := chi.URLParam(r, "monthKey")
	if err := h.Snapshots.DeleteSnapshot(r.Context(), monthKey, goals.SnapshotSupplier, goals.SnapshotBrand); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete snapshot", err)
		return
	}
	h.goals.Reset()
	h.log.Info().Str("month", monthKey).Msg("goal snapshot cleared")
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared", "month_key": monthKey})
}

// ExportGoals serializes the live in-memory goal state as a snapshot
// document for the month, without persisting it.
// GET /api/goals/export/{monthKey}
func (h *Handler) ExportGoals(w http.ResponseWriter, r *http.Request) {
	snap := h.goals.Export(chi.URLParam(r, "monthKey"), time.Now())
	if err := snap.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month key", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// SetClientGoal stores one client's target for one leaf category.
// POST /api/goals/clients
func (h *Handler) SetClientGoal(w http.ResponseWriter, r *http.Request) {
	var req ClientGoalRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	def := h.catalog.Get(category.ID(req.Category))
	if def == nil || def.Kind != category.KindLeaf {
		writeError(w, http.StatusBadRequest, "Unknown leaf category", nil)
		return
	}
	h.goals.SetClientGoal(columnar.NormalizeKey(req.ClientID), def.ID, goals.Entry{
		Fat: decimal.NewFromFloat(req.Fat),
		Vol: decimal.NewFromFloat(req.Vol),
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "stored"})
}

// SetAdjustment nudges a positivation count (or a mix quota) at one
// display entity.
// POST /api/goals/adjustments
func (h *Handler) SetAdjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if req.Mix {
		id := category.ID(req.Key)
		if def := h.catalog.Get(id); def == nil || def.Kind != category.KindDerivedQuota {
			writeError(w, http.StatusBadRequest, "Unknown mix quota", nil)
			return
		}
		h.goals.SetMixAdjustment(id, req.Entity, req.Delta)
	} else {
		h.goals.SetAdjustment(category.AdjustmentKey(req.Key), req.Entity, req.Delta)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "adjusted"})
}

// SetOverride pins (or clears) an absolute override for one
// (entity, metric, key) triple.
// POST /api/goals/overrides
func (h *Handler) SetOverride(w http.ResponseWriter, r *http.Request) {
	var req OverrideRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	key := goals.OverrideKey{
		Entity: req.Entity,
		Metric: goals.MetricType(req.Metric),
		Key:    category.AdjustmentKey(req.Key),
	}
	if req.Clear {
		h.goals.ClearOverride(key)
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
		return
	}
	h.goals.SetOverride(key, decimal.NewFromFloat(req.Value))
	writeJSON(w, http.StatusOK, map[string]string{"status": "overridden"})
}

// =============================================================================
// PLANNING HANDLERS
// =============================================================================

// Redistribute rebalances a monthly target over the month's weeks given
// realized values for elapsed weeks.
// POST /api/redistribution
func (h *Handler) Redistribute(w http.ResponseWriter, r *http.Request) {
	var req RedistributionRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	anchor, err := time.Parse("2006-01", req.Month)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month key", err)
		return
	}
	now := req.AsOf
	if now.IsZero() {
		now = time.Now()
	}

	weeks := planner.MonthWeeks(anchor)
	weekGoals := planner.Redistribute(decimal.NewFromFloat(req.Total), weeks, toDecimals(req.Realized), now)

	resp := RedistributionResponse{Weeks: make([]WeekGoalDTO, len(weeks))}
	for i, wk := range weeks {
		resp.Weeks[i] = WeekGoalDTO{
			Start:       wk.Start.Format("2006-01-02"),
			End:         wk.End.Format("2006-01-02"),
			WorkingDays: wk.WorkingDays,
			Goal:        weekGoals[i].InexactFloat64(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

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
