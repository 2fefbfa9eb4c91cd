/*
handlers.go - HTTP API handlers for the leave balance ledger

PURPOSE:
  Exposes the ledger, balance aggregation and expiry engine via REST API.
  Handles HTTP request/response, JSON serialization, and delegates to
  domain logic.

ENDPOINTS:
  Entitlements:
    GET    /api/entitlements/{id}/balance          Full balance
    GET    /api/entitlements/{id}/breakdown        Component rows + sum
    GET    /api/entitlements/{id}/leave-balance    Consumption-only sum
    DELETE /api/entitlements/{id}/balance-changes  Drop component rows

  Leave requests:
    GET    /api/leave-requests/{id}/breakdown          Per-day rows
    GET    /api/leave-requests/{id}/balance            Total deduction
    POST   /api/leave-requests/{id}/recalculate-expiry Retroactive rerun
    DELETE /api/leave-requests/{id}/balance-changes    Drop per-day rows

  Contacts:
    GET    /api/contacts/balances       Grouped balance snapshot
    GET    /api/contacts/open-balances  Would-be deductions of open requests
    GET    /api/contacts/{id}/toil      Approved TOIL accrued in a period

  Ledger:
    POST   /api/balance-changes   Append a row
    DELETE /api/balance-changes   Delete by (source_type, source_id)

  Expiry:
    POST   /api/expiry/run        Expire all due rows now

  Admin (reference records for the demo server):
    POST   /api/admin/periods
    POST   /api/admin/entitlements
    POST   /api/admin/contracts
    POST   /api/admin/leave-requests
    POST   /api/reset

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (ledger, aggregator, expiry engine)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - scheduler.go: Periodic expiry runs
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/attunehr/leave-engine/leave"
	"github.com/attunehr/leave-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      *sqlite.Store
	Ledger     *leave.Ledger
	Aggregator *leave.Aggregator
	Engine     *leave.ExpiryEngine

	// Serializes expiry and recalculation runs. The engine's matching pool
	// is claimed in memory, so two concurrent runs could double-spend a day.
	expiryMu sync.Mutex
}

// NewHandler wires handlers around a sqlite store.
func NewHandler(store *sqlite.Store) *Handler {
	resolver := leave.NewWindowResolver(store, store)
	return &Handler{
		Store:      store,
		Ledger:     leave.NewLedger(store, store, leave.FlatWorkPattern{}, leave.DefaultOptionSet()),
		Aggregator: leave.NewAggregator(store, store, store, store, resolver),
		Engine:     leave.NewExpiryEngine(store, store, store, store, resolver),
	}
}

// RunExpiry expires all due rows, single-flight.
func (h *Handler) RunExpiry(ctx context.Context) (int, error) {
	h.expiryMu.Lock()
	defer h.expiryMu.Unlock()
	return h.Engine.CreateExpiryRecords(ctx)
}

// =============================================================================
// ENTITLEMENT ENDPOINTS
// =============================================================================

// GetEntitlementBalance returns the entitlement's full balance.
// GET /api/entitlements/{id}/balance
func (h *Handler) GetEntitlementBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid entitlement id", err)
		return
	}
	ent, err := h.Store.EntitlementByID(ctx, id)
	if err != nil {
		writeDomainError(w, "Failed to load entitlement", err)
		return
	}

	opts := leave.BalanceOptions{
		Statuses:               queryIDList(r, "statuses"),
		ExpiredOnly:            queryBool(r, "expired_only"),
		ExcludeLeaveRequestIDs: queryIDList(r, "exclude_leave_requests"),
	}
	balance, err := h.Aggregator.BalanceForEntitlement(ctx, ent, opts)
	if err != nil {
		writeDomainError(w, "Failed to compute balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(balance))
}

// GetEntitlementBreakdown returns the entitlement's component rows and sum.
// GET /api/entitlements/{id}/breakdown
func (h *Handler) GetEntitlementBreakdown(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid entitlement id", err)
		return
	}

	rows, err := h.Aggregator.BreakdownForEntitlement(ctx, id, queryBool(r, "expired_only"))
	if err != nil {
		writeDomainError(w, "Failed to load breakdown", err)
		return
	}
	writeJSON(w, http.StatusOK, toBreakdownDTO(rows))
}

// GetEntitlementLeaveBalance returns the consumption-only sum.
// GET /api/entitlements/{id}/leave-balance
func (h *Handler) GetEntitlementLeaveBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid entitlement id", err)
		return
	}
	ent, err := h.Store.EntitlementByID(ctx, id)
	if err != nil {
		writeDomainError(w, "Failed to load entitlement", err)
		return
	}

	opts := leave.ConsumptionOptions{
		Statuses:              queryIDList(r, "statuses"),
		ExcludePublicHolidays: queryBool(r, "exclude_public_holidays"),
		PublicHolidaysOnly:    queryBool(r, "public_holidays_only"),
	}
	if opts.DateStart, err = queryDate(r, "date_start"); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date_start", err)
		return
	}
	if opts.DateLimit, err = queryDate(r, "date_limit"); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date_limit", err)
		return
	}

	balance, err := h.Aggregator.LeaveRequestBalanceForEntitlement(ctx, ent, opts)
	if err != nil {
		writeDomainError(w, "Failed to compute leave balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(balance))
}

// DeleteEntitlementBalanceChanges drops the entitlement's component rows.
// DELETE /api/entitlements/{id}/balance-changes
func (h *Handler) DeleteEntitlementBalanceChanges(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid entitlement id", err)
		return
	}
	if err := h.Ledger.DeleteForEntitlement(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to delete balance changes", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// LEAVE REQUEST ENDPOINTS
// =============================================================================

// GetLeaveRequestBreakdown returns the per-day rows of a request.
// GET /api/leave-requests/{id}/breakdown
func (h *Handler) GetLeaveRequestBreakdown(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	lr, ok := h.loadLeaveRequest(w, r)
	if !ok {
		return
	}
	rows, err := h.Aggregator.BreakdownForLeaveRequest(ctx, lr)
	if err != nil {
		writeDomainError(w, "Failed to load breakdown", err)
		return
	}
	writeJSON(w, http.StatusOK, toBreakdownDTO(rows))
}

// GetLeaveRequestBalance returns the request's total deduction.
// GET /api/leave-requests/{id}/balance
func (h *Handler) GetLeaveRequestBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	lr, ok := h.loadLeaveRequest(w, r)
	if !ok {
		return
	}
	balance, err := h.Aggregator.TotalBalanceChangeForLeaveRequest(ctx, lr, queryBool(r, "expired_only"))
	if err != nil {
		writeDomainError(w, "Failed to compute balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(balance))
}

// RecalculateExpiry reruns expiry for past-dated rows the request affects.
// POST /api/leave-requests/{id}/recalculate-expiry
func (h *Handler) RecalculateExpiry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	lr, ok := h.loadLeaveRequest(w, r)
	if !ok {
		return
	}

	h.expiryMu.Lock()
	corrections, err := h.Engine.RecalculateForPastDates(ctx, lr)
	h.expiryMu.Unlock()
	if err != nil {
		writeDomainError(w, "Failed to recalculate expiry", err)
		return
	}
	writeJSON(w, http.StatusOK, ExpiryRunDTO{Corrections: corrections})
}

// DeleteLeaveRequestBalanceChanges drops every per-day row of the request.
// DELETE /api/leave-requests/{id}/balance-changes
func (h *Handler) DeleteLeaveRequestBalanceChanges(w http.ResponseWriter, r *http.Request) {
	lr, ok := h.loadLeaveRequest(w, r)
	if !ok {
		return
	}
	if err := h.Ledger.DeleteAllForLeaveRequest(r.Context(), lr); err != nil {
		writeDomainError(w, "Failed to delete balance changes", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) loadLeaveRequest(w http.ResponseWriter, r *http.Request) (*leave.LeaveRequest, bool) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid leave request id", err)
		return nil, false
	}
	lr, err := h.Store.LeaveRequestByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to load leave request", err)
		return nil, false
	}
	return lr, true
}

// =============================================================================
// CONTACT ENDPOINTS
// =============================================================================

// GetContactBalances returns the grouped balance snapshot for contacts.
// GET /api/contacts/balances?contact_ids=1,2&period_id=3&type_id=4
func (h *Handler) GetContactBalances(w http.ResponseWriter, r *http.Request) {
	h.contactBalances(w, r, h.Aggregator.BalanceForContacts)
}

// GetContactOpenBalances returns would-be deductions of open requests.
// GET /api/contacts/open-balances?contact_ids=1,2&period_id=3&type_id=4
func (h *Handler) GetContactOpenBalances(w http.ResponseWriter, r *http.Request) {
	h.contactBalances(w, r, h.Aggregator.OpenLeaveRequestBalanceForContacts)
}

func (h *Handler) contactBalances(
	w http.ResponseWriter,
	r *http.Request,
	compute func(context.Context, []int64, int64, int64) (leave.ContactBalances, error),
) {
	contactIDs := queryIDList(r, "contact_ids")
	periodID := queryID(r, "period_id")
	if periodID == 0 {
		writeError(w, http.StatusBadRequest, "period_id is required", nil)
		return
	}

	balances, err := compute(r.Context(), contactIDs, periodID, queryID(r, "type_id"))
	if err != nil {
		writeDomainError(w, "Failed to compute balances", err)
		return
	}
	writeJSON(w, http.StatusOK, toContactBalancesDTO(balances))
}

// GetContactTOIL returns the approved TOIL accrued by a contact in a period.
// GET /api/contacts/{id}/toil?period_id=3&type_id=4
func (h *Handler) GetContactTOIL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	contactID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid contact id", err)
		return
	}
	periodID := queryID(r, "period_id")
	if periodID == 0 {
		writeError(w, http.StatusBadRequest, "period_id is required", nil)
		return
	}
	period, err := h.Store.PeriodByID(ctx, periodID)
	if err != nil {
		writeDomainError(w, "Failed to load period", err)
		return
	}

	balance, err := h.Aggregator.TotalApprovedTOILForPeriod(ctx, *period, contactID, queryID(r, "type_id"))
	if err != nil {
		writeDomainError(w, "Failed to compute TOIL balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(balance))
}

// =============================================================================
// LEDGER ENDPOINTS
// =============================================================================

// CreateBalanceChange appends a row to the ledger.
// POST /api/balance-changes
func (h *Handler) CreateBalanceChange(w http.ResponseWriter, r *http.Request) {
	var req CreateBalanceChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	params := leave.CreateParams{
		SourceID:               req.SourceID,
		SourceType:             leave.SourceType(req.SourceType),
		TypeID:                 req.TypeID,
		Amount:                 amount,
		ExpiredBalanceChangeID: req.ExpiredBalanceChangeID,
	}
	if req.ExpiryDate != "" {
		d, err := leave.ParseDate(req.ExpiryDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid expiry_date", err)
			return
		}
		params.ExpiryDate = &d
	}

	bc, err := h.Ledger.CreateBalanceChange(r.Context(), params)
	if err != nil {
		writeDomainError(w, "Failed to create balance change", err)
		return
	}
	writeJSON(w, http.StatusCreated, toBalanceChangeDTO(*bc))
}

// DeleteBalanceChanges removes rows by source.
// DELETE /api/balance-changes?source_type=entitlement&source_id=1
func (h *Handler) DeleteBalanceChanges(w http.ResponseWriter, r *http.Request) {
	sourceType := leave.SourceType(r.URL.Query().Get("source_type"))
	if !sourceType.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid source_type", nil)
		return
	}
	sourceID := queryID(r, "source_id")
	if sourceID == 0 {
		writeError(w, http.StatusBadRequest, "source_id is required", nil)
		return
	}

	if err := h.Ledger.DeleteBySource(r.Context(), sourceType, sourceID); err != nil {
		writeDomainError(w, "Failed to delete balance changes", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// EXPIRY ENDPOINTS
// =============================================================================

// TriggerExpiry expires all due rows immediately.
// POST /api/expiry/run
func (h *Handler) TriggerExpiry(w http.ResponseWriter, r *http.Request) {
	corrections, err := h.RunExpiry(r.Context())
	if err != nil {
		writeDomainError(w, "Expiry run failed", err)
		return
	}
	writeJSON(w, http.StatusOK, ExpiryRunDTO{Corrections: corrections})
}

// =============================================================================
// ADMIN ENDPOINTS (reference records)
// =============================================================================

// SavePeriod creates or updates an absence period.
// POST /api/admin/periods
func (h *Handler) SavePeriod(w http.ResponseWriter, r *http.Request) {
	var req PeriodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	start, err := leave.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date", err)
		return
	}
	end, err := leave.ParseDate(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date", err)
		return
	}

	p := leave.AbsencePeriod{ID: req.ID, Title: req.Title, StartDate: start, EndDate: end}
	if err := h.Store.SavePeriod(r.Context(), p); err != nil {
		writeDomainError(w, "Failed to save period", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SaveEntitlement creates or updates an entitlement record.
// POST /api/admin/entitlements
func (h *Handler) SaveEntitlement(w http.ResponseWriter, r *http.Request) {
	var req EntitlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	e := leave.Entitlement{ID: req.ID, ContactID: req.ContactID, TypeID: req.TypeID, PeriodID: req.PeriodID}
	if err := h.Store.SaveEntitlement(r.Context(), e); err != nil {
		writeDomainError(w, "Failed to save entitlement", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SaveContract creates or updates a contract window.
// POST /api/admin/contracts
func (h *Handler) SaveContract(w http.ResponseWriter, r *http.Request) {
	var req ContractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	start, err := leave.ParseDate(req.PeriodStartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period_start_date", err)
		return
	}

	c := leave.Contract{ID: req.ID, ContactID: req.ContactID, PeriodStartDate: start, Deleted: req.Deleted}
	if req.PeriodEndDate != "" {
		d, err := leave.ParseDate(req.PeriodEndDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid period_end_date", err)
			return
		}
		c.PeriodEndDate = &d
	}

	if err := h.Store.SaveContract(r.Context(), c); err != nil {
		writeDomainError(w, "Failed to save contract", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SaveLeaveRequest creates or updates a leave request plus its date rows.
// POST /api/admin/leave-requests
func (h *Handler) SaveLeaveRequest(w http.ResponseWriter, r *http.Request) {
	var req LeaveRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	from, err := leave.ParseDate(req.FromDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from_date", err)
		return
	}

	lr := leave.LeaveRequest{
		ID:          req.ID,
		ContactID:   req.ContactID,
		TypeID:      req.TypeID,
		StatusID:    req.StatusID,
		RequestType: leave.RequestType(req.RequestType),
		FromDate:    from,
		Deleted:     req.Deleted,
	}
	if req.ToDate != "" {
		d, err := leave.ParseDate(req.ToDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to_date", err)
			return
		}
		lr.ToDate = &d
	}

	dates, err := h.Store.SaveLeaveRequestWithDays(r.Context(), lr)
	if err != nil {
		writeDomainError(w, "Failed to save leave request", err)
		return
	}

	ids := make([]int64, len(dates))
	for i, d := range dates {
		ids[i] = d.ID
	}
	writeJSON(w, http.StatusCreated, LeaveRequestDatesDTO{LeaveRequestID: lr.ID, DateIDs: ids})
}

// ResetDatabase clears all data (dev only).
// POST /api/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeDomainError(w, "Failed to reset database", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
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

// writeDomainError maps domain error kinds to HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case leave.IsValidation(err):
		writeError(w, http.StatusBadRequest, message, err)
	case leave.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

func queryID(r *http.Request, name string) int64 {
	v, _ := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	return v
}

func queryIDList(r *http.Request, name string) []int64 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil
	}
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		v, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err == nil {
			ids = append(ids, v)
		}
	}
	return ids
}

func queryBool(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return v
}

func queryDate(r *http.Request, name string) (*leave.Date, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	d, err := leave.ParseDate(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
