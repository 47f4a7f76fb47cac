/*
handlers.go - HTTP API handlers for the billing engine

PURPOSE:
  Exposes the billing engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Accounts:
    GET    /api/accounts                    List all accounts
    POST   /api/accounts                    Register account
    GET    /api/accounts/{code}             Resolve by external id or alias
    DELETE /api/accounts/{code}             Deactivate (soft removal)
    POST   /api/accounts/{code}/default     Make the account the default
    PUT    /api/accounts/{code}/base        Set per-account weekly base
    DELETE /api/accounts/{code}/base        Revert to the global base
    PUT    /api/accounts/{code}/service-start  Set the service start date

  Charges:
    GET    /api/charges                     Query the ledger
    POST   /api/charges                     Append a charge
    DELETE /api/charges/{id}                Hard-delete a charge

  Settlements:
    POST   /api/settlements                 Record a checkpoint (one or all)
    GET    /api/settlements/{code}          Checkpoint history

  Reports:
    GET    /api/reports?start=&end=&account=   Arbitrary window
    GET    /api/reports/current?account=       Since last settlement
    GET    /api/reports/week?account=          Current week
    GET    /api/reports/month?year=&month=     Calendar month
    GET    /api/reports/year?year=             Calendar year

  Calendar:
    GET    /api/calendar/days               Exclusion dates
    POST   /api/calendar/days               Add one no-service date
    DELETE /api/calendar/days/{date}        Remove a date
    GET    /api/calendar/ranges             Holiday ranges
    POST   /api/calendar/ranges             Add a holiday range

  Admin:
    GET    /api/floor                       Global counting floor
    PUT    /api/floor                       Set the floor
    POST   /api/sweep                       Run the notification sweep now

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Account or charge not found
  - 409: Duplicate account registration
  - 500: Internal errors

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/billing"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *billing.Engine
}

// NewHandler creates a new handler over the assembled engine.
func NewHandler(engine *billing.Engine) *Handler {
	return &Handler{Engine: engine}
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// ListAccounts returns every account ordered by alias.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Engine.Registry.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list accounts", err)
		return
	}

	dtos := make([]AccountDTO, len(accounts))
	for i, a := range accounts {
		dtos[i] = toAccountDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RegisterAccount creates an account for an external id.
func (h *Handler) RegisterAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ExternalID == "" {
		writeError(w, http.StatusBadRequest, "external_id is required", nil)
		return
	}

	account, err := h.Engine.Registry.Register(r.Context(), req.ExternalID, req.Name)
	if err != nil {
		if errors.Is(err, billing.ErrDuplicateAccount) {
			writeError(w, http.StatusConflict, "Account already registered", err)
			return
		}
		writeDomainError(w, "Failed to register account", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(account))
}

// GetAccount resolves a code (external id first, then alias).
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	code := billing.AccountCode(chi.URLParam(r, "code"))

	account, err := h.Engine.Registry.Resolve(r.Context(), code)
	if err != nil {
		writeDomainError(w, "Failed to resolve account", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(account))
}

// DeactivateAccount soft-removes an account.
func (h *Handler) DeactivateAccount(w http.ResponseWriter, r *http.Request) {
	code := billing.AccountCode(chi.URLParam(r, "code"))

	if err := h.Engine.Registry.Deactivate(r.Context(), code); err != nil {
		writeDomainError(w, "Failed to deactivate account", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetDefaultAccount makes the account the single default.
func (h *Handler) SetDefaultAccount(w http.ResponseWriter, r *http.Request) {
	code := billing.AccountCode(chi.URLParam(r, "code"))

	if err := h.Engine.Registry.SetDefault(r.Context(), code); err != nil {
		writeDomainError(w, "Failed to set default account", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetBaseOverride sets the per-account weekly base.
func (h *Handler) SetBaseOverride(w http.ResponseWriter, r *http.Request) {
	code := billing.AccountCode(chi.URLParam(r, "code"))

	var req SetBaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount (use a decimal string)", err)
		return
	}

	if err := h.Engine.Registry.SetBaseOverride(r.Context(), code, amount); err != nil {
		writeDomainError(w, "Failed to set base override", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearBaseOverride reverts the account to the global weekly base.
func (h *Handler) ClearBaseOverride(w http.ResponseWriter, r *http.Request) {
	code := billing.AccountCode(chi.URLParam(r, "code"))

	if err := h.Engine.Registry.ClearBaseOverride(r.Context(), code); err != nil {
		writeDomainError(w, "Failed to clear base override", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetServiceStart sets the account's service start date.
func (h *Handler) SetServiceStart(w http.ResponseWriter, r *http.Request) {
	code := billing.AccountCode(chi.URLParam(r, "code"))

	var req SetDateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	d, err := billing.ParseDay(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	if err := h.Engine.Registry.SetServiceStart(r.Context(), code, d); err != nil {
		writeDomainError(w, "Failed to set service start", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// CHARGE HANDLERS
// =============================================================================

// QueryCharges returns ledger entries matching the query parameters.
// Supported: account, class, from, to (RFC3339).
func (h *Handler) QueryCharges(w http.ResponseWriter, r *http.Request) {
	var filter billing.ChargeFilter

	if code := r.URL.Query().Get("account"); code != "" {
		account, err := h.Engine.Registry.Resolve(r.Context(), billing.AccountCode(code))
		if err != nil {
			writeDomainError(w, "Failed to resolve account", err)
			return
		}
		filter.AccountID = &account.ExternalID
	}
	if class := r.URL.Query().Get("class"); class != "" {
		c := billing.ChargeClass(class)
		if !c.Valid() {
			writeError(w, http.StatusBadRequest, "Invalid class (use real or draft)", nil)
			return
		}
		filter.Class = &c
	}
	if from := r.URL.Query().Get("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from (use RFC3339)", err)
			return
		}
		filter.From = &t
	}
	if to := r.URL.Query().Get("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to (use RFC3339)", err)
			return
		}
		filter.To = &t
	}

	charges, err := h.Engine.Ledger.Query(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query charges", err)
		return
	}

	dtos := make([]ChargeDTO, len(charges))
	for i, c := range charges {
		dtos[i] = toChargeDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AppendCharge records a new ledger entry.
func (h *Handler) AppendCharge(w http.ResponseWriter, r *http.Request) {
	var req AppendChargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount (use a decimal string)", err)
		return
	}

	in := billing.AppendInput{
		AccountCode: billing.AccountCode(req.Account),
		Amount:      amount,
		Label:       req.Label,
		Class:       billing.ChargeClass(req.Class),
	}
	if req.At != "" {
		at, err := time.Parse(time.RFC3339, req.At)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid at (use RFC3339)", err)
			return
		}
		in.At = at
	}

	charge, err := h.Engine.Ledger.Append(r.Context(), in)
	if err != nil {
		writeDomainError(w, "Failed to append charge", err)
		return
	}
	writeJSON(w, http.StatusCreated, toChargeDTO(charge))
}

// RemoveCharge hard-deletes a charge by id.
func (h *Handler) RemoveCharge(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid charge id", err)
		return
	}

	removed, err := h.Engine.Ledger.Remove(r.Context(), billing.ChargeID(id))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to remove charge", err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "Charge not found", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// SETTLEMENT HANDLERS
// =============================================================================

// RecordSettlement appends a checkpoint for one account, or for every
// active account when no account is given.
func (h *Handler) RecordSettlement(w http.ResponseWriter, r *http.Request) {
	var req RecordSettlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var at time.Time
	if req.At != "" {
		t, err := time.Parse(time.RFC3339, req.At)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid at (use RFC3339)", err)
			return
		}
		at = t
	}

	if err := h.Engine.Settlement.Record(r.Context(), billing.AccountCode(req.Account), at); err != nil {
		writeDomainError(w, "Failed to record settlement", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SettlementHistory returns the account's checkpoint list.
func (h *Handler) SettlementHistory(w http.ResponseWriter, r *http.Request) {
	code := billing.AccountCode(chi.URLParam(r, "code"))

	account, err := h.Engine.Registry.Resolve(r.Context(), code)
	if err != nil {
		writeDomainError(w, "Failed to resolve account", err)
		return
	}

	cps, err := h.Engine.Settlement.History(r.Context(), account.ExternalID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load settlement history", err)
		return
	}

	dto := SettlementHistoryDTO{
		Account:     account.ExternalID,
		Checkpoints: make([]string, len(cps)),
	}
	for i, t := range cps {
		dto.Checkpoints[i] = t.Format(time.RFC3339)
	}
	if len(cps) > 0 {
		dto.Last = cps[len(cps)-1].Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// GetReport builds a report for an arbitrary window.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	start, err := billing.ParseDay(r.URL.Query().Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start (use YYYY-MM-DD)", err)
		return
	}
	end, err := billing.ParseDay(r.URL.Query().Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end (use YYYY-MM-DD)", err)
		return
	}
	if end.Before(start) {
		writeError(w, http.StatusBadRequest, "end before start", billing.ErrInvalidRange)
		return
	}

	h.buildReport(w, r, start, end)
}

// GetCurrentReport builds the since-last-settlement report.
func (h *Handler) GetCurrentReport(w http.ResponseWriter, r *http.Request) {
	code := billing.AccountCode(r.URL.Query().Get("account"))

	report, err := h.Engine.Reports.BuildSinceSettlement(r.Context(), code)
	if err != nil {
		writeDomainError(w, "Failed to build report", err)
		return
	}
	writeJSON(w, http.StatusOK, toReportDTO(report))
}

// GetWeekReport builds the report for the current Monday-to-Sunday week.
func (h *Handler) GetWeekReport(w http.ResponseWriter, r *http.Request) {
	start, end := billing.WeekWindow(billing.Today(h.Engine.Clock()))
	h.buildReport(w, r, start, end)
}

// GetMonthReport builds the report for a calendar month
// (defaults to the current month).
func (h *Handler) GetMonthReport(w http.ResponseWriter, r *http.Request) {
	today := billing.Today(h.Engine.Clock())
	year, month := today.Year(), today.Month()

	if v := r.URL.Query().Get("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return
		}
		year = y
	}
	if v := r.URL.Query().Get("month"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			writeError(w, http.StatusBadRequest, "Invalid month (1-12)", err)
			return
		}
		month = time.Month(m)
	}

	start, end := billing.MonthWindow(year, month)
	h.buildReport(w, r, start, end)
}

// GetYearReport builds the report for a calendar year
// (defaults to the current year).
func (h *Handler) GetYearReport(w http.ResponseWriter, r *http.Request) {
	year := billing.Today(h.Engine.Clock()).Year()
	if v := r.URL.Query().Get("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return
		}
		year = y
	}

	start, end := billing.YearWindow(year)
	h.buildReport(w, r, start, end)
}

func (h *Handler) buildReport(w http.ResponseWriter, r *http.Request, start, end billing.Day) {
	code := billing.AccountCode(r.URL.Query().Get("account"))

	report, err := h.Engine.Reports.Build(r.Context(), code, start, end)
	if err != nil {
		writeDomainError(w, "Failed to build report", err)
		return
	}
	writeJSON(w, http.StatusOK, toReportDTO(report))
}

// =============================================================================
// CALENDAR HANDLERS
// =============================================================================

// ListExclusionDays returns the exclusion date set.
func (h *Handler) ListExclusionDays(w http.ResponseWriter, r *http.Request) {
	cal, err := h.Engine.Calendar.Load(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load calendar", err)
		return
	}

	days := cal.Days()
	out := make([]string, len(days))
	for i, d := range days {
		out[i] = d.String()
	}
	writeJSON(w, http.StatusOK, out)
}

// AddExclusionDay adds one no-service date.
func (h *Handler) AddExclusionDay(w http.ResponseWriter, r *http.Request) {
	var req SetDateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	d, err := billing.ParseDay(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	if err := h.Engine.Calendar.AddDate(r.Context(), d); err != nil {
		writeDomainError(w, "Failed to add exclusion date", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveExclusionDay removes one date from the exclusion set.
func (h *Handler) RemoveExclusionDay(w http.ResponseWriter, r *http.Request) {
	d, err := billing.ParseDay(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	removed, err := h.Engine.Calendar.RemoveDate(r.Context(), d)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to remove exclusion date", err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "Date not excluded", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListHolidayRanges returns all recorded ranges.
func (h *Handler) ListHolidayRanges(w http.ResponseWriter, r *http.Request) {
	ranges, err := h.Engine.Calendar.Ranges(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list holiday ranges", err)
		return
	}

	dtos := make([]HolidayRangeDTO, len(ranges))
	for i, hr := range ranges {
		dtos[i] = toHolidayRangeDTO(hr)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AddHolidayRange records a range and expands it into the exclusion set.
func (h *Handler) AddHolidayRange(w http.ResponseWriter, r *http.Request) {
	var req AddRangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	start, err := billing.ParseDay(req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start (use YYYY-MM-DD)", err)
		return
	}
	end, err := billing.ParseDay(req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end (use YYYY-MM-DD)", err)
		return
	}

	hr, err := h.Engine.Calendar.AddRange(r.Context(), start, end)
	if err != nil {
		writeDomainError(w, "Failed to add holiday range", err)
		return
	}
	writeJSON(w, http.StatusCreated, toHolidayRangeDTO(hr))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// GetGlobalFloor returns the counting floor, empty when unset.
func (h *Handler) GetGlobalFloor(w http.ResponseWriter, r *http.Request) {
	floor, err := h.Engine.GlobalFloor(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read floor", err)
		return
	}

	resp := SetDateRequest{}
	if floor != nil {
		resp.Date = floor.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// SetGlobalFloor records the counting floor.
func (h *Handler) SetGlobalFloor(w http.ResponseWriter, r *http.Request) {
	var req SetDateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	d, err := billing.ParseDay(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	if err := h.Engine.SetGlobalFloor(r.Context(), d); err != nil {
		writeDomainError(w, "Failed to set floor", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RunSweep triggers the notification sweep immediately.
func (h *Handler) RunSweep(w http.ResponseWriter, r *http.Request) {
	events, err := h.Engine.Sweeper.Run(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Sweep failed", err)
		return
	}

	dtos := make([]EventDTO, len(events))
	for i, e := range events {
		dtos[i] = toEventDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// RESPONSE HELPERS
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

// writeDomainError maps domain errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case billing.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, billing.ErrDuplicateAccount):
		writeError(w, http.StatusConflict, message, err)
	case billing.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
