/*
dto.go - Request/response data structures for the HTTP API

PURPOSE:
  Defines the JSON shapes exchanged with clients, separate from domain
  types. Amounts travel as decimal strings, dates as YYYY-MM-DD, and
  instants as RFC3339 - domain invariants (decimal precision, day
  granularity) survive the wire.

SEE ALSO:
  - handlers.go: Handler implementations using these DTOs
*/
package api

import (
	"time"

	"github.com/warp/billing-engine/billing"
)

// =============================================================================
// ACCOUNT DTOs
// =============================================================================

type AccountDTO struct {
	ExternalID   string `json:"external_id"`
	Alias        int    `json:"alias"`
	Name         string `json:"name,omitempty"`
	Active       bool   `json:"active"`
	BaseOverride string `json:"base_override,omitempty"`
	ServiceStart string `json:"service_start,omitempty"`
	IsDefault    bool   `json:"is_default"`
	CreatedAt    string `json:"created_at"`
}

func toAccountDTO(a billing.Account) AccountDTO {
	dto := AccountDTO{
		ExternalID: a.ExternalID,
		Alias:      a.Alias,
		Name:       a.Name,
		Active:     a.Active,
		IsDefault:  a.IsDefault,
		CreatedAt:  a.CreatedAt.Format(time.RFC3339),
	}
	if a.BaseOverride != nil {
		dto.BaseOverride = a.BaseOverride.String()
	}
	if a.ServiceStart != nil {
		dto.ServiceStart = a.ServiceStart.String()
	}
	return dto
}

type RegisterAccountRequest struct {
	ExternalID string `json:"external_id"`
	Name       string `json:"name"`
}

type SetBaseRequest struct {
	Amount string `json:"amount"`
}

type SetDateRequest struct {
	Date string `json:"date"` // YYYY-MM-DD
}

// =============================================================================
// CHARGE DTOs
// =============================================================================

type ChargeDTO struct {
	ID          int64  `json:"id"`
	AccountID   string `json:"account_id"`
	AccountName string `json:"account_name,omitempty"`
	At          string `json:"at"`
	Amount      string `json:"amount"`
	Label       string `json:"label,omitempty"`
	Class       string `json:"class"`
}

func toChargeDTO(c billing.Charge) ChargeDTO {
	return ChargeDTO{
		ID:          int64(c.ID),
		AccountID:   c.AccountID,
		AccountName: c.AccountName,
		At:          c.At.Format(time.RFC3339),
		Amount:      c.Amount.String(),
		Label:       c.Label,
		Class:       string(c.Class),
	}
}

type AppendChargeRequest struct {
	// Account is an external id or alias; empty uses the default account.
	Account string `json:"account"`
	Amount  string `json:"amount"`
	Label   string `json:"label"`
	// Class is "real" (default) or "draft".
	Class string `json:"class"`
	// At is an optional RFC3339 instant; empty means now.
	At string `json:"at"`
}

// =============================================================================
// SETTLEMENT DTOs
// =============================================================================

type RecordSettlementRequest struct {
	// Account empty means settle every active account.
	Account string `json:"account"`
	// At is an optional RFC3339 instant; empty means now.
	At string `json:"at"`
}

type SettlementHistoryDTO struct {
	Account     string   `json:"account"`
	Checkpoints []string `json:"checkpoints"`
	Last        string   `json:"last,omitempty"`
}

// =============================================================================
// REPORT DTOs
// =============================================================================

type SectionDTO struct {
	AccountID   string      `json:"account_id,omitempty"`
	Alias       int         `json:"alias,omitempty"`
	Name        string      `json:"name,omitempty"`
	Unknown     bool        `json:"unknown,omitempty"`
	WorkingDays int         `json:"working_days"`
	Base        string      `json:"base"`
	Charges     []ChargeDTO `json:"charges"`
	ChargeTotal string      `json:"charge_total"`
	Total       string      `json:"total"`
}

type ReportDTO struct {
	Account        string       `json:"account,omitempty"`
	RequestedStart string       `json:"requested_start"`
	RequestedEnd   string       `json:"requested_end"`
	WindowStart    string       `json:"window_start"`
	WindowEnd      string       `json:"window_end"`
	NotYetActive   bool         `json:"not_yet_active"`
	Sections       []SectionDTO `json:"sections"`
	BaseTotal      string       `json:"base_total"`
	ChargeTotal    string       `json:"charge_total"`
	GrandTotal     string       `json:"grand_total"`
}

func toReportDTO(r billing.Report) ReportDTO {
	dto := ReportDTO{
		Account:        string(r.AccountCode),
		RequestedStart: r.RequestedStart.String(),
		RequestedEnd:   r.RequestedEnd.String(),
		WindowStart:    r.WindowStart.String(),
		WindowEnd:      r.WindowEnd.String(),
		NotYetActive:   r.NotYetActive,
		Sections:       []SectionDTO{},
		BaseTotal:      r.BaseTotal.StringFixed(2),
		ChargeTotal:    r.ChargeTotal.StringFixed(2),
		GrandTotal:     r.GrandTotal.StringFixed(2),
	}
	for _, s := range r.Sections {
		sec := SectionDTO{
			AccountID:   s.AccountID,
			Alias:       s.Alias,
			Name:        s.Name,
			Unknown:     s.Unknown,
			WorkingDays: s.WorkingDays,
			Base:        s.Base.StringFixed(2),
			Charges:     []ChargeDTO{},
			ChargeTotal: s.ChargeTotal.StringFixed(2),
			Total:       s.Total.StringFixed(2),
		}
		for _, c := range s.Charges {
			sec.Charges = append(sec.Charges, toChargeDTO(c))
		}
		dto.Sections = append(dto.Sections, sec)
	}
	return dto
}

// =============================================================================
// CALENDAR DTOs
// =============================================================================

type HolidayRangeDTO struct {
	ID    string `json:"id"`
	Start string `json:"start"`
	End   string `json:"end"`
}

func toHolidayRangeDTO(r billing.HolidayRange) HolidayRangeDTO {
	return HolidayRangeDTO{ID: r.ID, Start: r.Start.String(), End: r.End.String()}
}

type AddRangeRequest struct {
	Start string `json:"start"` // YYYY-MM-DD
	End   string `json:"end"`   // YYYY-MM-DD
}

// =============================================================================
// NOTIFICATION DTOs
// =============================================================================

type EventDTO struct {
	Kind      string          `json:"kind"`
	Range     HolidayRangeDTO `json:"range"`
	DaysUntil int             `json:"days_until,omitempty"`
}

func toEventDTO(e billing.Event) EventDTO {
	return EventDTO{
		Kind:      string(e.Kind),
		Range:     toHolidayRangeDTO(e.Range),
		DaysUntil: e.DaysUntil,
	}
}

// =============================================================================
// COMMON
// =============================================================================

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
