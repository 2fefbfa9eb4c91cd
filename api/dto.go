/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

AMOUNTS AND DATES:
  Amounts travel as decimal strings so clients never see float artifacts.
  Dates travel as YYYY-MM-DD.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - leave/types.go: Domain model these map from
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/attunehr/leave-engine/leave"
)

// =============================================================================
// LEDGER ROWS
// =============================================================================

// BalanceChangeDTO represents a ledger row in API responses.
type BalanceChangeDTO struct {
	ID                     int64  `json:"id"`
	SourceID               int64  `json:"source_id"`
	SourceType             string `json:"source_type"`
	TypeID                 int64  `json:"type_id"`
	Amount                 string `json:"amount"`
	ExpiryDate             string `json:"expiry_date,omitempty"`
	ExpiredBalanceChangeID *int64 `json:"expired_balance_change_id,omitempty"`
}

func toBalanceChangeDTO(bc leave.BalanceChange) BalanceChangeDTO {
	dto := BalanceChangeDTO{
		ID:                     bc.ID,
		SourceID:               bc.SourceID,
		SourceType:             string(bc.SourceType),
		TypeID:                 bc.TypeID,
		Amount:                 bc.Amount.String(),
		ExpiredBalanceChangeID: bc.ExpiredBalanceChangeID,
	}
	if bc.ExpiryDate != nil {
		dto.ExpiryDate = bc.ExpiryDate.String()
	}
	return dto
}

func toBalanceChangeDTOs(rows []leave.BalanceChange) []BalanceChangeDTO {
	dtos := make([]BalanceChangeDTO, 0, len(rows))
	for _, bc := range rows {
		dtos = append(dtos, toBalanceChangeDTO(bc))
	}
	return dtos
}

// CreateBalanceChangeRequest is the request to append a ledger row.
type CreateBalanceChangeRequest struct {
	SourceID               int64  `json:"source_id"`
	SourceType             string `json:"source_type"`
	TypeID                 int64  `json:"type_id"`
	Amount                 string `json:"amount"`
	ExpiryDate             string `json:"expiry_date,omitempty"`
	ExpiredBalanceChangeID *int64 `json:"expired_balance_change_id,omitempty"`
}

// =============================================================================
// BALANCES
// =============================================================================

// BalanceDTO wraps a single computed balance.
type BalanceDTO struct {
	Balance string `json:"balance"`
}

func toBalanceDTO(d decimal.Decimal) BalanceDTO {
	return BalanceDTO{Balance: d.String()}
}

// BreakdownDTO is an entitlement or request breakdown with its sum.
type BreakdownDTO struct {
	Changes []BalanceChangeDTO `json:"changes"`
	Balance string             `json:"balance"`
}

func toBreakdownDTO(rows []leave.BalanceChange) BreakdownDTO {
	sum := decimal.Zero
	for _, bc := range rows {
		sum = sum.Add(bc.Amount)
	}
	return BreakdownDTO{Changes: toBalanceChangeDTOs(rows), Balance: sum.String()}
}

// ContactBalancesDTO maps contact id -> absence type id -> balance string.
// Pairs with no rows are absent, not zero.
type ContactBalancesDTO map[int64]map[int64]string

func toContactBalancesDTO(balances leave.ContactBalances) ContactBalancesDTO {
	out := make(ContactBalancesDTO, len(balances))
	for contactID, byType := range balances {
		m := make(map[int64]string, len(byType))
		for typeID, amount := range byType {
			m[typeID] = amount.String()
		}
		out[contactID] = m
	}
	return out
}

// =============================================================================
// EXPIRY
// =============================================================================

// ExpiryRunDTO reports one expiry or recalculation run.
type ExpiryRunDTO struct {
	ID          string `json:"id,omitempty"`
	Corrections int    `json:"corrections"`
	StartedAt   string `json:"started_at,omitempty"`
	FinishedAt  string `json:"finished_at,omitempty"`
	Error       string `json:"error,omitempty"`
}

// =============================================================================
// REFERENCE RECORDS (demo/admin surface)
// =============================================================================

// PeriodRequest creates or updates an absence period.
type PeriodRequest struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// EntitlementRequest creates or updates an entitlement record.
type EntitlementRequest struct {
	ID        int64 `json:"id"`
	ContactID int64 `json:"contact_id"`
	TypeID    int64 `json:"type_id"`
	PeriodID  int64 `json:"period_id"`
}

// ContractRequest creates or updates a contract window.
type ContractRequest struct {
	ID              int64  `json:"id"`
	ContactID       int64  `json:"contact_id"`
	PeriodStartDate string `json:"period_start_date"`
	PeriodEndDate   string `json:"period_end_date,omitempty"`
	Deleted         bool   `json:"deleted"`
}

// LeaveRequestRequest creates or updates a leave request and its dates.
type LeaveRequestRequest struct {
	ID          int64  `json:"id"`
	ContactID   int64  `json:"contact_id"`
	TypeID      int64  `json:"type_id"`
	StatusID    int64  `json:"status_id"`
	RequestType string `json:"request_type"`
	FromDate    string `json:"from_date"`
	ToDate      string `json:"to_date,omitempty"`
	Deleted     bool   `json:"deleted"`
}

// LeaveRequestDatesDTO returns the generated date rows for a saved request.
type LeaveRequestDatesDTO struct {
	LeaveRequestID int64   `json:"leave_request_id"`
	DateIDs        []int64 `json:"date_ids"`
}

// ErrorResponse is the standard error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
