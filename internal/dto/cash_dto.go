package dto

// ─── Request DTOs ────────────────────────────────────────────────────────────

// All monetary fields are integer cents. Amount semantics beyond shape
// (positivity per operation type, adjustment signedness) are enforced by the
// service layer so they stay consistent regardless of transport.

type OpenSessionRequest struct {
	BusinessDate  string  `json:"business_date"  validate:"required,datetime=2006-01-02"`
	OpeningAmount int64   `json:"opening_amount" validate:"min=0"`
	Identifier    *string `json:"identifier"     validate:"omitempty,max=100"`
	OpeningNotes  *string `json:"opening_notes"`
}

type AppendOperationRequest struct {
	Type          string  `json:"type"            validate:"required,oneof=cash_in cash_out adjustment"`
	AmountInCents int64   `json:"amount_in_cents" validate:"required"`
	Description   string  `json:"description"     validate:"required"`
	PaymentMethod *string `json:"payment_method"  validate:"omitempty,oneof=cash card transfer pix check"`
}

type CloseSessionRequest struct {
	ClosingAmount int64   `json:"closing_amount" validate:"min=0"`
	ClosingNotes  *string `json:"closing_notes"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type SessionResponse struct {
	ID             string  `json:"id"`
	ClinicID       string  `json:"clinic_id"`
	OpenedByUserID string  `json:"opened_by_user_id"`
	BusinessDate   string  `json:"business_date"`
	Identifier     *string `json:"identifier"`
	Status         string  `json:"status"`
	OpeningTime    string  `json:"opening_time"`
	ClosingTime    *string `json:"closing_time"`
	OpeningAmount  int64   `json:"opening_amount"`
	ClosingAmount  *int64  `json:"closing_amount"`
	TotalCashIn    int64   `json:"total_cash_in"`
	TotalCashOut   int64   `json:"total_cash_out"`
	ExpectedAmount *int64  `json:"expected_amount"`
	Difference     *int64  `json:"difference"`
	TotalRevenue   *int64  `json:"total_revenue"`
	TotalExpenses  *int64  `json:"total_expenses"`
	OpeningNotes   *string `json:"opening_notes"`
	ClosingNotes   *string `json:"closing_notes"`
}

type OperationResponse struct {
	ID            string  `json:"id"`
	CashSessionID string  `json:"cash_session_id"`
	UserID        string  `json:"user_id"`
	Type          string  `json:"type"`
	AmountInCents int64   `json:"amount_in_cents"`
	Description   string  `json:"description"`
	PaymentMethod *string `json:"payment_method"`
	CreatedAt     string  `json:"created_at"`
}

type SessionDetailResponse struct {
	SessionResponse
	Operations []OperationResponse `json:"operations"`
}
