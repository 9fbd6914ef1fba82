package model

import (
	"time"

	"github.com/google/uuid"
)

// OperationType classifies a ledger entry.
// "opening" and "closing" are system-generated bookkeeping entries created by
// the session lifecycle — callers may only append cash_in, cash_out, adjustment.
type OperationType string

const (
	OpOpening    OperationType = "opening"
	OpClosing    OperationType = "closing"
	OpCashIn     OperationType = "cash_in"
	OpCashOut    OperationType = "cash_out"
	OpAdjustment OperationType = "adjustment"
)

// AppendableByCaller reports whether t may be supplied through AppendOperation.
func (t OperationType) AppendableByCaller() bool {
	return t == OpCashIn || t == OpCashOut || t == OpAdjustment
}

// CashOperation is an immutable event in the cash session ledger.
// Operations are NEVER updated or individually deleted — the only way they
// disappear is the cascade delete of their (closed) owning session.
type CashOperation struct {
	ID            uuid.UUID     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CashSessionID uuid.UUID     `gorm:"type:uuid;index;not null"`
	UserID        uuid.UUID     `gorm:"type:uuid;not null"`
	Type          OperationType `gorm:"type:varchar(20);not null"`
	// AmountInCents is > 0 for cash_in/cash_out; adjustments are signed memos
	// (non-zero, excluded from the running totals and from expected-amount math).
	AmountInCents int64  `gorm:"not null"`
	Description   string `gorm:"not null"`
	// PaymentMethod is informational only — the daily-cash model tracks the
	// physical drawer regardless of method.
	PaymentMethod *string `gorm:"type:varchar(20)"`
	CreatedAt     time.Time
}
