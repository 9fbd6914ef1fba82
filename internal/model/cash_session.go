package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a CashSession.
// "suspended" exists in the schema but has no API transition; it is reachable
// only by direct administrative action.
type SessionStatus string

const (
	SessionOpen      SessionStatus = "open"
	SessionClosed    SessionStatus = "closed"
	SessionSuspended SessionStatus = "suspended"
)

// CashSession is one day's cash-drawer tracking period for one clinic.
// All monetary fields are integer minor-currency units (cents) — never floats.
//
// A partial unique index on (clinic_id, business_date) WHERE status = 'open'
// enforces the single-open-session-per-day invariant at the storage layer
// (see infra.applySchemaPatches).
type CashSession struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ClinicID       uuid.UUID `gorm:"type:uuid;not null;index"`
	OpenedByUserID uuid.UUID `gorm:"type:uuid;not null"`
	// BusinessDate is a plain calendar date (YYYY-MM-DD), timezone-agnostic.
	// Clinic-local-time-to-date conversion is the caller's responsibility.
	// Stored as text: ISO dates compare correctly and no time-of-day or zone
	// can leak in through a timestamp column.
	BusinessDate string        `gorm:"type:varchar(10);not null"`
	Identifier   *string       `gorm:"type:varchar(100)"`
	Status       SessionStatus `gorm:"type:varchar(20);not null;default:'open'"`
	OpeningTime  time.Time
	ClosingTime  *time.Time
	// OpeningAmount is the caller-supplied starting drawer balance, >= 0.
	OpeningAmount int64 `gorm:"not null"`
	// ClosingAmount is the physically counted balance at close, >= 0.
	ClosingAmount *int64
	// TotalCashIn / TotalCashOut are maintained incrementally via atomic
	// UPDATE … SET total = total + amount as operations are appended.
	TotalCashIn  int64 `gorm:"not null;default:0"`
	TotalCashOut int64 `gorm:"not null;default:0"`
	// ExpectedAmount = OpeningAmount + TotalCashIn - TotalCashOut,
	// snapshotted at close time (the ledger is immutable afterwards).
	ExpectedAmount *int64
	// Difference = ClosingAmount - ExpectedAmount. Positive: surplus; negative: shortage.
	Difference    *int64
	TotalRevenue  *int64
	TotalExpenses *int64
	OpeningNotes  *string
	ClosingNotes  *string

	Operations []CashOperation `gorm:"foreignKey:CashSessionID"`
}
