package service

import "errors"

// Business error taxonomy for the cash ledger. Handlers map these with
// errors.Is: validation → 400, state conflicts → 409, not found → 404.
// Anything else is an opaque storage failure → 500.
var (
	// Validation — detected before any write, never retried.
	ErrInvalidAmount        = errors.New("amount must be a positive integer number of cents")
	ErrInvalidAdjustment    = errors.New("adjustment amount must be a non-zero integer number of cents")
	ErrInvalidOperationType = errors.New("operation type must be cash_in, cash_out or adjustment")
	ErrEmptyDescription     = errors.New("description must not be empty")
	ErrInvalidBusinessDate  = errors.New("business date must be a calendar date in YYYY-MM-DD format")

	// State conflicts — expected, recoverable; the caller informs the user.
	ErrSessionAlreadyOpen = errors.New("a cash session is already open for this clinic and business date")
	ErrSessionNotOpen     = errors.New("cash session is not open")
	ErrSessionStillOpen   = errors.New("cash session is still open; close it before deleting")

	// Not found. Sessions belonging to another clinic are folded in here so
	// existence never leaks across tenants.
	ErrSessionNotFound = errors.New("cash session not found")
)
