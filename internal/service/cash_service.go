package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/DyelsonM/doutor-agenda-v2-sub001/internal/dto"
	"github.com/DyelsonM/doutor-agenda-v2-sub001/internal/model"
	"github.com/DyelsonM/doutor-agenda-v2-sub001/internal/repository"
	"github.com/DyelsonM/doutor-agenda-v2-sub001/internal/worker"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// CashService owns the cash-session lifecycle and the operation ledger.
// Every entry point takes an explicit (clinicID, actorID) pair resolved by the
// calling layer — the service trusts it as authenticated input and only
// enforces clinic ownership.
type CashService interface {
	OpenSession(ctx context.Context, clinicID, actorID uuid.UUID, req dto.OpenSessionRequest) (*dto.SessionResponse, error)
	AppendOperation(ctx context.Context, clinicID, actorID, sessionID uuid.UUID, req dto.AppendOperationRequest) (*dto.OperationResponse, error)
	CloseSession(ctx context.Context, clinicID, actorID, sessionID uuid.UUID, req dto.CloseSessionRequest) (*dto.SessionResponse, error)
	DeleteSession(ctx context.Context, clinicID, actorID, sessionID uuid.UUID) error

	GetSessionDetail(ctx context.Context, clinicID, sessionID uuid.UUID) (*dto.SessionDetailResponse, error)
	ListOperations(ctx context.Context, clinicID, sessionID uuid.UUID, page, limit int) ([]dto.OperationResponse, int64, error)
	GetOpenSession(ctx context.Context, clinicID uuid.UUID, businessDate string) (*dto.SessionResponse, error)
	GetSessionByDate(ctx context.Context, clinicID uuid.UUID, businessDate string) (*dto.SessionResponse, error)
	ListHistory(ctx context.Context, clinicID uuid.UUID, fromDate string, page, limit int) ([]dto.SessionResponse, int64, error)
}

type cashService struct {
	repo       repository.CashRepository
	dispatcher *worker.Dispatcher // nil when async reporting is disabled (unit tests)
}

func NewCashService(repo repository.CashRepository, dispatcher *worker.Dispatcher) CashService {
	return &cashService{repo: repo, dispatcher: dispatcher}
}

// runTx executes fn inside a GORM transaction when db is available,
// or calls fn(nil) directly when db is nil (unit test mode).
func runTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	if db == nil {
		return fn(nil)
	}
	return db.WithContext(ctx).Transaction(fn)
}

// ── OpenSession ───────────────────────────────────────────────────────────────
// Creates the session directly in "open" plus a synthetic opening ledger entry.
// Uniqueness per (clinic, business date) is enforced by the storage layer in
// the same transaction as the insert — never by a check-then-insert.

func (s *cashService) OpenSession(ctx context.Context, clinicID, actorID uuid.UUID, req dto.OpenSessionRequest) (*dto.SessionResponse, error) {
	if err := validBusinessDate(req.BusinessDate); err != nil {
		return nil, err
	}
	if req.OpeningAmount < 0 {
		return nil, ErrInvalidAmount
	}

	sess := &model.CashSession{
		ClinicID:       clinicID,
		OpenedByUserID: actorID,
		BusinessDate:   req.BusinessDate,
		Identifier:     req.Identifier,
		Status:         model.SessionOpen,
		OpeningTime:    time.Now().UTC(),
		OpeningAmount:  req.OpeningAmount,
		OpeningNotes:   req.OpeningNotes,
	}
	opening := &model.CashOperation{
		UserID:        actorID,
		Type:          model.OpOpening,
		AmountInCents: req.OpeningAmount,
		Description:   "Opening balance",
	}

	if err := s.repo.CreateSessionWithOpening(ctx, sess, opening); err != nil {
		if errors.Is(err, repository.ErrDuplicateOpenSession) {
			return nil, ErrSessionAlreadyOpen
		}
		return nil, err
	}

	resp := sessionToResponse(sess)
	return &resp, nil
}

// ── AppendOperation ───────────────────────────────────────────────────────────
// cash_in / cash_out update the running totals via a single atomic increment
// guarded on status = 'open'. Adjustments are signed memo entries: recorded in
// the ledger, excluded from both totals and from expected-amount arithmetic.

func (s *cashService) AppendOperation(ctx context.Context, clinicID, actorID, sessionID uuid.UUID, req dto.AppendOperationRequest) (*dto.OperationResponse, error) {
	opType := model.OperationType(req.Type)
	if !opType.AppendableByCaller() {
		return nil, ErrInvalidOperationType
	}
	if strings.TrimSpace(req.Description) == "" {
		return nil, ErrEmptyDescription
	}

	var deltaIn, deltaOut int64
	switch opType {
	case model.OpCashIn:
		if req.AmountInCents <= 0 {
			return nil, ErrInvalidAmount
		}
		deltaIn = req.AmountInCents
	case model.OpCashOut:
		if req.AmountInCents <= 0 {
			return nil, ErrInvalidAmount
		}
		deltaOut = req.AmountInCents
	case model.OpAdjustment:
		if req.AmountInCents == 0 {
			return nil, ErrInvalidAdjustment
		}
	}

	// Ownership check before any write; folds other-clinic sessions into
	// not-found. Validation errors must surface before state-conflict errors.
	sess, err := s.findOwnedSession(ctx, clinicID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != model.SessionOpen {
		return nil, ErrSessionNotOpen
	}

	op := &model.CashOperation{
		CashSessionID: sessionID,
		UserID:        actorID,
		Type:          opType,
		AmountInCents: req.AmountInCents,
		Description:   req.Description,
		PaymentMethod: req.PaymentMethod,
	}
	if err := s.repo.AppendOperation(ctx, op, deltaIn, deltaOut); err != nil {
		// The session can close between our read and the guarded increment;
		// the guard catches it and no totals are touched.
		if errors.Is(err, repository.ErrSessionNotOpen) {
			return nil, ErrSessionNotOpen
		}
		return nil, err
	}

	resp := operationToResponse(op)
	return &resp, nil
}

// ── CloseSession ──────────────────────────────────────────────────────────────
// Locks the session row, reconciles from the running totals, writes the
// terminal snapshot and appends the synthetic closing entry — all in one
// transaction, so a failed close leaves the session open and the ledger
// untouched. Closing is not idempotent: a second attempt gets ErrSessionNotOpen.

func (s *cashService) CloseSession(ctx context.Context, clinicID, actorID, sessionID uuid.UUID, req dto.CloseSessionRequest) (*dto.SessionResponse, error) {
	if req.ClosingAmount < 0 {
		// A physical drawer count can never be negative; shortages are
		// expressed through a negative difference.
		return nil, ErrInvalidAmount
	}

	var closed *model.CashSession
	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		sess, err := s.repo.LockSessionForUpdate(ctx, tx, sessionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return err
		}
		if sess.ClinicID != clinicID {
			return ErrSessionNotFound
		}
		if sess.Status != model.SessionOpen {
			return ErrSessionNotOpen
		}

		rec := Reconcile(sess.OpeningAmount, sess.TotalCashIn, sess.TotalCashOut, req.ClosingAmount)

		now := time.Now().UTC()
		sess.Status = model.SessionClosed
		sess.ClosingTime = &now
		sess.ClosingAmount = &req.ClosingAmount
		sess.ExpectedAmount = &rec.ExpectedAmount
		sess.Difference = &rec.Difference
		sess.TotalRevenue = &rec.TotalRevenue
		sess.TotalExpenses = &rec.TotalExpenses
		sess.ClosingNotes = req.ClosingNotes

		if err := s.repo.UpdateSessionClose(ctx, tx, sess); err != nil {
			if errors.Is(err, repository.ErrSessionNotOpen) {
				return ErrSessionNotOpen
			}
			return err
		}

		closing := &model.CashOperation{
			CashSessionID: sess.ID,
			UserID:        actorID,
			Type:          model.OpClosing,
			AmountInCents: req.ClosingAmount,
			Description:   "Closing balance",
		}
		if err := s.repo.CreateOperationTx(ctx, tx, closing); err != nil {
			return err
		}

		closed = sess
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	// Best-effort handoff to downstream reporting. A queue hiccup must never
	// fail a close that already committed.
	if s.dispatcher != nil {
		payload := worker.ClosingReportJobPayload{SessionID: closed.ID.String()}
		if err := s.dispatcher.EnqueueClosingReport(ctx, payload); err != nil {
			log.Error().Err(err).Str("session_id", closed.ID.String()).Msg("failed to enqueue closing report")
		}
	}

	resp := sessionToResponse(closed)
	return &resp, nil
}

// ── DeleteSession ─────────────────────────────────────────────────────────────
// Open sessions cannot be deleted — they must be closed first so the audit
// trail of an active drawer is never lost. Deletion cascades to operations.

func (s *cashService) DeleteSession(ctx context.Context, clinicID, actorID, sessionID uuid.UUID) error {
	sess, err := s.findOwnedSession(ctx, clinicID, sessionID)
	if err != nil {
		return err
	}
	if sess.Status != model.SessionClosed {
		return ErrSessionStillOpen
	}

	if err := s.repo.DeleteSessionCascade(ctx, sessionID); err != nil {
		if errors.Is(err, repository.ErrSessionNotClosed) {
			// Raced with a concurrent delete or an administrative status flip.
			return s.classifyMissingOrConflict(ctx, clinicID, sessionID)
		}
		return err
	}

	log.Info().
		Str("session_id", sessionID.String()).
		Str("clinic_id", clinicID.String()).
		Str("actor_id", actorID.String()).
		Msg("cash session deleted")
	return nil
}

// ── Query / history ───────────────────────────────────────────────────────────

func (s *cashService) GetSessionDetail(ctx context.Context, clinicID, sessionID uuid.UUID) (*dto.SessionDetailResponse, error) {
	sess, err := s.repo.FindSessionWithOperations(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if sess.ClinicID != clinicID {
		return nil, ErrSessionNotFound
	}

	detail := &dto.SessionDetailResponse{
		SessionResponse: sessionToResponse(sess),
		Operations:      make([]dto.OperationResponse, 0, len(sess.Operations)),
	}
	for i := range sess.Operations {
		detail.Operations = append(detail.Operations, operationToResponse(&sess.Operations[i]))
	}
	return detail, nil
}

func (s *cashService) ListOperations(ctx context.Context, clinicID, sessionID uuid.UUID, page, limit int) ([]dto.OperationResponse, int64, error) {
	if _, err := s.findOwnedSession(ctx, clinicID, sessionID); err != nil {
		return nil, 0, err
	}
	ops, total, err := s.repo.ListOperations(ctx, sessionID, page, limit)
	if err != nil {
		return nil, 0, err
	}
	out := make([]dto.OperationResponse, 0, len(ops))
	for i := range ops {
		out = append(out, operationToResponse(&ops[i]))
	}
	return out, total, nil
}

func (s *cashService) GetOpenSession(ctx context.Context, clinicID uuid.UUID, businessDate string) (*dto.SessionResponse, error) {
	if err := validBusinessDate(businessDate); err != nil {
		return nil, err
	}
	sess, err := s.repo.FindOpenSession(ctx, clinicID, businessDate)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	resp := sessionToResponse(sess)
	return &resp, nil
}

func (s *cashService) GetSessionByDate(ctx context.Context, clinicID uuid.UUID, businessDate string) (*dto.SessionResponse, error) {
	if err := validBusinessDate(businessDate); err != nil {
		return nil, err
	}
	sess, err := s.repo.FindLatestSessionByDate(ctx, clinicID, businessDate)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	resp := sessionToResponse(sess)
	return &resp, nil
}

func (s *cashService) ListHistory(ctx context.Context, clinicID uuid.UUID, fromDate string, page, limit int) ([]dto.SessionResponse, int64, error) {
	if fromDate != "" {
		if err := validBusinessDate(fromDate); err != nil {
			return nil, 0, err
		}
	}
	sessions, total, err := s.repo.ListSessions(ctx, clinicID, fromDate, page, limit)
	if err != nil {
		return nil, 0, err
	}
	out := make([]dto.SessionResponse, 0, len(sessions))
	for i := range sessions {
		out = append(out, sessionToResponse(&sessions[i]))
	}
	return out, total, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func validBusinessDate(date string) error {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return ErrInvalidBusinessDate
	}
	return nil
}

// findOwnedSession loads a session and folds both "does not exist" and
// "belongs to another clinic" into ErrSessionNotFound.
func (s *cashService) findOwnedSession(ctx context.Context, clinicID, sessionID uuid.UUID) (*model.CashSession, error) {
	sess, err := s.repo.FindSessionByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if sess.ClinicID != clinicID {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// classifyMissingOrConflict re-reads after a guarded delete matched nothing.
func (s *cashService) classifyMissingOrConflict(ctx context.Context, clinicID, sessionID uuid.UUID) error {
	sess, err := s.findOwnedSession(ctx, clinicID, sessionID)
	if err != nil {
		return err
	}
	if sess.Status != model.SessionClosed {
		return ErrSessionStillOpen
	}
	return ErrSessionNotFound
}

func sessionToResponse(s *model.CashSession) dto.SessionResponse {
	resp := dto.SessionResponse{
		ID:             s.ID.String(),
		ClinicID:       s.ClinicID.String(),
		OpenedByUserID: s.OpenedByUserID.String(),
		BusinessDate:   s.BusinessDate,
		Identifier:     s.Identifier,
		Status:         string(s.Status),
		OpeningTime:    s.OpeningTime.Format(time.RFC3339),
		OpeningAmount:  s.OpeningAmount,
		ClosingAmount:  s.ClosingAmount,
		TotalCashIn:    s.TotalCashIn,
		TotalCashOut:   s.TotalCashOut,
		ExpectedAmount: s.ExpectedAmount,
		Difference:     s.Difference,
		TotalRevenue:   s.TotalRevenue,
		TotalExpenses:  s.TotalExpenses,
		OpeningNotes:   s.OpeningNotes,
		ClosingNotes:   s.ClosingNotes,
	}
	if s.ClosingTime != nil {
		t := s.ClosingTime.Format(time.RFC3339)
		resp.ClosingTime = &t
	}
	return resp
}

func operationToResponse(op *model.CashOperation) dto.OperationResponse {
	return dto.OperationResponse{
		ID:            op.ID.String(),
		CashSessionID: op.CashSessionID.String(),
		UserID:        op.UserID.String(),
		Type:          string(op.Type),
		AmountInCents: op.AmountInCents,
		Description:   op.Description,
		PaymentMethod: op.PaymentMethod,
		CreatedAt:     op.CreatedAt.Format(time.RFC3339),
	}
}
