package repository

import (
	"context"
	"errors"

	"github.com/DyelsonM/doutor-agenda-v2-sub001/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Storage-level sentinels. The service layer translates these into its own
// error taxonomy; handlers never see them directly.
var (
	// ErrDuplicateOpenSession surfaces the partial-unique-index violation on
	// (clinic_id, business_date) WHERE status = 'open'.
	ErrDuplicateOpenSession = errors.New("an open cash session already exists for this clinic and date")
	// ErrSessionNotOpen is returned when a guarded UPDATE … WHERE status = 'open'
	// matches no row (session missing, closed, or suspended).
	ErrSessionNotOpen = errors.New("cash session is not open")
	// ErrSessionNotClosed is returned when a guarded delete finds the session
	// in any state other than closed.
	ErrSessionNotClosed = errors.New("cash session is not closed")
)

type CashRepository interface {
	// CreateSessionWithOpening inserts the session and its synthetic "opening"
	// ledger entry in one transaction. Open-uniqueness is enforced by the
	// storage layer, not by a check-then-insert.
	CreateSessionWithOpening(ctx context.Context, s *model.CashSession, opening *model.CashOperation) error
	FindSessionByID(ctx context.Context, id uuid.UUID) (*model.CashSession, error)
	FindSessionWithOperations(ctx context.Context, id uuid.UUID) (*model.CashSession, error)
	FindOpenSession(ctx context.Context, clinicID uuid.UUID, businessDate string) (*model.CashSession, error)
	FindLatestSessionByDate(ctx context.Context, clinicID uuid.UUID, businessDate string) (*model.CashSession, error)
	ListSessions(ctx context.Context, clinicID uuid.UUID, fromDate string, page, limit int) ([]model.CashSession, int64, error)
	// AppendOperation atomically increments the owning session's running totals
	// (guarded on status = 'open') and inserts the operation, in one transaction.
	AppendOperation(ctx context.Context, op *model.CashOperation, deltaIn, deltaOut int64) error
	ListOperations(ctx context.Context, sessionID uuid.UUID, page, limit int) ([]model.CashOperation, int64, error)
	// LockSessionForUpdate reads the session row under SELECT … FOR UPDATE so
	// the close flow reconciles against totals no concurrent append can move.
	LockSessionForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.CashSession, error)
	// UpdateSessionClose writes the terminal fields set on s, guarded on
	// status = 'open' so a second close observes ErrSessionNotOpen.
	UpdateSessionClose(ctx context.Context, tx *gorm.DB, s *model.CashSession) error
	CreateOperationTx(ctx context.Context, tx *gorm.DB, op *model.CashOperation) error
	// DeleteSessionCascade removes the session and all its operations.
	// Only closed sessions may be deleted.
	DeleteSessionCascade(ctx context.Context, sessionID uuid.UUID) error
	// DB exposes the handle for transaction creation in the service layer.
	DB() *gorm.DB
}

type cashRepo struct{ db *gorm.DB }

func NewCashRepository(db *gorm.DB) CashRepository { return &cashRepo{db: db} }

func (r *cashRepo) DB() *gorm.DB { return r.db }

func (r *cashRepo) CreateSessionWithOpening(ctx context.Context, s *model.CashSession, opening *model.CashOperation) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(s).Error; err != nil {
			// Requires gorm.Config{TranslateError: true} so SQLSTATE 23505
			// on the partial unique index maps to ErrDuplicatedKey.
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateOpenSession
			}
			return err
		}
		opening.CashSessionID = s.ID
		return tx.Create(opening).Error
	})
}

func (r *cashRepo) FindSessionByID(ctx context.Context, id uuid.UUID) (*model.CashSession, error) {
	var s model.CashSession
	err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *cashRepo) FindSessionWithOperations(ctx context.Context, id uuid.UUID) (*model.CashSession, error) {
	var s model.CashSession
	err := r.db.WithContext(ctx).
		Preload("Operations", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		First(&s, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *cashRepo) FindOpenSession(ctx context.Context, clinicID uuid.UUID, businessDate string) (*model.CashSession, error) {
	var s model.CashSession
	err := r.db.WithContext(ctx).
		Where("clinic_id = ? AND business_date = ? AND status = ?", clinicID, businessDate, model.SessionOpen).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *cashRepo) FindLatestSessionByDate(ctx context.Context, clinicID uuid.UUID, businessDate string) (*model.CashSession, error) {
	var s model.CashSession
	err := r.db.WithContext(ctx).
		Where("clinic_id = ? AND business_date = ?", clinicID, businessDate).
		Order("opening_time DESC").
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *cashRepo) ListSessions(ctx context.Context, clinicID uuid.UUID, fromDate string, page, limit int) ([]model.CashSession, int64, error) {
	var sessions []model.CashSession
	var total int64
	offset := (page - 1) * limit

	q := r.db.WithContext(ctx).Model(&model.CashSession{}).Where("clinic_id = ?", clinicID)
	if fromDate != "" {
		q = q.Where("business_date >= ?", fromDate)
	}

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := q.Order("business_date DESC, opening_time DESC").
		Offset(offset).Limit(limit).
		Find(&sessions).Error
	return sessions, total, err
}

func (r *cashRepo) AppendOperation(ctx context.Context, op *model.CashOperation, deltaIn, deltaOut int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Single atomic increment — never read-modify-write — so concurrent
		// appends to the same session cannot lose updates. The status guard
		// makes the open check part of the same statement. Adjustments pass
		// zero deltas but still hit the guard.
		res := tx.Model(&model.CashSession{}).
			Where("id = ? AND status = ?", op.CashSessionID, model.SessionOpen).
			UpdateColumns(map[string]interface{}{
				"total_cash_in":  gorm.Expr("total_cash_in + ?", deltaIn),
				"total_cash_out": gorm.Expr("total_cash_out + ?", deltaOut),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrSessionNotOpen
		}
		return tx.Create(op).Error
	})
}

func (r *cashRepo) ListOperations(ctx context.Context, sessionID uuid.UUID, page, limit int) ([]model.CashOperation, int64, error) {
	var ops []model.CashOperation
	var total int64
	offset := (page - 1) * limit

	q := r.db.WithContext(ctx).Model(&model.CashOperation{}).Where("cash_session_id = ?", sessionID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&ops).Error
	return ops, total, err
}

func (r *cashRepo) LockSessionForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.CashSession, error) {
	var s model.CashSession
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&s, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *cashRepo) UpdateSessionClose(ctx context.Context, tx *gorm.DB, s *model.CashSession) error {
	// The status re-check is part of the same UPDATE that writes the terminal
	// fields, so two concurrent close attempts cannot both succeed.
	res := tx.WithContext(ctx).Model(&model.CashSession{}).
		Where("id = ? AND status = ?", s.ID, model.SessionOpen).
		Updates(map[string]interface{}{
			"status":          model.SessionClosed,
			"closing_time":    s.ClosingTime,
			"closing_amount":  s.ClosingAmount,
			"expected_amount": s.ExpectedAmount,
			"difference":      s.Difference,
			"total_revenue":   s.TotalRevenue,
			"total_expenses":  s.TotalExpenses,
			"closing_notes":   s.ClosingNotes,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSessionNotOpen
	}
	return nil
}

func (r *cashRepo) CreateOperationTx(ctx context.Context, tx *gorm.DB, op *model.CashOperation) error {
	return tx.WithContext(ctx).Create(op).Error
}

func (r *cashRepo) DeleteSessionCascade(ctx context.Context, sessionID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Operations go first (FK on cash_session_id); if the guarded session
		// delete then matches no closed row the whole transaction rolls back
		// and the operations reappear untouched.
		if err := tx.Where("cash_session_id = ?", sessionID).Delete(&model.CashOperation{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ? AND status = ?", sessionID, model.SessionClosed).
			Delete(&model.CashSession{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrSessionNotClosed
		}
		return nil
	})
}
