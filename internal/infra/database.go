package infra

import (
	"fmt"

	"github.com/DyelsonM/doutor-agenda-v2-sub001/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase establishes a GORM connection backed by pgx, runs AutoMigrate for
// the ledger tables, then applies the idempotent SQL patches GORM cannot
// express (the partial unique index behind the single-open-session invariant).
//
// TranslateError is required: the repository relies on gorm.ErrDuplicatedKey to
// turn SQLSTATE 23505 on that index into a business-level conflict.
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if err := RunMigrations(db); err != nil {
		return nil, err
	}

	return db, nil
}

// RunMigrations creates/updates the ledger schema. Also used by integration
// tests against a throwaway container database.
func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.CashSession{},
		&model.CashOperation{},
	); err != nil {
		return fmt.Errorf("AutoMigrate: %w", err)
	}
	return applySchemaPatches(db)
}

// applySchemaPatches runs idempotent DDL that AutoMigrate cannot handle.
// The partial unique index is the storage-level enforcement of the
// one-open-session-per-(clinic, business date) invariant: a naive
// check-then-insert in the service layer would be a race.
func applySchemaPatches(db *gorm.DB) error {
	patches := []string{
		`DO $$ BEGIN
		  IF NOT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'uni_cash_sessions_open_per_day') THEN
		    CREATE UNIQUE INDEX uni_cash_sessions_open_per_day
		        ON cash_sessions (clinic_id, business_date)
		        WHERE status = 'open';
		  END IF;
		END $$`,
		// History queries: business_date desc per clinic
		`DO $$ BEGIN
		  IF NOT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_cash_sessions_clinic_date') THEN
		    CREATE INDEX idx_cash_sessions_clinic_date
		        ON cash_sessions (clinic_id, business_date DESC);
		  END IF;
		END $$`,
		// Ledger listing: created_at ordering within a session
		`DO $$ BEGIN
		  IF NOT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_cash_operations_session_created') THEN
		    CREATE INDEX idx_cash_operations_session_created
		        ON cash_operations (cash_session_id, created_at DESC);
		  END IF;
		END $$`,
	}

	for _, sql := range patches {
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("schema patch: %w", err)
		}
	}
	return nil
}
