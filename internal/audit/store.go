// Package audit is the supplemental append-only enforcement-history store
// backing get_enforcement_history (spec §6.2). It is GORM/Postgres-backed,
// generalized from the teacher's internal/config/database.go connection
// and migration conventions (there SQLite-tuned for HFT order-book
// workloads; here a plain Postgres table for durable audit records — this
// daemon has no order-book, so the HFT pragma tuning does not apply).
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kestrel-trading/riskguard/internal/rules"
)

// Entry is one enforcement-history row (spec §6.2 get_enforcement_history).
type Entry struct {
	ID         uint      `gorm:"primaryKey"`
	AccountID  string    `gorm:"index;size:64"`
	EventID    string    `gorm:"index;size:64"`
	RuleName   string    `gorm:"size:64"`
	Severity   string    `gorm:"size:16"`
	ActionType string    `gorm:"size:32"`
	Message    string
	OccurredAt time.Time `gorm:"index"`
}

// Store is the enforcement-history sink and query surface.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open connects to dsn and migrates the Entry table.
func Open(dsn string, logger *zap.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, err
	}
	return &Store{db: db, logger: logger}, nil
}

// Record appends one enforcement decision to the audit log — best-effort:
// a write failure is logged, never propagated back into the dispatch path
// (spec §1: the audit store is supplemental, never allowed to block or
// fail the core enforcement pipeline).
func (s *Store) Record(ctx context.Context, accountID string, action rules.Action, occurredAt time.Time) {
	entry := Entry{
		AccountID:  accountID,
		EventID:    action.Violation.EventID,
		RuleName:   action.Violation.RuleName,
		Severity:   string(action.Violation.Severity),
		ActionType: string(action.Type),
		Message:    action.Violation.Message,
		OccurredAt: occurredAt,
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil && s.logger != nil {
		s.logger.Warn("audit: failed to record enforcement entry", zap.Error(err))
	}
}

// History returns accountID's enforcement history, most recent first,
// bounded to limit rows.
func (s *Store) History(ctx context.Context, accountID string, limit int) ([]Entry, error) {
	var entries []Entry
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("occurred_at DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
