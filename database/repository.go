package database

import (
	"fmt"
	"time"
)

// ExitRepository handles database operations for the exit audit trail.
type ExitRepository struct {
	db *Database
}

// NewExitRepository creates a new exit repository.
func NewExitRepository(db *Database) *ExitRepository {
	return &ExitRepository{db: db}
}

// InitSchema performs auto-migration for the audit tables.
func (r *ExitRepository) InitSchema() error {
	if err := r.db.db.AutoMigrate(
		&ArmedExitRecord{},
		&ExecutionReport{},
	); err != nil {
		return fmt.Errorf("failed to migrate audit tables: %w", err)
	}
	return nil
}

// SaveArmedExit inserts the audit row for a freshly armed exit and returns
// its id for later attempt rows.
func (r *ExitRepository) SaveArmedExit(rec *ArmedExitRecord) error {
	return r.db.db.Create(rec).Error
}

// CloseArmedExit stamps the close time and reason on an armed-exit row.
func (r *ExitRepository) CloseArmedExit(id uint, reason string, closedAt time.Time) error {
	return r.db.db.Model(&ArmedExitRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"closed_at":    closedAt,
			"close_reason": reason,
		}).Error
}

// SaveExecutionReport records one executor attempt outcome.
func (r *ExitRepository) SaveExecutionReport(rep *ExecutionReport) error {
	return r.db.db.Create(rep).Error
}

// RecentReports returns the latest execution reports for review, newest
// first.
func (r *ExitRepository) RecentReports(limit int) ([]ExecutionReport, error) {
	if limit <= 0 {
		limit = 50
	}
	var reports []ExecutionReport
	err := r.db.db.Order("created_at DESC").Limit(limit).Find(&reports).Error
	return reports, err
}

// OpenArmedExit returns the most recent armed exit that has not been
// closed, if any.
func (r *ExitRepository) OpenArmedExit() (*ArmedExitRecord, error) {
	var rec ArmedExitRecord
	err := r.db.db.Where("closed_at IS NULL").Order("armed_at DESC").First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
