package repository

import (
	"context"

	"kindred/internal/models"

	"gorm.io/gorm"
)

// ReportRepository persists user reports.
type ReportRepository interface {
	Exists(ctx context.Context, reporterID, reportedID uint, category string) (bool, error)
	ExistsBetween(ctx context.Context, a, b uint) (bool, error)
	Create(tx *gorm.DB, report *models.Report) error
}

type reportRepository struct {
	db *gorm.DB
}

// NewReportRepository returns a new ReportRepository implementation.
func NewReportRepository(db *gorm.DB) ReportRepository {
	return &reportRepository{db: db}
}

// Exists checks for an identical report. The pair is not unique at the schema
// level; callers check before inserting.
func (r *reportRepository) Exists(ctx context.Context, reporterID, reportedID uint, category string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Report{}).
		Where("reporter_id = ? AND reported_id = ? AND category = ?", reporterID, reportedID, category).
		Count(&count).Error
	return count > 0, err
}

// ExistsBetween reports whether either user has reported the other.
func (r *reportRepository) ExistsBetween(ctx context.Context, a, b uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Report{}).
		Where("(reporter_id = ? AND reported_id = ?) OR (reporter_id = ? AND reported_id = ?)", a, b, b, a).
		Count(&count).Error
	return count > 0, err
}

func (r *reportRepository) Create(tx *gorm.DB, report *models.Report) error {
	return tx.Create(report).Error
}
