package repository

import (
	"engz_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ReportRepository struct {
	DB *gorm.DB
}

func NewReportRepository(db *gorm.DB) *ReportRepository {
	return &ReportRepository{DB: db}
}

func (r *ReportRepository) FindByRoutine(routineID uint) (*model.Report, error) {
	var report model.Report
	if err := r.DB.Where("routine_id = ?", routineID).First(&report).Error; err != nil {
		return nil, err
	}
	return &report, nil
}

// Upsert 每个 routine 只保留一份报告，重算时覆盖
func (r *ReportRepository) Upsert(report *model.Report) error {
	return r.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "routine_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"summary", "score_change_percent", "early_average", "recent_average", "sample_size", "week", "updated_at",
		}),
	}).Create(report).Error
}
