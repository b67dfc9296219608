package repository

import (
	"engz_backend/internal/model"

	"gorm.io/gorm"
)

type MissionAttemptRepository struct {
	DB *gorm.DB
}

func NewMissionAttemptRepository(db *gorm.DB) *MissionAttemptRepository {
	return &MissionAttemptRepository{DB: db}
}

func (r *MissionAttemptRepository) Create(attempt *model.MissionAttempt) error {
	return r.DB.Create(attempt).Error
}

func (r *MissionAttemptRepository) ListByMission(missionID uint) ([]model.MissionAttempt, error) {
	var attempts []model.MissionAttempt
	err := r.DB.Where("mission_id = ?", missionID).Order("created_at desc").Find(&attempts).Error
	return attempts, err
}

// MissionBestScore 每个任务的最高分，按周/天排序
type MissionBestScore struct {
	MissionID uint `json:"missionId"`
	Week      int  `json:"week"`
	Day       int  `json:"day"`
	BestScore int  `json:"bestScore"`
}

// BestScoresByRoutine 降级评分不计入，避免固定的兜底分数污染报告
func (r *MissionAttemptRepository) BestScoresByRoutine(routineID uint) ([]MissionBestScore, error) {
	var rows []MissionBestScore
	err := r.DB.Table("mission_attempts a").
		Select("a.mission_id, m.week, m.day, MAX(a.aggregate_score) as best_score").
		Joins("JOIN missions m ON m.id = a.mission_id").
		Where("a.routine_id = ? AND a.degraded = ? AND a.deleted_at IS NULL", routineID, false).
		Group("a.mission_id, m.week, m.day").
		Order("m.week asc, m.day asc").
		Scan(&rows).Error
	return rows, err
}
