package repository

import (
	"engz_backend/internal/model"

	"gorm.io/gorm"
)

type LevelTestRepository struct {
	DB   *gorm.DB
	Caps model.SchemaCapabilities
}

func NewLevelTestRepository(db *gorm.DB, caps model.SchemaCapabilities) *LevelTestRepository {
	return &LevelTestRepository{DB: db, Caps: caps}
}

func (r *LevelTestRepository) ListQuestions() ([]model.LevelTestQuestion, error) {
	var qs []model.LevelTestQuestion
	err := r.DB.Order("`order` asc, id asc").Find(&qs).Error
	return qs, err
}

// omitted 返回当前库结构不支持的列
func (r *LevelTestRepository) omitted() []string {
	var cols []string
	if !r.Caps.LevelResultAvgResponseTime {
		cols = append(cols, "AvgResponseTime")
	}
	if !r.Caps.LevelResultAIPlan {
		cols = append(cols, "AIPlan")
	}
	return cols
}

func (r *LevelTestRepository) Create(result *model.LevelTestResult) error {
	tx := r.DB
	if cols := r.omitted(); len(cols) > 0 {
		tx = tx.Omit(cols...)
	}
	return tx.Create(result).Error
}

func (r *LevelTestRepository) FindByID(id uint) (*model.LevelTestResult, error) {
	var result model.LevelTestResult
	tx := r.DB
	if cols := r.omitted(); len(cols) > 0 {
		tx = tx.Omit(cols...)
	}
	if err := tx.First(&result, id).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *LevelTestRepository) ListByUser(userID uint) ([]model.LevelTestResult, error) {
	var results []model.LevelTestResult
	tx := r.DB
	if cols := r.omitted(); len(cols) > 0 {
		tx = tx.Omit(cols...)
	}
	err := tx.Where("user_id = ?", userID).Order("created_at desc").Find(&results).Error
	return results, err
}

// AllTotalScores 全量历史分数，百分位每次提交都重新扫描
func (r *LevelTestRepository) AllTotalScores() ([]int, error) {
	var scores []int
	err := r.DB.Model(&model.LevelTestResult{}).Pluck("total_score", &scores).Error
	return scores, err
}

func (r *LevelTestRepository) UpdatePercentile(id uint, percentile int) error {
	return r.DB.Model(&model.LevelTestResult{}).Where("id = ?", id).Update("rank_percentile", percentile).Error
}

// SetAIFeedbackIfAbsent 只在字段为空时写入，返回是否写入成功
func (r *LevelTestRepository) SetAIFeedbackIfAbsent(id uint, text string) (bool, error) {
	res := r.DB.Model(&model.LevelTestResult{}).
		Where("id = ? AND ai_feedback IS NULL", id).
		Update("ai_feedback", text)
	return res.RowsAffected == 1, res.Error
}

func (r *LevelTestRepository) SetAIPlanIfAbsent(id uint, text string) (bool, error) {
	if !r.Caps.LevelResultAIPlan {
		return false, nil
	}
	res := r.DB.Model(&model.LevelTestResult{}).
		Where("id = ? AND ai_plan IS NULL", id).
		Update("ai_plan", text)
	return res.RowsAffected == 1, res.Error
}
