package repository

import (
	"engz_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

type RoutineRepository struct {
	DB *gorm.DB
}

func NewRoutineRepository(db *gorm.DB) *RoutineRepository {
	return &RoutineRepository{DB: db}
}

// CreateWithMissions routine 和 20 个任务在同一事务中创建
func (r *RoutineRepository) CreateWithMissions(routine *model.Routine, missions []model.Mission) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Missions").Create(routine).Error; err != nil {
			return err
		}
		for i := range missions {
			missions[i].RoutineID = routine.ID
		}
		if err := tx.Create(&missions).Error; err != nil {
			return err
		}
		routine.Missions = missions
		return nil
	})
}

func (r *RoutineRepository) FindByID(id uint) (*model.Routine, error) {
	var routine model.Routine
	if err := r.DB.First(&routine, id).Error; err != nil {
		return nil, err
	}
	return &routine, nil
}

// FindActiveByUser 返回学习者当前未完成的 routine，不存在时返回 gorm.ErrRecordNotFound
func (r *RoutineRepository) FindActiveByUser(userID uint) (*model.Routine, error) {
	var routine model.Routine
	err := r.DB.Where("user_id = ? AND completed = ?", userID, false).
		Order("start_date desc").
		First(&routine).Error
	if err != nil {
		return nil, err
	}
	return &routine, nil
}

func (r *RoutineRepository) ListByUser(userID uint) ([]model.Routine, error) {
	var routines []model.Routine
	err := r.DB.Where("user_id = ?", userID).Order("start_date desc").Find(&routines).Error
	return routines, err
}

func (r *RoutineRepository) ListActive() ([]model.Routine, error) {
	var routines []model.Routine
	err := r.DB.Where("completed = ?", false).Find(&routines).Error
	return routines, err
}

func (r *RoutineRepository) ListMissions(routineID uint) ([]model.Mission, error) {
	var missions []model.Mission
	err := r.DB.Where("routine_id = ?", routineID).Order("week asc, day asc").Find(&missions).Error
	return missions, err
}

func (r *RoutineRepository) FindMissionByID(id uint) (*model.Mission, error) {
	var mission model.Mission
	if err := r.DB.First(&mission, id).Error; err != nil {
		return nil, err
	}
	return &mission, nil
}

// CompletionOutcome 完成任务事务的结果
type CompletionOutcome struct {
	// 本次调用是否完成了 false -> true 的转换
	MissionTransitioned bool
	RoutineCompleted    bool
	CompletedMissions   int
}

// CompleteMission 以 CAS 方式把任务标记为完成，只有赢得 CAS 的调用才会累加 routine 计数，
// 计数达到 total 时同样用 CAS 把 routine 标记完成。整个过程在一个事务内。
func (r *RoutineRepository) CompleteMission(missionID, routineID uint, feedback string, total int, now time.Time) (*CompletionOutcome, error) {
	outcome := &CompletionOutcome{}
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Mission{}).
			Where("id = ? AND completed = ?", missionID, false).
			Updates(map[string]interface{}{
				"completed":     true,
				"completed_at":  now,
				"last_feedback": feedback,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		outcome.MissionTransitioned = true

		if err := tx.Model(&model.Routine{}).
			Where("id = ?", routineID).
			Update("completed_missions", gorm.Expr("completed_missions + 1")).Error; err != nil {
			return err
		}

		var routine model.Routine
		if err := tx.Select("id", "completed_missions", "completed").First(&routine, routineID).Error; err != nil {
			return err
		}
		outcome.CompletedMissions = routine.CompletedMissions

		if routine.CompletedMissions >= total && !routine.Completed {
			res := tx.Model(&model.Routine{}).
				Where("id = ? AND completed = ?", routineID, false).
				Updates(map[string]interface{}{
					"completed":  true,
					"active_key": nil,
				})
			if res.Error != nil {
				return res.Error
			}
			outcome.RoutineCompleted = res.RowsAffected == 1
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}
