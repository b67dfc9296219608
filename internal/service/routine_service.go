package service

import (
	"engz_backend/internal/model"
	"engz_backend/internal/repository"
	"engz_backend/internal/util"
	"engz_backend/pkg/logger"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type WeekProgress struct {
	Week      int `json:"week"`
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// RoutineSnapshot 当前 routine 的进度，没有进行中的 routine 时 HasRoutine 为 false
type RoutineSnapshot struct {
	HasRoutine        bool           `json:"hasRoutine"`
	RoutineID         uint           `json:"routineId,omitempty"`
	Theme             model.Theme    `json:"theme,omitempty"`
	ProgressPercent   int            `json:"progressPercent"`
	CurrentWeek       int            `json:"currentWeek,omitempty"`
	CurrentDay        int            `json:"currentDay,omitempty"`
	TodayMission      *model.Mission `json:"todayMission,omitempty"`
	CompletedMissions int            `json:"completedMissions"`
	TotalMissions     int            `json:"totalMissions"`
	Weeks             []WeekProgress `json:"weeks,omitempty"`
	StartDate         *time.Time     `json:"startDate,omitempty"`
	EndDate           *time.Time     `json:"endDate,omitempty"`
}

type RoutineService struct {
	RoutineRepo *repository.RoutineRepository
}

func NewRoutineService(routineRepo *repository.RoutineRepository) *RoutineService {
	return &RoutineService{RoutineRepo: routineRepo}
}

// CreateRoutine 为学习者创建 4 周的 routine 和 20 个任务，已有进行中的 routine 时拒绝
func (s *RoutineService) CreateRoutine(learnerID uint, themeName string, now time.Time) (*model.Routine, error) {
	theme, ok := ParseTheme(themeName)
	if !ok {
		return nil, util.ErrUnknownTheme
	}

	if _, err := s.RoutineRepo.FindActiveByUser(learnerID); err == nil {
		return nil, util.ErrRoutineActive
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	specs := GenerateCurriculum(theme)
	missions := make([]model.Mission, 0, len(specs))
	for _, spec := range specs {
		missions = append(missions, model.Mission{
			Week:    spec.Week,
			Day:     spec.Day,
			Content: spec.Content,
		})
	}

	activeKey := learnerID
	routine := &model.Routine{
		UserID:    learnerID,
		Theme:     theme,
		StartDate: now,
		EndDate:   now.Add(model.RoutineLength),
		ActiveKey: &activeKey,
	}
	if err := s.RoutineRepo.CreateWithMissions(routine, missions); err != nil {
		// 并发创建时由唯一索引兜底
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, util.ErrRoutineActive
		}
		return nil, err
	}

	logger.Log.Info("routine created",
		zap.Uint("routineId", routine.ID),
		zap.Uint("userId", learnerID),
		zap.String("theme", string(theme)))
	return routine, nil
}

// Snapshot 只读，不修改任何状态
func (s *RoutineService) Snapshot(learnerID uint, now time.Time) (*RoutineSnapshot, error) {
	routine, err := s.RoutineRepo.FindActiveByUser(learnerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &RoutineSnapshot{TotalMissions: model.MissionsPerRoutine}, nil
		}
		return nil, err
	}

	missions, err := s.RoutineRepo.ListMissions(routine.ID)
	if err != nil {
		return nil, err
	}

	week, day := Position(routine.StartDate, now)
	snapshot := &RoutineSnapshot{
		HasRoutine:        true,
		RoutineID:         routine.ID,
		Theme:             routine.Theme,
		ProgressPercent:   ProgressPercent(routine.CompletedMissions),
		CurrentWeek:       week,
		CurrentDay:        day,
		CompletedMissions: routine.CompletedMissions,
		TotalMissions:     model.MissionsPerRoutine,
		StartDate:         &routine.StartDate,
		EndDate:           &routine.EndDate,
	}

	weeks := make([]WeekProgress, model.RoutineWeeks)
	for i := range weeks {
		weeks[i] = WeekProgress{Week: i + 1}
	}
	for i := range missions {
		m := &missions[i]
		if m.Week >= 1 && m.Week <= model.RoutineWeeks {
			weeks[m.Week-1].Total++
			if m.Completed {
				weeks[m.Week-1].Completed++
			}
		}
		if m.Week == week && m.Day == day {
			snapshot.TodayMission = m
		}
	}
	snapshot.Weeks = weeks

	return snapshot, nil
}

// ProgressPercent round(100*completed/20)
func ProgressPercent(completed int) int {
	if completed < 0 {
		completed = 0
	}
	if completed > model.MissionsPerRoutine {
		completed = model.MissionsPerRoutine
	}
	return roundDiv(100*completed, model.MissionsPerRoutine)
}

// GetRoutine 带任务列表，校验归属
func (s *RoutineService) GetRoutine(learnerID, routineID uint) (*model.Routine, error) {
	routine, err := s.RoutineRepo.FindByID(routineID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrRoutineNotFound
		}
		return nil, err
	}
	if routine.UserID != learnerID {
		return nil, util.ErrNotRoutineOwner
	}
	missions, err := s.RoutineRepo.ListMissions(routine.ID)
	if err != nil {
		return nil, err
	}
	routine.Missions = missions
	return routine, nil
}

// ListRoutines 历史 routine，完成的也保留
func (s *RoutineService) ListRoutines(learnerID uint) ([]model.Routine, error) {
	return s.RoutineRepo.ListByUser(learnerID)
}
