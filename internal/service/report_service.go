package service

import (
	"engz_backend/internal/model"
	"engz_backend/internal/repository"
	"engz_backend/internal/util"
	"engz_backend/pkg/logger"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 报告比较窗口的上限
const maxReportWindow = 5

type ReportService struct {
	RoutineRepo *repository.RoutineRepository
	AttemptRepo *repository.MissionAttemptRepository
	ReportRepo  *repository.ReportRepository
}

func NewReportService(
	routineRepo *repository.RoutineRepository,
	attemptRepo *repository.MissionAttemptRepository,
	reportRepo *repository.ReportRepository,
) *ReportService {
	return &ReportService{
		RoutineRepo: routineRepo,
		AttemptRepo: attemptRepo,
		ReportRepo:  reportRepo,
	}
}

// ReportFigures 报告中的统计值
type ReportFigures struct {
	SampleSize    int
	EarlyAverage  float64
	RecentAverage float64
	Change        float64
}

// CompareScores 比较最早 k 个与最近 k 个任务的平均分，k = max(1, n/2) 且不超过 5。
// 少于两个样本时变化为 0。
func CompareScores(scores []int) ReportFigures {
	n := len(scores)
	f := ReportFigures{SampleSize: n}
	if n == 0 {
		return f
	}
	if n < 2 {
		f.EarlyAverage = float64(scores[0])
		f.RecentAverage = float64(scores[0])
		return f
	}
	k := n / 2
	if k < 1 {
		k = 1
	}
	if k > maxReportWindow {
		k = maxReportWindow
	}
	f.EarlyAverage = round1(mean(scores[:k]))
	f.RecentAverage = round1(mean(scores[n-k:]))
	f.Change = round1(mean(scores[n-k:]) - mean(scores[:k]))
	return f
}

func mean(xs []int) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0
	for _, x := range xs {
		sum += x
	}
	return float64(sum) / float64(len(xs))
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}

// SummaryText 按主题、当前周和分数变化生成报告文字
func SummaryText(theme model.Theme, week int, f ReportFigures) string {
	if f.SampleSize < 2 {
		return fmt.Sprintf("Week %d of your %s routine: not enough graded missions yet to measure your progress. Keep completing missions and check back soon!", week, theme)
	}
	switch {
	case f.Change > 0:
		return fmt.Sprintf("Week %d of your %s routine: your recent missions score %.1f points higher than your first ones. Great progress, keep it up!", week, theme, f.Change)
	case f.Change < 0:
		return fmt.Sprintf("Week %d of your %s routine: your recent missions score %.1f points lower than your first ones. Review the corrections on your recent missions and try them again.", week, theme, -f.Change)
	default:
		return fmt.Sprintf("Week %d of your %s routine: your scores are holding steady. Push yourself on the next mission to reach a new best.", week, theme)
	}
}

// Synthesize 重新计算并保存 routine 的报告，同样的数据得到同样的报告
func (s *ReportService) Synthesize(routineID uint, now time.Time) (*model.Report, error) {
	routine, err := s.RoutineRepo.FindByID(routineID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrRoutineNotFound
		}
		return nil, err
	}

	best, err := s.AttemptRepo.BestScoresByRoutine(routineID)
	if err != nil {
		return nil, err
	}
	scores := make([]int, 0, len(best))
	for _, b := range best {
		scores = append(scores, b.BestScore)
	}

	week, _ := Position(routine.StartDate, now)
	figures := CompareScores(scores)

	report := &model.Report{
		RoutineID:          routineID,
		Summary:            SummaryText(routine.Theme, week, figures),
		ScoreChangePercent: figures.Change,
		EarlyAverage:       figures.EarlyAverage,
		RecentAverage:      figures.RecentAverage,
		SampleSize:         figures.SampleSize,
		Week:               week,
	}
	if err := s.ReportRepo.Upsert(report); err != nil {
		return nil, err
	}

	logger.Log.Debug("report synthesized",
		zap.Uint("routineId", routineID),
		zap.Int("week", week),
		zap.Int("sampleSize", figures.SampleSize),
		zap.Float64("change", figures.Change))

	return s.ReportRepo.FindByRoutine(routineID)
}

// GetReport 校验归属；报告不存在或已跨过周边界时重新生成
func (s *ReportService) GetReport(learnerID, routineID uint, now time.Time) (*model.Report, error) {
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

	report, err := s.ReportRepo.FindByRoutine(routineID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if report != nil && (routine.Completed || !s.isStale(routine, report, now)) {
		return report, nil
	}
	return s.Synthesize(routineID, now)
}

func (s *ReportService) isStale(routine *model.Routine, report *model.Report, now time.Time) bool {
	week, _ := Position(routine.StartDate, now)
	return week > report.Week
}

// RefreshDueReports 定时任务：为跨过周边界的进行中 routine 重新生成报告，返回刷新数量
func (s *ReportService) RefreshDueReports(now time.Time) (int, error) {
	routines, err := s.RoutineRepo.ListActive()
	if err != nil {
		return 0, err
	}

	refreshed := 0
	for i := range routines {
		routine := &routines[i]
		report, err := s.ReportRepo.FindByRoutine(routine.ID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Log.Warn("load report failed", zap.Uint("routineId", routine.ID), zap.Error(err))
			continue
		}
		if report != nil && !s.isStale(routine, report, now) {
			continue
		}
		if _, err := s.Synthesize(routine.ID, now); err != nil {
			logger.Log.Warn("refresh report failed", zap.Uint("routineId", routine.ID), zap.Error(err))
			continue
		}
		refreshed++
	}

	logger.Log.Info("report refresh finished", zap.Int("routines", len(routines)), zap.Int("refreshed", refreshed))
	return refreshed, nil
}
