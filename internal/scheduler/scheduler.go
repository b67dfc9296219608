package scheduler

import (
	"engz_backend/pkg/logger"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// ReportRefresher 由 ReportService 实现
type ReportRefresher interface {
	RefreshDueReports(now time.Time) (int, error)
}

// Scheduler 定时刷新进行中学习计划的周报
type Scheduler struct {
	scheduler *gocron.Scheduler
	reports   ReportRefresher
	now       func() time.Time
}

func New(reports ReportRefresher) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		reports:   reports,
		now:       time.Now,
	}
}

// Start 注册任务并异步运行，cron 表达式非法时返回错误
func (s *Scheduler) Start(cronExpr string) error {
	if _, err := s.scheduler.Cron(cronExpr).SingletonMode().Do(s.refreshReports); err != nil {
		return err
	}
	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

func (s *Scheduler) refreshReports() {
	start := time.Now()
	n, err := s.reports.RefreshDueReports(s.now())
	if err != nil {
		logger.Log.Error("Failed to refresh reports", zap.Error(err))
		return
	}
	logger.Log.Info("Reports refreshed",
		zap.Int("count", n),
		zap.Duration("elapsed", time.Since(start)))
}
