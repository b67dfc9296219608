package service

import (
	"context"
	"engz_backend/internal/config"
	"engz_backend/internal/model"
	"engz_backend/internal/repository"
	"engz_backend/pkg/database"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"
)

var testStart = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type testEnv struct {
	DB       *gorm.DB
	Routines *repository.RoutineRepository
	Attempts *repository.MissionAttemptRepository
	Reports  *repository.ReportRepository
	Users    *repository.UserRepository
	Cfg      *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return &testEnv{
		DB:       db,
		Routines: repository.NewRoutineRepository(db),
		Attempts: repository.NewMissionAttemptRepository(db),
		Reports:  repository.NewReportRepository(db),
		Users:    repository.NewUserRepository(db),
		Cfg: &config.Config{
			JWT:     config.JWTConfig{Secret: "test-secret", ExpireTime: time.Hour},
			AI:      config.AIConfig{GradingTimeoutSeconds: 5, FallbackScore: 50},
			Routine: config.RoutineConfig{CompletionThreshold: 90},
		},
	}
}

func (e *testEnv) reportService() *ReportService {
	return NewReportService(e.Routines, e.Attempts, e.Reports)
}

func (e *testEnv) missionService(g Grader) *MissionService {
	s := NewMissionService(e.Routines, e.Attempts, g, e.reportService(), e.Cfg)
	s.Now = func() time.Time { return testStart.Add(3 * 24 * time.Hour) }
	return s
}

func (e *testEnv) createRoutine(t *testing.T, learnerID uint, theme string) *model.Routine {
	t.Helper()
	routine, err := NewRoutineService(e.Routines).CreateRoutine(learnerID, theme, testStart)
	if err != nil {
		t.Fatalf("create routine: %v", err)
	}
	return routine
}

// stubGrader 返回固定分数，或按调用顺序返回 scores 中的分数
type stubGrader struct {
	mu     sync.Mutex
	scores []int
	calls  int
	err    error
	block  bool
}

func (g *stubGrader) Grade(ctx context.Context, prompt, response string) (*GradeResult, error) {
	g.mu.Lock()
	idx := g.calls
	g.calls++
	g.mu.Unlock()

	if g.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if g.err != nil {
		return nil, g.err
	}
	score := g.scores[len(g.scores)-1]
	if idx < len(g.scores) {
		score = g.scores[idx]
	}
	return &GradeResult{
		Grammar:       score,
		Pronunciation: score,
		Fluency:       score,
		Corrections:   []string{},
		Suggestion:    "feedback " + response,
	}, nil
}

type stubWritingGrader struct {
	scores []int
	err    error
	calls  int
}

func (g *stubWritingGrader) GradeBatch(ctx context.Context, items []WritingItem) ([]int, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return g.scores[:len(items)], nil
}
