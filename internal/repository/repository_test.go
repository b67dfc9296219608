package repository

import (
	"engz_backend/internal/model"
	"engz_backend/pkg/database"
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedRoutine(t *testing.T, repo *RoutineRepository, userID uint) *model.Routine {
	t.Helper()
	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	routine := &model.Routine{
		UserID:    userID,
		Theme:     model.ThemeBusiness,
		StartDate: start,
		EndDate:   start.Add(model.RoutineLength),
		ActiveKey: &userID,
	}
	var missions []model.Mission
	for w := 1; w <= model.RoutineWeeks; w++ {
		for d := 1; d <= model.RoutineDaysPerWeek; d++ {
			missions = append(missions, model.Mission{Week: w, Day: d, Content: fmt.Sprintf("Week %d, Day %d: x", w, d)})
		}
	}
	if err := repo.CreateWithMissions(routine, missions); err != nil {
		t.Fatalf("create routine: %v", err)
	}
	return routine
}

func TestCreateWithMissionsCreatesTwentySlots(t *testing.T) {
	db := newTestDB(t)
	repo := NewRoutineRepository(db)
	routine := seedRoutine(t, repo, 1)

	missions, err := repo.ListMissions(routine.ID)
	if err != nil {
		t.Fatalf("list missions: %v", err)
	}
	if len(missions) != model.MissionsPerRoutine {
		t.Fatalf("missions: got=%d want=%d", len(missions), model.MissionsPerRoutine)
	}
	if missions[0].Week != 1 || missions[0].Day != 1 || missions[19].Week != 4 || missions[19].Day != 5 {
		t.Fatalf("unexpected ordering: first=%d/%d last=%d/%d", missions[0].Week, missions[0].Day, missions[19].Week, missions[19].Day)
	}
}

func TestActiveKeyRejectsSecondActiveRoutine(t *testing.T) {
	db := newTestDB(t)
	repo := NewRoutineRepository(db)
	seedRoutine(t, repo, 7)

	uid := uint(7)
	dup := &model.Routine{UserID: 7, Theme: model.ThemeGrammar, ActiveKey: &uid}
	err := repo.CreateWithMissions(dup, []model.Mission{{Week: 1, Day: 1}})
	if err == nil {
		t.Fatalf("expected unique violation for second active routine")
	}

	var count int64
	db.Model(&model.Routine{}).Where("user_id = ?", 7).Count(&count)
	if count != 1 {
		t.Fatalf("routine count: got=%d want=1", count)
	}
}

func TestCompleteMissionIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	repo := NewRoutineRepository(db)
	routine := seedRoutine(t, repo, 1)
	missions, _ := repo.ListMissions(routine.ID)
	now := time.Now()

	first, err := repo.CompleteMission(missions[0].ID, routine.ID, "first", model.MissionsPerRoutine, now)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	second, err := repo.CompleteMission(missions[0].ID, routine.ID, "second", model.MissionsPerRoutine, now)
	if err != nil {
		t.Fatalf("complete again: %v", err)
	}
	if !first.MissionTransitioned || second.MissionTransitioned {
		t.Fatalf("transition flags: first=%v second=%v", first.MissionTransitioned, second.MissionTransitioned)
	}

	got, _ := repo.FindByID(routine.ID)
	if got.CompletedMissions != 1 {
		t.Fatalf("completed missions: got=%d want=1", got.CompletedMissions)
	}
	m, _ := repo.FindMissionByID(missions[0].ID)
	if m.LastFeedback == nil || *m.LastFeedback != "first" {
		t.Fatalf("last feedback should keep the winning submission, got %v", m.LastFeedback)
	}
}

func TestCompleteMissionCompletesRoutineAtTwenty(t *testing.T) {
	db := newTestDB(t)
	repo := NewRoutineRepository(db)
	routine := seedRoutine(t, repo, 3)
	missions, _ := repo.ListMissions(routine.ID)

	var last *CompletionOutcome
	for _, m := range missions {
		out, err := repo.CompleteMission(m.ID, routine.ID, "ok", model.MissionsPerRoutine, time.Now())
		if err != nil {
			t.Fatalf("complete %d: %v", m.ID, err)
		}
		if out.RoutineCompleted && out.CompletedMissions != model.MissionsPerRoutine {
			t.Fatalf("routine completed early at %d", out.CompletedMissions)
		}
		last = out
	}
	if !last.RoutineCompleted {
		t.Fatalf("routine not completed after all missions")
	}

	got, _ := repo.FindByID(routine.ID)
	if !got.Completed || got.ActiveKey != nil {
		t.Fatalf("routine state: completed=%v activeKey=%v", got.Completed, got.ActiveKey)
	}
	if _, err := repo.FindActiveByUser(3); err != gorm.ErrRecordNotFound {
		t.Fatalf("expected no active routine, got %v", err)
	}

	// 完成后可以开始新的 routine
	seedRoutine(t, repo, 3)
}

func TestBestScoresByRoutineSkipsDegraded(t *testing.T) {
	db := newTestDB(t)
	routines := NewRoutineRepository(db)
	attempts := NewMissionAttemptRepository(db)
	routine := seedRoutine(t, routines, 1)
	missions, _ := routines.ListMissions(routine.ID)

	create := func(m model.Mission, score int, degraded bool) {
		if err := attempts.Create(&model.MissionAttempt{
			MissionID: m.ID, RoutineID: routine.ID, UserID: 1,
			Mode: model.ResponseText, AggregateScore: score, Degraded: degraded,
		}); err != nil {
			t.Fatalf("create attempt: %v", err)
		}
	}
	create(missions[1], 60, false)
	create(missions[1], 75, false)
	create(missions[0], 50, true)
	create(missions[0], 40, false)

	rows, err := attempts.BestScoresByRoutine(routine.ID)
	if err != nil {
		t.Fatalf("best scores: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows: got=%d want=2", len(rows))
	}
	if rows[0].MissionID != missions[0].ID || rows[0].BestScore != 40 {
		t.Fatalf("first row: %+v", rows[0])
	}
	if rows[1].MissionID != missions[1].ID || rows[1].BestScore != 75 {
		t.Fatalf("second row: %+v", rows[1])
	}
}

func TestReportUpsertReplaces(t *testing.T) {
	db := newTestDB(t)
	repo := NewReportRepository(db)

	if err := repo.Upsert(&model.Report{RoutineID: 9, Summary: "a", ScoreChangePercent: 1.5, Week: 1}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := repo.Upsert(&model.Report{RoutineID: 9, Summary: "b", ScoreChangePercent: -2, Week: 2}); err != nil {
		t.Fatalf("upsert again: %v", err)
	}

	var count int64
	db.Model(&model.Report{}).Where("routine_id = ?", 9).Count(&count)
	if count != 1 {
		t.Fatalf("reports: got=%d want=1", count)
	}
	got, _ := repo.FindByRoutine(9)
	if got.Summary != "b" || got.ScoreChangePercent != -2 || got.Week != 2 {
		t.Fatalf("report not replaced: %+v", got)
	}
}

func TestLevelTestAIFeedbackWrittenOnce(t *testing.T) {
	db := newTestDB(t)
	repo := NewLevelTestRepository(db, model.FullSchema())

	result := &model.LevelTestResult{TotalScore: 70, Level: model.LevelUpperIntermediate}
	if err := repo.Create(result); err != nil {
		t.Fatalf("create: %v", err)
	}

	ok, err := repo.SetAIFeedbackIfAbsent(result.ID, "one")
	if err != nil || !ok {
		t.Fatalf("first write: ok=%v err=%v", ok, err)
	}
	ok, err = repo.SetAIFeedbackIfAbsent(result.ID, "two")
	if err != nil || ok {
		t.Fatalf("second write should lose: ok=%v err=%v", ok, err)
	}

	got, _ := repo.FindByID(result.ID)
	if got.AIFeedback == nil || *got.AIFeedback != "one" {
		t.Fatalf("feedback: %v", got.AIFeedback)
	}
}

func TestLevelTestRepositoryRespectsCapabilities(t *testing.T) {
	db := newTestDB(t)
	repo := NewLevelTestRepository(db, model.SchemaCapabilities{})

	result := &model.LevelTestResult{TotalScore: 55, AvgResponseTime: 4.2}
	if err := repo.Create(result); err != nil {
		t.Fatalf("create: %v", err)
	}
	ok, err := repo.SetAIPlanIfAbsent(result.ID, "plan")
	if err != nil || ok {
		t.Fatalf("plan write should be skipped without capability: ok=%v err=%v", ok, err)
	}

	full := NewLevelTestRepository(db, model.FullSchema())
	got, _ := full.FindByID(result.ID)
	if got.AvgResponseTime != 0 {
		t.Fatalf("avg response time should not be written, got %v", got.AvgResponseTime)
	}

	scores, err := repo.AllTotalScores()
	if err != nil || len(scores) != 1 || scores[0] != 55 {
		t.Fatalf("scores: %v err=%v", scores, err)
	}
}
