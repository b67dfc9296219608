package service

import (
	"context"
	"encoding/json"
	"engz_backend/internal/config"
	"engz_backend/internal/model"
	"engz_backend/internal/repository"
	"engz_backend/internal/util"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestEvaluateAdvancedScenario(t *testing.T) {
	ev := Evaluate(85, 72, 91)
	if ev.Total != 83 || ev.Level != model.LevelAdvanced {
		t.Fatalf("total/level: got=%d/%s", ev.Total, ev.Level)
	}
	if len(ev.Strengths) != 3 {
		t.Fatalf("strengths: %v", ev.Strengths)
	}
	if len(ev.Weaknesses) != 1 || ev.Weaknesses[0] != "Minor areas for improvement" {
		t.Fatalf("weaknesses: %v", ev.Weaknesses)
	}
	if ev.RecommendedRoutine != model.ThemeSpeaking {
		t.Fatalf("recommended: %s", ev.RecommendedRoutine)
	}
}

func TestEvaluateFallbackStrength(t *testing.T) {
	ev := Evaluate(30, 40, 50)
	if len(ev.Strengths) != 1 || ev.Strengths[0] != "Basic Communication Skills" {
		t.Fatalf("strengths: %v", ev.Strengths)
	}
	if len(ev.Weaknesses) != 3 {
		t.Fatalf("weaknesses: %v", ev.Weaknesses)
	}
}

func TestClassifyBoundaries(t *testing.T) {
	cases := map[int]string{
		0:   model.LevelBeginner,
		39:  model.LevelBeginner,
		40:  model.LevelIntermediate,
		59:  model.LevelIntermediate,
		60:  model.LevelUpperIntermediate,
		79:  model.LevelUpperIntermediate,
		80:  model.LevelAdvanced,
		100: model.LevelAdvanced,
	}
	for total, want := range cases {
		if got := Classify(total); got != want {
			t.Fatalf("Classify(%d): got=%s want=%s", total, got, want)
		}
		// 三项相同时总分就是该分数，等级与总分一致
		ev := Evaluate(total, total, total)
		if ev.Total != total || ev.Level != want {
			t.Fatalf("Evaluate(%d x3): got=%d/%s", total, ev.Total, ev.Level)
		}
	}
}

func TestTotalIsRoundedMeanAndLevelAgrees(t *testing.T) {
	for v := 0; v <= 100; v += 7 {
		for g := 0; g <= 100; g += 11 {
			for w := 0; w <= 100; w += 13 {
				ev := Evaluate(v, g, w)
				want := int(float64(v+g+w)/3 + 0.5)
				if ev.Total != want {
					t.Fatalf("Evaluate(%d,%d,%d): total=%d want=%d", v, g, w, ev.Total, want)
				}
				if ev.Level != Classify(ev.Total) {
					t.Fatalf("level %s does not match total %d", ev.Level, ev.Total)
				}
			}
		}
	}
}

func levelRank(level string) int {
	switch level {
	case model.LevelIntermediate:
		return 1
	case model.LevelUpperIntermediate:
		return 2
	case model.LevelAdvanced:
		return 3
	}
	return 0
}

func TestEvaluateIsMonotonic(t *testing.T) {
	for v := 0; v < 100; v += 3 {
		for g := 0; g <= 100; g += 25 {
			for w := 0; w <= 100; w += 25 {
				base := Evaluate(v, g, w)
				next := []Evaluation{Evaluate(v+1, g, w), Evaluate(g, v+1, w), Evaluate(g, w, v+1)}
				prev := []Evaluation{base, Evaluate(g, v, w), Evaluate(g, w, v)}
				for i := range next {
					if next[i].Total < prev[i].Total || levelRank(next[i].Level) < levelRank(prev[i].Level) {
						t.Fatalf("not monotonic at (%d,%d,%d) variant %d", v, g, w, i)
					}
				}
			}
		}
	}
}

func TestScorePercentages(t *testing.T) {
	ev := Score(ScoreInput{
		VocabCorrect: 2, VocabTotal: 3,
		GrammarCorrect: 0, GrammarTotal: 0,
		WritingScores: []int{70, 81},
		ResponseTimes: []int{1000, 2500},
	})
	if ev.Vocabulary != 67 || ev.Grammar != 0 || ev.Writing != 76 {
		t.Fatalf("scores: %+v", ev)
	}
	if ev.AvgResponseTime != 1.8 {
		t.Fatalf("avg response time: %v", ev.AvgResponseTime)
	}
}

func TestPercentile(t *testing.T) {
	cases := []struct {
		score   int
		history []int
		want    int
	}{
		{50, nil, 0},
		{50, []int{50}, 0},
		{80, []int{40, 60, 80, 90}, 50},
		{100, []int{10, 20, 30, 100}, 75},
		{60, []int{60, 60, 60}, 0},
	}
	for _, tc := range cases {
		if got := Percentile(tc.score, tc.history); got != tc.want {
			t.Fatalf("Percentile(%d, %v): got=%d want=%d", tc.score, tc.history, got, tc.want)
		}
	}
}

func TestMotivationalLadderHasTenDistinctBands(t *testing.T) {
	seen := map[string]bool{}
	for _, total := range []int{100, 95, 85, 75, 65, 55, 45, 35, 25, 5} {
		seen[MotivationalMessage(total)] = true
	}
	if len(seen) != 10 {
		t.Fatalf("expected 10 distinct messages, got %d", len(seen))
	}
	if MotivationalMessage(90) != MotivationalMessage(99) {
		t.Fatalf("90 and 99 should share a band")
	}
}

func TestRecommend(t *testing.T) {
	cases := []struct {
		level                      string
		vocabulary, grammar, write int
		want                       model.Theme
	}{
		{model.LevelBeginner, 10, 90, 90, model.ThemeGrammar},
		{model.LevelAdvanced, 80, 80, 80, model.ThemeSpeaking},
		{model.LevelIntermediate, 40, 60, 60, model.ThemeSlang},
		{model.LevelIntermediate, 60, 40, 60, model.ThemeGrammar},
		{model.LevelUpperIntermediate, 70, 70, 50, model.ThemeBusiness},
		{model.LevelIntermediate, 50, 50, 50, model.ThemeGrammar},
		{model.LevelIntermediate, 50, 60, 50, model.ThemeSlang},
	}
	for _, tc := range cases {
		if got := Recommend(tc.level, tc.vocabulary, tc.grammar, tc.write); got != tc.want {
			t.Fatalf("Recommend(%s,%d,%d,%d): got=%s want=%s", tc.level, tc.vocabulary, tc.grammar, tc.write, got, tc.want)
		}
	}
}

func newLevelTestService(t *testing.T, env *testEnv, grader WritingGrader, ai *AIService) *LevelTestService {
	t.Helper()
	repo := repository.NewLevelTestRepository(env.DB, model.FullSchema())
	return NewLevelTestService(repo, grader, ai, NewLocker(nil), time.Second)
}

// perfectSubmission 所有选择题答对
func perfectSubmission(t *testing.T, svc *LevelTestService) *LevelTestSubmission {
	t.Helper()
	qs, err := svc.Repo.ListQuestions()
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	sub := &LevelTestSubmission{}
	for _, q := range qs {
		if q.Section == model.SectionWriting {
			sub.Writing = append(sub.Writing, WritingInput{QuestionID: q.ID, Text: "I have lived here for five years."})
			continue
		}
		sub.Answers = append(sub.Answers, AnswerInput{QuestionID: q.ID, AnswerIndex: q.CorrectIndex, ResponseTimeMs: 2000})
	}
	return sub
}

func TestQuestionsHideAnswerKeys(t *testing.T) {
	env := newTestEnv(t)
	svc := newLevelTestService(t, env, &stubWritingGrader{}, nil)
	views, err := svc.Questions()
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	if len(views) != 12 {
		t.Fatalf("questions: got=%d", len(views))
	}
	raw, _ := json.Marshal(views)
	if strings.Contains(string(raw), "correct") {
		t.Fatalf("answer keys leaked: %s", raw)
	}
}

func TestSubmitLevelTestScoresAndStoresPercentile(t *testing.T) {
	env := newTestEnv(t)
	grader := &stubWritingGrader{scores: []int{80, 90}}
	svc := newLevelTestService(t, env, grader, nil)
	learner := uint(9)

	out, err := svc.Submit(context.Background(), &learner, perfectSubmission(t, svc))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	r := out.Result
	if out.Degraded || r.VocabularyScore != 100 || r.GrammarScore != 100 || r.WritingScore != 85 {
		t.Fatalf("unexpected result: %+v", r)
	}
	if r.TotalScore != 95 || r.Level != model.LevelAdvanced || r.AvgResponseTime != 2 {
		t.Fatalf("unexpected total: %+v", r)
	}
	if r.RankPercentile == nil || *r.RankPercentile != 0 {
		t.Fatalf("first result percentile: %v", r.RankPercentile)
	}

	// 第二次全部跳过，百分位为 0，第一次的结果不变
	sub := perfectSubmission(t, svc)
	for i := range sub.Answers {
		sub.Answers[i].AnswerIndex = -1
	}
	sub.Writing = nil
	out2, err := svc.Submit(context.Background(), nil, sub)
	if err != nil {
		t.Fatalf("anonymous submit: %v", err)
	}
	if out2.Result.TotalScore != 0 || out2.Result.Level != model.LevelBeginner || out2.Result.UserID != nil {
		t.Fatalf("unexpected anonymous result: %+v", out2.Result)
	}
	if grader.calls != 1 {
		t.Fatalf("writing grader should not run without writing answers, calls=%d", grader.calls)
	}

	out3, err := svc.Submit(context.Background(), &learner, perfectSubmission(t, svc))
	if err != nil {
		t.Fatalf("third submit: %v", err)
	}
	// 历史 [95, 0, 95]，严格低于 95 的有 1 个
	if out3.Result.RankPercentile == nil || *out3.Result.RankPercentile != 33 {
		t.Fatalf("percentile: %v", out3.Result.RankPercentile)
	}

	list, err := svc.ListResults(learner)
	if err != nil || len(list) != 2 {
		t.Fatalf("list results: %v %d", err, len(list))
	}
}

func TestSubmitLevelTestWritingFallback(t *testing.T) {
	env := newTestEnv(t)
	svc := newLevelTestService(t, env, &stubWritingGrader{err: util.ErrGradingUnavailable}, nil)

	out, err := svc.Submit(context.Background(), nil, perfectSubmission(t, svc))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !out.Degraded || out.Result.WritingScore != 50 {
		t.Fatalf("expected degraded writing score 50: %+v", out.Result)
	}
}

func TestSubmitLevelTestRejectsEmpty(t *testing.T) {
	env := newTestEnv(t)
	svc := newLevelTestService(t, env, &stubWritingGrader{}, nil)
	if _, err := svc.Submit(context.Background(), nil, &LevelTestSubmission{}); !errors.Is(err, util.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func countingAIServer(t *testing.T, content string, fail bool) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if fail {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestFeedbackIsComputedOnce(t *testing.T) {
	env := newTestEnv(t)
	srv, calls := countingAIServer(t, "You did great.", false)
	ai := NewAIService(config.AIConfig{BaseURL: srv.URL, Model: "m"})
	svc := newLevelTestService(t, env, &stubWritingGrader{scores: []int{70, 70}}, ai)
	learner := uint(4)

	out, err := svc.Submit(context.Background(), &learner, perfectSubmission(t, svc))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	id := out.Result.ID

	for i := 0; i < 3; i++ {
		fb, err := svc.Feedback(context.Background(), id, &learner)
		if err != nil {
			t.Fatalf("feedback %d: %v", i, err)
		}
		if fb.Text != "You did great." || fb.Degraded {
			t.Fatalf("feedback %d: %+v", i, fb)
		}
	}
	if got := atomic.LoadInt32(calls); got != 1 {
		t.Fatalf("ai calls: got=%d want=1", got)
	}

	other := uint(5)
	if _, err := svc.Feedback(context.Background(), id, &other); !errors.Is(err, util.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := svc.Plan(context.Background(), 9999, &learner); !errors.Is(err, util.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPlanFallbackIsNotPersisted(t *testing.T) {
	env := newTestEnv(t)
	srv, calls := countingAIServer(t, "", true)
	ai := NewAIService(config.AIConfig{BaseURL: srv.URL, Model: "m"})
	svc := newLevelTestService(t, env, &stubWritingGrader{scores: []int{70, 70}}, ai)

	out, err := svc.Submit(context.Background(), nil, perfectSubmission(t, svc))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	for i := 0; i < 2; i++ {
		plan, err := svc.Plan(context.Background(), out.Result.ID, nil)
		if err != nil {
			t.Fatalf("plan: %v", err)
		}
		if !plan.Degraded || !strings.HasPrefix(plan.Text, "Week 1:") {
			t.Fatalf("unexpected plan: %+v", plan)
		}
	}
	if got := atomic.LoadInt32(calls); got != 2 {
		t.Fatalf("degraded plans must not be cached, calls=%d", got)
	}
	stored, _ := svc.Repo.FindByID(out.Result.ID)
	if stored.AIPlan != nil {
		t.Fatalf("fallback plan persisted")
	}
}
