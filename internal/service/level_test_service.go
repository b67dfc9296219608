package service

import (
	"context"
	"encoding/json"
	"engz_backend/internal/model"
	"engz_backend/internal/repository"
	"engz_backend/internal/util"
	"engz_backend/pkg/logger"
	"engz_backend/pkg/monitoring"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// 写作评分不可用时每题的默认分
	writingFallbackScore = 50

	strengthThreshold = 70
	weaknessThreshold = 60

	fallbackStrength = "Basic Communication Skills"
	fallbackWeakness = "Minor areas for improvement"

	aiTextLockTTL  = time.Minute
	aiTextWaitStep = 200 * time.Millisecond
	aiTextWaitMax  = 3 * time.Second
)

var sectionNames = map[model.LevelSection]string{
	model.SectionVocabulary: "Vocabulary",
	model.SectionGrammar:    "Grammar",
	model.SectionWriting:    "Writing",
}

type AnswerInput struct {
	QuestionID     uint `json:"questionId" binding:"required"`
	AnswerIndex    int  `json:"answerIndex"`
	ResponseTimeMs int  `json:"responseTimeMs"`
}

type WritingInput struct {
	QuestionID uint   `json:"questionId" binding:"required"`
	Text       string `json:"text"`
}

type LevelTestSubmission struct {
	Answers []AnswerInput  `json:"answers"`
	Writing []WritingInput `json:"writing"`
}

// QuestionView 下发给前端的题目，不含答案
type QuestionView struct {
	ID      uint               `json:"id"`
	Section model.LevelSection `json:"section"`
	Prompt  string             `json:"prompt"`
	Options []string           `json:"options"`
	Order   int                `json:"order"`
}

// ScoreInput 打分所需的全部数据，写作分数已由外部评分得到
type ScoreInput struct {
	VocabCorrect   int
	VocabTotal     int
	GrammarCorrect int
	GrammarTotal   int
	WritingScores  []int
	ResponseTimes  []int // 毫秒
}

type Evaluation struct {
	Vocabulary         int
	Grammar            int
	Writing            int
	Total              int
	AvgResponseTime    float64
	Level              string
	Strengths          []string
	Weaknesses         []string
	RecommendedRoutine model.Theme
	Message            string
}

type LevelTestOutcome struct {
	Result   *model.LevelTestResult `json:"result"`
	Degraded bool                   `json:"degraded"`
}

type AITextResult struct {
	ResultID uint   `json:"resultId"`
	Text     string `json:"text"`
	Degraded bool   `json:"degraded"`
}

type LevelTestService struct {
	Repo          *repository.LevelTestRepository
	WritingGrader WritingGrader
	AI            *AIService
	Locker        *Locker

	gradingTimeout atomic.Int64
}

func NewLevelTestService(repo *repository.LevelTestRepository, grader WritingGrader, ai *AIService, locker *Locker, timeout time.Duration) *LevelTestService {
	s := &LevelTestService{
		Repo:          repo,
		WritingGrader: grader,
		AI:            ai,
		Locker:        locker,
	}
	s.SetGradingTimeout(timeout)
	return s
}

// SetGradingTimeout 配置热更新时调用
func (s *LevelTestService) SetGradingTimeout(d time.Duration) {
	s.gradingTimeout.Store(int64(d))
}

func percentOf(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return roundDiv(100*correct, total)
}

// Classify 按总分分级
func Classify(total int) string {
	switch {
	case total >= 80:
		return model.LevelAdvanced
	case total >= 60:
		return model.LevelUpperIntermediate
	case total >= 40:
		return model.LevelIntermediate
	default:
		return model.LevelBeginner
	}
}

// Percentile 严格低于本次分数的历史数量占比，history 包含本次分数。
// 每次提交全量扫描，O(n)。
func Percentile(score int, history []int) int {
	if len(history) == 0 {
		return 0
	}
	below := 0
	for _, h := range history {
		if h < score {
			below++
		}
	}
	return roundDiv(100*below, len(history))
}

var motivationalLadder = []struct {
	min int
	msg string
}{
	{100, "A perfect score! Your English is outstanding. Let's keep that edge sharp with challenging real-world practice."},
	{90, "Exceptional work! You are very close to full fluency. A focused routine will polish the last details."},
	{80, "Excellent! You communicate with confidence. Let's push your skills to a truly advanced level."},
	{70, "Great job! You have a strong foundation. Regular practice will make you sound even more natural."},
	{60, "Well done! You can handle most everyday situations. Let's build the accuracy to take you further."},
	{50, "Good effort! You are halfway there. A daily routine will help you make steady progress."},
	{40, "Nice start! You understand the basics well. Consistent practice will unlock the next level."},
	{30, "You're on your way! Every mission you complete will make English feel easier."},
	{20, "Every expert was once a beginner. Small daily steps will add up quickly."},
	{0, "Welcome to your English journey! We'll start with the essentials and grow together one day at a time."},
}

// MotivationalMessage 按总分所在区间返回固定文案
func MotivationalMessage(total int) string {
	for _, band := range motivationalLadder {
		if total >= band.min {
			return band.msg
		}
	}
	return motivationalLadder[len(motivationalLadder)-1].msg
}

// Recommend 初级推荐语法，高级推荐口语，其余按最弱的部分推荐。
// 分数相同时按 grammar、vocabulary、writing 的顺序取。
func Recommend(level string, vocabulary, grammar, writing int) model.Theme {
	switch level {
	case model.LevelBeginner:
		return model.ThemeGrammar
	case model.LevelAdvanced:
		return model.ThemeSpeaking
	}
	weakest, theme := grammar, model.ThemeGrammar
	if vocabulary < weakest {
		weakest, theme = vocabulary, model.ThemeSlang
	}
	if writing < weakest {
		theme = model.ThemeBusiness
	}
	return theme
}

// Evaluate 由三项分数推出总分、等级和文字描述
func Evaluate(vocabulary, grammar, writing int) Evaluation {
	total := roundDiv(vocabulary+grammar+writing, 3)
	level := Classify(total)

	ev := Evaluation{
		Vocabulary:         vocabulary,
		Grammar:            grammar,
		Writing:            writing,
		Total:              total,
		Level:              level,
		RecommendedRoutine: Recommend(level, vocabulary, grammar, writing),
		Message:            MotivationalMessage(total),
	}

	for _, s := range []struct {
		section model.LevelSection
		score   int
	}{
		{model.SectionVocabulary, vocabulary},
		{model.SectionGrammar, grammar},
		{model.SectionWriting, writing},
	} {
		if s.score >= strengthThreshold {
			ev.Strengths = append(ev.Strengths, sectionNames[s.section])
		}
		if s.score < weaknessThreshold {
			ev.Weaknesses = append(ev.Weaknesses, sectionNames[s.section])
		}
	}
	if len(ev.Strengths) == 0 {
		ev.Strengths = []string{fallbackStrength}
	}
	if len(ev.Weaknesses) == 0 {
		ev.Weaknesses = []string{fallbackWeakness}
	}
	return ev
}

// Score 纯计算，不访问外部服务
func Score(in ScoreInput) Evaluation {
	writing := 0
	if len(in.WritingScores) > 0 {
		sum := 0
		for _, s := range in.WritingScores {
			sum += s
		}
		writing = roundDiv(sum, len(in.WritingScores))
	}
	ev := Evaluate(
		percentOf(in.VocabCorrect, in.VocabTotal),
		percentOf(in.GrammarCorrect, in.GrammarTotal),
		writing,
	)
	if len(in.ResponseTimes) > 0 {
		sum := 0
		for _, ms := range in.ResponseTimes {
			sum += ms
		}
		ev.AvgResponseTime = round1(float64(sum) / float64(len(in.ResponseTimes)) / 1000)
	}
	return ev
}

// Questions 题库，去掉答案
func (s *LevelTestService) Questions() ([]QuestionView, error) {
	qs, err := s.Repo.ListQuestions()
	if err != nil {
		return nil, err
	}
	views := make([]QuestionView, 0, len(qs))
	for _, q := range qs {
		options := []string{}
		if q.Options != "" {
			if err := json.Unmarshal([]byte(q.Options), &options); err != nil {
				logger.Log.Warn("invalid question options", zap.Uint("questionId", q.ID), zap.Error(err))
				options = []string{}
			}
		}
		views = append(views, QuestionView{
			ID:      q.ID,
			Section: q.Section,
			Prompt:  q.Prompt,
			Options: options,
			Order:   q.Order,
		})
	}
	return views, nil
}

// Submit 评分并保存结果，learnerID 为空表示匿名测试
func (s *LevelTestService) Submit(ctx context.Context, learnerID *uint, sub *LevelTestSubmission) (*LevelTestOutcome, error) {
	if sub == nil || (len(sub.Answers) == 0 && len(sub.Writing) == 0) {
		return nil, util.ErrEmptySubmission
	}

	questions, err := s.Repo.ListQuestions()
	if err != nil {
		return nil, err
	}

	answers := make(map[uint]AnswerInput, len(sub.Answers))
	for _, a := range sub.Answers {
		if _, dup := answers[a.QuestionID]; !dup {
			answers[a.QuestionID] = a
		}
	}
	texts := make(map[uint]string, len(sub.Writing))
	for _, w := range sub.Writing {
		if _, dup := texts[w.QuestionID]; !dup {
			texts[w.QuestionID] = strings.TrimSpace(w.Text)
		}
	}

	in := ScoreInput{}
	var items []WritingItem
	var itemSlots []int
	for _, q := range questions {
		switch q.Section {
		case model.SectionVocabulary, model.SectionGrammar:
			a, answered := answers[q.ID]
			correct := answered && a.AnswerIndex >= 0 && a.AnswerIndex == q.CorrectIndex
			if q.Section == model.SectionVocabulary {
				in.VocabTotal++
				if correct {
					in.VocabCorrect++
				}
			} else {
				in.GrammarTotal++
				if correct {
					in.GrammarCorrect++
				}
			}
			if answered && a.ResponseTimeMs > 0 {
				in.ResponseTimes = append(in.ResponseTimes, a.ResponseTimeMs)
			}
		case model.SectionWriting:
			in.WritingScores = append(in.WritingScores, 0)
			if text := texts[q.ID]; text != "" {
				items = append(items, WritingItem{Prompt: q.Prompt, Answer: text})
				itemSlots = append(itemSlots, len(in.WritingScores)-1)
			}
		}
	}

	degraded := false
	if len(items) > 0 {
		scores, err := s.gradeWriting(ctx, items)
		if err != nil {
			logger.Log.Warn("writing grading unavailable, using fallback score", zap.Error(err))
			monitoring.DegradedGrades.Inc()
			degraded = true
		}
		for i, slot := range itemSlots {
			if degraded {
				in.WritingScores[slot] = writingFallbackScore
			} else {
				in.WritingScores[slot] = scores[i]
			}
		}
	}

	ev := Score(in)
	strengths, _ := json.Marshal(ev.Strengths)
	weaknesses, _ := json.Marshal(ev.Weaknesses)
	result := &model.LevelTestResult{
		UserID:             learnerID,
		VocabularyScore:    ev.Vocabulary,
		GrammarScore:       ev.Grammar,
		WritingScore:       ev.Writing,
		TotalScore:         ev.Total,
		AvgResponseTime:    ev.AvgResponseTime,
		Level:              ev.Level,
		Strengths:          string(strengths),
		Weaknesses:         string(weaknesses),
		RecommendedRoutine: string(ev.RecommendedRoutine),
		AIMessage:          ev.Message,
	}
	if err := s.Repo.Create(result); err != nil {
		return nil, err
	}
	monitoring.LevelTests.WithLabelValues(ev.Level).Inc()

	// 百分位只用于展示，计算失败不影响结果
	if history, err := s.Repo.AllTotalScores(); err != nil {
		logger.Log.Warn("load score history failed", zap.Error(err))
	} else {
		p := Percentile(result.TotalScore, history)
		if err := s.Repo.UpdatePercentile(result.ID, p); err != nil {
			logger.Log.Warn("update percentile failed", zap.Uint("resultId", result.ID), zap.Error(err))
		} else {
			result.RankPercentile = &p
		}
	}

	logger.Log.Info("level test scored",
		zap.Uint("resultId", result.ID),
		zap.Int("total", result.TotalScore),
		zap.String("level", result.Level),
		zap.Bool("degraded", degraded))

	return &LevelTestOutcome{Result: result, Degraded: degraded}, nil
}

func (s *LevelTestService) gradeWriting(ctx context.Context, items []WritingItem) ([]int, error) {
	if s.WritingGrader == nil {
		return nil, util.ErrGradingUnavailable
	}
	timeout := time.Duration(s.gradingTimeout.Load())
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	gctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	scores, err := s.WritingGrader.GradeBatch(gctx, items)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(items) {
		return nil, fmt.Errorf("%w: expected %d scores, got %d", util.ErrGradingUnavailable, len(items), len(scores))
	}
	return scores, nil
}

// GetResult 匿名结果任何人可读，属于学习者的结果只有本人可读
func (s *LevelTestService) GetResult(resultID uint, requester *uint) (*model.LevelTestResult, error) {
	result, err := s.Repo.FindByID(resultID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrResultNotFound
		}
		return nil, err
	}
	if result.UserID != nil && (requester == nil || *requester != *result.UserID) {
		return nil, util.ErrNotResultOwner
	}
	return result, nil
}

func (s *LevelTestService) ListResults(learnerID uint) ([]model.LevelTestResult, error) {
	return s.Repo.ListByUser(learnerID)
}

const feedbackSystemPrompt = "You are a friendly English coach. Write a short personalised feedback paragraph (80-120 words) " +
	"for a learner based on their placement test scores. Be encouraging and specific."

const planSystemPrompt = "You are an English coach. Write a concise 4-week study plan for the learner, one short paragraph per week, " +
	"based on their placement test scores and recommended routine theme."

// Feedback 首次读取时生成并持久化，之后直接返回已保存的内容
func (s *LevelTestService) Feedback(ctx context.Context, resultID uint, requester *uint) (*AITextResult, error) {
	return s.lazyText(ctx, resultID, requester, aiTextKind{
		name:    "feedback",
		system:  feedbackSystemPrompt,
		current: func(r *model.LevelTestResult) *string { return r.AIFeedback },
		store:   s.Repo.SetAIFeedbackIfAbsent,
		fallback: func(r *model.LevelTestResult) string {
			return fmt.Sprintf("You scored %d overall (%s). %s Focus on %s next.",
				r.TotalScore, r.Level, r.AIMessage, joinList(r.Weaknesses))
		},
	})
}

// Plan 同 Feedback；库中没有 ai_plan 列时每次生成但不保存
func (s *LevelTestService) Plan(ctx context.Context, resultID uint, requester *uint) (*AITextResult, error) {
	return s.lazyText(ctx, resultID, requester, aiTextKind{
		name:    "plan",
		system:  planSystemPrompt,
		current: func(r *model.LevelTestResult) *string { return r.AIPlan },
		store:   s.Repo.SetAIPlanIfAbsent,
		fallback: func(r *model.LevelTestResult) string {
			return fmt.Sprintf("Week 1: review the fundamentals of %s. Week 2: complete a daily %s mission. "+
				"Week 3: revisit your corrections and retry missions. Week 4: take the level test again to measure your progress.",
				joinList(r.Weaknesses), r.RecommendedRoutine)
		},
	})
}

type aiTextKind struct {
	name     string
	system   string
	current  func(*model.LevelTestResult) *string
	store    func(id uint, text string) (bool, error)
	fallback func(*model.LevelTestResult) string
}

func (s *LevelTestService) lazyText(ctx context.Context, resultID uint, requester *uint, kind aiTextKind) (*AITextResult, error) {
	result, err := s.GetResult(resultID, requester)
	if err != nil {
		return nil, err
	}
	if v := kind.current(result); v != nil {
		return &AITextResult{ResultID: resultID, Text: *v}, nil
	}

	key := fmt.Sprintf("engz:level-result:%d:%s", resultID, kind.name)
	locked, release := s.Locker.TryLock(ctx, key, aiTextLockTTL)
	defer release()
	if !locked {
		// 其他请求正在生成，等待其写入
		if text, ok := s.waitForText(ctx, resultID, kind); ok {
			return &AITextResult{ResultID: resultID, Text: text}, nil
		}
	}

	text, err := s.generate(ctx, kind.system, levelResultPrompt(result))
	if err != nil {
		logger.Log.Warn("ai text unavailable, using template",
			zap.Uint("resultId", resultID),
			zap.String("kind", kind.name),
			zap.Error(err))
		return &AITextResult{ResultID: resultID, Text: kind.fallback(result), Degraded: true}, nil
	}

	stored, err := kind.store(resultID, text)
	if err != nil {
		return nil, err
	}
	if !stored {
		// 输掉 CAS 时以已保存的内容为准
		if fresh, err := s.Repo.FindByID(resultID); err == nil {
			if v := kind.current(fresh); v != nil {
				return &AITextResult{ResultID: resultID, Text: *v}, nil
			}
		}
	}
	return &AITextResult{ResultID: resultID, Text: text}, nil
}

func (s *LevelTestService) waitForText(ctx context.Context, resultID uint, kind aiTextKind) (string, bool) {
	deadline := time.Now().Add(aiTextWaitMax)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return "", false
		case <-time.After(aiTextWaitStep):
		}
		fresh, err := s.Repo.FindByID(resultID)
		if err != nil {
			return "", false
		}
		if v := kind.current(fresh); v != nil {
			return *v, true
		}
	}
	return "", false
}

func (s *LevelTestService) generate(ctx context.Context, system, prompt string) (string, error) {
	if s.AI == nil {
		return "", util.ErrGradingUnavailable
	}
	timeout := time.Duration(s.gradingTimeout.Load())
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	gctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	text, err := s.AI.Complete(gctx, system, prompt)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty completion", util.ErrGradingUnavailable)
	}
	return text, nil
}

func levelResultPrompt(r *model.LevelTestResult) string {
	return fmt.Sprintf("Vocabulary: %d\nGrammar: %d\nWriting: %d\nTotal: %d\nLevel: %s\nStrengths: %s\nWeaknesses: %s\nRecommended routine: %s",
		r.VocabularyScore, r.GrammarScore, r.WritingScore, r.TotalScore, r.Level,
		joinList(r.Strengths), joinList(r.Weaknesses), r.RecommendedRoutine)
}

// joinList 把保存的 JSON 数组转成逗号分隔的文字
func joinList(raw string) string {
	var items []string
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return raw
	}
	return strings.Join(items, ", ")
}
