package service

import (
	"context"
	"engz_backend/internal/util"
	"engz_backend/pkg/monitoring"
	"fmt"
	"strings"
)

// GradeResult 评分接口返回的各项分数，0-100
type GradeResult struct {
	Grammar       int      `json:"grammar"`
	Pronunciation int      `json:"pronunciation"`
	Fluency       int      `json:"fluency"`
	Overall       *int     `json:"overall,omitempty"`
	Corrections   []string `json:"corrections"`
	Suggestion    string   `json:"suggestion"`
}

// Grader 任务回答评分；超时或返回格式错误时返回 util.ErrGradingUnavailable
type Grader interface {
	Grade(ctx context.Context, prompt, response string) (*GradeResult, error)
}

type WritingItem struct {
	Prompt string `json:"prompt"`
	Answer string `json:"answer"`
}

// WritingGrader 分级测试写作题批量评分，返回与 items 一一对应的分数
type WritingGrader interface {
	GradeBatch(ctx context.Context, items []WritingItem) ([]int, error)
}

// AIGrader 基于 AIService 的评分实现
type AIGrader struct {
	AI *AIService
}

func NewAIGrader(ai *AIService) *AIGrader {
	return &AIGrader{AI: ai}
}

const gradingSystemPrompt = "You are an English teacher grading a learner's answer to a daily mission. " +
	"Respond with a JSON object only: " +
	`{"grammar":0-100,"pronunciation":0-100,"fluency":0-100,"overall":0-100,"corrections":["..."],"suggestion":"..."}. ` +
	"For written answers judge pronunciation from spelling and word choice. Keep the suggestion to two sentences."

func (g *AIGrader) Grade(ctx context.Context, prompt, response string) (*GradeResult, error) {
	userPrompt := fmt.Sprintf("Mission:\n%s\n\nLearner answer:\n%s", prompt, response)

	var raw struct {
		Grammar       *float64 `json:"grammar"`
		Pronunciation *float64 `json:"pronunciation"`
		Fluency       *float64 `json:"fluency"`
		Overall       *float64 `json:"overall"`
		Corrections   []string `json:"corrections"`
		Suggestion    string   `json:"suggestion"`
	}
	if err := g.AI.CompleteJSON(ctx, gradingSystemPrompt, userPrompt, &raw); err != nil {
		monitoring.GradingRequests.WithLabelValues("unavailable").Inc()
		return nil, fmt.Errorf("%w: %v", util.ErrGradingUnavailable, err)
	}
	if raw.Grammar == nil || raw.Pronunciation == nil || raw.Fluency == nil {
		monitoring.GradingRequests.WithLabelValues("malformed").Inc()
		return nil, fmt.Errorf("%w: missing sub-scores in grader output", util.ErrGradingUnavailable)
	}

	result := &GradeResult{
		Grammar:       clampScore(*raw.Grammar),
		Pronunciation: clampScore(*raw.Pronunciation),
		Fluency:       clampScore(*raw.Fluency),
		Corrections:   raw.Corrections,
		Suggestion:    strings.TrimSpace(raw.Suggestion),
	}
	if raw.Overall != nil {
		overall := clampScore(*raw.Overall)
		result.Overall = &overall
	}
	if result.Corrections == nil {
		result.Corrections = []string{}
	}
	monitoring.GradingRequests.WithLabelValues("ok").Inc()
	return result, nil
}

const writingSystemPrompt = "You are an English examiner scoring short writing answers for a placement test. " +
	`Respond with a JSON object only: {"scores":[0-100, ...]} with exactly one score per answer, in order.`

func (g *AIGrader) GradeBatch(ctx context.Context, items []WritingItem) ([]int, error) {
	if len(items) == 0 {
		return nil, nil
	}
	var b strings.Builder
	for i, item := range items {
		fmt.Fprintf(&b, "%d. Prompt: %s\nAnswer: %s\n\n", i+1, item.Prompt, item.Answer)
	}

	var raw struct {
		Scores []float64 `json:"scores"`
	}
	if err := g.AI.CompleteJSON(ctx, writingSystemPrompt, b.String(), &raw); err != nil {
		monitoring.GradingRequests.WithLabelValues("unavailable").Inc()
		return nil, fmt.Errorf("%w: %v", util.ErrGradingUnavailable, err)
	}
	if len(raw.Scores) != len(items) {
		monitoring.GradingRequests.WithLabelValues("malformed").Inc()
		return nil, fmt.Errorf("%w: expected %d scores, got %d", util.ErrGradingUnavailable, len(items), len(raw.Scores))
	}

	scores := make([]int, len(raw.Scores))
	for i, s := range raw.Scores {
		scores[i] = clampScore(s)
	}
	monitoring.GradingRequests.WithLabelValues("ok").Inc()
	return scores, nil
}

func clampScore(v float64) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return int(v + 0.5)
	}
}
