package service

import (
	"context"
	"encoding/json"
	"engz_backend/internal/config"
	"engz_backend/internal/model"
	"engz_backend/internal/repository"
	"engz_backend/internal/util"
	"engz_backend/pkg/logger"
	"engz_backend/pkg/monitoring"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const degradedSuggestion = "We could not grade this answer right now. Your response was saved, please try again in a moment."

type SubScores struct {
	Grammar       int  `json:"grammar"`
	Pronunciation int  `json:"pronunciation"`
	Fluency       int  `json:"fluency"`
	Overall       *int `json:"overall,omitempty"`
}

type SubmissionResult struct {
	MissionID        uint      `json:"missionId"`
	AggregateScore   int       `json:"aggregateScore"`
	SubScores        SubScores `json:"subScores"`
	Corrections      []string  `json:"corrections"`
	Suggestion       string    `json:"suggestion"`
	MissionCompleted bool      `json:"missionCompleted"`
	RoutineCompleted bool      `json:"routineCompleted"`
	// 评分服务不可用时使用兜底分数
	Degraded bool `json:"degraded"`
}

type MissionService struct {
	RoutineRepo *repository.RoutineRepository
	AttemptRepo *repository.MissionAttemptRepository
	Grader      Grader
	Reports     *ReportService
	Audio       *AudioService
	Now         func() time.Time

	threshold      atomic.Int32
	fallbackScore  atomic.Int32
	gradingTimeout atomic.Int64
}

func NewMissionService(
	routineRepo *repository.RoutineRepository,
	attemptRepo *repository.MissionAttemptRepository,
	grader Grader,
	reports *ReportService,
	cfg *config.Config,
) *MissionService {
	s := &MissionService{
		RoutineRepo: routineRepo,
		AttemptRepo: attemptRepo,
		Grader:      grader,
		Reports:     reports,
		Now:         time.Now,
	}
	s.ApplyConfig(cfg)
	return s
}

// ApplyConfig 配置热更新时调用
func (s *MissionService) ApplyConfig(cfg *config.Config) {
	s.threshold.Store(int32(cfg.Routine.CompletionThreshold))
	s.fallbackScore.Store(int32(cfg.AI.FallbackScore))
	s.gradingTimeout.Store(int64(cfg.AI.GradingTimeout()))
}

func (s *MissionService) Threshold() int {
	return int(s.threshold.Load())
}

// AggregateScore 有 overall 时取四项平均，否则取三项平均，四舍五入
func AggregateScore(g *GradeResult) int {
	sum := g.Grammar + g.Pronunciation + g.Fluency
	n := 3
	if g.Overall != nil {
		sum += *g.Overall
		n = 4
	}
	return roundDiv(sum, n)
}

// roundDiv 非负整数除法，四舍五入
func roundDiv(sum, n int) int {
	if n == 0 {
		return 0
	}
	return (2*sum + n) / (2 * n)
}

// GetMission 读取任务并校验归属
func (s *MissionService) GetMission(missionID, learnerID uint) (*model.Mission, error) {
	mission, _, err := s.loadOwned(missionID, learnerID)
	return mission, err
}

func (s *MissionService) loadOwned(missionID, learnerID uint) (*model.Mission, *model.Routine, error) {
	mission, err := s.RoutineRepo.FindMissionByID(missionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, util.ErrMissionNotFound
		}
		return nil, nil, err
	}
	routine, err := s.RoutineRepo.FindByID(mission.RoutineID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, util.ErrRoutineNotFound
		}
		return nil, nil, err
	}
	if routine.UserID != learnerID {
		return nil, nil, util.ErrNotRoutineOwner
	}
	return mission, routine, nil
}

// Submit 评分并在达到阈值时完成任务。评分服务不可用时降级为兜底分数，不向调用方报错。
func (s *MissionService) Submit(ctx context.Context, missionID, learnerID uint, mode model.ResponseMode, responseText string) (*SubmissionResult, error) {
	if mode == "" {
		mode = model.ResponseText
	}
	if mode != model.ResponseText && mode != model.ResponseAudio {
		return nil, util.ErrUnknownMode
	}

	mission, routine, err := s.loadOwned(missionID, learnerID)
	if err != nil {
		return nil, err
	}

	responseText = strings.TrimSpace(responseText)
	if responseText == "" {
		return nil, util.ErrEmptyResponse
	}

	grade, degraded := s.grade(ctx, mission, responseText)
	result := &SubmissionResult{
		MissionID:      mission.ID,
		AggregateScore: AggregateScore(grade),
		SubScores: SubScores{
			Grammar:       grade.Grammar,
			Pronunciation: grade.Pronunciation,
			Fluency:       grade.Fluency,
			Overall:       grade.Overall,
		},
		Corrections:      grade.Corrections,
		Suggestion:       grade.Suggestion,
		MissionCompleted: mission.Completed,
		Degraded:         degraded,
	}

	transitioned := false
	if !degraded && result.AggregateScore >= s.Threshold() && !mission.Completed {
		outcome, err := s.RoutineRepo.CompleteMission(mission.ID, routine.ID, grade.Suggestion, model.MissionsPerRoutine, s.Now())
		if err != nil {
			return nil, err
		}
		transitioned = outcome.MissionTransitioned
		result.RoutineCompleted = outcome.RoutineCompleted
		if transitioned {
			result.MissionCompleted = true
			monitoring.MissionCompletions.Inc()
			logger.Log.Info("mission completed",
				zap.Uint("missionId", mission.ID),
				zap.Uint("routineId", routine.ID),
				zap.Int("completedMissions", outcome.CompletedMissions))
		} else {
			// 并发提交输掉了 CAS，按最新状态返回
			result.MissionCompleted = s.reloadCompleted(mission.ID)
		}
	}

	s.recordAttempt(mission, routine, learnerID, mode, responseText, grade, result, transitioned)

	if result.RoutineCompleted {
		monitoring.RoutineCompletions.Inc()
		logger.Log.Info("routine completed", zap.Uint("routineId", routine.ID), zap.Uint("userId", learnerID))
		if s.Reports != nil {
			if _, err := s.Reports.Synthesize(routine.ID, s.Now()); err != nil {
				logger.Log.Warn("report synthesis after completion failed", zap.Uint("routineId", routine.ID), zap.Error(err))
			}
		}
	}

	return result, nil
}

func (s *MissionService) grade(ctx context.Context, mission *model.Mission, responseText string) (*GradeResult, bool) {
	timeout := time.Duration(s.gradingTimeout.Load())
	gctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	grade, err := s.Grader.Grade(gctx, mission.Content, responseText)
	if err == nil {
		return grade, false
	}

	logger.Log.Warn("grading unavailable, using fallback score",
		zap.Uint("missionId", mission.ID),
		zap.Error(err))
	monitoring.DegradedGrades.Inc()

	fallback := int(s.fallbackScore.Load())
	return &GradeResult{
		Grammar:       fallback,
		Pronunciation: fallback,
		Fluency:       fallback,
		Corrections:   []string{},
		Suggestion:    degradedSuggestion,
	}, true
}

func (s *MissionService) reloadCompleted(missionID uint) bool {
	m, err := s.RoutineRepo.FindMissionByID(missionID)
	if err != nil {
		logger.Log.Warn("reload mission after conflict failed", zap.Uint("missionId", missionID), zap.Error(err))
		return false
	}
	return m.Completed
}

func (s *MissionService) recordAttempt(mission *model.Mission, routine *model.Routine, learnerID uint, mode model.ResponseMode, text string, grade *GradeResult, result *SubmissionResult, transitioned bool) {
	if s.AttemptRepo == nil {
		return
	}
	corrections, _ := json.Marshal(grade.Corrections)
	attempt := &model.MissionAttempt{
		MissionID:      mission.ID,
		RoutineID:      routine.ID,
		UserID:         learnerID,
		Mode:           mode,
		ResponseText:   text,
		Grammar:        grade.Grammar,
		Pronunciation:  grade.Pronunciation,
		Fluency:        grade.Fluency,
		Overall:        grade.Overall,
		AggregateScore: result.AggregateScore,
		Corrections:    string(corrections),
		Suggestion:     grade.Suggestion,
		Degraded:       result.Degraded,
		Completed:      transitioned,
	}
	if err := s.AttemptRepo.Create(attempt); err != nil {
		logger.Log.Error("save mission attempt failed", zap.Uint("missionId", mission.ID), zap.Error(err))
	}
}

// AudioSubmissionResult 录音提交的评分结果和转写文本
type AudioSubmissionResult struct {
	*SubmissionResult
	Transcript string `json:"transcript"`
	AudioURL   string `json:"audioUrl,omitempty"`
}

// SubmitAudio 先转写录音再按 audio 模式评分
func (s *MissionService) SubmitAudio(ctx context.Context, missionID, learnerID uint, upload AudioUpload) (*AudioSubmissionResult, error) {
	if !s.Audio.Available() {
		return nil, util.ErrAudioUnavailable
	}
	if _, _, err := s.loadOwned(missionID, learnerID); err != nil {
		return nil, err
	}

	transcription, err := s.Audio.Transcribe(ctx, learnerID, missionID, upload)
	if err != nil {
		return nil, err
	}

	result, err := s.Submit(ctx, missionID, learnerID, model.ResponseAudio, transcription.Text)
	if err != nil {
		return nil, err
	}
	return &AudioSubmissionResult{
		SubmissionResult: result,
		Transcript:       transcription.Text,
		AudioURL:         transcription.URL,
	}, nil
}

// ListAttempts 任务的历史提交
func (s *MissionService) ListAttempts(missionID, learnerID uint) ([]model.MissionAttempt, error) {
	if _, _, err := s.loadOwned(missionID, learnerID); err != nil {
		return nil, err
	}
	return s.AttemptRepo.ListByMission(missionID)
}
