package controller

import (
	"engz_backend/internal/service"
	"engz_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type LevelTestController struct {
	LevelTestService *service.LevelTestService
}

func NewLevelTestController(levelTestService *service.LevelTestService) *LevelTestController {
	return &LevelTestController{LevelTestService: levelTestService}
}

// GetQuestions godoc
// @Summary 分级测试题目
// @Description 不包含答案
// @Tags 分级测试
// @Produce  json
// @Success 200 {object} util.Response{data=[]service.QuestionView}
// @Router /api/level-test/questions [get]
func (c *LevelTestController) GetQuestions(ctx *gin.Context) {
	questions, err := c.LevelTestService.Questions()
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, questions)
}

// Submit godoc
// @Summary 提交分级测试
// @Description 登录时结果归属当前用户，也允许匿名提交
// @Tags 分级测试
// @Accept  json
// @Produce  json
// @Param body body service.LevelTestSubmission true "答题内容"
// @Success 201 {object} util.Response{data=service.LevelTestOutcome}
// @Failure 400 {object} util.Response
// @Router /api/level-test/submit [post]
func (c *LevelTestController) Submit(ctx *gin.Context) {
	var req service.LevelTestSubmission
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	out, err := c.LevelTestService.Submit(ctx.Request.Context(), optionalUserID(ctx), &req)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Created(ctx, out)
}

// GetResult godoc
// @Summary 分级测试结果
// @Tags 分级测试
// @Produce  json
// @Param id path int true "Result ID"
// @Success 200 {object} util.Response{data=model.LevelTestResult}
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/level-test/results/{id} [get]
func (c *LevelTestController) GetResult(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	result, err := c.LevelTestService.GetResult(id, optionalUserID(ctx))
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// GetFeedback godoc
// @Summary AI 个性化反馈
// @Description 首次读取时生成并保存；AI 不可用时返回模板文字且不保存
// @Tags 分级测试
// @Produce  json
// @Param id path int true "Result ID"
// @Success 200 {object} util.Response{data=service.AITextResult}
// @Router /api/level-test/results/{id}/feedback [get]
func (c *LevelTestController) GetFeedback(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	res, err := c.LevelTestService.Feedback(ctx.Request.Context(), id, optionalUserID(ctx))
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, res)
}

// GetPlan godoc
// @Summary AI 4 周学习计划
// @Tags 分级测试
// @Produce  json
// @Param id path int true "Result ID"
// @Success 200 {object} util.Response{data=service.AITextResult}
// @Router /api/level-test/results/{id}/plan [get]
func (c *LevelTestController) GetPlan(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	res, err := c.LevelTestService.Plan(ctx.Request.Context(), id, optionalUserID(ctx))
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, res)
}

// ListResults godoc
// @Summary 我的分级测试历史
// @Tags 分级测试
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]model.LevelTestResult}
// @Router /api/level-test/results [get]
func (c *LevelTestController) ListResults(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	results, err := c.LevelTestService.ListResults(userID)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, results)
}
