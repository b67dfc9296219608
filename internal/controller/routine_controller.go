package controller

import (
	"engz_backend/internal/service"
	"engz_backend/internal/util"
	"time"

	"github.com/gin-gonic/gin"
)

type RoutineController struct {
	RoutineService *service.RoutineService
	ReportService  *service.ReportService
	Now            func() time.Time
}

func NewRoutineController(routineService *service.RoutineService, reportService *service.ReportService) *RoutineController {
	return &RoutineController{
		RoutineService: routineService,
		ReportService:  reportService,
		Now:            time.Now,
	}
}

// CreateRoutineRequest 创建 routine
// swagger:model CreateRoutineRequest
type CreateRoutineRequest struct {
	Theme string `json:"theme" binding:"required"`
}

// CreateRoutine godoc
// @Summary 开始新的 4 周 routine
// @Description 主题可选 Grammar、Slang、Business、Travel、Speaking，已有进行中的 routine 时返回 409
// @Tags Routine
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body CreateRoutineRequest true "主题"
// @Success 201 {object} util.Response{data=model.Routine}
// @Failure 400 {object} util.Response "未知主题"
// @Failure 409 {object} util.Response "已有进行中的 routine"
// @Router /api/routines [post]
func (c *RoutineController) CreateRoutine(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	var req CreateRoutineRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	routine, err := c.RoutineService.CreateRoutine(userID, req.Theme, c.Now())
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Created(ctx, routine)
}

// GetCurrent godoc
// @Summary 当前 routine 进度
// @Description 返回当前周/天、今日任务和完成进度；没有进行中的 routine 时 hasRoutine 为 false
// @Tags Routine
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=service.RoutineSnapshot}
// @Router /api/routines/current [get]
func (c *RoutineController) GetCurrent(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	snapshot, err := c.RoutineService.Snapshot(userID, c.Now())
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, snapshot)
}

// ListRoutines godoc
// @Summary routine 历史
// @Tags Routine
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]model.Routine}
// @Router /api/routines [get]
func (c *RoutineController) ListRoutines(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	routines, err := c.RoutineService.ListRoutines(userID)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, routines)
}

// GetRoutine godoc
// @Summary routine 详情（含 20 个任务）
// @Tags Routine
// @Produce  json
// @Security ApiKeyAuth
// @Param id path int true "Routine ID"
// @Success 200 {object} util.Response{data=model.Routine}
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/routines/{id} [get]
func (c *RoutineController) GetRoutine(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	routine, err := c.RoutineService.GetRoutine(userID, id)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, routine)
}

// GetReport godoc
// @Summary routine 进度报告
// @Description 比较最早和最近任务的得分；跨过周边界后自动重新生成
// @Tags Routine
// @Produce  json
// @Security ApiKeyAuth
// @Param id path int true "Routine ID"
// @Success 200 {object} util.Response{data=model.Report}
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/routines/{id}/report [get]
func (c *RoutineController) GetReport(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	report, err := c.ReportService.GetReport(userID, id, c.Now())
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, report)
}
