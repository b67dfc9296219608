package controller

import (
	"engz_backend/internal/model"
	"engz_backend/internal/service"
	"engz_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type MissionController struct {
	MissionService *service.MissionService
}

func NewMissionController(missionService *service.MissionService) *MissionController {
	return &MissionController{MissionService: missionService}
}

// SubmitMissionRequest 文字作答
// swagger:model SubmitMissionRequest
type SubmitMissionRequest struct {
	Mode     string `json:"mode"`
	Response string `json:"response" binding:"required"`
}

// GetMission godoc
// @Summary 任务详情
// @Tags Mission
// @Produce  json
// @Security ApiKeyAuth
// @Param id path int true "Mission ID"
// @Success 200 {object} util.Response{data=model.Mission}
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/missions/{id} [get]
func (c *MissionController) GetMission(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	mission, err := c.MissionService.GetMission(id, userID)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, mission)
}

// Submit godoc
// @Summary 提交任务作答
// @Description 由 AI 评分，综合分达到阈值时任务完成；评分服务不可用时返回兜底分数且 degraded 为 true
// @Tags Mission
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param id path int true "Mission ID"
// @Param body body SubmitMissionRequest true "作答内容"
// @Success 200 {object} util.Response{data=service.SubmissionResult}
// @Failure 400 {object} util.Response "作答为空"
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/missions/{id}/submit [post]
func (c *MissionController) Submit(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	var req SubmitMissionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	// 录音需要走 /audio 接口
	if model.ResponseMode(req.Mode) == model.ResponseAudio {
		util.BadRequest(ctx, "audio responses must be uploaded to /api/missions/:id/audio")
		return
	}

	res, err := c.MissionService.Submit(ctx.Request.Context(), id, userID, model.ResponseMode(req.Mode), req.Response)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, res)
}

// SubmitAudio godoc
// @Summary 提交录音作答
// @Description 录音转写后按 audio 模式评分；未配置语音识别时返回 400
// @Tags Mission
// @Accept  multipart/form-data
// @Produce  json
// @Security ApiKeyAuth
// @Param id path int true "Mission ID"
// @Param file formData file true "录音文件 (mp3/wav/m4a/ogg/webm/flac)"
// @Success 200 {object} util.Response{data=service.AudioSubmissionResult}
// @Failure 400 {object} util.Response
// @Failure 403 {object} util.Response
// @Failure 503 {object} util.Response "语音识别失败"
// @Router /api/missions/{id}/audio [post]
func (c *MissionController) SubmitAudio(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "file is required")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	defer file.Close()

	res, err := c.MissionService.SubmitAudio(ctx.Request.Context(), id, userID, service.AudioUpload{
		Filename: fileHeader.Filename,
		Size:     fileHeader.Size,
		Reader:   file,
	})
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, res)
}

// ListAttempts godoc
// @Summary 任务的历史提交
// @Tags Mission
// @Produce  json
// @Security ApiKeyAuth
// @Param id path int true "Mission ID"
// @Success 200 {object} util.Response{data=[]model.MissionAttempt}
// @Router /api/missions/{id}/attempts [get]
func (c *MissionController) ListAttempts(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	attempts, err := c.MissionService.ListAttempts(id, userID)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, attempts)
}
