package controller

import (
	"engz_backend/internal/service"
	"engz_backend/internal/util"
	"time"

	"github.com/gin-gonic/gin"
)

type AdminController struct {
	AuthService   *service.AuthService
	ReportService *service.ReportService
	Now           func() time.Time
}

func NewAdminController(authService *service.AuthService, reportService *service.ReportService) *AdminController {
	return &AdminController{
		AuthService:   authService,
		ReportService: reportService,
		Now:           time.Now,
	}
}

// EntitlementRequest 支付回调转发的订阅状态
// swagger:model EntitlementRequest
type EntitlementRequest struct {
	Entitled *bool `json:"entitled" binding:"required"`
}

// SetEntitlement godoc
// @Summary 设置用户订阅状态
// @Description 由支付回调转发服务调用
// @Tags 管理
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param id path int true "User ID"
// @Param body body EntitlementRequest true "订阅状态"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/admin/users/{id}/entitlement [put]
func (c *AdminController) SetEntitlement(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	var req EntitlementRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	if err := c.AuthService.SetEntitlement(id, *req.Entitled); err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"id": id, "entitled": *req.Entitled})
}

// RefreshReports godoc
// @Summary 立即刷新到期的 routine 报告
// @Tags 管理
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response
// @Router /api/admin/reports/refresh [post]
func (c *AdminController) RefreshReports(ctx *gin.Context) {
	n, err := c.ReportService.RefreshDueReports(c.Now())
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"refreshed": n})
}
