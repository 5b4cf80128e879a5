package controller

import (
	"strconv"

	"puzzle_arena_backend/internal/model"
	"puzzle_arena_backend/internal/service"
	"puzzle_arena_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AdminController struct {
	Qualifications *service.QualificationService
	Sessions       *service.SessionService
	Audit          *service.AuditService
}

func NewAdminController(qualifications *service.QualificationService, sessions *service.SessionService, audit *service.AuditService) *AdminController {
	return &AdminController{Qualifications: qualifications, Sessions: sessions, Audit: audit}
}

// @Summary 查询关卡晋级阈值
// @Tags 管理
// @Produce json
// @Security BearerAuth
// @Param levelId path int true "关卡ID"
// @Success 200 {object} util.Response
// @Router /api/admin/levels/{levelId}/cutoffs [get]
func (c *AdminController) GetCutoffs(ctx *gin.Context) {
	levelID, ok := parseUintParam(ctx, "levelId")
	if !ok {
		return
	}
	cutoff, err := c.Qualifications.GetCutoffForLevel(levelID)
	if err != nil {
		util.AppErrorResponse(ctx, err, nil)
		return
	}
	util.Success(ctx, cutoff)
}

// @Summary 配置关卡晋级阈值
// @Description 修改实时生效，已判定的队伍不受影响
// @Tags 管理
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param levelId path int true "关卡ID"
// @Param body body service.CutoffInput true "阈值"
// @Success 200 {object} util.Response
// @Router /api/admin/levels/{levelId}/cutoffs [put]
func (c *AdminController) PutCutoffs(ctx *gin.Context) {
	levelID, ok := parseUintParam(ctx, "levelId")
	if !ok {
		return
	}
	var input service.CutoffInput
	if err := ctx.ShouldBindJSON(&input); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	cutoff, err := c.Qualifications.UpsertCutoff(levelID, input)
	if err != nil {
		util.AppErrorResponse(ctx, err, nil)
		return
	}
	util.Success(ctx, cutoff)
}

// @Summary 人工改判晋级结果
// @Description 无视自动判定直接设置 QUALIFIED 或 DISQUALIFIED，需填写理由
// @Tags 管理
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param levelId path int true "关卡ID"
// @Param body body object true "{teamId, status, reason}"
// @Success 200 {object} util.Response
// @Router /api/admin/levels/{levelId}/override [post]
func (c *AdminController) OverrideQualification(ctx *gin.Context) {
	caller := util.GetCallerFromContext(ctx)
	if caller == nil {
		util.Unauthorized(ctx)
		return
	}
	levelID, ok := parseUintParam(ctx, "levelId")
	if !ok {
		return
	}
	var body struct {
		TeamID uint   `json:"teamId" binding:"required"`
		Status string `json:"status" binding:"required"`
		Reason string `json:"reason" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&body); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	status, err := c.Qualifications.Override(body.TeamID, levelID, model.QualificationStatus(body.Status), caller.TeamID, body.Reason)
	if err != nil {
		util.AppErrorResponse(ctx, err, nil)
		return
	}
	util.Success(ctx, status)
}

// @Summary 强制结束队伍会话
// @Tags 管理
// @Produce json
// @Security BearerAuth
// @Param teamId path int true "队伍ID"
// @Success 200 {object} util.Response
// @Router /api/admin/teams/{teamId}/session/end [post]
func (c *AdminController) ForceEndSession(ctx *gin.Context) {
	caller := util.GetCallerFromContext(ctx)
	if caller == nil {
		util.Unauthorized(ctx)
		return
	}
	teamID, ok := parseUintParam(ctx, "teamId")
	if !ok {
		return
	}
	effective, snapshot, err := c.Sessions.EndSession(teamID, model.ActorAdmin, caller.TeamID)
	if err != nil {
		util.AppErrorResponse(ctx, err, nil)
		return
	}
	util.Success(ctx, gin.H{"effectiveTimeSeconds": effective, "timer": snapshot})
}

// @Summary 查询队伍审计流水
// @Description 按时间倒序返回，默认 100 条，上限 500 条
// @Tags 管理
// @Produce json
// @Security BearerAuth
// @Param teamId path int true "队伍ID"
// @Param limit query int false "条数"
// @Success 200 {object} util.Response
// @Router /api/admin/teams/{teamId}/audit [get]
func (c *AdminController) AuditTrail(ctx *gin.Context) {
	teamID, ok := parseUintParam(ctx, "teamId")
	if !ok {
		return
	}
	limit := 0
	if q := ctx.Query("limit"); q != "" {
		v, err := strconv.Atoi(q)
		if err != nil || v < 0 {
			util.BadRequest(ctx, "invalid limit")
			return
		}
		limit = v
	}
	events, err := c.Audit.TrailForTeam(teamID, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"events": events, "count": len(events)})
}
