package controller

import (
	"strconv"

	"puzzle_arena_backend/internal/model"
	"puzzle_arena_backend/internal/service"
	"puzzle_arena_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type TimerController struct {
	Timers   *service.TimerService
	Sessions *service.SessionService
	Hints    *service.HintService
}

func NewTimerController(timers *service.TimerService, sessions *service.SessionService, hints *service.HintService) *TimerController {
	return &TimerController{Timers: timers, Sessions: sessions, Hints: hints}
}

func parseUintParam(ctx *gin.Context, name string) (uint, bool) {
	v, err := strconv.Atoi(ctx.Param(name))
	if err != nil || v <= 0 {
		util.BadRequest(ctx, "invalid "+name)
		return 0, false
	}
	return uint(v), true
}

// respond 成功带快照返回；类型化错误换成 {error_kind} 外加一份权威同步
// 快照，让客户端直接纠偏而不是自己猜计时器的真实状态
func (c *TimerController) respond(ctx *gin.Context, teamID uint, data interface{}, err error) {
	if err == nil {
		util.Success(ctx, data)
		return
	}
	if _, typed := util.KindOf(err); !typed {
		util.LogInternalError(ctx, err)
		return
	}
	snapshot, syncErr := c.Sessions.SyncTimer(teamID, nil)
	if syncErr != nil {
		snapshot = nil
	}
	util.AppErrorResponse(ctx, err, snapshot)
}

// @Summary 开始答题计时
// @Description 激活指定题目的计时器，本队其他进行中的题目会被自动暂停
// @Tags 计时
// @Produce json
// @Security BearerAuth
// @Param id path int true "题目ID"
// @Success 200 {object} util.Response
// @Failure 409 {object} util.Response
// @Router /api/timer/questions/{id}/start [post]
func (c *TimerController) StartQuestion(ctx *gin.Context) {
	caller := util.GetCallerFromContext(ctx)
	if caller == nil {
		util.Unauthorized(ctx)
		return
	}
	puzzleID, ok := parseUintParam(ctx, "id")
	if !ok {
		return
	}
	snapshot, err := c.Timers.StartQuestion(caller.TeamID, puzzleID)
	c.respond(ctx, caller.TeamID, snapshot, err)
}

// @Summary 暂停答题计时
// @Tags 计时
// @Produce json
// @Security BearerAuth
// @Param id path int true "题目ID"
// @Success 200 {object} util.Response
// @Failure 409 {object} util.Response
// @Router /api/timer/questions/{id}/pause [post]
func (c *TimerController) PauseQuestion(ctx *gin.Context) {
	caller := util.GetCallerFromContext(ctx)
	if caller == nil {
		util.Unauthorized(ctx)
		return
	}
	puzzleID, ok := parseUintParam(ctx, "id")
	if !ok {
		return
	}
	snapshot, err := c.Timers.PauseQuestion(caller.TeamID, puzzleID)
	c.respond(ctx, caller.TeamID, snapshot, err)
}

// @Summary 恢复答题计时
// @Tags 计时
// @Produce json
// @Security BearerAuth
// @Param id path int true "题目ID"
// @Success 200 {object} util.Response
// @Failure 409 {object} util.Response
// @Router /api/timer/questions/{id}/resume [post]
func (c *TimerController) ResumeQuestion(ctx *gin.Context) {
	caller := util.GetCallerFromContext(ctx)
	if caller == nil {
		util.Unauthorized(ctx)
		return
	}
	puzzleID, ok := parseUintParam(ctx, "id")
	if !ok {
		return
	}
	result, snapshot, err := c.Timers.ResumeQuestion(caller.TeamID, puzzleID)
	c.respond(ctx, caller.TeamID, gin.H{"resume": result, "timer": snapshot}, err)
}

// @Summary 完成题目
// @Description 停止计时并写入最终用时，完成后不可再变更
// @Tags 计时
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "题目ID"
// @Param body body object false "{correct bool}"
// @Success 200 {object} util.Response
// @Failure 409 {object} util.Response
// @Router /api/timer/questions/{id}/complete [post]
func (c *TimerController) CompleteQuestion(ctx *gin.Context) {
	caller := util.GetCallerFromContext(ctx)
	if caller == nil {
		util.Unauthorized(ctx)
		return
	}
	puzzleID, ok := parseUintParam(ctx, "id")
	if !ok {
		return
	}
	var body struct {
		Correct bool `json:"correct"`
	}
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&body); err != nil {
			util.BadRequest(ctx, err.Error())
			return
		}
	}
	snapshot, err := c.Timers.CompleteQuestion(caller.TeamID, puzzleID, body.Correct)
	c.respond(ctx, caller.TeamID, snapshot, err)
}

// @Summary 跳过题目
// @Description 记入跳题罚时并抢先激活下一道可做的题
// @Tags 计时
// @Produce json
// @Security BearerAuth
// @Param id path int true "题目ID"
// @Success 200 {object} util.Response
// @Failure 422 {object} util.Response
// @Router /api/timer/questions/{id}/skip [post]
func (c *TimerController) SkipQuestion(ctx *gin.Context) {
	caller := util.GetCallerFromContext(ctx)
	if caller == nil {
		util.Unauthorized(ctx)
		return
	}
	puzzleID, ok := parseUintParam(ctx, "id")
	if !ok {
		return
	}
	result, snapshot, err := c.Timers.SkipQuestion(caller.TeamID, puzzleID)
	c.respond(ctx, caller.TeamID, gin.H{"skip": result, "timer": snapshot}, err)
}

// @Summary 跳转到指定题目
// @Description 等价于对目标题执行 start，已完成的题不可跳转
// @Tags 计时
// @Produce json
// @Security BearerAuth
// @Param id path int true "题目ID"
// @Success 200 {object} util.Response
// @Failure 409 {object} util.Response
// @Router /api/timer/questions/{id}/goto [post]
func (c *TimerController) GotoQuestion(ctx *gin.Context) {
	caller := util.GetCallerFromContext(ctx)
	if caller == nil {
		util.Unauthorized(ctx)
		return
	}
	puzzleID, ok := parseUintParam(ctx, "id")
	if !ok {
		return
	}
	target, snapshot, err := c.Timers.GotoQuestion(caller.TeamID, puzzleID)
	c.respond(ctx, caller.TeamID, gin.H{"question": target, "timer": snapshot}, err)
}

// @Summary 使用提示
// @Description 按顺序消费提示并记入罚时，同一提示只计一次
// @Tags 计时
// @Produce json
// @Security BearerAuth
// @Param id path int true "题目ID"
// @Param hintId path int true "提示ID"
// @Success 200 {object} util.Response
// @Failure 422 {object} util.Response
// @Router /api/timer/questions/{id}/hints/{hintId}/use [post]
func (c *TimerController) UseHint(ctx *gin.Context) {
	caller := util.GetCallerFromContext(ctx)
	if caller == nil {
		util.Unauthorized(ctx)
		return
	}
	puzzleID, ok := parseUintParam(ctx, "id")
	if !ok {
		return
	}
	hintID, ok := parseUintParam(ctx, "hintId")
	if !ok {
		return
	}
	result, snapshot, err := c.Hints.UseHint(caller.TeamID, puzzleID, hintID)
	c.respond(ctx, caller.TeamID, gin.H{"hint": result, "timer": snapshot}, err)
}

// @Summary 结束本队会话
// @Description 折算所有进行中的计时并冻结会话，返回最终有效用时
// @Tags 计时
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response
// @Router /api/timer/session/end [post]
func (c *TimerController) EndSession(ctx *gin.Context) {
	caller := util.GetCallerFromContext(ctx)
	if caller == nil {
		util.Unauthorized(ctx)
		return
	}
	effective, snapshot, err := c.Sessions.EndSession(caller.TeamID, model.ActorTeam, caller.TeamID)
	c.respond(ctx, caller.TeamID, gin.H{"effectiveTimeSeconds": effective, "timer": snapshot}, err)
}

// @Summary 同步计时快照
// @Description 只读；返回服务端权威的题目与会话计时状态
// @Tags 计时
// @Produce json
// @Security BearerAuth
// @Param questionId query int false "题目ID"
// @Success 200 {object} util.Response
// @Router /api/timer/sync [get]
func (c *TimerController) SyncTimer(ctx *gin.Context) {
	caller := util.GetCallerFromContext(ctx)
	if caller == nil {
		util.Unauthorized(ctx)
		return
	}
	var puzzleID *uint
	if q := ctx.Query("questionId"); q != "" {
		v, err := strconv.Atoi(q)
		if err != nil || v <= 0 {
			util.BadRequest(ctx, "invalid questionId")
			return
		}
		id := uint(v)
		puzzleID = &id
	}
	snapshot, err := c.Sessions.SyncTimer(caller.TeamID, puzzleID)
	c.respond(ctx, caller.TeamID, snapshot, err)
}
