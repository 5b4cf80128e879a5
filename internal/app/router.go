package app

import (
	"puzzle_arena_backend/docs"
	"puzzle_arena_backend/internal/config"
	"puzzle_arena_backend/internal/middleware"
	"puzzle_arena_backend/internal/model"
	"puzzle_arena_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
	}

	// 队伍计时接口
	timer := router.Group("/api/timer")
	timer.Use(middleware.AuthMiddleware(cfg))
	{
		questions := timer.Group("/questions/:id")
		{
			questions.POST("/start", c.timer.StartQuestion)
			questions.POST("/pause", c.timer.PauseQuestion)
			questions.POST("/resume", c.timer.ResumeQuestion)
			questions.POST("/complete", c.timer.CompleteQuestion)
			questions.POST("/skip", c.timer.SkipQuestion)
			questions.POST("/goto", c.timer.GotoQuestion)
			questions.POST("/hints/:hintId/use", c.timer.UseHint)
		}
		timer.POST("/session/end", c.timer.EndSession)
		timer.GET("/sync", c.timer.SyncTimer)
	}

	// 管理端接口
	admin := router.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(cfg), middleware.RoleMiddleware(model.AdminActor))
	{
		admin.GET("/levels/:levelId/cutoffs", c.admin.GetCutoffs)
		admin.PUT("/levels/:levelId/cutoffs", c.admin.PutCutoffs)
		admin.POST("/levels/:levelId/override", c.admin.OverrideQualification)
		admin.POST("/teams/:teamId/session/end", c.admin.ForceEndSession)
		admin.GET("/teams/:teamId/audit", c.admin.AuditTrail)
	}
}
