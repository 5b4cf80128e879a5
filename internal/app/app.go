package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"puzzle_arena_backend/internal/config"
	"puzzle_arena_backend/internal/controller"
	"puzzle_arena_backend/internal/model"
	"puzzle_arena_backend/internal/repository"
	"puzzle_arena_backend/internal/service"
	"puzzle_arena_backend/pkg/database"
	"puzzle_arena_backend/pkg/logger"
	"puzzle_arena_backend/pkg/monitoring"
	"puzzle_arena_backend/pkg/security"
	"puzzle_arena_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config *config.Config
	Router *gin.Engine
	DB     *gorm.DB
	Redis  *redis.Client

	services *services
	tracer   *sdktrace.TracerProvider

	// 游戏参数热更新时整体替换，读侧无锁
	gameSettings atomic.Value // model.GameSettings
}

type services struct {
	audit         *service.AuditService
	session       *service.SessionService
	timer         *service.TimerService
	hint          *service.HintService
	qualification *service.QualificationService
	leaderboard   service.LeaderboardPublisher
	notifier      service.Notifier
}

type controllers struct {
	timer  *controller.TimerController
	admin  *controller.AdminController
	health *controller.HealthController
}

// ReloadGameSettings 配置热更新入口，由 configwatcher 回调
func (a *App) ReloadGameSettings(cfg *config.Config) {
	settings := model.GameSettings{
		SkipPenaltySeconds:        cfg.Game.SkipPenaltySeconds,
		MaxSkipsPerTeam:           cfg.Game.MaxSkipsPerTeam,
		DefaultHintPenaltySeconds: cfg.Game.DefaultHintPenaltySeconds,
	}
	a.gameSettings.Store(settings.WithDefaults())
	logger.Log.Info("Game settings reloaded",
		zap.Int("skipPenaltySeconds", settings.SkipPenaltySeconds),
		zap.Int("maxSkipsPerTeam", settings.MaxSkipsPerTeam),
		zap.Int("defaultHintPenaltySeconds", settings.DefaultHintPenaltySeconds))
}

func (a *App) currentGameSettings() model.GameSettings {
	return a.gameSettings.Load().(model.GameSettings)
}

func (a *App) initServices(store service.TeamProgressStore, rdb *redis.Client) *services {
	s := &services{}

	s.audit = service.NewAuditService(store)
	s.leaderboard = service.NewRedisLeaderboard(rdb)
	s.notifier = service.NewRedisNotifier(rdb)

	s.session = service.NewSessionService(store, s.audit, s.leaderboard)
	s.qualification = service.NewQualificationService(store, s.audit, s.notifier)
	s.timer = service.NewTimerService(store, s.session, s.audit, s.qualification, a.currentGameSettings)
	s.hint = service.NewHintService(store, s.session, s.audit, a.currentGameSettings)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB) *controllers {
	return &controllers{
		timer:  controller.NewTimerController(s.timer, s.session, s.hint),
		admin:  controller.NewAdminController(s.qualification, s.session, s.audit),
		health: controller.NewHealthController(db),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 10000
	}
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	router.Use(security.RateLimiter(maxRequests, window))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)

	logger.Log.Info("Logger initialized successfully")

	// release 模式默认不自动迁移，除非 -migrate 显式要求
	migrate := cfg.ForceMigrate || cfg.Server.Mode != "release"
	db, err := database.InitDB(&cfg.Database, migrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		log.Fatalf("Failed to initialize redis: %v", err)
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}
	app.ReloadGameSettings(cfg)

	store := repository.NewStore(db)
	services := app.initServices(store, rdb)
	app.services = services
	controllers := app.initControllers(services, db)

	// 监控初始化
	monitoring.Init()

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("puzzle-arena", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	app.registerRoutes(router, controllers, cfg)

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	// 退出前冲刷尚未导出的 span
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}

	log.Println("Server exiting")
}
