package app

import (
	"context"
	"engz_backend/internal/config"
	"engz_backend/internal/controller"
	"engz_backend/internal/repository"
	"engz_backend/internal/scheduler"
	"engz_backend/internal/service"
	"engz_backend/pkg/configwatcher"
	"engz_backend/pkg/database"
	"engz_backend/pkg/logger"
	"engz_backend/pkg/monitoring"
	"engz_backend/pkg/security"
	"engz_backend/pkg/tracing"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"gorm.io/gorm"
)

// ConfigDir main 读取配置的目录，热更新监听同一个文件
const ConfigDir = "configs"

type App struct {
	Config   *config.Config
	Router   *gin.Engine
	DB       *gorm.DB
	Redis    *redis.Client
	services *services

	scheduler      *scheduler.Scheduler
	tracerProvider *sdktrace.TracerProvider
	stopWatcher    context.CancelFunc

	mu              sync.Mutex
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user      *repository.UserRepository
	routine   *repository.RoutineRepository
	attempt   *repository.MissionAttemptRepository
	report    *repository.ReportRepository
	levelTest *repository.LevelTestRepository
}

type services struct {
	ai          *service.AIService
	storage     *service.StorageService
	transcriber service.Transcriber
	audio       *service.AudioService
	report      *service.ReportService
	mission     *service.MissionService
	routine     *service.RoutineService
	levelTest   *service.LevelTestService
	auth        *service.AuthService
}

type controllers struct {
	auth      *controller.AuthController
	health    *controller.HealthController
	routine   *controller.RoutineController
	mission   *controller.MissionController
	levelTest *controller.LevelTestController
	admin     *controller.AdminController
}

// RegisterConfigCallback 配置文件变更后依次回调
func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) applyConfig(cfg *config.Config) {
	a.mu.Lock()
	callbacks := append([]func(*config.Config){}, a.configCallbacks...)
	a.mu.Unlock()

	for _, cb := range callbacks {
		cb(cfg)
	}
	logger.Log.Info("Config applied",
		zap.Int("completionThreshold", cfg.Routine.CompletionThreshold),
		zap.Duration("gradingTimeout", cfg.AI.GradingTimeout()))
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:      repository.NewUserRepository(db),
		routine:   repository.NewRoutineRepository(db),
		attempt:   repository.NewMissionAttemptRepository(db),
		report:    repository.NewReportRepository(db),
		levelTest: repository.NewLevelTestRepository(db, database.DetectCapabilities(db)),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	s.ai = service.NewAIService(cfg.AI)
	grader := service.NewAIGrader(s.ai)
	s.storage = service.NewStorageService(cfg)

	if cfg.Speech.Enabled {
		transcriber, err := service.NewGCPTranscriber(context.Background(), cfg.Speech)
		if err != nil {
			logger.Log.Warn("Speech transcription disabled", zap.Error(err))
		} else {
			s.transcriber = transcriber
		}
	}
	if s.transcriber != nil {
		s.audio = service.NewAudioService(s.storage, s.transcriber, cfg.Speech)
	}

	s.report = service.NewReportService(repos.routine, repos.attempt, repos.report)
	s.mission = service.NewMissionService(repos.routine, repos.attempt, grader, s.report, cfg)
	s.mission.Audio = s.audio
	s.routine = service.NewRoutineService(repos.routine)
	s.levelTest = service.NewLevelTestService(repos.levelTest, grader, s.ai, service.NewLocker(rdb), cfg.AI.GradingTimeout())
	s.auth = service.NewAuthService(repos.user, cfg)

	a.RegisterConfigCallback(s.mission.ApplyConfig)
	a.RegisterConfigCallback(func(c *config.Config) {
		s.levelTest.SetGradingTimeout(c.AI.GradingTimeout())
	})

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		auth:      controller.NewAuthController(s.auth),
		health:    controller.NewHealthController(db, rdb),
		routine:   controller.NewRoutineController(s.routine, s.report),
		mission:   controller.NewMissionController(s.mission),
		levelTest: controller.NewLevelTestController(s.levelTest),
		admin:     controller.NewAdminController(s.auth, s.report),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func (a *App) startBackgroundTasks(s *services, cfg *config.Config) {
	a.scheduler = scheduler.New(s.report)
	if err := a.scheduler.Start(cfg.Routine.ReportRefreshCron); err != nil {
		logger.Log.Error("Failed to start report scheduler",
			zap.String("cron", cfg.Routine.ReportRefreshCron), zap.Error(err))
		a.scheduler = nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.stopWatcher = cancel
	go func() {
		configFile := filepath.Join(ConfigDir, "config.yaml")
		if err := configwatcher.Watch(ctx, configFile, time.Second, a.applyConfig); err != nil {
			logger.Log.Warn("Config watcher stopped", zap.Error(err))
		}
	}()
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	// release 模式默认不自动迁移，需要 -migrate
	if cfg.Server.Mode != "release" || cfg.ForceMigrate {
		if err := database.Migrate(db); err != nil {
			logger.Log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	app := &App{
		Config: cfg,
		DB:     db,
	}
	if cfg.MigrateOnly {
		return app
	}

	// Redis 可选，不可用时锁退化为进程内直接执行
	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Warn("Redis unavailable, continuing without it", zap.Error(err))
		rdb = nil
	}
	app.Redis = rdb

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, rdb)
	app.services = services
	controllers := app.initControllers(services, db, rdb)

	// 监控初始化
	monitoring.Init()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	app.Router = router

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("engz", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracerProvider = tp
	}

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, services, cfg)

	app.startBackgroundTasks(services, cfg)

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("listen failed", zap.Error(err))
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	a.Close(ctx)
	logger.Log.Info("Server exiting")
}

// Close 停止后台任务并释放外部连接
func (a *App) Close(ctx context.Context) {
	if a.stopWatcher != nil {
		a.stopWatcher()
	}
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.services != nil && a.services.transcriber != nil {
		a.services.transcriber.Close()
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		sqlDB.Close()
	}
}
