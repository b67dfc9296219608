package app

import (
	"engz_backend/docs"
	"engz_backend/internal/config"
	"engz_backend/internal/middleware"
	"engz_backend/internal/model"
	"engz_backend/internal/util"
	"engz_backend/pkg/monitoring"
	"engz_backend/pkg/security"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// 录音上传请求体上限，留出 multipart 头部的余量
const audioBodyLimit = util.MaxAudioBytes + 1<<20

func (a *App) registerRoutes(router *gin.Engine, c *controllers, s *services, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())
	router.NoRoute(util.NotFound)

	if s.storage != nil && s.storage.IsLocal() {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	// 1. 公共路由(无需登录)
	registerPublicRoutes(router, c, cfg)

	// 2. 需要登录的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		authGroup.GET("/profile", c.auth.GetProfile)
		authGroup.GET("/level-test/results", c.levelTest.ListResults)

		// 学习计划和任务需要有效订阅
		entitled := authGroup.Group("")
		entitled.Use(middleware.EntitlementMiddleware(s.auth))
		registerRoutineRoutes(entitled, c)
	}

	// 3. 管理员接口
	admin := router.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(cfg), middleware.RoleMiddleware(model.Admin))
	{
		admin.PUT("/users/:id/entitlement", c.admin.SetEntitlement)
		admin.POST("/reports/refresh", c.admin.RefreshReports)
	}
}

func registerPublicRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
	}

	// 定级测试允许匿名作答，登录后结果归属到本人
	levelTest := router.Group("/api/level-test")
	levelTest.Use(middleware.TryAuthMiddleware(cfg))
	{
		levelTest.GET("/questions", c.levelTest.GetQuestions)
		levelTest.POST("/submit", c.levelTest.Submit)
		levelTest.GET("/results/:id", c.levelTest.GetResult)
		levelTest.GET("/results/:id/feedback", c.levelTest.GetFeedback)
		levelTest.GET("/results/:id/plan", c.levelTest.GetPlan)
	}
}

func registerRoutineRoutes(group *gin.RouterGroup, c *controllers) {
	routines := group.Group("/routines")
	{
		routines.POST("", c.routine.CreateRoutine)
		routines.GET("", c.routine.ListRoutines)
		routines.GET("/current", c.routine.GetCurrent)
		routines.GET("/:id", c.routine.GetRoutine)
		routines.GET("/:id/report", c.routine.GetReport)
	}

	missions := group.Group("/missions")
	{
		missions.GET("/:id", c.mission.GetMission)
		missions.GET("/:id/attempts", c.mission.ListAttempts)
		missions.POST("/:id/submit", c.mission.Submit)
		missions.POST("/:id/audio", security.BodyLimit(audioBodyLimit), c.mission.SubmitAudio)
	}
}
