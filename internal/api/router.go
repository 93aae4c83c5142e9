package api

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/repo_insight_server/config"
	"github.com/qs3c/repo_insight_server/internal/api/handler"
	"github.com/qs3c/repo_insight_server/internal/api/middleware"
)

type Router struct {
	analysisHandler  *handler.AnalysisHandler
	dashboardHandler *handler.DashboardHandler
	healthHandler    *handler.HealthHandler
	websocketHandler *handler.WebSocketHandler
	cfg              *config.Config
}

func NewRouter(
	analysisHandler *handler.AnalysisHandler,
	dashboardHandler *handler.DashboardHandler,
	healthHandler *handler.HealthHandler,
	websocketHandler *handler.WebSocketHandler,
	cfg *config.Config,
) *Router {
	return &Router{
		analysisHandler:  analysisHandler,
		dashboardHandler: dashboardHandler,
		healthHandler:    healthHandler,
		websocketHandler: websocketHandler,
		cfg:              cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(r.cfg.CORS))

	engine.GET("/health", r.healthHandler.Check)

	api := engine.Group("/api/v1")
	{
		api.GET("/health", r.healthHandler.Check)

		// WebSocket 实时进度
		api.GET("/ws", r.websocketHandler.Handle)

		// 分析任务
		analyses := api.Group("/analyses")
		{
			analyses.POST("", r.analysisHandler.Create)
			analyses.GET("", r.analysisHandler.List)
			analyses.GET("/:id", r.analysisHandler.Get)
			analyses.GET("/:id/progress", r.analysisHandler.GetProgress)
			analyses.GET("/:id/report", r.analysisHandler.DownloadReport)
			analyses.DELETE("/:id", r.analysisHandler.Delete)
		}

		// 仪表盘
		api.GET("/dashboard/stats", r.dashboardHandler.Stats)
	}

	return engine
}
