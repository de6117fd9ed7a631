package api

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/qs3c/engage_go_server/config"
	"github.com/qs3c/engage_go_server/internal/api/handler"
	"github.com/qs3c/engage_go_server/internal/api/middleware"
)

type Router struct {
	itemHandler      *handler.ItemHandler
	pipelineHandler  *handler.PipelineHandler
	analysisHandler  *handler.AnalysisHandler
	commentHandler   *handler.CommentHandler
	websocketHandler *handler.WebSocketHandler
	healthHandler    *handler.HealthHandler
	cfg              *config.Config
}

// NewRouter 创建路由
func NewRouter(
	itemHandler *handler.ItemHandler,
	pipelineHandler *handler.PipelineHandler,
	analysisHandler *handler.AnalysisHandler,
	commentHandler *handler.CommentHandler,
	websocketHandler *handler.WebSocketHandler,
	healthHandler *handler.HealthHandler,
	cfg *config.Config,
) *Router {
	return &Router{
		itemHandler:      itemHandler,
		pipelineHandler:  pipelineHandler,
		analysisHandler:  analysisHandler,
		commentHandler:   commentHandler,
		websocketHandler: websocketHandler,
		healthHandler:    healthHandler,
		cfg:              cfg,
	}
}

// Setup 注册中间件和全部路由
func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	if r.cfg.Tracing.Enabled {
		engine.Use(otelgin.Middleware(r.cfg.Tracing.ServiceName))
	}
	engine.Use(middleware.CORS(r.cfg.CORS))

	engine.GET("/health", r.healthHandler.Check)

	api := engine.Group("/api/v1")
	{
		// WebSocket 进度推送，令牌走 query
		api.GET("/ws", r.websocketHandler.Handle)

		authenticated := api.Group("")
		authenticated.Use(middleware.Auth(r.cfg.JWT.Secret))
		{
			authenticated.GET("/accounts/:account_id/items", r.itemHandler.ListByAccount)

			items := authenticated.Group("/items")
			{
				items.POST("", r.itemHandler.Create)
				items.GET("/:id", r.itemHandler.Get)
				items.POST("/:id/pipeline", r.pipelineHandler.Start)
				items.GET("/:id/pipeline", r.pipelineHandler.Status)
				items.GET("/:id/analysis", r.analysisHandler.Get)
				items.GET("/:id/comments", r.commentHandler.Latest)
				items.POST("/:id/comments/generate", r.commentHandler.Regenerate)
			}
		}
	}

	return engine
}
