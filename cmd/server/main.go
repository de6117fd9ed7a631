package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/qs3c/engage_go_server/config"
	"github.com/qs3c/engage_go_server/internal/api"
	"github.com/qs3c/engage_go_server/internal/api/handler"
	"github.com/qs3c/engage_go_server/internal/app"
	"github.com/qs3c/engage_go_server/internal/capability"
	"github.com/qs3c/engage_go_server/internal/database"
	"github.com/qs3c/engage_go_server/internal/pkg/cron"
	"github.com/qs3c/engage_go_server/internal/pkg/logger"
	"github.com/qs3c/engage_go_server/internal/pkg/pubsub"
	"github.com/qs3c/engage_go_server/internal/pkg/tracing"
	"github.com/qs3c/engage_go_server/internal/pkg/ws"
)

func main() {
	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLog, err := logger.New(cfg.Log.Mode)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer appLog.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Options{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Component:   "server",
	}, appLog)
	if err != nil {
		appLog.Fatal("failed to init tracing", "error", err)
	}

	// 初始化数据库
	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		appLog.Fatal("failed to connect database", "error", err)
	}
	appLog.Info("database connected", "driver", cfg.Database.Driver)

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		appLog.Fatal("failed to connect redis", "error", err)
	}
	appLog.Info("redis connected")

	// 初始化模型和业务服务
	llm, err := app.NewTextGenerator(ctx, cfg.Models, appLog)
	if err != nil {
		appLog.Fatal("failed to init text generator", "error", err)
	}
	core := app.NewCore(cfg, db, rdb, llm, appLog)

	// WebSocket Hub 转发 worker 发布的进度事件
	wsHub := ws.NewHub(appLog)
	go func() {
		if err := pubsub.NewSubscriber(rdb).Subscribe(ctx, wsHub.HandleEvent); err != nil && ctx.Err() == nil {
			appLog.Error("pipeline event subscription stopped", "error", err)
		}
	}()

	// 超时运行清理和过期记录清理
	cronService := cron.NewService(core.PipelineService, map[string]cron.Purger{
		"generations": core.Generations,
		"comments":    core.Comments,
	}, cron.Options{
		StaleAfter:    time.Duration(cfg.Pipeline.StaleRunMinutes) * time.Minute,
		SweepInterval: time.Duration(cfg.Pipeline.SweepIntervalSeconds) * time.Second,
		RetentionDays: cfg.Pipeline.RetentionDays,
	}, appLog)
	cronService.Start()
	defer cronService.Stop()

	// 健康检查只在本地能力服务时探测
	var checker capability.HealthChecker
	if cfg.Capability.Provider == "local_ai" {
		checker = capability.NewLocalAIClient(
			cfg.Capability.BaseURL,
			time.Duration(cfg.Capability.TimeoutSeconds)*time.Second,
			cfg.Capability.WhisperModel,
			appLog,
		)
	}

	// 初始化 Handler
	itemHandler := handler.NewItemHandler(core.ItemService, core.PipelineService, appLog)
	pipelineHandler := handler.NewPipelineHandler(core.ItemService, core.PipelineService, appLog)
	analysisHandler := handler.NewAnalysisHandler(core.ItemService, core.AnalysisService)
	commentHandler := handler.NewCommentHandler(core.ItemService, core.CommentService, appLog)
	websocketHandler := handler.NewWebSocketHandler(wsHub, core.ItemService, cfg.JWT.Secret, cfg.CORS.AllowedOrigins, appLog)
	healthHandler := handler.NewHealthHandler(db, rdb, checker)

	// 初始化 Router
	router := api.NewRouter(
		itemHandler,
		pipelineHandler,
		analysisHandler,
		commentHandler,
		websocketHandler,
		healthHandler,
		cfg,
	)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLog.Info("server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal("failed to start server", "error", err)
		}
	}()

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	appLog.Info("received shutdown signal")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("server shutdown failed", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		appLog.Warn("tracing shutdown failed", "error", err)
	}
	appLog.Info("server shutdown complete")
}
