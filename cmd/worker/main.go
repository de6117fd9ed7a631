package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/qs3c/engage_go_server/config"
	"github.com/qs3c/engage_go_server/internal/app"
	"github.com/qs3c/engage_go_server/internal/capability"
	"github.com/qs3c/engage_go_server/internal/database"
	"github.com/qs3c/engage_go_server/internal/pkg/logger"
	"github.com/qs3c/engage_go_server/internal/pkg/oss"
	"github.com/qs3c/engage_go_server/internal/pkg/tracing"
	"github.com/qs3c/engage_go_server/internal/worker"
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

	// 创建 context 用于优雅关闭
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Options{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Component:   "worker",
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

	// 初始化 OSS（可选）
	var objects worker.ObjectStore
	if cfg.OSS.Endpoint != "" && cfg.OSS.AccessKeyID != "" {
		ossClient, err := oss.NewClient(&cfg.OSS)
		if err != nil {
			appLog.Warn("failed to init OSS client", "error", err)
		} else {
			objects = ossClient
			appLog.Info("OSS client initialized", "bucket", cfg.OSS.BucketName)
		}
	}
	media := worker.NewMediaStore(objects, time.Duration(cfg.Pipeline.MediaTimeoutSeconds)*time.Second)

	caps, closeCaps, err := newCapabilities(ctx, cfg, appLog)
	if err != nil {
		appLog.Fatal("failed to init capabilities", "error", err)
	}
	defer closeCaps()

	llm, err := app.NewTextGenerator(ctx, cfg.Models, appLog)
	if err != nil {
		appLog.Fatal("failed to init text generator", "error", err)
	}
	core := app.NewCore(cfg, db, rdb, llm, appLog)

	// 创建步骤处理器
	processor := worker.NewProcessor(
		core.Items,
		core.Tracker,
		core.PipelineService,
		media,
		caps,
		core.Publisher,
		worker.Options{
			MaxAttempts:       cfg.Queue.MaxAttempts,
			SampleRateSeconds: cfg.Pipeline.VideoSampleRateSeconds,
		},
		appLog,
	)
	pool := worker.NewPool(core.Queue, processor, cfg.Queue.MaxWorkers, time.Duration(cfg.Queue.PopTimeoutSeconds)*time.Second, appLog)

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLog.Info("received shutdown signal")
		cancel()
	}()

	appLog.Info("worker started", "queue", core.Queue.Name(), "max_workers", cfg.Queue.MaxWorkers, "capability", cfg.Capability.Provider)
	if err := pool.Run(ctx); err != nil {
		appLog.Error("worker pool exited", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := shutdownTracing(shutdownCtx); err != nil {
		appLog.Warn("tracing shutdown failed", "error", err)
	}
	appLog.Info("worker shutdown complete")
}

// newCapabilities 按 capability.provider 选择识别后端；转写始终走本地服务
func newCapabilities(ctx context.Context, cfg *config.Config, log *logger.Logger) (worker.Capabilities, func(), error) {
	local := capability.NewLocalAIClient(
		cfg.Capability.BaseURL,
		time.Duration(cfg.Capability.TimeoutSeconds)*time.Second,
		cfg.Capability.WhisperModel,
		log,
	)

	if cfg.Capability.Provider != "gcp" {
		return worker.Capabilities{Images: local, Videos: local, Transcriber: local}, func() {}, nil
	}

	vision, err := capability.NewGCPVision(ctx, log)
	if err != nil {
		return worker.Capabilities{}, nil, err
	}
	video, err := capability.NewGCPVideo(ctx, log)
	if err != nil {
		vision.Close()
		return worker.Capabilities{}, nil, err
	}
	closeAll := func() {
		if err := vision.Close(); err != nil {
			log.Warn("close gcp vision client failed", "error", err)
		}
		if err := video.Close(); err != nil {
			log.Warn("close gcp video client failed", "error", err)
		}
	}
	return worker.Capabilities{Images: vision, Videos: video, Transcriber: local}, closeAll, nil
}
