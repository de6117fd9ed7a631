package app

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"github.com/qs3c/engage_go_server/config"
	"github.com/qs3c/engage_go_server/internal/capability"
	"github.com/qs3c/engage_go_server/internal/facts"
	"github.com/qs3c/engage_go_server/internal/generator"
	"github.com/qs3c/engage_go_server/internal/pipeline"
	"github.com/qs3c/engage_go_server/internal/pkg/lock"
	"github.com/qs3c/engage_go_server/internal/pkg/logger"
	"github.com/qs3c/engage_go_server/internal/pkg/pubsub"
	"github.com/qs3c/engage_go_server/internal/pkg/queue"
	"github.com/qs3c/engage_go_server/internal/policy"
	"github.com/qs3c/engage_go_server/internal/repository"
	"github.com/qs3c/engage_go_server/internal/scoring"
	"github.com/qs3c/engage_go_server/internal/service"
)

// Core API 服务和 worker 共用的组件
type Core struct {
	Items       *repository.ItemRepository
	Generations *repository.GenerationRepository
	Comments    *repository.CommentRepository

	Tracker   *pipeline.Tracker
	Queue     *queue.Queue
	Publisher *pubsub.Publisher

	ItemService     *service.ItemService
	AnalysisService *service.AnalysisService
	CommentService  *service.CommentService
	PipelineService *service.PipelineService
}

// NewTextGenerator 按 models.provider 创建文本模型客户端
func NewTextGenerator(ctx context.Context, cfg config.ModelsConfig, log *logger.Logger) (capability.TextGenerator, error) {
	switch cfg.Provider {
	case "openai":
		timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
		return capability.NewOpenAIGenerator(cfg.BaseURL, cfg.APIKey, timeout, log), nil
	case "gemini":
		gen, err := capability.NewGeminiGenerator(ctx, cfg.APIKey, log)
		if err != nil {
			return nil, err
		}
		return gen, nil
	case "fake":
		return capability.NewFakeGenerator(), nil
	}
	return nil, fmt.Errorf("unsupported model provider: %s", cfg.Provider)
}

// NewCore 按依赖顺序组装仓储、跟踪器和业务服务
func NewCore(cfg *config.Config, db *gorm.DB, rdb *redis.Client, llm capability.TextGenerator, log *logger.Logger) *Core {
	items := repository.NewItemRepository(db)
	generations := repository.NewGenerationRepository(db)
	comments := repository.NewCommentRepository(db)

	lockTimeout := time.Duration(cfg.Pipeline.LockTimeoutSeconds) * time.Second
	locker := lock.NewRedisLocker(rdb, lockTimeout, lockTimeout)
	tracker := pipeline.NewTracker(items, locker, log)

	stepQueue := queue.NewQueue(rdb, cfg.Queue.StepQueue)
	publisher := pubsub.NewPublisher(rdb)

	engine := policy.NewEngine(cfg.Policy.BlockedTerms, cfg.Policy.MaxAccepted)
	gen := generator.New(llm, engine, generator.OptionsFromConfig(cfg.Models, cfg.Generation), log)
	scorer := scoring.NewScorer(cfg.Generation.AutoPostThreshold)

	itemService := service.NewItemService(items)
	analysisService := service.NewAnalysisService(items, tracker, facts.NewBuilder(cfg.Generation.MinSignalScore), log)
	commentService := service.NewCommentService(items, generations, comments, gen, scorer, cfg.Generation.HistoryLimit, log)
	pipelineService := service.NewPipelineService(
		items,
		tracker,
		stepQueue,
		publisher,
		analysisService,
		commentService,
		service.RetryPolicy{
			Attempts: cfg.Queue.MaxAttempts,
			Backoff:  time.Duration(cfg.Queue.RetryBackoffMillis) * time.Millisecond,
		},
		log,
	)

	return &Core{
		Items:           items,
		Generations:     generations,
		Comments:        comments,
		Tracker:         tracker,
		Queue:           stepQueue,
		Publisher:       publisher,
		ItemService:     itemService,
		AnalysisService: analysisService,
		CommentService:  commentService,
		PipelineService: pipelineService,
	}
}
