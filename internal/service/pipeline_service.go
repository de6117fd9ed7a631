package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/qs3c/engage_go_server/internal/capability"
	"github.com/qs3c/engage_go_server/internal/model"
	"github.com/qs3c/engage_go_server/internal/pipeline"
	"github.com/qs3c/engage_go_server/internal/pkg/logger"
	"github.com/qs3c/engage_go_server/internal/pkg/pubsub"
	"github.com/qs3c/engage_go_server/internal/pkg/queue"
	"github.com/qs3c/engage_go_server/internal/repository"
)

// 流水线结束原因
const (
	ReasonNoRequiredSteps       = "no_required_steps"
	ReasonDispatchFailed        = "dispatch_failed"
	ReasonCoreStepsFailed       = "core_steps_failed"
	ReasonFactsFailed           = "facts_failed"
	ReasonGenerationUnavailable = "generation_unavailable"
	ReasonStaleRun              = "stale_run_timeout"
)

var ErrItemNotFound = errors.New("分析对象不存在")

// StepDispatcher 步骤派发队列
type StepDispatcher interface {
	Name() string
	Push(ctx context.Context, msg *queue.StepMessage) error
}

// EventPublisher 进度事件发布
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev *pubsub.PipelineEvent) error
}

// RetryPolicy 收尾阶段对临时性错误的重试
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

type PipelineService struct {
	items    *repository.ItemRepository
	tracker  *pipeline.Tracker
	queue    StepDispatcher
	events   EventPublisher
	analysis *AnalysisService
	comments *CommentService
	retry    RetryPolicy
	log      *logger.Logger
}

// NewPipelineService 创建流水线服务
func NewPipelineService(
	items *repository.ItemRepository,
	tracker *pipeline.Tracker,
	q StepDispatcher,
	events EventPublisher,
	analysis *AnalysisService,
	comments *CommentService,
	retry RetryPolicy,
	log *logger.Logger,
) *PipelineService {
	if retry.Attempts <= 0 {
		retry.Attempts = 1
	}
	return &PipelineService{
		items:    items,
		tracker:  tracker,
		queue:    q,
		events:   events,
		analysis: analysis,
		comments: comments,
		retry:    retry,
		log:      log.With("component", "pipeline_service"),
	}
}

// StartAnalysis 启动一次新运行并派发所有必需步骤
func (s *PipelineService) StartAnalysis(ctx context.Context, itemID int64, flags model.TaskFlags, source string) (*model.PipelineRun, error) {
	if _, err := s.items.GetByID(itemID); err != nil {
		if errors.Is(err, repository.ErrItemNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}

	run, err := s.tracker.Start(ctx, itemID, flags, source)
	if err != nil {
		return nil, err
	}

	if len(run.RequiredSteps) == 0 {
		finished, err := s.tracker.MarkPipelineFinished(ctx, itemID, run.RunID, model.RunStatusFailed, model.PipelineDetails{
			ReasonCode: ReasonNoRequiredSteps,
			Reason:     "没有可执行的分析步骤",
		})
		if err != nil {
			return nil, err
		}
		s.publish(ctx, &pubsub.PipelineEvent{ItemID: itemID, RunID: run.RunID, Stage: pubsub.StageDone, Status: model.RunStatusFailed, Error: ReasonNoRequiredSteps})
		return finished, nil
	}

	var undelivered []string
	for _, step := range run.RequiredSteps {
		ok, err := s.dispatch(ctx, itemID, run.RunID, step, 1)
		if err != nil {
			return nil, err
		}
		if !ok {
			undelivered = append(undelivered, step)
		}
	}
	if len(undelivered) > 0 {
		if err := s.settleUndelivered(ctx, itemID, run.RunID, undelivered); err != nil {
			return nil, err
		}
	}

	current, err := s.tracker.CurrentRun(itemID)
	if err != nil {
		return nil, err
	}
	if !current.Terminal() {
		s.publish(ctx, &pubsub.PipelineEvent{ItemID: itemID, RunID: run.RunID, Stage: "queued", Status: model.RunStatusRunning, Progress: 1, Message: "分析任务已提交"})
	}
	return current, nil
}

// dispatch 先登记再入队；入队失败时该步骤直接记为失败并返回 false
func (s *PipelineService) dispatch(ctx context.Context, itemID int64, runID, step string, attempt int) (bool, error) {
	jobRef := uuid.NewString()
	run, err := s.tracker.MarkStepQueued(ctx, itemID, runID, step, s.queue.Name(), jobRef)
	if err != nil {
		return false, err
	}
	if run == nil {
		return true, nil
	}

	msg := &queue.StepMessage{ItemID: itemID, RunID: runID, Step: step, JobRef: jobRef, Attempt: attempt}
	if pushErr := s.queue.Push(ctx, msg); pushErr != nil {
		s.log.Error("dispatch step failed", "item_id", itemID, "run_id", runID, "step", step, "error", pushErr)
		if _, err := s.tracker.MarkStepCompleted(ctx, itemID, runID, step, model.StepStatusFailed, nil, ReasonDispatchFailed+": "+pushErr.Error()); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// settleUndelivered 有步骤没能入队时结束运行：核心步骤缺失直接失败，否则全部结束后照常收尾
func (s *PipelineService) settleUndelivered(ctx context.Context, itemID int64, runID string, steps []string) error {
	for _, step := range steps {
		if step != model.StepMetadata {
			_, err := s.fail(ctx, itemID, runID, ReasonDispatchFailed, "步骤入队失败: "+strings.Join(steps, ", "))
			return err
		}
	}
	done, err := s.tracker.AllRequiredStepsTerminal(itemID, runID)
	if err != nil || !done {
		return err
	}
	_, err = s.Finalize(ctx, itemID, runID)
	return err
}

// Redispatch 临时性失败后把步骤放回队列；入队失败时步骤记为失败并结束运行
func (s *PipelineService) Redispatch(ctx context.Context, msg *queue.StepMessage) error {
	run, err := s.tracker.RequeueStep(ctx, msg.ItemID, msg.RunID, msg.Step, msg.JobRef)
	if err != nil || run == nil {
		return err
	}
	next := *msg
	next.Attempt++
	if pushErr := s.queue.Push(ctx, &next); pushErr != nil {
		s.log.Error("redispatch step failed", "item_id", msg.ItemID, "run_id", msg.RunID, "step", msg.Step, "attempt", next.Attempt, "error", pushErr)
		if _, err := s.tracker.MarkStepCompleted(ctx, msg.ItemID, msg.RunID, msg.Step, model.StepStatusFailed, nil, ReasonDispatchFailed+": "+pushErr.Error()); err != nil {
			return err
		}
		return s.settleUndelivered(ctx, msg.ItemID, msg.RunID, []string{msg.Step})
	}
	return nil
}

// GetRun 当前运行
func (s *PipelineService) GetRun(itemID int64) (*model.PipelineRun, error) {
	run, err := s.tracker.CurrentRun(itemID)
	if errors.Is(err, repository.ErrItemNotFound) {
		return nil, ErrItemNotFound
	}
	return run, err
}

// Finalize 认领收尾：构建事实、生成评论并结束运行。未认领到时返回 nil
func (s *PipelineService) Finalize(ctx context.Context, itemID int64, runID string) (*model.PipelineRun, error) {
	run, err := s.tracker.BeginFinalize(ctx, itemID, runID)
	if err != nil || run == nil {
		return nil, err
	}
	log := s.log.With("item_id", itemID, "run_id", runID)

	if !run.CoreStepsSucceeded() {
		failed := run.FailedRequiredSteps()
		return s.fail(ctx, itemID, runID, ReasonCoreStepsFailed, "失败的步骤: "+strings.Join(failed, ", "))
	}

	s.publish(ctx, &pubsub.PipelineEvent{ItemID: itemID, RunID: runID, Stage: pubsub.StageFacts, Status: model.RunStatusRunning})
	rec, err := s.analysis.BuildFacts(ctx, itemID, runID)
	if err != nil {
		log.Error("build facts failed", "error", err)
		return s.fail(ctx, itemID, runID, ReasonFactsFailed, err.Error())
	}
	if rec == nil {
		// 运行已被替换
		return nil, nil
	}

	s.publish(ctx, &pubsub.PipelineEvent{ItemID: itemID, RunID: runID, Stage: pubsub.StageGeneration, Status: model.RunStatusRunning})
	var out *GenerationOutput
	err = s.withRetry(ctx, func() error {
		var genErr error
		out, genErr = s.comments.GeneratePostComments(ctx, itemID, runID)
		return genErr
	})
	if err != nil {
		log.Error("generate comments failed", "error", err)
		return s.fail(ctx, itemID, runID, ReasonGenerationUnavailable, err.Error())
	}

	details := model.PipelineDetails{ReasonCode: out.Generation.ReasonCode, Reason: out.Generation.Reason}
	if out.Generation.Status == model.GenerationStatusBlocked {
		details.ItemStatus = model.ItemStatusBlocked
	}
	finished, err := s.tracker.MarkPipelineFinished(ctx, itemID, runID, model.RunStatusCompleted, details)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, &pubsub.PipelineEvent{ItemID: itemID, RunID: runID, Stage: pubsub.StageDone, Status: model.RunStatusCompleted})
	return finished, nil
}

// ExpireStale 超时运行统一结束为失败
func (s *PipelineService) ExpireStale(ctx context.Context, maxAge time.Duration, limit int) (int, error) {
	items, err := s.items.ListStaleRunning(time.Now().Add(-maxAge), limit)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, item := range items {
		run, err := item.CurrentRun()
		if err != nil || run == nil || run.Terminal() {
			continue
		}
		finished, err := s.fail(ctx, item.ID, run.RunID, ReasonStaleRun, fmt.Sprintf("运行超过 %s 未结束", maxAge))
		if err != nil {
			s.log.Warn("expire stale run failed", "item_id", item.ID, "run_id", run.RunID, "error", err)
			continue
		}
		if finished != nil {
			expired++
		}
	}
	return expired, nil
}

func (s *PipelineService) fail(ctx context.Context, itemID int64, runID, code, reason string) (*model.PipelineRun, error) {
	run, err := s.tracker.MarkPipelineFinished(ctx, itemID, runID, model.RunStatusFailed, model.PipelineDetails{ReasonCode: code, Reason: reason})
	if err != nil {
		return nil, err
	}
	if run != nil {
		s.publish(ctx, &pubsub.PipelineEvent{ItemID: itemID, RunID: runID, Stage: pubsub.StageDone, Status: model.RunStatusFailed, Error: code})
	}
	return run, nil
}

// withRetry 只重试临时性错误
func (s *PipelineService) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= s.retry.Attempts; attempt++ {
		if err = fn(); err == nil || !capability.IsTransient(err) {
			return err
		}
		if attempt == s.retry.Attempts {
			break
		}
		s.log.Warn("transient generation error, retrying", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.retry.Backoff * time.Duration(attempt)):
		}
	}
	return err
}

func (s *PipelineService) publish(ctx context.Context, ev *pubsub.PipelineEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishEvent(ctx, ev); err != nil {
		s.log.Warn("publish pipeline event failed", "item_id", ev.ItemID, "error", err)
	}
}
