package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/qs3c/engage_go_server/internal/model"
	"github.com/qs3c/engage_go_server/internal/pkg/lock"
	"github.com/qs3c/engage_go_server/internal/pkg/logger"
	"github.com/qs3c/engage_go_server/internal/repository"
)

var (
	ErrInvalidStepStatus = errors.New("invalid terminal step status")
	ErrInvalidRunStatus  = errors.New("invalid terminal pipeline status")
	ErrUnknownStep       = errors.New("unknown pipeline step")
	ErrStepNotRequired   = errors.New("step is not required by this run")
)

// ItemStore 持久化 item 并提供行锁内的读改写
type ItemStore interface {
	GetByID(id int64) (*model.AnalysisItem, error)
	MutateLocked(ctx context.Context, id int64, fn repository.MutateFunc) (*model.AnalysisItem, error)
}

// RunMutation 修改当前运行；返回 false 表示不需要写回，调用方拿到 nil
type RunMutation func(item *model.AnalysisItem, run *model.PipelineRun) (bool, error)

// Tracker 每个 item 一个持久化状态机。
// 所有修改都先拿 item 锁，再在事务里加行锁重新加载，最后按版本号写回。
type Tracker struct {
	items  ItemStore
	locker lock.Locker
	log    *logger.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewTracker 创建运行跟踪器
func NewTracker(items ItemStore, locker lock.Locker, log *logger.Logger) *Tracker {
	return &Tracker{
		items:  items,
		locker: locker,
		log:    log.With("component", "pipeline_tracker"),
		tracer: otel.Tracer("engage_go_server/pipeline"),
		now:    time.Now,
	}
}

func lockKey(itemID int64) string {
	return fmt.Sprintf("analysis_item:%d", itemID)
}

// RequiredSteps 由开关和素材决定本次必须执行的步骤
func RequiredSteps(item *model.AnalysisItem, flags model.TaskFlags) []string {
	steps := make([]string, 0, len(model.AllSteps))
	for _, s := range model.AllSteps {
		if !flags.Enabled(s) {
			continue
		}
		if s == model.StepVideo && !item.HasVideo() {
			continue
		}
		steps = append(steps, s)
	}
	return steps
}

// Start 新建一次运行，覆盖旧运行；旧 runID 上的后续修改全部变为空操作
func (t *Tracker) Start(ctx context.Context, itemID int64, flags model.TaskFlags, source string) (*model.PipelineRun, error) {
	ctx, span := t.tracer.Start(ctx, "pipeline.start")
	defer span.End()

	release, err := t.locker.Lock(ctx, lockKey(itemID))
	if err != nil {
		return nil, err
	}
	defer release()

	var run *model.PipelineRun
	_, err = t.items.MutateLocked(ctx, itemID, func(item *model.AnalysisItem) (bool, error) {
		now := t.now()
		required := RequiredSteps(item, flags)
		steps := make(map[string]*model.StepState, len(required))
		for _, s := range required {
			steps[s] = &model.StepState{Status: model.StepStatusPending}
		}
		run = &model.PipelineRun{
			RunID:         uuid.NewString(),
			Status:        model.RunStatusRunning,
			Source:        source,
			Flags:         flags,
			RequiredSteps: required,
			Steps:         steps,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		item.Status = model.ItemStatusRunning
		item.LastError = ""
		return true, item.SetRun(run)
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int64("item_id", itemID),
		attribute.String("run_id", run.RunID),
		attribute.Int("required_steps", len(run.RequiredSteps)),
	)
	t.log.Info("pipeline started", "item_id", itemID, "run_id", run.RunID, "required", run.RequiredSteps, "source", source)
	return run, nil
}

// Update 在锁内对指定运行执行修改；runID 不匹配时返回 nil, nil
func (t *Tracker) Update(ctx context.Context, itemID int64, runID string, op string, fn RunMutation) (*model.PipelineRun, error) {
	ctx, span := t.tracer.Start(ctx, "pipeline.mutate", trace.WithAttributes(
		attribute.Int64("item_id", itemID),
		attribute.String("run_id", runID),
		attribute.String("op", op),
	))
	defer span.End()

	release, err := t.locker.Lock(ctx, lockKey(itemID))
	if err != nil {
		return nil, err
	}
	defer release()

	var out *model.PipelineRun
	_, err = t.items.MutateLocked(ctx, itemID, func(item *model.AnalysisItem) (bool, error) {
		run, err := item.CurrentRun()
		if err != nil {
			return false, err
		}
		if run == nil || run.RunID != runID {
			t.log.Debug("stale run mutation ignored", "item_id", itemID, "run_id", runID, "op", op)
			return false, nil
		}
		if run.Steps == nil {
			run.Steps = map[string]*model.StepState{}
		}
		changed, err := fn(item, run)
		if err != nil || !changed {
			return false, err
		}
		run.UpdatedAt = t.now()
		if err := item.SetRun(run); err != nil {
			return false, err
		}
		out = run
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Bool("applied", out != nil))
	return out, nil
}

func (t *Tracker) requiredStep(run *model.PipelineRun, step string) (*model.StepState, error) {
	if !model.IsKnownStep(step) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStep, step)
	}
	if !run.IsRequired(step) {
		return nil, fmt.Errorf("%w: %s", ErrStepNotRequired, step)
	}
	st := run.Steps[step]
	if st == nil {
		st = &model.StepState{Status: model.StepStatusPending}
		run.Steps[step] = st
	}
	return st, nil
}

// MarkStepQueued 只有 pending/failed 的必需步骤可以入队，返回 nil 表示不要派发
func (t *Tracker) MarkStepQueued(ctx context.Context, itemID int64, runID, step, queueRef, jobRef string) (*model.PipelineRun, error) {
	return t.Update(ctx, itemID, runID, "queued", func(_ *model.AnalysisItem, run *model.PipelineRun) (bool, error) {
		if run.Terminal() {
			return false, nil
		}
		st, err := t.requiredStep(run, step)
		if err != nil {
			if errors.Is(err, ErrStepNotRequired) {
				return false, nil
			}
			return false, err
		}
		if st.Status != model.StepStatusPending && st.Status != model.StepStatusFailed {
			return false, nil
		}
		now := t.now()
		st.Status = model.StepStatusQueued
		st.QueueRef = queueRef
		st.JobRef = jobRef
		st.QueuedAt = &now
		st.FinishedAt = nil
		st.Error = ""
		return true, nil
	})
}

// MarkStepRunning 进入 running 时 attempts 加一；重复投递返回 nil
func (t *Tracker) MarkStepRunning(ctx context.Context, itemID int64, runID, step, jobRef string) (*model.PipelineRun, error) {
	return t.Update(ctx, itemID, runID, "running", func(_ *model.AnalysisItem, run *model.PipelineRun) (bool, error) {
		if run.Terminal() {
			return false, nil
		}
		st, err := t.requiredStep(run, step)
		if err != nil {
			return false, err
		}
		if st.Status != model.StepStatusQueued && st.Status != model.StepStatusPending {
			return false, nil
		}
		if jobRef != "" && st.JobRef != "" && st.JobRef != jobRef {
			return false, nil
		}
		now := t.now()
		st.Status = model.StepStatusRunning
		st.Attempts++
		st.StartedAt = &now
		if jobRef != "" {
			st.JobRef = jobRef
		}
		st.Error = ""
		return true, nil
	})
}

// RequeueStep 暂时性错误后把 running 的步骤放回队列，attempts 不变
func (t *Tracker) RequeueStep(ctx context.Context, itemID int64, runID, step, jobRef string) (*model.PipelineRun, error) {
	return t.Update(ctx, itemID, runID, "requeue", func(_ *model.AnalysisItem, run *model.PipelineRun) (bool, error) {
		if run.Terminal() {
			return false, nil
		}
		st, err := t.requiredStep(run, step)
		if err != nil {
			return false, err
		}
		if st.Status != model.StepStatusRunning || st.JobRef != jobRef {
			return false, nil
		}
		now := t.now()
		st.Status = model.StepStatusQueued
		st.QueuedAt = &now
		return true, nil
	})
}

// MarkStepCompleted 写入终态；重复调用只刷新时间戳，不改变 attempts。运行已结束时返回 nil
func (t *Tracker) MarkStepCompleted(ctx context.Context, itemID int64, runID, step, status string, result json.RawMessage, errText string) (*model.PipelineRun, error) {
	if !model.IsTerminalStepStatus(status) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStepStatus, status)
	}
	return t.Update(ctx, itemID, runID, "completed", func(_ *model.AnalysisItem, run *model.PipelineRun) (bool, error) {
		if run.Terminal() {
			return false, nil
		}
		st, err := t.requiredStep(run, step)
		if err != nil {
			return false, err
		}
		now := t.now()
		st.Status = status
		st.FinishedAt = &now
		st.Result = result
		st.Error = errText
		return true, nil
	})
}

// BeginFinalize 所有必需步骤结束后由第一个调用者认领收尾工作
func (t *Tracker) BeginFinalize(ctx context.Context, itemID int64, runID string) (*model.PipelineRun, error) {
	return t.Update(ctx, itemID, runID, "finalize", func(_ *model.AnalysisItem, run *model.PipelineRun) (bool, error) {
		if run.Terminal() || run.FinalizeClaimed || !run.AllRequiredStepsTerminal() {
			return false, nil
		}
		run.FinalizeClaimed = true
		return true, nil
	})
}

// MarkPipelineFinished 设置流水线终态。失败时未结束的步骤一并标记为失败
func (t *Tracker) MarkPipelineFinished(ctx context.Context, itemID int64, runID, status string, details model.PipelineDetails) (*model.PipelineRun, error) {
	if status != model.RunStatusCompleted && status != model.RunStatusFailed {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRunStatus, status)
	}
	run, err := t.Update(ctx, itemID, runID, "finished", func(item *model.AnalysisItem, run *model.PipelineRun) (bool, error) {
		if run.Terminal() {
			return false, nil
		}
		now := t.now()
		run.Status = status
		run.ReasonCode = details.ReasonCode
		run.Reason = details.Reason
		run.FinishedAt = &now

		switch {
		case details.ItemStatus != "":
			item.Status = details.ItemStatus
		case status == model.RunStatusCompleted:
			item.Status = model.ItemStatusCompleted
		default:
			item.Status = model.ItemStatusFailed
		}
		if status == model.RunStatusFailed {
			item.LastError = details.Reason
			for _, s := range run.RequiredSteps {
				st := run.Steps[s]
				if st == nil || st.Terminal() {
					continue
				}
				st.Status = model.StepStatusFailed
				st.FinishedAt = &now
				st.Error = details.ReasonCode
			}
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if run != nil {
		t.log.Info("pipeline finished", "item_id", itemID, "run_id", runID, "status", status, "reason_code", details.ReasonCode)
	}
	return run, nil
}

// CurrentRun 读取 item 当前运行（不加锁）
func (t *Tracker) CurrentRun(itemID int64) (*model.PipelineRun, error) {
	item, err := t.items.GetByID(itemID)
	if err != nil {
		return nil, err
	}
	return item.CurrentRun()
}

func (t *Tracker) runFor(itemID int64, runID string) (*model.PipelineRun, error) {
	run, err := t.CurrentRun(itemID)
	if err != nil {
		return nil, err
	}
	if run == nil || run.RunID != runID {
		return nil, nil
	}
	return run, nil
}

// AllRequiredStepsTerminal 过期的 runID 返回 false
func (t *Tracker) AllRequiredStepsTerminal(itemID int64, runID string) (bool, error) {
	run, err := t.runFor(itemID, runID)
	if err != nil || run == nil {
		return false, err
	}
	return run.AllRequiredStepsTerminal(), nil
}

// CoreStepsSucceeded 核心步骤是否全部成功
func (t *Tracker) CoreStepsSucceeded(itemID int64, runID string) (bool, error) {
	run, err := t.runFor(itemID, runID)
	if err != nil || run == nil {
		return false, err
	}
	return run.CoreStepsSucceeded(), nil
}

// FailedRequiredSteps 失败的必需步骤
func (t *Tracker) FailedRequiredSteps(itemID int64, runID string) ([]string, error) {
	run, err := t.runFor(itemID, runID)
	if err != nil || run == nil {
		return nil, err
	}
	return run.FailedRequiredSteps(), nil
}
