package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/qs3c/engage_go_server/internal/capability"
	"github.com/qs3c/engage_go_server/internal/model"
	"github.com/qs3c/engage_go_server/internal/pipeline"
	"github.com/qs3c/engage_go_server/internal/pkg/logger"
	"github.com/qs3c/engage_go_server/internal/pkg/pubsub"
	"github.com/qs3c/engage_go_server/internal/pkg/queue"
	"github.com/qs3c/engage_go_server/internal/repository"
	"github.com/qs3c/engage_go_server/internal/service"
)

// Options 处理器参数
type Options struct {
	MaxAttempts       int
	SampleRateSeconds int
}

// Processor 执行单个流水线步骤，最后一个结束的步骤负责收尾
type Processor struct {
	items      *repository.ItemRepository
	tracker    *pipeline.Tracker
	pipeline   *service.PipelineService
	media      MediaFetcher
	caps       Capabilities
	publisher  service.EventPublisher
	maxAttempt int
	sampleRate int
	log        *logger.Logger
	tracer     trace.Tracer
}

// NewProcessor 创建步骤处理器
func NewProcessor(
	items *repository.ItemRepository,
	tracker *pipeline.Tracker,
	pipelineService *service.PipelineService,
	media MediaFetcher,
	caps Capabilities,
	publisher service.EventPublisher,
	opts Options,
	log *logger.Logger,
) *Processor {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.SampleRateSeconds <= 0 {
		opts.SampleRateSeconds = 1
	}
	return &Processor{
		items:      items,
		tracker:    tracker,
		pipeline:   pipelineService,
		media:      media,
		caps:       caps,
		publisher:  publisher,
		maxAttempt: opts.MaxAttempts,
		sampleRate: opts.SampleRateSeconds,
		log:        log.With("component", "step_processor"),
		tracer:     otel.Tracer("engage_go_server/worker"),
	}
}

// Process 处理一条步骤消息；过期或重复投递的消息直接丢弃
func (p *Processor) Process(ctx context.Context, msg *queue.StepMessage) error {
	ctx, span := p.tracer.Start(ctx, "worker.step", trace.WithAttributes(
		attribute.Int64("item_id", msg.ItemID),
		attribute.String("run_id", msg.RunID),
		attribute.String("step", msg.Step),
		attribute.Int("attempt", msg.Attempt),
	))
	defer span.End()
	log := p.log.With("item_id", msg.ItemID, "run_id", msg.RunID, "step", msg.Step, "job_ref", msg.JobRef)

	run, err := p.tracker.MarkStepRunning(ctx, msg.ItemID, msg.RunID, msg.Step, msg.JobRef)
	if err != nil {
		return fmt.Errorf("mark step running: %w", err)
	}
	if run == nil {
		log.Debug("stale or duplicate step message dropped")
		return nil
	}

	item, err := p.items.GetByID(msg.ItemID)
	if err != nil {
		return fmt.Errorf("load item: %w", err)
	}

	fn, ok := p.stepFuncs()[msg.Step]
	if !ok {
		return p.complete(ctx, msg, model.StepStatusFailed, nil, unknownStep(msg.Step).Error())
	}

	raw, err := fn(ctx, item)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if capability.IsTransient(err) && msg.Attempt < p.maxAttempt {
			log.Warn("transient step failure, requeueing", "attempt", msg.Attempt, "error", err)
			return p.pipeline.Redispatch(ctx, msg)
		}
		log.Error("step failed", "attempt", msg.Attempt, "error", err)
		return p.complete(ctx, msg, model.StepStatusFailed, nil, stepErrorText(err))
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode step result: %w", err)
	}
	log.Info("step succeeded", "attempt", msg.Attempt, "bytes", len(data))
	return p.complete(ctx, msg, model.StepStatusSucceeded, data, "")
}

// complete 写入步骤终态，推送进度，全部结束后尝试收尾
func (p *Processor) complete(ctx context.Context, msg *queue.StepMessage, status string, result json.RawMessage, errText string) error {
	run, err := p.tracker.MarkStepCompleted(ctx, msg.ItemID, msg.RunID, msg.Step, status, result, errText)
	if err != nil {
		return fmt.Errorf("mark step completed: %w", err)
	}
	if run == nil {
		return nil
	}

	p.publish(ctx, &pubsub.PipelineEvent{
		ItemID:   msg.ItemID,
		RunID:    msg.RunID,
		Stage:    msg.Step,
		Status:   status,
		Progress: pubsub.StepProgress(run.Progress()),
		Error:    errText,
	})

	if !run.AllRequiredStepsTerminal() {
		return nil
	}
	if _, err := p.pipeline.Finalize(ctx, msg.ItemID, msg.RunID); err != nil {
		return fmt.Errorf("finalize run: %w", err)
	}
	return nil
}

func (p *Processor) publish(ctx context.Context, ev *pubsub.PipelineEvent) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishEvent(ctx, ev); err != nil {
		p.log.Warn("publish step event failed", "item_id", ev.ItemID, "error", err)
	}
}

// stepErrorText 素材错误只暴露给用户看的提示
func stepErrorText(err error) string {
	var me *MediaError
	if errors.As(err, &me) {
		return me.UserMessage
	}
	return err.Error()
}
