package worker

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/qs3c/engage_go_server/internal/pkg/logger"
	"github.com/qs3c/engage_go_server/internal/pkg/queue"
)

// StepSource 步骤消息来源
type StepSource interface {
	Pop(ctx context.Context, timeout time.Duration) (*queue.StepMessage, error)
}

// StepHandler 处理一条步骤消息
type StepHandler interface {
	Process(ctx context.Context, msg *queue.StepMessage) error
}

// Pool 固定数量的 worker 共同消费步骤队列
type Pool struct {
	source     StepSource
	handler    StepHandler
	size       int
	popTimeout time.Duration
	log        *logger.Logger
}

// NewPool 创建固定大小的 worker 池
func NewPool(source StepSource, handler StepHandler, size int, popTimeout time.Duration, log *logger.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	if popTimeout <= 0 {
		popTimeout = 5 * time.Second
	}
	return &Pool{
		source:     source,
		handler:    handler,
		size:       size,
		popTimeout: popTimeout,
		log:        log.With("component", "worker_pool"),
	}
}

// Run 阻塞直到 ctx 取消
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.size; i++ {
		workerID := i
		g.Go(func() error {
			p.loop(gctx, workerID)
			return nil
		})
	}
	p.log.Info("worker pool started", "workers", p.size)
	err := g.Wait()
	p.log.Info("worker pool stopped")
	return err
}

func (p *Pool) loop(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := p.source.Pop(ctx, p.popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Warn("failed to pop step", "worker", workerID, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if msg == nil {
			continue // 超时，继续等待
		}

		if err := p.safeProcess(ctx, msg); err != nil {
			p.log.Error("step processing failed", "worker", workerID, "item_id", msg.ItemID, "step", msg.Step, "error", err)
		}
	}
}

// safeProcess 单条消息的 panic 不影响其他消息
func (p *Pool) safeProcess(ctx context.Context, msg *queue.StepMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("panic while processing step", "item_id", msg.ItemID, "step", msg.Step, "panic", r)
		}
	}()
	return p.handler.Process(ctx, msg)
}
