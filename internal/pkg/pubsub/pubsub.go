package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const (
	ChannelPipelineProgress = "pipeline_progress"
)

// PipelineEvent 流水线进度事件
type PipelineEvent struct {
	Type     string `json:"type"`
	ItemID   int64  `json:"item_id"`
	RunID    string `json:"run_id"`
	Stage    string `json:"stage"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
}

// 步骤之外的收尾阶段
const (
	StageFacts      = "facts"
	StageGeneration = "generation"
	StageDone       = "done"
)

// 阶段对应的进度百分比；分析步骤的进度按已完成比例落在 0-80 之间
var StageProgress = map[string]int{
	StageFacts:      85,
	StageGeneration: 90,
	StageDone:       100,
}

// 阶段对应的消息
var StageMessages = map[string]string{
	StageFacts:      "正在整理识别结果",
	StageGeneration: "正在生成评论",
	StageDone:       "分析完成",
}

// StepProgress 分析步骤阶段的进度
func StepProgress(runProgress int) int {
	if runProgress < 0 {
		runProgress = 0
	}
	if runProgress > 100 {
		runProgress = 100
	}
	return runProgress * 80 / 100
}

// Publisher Redis 发布者
type Publisher struct {
	client *redis.Client
}

// NewPublisher 创建发布者
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// PublishEvent 发布进度事件
func (p *Publisher) PublishEvent(ctx context.Context, ev *PipelineEvent) error {
	ev.Type = "pipeline_progress"

	// 自动填充进度和消息
	if ev.Progress == 0 && ev.Stage != "" {
		if progress, ok := StageProgress[ev.Stage]; ok {
			ev.Progress = progress
		}
	}
	if ev.Message == "" && ev.Stage != "" {
		if message, ok := StageMessages[ev.Stage]; ok {
			ev.Message = message
		}
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal pipeline event: %w", err)
	}

	return p.client.Publish(ctx, ChannelPipelineProgress, data).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client *redis.Client
}

// NewSubscriber 创建订阅者
func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe 订阅进度事件，直到 ctx 结束
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*PipelineEvent)) error {
	sub := s.client.Subscribe(ctx, ChannelPipelineProgress)
	defer sub.Close()

	// 确认订阅成功后再开始读取，避免丢失紧随其后的消息
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	ch := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var ev PipelineEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue // 忽略解析错误
			}

			handler(&ev)
		}
	}
}
