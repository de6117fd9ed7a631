package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

type Queue struct {
	client    *redis.Client
	queueName string
}

// StepMessage 一个流水线步骤的派发消息
type StepMessage struct {
	ItemID  int64  `json:"item_id"`
	RunID   string `json:"run_id"`
	Step    string `json:"step"`
	JobRef  string `json:"job_ref"`
	Attempt int    `json:"attempt"`
}

// NewQueue 创建 Redis 步骤队列
func NewQueue(client *redis.Client, queueName string) *Queue {
	return &Queue{
		client:    client,
		queueName: queueName,
	}
}

// Name 队列名，记录到步骤的 queue_ref
func (q *Queue) Name() string {
	return q.queueName
}

// Push 将步骤加入队列
func (q *Queue) Push(ctx context.Context, msg *StepMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return q.client.LPush(ctx, q.queueName, data).Err()
}

// Pop 从队列获取步骤（阻塞）
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*StepMessage, error) {
	result, err := q.client.BRPop(ctx, timeout, q.queueName).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // 超时，无任务
		}
		return nil, fmt.Errorf("failed to pop from queue: %w", err)
	}

	if len(result) < 2 {
		return nil, nil
	}

	var msg StepMessage
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}

	return &msg, nil
}

// Length 获取队列长度
func (q *Queue) Length(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.queueName).Result()
}
