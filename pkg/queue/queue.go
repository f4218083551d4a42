package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// MaxRetries 任务最多重试次数，超过后进入死信队列
	MaxRetries = 3
	// RetryBackoff 重试间隔
	RetryBackoff = 10 * time.Second
)

// JobType 任务类型
type JobType string

const (
	JobTypeEmail JobType = "email"
)

// EmailPayload 邮件任务载荷
type EmailPayload struct {
	Kind           string `json:"kind"`
	UserID         string `json:"user_id"`
	SlotID         string `json:"slot_id"`
	RecipientEmail string `json:"recipient_email"`
	RecipientName  string `json:"recipient_name"`
	Subject        string `json:"subject"`
	Body           string `json:"body"`
}

// Job 通用任务信封
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Queue 基于 Redis List 的任务队列（RPUSH 入队，BLPOP 出队）
type Queue struct {
	client *redis.Client
	key    string
	dlqKey string
	logger *zap.Logger
}

// NewQueue 创建任务队列，死信队列键为 key + ":dlq"
func NewQueue(client *redis.Client, key string, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, key: key, dlqKey: key + ":dlq", logger: logger}
}

// EnqueueEmail 入队一个邮件任务
func (q *Queue) EnqueueEmail(ctx context.Context, payload EmailPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	job := Job{
		ID:        uuid.New().String(),
		Type:      JobTypeEmail,
		Payload:   body,
		CreatedAt: time.Now(),
	}
	if err := q.push(ctx, q.key, &job); err != nil {
		return err
	}
	q.logger.Debug("邮件任务已入队", zap.String("job_id", job.ID), zap.String("kind", payload.Kind))
	return nil
}

// Dequeue 阻塞等待任务，timeout 内无任务时返回 (nil, nil)
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("任务格式无效，已丢弃", zap.String("raw", result[1]), zap.Error(err))
		return nil, nil
	}
	return &job, nil
}

// Retry 重新入队。Attempt 记录已失败次数，首次执行失败后为 1；
// 重试 MaxRetries 次仍失败（Attempt 超过 MaxRetries）时转入死信队列
func (q *Queue) Retry(ctx context.Context, job *Job) error {
	job.Attempt++
	if job.Attempt > MaxRetries {
		if err := q.push(ctx, q.dlqKey, job); err != nil {
			q.logger.Error("写入死信队列失败", zap.String("job_id", job.ID), zap.Error(err))
			return err
		}
		q.logger.Warn("任务转入死信队列", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return nil
	}
	if err := q.push(ctx, q.key, job); err != nil {
		return err
	}
	q.logger.Info("任务已重新入队", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}

func (q *Queue) push(ctx context.Context, key string, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, key, raw).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", key, err)
	}
	return nil
}
