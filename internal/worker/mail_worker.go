// Package worker 后台任务处理：从 Redis 队列取出邮件任务并通过 SMTP 发送
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"plan-nat/backend/pkg/mailer"
	"plan-nat/backend/pkg/queue"
)

// JobQueue 邮件 Worker 依赖的队列操作（*queue.Queue 实现）
type JobQueue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// MailWorker 邮件任务处理器
type MailWorker struct {
	queue  JobQueue
	sender mailer.Sender
	logger *zap.Logger

	pollTimeout time.Duration
	backoff     time.Duration
}

// NewMailWorker 创建邮件 Worker
func NewMailWorker(q JobQueue, sender mailer.Sender, logger *zap.Logger) *MailWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MailWorker{
		queue:       q,
		sender:      sender,
		logger:      logger,
		pollTimeout: 5 * time.Second,
		backoff:     queue.RetryBackoff,
	}
}

// Process 处理单个任务
func (w *MailWorker) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeEmail {
		return fmt.Errorf("未知任务类型: %s", job.Type)
	}
	var payload queue.EmailPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("解析任务载荷失败: %w", err)
	}

	err := w.sender.Send(ctx, mailer.Mail{
		To:      payload.RecipientEmail,
		ToName:  payload.RecipientName,
		Subject: payload.Subject,
		Body:    payload.Body,
	})
	if err != nil {
		return err
	}

	w.logger.Info("通知邮件已发送",
		zap.String("job_id", job.ID),
		zap.String("user_id", payload.UserID),
		zap.String("kind", payload.Kind),
	)
	return nil
}

// Run 循环取任务直到 ctx 取消；失败的任务重新入队，超过重试次数进入死信队列
func (w *MailWorker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			w.logger.Info("邮件 Worker 停止")
			return
		}

		job, err := w.queue.Dequeue(ctx, w.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Warn("取任务失败", zap.Error(err))
			w.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		if err := w.Process(ctx, job); err != nil {
			w.logger.Error("邮件任务失败",
				zap.String("job_id", job.ID),
				zap.Int("attempt", job.Attempt),
				zap.Error(err),
			)
			if reErr := w.queue.Retry(context.WithoutCancel(ctx), job); reErr != nil {
				w.logger.Error("任务重新入队失败", zap.String("job_id", job.ID), zap.Error(reErr))
			}
			w.sleep(ctx)
		}
	}
}

func (w *MailWorker) sleep(ctx context.Context) {
	t := time.NewTimer(w.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
