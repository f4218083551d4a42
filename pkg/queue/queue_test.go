package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const testKey = "plan-nat:jobs"

func setupTestQueue(t *testing.T) (*Queue, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewQueue(client, testKey, zap.NewNop()), client
}

func llen(t *testing.T, client *redis.Client, key string) int64 {
	t.Helper()
	n, err := client.LLen(context.Background(), key).Result()
	if err != nil {
		t.Fatalf("LLEN %s 失败: %v", key, err)
	}
	return n
}

func TestEnqueueDequeue(t *testing.T) {
	q, _ := setupTestQueue(t)
	ctx := context.Background()

	payload := EmailPayload{Kind: "promoted", UserID: "u-1", RecipientEmail: "alice@example.com", Subject: "候补转正"}
	if err := q.EnqueueEmail(ctx, payload); err != nil {
		t.Fatalf("入队失败: %v", err)
	}

	job, err := q.Dequeue(ctx, time.Second)
	if err != nil || job == nil {
		t.Fatalf("出队应得到任务，实际 job=%v err=%v", job, err)
	}
	if job.Type != JobTypeEmail || job.Attempt != 0 || job.ID == "" {
		t.Errorf("任务信封不正确: %+v", job)
	}
	var got EmailPayload
	if err := json.Unmarshal(job.Payload, &got); err != nil {
		t.Fatalf("解析载荷失败: %v", err)
	}
	if got != payload {
		t.Errorf("期望载荷 %+v，实际 %+v", payload, got)
	}
}

func TestDequeue_DropsInvalidJob(t *testing.T) {
	q, client := setupTestQueue(t)
	ctx := context.Background()

	if err := client.RPush(ctx, testKey, "not-json").Err(); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	job, err := q.Dequeue(ctx, time.Second)
	if err != nil || job != nil {
		t.Errorf("无效任务应被丢弃并返回 (nil, nil)，实际 job=%v err=%v", job, err)
	}
	if n := llen(t, client, testKey); n != 0 {
		t.Errorf("无效任务不应留在队列中，实际长度 %d", n)
	}
	if n := llen(t, client, testKey+":dlq"); n != 0 {
		t.Errorf("无效任务不进入死信队列，实际长度 %d", n)
	}
}

func TestDequeue_EmptyTimeout(t *testing.T) {
	q, _ := setupTestQueue(t)

	job, err := q.Dequeue(context.Background(), 100*time.Millisecond)
	if err != nil || job != nil {
		t.Errorf("空队列超时应返回 (nil, nil)，实际 job=%v err=%v", job, err)
	}
}

func TestRetry_RequeuesThenDeadLetters(t *testing.T) {
	q, client := setupTestQueue(t)
	ctx := context.Background()

	if err := q.EnqueueEmail(ctx, EmailPayload{Kind: "demoted", RecipientEmail: "bob@example.com"}); err != nil {
		t.Fatalf("入队失败: %v", err)
	}
	job, _ := q.Dequeue(ctx, time.Second)

	for i := 1; i <= MaxRetries; i++ {
		if err := q.Retry(ctx, job); err != nil {
			t.Fatalf("第 %d 次重试失败: %v", i, err)
		}
		if n := llen(t, client, testKey+":dlq"); n != 0 {
			t.Fatalf("第 %d 次重试不应进入死信队列", i)
		}
		job, _ = q.Dequeue(ctx, time.Second)
		if job == nil || job.Attempt != i {
			t.Fatalf("第 %d 次重试应重新入队且 attempt=%d，实际 %+v", i, i, job)
		}
	}

	if err := q.Retry(ctx, job); err != nil {
		t.Fatalf("转入死信队列失败: %v", err)
	}
	if n := llen(t, client, testKey); n != 0 {
		t.Errorf("超过重试次数后不应再入主队列，实际长度 %d", n)
	}
	raw, err := client.LPop(ctx, testKey+":dlq").Result()
	if err != nil {
		t.Fatalf("死信队列应有任务: %v", err)
	}
	var dead Job
	if err := json.Unmarshal([]byte(raw), &dead); err != nil {
		t.Fatalf("解析死信任务失败: %v", err)
	}
	if dead.ID != job.ID || dead.Attempt != MaxRetries+1 {
		t.Errorf("死信任务不正确: %+v", dead)
	}
}
