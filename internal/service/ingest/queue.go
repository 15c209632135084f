package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultQueueKey Redis 队列键
const DefaultQueueKey = "docsearch:ingest:queue"

// ErrQueueClosed 队列已关闭
var ErrQueueClosed = errors.New("queue closed")

// Job 一个待处理文件
type Job struct {
	TaskID     string    `json:"task_id"`
	FileID     uint      `json:"file_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Queue 任务队列
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	// Dequeue 阻塞直到取到任务或 ctx 结束
	Dequeue(ctx context.Context) (Job, error)
}

// ========== Redis 队列 ==========

// RedisQueue LPUSH 入队、BRPOP 出队，先进先出
type RedisQueue struct {
	client  *redis.Client
	key     string
	timeout time.Duration
}

// NewRedisQueue 创建 Redis 队列
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = DefaultQueueKey
	}
	return &RedisQueue{client: client, key: key, timeout: 5 * time.Second}
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// Dequeue 以短超时轮询 BRPOP，便于响应 ctx 取消
func (q *RedisQueue) Dequeue(ctx context.Context) (Job, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Job{}, err
		}

		result, err := q.client.BRPop(ctx, q.timeout, q.key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return Job{}, ctx.Err()
			}
			return Job{}, fmt.Errorf("failed to dequeue job: %w", err)
		}

		// result[0] 为键名，result[1] 为值
		var job Job
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			return Job{}, fmt.Errorf("failed to unmarshal job: %w", err)
		}
		return job, nil
	}
}

// ========== 内存队列 ==========

// MemoryQueue 基于带缓冲 channel 的进程内队列
type MemoryQueue struct {
	jobs chan Job
}

// NewMemoryQueue 创建内存队列
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 1024
	}
	return &MemoryQueue{jobs: make(chan Job, size)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (Job, error) {
	select {
	case job, ok := <-q.jobs:
		if !ok {
			return Job{}, ErrQueueClosed
		}
		return job, nil
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

// Close 关闭队列，之后的 Dequeue 在取完剩余任务后返回 ErrQueueClosed
func (q *MemoryQueue) Close() {
	close(q.jobs)
}
