// Package task 记录后台处理任务的执行状态
package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// State 任务状态
type State string

const (
	StatePending State = "PENDING"
	StateStarted State = "STARTED"
	StateSuccess State = "SUCCESS"
	StateFailure State = "FAILURE"
)

// DefaultTTL 任务记录保留时长
const DefaultTTL = 24 * time.Hour

const keyPrefix = "docsearch:task:"

// Status 任务状态记录
type Status struct {
	TaskID    string         `json:"task_id"`
	Status    State          `json:"status"`
	Result    map[string]any `json:"result"`
	Error     *string        `json:"error"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Store 任务状态存储
type Store interface {
	// Create 创建 PENDING 任务并返回任务 ID
	Create(ctx context.Context) (string, error)
	MarkStarted(ctx context.Context, id string) error
	MarkSuccess(ctx context.Context, id string, result map[string]any) error
	MarkFailure(ctx context.Context, id string, errMsg string) error
	// Get 未知的任务 ID 返回 PENDING
	Get(ctx context.Context, id string) (*Status, error)
}

// NewID 生成任务 ID
func NewID() string {
	return uuid.NewString()
}

func pending(id string) *Status {
	return &Status{TaskID: id, Status: StatePending}
}

// ========== Redis 实现 ==========

// RedisStore 基于 Redis 的任务状态存储，每条记录为带 TTL 的 JSON
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore 创建 Redis 任务存储
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Create(ctx context.Context) (string, error) {
	id := NewID()
	if err := s.put(ctx, pending(id)); err != nil {
		return "", err
	}
	return id, nil
}

func (s *RedisStore) MarkStarted(ctx context.Context, id string) error {
	return s.put(ctx, &Status{TaskID: id, Status: StateStarted})
}

func (s *RedisStore) MarkSuccess(ctx context.Context, id string, result map[string]any) error {
	return s.put(ctx, &Status{TaskID: id, Status: StateSuccess, Result: result})
}

func (s *RedisStore) MarkFailure(ctx context.Context, id string, errMsg string) error {
	return s.put(ctx, &Status{TaskID: id, Status: StateFailure, Error: &errMsg})
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Status, error) {
	data, err := s.client.Get(ctx, keyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return pending(id), nil
		}
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}

	var st Status
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task %s: %w", id, err)
	}
	return &st, nil
}

func (s *RedisStore) put(ctx context.Context, st *Status) error {
	st.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+st.TaskID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save task %s: %w", st.TaskID, err)
	}
	return nil
}

// ========== 内存实现 ==========

// MemoryStore 单进程运行时使用的任务状态存储
// 记录在最后一次更新 ttl 之后过期，写入时顺带清理过期记录
type MemoryStore struct {
	mu        sync.RWMutex
	tasks     map[string]Status
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewMemoryStore 创建内存任务存储，ttl <= 0 时使用 DefaultTTL
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		tasks: make(map[string]Status),
		ttl:   ttl,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Create(ctx context.Context) (string, error) {
	id := NewID()
	s.put(*pending(id))
	return id, nil
}

func (s *MemoryStore) MarkStarted(ctx context.Context, id string) error {
	s.put(Status{TaskID: id, Status: StateStarted})
	return nil
}

func (s *MemoryStore) MarkSuccess(ctx context.Context, id string, result map[string]any) error {
	s.put(Status{TaskID: id, Status: StateSuccess, Result: result})
	return nil
}

func (s *MemoryStore) MarkFailure(ctx context.Context, id string, errMsg string) error {
	s.put(Status{TaskID: id, Status: StateFailure, Error: &errMsg})
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.tasks[id]
	if !ok || s.expired(st, s.now()) {
		return pending(id), nil
	}
	return &st, nil
}

// Len 当前保留的记录数
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

func (s *MemoryStore) put(st Status) {
	now := s.now()
	st.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[st.TaskID] = st

	// 全量扫描按 ttl 的 1/24 限频
	if now.Sub(s.lastSweep) < s.ttl/24 {
		return
	}
	s.lastSweep = now
	for id, t := range s.tasks {
		if s.expired(t, now) {
			delete(s.tasks, id)
		}
	}
}

func (s *MemoryStore) expired(st Status, now time.Time) bool {
	return now.Sub(st.UpdatedAt) > s.ttl
}
