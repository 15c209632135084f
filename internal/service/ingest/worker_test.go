package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ashwinyue/docsearch/internal/service/task"
)

// ========== Mocks ==========

type fakeRunner struct {
	mu      sync.Mutex
	seen    []uint
	results map[uint]Result
	delay   time.Duration
}

func (r *fakeRunner) Run(ctx context.Context, fileID uint) Result {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, fileID)
	if res, ok := r.results[fileID]; ok {
		return res
	}
	return Result{Status: StatusSuccess, FileID: fileID, TotalChunks: 1}
}

func (r *fakeRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func waitForState(t *testing.T, store task.Store, id string, want task.State) *task.Status {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st, err := store.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get(%s): %v", id, err)
		}
		if st.Status == want {
			return st
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s did not reach %s", id, want)
	return nil
}

// ========== MemoryQueue 测试 ==========

func TestMemoryQueue_FIFO(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(4)

	for i := uint(1); i <= 3; i++ {
		if err := q.Enqueue(ctx, Job{FileID: i}); err != nil {
			t.Fatalf("Enqueue() unexpected error: %v", err)
		}
	}
	for want := uint(1); want <= 3; want++ {
		job, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue() unexpected error: %v", err)
		}
		if job.FileID != want || job.EnqueuedAt.IsZero() {
			t.Errorf("Dequeue() = %+v, want file %d", job, want)
		}
	}
}

func TestMemoryQueue_DequeueRespectsContext(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := q.Dequeue(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Dequeue() error = %v, want DeadlineExceeded", err)
	}

	q.Close()
	if _, err := q.Dequeue(context.Background()); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Dequeue() after Close error = %v, want ErrQueueClosed", err)
	}
}

// ========== WorkerPool 测试 ==========

func TestWorkerPool_RecordsTaskStates(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(16)
	tasks := task.NewMemoryStore(0)
	runner := &fakeRunner{results: map[uint]Result{
		2: {Status: StatusError, FileID: 2, Message: "No chunks created"},
	}}

	pool := NewWorkerPool(q, runner, tasks, 2, nil)
	pool.Start(ctx)
	defer pool.Stop()

	okID, _ := tasks.Create(ctx)
	badID, _ := tasks.Create(ctx)
	if err := q.Enqueue(ctx, Job{TaskID: okID, FileID: 1}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.Enqueue(ctx, Job{TaskID: badID, FileID: 2}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	st := waitForState(t, tasks, okID, task.StateSuccess)
	if st.Result["status"] != StatusSuccess || st.Result["total_chunks"] != 1 {
		t.Errorf("success result = %v", st.Result)
	}

	st = waitForState(t, tasks, badID, task.StateFailure)
	if st.Error == nil || *st.Error != "No chunks created" {
		t.Errorf("failure error = %v", st.Error)
	}
}

func TestWorkerPool_StopWaitsForInFlight(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(16)
	tasks := task.NewMemoryStore(0)
	runner := &fakeRunner{delay: 100 * time.Millisecond}

	pool := NewWorkerPool(q, runner, tasks, DefaultConcurrency, nil)
	pool.Start(ctx)
	// 重复启动无效
	pool.Start(ctx)

	for i := uint(1); i <= DefaultConcurrency; i++ {
		if err := q.Enqueue(ctx, Job{FileID: i}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	// 等待所有任务被取走
	deadline := time.Now().Add(2 * time.Second)
	for len(q.jobs) > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	pool.Stop()
	if got := runner.count(); got != DefaultConcurrency {
		t.Errorf("completed runs after Stop = %d, want %d", got, DefaultConcurrency)
	}
	// 重复停止无副作用
	pool.Stop()
}
