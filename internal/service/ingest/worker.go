package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ashwinyue/docsearch/internal/pkg/logger"
	"github.com/ashwinyue/docsearch/internal/service/task"
)

// DefaultConcurrency 默认并发处理数
const DefaultConcurrency = 4

// Runner 处理单个文件
type Runner interface {
	Run(ctx context.Context, fileID uint) Result
}

// WorkerPool 从队列取任务并交给流水线处理
type WorkerPool struct {
	queue       Queue
	runner      Runner
	tasks       task.Store
	concurrency int
	logger      *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorkerPool 创建工作池
func NewWorkerPool(queue Queue, runner Runner, tasks task.Store, concurrency int, log *logger.Logger) *WorkerPool {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &WorkerPool{
		queue:       queue,
		runner:      runner,
		tasks:       tasks,
		concurrency: concurrency,
		logger:      log,
	}
}

// Start 启动工作协程，重复调用无效
func (p *WorkerPool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info("starting ingestion workers", "concurrency", p.concurrency)
	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.loop(ctx, i)
	}
}

// Stop 停止取新任务并等待进行中的任务完成
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	p.wg.Wait()
	p.logger.Info("ingestion workers stopped")
}

func (p *WorkerPool) loop(ctx context.Context, workerID int) {
	defer p.wg.Done()
	log := p.logger.With("worker", workerID)

	for {
		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrQueueClosed) {
				return
			}
			log.Warn("dequeue failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(3 * time.Second):
			}
			continue
		}

		// 已取出的任务不随 Stop 中断
		p.handle(context.WithoutCancel(ctx), log, job)
	}
}

func (p *WorkerPool) handle(ctx context.Context, log *logger.Logger, job Job) {
	log = log.With("task_id", job.TaskID, "file_id", job.FileID)
	log.Info("job received")

	if job.TaskID != "" {
		if err := p.tasks.MarkStarted(ctx, job.TaskID); err != nil {
			log.Warn("failed to mark task started", "error", err)
		}
	}

	result := p.runner.Run(ctx, job.FileID)

	if job.TaskID == "" {
		return
	}
	var err error
	if result.OK() {
		err = p.tasks.MarkSuccess(ctx, job.TaskID, result.Map())
	} else {
		err = p.tasks.MarkFailure(ctx, job.TaskID, result.Message)
	}
	if err != nil {
		log.Warn("failed to record task result", "error", err)
	}
}
