package workerpool

import (
	"hash/fnv"
	"log/slog"
	"sync"
)

// Task 定义任务函数类型
type Task func()

// Pool 分片 Worker Pool
// 每个 worker 拥有独立队列，相同 key 的任务总是落在同一个 worker 上按提交顺序执行
type Pool struct {
	queues []chan Task
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
	logger *slog.Logger
}

// New 创建一个新的 Worker Pool
// workers: worker 数量
// queueSize: 每个 worker 的队列大小
func New(workers int, queueSize int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	pool := &Pool{
		queues: make([]chan Task, workers),
		logger: logger,
	}

	for i := range pool.queues {
		pool.queues[i] = make(chan Task, queueSize)
		pool.wg.Add(1)
		go pool.worker(i, pool.queues[i])
	}

	pool.logger.Info("Worker pool started",
		"workers", workers,
		"queue_size", queueSize)

	return pool
}

// worker 工作协程，队列关闭且排空后退出
func (p *Pool) worker(id int, queue <-chan Task) {
	defer p.wg.Done()

	for task := range queue {
		p.run(id, task)
	}
}

// run 执行任务，捕获 panic
func (p *Pool) run(id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Task panic recovered",
				"worker_id", id,
				"panic", r)
		}
	}()
	task()
}

// shard 根据 key 选择队列
func (p *Pool) shard(key string) chan Task {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return p.queues[h.Sum32()%uint32(len(p.queues))]
}

// Submit 按 key 提交任务
// 如果队列满了会阻塞，Pool 已关闭返回 false
func (p *Pool) Submit(key string, task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	p.shard(key) <- task
	return true
}

// TrySubmit 尝试提交任务，如果队列满了立即返回 false
func (p *Pool) TrySubmit(key string, task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.shard(key) <- task:
		return true
	default:
		return false
	}
}

// Pending 当前排队中的任务数
func (p *Pool) Pending() int {
	n := 0
	for _, q := range p.queues {
		n += len(q)
	}
	return n
}

// Shutdown 优雅关闭 Worker Pool
// 不再接受新任务，等待已排队的任务执行完毕
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, q := range p.queues {
		close(q)
	}
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("Worker pool shutdown completed")
}
