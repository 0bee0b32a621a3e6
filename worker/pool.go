// Package worker 固定大小的协程池，情景扫描等批量定价任务通过它限流执行。
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wyfcoding/optionpricer/async"
	"github.com/wyfcoding/optionpricer/config"
	"github.com/wyfcoding/optionpricer/metrics"
)

var (
	ErrPoolClosed = errors.New("worker pool is closed")
	ErrPoolFull   = errors.New("worker pool is full")
)

// Task 由 worker 执行；ctx 与提交时的 ctx 无关。
type Task func(ctx context.Context)

// Pool 固定数量的 worker 消费一个有界队列。Stop 会先执行完已入队的任务。
type Pool struct {
	logger  *slog.Logger
	onPanic func(any)
	tasks   chan Task
	gauges  *poolGauges
	name    string
	wg      sync.WaitGroup
	mu      sync.RWMutex
	busy    atomic.Int32
	closed  bool
}

type poolGauges struct {
	busy  prometheus.Gauge
	queue prometheus.Gauge
}

// Option 池构造选项。
type Option func(*Pool)

// WithLogger 池自身的日志，默认 slog.Default()。
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithPanicHandler 任务 panic 时的回调，未设置时只记录日志。
func WithPanicHandler(fn func(any)) Option {
	return func(p *Pool) { p.onPanic = fn }
}

// WithMetrics 注册 worker_pool_busy_workers 与 worker_pool_queue_length，以池名区分。
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pool) {
		if m == nil {
			return
		}
		labels := prometheus.Labels{"pool": p.name}
		p.gauges = &poolGauges{
			busy: m.NewGauge(prometheus.GaugeOpts{
				Name:        "worker_pool_busy_workers",
				Help:        "Number of workers currently running a task",
				ConstLabels: labels,
			}),
			queue: m.NewGauge(prometheus.GaugeOpts{
				Name:        "worker_pool_queue_length",
				Help:        "Tasks waiting in the queue",
				ConstLabels: labels,
			}),
		}
	}
}

// NewPool 按 cfg 创建并启动池。Size 非正时为 1，QueueSize 为 0 时提交会阻塞到有 worker 空闲。
func NewPool(name string, cfg config.PoolConfig, opts ...Option) *Pool {
	size := max(cfg.Size, 1)
	p := &Pool{
		name:   name,
		logger: slog.Default(),
		tasks:  make(chan Task, max(cfg.QueueSize, 0)),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.logger.Debug("worker pool starting", "pool", name, "size", size, "queue_size", cap(p.tasks))
	for range size {
		p.wg.Add(1)
		async.SafeGo(p.logger, func() {
			defer p.wg.Done()
			for task := range p.tasks {
				if p.gauges != nil {
					p.gauges.queue.Set(float64(len(p.tasks)))
				}
				p.run(task)
			}
		})
	}
	return p
}

func (p *Pool) run(task Task) {
	p.busy.Add(1)
	if p.gauges != nil {
		p.gauges.busy.Inc()
	}
	defer func() {
		p.busy.Add(-1)
		if p.gauges != nil {
			p.gauges.busy.Dec()
		}
		if r := recover(); r != nil {
			if p.onPanic != nil {
				p.onPanic(r)
				return
			}
			p.logger.Error("worker task panic recovered", "pool", p.name, "panic", r)
		}
	}()
	task(context.Background())
}

// Busy 正在执行任务的 worker 数。
func (p *Pool) Busy() int {
	return int(p.busy.Load())
}

// Submit 入队一个任务。队列满时阻塞，直到有空位或 ctx 结束。
func (p *Pool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit 不阻塞，队列满时返回 ErrPoolFull。
func (p *Pool) TrySubmit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrPoolFull
	}
}

// Stop 拒绝新任务并等待队列排空，可重复调用。
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Debug("worker pool stopped", "pool", p.name)
}
