// Package pool 基于 ants 提供命名的 goroutine 池。
// 向量化与生成等阻塞调用在专用池中执行，调用方只阻塞自身 goroutine 等待结果。
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kart-io/logger"
	"github.com/panjf2000/ants/v2"
)

var (
	ErrPoolClosed        = errors.New("pool: closed")
	ErrPoolNotFound      = errors.New("pool: not registered")
	ErrPoolAlreadyExists = errors.New("pool: already registered")
	ErrInvalidPoolConfig = errors.New("pool: invalid config")
	// ErrPoolOverload 非阻塞模式下池满，或阻塞等待队列已满。
	ErrPoolOverload = errors.New("pool: overloaded")
	ErrTaskPanic    = errors.New("pool: task panicked")
)

// Type defines the type of worker pool.
type Type string

const (
	// EmbeddingPool 向量化推理池
	EmbeddingPool Type = "embedding"
	// GenerationPool 大模型生成池
	GenerationPool Type = "generation"
	// BackgroundPool 后台任务池（异步评估、知识库监听导入）
	BackgroundPool Type = "background"
)

// Config defines the configuration for the worker pool.
type Config struct {
	// Capacity 池容量（最大并发 goroutine 数）
	Capacity int `json:"capacity" mapstructure:"capacity"`
	// ExpiryDuration goroutine 空闲过期时间
	ExpiryDuration time.Duration `json:"expiry-duration" mapstructure:"expiry-duration"`
	// PreAlloc 是否预分配
	PreAlloc bool `json:"pre-alloc" mapstructure:"pre-alloc"`
	// Nonblocking 池满时立即返回 ErrPoolOverload
	Nonblocking bool `json:"nonblocking" mapstructure:"nonblocking"`
	// MaxBlockingTasks 阻塞模式下最大等待任务数，0 表示无限制
	MaxBlockingTasks int `json:"max-blocking-tasks" mapstructure:"max-blocking-tasks"`
	// PanicHandler 恐慌处理函数
	PanicHandler func(interface{}) `json:"-" mapstructure:"-"`
}

// EmbeddingPoolConfig 返回向量化池配置，推理占用 CPU/网络，容量较小。
func EmbeddingPoolConfig() *Config {
	return &Config{
		Capacity:         16,
		ExpiryDuration:   30 * time.Second,
		MaxBlockingTasks: 1000,
	}
}

// GenerationPoolConfig 返回生成池配置。
func GenerationPoolConfig() *Config {
	return &Config{
		Capacity:         32,
		ExpiryDuration:   30 * time.Second,
		MaxBlockingTasks: 1000,
	}
}

// BackgroundPoolConfig 返回后台任务池配置
func BackgroundPoolConfig() *Config {
	return &Config{
		Capacity:         8,
		ExpiryDuration:   60 * time.Second,
		Nonblocking:      true,
		MaxBlockingTasks: 100,
	}
}

// Validate 校验配置。
func (c *Config) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidPoolConfig, c.Capacity)
	}
	if c.MaxBlockingTasks < 0 {
		return fmt.Errorf("%w: max-blocking-tasks must not be negative", ErrInvalidPoolConfig)
	}
	return nil
}

// Pool represents a worker pool.
type Pool struct {
	name     string
	typ      Type
	pool     *ants.Pool
	config   *Config
	stats    poolStatsCounter
	closed   atomic.Bool
	closedMu sync.Mutex
}

type poolStatsCounter struct {
	SubmittedTasks  atomic.Int64
	CompletedTasks  atomic.Int64
	RejectedTasks   atomic.Int64
	PanicRecovered  atomic.Int64
	TotalWaitTimeNs atomic.Int64
}

// Stats contains statistics about the worker pool.
type Stats struct {
	SubmittedTasks  int64 `json:"submitted_tasks"`
	CompletedTasks  int64 `json:"completed_tasks"`
	RejectedTasks   int64 `json:"rejected_tasks"`
	PanicRecovered  int64 `json:"panic_recovered"`
	TotalWaitTimeNs int64 `json:"total_wait_time_ns"`
	Running         int   `json:"running"`
	Capacity        int   `json:"capacity"`
}

// NewPool creates a new worker pool with the given configuration.
func NewPool(name string, typ Type, config *Config) (*Pool, error) {
	if config == nil {
		config = BackgroundPoolConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	p := &Pool{
		name:   name,
		typ:    typ,
		config: config,
	}

	pool, err := ants.NewPool(config.Capacity, buildAntsOptions(p, config)...)
	if err != nil {
		return nil, fmt.Errorf("创建 ants 池失败: %w", err)
	}
	p.pool = pool

	logger.Infow("Worker pool created",
		"name", name,
		"type", typ,
		"capacity", config.Capacity,
	)

	return p, nil
}

func buildAntsOptions(p *Pool, config *Config) []ants.Option {
	opts := []ants.Option{
		ants.WithExpiryDuration(config.ExpiryDuration),
		ants.WithPreAlloc(config.PreAlloc),
		ants.WithNonblocking(config.Nonblocking),
		ants.WithMaxBlockingTasks(config.MaxBlockingTasks),
	}

	handler := config.PanicHandler
	if handler == nil {
		handler = func(v interface{}) {
			logger.Errorw("Worker panic recovered", "pool", p.name, "panic", v)
		}
	}
	opts = append(opts, ants.WithPanicHandler(func(v interface{}) {
		p.stats.PanicRecovered.Add(1)
		handler(v)
	}))

	return opts
}

// Name 返回池名称
func (p *Pool) Name() string {
	return p.name
}

// Type 返回池类型
func (p *Pool) Type() Type {
	return p.typ
}

// Running 返回正在运行的 goroutine 数量
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Submit 提交任务到池中执行
func (p *Pool) Submit(task func()) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	submittedAt := time.Now()
	err := p.pool.Submit(func() {
		p.stats.TotalWaitTimeNs.Add(int64(time.Since(submittedAt)))
		task()
		p.stats.CompletedTasks.Add(1)
	})
	if err != nil {
		switch {
		case errors.Is(err, ants.ErrPoolOverload):
			p.stats.RejectedTasks.Add(1)
			return ErrPoolOverload
		case errors.Is(err, ants.ErrPoolClosed):
			return ErrPoolClosed
		}
		return err
	}

	p.stats.SubmittedTasks.Add(1)
	return nil
}

// Release 关闭池并释放资源
func (p *Pool) Release() {
	p.closedMu.Lock()
	defer p.closedMu.Unlock()

	if p.closed.Swap(true) {
		return
	}
	p.pool.Release()
	logger.Infow("Worker pool released", "name", p.name)
}

// ReleaseTimeout 等待运行中的任务完成，直到超时
func (p *Pool) ReleaseTimeout(timeout time.Duration) error {
	p.closedMu.Lock()
	defer p.closedMu.Unlock()

	if p.closed.Swap(true) {
		return nil
	}
	return p.pool.ReleaseTimeout(timeout)
}

// Stats 返回池统计信息快照
func (p *Pool) Stats() Stats {
	return Stats{
		SubmittedTasks:  p.stats.SubmittedTasks.Load(),
		CompletedTasks:  p.stats.CompletedTasks.Load(),
		RejectedTasks:   p.stats.RejectedTasks.Load(),
		PanicRecovered:  p.stats.PanicRecovered.Load(),
		TotalWaitTimeNs: p.stats.TotalWaitTimeNs.Load(),
		Running:         p.pool.Running(),
		Capacity:        p.pool.Cap(),
	}
}

// Do 在池中执行 fn 并等待结果。
// ctx 先结束时立即返回 ctx.Err()，已提交的任务继续运行，其结果被丢弃。
// 任务中的 panic 转换为错误返回。
func Do[T any](ctx context.Context, p *Pool, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)

	err := p.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				p.stats.PanicRecovered.Add(1)
				logger.Errorw("task panic recovered", "pool", p.name, "panic", r)
				done <- result{err: fmt.Errorf("%w: %v", ErrTaskPanic, r)}
			}
		}()
		v, err := fn(ctx)
		done <- result{val: v, err: err}
	})
	if err != nil {
		return zero, err
	}

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Go 提交一个无需等待结果的后台任务，错误与 panic 只记录日志。
func Go(p *Pool, name string, fn func() error) error {
	return p.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				p.stats.PanicRecovered.Add(1)
				logger.Errorw("background task panic", "pool", p.name, "task", name, "panic", r)
			}
		}()
		if err := fn(); err != nil {
			logger.Warnw("background task failed", "pool", p.name, "task", name, "error", err.Error())
		}
	})
}
