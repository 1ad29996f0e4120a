package pool

import (
	"fmt"
	"sort"
	"sync"
	"time"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

// Manager 池管理器，按类型管理多个池
type Manager struct {
	mu     sync.RWMutex
	pools  map[Type]*Pool
	closed bool
}

// NewManager 创建新的池管理器
func NewManager() *Manager {
	return &Manager{pools: make(map[Type]*Pool)}
}

// NewDefaultManager 创建包含 embedding / generation / background 三个池的管理器。
// configs 中缺省的类型使用默认配置。
func NewDefaultManager(configs map[Type]*Config) (*Manager, error) {
	defaults := map[Type]*Config{
		EmbeddingPool:  EmbeddingPoolConfig(),
		GenerationPool: GenerationPoolConfig(),
		BackgroundPool: BackgroundPoolConfig(),
	}
	m := NewManager()
	for _, typ := range []Type{EmbeddingPool, GenerationPool, BackgroundPool} {
		cfg := defaults[typ]
		if c, ok := configs[typ]; ok && c != nil {
			cfg = c
		}
		if err := m.Register(typ, cfg); err != nil {
			m.Release()
			return nil, err
		}
	}
	return m, nil
}

// Register 注册新池
func (m *Manager) Register(typ Type, config *Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrPoolClosed
	}
	if _, exists := m.pools[typ]; exists {
		return fmt.Errorf("%w: %s", ErrPoolAlreadyExists, typ)
	}

	p, err := NewPool(string(typ), typ, config)
	if err != nil {
		return err
	}
	m.pools[typ] = p
	return nil
}

// Get 获取指定类型的池
func (m *Manager) Get(typ Type) (*Pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrPoolClosed
	}
	p, ok := m.pools[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, typ)
	}
	return p, nil
}

// MustGet 获取池，不存在时 panic。仅用于启动阶段装配。
func (m *Manager) MustGet(typ Type) *Pool {
	p, err := m.Get(typ)
	if err != nil {
		panic(err)
	}
	return p
}

// Stats 返回所有池的统计信息
func (m *Manager) Stats() map[Type]Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[Type]Stats, len(m.pools))
	for typ, p := range m.pools {
		out[typ] = p.Stats()
	}
	return out
}

// Types 返回已注册的池类型（有序）。
func (m *Manager) Types() []Type {
	m.mu.RLock()
	defer m.mu.RUnlock()

	types := make([]Type, 0, len(m.pools))
	for typ := range m.pools {
		types = append(types, typ)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Release 立即释放所有池
func (m *Manager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	for _, p := range m.pools {
		p.Release()
	}
}

// ReleaseTimeout 等待各池任务完成后释放，聚合所有超时错误
func (m *Manager) ReleaseTimeout(timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	var errs []error
	for typ, p := range m.pools {
		if err := p.ReleaseTimeout(timeout); err != nil {
			errs = append(errs, fmt.Errorf("release pool %s: %w", typ, err))
		}
	}
	return utilerrors.NewAggregate(errs)
}
