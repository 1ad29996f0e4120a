package metrics

import (
	"sort"
	"strings"
	"sync"
)

// Registry 按名称保存指标，同名注册会替换旧指标。
type Registry struct {
	mu      sync.RWMutex
	metrics map[string]Metric
}

// NewRegistry 创建空的 Registry。
func NewRegistry() *Registry {
	return &Registry{metrics: make(map[string]Metric)}
}

// DefaultRegistry 进程级默认 Registry。
var DefaultRegistry = NewRegistry()

// Register 注册指标。
func (r *Registry) Register(m Metric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics[m.Name()] = m
}

// Export 按名称排序导出全部指标。
func (r *Registry) Export() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sb strings.Builder
	for _, name := range sortedKeys(r.metrics) {
		sb.WriteString(r.metrics[name].Describe())
		sb.WriteString("\n")
	}
	return sb.String()
}

// Export 导出 DefaultRegistry。
func Export() string {
	return DefaultRegistry.Export()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
