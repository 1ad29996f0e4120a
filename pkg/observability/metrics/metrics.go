// Package metrics 提供进程内的轻量指标与 Prometheus 文本格式导出。
package metrics

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync/atomic"
)

// MetricType 指标类型。
type MetricType string

const (
	TypeCounter   MetricType = "counter"
	TypeHistogram MetricType = "histogram"
)

// Metric 所有指标的公共接口。
type Metric interface {
	Name() string
	Help() string
	Type() MetricType
	// Describe 返回 Prometheus 文本格式，包含 HELP 与 TYPE 行。
	Describe() string
}

// Counter 单调递增计数器。
type Counter interface {
	Metric
	Inc()
	Add(float64)
	Get() float64
}

// CounterVec 按标签区分的一组计数器。
type CounterVec interface {
	Metric
	With(labels map[string]string) Counter
}

// Histogram 按桶统计观测值。
type Histogram interface {
	Metric
	Observe(float64)
	Count() uint64
	Sum() float64
}

type desc struct {
	name string
	help string
	typ  MetricType
}

func (d desc) Name() string     { return d.name }
func (d desc) Help() string     { return d.help }
func (d desc) Type() MetricType { return d.typ }

func (d desc) header(sb *strings.Builder) {
	fmt.Fprintf(sb, "# HELP %s %s\n", d.name, d.help)
	fmt.Fprintf(sb, "# TYPE %s %s\n", d.name, d.typ)
}

// atomicFloat 以 IEEE754 位模式保存的原子浮点数。
type atomicFloat struct {
	bits atomic.Uint64
}

func (f *atomicFloat) add(v float64) {
	for {
		old := f.bits.Load()
		if f.bits.CompareAndSwap(old, math.Float64bits(math.Float64frombits(old)+v)) {
			return
		}
	}
}

func (f *atomicFloat) load() float64 {
	return math.Float64frombits(f.bits.Load())
}

// labelString 生成按键排序的 {k="v",...}，保证导出结果稳定。
func labelString(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%q", k, labels[k])
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func formatValue(v float64) string {
	return fmt.Sprintf("%g", v)
}
