package metrics

import (
	"sort"
	"strings"
	"sync/atomic"
)

// DefBuckets 默认桶边界，单位秒。
var DefBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

type histogram struct {
	desc
	upper  []float64
	counts []atomic.Uint64 // 非累计，导出时再累加
	count  atomic.Uint64
	sum    atomicFloat
}

// NewHistogram 创建直方图，buckets 为空时使用 DefBuckets。
func NewHistogram(name, help string, buckets []float64) Histogram {
	if len(buckets) == 0 {
		buckets = DefBuckets
	}
	upper := append([]float64(nil), buckets...)
	sort.Float64s(upper)

	return &histogram{
		desc:   desc{name: name, help: help, typ: TypeHistogram},
		upper:  upper,
		counts: make([]atomic.Uint64, len(upper)),
	}
}

func (h *histogram) Observe(v float64) {
	// 第一个 >= v 的桶；超过最大边界的只计入 +Inf
	if i := sort.SearchFloat64s(h.upper, v); i < len(h.upper) {
		h.counts[i].Add(1)
	}
	h.count.Add(1)
	h.sum.add(v)
}

func (h *histogram) Count() uint64 { return h.count.Load() }

func (h *histogram) Sum() float64 { return h.sum.load() }

func (h *histogram) Describe() string {
	var sb strings.Builder
	h.header(&sb)

	var cumulative uint64
	for i, le := range h.upper {
		cumulative += h.counts[i].Load()
		sb.WriteString(h.name + "_bucket" + labelString(map[string]string{"le": formatValue(le)}) +
			" " + formatValue(float64(cumulative)) + "\n")
	}
	count := h.Count()
	sb.WriteString(h.name + `_bucket{le="+Inf"} ` + formatValue(float64(count)) + "\n")
	sb.WriteString(h.name + "_sum " + formatValue(h.Sum()) + "\n")
	sb.WriteString(h.name + "_count " + formatValue(float64(count)) + "\n")
	return sb.String()
}
