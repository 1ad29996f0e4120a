package metrics

import (
	"strings"
	"sync"
)

type counter struct {
	desc
	value atomicFloat
}

// NewCounter 创建计数器。
func NewCounter(name, help string) Counter {
	return &counter{desc: desc{name: name, help: help, typ: TypeCounter}}
}

func (c *counter) Inc() { c.value.add(1) }

// Add 忽略负数。
func (c *counter) Add(v float64) {
	if v <= 0 {
		return
	}
	c.value.add(v)
}

func (c *counter) Get() float64 { return c.value.load() }

func (c *counter) Describe() string {
	var sb strings.Builder
	c.header(&sb)
	sb.WriteString(c.name + " " + formatValue(c.Get()) + "\n")
	return sb.String()
}

type counterVec struct {
	desc
	mu       sync.RWMutex
	children map[string]*labeledCounter
}

type labeledCounter struct {
	counter
	labels string
}

// NewCounterVec 创建按标签区分的计数器组。
func NewCounterVec(name, help string) CounterVec {
	return &counterVec{
		desc:     desc{name: name, help: help, typ: TypeCounter},
		children: make(map[string]*labeledCounter),
	}
}

func (v *counterVec) With(labels map[string]string) Counter {
	key := labelString(labels)

	v.mu.RLock()
	c, ok := v.children[key]
	v.mu.RUnlock()
	if ok {
		return c
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if c, ok = v.children[key]; !ok {
		c = &labeledCounter{counter: counter{desc: v.desc}, labels: key}
		v.children[key] = c
	}
	return c
}

func (v *counterVec) Describe() string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	var sb strings.Builder
	v.header(&sb)
	for _, key := range sortedKeys(v.children) {
		sb.WriteString(v.name + key + " " + formatValue(v.children[key].Get()) + "\n")
	}
	return sb.String()
}
