// Package intercept 提供拦截层的公共构件：规则分发和导出表。
//
// 被拦截的调用都经过模拟层持有的函数值转发，加载器负责把这些函数值填入游戏的导入位置，
// 模拟层本身不修改任何机器码。
package intercept

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/wfunc/arcade-shim/internal/logger"
	"go.uber.org/zap"
)

// Rule 一条重定向规则，Match 为真时由 Redirect 给出模拟结果
type Rule[C, R any] struct {
	Name     string
	Match    func(call C) bool
	Redirect func(call C) R
}

// Stats 分发器命中统计
type Stats struct {
	Name        string            `json:"name"`
	Hits        map[string]uint64 `json:"hits"`
	Passthrough uint64            `json:"passthrough"`
}

// Dispatcher 按注册顺序匹配规则，都不匹配时原样交给原始实现
type Dispatcher[C, R any] struct {
	name string

	mu       sync.RWMutex
	rules    []Rule[C, R]
	hits     []*atomic.Uint64
	fallback func(call C) R

	passthrough atomic.Uint64
}

// NewDispatcher 创建分发器，fallback 为原始实现
func NewDispatcher[C, R any](name string, fallback func(call C) R) *Dispatcher[C, R] {
	return &Dispatcher[C, R]{name: name, fallback: fallback}
}

// Add 追加规则
func (d *Dispatcher[C, R]) Add(r Rule[C, R]) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rules = append(d.rules, r)
	d.hits = append(d.hits, new(atomic.Uint64))
	logger.WithModule("intercept").Debug("注册拦截规则",
		zap.String("dispatcher", d.name),
		zap.String("rule", r.Name))
}

// Call 分发一次调用
func (d *Dispatcher[C, R]) Call(call C) R {
	d.mu.RLock()
	rules, hits, fallback := d.rules, d.hits, d.fallback
	d.mu.RUnlock()

	for i, r := range rules {
		if r.Match != nil && r.Match(call) {
			hits[i].Add(1)
			return r.Redirect(call)
		}
	}
	d.passthrough.Add(1)
	if fallback == nil {
		var zero R
		return zero
	}
	return fallback(call)
}

// Stats 命中统计
func (d *Dispatcher[C, R]) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	st := Stats{Name: d.name, Hits: make(map[string]uint64, len(d.rules)), Passthrough: d.passthrough.Load()}
	for i, r := range d.rules {
		st.Hits[r.Name] += d.hits[i].Load()
	}
	return st
}

// ExportTable 模拟模块的导出表，按名称提供函数值
type ExportTable struct {
	module string

	mu  sync.RWMutex
	fns map[string]any
}

// NewExportTable 创建导出表
func NewExportTable(module string) *ExportTable {
	return &ExportTable{module: module, fns: make(map[string]any)}
}

// Module 模块名
func (t *ExportTable) Module() string {
	return t.module
}

// Provide 提供导出函数，同名覆盖
func (t *ExportTable) Provide(name string, fn any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.fns[name]; ok {
		logger.WithModule("intercept").Warn("导出函数被覆盖",
			zap.String("module", t.module),
			zap.String("export", name))
	}
	t.fns[name] = fn
}

// Names 全部导出名（排序）
func (t *ExportTable) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.fns))
	for n := range t.fns {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Lookup 按名称和函数类型取导出，类型不符视为不存在
func Lookup[F any](t *ExportTable, name string) (F, bool) {
	t.mu.RLock()
	v, ok := t.fns[name]
	t.mu.RUnlock()
	if !ok {
		var zero F
		return zero, false
	}
	fn, ok := v.(F)
	if !ok {
		logger.WithModule("intercept").Warn("导出函数类型不匹配",
			zap.String("module", t.module),
			zap.String("export", name))
	}
	return fn, ok
}
