package tables

import (
	"context"
	"sync"

	"github.com/wfunc/arcade-shim/internal/input"
)

// MemoryStore 内存绑定存储，未配置数据库时使用
type MemoryStore struct {
	mu      sync.RWMutex
	buttons map[string][]*input.Button
	analogs map[string][]*input.Analog
	lights  map[string][]*input.Light
	options map[string]map[string]string
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buttons: make(map[string][]*input.Button),
		analogs: make(map[string][]*input.Analog),
		lights:  make(map[string][]*input.Light),
		options: make(map[string]map[string]string),
	}
}

// AddButton 追加按键绑定
func (m *MemoryStore) AddButton(game string, b *input.Button) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buttons[game] = append(m.buttons[game], b)
}

// AddAnalog 追加模拟量绑定
func (m *MemoryStore) AddAnalog(game string, a *input.Analog) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analogs[game] = append(m.analogs[game], a)
}

// AddLight 追加灯光绑定
func (m *MemoryStore) AddLight(game string, l *input.Light) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lights[game] = append(m.lights[game], l)
}

// SetOption 设置选项值
func (m *MemoryStore) SetOption(game, name, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.options[game] == nil {
		m.options[game] = make(map[string]string)
	}
	m.options[game][name] = value
}

// Buttons 实现 Store
func (m *MemoryStore) Buttons(_ context.Context, game string) ([]*input.Button, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*input.Button(nil), m.buttons[game]...), nil
}

// Analogs 实现 Store
func (m *MemoryStore) Analogs(_ context.Context, game string) ([]*input.Analog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*input.Analog(nil), m.analogs[game]...), nil
}

// Lights 实现 Store
func (m *MemoryStore) Lights(_ context.Context, game string) ([]*input.Light, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*input.Light(nil), m.lights[game]...), nil
}

// Options 实现 Store
func (m *MemoryStore) Options(_ context.Context, game string, defs []input.OptionDefinition) ([]*input.Option, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*input.Option, 0, len(defs))
	for _, def := range defs {
		o := input.NewOption(def)
		if v, ok := m.options[game][def.Name]; ok {
			o.Value = v
		}
		out = append(out, o)
	}
	return out, nil
}
