package registry

import (
	"strings"
	"sync"
)

type memKey struct {
	name    string
	values  map[string]Value
	subkeys []*memKey
}

func (k *memKey) child(name string) *memKey {
	for _, c := range k.subkeys {
		if strings.EqualFold(c.name, name) {
			return c
		}
	}
	return nil
}

// MemoryAPI 内存中的注册表，非Windows平台的后端，也用于测试
type MemoryAPI struct {
	mu      sync.Mutex
	roots   map[Key]*memKey
	handles map[Key]*memKey
	next    Key
}

// NewMemoryAPI 创建空注册表
func NewMemoryAPI() *MemoryAPI {
	m := &MemoryAPI{
		roots:   make(map[Key]*memKey),
		handles: make(map[Key]*memKey),
		next:    0x1000,
	}
	for _, root := range []Key{HKeyClassesRoot, HKeyCurrentUser, HKeyLocalMachine, HKeyUsers} {
		m.roots[root] = &memKey{values: make(map[string]Value)}
	}
	return m
}

// Set 写入值，沿途的键自动创建
func (m *MemoryAPI) Set(root Key, path, name string, v Value) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.roots[root]
	if k == nil {
		return
	}
	for _, part := range splitPath(path) {
		c := k.child(part)
		if c == nil {
			c = &memKey{name: part, values: make(map[string]Value)}
			k.subkeys = append(k.subkeys, c)
		}
		k = c
	}
	k.values[strings.ToLower(name)] = v
}

// OpenHandles 未关闭的句柄数
func (m *MemoryAPI) OpenHandles() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}

func splitPath(path string) []string {
	path = CleanPath(path)
	if path == "" {
		return nil
	}
	return strings.Split(path, `\`)
}

func (m *MemoryAPI) lookup(key Key) *memKey {
	if k, ok := m.roots[key]; ok {
		return k
	}
	return m.handles[key]
}

// OpenKey 实现 API
func (m *MemoryAPI) OpenKey(parent Key, path string) (Key, Errno) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.lookup(parent)
	if k == nil {
		return 0, ErrorInvalidHandle
	}
	for _, part := range splitPath(path) {
		if k = k.child(part); k == nil {
			return 0, ErrorFileNotFound
		}
	}
	h := m.next
	m.next += 4
	m.handles[h] = k
	return h, ErrorSuccess
}

// EnumKey 实现 API
func (m *MemoryAPI) EnumKey(key Key, index uint32) (string, Errno) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.lookup(key)
	if k == nil {
		return "", ErrorInvalidHandle
	}
	if int(index) >= len(k.subkeys) {
		return "", ErrorNoMoreItems
	}
	return k.subkeys[index].name, ErrorSuccess
}

// QueryValue 实现 API
func (m *MemoryAPI) QueryValue(key Key, name string, buf []byte) (uint32, uint32, Errno) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.lookup(key)
	if k == nil {
		return TypeNone, 0, ErrorInvalidHandle
	}
	v, ok := k.values[strings.ToLower(name)]
	if !ok {
		return TypeNone, 0, ErrorFileNotFound
	}
	return copyValue(v, buf)
}

// CloseKey 实现 API
func (m *MemoryAPI) CloseKey(key Key) Errno {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roots[key]; ok {
		return ErrorSuccess
	}
	if _, ok := m.handles[key]; !ok {
		return ErrorInvalidHandle
	}
	delete(m.handles, key)
	return ErrorSuccess
}
