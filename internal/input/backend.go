package input

import (
	"strings"
	"sync"

	apperrors "github.com/wfunc/arcade-shim/internal/errors"
)

// 设备标识前缀
const (
	DeviceKeyboard  = "keyboard"
	DeviceVirtual   = "virtual"
	DeviceHIDPrefix = "hid:"
)

// Backend 物理输入来源
type Backend interface {
	// ButtonState 返回按键力度，ok=false 表示设备不存在或不可用
	ButtonState(device string, code uint16) (velocity float64, ok bool)
	// AnalogState 返回归一化模拟值
	AnalogState(device string, index int) (value float64, ok bool)
}

// Mux 按设备标识把请求路由到具体后端
type Mux struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

// NewMux 创建路由器
func NewMux() *Mux {
	return &Mux{backends: make(map[string]Backend)}
}

// Register 注册后端。key 可以是完整设备名（hid:pad）或前缀（hid）
func (m *Mux) Register(key string, b Backend) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backends[key] = b
}

// Devices 已注册的设备标识
func (m *Mux) Devices() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.backends))
	for k := range m.backends {
		out = append(out, k)
	}
	return out
}

func (m *Mux) route(device string) Backend {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if b, ok := m.backends[device]; ok {
		return b
	}
	if i := strings.IndexByte(device, ':'); i > 0 {
		if b, ok := m.backends[device[:i]]; ok {
			return b
		}
	}
	return nil
}

// ButtonState 实现 Backend
func (m *Mux) ButtonState(device string, code uint16) (float64, bool) {
	b := m.route(device)
	if b == nil {
		return 0, false
	}
	return b.ButtonState(device, code)
}

// AnalogState 实现 Backend
func (m *Mux) AnalogState(device string, index int) (float64, bool) {
	b := m.route(device)
	if b == nil {
		return 0, false
	}
	return b.AnalogState(device, index)
}

// SetLight 实现 LightSink
func (m *Mux) SetLight(device string, index int, value float64) error {
	b := m.route(device)
	if b == nil {
		return apperrors.New(apperrors.ErrBackendMissing, device)
	}
	sink, ok := b.(LightSink)
	if !ok {
		// 只有输入能力的设备
		return nil
	}
	return sink.SetLight(device, index, value)
}

// VirtualBackend 内存中的虚拟设备，供脚本、诊断接口和测试注入输入
type VirtualBackend struct {
	mu      sync.RWMutex
	buttons map[uint16]float64
	analogs map[int]float64
	lights  map[int]float64
}

// NewVirtualBackend 创建虚拟设备
func NewVirtualBackend() *VirtualBackend {
	return &VirtualBackend{
		buttons: make(map[uint16]float64),
		analogs: make(map[int]float64),
		lights:  make(map[int]float64),
	}
}

// Press 设置按键力度，0 表示释放
func (v *VirtualBackend) Press(code uint16, velocity float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if velocity <= 0 {
		delete(v.buttons, code)
		return
	}
	v.buttons[code] = clamp01(velocity)
}

// SetAnalog 设置模拟轴的值
func (v *VirtualBackend) SetAnalog(index int, value float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.analogs[index] = clamp01(value)
}

// Light 读取虚拟灯光的最后写入值
func (v *VirtualBackend) Light(index int) (float64, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	val, ok := v.lights[index]
	return val, ok
}

// ButtonState 实现 Backend
func (v *VirtualBackend) ButtonState(_ string, code uint16) (float64, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.buttons[code], true
}

// AnalogState 实现 Backend
func (v *VirtualBackend) AnalogState(_ string, index int) (float64, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	val, ok := v.analogs[index]
	return val, ok
}

// SetLight 实现 LightSink
func (v *VirtualBackend) SetLight(_ string, index int, value float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lights[index] = value
	return nil
}
