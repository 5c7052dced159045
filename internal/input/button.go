package input

import (
	"math"
	"sync/atomic"
	"time"
)

// AnalogType 按键的模拟量行为
type AnalogType int

const (
	// AnalogNone 普通数字按键
	AnalogNone AnalogType = iota
	// AnalogRead 按键状态由设备的模拟轴读取（压感键、踏板）
	AnalogRead
)

// KeyNone 未绑定的按键码
const KeyNone uint16 = 0xFFFF

// Button 逻辑按键
//
// 配置字段在表构建后不再修改；采样状态只由采样器写入，
// 其它线程通过原子读取，无需加锁。
type Button struct {
	Name         string
	KeyCode      uint16
	AnalogType   AnalogType
	DebounceUp   float64 // 释放需要保持的秒数
	DebounceDown float64 // 按下需要保持的秒数
	Invert       bool
	Device       string
	Alternatives []*Button

	// 已发布的力度（float64位模式），0表示未按下
	velocity atomic.Uint64

	// 以下字段只由采样器访问
	rawPressed  bool
	rawSince    time.Time
	rawVelocity float64
}

// NewButton 创建未绑定的按键
func NewButton(name string) *Button {
	return &Button{Name: name, KeyCode: KeyNone}
}

// IsBound 主绑定是否有物理来源
func (b *Button) IsBound() bool {
	return b.KeyCode != KeyNone && b.Device != ""
}

// IsSet 主绑定或任一备用绑定有物理来源
func (b *Button) IsSet() bool {
	if b.IsBound() {
		return true
	}
	for _, alt := range b.Alternatives {
		if alt.IsBound() {
			return true
		}
	}
	return false
}

// State 组合后的瞬时状态：主绑定与全部备用绑定取逻辑或
func (b *Button) State() bool {
	if b.ownVelocity() > 0 {
		return true
	}
	for _, alt := range b.Alternatives {
		if alt.ownVelocity() > 0 {
			return true
		}
	}
	return false
}

// Velocity 组合后的力度，取最大值，范围[0,1]
func (b *Button) Velocity() float64 {
	v := b.ownVelocity()
	for _, alt := range b.Alternatives {
		if av := alt.ownVelocity(); av > v {
			v = av
		}
	}
	return v
}

func (b *Button) ownVelocity() float64 {
	return math.Float64frombits(b.velocity.Load())
}

func (b *Button) publish(v float64) {
	b.velocity.Store(math.Float64bits(v))
}

// sample 读取物理来源并按消抖规则发布状态
func (b *Button) sample(src Backend, now time.Time) {
	var (
		v  float64
		ok bool
	)
	if b.IsBound() {
		if b.AnalogType == AnalogRead {
			v, ok = src.AnalogState(b.Device, int(b.KeyCode))
		} else {
			v, ok = src.ButtonState(b.Device, b.KeyCode)
		}
	}
	if ok && b.Invert {
		v = 1 - v
	}
	v = clamp01(v)
	pressed := v > 0

	if pressed != b.rawPressed || b.rawSince.IsZero() {
		b.rawPressed = pressed
		b.rawSince = now
	}
	if pressed {
		b.rawVelocity = v
	}

	published := b.ownVelocity() > 0
	if pressed == published {
		if pressed {
			// 保持按下时跟随力度变化
			b.publish(v)
		}
		return
	}

	hold := b.DebounceUp
	if pressed {
		hold = b.DebounceDown
	}
	if now.Sub(b.rawSince) < seconds(hold) {
		return
	}
	if pressed {
		b.publish(b.rawVelocity)
	} else {
		b.publish(0)
	}
}

// ButtonState 按键组合状态
func ButtonState(b *Button) bool {
	if b == nil {
		return false
	}
	return b.State()
}

// ButtonVelocity 按键组合力度
func ButtonVelocity(b *Button) float64 {
	if b == nil {
		return 0
	}
	return b.Velocity()
}

func seconds(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
