package input

import (
	"math"
	"sync/atomic"
)

// smoothingWindow 平滑窗口大小（采样次数）
const smoothingWindow = 8

// Analog 逻辑模拟量输入，值归一化到[0,1]
type Analog struct {
	Name           string
	Device         string
	Index          int // -1 表示未绑定
	Sensitivity    float64
	Deadzone       float64
	DeadzoneMirror bool // 死区以中心对称，否则只作用于低端
	Invert         bool
	Smoothing      bool
	Alternatives   []*Analog

	value atomic.Uint64
	bound atomic.Bool

	// 只由采样器访问
	history [smoothingWindow]float64
	histLen int
	histPos int
}

// NewAnalog 创建未绑定的模拟量
func NewAnalog(name string) *Analog {
	return &Analog{Name: name, Index: -1, Sensitivity: 1}
}

// IsBound 主绑定是否有物理来源
func (a *Analog) IsBound() bool {
	return a.Index >= 0 && a.Device != ""
}

// IsSet 主绑定或任一备用绑定有物理来源
func (a *Analog) IsSet() bool {
	if a.IsBound() {
		return true
	}
	for _, alt := range a.Alternatives {
		if alt.IsBound() {
			return true
		}
	}
	return false
}

// Available 主绑定或任一备用绑定在最近一次采样中有来源给出了值
func (a *Analog) Available() bool {
	if a.bound.Load() {
		return true
	}
	for _, alt := range a.Alternatives {
		if alt.bound.Load() {
			return true
		}
	}
	return false
}

// rest 静止位置：对称死区的轴静止在中心
func (a *Analog) rest() float64 {
	if a.DeadzoneMirror {
		return 0.5
	}
	return 0
}

// Apply 对原始归一化值依次做反转、死区、灵敏度和裁剪
func (a *Analog) Apply(raw float64) float64 {
	v := clamp01(raw)
	if a.Invert {
		v = 1 - v
	}

	sens := a.Sensitivity
	if sens <= 0 {
		sens = 1
	}
	dz := a.Deadzone
	if dz < 0 {
		dz = 0
	}
	if dz >= 1 {
		return a.rest()
	}

	if a.DeadzoneMirror {
		c := 2*v - 1
		mag := math.Abs(c)
		if mag < dz {
			return 0.5
		}
		c = math.Copysign((mag-dz)/(1-dz), c)
		c *= sens
		c = math.Max(-1, math.Min(1, c))
		return (c + 1) / 2
	}

	if v < dz {
		return 0
	}
	v = (v - dz) / (1 - dz)
	return clamp01(v * sens)
}

// State 组合后的值：取偏离静止位置最大的来源
func (a *Analog) State() float64 {
	rest := a.rest()
	best, found := rest, false
	consider := func(x *Analog) {
		if !x.bound.Load() {
			return
		}
		v := math.Float64frombits(x.value.Load())
		if !found || math.Abs(v-rest) > math.Abs(best-rest) {
			best, found = v, true
		}
	}
	consider(a)
	for _, alt := range a.Alternatives {
		consider(alt)
	}
	return best
}

// sample 读取物理来源并发布变换后的值
func (a *Analog) sample(src Backend) {
	if !a.IsBound() {
		a.bound.Store(false)
		return
	}
	raw, ok := src.AnalogState(a.Device, a.Index)
	if !ok {
		a.bound.Store(false)
		return
	}
	v := a.Apply(raw)

	if a.Smoothing {
		a.history[a.histPos] = v
		a.histPos = (a.histPos + 1) % smoothingWindow
		if a.histLen < smoothingWindow {
			a.histLen++
		}
		sum := 0.0
		for i := 0; i < a.histLen; i++ {
			sum += a.history[i]
		}
		v = sum / float64(a.histLen)
	}

	a.value.Store(math.Float64bits(v))
	a.bound.Store(true)
}

// AnalogState 模拟量组合值
func AnalogState(a *Analog) float64 {
	if a == nil {
		return 0
	}
	return a.State()
}
