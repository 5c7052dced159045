package input

import (
	"math"
	"sync/atomic"

	"github.com/wfunc/arcade-shim/internal/logger"
	"go.uber.org/zap"
)

// LightSink 物理输出（LED/灯/马达）
type LightSink interface {
	SetLight(device string, index int, value float64) error
}

// Light 逻辑输出
type Light struct {
	Name         string
	Device       string
	Index        int // -1 表示未绑定
	Alternatives []*Light

	last atomic.Uint64
}

// NewLight 创建未绑定的输出
func NewLight(name string) *Light {
	return &Light{Name: name, Index: -1}
}

// IsBound 主绑定是否有物理输出
func (l *Light) IsBound() bool {
	return l.Index >= 0 && l.Device != ""
}

// Value 最近一次写入的值（诊断用）
func (l *Light) Value() float64 {
	return math.Float64frombits(l.last.Load())
}

// WriteLight 把亮度写到绑定的物理输出；未绑定时静默忽略
func WriteLight(sink LightSink, l *Light, value float64) {
	if l == nil {
		return
	}
	value = clamp01(value)
	l.last.Store(math.Float64bits(value))
	if sink == nil {
		return
	}

	write := func(target *Light) {
		if !target.IsBound() {
			return
		}
		if err := sink.SetLight(target.Device, target.Index, value); err != nil {
			logger.WithModule("input").Debug("灯光写入失败",
				zap.String("light", l.Name),
				zap.String("device", target.Device),
				zap.Int("index", target.Index),
				zap.Error(err),
			)
		}
	}
	write(l)
	for _, alt := range l.Alternatives {
		write(alt)
	}
}
