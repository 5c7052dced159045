package input

import (
	"context"
	"sync"
	"time"

	"github.com/wfunc/arcade-shim/internal/logger"
	"go.uber.org/zap"
)

// DefaultSampleInterval 默认采样周期
const DefaultSampleInterval = time.Millisecond

// Sampler 输入采样循环，是所有按键/模拟量采样状态的唯一写入者
type Sampler struct {
	src      Backend
	interval time.Duration

	mu      sync.Mutex
	buttons []*Button
	analogs []*Analog
	samples uint64
}

// NewSampler 创建采样器
func NewSampler(src Backend, interval time.Duration) *Sampler {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	return &Sampler{src: src, interval: interval}
}

// Add 注册需要采样的控件
func (s *Sampler) Add(buttons []*Button, analogs []*Analog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buttons = append(s.buttons, buttons...)
	s.analogs = append(s.analogs, analogs...)
}

// SampleOnce 执行一轮采样
func (s *Sampler) SampleOnce(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range s.buttons {
		b.sample(s.src, now)
		for _, alt := range b.Alternatives {
			alt.sample(s.src, now)
		}
	}
	for _, a := range s.analogs {
		a.sample(s.src)
		for _, alt := range a.Alternatives {
			alt.sample(s.src)
		}
	}
	s.samples++
}

// Samples 已执行的采样轮数
func (s *Sampler) Samples() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.samples
}

// Run 按固定周期采样，直到 ctx 取消
func (s *Sampler) Run(ctx context.Context) error {
	log := logger.WithModule("input")
	log.Info("输入采样启动", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("输入采样停止", zap.Uint64("samples", s.Samples()))
			return nil
		case now := <-ticker.C:
			s.SampleOnce(now)
		}
	}
}
