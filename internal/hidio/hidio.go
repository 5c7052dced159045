// Package hidio 把 HID 控制器接入输入抽象层。
//
// 输入报告按位图和字节读取：按键码是报告数据区（报告ID之后）的位序号，模拟量序号是数据区的字节偏移，
// 值按 0..255 归一化。灯光写到输出报告的对应字节。
package hidio

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sstallion/go-hid"
	"github.com/wfunc/arcade-shim/internal/config"
	apperrors "github.com/wfunc/arcade-shim/internal/errors"
	"github.com/wfunc/arcade-shim/internal/input"
	"github.com/wfunc/arcade-shim/internal/logger"
	"go.uber.org/zap"
)

// maxReport 单个报告的最大长度
const maxReport = 65

// Device 打开的HID设备
type Device interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Opener 按 VID/PID 打开设备
type Opener func(vid, pid uint16) (Device, error)

// Open 用 hidapi 打开第一个匹配 VID/PID 的设备
func Open(vid, pid uint16) (Device, error) {
	var path string
	err := hid.Enumerate(vid, pid, func(info *hid.DeviceInfo) error {
		if path == "" {
			path = info.Path
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDeviceNotFound, "hid enumerate")
	}
	if path == "" {
		return nil, apperrors.Newf(apperrors.ErrDeviceNotFound, "hid %04x:%04x", vid, pid)
	}
	d, err := hid.OpenPath(path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDeviceNotFound, path)
	}
	return d, nil
}

// Init 初始化 hidapi
func Init() error {
	return hid.Init()
}

// Exit 释放 hidapi
func Exit() error {
	return hid.Exit()
}

// Controller 一个HID控制器：最近的输入报告 + 输出报告缓存
type Controller struct {
	cfg  config.HIDConfig
	open Opener
	log  *zap.Logger

	mu      sync.RWMutex
	dev     Device
	report  []byte // 最近的输入报告数据区（不含报告ID）
	output  []byte
	reports uint64

	// dirty 输出缓存有未发送的修改，由连接上的发送协程消费
	dirty chan struct{}
}

// NewController 创建控制器，open 为nil时使用 hidapi
func NewController(cfg config.HIDConfig, open Opener) *Controller {
	if open == nil {
		open = Open
	}
	n := cfg.OutputBytes
	if n < 0 {
		n = 0
	}
	return &Controller{
		cfg:    cfg,
		open:   open,
		log:    logger.WithModule("input").With(zap.String("hid", cfg.Alias)),
		output: make([]byte, n),
		dirty:  make(chan struct{}, 1),
	}
}

// Alias 设备别名
func (c *Controller) Alias() string { return c.cfg.Alias }

// Connected 设备是否已打开
func (c *Controller) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dev != nil
}

// Reports 收到的输入报告数
func (c *Controller) Reports() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reports
}

// Run 读取输入报告直到 ctx 取消，设备断开后每秒重试
func (c *Controller) Run(ctx context.Context) error {
	for {
		dev, err := c.open(c.cfg.VendorID, c.cfg.ProductID)
		if err != nil {
			c.log.Debug("HID设备不可用", zap.Error(err))
		} else {
			c.log.Info("HID设备已连接",
				zap.Uint16("vid", c.cfg.VendorID),
				zap.Uint16("pid", c.cfg.ProductID))
			c.serve(ctx, dev)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Second):
		}
	}
}

func (c *Controller) serve(ctx context.Context, dev Device) {
	c.mu.Lock()
	c.dev = dev
	c.mu.Unlock()

	connCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	if len(c.output) > 0 {
		// 重连后重发整个输出缓存
		c.markDirty()
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.flushLoop(connCtx, dev)
		}()
	}

	// 阻塞读只能靠关闭设备打断
	stop := context.AfterFunc(ctx, func() { _ = dev.Close() })
	defer func() {
		if stop() {
			_ = dev.Close()
		}
		cancel()
		wg.Wait()
		c.mu.Lock()
		c.dev = nil
		c.report = nil
		c.mu.Unlock()
	}()

	buf := make([]byte, maxReport)
	for {
		n, err := dev.Read(buf)
		if err != nil {
			if ctx.Err() == nil {
				c.log.Warn("HID读取失败，设备断开", zap.Error(err))
			}
			return
		}
		if n == 0 {
			continue
		}
		c.handleReport(buf[:n])
	}
}

// flushLoop 发送输出报告。SetLight 只改缓存，设备写入不占用控制器的锁
func (c *Controller) flushLoop(ctx context.Context, dev Device) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.dirty:
		}

		c.mu.RLock()
		report := make([]byte, 0, 1+len(c.output))
		report = append(report, c.cfg.ReportID)
		report = append(report, c.output...)
		c.mu.RUnlock()

		if _, err := dev.Write(report); err != nil && ctx.Err() == nil {
			c.log.Warn("发送HID输出报告失败", zap.Error(err))
		}
	}
}

func (c *Controller) markDirty() {
	select {
	case c.dirty <- struct{}{}:
	default:
	}
}

// handleReport 保存输入报告；配置了报告ID时只接受该ID的报告
func (c *Controller) handleReport(r []byte) {
	data := r
	if c.cfg.ReportID != 0 {
		if r[0] != c.cfg.ReportID {
			return
		}
		data = r[1:]
	}
	c.mu.Lock()
	c.report = append(c.report[:0], data...)
	c.reports++
	c.mu.Unlock()
}

// ButtonState 按键码为数据区位序号
func (c *Controller) ButtonState(code uint16) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.report == nil {
		return 0, false
	}
	i := int(code / 8)
	if i >= len(c.report) {
		return 0, true
	}
	if c.report[i]&(1<<(code%8)) != 0 {
		return 1, true
	}
	return 0, true
}

// AnalogState 模拟量序号为数据区字节偏移
func (c *Controller) AnalogState(index int) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.report == nil || index < 0 || index >= len(c.report) {
		return 0, false
	}
	return float64(c.report[index]) / 255, true
}

// SetLight 修改输出缓存的一个字节，值变化时通知发送协程；从不等待设备
func (c *Controller) SetLight(index int, value float64) error {
	b := byte(math.Round(clamp01(value) * 255))

	c.mu.Lock()
	if index < 0 || index >= len(c.output) || c.output[index] == b {
		c.mu.Unlock()
		return nil
	}
	c.output[index] = b
	c.mu.Unlock()

	c.markDirty()
	return nil
}

// Output 输出缓存的副本
func (c *Controller) Output() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]byte(nil), c.output...)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// Backend 按别名管理多个控制器，注册到 input.Mux 的 "hid" 前缀下
type Backend struct {
	controllers map[string]*Controller
}

// NewBackend 创建HID后端
func NewBackend(cfgs []config.HIDConfig, open Opener) *Backend {
	b := &Backend{controllers: make(map[string]*Controller, len(cfgs))}
	for _, cfg := range cfgs {
		b.controllers[cfg.Alias] = NewController(cfg, open)
	}
	return b
}

// Controller 按别名取控制器
func (b *Backend) Controller(alias string) (*Controller, bool) {
	c, ok := b.controllers[alias]
	return c, ok
}

// Aliases 全部设备别名（排序）
func (b *Backend) Aliases() []string {
	out := make([]string, 0, len(b.controllers))
	for a := range b.controllers {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

func (b *Backend) lookup(device string) *Controller {
	return b.controllers[strings.TrimPrefix(device, input.DeviceHIDPrefix)]
}

// ButtonState 实现 input.Backend
func (b *Backend) ButtonState(device string, code uint16) (float64, bool) {
	c := b.lookup(device)
	if c == nil {
		return 0, false
	}
	return c.ButtonState(code)
}

// AnalogState 实现 input.Backend
func (b *Backend) AnalogState(device string, index int) (float64, bool) {
	c := b.lookup(device)
	if c == nil {
		return 0, false
	}
	return c.AnalogState(index)
}

// SetLight 实现 input.LightSink
func (b *Backend) SetLight(device string, index int, value float64) error {
	c := b.lookup(device)
	if c == nil {
		return apperrors.New(apperrors.ErrBackendMissing, device)
	}
	return c.SetLight(index, value)
}

// Run 运行全部控制器，直到 ctx 取消
func (b *Backend) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, c := range b.controllers {
		wg.Add(1)
		go func(c *Controller) {
			defer wg.Done()
			_ = c.Run(ctx)
		}(c)
	}
	wg.Wait()
}
