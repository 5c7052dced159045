package acio

import (
	"sort"
	"strings"
	"sync"

	apperrors "github.com/wfunc/arcade-shim/internal/errors"
	"github.com/wfunc/arcade-shim/internal/logger"
	"go.uber.org/zap"
)

// Direction 数据方向
type Direction string

const (
	DirectionRX Direction = "rx" // 游戏 -> 虚拟设备
	DirectionTX Direction = "tx" // 虚拟设备 -> 游戏
)

// TrafficHook 总线流量回调，不能阻塞
type TrafficHook func(port string, dir Direction, f *Frame, raw []byte)

type pending struct {
	addr byte
	left int
}

// Port 虚拟串口端点
//
// Write 同步解码并处理请求，响应字节进入队列；Read 只取队列中的数据，没有数据时立即返回0，从不阻塞。
type Port struct {
	name string
	bus  *Bus

	mu      sync.Mutex
	dec     Decoder
	out     []byte
	pending []pending
	closed  bool
	hook    TrafficHook

	rxBytes uint64
	txBytes uint64
}

// NewPort 创建虚拟端口
func NewPort(name string, bus *Bus) *Port {
	return &Port{name: name, bus: bus}
}

// Name 端口名称
func (p *Port) Name() string { return p.name }

// Bus 端口上的总线
func (p *Port) Bus() *Bus { return p.bus }

// SetHook 设置流量回调
func (p *Port) SetHook(h TrafficHook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hook = h
}

// Write 游戏写入请求字节
func (p *Port) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, apperrors.New(apperrors.ErrDeviceOffline, p.name)
	}
	p.rxBytes += uint64(len(data))
	logger.LogFrame(string(DirectionRX), p.name, data)

	for _, req := range p.dec.Feed(data) {
		if p.hook != nil {
			p.hook(p.name, DirectionRX, req, nil)
		}
		resp := p.bus.Process(req)
		if resp == nil {
			continue
		}
		raw, err := Encode(resp)
		if err != nil {
			logger.WithModule("acio").Warn("响应编码失败",
				zap.String("port", p.name),
				zap.Stringer("frame", resp),
				zap.Error(err))
			p.bus.Delivered(resp.Addr)
			continue
		}
		logger.LogFrame(string(DirectionTX), p.name, raw)
		if p.hook != nil {
			p.hook(p.name, DirectionTX, resp, raw)
		}
		p.out = append(p.out, raw...)
		p.pending = append(p.pending, pending{addr: resp.Addr, left: len(raw)})
	}
	return len(data), nil
}

// Read 读取排队的响应字节，从不阻塞
func (p *Port) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, apperrors.New(apperrors.ErrDeviceOffline, p.name)
	}
	n := copy(buf, p.out)
	p.out = p.out[n:]
	p.txBytes += uint64(n)

	consumed := n
	for consumed > 0 && len(p.pending) > 0 {
		head := &p.pending[0]
		if consumed < head.left {
			head.left -= consumed
			break
		}
		consumed -= head.left
		p.bus.Delivered(head.addr)
		p.pending = p.pending[1:]
	}
	return n, nil
}

// Buffered 等待读取的字节数
func (p *Port) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.out)
}

// Flush 丢弃未读取的响应和未完成的请求
func (p *Port) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pd := range p.pending {
		p.bus.Delivered(pd.addr)
	}
	p.out = nil
	p.pending = nil
	p.dec.Reset()
	return nil
}

// Close 关闭端口
func (p *Port) Close() error {
	if err := p.Flush(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Reopen 重新打开已关闭的端口
func (p *Port) Reopen() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = false
}

// PortStats 端口诊断信息
type PortStats struct {
	Name      string     `json:"name"`
	RXBytes   uint64     `json:"rx_bytes"`
	TXBytes   uint64     `json:"tx_bytes"`
	Frames    uint64     `json:"frames"`
	BadSum    uint64     `json:"bad_checksum"`
	Discarded uint64     `json:"discarded"`
	Closed    bool       `json:"closed"`
	Nodes     []NodeInfo `json:"nodes"`
}

// Stats 端口统计
func (p *Port) Stats() PortStats {
	p.mu.Lock()
	st := PortStats{
		Name:      p.name,
		RXBytes:   p.rxBytes,
		TXBytes:   p.txBytes,
		Frames:    p.dec.Frames,
		BadSum:    p.dec.BadSum,
		Discarded: p.dec.Discarded,
		Closed:    p.closed,
	}
	p.mu.Unlock()
	st.Nodes = p.bus.Info()
	return st
}

// PortSet 按名称管理虚拟端口
type PortSet struct {
	mu    sync.RWMutex
	ports map[string]*Port
}

// NewPortSet 创建端口集合
func NewPortSet() *PortSet {
	return &PortSet{ports: make(map[string]*Port)}
}

// NormalizeName 统一端口名：去掉 \\.\ 前缀并转为大写
func NormalizeName(name string) string {
	name = strings.TrimPrefix(name, `\\.\`)
	return strings.ToUpper(strings.TrimSpace(name))
}

// Add 创建并注册端口
func (s *PortSet) Add(name string, bus *Bus) *Port {
	p := NewPort(NormalizeName(name), bus)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ports[p.name] = p
	return p
}

// Get 按名称取端口（大小写不敏感）
func (s *PortSet) Get(name string) (*Port, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.ports[NormalizeName(name)]
	return p, ok
}

// Open 打开端口，名称不存在时返回 ErrPortNotFound
func (s *PortSet) Open(name string) (*Port, error) {
	p, ok := s.Get(name)
	if !ok {
		return nil, apperrors.New(apperrors.ErrPortNotFound, name)
	}
	p.Reopen()
	return p, nil
}

// Names 全部端口名称（排序）
func (s *PortSet) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.ports))
	for n := range s.ports {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// SetHook 为全部端口设置流量回调
func (s *PortSet) SetHook(h TrafficHook) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.ports {
		p.SetHook(h)
	}
}
