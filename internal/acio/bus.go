package acio

import (
	"encoding/binary"
	"sync"

	"github.com/wfunc/arcade-shim/internal/logger"
	"go.uber.org/zap"
)

// NodeState 节点状态机
type NodeState int

const (
	NodeIdle NodeState = iota
	NodeCommandReceived
	NodeResponseQueued
)

// String 状态名称
func (s NodeState) String() string {
	switch s {
	case NodeIdle:
		return "idle"
	case NodeCommandReceived:
		return "command_received"
	case NodeResponseQueued:
		return "response_queued"
	default:
		return "unknown"
	}
}

// Version 节点版本信息（CmdGetVersion 的应答）
type Version struct {
	Type    uint32  // 节点类型
	Flag    byte    // 标志
	Major   byte    // 主版本
	Minor   byte    // 次版本
	Rev     byte    // 修订号
	Product [4]byte // 产品代码，如 "ICCA"、"KFCA"
	Date    string  // 固件日期
	Time    string  // 固件时间
}

// versionLen 版本应答长度：type(4) flag(1) ver(3) product(4) date(16) time(16)
const versionLen = 44

// Bytes 编码为应答数据
func (v Version) Bytes() []byte {
	buf := make([]byte, versionLen)
	binary.BigEndian.PutUint32(buf[0:4], v.Type)
	buf[4] = v.Flag
	buf[5] = v.Major
	buf[6] = v.Minor
	buf[7] = v.Rev
	copy(buf[8:12], v.Product[:])
	copy(buf[12:28], v.Date)
	copy(buf[28:44], v.Time)
	return buf
}

// Node 总线上的一个虚拟设备
type Node interface {
	// Name 节点名称（诊断用）
	Name() string
	// Version 版本信息
	Version() Version
	// Reset 复位节点的瞬时状态，返回状态码（0 为成功）
	Reset() byte
	// Handle 处理节点专有命令，ok=false 表示不支持
	Handle(req *Frame) (payload []byte, ok bool)
}

// NodeInfo 节点诊断信息
type NodeInfo struct {
	Addr     byte   `json:"addr"`
	Name     string `json:"name"`
	State    string `json:"state"`
	Started  bool   `json:"started"`
	Commands uint64 `json:"commands"`
}

type nodeSlot struct {
	node     Node
	state    NodeState
	started  bool
	commands uint64
}

// Bus 一条虚拟ACIO总线，多个节点共享一个端口，按地址分发
type Bus struct {
	mu    sync.Mutex
	slots []*nodeSlot

	// 统计
	unsupported uint64
	unknownNode uint64
}

// NewBus 创建总线
func NewBus(nodes ...Node) *Bus {
	b := &Bus{}
	for _, n := range nodes {
		b.Attach(n)
	}
	return b
}

// Attach 挂载节点，地址按挂载顺序从1开始
func (b *Bus) Attach(n Node) byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.slots = append(b.slots, &nodeSlot{node: n})
	return byte(len(b.slots))
}

// Nodes 节点数量
func (b *Bus) Nodes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.slots)
}

// State 节点当前状态
func (b *Bus) State(addr byte) NodeState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s := b.slot(addr); s != nil {
		return s.state
	}
	return NodeIdle
}

// Info 全部节点的诊断信息
func (b *Bus) Info() []NodeInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]NodeInfo, 0, len(b.slots))
	for i, s := range b.slots {
		out = append(out, NodeInfo{
			Addr:     byte(i + 1),
			Name:     s.node.Name(),
			State:    s.state.String(),
			Started:  s.started,
			Commands: s.commands,
		})
	}
	return out
}

// Unsupported 不支持命令的计数
func (b *Bus) Unsupported() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unsupported
}

func (b *Bus) slot(addr byte) *nodeSlot {
	if addr == BroadcastAddr || int(addr) > len(b.slots) {
		return nil
	}
	return b.slots[addr-1]
}

// Process 同步处理一个请求帧，返回响应帧。地址不存在的请求没有响应
func (b *Bus) Process(req *Frame) *Frame {
	log := logger.WithModule("acio")

	if req.IsResponse() {
		return nil
	}

	if req.Node() == BroadcastAddr {
		if req.Code != CmdAssignAddrs {
			b.mu.Lock()
			b.unsupported++
			b.mu.Unlock()
			log.Debug("广播地址上的命令不支持", zap.Stringer("frame", req))
			return req.Reply([]byte{StatusNotSupported})
		}
		return req.Reply([]byte{byte(b.Nodes())})
	}

	b.mu.Lock()
	s := b.slot(req.Node())
	if s == nil {
		b.unknownNode++
		b.mu.Unlock()
		log.Debug("节点不存在，忽略请求", zap.Stringer("frame", req))
		return nil
	}
	s.state = NodeCommandReceived
	s.commands++
	b.mu.Unlock()

	payload := b.dispatch(s, req)

	b.mu.Lock()
	s.state = NodeResponseQueued
	b.mu.Unlock()
	return req.Reply(payload)
}

// Delivered 响应已被读走，节点回到空闲
func (b *Bus) Delivered(addr byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s := b.slot(addr &^ ResponseFlag); s != nil && s.state == NodeResponseQueued {
		s.state = NodeIdle
	}
}

func (b *Bus) dispatch(s *nodeSlot, req *Frame) []byte {
	switch req.Code {
	case CmdGetVersion:
		return s.node.Version().Bytes()
	case CmdStartUp:
		b.mu.Lock()
		s.started = true
		b.mu.Unlock()
		return []byte{StatusOK}
	case CmdKeepAlive:
		return []byte{StatusOK}
	case CmdReset:
		b.mu.Lock()
		s.started = false
		b.mu.Unlock()
		return []byte{s.node.Reset()}
	}

	if payload, ok := s.node.Handle(req); ok {
		return payload
	}

	b.mu.Lock()
	b.unsupported++
	b.mu.Unlock()
	logger.WithModule("acio").Debug("命令不支持",
		zap.String("node", s.node.Name()),
		zap.Stringer("frame", req))
	return []byte{StatusNotSupported}
}
