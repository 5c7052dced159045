package acio

import (
	"encoding/binary"
	"encoding/hex"
	"strings"
	"sync"

	apperrors "github.com/wfunc/arcade-shim/internal/errors"
)

// Board 由IO板节点驱动的虚拟板卡
type Board interface {
	// ControlReset 复位板卡瞬时状态，返回0表示成功
	ControlReset() int
	// UpdateControlStatusBuffer 重新编码状态缓冲区（遵循冻结标志）
	UpdateControlStatusBuffer() bool
	// GetControlStatusBuffer 复制最近的快照，返回复制的字节数
	GetControlStatusBuffer(out []byte) int
	// BufferSize 状态缓冲区字节数
	BufferSize() int
	// SetOutput 单路输出，value 为8位亮度
	SetOutput(index int, value byte) int
	// SetOutputWord 输出位图
	SetOutputWord(word uint32)
}

// CommandHandler 板卡可选实现的专有命令
type CommandHandler interface {
	HandleCommand(code uint16, payload []byte) ([]byte, bool)
}

// IOBoardNode IO板节点
type IOBoardNode struct {
	name    string
	version Version
	board   Board
}

// NewIOBoardNode 创建IO板节点
func NewIOBoardNode(name string, product string, board Board) *IOBoardNode {
	v := Version{Type: 0x0D, Major: 1, Minor: 6, Date: "Oct 19 2026", Time: "12:00:00"}
	copy(v.Product[:], product)
	return &IOBoardNode{name: name, version: v, board: board}
}

// Name 实现 Node
func (n *IOBoardNode) Name() string { return n.name }

// Version 实现 Node
func (n *IOBoardNode) Version() Version { return n.version }

// Reset 实现 Node
func (n *IOBoardNode) Reset() byte {
	return byte(n.board.ControlReset())
}

// Handle 实现 Node
func (n *IOBoardNode) Handle(req *Frame) ([]byte, bool) {
	switch req.Code {
	case CmdGetStatus:
		out := make([]byte, n.board.BufferSize())
		n.board.GetControlStatusBuffer(out)
		if len(out) > MaxPayload {
			// 单帧放不下时分段：payload[0] 为段号
			return n.segment(out, req.Payload), true
		}
		return out, true

	case CmdUpdateStatus:
		if n.board.UpdateControlStatusBuffer() {
			return []byte{StatusOK}, true
		}
		return []byte{StatusFailed}, true

	case CmdSetOutput:
		if len(req.Payload) < 2 {
			return []byte{StatusInvalidParam}, true
		}
		return []byte{byte(n.board.SetOutput(int(req.Payload[0]), req.Payload[1]))}, true

	case CmdSetOutputWord:
		if len(req.Payload) < 4 {
			return []byte{StatusInvalidParam}, true
		}
		n.board.SetOutputWord(binary.BigEndian.Uint32(req.Payload[:4]))
		return []byte{StatusOK}, true
	}

	if h, ok := n.board.(CommandHandler); ok {
		return h.HandleCommand(req.Code, req.Payload)
	}
	return nil, false
}

// segmentSize 分段时每段的数据字节数（留1字节放段号）
const segmentSize = MaxPayload - 1

func (n *IOBoardNode) segment(buf []byte, req []byte) []byte {
	idx := 0
	if len(req) > 0 {
		idx = int(req[0])
	}
	start := idx * segmentSize
	if start >= len(buf) {
		return []byte{byte(idx)}
	}
	end := start + segmentSize
	if end > len(buf) {
		end = len(buf)
	}
	out := make([]byte, 0, 1+end-start)
	out = append(out, byte(idx))
	return append(out, buf[start:end]...)
}

// KeypadSource 读卡器键盘状态来源
type KeypadSource interface {
	Get(unit int) uint16
}

// CardReaderNode 读卡器节点（数字键盘 + 卡槽）
type CardReaderNode struct {
	name    string
	unit    int
	version Version
	keypad  KeypadSource

	mu       sync.Mutex
	slotOpen bool
	card     [8]byte
	hasCard  bool
}

// NewCardReaderNode 创建读卡器节点，unit 为键盘编号（0=P1）
func NewCardReaderNode(name string, unit int, keypad KeypadSource) *CardReaderNode {
	v := Version{Type: 0x03, Major: 1, Minor: 7, Date: "Oct 19 2026", Time: "12:00:00"}
	copy(v.Product[:], "ICCA")
	return &CardReaderNode{name: name, unit: unit, version: v, keypad: keypad}
}

// Name 实现 Node
func (n *CardReaderNode) Name() string { return n.name }

// Version 实现 Node
func (n *CardReaderNode) Version() Version { return n.version }

// Reset 实现 Node
func (n *CardReaderNode) Reset() byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.slotOpen = false
	n.hasCard = false
	return StatusOK
}

// InsertCard 插入卡片（脚本/诊断接口使用）
func (n *CardReaderNode) InsertCard(id [8]byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.card = id
	n.hasCard = true
}

// ParseCardID 解析16位十六进制卡号
func ParseCardID(s string) ([8]byte, error) {
	var id [8]byte
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil || len(raw) != len(id) {
		return id, apperrors.Newf(apperrors.ErrInvalidParam, "卡号需要16位十六进制: %q", s)
	}
	copy(id[:], raw)
	return id, nil
}

// Handle 实现 Node
//
// 轮询应答: status(1) keypad(2,BE) card_present(1) card_id(8)
func (n *CardReaderNode) Handle(req *Frame) ([]byte, bool) {
	switch req.Code {
	case CmdKeypadPoll:
		out := make([]byte, 12)
		out[0] = StatusOK
		binary.BigEndian.PutUint16(out[1:3], n.keypad.Get(n.unit))
		n.mu.Lock()
		if n.hasCard && n.slotOpen {
			out[3] = 1
			copy(out[4:], n.card[:])
		}
		n.mu.Unlock()
		return out, true

	case CmdSlotState:
		if len(req.Payload) < 1 {
			return []byte{StatusInvalidParam}, true
		}
		n.mu.Lock()
		n.slotOpen = req.Payload[0] != 0
		if !n.slotOpen {
			n.hasCard = false
		}
		n.mu.Unlock()
		return []byte{StatusOK}, true
	}
	return nil, false
}
