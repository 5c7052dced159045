package acio

import (
	"encoding/binary"
	"fmt"
)

// 帧定义
//
//	SOF(1) | addr(1) code(2,BE) seq(1) len(1) payload(len) sum(1)
//
// SOF 之后的每个 0xAA/0xFF 字节转义为 0xFF, ^b；sum 为 addr..payload 的字节和（mod 256）。
const (
	FrameSOF    byte = 0xAA
	FrameEscape byte = 0xFF
	headerLen        = 5 // addr + code + seq + len
	MaxPayload       = 0xFF
)

// 响应帧地址的最高位
const ResponseFlag byte = 0x80

// BroadcastAddr 广播地址（枚举用）
const BroadcastAddr byte = 0x00

// 命令码定义
const (
	// 通用命令
	CmdAssignAddrs uint16 = 0x0001 // 分配地址（枚举）
	CmdGetVersion  uint16 = 0x0002 // 读取版本
	CmdStartUp     uint16 = 0x0003 // 启动/开始自动轮询
	CmdKeepAlive   uint16 = 0x0080 // 心跳
	CmdReset       uint16 = 0x0100 // 复位

	// IO板命令
	CmdGetStatus     uint16 = 0x0110 // 读取状态缓冲区
	CmdUpdateStatus  uint16 = 0x0111 // 刷新状态缓冲区
	CmdSetOutput     uint16 = 0x0112 // 设置单路输出 (index, value)
	CmdSetOutputWord uint16 = 0x0113 // 设置输出字（位图）
	CmdSetTicker     uint16 = 0x0114 // 写LED字幕

	// 读卡器命令
	CmdKeypadPoll uint16 = 0x0130 // 键盘/卡片轮询
	CmdSlotState  uint16 = 0x0131 // 卡槽状态
)

var commandNames = map[uint16]string{
	CmdAssignAddrs:   "assign_addrs",
	CmdGetVersion:    "get_version",
	CmdStartUp:       "start_up",
	CmdKeepAlive:     "keep_alive",
	CmdReset:         "reset",
	CmdGetStatus:     "get_status",
	CmdUpdateStatus:  "update_status",
	CmdSetOutput:     "set_output",
	CmdSetOutputWord: "set_output_word",
	CmdSetTicker:     "set_ticker",
	CmdKeypadPoll:    "keypad_poll",
	CmdSlotState:     "slot_state",
}

// CommandName 命令名称，未知命令返回十六进制码
func CommandName(code uint16) string {
	if n, ok := commandNames[code]; ok {
		return n
	}
	return fmt.Sprintf("0x%04X", code)
}

// 状态码定义
const (
	StatusOK           byte = 0x00 // 成功
	StatusFailed       byte = 0x01 // 失败
	StatusInvalidParam byte = 0x02 // 参数错误
	StatusNotSupported byte = 0xFE // 命令不支持
)

// Frame 数据帧结构
type Frame struct {
	Addr    byte   // 节点地址（响应帧最高位置1）
	Code    uint16 // 命令码
	Seq     byte   // 序列号
	Payload []byte // 数据
}

// NewFrame 创建新的数据帧
func NewFrame(addr byte, code uint16, seq byte, payload []byte) *Frame {
	return &Frame{Addr: addr, Code: code, Seq: seq, Payload: payload}
}

// Node 目标节点地址（去掉响应标志）
func (f *Frame) Node() byte {
	return f.Addr &^ ResponseFlag
}

// IsResponse 是否响应帧
func (f *Frame) IsResponse() bool {
	return f.Addr&ResponseFlag != 0
}

// Reply 创建对应的响应帧
func (f *Frame) Reply(payload []byte) *Frame {
	return &Frame{Addr: f.Node() | ResponseFlag, Code: f.Code, Seq: f.Seq, Payload: payload}
}

// String 调试输出
func (f *Frame) String() string {
	return fmt.Sprintf("addr=0x%02X code=0x%04X seq=%d len=%d", f.Addr, f.Code, f.Seq, len(f.Payload))
}

// body 未转义的帧体（不含SOF和校验和）
func (f *Frame) body() []byte {
	buf := make([]byte, headerLen+len(f.Payload))
	buf[0] = f.Addr
	binary.BigEndian.PutUint16(buf[1:3], f.Code)
	buf[3] = f.Seq
	buf[4] = byte(len(f.Payload))
	copy(buf[headerLen:], f.Payload)
	return buf
}

// Checksum 字节和校验
func Checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}

// Encode 把帧编码为线上字节
func Encode(f *Frame) ([]byte, error) {
	if len(f.Payload) > MaxPayload {
		return nil, fmt.Errorf("payload too long: %d > %d", len(f.Payload), MaxPayload)
	}
	body := f.body()
	body = append(body, Checksum(body))

	out := make([]byte, 0, 1+len(body)+4)
	out = append(out, FrameSOF)
	for _, b := range body {
		if b == FrameSOF || b == FrameEscape {
			out = append(out, FrameEscape, ^b)
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// Decoder 流式解码器，容忍帧间垃圾数据，遇到SOF重新同步
type Decoder struct {
	buf     []byte
	inFrame bool
	escape  bool

	// 统计
	Frames    uint64
	BadSum    uint64
	Discarded uint64
}

// Feed 输入一段字节，返回解出的完整帧
func (d *Decoder) Feed(data []byte) []*Frame {
	var frames []*Frame
	for _, b := range data {
		if b == FrameSOF {
			if d.inFrame && len(d.buf) > 0 {
				d.Discarded++
			}
			d.buf = d.buf[:0]
			d.inFrame = true
			d.escape = false
			continue
		}
		if !d.inFrame {
			continue
		}
		if d.escape {
			b = ^b
			d.escape = false
		} else if b == FrameEscape {
			d.escape = true
			continue
		}
		d.buf = append(d.buf, b)

		if len(d.buf) < headerLen {
			continue
		}
		total := headerLen + int(d.buf[4]) + 1
		if len(d.buf) < total {
			continue
		}

		d.inFrame = false
		body := d.buf[:total-1]
		if Checksum(body) != d.buf[total-1] {
			d.BadSum++
			continue
		}
		f := &Frame{
			Addr: body[0],
			Code: binary.BigEndian.Uint16(body[1:3]),
			Seq:  body[3],
		}
		if n := int(body[4]); n > 0 {
			f.Payload = make([]byte, n)
			copy(f.Payload, body[headerLen:])
		}
		d.Frames++
		frames = append(frames, f)
	}
	return frames
}

// Reset 丢弃未完成的数据
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
	d.inFrame = false
	d.escape = false
}
