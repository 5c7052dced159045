package acio

import (
	"bytes"
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	apperrors "github.com/wfunc/arcade-shim/internal/errors"
	"github.com/wfunc/arcade-shim/internal/hardware"
)

func mustEncode(t *testing.T, f *Frame) []byte {
	t.Helper()
	raw, err := Encode(f)
	require.NoError(t, err)
	return raw
}

func TestCodecEscapesReservedBytes(t *testing.T) {
	f := NewFrame(0x01, 0xAAFF, 0xAA, []byte{0x00, 0xAA, 0xFF, 0x55})
	raw := mustEncode(t, f)

	// SOF 只出现在开头
	assert.Equal(t, FrameSOF, raw[0])
	assert.Equal(t, -1, bytes.IndexByte(raw[1:], FrameSOF))

	var d Decoder
	frames := d.Feed(raw)
	require.Len(t, frames, 1)
	assert.Equal(t, f, frames[0])
}

func TestCodecChecksum(t *testing.T) {
	assert.Equal(t, byte(0x06), Checksum([]byte{1, 2, 3}))
	assert.Equal(t, byte(0x00), Checksum([]byte{0x80, 0x80}))

	raw := mustEncode(t, NewFrame(0x01, CmdGetStatus, 1, []byte{1, 2}))
	raw[len(raw)-1] ^= 0x01

	var d Decoder
	assert.Empty(t, d.Feed(raw))
	assert.Equal(t, uint64(1), d.BadSum)
}

func TestDecoderResyncAndSplitFeeds(t *testing.T) {
	a := mustEncode(t, NewFrame(0x01, CmdKeepAlive, 1, nil))
	b := mustEncode(t, NewFrame(0x02, CmdGetVersion, 2, []byte{0xFF}))

	// 帧前垃圾 + 被截断的帧 + 两个完整帧
	stream := []byte{0x12, 0x34}
	stream = append(stream, a[:3]...)
	stream = append(stream, a...)
	stream = append(stream, b...)

	var d Decoder
	var got []*Frame
	for i := range stream {
		got = append(got, d.Feed(stream[i:i+1])...)
	}
	require.Len(t, got, 2)
	assert.Equal(t, CmdKeepAlive, got[0].Code)
	assert.Equal(t, byte(0x02), got[1].Addr)
	assert.Equal(t, []byte{0xFF}, got[1].Payload)
	assert.Equal(t, uint64(1), d.Discarded)
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	_, err := Encode(NewFrame(1, CmdGetStatus, 0, make([]byte, MaxPayload+1)))
	assert.Error(t, err)
}

// fakeBoard 记录调用的虚拟板卡
type fakeBoard struct {
	mu      sync.Mutex
	buf     []byte
	updates int
	outputs map[int]byte
	word    uint32
}

func newFakeBoard(size int) *fakeBoard {
	b := &fakeBoard{buf: make([]byte, size), outputs: make(map[int]byte)}
	for i := range b.buf {
		b.buf[i] = byte(i)
	}
	return b
}

func (b *fakeBoard) ControlReset() int { return 0 }
func (b *fakeBoard) UpdateControlStatusBuffer() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updates++
	return true
}
func (b *fakeBoard) GetControlStatusBuffer(out []byte) int { return copy(out, b.buf) }
func (b *fakeBoard) BufferSize() int                       { return len(b.buf) }
func (b *fakeBoard) SetOutput(index int, value byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outputs[index] = value
	return 0
}
func (b *fakeBoard) SetOutputWord(word uint32) { b.word = word }

type fakeKeypad struct{ mask uint16 }

func (k fakeKeypad) Get(int) uint16 { return k.mask }

// BusTestSuite 总线测试套件
type BusTestSuite struct {
	suite.Suite
	board *fakeBoard
	bus   *Bus
	port  *Port
}

func (s *BusTestSuite) SetupTest() {
	s.board = newFakeBoard(32)
	s.bus = NewBus(
		NewIOBoardNode("KFCA", "KFCA", s.board),
		NewCardReaderNode("ICCA", 0, fakeKeypad{mask: uint16(hardware.Keypad1)}),
	)
	s.port = NewPortSet().Add(`\\.\com1`, s.bus)
}

// roundTrip 写入请求并立即读取全部响应
func (s *BusTestSuite) roundTrip(f *Frame) []*Frame {
	raw, err := Encode(f)
	s.Require().NoError(err)
	n, err := s.port.Write(raw)
	s.Require().NoError(err)
	s.Require().Equal(len(raw), n)

	buf := make([]byte, 1024)
	m, err := s.port.Read(buf)
	s.Require().NoError(err)

	var d Decoder
	return d.Feed(buf[:m])
}

func (s *BusTestSuite) TestEnumeration() {
	resp := s.roundTrip(NewFrame(BroadcastAddr, CmdAssignAddrs, 0, []byte{0}))
	s.Require().Len(resp, 1)
	s.True(resp[0].IsResponse())
	s.Equal([]byte{2}, resp[0].Payload)
}

func (s *BusTestSuite) TestGetVersion() {
	resp := s.roundTrip(NewFrame(2, CmdGetVersion, 7, nil))
	s.Require().Len(resp, 1)
	s.Equal(byte(0x82), resp[0].Addr)
	s.Equal(byte(7), resp[0].Seq)
	s.Require().Len(resp[0].Payload, versionLen)
	s.Equal("ICCA", string(resp[0].Payload[8:12]))
}

func (s *BusTestSuite) TestUnknownCommandNotSupported() {
	done := make(chan []*Frame, 1)
	go func() { done <- s.roundTrip(NewFrame(1, 0x7777, 3, nil)) }()

	select {
	case resp := <-done:
		s.Require().Len(resp, 1)
		s.Equal([]byte{StatusNotSupported}, resp[0].Payload)
		s.Equal(uint16(0x7777), resp[0].Code)
	case <-time.After(time.Second):
		s.Fail("未知命令不应阻塞")
	}
	s.Equal(uint64(1), s.bus.Unsupported())

	// 广播地址上的其它命令同样返回不支持
	resp := s.roundTrip(NewFrame(BroadcastAddr, CmdGetStatus, 0, nil))
	s.Require().Len(resp, 1)
	s.Equal([]byte{StatusNotSupported}, resp[0].Payload)
}

func (s *BusTestSuite) TestUnknownNodeHasNoResponse() {
	resp := s.roundTrip(NewFrame(9, CmdGetStatus, 0, nil))
	s.Empty(resp)
	s.Zero(s.port.Buffered())
}

func (s *BusTestSuite) TestStateMachine() {
	s.Equal(NodeIdle, s.bus.State(1))

	raw, _ := Encode(NewFrame(1, CmdKeepAlive, 1, nil))
	_, err := s.port.Write(raw)
	s.Require().NoError(err)
	s.Equal(NodeResponseQueued, s.bus.State(1))

	// 只读一部分，仍在等待
	buf := make([]byte, 2)
	_, _ = s.port.Read(buf)
	s.Equal(NodeResponseQueued, s.bus.State(1))

	rest := make([]byte, 64)
	_, _ = s.port.Read(rest)
	s.Equal(NodeIdle, s.bus.State(1))
	s.Zero(s.port.Buffered())
}

func (s *BusTestSuite) TestIOBoardCommands() {
	resp := s.roundTrip(NewFrame(1, CmdUpdateStatus, 1, nil))
	s.Equal([]byte{StatusOK}, resp[0].Payload)
	s.Equal(1, s.board.updates)

	resp = s.roundTrip(NewFrame(1, CmdGetStatus, 2, nil))
	s.Equal(s.board.buf, resp[0].Payload)

	resp = s.roundTrip(NewFrame(1, CmdSetOutput, 3, []byte{4, 127}))
	s.Equal([]byte{StatusOK}, resp[0].Payload)
	s.Equal(byte(127), s.board.outputs[4])

	resp = s.roundTrip(NewFrame(1, CmdSetOutput, 4, []byte{4}))
	s.Equal([]byte{StatusInvalidParam}, resp[0].Payload)

	word := make([]byte, 4)
	binary.BigEndian.PutUint32(word, 0x8001)
	resp = s.roundTrip(NewFrame(1, CmdSetOutputWord, 5, word))
	s.Equal([]byte{StatusOK}, resp[0].Payload)
	s.Equal(uint32(0x8001), s.board.word)

	resp = s.roundTrip(NewFrame(1, CmdReset, 6, nil))
	s.Equal([]byte{StatusOK}, resp[0].Payload)

	resp = s.roundTrip(NewFrame(1, CmdStartUp, 7, nil))
	s.Equal([]byte{StatusOK}, resp[0].Payload)
	s.True(s.bus.Info()[0].Started)
}

func (s *BusTestSuite) TestCardReaderPoll() {
	resp := s.roundTrip(NewFrame(2, CmdKeypadPoll, 1, nil))
	s.Require().Len(resp, 1)
	s.Equal(StatusOK, resp[0].Payload[0])
	s.Equal(uint16(hardware.Keypad1), binary.BigEndian.Uint16(resp[0].Payload[1:3]))
	s.Equal(byte(0), resp[0].Payload[3])

	node := NewCardReaderNode("ICCA", 0, fakeKeypad{})
	node.InsertCard([8]byte{0xE0, 0x04, 1, 2, 3, 4, 5, 6})
	p, ok := node.Handle(NewFrame(1, CmdSlotState, 0, []byte{1}))
	s.True(ok)
	s.Equal([]byte{StatusOK}, p)
	p, _ = node.Handle(NewFrame(1, CmdKeypadPoll, 0, nil))
	s.Equal(byte(1), p[3])
	s.Equal(byte(0xE0), p[4])
}

func (s *BusTestSuite) TestPortSetLookup() {
	set := NewPortSet()
	set.Add("COM1", s.bus)
	set.Add("com3", s.bus)

	_, ok := set.Get(`\\.\COM3`)
	s.True(ok)
	_, err := set.Open("COM9")
	s.Error(err)
	s.Equal([]string{"COM1", "COM3"}, set.Names())
}

func (s *BusTestSuite) TestClosedPort() {
	s.Require().NoError(s.port.Close())
	_, err := s.port.Write([]byte{FrameSOF})
	s.Error(err)
	s.port.Reopen()
	_, err = s.port.Write([]byte{FrameSOF})
	s.NoError(err)
}

func (s *BusTestSuite) TestTrafficHook() {
	var dirs []Direction
	s.port.SetHook(func(_ string, dir Direction, _ *Frame, _ []byte) {
		dirs = append(dirs, dir)
	})
	s.roundTrip(NewFrame(1, CmdKeepAlive, 1, nil))
	s.Equal([]Direction{DirectionRX, DirectionTX}, dirs)
}

func TestBusSuite(t *testing.T) {
	suite.Run(t, new(BusTestSuite))
}

func TestStatusSegmentation(t *testing.T) {
	board := newFakeBoard(300)
	node := NewIOBoardNode("big", "KFCA", board)

	first, ok := node.Handle(NewFrame(1, CmdGetStatus, 0, []byte{0}))
	require.True(t, ok)
	require.Len(t, first, MaxPayload)
	assert.Equal(t, byte(0), first[0])
	assert.Equal(t, board.buf[:segmentSize], first[1:])

	second, _ := node.Handle(NewFrame(1, CmdGetStatus, 0, []byte{1}))
	assert.Equal(t, board.buf[segmentSize:], second[1:])

	empty, _ := node.Handle(NewFrame(1, CmdGetStatus, 0, []byte{5}))
	assert.Equal(t, []byte{5}, empty)
}

// loopDevice 模拟串口对端：预置请求字节，收集响应
type loopDevice struct {
	mu     sync.Mutex
	in     []byte
	out    bytes.Buffer
	closed bool
}

func (d *loopDevice) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := copy(p, d.in)
	d.in = d.in[n:]
	return n, nil
}

func (d *loopDevice) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.out.Write(p)
}

func (d *loopDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *loopDevice) Flush() error { return nil }

func (d *loopDevice) written() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.out.Bytes()...)
}

func TestSerialServerBridgesFrames(t *testing.T) {
	bus := NewBus(NewIOBoardNode("KFCA", "KFCA", newFakeBoard(8)))
	port := NewPort("COM2", bus)

	dev := &loopDevice{in: mustEncode(t, NewFrame(1, CmdKeepAlive, 9, nil))}
	srv := NewSerialServer(port, &hardware.SerialConfig{Device: "/dev/null-modem"}, func(*hardware.SerialConfig) (hardware.SerialPort, error) {
		return dev, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	require.Eventually(t, func() bool { return len(dev.written()) > 0 }, time.Second, 5*time.Millisecond)
	assert.True(t, srv.Connected())

	var d Decoder
	frames := d.Feed(dev.written())
	require.Len(t, frames, 1)
	assert.Equal(t, byte(9), frames[0].Seq)
	assert.Equal(t, []byte{StatusOK}, frames[0].Payload)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("桥接服务应在取消后退出")
	}
}

func TestSerialServerStopsOnConfigError(t *testing.T) {
	port := NewPort("COM3", NewBus())
	srv := NewSerialServer(port, &hardware.SerialConfig{RetryTimes: 3, RetryInterval: time.Millisecond}, nil)

	done := make(chan error, 1)
	go func() { done <- srv.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.True(t, apperrors.Is(err, apperrors.ErrConfigMissing))
	case <-time.After(time.Second):
		t.Fatal("配置错误时桥接服务应直接退出")
	}
	assert.False(t, srv.Connected())
}
