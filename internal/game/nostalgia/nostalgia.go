// Package nostalgia 28键力度键盘机型
//
// 状态缓冲区 277 字节：
//
//	[0]      记录数，固定为1
//	[1..2]   保留，为0
//	[3..16]  28个键的力度，每字节两个键（Key 1 在 byte 3 的高4位，Key 2 在低4位……）
//	[17]     bit0 Test, bit1 Service, bit2 投币器
//	[18..19] 投币计数（大端）
package nostalgia

import (
	"context"
	"encoding/binary"

	"github.com/wfunc/arcade-shim/internal/acio"
	"github.com/wfunc/arcade-shim/internal/game"
	"github.com/wfunc/arcade-shim/internal/hardware"
	"github.com/wfunc/arcade-shim/internal/input"
	"github.com/wfunc/arcade-shim/internal/logger"
	"github.com/wfunc/arcade-shim/internal/tables"
	"go.uber.org/zap"
)

const (
	// Name 游戏名
	Name = "nostalgia"
	// BufferSize 状态缓冲区字节数
	BufferSize = 277
	// Keys 力度键数量
	Keys = 28
)

const (
	offsetRecords = 0
	offsetKeys    = 3
	offsetFlags   = offsetKeys + Keys/2
	offsetCoins   = offsetFlags + 1
)

// 按键表索引（Key 1..Key 28 占 0..27）
const (
	ButtonService = Keys + iota
	ButtonTest
	ButtonCoinMech
)

// 灯光表索引（Key 1 LED..Key 28 LED 占 0..27）
const (
	LightTopRed = Keys + iota
	LightTopGreen
	LightTopBlue
)

// lampBits 输出字的位 -> 灯光索引
var lampBits = []int{LightTopRed, LightTopGreen, LightTopBlue}

var layout = &tables.Layout{
	Game:    Name,
	Buttons: append(game.Numbered("Key ", Keys, ""), "Service", "Test", "Coin Mech"),
	Analogs: game.Numbered("Key ", Keys, ""),
	Lights:  append(game.Numbered("Key ", Keys, " LED"), "Top Red", "Top Green", "Top Blue"),
}

// Definition 游戏定义
type Definition struct{}

// New 创建游戏定义
func New() *Definition {
	return &Definition{}
}

// Name 实现 game.Definition
func (*Definition) Name() string { return Name }

// Layout 实现 game.Definition
func (*Definition) Layout() *tables.Layout { return layout }

// Build 实现 game.Definition
func (d *Definition) Build(ctx context.Context, env *game.Env) (*game.Instance, error) {
	set := env.Tables.Load(ctx, layout)
	coins := hardware.NewCoins()
	keypad := hardware.NewKeypad()
	board := NewBoard(set, env.Sink, coins)

	env.Exports.Provide("nost_control_reset", board.ControlReset)
	env.Exports.Provide("nost_update_control_status_buffer", board.UpdateControlStatusBuffer)
	env.Exports.Provide("nost_get_control_status_buffer", board.GetControlStatusBuffer)
	env.Exports.Provide("nost_control_led_bright", board.ControlLEDBright)

	reader := acio.NewCardReaderNode("ICCA", 0, keypad)
	return &game.Instance{
		Name:   Name,
		Set:    set,
		Boards: []game.Board{board},
		Buses: map[string]*acio.Bus{
			"COM1": acio.NewBus(acio.NewIOBoardNode("NOST", "NOST", board), reader),
		},
		Coins:  coins,
		Keypad: keypad,
		Cards:  []*acio.CardReaderNode{reader},
	}, nil
}

// Board 键盘板卡
type Board struct {
	game.Base
	set   *tables.Set
	sink  input.LightSink
	coins *hardware.Coins
}

// NewBoard 创建键盘板卡
func NewBoard(set *tables.Set, sink input.LightSink, coins *hardware.Coins) *Board {
	b := &Board{set: set, sink: sink, coins: coins}
	b.Base = game.NewBase(Name, BufferSize, b.pack)
	return b
}

func (b *Board) pack(buf []byte) {
	buf[offsetRecords] = 1

	for i := 0; i < Keys; i += 2 {
		hi := hardware.ControlValue(b.set.Button(i), b.set.Analog(i))
		lo := hardware.ControlValue(b.set.Button(i+1), b.set.Analog(i+1))
		buf[offsetKeys+i/2] = hardware.PackNibblePair(hi, lo)
	}

	coin := input.ButtonState(b.set.Button(ButtonCoinMech))
	b.coins.Sample(coin)

	hardware.SetBit(buf, offsetFlags, 0, input.ButtonState(b.set.Button(ButtonTest)))
	hardware.SetBit(buf, offsetFlags, 1, input.ButtonState(b.set.Button(ButtonService)))
	hardware.SetBit(buf, offsetFlags, 2, coin)
	binary.BigEndian.PutUint16(buf[offsetCoins:], uint16(b.coins.Get()))
}

// ControlReset 熄灭全部灯光，返回0
func (b *Board) ControlReset() int {
	for _, l := range b.set.Lights {
		input.WriteLight(b.sink, l, 0)
	}
	return 0
}

// ControlLEDBright 设置键灯亮度（0-127），索引越界时什么都不写，仍返回0
func (b *Board) ControlLEDBright(index uint32, value uint8) int {
	if index >= Keys {
		logger.WithModule("game").Debug("键灯索引越界",
			zap.String("game", Name),
			zap.Uint32("index", index))
		return 0
	}
	input.WriteLight(b.sink, b.set.Light(int(index)), hardware.LEDBright(value))
	return 0
}

// SetOutput 单路输出：0..27 为键灯（0-127），之后为顶灯（0-255）
func (b *Board) SetOutput(index int, value byte) int {
	switch {
	case index >= 0 && index < Keys:
		return b.ControlLEDBright(uint32(index), value)
	case index >= LightTopRed && index <= LightTopBlue:
		input.WriteLight(b.sink, b.set.Light(index), float64(value)/255)
		return 0
	default:
		return int(acio.StatusInvalidParam)
	}
}

// SetOutputWord 顶灯开关位图，最高位是投币拦截器
func (b *Board) SetOutputWord(word uint32) {
	hardware.WriteOutputBits(b.sink, word, lampBits, b.set.Lights)
	b.coins.ApplyOutputWord(word)
}
