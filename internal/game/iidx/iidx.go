// Package iidx 7键+转盘机型
//
// 状态缓冲区 16 字节：
//
//	[0]     记录数，固定为1
//	[1]     P1 键1-7 (bit0-6)，P1 Start (bit7)
//	[2]     P2 键1-7 (bit0-6)，P2 Start (bit7)
//	[3]     bit0 EFFECT, bit1 VEFX, bit2 Test, bit3 Service, bit4 投币器
//	[4..5]  P1/P2 转盘位置（8位，回绕）
//	[6..8]  推子，每字节两个（VEFX, Low-EQ, Hi-EQ, Filter, Play Volume）
//	[9..10] 投币计数（大端）
package iidx

import (
	"context"
	"encoding/binary"

	"github.com/wfunc/arcade-shim/internal/acio"
	"github.com/wfunc/arcade-shim/internal/game"
	"github.com/wfunc/arcade-shim/internal/hardware"
	"github.com/wfunc/arcade-shim/internal/input"
	"github.com/wfunc/arcade-shim/internal/tables"
)

const (
	// Name 游戏名
	Name = "iidx"
	// BufferSize 状态缓冲区字节数
	BufferSize = 16
	// TickerWidth LED字幕位数
	TickerWidth = 9
)

const (
	offsetP1      = 1
	offsetP2      = 2
	offsetPanel   = 3
	offsetTT      = 4
	offsetSliders = 6
	offsetCoins   = 9
)

// 按键表索引
const (
	ButtonP1Key1 = iota
	ButtonP1Key2
	ButtonP1Key3
	ButtonP1Key4
	ButtonP1Key5
	ButtonP1Key6
	ButtonP1Key7
	ButtonP2Key1
	ButtonP2Key2
	ButtonP2Key3
	ButtonP2Key4
	ButtonP2Key5
	ButtonP2Key6
	ButtonP2Key7
	ButtonP1Start
	ButtonP2Start
	ButtonEffect
	ButtonVEFX
	ButtonTest
	ButtonService
	ButtonCoinMech
	ButtonP1TTPlus
	ButtonP1TTMinus
	ButtonP2TTPlus
	ButtonP2TTMinus
)

// 模拟量表索引
const (
	AnalogTTP1 = iota
	AnalogTTP2
	AnalogVEFX
	AnalogLowEQ
	AnalogHiEQ
	AnalogFilter
	AnalogPlayVolume
)

// 灯光表索引（P1 1..7, P2 1..7 占 0..13）
const (
	LightP1Start = 14 + iota
	LightP2Start
	LightVEFX
	LightEffect
	LightSpot1
	LightSpot2
	LightSpot3
	LightSpot4
	LightNeon
)

const (
	// OptionTTButtonSpeed 转盘按键每次刷新移动的步数
	OptionTTButtonSpeed = "Turntable Button Speed"
	// OptionDisableCardReader 不挂载读卡器节点
	OptionDisableCardReader = "Disable Card Reader"
)

// lampBits 输出字的位 -> 灯光索引，位序与灯光表一致
var lampBits = func() []int {
	bits := make([]int, LightNeon+1)
	for i := range bits {
		bits[i] = i
	}
	return bits
}()

var layout = &tables.Layout{
	Game: Name,
	Buttons: append(append(game.Numbered("P1 ", 7, ""), game.Numbered("P2 ", 7, "")...),
		"P1 Start", "P2 Start", "EFFECT", "VEFX", "Test", "Service", "Coin Mech",
		"P1 TT+", "P1 TT-", "P2 TT+", "P2 TT-"),
	Analogs: []string{"Turntable P1", "Turntable P2", "VEFX", "Low-EQ", "Hi-EQ", "Filter", "Play Volume"},
	Lights: append(append(game.Numbered("P1 ", 7, ""), game.Numbered("P2 ", 7, "")...),
		"P1 Start", "P2 Start", "VEFX", "Effect", "Spot Light 1", "Spot Light 2", "Spot Light 3", "Spot Light 4", "Neon Lamp"),
	Options: []input.OptionDefinition{
		{Name: OptionTTButtonSpeed, Title: "转盘按键速度", Type: input.OptionInteger, Default: "3"},
		{Name: OptionDisableCardReader, Title: "禁用读卡器", Type: input.OptionBool, Default: "false"},
	},
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
	ticker := hardware.NewTicker(TickerWidth)
	board := NewBoard(set, env.Sink, coins, ticker)

	bus := acio.NewBus(acio.NewIOBoardNode("BIO2", "BI2A", board))
	var cards []*acio.CardReaderNode
	if opt := set.Option(OptionDisableCardReader); opt == nil || !opt.ValueBool() {
		cards = []*acio.CardReaderNode{
			acio.NewCardReaderNode("ICCA P1", 0, keypad),
			acio.NewCardReaderNode("ICCA P2", 1, keypad),
		}
		for _, c := range cards {
			bus.Attach(c)
		}
	}

	return &game.Instance{
		Name:   Name,
		Set:    set,
		Boards: []game.Board{board},
		Buses:  map[string]*acio.Bus{"COM1": bus},
		Ticker: ticker,
		Coins:  coins,
		Keypad: keypad,
		Cards:  cards,
	}, nil
}

// Board IO板
type Board struct {
	game.Base
	set    *tables.Set
	sink   input.LightSink
	coins  *hardware.Coins
	ticker *hardware.Ticker

	ttSpeed int
	// 转盘按键累计位置，只在 pack 内（缓冲区锁内）修改
	ttPos [2]byte
}

// NewBoard 创建IO板
func NewBoard(set *tables.Set, sink input.LightSink, coins *hardware.Coins, ticker *hardware.Ticker) *Board {
	b := &Board{set: set, sink: sink, coins: coins, ticker: ticker, ttSpeed: 3}
	if opt := set.Option(OptionTTButtonSpeed); opt != nil {
		// 转盘按键每次采样的步进是一个字节
		b.ttSpeed = min(max(opt.ValueInt(), 0), 255)
	}
	b.Base = game.NewBase(Name, BufferSize, b.pack)
	return b
}

func (b *Board) button(i int) bool {
	return input.ButtonState(b.set.Button(i))
}

func (b *Board) pack(buf []byte) {
	buf[0] = 1

	for i := 0; i < 7; i++ {
		hardware.SetBit(buf, offsetP1, uint(i), b.button(ButtonP1Key1+i))
		hardware.SetBit(buf, offsetP2, uint(i), b.button(ButtonP2Key1+i))
	}
	hardware.SetBit(buf, offsetP1, 7, b.button(ButtonP1Start))
	hardware.SetBit(buf, offsetP2, 7, b.button(ButtonP2Start))

	coin := b.button(ButtonCoinMech)
	b.coins.Sample(coin)
	hardware.SetBit(buf, offsetPanel, 0, b.button(ButtonEffect))
	hardware.SetBit(buf, offsetPanel, 1, b.button(ButtonVEFX))
	hardware.SetBit(buf, offsetPanel, 2, b.button(ButtonTest))
	hardware.SetBit(buf, offsetPanel, 3, b.button(ButtonService))
	hardware.SetBit(buf, offsetPanel, 4, coin)

	buf[offsetTT] = b.turntable(0, AnalogTTP1, ButtonP1TTPlus, ButtonP1TTMinus)
	buf[offsetTT+1] = b.turntable(1, AnalogTTP2, ButtonP2TTPlus, ButtonP2TTMinus)

	sliders := []float64{
		input.AnalogState(b.set.Analog(AnalogVEFX)),
		input.AnalogState(b.set.Analog(AnalogLowEQ)),
		input.AnalogState(b.set.Analog(AnalogHiEQ)),
		input.AnalogState(b.set.Analog(AnalogFilter)),
		input.AnalogState(b.set.Analog(AnalogPlayVolume)),
		0,
	}
	for i := 0; i < len(sliders); i += 2 {
		buf[offsetSliders+i/2] = hardware.PackNibblePair(sliders[i], sliders[i+1])
	}

	binary.BigEndian.PutUint16(buf[offsetCoins:], uint16(b.coins.Get()))
}

// turntable 模拟量位置加上转盘按键的累计偏移，8位回绕
func (b *Board) turntable(player, analog, plus, minus int) byte {
	step := byte(b.ttSpeed)
	if b.button(plus) {
		b.ttPos[player] += step
	}
	if b.button(minus) {
		b.ttPos[player] -= step
	}
	pos := b.ttPos[player]
	if a := b.set.Analog(analog); a.IsSet() {
		pos += hardware.ScaleU8(a.State())
	}
	return pos
}

// ControlReset 熄灭全部灯光
func (b *Board) ControlReset() int {
	for _, l := range b.set.Lights {
		input.WriteLight(b.sink, l, 0)
	}
	return 0
}

// SetOutput 单路灯光（0-255）
func (b *Board) SetOutput(index int, value byte) int {
	if index < 0 || index >= len(b.set.Lights) {
		return int(acio.StatusInvalidParam)
	}
	input.WriteLight(b.sink, b.set.Light(index), float64(value)/255)
	return 0
}

// SetOutputWord 灯光位图，bit i 对应灯光表第 i 项；最高位是投币拦截器
func (b *Board) SetOutputWord(word uint32) {
	hardware.WriteOutputBits(b.sink, word, lampBits, b.set.Lights)
	b.coins.ApplyOutputWord(word)
}

// HandleCommand 实现 acio.CommandHandler：LED字幕
func (b *Board) HandleCommand(code uint16, payload []byte) ([]byte, bool) {
	if code != acio.CmdSetTicker {
		return nil, false
	}
	b.ticker.Write(string(payload))
	return []byte{acio.StatusOK}, true
}
