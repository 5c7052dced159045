// Package gitadora 吉他机型（双人）
//
// 状态缓冲区 24 字节：
//
//	[0]       记录数，固定为1
//	[1]       P1 R,G,B,Y,P (bit0-4)，拨片上 bit5，拨片下 bit6，Start bit7
//	[2]       P2 同上
//	[3]       bit0 Test, bit1 Service, bit2 投币器
//	[4..9]    P1 摇杆 X/Y/Z，有符号16位（大端），0 为静止
//	[10..15]  P2 摇杆 X/Y/Z
//	[16..17]  P1/P2 旋钮（8位）
//	[18..19]  投币计数（大端）
package gitadora

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
	Name = "gitadora"
	// BufferSize 状态缓冲区字节数
	BufferSize = 24
)

const (
	offsetPanel = 3
	offsetWail  = 4
	offsetKnob  = 16
	offsetCoins = 18
)

// 每个玩家的按键（P1 占 0..8，P2 占 9..17）
const (
	ButtonRed = iota
	ButtonGreen
	ButtonBlue
	ButtonYellow
	ButtonPurple
	ButtonPickUp
	ButtonPickDown
	ButtonStart
	ButtonWailUp
	playerButtons
)

// 公共按键
const (
	ButtonTest = 2*playerButtons + iota
	ButtonService
	ButtonCoinMech
)

// 每个玩家的模拟量（P1 占 0..3，P2 占 4..7）
const (
	AnalogWailX = iota
	AnalogWailY
	AnalogWailZ
	AnalogKnob
	playerAnalogs
)

// OptionDisableP2 P2 输入全部置空
const OptionDisableP2 = "Disable P2"

var playerButtonNames = []string{"R", "G", "B", "Y", "P", "Pick Up", "Pick Down", "Start", "Wail Up"}

var playerAnalogNames = []string{"Wail X", "Wail Y", "Wail Z", "Knob"}

func prefixed(prefix string, names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = prefix + n
	}
	return out
}

var layout = &tables.Layout{
	Game: Name,
	Buttons: append(append(prefixed("P1 ", playerButtonNames), prefixed("P2 ", playerButtonNames)...),
		"Test", "Service", "Coin Mech"),
	Analogs: append(prefixed("P1 ", playerAnalogNames), prefixed("P2 ", playerAnalogNames)...),
	Lights: []string{
		"P1 Lamp R", "P1 Lamp G", "P1 Lamp B",
		"P2 Lamp R", "P2 Lamp G", "P2 Lamp B",
		"P1 Start", "P2 Start", "Spot Left", "Spot Right",
	},
	Options: []input.OptionDefinition{
		{Name: OptionDisableP2, Title: "禁用P2", Type: input.OptionBool, Default: "false"},
	},
}

// lampBits 输出字的位 -> 灯光索引
var lampBits = []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}

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

	cards := []*acio.CardReaderNode{
		acio.NewCardReaderNode("ICCA P1", 0, keypad),
		acio.NewCardReaderNode("ICCA P2", 1, keypad),
	}
	return &game.Instance{
		Name:   Name,
		Set:    set,
		Boards: []game.Board{board},
		Buses: map[string]*acio.Bus{
			"COM1": acio.NewBus(acio.NewIOBoardNode("GDIO", "GDXG", board), cards[0], cards[1]),
		},
		Coins:  coins,
		Keypad: keypad,
		Cards:  cards,
	}, nil
}

// Board 吉他IO板
type Board struct {
	game.Base
	set     *tables.Set
	sink    input.LightSink
	coins   *hardware.Coins
	players int
}

// NewBoard 创建吉他IO板
func NewBoard(set *tables.Set, sink input.LightSink, coins *hardware.Coins) *Board {
	b := &Board{set: set, sink: sink, coins: coins, players: 2}
	if opt := set.Option(OptionDisableP2); opt != nil && opt.ValueBool() {
		b.players = 1
	}
	b.Base = game.NewBase(Name, BufferSize, b.pack)
	return b
}

func (b *Board) pack(buf []byte) {
	buf[0] = 1

	for p := 0; p < 2; p++ {
		base := p * playerButtons
		wail := buf[offsetWail+p*6 : offsetWail+p*6+6]
		if p >= b.players {
			// 禁用的玩家摇杆保持静止
			hardware.PutS16(wail[0:], 0.5)
			hardware.PutS16(wail[2:], 0.5)
			hardware.PutS16(wail[4:], 0.5)
			continue
		}

		for i := ButtonRed; i <= ButtonStart; i++ {
			hardware.SetBit(buf, 1+p, uint(i), input.ButtonState(b.set.Button(base+i)))
		}

		analogs := p * playerAnalogs
		y := centered(b.set.Analog(analogs + AnalogWailY))
		if input.ButtonState(b.set.Button(base + ButtonWailUp)) {
			y = 1
		}
		hardware.PutS16(wail[0:], centered(b.set.Analog(analogs+AnalogWailX)))
		hardware.PutS16(wail[2:], y)
		hardware.PutS16(wail[4:], centered(b.set.Analog(analogs+AnalogWailZ)))
		buf[offsetKnob+p] = hardware.ScaleU8(input.AnalogState(b.set.Analog(analogs + AnalogKnob)))
	}

	coin := input.ButtonState(b.set.Button(ButtonCoinMech))
	b.coins.Sample(coin)
	hardware.SetBit(buf, offsetPanel, 0, input.ButtonState(b.set.Button(ButtonTest)))
	hardware.SetBit(buf, offsetPanel, 1, input.ButtonState(b.set.Button(ButtonService)))
	hardware.SetBit(buf, offsetPanel, 2, coin)
	binary.BigEndian.PutUint16(buf[offsetCoins:], uint16(b.coins.Get()))
}

// centered 摇杆轴未绑定或设备不在线时取中心
func centered(a *input.Analog) float64 {
	if !a.Available() {
		return 0.5
	}
	return a.State()
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

// SetOutputWord 灯光位图，最高位是投币拦截器
func (b *Board) SetOutputWord(word uint32) {
	hardware.WriteOutputBits(b.sink, word, lampBits, b.set.Lights)
	b.coins.ApplyOutputWord(word)
}
