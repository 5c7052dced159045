package iidx

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/arcade-shim/internal/acio"
	"github.com/wfunc/arcade-shim/internal/game"
	"github.com/wfunc/arcade-shim/internal/hardware"
	"github.com/wfunc/arcade-shim/internal/input"
	"github.com/wfunc/arcade-shim/internal/tables"
)

type fixture struct {
	virtual *input.VirtualBackend
	sampler *input.Sampler
	inst    *game.Instance
	board   *Board
}

func newFixture(t *testing.T, store *tables.MemoryStore) *fixture {
	t.Helper()
	vb := input.NewVirtualBackend()
	mux := input.NewMux()
	mux.Register(input.DeviceVirtual, vb)

	env := &game.Env{Tables: tables.NewRegistry(store), Sink: mux}
	inst, err := game.NewRegistry(New()).Build(context.Background(), Name, env)
	require.NoError(t, err)

	s := input.NewSampler(mux, 0)
	s.Add(env.Tables.Controls())
	return &fixture{virtual: vb, sampler: s, inst: inst, board: inst.Boards[0].(*Board)}
}

func (f *fixture) poll() []byte {
	f.sampler.SampleOnce(time.Now())
	f.board.UpdateControlStatusBuffer()
	return f.board.Bytes()
}

func bind(store *tables.MemoryStore, name string, code uint16) {
	b := input.NewButton(name)
	b.Device = input.DeviceVirtual
	b.KeyCode = code
	store.AddButton(Name, b)
}

func TestKeyBits(t *testing.T) {
	store := tables.NewMemoryStore()
	bind(store, "P1 1", 1)
	bind(store, "P1 7", 7)
	bind(store, "P1 Start", 8)
	bind(store, "P2 3", 13)
	bind(store, "VEFX", 20)
	bind(store, "Service", 21)
	f := newFixture(t, store)

	for _, code := range []uint16{1, 7, 8, 13, 20, 21} {
		f.virtual.Press(code, 1)
	}
	buf := f.poll()

	require.Len(t, buf, BufferSize)
	assert.Equal(t, byte(1), buf[0])
	assert.Equal(t, byte(0b1100_0001), buf[offsetP1])
	assert.Equal(t, byte(0b0000_0100), buf[offsetP2])
	assert.Equal(t, byte(0b0000_1010), buf[offsetPanel])
}

func TestTurntable(t *testing.T) {
	store := tables.NewMemoryStore()
	bind(store, "P1 TT+", 30)
	bind(store, "P1 TT-", 31)
	tt := input.NewAnalog("Turntable P2")
	tt.Device = input.DeviceVirtual
	tt.Index = 0
	store.AddAnalog(Name, tt)
	store.SetOption(Name, OptionTTButtonSpeed, "100")
	f := newFixture(t, store)

	f.virtual.Press(30, 1)
	assert.Equal(t, byte(100), f.poll()[offsetTT])
	assert.Equal(t, byte(200), f.poll()[offsetTT])
	assert.Equal(t, byte(44), f.poll()[offsetTT], "8位回绕")

	f.virtual.Press(30, 0)
	f.virtual.Press(31, 1)
	assert.Equal(t, byte(200), f.poll()[offsetTT])

	f.virtual.SetAnalog(0, 1)
	assert.Equal(t, byte(255), f.poll()[offsetTT+1])
}

func TestTurntableSpeedClamped(t *testing.T) {
	for value, want := range map[string]byte{"1000": 255, "-7": 0, "255": 255} {
		store := tables.NewMemoryStore()
		bind(store, "P1 TT+", 30)
		store.SetOption(Name, OptionTTButtonSpeed, value)
		f := newFixture(t, store)

		f.virtual.Press(30, 1)
		assert.Equal(t, want, f.poll()[offsetTT], value)
	}
}

func TestSlidersAndCoins(t *testing.T) {
	store := tables.NewMemoryStore()
	for i, name := range []string{"VEFX", "Hi-EQ", "Play Volume"} {
		a := input.NewAnalog(name)
		a.Device = input.DeviceVirtual
		a.Index = i
		store.AddAnalog(Name, a)
	}
	bind(store, "Coin Mech", 40)
	f := newFixture(t, store)

	f.virtual.SetAnalog(0, 1)
	f.virtual.SetAnalog(1, 0.5)
	f.virtual.SetAnalog(2, 1)
	f.virtual.Press(40, 1)
	buf := f.poll()

	assert.Equal(t, byte(0xF0), buf[offsetSliders], "VEFX | Low-EQ")
	assert.Equal(t, byte(0x70), buf[offsetSliders+1], "Hi-EQ | Filter")
	assert.Equal(t, byte(0xF0), buf[offsetSliders+2], "Play Volume | 空")
	assert.Equal(t, []byte{0, 1}, buf[offsetCoins:offsetCoins+2])
	assert.True(t, buf[offsetPanel]&0x10 != 0)
}

func TestLampWordAndTicker(t *testing.T) {
	store := tables.NewMemoryStore()
	l := input.NewLight("Neon Lamp")
	l.Device = input.DeviceVirtual
	l.Index = 5
	store.AddLight(Name, l)
	f := newFixture(t, store)

	f.board.SetOutputWord(1 << LightNeon)
	v, ok := f.virtual.Light(5)
	require.True(t, ok)
	assert.Equal(t, 1.0, v)
	assert.Equal(t, 1.0, f.inst.Set.Light(LightNeon).Value())
	assert.Zero(t, f.inst.Set.Light(0).Value())
	assert.False(t, f.inst.Coins.Blocked())

	f.board.SetOutputWord(1 << hardware.CoinBlockerBit)
	assert.True(t, f.inst.Coins.Blocked())
	assert.Zero(t, f.inst.Set.Light(LightNeon).Value())

	bus := f.inst.Buses["COM1"]
	resp := bus.Process(acio.NewFrame(1, acio.CmdSetTicker, 0, []byte("WELCOME TO BEATMANIA")))
	assert.Equal(t, []byte{acio.StatusOK}, resp.Payload)
	assert.Equal(t, "WELCOME T", f.inst.Ticker.Get())

	// 外部接管后游戏写入被忽略
	f.inst.Ticker.Set("SCRIPT")
	bus.Process(acio.NewFrame(1, acio.CmdSetTicker, 1, []byte("GAME")))
	assert.Equal(t, "SCRIPT", f.inst.Ticker.Get())
}

func TestCardReaders(t *testing.T) {
	f := newFixture(t, tables.NewMemoryStore())
	assert.Equal(t, 3, f.inst.Buses["COM1"].Nodes())

	store := tables.NewMemoryStore()
	store.SetOption(Name, OptionDisableCardReader, "true")
	f = newFixture(t, store)
	assert.Equal(t, 1, f.inst.Buses["COM1"].Nodes())
}
