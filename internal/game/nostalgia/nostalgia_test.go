package nostalgia

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/arcade-shim/internal/acio"
	"github.com/wfunc/arcade-shim/internal/game"
	"github.com/wfunc/arcade-shim/internal/input"
	"github.com/wfunc/arcade-shim/internal/intercept"
	"github.com/wfunc/arcade-shim/internal/tables"
)

type fixture struct {
	virtual *input.VirtualBackend
	sampler *input.Sampler
	inst    *game.Instance
	board   *Board
	exports *intercept.ExportTable
}

func newFixture(t *testing.T, bind func(store *tables.MemoryStore)) *fixture {
	t.Helper()
	store := tables.NewMemoryStore()
	if bind != nil {
		bind(store)
	}

	vb := input.NewVirtualBackend()
	mux := input.NewMux()
	mux.Register(input.DeviceVirtual, vb)

	env := &game.Env{
		Tables:  tables.NewRegistry(store),
		Sink:    mux,
		Exports: intercept.NewExportTable("nostalgia"),
	}
	inst, err := game.NewRegistry(New()).Build(context.Background(), Name, env)
	require.NoError(t, err)

	s := input.NewSampler(mux, 0)
	s.Add(env.Tables.Controls())

	board, ok := inst.Boards[0].(*Board)
	require.True(t, ok)
	return &fixture{virtual: vb, sampler: s, inst: inst, board: board, exports: env.Exports}
}

func bindKey(name string, code uint16) *input.Button {
	b := input.NewButton(name)
	b.Device = input.DeviceVirtual
	b.KeyCode = code
	return b
}

func (f *fixture) poll() []byte {
	f.sampler.SampleOnce(time.Now())
	f.board.UpdateControlStatusBuffer()
	out := make([]byte, BufferSize)
	f.board.GetControlStatusBuffer(out)
	return out
}

func TestKey1PressSetsHighNibble(t *testing.T) {
	f := newFixture(t, func(s *tables.MemoryStore) {
		s.AddButton(Name, bindKey("Key 1", 0x41))
	})

	f.virtual.Press(0x41, 1)
	buf := f.poll()

	assert.Equal(t, byte(0xF0), buf[3])
	assert.Equal(t, byte(1), buf[0])
	assert.Zero(t, buf[1])
	assert.Zero(t, buf[2])
}

func TestKeyVelocityAndAnalog(t *testing.T) {
	f := newFixture(t, func(s *tables.MemoryStore) {
		s.AddButton(Name, bindKey("Key 2", 2))
		a := input.NewAnalog("Key 4")
		a.Device = input.DeviceVirtual
		a.Index = 4
		s.AddAnalog(Name, a)
	})

	f.virtual.Press(2, 0.5)
	f.virtual.SetAnalog(4, 1)
	buf := f.poll()

	assert.Equal(t, byte(0x07), buf[3], "Key 2 = 0.5*15.999 = 7")
	assert.Equal(t, byte(0x0F), buf[4], "Key 4 来自模拟量")
}

func TestFlagsAndCoins(t *testing.T) {
	f := newFixture(t, func(s *tables.MemoryStore) {
		s.AddButton(Name, bindKey("Test", 100))
		s.AddButton(Name, bindKey("Coin Mech", 101))
	})

	f.virtual.Press(100, 1)
	f.virtual.Press(101, 1)
	buf := f.poll()
	assert.Equal(t, byte(0b101), buf[offsetFlags])
	assert.Equal(t, []byte{0, 1}, buf[offsetCoins:offsetCoins+2])

	// 按住不放不会重复投币
	f.poll()
	assert.Equal(t, 1, f.inst.Coins.Get())

	f.virtual.Press(101, 0)
	f.poll()
	f.virtual.Press(101, 1)
	buf = f.poll()
	assert.Equal(t, []byte{0, 2}, buf[offsetCoins:offsetCoins+2])
}

func TestFreezeKeepsSnapshot(t *testing.T) {
	f := newFixture(t, func(s *tables.MemoryStore) {
		s.AddButton(Name, bindKey("Key 3", 3))
	})

	before := f.poll()
	f.board.SetFreeze(true)
	f.virtual.Press(3, 1)

	for i := 0; i < 3; i++ {
		f.sampler.SampleOnce(time.Now())
		assert.True(t, f.board.UpdateControlStatusBuffer(), "冻结时仍报告成功")
		assert.Equal(t, before, f.board.Bytes())
	}

	f.board.SetFreeze(false)
	after := f.poll()
	assert.Equal(t, byte(0xF0), after[4])
	assert.Equal(t, byte(1), after[0])
}

func TestControlLEDBright(t *testing.T) {
	f := newFixture(t, func(s *tables.MemoryStore) {
		l := input.NewLight("Key 1 LED")
		l.Device = input.DeviceVirtual
		l.Index = 7
		s.AddLight(Name, l)
	})

	assert.Equal(t, 0, f.board.ControlLEDBright(0, 127))
	v, ok := f.virtual.Light(7)
	require.True(t, ok)
	assert.InDelta(t, 1.0, v, 1e-9)

	f.board.ControlLEDBright(0, 255)
	v, _ = f.virtual.Light(7)
	assert.InDelta(t, 1.0, v, 1e-9, "超过127截断为满亮度")

	f.board.ControlLEDBright(0, 0)
	before := make([]float64, len(f.inst.Set.Lights))
	for i, l := range f.inst.Set.Lights {
		before[i] = l.Value()
	}

	assert.Equal(t, 0, f.board.ControlLEDBright(Keys, 100))
	assert.Equal(t, 0, f.board.ControlLEDBright(1<<31, 100))
	for i, l := range f.inst.Set.Lights {
		assert.Equal(t, before[i], l.Value(), "越界不写任何灯")
	}
}

func TestExportsAndBus(t *testing.T) {
	f := newFixture(t, nil)

	assert.Equal(t, []string{
		"nost_control_led_bright",
		"nost_control_reset",
		"nost_get_control_status_buffer",
		"nost_update_control_status_buffer",
	}, f.exports.Names())

	update, ok := intercept.Lookup[func() bool](f.exports, "nost_update_control_status_buffer")
	require.True(t, ok)
	assert.True(t, update())

	get, ok := intercept.Lookup[func([]byte) int](f.exports, "nost_get_control_status_buffer")
	require.True(t, ok)
	out := make([]byte, BufferSize)
	assert.Equal(t, BufferSize, get(out))
	assert.Equal(t, byte(1), out[0])

	bus := f.inst.Buses["COM1"]
	require.NotNil(t, bus)
	assert.Equal(t, 2, bus.Nodes())

	resp := bus.Process(acio.NewFrame(1, acio.CmdGetStatus, 0, []byte{0}))
	require.NotNil(t, resp)
	assert.Len(t, resp.Payload, acio.MaxPayload, "277 字节分两段")
}

func TestSetOutput(t *testing.T) {
	f := newFixture(t, func(s *tables.MemoryStore) {
		l := input.NewLight("Top Green")
		l.Device = input.DeviceVirtual
		l.Index = 3
		s.AddLight(Name, l)
	})

	assert.Equal(t, 0, f.board.SetOutput(LightTopGreen, 255))
	v, _ := f.virtual.Light(3)
	assert.InDelta(t, 1.0, v, 1e-9)

	f.board.SetOutputWord(0)
	v, _ = f.virtual.Light(3)
	assert.Zero(t, v)

	assert.Equal(t, int(acio.StatusInvalidParam), f.board.SetOutput(200, 1))
}
