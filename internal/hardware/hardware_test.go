package hardware

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/wfunc/arcade-shim/internal/errors"
	"github.com/wfunc/arcade-shim/internal/input"
)

func TestPackNibbleScalingLaw(t *testing.T) {
	for i := 0; i <= 1000; i++ {
		v := float64(i) / 1000
		got := PackNibble(v)
		assert.Equal(t, byte(v*15.999), got, "v=%v", v)
		assert.LessOrEqual(t, got, byte(15))
	}
	assert.Equal(t, byte(15), PackNibble(1.0))
	assert.Equal(t, byte(0), PackNibble(0))
	// 截断而不是四舍五入
	assert.Equal(t, byte(7), PackNibble(0.5))
	assert.Equal(t, byte(15), PackNibble(2))
	assert.Equal(t, byte(0), PackNibble(-1))
}

func TestPackNibblePair(t *testing.T) {
	assert.Equal(t, byte(0xF0), PackNibblePair(1, 0))
	assert.Equal(t, byte(0x0F), PackNibblePair(0, 1))
	assert.Equal(t, byte(0x77), PackNibblePair(0.5, 0.5))
}

func TestLEDBright(t *testing.T) {
	assert.Equal(t, 0.0, LEDBright(0))
	assert.Equal(t, 1.0, LEDBright(127))
	assert.Equal(t, 1.0, LEDBright(255))
	assert.InDelta(t, 64.0/127.0, LEDBright(64), 1e-12)
}

func TestPutS16(t *testing.T) {
	buf := make([]byte, 2)
	PutS16(buf, 0.5)
	assert.Equal(t, []byte{0, 0}, buf)
	PutS16(buf, 1)
	assert.Equal(t, []byte{0x7F, 0xFF}, buf)
	PutS16(buf, 0)
	assert.Equal(t, []byte{0x80, 0x01}, buf)
}

func TestStatusBoardFreeze(t *testing.T) {
	var calls int
	board := NewStatusBoard("test", 8, func(buf []byte) {
		calls++
		buf[0] = 1
		buf[1] = byte(calls)
	})

	require.True(t, board.Update())
	before := board.Bytes()
	assert.Equal(t, byte(1), before[0])

	board.SetFreeze(true)
	require.True(t, board.Update(), "冻结时仍返回成功")
	assert.Equal(t, before, board.Bytes())
	assert.Equal(t, 1, calls)

	board.SetFreeze(false)
	require.True(t, board.Update())
	assert.Equal(t, byte(2), board.Bytes()[1])
	assert.Equal(t, uint64(2), board.Updates())
}

func TestStatusBoardNoTornReads(t *testing.T) {
	var n byte
	board := NewStatusBoard("torn", 64, func(buf []byte) {
		n++
		for i := range buf {
			buf[i] = n
		}
	})

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				board.Update()
			}
		}
	}()

	out := make([]byte, 64)
	for i := 0; i < 1000; i++ {
		board.Snapshot(out)
		for _, b := range out {
			require.Equal(t, out[0], b, "快照不应包含两次更新的混合数据")
		}
	}
	close(stop)
	wg.Wait()
}

func TestWriteOutputBits(t *testing.T) {
	vb := input.NewVirtualBackend()
	mux := input.NewMux()
	mux.Register(input.DeviceVirtual, vb)

	lights := make([]*input.Light, 3)
	for i := range lights {
		lights[i] = input.NewLight("Lamp")
		lights[i].Device = input.DeviceVirtual
		lights[i].Index = i
	}

	// 第3位映射到越界索引，应被忽略
	WriteOutputBits(mux, 0b1101, []int{0, 1, 2, 7}, lights)

	v, _ := vb.Light(0)
	assert.Equal(t, 1.0, v)
	v, _ = vb.Light(1)
	assert.Equal(t, 0.0, v)
	v, _ = vb.Light(2)
	assert.Equal(t, 1.0, v)
}

func TestControlValueButtonWins(t *testing.T) {
	vb := input.NewVirtualBackend()
	mux := input.NewMux()
	mux.Register(input.DeviceVirtual, vb)

	b := input.NewButton("Key1")
	b.KeyCode = 1
	b.Device = input.DeviceVirtual
	a := input.NewAnalog("Key1")
	a.Device = input.DeviceVirtual
	a.Index = 0

	s := input.NewSampler(mux, 0)
	s.Add([]*input.Button{b}, []*input.Analog{a})

	vb.SetAnalog(0, 0.3)
	s.SampleOnce(time.Now())
	assert.InDelta(t, 0.3, ControlValue(b, a), 1e-9)

	vb.Press(1, 0.9)
	s.SampleOnce(time.Now())
	assert.InDelta(t, 0.9, ControlValue(b, a), 1e-9)

	assert.Zero(t, ControlValue(nil, nil))
}

func TestTickerOverride(t *testing.T) {
	tk := NewTicker(9)
	tk.Write("WELCOME TO IIDX")
	assert.Equal(t, "WELCOME T", tk.Get())

	tk.Set("SCRIPT")
	tk.Write("GAME")
	assert.Equal(t, "SCRIPT", tk.Get())
	assert.True(t, tk.Overridden())

	tk.Reset()
	tk.Write("GAME")
	assert.Equal(t, "GAME", tk.Get())
}

func TestCoins(t *testing.T) {
	c := NewCoins()
	c.Sample(true)
	c.Sample(true)
	c.Sample(false)
	c.Sample(true)
	assert.Equal(t, 2, c.Get())

	assert.True(t, c.Insert(3))
	c.SetBlocked(true)
	assert.False(t, c.Insert(1))
	assert.Equal(t, 5, c.Get())

	c.ApplyOutputWord(0)
	assert.False(t, c.Blocked())
	assert.True(t, c.Insert(1))
	c.ApplyOutputWord(1 << CoinBlockerBit)
	assert.True(t, c.Blocked())

	c.Set(-3)
	assert.Equal(t, 0, c.Get())
}

func TestKeypad(t *testing.T) {
	k := NewKeypad()
	k.Set(0, ParseKeypad("12a"))
	assert.Equal(t, uint16(Keypad1|Keypad2|Keypad00), k.Get(0))
	k.Set(0, ParseKeypad("9"))
	assert.Equal(t, uint16(Keypad9), k.Get(0))
	assert.Zero(t, k.Get(1))
	assert.Zero(t, k.Get(5))
}

type fakePort struct{}

func (fakePort) Read([]byte) (int, error) { return 0, nil }
func (fakePort) Write(p []byte) (int, error) { return len(p), nil }
func (fakePort) Close() error { return nil }
func (fakePort) Flush() error { return nil }

func TestOpenWithRetry(t *testing.T) {
	attempts := 0
	open := func(*SerialConfig) (SerialPort, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("busy")
		}
		return fakePort{}, nil
	}

	port, err := OpenWithRetry(open, &SerialConfig{Device: "COM9", RetryTimes: 3})
	require.NoError(t, err)
	assert.NotNil(t, port)
	assert.Equal(t, 3, attempts)

	attempts = -10
	_, err = OpenWithRetry(open, &SerialConfig{Device: "COM9", RetryTimes: 2})
	assert.True(t, apperrors.Is(err, apperrors.ErrSerialPortOpen))
	assert.True(t, apperrors.IsRetryable(err))
}

func TestOpenWithRetryStopsOnConfigError(t *testing.T) {
	attempts := 0
	open := func(cfg *SerialConfig) (SerialPort, error) {
		attempts++
		return OpenSerial(cfg)
	}

	_, err := OpenWithRetry(open, &SerialConfig{RetryTimes: 5})
	require.Error(t, err)
	assert.Equal(t, 1, attempts, "配置错误不重试")
	assert.True(t, apperrors.Is(err, apperrors.ErrConfigMissing))
	assert.False(t, apperrors.IsRetryable(err))
}
