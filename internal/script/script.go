// Package script 为运营脚本提供 JavaScript 运行环境（goja）。
//
// 脚本可读取控件状态、写灯光、注入虚拟按键，并操作投币、读卡器键盘和LED字幕：
//
//	io.button(name) io.analog(name) io.light(name, v) io.press(device, code, v) io.axis(device, index, v)
//	io.buffer(board) io.output(board, index, v) io.outputWord(board, word)
//	coins.get() coins.set(n) coins.insert(n)
//	cards.insert(unit, hexID)
//	keypad.get(unit) keypad.set(unit, keys)
//	ticker.get() ticker.set(text) ticker.reset()
//	log(msg)
package script

import (
	"context"
	"os"
	"sync"

	"github.com/dop251/goja"
	"github.com/wfunc/arcade-shim/internal/acio"
	apperrors "github.com/wfunc/arcade-shim/internal/errors"
	"github.com/wfunc/arcade-shim/internal/game"
	"github.com/wfunc/arcade-shim/internal/hardware"
	"github.com/wfunc/arcade-shim/internal/input"
	"github.com/wfunc/arcade-shim/internal/logger"
	"go.uber.org/zap"
)

// Env 脚本可访问的运行时对象
type Env struct {
	Instance *game.Instance
	Virtual  *input.VirtualBackend
	Sink     input.LightSink
}

// Engine 脚本引擎。goja.Runtime 不是并发安全的，所有执行串行化
type Engine struct {
	mu  sync.Mutex
	vm  *goja.Runtime
	env Env
	log *zap.Logger
}

// New 创建脚本引擎并注册全局对象
func New(env Env) *Engine {
	e := &Engine{
		vm:  goja.New(),
		env: env,
		log: logger.WithModule("script"),
	}
	e.install()
	return e
}

func (e *Engine) install() {
	vm := e.vm
	_ = vm.Set("log", func(msg string) {
		e.log.Info(msg)
	})
	_ = vm.Set("io", map[string]interface{}{
		"button": e.button,
		"analog": e.analog,
		"light":  e.light,
		"press":  e.press,
		"axis":   e.axis,

		"buffer":     e.buffer,
		"output":     e.output,
		"outputWord": e.outputWord,
	})
	_ = vm.Set("coins", map[string]interface{}{
		"get": func() (int, error) {
			c, err := e.coins()
			if err != nil {
				return 0, err
			}
			return c.Get(), nil
		},
		"set": func(n int) error {
			c, err := e.coins()
			if err != nil {
				return err
			}
			c.Set(n)
			return nil
		},
		"insert": func(n int) (bool, error) {
			c, err := e.coins()
			if err != nil {
				return false, err
			}
			return c.Insert(n), nil
		},
	})
	_ = vm.Set("cards", map[string]interface{}{
		"insert": e.insertCard,
	})
	_ = vm.Set("keypad", map[string]interface{}{
		"get": func(unit int) (int, error) {
			k, err := e.keypad()
			if err != nil {
				return 0, err
			}
			return int(k.Get(unit)), nil
		},
		"set": func(unit int, keys string) error {
			k, err := e.keypad()
			if err != nil {
				return err
			}
			k.Set(unit, hardware.ParseKeypad(keys))
			return nil
		},
	})
	_ = vm.Set("ticker", map[string]interface{}{
		"get": func() (string, error) {
			t, err := e.ticker()
			if err != nil {
				return "", err
			}
			return t.Get(), nil
		},
		"set": func(text string) error {
			t, err := e.ticker()
			if err != nil {
				return err
			}
			t.Set(text)
			return nil
		},
		"reset": func() error {
			t, err := e.ticker()
			if err != nil {
				return err
			}
			t.Reset()
			return nil
		},
	})
}

func (e *Engine) button(name string) (bool, error) {
	if e.env.Instance == nil {
		return false, apperrors.New(apperrors.ErrUnknownControl, name)
	}
	b, ok := e.env.Instance.Set.ButtonByName(name)
	if !ok {
		return false, apperrors.New(apperrors.ErrUnknownControl, name)
	}
	return input.ButtonState(b), nil
}

func (e *Engine) analog(name string) (float64, error) {
	if e.env.Instance == nil {
		return 0, apperrors.New(apperrors.ErrUnknownControl, name)
	}
	a, ok := e.env.Instance.Set.AnalogByName(name)
	if !ok {
		return 0, apperrors.New(apperrors.ErrUnknownControl, name)
	}
	return input.AnalogState(a), nil
}

func (e *Engine) light(name string, value float64) error {
	if e.env.Instance == nil {
		return apperrors.New(apperrors.ErrUnknownControl, name)
	}
	l, ok := e.env.Instance.Set.LightByName(name)
	if !ok {
		return apperrors.New(apperrors.ErrUnknownControl, name)
	}
	input.WriteLight(e.env.Sink, l, value)
	return nil
}

func (e *Engine) virtual(device string) (*input.VirtualBackend, error) {
	if device != input.DeviceVirtual || e.env.Virtual == nil {
		return nil, apperrors.Newf(apperrors.ErrBackendMissing, "脚本只能驱动虚拟设备: %s", device)
	}
	return e.env.Virtual, nil
}

func (e *Engine) press(device string, code int, velocity float64) error {
	v, err := e.virtual(device)
	if err != nil {
		return err
	}
	v.Press(uint16(code), velocity)
	return nil
}

func (e *Engine) axis(device string, index int, value float64) error {
	v, err := e.virtual(device)
	if err != nil {
		return err
	}
	v.SetAnalog(index, value)
	return nil
}

func (e *Engine) board(name string) (game.Board, error) {
	if e.env.Instance == nil {
		return nil, apperrors.New(apperrors.ErrBoardNotFound, name)
	}
	b, ok := e.env.Instance.Board(name)
	if !ok {
		return nil, apperrors.New(apperrors.ErrBoardNotFound, name)
	}
	return b, nil
}

// buffer 板卡状态缓冲区快照
func (e *Engine) buffer(name string) ([]int, error) {
	b, err := e.board(name)
	if err != nil {
		return nil, err
	}
	raw := b.Bytes()
	out := make([]int, len(raw))
	for i, v := range raw {
		out[i] = int(v)
	}
	return out, nil
}

// output 单路输出，返回板卡状态码
func (e *Engine) output(name string, index, value int) (int, error) {
	b, err := e.board(name)
	if err != nil {
		return 0, err
	}
	if value < 0 || value > 255 {
		return 0, apperrors.Newf(apperrors.ErrInvalidParam, "输出值超出范围: %d", value)
	}
	return b.SetOutput(index, byte(value)), nil
}

func (e *Engine) outputWord(name string, word int64) error {
	b, err := e.board(name)
	if err != nil {
		return err
	}
	b.SetOutputWord(uint32(word))
	return nil
}

func (e *Engine) insertCard(unit int, id string) error {
	if e.env.Instance == nil {
		return apperrors.Newf(apperrors.ErrNodeNotFound, "读卡器 %d", unit)
	}
	reader, ok := e.env.Instance.Card(unit)
	if !ok {
		return apperrors.Newf(apperrors.ErrNodeNotFound, "读卡器 %d", unit)
	}
	card, err := acio.ParseCardID(id)
	if err != nil {
		return err
	}
	reader.InsertCard(card)
	return nil
}

func (e *Engine) coins() (*hardware.Coins, error) {
	if e.env.Instance == nil || e.env.Instance.Coins == nil {
		return nil, apperrors.New(apperrors.ErrNotFound, "coins")
	}
	return e.env.Instance.Coins, nil
}

func (e *Engine) keypad() (*hardware.Keypad, error) {
	if e.env.Instance == nil || e.env.Instance.Keypad == nil {
		return nil, apperrors.New(apperrors.ErrNotFound, "keypad")
	}
	return e.env.Instance.Keypad, nil
}

func (e *Engine) ticker() (*hardware.Ticker, error) {
	if e.env.Instance == nil || e.env.Instance.Ticker == nil {
		return nil, apperrors.New(apperrors.ErrNotFound, "ticker")
	}
	return e.env.Instance.Ticker, nil
}

// Run 执行脚本，ctx 取消时中断执行
func (e *Engine) Run(ctx context.Context, name, src string) (goja.Value, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
			e.vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	v, err := e.vm.RunScript(name, src)
	close(done)
	<-exited
	e.vm.ClearInterrupt()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrScript, name)
	}
	return v, nil
}

// RunFile 执行脚本文件
func (e *Engine) RunFile(ctx context.Context, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrScript, path)
	}
	_, err = e.Run(ctx, path, string(src))
	return err
}

// RunFiles 依次执行脚本文件，失败只记录日志，返回失败个数
func (e *Engine) RunFiles(ctx context.Context, paths []string) int {
	failed := 0
	for _, p := range paths {
		if err := e.RunFile(ctx, p); err != nil {
			failed++
			e.log.Warn("脚本执行失败", zap.String("file", p), zap.Error(err))
			continue
		}
		e.log.Info("脚本执行完成", zap.String("file", p))
	}
	return failed
}
