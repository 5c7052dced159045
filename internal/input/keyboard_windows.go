//go:build windows

package input

import (
	"golang.org/x/sys/windows"
)

var (
	user32               = windows.NewLazySystemDLL("user32.dll")
	procGetAsyncKeyState = user32.NewProc("GetAsyncKeyState")
)

// KeyboardBackend 通过 GetAsyncKeyState 读取键盘，按键码为虚拟键码
type KeyboardBackend struct{}

// NewKeyboardBackend 创建键盘后端
func NewKeyboardBackend() *KeyboardBackend {
	return &KeyboardBackend{}
}

// ButtonState 实现 Backend
func (k *KeyboardBackend) ButtonState(_ string, code uint16) (float64, bool) {
	if code == 0 || code > 0xFE {
		return 0, false
	}
	if err := procGetAsyncKeyState.Find(); err != nil {
		return 0, false
	}
	ret, _, _ := procGetAsyncKeyState.Call(uintptr(code))
	if ret&0x8000 != 0 {
		return 1, true
	}
	return 0, true
}

// AnalogState 键盘没有模拟轴
func (k *KeyboardBackend) AnalogState(string, int) (float64, bool) {
	return 0, false
}
