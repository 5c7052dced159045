//go:build !windows

package input

// KeyboardBackend 非Windows平台没有全局键盘状态，始终报告不可用
type KeyboardBackend struct{}

// NewKeyboardBackend 创建键盘后端
func NewKeyboardBackend() *KeyboardBackend {
	return &KeyboardBackend{}
}

// ButtonState 实现 Backend
func (k *KeyboardBackend) ButtonState(string, uint16) (float64, bool) {
	return 0, false
}

// AnalogState 实现 Backend
func (k *KeyboardBackend) AnalogState(string, int) (float64, bool) {
	return 0, false
}
