package hardware

import "sync"

// KeypadKey 键盘按键位
type KeypadKey uint16

// 按键位定义（与读卡器上报的位图一致）
const (
	Keypad0 KeypadKey = 1 << iota
	Keypad1
	Keypad2
	Keypad3
	Keypad4
	Keypad5
	Keypad6
	Keypad7
	Keypad8
	Keypad9
	Keypad00
	KeypadDecimal
	KeypadInsertCard
)

// KeypadUnits 读卡器数量（P1/P2）
const KeypadUnits = 2

var keypadChars = map[byte]KeypadKey{
	'0': Keypad0, '1': Keypad1, '2': Keypad2, '3': Keypad3, '4': Keypad4,
	'5': Keypad5, '6': Keypad6, '7': Keypad7, '8': Keypad8, '9': Keypad9,
	'A': Keypad00, 'D': KeypadDecimal, '.': KeypadDecimal, 'I': KeypadInsertCard,
}

// Keypad 读卡器数字键盘状态
type Keypad struct {
	mu    sync.Mutex
	state [KeypadUnits]uint16
}

// NewKeypad 创建键盘状态
func NewKeypad() *Keypad {
	return &Keypad{}
}

// ParseKeypad 把字符串（"12", "A" 表示00, "D" 表示小数点）转换为位图，未知字符忽略
func ParseKeypad(keys string) uint16 {
	var mask uint16
	for i := 0; i < len(keys); i++ {
		c := keys[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		if k, ok := keypadChars[c]; ok {
			mask |= uint16(k)
		}
	}
	return mask
}

// Set 外部（脚本/屏幕键盘）设置的按键位图
func (k *Keypad) Set(unit int, mask uint16) {
	if unit < 0 || unit >= KeypadUnits {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.state[unit] = mask
}

// Get 当前位图
func (k *Keypad) Get(unit int) uint16 {
	if unit < 0 || unit >= KeypadUnits {
		return 0
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state[unit]
}
