package hardware

import "sync"

// Ticker LED滚动字幕
//
// 游戏和脚本都会读写；脚本设置后进入外部接管状态，游戏的写入被忽略，直到 Reset。
type Ticker struct {
	mu       sync.Mutex
	width    int
	text     string
	override bool
}

// NewTicker 创建字幕，width 为显示位数
func NewTicker(width int) *Ticker {
	return &Ticker{width: width}
}

// Write 游戏写入，外部接管时忽略
func (t *Ticker) Write(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.override {
		return
	}
	t.text = t.fit(text)
}

// Set 外部设置并接管
func (t *Ticker) Set(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.text = t.fit(text)
	t.override = true
}

// Reset 解除外部接管并清空
func (t *Ticker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.text = ""
	t.override = false
}

// Get 当前内容
func (t *Ticker) Get() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.text
}

// Overridden 是否处于外部接管
func (t *Ticker) Overridden() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.override
}

func (t *Ticker) fit(text string) string {
	if t.width > 0 && len(text) > t.width {
		return text[:t.width]
	}
	return text
}
