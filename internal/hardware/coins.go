package hardware

import "sync"

// CoinBlockerBit 输出字中投币拦截器的位，置位时拒收投币
const CoinBlockerBit = 31

// Coins 投币计数器
type Coins struct {
	mu      sync.Mutex
	count   int
	blocked bool
	latched bool
}

// NewCoins 创建投币计数器
func NewCoins() *Coins {
	return &Coins{}
}

// Get 当前计数
func (c *Coins) Get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Set 设置计数
func (c *Coins) Set(n int) {
	if n < 0 {
		n = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count = n
}

// Insert 投入 n 枚；拦截器关闭时投币被退回，返回 false
func (c *Coins) Insert(n int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.blocked || n <= 0 {
		return false
	}
	c.count += n
	return true
}

// SetBlocked 投币拦截器状态（游戏输出）
func (c *Coins) SetBlocked(blocked bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocked = blocked
}

// ApplyOutputWord 从板卡输出字取拦截器状态
func (c *Coins) ApplyOutputWord(word uint32) {
	c.SetBlocked(word&(1<<CoinBlockerBit) != 0)
}

// Blocked 拦截器是否关闭
func (c *Coins) Blocked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blocked
}

// Sample 投币机按键的上升沿计一枚
func (c *Coins) Sample(pressed bool) {
	c.mu.Lock()
	rising := pressed && !c.latched
	c.latched = pressed
	c.mu.Unlock()

	if rising {
		c.Insert(1)
	}
}
