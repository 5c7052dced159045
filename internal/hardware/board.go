package hardware

import (
	"sync"
	"sync/atomic"
)

// Packer 把当前输入状态编码进已清零的缓冲区（含头部）
type Packer func(buf []byte)

// StatusBoard 一块虚拟板卡的状态缓冲区
//
// 清零、写头部、写全部字节在同一个临界区内完成，读取方不会看到写了一半的缓冲区。
type StatusBoard struct {
	name string
	pack Packer

	mu  sync.Mutex
	buf []byte

	frozen  atomic.Bool
	updates atomic.Uint64
}

// NewStatusBoard 创建状态缓冲区
func NewStatusBoard(name string, size int, pack Packer) *StatusBoard {
	return &StatusBoard{
		name: name,
		pack: pack,
		buf:  make([]byte, size),
	}
}

// Name 板卡名称
func (b *StatusBoard) Name() string {
	return b.name
}

// Size 缓冲区字节数
func (b *StatusBoard) Size() int {
	return len(b.buf)
}

// Update 重新生成缓冲区。冻结时保留上一份快照，仍然返回成功
func (b *StatusBoard) Update() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frozen.Load() {
		return true
	}
	clear(b.buf)
	if b.pack != nil {
		b.pack(b.buf)
	}
	b.updates.Add(1)
	return true
}

// Snapshot 复制最近一次的快照到 out，返回复制的字节数
func (b *StatusBoard) Snapshot(out []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return copy(out, b.buf)
}

// Bytes 快照副本
func (b *StatusBoard) Bytes() []byte {
	out := make([]byte, len(b.buf))
	b.Snapshot(out)
	return out
}

// SetFreeze 设置冻结标志（诊断用）
func (b *StatusBoard) SetFreeze(frozen bool) {
	b.frozen.Store(frozen)
}

// Frozen 是否冻结
func (b *StatusBoard) Frozen() bool {
	return b.frozen.Load()
}

// Updates 非冻结更新次数
func (b *StatusBoard) Updates() uint64 {
	return b.updates.Load()
}
