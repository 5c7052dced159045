// Package game 定义可模拟的游戏以及它们的运行时实例。
//
// 每个游戏提供规范控件列表（tables.Layout）、板卡的状态缓冲区编码，以及挂到ACIO总线上的节点。
package game

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/wfunc/arcade-shim/internal/acio"
	apperrors "github.com/wfunc/arcade-shim/internal/errors"
	"github.com/wfunc/arcade-shim/internal/hardware"
	"github.com/wfunc/arcade-shim/internal/input"
	"github.com/wfunc/arcade-shim/internal/intercept"
	"github.com/wfunc/arcade-shim/internal/logger"
	"github.com/wfunc/arcade-shim/internal/tables"
	"go.uber.org/zap"
)

// Board 游戏板卡：ACIO节点驱动的接口加上诊断接口
type Board interface {
	acio.Board
	Name() string
	SetFreeze(frozen bool)
	Frozen() bool
	Bytes() []byte
	Updates() uint64
}

// Env 构建实例时的共享依赖
type Env struct {
	Tables  *tables.Registry
	Sink    input.LightSink
	Exports *intercept.ExportTable
}

// Instance 一个游戏的运行时实例
type Instance struct {
	Name   string
	Set    *tables.Set
	Boards []Board
	// Buses 端口名 -> 总线（端口名已规范化，如 COM1）
	Buses  map[string]*acio.Bus
	Ticker *hardware.Ticker
	Coins  *hardware.Coins
	Keypad *hardware.Keypad
	// Cards 读卡器，下标即键盘编号（0=P1）
	Cards []*acio.CardReaderNode
}

// Card 按编号取读卡器
func (in *Instance) Card(unit int) (*acio.CardReaderNode, bool) {
	if unit < 0 || unit >= len(in.Cards) {
		return nil, false
	}
	return in.Cards[unit], true
}

// Board 按名称取板卡
func (in *Instance) Board(name string) (Board, bool) {
	for _, b := range in.Boards {
		if b.Name() == name {
			return b, true
		}
	}
	return nil, false
}

// Definition 游戏定义
type Definition interface {
	Name() string
	Layout() *tables.Layout
	Build(ctx context.Context, env *Env) (*Instance, error)
}

// Registry 按名称注册的游戏定义
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// NewRegistry 创建游戏注册表
func NewRegistry(defs ...Definition) *Registry {
	r := &Registry{defs: make(map[string]Definition)}
	for _, d := range defs {
		r.Register(d)
	}
	return r
}

// Register 注册游戏定义，重名时覆盖
func (r *Registry) Register(d Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[d.Name()] = d
}

// Get 按名称取游戏定义
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[name]
	return d, ok
}

// Names 已注册的游戏（排序）
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.defs))
	for n := range r.defs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Build 构建指定游戏的实例
func (r *Registry) Build(ctx context.Context, name string, env *Env) (*Instance, error) {
	d, ok := r.Get(name)
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrUnknownGame, "%s (可选: %v)", name, r.Names())
	}
	if env.Tables == nil {
		env.Tables = tables.NewRegistry(nil)
	}
	if env.Exports == nil {
		env.Exports = intercept.NewExportTable(name)
	}

	inst, err := d.Build(ctx, env)
	if err != nil {
		return nil, err
	}
	logger.Info("游戏实例已构建",
		zap.String("game", name),
		zap.Int("boards", len(inst.Boards)),
		zap.Int("buses", len(inst.Buses)),
		zap.Strings("exports", env.Exports.Names()))
	return inst, nil
}

// Base 板卡公共部分：状态缓冲区 + acio.Board 的缓冲区方法
type Base struct {
	*hardware.StatusBoard
}

// NewBase 创建板卡公共部分
func NewBase(name string, size int, pack hardware.Packer) Base {
	return Base{StatusBoard: hardware.NewStatusBoard(name, size, pack)}
}

// UpdateControlStatusBuffer 重新编码状态缓冲区，冻结时保留快照并返回成功
func (b Base) UpdateControlStatusBuffer() bool {
	return b.Update()
}

// GetControlStatusBuffer 复制最近的快照
func (b Base) GetControlStatusBuffer(out []byte) int {
	return b.Snapshot(out)
}

// BufferSize 状态缓冲区字节数
func (b Base) BufferSize() int {
	return b.Size()
}

// Numbered 生成编号控件名，如 Numbered("Key ", 3, "") = [Key 1 Key 2 Key 3]
func Numbered(prefix string, n int, suffix string) []string {
	names := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		names = append(names, prefix+strconv.Itoa(i)+suffix)
	}
	return names
}
