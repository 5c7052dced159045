package tables

import (
	"context"
	"sync"

	apperrors "github.com/wfunc/arcade-shim/internal/errors"
	"github.com/wfunc/arcade-shim/internal/input"
	"github.com/wfunc/arcade-shim/internal/logger"
	"go.uber.org/zap"
)

// Layout 游戏的规范控件列表。列表顺序即线格式约定，不能调整
type Layout struct {
	Game    string
	Buttons []string
	Analogs []string
	Lights  []string
	Options []input.OptionDefinition
}

// Store 绑定存储
type Store interface {
	Buttons(ctx context.Context, game string) ([]*input.Button, error)
	Analogs(ctx context.Context, game string) ([]*input.Analog, error)
	Lights(ctx context.Context, game string) ([]*input.Light, error)
	Options(ctx context.Context, game string, defs []input.OptionDefinition) ([]*input.Option, error)
}

// Set 一个游戏构建完成的控件表，结构构建后不再变化
type Set struct {
	Layout  *Layout
	Buttons []*input.Button
	Analogs []*input.Analog
	Lights  []*input.Light
	Options []*input.Option
}

// Button 按索引取按键，越界是映射表缺陷，直接panic
func (s *Set) Button(i int) *input.Button {
	if i < 0 || i >= len(s.Buttons) {
		apperrors.Contract(apperrors.ErrTableIndex, "%s: 按键索引 %d 越界（共 %d）", s.Layout.Game, i, len(s.Buttons))
	}
	return s.Buttons[i]
}

// Analog 按索引取模拟量
func (s *Set) Analog(i int) *input.Analog {
	if i < 0 || i >= len(s.Analogs) {
		apperrors.Contract(apperrors.ErrTableIndex, "%s: 模拟量索引 %d 越界（共 %d）", s.Layout.Game, i, len(s.Analogs))
	}
	return s.Analogs[i]
}

// Light 按索引取灯光
func (s *Set) Light(i int) *input.Light {
	if i < 0 || i >= len(s.Lights) {
		apperrors.Contract(apperrors.ErrTableIndex, "%s: 灯光索引 %d 越界（共 %d）", s.Layout.Game, i, len(s.Lights))
	}
	return s.Lights[i]
}

// Option 按名称取选项，不存在时返回nil
func (s *Set) Option(name string) *input.Option {
	for _, o := range s.Options {
		if o.Definition.Name == name {
			return o
		}
	}
	return nil
}

// ButtonByName 按名称查找按键
func (s *Set) ButtonByName(name string) (*input.Button, bool) {
	for _, b := range s.Buttons {
		if b.Name == name {
			return b, true
		}
	}
	return nil, false
}

// AnalogByName 按名称查找模拟量
func (s *Set) AnalogByName(name string) (*input.Analog, bool) {
	for _, a := range s.Analogs {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

// LightByName 按名称查找灯光
func (s *Set) LightByName(name string) (*input.Light, bool) {
	for _, l := range s.Lights {
		if l.Name == name {
			return l, true
		}
	}
	return nil, false
}

type entry struct {
	once sync.Once
	set  *Set
}

// Registry 进程级控件表注册中心。启动时创建一次，按引用传给所有使用者
type Registry struct {
	store Store

	mu      sync.Mutex
	entries map[string]*entry
	order   []string
}

// NewRegistry 创建注册中心，store 为nil时所有控件都是未绑定占位
func NewRegistry(store Store) *Registry {
	return &Registry{
		store:   store,
		entries: make(map[string]*entry),
	}
}

// Load 取游戏的控件表，首次调用时从存储构建，之后返回缓存
func (r *Registry) Load(ctx context.Context, layout *Layout) *Set {
	r.mu.Lock()
	e, ok := r.entries[layout.Game]
	if !ok {
		e = &entry{}
		r.entries[layout.Game] = e
		r.order = append(r.order, layout.Game)
	}
	r.mu.Unlock()

	e.once.Do(func() {
		built := r.build(ctx, layout)
		r.mu.Lock()
		e.set = built
		r.mu.Unlock()
	})
	return e.set
}

// Buttons 游戏的按键表
func (r *Registry) Buttons(ctx context.Context, layout *Layout) []*input.Button {
	return r.Load(ctx, layout).Buttons
}

// Analogs 游戏的模拟量表
func (r *Registry) Analogs(ctx context.Context, layout *Layout) []*input.Analog {
	return r.Load(ctx, layout).Analogs
}

// Lights 游戏的灯光表
func (r *Registry) Lights(ctx context.Context, layout *Layout) []*input.Light {
	return r.Load(ctx, layout).Lights
}

// Options 游戏的选项表
func (r *Registry) Options(ctx context.Context, layout *Layout) []*input.Option {
	return r.Load(ctx, layout).Options
}

// Get 取已构建的控件表
func (r *Registry) Get(game string) (*Set, bool) {
	r.mu.Lock()
	e, ok := r.entries[game]
	r.mu.Unlock()
	if !ok || e.set == nil {
		return nil, false
	}
	return e.set, true
}

// Sets 已构建的全部控件表（按构建顺序）
func (r *Registry) Sets() []*Set {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Set, 0, len(r.order))
	for _, game := range r.order {
		if e := r.entries[game]; e.set != nil {
			out = append(out, e.set)
		}
	}
	return out
}

// Controls 已构建的全部按键和模拟量，供采样器注册
func (r *Registry) Controls() ([]*input.Button, []*input.Analog) {
	var (
		buttons []*input.Button
		analogs []*input.Analog
	)
	for _, s := range r.Sets() {
		buttons = append(buttons, s.Buttons...)
		analogs = append(analogs, s.Analogs...)
	}
	return buttons, analogs
}

func (r *Registry) build(ctx context.Context, layout *Layout) *Set {
	log := logger.WithModule("input").With(zap.String("game", layout.Game))

	var (
		buttons []*input.Button
		analogs []*input.Analog
		lights  []*input.Light
		options []*input.Option
		err     error
	)
	if r.store != nil {
		if buttons, err = r.store.Buttons(ctx, layout.Game); err != nil {
			log.Warn("加载按键绑定失败，使用未绑定占位", zap.Error(err))
			buttons = nil
		}
		if analogs, err = r.store.Analogs(ctx, layout.Game); err != nil {
			log.Warn("加载模拟量绑定失败，使用未绑定占位", zap.Error(err))
			analogs = nil
		}
		if lights, err = r.store.Lights(ctx, layout.Game); err != nil {
			log.Warn("加载灯光绑定失败，使用未绑定占位", zap.Error(err))
			lights = nil
		}
		if options, err = r.store.Options(ctx, layout.Game, layout.Options); err != nil {
			log.Warn("加载选项失败，使用默认值", zap.Error(err))
			options = nil
		}
	}

	set := &Set{Layout: layout}
	set.Buttons = align(layout.Buttons, buttons,
		func(b *input.Button) string { return b.Name },
		input.NewButton,
		func(dst, extra *input.Button) { dst.Alternatives = append(dst.Alternatives, extra) },
		log)
	set.Analogs = align(layout.Analogs, analogs,
		func(a *input.Analog) string { return a.Name },
		input.NewAnalog,
		func(dst, extra *input.Analog) { dst.Alternatives = append(dst.Alternatives, extra) },
		log)
	set.Lights = align(layout.Lights, lights,
		func(l *input.Light) string { return l.Name },
		input.NewLight,
		func(dst, extra *input.Light) { dst.Alternatives = append(dst.Alternatives, extra) },
		log)
	set.Options = alignOptions(layout.Options, options)

	log.Info("控件表构建完成",
		zap.Int("buttons", len(set.Buttons)),
		zap.Int("analogs", len(set.Analogs)),
		zap.Int("lights", len(set.Lights)),
		zap.Int("options", len(set.Options)),
	)
	return set
}

// align 按规范名称列表重排绑定：未知名称丢弃，缺失名称补占位，
// 同名的后续绑定并入首个绑定的备用列表。保持输入中的相对顺序
func align[T any](
	names []string,
	items []T,
	nameOf func(T) string,
	placeholder func(string) T,
	merge func(dst, extra T),
	log *zap.Logger,
) []T {
	position := make(map[string]int, len(names))
	for i, n := range names {
		position[n] = i
	}

	out := make([]T, len(names))
	filled := make([]bool, len(names))
	for _, item := range items {
		name := nameOf(item)
		idx, ok := position[name]
		if !ok {
			log.Debug("丢弃未知控件绑定", zap.String("name", name))
			continue
		}
		if filled[idx] {
			merge(out[idx], item)
			continue
		}
		out[idx] = item
		filled[idx] = true
	}
	for i, n := range names {
		if !filled[i] {
			out[i] = placeholder(n)
		}
	}
	return out
}

func alignOptions(defs []input.OptionDefinition, stored []*input.Option) []*input.Option {
	byName := make(map[string]*input.Option, len(stored))
	for _, o := range stored {
		if _, dup := byName[o.Definition.Name]; !dup {
			byName[o.Definition.Name] = o
		}
	}
	out := make([]*input.Option, len(defs))
	for i, def := range defs {
		if o, ok := byName[def.Name]; ok {
			o.Definition = def
			out[i] = o
			continue
		}
		out[i] = input.NewOption(def)
	}
	return out
}
