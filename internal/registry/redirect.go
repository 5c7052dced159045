package registry

import (
	"strings"
	"sync"

	"github.com/wfunc/arcade-shim/internal/intercept"
	"github.com/wfunc/arcade-shim/internal/logger"
	"go.uber.org/zap"
)

// ASIOPath HKLM 下 ASIO 驱动列表的位置
const ASIOPath = `software\asio`

// virtualBase 虚拟句柄的起始值，与真实句柄不重叠
const virtualBase Key = 0x7A000000

// ASIOOverride ASIO驱动重定向：游戏只能看到一个名为 Name 的驱动，
// 它的 CLSID 等值来自真实驱动 Driver
type ASIOOverride struct {
	Driver string
	Name   string
}

type keyKind int

const (
	kindASIORoot keyKind = iota
	kindASIODriver
	kindDevice
)

type virtualKey struct {
	kind   keyKind
	path   string
	real   Key
	values map[string]Value
}

type openCall struct {
	parent Key
	path   string
}

type openResult struct {
	key   Key
	errno Errno
}

type enumCall struct {
	key   Key
	index uint32
}

type enumResult struct {
	name  string
	errno Errno
}

type queryCall struct {
	key  Key
	name string
	buf  []byte
}

type queryResult struct {
	typ   uint32
	n     uint32
	errno Errno
}

// Redirector 在真实注册表之上提供虚拟键，其余调用原样转发（包括错误码）
type Redirector struct {
	real API
	log  *zap.Logger

	mu      sync.Mutex
	asio    *ASIOOverride
	devices map[string]map[string]Value
	handles map[Key]*virtualKey
	next    Key

	open  *intercept.Dispatcher[openCall, openResult]
	enum  *intercept.Dispatcher[enumCall, enumResult]
	query *intercept.Dispatcher[queryCall, queryResult]
	close *intercept.Dispatcher[Key, Errno]
}

// NewRedirector 创建重定向器
func NewRedirector(backend API) *Redirector {
	r := &Redirector{
		real:    backend,
		log:     logger.WithModule("registry"),
		devices: make(map[string]map[string]Value),
		handles: make(map[Key]*virtualKey),
		next:    virtualBase,
	}

	r.open = intercept.NewDispatcher("RegOpenKey", func(c openCall) openResult {
		k, errno := r.real.OpenKey(c.parent, c.path)
		return openResult{k, errno}
	})
	r.open.Add(intercept.Rule[openCall, openResult]{Name: "asio-root", Match: r.isASIORoot, Redirect: r.openASIORoot})
	r.open.Add(intercept.Rule[openCall, openResult]{Name: "asio-driver", Match: r.isASIODriver, Redirect: r.openASIODriver})
	r.open.Add(intercept.Rule[openCall, openResult]{
		Name:     "virtual-parent",
		Match:    func(c openCall) bool { return r.IsVirtual(c.parent) },
		Redirect: func(openCall) openResult { return openResult{0, ErrorFileNotFound} },
	})
	r.open.Add(intercept.Rule[openCall, openResult]{Name: "device-key", Match: r.isDeviceKey, Redirect: r.openDeviceKey})

	r.enum = intercept.NewDispatcher("RegEnumKey", func(c enumCall) enumResult {
		name, errno := r.real.EnumKey(c.key, c.index)
		return enumResult{name, errno}
	})
	r.enum.Add(intercept.Rule[enumCall, enumResult]{
		Name:     "virtual",
		Match:    func(c enumCall) bool { return r.IsVirtual(c.key) },
		Redirect: r.enumVirtual,
	})

	r.query = intercept.NewDispatcher("RegQueryValue", func(c queryCall) queryResult {
		typ, n, errno := r.real.QueryValue(c.key, c.name, c.buf)
		return queryResult{typ, n, errno}
	})
	r.query.Add(intercept.Rule[queryCall, queryResult]{
		Name:     "virtual",
		Match:    func(c queryCall) bool { return r.IsVirtual(c.key) },
		Redirect: r.queryVirtual,
	})

	r.close = intercept.NewDispatcher("RegCloseKey", r.real.CloseKey)
	r.close.Add(intercept.Rule[Key, Errno]{Name: "virtual", Match: r.IsVirtual, Redirect: r.closeVirtual})
	return r
}

// SetASIOOverride 设置ASIO重定向，nil 表示关闭
func (r *Redirector) SetASIOOverride(o *ASIOOverride) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.asio = o
	if o != nil {
		r.log.Info("ASIO驱动重定向", zap.String("driver", o.Driver), zap.String("name", o.Name))
	}
}

// AddDeviceKey 在 HKLM 下登记一个虚拟设备键
func (r *Redirector) AddDeviceKey(path string, values map[string]Value) {
	copied := make(map[string]Value, len(values))
	for k, v := range values {
		copied[strings.ToLower(k)] = v
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[strings.ToLower(CleanPath(path))] = copied
}

// IsVirtual 句柄是否由重定向器分配
func (r *Redirector) IsVirtual(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.handles[key]
	return ok
}

// VirtualHandles 未关闭的虚拟句柄数
func (r *Redirector) VirtualHandles() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Stats 各调用的规则命中统计
func (r *Redirector) Stats() []intercept.Stats {
	return []intercept.Stats{r.open.Stats(), r.enum.Stats(), r.query.Stats(), r.close.Stats()}
}

// OpenKey 实现 API
func (r *Redirector) OpenKey(parent Key, path string) (Key, Errno) {
	res := r.open.Call(openCall{parent: parent, path: path})
	return res.key, res.errno
}

// EnumKey 实现 API
func (r *Redirector) EnumKey(key Key, index uint32) (string, Errno) {
	res := r.enum.Call(enumCall{key: key, index: index})
	return res.name, res.errno
}

// QueryValue 实现 API
func (r *Redirector) QueryValue(key Key, name string, buf []byte) (uint32, uint32, Errno) {
	res := r.query.Call(queryCall{key: key, name: name, buf: buf})
	return res.typ, res.n, res.errno
}

// CloseKey 实现 API
func (r *Redirector) CloseKey(key Key) Errno {
	return r.close.Call(key)
}

func (r *Redirector) allocate(vk *virtualKey) Key {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.next
	r.next += 4
	r.handles[h] = vk
	return h
}

func (r *Redirector) virtual(key Key) *virtualKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handles[key]
}

func (r *Redirector) override() *ASIOOverride {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.asio
}

func (r *Redirector) isASIORoot(c openCall) bool {
	return r.override() != nil && c.parent == HKeyLocalMachine && SamePath(c.path, ASIOPath)
}

func (r *Redirector) openASIORoot(c openCall) openResult {
	h := r.allocate(&virtualKey{kind: kindASIORoot, path: ASIOPath})
	r.log.Debug("打开虚拟ASIO根键", zap.Uintptr("handle", uintptr(h)))
	return openResult{h, ErrorSuccess}
}

func (r *Redirector) isASIODriver(c openCall) bool {
	o := r.override()
	if o == nil {
		return false
	}
	if c.parent == HKeyLocalMachine {
		return SamePath(c.path, ASIOPath+`\`+o.Name)
	}
	vk := r.virtual(c.parent)
	return vk != nil && vk.kind == kindASIORoot && SamePath(c.path, o.Name)
}

func (r *Redirector) openASIODriver(c openCall) openResult {
	o := r.override()
	vk := &virtualKey{kind: kindASIODriver, path: ASIOPath + `\` + o.Name}

	// 真实驱动键由重定向器持有，关闭虚拟句柄时一并关闭
	realKey, errno := r.real.OpenKey(HKeyLocalMachine, ASIOPath+`\`+o.Driver)
	if errno == ErrorSuccess {
		vk.real = realKey
	} else {
		r.log.Warn("真实ASIO驱动键不可用，只提供 Description",
			zap.String("driver", o.Driver),
			zap.Stringer("errno", errno))
	}
	return openResult{r.allocate(vk), ErrorSuccess}
}

func (r *Redirector) isDeviceKey(c openCall) bool {
	if c.parent != HKeyLocalMachine {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.devices[strings.ToLower(CleanPath(c.path))]
	return ok
}

func (r *Redirector) openDeviceKey(c openCall) openResult {
	path := strings.ToLower(CleanPath(c.path))
	r.mu.Lock()
	values := r.devices[path]
	r.mu.Unlock()
	return openResult{r.allocate(&virtualKey{kind: kindDevice, path: path, values: values}), ErrorSuccess}
}

func (r *Redirector) enumVirtual(c enumCall) enumResult {
	vk := r.virtual(c.key)
	if vk != nil && vk.kind == kindASIORoot && c.index == 0 {
		if o := r.override(); o != nil {
			return enumResult{o.Name, ErrorSuccess}
		}
	}
	return enumResult{"", ErrorNoMoreItems}
}

func (r *Redirector) queryVirtual(c queryCall) queryResult {
	vk := r.virtual(c.key)
	if vk == nil {
		return queryResult{TypeNone, 0, ErrorInvalidHandle}
	}

	switch vk.kind {
	case kindASIODriver:
		if strings.EqualFold(c.name, "Description") {
			if o := r.override(); o != nil {
				typ, n, errno := copyValue(String(o.Name), c.buf)
				return queryResult{typ, n, errno}
			}
		}
		if vk.real != 0 {
			typ, n, errno := r.real.QueryValue(vk.real, c.name, c.buf)
			return queryResult{typ, n, errno}
		}
	case kindDevice:
		if v, ok := vk.values[strings.ToLower(c.name)]; ok {
			typ, n, errno := copyValue(v, c.buf)
			return queryResult{typ, n, errno}
		}
	}
	return queryResult{TypeNone, 0, ErrorFileNotFound}
}

func (r *Redirector) closeVirtual(key Key) Errno {
	r.mu.Lock()
	vk := r.handles[key]
	delete(r.handles, key)
	r.mu.Unlock()

	if vk != nil && vk.real != 0 {
		if errno := r.real.CloseKey(vk.real); errno != ErrorSuccess {
			r.log.Debug("关闭真实驱动键失败", zap.Stringer("errno", errno))
		}
	}
	return ErrorSuccess
}
