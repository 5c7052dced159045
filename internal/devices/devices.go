// Package devices 设备枚举重定向：串口类追加模拟端口，摄像头改写设备ID
package devices

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/go-ole/go-ole"
	"github.com/wfunc/arcade-shim/internal/intercept"
	"github.com/wfunc/arcade-shim/internal/logger"
	"github.com/wfunc/arcade-shim/internal/registry"
	"go.uber.org/zap"
)

// 设备类与属性 GUID
var (
	// GUIDPortsClass 串口/并口设备类
	GUIDPortsClass = ole.NewGUID("{4D36E978-E325-11CE-BFC1-08002BE10318}")
	// GUIDCameraClass 摄像头设备类
	GUIDCameraClass = ole.NewGUID("{CA3E7AB9-B4C3-4AE6-8251-579EF933890F}")
	// GUIDSymbolicLink MF 视频采集源的符号链接属性
	GUIDSymbolicLink = ole.NewGUID("{58F0AAD8-22BF-4F8A-BB3D-D2C4978C6E2F}")
	// GUIDFriendlyName MF 设备友好名称属性
	GUIDFriendlyName = ole.NewGUID("{60D0E559-52F8-4FA2-BBCE-ACDB34A8EC01}")
)

// portKeyRoot 模拟端口的设备键位置（HKLM 下）
const portKeyRoot = `SYSTEM\CurrentControlSet\Enum\ACPI\PNP0501`

// Device 枚举得到的一个设备
type Device struct {
	InstanceID   string    `json:"instance_id"`
	FriendlyName string    `json:"friendly_name"`
	Class        *ole.GUID `json:"-"`
	// RegistryKey HKLM 下的 Device Parameters 键
	RegistryKey string `json:"registry_key"`
	Emulated    bool   `json:"emulated"`
}

// Enumerator 按设备类枚举（SetupDiGetClassDevs 的抽象）
type Enumerator interface {
	Devices(class *ole.GUID) ([]Device, error)
}

type enumResult struct {
	devices []Device
	err     error
}

// PortEnumerator 串口类枚举时在真实设备之后追加模拟端口
type PortEnumerator struct {
	real     Enumerator
	reg      registry.API
	emulated []Device
	dispatch *intercept.Dispatcher[*ole.GUID, enumResult]
}

// NewPortEnumerator 创建端口枚举器，并在注册表重定向器中登记每个端口的 PortName
func NewPortEnumerator(backend Enumerator, reg *registry.Redirector, ports []string) *PortEnumerator {
	p := &PortEnumerator{real: backend, reg: reg}
	for i, port := range ports {
		id := fmt.Sprintf(`ACPI\PNP0501\ARCADESHIM%d`, i+1)
		key := portKeyRoot + fmt.Sprintf(`\ARCADESHIM%d\Device Parameters`, i+1)
		reg.AddDeviceKey(key, map[string]registry.Value{"PortName": registry.String(port)})
		p.emulated = append(p.emulated, Device{
			InstanceID:   id,
			FriendlyName: fmt.Sprintf("ACIO Communications Port (%s)", port),
			Class:        GUIDPortsClass,
			RegistryKey:  key,
			Emulated:     true,
		})
	}

	p.dispatch = intercept.NewDispatcher("SetupDiGetClassDevs", func(class *ole.GUID) enumResult {
		devs, err := p.real.Devices(class)
		return enumResult{devs, err}
	})
	p.dispatch.Add(intercept.Rule[*ole.GUID, enumResult]{
		Name:  "ports-class",
		Match: func(class *ole.GUID) bool { return class != nil && ole.IsEqualGUID(class, GUIDPortsClass) },
		Redirect: func(class *ole.GUID) enumResult {
			devs, err := p.real.Devices(class)
			if err != nil {
				logger.WithModule("devices").Warn("真实串口枚举失败，只返回模拟端口", zap.Error(err))
				devs = nil
			}
			out := make([]Device, 0, len(devs)+len(p.emulated))
			out = append(out, devs...)
			return enumResult{append(out, p.emulated...), nil}
		},
	})
	return p
}

// Devices 实现 Enumerator
func (p *PortEnumerator) Devices(class *ole.GUID) ([]Device, error) {
	res := p.dispatch.Call(class)
	return res.devices, res.err
}

// Emulated 模拟端口列表
func (p *PortEnumerator) Emulated() []Device {
	return append([]Device(nil), p.emulated...)
}

// Stats 命中统计
func (p *PortEnumerator) Stats() intercept.Stats {
	return p.dispatch.Stats()
}

// PortName 通过设备参数键读取端口名（游戏枚举后打开 Device Parameters 读 PortName 的路径）
func (p *PortEnumerator) PortName(d Device) (string, error) {
	k, errno := p.reg.OpenKey(registry.HKeyLocalMachine, d.RegistryKey)
	if errno != registry.ErrorSuccess {
		return "", fmt.Errorf("打开设备键 %s: %s", d.RegistryKey, errno)
	}
	defer p.reg.CloseKey(k)

	_, n, errno := p.reg.QueryValue(k, "PortName", nil)
	if errno != registry.ErrorSuccess {
		return "", fmt.Errorf("读取 PortName: %s", errno)
	}
	buf := make([]byte, n)
	if _, n, errno = p.reg.QueryValue(k, "PortName", buf); errno != registry.ErrorSuccess {
		return "", fmt.Errorf("读取 PortName: %s", errno)
	}
	return strings.TrimRight(string(buf[:n]), "\x00"), nil
}

// Camera 摄像头激活对象上游戏会读取的属性
type Camera struct {
	FriendlyName string `json:"friendly_name"`
	SymbolicLink string `json:"symbolic_link"`
}

// CameraSpoofer 按友好名称把摄像头的符号链接改写为游戏期望的设备ID
type CameraSpoofer struct {
	targets map[string]string
	spoofed atomic.Uint64
	skipped atomic.Uint64
}

// NewCameraSpoofer 创建摄像头伪装，targets 为 友好名称 -> 设备ID
func NewCameraSpoofer(targets map[string]string) *CameraSpoofer {
	copied := make(map[string]string, len(targets))
	for k, v := range targets {
		copied[k] = v
	}
	return &CameraSpoofer{targets: copied}
}

// Spoof 改写匹配的摄像头；名称不匹配的摄像头原样保留并记录警告
func (s *CameraSpoofer) Spoof(cams []Camera) []Camera {
	out := make([]Camera, len(cams))
	for i, c := range cams {
		out[i] = c
		id, ok := s.targets[c.FriendlyName]
		if !ok {
			s.skipped.Add(1)
			logger.WithModule("devices").Warn("未知摄像头，跳过",
				zap.String("name", c.FriendlyName),
				zap.String("link", c.SymbolicLink))
			continue
		}
		out[i].SymbolicLink = id
		s.spoofed.Add(1)
	}
	return out
}

// GetString 模拟 IMFAttributes::GetAllocatedString：符号链接返回伪装后的ID，其余属性原样返回
func (s *CameraSpoofer) GetString(cam Camera, attr *ole.GUID) (string, bool) {
	switch {
	case attr == nil:
		return "", false
	case ole.IsEqualGUID(attr, GUIDSymbolicLink):
		if id, ok := s.targets[cam.FriendlyName]; ok {
			return id, true
		}
		return cam.SymbolicLink, true
	case ole.IsEqualGUID(attr, GUIDFriendlyName):
		return cam.FriendlyName, true
	default:
		return "", false
	}
}

// Counts 已伪装和已跳过的摄像头数
func (s *CameraSpoofer) Counts() (spoofed, skipped uint64) {
	return s.spoofed.Load(), s.skipped.Load()
}
