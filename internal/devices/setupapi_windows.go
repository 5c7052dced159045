//go:build windows

package devices

import (
	"errors"

	"github.com/go-ole/go-ole"
	"golang.org/x/sys/windows"
)

// SystemEnumerator 通过 SetupAPI 枚举当前存在的设备
type SystemEnumerator struct{}

// NewSystemEnumerator 创建系统设备枚举器
func NewSystemEnumerator() Enumerator {
	return SystemEnumerator{}
}

// Devices 实现 Enumerator
func (SystemEnumerator) Devices(class *ole.GUID) ([]Device, error) {
	if class == nil {
		return nil, nil
	}
	guid := windows.GUID(*class)
	set, err := windows.SetupDiGetClassDevsEx(&guid, "", 0, windows.DIGCF_PRESENT, 0, "")
	if err != nil {
		return nil, err
	}
	defer set.Close()

	var out []Device
	for i := 0; ; i++ {
		data, err := set.EnumDeviceInfo(i)
		if err != nil {
			if errors.Is(err, windows.ERROR_NO_MORE_ITEMS) {
				break
			}
			return out, err
		}
		id, err := set.DeviceInstanceID(data)
		if err != nil {
			continue
		}
		d := Device{
			InstanceID:  id,
			Class:       class,
			RegistryKey: `SYSTEM\CurrentControlSet\Enum\` + id + `\Device Parameters`,
		}
		if v, err := set.DeviceRegistryProperty(data, windows.SPDRP_FRIENDLYNAME); err == nil {
			if name, ok := v.(string); ok {
				d.FriendlyName = name
			}
		}
		out = append(out, d)
	}
	return out, nil
}
