//go:build !windows

package devices

import "github.com/go-ole/go-ole"

// SystemEnumerator 非Windows平台没有可枚举的设备类
type SystemEnumerator struct{}

// NewSystemEnumerator 创建系统设备枚举器
func NewSystemEnumerator() Enumerator {
	return SystemEnumerator{}
}

// Devices 实现 Enumerator
func (SystemEnumerator) Devices(*ole.GUID) ([]Device, error) {
	return nil, nil
}
