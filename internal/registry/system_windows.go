//go:build windows

package registry

import (
	"errors"
	"unicode/utf16"

	"golang.org/x/sys/windows"
)

// SystemAPI 真实的 Win32 注册表
type SystemAPI struct{}

// NewSystemAPI 创建系统注册表后端
func NewSystemAPI() API {
	return SystemAPI{}
}

func errnoOf(err error) Errno {
	if err == nil {
		return ErrorSuccess
	}
	var e windows.Errno
	if errors.As(err, &e) {
		return Errno(e)
	}
	return ErrorAccessDenied
}

// OpenKey 实现 API
func (SystemAPI) OpenKey(parent Key, path string) (Key, Errno) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, ErrorFileNotFound
	}
	var h windows.Handle
	err = windows.RegOpenKeyEx(windows.Handle(parent), p, 0, windows.KEY_READ, &h)
	return Key(h), errnoOf(err)
}

// EnumKey 实现 API
func (SystemAPI) EnumKey(key Key, index uint32) (string, Errno) {
	var buf [256]uint16
	n := uint32(len(buf))
	err := windows.RegEnumKeyEx(windows.Handle(key), index, &buf[0], &n, nil, nil, nil, nil)
	if err != nil {
		return "", errnoOf(err)
	}
	return windows.UTF16ToString(buf[:n]), ErrorSuccess
}

// QueryValue 实现 API；字符串值由 UTF-16 转为窄字符
func (SystemAPI) QueryValue(key Key, name string, buf []byte) (uint32, uint32, Errno) {
	p, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return TypeNone, 0, ErrorFileNotFound
	}

	var typ, size uint32
	if err := windows.RegQueryValueEx(windows.Handle(key), p, nil, &typ, nil, &size); err != nil {
		return TypeNone, 0, errnoOf(err)
	}
	raw := make([]byte, size)
	if size > 0 {
		if err := windows.RegQueryValueEx(windows.Handle(key), p, nil, &typ, &raw[0], &size); err != nil {
			return TypeNone, 0, errnoOf(err)
		}
	}

	v := Value{Type: typ, Data: raw[:size]}
	if typ == TypeSZ || typ == TypeExpandSZ {
		v = Value{Type: typ, Data: String(decodeUTF16(raw[:size])).Data}
	}
	return copyValue(v, buf)
}

// CloseKey 实现 API
func (SystemAPI) CloseKey(key Key) Errno {
	return errnoOf(windows.RegCloseKey(windows.Handle(key)))
}

func decodeUTF16(raw []byte) string {
	u := make([]uint16, len(raw)/2)
	for i := range u {
		u[i] = uint16(raw[2*i]) | uint16(raw[2*i+1])<<8
	}
	for i, c := range u {
		if c == 0 {
			u = u[:i]
			break
		}
	}
	return string(utf16.Decode(u))
}
