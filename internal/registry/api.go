// Package registry 注册表访问与重定向。
//
// API 采用窄字符约定：REG_SZ 数据为字节串加结尾NUL；调用方缓冲区不足时返回 ErrorMoreData 和所需长度，
// 与 RegQueryValueExA 一致。
package registry

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Key 注册表句柄
type Key uintptr

// 预定义根键
const (
	HKeyClassesRoot  Key = 0x80000000
	HKeyCurrentUser  Key = 0x80000001
	HKeyLocalMachine Key = 0x80000002
	HKeyUsers        Key = 0x80000003
)

// Errno Win32 错误码
type Errno uint32

// 错误码定义
const (
	ErrorSuccess       Errno = 0
	ErrorFileNotFound  Errno = 2
	ErrorAccessDenied  Errno = 5
	ErrorInvalidHandle Errno = 6
	ErrorMoreData      Errno = 234
	ErrorNoMoreItems   Errno = 259
)

// String 错误码名称
func (e Errno) String() string {
	switch e {
	case ErrorSuccess:
		return "ERROR_SUCCESS"
	case ErrorFileNotFound:
		return "ERROR_FILE_NOT_FOUND"
	case ErrorAccessDenied:
		return "ERROR_ACCESS_DENIED"
	case ErrorInvalidHandle:
		return "ERROR_INVALID_HANDLE"
	case ErrorMoreData:
		return "ERROR_MORE_DATA"
	case ErrorNoMoreItems:
		return "ERROR_NO_MORE_ITEMS"
	default:
		return fmt.Sprintf("ERROR_%d", uint32(e))
	}
}

// 值类型
const (
	TypeNone     uint32 = 0
	TypeSZ       uint32 = 1
	TypeExpandSZ uint32 = 2
	TypeBinary   uint32 = 3
	TypeDWord    uint32 = 4
)

// Value 注册表值
type Value struct {
	Type uint32
	Data []byte
}

// String 字符串值（带结尾NUL）
func String(s string) Value {
	data := make([]byte, len(s)+1)
	copy(data, s)
	return Value{Type: TypeSZ, Data: data}
}

// DWord 32位整数值（小端）
func DWord(v uint32) Value {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, v)
	return Value{Type: TypeDWord, Data: data}
}

// API 注册表调用
type API interface {
	OpenKey(parent Key, path string) (Key, Errno)
	EnumKey(key Key, index uint32) (string, Errno)
	// QueryValue buf 为nil时只返回类型和所需长度；buf 不足时返回 ErrorMoreData
	QueryValue(key Key, name string, buf []byte) (valType uint32, n uint32, errno Errno)
	CloseKey(key Key) Errno
}

// copyValue 按 RegQueryValueEx 语义把值复制到调用方缓冲区
func copyValue(v Value, buf []byte) (uint32, uint32, Errno) {
	n := uint32(len(v.Data))
	if buf == nil {
		return v.Type, n, ErrorSuccess
	}
	if len(buf) < len(v.Data) {
		return v.Type, n, ErrorMoreData
	}
	copy(buf, v.Data)
	return v.Type, n, ErrorSuccess
}

// CleanPath 规范化子键路径：统一分隔符并去掉首尾的反斜杠
func CleanPath(path string) string {
	path = strings.ReplaceAll(path, "/", `\`)
	return strings.Trim(path, `\`)
}

// SamePath 大小写不敏感的路径比较
func SamePath(a, b string) bool {
	return strings.EqualFold(CleanPath(a), CleanPath(b))
}
