package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const clsid = "{232685C6-6548-49D8-846D-4141A3EF7560}"

func newRealRegistry() *MemoryAPI {
	m := NewMemoryAPI()
	m.Set(HKeyLocalMachine, `SOFTWARE\ASIO\Real Driver`, "CLSID", String(clsid))
	m.Set(HKeyLocalMachine, `SOFTWARE\ASIO\Real Driver`, "Description", String("Real Driver"))
	m.Set(HKeyLocalMachine, `SOFTWARE\ASIO\Other Driver`, "CLSID", String("{other}"))
	m.Set(HKeyLocalMachine, `SOFTWARE\Vendor`, "Version", DWord(7))
	return m
}

func query(t *testing.T, api API, key Key, name string) (uint32, string, Errno) {
	t.Helper()
	typ, n, errno := api.QueryValue(key, name, nil)
	if errno != ErrorSuccess {
		return typ, "", errno
	}
	buf := make([]byte, n)
	typ, n, errno = api.QueryValue(key, name, buf)
	return typ, string(buf[:n]), errno
}

func TestASIOOverride(t *testing.T) {
	backend := newRealRegistry()
	r := NewRedirector(backend)
	r.SetASIOOverride(&ASIOOverride{Driver: "Real Driver", Name: "XONAR SOUND CARD(64)"})

	root, errno := r.OpenKey(HKeyLocalMachine, `software\asio`)
	require.Equal(t, ErrorSuccess, errno)
	assert.True(t, r.IsVirtual(root))

	name, errno := r.EnumKey(root, 0)
	require.Equal(t, ErrorSuccess, errno)
	assert.Equal(t, "XONAR SOUND CARD(64)", name)
	_, errno = r.EnumKey(root, 1)
	assert.Equal(t, ErrorNoMoreItems, errno, "只暴露一个驱动")

	child, errno := r.OpenKey(root, name)
	require.Equal(t, ErrorSuccess, errno)

	typ, desc, errno := query(t, r, child, "Description")
	require.Equal(t, ErrorSuccess, errno)
	assert.Equal(t, TypeSZ, typ)
	assert.Equal(t, "XONAR SOUND CARD(64)\x00", desc, "带结尾NUL")

	_, id, errno := query(t, r, child, "CLSID")
	require.Equal(t, ErrorSuccess, errno)
	assert.Equal(t, clsid+"\x00", id, "其它值转发到真实驱动")

	_, _, errno = r.QueryValue(child, "Missing", nil)
	assert.Equal(t, ErrorFileNotFound, errno, "真实错误原样返回")

	_, errno = r.OpenKey(root, "Other Driver")
	assert.Equal(t, ErrorFileNotFound, errno)

	assert.Equal(t, 1, backend.OpenHandles(), "真实驱动键由重定向器持有")
	assert.Equal(t, ErrorSuccess, r.CloseKey(child))
	assert.Equal(t, ErrorSuccess, r.CloseKey(root))
	assert.Zero(t, backend.OpenHandles())
	assert.Zero(t, r.VirtualHandles())

	stats := r.Stats()
	assert.Equal(t, uint64(1), stats[0].Hits["asio-root"])
	assert.Equal(t, uint64(1), stats[0].Hits["asio-driver"])
	assert.Equal(t, uint64(1), stats[0].Hits["virtual-parent"])
}

func TestASIODriverOpenedByFullPath(t *testing.T) {
	r := NewRedirector(newRealRegistry())
	r.SetASIOOverride(&ASIOOverride{Driver: "Missing Driver", Name: "Shim"})

	child, errno := r.OpenKey(HKeyLocalMachine, `SOFTWARE\ASIO\shim\`)
	require.Equal(t, ErrorSuccess, errno)

	_, desc, errno := query(t, r, child, "description")
	require.Equal(t, ErrorSuccess, errno)
	assert.Equal(t, "Shim\x00", desc)

	// 真实驱动不存在时其它值找不到
	_, _, errno = r.QueryValue(child, "CLSID", nil)
	assert.Equal(t, ErrorFileNotFound, errno)
}

func TestQueryBufferTooSmall(t *testing.T) {
	r := NewRedirector(newRealRegistry())
	r.SetASIOOverride(&ASIOOverride{Driver: "Real Driver", Name: "Shim Driver"})
	child, _ := r.OpenKey(HKeyLocalMachine, `software\asio\Shim Driver`)

	typ, n, errno := r.QueryValue(child, "Description", make([]byte, 4))
	assert.Equal(t, ErrorMoreData, errno)
	assert.Equal(t, TypeSZ, typ)
	assert.Equal(t, uint32(len("Shim Driver")+1), n)
}

func TestPassthrough(t *testing.T) {
	backend := newRealRegistry()
	r := NewRedirector(backend)

	// 未设置ASIO重定向时看到真实驱动列表
	root, errno := r.OpenKey(HKeyLocalMachine, `software\asio`)
	require.Equal(t, ErrorSuccess, errno)
	assert.False(t, r.IsVirtual(root))
	name, _ := r.EnumKey(root, 1)
	assert.Equal(t, "Other Driver", name)
	assert.Equal(t, ErrorSuccess, r.CloseKey(root))

	vendor, errno := r.OpenKey(HKeyLocalMachine, `software\vendor`)
	require.Equal(t, ErrorSuccess, errno)
	typ, v, errno := query(t, r, vendor, "Version")
	require.Equal(t, ErrorSuccess, errno)
	assert.Equal(t, TypeDWord, typ)
	assert.Equal(t, "\x07\x00\x00\x00", v)
	r.CloseKey(vendor)

	_, errno = r.OpenKey(HKeyLocalMachine, `software\missing`)
	assert.Equal(t, ErrorFileNotFound, errno)
	assert.Equal(t, ErrorInvalidHandle, r.CloseKey(0x1234))
	assert.Zero(t, backend.OpenHandles())
}

func TestDeviceKey(t *testing.T) {
	r := NewRedirector(NewMemoryAPI())
	path := `SYSTEM\CurrentControlSet\Enum\ACPI\PNP0501\ACIO1\Device Parameters`
	r.AddDeviceKey(path, map[string]Value{"PortName": String("COM1")})

	k, errno := r.OpenKey(HKeyLocalMachine, `system\currentcontrolset\enum\acpi\pnp0501\acio1\device parameters`)
	require.Equal(t, ErrorSuccess, errno)
	_, port, errno := query(t, r, k, "PortName")
	require.Equal(t, ErrorSuccess, errno)
	assert.Equal(t, "COM1\x00", port)

	_, errno = r.OpenKey(k, "Sub")
	assert.Equal(t, ErrorFileNotFound, errno)
	_, errno = r.EnumKey(k, 0)
	assert.Equal(t, ErrorNoMoreItems, errno)
	assert.Equal(t, ErrorSuccess, r.CloseKey(k))
}

func TestErrnoString(t *testing.T) {
	assert.Equal(t, "ERROR_MORE_DATA", ErrorMoreData.String())
	assert.Equal(t, "ERROR_1234", Errno(1234).String())
}
