//go:build !windows

package registry

// NewSystemAPI 非Windows平台没有系统注册表，返回空的内存注册表
func NewSystemAPI() API {
	return NewMemoryAPI()
}
