package input

import (
	"strconv"
	"strings"

	apperrors "github.com/wfunc/arcade-shim/internal/errors"
)

// OptionType 选项类型
type OptionType int

const (
	OptionBool OptionType = iota
	OptionText
	OptionInteger
	OptionEnum
)

// String 类型名称
func (t OptionType) String() string {
	switch t {
	case OptionBool:
		return "Bool"
	case OptionText:
		return "Text"
	case OptionInteger:
		return "Integer"
	case OptionEnum:
		return "Enum"
	default:
		return "Unknown"
	}
}

// OptionDefinition 选项定义
type OptionDefinition struct {
	Name     string
	Title    string
	Desc     string
	Type     OptionType
	Default  string
	Elements []string // 枚举可选值
	Hidden   bool
}

// Option 选项及当前值
type Option struct {
	Definition   OptionDefinition
	Value        string
	Alternatives []string // 多值选项的其它值
	Disabled     bool
}

// NewOption 以默认值创建选项
func NewOption(def OptionDefinition) *Option {
	return &Option{Definition: def, Value: def.Default}
}

// IsActive 选项是否生效
func (o *Option) IsActive() bool {
	return !o.Disabled && o.Value != ""
}

func (o *Option) require(types ...OptionType) {
	for _, t := range types {
		if o.Definition.Type == t {
			return
		}
	}
	apperrors.Contract(apperrors.ErrOptionType, "选项 %s 是 %s 类型，不能按 %s 读取",
		o.Definition.Name, o.Definition.Type, types[0])
}

// ValueBool 布尔值；类型不匹配时panic
func (o *Option) ValueBool() bool {
	o.require(OptionBool)
	switch strings.ToLower(strings.TrimSpace(o.Value)) {
	case "1", "true", "on", "yes":
		return true
	default:
		return false
	}
}

// ValueInt 整数值；类型不匹配时panic，无法解析时返回0
func (o *Option) ValueInt() int {
	o.require(OptionInteger)
	n, err := strconv.Atoi(strings.TrimSpace(o.Value))
	if err != nil {
		return 0
	}
	return n
}

// ValueText 文本值（文本或枚举）；类型不匹配时panic
func (o *Option) ValueText() string {
	o.require(OptionText, OptionEnum)
	return o.Value
}

// ValueTexts 多值选项的全部文本值
func (o *Option) ValueTexts() []string {
	o.require(OptionText, OptionEnum)
	values := make([]string, 0, 1+len(o.Alternatives))
	if o.Value != "" {
		values = append(values, o.Value)
	}
	for _, v := range o.Alternatives {
		if v != "" {
			values = append(values, v)
		}
	}
	return values
}
