package hardware

import (
	"encoding/binary"
	"math"

	"github.com/wfunc/arcade-shim/internal/input"
)

// nibbleScale 把[0,1]截断到[0,15]。用15.999而不是16，1.0不会溢出成16
const nibbleScale = 15.999

// ledBrightFull 亮度命令的满量程（0-127）
const ledBrightFull = 127.0

// PackNibble 归一化值编码为4位
func PackNibble(v float64) byte {
	return byte(clamp01(v) * nibbleScale)
}

// PackNibblePair 两个值编码为一个字节，hi 在高4位
func PackNibblePair(hi, lo float64) byte {
	return PackNibble(hi)<<4 | PackNibble(lo)
}

// ScaleU8 归一化值编码为8位
func ScaleU8(v float64) byte {
	return byte(clamp01(v) * 255)
}

// PutS16 以中心0.5为零点，把归一化值编码为大端有符号16位
func PutS16(buf []byte, v float64) {
	c := (clamp01(v) - 0.5) * 2
	binary.BigEndian.PutUint16(buf, uint16(int16(math.Round(c*math.MaxInt16))))
}

// LEDBright 8位亮度换算为[0,1]，满量程是127而不是255
func LEDBright(value byte) float64 {
	v := float64(value) / ledBrightFull
	if v > 1 {
		v = 1
	}
	return v
}

// ControlValue 同一槽位的按键力度优先于模拟值
func ControlValue(b *input.Button, a *input.Analog) float64 {
	if v := input.ButtonVelocity(b); v > 0 {
		return v
	}
	if a != nil && a.IsSet() {
		return a.State()
	}
	return 0
}

// SetBit 设置 buf[offset] 的第 bit 位
func SetBit(buf []byte, offset int, bit uint, on bool) {
	if offset < 0 || offset >= len(buf) {
		return
	}
	if on {
		buf[offset] |= 1 << bit
	} else {
		buf[offset] &^= 1 << bit
	}
}

// WriteOutputBits 按位扫描输出字，mapping[i] 是第 i 位对应的灯光索引。
// 索引为负或超出灯光表的位被忽略
func WriteOutputBits(sink input.LightSink, word uint32, mapping []int, lights []*input.Light) {
	for bit, idx := range mapping {
		if bit >= 32 || idx < 0 || idx >= len(lights) {
			continue
		}
		v := 0.0
		if word&(1<<uint(bit)) != 0 {
			v = 1
		}
		input.WriteLight(sink, lights[idx], v)
	}
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
