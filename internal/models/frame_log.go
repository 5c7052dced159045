package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// FrameDirection 帧方向
type FrameDirection string

const (
	FrameDirectionRX FrameDirection = "RX" // 游戏 -> 虚拟设备
	FrameDirectionTX FrameDirection = "TX" // 虚拟设备 -> 游戏
)

// JSONData 用于存储JSON格式的数据
type JSONData map[string]interface{}

// Value 实现 driver.Valuer 接口
func (j JSONData) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan 实现 sql.Scanner 接口
func (j *JSONData) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		strVal, ok := value.(string)
		if !ok {
			return nil
		}
		bytes = []byte(strVal)
	}
	return json.Unmarshal(bytes, j)
}

// FrameLog ACIO 总线帧记录
type FrameLog struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `gorm:"index;not null" json:"created_at"`

	SessionID string         `gorm:"type:varchar(64);index" json:"session_id"`
	Port      string         `gorm:"type:varchar(16);index;not null" json:"port"`
	Direction FrameDirection `gorm:"type:varchar(4);index;not null" json:"direction"`

	Addr    uint8  `json:"addr"`
	Code    uint16 `gorm:"index" json:"code"`
	Seq     uint8  `json:"seq"`
	Length  int    `json:"length"`
	HexData string `gorm:"type:text" json:"hex_data,omitempty"`
	// Decoded 解析出的字段（状态码、节点名等）
	Decoded JSONData `gorm:"type:json" json:"decoded,omitempty"`

	Timestamp int64 `gorm:"index" json:"timestamp"` // Unix毫秒
}

// TableName 指定表名
func (FrameLog) TableName() string {
	return "frame_logs"
}

// FrameLogQuery 查询参数
type FrameLogQuery struct {
	SessionID string         `json:"session_id,omitempty"`
	Port      string         `json:"port,omitempty"`
	Direction FrameDirection `json:"direction,omitempty"`
	Code      *uint16        `json:"code,omitempty"`
	StartTime *time.Time     `json:"start_time,omitempty"`
	EndTime   *time.Time     `json:"end_time,omitempty"`
	Limit     int            `json:"limit,omitempty"`
	Offset    int            `json:"offset,omitempty"`
}
