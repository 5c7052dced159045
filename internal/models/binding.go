package models

import "time"

// ButtonBinding 按键绑定。同一游戏同名的多条记录中，Ordinal 最小的是主绑定，其余为备用
type ButtonBinding struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Game         string    `gorm:"type:varchar(32);index:idx_button_game_name;not null" json:"game"`
	Name         string    `gorm:"type:varchar(64);index:idx_button_game_name;not null" json:"name"`
	Ordinal      int       `gorm:"default:0" json:"ordinal"`
	Device       string    `gorm:"type:varchar(64)" json:"device"`
	KeyCode      uint16    `json:"key_code"`
	AnalogType   int       `gorm:"default:0" json:"analog_type"`
	DebounceUp   float64   `gorm:"default:0" json:"debounce_up"`
	DebounceDown float64   `gorm:"default:0" json:"debounce_down"`
	Invert       bool      `gorm:"default:false" json:"invert"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName 指定表名
func (ButtonBinding) TableName() string {
	return "button_bindings"
}

// AnalogBinding 模拟量绑定
type AnalogBinding struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Game           string    `gorm:"type:varchar(32);index:idx_analog_game_name;not null" json:"game"`
	Name           string    `gorm:"type:varchar(64);index:idx_analog_game_name;not null" json:"name"`
	Ordinal        int       `gorm:"default:0" json:"ordinal"`
	Device         string    `gorm:"type:varchar(64)" json:"device"`
	Index          int       `gorm:"column:axis_index" json:"index"`
	Sensitivity    float64   `gorm:"default:1" json:"sensitivity"`
	Deadzone       float64   `gorm:"default:0" json:"deadzone"`
	DeadzoneMirror bool      `gorm:"default:false" json:"deadzone_mirror"`
	Invert         bool      `gorm:"default:false" json:"invert"`
	Smoothing      bool      `gorm:"default:false" json:"smoothing"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName 指定表名
func (AnalogBinding) TableName() string {
	return "analog_bindings"
}

// LightBinding 灯光绑定
type LightBinding struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Game      string    `gorm:"type:varchar(32);index:idx_light_game_name;not null" json:"game"`
	Name      string    `gorm:"type:varchar(64);index:idx_light_game_name;not null" json:"name"`
	Ordinal   int       `gorm:"default:0" json:"ordinal"`
	Device    string    `gorm:"type:varchar(64)" json:"device"`
	Index     int       `gorm:"column:output_index" json:"index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 指定表名
func (LightBinding) TableName() string {
	return "light_bindings"
}

// OptionSetting 游戏选项值。多值选项同名多条，按 Ordinal 排序
type OptionSetting struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Game      string    `gorm:"type:varchar(32);index:idx_option_game_name;not null" json:"game"`
	Name      string    `gorm:"type:varchar(64);index:idx_option_game_name;not null" json:"name"`
	Ordinal   int       `gorm:"default:0" json:"ordinal"`
	Value     string    `gorm:"type:varchar(255)" json:"value"`
	Disabled  bool      `gorm:"default:false" json:"disabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 指定表名
func (OptionSetting) TableName() string {
	return "option_settings"
}
