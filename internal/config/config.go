package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	Game      GameConfig      `mapstructure:"game"`
	Ports     []PortConfig    `mapstructure:"ports"`
	Input     InputConfig     `mapstructure:"input"`
	Intercept InterceptConfig `mapstructure:"intercept"`
	Script    ScriptConfig    `mapstructure:"script"`
	Diag      DiagConfig      `mapstructure:"diag"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
}

// GameConfig 游戏配置
type GameConfig struct {
	Name           string        `mapstructure:"name"`            // 当前模拟的游戏（nostalgia / iidx / gitadora）
	SampleInterval time.Duration `mapstructure:"sample_interval"` // 输入采样周期
	FreezeOnStart  bool          `mapstructure:"freeze_on_start"` // 启动时冻结状态缓冲区（诊断用）
}

// PortConfig 虚拟串口配置
type PortConfig struct {
	Name          string        `mapstructure:"name"`   // 虚拟端口名（COM1/COM2/COM3）
	Device        string        `mapstructure:"device"` // 可选：桥接到真实串口设备（null-modem）
	BaudRate      int           `mapstructure:"baud_rate"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	RetryTimes    int           `mapstructure:"retry_times"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	LogFrames     bool          `mapstructure:"log_frames"` // 记录总线帧到数据库
}

// InputConfig 输入设备配置
type InputConfig struct {
	Keyboard bool        `mapstructure:"keyboard"`
	HID      []HIDConfig `mapstructure:"hid"`
}

// HIDConfig HID设备配置
type HIDConfig struct {
	Alias       string `mapstructure:"alias"` // 设备标识 hid:<alias>
	VendorID    uint16 `mapstructure:"vendor_id"`
	ProductID   uint16 `mapstructure:"product_id"`
	ReportID    byte   `mapstructure:"report_id"`
	OutputBytes int    `mapstructure:"output_bytes"` // 输出报告长度（灯光）
}

// InterceptConfig 拦截层配置
type InterceptConfig struct {
	Registry bool `mapstructure:"registry"` // 注册表重定向
	Ports    bool `mapstructure:"ports"`    // 串口枚举重定向
	Camera   bool `mapstructure:"camera"`   // 摄像头设备ID伪装

	ASIODriver string            `mapstructure:"asio_driver"` // 真实ASIO驱动子键名，为空时不覆盖
	ASIOName   string            `mapstructure:"asio_name"`   // 游戏看到的驱动名
	Cameras    map[string]string `mapstructure:"cameras"`     // 摄像头友好名称 -> 游戏期望的设备ID
}

// ScriptConfig 脚本配置
type ScriptConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Files   []string `mapstructure:"files"`
}

// DiagConfig 诊断服务配置
type DiagConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	Token           string        `mapstructure:"token"`         // 非空时要求 Bearer 令牌
	PushInterval    time.Duration `mapstructure:"push_interval"` // websocket推送状态缓冲区的周期
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig 数据库配置（绑定存储）
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	FrameRetention  time.Duration `mapstructure:"frame_retention"` // 帧日志保留时长，0 表示不清理
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"`
}

// LogFileConfig 日志文件配置
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
	v    *viper.Viper
)

// Init 初始化配置
func Init(configPath string) error {
	var err error
	once.Do(func() {
		v = viper.New()

		if configPath != "" {
			v.SetConfigFile(configPath)
		} else {
			v.SetConfigName("config")
			v.SetConfigType("yaml")
			v.AddConfigPath("./config")
			v.AddConfigPath(".")
		}

		v.SetEnvPrefix("ARCADE_SHIM")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		setDefaults(v)

		if err = v.ReadInConfig(); err != nil {
			// 配置文件不存在时使用默认配置
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return
			}
			err = nil
		}

		loaded := &Config{}
		if err = v.Unmarshal(loaded); err != nil {
			return
		}
		if err = Validate(loaded); err != nil {
			return
		}

		mu.Lock()
		cfg = loaded
		mu.Unlock()
	})

	return err
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	v.SetDefault("game.name", "nostalgia")
	v.SetDefault("game.sample_interval", "1ms")
	v.SetDefault("game.freeze_on_start", false)

	v.SetDefault("ports", []map[string]interface{}{
		{"name": "COM1"},
	})

	v.SetDefault("input.keyboard", true)

	v.SetDefault("intercept.registry", true)
	v.SetDefault("intercept.ports", true)
	v.SetDefault("intercept.camera", false)
	v.SetDefault("intercept.asio_name", "XONAR SOUND CARD(64)")

	v.SetDefault("script.enabled", false)

	v.SetDefault("diag.enabled", true)
	v.SetDefault("diag.host", "127.0.0.1")
	v.SetDefault("diag.port", 8088)
	v.SetDefault("diag.mode", "release")
	v.SetDefault("diag.token", "")
	v.SetDefault("diag.push_interval", "100ms")
	v.SetDefault("diag.shutdown_timeout", "5s")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/arcade-shim.db")
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.frame_retention", "72h")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "both")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "arcade-shim.log")
	v.SetDefault("log.file.max_size", 20)
	v.SetDefault("log.file.max_age", 14)
	v.SetDefault("log.file.max_backups", 5)
	v.SetDefault("log.file.compress", true)
}

// Validate 校验配置
func Validate(c *Config) error {
	if c.Game.Name == "" {
		return fmt.Errorf("game.name 不能为空")
	}
	if c.Game.SampleInterval <= 0 {
		return fmt.Errorf("game.sample_interval 必须大于0: %s", c.Game.SampleInterval)
	}
	seen := make(map[string]bool, len(c.Ports))
	for _, p := range c.Ports {
		name := strings.ToUpper(p.Name)
		if name == "" {
			return fmt.Errorf("ports: 端口名不能为空")
		}
		if seen[name] {
			return fmt.Errorf("ports: 重复的端口名 %s", p.Name)
		}
		seen[name] = true
	}
	for _, h := range c.Input.HID {
		if h.Alias == "" {
			return fmt.Errorf("input.hid: alias 不能为空 (vid=0x%04X pid=0x%04X)", h.VendorID, h.ProductID)
		}
	}
	return nil
}

// Get 获取配置实例
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Watch 监听配置文件变化
func Watch(callback func(*Config)) {
	if v == nil {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		newCfg := &Config{}
		if err := v.Unmarshal(newCfg); err != nil {
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}
		if err := Validate(newCfg); err != nil {
			fmt.Printf("配置校验失败，忽略本次变更: %v\n", err)
			return
		}

		mu.Lock()
		cfg = newCfg
		mu.Unlock()

		if callback != nil {
			callback(newCfg)
		}
	})
	v.WatchConfig()
}
