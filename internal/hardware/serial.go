package hardware

import (
	"io"
	"os"
	"time"

	"github.com/tarm/serial"
	apperrors "github.com/wfunc/arcade-shim/internal/errors"
	"github.com/wfunc/arcade-shim/internal/logger"
	"go.uber.org/zap"
)

// SerialPort 串口接口（用于测试）
type SerialPort interface {
	io.ReadWriteCloser
	Flush() error
}

// SerialConfig 串口配置
type SerialConfig struct {
	Device        string
	BaudRate      int
	DataBits      byte
	StopBits      byte
	Parity        string
	ReadTimeout   time.Duration
	RetryTimes    int
	RetryInterval time.Duration
}

// Opener 打开串口的函数
type Opener func(cfg *SerialConfig) (SerialPort, error)

// SerialPortExists 检查串口设备是否存在
func SerialPortExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// OpenSerial 用 tarm/serial 打开真实串口
func OpenSerial(cfg *SerialConfig) (SerialPort, error) {
	if cfg.Device == "" {
		return nil, apperrors.New(apperrors.ErrConfigMissing, "未配置串口设备")
	}

	parity := serial.ParityNone
	switch cfg.Parity {
	case "O", "odd":
		parity = serial.ParityOdd
	case "E", "even":
		parity = serial.ParityEven
	}

	dataBits := cfg.DataBits
	if dataBits == 0 {
		dataBits = 8
	}
	stopBits := serial.Stop1
	if cfg.StopBits == 2 {
		stopBits = serial.Stop2
	}
	baud := cfg.BaudRate
	if baud == 0 {
		baud = 57600
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        baud,
		Size:        dataBits,
		Parity:      parity,
		StopBits:    stopBits,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrSerialPortOpen, "串口 %s", cfg.Device)
	}

	logger.Info("串口连接成功",
		zap.String("device", cfg.Device),
		zap.Int("baud_rate", baud))
	return port, nil
}

// OpenWithRetry 按配置的次数和间隔重试打开
func OpenWithRetry(open Opener, cfg *SerialConfig) (SerialPort, error) {
	attempts := cfg.RetryTimes
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		port, err := open(cfg)
		if err == nil {
			return port, nil
		}
		lastErr = err
		logger.Warn("打开串口失败",
			zap.String("device", cfg.Device),
			zap.Int("attempt", i+1),
			zap.Error(err))
		if apperrors.IsCritical(err) {
			return nil, err
		}
		if i+1 < attempts && cfg.RetryInterval > 0 {
			time.Sleep(cfg.RetryInterval)
		}
	}
	return nil, apperrors.Wrapf(lastErr, apperrors.ErrSerialPortOpen, "重试 %d 次仍无法打开串口", attempts)
}
