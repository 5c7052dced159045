package acio

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	apperrors "github.com/wfunc/arcade-shim/internal/errors"
	"github.com/wfunc/arcade-shim/internal/hardware"
	"github.com/wfunc/arcade-shim/internal/logger"
	"go.uber.org/zap"
)

// SerialServer 把虚拟端口桥接到真实串口（例如 null-modem 对端是另一台机器上的游戏）
type SerialServer struct {
	port *Port
	cfg  *hardware.SerialConfig
	open hardware.Opener
	log  *zap.Logger

	connected  atomic.Bool
	reconnects atomic.Uint64
}

// NewSerialServer 创建桥接服务，open 为nil时使用 tarm/serial
func NewSerialServer(port *Port, cfg *hardware.SerialConfig, open hardware.Opener) *SerialServer {
	if open == nil {
		open = hardware.OpenSerial
	}
	return &SerialServer{
		port: port,
		cfg:  cfg,
		open: open,
		log:  logger.WithModule("acio").With(zap.String("port", port.Name()), zap.String("device", cfg.Device)),
	}
}

// Connected 串口是否已连接
func (s *SerialServer) Connected() bool {
	return s.connected.Load()
}

// Reconnects 重连次数
func (s *SerialServer) Reconnects() uint64 {
	return s.reconnects.Load()
}

// Run 运行桥接，断线后按间隔重连，直到 ctx 取消
func (s *SerialServer) Run(ctx context.Context) error {
	interval := s.cfg.RetryInterval
	if interval <= 0 {
		interval = time.Second
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		dev, err := hardware.OpenWithRetry(s.open, s.cfg)
		if err != nil && !apperrors.IsRetryable(err) {
			s.log.Error("串口无法打开且不可重试，桥接停止", zap.Error(err))
			return err
		}
		if err != nil {
			s.log.Warn("串口不可用，稍后重试",
				zap.Bool("exists", hardware.SerialPortExists(s.cfg.Device)),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(interval):
				continue
			}
		}

		s.connected.Store(true)
		s.log.Info("串口桥接已连接")
		err = s.serve(ctx, dev)
		s.connected.Store(false)
		_ = dev.Close()

		if ctx.Err() != nil {
			s.log.Info("串口桥接停止")
			return nil
		}
		s.reconnects.Add(1)
		s.log.Warn("串口断开，准备重连", zap.Error(err))
	}
}

// serve 在一个连接上转发数据，读写错误时返回
func (s *SerialServer) serve(ctx context.Context, dev hardware.SerialPort) error {
	_ = s.port.Flush()
	buf := make([]byte, 512)
	out := make([]byte, 512)

	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := dev.Read(buf)
		if n > 0 {
			if _, werr := s.port.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}

		for {
			m, _ := s.port.Read(out)
			if m == 0 {
				break
			}
			if _, werr := dev.Write(out[:m]); werr != nil {
				return werr
			}
		}

		if n == 0 {
			// tarm/serial 在读超时时返回 0 字节；无超时配置时避免空转
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Millisecond):
			}
		}
	}
}
