package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/arcade-shim/internal/acio"
	"github.com/wfunc/arcade-shim/internal/api"
	"github.com/wfunc/arcade-shim/internal/config"
	"github.com/wfunc/arcade-shim/internal/database"
	"github.com/wfunc/arcade-shim/internal/devices"
	"github.com/wfunc/arcade-shim/internal/errors"
	"github.com/wfunc/arcade-shim/internal/game"
	"github.com/wfunc/arcade-shim/internal/game/gitadora"
	"github.com/wfunc/arcade-shim/internal/game/iidx"
	"github.com/wfunc/arcade-shim/internal/game/nostalgia"
	"github.com/wfunc/arcade-shim/internal/hardware"
	"github.com/wfunc/arcade-shim/internal/hidio"
	"github.com/wfunc/arcade-shim/internal/input"
	"github.com/wfunc/arcade-shim/internal/intercept"
	"github.com/wfunc/arcade-shim/internal/logger"
	"github.com/wfunc/arcade-shim/internal/registry"
	"github.com/wfunc/arcade-shim/internal/repository"
	"github.com/wfunc/arcade-shim/internal/script"
	"github.com/wfunc/arcade-shim/internal/service"
	"github.com/wfunc/arcade-shim/internal/tables"
	ws "github.com/wfunc/arcade-shim/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Server 进程内全部组件
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	db        *gorm.DB
	mux       *input.Mux
	virtual   *input.VirtualBackend
	hid       *hidio.Backend
	exports   *intercept.ExportTable
	inst      *game.Instance
	ports     *acio.PortSet
	bridges   []*acio.SerialServer
	frameLogs *service.FrameLogService
	sampler   *input.Sampler

	redirector *registry.Redirector
	enumerator *devices.PortEnumerator
	cameras    *devices.CameraSpoofer

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer 创建实例
func NewServer(cfg *config.Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:    cfg,
		logger: logger.GetLogger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start 按依赖顺序初始化并启动
func (s *Server) Start() error {
	s.logger.Info("正在启动 arcade-shim...",
		zap.String("version", Version),
		zap.String("game", s.cfg.Game.Name))

	s.initDatabase()
	s.initInput()

	if err := s.initGame(); err != nil {
		return err
	}
	s.initPorts()
	s.initIntercept()

	s.sampler = input.NewSampler(s.mux, s.cfg.Game.SampleInterval)
	s.sampler.Add(s.inst.Set.Buttons, s.inst.Set.Analogs)
	s.goRun("sampler", func(ctx context.Context) { _ = s.sampler.Run(ctx) })

	if s.hid != nil {
		s.goRun("hid", s.hid.Run)
	}
	for _, b := range s.bridges {
		bridge := b
		s.goRun("serial", func(ctx context.Context) { _ = bridge.Run(ctx) })
	}

	if s.cfg.Script.Enabled {
		engine := script.New(script.Env{Instance: s.inst, Virtual: s.virtual, Sink: s.mux})
		failed := engine.RunFiles(s.ctx, s.cfg.Script.Files)
		s.logger.Info("启动脚本执行完成",
			zap.Int("files", len(s.cfg.Script.Files)),
			zap.Int("failed", failed))
	}

	if s.cfg.Diag.Enabled {
		s.startDiag()
	}

	config.Watch(func(newCfg *config.Config) {
		logger.SetLevel(newCfg.Log.Level)
		s.logger.Info("配置已更新", zap.String("log_level", newCfg.Log.Level))
	})

	s.logger.Info("启动完成",
		zap.Strings("ports", s.ports.Names()),
		zap.Strings("exports", s.exports.Names()))
	return nil
}

// initDatabase 打开绑定库；失败时使用默认绑定继续运行
func (s *Server) initDatabase() {
	if err := database.Init(&s.cfg.Database); err != nil {
		s.logger.Warn("数据库不可用，使用默认绑定", zap.Error(err))
		return
	}
	db := database.GetDB()
	if s.cfg.Database.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			s.logger.Warn("数据库迁移失败，使用默认绑定", zap.Error(err))
			return
		}
	}
	s.db = db
}

// initInput 注册输入后端
func (s *Server) initInput() {
	s.mux = input.NewMux()
	s.virtual = input.NewVirtualBackend()
	s.mux.Register(input.DeviceVirtual, s.virtual)

	if s.cfg.Input.Keyboard {
		s.mux.Register(input.DeviceKeyboard, input.NewKeyboardBackend())
	}
	if len(s.cfg.Input.HID) > 0 {
		if err := hidio.Init(); err != nil {
			s.logger.Warn("HID初始化失败", zap.Error(err))
			return
		}
		s.hid = hidio.NewBackend(s.cfg.Input.HID, nil)
		s.mux.Register(strings.TrimSuffix(input.DeviceHIDPrefix, ":"), s.hid)
	}
	s.logger.Info("输入后端已注册", zap.Strings("devices", s.mux.Devices()))
}

// initGame 构建游戏实例
func (s *Server) initGame() error {
	var store tables.Store
	if s.db != nil {
		store = repository.NewBindingRepository(s.db)
	}

	games := game.NewRegistry(nostalgia.New(), iidx.New(), gitadora.New())
	s.exports = intercept.NewExportTable(s.cfg.Game.Name)
	inst, err := games.Build(s.ctx, s.cfg.Game.Name, &game.Env{
		Tables:  tables.NewRegistry(store),
		Sink:    s.mux,
		Exports: s.exports,
	})
	if err != nil {
		return err
	}
	if s.cfg.Game.FreezeOnStart {
		for _, b := range inst.Boards {
			b.SetFreeze(true)
		}
	}
	s.inst = inst
	return nil
}

// initPorts 把配置的虚拟端口接到游戏的总线上
func (s *Server) initPorts() {
	s.ports = acio.NewPortSet()

	for _, pc := range s.cfg.Ports {
		name := acio.NormalizeName(pc.Name)
		bus, ok := s.inst.Buses[name]
		if !ok {
			s.logger.Warn("游戏没有该端口的总线，跳过", zap.String("port", name))
			continue
		}
		port := s.ports.Add(name, bus)

		if pc.LogFrames {
			if s.frameLogs == nil && s.db != nil {
				s.frameLogs = service.NewFrameLogService(s.db)
				if _, err := s.frameLogs.Prune(s.ctx, s.cfg.Database.FrameRetention); err != nil {
					s.logger.Warn("清理帧日志失败", zap.Error(err))
				}
			}
			if s.frameLogs != nil {
				port.SetHook(s.frameLogs.Hook())
			}
		}

		if pc.Device != "" {
			s.bridges = append(s.bridges, acio.NewSerialServer(port, &hardware.SerialConfig{
				Device:        pc.Device,
				BaudRate:      pc.BaudRate,
				ReadTimeout:   pc.ReadTimeout,
				RetryTimes:    pc.RetryTimes,
				RetryInterval: pc.RetryInterval,
			}, nil))
		}
	}
}

// initIntercept 注册表/串口枚举/摄像头拦截，通过导出表交给注入层
func (s *Server) initIntercept() {
	ic := s.cfg.Intercept
	if ic.Registry || ic.Ports {
		// 串口枚举要用重定向器挂 PortName 键，只开串口拦截时不导出 Reg* 函数
		s.redirector = registry.NewRedirector(registry.NewSystemAPI())
		if ic.ASIODriver != "" {
			s.redirector.SetASIOOverride(&registry.ASIOOverride{Driver: ic.ASIODriver, Name: ic.ASIOName})
		}
	}
	if ic.Registry {
		s.exports.Provide("RegOpenKeyExA", s.redirector.OpenKey)
		s.exports.Provide("RegEnumKeyA", s.redirector.EnumKey)
		s.exports.Provide("RegQueryValueExA", s.redirector.QueryValue)
		s.exports.Provide("RegCloseKey", s.redirector.CloseKey)
	}
	if ic.Ports {
		s.enumerator = devices.NewPortEnumerator(devices.NewSystemEnumerator(), s.redirector, s.ports.Names())
		s.exports.Provide("SetupDiGetClassDevsA", s.enumerator.Devices)
	}
	if ic.Camera {
		s.cameras = devices.NewCameraSpoofer(ic.Cameras)
		s.exports.Provide("MFEnumDeviceSources", s.cameras.Spoof)
	}
}

// interceptStats 汇总拦截层命中
func (s *Server) interceptStats() []intercept.Stats {
	var out []intercept.Stats
	if s.redirector != nil {
		out = append(out, s.redirector.Stats()...)
	}
	if s.enumerator != nil {
		out = append(out, s.enumerator.Stats())
	}
	if s.cameras != nil {
		spoofed, skipped := s.cameras.Counts()
		out = append(out, intercept.Stats{
			Name:        "camera",
			Hits:        map[string]uint64{"spoof": spoofed},
			Passthrough: skipped,
		})
	}
	return out
}

// startDiag 启动诊断HTTP与状态推送
func (s *Server) startDiag() {
	dc := s.cfg.Diag
	if dc.Mode != "" {
		gin.SetMode(dc.Mode)
	}
	log := logger.WithModule("diag")

	hub := ws.NewHub(log)
	s.goRun("hub", hub.Run)
	pusher := ws.NewStatusPusher(hub, s.inst.Boards, dc.PushInterval)
	s.goRun("pusher", pusher.Run)

	router := api.NewRouter(api.Deps{
		Instance:   s.inst,
		Ports:      s.ports,
		Virtual:    s.virtual,
		Hub:        hub,
		DB:         s.db,
		FrameLogs:  s.frameLogs,
		Intercepts: s.interceptStats,
		Token:      dc.Token,
	}, log)

	addr := fmt.Sprintf("%s:%d", dc.Host, dc.Port)
	s.goRun("diag", func(ctx context.Context) {
		if err := router.Serve(ctx, addr, dc.ShutdownTimeout); err != nil {
			log.Error("诊断服务异常退出", zap.Error(err))
		}
	})
}

// goRun 启动后台协程，Shutdown 时等待其退出
func (s *Server) goRun(name string, fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.LogPanic(r, debug.Stack())
			}
		}()
		fn(s.ctx)
		s.logger.Debug("后台任务退出", zap.String("task", name))
	}()
}

// WaitForShutdown 等待退出信号
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	sig := <-sigCh
	s.logger.Info("收到退出信号", zap.String("signal", sig.String()))
}

// Shutdown 取消全部后台任务并释放资源
func (s *Server) Shutdown() error {
	s.logger.Info("正在关闭...")
	s.cancel()

	timeout := s.cfg.Diag.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		s.logger.Info("后台任务已全部退出")
	case <-time.After(timeout):
		s.logger.Warn("关闭超时，强制退出")
		err = errors.New(errors.ErrTimeout, "关闭超时")
	}

	for _, b := range s.bridges {
		s.logger.Info("串口桥接统计", zap.Uint64("reconnects", b.Reconnects()))
	}
	if s.frameLogs != nil {
		s.frameLogs.Stop()
	}
	if s.hid != nil {
		_ = hidio.Exit()
	}
	if s.ports != nil {
		for _, name := range s.ports.Names() {
			if p, ok := s.ports.Get(name); ok {
				_ = p.Close()
			}
		}
	}
	if err := database.Close(); err != nil {
		s.logger.Error("关闭数据库失败", zap.Error(err))
	}
	return err
}
