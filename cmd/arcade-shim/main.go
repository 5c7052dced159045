package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/wfunc/arcade-shim/internal/config"
	"github.com/wfunc/arcade-shim/internal/logger"
	"go.uber.org/zap"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		showVersion = flag.Bool("version", false, "显示版本信息")
		showHelp    = flag.Bool("help", false, "显示帮助信息")
	)
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}
	if *showHelp {
		printHelp()
		os.Exit(0)
	}

	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Get()

	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Cleanup()

	server := NewServer(cfg)
	if err := server.Start(); err != nil {
		logger.Error("启动失败", zap.Error(err))
		server.Shutdown()
		os.Exit(1)
	}

	server.WaitForShutdown()

	if err := server.Shutdown(); err != nil {
		logger.Error("关闭失败", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("已安全退出")
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("arcade-shim 街机IO兼容层\n")
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// printHelp 打印帮助信息
func printHelp() {
	fmt.Println("arcade-shim 街机IO兼容层")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  arcade-shim [选项]")
	fmt.Println()
	fmt.Println("选项:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("环境变量:")
	fmt.Println("  ARCADE_SHIM_GAME_NAME    模拟的游戏 (nostalgia/iidx/gitadora)")
	fmt.Println("  ARCADE_SHIM_LOG_LEVEL    日志级别")
	fmt.Println("  ARCADE_SHIM_DIAG_PORT    诊断服务端口")
}
