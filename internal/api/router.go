// Package api 诊断HTTP接口：板卡状态、控件、投币/票据/键盘注入以及串口统计
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/arcade-shim/internal/acio"
	apperrors "github.com/wfunc/arcade-shim/internal/errors"
	"github.com/wfunc/arcade-shim/internal/game"
	"github.com/wfunc/arcade-shim/internal/input"
	"github.com/wfunc/arcade-shim/internal/intercept"
	"github.com/wfunc/arcade-shim/internal/middleware"
	"github.com/wfunc/arcade-shim/internal/service"
	ws "github.com/wfunc/arcade-shim/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps 诊断接口依赖，除 Instance 外都可以为nil
type Deps struct {
	Instance  *game.Instance
	Ports     *acio.PortSet
	Virtual   *input.VirtualBackend
	Hub       *ws.Hub
	DB        *gorm.DB
	FrameLogs *service.FrameLogService
	// Intercepts 拦截层命中统计
	Intercepts func() []intercept.Stats
	Token      string
}

// Router API路由器
type Router struct {
	engine *gin.Engine
	deps   Deps
	log    *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(deps Deps, log *zap.Logger) *Router {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Logger(log))

	r := &Router{
		engine: engine,
		deps:   deps,
		log:    log,
	}
	r.setupRoutes()
	return r
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	r.engine.GET("/health", r.healthCheck)
	registerOpenAPIRoutes(r.engine)

	auth := middleware.NewTokenAuth(r.deps.Token)

	v1 := r.engine.Group("/api/v1")
	v1.Use(auth.RequireAuth())
	{
		boards := v1.Group("/boards")
		{
			boards.GET("", r.listBoards)
			boards.GET("/:name/buffer", r.boardBuffer)
			boards.PUT("/:name/freeze", r.freezeBoard)
		}

		v1.GET("/controls", r.listControls)
		v1.GET("/options", r.listOptions)

		ticker := v1.Group("/ticker")
		{
			ticker.GET("", r.getTicker)
			ticker.PUT("", r.setTicker)
			ticker.DELETE("", r.resetTicker)
		}

		coins := v1.Group("/coins")
		{
			coins.GET("", r.getCoins)
			coins.PUT("", r.setCoins)
			coins.POST("/insert", r.insertCoins)
		}

		v1.GET("/keypad", r.getKeypad)
		v1.PUT("/keypad", r.setKeypad)
		v1.POST("/cards", r.insertCard)

		virtual := v1.Group("/virtual")
		{
			virtual.POST("/buttons", r.pressVirtual)
			virtual.POST("/analogs", r.setVirtualAnalog)
		}

		v1.GET("/ports", r.listPorts)
		v1.GET("/intercepts", r.listIntercepts)
		v1.GET("/frames", r.queryFrames)
	}

	wsGroup := r.engine.Group("/ws")
	wsGroup.Use(auth.RequireAuth())
	wsGroup.GET("", r.serveWebSocket)

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "NOT_FOUND",
			"message": "接口不存在",
		})
	})
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	status := gin.H{
		"status": "healthy",
		"game":   r.deps.Instance.Name,
		"boards": len(r.deps.Instance.Boards),
	}

	if r.deps.DB != nil {
		sqlDB, err := r.deps.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unhealthy",
				"message": "数据库连接失败",
			})
			return
		}
		status["database"] = "ok"
	}

	c.JSON(http.StatusOK, status)
}

// respond 成功响应
func respond(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

// fail 错误响应，状态码由错误码决定
func fail(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.Wrap(err, apperrors.ErrUnknown)
	}
	_ = c.Error(err)
	c.JSON(appErr.HTTPStatus(), apperrors.NewErrorResponse(appErr, middleware.GetRequestID(c)))
}

// badRequest 参数错误
func badRequest(c *gin.Context, err error) {
	fail(c, apperrors.Wrap(err, apperrors.ErrInvalidParam, "参数错误"))
}

// Serve 监听并服务，ctx 取消后在超时内优雅关闭
func (r *Router) Serve(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		r.log.Info("诊断服务启动", zap.String("address", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		r.log.Warn("诊断服务关闭超时", zap.Error(err))
		return err
	}
	r.log.Info("诊断服务已停止")
	return nil
}

// GetEngine 获取Gin引擎（用于测试）
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
