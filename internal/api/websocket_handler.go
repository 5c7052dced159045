package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	apperrors "github.com/wfunc/arcade-shim/internal/errors"
	ws "github.com/wfunc/arcade-shim/internal/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// 诊断服务默认只监听本机，需要时用令牌保护
	CheckOrigin: func(r *http.Request) bool { return true },
}

// serveWebSocket 推送状态缓冲区，?board= 只订阅一块板卡
func (r *Router) serveWebSocket(c *gin.Context) {
	hub := r.deps.Hub
	if hub == nil {
		fail(c, apperrors.New(apperrors.ErrNotImplemented, "状态推送未启用"))
		return
	}

	board := c.Query("board")
	if board != "" {
		if _, ok := r.deps.Instance.Board(board); !ok {
			fail(c, apperrors.New(apperrors.ErrBoardNotFound, board))
			return
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		r.log.Error("WebSocket升级失败", zap.Error(err))
		return
	}

	client := ws.NewClient(hub, conn, board)

	// 新连接先收到一份完整快照，之后只收变化
	for _, b := range r.deps.Instance.Boards {
		if !client.Subscribed(b.Name()) {
			continue
		}
		if msg, err := ws.StatusMessage(b); err == nil {
			_ = client.Enqueue(msg)
		}
	}
	hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
