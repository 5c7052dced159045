package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/wfunc/arcade-shim/internal/errors"
	"github.com/wfunc/arcade-shim/internal/game"
	ws "github.com/wfunc/arcade-shim/internal/websocket"
	"go.uber.org/zap"
)

// FreezeRequest 冻结请求
type FreezeRequest struct {
	Frozen *bool `json:"frozen" binding:"required"`
}

func (r *Router) board(c *gin.Context) (game.Board, bool) {
	name := c.Param("name")
	b, ok := r.deps.Instance.Board(name)
	if !ok {
		fail(c, apperrors.New(apperrors.ErrBoardNotFound, name))
	}
	return b, ok
}

// listBoards 全部板卡的状态
func (r *Router) listBoards(c *gin.Context) {
	out := make([]ws.BoardStatus, 0, len(r.deps.Instance.Boards))
	for _, b := range r.deps.Instance.Boards {
		out = append(out, ws.StatusOf(b))
	}
	respond(c, out)
}

// boardBuffer 单块板卡的状态缓冲区；format=raw 时直接返回字节
func (r *Router) boardBuffer(c *gin.Context) {
	b, ok := r.board(c)
	if !ok {
		return
	}
	if c.Query("format") == "raw" {
		c.Data(http.StatusOK, "application/octet-stream", b.Bytes())
		return
	}
	respond(c, ws.StatusOf(b))
}

// freezeBoard 冻结/解冻状态缓冲区
func (r *Router) freezeBoard(c *gin.Context) {
	b, ok := r.board(c)
	if !ok {
		return
	}
	var req FreezeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	b.SetFreeze(*req.Frozen)
	r.log.Info("板卡冻结状态变更", zap.String("board", b.Name()), zap.Bool("frozen", *req.Frozen))
	respond(c, ws.StatusOf(b))
}
