package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/arcade-shim/internal/acio"
	apperrors "github.com/wfunc/arcade-shim/internal/errors"
	"github.com/wfunc/arcade-shim/internal/hardware"
	"go.uber.org/zap"
)

// TickerRequest 设置字幕
type TickerRequest struct {
	Text string `json:"text"`
}

// TickerView 字幕状态
type TickerView struct {
	Text       string `json:"text"`
	Overridden bool   `json:"overridden"`
}

// CoinsRequest 设置或投入投币数
type CoinsRequest struct {
	Count *int `json:"count" binding:"required,min=0"`
}

// CoinsView 投币状态
type CoinsView struct {
	Count   int  `json:"count"`
	Blocked bool `json:"blocked"`
}

// KeypadRequest 读卡器键盘按键，Keys 如 "12"、"A"(00)、"D"(小数点)
type KeypadRequest struct {
	Unit int    `json:"unit" binding:"min=0"`
	Keys string `json:"keys"`
}

// CardRequest 插卡请求，ID 为16位十六进制卡号
type CardRequest struct {
	Unit int    `json:"unit" binding:"min=0"`
	ID   string `json:"id" binding:"required"`
}

// KeypadView 键盘状态
type KeypadView struct {
	Unit int    `json:"unit"`
	Mask uint16 `json:"mask"`
}

func unsupported(c *gin.Context, what string) {
	fail(c, apperrors.Newf(apperrors.ErrNotImplemented, "%s 不支持", what))
}

func tickerView(t *hardware.Ticker) TickerView {
	return TickerView{Text: t.Get(), Overridden: t.Overridden()}
}

func coinsView(cs *hardware.Coins) CoinsView {
	return CoinsView{Count: cs.Get(), Blocked: cs.Blocked()}
}

// getTicker 读取字幕
func (r *Router) getTicker(c *gin.Context) {
	t := r.deps.Instance.Ticker
	if t == nil {
		unsupported(c, "字幕")
		return
	}
	respond(c, tickerView(t))
}

// setTicker 接管字幕
func (r *Router) setTicker(c *gin.Context) {
	t := r.deps.Instance.Ticker
	if t == nil {
		unsupported(c, "字幕")
		return
	}
	var req TickerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	t.Set(req.Text)
	respond(c, tickerView(t))
}

// resetTicker 解除接管
func (r *Router) resetTicker(c *gin.Context) {
	t := r.deps.Instance.Ticker
	if t == nil {
		unsupported(c, "字幕")
		return
	}
	t.Reset()
	respond(c, tickerView(t))
}

// getCoins 读取投币数
func (r *Router) getCoins(c *gin.Context) {
	cs := r.deps.Instance.Coins
	if cs == nil {
		unsupported(c, "投币")
		return
	}
	respond(c, coinsView(cs))
}

// setCoins 直接设置投币数
func (r *Router) setCoins(c *gin.Context) {
	cs := r.deps.Instance.Coins
	if cs == nil {
		unsupported(c, "投币")
		return
	}
	var req CoinsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cs.Set(*req.Count)
	respond(c, coinsView(cs))
}

// insertCoins 投币，未带请求体时投入1枚；投币器关闭时返回409
func (r *Router) insertCoins(c *gin.Context) {
	cs := r.deps.Instance.Coins
	if cs == nil {
		unsupported(c, "投币")
		return
	}
	n := 1
	if c.Request.ContentLength > 0 {
		var req CoinsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		n = *req.Count
	}
	if !cs.Insert(n) {
		c.JSON(409, gin.H{
			"success": false,
			"message": fmt.Sprintf("投币被退回（投币器关闭或数量无效: %d）", n),
			"data":    coinsView(cs),
		})
		return
	}
	r.log.Info("模拟投币", zap.Int("count", n), zap.Int("total", cs.Get()))
	respond(c, coinsView(cs))
}

// getKeypad 读取两个读卡器的键盘位图
func (r *Router) getKeypad(c *gin.Context) {
	k := r.deps.Instance.Keypad
	if k == nil {
		unsupported(c, "键盘")
		return
	}
	out := make([]KeypadView, 0, hardware.KeypadUnits)
	for unit := 0; unit < hardware.KeypadUnits; unit++ {
		out = append(out, KeypadView{Unit: unit, Mask: k.Get(unit)})
	}
	respond(c, out)
}

// setKeypad 设置按下的按键，Keys 为空时全部松开
func (r *Router) setKeypad(c *gin.Context) {
	k := r.deps.Instance.Keypad
	if k == nil {
		unsupported(c, "键盘")
		return
	}
	var req KeypadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Unit >= hardware.KeypadUnits {
		fail(c, apperrors.Newf(apperrors.ErrInvalidParam, "读卡器编号 %d 越界", req.Unit))
		return
	}
	k.Set(req.Unit, hardware.ParseKeypad(req.Keys))
	respond(c, KeypadView{Unit: req.Unit, Mask: k.Get(req.Unit)})
}

// insertCard 向读卡器插入卡片，游戏打开卡槽后轮询可见
func (r *Router) insertCard(c *gin.Context) {
	var req CardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	reader, ok := r.deps.Instance.Card(req.Unit)
	if !ok {
		fail(c, apperrors.Newf(apperrors.ErrNodeNotFound, "读卡器 %d", req.Unit))
		return
	}
	id, err := acio.ParseCardID(req.ID)
	if err != nil {
		fail(c, err)
		return
	}
	reader.InsertCard(id)
	r.log.Info("模拟插卡", zap.Int("unit", req.Unit), zap.String("reader", reader.Name()))
	respond(c, gin.H{"unit": req.Unit, "reader": reader.Name()})
}
