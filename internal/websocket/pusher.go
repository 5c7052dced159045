package websocket

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/wfunc/arcade-shim/internal/game"
	"go.uber.org/zap"
)

// BoardStatus 推送给客户端的板卡状态
type BoardStatus struct {
	Name    string `json:"name"`
	Buffer  string `json:"buffer"` // 十六进制
	Size    int    `json:"size"`
	Frozen  bool   `json:"frozen"`
	Updates uint64 `json:"updates"`
}

// StatusOf 取板卡当前状态
func StatusOf(b game.Board) BoardStatus {
	buf := b.Bytes()
	return BoardStatus{
		Name:    b.Name(),
		Buffer:  hex.EncodeToString(buf),
		Size:    len(buf),
		Frozen:  b.Frozen(),
		Updates: b.Updates(),
	}
}

// StatusMessage 板卡状态消息
func StatusMessage(b game.Board) (*Message, error) {
	data, err := json.Marshal(StatusOf(b))
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      MessageTypeStatus,
		Board:     b.Name(),
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

// StatusPusher 定期把变化的状态缓冲区广播出去
type StatusPusher struct {
	hub      *Hub
	boards   []game.Board
	interval time.Duration
	last     map[string]pushed
}

type pushed struct {
	buf    []byte
	frozen bool
}

// NewStatusPusher 创建推送器，interval<=0 时取 100ms
func NewStatusPusher(hub *Hub, boards []game.Board, interval time.Duration) *StatusPusher {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &StatusPusher{
		hub:      hub,
		boards:   boards,
		interval: interval,
		last:     make(map[string]pushed),
	}
}

// Run 按周期推送，直到 ctx 取消
func (p *StatusPusher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Push()
		}
	}
}

// Push 推送一轮，返回广播的板卡数
func (p *StatusPusher) Push() int {
	n := 0
	for _, b := range p.boards {
		buf := b.Bytes()
		frozen := b.Frozen()
		prev, seen := p.last[b.Name()]
		if seen && prev.frozen == frozen && bytes.Equal(prev.buf, buf) {
			continue
		}
		p.last[b.Name()] = pushed{buf: buf, frozen: frozen}

		msg, err := StatusMessage(b)
		if err != nil {
			p.hub.logger.Error("序列化板卡状态失败", zap.String("board", b.Name()), zap.Error(err))
			continue
		}
		p.hub.Broadcast(msg)
		n++
	}
	return n
}
