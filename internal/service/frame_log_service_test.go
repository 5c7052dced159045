package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/arcade-shim/internal/acio"
	"github.com/wfunc/arcade-shim/internal/models"
	"github.com/wfunc/arcade-shim/internal/repository"
)

func TestFrameLogServiceRecordsBusTraffic(t *testing.T) {
	db := repository.SetupTestDB(t)
	svc := newFrameLogService(db, time.Hour)
	require.NotEmpty(t, svc.SessionID())

	req := acio.NewFrame(1, 0x7777, 3, nil)
	svc.Hook()("COM1", acio.DirectionRX, req, nil)
	resp := req.Reply([]byte{acio.StatusNotSupported})
	raw, err := acio.Encode(resp)
	require.NoError(t, err)
	svc.Hook()("COM1", acio.DirectionTX, resp, raw)
	svc.Record("COM1", acio.DirectionRX, nil, nil)

	svc.Stop()
	svc.Stop()
	assert.Equal(t, uint64(2), svc.Written())
	assert.Zero(t, svc.Dropped())

	logs, total, err := svc.Query(context.Background(), &models.FrameLogQuery{SessionID: svc.SessionID()})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, logs, 2)

	var tx, rx *models.FrameLog
	for _, l := range logs {
		if l.Direction == models.FrameDirectionTX {
			tx = l
		} else {
			rx = l
		}
	}
	require.NotNil(t, tx)
	require.NotNil(t, rx)
	assert.Equal(t, uint8(0x81), tx.Addr)
	assert.Equal(t, "not_supported", tx.Decoded["status"])
	assert.Equal(t, "0x7777", rx.Decoded["command"])
	assert.NotEmpty(t, rx.HexData, "请求帧没有原始字节时重新编码")
	assert.Equal(t, "aa", rx.HexData[:2])
}

func TestFrameLogServiceDropsWhenFull(t *testing.T) {
	db := repository.SetupTestDB(t)
	svc := newFrameLogService(db, time.Hour)

	// 占住缓冲锁，后台协程无法消费
	svc.mu.Lock()
	f := acio.NewFrame(1, acio.CmdGetStatus, 0, nil)
	for i := 0; i < frameLogQueueSize+50; i++ {
		svc.Record("COM1", acio.DirectionRX, f, []byte{0xAA})
	}
	svc.mu.Unlock()

	assert.GreaterOrEqual(t, svc.Dropped(), uint64(49))
	svc.Stop()
	assert.Equal(t, uint64(frameLogQueueSize+50)-svc.Dropped(), svc.Written())
}

func TestFrameLogServicePrune(t *testing.T) {
	db := repository.SetupTestDB(t)
	svc := newFrameLogService(db, time.Hour)
	defer svc.Stop()

	ctx := context.Background()
	repo := repository.NewFrameLogRepository(db)
	require.NoError(t, repo.Create(ctx, &models.FrameLog{
		CreatedAt: time.Now().Add(-48 * time.Hour),
		SessionID: "old",
		Port:      "COM1",
		Direction: models.FrameDirectionRX,
	}))
	require.NoError(t, repo.Create(ctx, &models.FrameLog{
		CreatedAt: time.Now(),
		SessionID: "new",
		Port:      "COM1",
		Direction: models.FrameDirectionRX,
	}))

	n, err := svc.Prune(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = svc.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, total, err := svc.Query(ctx, &models.FrameLogQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}
