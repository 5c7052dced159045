package service

import (
	"context"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/arcade-shim/internal/acio"
	"github.com/wfunc/arcade-shim/internal/logger"
	"github.com/wfunc/arcade-shim/internal/models"
	"github.com/wfunc/arcade-shim/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 缓冲参数
const (
	frameLogQueueSize     = 1000
	frameLogBatchSize     = 100
	frameLogFlushInterval = 5 * time.Second
)

// FrameLogService 总线帧日志服务
//
// Record 只做非阻塞入队，队列满时丢弃；后台协程批量写库。
type FrameLogService struct {
	repo      *repository.FrameLogRepository
	logger    *zap.Logger
	sessionID string
	interval  time.Duration

	mu       sync.Mutex
	buffer   []*models.FrameLog
	bufferCh chan *models.FrameLog
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	dropped atomic.Uint64
	written atomic.Uint64
}

// NewFrameLogService 创建帧日志服务并启动后台写入
func NewFrameLogService(db *gorm.DB) *FrameLogService {
	return newFrameLogService(db, frameLogFlushInterval)
}

func newFrameLogService(db *gorm.DB, interval time.Duration) *FrameLogService {
	s := &FrameLogService{
		repo:      repository.NewFrameLogRepository(db),
		logger:    logger.WithModule("acio"),
		sessionID: uuid.New().String(),
		interval:  interval,
		buffer:    make([]*models.FrameLog, 0, frameLogBatchSize),
		bufferCh:  make(chan *models.FrameLog, frameLogQueueSize),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	go s.backgroundWriter()
	return s
}

// SessionID 本次运行的会话ID
func (s *FrameLogService) SessionID() string {
	return s.sessionID
}

// Dropped 因队列满被丢弃的条数
func (s *FrameLogService) Dropped() uint64 {
	return s.dropped.Load()
}

// Written 已写入数据库的条数
func (s *FrameLogService) Written() uint64 {
	return s.written.Load()
}

// Hook 作为端口流量回调使用
func (s *FrameLogService) Hook() acio.TrafficHook {
	return s.Record
}

// Record 记录一帧，从不阻塞调用方
func (s *FrameLogService) Record(port string, dir acio.Direction, f *acio.Frame, raw []byte) {
	if f == nil {
		return
	}
	if raw == nil {
		raw, _ = acio.Encode(f)
	}

	now := time.Now()
	entry := &models.FrameLog{
		CreatedAt: now,
		SessionID: s.sessionID,
		Port:      port,
		Direction: models.FrameDirectionRX,
		Addr:      f.Addr,
		Code:      f.Code,
		Seq:       f.Seq,
		Length:    len(f.Payload),
		HexData:   hex.EncodeToString(raw),
		Decoded:   decode(dir, f),
		Timestamp: now.UnixMilli(),
	}
	if dir == acio.DirectionTX {
		entry.Direction = models.FrameDirectionTX
	}

	select {
	case s.bufferCh <- entry:
	default:
		if s.dropped.Add(1)%frameLogQueueSize == 1 {
			s.logger.Warn("帧日志缓冲区满，丢弃日志", zap.Uint64("dropped", s.dropped.Load()))
		}
	}
}

// decode 提取便于查询的字段
func decode(dir acio.Direction, f *acio.Frame) models.JSONData {
	d := models.JSONData{
		"command": acio.CommandName(f.Code),
		"node":    f.Node(),
	}
	if dir == acio.DirectionTX && len(f.Payload) > 0 {
		switch f.Payload[0] {
		case acio.StatusNotSupported:
			d["status"] = "not_supported"
		case acio.StatusInvalidParam:
			d["status"] = "invalid_param"
		}
	}
	return d
}

// backgroundWriter 后台写入协程
func (s *FrameLogService) backgroundWriter() {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case entry := <-s.bufferCh:
			s.mu.Lock()
			s.buffer = append(s.buffer, entry)
			if len(s.buffer) >= frameLogBatchSize {
				s.flushBuffer()
			}
			s.mu.Unlock()

		case <-ticker.C:
			s.mu.Lock()
			s.flushBuffer()
			s.mu.Unlock()

		case <-s.stopCh:
			// 退出前写入队列和缓冲区中剩余的日志
			s.mu.Lock()
		drain:
			for {
				select {
				case entry := <-s.bufferCh:
					s.buffer = append(s.buffer, entry)
				default:
					break drain
				}
			}
			s.flushBuffer()
			s.mu.Unlock()
			return
		}
	}
}

// flushBuffer 写入缓冲区的日志到数据库，调用方持有 mu
func (s *FrameLogService) flushBuffer() {
	if len(s.buffer) == 0 {
		return
	}

	if err := s.repo.CreateBatch(context.Background(), s.buffer); err != nil {
		s.logger.Error("批量写入帧日志失败", zap.Error(err), zap.Int("count", len(s.buffer)))
	} else {
		s.written.Add(uint64(len(s.buffer)))
		s.logger.Debug("批量写入帧日志成功", zap.Int("count", len(s.buffer)))
	}

	s.buffer = make([]*models.FrameLog, 0, frameLogBatchSize)
}

// Flush 立即写入已缓冲的日志（不包含仍在队列中的）
func (s *FrameLogService) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushBuffer()
}

// Stop 停止后台写入并落盘剩余日志
func (s *FrameLogService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		<-s.doneCh
		s.logger.Info("帧日志服务已停止",
			zap.String("session", s.sessionID),
			zap.Uint64("written", s.written.Load()),
			zap.Uint64("dropped", s.dropped.Load()))
	})
}

// Prune 删除早于 retention 的帧日志，retention<=0 时不做任何事
func (s *FrameLogService) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	n, err := s.repo.DeleteBefore(ctx, time.Now().Add(-retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("清理过期帧日志", zap.Int64("deleted", n), zap.Duration("retention", retention))
	}
	return n, nil
}

// Query 查询帧日志
func (s *FrameLogService) Query(ctx context.Context, q *models.FrameLogQuery) ([]*models.FrameLog, int64, error) {
	return s.repo.Query(ctx, q)
}
