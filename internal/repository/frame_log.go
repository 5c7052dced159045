package repository

import (
	"context"
	"time"

	"github.com/wfunc/arcade-shim/internal/models"
	"gorm.io/gorm"
)

// FrameLogRepository 总线帧日志仓库
type FrameLogRepository struct {
	db *gorm.DB
}

// NewFrameLogRepository 创建帧日志仓库
func NewFrameLogRepository(db *gorm.DB) *FrameLogRepository {
	return &FrameLogRepository{db: db}
}

// Create 创建日志记录
func (r *FrameLogRepository) Create(ctx context.Context, log *models.FrameLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// CreateBatch 批量创建日志记录
func (r *FrameLogRepository) CreateBatch(ctx context.Context, logs []*models.FrameLog) error {
	if len(logs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(logs, 100).Error
}

// GetBySessionID 按会话取日志（时间正序）
func (r *FrameLogRepository) GetBySessionID(ctx context.Context, sessionID string) ([]*models.FrameLog, error) {
	var logs []*models.FrameLog
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("timestamp ASC, id ASC").
		Find(&logs).Error
	return logs, err
}

// Query 查询日志，返回当前页和总数
func (r *FrameLogRepository) Query(ctx context.Context, query *models.FrameLogQuery) ([]*models.FrameLog, int64, error) {
	db := r.db.WithContext(ctx).Model(&models.FrameLog{})

	if query.SessionID != "" {
		db = db.Where("session_id = ?", query.SessionID)
	}
	if query.Port != "" {
		db = db.Where("port = ?", query.Port)
	}
	if query.Direction != "" {
		db = db.Where("direction = ?", query.Direction)
	}
	if query.Code != nil {
		db = db.Where("code = ?", *query.Code)
	}
	if query.StartTime != nil {
		db = db.Where("created_at >= ?", *query.StartTime)
	}
	if query.EndTime != nil {
		db = db.Where("created_at <= ?", *query.EndTime)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	db = db.Order("timestamp DESC, id DESC")
	if query.Limit > 0 {
		db = db.Limit(query.Limit)
	}
	if query.Offset > 0 {
		db = db.Offset(query.Offset)
	}

	var logs []*models.FrameLog
	if err := db.Find(&logs).Error; err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// DeleteBefore 删除指定时间之前的日志
func (r *FrameLogRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("created_at < ?", before).Delete(&models.FrameLog{})
	return result.RowsAffected, result.Error
}
