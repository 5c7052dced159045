package database

import (
	"fmt"
	"strings"

	"github.com/wfunc/arcade-shim/internal/logger"
	"github.com/wfunc/arcade-shim/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Models 需要迁移的模型
func Models() []interface{} {
	return []interface{}{
		// 绑定存储
		&models.ButtonBinding{},
		&models.AnalogBinding{},
		&models.LightBinding{},
		&models.OptionSetting{},

		// 总线帧日志
		&models.FrameLog{},
	}
}

// AutoMigrate 迁移全局数据库
func AutoMigrate() error {
	if DB == nil {
		return fmt.Errorf("数据库未初始化")
	}
	return Migrate(DB)
}

// Migrate 迁移表结构，sqlite 文件库用锁文件避免多进程同时迁移
func Migrate(db *gorm.DB) error {
	CleanupStaleLocks()

	if dbPath := getDBPath(db); dbPath != "" {
		lockFile, err := acquireMigrationLock(dbPath)
		if err != nil {
			logger.Error("无法获取迁移锁", zap.Error(err))
			return fmt.Errorf("获取迁移锁失败: %w", err)
		}
		defer releaseMigrationLock(lockFile)
	}

	logger.Info("开始数据库迁移...")
	for _, model := range Models() {
		if shouldSkipMigration(db, model) {
			continue
		}
		if err := db.AutoMigrate(model); err != nil {
			logger.Error("迁移失败",
				zap.String("model", fmt.Sprintf("%T", model)),
				zap.Error(err),
			)
			return err
		}
		logger.Debug("迁移成功", zap.String("model", fmt.Sprintf("%T", model)))
	}

	createIndexes(db)
	logger.Info("数据库迁移完成")
	return nil
}

var frameLogIndexes = []string{
	"CREATE INDEX IF NOT EXISTS idx_frame_logs_port_direction ON frame_logs(port, direction)",
	"CREATE INDEX IF NOT EXISTS idx_frame_logs_session_timestamp ON frame_logs(session_id, timestamp)",
}

// createIndexes 创建复合索引，失败只记录警告
func createIndexes(db *gorm.DB) {
	for _, idx := range frameLogIndexes {
		if err := db.Exec(idx).Error; err != nil && !strings.Contains(err.Error(), "already exists") {
			logger.Warn("创建索引失败", zap.String("index", idx), zap.Error(err))
		}
	}
}

// shouldSkipMigration 帧日志表数据量很大时跳过 AutoMigrate，只补索引
func shouldSkipMigration(db *gorm.DB, model interface{}) bool {
	if _, ok := model.(*models.FrameLog); !ok {
		return false
	}
	if !db.Migrator().HasTable(model) {
		return false
	}

	var count int64
	if err := db.Model(model).Count(&count).Error; err != nil || count <= 100000 {
		return false
	}
	logger.Info("表中数据量较大，跳过AutoMigrate",
		zap.String("table", models.FrameLog{}.TableName()),
		zap.Int64("count", count))
	return true
}

// DropAllTables 删除全部表（仅用于测试环境）
func DropAllTables(db *gorm.DB) error {
	ms := Models()
	for i := len(ms) - 1; i >= 0; i-- {
		if err := db.Migrator().DropTable(ms[i]); err != nil {
			logger.Error("删除表失败", zap.String("model", fmt.Sprintf("%T", ms[i])), zap.Error(err))
			return err
		}
	}
	logger.Info("所有表已删除")
	return nil
}
