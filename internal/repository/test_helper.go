package repository

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wfunc/arcade-shim/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB 创建已迁移的内存数据库
//
// 内存库每个连接各自独立，限制为单连接保证所有查询看到同一份数据。
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&models.ButtonBinding{},
		&models.AnalogBinding{},
		&models.LightBinding{},
		&models.OptionSetting{},
		&models.FrameLog{},
	)
	require.NoError(t, err)

	t.Cleanup(func() { CleanupTestDB(db) })
	return db
}

// CleanupTestDB 关闭数据库连接
func CleanupTestDB(db *gorm.DB) {
	sqlDB, _ := db.DB()
	if sqlDB != nil {
		sqlDB.Close()
	}
}
