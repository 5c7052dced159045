package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/arcade-shim/internal/config"
	apperrors "github.com/wfunc/arcade-shim/internal/errors"
	"github.com/wfunc/arcade-shim/internal/models"
)

func TestDialectorUnknownDriver(t *testing.T) {
	_, err := Dialector("oracle", "x")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrConfigValidate))
}

func TestOpenAndMigrateMemory(t *testing.T) {
	db, err := Open(&config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:", MaxOpenConns: 1})
	require.NoError(t, err)
	defer func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}()

	assert.Empty(t, getDBPath(db), "内存库不需要迁移锁")
	require.NoError(t, Migrate(db))
	for _, m := range Models() {
		assert.True(t, db.Migrator().HasTable(m), "%T", m)
	}
	assert.True(t, db.Migrator().HasIndex(&models.FrameLog{}, "idx_frame_logs_port_direction"))

	// 重复迁移不报错
	require.NoError(t, Migrate(db))
}

func TestDropAllTables(t *testing.T) {
	cfg := &config.DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "drop.db")}

	db, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	sqlDB, _ := db.DB()
	require.NoError(t, sqlDB.Close())

	// 迁移时缓存的预编译语句会锁住表，删除在新连接上进行
	db, err = Open(cfg)
	require.NoError(t, err)
	defer func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}()

	require.NoError(t, DropAllTables(db))
	for _, m := range Models() {
		assert.False(t, db.Migrator().HasTable(m), "%T", m)
	}
}

func TestOpenCreatesSQLiteDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	path := filepath.Join(dir, "shim.db")

	db, err := Open(&config.DatabaseConfig{Driver: "sqlite", DSN: path})
	require.NoError(t, err)
	defer func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}()

	_, err = os.Stat(dir)
	assert.NoError(t, err)
	assert.Equal(t, path, getDBPath(db))

	require.NoError(t, Migrate(db))
	_, err = os.Stat(path + ".migration.lock")
	assert.True(t, os.IsNotExist(err), "迁移结束后锁文件应被删除")
}

func TestGlobalLifecycle(t *testing.T) {
	assert.False(t, IsConnected())
	require.NoError(t, Init(&config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:", MaxOpenConns: 1}))
	assert.True(t, IsConnected())
	assert.NotNil(t, GetDB())
	require.NoError(t, AutoMigrate())
	require.NoError(t, Close())
	assert.False(t, IsConnected())
	assert.Error(t, AutoMigrate())
}
