// Package storetest 为测试提供基于内存 SQLite 的存储工厂。
package storetest

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kart-io/bhasha/internal/rag/store"
)

// NewDB 打开一个已迁移的内存数据库，测试结束时关闭。
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	// 内存库按连接隔离，只保留一个连接
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, store.NewFactory(db).AutoMigrate())
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// NewFactory 返回基于内存数据库的存储工厂。
func NewFactory(t testing.TB) store.Factory {
	t.Helper()
	return store.NewFactory(NewDB(t))
}
