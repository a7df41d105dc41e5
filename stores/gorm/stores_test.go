package gorm_test

import (
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	ga "github.com/gridpicks/gridauth"
	gormstore "github.com/gridpicks/gridauth/stores/gorm"
	"github.com/gridpicks/gridauth/stores/storetest"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "gridauth.db") + "?_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// sqlite allows one writer; serialize on a single connection
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, gormstore.AutoMigrate(db))
	return db
}

func TestGORMAccountStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) ga.AccountRepository {
		return gormstore.NewAccountStore(openTestDB(t))
	})
}
