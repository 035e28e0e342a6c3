// Package dbtest opens databases for repository tests.
package dbtest

import (
	"context"
	"os"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/medfarma-backend/pkg/migrate"
)

// EnvTestDSN points repository tests at a disposable Postgres database.
const EnvTestDSN = "MEDFARMA_TEST_DB_DSN"

// Postgres migrates the database named by MEDFARMA_TEST_DB_DSN and returns a
// transaction that is rolled back when the test ends. Tests skip when the
// variable is unset.
func Postgres(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := os.Getenv(EnvTestDSN)
	if dsn == "" {
		t.Skipf("%s is not set", EnvTestDSN)
	}

	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migrate.Run(context.Background(), sqlDB, "", "up"); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}

	tx := conn.Begin()
	if tx.Error != nil {
		t.Fatalf("begin: %v", tx.Error)
	}
	t.Cleanup(func() { tx.Rollback() })
	return tx
}

// SQLite returns an in-memory database with the given models auto-migrated.
// Only models without Postgres-specific column types can use it.
func SQLite(t *testing.T, models ...any) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if len(models) > 0 {
		if err := conn.AutoMigrate(models...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return conn
}
