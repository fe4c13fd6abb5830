// Package dbtest opens isolated in-memory SQLite databases for package tests.
package dbtest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/alumnet-backend/pkg/db"
	"github.com/angelmondragon/alumnet-backend/pkg/db/models"
	"github.com/angelmondragon/alumnet-backend/pkg/logger"
)

// Open returns a fresh in-memory database migrated with every model, with
// query logging discarded.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	return OpenWithLogger(t, logger.Nop())
}

// OpenWithLogger is Open with GORM's query log routed through logg the same
// way pkg/db wires it. The pool is capped at one connection, matching how the
// sqlite driver is configured in pkg/db, so concurrent tests serialize at the
// connection instead of failing with SQLITE_BUSY.
func OpenWithLogger(t testing.TB, logg *logger.Logger) *gorm.DB {
	t.Helper()
	dsn := "file:alumnet_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 db.NewQueryLogger(logg, 0),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}
