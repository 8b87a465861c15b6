// Package testsupport holds fixtures shared by package tests: an in-memory
// SQL store and a fake media host.
package testsupport

import (
	"testing"

	"watchparty/internal/db"
	"watchparty/internal/store"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// NewDB opens a migrated in-memory SQLite database that lives for the test.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	gdb, err := db.Open(sqlite.Open(":memory:"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	// every new :memory: connection is a fresh database
	sqlDB.SetMaxOpenConns(1)
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return gdb
}

// NewStore wraps NewDB in the gorm Store implementation.
func NewStore(t testing.TB) *store.Gorm {
	t.Helper()
	return store.NewGorm(NewDB(t))
}
