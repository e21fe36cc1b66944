// Package dbtest provides migrated in-memory SQLite databases for tests.
package dbtest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/ibpractice/backend/internal/database"
)

var seq atomic.Int64

// MemoryDSN returns a DSN for a private shared-cache in-memory database.
func MemoryDSN(t testing.TB) string {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	return fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, seq.Add(1))
}

// NewProgressDB returns a migrated progress store closed at test cleanup.
func NewProgressDB(t testing.TB) *sqlx.DB {
	t.Helper()
	db, err := database.Connect(database.DriverSQLite, MemoryDSN(t))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.Migrate(db, database.DriverSQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// CreateUser inserts a user row and returns its id.
func CreateUser(t testing.TB, db *sqlx.DB, username string) int64 {
	t.Helper()
	res, err := db.Exec(db.Rebind(`INSERT INTO users (username, password_hash) VALUES (?, ?)`), username, "x")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("last insert id: %v", err)
	}
	return id
}
