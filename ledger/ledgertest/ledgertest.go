// Package ledgertest provides in-memory SQLite ledgers for tests.
package ledgertest

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"prediction-ledger-api/ledger"
)

// TestingT is an interface that matches *testing.T and *testing.B.
type TestingT interface {
	Name() string
	Fatalf(format string, args ...any)
	Cleanup(func())
	Helper()
}

var seq atomic.Int64

// NewDB opens a private in-memory SQLite database with the predictions table
// migrated. It is closed when the test ends.
func NewDB(t TestingT) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, seq.Add(1))

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("getting sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := ledger.New(db).Migrate(context.Background()); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	return db
}

// New returns a ledger backed by NewDB.
func New(t TestingT, opts ...ledger.Option) *ledger.Ledger {
	t.Helper()
	return ledger.New(NewDB(t), opts...)
}
