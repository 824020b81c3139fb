// Package testutil provides shared helpers for database-backed tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/openwind/approvalflow/migrations"
	"github.com/openwind/approvalflow/pkg/database"
)

// NewTestDB opens a fresh SQLite database in a per-test temp directory with
// all migrations applied. The connection is closed when the test finishes.
func NewTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path:            filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	migrator := database.NewMigrator(db, zap.NewNop())
	if err := migrator.RunMigrations(context.Background(), migrations.FS); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}
