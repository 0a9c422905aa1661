// Package testutil opens throwaway databases for repository and handler tests.
package testutil

import (
	"path/filepath"
	"testing"

	authdomain "mailagent-backend/internal/auth/domain"
	emaildomain "mailagent-backend/internal/email/domain"
	meetingdomain "mailagent-backend/internal/meeting/domain"
	taskdomain "mailagent-backend/internal/task/domain"
	"mailagent-backend/pkg/database"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// NewDB returns a migrated SQLite database in a temp dir. The pool is
// limited to one connection so concurrent writers queue instead of
// failing with SQLITE_BUSY.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&emaildomain.ProcessedMessage{},
		&emaildomain.Sentiment{},
		&emaildomain.SyncCursor{},
		&taskdomain.Task{},
		&meetingdomain.Meeting{},
		&meetingdomain.Feedback{},
		&authdomain.FCMToken{},
	))

	t.Cleanup(func() { _ = database.Close(db) })
	return db
}
