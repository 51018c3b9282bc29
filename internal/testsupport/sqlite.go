package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"signalwatch/internal/adapters/sqldb"
)

// NewSQLiteClient opens a settings database in the test's temp dir
func NewSQLiteClient(t *testing.T) *sqldb.Client {
	t.Helper()

	client, err := sqldb.Open(context.Background(), sqldb.DriverSQLite, filepath.Join(t.TempDir(), "settings.db"), 1)
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}
