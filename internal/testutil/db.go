package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aurumlab/gsr-backend/internal/repository"
)

// StorePath returns a sqlite file path inside a per-test temp dir.
func StorePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "gsr-test.db")
}

// SetupStore opens a throwaway SQLite blob store for tests and closes it on
// cleanup.
func SetupStore(t *testing.T) *repository.SQLiteStore {
	t.Helper()

	store, err := repository.NewSQLiteStore(StorePath(t))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
