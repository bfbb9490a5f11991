package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roniherschmann/shorty-redirect/internal/store"
)

func openTestSQLite(t *testing.T) *store.SQLite {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "shorty.db") +
		"?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate"
	s, err := store.OpenSQLite(dsn, 4)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	runStoreContract(t, openTestSQLite(t))
}

func TestSQLiteStore_UniqueShortCode(t *testing.T) {
	s := openTestSQLite(t)
	seedLink(t, s, "dup01")
	err := s.CreateLink(context.Background(), &store.Link{ShortCode: "dup01", OriginalURL: "https://x.io"})
	assert.Error(t, err)
}

func TestSQLiteStore_Ping(t *testing.T) {
	s := openTestSQLite(t)
	assert.NoError(t, s.Ping(context.Background()))
}
