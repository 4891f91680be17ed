package index_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/goydb/mrindex/internal/adapter/bbolt_engine"
	"github.com/goydb/mrindex/pkg/port"
	"github.com/stretchr/testify/require"
)

func WithTestEngine(t *testing.T, fn func(ctx context.Context, db port.DatabaseEngine)) {
	db, err := bbolt_engine.Open(filepath.Join(t.TempDir(), "test.indexes"))
	require.NoError(t, err)
	defer db.Close()

	fn(context.Background(), db)
}

func write(t *testing.T, db port.DatabaseEngine, fn func(tx port.EngineWriteTransaction)) {
	t.Helper()
	err := db.WriteTransaction(func(tx port.EngineWriteTransaction) error {
		fn(tx)
		return nil
	})
	require.NoError(t, err)
}

func read(t *testing.T, db port.DatabaseEngine, fn func(tx port.EngineReadTransaction)) {
	t.Helper()
	err := db.ReadTransaction(func(tx port.EngineReadTransaction) error {
		fn(tx)
		return nil
	})
	require.NoError(t, err)
}
