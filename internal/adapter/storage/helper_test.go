package storage_test

import (
	"context"
	"testing"

	"github.com/goydb/mrindex/internal/adapter/storage"
	"github.com/goydb/mrindex/pkg/logger"
	"github.com/goydb/mrindex/pkg/model"
	"github.com/stretchr/testify/require"
)

func WithTestStorage(t *testing.T, fn func(ctx context.Context, s *storage.Storage)) {
	s, err := storage.Open(t.TempDir(), logger.Nop())
	require.NoError(t, err)
	defer s.Close()

	fn(context.Background(), s)
}

func WithTestDatabase(t *testing.T, fn func(ctx context.Context, db *storage.Database)) {
	WithTestStorage(t, func(ctx context.Context, s *storage.Storage) {
		db, err := s.CreateDatabase(ctx, "test")
		require.NoError(t, err)
		fn(ctx, db)
	})
}

func putDoc(t *testing.T, db *storage.Database, collection, id string, data map[string]interface{}) uint64 {
	t.Helper()
	etag, err := db.PutDocument(context.Background(), &model.Document{
		ID:         id,
		Collection: collection,
		Data:       data,
	})
	require.NoError(t, err)
	return etag
}
