package index_test

import (
	"context"
	"testing"

	"github.com/goydb/mrindex/internal/adapter/index"
	"github.com/goydb/mrindex/pkg/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEtagIndex(t *testing.T) {
	WithTestEngine(t, func(ctx context.Context, db port.DatabaseEngine) {
		ei := index.NewEtagIndex("orders:etags")
		write(t, db, func(tx port.EngineWriteTransaction) { ei.Ensure(ctx, tx) })

		since := func(from uint64, limit int) []string {
			var ids []string
			read(t, db, func(tx port.EngineReadTransaction) {
				err := ei.Since(tx, from, limit, func(etag uint64, id []byte) error {
					ids = append(ids, string(id))
					return nil
				})
				require.NoError(t, err)
			})
			return ids
		}

		read(t, db, func(tx port.EngineReadTransaction) {
			assert.Equal(t, uint64(0), ei.Last(tx))
		})

		write(t, db, func(tx port.EngineWriteTransaction) { ei.Put(ctx, tx, []byte("a"), 1) })
		write(t, db, func(tx port.EngineWriteTransaction) { ei.Put(ctx, tx, []byte("b"), 2) })
		write(t, db, func(tx port.EngineWriteTransaction) { ei.Put(ctx, tx, []byte("a"), 3) })

		assert.Equal(t, []string{"b", "a"}, since(0, 0))
		assert.Equal(t, []string{"a"}, since(2, 0))
		assert.Equal(t, []string{"b"}, since(0, 1))
		read(t, db, func(tx port.EngineReadTransaction) {
			assert.Equal(t, uint64(3), ei.Last(tx))
			assert.Equal(t, uint64(2), ei.Count(tx))
			assert.Equal(t, uint64(3), ei.Etag(tx, []byte("a")))
		})

		write(t, db, func(tx port.EngineWriteTransaction) { ei.Delete(ctx, tx, []byte("a")) })
		assert.Equal(t, []string{"b"}, since(0, 0))
		read(t, db, func(tx port.EngineReadTransaction) {
			assert.Equal(t, uint64(2), ei.Last(tx))
			assert.Equal(t, uint64(0), ei.Etag(tx, []byte("a")))
		})
	})
}
