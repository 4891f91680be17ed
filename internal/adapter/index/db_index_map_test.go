package index_test

import (
	"context"
	"sort"
	"testing"

	"github.com/goydb/mrindex/internal/adapter/index"
	"github.com/goydb/mrindex/pkg/model"
	"github.com/goydb/mrindex/pkg/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/mgo.v2/bson"
)

func mapOutput(t *testing.T, id, key string, amount int) *model.MapOutput {
	out, err := model.NewMapOutput(id, "orders", bson.D{
		{Name: "Region", Value: key},
		{Name: "Amount", Value: amount},
	})
	require.NoError(t, err)
	out.ReduceKey = []byte(key)
	return out
}

func entries(t *testing.T, db port.DatabaseEngine, mi *index.MapEntryIndex, key string) []string {
	var ids []string
	read(t, db, func(tx port.EngineReadTransaction) {
		err := mi.Entries(context.Background(), tx, []byte(key), func(out *model.MapOutput) error {
			ids = append(ids, out.SourceID)
			assert.Equal(t, key, string(out.ReduceKey))
			return nil
		})
		require.NoError(t, err)
	})
	sort.Strings(ids)
	return ids
}

func keys(keys [][]byte) []string {
	var s []string
	for _, k := range keys {
		s = append(s, string(k))
	}
	sort.Strings(s)
	return s
}

func TestMapEntryIndex(t *testing.T) {
	WithTestEngine(t, func(ctx context.Context, db port.DatabaseEngine) {
		mi := index.NewMapEntryIndex("totals:entries")
		write(t, db, func(tx port.EngineWriteTransaction) { mi.Ensure(ctx, tx) })

		t.Run("remove unknown document", func(t *testing.T) {
			write(t, db, func(tx port.EngineWriteTransaction) {
				assert.Empty(t, mi.RemoveDocument(ctx, tx, []byte("orders\x00unknown")))
			})
		})

		t.Run("add documents", func(t *testing.T) {
			write(t, db, func(tx port.EngineWriteTransaction) {
				affected, err := mi.Update(ctx, tx, []byte("orders\x00o1"), []*model.MapOutput{mapOutput(t, "o1", "A", 10)})
				require.NoError(t, err)
				assert.Equal(t, []string{"A"}, keys(affected))
			})
			write(t, db, func(tx port.EngineWriteTransaction) {
				_, err := mi.Update(ctx, tx, []byte("orders\x00o2"), []*model.MapOutput{mapOutput(t, "o2", "A", 20)})
				require.NoError(t, err)
				_, err = mi.Update(ctx, tx, []byte("orders\x00o3"), []*model.MapOutput{mapOutput(t, "o3", "B", 5)})
				require.NoError(t, err)
			})

			assert.Equal(t, []string{"o1", "o2"}, entries(t, db, mi, "A"))
			assert.Equal(t, []string{"o3"}, entries(t, db, mi, "B"))
			read(t, db, func(tx port.EngineReadTransaction) {
				assert.Equal(t, uint64(3), mi.Stats(tx).Keys)
			})
		})

		t.Run("hash is not stored", func(t *testing.T) {
			for _, hash := range []uint64{1 << 63, ^uint64(0)} {
				out := mapOutput(t, "o9", "H", 1)
				out.ReduceKeyHash = hash
				write(t, db, func(tx port.EngineWriteTransaction) {
					_, err := mi.Update(ctx, tx, []byte("orders\x00o9"), []*model.MapOutput{out})
					require.NoError(t, err)
				})
			}
			assert.Equal(t, []string{"o9"}, entries(t, db, mi, "H"))
			write(t, db, func(tx port.EngineWriteTransaction) {
				assert.Equal(t, []string{"H"}, keys(mi.RemoveDocument(ctx, tx, []byte("orders\x00o9"))))
			})
		})

		t.Run("key is not a prefix match", func(t *testing.T) {
			write(t, db, func(tx port.EngineWriteTransaction) {
				_, err := mi.Update(ctx, tx, []byte("orders\x00o4"), []*model.MapOutput{mapOutput(t, "o4", "AB", 1)})
				require.NoError(t, err)
			})
			assert.Equal(t, []string{"o1", "o2"}, entries(t, db, mi, "A"))
			assert.Equal(t, []string{"o4"}, entries(t, db, mi, "AB"))
		})

		t.Run("update moves the document", func(t *testing.T) {
			write(t, db, func(tx port.EngineWriteTransaction) {
				affected, err := mi.Update(ctx, tx, []byte("orders\x00o1"), []*model.MapOutput{mapOutput(t, "o1", "B", 10)})
				require.NoError(t, err)
				assert.Equal(t, []string{"A", "B"}, keys(affected))
			})
			assert.Equal(t, []string{"o2"}, entries(t, db, mi, "A"))
			assert.Equal(t, []string{"o1", "o3"}, entries(t, db, mi, "B"))
		})

		t.Run("document removed", func(t *testing.T) {
			write(t, db, func(tx port.EngineWriteTransaction) {
				affected := mi.RemoveDocument(ctx, tx, []byte("orders\x00o3"))
				assert.Equal(t, []string{"B"}, keys(affected))
			})
			assert.Equal(t, []string{"o1"}, entries(t, db, mi, "B"))
		})

		t.Run("document id prefix", func(t *testing.T) {
			// o1 must not remove the entries of o10
			write(t, db, func(tx port.EngineWriteTransaction) {
				_, err := mi.Update(ctx, tx, []byte("orders\x00o10"), []*model.MapOutput{mapOutput(t, "o10", "C", 1)})
				require.NoError(t, err)
			})
			write(t, db, func(tx port.EngineWriteTransaction) {
				mi.RemoveDocument(ctx, tx, []byte("orders\x00o1"))
			})
			assert.Equal(t, []string{"o10"}, entries(t, db, mi, "C"))
		})

		write(t, db, func(tx port.EngineWriteTransaction) { mi.Remove(ctx, tx) })
		assert.Empty(t, entries(t, db, mi, "A"))
	})
}
