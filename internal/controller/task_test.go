package controller

import (
	"context"
	"errors"
	"testing"

	"github.com/goydb/mrindex/internal/adapter/storage"
	"github.com/goydb/mrindex/pkg/model"
	"github.com/goydb/mrindex/pkg/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/mgo.v2/bson"
)

func TestIndex_RunBatch(t *testing.T) {
	def := ordersDefinition("totals")
	WithTestIndex(t, def, &goEngine{reduce: sumAmounts}, Options{}, func(ctx context.Context, db *storage.Database, ix *Index) {
		putOrder(t, db, "o1", "A", 10)
		putOrder(t, db, "o2", "A", 20)
		putOrder(t, db, "o3", "B", 5)

		stats, err := ix.RunBatch(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, stats.Documents)
		assert.Equal(t, 3, stats.MapOutputs)
		assert.Equal(t, 2, stats.Groups)
		assert.Equal(t, 2, stats.Results)
		assert.False(t, stats.PartiallyFailed())

		res := results(t, ix)
		require.Len(t, res, 2)
		assert.EqualValues(t, 30, res["A"]["Amount"])
		assert.EqualValues(t, 5, res["B"]["Amount"])

		// results are mirrored into the output collection
		totals, err := db.ReadDocuments(ctx, "Totals", 0, 10)
		require.NoError(t, err)
		assert.Len(t, totals, 2)

		stats, err = ix.RunBatch(ctx)
		require.NoError(t, err)
		assert.True(t, stats.Empty())
		assert.Equal(t, 0, stats.Groups)

		// only the group of the changed document is reduced again
		putOrder(t, db, "o2", "A", 25)
		stats, err = ix.RunBatch(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Groups)
		assert.EqualValues(t, 35, results(t, ix)["A"]["Amount"])

		// moving a document changes both groups
		putOrder(t, db, "o3", "A", 5)
		stats, err = ix.RunBatch(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Groups)
		assert.Equal(t, 1, stats.Deleted)
		res = results(t, ix)
		require.Len(t, res, 1)
		assert.EqualValues(t, 40, res["A"]["Amount"])

		totals, err = db.ReadDocuments(ctx, "Totals", 0, 10)
		require.NoError(t, err)
		assert.Len(t, totals, 1)

		// tombstones remove entries
		for _, id := range []string{"o1", "o2", "o3"} {
			_, err = db.DeleteDocument(ctx, "Orders", id)
			require.NoError(t, err)
		}
		stats, err = ix.RunBatch(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, stats.Tombstones)
		assert.Equal(t, 1, stats.Deleted)
		assert.Empty(t, results(t, ix))

		p, err := ix.store.Progress(ctx)
		require.NoError(t, err)
		cs, err := db.CollectionStats(ctx, "Orders")
		require.NoError(t, err)
		assert.Equal(t, cs.LastTombstoneEtag, p.Collection("Orders").Tombstones)
	})
}

func TestIndex_RunBatch_BatchSize(t *testing.T) {
	def := ordersDefinition("totals")
	WithTestIndex(t, def, &goEngine{reduce: sumAmounts}, Options{BatchSize: 2}, func(ctx context.Context, db *storage.Database, ix *Index) {
		for _, id := range []string{"o1", "o2", "o3", "o4", "o5"} {
			putOrder(t, db, id, "A", 1)
		}

		var batches int
		for {
			stats, err := ix.RunBatch(ctx)
			require.NoError(t, err)
			if stats.Empty() {
				break
			}
			assert.LessOrEqual(t, stats.Documents, 2)
			batches++
		}
		assert.Equal(t, 3, batches)
		assert.EqualValues(t, 5, results(t, ix)["A"]["Amount"])
	})
}

func TestIndex_RunBatch_Chunked(t *testing.T) {
	var calls, rereduces int
	engine := &goEngine{reduce: func(ctx context.Context, g *port.ReduceGroup) (interface{}, error) {
		calls++
		if g.Rereduce {
			rereduces++
		}
		assert.LessOrEqual(t, g.Values.Len(), 2)
		return sumAmounts(ctx, g)
	}}

	def := ordersDefinition("totals")
	WithTestIndex(t, def, engine, Options{ChunkSize: 2}, func(ctx context.Context, db *storage.Database, ix *Index) {
		for i, id := range []string{"o1", "o2", "o3", "o4", "o5"} {
			putOrder(t, db, id, "A", i+1)
		}

		stats, err := ix.RunBatch(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Groups)
		assert.EqualValues(t, 15, results(t, ix)["A"]["Amount"])
		// 5 values -> 3 partials -> 2 partials -> 1 result
		assert.Equal(t, 6, calls)
		assert.Equal(t, 3, rereduces)
	})
}

func TestIndex_RunBatch_Errors(t *testing.T) {
	engine := &goEngine{reduce: func(ctx context.Context, g *port.ReduceGroup) (interface{}, error) {
		if g.Key == "B" {
			return nil, errors.New("boom")
		}
		return sumAmounts(ctx, g)
	}}

	def := ordersDefinition("totals")
	WithTestIndex(t, def, engine, Options{}, func(ctx context.Context, db *storage.Database, ix *Index) {
		putOrder(t, db, "o1", "A", 10)
		putOrder(t, db, "o2", "B", 5)
		_, err := db.PutDocument(ctx, &model.Document{
			ID: "o3", Collection: "Orders",
			Data: map[string]interface{}{"Fail": true},
		})
		require.NoError(t, err)
		_, err = db.PutDocument(ctx, &model.Document{
			ID: "o4", Collection: "Orders",
			Data: map[string]interface{}{"Amount": 1},
		})
		require.NoError(t, err)

		stats, err := ix.RunBatch(ctx)
		require.NoError(t, err)
		assert.True(t, stats.PartiallyFailed())
		assert.Equal(t, 1, stats.Results)

		res := results(t, ix)
		assert.Len(t, res, 1)
		assert.EqualValues(t, 10, res["A"]["Amount"])

		errs := ix.Errors().Errors()
		actions := map[model.IndexingAction]int{}
		for _, e := range errs {
			actions[e.Action]++
		}
		// o3 fails to map, o4 misses the group by field, B fails to reduce
		assert.Equal(t, map[model.IndexingAction]int{model.ActionMap: 2, model.ActionReduce: 1}, actions)

		// the failed group stays dirty and is retried
		dirty, err := ix.store.DirtyKeys(ctx)
		require.NoError(t, err)
		assert.Len(t, dirty, 1)

		_, err = ix.RunBatch(ctx)
		require.NoError(t, err)
		for _, e := range ix.Errors().Errors() {
			if e.Action == model.ActionReduce {
				assert.Equal(t, 2, e.Count)
			}
		}
	})
}

func TestIndex_RunBatch_CanceledBetweenGroups(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var reduced int
	engine := &goEngine{reduce: func(c context.Context, g *port.ReduceGroup) (interface{}, error) {
		reduced++
		if reduced == 2 {
			cancel()
		}
		return sumAmounts(c, g)
	}}

	def := ordersDefinition("totals")
	WithTestIndex(t, def, engine, Options{}, func(_ context.Context, db *storage.Database, ix *Index) {
		putOrder(t, db, "o1", "A", 10)
		putOrder(t, db, "o2", "B", 5)

		stats, err := ix.RunBatch(ctx)
		require.NoError(t, err)
		assert.True(t, stats.Canceled)
		assert.Equal(t, 2, reduced)
		assert.Len(t, results(t, ix), 1)

		dirty, err := ix.store.DirtyKeys(context.Background())
		require.NoError(t, err)
		assert.Len(t, dirty, 1)

		// the next batch has no new documents but reduces the dirty key
		stats, err = ix.RunBatch(context.Background())
		require.NoError(t, err)
		assert.True(t, stats.Empty())
		assert.Equal(t, 1, stats.Groups)

		res := results(t, ix)
		assert.Len(t, res, 2)
		assert.EqualValues(t, 10, res["A"]["Amount"])
		assert.EqualValues(t, 5, res["B"]["Amount"])

		dirty, err = ix.store.DirtyKeys(context.Background())
		require.NoError(t, err)
		assert.Empty(t, dirty)
	})
}

func TestIndex_RunBatch_ChangedGroupKey(t *testing.T) {
	engine := &goEngine{reduce: func(ctx context.Context, g *port.ReduceGroup) (interface{}, error) {
		return bson.D{{Name: "Region", Value: "other"}, {Name: "Amount", Value: 1}}, nil
	}}

	def := ordersDefinition("totals")
	WithTestIndex(t, def, engine, Options{}, func(ctx context.Context, db *storage.Database, ix *Index) {
		putOrder(t, db, "o1", "A", 10)

		stats, err := ix.RunBatch(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Errors)
		assert.Empty(t, results(t, ix))

		errs := ix.Errors().Errors()
		require.Len(t, errs, 1)
		assert.Equal(t, model.ActionReduce, errs[0].Action)
		assert.Contains(t, errs[0].Message, "group by values")
	})
}
