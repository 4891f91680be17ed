package group

import (
	"context"
	"errors"
	"testing"

	"github.com/goydb/mrindex/internal/reduce/reducekey"
	"github.com/goydb/mrindex/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/mgo.v2/bson"
)

func newAggregator(t *testing.T, fields []model.GroupByField, opts ...reducekey.Option) (*Aggregator, *reducekey.Pool) {
	t.Helper()
	ex, err := reducekey.NewExtractor(fields)
	require.NoError(t, err)
	pool := reducekey.NewPool(reducekey.SingleValue, 4, opts...)
	return New("orders", ex, pool), pool
}

func output(t *testing.T, id string, fields bson.D) *model.MapOutput {
	t.Helper()
	out, err := model.NewMapOutput(id, "orders", fields)
	require.NoError(t, err)
	return out
}

func order(t *testing.T, id, region string, total int) *model.MapOutput {
	return output(t, id, bson.D{{Name: "Region", Value: region}, {Name: "Total", Value: total}})
}

func TestAggregator_Orders(t *testing.T) {
	ctx := context.Background()
	a, pool := newAggregator(t, []model.GroupByField{{Name: "Region"}})

	for _, out := range []*model.MapOutput{
		order(t, "o1", "A", 10),
		order(t, "o2", "B", 5),
		order(t, "o3", "A", 7),
	} {
		require.NoError(t, a.Add(ctx, out))
	}
	require.Equal(t, 2, a.Len())

	var keys []interface{}
	var sizes []int
	err := a.ForEachGroup(ctx, func(g *Group) error {
		keys = append(keys, g.KeyObject)
		sizes = append(sizes, g.Len())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"A", "B"}, keys)
	assert.Equal(t, []int{2, 1}, sizes)

	a.Release()
	assert.Equal(t, 0, pool.Outstanding())
}

func TestAggregator_GroupValues(t *testing.T) {
	ctx := context.Background()
	a, _ := newAggregator(t, []model.GroupByField{{Name: "Region"}})
	defer a.Release()

	require.NoError(t, a.Add(ctx, order(t, "o1", "A", 10)))
	require.NoError(t, a.Add(ctx, order(t, "o2", "A", 7)))

	err := a.ForEachGroup(ctx, func(g *Group) error {
		require.Equal(t, 2, g.Len())
		v, err := g.At(1)
		require.NoError(t, err)
		assert.EqualValues(t, 7, v["Total"])
		fields, err := g.Fields(1)
		require.NoError(t, err)
		require.Len(t, fields, 2)
		assert.Equal(t, "Region", fields[0].Name)
		assert.Equal(t, "Total", fields[1].Name)
		assert.NotEmpty(t, g.KeyString())
		return nil
	})
	require.NoError(t, err)
}

func TestAggregator_HashCollision(t *testing.T) {
	ctx := context.Background()
	constant := func([]byte) uint64 { return 42 }
	a, _ := newAggregator(t, []model.GroupByField{{Name: "Region"}}, reducekey.WithHash(constant))
	defer a.Release()

	require.NoError(t, a.Add(ctx, order(t, "o1", "A", 1)))
	require.NoError(t, a.Add(ctx, order(t, "o2", "B", 1)))
	require.NoError(t, a.Add(ctx, order(t, "o3", "A", 1)))
	require.NoError(t, a.Add(ctx, order(t, "o4", "C", 1)))

	assert.Equal(t, 3, a.Len())
	var sizes []int
	_ = a.ForEachGroup(ctx, func(g *Group) error {
		sizes = append(sizes, g.Len())
		return nil
	})
	assert.Equal(t, []int{2, 1, 1}, sizes)
}

func TestAggregator_NullIsAValue(t *testing.T) {
	ctx := context.Background()
	a, _ := newAggregator(t, []model.GroupByField{{Name: "Region"}})
	defer a.Release()

	require.NoError(t, a.Add(ctx, output(t, "o1", bson.D{{Name: "Region", Value: nil}})))
	require.NoError(t, a.Add(ctx, output(t, "o2", bson.D{{Name: "Region", Value: nil}})))
	require.NoError(t, a.Add(ctx, output(t, "o3", bson.D{{Name: "Region", Value: ""}})))
	assert.Equal(t, 2, a.Len())
}

func TestAggregator_MissingGroupByField(t *testing.T) {
	ctx := context.Background()
	a, _ := newAggregator(t, []model.GroupByField{{Name: "Region"}, {Name: "Year"}})
	defer a.Release()

	err := a.Add(ctx, output(t, "o1", bson.D{{Name: "Region", Value: "A"}}))
	var missing *model.MissingGroupByFieldError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"Year"}, missing.Missing)
	assert.Equal(t, 1, missing.Found)
	assert.Equal(t, 0, a.Len())

	// the aggregator stays usable
	require.NoError(t, a.Add(ctx, output(t, "o2", bson.D{{Name: "Region", Value: "A"}, {Name: "Year", Value: 2020}})))
	assert.Equal(t, 1, a.Len())
}

func TestAggregator_NoGroupByFields(t *testing.T) {
	ctx := context.Background()
	a, _ := newAggregator(t, nil)
	defer a.Release()

	require.NoError(t, a.Add(ctx, order(t, "o1", "A", 1)))
	require.NoError(t, a.Add(ctx, order(t, "o2", "B", 1)))
	assert.Equal(t, 1, a.Len())
}

func TestAggregator_KeyComputedOncePerOutput(t *testing.T) {
	ctx := context.Background()
	a, _ := newAggregator(t, []model.GroupByField{{Name: "Region"}})
	defer a.Release()

	for i := 0; i < 10; i++ {
		require.NoError(t, a.Add(ctx, order(t, "o", "A", i)))
	}
	stats := a.Stats()
	// one key per inserted output plus one for the representative
	assert.Equal(t, 11, stats.KeyComputations)
	assert.Equal(t, 9, stats.Comparisons)
}

func TestAggregator_ForEachGroupCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a, _ := newAggregator(t, []model.GroupByField{{Name: "Region"}})
	defer a.Release()

	require.NoError(t, a.Add(ctx, order(t, "o1", "A", 1)))
	require.NoError(t, a.Add(ctx, order(t, "o2", "B", 1)))

	calls := 0
	err := a.ForEachGroup(ctx, func(g *Group) error {
		calls++
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
