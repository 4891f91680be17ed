package reducekey

import (
	"context"
	"testing"

	"github.com/goydb/mrindex/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/mgo.v2/bson"
)

func TestExtractor(t *testing.T) {
	ctx := context.Background()
	e, err := NewExtractor([]model.GroupByField{
		{Name: "Region"},
		{Name: "City", Path: "$.Address.City"},
	})
	require.NoError(t, err)

	t.Run("all fields", func(t *testing.T) {
		p := NewProcessor(SingleValue)
		missing, err := e.Process(ctx, p, map[string]interface{}{
			"Region":  "A",
			"Address": map[string]interface{}{"City": "Berlin"},
		})
		require.NoError(t, err)
		assert.Empty(t, missing)
		assert.Equal(t, 2, p.Fields())
	})

	t.Run("null is present", func(t *testing.T) {
		p := NewProcessor(SingleValue)
		missing, err := e.Process(ctx, p, map[string]interface{}{
			"Region":  nil,
			"Address": map[string]interface{}{"City": nil},
		})
		require.NoError(t, err)
		assert.Empty(t, missing)
		assert.True(t, p.IsSet())
	})

	t.Run("missing fields", func(t *testing.T) {
		p := NewProcessor(SingleValue)
		missing, err := e.Process(ctx, p, map[string]interface{}{
			"Address": map[string]interface{}{},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"Region", "City"}, missing)
		assert.False(t, p.IsSet())
	})

	t.Run("null or scalar parent", func(t *testing.T) {
		for _, parent := range []interface{}{nil, "Berlin", 7} {
			p := NewProcessor(SingleValue)
			missing, err := e.Process(ctx, p, map[string]interface{}{
				"Region":  "A",
				"Address": parent,
			})
			require.NoError(t, err)
			assert.Equal(t, []string{"City"}, missing)
		}
	})

	t.Run("key object", func(t *testing.T) {
		key, err := e.KeyObject(ctx, map[string]interface{}{
			"Region":  "A",
			"Address": map[string]interface{}{"City": "Berlin"},
		})
		require.NoError(t, err)
		assert.Equal(t, bson.D{{Name: "Region", Value: "A"}, {Name: "City", Value: "Berlin"}}, key)
	})
}

func TestExtractor_SingleFieldKeyIsScalar(t *testing.T) {
	e, err := NewExtractor([]model.GroupByField{{Name: "Region"}})
	require.NoError(t, err)
	key, err := e.KeyObject(context.Background(), map[string]interface{}{"Region": "B"})
	require.NoError(t, err)
	assert.Equal(t, "B", key)
}

func TestExtractor_InvalidPath(t *testing.T) {
	_, err := NewExtractor([]model.GroupByField{{Name: "x", Path: "$.["}})
	assert.Error(t, err)
}
