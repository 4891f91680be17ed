package controller

import (
	"errors"
	"testing"

	"github.com/goydb/mrindex/pkg/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptCache(t *testing.T) {
	c := NewScriptCache(0)
	engine := &goEngine{reduce: sumAmounts}

	var compiled int
	compileMap := func() (port.MapFunc, error) {
		compiled++
		return engine.CompileMap("map")
	}
	compileReduce := func() (port.ReduceFunc, error) {
		compiled++
		return engine.CompileReduce("reduce")
	}

	key := scriptKey{Database: "test", Index: "totals", Fingerprint: 1, Collection: "Orders"}

	_, err := c.mapFunc(key, compileMap)
	require.NoError(t, err)
	_, err = c.mapFunc(key, compileMap)
	require.NoError(t, err)
	assert.Equal(t, 1, compiled)

	// reduce functions don't depend on the collection
	_, err = c.reduceFunc(key, compileReduce)
	require.NoError(t, err)
	other := key
	other.Collection = "Customers"
	_, err = c.reduceFunc(other, compileReduce)
	require.NoError(t, err)
	assert.Equal(t, 2, compiled)

	// a new fingerprint compiles again
	changed := key
	changed.Fingerprint = 2
	_, err = c.mapFunc(changed, compileMap)
	require.NoError(t, err)
	assert.Equal(t, 3, compiled)
	assert.Equal(t, 3, c.Len())

	c.Invalidate("test", "totals")
	assert.Equal(t, 0, c.Len())
}

func TestScriptCache_CompileError(t *testing.T) {
	c := NewScriptCache(0)
	key := scriptKey{Database: "test", Index: "totals"}

	_, err := c.mapFunc(key, func() (port.MapFunc, error) {
		return nil, errors.New("syntax error")
	})
	assert.EqualError(t, err, "syntax error")
	assert.Equal(t, 0, c.Len())
}
