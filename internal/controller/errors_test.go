package controller

import (
	"errors"
	"fmt"
	"testing"

	"github.com/goydb/mrindex/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorList_Record(t *testing.T) {
	l := NewErrorList("totals", 0)

	first := l.Record(model.ActionMap, "", "Orders/o1", errors.New("boom"))
	assert.Equal(t, 1, first.Count)
	assert.Equal(t, "totals", first.Index)

	again := l.Record(model.ActionMap, "", "Orders/o1", errors.New("boom"))
	assert.Equal(t, 2, again.Count)
	assert.Equal(t, first.ID, again.ID)
	assert.False(t, isProminent(again))

	l.Record(model.ActionMap, "", "Orders/o2", errors.New("boom"))
	third := l.Record(model.ActionMap, "", "Orders/o1", errors.New("boom"))
	assert.True(t, isProminent(third))

	errs := l.Errors()
	require.Len(t, errs, 2)
	assert.Equal(t, "Orders/o1", errs[0].Document)
	assert.Equal(t, 4, l.Total())

	// returned entries are copies
	errs[0].Count = 100
	assert.Equal(t, 3, l.Errors()[0].Count)
}

func TestErrorList_MissingGroupByField(t *testing.T) {
	l := NewErrorList("totals", 0)
	e := l.Record(model.ActionMaterialize, "A", "", &model.MissingGroupByFieldError{
		Index:   "totals",
		Output:  `{"Amount":1}`,
		Missing: []string{"Region"},
	})
	assert.Equal(t, `{"Amount":1}`, e.Document)
	assert.Contains(t, e.Message, "Region")
}

func TestErrorList_Eviction(t *testing.T) {
	l := NewErrorList("totals", 3)
	for i := 0; i < 5; i++ {
		l.Record(model.ActionReduce, fmt.Sprint(i), "", errors.New("boom"))
	}

	errs := l.Errors()
	require.Len(t, errs, 3)
	keys := []string{errs[0].Key, errs[1].Key, errs[2].Key}
	assert.ElementsMatch(t, []string{"2", "3", "4"}, keys)
	assert.Equal(t, 5, l.Total())

	l.Clear()
	assert.Empty(t, l.Errors())
	assert.Equal(t, 0, l.Total())
}
