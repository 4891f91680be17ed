package gojaview

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goydb/mrindex/pkg/model"
	"github.com/goydb/mrindex/pkg/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/mgo.v2/bson"
)

type values struct {
	data []map[string]interface{}
	read []int
}

func (v *values) Len() int { return len(v.data) }

func (v *values) At(i int) (map[string]interface{}, error) {
	v.read = append(v.read, i)
	return v.data[i], nil
}

func orders() *values {
	return &values{data: []map[string]interface{}{
		{"Region": "A", "Amount": 10},
		{"Region": "A", "Amount": 20},
	}}
}

func TestReduceFunc_Reduce(t *testing.T) {
	tests := []struct {
		name     string
		script   string
		key      interface{}
		want     interface{}
		wantRead []int
		wantErr  bool
	}{
		{
			name: "sum",
			script: `function(g) {
				return { Region: g.key, Amount: g.values.reduce(function(s, v) { return s + v.Amount }, 0) }
			}`,
			key:      "A",
			want:     bson.D{{Name: "Region", Value: "A"}, {Name: "Amount", Value: int64(30)}},
			wantRead: []int{0, 1},
		},
		{
			name: "group by aggregate",
			script: `groupBy(x => ({ Region: x.Region, City: x.Address.City }))
				.aggregate(g => ({ Region: g.key.Region, City: g.key.City, Count: g.values.length }))`,
			key:  bson.D{{Name: "Region", Value: "A"}, {Name: "City", Value: "Rome"}},
			want: bson.D{{Name: "Region", Value: "A"}, {Name: "City", Value: "Rome"}, {Name: "Count", Value: int64(2)}},
		},
		{
			name:     "values are converted on access",
			script:   `g => ({ Region: g.key, First: g.values[0].Amount })`,
			key:      "A",
			want:     bson.D{{Name: "Region", Value: "A"}, {Name: "First", Value: int64(10)}},
			wantRead: []int{0},
		},
		{
			name:    "exception",
			script:  `function(g) { return g.values[0].Missing.Field }`,
			key:     "A",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, err := NewEngine().CompileReduce(tt.script)
			require.NoError(t, err)

			v := orders()
			fn.Reset()
			got, err := fn.Reduce(context.Background(), &port.ReduceGroup{Key: tt.key, Values: v})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantRead, v.read)
		})
	}
}

// orderedValues serve members as bson.D like a group of map outputs.
type orderedValues struct {
	*values
	docs []bson.D
}

func (v orderedValues) Fields(i int) (bson.D, error) {
	v.read = append(v.read, i)
	return v.docs[i], nil
}

func TestReduceFunc_ValuesKeepFieldOrder(t *testing.T) {
	fn, err := NewEngine().CompileReduce(`g => ({ ...g.values[0], Count: g.values.length })`)
	require.NoError(t, err)

	v := orderedValues{
		values: orders(),
		docs: []bson.D{
			{{Name: "Region", Value: "A"}, {Name: "Amount", Value: 10}},
			{{Name: "Region", Value: "A"}, {Name: "Amount", Value: 20}},
		},
	}
	got, err := fn.Reduce(context.Background(), &port.ReduceGroup{Key: "A", Values: v})
	require.NoError(t, err)
	assert.Equal(t, bson.D{
		{Name: "Region", Value: "A"},
		{Name: "Amount", Value: int64(10)},
		{Name: "Count", Value: int64(2)},
	}, got)
}

func TestReduceFunc_Interrupt(t *testing.T) {
	fn, err := NewEngine().CompileReduce(`function(g) { while (true) {} }`)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = fn.Reduce(ctx, &port.ReduceGroup{Key: "A", Values: orders()})
	require.Error(t, err)
	assert.True(t, errors.Is(ctx.Err(), context.DeadlineExceeded))
}

func TestReduceFunc_ReuseAfterInterrupt(t *testing.T) {
	fn, err := NewEngine().CompileReduce(`function(g) { if (g.rereduce) { while (true) {} } return { Count: g.values.length } }`)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = fn.Reduce(ctx, &port.ReduceGroup{Key: "A", Values: orders(), Rereduce: true})
	require.Error(t, err)

	fn.Reset()
	got, err := fn.Reduce(context.Background(), &port.ReduceGroup{Key: "A", Values: orders()})
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Name: "Count", Value: int64(2)}}, got)
}

func TestEngine_GroupByFields(t *testing.T) {
	tests := []struct {
		name    string
		script  string
		want    []model.GroupByField
		wantErr bool
	}{
		{
			name:   "no key selector",
			script: `function(g) { return g }`,
		},
		{
			name:   "single field",
			script: `groupBy(x => x.Region).aggregate(g => g)`,
			want:   []model.GroupByField{{Name: "Region"}},
		},
		{
			name:   "nested single field",
			script: `groupBy(function(x) { return x.Address.City }).aggregate(function(g) { return g })`,
			want:   []model.GroupByField{{Name: "City", Path: "$.Address.City"}},
		},
		{
			name:   "object in declaration order",
			script: `groupBy(x => ({ Region: x.Region, Town: x.Address.City })).aggregate(g => g)`,
			want: []model.GroupByField{
				{Name: "Region"},
				{Name: "Town", Path: "$.Address.City"},
			},
		},
		{
			name:    "computed key",
			script:  `groupBy(x => ({ Region: "EU" })).aggregate(g => g)`,
			wantErr: true,
		},
		{
			name:    "whole document",
			script:  `groupBy(x => x).aggregate(g => g)`,
			wantErr: true,
		},
		{
			name:    "missing aggregate",
			script:  `groupBy(x => x.Region)`,
			wantErr: true,
		},
		{
			name:    "syntax error",
			script:  `groupBy(x => `,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewEngine().GroupByFields(tt.script)
			if tt.wantErr {
				var kse *model.KeySelectorError
				assert.ErrorAs(t, err, &kse)
				assert.ErrorIs(t, err, model.ErrIntrospectionFailed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
