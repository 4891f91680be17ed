package gojaview

import (
	"context"
	"testing"

	"github.com/goydb/mrindex/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/mgo.v2/bson"
)

func TestMapFunc_Map(t *testing.T) {
	doc := &model.Document{ID: "o1", Collection: "Orders", Data: map[string]interface{}{
		"Region":   "EU",
		"Amount":   10,
		"Customer": "c1",
		"Lines":    []interface{}{map[string]interface{}{"Qty": 2}, map[string]interface{}{"Qty": 3}},
	}}

	tests := []struct {
		name    string
		script  string
		want    []bson.D
		wantErr bool
	}{
		{
			name:   "no output",
			script: `function(doc) {}`,
		},
		{
			name:   "return object keeps property order",
			script: `function(doc) { return { Region: doc.Region, Amount: doc.Amount, Id: doc._id } }`,
			want: []bson.D{{
				{Name: "Region", Value: "EU"},
				{Name: "Amount", Value: int64(10)},
				{Name: "Id", Value: "o1"},
			}},
		},
		{
			name: "return array",
			script: `function(doc) {
				return doc.Lines.map(function (l) { return { Region: doc.Region, Qty: l.Qty } })
			}`,
			want: []bson.D{
				{{Name: "Region", Value: "EU"}, {Name: "Qty", Value: int64(2)}},
				{{Name: "Region", Value: "EU"}, {Name: "Qty", Value: int64(3)}},
			},
		},
		{
			name:   "emit",
			script: `(doc) => { emit({ Collection: doc._collection }); emit({ Half: doc.Amount / 4 }) }`,
			want: []bson.D{
				{{Name: "Collection", Value: "Orders"}},
				{{Name: "Half", Value: 2.5}},
			},
		},
		{
			name:   "nested objects and null",
			script: `function(doc) { return { Key: { Region: doc.Region, Missing: null } } }`,
			want: []bson.D{{
				{Name: "Key", Value: bson.D{{Name: "Region", Value: "EU"}, {Name: "Missing", Value: nil}}},
			}},
		},
		{
			name:   "load referenced document",
			script: `function(doc) { var c = load('Customers', doc.Customer); return { Name: c.Name, Other: load('Customers', 'x') } }`,
			want: []bson.D{{
				{Name: "Name", Value: "Ada"},
				{Name: "Other", Value: nil},
			}},
		},
		{
			name:    "scalar output",
			script:  `function(doc) { return 1 }`,
			wantErr: true,
		},
		{
			name:    "exception",
			script:  `function(doc) { throw new Error("boom") }`,
			wantErr: true,
		},
	}

	load := func(collection, id string) (*model.Document, error) {
		if collection == "Customers" && id == "c1" {
			return &model.Document{ID: id, Collection: collection, Data: map[string]interface{}{"Name": "Ada"}}, nil
		}
		return nil, nil
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, err := NewEngine().CompileMap(tt.script)
			require.NoError(t, err)

			got, err := fn.Map(context.Background(), doc, load)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMapFunc_DocumentIsNotModified(t *testing.T) {
	fn, err := NewEngine().CompileMap(`function(doc) { doc.Region = "US"; return doc }`)
	require.NoError(t, err)

	doc := &model.Document{ID: "o1", Collection: "orders", Data: map[string]interface{}{"Region": "EU"}}
	got, err := fn.Map(context.Background(), doc, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, bson.D{
		{Name: "Region", Value: "US"},
		{Name: "_collection", Value: "orders"},
		{Name: "_id", Value: "o1"},
	}, got[0])
	assert.Equal(t, "EU", doc.Data["Region"])
}

func TestCompileMap_Invalid(t *testing.T) {
	for _, src := range []string{`function(doc) {`, `42`} {
		_, err := NewEngine().CompileMap(src)
		assert.Error(t, err, src)
	}
}
