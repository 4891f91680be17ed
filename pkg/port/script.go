package port

import (
	"context"

	"github.com/goydb/mrindex/pkg/model"
	"gopkg.in/mgo.v2/bson"
)

// Loader loads a referenced document while mapping, nil if not found.
type Loader func(collection, id string) (*model.Document, error)

type MapFunc interface {
	// Map returns the ordered outputs for the document.
	Map(ctx context.Context, doc *model.Document, load Loader) ([]bson.D, error)
}

// Values are the members of a group, materialized on access.
type Values interface {
	Len() int
	At(i int) (map[string]interface{}, error)
}

// OrderedValues is implemented by values that can return a member in
// the field order of the map output.
type OrderedValues interface {
	Values
	Fields(i int) (bson.D, error)
}

// ReduceGroup is presented to the reduce function as {key, values}.
type ReduceGroup struct {
	// Key is a scalar for one group-by field, otherwise an object
	// keyed by field name
	Key    interface{}
	Values Values
	// Rereduce is set when the values are results of earlier reduce calls
	Rereduce bool
}

type ReduceFunc interface {
	// Reduce returns one output object for the group. Objects should be
	// returned as bson.D to keep the field order.
	Reduce(ctx context.Context, group *ReduceGroup) (interface{}, error)
	// Reset clears the call depth and time budget state before the
	// next group.
	Reset()
	Source() string
}

type ScriptEngine interface {
	CompileMap(source string) (MapFunc, error)
	CompileReduce(source string) (ReduceFunc, error)
	// GroupByFields introspects the key-selector of the reduce function.
	GroupByFields(reduceSource string) ([]model.GroupByField, error)
}

// ScriptEngines by language
type ScriptEngines map[string]ScriptEngine
